package netdef

import "fmt"

// Border modes accepted by Conv.
const (
	BorderValid = "valid"
	BorderSame  = "same"
)

// Parameter roles.
const (
	RoleWeight = "weight"
	RoleBias   = "bias"
)

// Layer is one declared node of the network. It is a closed sum type: the
// only implementations are the pointer types declared in this package, each
// carrying exactly the fields its kind needs.
type Layer interface {
	Kind() Kind
	// Common returns the fields shared by every kind.
	Common() *Base
	// Params lists the learnable tensors the layer binds, in a fixed order.
	Params() []ParamRef

	fields() []field
	finish(c *collector, line int)
}

// Base holds the fields every layer declares.
type Base struct {
	Name string
	// Source names the producing layer. Empty means the previous declaration.
	Source string
	// InputShape is an optional explicit input shape override.
	InputShape Shape
}

func (b *Base) Common() *Base { return b }

func (b *Base) baseFields() []field {
	return []field{
		{key: "name", required: true, ptr: &b.Name},
		{key: "source", omitEmpty: true, ptr: &b.Source},
		{key: "input_shape", omitEmpty: true, ptr: &b.InputShape},
	}
}

// ParamRef binds a layer's learnable tensor to a name in the weight archive.
type ParamRef struct {
	Layer string
	Role  string
	Name  string
}

func (p ParamRef) String() string { return fmt.Sprintf("%s.%s=%s", p.Layer, p.Role, p.Name) }

// Conv is a 2D convolution.
type Conv struct {
	Base
	KernelH        int
	KernelW        int
	NumFeatureMaps int
	// StrideH is the horizontal stride (width axis), StrideV the vertical one.
	StrideH    int
	StrideV    int
	Group      int
	BorderMode string
	Weight     string
	Bias       string
}

func (*Conv) Kind() Kind { return KindConv }

func (l *Conv) Params() []ParamRef {
	out := []ParamRef{{Layer: l.Name, Role: RoleWeight, Name: l.Weight}}
	if l.Bias != "" {
		out = append(out, ParamRef{Layer: l.Name, Role: RoleBias, Name: l.Bias})
	}
	return out
}

func (l *Conv) fields() []field {
	return append(l.baseFields(),
		field{key: "kernel_h", required: true, ptr: &l.KernelH},
		field{key: "kernel_w", required: true, ptr: &l.KernelW},
		field{key: "num_feature_maps", required: true, ptr: &l.NumFeatureMaps},
		field{key: "stride_h", ptr: &l.StrideH, def: func() { l.StrideH = 1 }},
		field{key: "stride_v", ptr: &l.StrideV, def: func() { l.StrideV = 1 }},
		field{key: "group", ptr: &l.Group, def: func() { l.Group = 1 }},
		field{key: "border_mode", ptr: &l.BorderMode, def: func() { l.BorderMode = BorderValid }},
		field{key: "weight", ptr: &l.Weight, def: func() { l.Weight = defaultParam(l.Name, RoleWeight) }},
		field{key: "bias", omitEmpty: true, ptr: &l.Bias},
	)
}

func (l *Conv) finish(c *collector, line int) {
	positive(c, line, "kernel_h", l.KernelH)
	positive(c, line, "kernel_w", l.KernelW)
	positive(c, line, "num_feature_maps", l.NumFeatureMaps)
	positive(c, line, "stride_h", l.StrideH)
	positive(c, line, "stride_v", l.StrideV)
	positive(c, line, "group", l.Group)
	if l.BorderMode != BorderValid && l.BorderMode != BorderSame {
		c.schema(line, "border_mode: must be %q or %q, got %q", BorderValid, BorderSame, l.BorderMode)
	}
	if l.Group > 0 && l.NumFeatureMaps > 0 && l.NumFeatureMaps%l.Group != 0 {
		c.schema(line, "group: %d does not divide num_feature_maps %d", l.Group, l.NumFeatureMaps)
	}
	if l.Weight == "" && l.Name != "" {
		c.schema(line, "weight: parameter name is empty")
	}
}

// ReLU is a rectified linear activation.
type ReLU struct{ Base }

func (*ReLU) Kind() Kind                    { return KindReLU }
func (*ReLU) Params() []ParamRef            { return nil }
func (l *ReLU) fields() []field             { return l.baseFields() }
func (*ReLU) finish(c *collector, line int) {}

// Softmax normalizes its input into a probability distribution.
type Softmax struct{ Base }

func (*Softmax) Kind() Kind                    { return KindSoftmax }
func (*Softmax) Params() []ParamRef            { return nil }
func (l *Softmax) fields() []field             { return l.baseFields() }
func (*Softmax) finish(c *collector, line int) {}

// Pooling is a 2D max pooling over (height, width) windows.
type Pooling struct {
	Base
	PoolSize [2]int
	Stride   [2]int
}

func (*Pooling) Kind() Kind         { return KindPooling }
func (*Pooling) Params() []ParamRef { return nil }

func (l *Pooling) fields() []field {
	return append(l.baseFields(),
		field{key: "poolsize", required: true, ptr: &l.PoolSize},
		field{key: "stride", required: true, ptr: &l.Stride},
	)
}

func (l *Pooling) finish(c *collector, line int) {
	for i := 0; i < 2; i++ {
		positive(c, line, fmt.Sprintf("poolsize[%d]", i), l.PoolSize[i])
		positive(c, line, fmt.Sprintf("stride[%d]", i), l.Stride[i])
	}
}

// InnerProduct is a fully connected layer. Its input is flattened.
type InnerProduct struct {
	Base
	NUnits   int
	Bias     bool
	Weight   string
	BiasName string
}

func (*InnerProduct) Kind() Kind { return KindInnerProduct }

func (l *InnerProduct) Params() []ParamRef {
	out := []ParamRef{{Layer: l.Name, Role: RoleWeight, Name: l.Weight}}
	if l.Bias {
		out = append(out, ParamRef{Layer: l.Name, Role: RoleBias, Name: l.BiasName})
	}
	return out
}

func (l *InnerProduct) fields() []field {
	return append(l.baseFields(),
		field{key: "n_units", required: true, ptr: &l.NUnits},
		field{key: "bias", ptr: &l.Bias},
		field{key: "weight", ptr: &l.Weight, def: func() { l.Weight = defaultParam(l.Name, RoleWeight) }},
		field{key: "bias_name", omitEmpty: true, ptr: &l.BiasName, def: func() {
			if l.Bias {
				l.BiasName = defaultParam(l.Name, RoleBias)
			}
		}},
	)
}

func (l *InnerProduct) finish(c *collector, line int) {
	if !l.Bias && l.BiasName != "" {
		c.schema(line, "bias_name: set but bias is false")
	}
	if l.Weight == "" && l.Name != "" {
		c.schema(line, "weight: parameter name is empty")
	}
	positive(c, line, "n_units", l.NUnits)
}

// LRN is local response normalization across channels.
type LRN struct {
	Base
	Size  int
	Alpha float64
	Beta  float64
}

func (*LRN) Kind() Kind         { return KindLRN }
func (*LRN) Params() []ParamRef { return nil }

func (l *LRN) fields() []field {
	return append(l.baseFields(),
		field{key: "size", ptr: &l.Size, def: func() { l.Size = 5 }},
		field{key: "alpha", ptr: &l.Alpha, def: func() { l.Alpha = 1e-4 }},
		field{key: "beta", ptr: &l.Beta, def: func() { l.Beta = 0.75 }},
	)
}

func (l *LRN) finish(c *collector, line int) {
	positive(c, line, "size", l.Size)
}

// Dropout zeroes a fraction of its input during training.
type Dropout struct {
	Base
	Ratio float64
}

func (*Dropout) Kind() Kind         { return KindDropout }
func (*Dropout) Params() []ParamRef { return nil }

func (l *Dropout) fields() []field {
	return append(l.baseFields(), field{key: "ratio", ptr: &l.Ratio, def: func() { l.Ratio = 0.5 }})
}

func (l *Dropout) finish(c *collector, line int) {
	if l.Ratio < 0 || l.Ratio >= 1 {
		c.schema(line, "ratio: must be in [0, 1), got %g", l.Ratio)
	}
}

func positive(c *collector, line int, key string, v int) {
	if v <= 0 {
		c.schema(line, "%s: must be positive, got %d", key, v)
	}
}

func defaultParam(layer, role string) string {
	if layer == "" {
		return ""
	}
	return layer + "_" + role
}
