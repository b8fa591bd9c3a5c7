package netdef

import (
	"errors"
	"fmt"
)

// LayerShapes are the inferred shapes around one layer.
type LayerShapes struct {
	Input  Shape
	Output Shape
	// Params maps parameter role to the tensor shape the layer expects.
	Params map[string]Shape
}

// ParamCount is the number of learnable scalars the layer holds.
func (s LayerShapes) ParamCount() int {
	n := 0
	for _, p := range s.Params {
		n += p.Size()
	}
	return n
}

// Shapes holds inferred shapes keyed by layer name.
type Shapes map[string]LayerShapes

// ParamCount totals the learnable scalars across all layers.
func (s Shapes) ParamCount() int {
	n := 0
	for _, ls := range s {
		n += ls.ParamCount()
	}
	return n
}

// Infer propagates shapes through g, starting from the model's input shape.
// Images are NCHW. A layer's declared input_shape must equal the output of
// its resolved source; disagreements are reported as ErrShape and inference
// continues with the declared shape so later layers are still checked. The
// shapes inferred so far are returned alongside any error.
func Infer(g *Graph) (Shapes, error) {
	order, err := g.TopoOrder()
	if err != nil {
		return nil, err
	}
	c := &collector{}
	out := make(Shapes, len(order))
	for _, n := range order {
		b := n.Layer.Common()
		c.push(layerPath(n.Index, b.Name))

		var in Shape
		if n.Source == "" {
			in = g.model.InputShape
		} else if src, ok := out[n.Source]; ok {
			in = src.Output
		}
		if len(b.InputShape) > 0 {
			if in != nil && !in.Equal(b.InputShape) {
				c.add(ErrShape, 0, "input_shape: declared %s, source produces %s", b.InputShape, in)
			}
			in = b.InputShape
		}
		if in == nil {
			c.add(ErrShape, 0, "input shape unknown: no model input_shape and no declared input_shape")
			c.pop()
			continue
		}

		ls, err := layerShapes(n.Layer, in.Clone())
		if err != nil {
			c.add(ErrShape, 0, "%v", err)
			c.pop()
			continue
		}
		out[b.Name] = ls
		c.pop()
	}
	if err := c.err(); err != nil {
		return out, err
	}
	return out, nil
}

func layerShapes(l Layer, in Shape) (LayerShapes, error) {
	ls := LayerShapes{Input: in}
	switch l := l.(type) {
	case *Conv:
		if len(in) != 4 {
			return ls, fmt.Errorf("conv expects a rank 4 input, got %s", in)
		}
		ch := in[1]
		if ch%l.Group != 0 {
			return ls, fmt.Errorf("group %d does not divide %d input channels", l.Group, ch)
		}
		h, err := convDim(in[2], l.KernelH, l.StrideV, l.BorderMode)
		if err != nil {
			return ls, fmt.Errorf("height: %w", err)
		}
		w, err := convDim(in[3], l.KernelW, l.StrideH, l.BorderMode)
		if err != nil {
			return ls, fmt.Errorf("width: %w", err)
		}
		ls.Output = Shape{in[0], l.NumFeatureMaps, h, w}
		ls.Params = map[string]Shape{RoleWeight: {l.NumFeatureMaps, ch / l.Group, l.KernelH, l.KernelW}}
		if l.Bias != "" {
			ls.Params[RoleBias] = Shape{l.NumFeatureMaps}
		}
	case *Pooling:
		if len(in) != 4 {
			return ls, fmt.Errorf("pooling expects a rank 4 input, got %s", in)
		}
		h, err := convDim(in[2], l.PoolSize[0], l.Stride[0], BorderValid)
		if err != nil {
			return ls, fmt.Errorf("height: %w", err)
		}
		w, err := convDim(in[3], l.PoolSize[1], l.Stride[1], BorderValid)
		if err != nil {
			return ls, fmt.Errorf("width: %w", err)
		}
		ls.Output = Shape{in[0], in[1], h, w}
	case *InnerProduct:
		if len(in) < 2 {
			return ls, fmt.Errorf("inner product expects a batch axis and at least one feature axis, got %s", in)
		}
		features := Shape(in[1:]).Size()
		ls.Output = Shape{in[0], l.NUnits}
		ls.Params = map[string]Shape{RoleWeight: {features, l.NUnits}}
		if l.Bias {
			ls.Params[RoleBias] = Shape{l.NUnits}
		}
	case *ReLU, *Softmax, *LRN, *Dropout:
		ls.Output = in
	default:
		return ls, fmt.Errorf("no shape rule for %s", l.Kind())
	}
	return ls, nil
}

var errEmptyOutput = errors.New("output size is not positive")

// convDim is the output extent of a sliding window: valid windows only, or
// padded so that out = ceil(in / stride) for "same".
func convDim(in, k, stride int, border string) (int, error) {
	var out int
	switch border {
	case BorderSame:
		out = (in + stride - 1) / stride
	default:
		if in < k {
			return 0, fmt.Errorf("%w: window %d larger than input %d", errEmptyOutput, k, in)
		}
		out = (in-k)/stride + 1
	}
	if out <= 0 {
		return 0, errEmptyOutput
	}
	return out, nil
}
