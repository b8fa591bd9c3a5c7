// Package netdef models network description documents: an ordered list of
// tagged layer declarations plus the metadata needed to fetch and verify the
// weights they bind.
//
// Documents are YAML. Each layer is a tagged mapping (!Conv, !ReLU, ...);
// a layer's source is the name of the layer feeding it, or the previous
// declaration when omitted. Anchors, aliases and merge keys (<<) are
// resolved before fields are read.
package netdef

import (
	"fmt"
	"reflect"
	"regexp"
	"strconv"
	"strings"
)

// Model is a parsed network description.
type Model struct {
	Name        string
	Description string
	DataURL     string
	DataSHA256  string
	BatchSize   int
	InputShape  Shape
	Layers      []Layer
}

// Layer returns the layer declared under name.
func (m *Model) Layer(name string) (Layer, bool) {
	i := m.Index(name)
	if i < 0 {
		return nil, false
	}
	return m.Layers[i], true
}

// Index returns the declaration index of name, or -1.
func (m *Model) Index(name string) int {
	for i, l := range m.Layers {
		if l.Common().Name == name {
			return i
		}
	}
	return -1
}

// Params lists every parameter reference in declaration order.
func (m *Model) Params() []ParamRef {
	var out []ParamRef
	for _, l := range m.Layers {
		out = append(out, l.Params()...)
	}
	return out
}

// Normalize fills zero-valued optional fields with their defaults. Decoded
// models are already normalized; this is for models built in code.
func (m *Model) Normalize() {
	for _, l := range m.Layers {
		for _, f := range l.fields() {
			if f.def != nil && reflect.ValueOf(f.ptr).Elem().IsZero() {
				f.def()
			}
		}
	}
}

// Shape is a tensor shape, outermost axis first (NCHW for images).
type Shape []int

func (s Shape) String() string {
	parts := make([]string, len(s))
	for i, d := range s {
		parts[i] = strconv.Itoa(d)
	}
	return "[" + strings.Join(parts, ", ") + "]"
}

// Equal reports whether s and o have the same rank and dimensions.
func (s Shape) Equal(o Shape) bool {
	if len(s) != len(o) {
		return false
	}
	for i := range s {
		if s[i] != o[i] {
			return false
		}
	}
	return true
}

// Size is the number of elements, or 0 for an empty shape.
func (s Shape) Size() int {
	if len(s) == 0 {
		return 0
	}
	n := 1
	for _, d := range s {
		n *= d
	}
	return n
}

// Clone returns a copy that does not alias s.
func (s Shape) Clone() Shape {
	if s == nil {
		return nil
	}
	return append(Shape(nil), s...)
}

// field describes one mapping key of a layer. def, when set, assigns the
// default used if the key is absent.
type field struct {
	key       string
	required  bool
	omitEmpty bool
	ptr       any
	def       func()
}

var sha256Hex = regexp.MustCompile(`^[0-9a-f]{64}$`)

// Validate checks a model built in code against the same rules the decoder
// enforces. It does not apply defaults; call Normalize first if needed.
func Validate(m *Model) error {
	c := &collector{}
	validateHeader(c, m, nil)
	for i, l := range m.Layers {
		c.push(layerPath(i, l.Common().Name))
		if l.Common().Name == "" {
			c.schema(0, "name: required field missing")
		}
		validateShape(c, 0, "input_shape", l.Common().InputShape)
		l.finish(c, 0)
		c.pop()
	}
	validateReferences(c, m, nil)
	return c.err()
}

func validateHeader(c *collector, m *Model, lines map[string]int) {
	if m.Name == "" {
		c.schema(lines["name"], "name: required field missing")
	}
	if m.DataSHA256 != "" && !sha256Hex.MatchString(strings.ToLower(m.DataSHA256)) {
		c.schema(lines["data_sha256"], "data_sha256: want 64 hex characters, got %q", m.DataSHA256)
	}
	if m.BatchSize < 0 {
		c.schema(lines["batch_size"], "batch_size: must not be negative, got %d", m.BatchSize)
	}
	validateShape(c, lines["input_shape"], "input_shape", m.InputShape)
	if m.BatchSize > 0 && len(m.InputShape) > 0 && m.InputShape[0] != m.BatchSize {
		c.schema(lines["input_shape"], "input_shape: batch axis %d differs from batch_size %d", m.InputShape[0], m.BatchSize)
	}
	if len(m.Layers) == 0 {
		c.schema(lines["layers"], "layers: at least one layer is required")
	}
}

func validateShape(c *collector, line int, key string, s Shape) {
	for i, d := range s {
		if d <= 0 {
			c.schema(line, "%s[%d]: must be positive, got %d", key, i, d)
		}
	}
}

// position locates a decoded layer in its document: the index in the
// layers sequence, which differs from the index in Model.Layers once an
// undecodable layer is skipped, and the line.
type position struct {
	index int
	line  int
}

// validateReferences enforces unique names and backward-only sources.
// pos holds the document position of each layer, when known.
func validateReferences(c *collector, m *Model, pos []position) {
	posOf := func(i int) position {
		if i < len(pos) {
			return pos[i]
		}
		return position{index: i}
	}
	declared := make(map[string]int, len(m.Layers))
	for i, l := range m.Layers {
		b := l.Common()
		p := posOf(i)
		c.push(layerPath(p.index, b.Name))
		if b.Source != "" {
			switch j, ok := declared[b.Source]; {
			case b.Source == b.Name:
				c.reference(p.line, "source: layer references itself")
			case ok && j < i:
			case m.Index(b.Source) > i:
				c.reference(p.line, "source: %q is declared after this layer", b.Source)
			default:
				c.reference(p.line, "source: %q is not a declared layer", b.Source)
			}
		}
		if b.Name != "" {
			if j, dup := declared[b.Name]; dup {
				c.reference(p.line, "name: duplicate layer name %q (first declared at layers[%d])", b.Name, posOf(j).index)
			} else {
				declared[b.Name] = i
			}
		}
		c.pop()
	}
}

func layerPath(i int, name string) string {
	if name == "" {
		return fmt.Sprintf("layers[%d]", i)
	}
	return fmt.Sprintf("layers[%d] %s", i, name)
}
