package netdef

import (
	"fmt"
	"os"
	"sort"

	"gopkg.in/yaml.v3"
)

// TensorIndex describes the named tensors a weight archive provides. Reading
// the tensor data itself is the consuming framework's business.
type TensorIndex interface {
	Lookup(name string) (Shape, bool)
}

// MapIndex is an in-memory TensorIndex.
type MapIndex map[string]Shape

func (m MapIndex) Lookup(name string) (Shape, bool) {
	s, ok := m[name]
	return s, ok
}

// Names returns the tensor names, sorted.
func (m MapIndex) Names() []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

type manifest struct {
	Tensors map[string]Shape `yaml:"tensors"`
}

// LoadManifest reads a tensor manifest of the form
//
//	tensors:
//	  conv1_weight: [96, 3, 11, 11]
func LoadManifest(path string) (MapIndex, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read manifest: %w", err)
	}
	var mf manifest
	if err := yaml.Unmarshal(data, &mf); err != nil {
		return nil, fmt.Errorf("parse manifest: %w", err)
	}
	if mf.Tensors == nil {
		return MapIndex{}, nil
	}
	return MapIndex(mf.Tensors), nil
}

// Binding is one parameter reference matched to an archive tensor.
type Binding struct {
	ParamRef
	Shape Shape
}

// Plan lists every parameter reference with the shape its layer expects,
// without consulting an archive.
func Plan(g *Graph, shapes Shapes) []Binding {
	var out []Binding
	for _, n := range g.nodes {
		ls := shapes[n.Name()]
		for _, p := range n.Layer.Params() {
			out = append(out, Binding{ParamRef: p, Shape: ls.Params[p.Role]})
		}
	}
	return out
}

// Bind matches every parameter reference in g against idx. A missing tensor
// is an ErrReference violation, a tensor whose shape differs from the
// inferred parameter shape is an ErrShape violation.
func Bind(g *Graph, shapes Shapes, idx TensorIndex) ([]Binding, error) {
	c := &collector{}
	plan := Plan(g, shapes)
	out := make([]Binding, 0, len(plan))
	for _, b := range plan {
		n := g.index[b.Layer]
		c.push(layerPath(n.Index, b.Layer))
		got, ok := idx.Lookup(b.Name)
		switch {
		case !ok:
			c.reference(0, "%s: tensor %q not found in archive", b.Role, b.Name)
		case b.Shape != nil && !got.Equal(b.Shape):
			c.add(ErrShape, 0, "%s: tensor %q has shape %s, layer expects %s", b.Role, b.Name, got, b.Shape)
		default:
			out = append(out, Binding{ParamRef: b.ParamRef, Shape: got})
		}
		c.pop()
	}
	if err := c.err(); err != nil {
		return nil, err
	}
	return out, nil
}
