package netdef

import (
	"container/heap"
	"fmt"
	"strings"
)

// Node is a layer with its source resolved.
type Node struct {
	Index int
	Layer Layer
	// Source is the resolved producer name; empty for a node fed by the
	// model input.
	Source string
}

func (n *Node) Name() string { return n.Layer.Common().Name }

// Graph is the resolved source graph of a model. Edges run from a node's
// source to the node.
type Graph struct {
	model     *Model
	nodes     []*Node
	index     map[string]*Node
	consumers map[string][]*Node
}

// Build validates m and resolves every layer's source. An omitted source
// means the previous declaration; the first layer consumes the model input.
func Build(m *Model) (*Graph, error) {
	if err := Validate(m); err != nil {
		return nil, err
	}
	g := &Graph{
		model:     m,
		nodes:     make([]*Node, len(m.Layers)),
		index:     make(map[string]*Node, len(m.Layers)),
		consumers: make(map[string][]*Node),
	}
	for i, l := range m.Layers {
		n := &Node{Index: i, Layer: l, Source: l.Common().Source}
		if n.Source == "" && i > 0 {
			n.Source = m.Layers[i-1].Common().Name
		}
		g.nodes[i] = n
		g.index[n.Name()] = n
		if n.Source != "" {
			g.consumers[n.Source] = append(g.consumers[n.Source], n)
		}
	}
	if _, err := g.TopoOrder(); err != nil {
		return nil, err
	}
	return g, nil
}

// Model returns the model the graph was built from.
func (g *Graph) Model() *Model { return g.model }

// Nodes returns the nodes in declaration order.
func (g *Graph) Nodes() []*Node { return g.nodes }

// Node returns the node named name.
func (g *Graph) Node(name string) (*Node, bool) {
	n, ok := g.index[name]
	return n, ok
}

// Consumers returns the nodes whose resolved source is name.
func (g *Graph) Consumers(name string) []*Node { return g.consumers[name] }

// Inputs returns the nodes fed directly by the model input.
func (g *Graph) Inputs() []*Node {
	var out []*Node
	for _, n := range g.nodes {
		if n.Source == "" {
			out = append(out, n)
		}
	}
	return out
}

// Outputs returns the nodes no other node consumes, in declaration order.
func (g *Graph) Outputs() []*Node {
	var out []*Node
	for _, n := range g.nodes {
		if len(g.consumers[n.Name()]) == 0 {
			out = append(out, n)
		}
	}
	return out
}

// Chain returns the resolved source chain ending at name, starting from the
// node fed by the model input.
func (g *Graph) Chain(name string) ([]*Node, error) {
	n, ok := g.index[name]
	if !ok {
		return nil, &Error{Kind: ErrReference, Msg: fmt.Sprintf("layer %q not found", name)}
	}
	var rev []*Node
	seen := make(map[string]bool)
	for {
		if seen[n.Name()] {
			return nil, cycleError(append(names(rev), n.Name()))
		}
		seen[n.Name()] = true
		rev = append(rev, n)
		if n.Source == "" {
			break
		}
		next, ok := g.index[n.Source]
		if !ok {
			return nil, &Error{Kind: ErrReference, Path: layerPath(n.Index, n.Name()), Msg: fmt.Sprintf("source %q not found", n.Source)}
		}
		n = next
	}
	out := make([]*Node, len(rev))
	for i := range rev {
		out[i] = rev[len(rev)-1-i]
	}
	return out, nil
}

type intMinHeap []int

func (h intMinHeap) Len() int           { return len(h) }
func (h intMinHeap) Less(i, j int) bool { return h[i] < h[j] }
func (h intMinHeap) Swap(i, j int)      { h[i], h[j] = h[j], h[i] }
func (h *intMinHeap) Push(x any)        { *h = append(*h, x.(int)) }
func (h *intMinHeap) Pop() any {
	old := *h
	n := len(old)
	x := old[n-1]
	*h = old[:n-1]
	return x
}

// TopoOrder returns the nodes in a deterministic topological order (Kahn's
// algorithm, ties broken by declaration index). For documents that passed
// validation this is declaration order.
func (g *Graph) TopoOrder() ([]*Node, error) {
	indeg := make([]int, len(g.nodes))
	for _, n := range g.nodes {
		if n.Source != "" {
			indeg[n.Index] = 1
		}
	}
	ready := &intMinHeap{}
	for i, d := range indeg {
		if d == 0 {
			heap.Push(ready, i)
		}
	}
	out := make([]*Node, 0, len(g.nodes))
	for ready.Len() > 0 {
		n := g.nodes[heap.Pop(ready).(int)]
		out = append(out, n)
		for _, m := range g.consumers[n.Name()] {
			indeg[m.Index]--
			if indeg[m.Index] == 0 {
				heap.Push(ready, m.Index)
			}
		}
	}
	if len(out) != len(g.nodes) {
		for _, n := range g.nodes {
			if indeg[n.Index] > 0 {
				chain, err := g.Chain(n.Name())
				if err != nil {
					return nil, err
				}
				return nil, cycleError(names(chain))
			}
		}
	}
	return out, nil
}

func names(nodes []*Node) []string {
	out := make([]string, len(nodes))
	for i, n := range nodes {
		out[i] = n.Name()
	}
	return out
}

func cycleError(path []string) error {
	return &Error{Kind: ErrReference, Msg: "source cycle: " + strings.Join(path, " -> ")}
}
