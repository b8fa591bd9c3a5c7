package netdef

import (
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestBuild_ResolvesImplicitSources(t *testing.T) {
	g := mustBuild(t, `name: branch
input_shape: [1, 8]
layers:
  - !InnerProduct {name: fc1, n_units: 4}
  - !ReLU {name: relu1}
  - !InnerProduct {name: head_a, source: relu1, n_units: 2}
  - !InnerProduct {name: head_b, source: relu1, n_units: 3}
  - !Softmax {name: prob_b}
`)
	got := map[string]string{}
	for _, n := range g.Nodes() {
		got[n.Name()] = n.Source
	}
	want := map[string]string{
		"fc1":    "",
		"relu1":  "fc1",
		"head_a": "relu1",
		"head_b": "relu1",
		"prob_b": "head_b",
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("sources (-want +got):\n%s", diff)
	}

	if diff := cmp.Diff([]string{"head_a", "head_b"}, names(g.Consumers("relu1"))); diff != "" {
		t.Errorf("consumers (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{"head_a", "prob_b"}, names(g.Outputs())); diff != "" {
		t.Errorf("outputs (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{"fc1"}, names(g.Inputs())); diff != "" {
		t.Errorf("inputs (-want +got):\n%s", diff)
	}

	chain, err := g.Chain("prob_b")
	if err != nil {
		t.Fatalf("Chain: %v", err)
	}
	if diff := cmp.Diff([]string{"fc1", "relu1", "head_b", "prob_b"}, names(chain)); diff != "" {
		t.Errorf("chain (-want +got):\n%s", diff)
	}

	order, err := g.TopoOrder()
	if err != nil {
		t.Fatalf("TopoOrder: %v", err)
	}
	if diff := cmp.Diff([]string{"fc1", "relu1", "head_a", "head_b", "prob_b"}, names(order)); diff != "" {
		t.Errorf("topo order (-want +got):\n%s", diff)
	}
}

func TestBuild_RejectsInvalidModel(t *testing.T) {
	m := &Model{
		Name: "dup",
		Layers: []Layer{
			&ReLU{Base: Base{Name: "a"}},
			&ReLU{Base: Base{Name: "a"}},
		},
	}
	if _, err := Build(m); !errors.Is(err, ErrReference) {
		t.Fatalf("want ErrReference, got %v", err)
	}
}

func TestGraph_TopoOrderDetectsCycle(t *testing.T) {
	a := &Node{Index: 0, Layer: &ReLU{Base: Base{Name: "a"}}, Source: "b"}
	b := &Node{Index: 1, Layer: &ReLU{Base: Base{Name: "b"}}, Source: "a"}
	g := &Graph{
		nodes:     []*Node{a, b},
		index:     map[string]*Node{"a": a, "b": b},
		consumers: map[string][]*Node{"a": {b}, "b": {a}},
	}
	_, err := g.TopoOrder()
	if !errors.Is(err, ErrReference) {
		t.Fatalf("want ErrReference, got %v", err)
	}
	if got := err.Error(); got != "netdef: reference violation: source cycle: a -> b -> a" {
		t.Errorf("error = %q", got)
	}
}

func TestGraph_ChainUnknown(t *testing.T) {
	g := mustBuild(t, "name: x\nlayers:\n  - !ReLU {name: r}\n")
	if _, err := g.Chain("nope"); !errors.Is(err, ErrReference) {
		t.Errorf("want ErrReference, got %v", err)
	}
}
