package netdef

import (
	"encoding/json"
	"fmt"
	"io"
	"reflect"

	"gopkg.in/yaml.v3"
)

// Encode writes m as a tagged YAML document with every default spelled out.
// Decoding the output yields a model equal to m.
func Encode(w io.Writer, m *Model) error {
	root, err := modelNode(m)
	if err != nil {
		return err
	}
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(root); err != nil {
		return fmt.Errorf("encode model: %w", err)
	}
	return enc.Close()
}

// EncodeJSON writes m in the untagged JSON form, where each layer carries
// its kind in a "type" field.
func EncodeJSON(w io.Writer, m *Model) error {
	doc := map[string]any{"name": m.Name}
	if m.Description != "" {
		doc["description"] = m.Description
	}
	if m.DataURL != "" {
		doc["data_url"] = m.DataURL
	}
	if m.DataSHA256 != "" {
		doc["data_sha256"] = m.DataSHA256
	}
	if m.BatchSize != 0 {
		doc["batch_size"] = m.BatchSize
	}
	if len(m.InputShape) > 0 {
		doc["input_shape"] = m.InputShape
	}
	layers := make([]map[string]any, 0, len(m.Layers))
	for _, l := range m.Layers {
		obj := map[string]any{"type": l.Kind().String()}
		for _, f := range l.fields() {
			v := reflect.ValueOf(f.ptr).Elem()
			if f.omitEmpty && v.IsZero() {
				continue
			}
			obj[f.key] = v.Interface()
		}
		layers = append(layers, obj)
	}
	doc["layers"] = layers

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(doc)
}

func modelNode(m *Model) (*yaml.Node, error) {
	root := &yaml.Node{Kind: yaml.MappingNode}
	add := func(key string, v any) error {
		var n yaml.Node
		if err := n.Encode(v); err != nil {
			return fmt.Errorf("encode %s: %w", key, err)
		}
		root.Content = append(root.Content, scalar(key), &n)
		return nil
	}

	header := []struct {
		key  string
		v    any
		skip bool
	}{
		{"name", m.Name, false},
		{"description", m.Description, m.Description == ""},
		{"data_url", m.DataURL, m.DataURL == ""},
		{"data_sha256", m.DataSHA256, m.DataSHA256 == ""},
		{"batch_size", m.BatchSize, m.BatchSize == 0},
		{"input_shape", flow(m.InputShape), len(m.InputShape) == 0},
	}
	for _, h := range header {
		if h.skip {
			continue
		}
		if err := add(h.key, h.v); err != nil {
			return nil, err
		}
	}

	seq := &yaml.Node{Kind: yaml.SequenceNode}
	for _, l := range m.Layers {
		n, err := layerNode(l)
		if err != nil {
			return nil, err
		}
		seq.Content = append(seq.Content, n)
	}
	root.Content = append(root.Content, scalar("layers"), seq)
	return root, nil
}

func layerNode(l Layer) (*yaml.Node, error) {
	n := &yaml.Node{Kind: yaml.MappingNode, Tag: l.Kind().Tag()}
	for _, f := range l.fields() {
		v := reflect.ValueOf(f.ptr).Elem()
		if f.omitEmpty && v.IsZero() {
			continue
		}
		var vn yaml.Node
		if err := vn.Encode(flow(v.Interface())); err != nil {
			return nil, fmt.Errorf("encode %s.%s: %w", l.Common().Name, f.key, err)
		}
		n.Content = append(n.Content, scalar(f.key), &vn)
	}
	return n, nil
}

func scalar(s string) *yaml.Node {
	return &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: s}
}

// flowSeq marks sequences for inline ([a, b]) rendering.
type flowSeq []int

func (f flowSeq) MarshalYAML() (any, error) {
	var n yaml.Node
	if err := n.Encode([]int(f)); err != nil {
		return nil, err
	}
	n.Style = yaml.FlowStyle
	return &n, nil
}

func flow(v any) any {
	switch s := v.(type) {
	case Shape:
		return flowSeq(s)
	case [2]int:
		return flowSeq(s[:])
	}
	return v
}
