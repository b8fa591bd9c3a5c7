package netdef

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// LoadFile reads and decodes the model document at path.
func LoadFile(path string) (*Model, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read model: %w", err)
	}
	return Decode(data)
}

// Load decodes a model document from r.
func Load(r io.Reader) (*Model, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read model: %w", err)
	}
	return Decode(data)
}

// Decode parses a YAML (or JSON) model document, applies defaults and
// enforces the schema and reference rules. All violations found are returned
// together; each is an *Error wrapping ErrSchema or ErrReference.
func Decode(data []byte) (*Model, error) {
	var doc yaml.Node
	dec := yaml.NewDecoder(bytes.NewReader(data))
	if err := dec.Decode(&doc); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, &Error{Kind: ErrSchema, Msg: "empty document"}
		}
		return nil, &Error{Kind: ErrSchema, Msg: yamlMessage(err)}
	}
	var trailing yaml.Node
	if err := dec.Decode(&trailing); !errors.Is(err, io.EOF) {
		return nil, &Error{Kind: ErrSchema, Msg: "trailing data after model document"}
	}

	root := deref(&doc)
	if root.Kind == yaml.DocumentNode && len(root.Content) > 0 {
		root = deref(root.Content[0])
	}
	if root.Kind != yaml.MappingNode {
		return nil, &Error{Kind: ErrSchema, Line: root.Line, Msg: "model document must be a mapping"}
	}

	c := &collector{}
	m := &Model{}
	lines := map[string]int{"name": root.Line, "layers": root.Line}
	header := map[string]any{
		"name":        &m.Name,
		"description": &m.Description,
		"data_url":    &m.DataURL,
		"data_sha256": &m.DataSHA256,
		"batch_size":  &m.BatchSize,
		"input_shape": &m.InputShape,
	}
	kvs, err := pairs(root)
	if err != nil {
		c.schema(root.Line, "%v", err)
	}
	var layerPos []position
	seen := make(map[string]bool, len(kvs))
	for _, kv := range kvs {
		k, v := kv.key, kv.value
		if seen[k.Value] {
			c.schema(k.Line, "%s: duplicate field", k.Value)
			continue
		}
		seen[k.Value] = true
		lines[k.Value] = k.Line
		if k.Value == "layers" {
			layerPos = decodeLayers(c, m, deref(v))
			continue
		}
		ptr, ok := header[k.Value]
		if !ok {
			c.schema(k.Line, "unknown field %q", k.Value)
			continue
		}
		if err := deref(v).Decode(ptr); err != nil {
			c.schema(v.Line, "%s: %s", k.Value, yamlMessage(err))
		}
	}

	validateHeader(c, m, lines)
	validateReferences(c, m, layerPos)
	if err := c.err(); err != nil {
		return nil, err
	}
	return m, nil
}

// decodeLayers appends the decodable layers of seq to m and returns the
// document position of each appended layer.
func decodeLayers(c *collector, m *Model, seq *yaml.Node) []position {
	if seq.Kind != yaml.SequenceNode {
		c.schema(seq.Line, "layers: must be a sequence")
		return nil
	}
	pos := make([]position, 0, len(seq.Content))
	for i, item := range seq.Content {
		n := deref(item)
		c.push(layerPath(i, scalarValue(n, "name")))
		if l := decodeLayer(c, n); l != nil {
			m.Layers = append(m.Layers, l)
			pos = append(pos, position{index: i, line: n.Line})
		}
		c.pop()
	}
	return pos
}

// decodeLayer returns nil when the layer's kind cannot be determined; every
// other problem is recorded and the partially decoded layer is returned so
// reference checks still see its name.
func decodeLayer(c *collector, n *yaml.Node) Layer {
	if n.Kind != yaml.MappingNode {
		c.schema(n.Line, "layer must be a mapping")
		return nil
	}
	kind, ok := layerKind(c, n)
	if !ok {
		return nil
	}
	l := newLayer(kind)

	fields := l.fields()
	index := make(map[string]int, len(fields))
	for i, f := range fields {
		index[f.key] = i
	}
	kvs, err := pairs(n)
	if err != nil {
		c.schema(n.Line, "%v", err)
	}
	seen := make(map[string]bool, len(fields))
	complete := true
	for _, kv := range kvs {
		k, v := kv.key, kv.value
		if k.Value == "type" {
			continue
		}
		fi, ok := index[k.Value]
		if !ok {
			c.schema(k.Line, "unknown field %q for %s", k.Value, kind)
			continue
		}
		if seen[k.Value] {
			c.schema(k.Line, "%s: duplicate field", k.Value)
			continue
		}
		seen[k.Value] = true
		if err := deref(v).Decode(fields[fi].ptr); err != nil {
			c.schema(v.Line, "%s: %s", k.Value, yamlMessage(err))
			complete = false
		}
	}
	for _, f := range fields {
		if seen[f.key] {
			continue
		}
		if f.required {
			c.schema(n.Line, "%s: required field missing", f.key)
			complete = false
			continue
		}
		if f.def != nil {
			f.def()
		}
	}
	validateShape(c, n.Line, "input_shape", l.Common().InputShape)
	// Value checks on a layer with missing or undecodable fields would only
	// repeat the same problem as "must be positive".
	if complete {
		l.finish(c, n.Line)
	}
	return l
}

// layerKind reads the kind from the node's tag, or from a "type" key when
// the mapping is untagged (the JSON form).
func layerKind(c *collector, n *yaml.Node) (Kind, bool) {
	typeName := scalarValue(n, "type")
	tagged := n.Tag != "" && !strings.HasPrefix(n.Tag, "!!")
	switch {
	case tagged:
		k, ok := ParseKind(n.Tag)
		if !ok {
			c.schema(n.Line, "unknown layer kind %q", n.Tag)
			return 0, false
		}
		if typeName != "" && typeName != k.String() {
			c.schema(n.Line, "type: %q contradicts tag %s", typeName, n.Tag)
		}
		return k, true
	case typeName != "":
		k, ok := ParseKind(typeName)
		if !ok {
			c.schema(n.Line, "unknown layer kind %q", typeName)
			return 0, false
		}
		return k, true
	default:
		c.schema(n.Line, "layer has neither a kind tag nor a type field")
		return 0, false
	}
}

func scalarValue(n *yaml.Node, key string) string {
	if n.Kind != yaml.MappingNode {
		return ""
	}
	kvs, _ := pairs(n)
	for _, kv := range kvs {
		if kv.key.Value == key {
			if v := deref(kv.value); v.Kind == yaml.ScalarNode {
				return v.Value
			}
		}
	}
	return ""
}

const mergeTag = "!!merge"

type pair struct{ key, value *yaml.Node }

// pairs returns the entries of mapping n with merge keys (<<: *anchor)
// expanded. Keys written in n take precedence over merged ones, and an
// earlier mapping in a merge sequence over a later one. Duplicate keys
// written in n are all returned.
func pairs(n *yaml.Node) ([]pair, error) {
	var own, merged []pair
	var bad error
	for i := 0; i+1 < len(n.Content); i += 2 {
		k, v := n.Content[i], n.Content[i+1]
		if k.Kind != yaml.ScalarNode || k.ShortTag() != mergeTag {
			own = append(own, pair{k, v})
			continue
		}
		v = deref(v)
		srcs := []*yaml.Node{v}
		if v.Kind == yaml.SequenceNode {
			srcs = v.Content
		}
		for _, src := range srcs {
			src = deref(src)
			if src.Kind != yaml.MappingNode {
				bad = fmt.Errorf("<<: merge value at line %d must be a mapping or a sequence of mappings", src.Line)
				continue
			}
			kvs, err := pairs(src)
			if err != nil && bad == nil {
				bad = err
			}
			merged = append(merged, kvs...)
		}
	}
	have := make(map[string]bool, len(own)+len(merged))
	for _, kv := range own {
		have[kv.key.Value] = true
	}
	for _, kv := range merged {
		if !have[kv.key.Value] {
			have[kv.key.Value] = true
			own = append(own, kv)
		}
	}
	return own, bad
}

func deref(n *yaml.Node) *yaml.Node {
	for n.Kind == yaml.AliasNode && n.Alias != nil {
		n = n.Alias
	}
	return n
}

// yamlMessage strips the "yaml: unmarshal errors:" preamble.
func yamlMessage(err error) string {
	var te *yaml.TypeError
	if errors.As(err, &te) {
		msgs := make([]string, len(te.Errors))
		for i, e := range te.Errors {
			msgs[i] = strings.TrimSpace(e)
		}
		return strings.Join(msgs, "; ")
	}
	return strings.TrimPrefix(err.Error(), "yaml: ")
}
