// Package zoo ships reference model documents inside the binary.
package zoo

import (
	"embed"
	"fmt"
	"sort"
	"strings"

	"bernet/pkg/netdef"
)

//go:embed *.yaml
var modelFS embed.FS

// Prefix marks a zoo reference on the command line, e.g. "zoo:alexnet".
const Prefix = "zoo:"

// Raw returns the document bytes of an embedded model.
func Raw(name string) ([]byte, error) {
	data, err := modelFS.ReadFile(name + ".yaml")
	if err != nil {
		return nil, fmt.Errorf("model %q not found (available: %s): %w",
			name, strings.Join(List(), ", "), err)
	}
	return data, nil
}

// Load decodes an embedded model by name.
func Load(name string) (*netdef.Model, error) {
	data, err := Raw(name)
	if err != nil {
		return nil, err
	}
	m, err := netdef.Decode(data)
	if err != nil {
		return nil, fmt.Errorf("parse model %q: %w", name, err)
	}
	return m, nil
}

// List returns the names of all embedded models, sorted.
func List() []string {
	entries, _ := modelFS.ReadDir(".")
	var names []string
	for _, e := range entries {
		if strings.HasSuffix(e.Name(), ".yaml") {
			names = append(names, strings.TrimSuffix(e.Name(), ".yaml"))
		}
	}
	sort.Strings(names)
	return names
}

// Resolve reads a document given either a file path or a "zoo:<name>"
// reference.
func Resolve(ref string, readFile func(string) ([]byte, error)) ([]byte, error) {
	if name, ok := strings.CutPrefix(ref, Prefix); ok {
		return Raw(name)
	}
	data, err := readFile(ref)
	if err != nil {
		return nil, fmt.Errorf("read model: %w", err)
	}
	return data, nil
}
