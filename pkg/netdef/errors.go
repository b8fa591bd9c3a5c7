package netdef

import (
	"errors"
	"fmt"
)

var (
	// ErrSchema is returned when a document violates the layer schema:
	// missing required field, unknown kind, unknown field or bad value.
	ErrSchema = errors.New("netdef: schema violation")

	// ErrReference is returned when layer names or source references do not
	// resolve: duplicate names, undeclared or forward sources, unbound parameters.
	ErrReference = errors.New("netdef: reference violation")

	// ErrShape is returned when a declared input shape disagrees with the
	// shape produced by the layer's source, or a layer produces an empty output.
	ErrShape = errors.New("netdef: shape violation")

	// ErrIntegrity is returned when a fetched weight archive does not match
	// the document's data_sha256.
	ErrIntegrity = errors.New("netdef: integrity violation")
)

// Error is a single classified violation. Path locates the offending element
// (e.g. "layers[3] conv2.kernel_h"); Line is the 1-based document line or 0.
type Error struct {
	Kind error
	Path string
	Line int
	Msg  string
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	loc := e.Path
	if e.Line > 0 {
		if loc == "" {
			loc = fmt.Sprintf("line %d", e.Line)
		} else {
			loc = fmt.Sprintf("%s (line %d)", loc, e.Line)
		}
	}
	switch {
	case loc == "" && e.Msg == "":
		return e.Kind.Error()
	case loc == "":
		return fmt.Sprintf("%s: %s", e.Kind.Error(), e.Msg)
	default:
		return fmt.Sprintf("%s: %s: %s", e.Kind.Error(), loc, e.Msg)
	}
}

func (e *Error) Unwrap() error { return e.Kind }

// Violations flattens err into its classified violations. Errors that are not
// *Error values are skipped.
func Violations(err error) []*Error {
	var out []*Error
	var walk func(error)
	walk = func(err error) {
		switch e := err.(type) {
		case nil:
		case *Error:
			out = append(out, e)
		case interface{ Unwrap() []error }:
			for _, inner := range e.Unwrap() {
				walk(inner)
			}
		default:
			walk(errors.Unwrap(err))
		}
	}
	walk(err)
	return out
}

// collector accumulates violations with a path stack, so that nested decoding
// can report where a problem sits without threading paths through every call.
type collector struct {
	stack []string
	errs  []error
}

func (c *collector) push(seg string) { c.stack = append(c.stack, seg) }
func (c *collector) pop()            { c.stack = c.stack[:len(c.stack)-1] }

func (c *collector) path() string {
	out := ""
	for i, s := range c.stack {
		if i > 0 && s != "" && s[0] != '[' {
			out += "."
		}
		out += s
	}
	return out
}

func (c *collector) add(kind error, line int, format string, args ...any) {
	c.errs = append(c.errs, &Error{Kind: kind, Path: c.path(), Line: line, Msg: fmt.Sprintf(format, args...)})
}

func (c *collector) schema(line int, format string, args ...any) {
	c.add(ErrSchema, line, format, args...)
}

func (c *collector) reference(line int, format string, args ...any) {
	c.add(ErrReference, line, format, args...)
}

func (c *collector) err() error {
	if len(c.errs) == 0 {
		return nil
	}
	return errors.Join(c.errs...)
}
