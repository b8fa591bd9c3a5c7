package main

import (
	"errors"
	"fmt"
	"io"
	"os"

	"bernet/internal/archive"
	"bernet/internal/builder"
	"bernet/internal/logging"
	"bernet/internal/store"
	"bernet/internal/zoo"
	"bernet/pkg/netdef"
)

// loadModel resolves a file path or zoo:NAME reference and decodes it. The
// raw document is returned alongside for callers that store it.
func loadModel(ref string) (*netdef.Model, []byte, error) {
	data, err := zoo.Resolve(ref, os.ReadFile)
	if err != nil {
		return nil, nil, err
	}
	m, err := netdef.Decode(data)
	if err != nil {
		return nil, nil, err
	}
	return m, data, nil
}

// planModel loads ref and runs shape inference on it.
func planModel(ref string) (*builder.Network, []byte, error) {
	m, data, err := loadModel(ref)
	if err != nil {
		return nil, nil, err
	}
	b, err := builder.New(builder.WithLogger(logging.New("builder")))
	if err != nil {
		return nil, nil, err
	}
	n, err := b.Plan(m)
	if err != nil {
		return nil, nil, err
	}
	return n, data, nil
}

func openStore() (*store.SqlStore, error) {
	s, err := store.Open(cfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf("open catalog %s: %w", cfg.DBPath, err)
	}
	return s, nil
}

func newFetcher(rec archive.Recorder) (*archive.Fetcher, error) {
	opts := []archive.Option{
		archive.WithCacheDir(cfg.CacheDir),
		archive.WithTimeout(cfg.Timeout),
		archive.WithLogger(logging.New("archive")),
	}
	if rec != nil {
		opts = append(opts, archive.WithRecorder(rec))
	}
	return archive.New(opts...)
}

// printViolations writes one line per violation in err, or err itself when
// it carries none. It returns the number of lines written.
func printViolations(w io.Writer, indent string, err error) int {
	vs := netdef.Violations(err)
	if len(vs) == 0 {
		fmt.Fprintf(w, "%s%v\n", indent, err)
		return 1
	}
	for _, v := range vs {
		fmt.Fprintf(w, "%s%v\n", indent, v)
	}
	return len(vs)
}

// reportFailure prints the violations of err and returns a short error for main.
func reportFailure(w io.Writer, what string, err error) error {
	n := printViolations(w, "", err)
	if n > 1 {
		return fmt.Errorf("%s: %d violations", what, n)
	}
	var ne *netdef.Error
	if errors.As(err, &ne) {
		return fmt.Errorf("%s: %w", what, ne.Kind)
	}
	return fmt.Errorf("%s failed", what)
}
