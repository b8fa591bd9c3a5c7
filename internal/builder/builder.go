// Package builder runs the full load pipeline for a model document:
// validation, graph resolution, shape inference, the archive checksum gate
// and parameter binding.
package builder

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"bernet/internal/archive"
	"bernet/internal/logging"
	"bernet/pkg/netdef"
)

// Fetcher retrieves and verifies a weight archive. *archive.Fetcher satisfies it.
type Fetcher interface {
	Fetch(ctx context.Context, url, sha256 string) (*archive.Archive, error)
}

// IndexOpener lists the tensors of a verified archive. It is only ever
// called with an archive whose digest matched.
type IndexOpener func(ctx context.Context, a *archive.Archive) (netdef.TensorIndex, error)

// ManifestOpener returns an IndexOpener that ignores the archive bytes and
// reads tensor shapes from a YAML manifest instead.
func ManifestOpener(path string) IndexOpener {
	return func(context.Context, *archive.Archive) (netdef.TensorIndex, error) {
		return netdef.LoadManifest(path)
	}
}

// Network is a loaded model with everything derived from it.
type Network struct {
	Model  *netdef.Model
	Graph  *netdef.Graph
	Shapes netdef.Shapes
	// Archive is nil when the model has no data_url or only Plan ran.
	Archive *archive.Archive
	// Bindings holds one entry per parameter reference. They carry expected
	// shapes only unless Bound is set.
	Bindings []netdef.Binding
	Bound    bool
}

// ParamCount is the total number of learnable parameters.
func (n *Network) ParamCount() int { return n.Shapes.ParamCount() }

// Builder loads model documents.
type Builder struct {
	fetcher Fetcher
	opener  IndexOpener
	logger  *slog.Logger
}

// Option configures the Builder during construction.
type Option func(*Builder) error

// New creates a Builder. Without a Fetcher, Build fails on models that name
// a data_url.
func New(opts ...Option) (*Builder, error) {
	b := &Builder{}
	for _, opt := range opts {
		if err := opt(b); err != nil {
			return nil, err
		}
	}
	if b.logger == nil {
		b.logger = logging.Discard()
	}
	return b, nil
}

// WithFetcher sets the archive fetcher.
func WithFetcher(f Fetcher) Option {
	return func(b *Builder) error {
		b.fetcher = f
		return nil
	}
}

// WithIndexOpener sets how a verified archive's tensors are listed. Without
// one, Build stops after the checksum gate and returns unbound bindings.
func WithIndexOpener(o IndexOpener) Option {
	return func(b *Builder) error {
		b.opener = o
		return nil
	}
}

// WithLogger configures structured logging.
func WithLogger(l *slog.Logger) Option {
	return func(b *Builder) error {
		b.logger = l
		return nil
	}
}

// Plan validates m, resolves its graph and infers every shape. It never
// touches the weight archive.
func (b *Builder) Plan(m *netdef.Model) (*Network, error) {
	g, err := netdef.Build(m)
	if err != nil {
		return nil, err
	}
	shapes, err := netdef.Infer(g)
	if err != nil {
		return nil, err
	}
	return &Network{
		Model:    m,
		Graph:    g,
		Shapes:   shapes,
		Bindings: netdef.Plan(g, shapes),
	}, nil
}

// Build runs Plan, then fetches and verifies the weight archive and binds
// its tensors. A digest mismatch fails with netdef.ErrIntegrity before the
// index opener runs.
func (b *Builder) Build(ctx context.Context, m *netdef.Model) (*Network, error) {
	n, err := b.Plan(m)
	if err != nil {
		return nil, err
	}
	log := b.logger.With("model", m.Name)
	log.DebugContext(ctx, "model planned", "layers", len(m.Layers), "params", n.ParamCount())

	if m.DataURL == "" {
		log.InfoContext(ctx, "model has no data_url, skipping archive")
		return n, nil
	}
	if b.fetcher == nil {
		return nil, errors.New("builder: model names a data_url but no fetcher is configured")
	}

	a, err := b.fetcher.Fetch(ctx, m.DataURL, m.DataSHA256)
	if err != nil {
		return nil, fmt.Errorf("fetch weights for %s: %w", m.Name, err)
	}
	n.Archive = a

	if b.opener == nil {
		return n, nil
	}
	idx, err := b.opener(ctx, a)
	if err != nil {
		return nil, fmt.Errorf("open archive %s: %w", a.Path, err)
	}
	bs, err := netdef.Bind(n.Graph, n.Shapes, idx)
	if err != nil {
		return nil, err
	}
	n.Bindings = bs
	n.Bound = true
	log.InfoContext(ctx, "model bound", "tensors", len(bs))
	return n, nil
}
