package store

import "errors"

// DefaultDBName is the catalog file name inside the bernet home directory.
const DefaultDBName = "bernet.db"

// ErrNotFound is returned by mutations on a record that does not exist.
// Lookups return (nil, nil) instead.
var ErrNotFound = errors.New("not found")

// Model is one catalogued model document. Source holds the document exactly
// as imported; the other fields are derived from it at import time.
type Model struct {
	ID          int64
	Name        string
	Description string
	DataURL     string
	DataSHA256  string
	Layers      int
	Params      int64
	Source      []byte
	CreatedAt   string
	UpdatedAt   string
}

// Fetch is one verified weight-archive download or cache hit.
type Fetch struct {
	ID         int64
	URL        string
	SHA256     string
	Path       string
	Size       int64
	VerifiedAt string
}

// Store is the persistence facade for the model catalog and the fetch log.
// Implementation is SQLite or in-memory.
type Store interface {
	// SaveModel inserts m or replaces the model with the same name.
	SaveModel(m *Model) error
	GetModel(name string) (*Model, error)
	// ListModels returns all models ordered by name.
	ListModels() ([]*Model, error)
	DeleteModel(name string) error

	RecordFetch(f *Fetch) (int64, error)
	// LastFetch returns the most recent fetch of the archive with the given digest.
	LastFetch(sha256 string) (*Fetch, error)

	Close() error
}
