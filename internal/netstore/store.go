// Package netstore persists network documents. Two backends exist: a
// directory of JSON files and a Postgres table, selected by
// configuration. Documents are validated on write; the store never
// holds simulation state.
package netstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/vrui-vr/networkviewer/internal/graph"
)

var (
	// ErrNotFound is returned when no document exists under a name.
	ErrNotFound = errors.New("network not found")
	// ErrInvalidName is returned for names the store refuses to touch.
	ErrInvalidName = errors.New("invalid network name")
	// ErrInvalidDocument wraps parse failures on write.
	ErrInvalidDocument = errors.New("invalid network document")
)

// Info describes one stored network document. Node and link counts
// are only tracked by the database backend.
type Info struct {
	Name      string    `json:"name"`
	Size      int64     `json:"size"`
	Nodes     int       `json:"nodes,omitempty"`
	Links     int       `json:"links,omitempty"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Store is a named collection of network documents.
type Store interface {
	// List returns all stored documents sorted by name.
	List(ctx context.Context) ([]Info, error)
	// Get returns the document stored under a name.
	Get(ctx context.Context, name string) ([]byte, error)
	// Put stores a document under a name, replacing any previous one.
	// The document must parse as a network.
	Put(ctx context.Context, name string, document []byte) error
	// Delete removes the document stored under a name.
	Delete(ctx context.Context, name string) error
}

const maxNameLen = 128

// ValidateName rejects names that are empty, oversized, dot-prefixed
// or contain anything beyond letters, digits, dot, dash and
// underscore. File names and SQL identifiers both stay trivially safe
// under this rule; path traversal is impossible.
func ValidateName(name string) error {
	if name == "" || len(name) > maxNameLen {
		return fmt.Errorf("%w: %q", ErrInvalidName, name)
	}
	if name[0] == '.' {
		return fmt.Errorf("%w: %q", ErrInvalidName, name)
	}
	for i := 0; i < len(name); i++ {
		c := name[i]
		switch {
		case c >= 'a' && c <= 'z':
		case c >= 'A' && c <= 'Z':
		case c >= '0' && c <= '9':
		case c == '.' || c == '-' || c == '_':
		default:
			return fmt.Errorf("%w: %q", ErrInvalidName, name)
		}
	}
	return nil
}

// describe parses a document and returns its node and link counts, so
// a malformed document never reaches storage.
func describe(document []byte) (nodes, links int, err error) {
	network, err := graph.Parse(document)
	if err != nil {
		return 0, 0, fmt.Errorf("%w: %v", ErrInvalidDocument, err)
	}
	return network.NumNodes(), len(network.Links()), nil
}
