// Package docstore is a small keyed document store: JSON documents grouped in
// collections, addressed as collection/id, with get and set-with-merge.
package docstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

var (
	// ErrInvalidRef is returned for references with an empty or malformed segment.
	ErrInvalidRef = errors.New("invalid document reference")
	// ErrNoData is returned when decoding a snapshot of a missing document.
	ErrNoData = errors.New("document does not exist")
	// ErrNotObject is returned when a value does not encode to a JSON object.
	ErrNotObject = errors.New("document data must be an object")
)

// Ref addresses a single document.
type Ref struct {
	Collection string
	ID         string
}

// Doc returns a reference to collection/id.
func Doc(collection, id string) Ref {
	return Ref{Collection: collection, ID: id}
}

// Path returns the slash separated document path.
func (r Ref) Path() string {
	return r.Collection + "/" + r.ID
}

// Validate rejects empty segments and segments containing a slash.
func (r Ref) Validate() error {
	if r.Collection == "" || r.ID == "" {
		return fmt.Errorf("%w: %q", ErrInvalidRef, r.Path())
	}
	if strings.Contains(r.Collection, "/") || strings.Contains(r.ID, "/") {
		return fmt.Errorf("%w: %q", ErrInvalidRef, r.Path())
	}
	return nil
}

// Snapshot is the result of reading a document. A missing document is a
// snapshot whose Exists reports false, not an error.
type Snapshot struct {
	Ref       Ref
	UpdatedAt time.Time
	data      []byte
}

// NewSnapshot wraps raw document data read from a backend. nil data means missing.
func NewSnapshot(ref Ref, data []byte, updatedAt time.Time) *Snapshot {
	return &Snapshot{Ref: ref, UpdatedAt: updatedAt, data: data}
}

// Missing returns a snapshot for a document that does not exist.
func Missing(ref Ref) *Snapshot {
	return &Snapshot{Ref: ref}
}

// Exists reports whether the document was found.
func (s *Snapshot) Exists() bool {
	return s != nil && s.data != nil
}

// DataTo decodes the document into dst.
func (s *Snapshot) DataTo(dst any) error {
	if !s.Exists() {
		return ErrNoData
	}
	if err := json.Unmarshal(s.data, dst); err != nil {
		return fmt.Errorf("decode %s: %w", s.Ref.Path(), err)
	}
	return nil
}

// Data returns the document fields.
func (s *Snapshot) Data() (map[string]any, error) {
	fields := make(map[string]any)
	if err := s.DataTo(&fields); err != nil {
		return nil, err
	}
	return fields, nil
}

type setOptions struct {
	merge bool
}

// SetOption tunes Set.
type SetOption func(*setOptions)

// Merge makes Set update only the top-level fields present in the value,
// keeping the other fields of an existing document.
func Merge() SetOption {
	return func(o *setOptions) { o.merge = true }
}

// Store is the document persistence a backend provides.
type Store interface {
	// Get reads a document. Transport and decoding failures are errors,
	// a missing document is not.
	Get(ctx context.Context, ref Ref) (*Snapshot, error)

	// Set writes v, which must encode to a JSON object, as the document.
	Set(ctx context.Context, ref Ref, v any, opts ...SetOption) error

	// Close releases the backend connection.
	Close() error
}

// Encode renders v as the stored document body.
// Backends call it to build the value Set writes; existing is the current
// body or nil when the document is missing.
func Encode(existing []byte, v any, opts ...SetOption) ([]byte, error) {
	var o setOptions
	for _, opt := range opts {
		opt(&o)
	}

	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode document: %w", err)
	}

	fields := make(map[string]json.RawMessage)
	if err := json.Unmarshal(data, &fields); err != nil || fields == nil {
		return nil, ErrNotObject
	}

	if !o.merge || existing == nil {
		return data, nil
	}

	merged := make(map[string]json.RawMessage)
	if err := json.Unmarshal(existing, &merged); err != nil {
		return nil, fmt.Errorf("decode existing document: %w", err)
	}
	for k, val := range fields {
		merged[k] = val
	}

	out, err := json.Marshal(merged)
	if err != nil {
		return nil, fmt.Errorf("encode merged document: %w", err)
	}
	return out, nil
}
