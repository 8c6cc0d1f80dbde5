package repository

import (
	"context"
	"fmt"

	"gymsync/internal/docstore"
)

// Adapter is the remote sync boundary for one entity type. Nothing else
// talks to the document store for that type.
type Adapter[T any] interface {
	// Collection names the remote collection
	Collection() string

	// StartSync subscribes to the whole collection; onChange gets the full
	// decoded set on every change. A second call while running returns the
	// existing cancel handle without subscribing again.
	StartSync(ctx context.Context, onChange func([]T), onError func(error)) (context.CancelFunc, error)

	// StartEntitySync subscribes to one record; onChange(nil) means missing.
	StartEntitySync(ctx context.Context, id string, onChange func(*T), onError func(error)) (context.CancelFunc, error)

	// Save merge-upserts the present fields when the record has an id, and
	// creates it otherwise. The returned record carries the id.
	Save(ctx context.Context, rec T) (T, error)

	// Patch merges raw fields; a nil value clears the remote field
	Patch(ctx context.Context, id string, fields docstore.Document) error

	// Delete removes the record; deleting a missing id is not an error
	Delete(ctx context.Context, id string) error

	// Get reads one record once, nil when missing
	Get(ctx context.Context, id string) (*T, error)

	// List reads the collection once
	List(ctx context.Context) ([]T, error)
}

// UnknownFieldError rejects a patch naming fields outside the schema.
type UnknownFieldError struct {
	Collection string
	Fields     []string
}

func (e *UnknownFieldError) Error() string {
	return fmt.Sprintf("unknown fields for %s: %v", e.Collection, e.Fields)
}
