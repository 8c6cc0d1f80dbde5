package models

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"gymsync/internal/docstore"
)

// TemporaryIDPrefix marks ids assigned locally to records the remote has
// not stored yet.
const TemporaryIDPrefix = "tmp-"

// IsTemporaryID reports whether id was assigned locally.
func IsTemporaryID(id string) bool {
	return strings.HasPrefix(id, TemporaryIDPrefix)
}

// Schema binds an entity type to its collection and its explicit field mapping.
// Decode and Encode are inverse up to absent vs null, which both decode as absent.
// Times keep their instant but always decode in UTC.
type Schema[T any] struct {
	Collection string
	Fields     []string

	decode func(id string, doc docstore.Document) (T, error)
	encode func(rec T) docstore.Document
	getID  func(rec T) string
	setID  func(rec *T, id string)
}

// Decode maps a remote document to a record. A field with the wrong type fails
// the whole record.
func (s Schema[T]) Decode(id string, doc docstore.Document) (T, error) {
	rec, err := s.decode(id, doc)
	if err != nil {
		var zero T
		return zero, fmt.Errorf("failed to decode %s/%s: %w", s.Collection, id, err)
	}
	return rec, nil
}

// Encode maps a record to a document holding only its present fields. The id
// is not part of the document.
func (s Schema[T]) Encode(rec T) docstore.Document {
	return s.encode(rec)
}

func (s Schema[T]) ID(rec T) string {
	return s.getID(rec)
}

// WithID returns a copy of rec carrying id.
func (s Schema[T]) WithID(rec T, id string) T {
	s.setID(&rec, id)
	return rec
}

// Unknown lists document keys outside the schema, sorted.
func (s Schema[T]) Unknown(doc docstore.Document) []string {
	known := make(map[string]struct{}, len(s.Fields))
	for _, f := range s.Fields {
		known[f] = struct{}{}
	}
	var out []string
	for k := range doc {
		if _, ok := known[k]; !ok {
			out = append(out, k)
		}
	}
	sort.Strings(out)
	return out
}

// Ptr returns a pointer to v, for building records with optional fields.
func Ptr[T any](v T) *T {
	return &v
}

// reader collects the first field error so decoders read straight through.
type reader struct {
	doc docstore.Document
	err error
}

func (r *reader) str(key string) *string {
	v, err := r.doc.String(key)
	r.keep(err)
	return v
}

func (r *reader) boolean(key string) *bool {
	v, err := r.doc.Bool(key)
	r.keep(err)
	return v
}

func (r *reader) integer(key string) *int {
	v, err := r.doc.Int(key)
	r.keep(err)
	return v
}

func (r *reader) float(key string) *float64 {
	v, err := r.doc.Float(key)
	r.keep(err)
	return v
}

func (r *reader) time(key string) *time.Time {
	v, err := r.doc.Time(key)
	r.keep(err)
	return v
}

func (r *reader) strings(key string) []string {
	v, err := r.doc.Strings(key)
	r.keep(err)
	return v
}

func (r *reader) ints(key string) []int {
	v, err := r.doc.Ints(key)
	r.keep(err)
	return v
}

func (r *reader) role(key string) *Role {
	s := r.str(key)
	if s == nil {
		return nil
	}
	role, err := ParseRole(*s)
	if err != nil {
		r.keep(fmt.Errorf("field %q: %w", key, err))
		return nil
	}
	return &role
}

func (r *reader) keep(err error) {
	if err != nil && r.err == nil {
		r.err = err
	}
}

func putRole(doc docstore.Document, key string, r *Role) {
	if r == nil {
		return
	}
	doc[key] = string(*r)
}
