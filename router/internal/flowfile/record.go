// Package flowfile is the record abstraction the transaction processor is
// written against: an immutable attribute-carrying Record and a Session that
// hands records to a processor and collects where they were sent.
package flowfile

import (
	"maps"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

// Record is an immutable unit of data carrying string attributes.
// PutAttribute returns a new handle; the receiver is never changed.
type Record struct {
	// seq identifies the record within the process. Client ids may repeat.
	seq       uint64
	id        string
	attrs     map[string]string
	enteredAt time.Time
}

var nextSeq atomic.Uint64

// NewRecord creates a Record with a copy of attrs. An empty id is replaced
// by a random UUID.
func NewRecord(id string, attrs map[string]string) *Record {
	if id == "" {
		id = uuid.NewString()
	}
	cp := make(map[string]string, len(attrs))
	maps.Copy(cp, attrs)
	return &Record{seq: nextSeq.Add(1), id: id, attrs: cp, enteredAt: time.Now().UTC()}
}

// ID returns the record identifier, stable across attribute updates.
func (r *Record) ID() string { return r.id }

// EnteredAt is when the record was first created.
func (r *Record) EnteredAt() time.Time { return r.enteredAt }

// Attribute returns one attribute value.
func (r *Record) Attribute(key string) (string, bool) {
	v, ok := r.attrs[key]
	return v, ok
}

// Attributes returns a copy of all attributes.
func (r *Record) Attributes() map[string]string {
	return maps.Clone(r.attrs)
}

// PutAttribute returns a new handle with key set to value.
func (r *Record) PutAttribute(key, value string) *Record {
	cp := make(map[string]string, len(r.attrs)+1)
	maps.Copy(cp, r.attrs)
	cp[key] = value
	return &Record{seq: r.seq, id: r.id, attrs: cp, enteredAt: r.enteredAt}
}
