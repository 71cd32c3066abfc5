// Package journal retains operations that failed terminally, whether
// retries ran out or the server rejected the mutation outright, so
// callers can inspect what was lost and replay it once the cause is
// fixed.
//
// The journal is in-memory and bounded: when full, the oldest entry
// falls off. It holds the original Params value, so a replayed entry
// re-enters the queue as a brand-new operation with a fresh handle.
package journal

import (
	"context"
	"sync"
	"time"

	"github.com/xraph/trellis"
	"github.com/xraph/trellis/id"
	"github.com/xraph/trellis/queue"
)

// DefaultSize is the entry cap used when no size is configured.
const DefaultSize = 256

// Entry records one terminally failed operation.
type Entry struct {
	// ID uniquely identifies this journal entry.
	ID id.JournalID

	// OpID is the failed operation's ID.
	OpID id.OpID

	// Kind says which mutation failed.
	Kind queue.Kind

	// NodeID is the node the operation addressed, Nil for creations.
	NodeID id.NodeID

	// Params is the original payload, kept for replay.
	Params queue.Params

	// Error is the terminal error's message.
	Error string

	// FailedAt is when the failure was recorded, in UTC.
	FailedAt time.Time

	// ReplayedAt is when the entry was re-enqueued, nil if it never was.
	ReplayedAt *time.Time
}

// Journal is a bounded in-memory record of failed operations. Safe for
// concurrent use.
type Journal struct {
	mu      sync.Mutex
	entries []*Entry
	max     int
}

// New builds a Journal retaining at most size entries. Sizes below one
// fall back to DefaultSize.
func New(size int) *Journal {
	if size <= 0 {
		size = DefaultSize
	}

	return &Journal{max: size}
}

// add appends a failure record, dropping the oldest entry when full.
func (j *Journal) add(op *queue.Operation, opErr error) {
	e := &Entry{
		ID:       id.NewJournalID(),
		OpID:     op.ID,
		Kind:     op.Kind,
		NodeID:   op.Target(),
		Params:   op.Params,
		Error:    opErr.Error(),
		FailedAt: time.Now().UTC(),
	}

	j.mu.Lock()
	if len(j.entries) >= j.max {
		copy(j.entries, j.entries[1:])
		j.entries[len(j.entries)-1] = nil
		j.entries = j.entries[:len(j.entries)-1]
	}
	j.entries = append(j.entries, e)
	j.mu.Unlock()
}

// List returns a snapshot of every entry, oldest first.
func (j *Journal) List() []Entry {
	j.mu.Lock()
	defer j.mu.Unlock()

	out := make([]Entry, len(j.entries))
	for i, e := range j.entries {
		out[i] = *e
	}

	return out
}

// Get returns the entry with the given ID, or trellis.ErrEntryNotFound.
func (j *Journal) Get(entryID id.JournalID) (Entry, error) {
	j.mu.Lock()
	defer j.mu.Unlock()

	e := j.findLocked(entryID)
	if e == nil {
		return Entry{}, trellis.ErrEntryNotFound
	}

	return *e, nil
}

// Len returns the number of retained entries.
func (j *Journal) Len() int {
	j.mu.Lock()
	defer j.mu.Unlock()

	return len(j.entries)
}

// Purge removes entries that failed before the given time and returns
// how many were removed.
func (j *Journal) Purge(before time.Time) int {
	j.mu.Lock()
	defer j.mu.Unlock()

	kept := j.entries[:0]
	for _, e := range j.entries {
		if e.FailedAt.Before(before) {
			continue
		}
		kept = append(kept, e)
	}
	removed := len(j.entries) - len(kept)

	// Zero the tail so dropped entries can be collected.
	for i := len(kept); i < len(j.entries); i++ {
		j.entries[i] = nil
	}
	j.entries = kept

	return removed
}

// Middleware returns queue middleware that records every terminal
// failure in the journal. Validation failures never reach it: the queue
// rejects those before the execution chain runs.
func (j *Journal) Middleware() queue.Middleware {
	return func(ctx context.Context, op *queue.Operation, next queue.Handler) error {
		err := next(ctx)
		if err != nil {
			j.add(op, err)
		}

		return err
	}
}

// findLocked returns the entry with the given ID or nil. Callers must
// hold mu.
func (j *Journal) findLocked(entryID id.JournalID) *Entry {
	for _, e := range j.entries {
		if e.ID == entryID {
			return e
		}
	}

	return nil
}
