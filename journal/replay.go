package journal

import (
	"fmt"
	"time"

	"github.com/xraph/trellis"
	"github.com/xraph/trellis/id"
	"github.com/xraph/trellis/queue"
)

// Replay re-enqueues one entry's operation on q and marks the entry as
// replayed. The returned handle belongs to the new operation; the entry
// stays in the journal for the record. Enqueue never blocks, so neither
// does Replay.
func (j *Journal) Replay(q *queue.Queue, entryID id.JournalID) (*queue.Handle, error) {
	j.mu.Lock()
	e := j.findLocked(entryID)
	if e == nil {
		j.mu.Unlock()
		return nil, fmt.Errorf("journal: replay %s: %w", entryID, trellis.ErrEntryNotFound)
	}

	now := time.Now().UTC()
	e.ReplayedAt = &now
	params := e.Params
	j.mu.Unlock()

	return q.Enqueue(params), nil
}

// ReplayAll re-enqueues every entry not yet replayed, in failure order,
// and returns their handles. Entries that fail again are recorded as
// new journal entries by the middleware.
func (j *Journal) ReplayAll(q *queue.Queue) []*queue.Handle {
	j.mu.Lock()
	now := time.Now().UTC()

	var params []queue.Params
	for _, e := range j.entries {
		if e.ReplayedAt != nil {
			continue
		}
		e.ReplayedAt = &now
		params = append(params, e.Params)
	}
	j.mu.Unlock()

	if len(params) == 0 {
		return nil
	}

	return q.EnqueueMany(params...)
}
