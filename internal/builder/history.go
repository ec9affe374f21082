package builder

import (
	"time"

	"github.com/calade/reportdeck/model"
)

// historyLog is a bounded linear undo/redo log over report snapshots. The
// cursor points at the entry matching the live state; entries after the
// cursor are the redo branch and are discarded on the next add.
type historyLog struct {
	entries  []model.HistoryEntry
	cursor   int
	capacity int
}

func newHistoryLog(capacity int) *historyLog {
	if capacity <= 0 {
		capacity = model.HistoryCapacity
	}
	return &historyLog{cursor: -1, capacity: capacity}
}

// add records a post-action snapshot. Any redo branch beyond the cursor is
// truncated; once the log exceeds its capacity the oldest entry is evicted
// and the cursor shifts with it.
func (h *historyLog) add(action string, data any, snap model.Snapshot) {
	if h.cursor < len(h.entries)-1 {
		h.entries = h.entries[:h.cursor+1]
	}
	h.entries = append(h.entries, model.HistoryEntry{
		Action:    action,
		Data:      data,
		Timestamp: time.Now(),
		Snapshot:  snap,
	})
	h.cursor = len(h.entries) - 1

	if len(h.entries) > h.capacity {
		h.entries = h.entries[1:]
		h.cursor--
	}
}

// undo steps the cursor back and returns the snapshot to restore. The second
// return is false at the oldest entry.
func (h *historyLog) undo() (model.Snapshot, bool) {
	if h.cursor <= 0 {
		return model.Snapshot{}, false
	}
	h.cursor--
	return h.entries[h.cursor].Snapshot.Clone(), true
}

// redo steps the cursor forward and returns the snapshot to restore. The
// second return is false at the newest entry.
func (h *historyLog) redo() (model.Snapshot, bool) {
	if h.cursor >= len(h.entries)-1 {
		return model.Snapshot{}, false
	}
	h.cursor++
	return h.entries[h.cursor].Snapshot.Clone(), true
}

// len returns the number of retained entries.
func (h *historyLog) len() int {
	return len(h.entries)
}

// view returns a copy of the log for read access. Snapshots are shared;
// callers must not mutate them.
func (h *historyLog) view() []model.HistoryEntry {
	return append([]model.HistoryEntry(nil), h.entries...)
}
