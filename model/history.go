package model

import "time"

// HistoryEntry records one mutating action together with a deep snapshot of
// the report collections taken at the time of the action.
type HistoryEntry struct {
	Action    string    `json:"action"`
	Data      any       `json:"data,omitempty"`
	Timestamp time.Time `json:"timestamp"`
	Snapshot  Snapshot  `json:"snapshot"`
}

// HistoryCapacity is the maximum number of entries retained in the action
// log. When the log exceeds it, the oldest entry is evicted.
const HistoryCapacity = 50

// ExecutionStats tracks report execution counts and durations. The average is
// maintained incrementally.
type ExecutionStats struct {
	Count        int           `json:"count"`
	LastDuration time.Duration `json:"-"`
	AvgDuration  time.Duration `json:"-"`
}

// Record folds one execution duration into the stats:
// new_avg = (old_avg*(n-1) + d) / n.
func (s *ExecutionStats) Record(d time.Duration) {
	s.Count++
	s.LastDuration = d
	s.AvgDuration = (s.AvgDuration*time.Duration(s.Count-1) + d) / time.Duration(s.Count)
}

// StatsView is the wire representation of ExecutionStats, durations in
// milliseconds.
type StatsView struct {
	Count  int     `json:"count"`
	LastMs float64 `json:"last_ms"`
	AvgMs  float64 `json:"avg_ms"`
}

// View converts the stats to their wire representation.
func (s ExecutionStats) View() StatsView {
	return StatsView{
		Count:  s.Count,
		LastMs: float64(s.LastDuration) / float64(time.Millisecond),
		AvgMs:  float64(s.AvgDuration) / float64(time.Millisecond),
	}
}
