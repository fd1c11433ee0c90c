// Package velocity provides sender frequency counting, recent-history
// lookups and cached profile lookups for rule evaluation.
package velocity

import (
	"sort"
	"time"

	"github.com/opensource-finance/kestrel/internal/domain"
)

// FrequencyMap indexes batch transactions by sender.
// It is built once per batch and is read-only afterwards.
type FrequencyMap struct {
	window time.Duration
	sent   map[string][]time.Time
	ids    map[string]struct{}
}

// NewFrequencyMap builds the map from the valid transactions of a batch.
func NewFrequencyMap(txs []*domain.Transaction, window time.Duration) *FrequencyMap {
	m := &FrequencyMap{
		window: window,
		sent:   make(map[string][]time.Time),
		ids:    make(map[string]struct{}, len(txs)),
	}
	for _, tx := range txs {
		m.sent[tx.FromParty] = append(m.sent[tx.FromParty], tx.Timestamp)
		m.ids[tx.ID] = struct{}{}
	}
	for _, ts := range m.sent {
		sort.Slice(ts, func(i, j int) bool { return ts[i].Before(ts[j]) })
	}
	return m
}

// Window returns the trailing window length.
func (m *FrequencyMap) Window() time.Duration {
	return m.window
}

// Contains reports whether a transaction id is part of the batch.
func (m *FrequencyMap) Contains(txID string) bool {
	_, ok := m.ids[txID]
	return ok
}

// Count returns how many batch transactions sender sent in (at-window, at].
func (m *FrequencyMap) Count(sender string, at time.Time) int {
	ts := m.sent[sender]
	if len(ts) == 0 {
		return 0
	}
	start := at.Add(-m.window)
	lo := sort.Search(len(ts), func(i int) bool { return ts[i].After(start) })
	hi := sort.Search(len(ts), func(i int) bool { return ts[i].After(at) })
	if hi < lo {
		return 0
	}
	return hi - lo
}

// HistoricalCount counts transactions in history that sender sent in
// (at-window, at], ignoring any that are part of the current batch.
func (m *FrequencyMap) HistoricalCount(history []*domain.Transaction, sender string, at time.Time) int {
	start := at.Add(-m.window)
	n := 0
	for _, tx := range history {
		if tx.FromParty != sender || m.Contains(tx.ID) {
			continue
		}
		if tx.Timestamp.After(start) && !tx.Timestamp.After(at) {
			n++
		}
	}
	return n
}
