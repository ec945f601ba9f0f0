package service

import (
	"sync"
	"time"

	"mcpanel/internal/models"
)

const defaultEventLogSize = 1000

// EventLog keeps the most recent supervisor lifecycle events in memory.
type EventLog struct {
	mu         sync.RWMutex
	entries    []models.LogEntry
	maxEntries int
	now        func() time.Time
}

func NewEventLog(maxEntries int) *EventLog {
	return &EventLog{
		entries:    make([]models.LogEntry, 0, maxEntries),
		maxEntries: maxEntries,
		now:        time.Now,
	}
}

func (el *EventLog) Add(level, message string) {
	el.mu.Lock()
	defer el.mu.Unlock()

	el.entries = append(el.entries, models.LogEntry{
		Timestamp: el.now().Format(time.RFC3339),
		Level:     level,
		Message:   message,
	})
	if len(el.entries) > el.maxEntries {
		el.entries = el.entries[len(el.entries)-el.maxEntries:]
	}
}

func (el *EventLog) GetLast(n int) []models.LogEntry {
	el.mu.RLock()
	defer el.mu.RUnlock()

	return lastN(el.entries, n)
}

func (el *EventLog) GetByLevel(level string, n int) []models.LogEntry {
	el.mu.RLock()
	defer el.mu.RUnlock()

	var filtered []models.LogEntry
	for _, e := range el.entries {
		if e.Level == level {
			filtered = append(filtered, e)
		}
	}
	return lastN(filtered, n)
}

func lastN(entries []models.LogEntry, n int) []models.LogEntry {
	if n <= 0 || len(entries) == 0 {
		return []models.LogEntry{}
	}

	start := 0
	if len(entries) > n {
		start = len(entries) - n
	}

	result := make([]models.LogEntry, len(entries[start:]))
	copy(result, entries[start:])
	return result
}
