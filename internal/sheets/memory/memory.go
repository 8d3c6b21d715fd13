// Package memory keeps journal rows in process, for local runs and tests.
package memory

import (
	"context"
	"fmt"
	"sync"

	"khanevadati/internal/sheets"
)

var _ sheets.JournalWriter = (*Journal)(nil)

type Journal struct {
	mu      sync.Mutex
	entries []sheets.Entry
}

func New() *Journal {
	return &Journal{}
}

// AppendEntry stores the entry and returns a synthetic row reference.
func (j *Journal) AppendEntry(_ context.Context, e sheets.Entry) (string, error) {
	if e.EventID == "" {
		return "", fmt.Errorf("journal entry requires an event id")
	}
	j.mu.Lock()
	defer j.mu.Unlock()
	j.entries = append(j.entries, e)
	return fmt.Sprintf("mem:%d", len(j.entries)), nil
}

// Entries returns a copy of every appended entry.
func (j *Journal) Entries() []sheets.Entry {
	j.mu.Lock()
	defer j.mu.Unlock()
	return append([]sheets.Entry(nil), j.entries...)
}
