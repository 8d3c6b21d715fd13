// Package worker turns ledger events from the queue into journal rows.
package worker

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"khanevadati/internal/cache"
	"khanevadati/internal/core"
	"khanevadati/internal/log"
	"khanevadati/internal/sheets"
)

const (
	seenCacheSize = 10000
	seenCacheTTL  = 24 * time.Hour
)

// ExportWorker appends every ledger event to the journal once. Redelivered
// events that were already written are acknowledged without a second row.
type ExportWorker struct {
	journal sheets.JournalWriter
	seen    *cache.LRUCache[string]
	logger  *log.Logger

	exported atomic.Int64
	skipped  atomic.Int64
	failed   atomic.Int64
}

type Stats struct {
	Exported int64
	Skipped  int64
	Failed   int64
}

func NewExportWorker(journal sheets.JournalWriter, logger *log.Logger) *ExportWorker {
	if logger == nil {
		logger = log.New(log.DefaultConfig())
	}
	return &ExportWorker{
		journal: journal,
		seen:    cache.NewLRUCache[string](seenCacheSize, seenCacheTTL),
		logger:  logger.WithComponent(log.ComponentWorker),
	}
}

// SeenCache exposes the redelivery cache so the caller can sweep it.
func (w *ExportWorker) SeenCache() *cache.LRUCache[string] {
	return w.seen
}

// HandleEvent writes ev to the journal. A returned error asks the broker to
// redeliver the event.
func (w *ExportWorker) HandleEvent(ctx context.Context, ev core.Event) error {
	if ref, ok := w.seen.Get(ev.ID); ok {
		w.skipped.Add(1)
		w.logger.DebugContext(ctx, "Event already exported",
			log.FieldEventID, ev.ID, "sheets_ref", ref)
		return nil
	}

	ref, err := w.journal.AppendEntry(ctx, sheets.EntryFromEvent(ev))
	if err != nil {
		w.failed.Add(1)
		return fmt.Errorf("append journal entry: %w", err)
	}
	w.seen.Set(ev.ID, ref)
	w.exported.Add(1)

	w.logger.InfoContext(ctx, "Exported ledger event",
		log.FieldEventID, ev.ID,
		log.FieldNamespace, ev.Namespace,
		log.FieldOperation, string(ev.Operation),
		log.FieldAmountMinor, ev.Amount.Minor,
		"sheets_ref", ref)
	return nil
}

func (w *ExportWorker) Stats() Stats {
	return Stats{
		Exported: w.exported.Load(),
		Skipped:  w.skipped.Load(),
		Failed:   w.failed.Load(),
	}
}
