package events

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"
)

// pollBatchLimit caps how many events one poll cycle delivers.
const pollBatchLimit = 500

// Poller is the SQLite replacement for NOTIFY/LISTEN: it tails the events
// table by row ID and broadcasts new rows to the local ConnectionManager.
// Single-process only, which matches the SQLite deployment model.
type Poller struct {
	store    *Store
	manager  *ConnectionManager
	interval time.Duration

	cursor   int64
	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// NewPoller creates a poller with the given poll interval. Intervals above
// one second make the UI noticeably laggy; 500ms is a good default.
func NewPoller(store *Store, manager *ConnectionManager, interval time.Duration) *Poller {
	if interval <= 0 || interval > time.Second {
		interval = 500 * time.Millisecond
	}
	return &Poller{
		store:    store,
		manager:  manager,
		interval: interval,
		stopCh:   make(chan struct{}),
	}
}

// Start positions the cursor at the current table head and begins polling.
// Only events published after Start are delivered live; earlier ones reach
// clients through catchup.
func (p *Poller) Start(ctx context.Context) error {
	maxID, err := p.store.MaxEventID(ctx)
	if err != nil {
		return err
	}
	p.cursor = maxID

	p.wg.Add(1)
	go p.run(ctx)

	slog.Info("Event poller started", "interval", p.interval, "cursor", p.cursor)
	return nil
}

// Stop halts the polling loop. Safe to call multiple times.
func (p *Poller) Stop() {
	p.stopOnce.Do(func() { close(p.stopCh) })
	p.wg.Wait()
}

func (p *Poller) run(ctx context.Context) {
	defer p.wg.Done()

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-p.stopCh:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.poll(ctx)
		}
	}
}

// poll delivers all events past the cursor, mirroring the NOTIFY payload
// shape (db_event_id injected) so clients can't tell the backends apart.
func (p *Poller) poll(ctx context.Context) {
	events, err := p.store.GetEventsAfterID(ctx, p.cursor, pollBatchLimit)
	if err != nil {
		slog.Warn("Event poll failed", "error", err)
		return
	}

	for _, evt := range events {
		payload := evt.Payload
		payload["db_event_id"] = evt.ID
		data, err := json.Marshal(payload)
		if err != nil {
			slog.Warn("Failed to marshal polled event", "event_id", evt.ID, "error", err)
			p.cursor = evt.ID
			continue
		}
		p.manager.Broadcast(evt.Channel, data)
		p.cursor = evt.ID
	}
}
