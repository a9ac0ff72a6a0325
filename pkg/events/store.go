package events

import (
	"context"
	"fmt"
	"time"

	"github.com/tarsy-dev/tarsy/ent"
	"github.com/tarsy-dev/tarsy/ent/event"
)

// Store queries and prunes the events table. It implements CatchupQuerier
// for the ConnectionManager and serves the Poller and retention cleanup.
type Store struct {
	client *ent.Client
}

// NewStore creates an event store over the ent client.
func NewStore(client *ent.Client) *Store {
	return &Store{client: client}
}

// GetEventsAfter retrieves up to limit events on a channel with ID greater
// than afterID, in ID order.
func (s *Store) GetEventsAfter(ctx context.Context, channel string, afterID int64, limit int) ([]*ent.Event, error) {
	events, err := s.client.Event.Query().
		Where(
			event.ChannelEQ(channel),
			event.IDGT(afterID),
		).
		Order(ent.Asc(event.FieldID)).
		Limit(limit).
		All(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get events: %w", err)
	}
	return events, nil
}

// GetCatchupEvents implements CatchupQuerier for the ConnectionManager.
func (s *Store) GetCatchupEvents(ctx context.Context, channel string, sinceID int64, limit int) ([]CatchupEvent, error) {
	events, err := s.GetEventsAfter(ctx, channel, sinceID, limit)
	if err != nil {
		return nil, err
	}

	result := make([]CatchupEvent, len(events))
	for i, evt := range events {
		result[i] = CatchupEvent{
			ID:      evt.ID,
			Payload: evt.Payload,
		}
	}
	return result, nil
}

// MaxEventID returns the highest event row ID, or 0 when the table is
// empty. The Poller starts its cursor here so it only delivers new events.
func (s *Store) MaxEventID(ctx context.Context) (int64, error) {
	evt, err := s.client.Event.Query().
		Order(ent.Desc(event.FieldID)).
		First(ctx)
	if err != nil {
		if ent.IsNotFound(err) {
			return 0, nil
		}
		return 0, fmt.Errorf("failed to query max event ID: %w", err)
	}
	return evt.ID, nil
}

// GetEventsAfterID returns all events (any channel) with ID greater than
// afterID, in ID order. Used by the Poller.
func (s *Store) GetEventsAfterID(ctx context.Context, afterID int64, limit int) ([]*ent.Event, error) {
	events, err := s.client.Event.Query().
		Where(event.IDGT(afterID)).
		Order(ent.Asc(event.FieldID)).
		Limit(limit).
		All(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get events: %w", err)
	}
	return events, nil
}

// DeleteEventsBefore removes events older than the cutoff. The BIGSERIAL
// cursor keeps increasing, so catchup positions survive pruning.
func (s *Store) DeleteEventsBefore(ctx context.Context, cutoff time.Time) (int, error) {
	count, err := s.client.Event.Delete().
		Where(event.CreatedAtLT(cutoff)).
		Exec(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to delete old events: %w", err)
	}
	return count, nil
}

// DeleteChannelEvents removes all events on a channel. Called after a
// session's grace period once clients have received the final events.
func (s *Store) DeleteChannelEvents(ctx context.Context, channel string) (int, error) {
	count, err := s.client.Event.Delete().
		Where(event.ChannelEQ(channel)).
		Exec(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to delete channel events: %w", err)
	}
	return count, nil
}
