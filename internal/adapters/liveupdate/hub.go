// Package liveupdate fans committed item changes out to connected board clients.
package liveupdate

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/hylla/itemflow/internal/domain"
)

// ErrSubscriberLagging reports that at least one subscriber buffer was full.
var ErrSubscriberLagging = errors.New("live-update subscriber lagging")

// EventType names one live-update event.
type EventType string

// EventType values.
const (
	EventItemCreated  EventType = "item_created"
	EventItemUpdated  EventType = "item_updated"
	EventItemDeleted  EventType = "item_deleted"
	EventNotification EventType = "notification"
)

// Event is one message pushed to board subscribers.
type Event struct {
	Type         EventType            `json:"type"`
	BoardID      string               `json:"board_id"`
	Item         *domain.Item         `json:"item,omitempty"`
	Notification *domain.Notification `json:"notification,omitempty"`
	At           time.Time            `json:"at"`
}

// Hub is an in-process per-board publish/subscribe fan-out.
type Hub struct {
	mu     sync.RWMutex
	subs   map[string]map[*Subscription]struct{}
	buffer int
	clock  func() time.Time
}

// NewHub constructs a hub whose subscriptions buffer up to buffer events.
func NewHub(buffer int) *Hub {
	if buffer <= 0 {
		buffer = 64
	}
	return &Hub{
		subs:   map[string]map[*Subscription]struct{}{},
		buffer: buffer,
		clock:  time.Now,
	}
}

// Subscription receives events for one board until closed.
type Subscription struct {
	hub     *Hub
	boardID string
	ch      chan Event
	once    sync.Once
}

// Subscribe registers a new subscriber for boardID.
func (h *Hub) Subscribe(boardID string) *Subscription {
	boardID = strings.TrimSpace(boardID)
	sub := &Subscription{
		hub:     h,
		boardID: boardID,
		ch:      make(chan Event, h.buffer),
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.subs[boardID] == nil {
		h.subs[boardID] = map[*Subscription]struct{}{}
	}
	h.subs[boardID][sub] = struct{}{}
	return sub
}

// Events returns the receive channel. It is closed by Close.
func (s *Subscription) Events() <-chan Event {
	return s.ch
}

// Close unregisters the subscription and closes its channel.
func (s *Subscription) Close() {
	s.once.Do(func() {
		s.hub.mu.Lock()
		defer s.hub.mu.Unlock()
		if set := s.hub.subs[s.boardID]; set != nil {
			delete(set, s)
			if len(set) == 0 {
				delete(s.hub.subs, s.boardID)
			}
		}
		close(s.ch)
	})
}

// Subscribers reports how many subscribers boardID currently has.
func (h *Hub) Subscribers(boardID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs[strings.TrimSpace(boardID)])
}

// ItemCreated publishes a created event.
func (h *Hub) ItemCreated(ctx context.Context, item domain.Item, boardID string) error {
	return h.publishItem(ctx, EventItemCreated, item, boardID)
}

// ItemUpdated publishes an updated event.
func (h *Hub) ItemUpdated(ctx context.Context, item domain.Item, boardID string) error {
	return h.publishItem(ctx, EventItemUpdated, item, boardID)
}

// ItemDeleted publishes a deleted event.
func (h *Hub) ItemDeleted(ctx context.Context, item domain.Item, boardID string) error {
	return h.publishItem(ctx, EventItemDeleted, item, boardID)
}

// Send publishes a notification to subscribers of its board.
func (h *Hub) Send(ctx context.Context, n domain.Notification) error {
	return h.publish(ctx, Event{
		Type:         EventNotification,
		BoardID:      n.BoardID,
		Notification: &n,
		At:           h.clock().UTC(),
	})
}

// publishItem wraps item into an event.
func (h *Hub) publishItem(ctx context.Context, typ EventType, item domain.Item, boardID string) error {
	return h.publish(ctx, Event{
		Type:    typ,
		BoardID: strings.TrimSpace(boardID),
		Item:    &item,
		At:      h.clock().UTC(),
	})
}

// publish delivers ev without blocking. Full subscriber buffers drop the event.
func (h *Hub) publish(ctx context.Context, ev Event) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	lagging := 0
	for sub := range h.subs[ev.BoardID] {
		select {
		case sub.ch <- ev:
		default:
			lagging++
		}
	}
	if lagging > 0 {
		return fmt.Errorf("%w: %d subscriber(s) on board %q", ErrSubscriberLagging, lagging, ev.BoardID)
	}
	return nil
}
