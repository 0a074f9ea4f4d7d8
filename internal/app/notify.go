package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/charmbracelet/log"

	"github.com/hylla/itemflow/internal/codec"
	"github.com/hylla/itemflow/internal/domain"
)

// NotificationCoordinator decides recipients and payloads for item events
// and hands finished notifications to a sink.
type NotificationCoordinator struct {
	policy PolicyGateway
	sink   NotificationSink
	idGen  IDGenerator
	clock  Clock
}

// NewNotificationCoordinator constructs a coordinator. A nil sink disables delivery.
func NewNotificationCoordinator(policy PolicyGateway, sink NotificationSink, idGen IDGenerator, clock Clock) *NotificationCoordinator {
	if idGen == nil {
		idGen = func() string { return "" }
	}
	if clock == nil {
		clock = time.Now
	}
	return &NotificationCoordinator{
		policy: policy,
		sink:   sink,
		idGen:  idGen,
		clock:  clock,
	}
}

// StatusChanged builds the notification for a committed status change.
func (c *NotificationCoordinator) StatusChanged(ctx context.Context, item domain.Item, actorID string) (domain.Notification, error) {
	return c.build(ctx, domain.NotificationStatusChanged, item, domain.NotificationPayload{
		ItemTitle: item.Title,
		Status:    item.Status,
		ActorID:   actorID,
	})
}

// CommentAdded builds the notification for a committed comment.
func (c *NotificationCoordinator) CommentAdded(ctx context.Context, item domain.Item, comment domain.Comment) (domain.Notification, error) {
	return c.build(ctx, domain.NotificationCommentAdded, item, domain.NotificationPayload{
		ItemTitle:   item.Title,
		CommentText: comment.Text,
		ActorID:     comment.AuthorID,
	})
}

// Deliver sends n to the sink. A notification without a sink is dropped.
func (c *NotificationCoordinator) Deliver(ctx context.Context, n domain.Notification) error {
	if c.sink == nil {
		return nil
	}
	if err := c.sink.Send(ctx, n); err != nil {
		log.Warn("notification delivery failed", "notification_id", n.ID, "kind", n.Kind, "item_id", n.ItemID, "err", err)
		return err
	}
	return nil
}

// build resolves board members and stamps the delivery key.
func (c *NotificationCoordinator) build(ctx context.Context, kind domain.NotificationKind, item domain.Item, payload domain.NotificationPayload) (domain.Notification, error) {
	members, err := c.policy.MembersOf(ctx, item.BoardID)
	if err != nil {
		return domain.Notification{}, fmt.Errorf("resolve recipients for board %q: %w", item.BoardID, err)
	}
	n, err := domain.NewNotification(domain.NotificationInput{
		ID:         c.idGen(),
		Kind:       kind,
		BoardID:    item.BoardID,
		ItemID:     item.ID,
		Recipients: members,
		Payload:    payload,
	}, c.clock())
	if err != nil {
		return domain.Notification{}, err
	}
	n.DeliveryKey, err = codec.DeliveryKey(n)
	if err != nil {
		return domain.Notification{}, err
	}
	return n, nil
}

// NotificationSinks delivers to every sink in order and joins their errors.
type NotificationSinks []NotificationSink

// Send implements NotificationSink.
func (s NotificationSinks) Send(ctx context.Context, n domain.Notification) error {
	var errs []error
	for _, sink := range s {
		if sink == nil {
			continue
		}
		if err := sink.Send(ctx, n); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
