package app

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/log"

	"github.com/hylla/itemflow/internal/domain"
)

// IDGenerator returns unique identifiers for new entities.
type IDGenerator func() string

// Clock returns the current time.
type Clock func() time.Time

// EngineConfig holds optional collaborators and retry settings for Engine.
type EngineConfig struct {
	CommitRetries int
	RetryBackoff  time.Duration
	Dispatcher    Dispatcher
	LiveUpdates   LiveUpdateSink
	Notifications NotificationSink
}

// Engine validates and applies every item and comment mutation.
type Engine struct {
	items         ItemRepository
	comments      CommentRepository
	policy        PolicyGateway
	idGen         IDGenerator
	clock         Clock
	dispatcher    Dispatcher
	live          LiveUpdateSink
	notifier      *NotificationCoordinator
	commitRetries int
	retryBackoff  time.Duration
	itemLocks     keyLocks
}

// NewEngine constructs an engine over the given ports.
func NewEngine(items ItemRepository, comments CommentRepository, policy PolicyGateway, idGen IDGenerator, clock Clock, cfg EngineConfig) *Engine {
	if idGen == nil {
		idGen = func() string { return "" }
	}
	if clock == nil {
		clock = time.Now
	}
	if cfg.Dispatcher == nil {
		cfg.Dispatcher = InlineDispatcher{MaxAttempts: 1}
	}
	if cfg.CommitRetries < 0 {
		cfg.CommitRetries = 0
	}
	return &Engine{
		items:         items,
		comments:      comments,
		policy:        policy,
		idGen:         idGen,
		clock:         clock,
		dispatcher:    cfg.Dispatcher,
		live:          cfg.LiveUpdates,
		notifier:      NewNotificationCoordinator(policy, cfg.Notifications, idGen, clock),
		commitRetries: cfg.CommitRetries,
		retryBackoff:  cfg.RetryBackoff,
	}
}

// CreateItem creates a top-level item on boardID.
func (e *Engine) CreateItem(ctx context.Context, title, status, creatorID, boardID string) (Outcome[domain.Item], error) {
	if strings.TrimSpace(title) == "" {
		return Fail[domain.Item](FailureInvalidTitle, "item title must not be empty"), nil
	}
	if f, err := e.checkStatus(ctx, boardID, status); f != nil || err != nil {
		return failOrErr[domain.Item](f, err)
	}
	item, err := domain.NewItem(domain.ItemInput{
		ID:        e.idGen(),
		BoardID:   boardID,
		Title:     title,
		Status:    status,
		CreatorID: creatorID,
	}, e.clock())
	if err != nil {
		return failOrErr[domain.Item](domainFailure(err))
	}
	ctx = withDefaultActor(ctx, item.CreatorID)
	saved, err := e.commitItem(ctx, "create item", item.ID, func(ctx context.Context) error {
		return e.items.CreateItem(ctx, item)
	}, e.publishCreated)
	if err != nil {
		return Outcome[domain.Item]{}, err
	}
	return Succeed(saved), nil
}

// CreateSubItem creates a child of parentID. The child inherits the parent's
// board and status.
func (e *Engine) CreateSubItem(ctx context.Context, title, userID, boardID, parentID string) (Outcome[domain.Item], error) {
	parent, f, err := e.loadScoped(ctx, parentID, boardID, "parent item")
	if f != nil || err != nil {
		return failOrErr[domain.Item](f, err)
	}
	if strings.TrimSpace(title) == "" {
		return Fail[domain.Item](FailureInvalidTitle, "item title must not be empty"), nil
	}
	child, err := domain.NewChildItem(e.idGen(), title, userID, parent, e.clock())
	if err != nil {
		return failOrErr[domain.Item](domainFailure(err))
	}
	ctx = withDefaultActor(ctx, child.CreatorID)
	saved, err := e.commitItem(ctx, "create sub-item", child.ID, func(ctx context.Context) error {
		return e.items.CreateItem(ctx, child)
	}, e.publishCreated)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return Fail[domain.Item](FailureNotFound, "parent item %q does not exist", parentID), nil
		}
		return Outcome[domain.Item]{}, err
	}
	return Succeed(saved), nil
}

// DeleteItem removes an item, its subtree, and their comments. It returns the
// item as it was before deletion.
func (e *Engine) DeleteItem(ctx context.Context, itemID string) (Outcome[domain.Item], error) {
	item, f, err := e.load(ctx, itemID, "item")
	if f != nil || err != nil {
		return failOrErr[domain.Item](f, err)
	}
	unlock := e.itemLocks.Lock(item.ID)
	defer unlock()
	if err := e.commit(ctx, "delete item", func(ctx context.Context) error {
		return e.items.DeleteItem(ctx, item.ID)
	}); err != nil {
		if errors.Is(err, ErrNotFound) {
			return Fail[domain.Item](FailureNotFound, "item %q does not exist", itemID), nil
		}
		return Outcome[domain.Item]{}, err
	}
	e.publishDeleted(ctx, item)
	return Succeed(item), nil
}

// ChangeStatus moves an item to a status from its board vocabulary.
func (e *Engine) ChangeStatus(ctx context.Context, itemID, status, boardID string) (Outcome[domain.Item], error) {
	item, f, err := e.loadScoped(ctx, itemID, boardID, "item")
	if f != nil || err != nil {
		return failOrErr[domain.Item](f, err)
	}
	if f, err := e.checkStatus(ctx, item.BoardID, status); f != nil || err != nil {
		return failOrErr[domain.Item](f, err)
	}
	if err := item.SetStatus(status, e.clock()); err != nil {
		return failOrErr[domain.Item](domainFailure(err))
	}
	actorID := ""
	if actor, ok := ActorFromContext(ctx); ok {
		actorID = actor.ID
	}
	return e.saveWith(ctx, item, func(ctx context.Context, saved domain.Item) {
		e.notifyStatusChanged(ctx, saved, actorID)
	}, domain.ItemFieldStatus)
}

// ChangeType sets the item type. An empty type clears it.
func (e *Engine) ChangeType(ctx context.Context, itemID, itemType, boardID string) (Outcome[domain.Item], error) {
	item, f, err := e.loadScoped(ctx, itemID, boardID, "item")
	if f != nil || err != nil {
		return failOrErr[domain.Item](f, err)
	}
	itemType = strings.TrimSpace(itemType)
	if itemType != "" {
		ok, err := e.policy.IsValidType(ctx, item.BoardID, itemType)
		if err != nil {
			return Outcome[domain.Item]{}, fmt.Errorf("check type %q: %w", itemType, err)
		}
		if !ok {
			return Fail[domain.Item](FailureInvalidValue, "type %q is not valid for board %q", itemType, item.BoardID), nil
		}
	}
	item.SetType(itemType, e.clock())
	return e.save(ctx, item, domain.ItemFieldType)
}

// ChangeDescription replaces the item description.
func (e *Engine) ChangeDescription(ctx context.Context, itemID, description, boardID string) (Outcome[domain.Item], error) {
	item, f, err := e.loadScoped(ctx, itemID, boardID, "item")
	if f != nil || err != nil {
		return failOrErr[domain.Item](f, err)
	}
	item.SetDescription(description, e.clock())
	return e.save(ctx, item, domain.ItemFieldDescription)
}

// ChangeAssignedUser assigns the item to a board member. A blank user id
// unassigns the item.
func (e *Engine) ChangeAssignedUser(ctx context.Context, itemID, userID, boardID string) (Outcome[domain.Item], error) {
	item, f, err := e.loadScoped(ctx, itemID, boardID, "item")
	if f != nil || err != nil {
		return failOrErr[domain.Item](f, err)
	}
	userID = strings.TrimSpace(userID)
	if userID != "" {
		ok, err := e.policy.IsMember(ctx, item.BoardID, userID)
		if err != nil {
			return Outcome[domain.Item]{}, fmt.Errorf("check membership of %q: %w", userID, err)
		}
		if !ok {
			return Fail[domain.Item](FailureNotAMember, "user %q is not a member of board %q", userID, item.BoardID), nil
		}
	}
	item.AssignTo(userID, e.clock())
	return e.save(ctx, item, domain.ItemFieldAssignee)
}

// UpdateImportance sets the item importance level.
func (e *Engine) UpdateImportance(ctx context.Context, boardID, userID, itemID, importance string) (Outcome[domain.Item], error) {
	ctx = withDefaultActor(ctx, userID)
	item, f, err := e.loadScoped(ctx, itemID, boardID, "item")
	if f != nil || err != nil {
		return failOrErr[domain.Item](f, err)
	}
	level, err := domain.ParseImportance(importance)
	if err != nil {
		return Fail[domain.Item](FailureInvalidValue, "importance %q is not one of %v", importance, domain.Importances()), nil
	}
	if err := item.SetImportance(level, e.clock()); err != nil {
		return failOrErr[domain.Item](domainFailure(err))
	}
	return e.save(ctx, item, domain.ItemFieldImportance)
}

// ChangeDueDate sets or clears the item due date.
func (e *Engine) ChangeDueDate(ctx context.Context, itemID string, due *time.Time, boardID string) (Outcome[domain.Item], error) {
	item, f, err := e.loadScoped(ctx, itemID, boardID, "item")
	if f != nil || err != nil {
		return failOrErr[domain.Item](f, err)
	}
	item.SetDueDate(due, e.clock())
	return e.save(ctx, item, domain.ItemFieldDueDate)
}

// AddComment attaches a comment to an item and returns the updated item.
func (e *Engine) AddComment(ctx context.Context, itemID, boardID, userID, text string) (Outcome[domain.Item], error) {
	ctx = withDefaultActor(ctx, userID)
	item, f, err := e.loadScoped(ctx, itemID, boardID, "item")
	if f != nil || err != nil {
		return failOrErr[domain.Item](f, err)
	}
	if strings.TrimSpace(text) == "" {
		return Fail[domain.Item](FailureInvalidValue, "comment text must not be empty"), nil
	}
	comment, err := domain.NewComment(domain.CommentInput{
		ID:       e.idGen(),
		ItemID:   item.ID,
		AuthorID: userID,
		Text:     text,
	}, e.clock())
	if err != nil {
		return failOrErr[domain.Item](domainFailure(err))
	}
	saved, err := e.commitItem(ctx, "create comment", item.ID, func(ctx context.Context) error {
		return e.comments.CreateComment(ctx, comment)
	}, func(ctx context.Context, saved domain.Item) {
		e.publishUpdated(ctx, saved)
		e.notifyCommentAdded(ctx, saved, comment)
	})
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return Fail[domain.Item](FailureNotFound, "item %q does not exist", itemID), nil
		}
		return Outcome[domain.Item]{}, err
	}
	return Succeed(saved), nil
}

// DeleteComment removes a comment and returns its owning item.
func (e *Engine) DeleteComment(ctx context.Context, boardID, userID, commentID string) (Outcome[domain.Item], error) {
	ctx = withDefaultActor(ctx, userID)
	comment, err := e.comments.GetComment(ctx, commentID)
	if errors.Is(err, ErrNotFound) {
		return Fail[domain.Item](FailureNotFound, "comment %q does not exist", commentID), nil
	}
	if err != nil {
		return Outcome[domain.Item]{}, fmt.Errorf("get comment %q: %w", commentID, err)
	}
	item, f, err := e.loadScoped(ctx, comment.ItemID, boardID, "item")
	if f != nil || err != nil {
		return failOrErr[domain.Item](f, err)
	}
	saved, err := e.commitItem(ctx, "delete comment", item.ID, func(ctx context.Context) error {
		return e.comments.DeleteComment(ctx, comment.ID)
	}, e.publishUpdated)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return Fail[domain.Item](FailureNotFound, "comment %q does not exist", commentID), nil
		}
		return Outcome[domain.Item]{}, err
	}
	return Succeed(saved), nil
}

// GetItem returns one item with its comments.
func (e *Engine) GetItem(ctx context.Context, itemID string) (Outcome[domain.Item], error) {
	item, f, err := e.load(ctx, itemID, "item")
	if f != nil || err != nil {
		return failOrErr[domain.Item](f, err)
	}
	return Succeed(item), nil
}

// GetAll returns every item across all boards.
func (e *Engine) GetAll(ctx context.Context) (Outcome[[]domain.Item], error) {
	items, err := e.items.ListItems(ctx)
	if err != nil {
		return Outcome[[]domain.Item]{}, fmt.Errorf("list items: %w", err)
	}
	return Succeed(items), nil
}

// GetBoardItems returns every item of boardID.
func (e *Engine) GetBoardItems(ctx context.Context, boardID string) (Outcome[[]domain.Item], error) {
	items, err := e.items.ListBoardItems(ctx, strings.TrimSpace(boardID))
	if err != nil {
		return Outcome[[]domain.Item]{}, fmt.Errorf("list board %q items: %w", boardID, err)
	}
	return Succeed(items), nil
}

// GetChildItems returns the direct children of parentID.
func (e *Engine) GetChildItems(ctx context.Context, parentID string) (Outcome[[]domain.Item], error) {
	parent, f, err := e.load(ctx, parentID, "parent item")
	if f != nil || err != nil {
		return failOrErr[[]domain.Item](f, err)
	}
	items, err := e.items.ListChildItems(ctx, parent.ID)
	if err != nil {
		return Outcome[[]domain.Item]{}, fmt.Errorf("list children of %q: %w", parentID, err)
	}
	return Succeed(items), nil
}

// FilterItems returns board items matching every recognized constraint.
func (e *Engine) FilterItems(ctx context.Context, filter map[string]string, boardID string) (Outcome[[]domain.Item], error) {
	pred := BuildItemPredicate(filter, boardID)
	items, err := e.items.FindMatching(ctx, pred)
	if err != nil {
		return Outcome[[]domain.Item]{}, fmt.Errorf("filter board %q items: %w", boardID, err)
	}
	return Succeed(items), nil
}

// ListBoardActivity returns the newest change events for boardID.
func (e *Engine) ListBoardActivity(ctx context.Context, boardID string, limit int) (Outcome[[]domain.ChangeEvent], error) {
	if limit <= 0 {
		limit = 50
	}
	events, err := e.items.ListBoardChangeEvents(ctx, strings.TrimSpace(boardID), limit)
	if err != nil {
		return Outcome[[]domain.ChangeEvent]{}, fmt.Errorf("list board %q activity: %w", boardID, err)
	}
	return Succeed(events), nil
}

// load fetches an item and converts a missing row into a not-found failure.
func (e *Engine) load(ctx context.Context, itemID, noun string) (domain.Item, *Failure, error) {
	itemID = strings.TrimSpace(itemID)
	item, err := e.items.GetItem(ctx, itemID)
	if errors.Is(err, ErrNotFound) {
		return domain.Item{}, &Failure{Kind: FailureNotFound, Message: fmt.Sprintf("%s %q does not exist", noun, itemID)}, nil
	}
	if err != nil {
		return domain.Item{}, nil, fmt.Errorf("get %s %q: %w", noun, itemID, err)
	}
	return item, nil, nil
}

// loadScoped fetches an item and rejects it when it belongs to another board.
func (e *Engine) loadScoped(ctx context.Context, itemID, boardID, noun string) (domain.Item, *Failure, error) {
	item, f, err := e.load(ctx, itemID, noun)
	if f != nil || err != nil {
		return domain.Item{}, f, err
	}
	if !item.BelongsTo(boardID) {
		return domain.Item{}, &Failure{
			Kind:    FailureScopeViolation,
			Message: fmt.Sprintf("%s %q does not belong to board %q", noun, item.ID, strings.TrimSpace(boardID)),
		}, nil
	}
	return item, nil, nil
}

// checkStatus validates status against the board vocabulary.
func (e *Engine) checkStatus(ctx context.Context, boardID, status string) (*Failure, error) {
	status = strings.TrimSpace(status)
	if status == "" {
		return &Failure{Kind: FailureInvalidValue, Message: "status must not be empty"}, nil
	}
	ok, err := e.policy.IsValidStatus(ctx, strings.TrimSpace(boardID), status)
	if err != nil {
		return nil, fmt.Errorf("check status %q: %w", status, err)
	}
	if !ok {
		return &Failure{Kind: FailureInvalidValue, Message: fmt.Sprintf("status %q is not valid for board %q", status, boardID)}, nil
	}
	return nil, nil
}

// save persists the named fields and publishes the update.
func (e *Engine) save(ctx context.Context, item domain.Item, fields ...domain.ItemField) (Outcome[domain.Item], error) {
	return e.saveWith(ctx, item, nil, fields...)
}

// saveWith is save with extra side effects scheduled after the live update.
func (e *Engine) saveWith(ctx context.Context, item domain.Item, extra func(context.Context, domain.Item), fields ...domain.ItemField) (Outcome[domain.Item], error) {
	saved, err := e.commitItem(ctx, "update item", item.ID, func(ctx context.Context) error {
		return e.items.UpdateItem(ctx, item, fields...)
	}, func(ctx context.Context, saved domain.Item) {
		e.publishUpdated(ctx, saved)
		if extra != nil {
			extra(ctx, saved)
		}
	})
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return Fail[domain.Item](FailureNotFound, "item %q does not exist", item.ID), nil
		}
		return Outcome[domain.Item]{}, err
	}
	return Succeed(saved), nil
}

// commitItem runs write under the item lock, rereads the persisted item, and
// schedules its side effects before releasing the lock, so jobs for one item
// enqueue in commit order.
func (e *Engine) commitItem(ctx context.Context, op, itemID string, write func(context.Context) error, publish func(context.Context, domain.Item)) (domain.Item, error) {
	unlock := e.itemLocks.Lock(itemID)
	defer unlock()
	if err := e.commit(ctx, op, write); err != nil {
		return domain.Item{}, err
	}
	saved, err := e.items.GetItem(ctx, itemID)
	if err != nil {
		return domain.Item{}, fmt.Errorf("%s: reread item %q: %w", op, itemID, err)
	}
	publish(ctx, saved)
	return saved, nil
}

// commit runs fn, retrying transient storage failures with backoff.
func (e *Engine) commit(ctx context.Context, op string, fn func(context.Context) error) error {
	delay := e.retryBackoff
	for attempt := 0; ; attempt++ {
		err := fn(ctx)
		if err == nil {
			return nil
		}
		if !errors.Is(err, ErrTransient) || attempt >= e.commitRetries {
			return fmt.Errorf("%s: %w", op, err)
		}
		log.Warn("transient commit failure, retrying", "op", op, "attempt", attempt+1, "err", err)
		select {
		case <-ctx.Done():
			return fmt.Errorf("%s: %w", op, errors.Join(ctx.Err(), err))
		case <-time.After(delay):
		}
		delay *= 2
	}
}

// publishCreated schedules the created live update for item.
func (e *Engine) publishCreated(ctx context.Context, item domain.Item) {
	if e.live == nil {
		return
	}
	e.dispatch(ctx, item.ID, Job{Name: "live.item_created", Run: func(ctx context.Context) error {
		return e.live.ItemCreated(ctx, item, item.BoardID)
	}})
}

// publishUpdated schedules the updated live update for item.
func (e *Engine) publishUpdated(ctx context.Context, item domain.Item) {
	if e.live == nil {
		return
	}
	e.dispatch(ctx, item.ID, Job{Name: "live.item_updated", Run: func(ctx context.Context) error {
		return e.live.ItemUpdated(ctx, item, item.BoardID)
	}})
}

// publishDeleted schedules the deleted live update for item.
func (e *Engine) publishDeleted(ctx context.Context, item domain.Item) {
	if e.live == nil {
		return
	}
	e.dispatch(ctx, item.ID, Job{Name: "live.item_deleted", Run: func(ctx context.Context) error {
		return e.live.ItemDeleted(ctx, item, item.BoardID)
	}})
}

// notifyStatusChanged schedules the status-changed notification for item.
func (e *Engine) notifyStatusChanged(ctx context.Context, item domain.Item, actorID string) {
	e.scheduleNotification(ctx, item, "notify.status_changed", func(ctx context.Context) (domain.Notification, error) {
		return e.notifier.StatusChanged(ctx, item, actorID)
	})
}

// notifyCommentAdded schedules the comment-added notification for item.
func (e *Engine) notifyCommentAdded(ctx context.Context, item domain.Item, comment domain.Comment) {
	e.scheduleNotification(ctx, item, "notify.comment_added", func(ctx context.Context) (domain.Notification, error) {
		return e.notifier.CommentAdded(ctx, item, comment)
	})
}

// scheduleNotification builds the notification once and retries delivery of
// that same value, so redeliveries share one delivery key.
func (e *Engine) scheduleNotification(ctx context.Context, item domain.Item, name string, build func(context.Context) (domain.Notification, error)) {
	if e.notifier.sink == nil {
		return
	}
	var (
		built bool
		n     domain.Notification
	)
	e.dispatch(ctx, item.ID, Job{Name: name, Run: func(ctx context.Context) error {
		if !built {
			var err error
			n, err = build(ctx)
			if errors.Is(err, domain.ErrNoRecipients) {
				return nil
			}
			if err != nil {
				return err
			}
			built = true
		}
		return e.notifier.Deliver(ctx, n)
	}})
}

// dispatch hands job to the dispatcher and logs refusals.
func (e *Engine) dispatch(ctx context.Context, key string, job Job) {
	if err := e.dispatcher.Dispatch(ctx, key, job); err != nil {
		log.Error("fan-out dispatch refused", "job", job.Name, "key", key, "err", err)
	}
}

// withDefaultActor attributes ctx to userID unless an actor is already set.
func withDefaultActor(ctx context.Context, userID string) context.Context {
	if _, ok := ActorFromContext(ctx); ok || strings.TrimSpace(userID) == "" {
		return ctx
	}
	return WithActor(ctx, Actor{ID: userID, Type: domain.ActorTypeUser})
}

// domainFailure maps domain validation errors onto failure kinds. Errors
// that are not validation errors are returned unchanged.
func domainFailure(err error) (*Failure, error) {
	switch {
	case errors.Is(err, domain.ErrInvalidTitle):
		return &Failure{Kind: FailureInvalidTitle, Message: err.Error()}, nil
	case errors.Is(err, domain.ErrInvalidID),
		errors.Is(err, domain.ErrInvalidBoardID),
		errors.Is(err, domain.ErrInvalidParentID),
		errors.Is(err, domain.ErrInvalidUserID),
		errors.Is(err, domain.ErrInvalidStatus),
		errors.Is(err, domain.ErrInvalidImportance),
		errors.Is(err, domain.ErrInvalidCommentText):
		return &Failure{Kind: FailureInvalidValue, Message: err.Error()}, nil
	default:
		return nil, err
	}
}

// failOrErr turns a failure or an infrastructure error into return values.
func failOrErr[T any](f *Failure, err error) (Outcome[T], error) {
	if err != nil {
		return Outcome[T]{}, err
	}
	return FailWith[T](*f), nil
}
