package app

import (
	"context"
	"fmt"
	"slices"
	"sort"
	"sync"

	"github.com/hylla/itemflow/internal/domain"
)

// fakeStore implements ItemRepository and CommentRepository in memory.
type fakeStore struct {
	mu       sync.Mutex
	items    map[string]domain.Item
	comments map[string]domain.Comment
	events   []domain.ChangeEvent

	transientFailures int
	updateCalls       int
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		items:    map[string]domain.Item{},
		comments: map[string]domain.Comment{},
	}
}

func (f *fakeStore) takeTransient() error {
	if f.transientFailures > 0 {
		f.transientFailures--
		return fmt.Errorf("database is locked: %w", ErrTransient)
	}
	return nil
}

func (f *fakeStore) record(ctx context.Context, item domain.Item, op domain.ChangeOperation) {
	actor, _ := ActorFromContext(ctx)
	f.events = append(f.events, domain.ChangeEvent{
		ID:        int64(len(f.events) + 1),
		BoardID:   item.BoardID,
		ItemID:    item.ID,
		Operation: op,
		ActorID:   actor.ID,
		ActorType: actor.Type,
	})
}

func (f *fakeStore) CreateItem(ctx context.Context, item domain.Item) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.takeTransient(); err != nil {
		return err
	}
	if item.ParentID != "" {
		if _, ok := f.items[item.ParentID]; !ok {
			return ErrNotFound
		}
	}
	item.Comments = nil
	f.items[item.ID] = item
	f.record(ctx, item, domain.ChangeOperationCreate)
	return nil
}

func (f *fakeStore) UpdateItem(ctx context.Context, item domain.Item, fields ...domain.ItemField) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.updateCalls++
	if err := f.takeTransient(); err != nil {
		return err
	}
	current, ok := f.items[item.ID]
	if !ok {
		return ErrNotFound
	}
	for _, field := range fields {
		switch field {
		case domain.ItemFieldStatus:
			current.Status = item.Status
		case domain.ItemFieldType:
			current.Type = item.Type
		case domain.ItemFieldDescription:
			current.Description = item.Description
		case domain.ItemFieldAssignee:
			current.AssigneeID = item.AssigneeID
		case domain.ItemFieldImportance:
			current.Importance = item.Importance
		case domain.ItemFieldDueDate:
			current.DueDate = item.DueDate
		}
	}
	current.UpdatedAt = item.UpdatedAt
	f.items[item.ID] = current
	f.record(ctx, current, domain.ChangeOperationUpdate)
	return nil
}

func (f *fakeStore) GetItem(_ context.Context, id string) (domain.Item, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	item, ok := f.items[id]
	if !ok {
		return domain.Item{}, ErrNotFound
	}
	return f.withComments(item), nil
}

func (f *fakeStore) DeleteItem(ctx context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.takeTransient(); err != nil {
		return err
	}
	root, ok := f.items[id]
	if !ok {
		return ErrNotFound
	}
	doomed := []string{id}
	for i := 0; i < len(doomed); i++ {
		for _, candidate := range f.items {
			if candidate.ParentID == doomed[i] {
				doomed = append(doomed, candidate.ID)
			}
		}
	}
	for _, itemID := range doomed {
		delete(f.items, itemID)
		for cid, c := range f.comments {
			if c.ItemID == itemID {
				delete(f.comments, cid)
			}
		}
	}
	f.record(ctx, root, domain.ChangeOperationDelete)
	return nil
}

func (f *fakeStore) ListItems(_ context.Context) ([]domain.Item, error) {
	return f.collect(func(domain.Item) bool { return true }), nil
}

func (f *fakeStore) ListBoardItems(_ context.Context, boardID string) ([]domain.Item, error) {
	return f.collect(func(item domain.Item) bool { return item.BoardID == boardID }), nil
}

func (f *fakeStore) ListChildItems(_ context.Context, parentID string) ([]domain.Item, error) {
	return f.collect(func(item domain.Item) bool { return item.ParentID == parentID }), nil
}

func (f *fakeStore) FindMatching(_ context.Context, pred domain.ItemPredicate) ([]domain.Item, error) {
	return f.collect(pred.Matches), nil
}

func (f *fakeStore) ListBoardChangeEvents(_ context.Context, boardID string, limit int) ([]domain.ChangeEvent, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := []domain.ChangeEvent{}
	for i := len(f.events) - 1; i >= 0 && len(out) < limit; i-- {
		if f.events[i].BoardID == boardID {
			out = append(out, f.events[i])
		}
	}
	return out, nil
}

func (f *fakeStore) CreateComment(_ context.Context, c domain.Comment) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.takeTransient(); err != nil {
		return err
	}
	if _, ok := f.items[c.ItemID]; !ok {
		return ErrNotFound
	}
	f.comments[c.ID] = c
	return nil
}

func (f *fakeStore) GetComment(_ context.Context, id string) (domain.Comment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.comments[id]
	if !ok {
		return domain.Comment{}, ErrNotFound
	}
	return c, nil
}

func (f *fakeStore) DeleteComment(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.comments[id]; !ok {
		return ErrNotFound
	}
	delete(f.comments, id)
	return nil
}

func (f *fakeStore) collect(keep func(domain.Item) bool) []domain.Item {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := []domain.Item{}
	for _, item := range f.items {
		if keep(item) {
			out = append(out, f.withComments(item))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (f *fakeStore) withComments(item domain.Item) domain.Item {
	item.Comments = f.commentsOf(item.ID)
	return item
}

func (f *fakeStore) commentsOf(itemID string) []domain.Comment {
	out := []domain.Comment{}
	for _, c := range f.comments {
		if c.ItemID == itemID {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// fakePolicy answers policy questions from in-memory boards.
type fakePolicy struct {
	boards map[string]domain.Board
	err    error
}

func newFakePolicy(boards ...domain.Board) *fakePolicy {
	p := &fakePolicy{boards: map[string]domain.Board{}}
	for _, b := range boards {
		p.boards[b.ID] = b
	}
	return p
}

func (p *fakePolicy) IsValidStatus(_ context.Context, boardID, status string) (bool, error) {
	return p.boards[boardID].HasStatus(status), p.err
}

func (p *fakePolicy) IsValidType(_ context.Context, boardID, itemType string) (bool, error) {
	return p.boards[boardID].HasType(itemType), p.err
}

func (p *fakePolicy) IsMember(_ context.Context, boardID, userID string) (bool, error) {
	return p.boards[boardID].HasMember(userID), p.err
}

func (p *fakePolicy) MembersOf(_ context.Context, boardID string) ([]string, error) {
	return slices.Clone(p.boards[boardID].Members), p.err
}

// liveEvent records one live-update call.
type liveEvent struct {
	kind    string
	itemID  string
	boardID string
	item    domain.Item
}

// recordingLive captures live-update calls.
type recordingLive struct {
	mu     sync.Mutex
	events []liveEvent
	err    error
}

func (r *recordingLive) add(kind string, item domain.Item, boardID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, liveEvent{kind: kind, itemID: item.ID, boardID: boardID, item: item})
	return r.err
}

func (r *recordingLive) ItemCreated(_ context.Context, item domain.Item, boardID string) error {
	return r.add("created", item, boardID)
}

func (r *recordingLive) ItemUpdated(_ context.Context, item domain.Item, boardID string) error {
	return r.add("updated", item, boardID)
}

func (r *recordingLive) ItemDeleted(_ context.Context, item domain.Item, boardID string) error {
	return r.add("deleted", item, boardID)
}

func (r *recordingLive) snapshot() []liveEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	return slices.Clone(r.events)
}

// recordingSink captures delivered notifications.
type recordingSink struct {
	mu    sync.Mutex
	sent  []domain.Notification
	fails int
}

func (r *recordingSink) Send(_ context.Context, n domain.Notification) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.fails > 0 {
		r.fails--
		return fmt.Errorf("transport down")
	}
	r.sent = append(r.sent, n)
	return nil
}

func (r *recordingSink) snapshot() []domain.Notification {
	r.mu.Lock()
	defer r.mu.Unlock()
	return slices.Clone(r.sent)
}

// sequenceIDs returns deterministic ids prefixed with prefix.
func sequenceIDs(prefix string) IDGenerator {
	var (
		mu sync.Mutex
		n  int
	)
	return func() string {
		mu.Lock()
		defer mu.Unlock()
		n++
		return fmt.Sprintf("%s-%03d", prefix, n)
	}
}
