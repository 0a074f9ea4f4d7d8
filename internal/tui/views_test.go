package tui

import (
	"strings"
	"testing"
	"time"

	"github.com/hylla/itemflow/internal/domain"
)

func sampleItem() domain.Item {
	due := time.Date(2026, 3, 14, 0, 0, 0, 0, time.UTC)
	now := time.Date(2026, 3, 1, 9, 30, 0, 0, time.UTC)
	return domain.Item{
		ID:          "1234567890abcdef",
		BoardID:     "B1",
		Title:       "Fix login",
		Status:      "todo",
		Type:        "bug",
		Importance:  domain.Importance("high"),
		Description: "Steps:\n\n1. open the page\n2. submit",
		DueDate:     &due,
		CreatorID:   "u1",
		AssigneeID:  "u2",
		Comments: []domain.Comment{
			{ID: "c1", ItemID: "1234567890abcdef", AuthorID: "u2", Text: "on it", CreatedAt: now},
		},
		CreatedAt: now,
		UpdatedAt: now,
	}
}

func TestItemTableRendersRows(t *testing.T) {
	child := sampleItem()
	child.ID = "fedcba0987654321"
	child.ParentID = "1234567890abcdef"
	child.Title = "Write regression test"
	child.Type = ""
	child.DueDate = nil

	out := ItemTable([]domain.Item{sampleItem(), child})
	for _, want := range []string{"TITLE", "IMPORTANCE", "Fix login", "Write regression test", "12345678", "fedcba09", "2026-03-14"} {
		if !strings.Contains(out, want) {
			t.Fatalf("expected table to contain %q, got\n%s", want, out)
		}
	}
	if strings.Contains(out, "1234567890abcdef") {
		t.Fatalf("expected ids to be shortened, got\n%s", out)
	}
}

func TestItemTableEmpty(t *testing.T) {
	out := ItemTable(nil)
	if !strings.Contains(out, "STATUS") {
		t.Fatalf("expected headers for empty table, got\n%s", out)
	}
}

func TestItemDetailIncludesMarkdownAndComments(t *testing.T) {
	out := ItemDetail(sampleItem(), NewMarkdownRenderer("notty"), 80)
	for _, want := range []string{"Fix login", "B1", "open the page", "Comments (1)", "u2: on it", "2026-03-14"} {
		if !strings.Contains(out, want) {
			t.Fatalf("expected detail to contain %q, got\n%s", want, out)
		}
	}
}

func TestItemDetailWithoutDescription(t *testing.T) {
	item := sampleItem()
	item.Description = ""
	item.Comments = nil
	out := ItemDetail(item, nil, 80)
	if strings.Contains(out, "Comments") {
		t.Fatalf("expected no comment section, got\n%s", out)
	}
}

func TestMarkdownRendererBlankInput(t *testing.T) {
	r := NewMarkdownRenderer("notty")
	if got := r.Render("   ", 40); got != "" {
		t.Fatalf("expected empty render, got %q", got)
	}
	got := r.Render("**bold** text", 10)
	if !strings.Contains(got, "bold") {
		t.Fatalf("expected rendered markdown, got %q", got)
	}
	if r.width != 24 {
		t.Fatalf("expected minimum wrap width 24, got %d", r.width)
	}
}

func TestShortID(t *testing.T) {
	cases := map[string]string{
		"":                 "",
		"abc":              "abc",
		"1234567890abcdef": "12345678",
	}
	for in, want := range cases {
		if got := ShortID(in); got != want {
			t.Fatalf("ShortID(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestBoardTableAndDetail(t *testing.T) {
	boards := []domain.Board{
		{ID: "B1", Name: "Platform", Statuses: []string{"todo", "done"}, Types: []string{"bug"}, Members: []string{"u1", "u2"}},
		{ID: "B2", Name: "Docs", Statuses: []string{"draft"}},
	}
	out := BoardTable(boards)
	for _, want := range []string{"STATUSES", "MEMBERS", "Platform", "todo, done", "Docs", "draft"} {
		if !strings.Contains(out, want) {
			t.Fatalf("expected board table to contain %q, got\n%s", want, out)
		}
	}

	detail := BoardDetail(boards[0])
	for _, want := range []string{"Platform", "B1", "u1, u2", "bug"} {
		if !strings.Contains(detail, want) {
			t.Fatalf("expected board detail to contain %q, got\n%s", want, detail)
		}
	}
	if !strings.Contains(BoardDetail(boards[1]), "-") {
		t.Fatal("expected placeholder for empty members")
	}
}
