// Package tui renders boards and items for terminal output.
package tui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"

	"github.com/hylla/itemflow/internal/domain"
)

var (
	accent      = lipgloss.Color("62")
	muted       = lipgloss.Color("241")
	headerStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("252")).Padding(0, 1)
	cellStyle   = lipgloss.NewStyle().Padding(0, 1)
	dimStyle    = cellStyle.Foreground(muted)
	titleStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("252"))
	labelStyle  = lipgloss.NewStyle().Foreground(muted).Width(12)
)

// itemColumns are the headers of ItemTable.
var itemColumns = []string{"ID", "TITLE", "STATUS", "TYPE", "IMPORTANCE", "ASSIGNEE", "DUE", "PARENT"}

// ItemTable renders items as a bordered table, one row per item.
func ItemTable(items []domain.Item) string {
	rows := make([][]string, 0, len(items))
	for _, item := range items {
		rows = append(rows, []string{
			ShortID(item.ID),
			item.Title,
			item.Status,
			orDash(item.Type),
			orDash(string(item.Importance)),
			orDash(item.AssigneeID),
			formatDue(item.DueDate),
			orDash(ShortID(item.ParentID)),
		})
	}

	t := table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(lipgloss.NewStyle().Foreground(accent)).
		StyleFunc(func(row, col int) lipgloss.Style {
			switch {
			case row == table.HeaderRow:
				return headerStyle
			case col == 0 || col == len(itemColumns)-1:
				return dimStyle
			default:
				return cellStyle
			}
		}).
		Headers(itemColumns...).
		Rows(rows...)
	return t.String()
}

// boardColumns are the headers of BoardTable.
var boardColumns = []string{"ID", "NAME", "STATUSES", "TYPES", "MEMBERS"}

// BoardTable renders boards with their vocabularies and member counts.
func BoardTable(boards []domain.Board) string {
	rows := make([][]string, 0, len(boards))
	for _, board := range boards {
		rows = append(rows, []string{
			board.ID,
			board.Name,
			orDash(strings.Join(board.Statuses, ", ")),
			orDash(strings.Join(board.Types, ", ")),
			fmt.Sprintf("%d", len(board.Members)),
		})
	}
	t := table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(lipgloss.NewStyle().Foreground(accent)).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return headerStyle
			}
			if col == 0 {
				return dimStyle
			}
			return cellStyle
		}).
		Headers(boardColumns...).
		Rows(rows...)
	return t.String()
}

// BoardDetail renders one board with its full member list.
func BoardDetail(board domain.Board) string {
	var b strings.Builder
	b.WriteString(titleStyle.Render(board.Name))
	b.WriteString("\n\n")
	for _, f := range [][2]string{
		{"id", board.ID},
		{"statuses", orDash(strings.Join(board.Statuses, ", "))},
		{"types", orDash(strings.Join(board.Types, ", "))},
		{"members", orDash(strings.Join(board.Members, ", "))},
	} {
		b.WriteString(labelStyle.Render(f[0]))
		b.WriteString(f[1])
		b.WriteString("\n")
	}
	return strings.TrimRight(b.String(), "\n")
}

// ItemDetail renders one item with its description as markdown and its comments in order.
func ItemDetail(item domain.Item, md *MarkdownRenderer, width int) string {
	var b strings.Builder
	b.WriteString(titleStyle.Render(item.Title))
	b.WriteString("\n\n")

	fields := [][2]string{
		{"id", item.ID},
		{"board", item.BoardID},
		{"parent", orDash(item.ParentID)},
		{"status", item.Status},
		{"type", orDash(item.Type)},
		{"importance", orDash(string(item.Importance))},
		{"assignee", orDash(item.AssigneeID)},
		{"creator", item.CreatorID},
		{"due", formatDue(item.DueDate)},
		{"updated", item.UpdatedAt.UTC().Format(time.RFC3339)},
	}
	for _, f := range fields {
		b.WriteString(labelStyle.Render(f[0]))
		b.WriteString(f[1])
		b.WriteString("\n")
	}

	if desc := strings.TrimSpace(item.Description); desc != "" {
		if md == nil {
			md = NewMarkdownRenderer("")
		}
		b.WriteString("\n")
		b.WriteString(md.Render(desc, width))
		b.WriteString("\n")
	}

	if len(item.Comments) > 0 {
		b.WriteString("\n")
		b.WriteString(titleStyle.Render(fmt.Sprintf("Comments (%d)", len(item.Comments))))
		b.WriteString("\n")
		for _, c := range item.Comments {
			stamp := lipgloss.NewStyle().Foreground(muted).Render(c.CreatedAt.UTC().Format(time.RFC3339))
			fmt.Fprintf(&b, "%s %s: %s\n", stamp, c.AuthorID, c.Text)
		}
	}
	return strings.TrimRight(b.String(), "\n")
}

// ShortID truncates ids for compact listings.
func ShortID(id string) string {
	id = strings.TrimSpace(id)
	if len(id) <= 8 {
		return id
	}
	return id[:8]
}

func formatDue(due *time.Time) string {
	if due == nil {
		return "-"
	}
	return due.UTC().Format(time.DateOnly)
}

func orDash(v string) string {
	if strings.TrimSpace(v) == "" {
		return "-"
	}
	return v
}
