package mcpapi

import (
	"context"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/hylla/itemflow/internal/adapters/server/common"
	"github.com/hylla/itemflow/internal/app"
	"github.com/hylla/itemflow/internal/domain"
)

// registerItemTools registers create and delete tools.
func registerItemTools(srv *mcpserver.MCPServer, items common.ItemService) {
	srv.AddTool(
		mcp.NewTool(
			"itemflow.create_item",
			mcp.WithDescription("Create a top-level item on a board. The caller becomes the creator."),
			mcp.WithString("board_id", mcp.Required(), mcp.Description("Board identifier")),
			mcp.WithString("title", mcp.Required(), mcp.Description("Item title")),
			mcp.WithString("status", mcp.Required(), mcp.Description("Status from the board vocabulary")),
		),
		func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			caller, err := common.CallerID(ctx)
			if err != nil {
				return toolResultFromError(err), nil
			}
			boardID, err := req.RequireString("board_id")
			if err != nil {
				return invalidRequestToolResult(err), nil
			}
			out, err := items.CreateItem(ctx, req.GetString("title", ""), req.GetString("status", ""), caller, boardID)
			return outcomeResult("create_item", out, err)
		},
	)

	srv.AddTool(
		mcp.NewTool(
			"itemflow.create_sub_item",
			mcp.WithDescription("Create a child item under a parent. The child inherits board and status."),
			mcp.WithString("board_id", mcp.Required(), mcp.Description("Board identifier")),
			mcp.WithString("parent_id", mcp.Required(), mcp.Description("Parent item identifier")),
			mcp.WithString("title", mcp.Required(), mcp.Description("Item title")),
		),
		func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			caller, err := common.CallerID(ctx)
			if err != nil {
				return toolResultFromError(err), nil
			}
			var args struct {
				BoardID  string `json:"board_id"`
				ParentID string `json:"parent_id"`
				Title    string `json:"title"`
			}
			if err := req.BindArguments(&args); err != nil {
				return invalidRequestToolResult(err), nil
			}
			out, err := items.CreateSubItem(ctx, args.Title, caller, args.BoardID, args.ParentID)
			return outcomeResult("create_sub_item", out, err)
		},
	)

	srv.AddTool(
		mcp.NewTool(
			"itemflow.delete_item",
			mcp.WithDescription("Delete an item together with its sub-items and comments."),
			mcp.WithString("item_id", mcp.Required(), mcp.Description("Item identifier")),
		),
		func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			itemID, err := req.RequireString("item_id")
			if err != nil {
				return invalidRequestToolResult(err), nil
			}
			out, err := items.DeleteItem(ctx, itemID)
			return outcomeResult("delete_item", out, err)
		},
	)
}

// fieldTool describes one single-field mutation tool.
type fieldTool struct {
	name        string
	field       common.ItemField
	description string
	value       string
}

// fieldTools lists one tool per writable item field.
var fieldTools = []fieldTool{
	{"itemflow.change_status", common.FieldStatus, "Move an item to a status from its board vocabulary.", "New status"},
	{"itemflow.change_type", common.FieldType, "Set the item type from the board vocabulary. Empty clears it.", "New type"},
	{"itemflow.change_description", common.FieldDescription, "Replace the item description.", "Markdown description"},
	{"itemflow.change_assignee", common.FieldAssignee, "Assign the item to a board member. Empty unassigns.", "Assignee user id"},
	{"itemflow.update_importance", common.FieldImportance, "Set the item importance.", "low, medium, high, or critical"},
	{"itemflow.change_due_date", common.FieldDueDate, "Set or clear the item due date.", "YYYY-MM-DD or RFC3339; empty clears"},
}

// registerFieldTools registers every field mutation tool.
func registerFieldTools(srv *mcpserver.MCPServer, items common.ItemService) {
	for _, ft := range fieldTools {
		srv.AddTool(
			mcp.NewTool(
				ft.name,
				mcp.WithDescription(ft.description),
				mcp.WithString("board_id", mcp.Required(), mcp.Description("Board identifier")),
				mcp.WithString("item_id", mcp.Required(), mcp.Description("Item identifier")),
				mcp.WithString("value", mcp.Description(ft.value)),
			),
			func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
				caller, err := common.CallerID(ctx)
				if err != nil {
					return toolResultFromError(err), nil
				}
				var args struct {
					BoardID string `json:"board_id"`
					ItemID  string `json:"item_id"`
					Value   string `json:"value"`
				}
				if err := req.BindArguments(&args); err != nil {
					return invalidRequestToolResult(err), nil
				}
				out, err := common.ApplyField(ctx, items, ft.field, args.BoardID, args.ItemID, caller, args.Value)
				return outcomeResult(string(ft.field), out, err)
			},
		)
	}
}

// registerCommentTools registers comment add and delete tools.
func registerCommentTools(srv *mcpserver.MCPServer, items common.ItemService) {
	srv.AddTool(
		mcp.NewTool(
			"itemflow.add_comment",
			mcp.WithDescription("Comment on an item as the caller. Board members are notified."),
			mcp.WithString("board_id", mcp.Required(), mcp.Description("Board identifier")),
			mcp.WithString("item_id", mcp.Required(), mcp.Description("Item identifier")),
			mcp.WithString("text", mcp.Required(), mcp.Description("Comment text")),
		),
		func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			caller, err := common.CallerID(ctx)
			if err != nil {
				return toolResultFromError(err), nil
			}
			var args struct {
				BoardID string `json:"board_id"`
				ItemID  string `json:"item_id"`
				Text    string `json:"text"`
			}
			if err := req.BindArguments(&args); err != nil {
				return invalidRequestToolResult(err), nil
			}
			out, err := items.AddComment(ctx, args.ItemID, args.BoardID, caller, args.Text)
			return outcomeResult("add_comment", out, err)
		},
	)

	srv.AddTool(
		mcp.NewTool(
			"itemflow.delete_comment",
			mcp.WithDescription("Delete a comment and return its owning item."),
			mcp.WithString("board_id", mcp.Required(), mcp.Description("Board identifier")),
			mcp.WithString("comment_id", mcp.Required(), mcp.Description("Comment identifier")),
		),
		func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			caller, err := common.CallerID(ctx)
			if err != nil {
				return toolResultFromError(err), nil
			}
			boardID, err := req.RequireString("board_id")
			if err != nil {
				return invalidRequestToolResult(err), nil
			}
			commentID, err := req.RequireString("comment_id")
			if err != nil {
				return invalidRequestToolResult(err), nil
			}
			out, err := items.DeleteComment(ctx, boardID, caller, commentID)
			return outcomeResult("delete_comment", out, err)
		},
	)
}

// registerQueryTools registers read-only item and activity tools.
func registerQueryTools(srv *mcpserver.MCPServer, items common.ItemService) {
	srv.AddTool(
		mcp.NewTool(
			"itemflow.get_item",
			mcp.WithDescription("Return one item with its comments."),
			mcp.WithString("item_id", mcp.Required(), mcp.Description("Item identifier")),
		),
		func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			itemID, err := req.RequireString("item_id")
			if err != nil {
				return invalidRequestToolResult(err), nil
			}
			out, err := items.GetItem(ctx, itemID)
			return outcomeResult("get_item", out, err)
		},
	)

	srv.AddTool(
		mcp.NewTool(
			"itemflow.list_items",
			mcp.WithDescription("List the items of one board, or every item when board_id is omitted."),
			mcp.WithString("board_id", mcp.Description("Board identifier")),
		),
		func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			boardID := req.GetString("board_id", "")
			var (
				out app.Outcome[[]domain.Item]
				err error
			)
			if boardID == "" {
				out, err = items.GetAll(ctx)
			} else {
				out, err = items.GetBoardItems(ctx, boardID)
			}
			return outcomeResult("list_items", out, err)
		},
	)

	srv.AddTool(
		mcp.NewTool(
			"itemflow.list_child_items",
			mcp.WithDescription("List the direct children of an item."),
			mcp.WithString("item_id", mcp.Required(), mcp.Description("Parent item identifier")),
		),
		func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			itemID, err := req.RequireString("item_id")
			if err != nil {
				return invalidRequestToolResult(err), nil
			}
			out, err := items.GetChildItems(ctx, itemID)
			return outcomeResult("list_child_items", out, err)
		},
	)

	srv.AddTool(
		mcp.NewTool(
			"itemflow.filter_items",
			mcp.WithDescription("Filter board items by field. Recognized keys: "+filterKeys()+". Unknown keys are ignored."),
			mcp.WithString("board_id", mcp.Required(), mcp.Description("Board identifier")),
			mcp.WithObject("filter", mcp.Description("Field to value map")),
		),
		func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			var args struct {
				BoardID string            `json:"board_id"`
				Filter  map[string]string `json:"filter"`
			}
			if err := req.BindArguments(&args); err != nil {
				return invalidRequestToolResult(err), nil
			}
			out, err := items.FilterItems(ctx, args.Filter, args.BoardID)
			return outcomeResult("filter_items", out, err)
		},
	)

	srv.AddTool(
		mcp.NewTool(
			"itemflow.list_activity",
			mcp.WithDescription("List recent change events of a board, newest first."),
			mcp.WithString("board_id", mcp.Required(), mcp.Description("Board identifier")),
			mcp.WithNumber("limit", mcp.Description("Maximum number of events")),
		),
		func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			boardID, err := req.RequireString("board_id")
			if err != nil {
				return invalidRequestToolResult(err), nil
			}
			out, err := items.ListBoardActivity(ctx, boardID, req.GetInt("limit", 0))
			return outcomeResult("list_activity", out, err)
		},
	)
}

// registerInboxTools registers the caller's notification inbox tools.
func registerInboxTools(srv *mcpserver.MCPServer, inbox app.Inbox) {
	srv.AddTool(
		mcp.NewTool(
			"itemflow.list_notifications",
			mcp.WithDescription("List the caller's notifications, newest first."),
			mcp.WithNumber("limit", mcp.Description("Maximum number of notifications")),
		),
		func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			caller, err := common.CallerID(ctx)
			if err != nil {
				return toolResultFromError(err), nil
			}
			entries, err := inbox.ListNotifications(ctx, caller, req.GetInt("limit", 0))
			if err != nil {
				return toolResultFromError(err), nil
			}
			result, err := mcp.NewToolResultJSON(map[string]any{"data": entries})
			if err != nil {
				return nil, fmt.Errorf("encode list_notifications result: %w", err)
			}
			return result, nil
		},
	)
}

// filterKeys lists the recognized filter fields for tool descriptions.
func filterKeys() string {
	fields := domain.FilterFields()
	names := make([]string, 0, len(fields))
	for _, field := range fields {
		names = append(names, string(field))
	}
	return strings.Join(names, ", ")
}
