package tools

import (
	"context"
	"fmt"

	"github.com/dmitrijs2005/gsheetsmcp/internal/server/reqctx"
	"github.com/mark3labs/mcp-go/mcp"
	"google.golang.org/api/sheets/v4"
)

func (r *Registry) registerSheetTools() {
	r.add(mcp.NewTool("list_sheets",
		mcp.WithDescription("List the sheets (tabs) of a spreadsheet"),
		mcp.WithString("spreadsheet_id", mcp.Required(), mcp.Description("Spreadsheet ID")),
	), r.listSheets)

	r.add(mcp.NewTool("create_sheet",
		mcp.WithDescription("Add a new sheet (tab) to a spreadsheet"),
		mcp.WithString("spreadsheet_id", mcp.Required(), mcp.Description("Spreadsheet ID")),
		mcp.WithString("title", mcp.Required(), mcp.Description("Title of the new sheet")),
	), r.createSheet)

	r.add(mcp.NewTool("rename_sheet",
		mcp.WithDescription("Rename a sheet (tab)"),
		mcp.WithString("spreadsheet_id", mcp.Required(), mcp.Description("Spreadsheet ID")),
		mcp.WithString("sheet", mcp.Required(), mcp.Description("Current sheet title")),
		mcp.WithString("new_name", mcp.Required(), mcp.Description("New sheet title")),
	), r.renameSheet)

	r.add(mcp.NewTool("delete_sheet",
		mcp.WithDescription("Delete a sheet (tab) from a spreadsheet"),
		mcp.WithString("spreadsheet_id", mcp.Required(), mcp.Description("Spreadsheet ID")),
		mcp.WithString("sheet", mcp.Required(), mcp.Description("Title of the sheet to delete")),
	), r.deleteSheet)
}

type sheetInfo struct {
	SheetID int64  `json:"sheet_id"`
	Title   string `json:"title"`
	Index   int64  `json:"index"`
}

func (r *Registry) sheetProperties(ctx context.Context, h *reqctx.Handles, spreadsheetID string) ([]*sheets.SheetProperties, error) {
	ss, err := h.Sheets.Spreadsheets.Get(spreadsheetID).
		Fields("sheets.properties").
		Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("get spreadsheet: %w", err)
	}

	props := make([]*sheets.SheetProperties, 0, len(ss.Sheets))
	for _, s := range ss.Sheets {
		if s.Properties != nil {
			props = append(props, s.Properties)
		}
	}
	return props, nil
}

func (r *Registry) sheetID(ctx context.Context, h *reqctx.Handles, spreadsheetID, title string) (int64, error) {
	props, err := r.sheetProperties(ctx, h, spreadsheetID)
	if err != nil {
		return 0, err
	}
	for _, p := range props {
		if p.Title == title {
			return p.SheetId, nil
		}
	}
	return 0, fmt.Errorf("sheet %q not found", title)
}

func (r *Registry) batchUpdate(ctx context.Context, h *reqctx.Handles, spreadsheetID string, reqs ...*sheets.Request) (*sheets.BatchUpdateSpreadsheetResponse, error) {
	resp, err := h.Sheets.Spreadsheets.
		BatchUpdate(spreadsheetID, &sheets.BatchUpdateSpreadsheetRequest{Requests: reqs}).
		Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("batch update: %w", err)
	}
	return resp, nil
}

func (r *Registry) listSheets(ctx context.Context, h *reqctx.Handles, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := req.RequireString("spreadsheet_id")
	if err != nil {
		return nil, err
	}

	props, err := r.sheetProperties(ctx, h, id)
	if err != nil {
		return nil, err
	}

	out := make([]sheetInfo, 0, len(props))
	for _, p := range props {
		out = append(out, sheetInfo{SheetID: p.SheetId, Title: p.Title, Index: p.Index})
	}
	return jsonResult(out)
}

func (r *Registry) createSheet(ctx context.Context, h *reqctx.Handles, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := req.RequireString("spreadsheet_id")
	if err != nil {
		return nil, err
	}
	title, err := req.RequireString("title")
	if err != nil {
		return nil, err
	}

	resp, err := r.batchUpdate(ctx, h, id, &sheets.Request{
		AddSheet: &sheets.AddSheetRequest{Properties: &sheets.SheetProperties{Title: title}},
	})
	if err != nil {
		return nil, err
	}

	if len(resp.Replies) == 0 || resp.Replies[0].AddSheet == nil || resp.Replies[0].AddSheet.Properties == nil {
		return nil, fmt.Errorf("add sheet: empty reply")
	}
	p := resp.Replies[0].AddSheet.Properties
	return jsonResult(sheetInfo{SheetID: p.SheetId, Title: p.Title, Index: p.Index})
}

func (r *Registry) renameSheet(ctx context.Context, h *reqctx.Handles, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := req.RequireString("spreadsheet_id")
	if err != nil {
		return nil, err
	}
	sheet, err := req.RequireString("sheet")
	if err != nil {
		return nil, err
	}
	newName, err := req.RequireString("new_name")
	if err != nil {
		return nil, err
	}

	sheetID, err := r.sheetID(ctx, h, id, sheet)
	if err != nil {
		return nil, err
	}

	if _, err := r.batchUpdate(ctx, h, id, &sheets.Request{
		UpdateSheetProperties: &sheets.UpdateSheetPropertiesRequest{
			Properties: &sheets.SheetProperties{
				SheetId:         sheetID,
				Title:           newName,
				ForceSendFields: []string{"SheetId"},
			},
			Fields: "title",
		},
	}); err != nil {
		return nil, err
	}

	return jsonResult(sheetInfo{SheetID: sheetID, Title: newName})
}

func (r *Registry) deleteSheet(ctx context.Context, h *reqctx.Handles, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := req.RequireString("spreadsheet_id")
	if err != nil {
		return nil, err
	}
	sheet, err := req.RequireString("sheet")
	if err != nil {
		return nil, err
	}

	sheetID, err := r.sheetID(ctx, h, id, sheet)
	if err != nil {
		return nil, err
	}

	if _, err := r.batchUpdate(ctx, h, id, &sheets.Request{
		DeleteSheet: &sheets.DeleteSheetRequest{SheetId: sheetID, ForceSendFields: []string{"SheetId"}},
	}); err != nil {
		return nil, err
	}

	return jsonResult(map[string]any{"deleted": sheet, "sheet_id": sheetID})
}
