package tools

import (
	"context"
	"fmt"

	"github.com/dmitrijs2005/gsheetsmcp/internal/server/reqctx"
	"github.com/mark3labs/mcp-go/mcp"
	"google.golang.org/api/sheets/v4"
)

const valueInputUserEntered = "USER_ENTERED"

var gridItems = mcp.Items(map[string]any{"type": "array", "items": map[string]any{}})

func (r *Registry) registerValueTools() {
	r.add(mcp.NewTool("get_sheet_data",
		mcp.WithDescription("Read cell values from a sheet, optionally limited to an A1 range"),
		mcp.WithString("spreadsheet_id", mcp.Required(), mcp.Description("Spreadsheet ID (from its URL)")),
		mcp.WithString("sheet", mcp.Required(), mcp.Description("Sheet (tab) title")),
		mcp.WithString("range", mcp.Description("A1 range such as A1:C10; whole sheet when omitted")),
	), r.getSheetData("FORMATTED_VALUE"))

	r.add(mcp.NewTool("get_sheet_formulas",
		mcp.WithDescription("Read formulas instead of computed values from a sheet"),
		mcp.WithString("spreadsheet_id", mcp.Required(), mcp.Description("Spreadsheet ID")),
		mcp.WithString("sheet", mcp.Required(), mcp.Description("Sheet (tab) title")),
		mcp.WithString("range", mcp.Description("A1 range; whole sheet when omitted")),
	), r.getSheetData("FORMULA"))

	r.add(mcp.NewTool("update_cells",
		mcp.WithDescription("Write a 2D array of values into a range; input is parsed as if typed by a user"),
		mcp.WithString("spreadsheet_id", mcp.Required(), mcp.Description("Spreadsheet ID")),
		mcp.WithString("sheet", mcp.Required(), mcp.Description("Sheet (tab) title")),
		mcp.WithString("range", mcp.Required(), mcp.Description("A1 range to write, e.g. A1:C3")),
		mcp.WithArray("data", mcp.Required(), mcp.Description("Rows of cell values"), gridItems),
	), r.updateCells)

	r.add(mcp.NewTool("batch_update_cells",
		mcp.WithDescription("Write several ranges of one sheet in a single call"),
		mcp.WithString("spreadsheet_id", mcp.Required(), mcp.Description("Spreadsheet ID")),
		mcp.WithString("sheet", mcp.Required(), mcp.Description("Sheet (tab) title")),
		mcp.WithObject("ranges", mcp.Required(), mcp.Description("Map of A1 range to rows of values")),
	), r.batchUpdateCells)

	r.add(mcp.NewTool("append_values",
		mcp.WithDescription("Append rows after the last row of data in a range"),
		mcp.WithString("spreadsheet_id", mcp.Required(), mcp.Description("Spreadsheet ID")),
		mcp.WithString("sheet", mcp.Required(), mcp.Description("Sheet (tab) title")),
		mcp.WithString("range", mcp.Description("A1 range that locates the table; defaults to A1")),
		mcp.WithArray("data", mcp.Required(), mcp.Description("Rows to append"), gridItems),
	), r.appendValues)

	r.add(mcp.NewTool("clear_range",
		mcp.WithDescription("Clear values (not formatting) from a range"),
		mcp.WithString("spreadsheet_id", mcp.Required(), mcp.Description("Spreadsheet ID")),
		mcp.WithString("sheet", mcp.Required(), mcp.Description("Sheet (tab) title")),
		mcp.WithString("range", mcp.Required(), mcp.Description("A1 range to clear")),
	), r.clearRange)
}

func (r *Registry) getSheetData(render string) handlerFunc {
	return func(ctx context.Context, h *reqctx.Handles, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		id, err := req.RequireString("spreadsheet_id")
		if err != nil {
			return nil, err
		}
		sheet, err := req.RequireString("sheet")
		if err != nil {
			return nil, err
		}

		vr, err := h.Sheets.Spreadsheets.Values.
			Get(id, a1(sheet, req.GetString("range", ""))).
			ValueRenderOption(render).
			Context(ctx).Do()
		if err != nil {
			return nil, fmt.Errorf("get values: %w", err)
		}

		return jsonResult(map[string]any{"range": vr.Range, "values": vr.Values})
	}
}

func (r *Registry) updateCells(ctx context.Context, h *reqctx.Handles, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := req.RequireString("spreadsheet_id")
	if err != nil {
		return nil, err
	}
	sheet, err := req.RequireString("sheet")
	if err != nil {
		return nil, err
	}
	rng, err := req.RequireString("range")
	if err != nil {
		return nil, err
	}
	data, err := grid(req, "data")
	if err != nil {
		return nil, err
	}

	resp, err := h.Sheets.Spreadsheets.Values.
		Update(id, a1(sheet, rng), &sheets.ValueRange{Values: data}).
		ValueInputOption(valueInputUserEntered).
		Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("update values: %w", err)
	}

	return jsonResult(map[string]any{
		"updated_range": resp.UpdatedRange,
		"updated_cells": resp.UpdatedCells,
	})
}

func (r *Registry) batchUpdateCells(ctx context.Context, h *reqctx.Handles, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := req.RequireString("spreadsheet_id")
	if err != nil {
		return nil, err
	}
	sheet, err := req.RequireString("sheet")
	if err != nil {
		return nil, err
	}
	ranges, err := objectArg(req, "ranges")
	if err != nil {
		return nil, err
	}
	if len(ranges) == 0 {
		return nil, fmt.Errorf("ranges must not be empty")
	}

	body := &sheets.BatchUpdateValuesRequest{ValueInputOption: valueInputUserEntered}
	for rng, raw := range ranges {
		values, err := toGrid(raw, rng)
		if err != nil {
			return nil, err
		}
		body.Data = append(body.Data, &sheets.ValueRange{Range: a1(sheet, rng), Values: values})
	}

	resp, err := h.Sheets.Spreadsheets.Values.BatchUpdate(id, body).Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("batch update values: %w", err)
	}

	return jsonResult(map[string]any{
		"total_updated_cells":  resp.TotalUpdatedCells,
		"total_updated_ranges": len(resp.Responses),
	})
}

func (r *Registry) appendValues(ctx context.Context, h *reqctx.Handles, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := req.RequireString("spreadsheet_id")
	if err != nil {
		return nil, err
	}
	sheet, err := req.RequireString("sheet")
	if err != nil {
		return nil, err
	}
	data, err := grid(req, "data")
	if err != nil {
		return nil, err
	}

	resp, err := h.Sheets.Spreadsheets.Values.
		Append(id, a1(sheet, req.GetString("range", "A1")), &sheets.ValueRange{Values: data}).
		ValueInputOption(valueInputUserEntered).
		InsertDataOption("INSERT_ROWS").
		Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("append values: %w", err)
	}

	out := map[string]any{"table_range": resp.TableRange}
	if resp.Updates != nil {
		out["updated_range"] = resp.Updates.UpdatedRange
		out["updated_rows"] = resp.Updates.UpdatedRows
	}
	return jsonResult(out)
}

func (r *Registry) clearRange(ctx context.Context, h *reqctx.Handles, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := req.RequireString("spreadsheet_id")
	if err != nil {
		return nil, err
	}
	sheet, err := req.RequireString("sheet")
	if err != nil {
		return nil, err
	}
	rng, err := req.RequireString("range")
	if err != nil {
		return nil, err
	}

	resp, err := h.Sheets.Spreadsheets.Values.
		Clear(id, a1(sheet, rng), &sheets.ClearValuesRequest{}).
		Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("clear values: %w", err)
	}

	return jsonResult(map[string]any{"cleared_range": resp.ClearedRange})
}
