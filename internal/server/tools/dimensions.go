package tools

import (
	"context"
	"fmt"

	"github.com/dmitrijs2005/gsheetsmcp/internal/server/reqctx"
	"github.com/mark3labs/mcp-go/mcp"
	"google.golang.org/api/sheets/v4"
)

const (
	dimensionRows    = "ROWS"
	dimensionColumns = "COLUMNS"
)

func (r *Registry) registerDimensionTools() {
	r.add(mcp.NewTool("batch_clear_ranges",
		mcp.WithDescription("Clear values from several ranges of one sheet in a single call"),
		mcp.WithString("spreadsheet_id", mcp.Required(), mcp.Description("Spreadsheet ID")),
		mcp.WithString("sheet", mcp.Required(), mcp.Description("Sheet (tab) title")),
		mcp.WithArray("ranges", mcp.Required(), mcp.Description("A1 ranges to clear"),
			mcp.Items(map[string]any{"type": "string"})),
	), r.batchClearRanges)

	r.add(mcp.NewTool("add_rows",
		mcp.WithDescription("Insert empty rows, at the end of the sheet unless start_row is given"),
		mcp.WithString("spreadsheet_id", mcp.Required(), mcp.Description("Spreadsheet ID")),
		mcp.WithString("sheet", mcp.Required(), mcp.Description("Sheet (tab) title")),
		mcp.WithNumber("count", mcp.Required(), mcp.Description("Number of rows to add")),
		mcp.WithNumber("start_row", mcp.Description("0-based row index to insert before")),
	), r.addDimension(dimensionRows, "start_row"))

	r.add(mcp.NewTool("add_columns",
		mcp.WithDescription("Insert empty columns, at the end of the sheet unless start_column is given"),
		mcp.WithString("spreadsheet_id", mcp.Required(), mcp.Description("Spreadsheet ID")),
		mcp.WithString("sheet", mcp.Required(), mcp.Description("Sheet (tab) title")),
		mcp.WithNumber("count", mcp.Required(), mcp.Description("Number of columns to add")),
		mcp.WithNumber("start_column", mcp.Description("0-based column index to insert before")),
	), r.addDimension(dimensionColumns, "start_column"))

	r.add(mcp.NewTool("delete_rows",
		mcp.WithDescription("Delete rows [start_index, end_index) from a sheet"),
		mcp.WithString("spreadsheet_id", mcp.Required(), mcp.Description("Spreadsheet ID")),
		mcp.WithString("sheet", mcp.Required(), mcp.Description("Sheet (tab) title")),
		mcp.WithNumber("start_index", mcp.Required(), mcp.Description("0-based first row to delete")),
		mcp.WithNumber("end_index", mcp.Required(), mcp.Description("0-based row after the last one to delete")),
	), r.deleteDimension(dimensionRows))

	r.add(mcp.NewTool("delete_columns",
		mcp.WithDescription("Delete columns [start_index, end_index) from a sheet"),
		mcp.WithString("spreadsheet_id", mcp.Required(), mcp.Description("Spreadsheet ID")),
		mcp.WithString("sheet", mcp.Required(), mcp.Description("Sheet (tab) title")),
		mcp.WithNumber("start_index", mcp.Required(), mcp.Description("0-based first column to delete")),
		mcp.WithNumber("end_index", mcp.Required(), mcp.Description("0-based column after the last one to delete")),
	), r.deleteDimension(dimensionColumns))
}

func (r *Registry) batchClearRanges(ctx context.Context, h *reqctx.Handles, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := req.RequireString("spreadsheet_id")
	if err != nil {
		return nil, err
	}
	sheet, err := req.RequireString("sheet")
	if err != nil {
		return nil, err
	}
	ranges, err := stringsArg(req, "ranges")
	if err != nil {
		return nil, err
	}
	if len(ranges) == 0 {
		return nil, fmt.Errorf("ranges must not be empty")
	}

	body := &sheets.BatchClearValuesRequest{}
	for _, rng := range ranges {
		body.Ranges = append(body.Ranges, a1(sheet, rng))
	}

	resp, err := h.Sheets.Spreadsheets.Values.BatchClear(id, body).Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("batch clear values: %w", err)
	}

	return jsonResult(map[string]any{"cleared_ranges": resp.ClearedRanges})
}

func (r *Registry) addDimension(dimension, startKey string) handlerFunc {
	return func(ctx context.Context, h *reqctx.Handles, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		id, err := req.RequireString("spreadsheet_id")
		if err != nil {
			return nil, err
		}
		sheet, err := req.RequireString("sheet")
		if err != nil {
			return nil, err
		}
		count, err := req.RequireInt("count")
		if err != nil {
			return nil, err
		}
		if count <= 0 {
			return nil, fmt.Errorf("count must be positive")
		}
		start := req.GetInt(startKey, -1)

		sheetID, err := r.sheetID(ctx, h, id, sheet)
		if err != nil {
			return nil, err
		}

		var change *sheets.Request
		if start < 0 {
			change = &sheets.Request{AppendDimension: &sheets.AppendDimensionRequest{
				SheetId:         sheetID,
				Dimension:       dimension,
				Length:          int64(count),
				ForceSendFields: []string{"SheetId"},
			}}
		} else {
			change = &sheets.Request{InsertDimension: &sheets.InsertDimensionRequest{
				Range:             dimensionRange(sheetID, dimension, start, start+count),
				InheritFromBefore: start > 0,
			}}
		}

		if _, err := r.batchUpdate(ctx, h, id, change); err != nil {
			return nil, err
		}

		return jsonResult(map[string]any{"sheet": sheet, "dimension": dimension, "added": count})
	}
}

func (r *Registry) deleteDimension(dimension string) handlerFunc {
	return func(ctx context.Context, h *reqctx.Handles, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		id, err := req.RequireString("spreadsheet_id")
		if err != nil {
			return nil, err
		}
		sheet, err := req.RequireString("sheet")
		if err != nil {
			return nil, err
		}
		start, err := req.RequireInt("start_index")
		if err != nil {
			return nil, err
		}
		end, err := req.RequireInt("end_index")
		if err != nil {
			return nil, err
		}
		if start < 0 || end <= start {
			return nil, fmt.Errorf("need 0 <= start_index < end_index")
		}

		sheetID, err := r.sheetID(ctx, h, id, sheet)
		if err != nil {
			return nil, err
		}

		if _, err := r.batchUpdate(ctx, h, id, &sheets.Request{
			DeleteDimension: &sheets.DeleteDimensionRequest{Range: dimensionRange(sheetID, dimension, start, end)},
		}); err != nil {
			return nil, err
		}

		return jsonResult(map[string]any{"sheet": sheet, "dimension": dimension, "deleted": end - start})
	}
}

func dimensionRange(sheetID int64, dimension string, start, end int) *sheets.DimensionRange {
	return &sheets.DimensionRange{
		SheetId:         sheetID,
		Dimension:       dimension,
		StartIndex:      int64(start),
		EndIndex:        int64(end),
		ForceSendFields: []string{"SheetId", "StartIndex"},
	}
}
