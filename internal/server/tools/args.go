package tools

import (
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
)

// a1 builds an A1 reference, quoting the sheet title.
func a1(sheet, rng string) string {
	ref := "'" + strings.ReplaceAll(sheet, "'", "''") + "'"
	if rng != "" {
		ref += "!" + rng
	}
	return ref
}

// grid reads a two-dimensional array argument.
func grid(req mcp.CallToolRequest, key string) ([][]interface{}, error) {
	raw, ok := req.GetArguments()[key]
	if !ok {
		return nil, fmt.Errorf("missing required argument %q", key)
	}
	return toGrid(raw, key)
}

func toGrid(raw any, key string) ([][]interface{}, error) {
	rows, ok := raw.([]any)
	if !ok {
		return nil, fmt.Errorf("argument %q must be an array of rows", key)
	}

	out := make([][]interface{}, 0, len(rows))
	for i, row := range rows {
		cells, ok := row.([]any)
		if !ok {
			return nil, fmt.Errorf("argument %q row %d must be an array", key, i)
		}
		out = append(out, cells)
	}
	return out, nil
}

func objectArg(req mcp.CallToolRequest, key string) (map[string]any, error) {
	raw, ok := req.GetArguments()[key]
	if !ok {
		return nil, fmt.Errorf("missing required argument %q", key)
	}
	obj, ok := raw.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("argument %q must be an object", key)
	}
	return obj, nil
}

func objectsArg(req mcp.CallToolRequest, key string) ([]map[string]any, error) {
	raw, ok := req.GetArguments()[key]
	if !ok {
		return nil, fmt.Errorf("missing required argument %q", key)
	}
	items, ok := raw.([]any)
	if !ok {
		return nil, fmt.Errorf("argument %q must be an array", key)
	}

	out := make([]map[string]any, 0, len(items))
	for i, item := range items {
		obj, ok := item.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("argument %q item %d must be an object", key, i)
		}
		out = append(out, obj)
	}
	return out, nil
}

func stringsArg(req mcp.CallToolRequest, key string) ([]string, error) {
	raw, ok := req.GetArguments()[key]
	if !ok {
		return nil, fmt.Errorf("missing required argument %q", key)
	}
	items, ok := raw.([]any)
	if !ok {
		return nil, fmt.Errorf("argument %q must be an array", key)
	}

	out := make([]string, 0, len(items))
	for i, item := range items {
		s, ok := item.(string)
		if !ok || s == "" {
			return nil, fmt.Errorf("argument %q item %d must be a non-empty string", key, i)
		}
		out = append(out, s)
	}
	return out, nil
}
