package tools

import (
	"context"
	"fmt"
	"strings"

	"github.com/dmitrijs2005/gsheetsmcp/internal/server/reqctx"
	"github.com/mark3labs/mcp-go/mcp"
	"google.golang.org/api/drive/v3"
)

const spreadsheetMimeType = "application/vnd.google-apps.spreadsheet"

var shareRoles = map[string]bool{"reader": true, "commenter": true, "writer": true}

func (r *Registry) registerDriveTools() {
	r.add(mcp.NewTool("create_spreadsheet",
		mcp.WithDescription("Create a new spreadsheet, placed in the configured folder when one is set"),
		mcp.WithString("title", mcp.Required(), mcp.Description("Title of the new spreadsheet")),
	), r.createSpreadsheet)

	r.add(mcp.NewTool("list_spreadsheets",
		mcp.WithDescription("List spreadsheets visible to the caller, limited to the configured folder when one is set"),
	), r.listSpreadsheets)

	r.add(mcp.NewTool("share_spreadsheet",
		mcp.WithDescription("Share a spreadsheet with one or more users"),
		mcp.WithString("spreadsheet_id", mcp.Required(), mcp.Description("Spreadsheet ID")),
		mcp.WithArray("recipients", mcp.Required(),
			mcp.Description("Objects with email_address and role (reader, commenter or writer)"),
			mcp.Items(map[string]any{"type": "object"})),
		mcp.WithBoolean("send_notification", mcp.Description("Send an email notification (default true)")),
	), r.shareSpreadsheet)
}

type fileInfo struct {
	ID           string `json:"id"`
	Title        string `json:"title"`
	ModifiedTime string `json:"modified_time,omitempty"`
	URL          string `json:"url,omitempty"`
}

func (r *Registry) createSpreadsheet(ctx context.Context, h *reqctx.Handles, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	title, err := req.RequireString("title")
	if err != nil {
		return nil, err
	}

	file := &drive.File{Name: title, MimeType: spreadsheetMimeType}
	if h.FolderID != "" {
		file.Parents = []string{h.FolderID}
	}

	created, err := h.Drive.Files.Create(file).
		Fields("id,name,webViewLink").
		SupportsAllDrives(true).
		Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("create spreadsheet: %w", err)
	}

	return jsonResult(fileInfo{ID: created.Id, Title: created.Name, URL: created.WebViewLink})
}

func (r *Registry) listSpreadsheets(ctx context.Context, h *reqctx.Handles, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {

	q := fmt.Sprintf("mimeType='%s' and trashed=false", spreadsheetMimeType)
	if h.FolderID != "" {
		q += fmt.Sprintf(" and '%s' in parents", escapeQuery(h.FolderID))
	}

	out := []fileInfo{}
	err := h.Drive.Files.List().
		Q(q).
		Fields("nextPageToken,files(id,name,modifiedTime,webViewLink)").
		PageSize(100).
		SupportsAllDrives(true).
		IncludeItemsFromAllDrives(true).
		Pages(ctx, func(page *drive.FileList) error {
			for _, f := range page.Files {
				out = append(out, fileInfo{ID: f.Id, Title: f.Name, ModifiedTime: f.ModifiedTime, URL: f.WebViewLink})
			}
			return nil
		})
	if err != nil {
		return nil, fmt.Errorf("list spreadsheets: %w", err)
	}

	return jsonResult(out)
}

type shareResult struct {
	EmailAddress string `json:"email_address"`
	Role         string `json:"role"`
	PermissionID string `json:"permission_id,omitempty"`
	Error        string `json:"error,omitempty"`
}

func (r *Registry) shareSpreadsheet(ctx context.Context, h *reqctx.Handles, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := req.RequireString("spreadsheet_id")
	if err != nil {
		return nil, err
	}
	recipients, err := objectsArg(req, "recipients")
	if err != nil {
		return nil, err
	}
	notify := req.GetBool("send_notification", true)

	var ok, failed []shareResult
	for _, rcpt := range recipients {
		email, _ := rcpt["email_address"].(string)
		role, _ := rcpt["role"].(string)
		res := shareResult{EmailAddress: email, Role: role}

		switch {
		case email == "":
			res.Error = "missing email_address"
		case !shareRoles[role]:
			res.Error = fmt.Sprintf("invalid role %q", role)
		default:
			perm, err := h.Drive.Permissions.Create(id, &drive.Permission{
				Type:         "user",
				Role:         role,
				EmailAddress: email,
			}).SendNotificationEmail(notify).
				SupportsAllDrives(true).
				Fields("id").
				Context(ctx).Do()
			if err != nil {
				res.Error = err.Error()
			} else {
				res.PermissionID = perm.Id
			}
		}

		if res.Error != "" {
			failed = append(failed, res)
		} else {
			ok = append(ok, res)
		}
	}

	return jsonResult(map[string]any{"successes": ok, "failures": failed})
}

func escapeQuery(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	return strings.ReplaceAll(s, `'`, `\'`)
}
