package identity

import (
	"context"
	"fmt"

	"github.com/dmitrijs2005/gsheetsmcp/internal/server/reqctx"
	"golang.org/x/oauth2"
	"google.golang.org/api/drive/v3"
	"google.golang.org/api/option"
	"google.golang.org/api/sheets/v4"
)

// ClientFactory builds API clients that authenticate with ts.
type ClientFactory interface {
	NewHandles(ctx context.Context, ts oauth2.TokenSource) (*reqctx.Handles, error)
}

// GoogleClientFactory builds Sheets v4 and Drive v3 services. Extra options
// (endpoints, HTTP clients) are appended after the token source.
type GoogleClientFactory struct {
	Options []option.ClientOption
}

func (f GoogleClientFactory) NewHandles(ctx context.Context, ts oauth2.TokenSource) (*reqctx.Handles, error) {
	opts := append([]option.ClientOption{option.WithTokenSource(ts)}, f.Options...)

	sheetsSvc, err := sheets.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("sheets client: %w", err)
	}

	driveSvc, err := drive.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("drive client: %w", err)
	}

	return &reqctx.Handles{Sheets: sheetsSvc, Drive: driveSvc}, nil
}
