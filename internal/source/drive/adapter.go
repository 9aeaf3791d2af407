// Package drive adapts a Graph-style cloud drive delta API to the
// provider listing contract.
package drive

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/nhle/pollwatch/internal/source"
)

// Adapter implements source.Lister for a cloud drive. A stored cursor is
// the provider-issued delta link; a fresh enumeration starts from the
// configured folder path or folder ID.
type Adapter struct {
	client  *Client
	driveID string
}

// NewAdapter creates a drive adapter over its own client handle.
func NewAdapter(baseURL, token, driveID string) *Adapter {
	return &Adapter{
		client:  NewClient(baseURL, token),
		driveID: driveID,
	}
}

// List starts a delta enumeration of target. A non-empty cursor is the
// delta link from a previous enumeration and is fetched directly; the
// target is only consulted when starting from scratch. Targets beginning
// with "/" are folder paths; anything else is treated as a folder ID.
func (a *Adapter) List(ctx context.Context, target, cursor string) (*source.Page, error) {
	if cursor != "" {
		return a.fetch(ctx, cursor)
	}

	var path string
	if strings.HasPrefix(target, "/") {
		path = fmt.Sprintf(
			"/drives/%s/root:%s:/delta",
			url.PathEscape(a.driveID), escapeDrivePath(target),
		)
	} else {
		path = fmt.Sprintf(
			"/drives/%s/items/%s/delta",
			url.PathEscape(a.driveID), url.PathEscape(target),
		)
	}

	var resp deltaResponse
	if err := a.client.Get(ctx, path, &resp); err != nil {
		return nil, err
	}
	return a.toPage(&resp), nil
}

// FetchPage retrieves a subsequent page by its absolute next link.
func (a *Adapter) FetchPage(ctx context.Context, link string) (*source.Page, error) {
	return a.fetch(ctx, link)
}

// fetch retrieves one page by absolute URL (next link or delta link).
func (a *Adapter) fetch(ctx context.Context, link string) (*source.Page, error) {
	var resp deltaResponse
	if err := a.client.getURL(ctx, link, &resp); err != nil {
		return nil, err
	}
	return a.toPage(&resp), nil
}

// toPage maps a delta response to the provider-normalized page shape.
func (a *Adapter) toPage(resp *deltaResponse) *source.Page {
	page := &source.Page{
		NextLink: resp.NextLink,
		Cursor:   resp.DeltaLink,
	}
	for _, it := range resp.Value {
		page.Items = append(page.Items, a.toItem(it))
	}
	return page
}

// toItem normalizes one drive item: kind from the item facets, version
// preferring the strong tag, falling back to size, falling back to
// absent, and modification time falling back to creation time.
func (a *Adapter) toItem(it driveItem) source.Item {
	kind := source.KindContent
	switch {
	case it.Deleted != nil:
		kind = source.KindDeleted
	case it.Folder != nil:
		kind = source.KindContainer
	}

	version := it.ETag
	if version == "" && it.File != nil {
		version = fmt.Sprintf("size:%d", it.Size)
	}

	modified := it.LastModifiedDateTime
	if modified.IsZero() {
		modified = it.CreatedDateTime
	}

	return source.Item{
		URI:        fmt.Sprintf("drive://%s/%s", a.driveID, it.ID),
		Name:       it.Name,
		Kind:       kind,
		Version:    version,
		Size:       it.Size,
		ModifiedAt: modified,
	}
}

// escapeDrivePath escapes each segment of a folder path while keeping
// the separators.
func escapeDrivePath(p string) string {
	segments := strings.Split(strings.Trim(p, "/"), "/")
	for i, s := range segments {
		segments[i] = url.PathEscape(s)
	}
	return "/" + strings.Join(segments, "/")
}
