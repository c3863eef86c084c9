package client

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/xraph/distill/dlq"
	"github.com/xraph/distill/job"
)

// DLQEntries lists dead letter entries, newest first. Zero opts values
// use the server defaults.
func (c *Client) DLQEntries(ctx context.Context, opts dlq.ListOpts) ([]*dlq.Entry, error) {
	q := url.Values{}
	if opts.Limit > 0 {
		q.Set("limit", fmt.Sprint(opts.Limit))
	}
	if opts.Offset > 0 {
		q.Set("offset", fmt.Sprint(opts.Offset))
	}
	if opts.DocID != "" {
		q.Set("doc_id", opts.DocID)
	}
	path := "/v1/dlq"
	if len(q) > 0 {
		path += "?" + q.Encode()
	}

	var entries []*dlq.Entry
	if err := c.do(ctx, http.MethodGet, path, nil, &entries); err != nil {
		return nil, err
	}
	return entries, nil
}

// DLQEntry retrieves one dead letter entry by ID.
func (c *Client) DLQEntry(ctx context.Context, entryID string) (*dlq.Entry, error) {
	var entry dlq.Entry
	if err := c.do(ctx, http.MethodGet, "/v1/dlq/"+url.PathEscape(entryID), nil, &entry); err != nil {
		return nil, err
	}
	return &entry, nil
}

// ReplayDLQ resubmits a dead letter entry as a fresh job and returns
// the new job's snapshot.
func (c *Client) ReplayDLQ(ctx context.Context, entryID string) (*job.Snapshot, error) {
	var snap job.Snapshot
	if err := c.do(ctx, http.MethodPost, "/v1/dlq/"+url.PathEscape(entryID)+"/replay", nil, &snap); err != nil {
		return nil, err
	}
	return &snap, nil
}

// PurgeDLQ removes entries that failed more than olderThan ago and
// returns how many were removed.
func (c *Client) PurgeDLQ(ctx context.Context, olderThan time.Duration) (int64, error) {
	var resp struct {
		Purged int64 `json:"purged"`
	}
	path := "/v1/dlq/purge?older_than=" + url.QueryEscape(olderThan.String())
	if err := c.do(ctx, http.MethodPost, path, nil, &resp); err != nil {
		return 0, err
	}
	return resp.Purged, nil
}

// DLQCount returns the number of dead letter entries on the server.
func (c *Client) DLQCount(ctx context.Context) (int64, error) {
	var resp struct {
		Count int64 `json:"count"`
	}
	if err := c.do(ctx, http.MethodGet, "/v1/dlq/count", nil, &resp); err != nil {
		return 0, err
	}
	return resp.Count, nil
}
