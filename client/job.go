package client

import (
	"context"
	"net/http"
	"net/url"

	"github.com/xraph/distill/job"
	"github.com/xraph/distill/pipeline"
)

// SubmitDocuments sends raw document text for ingestion and extraction.
func (c *Client) SubmitDocuments(ctx context.Context, documents ...string) (*pipeline.IngestResult, error) {
	req := struct {
		Documents []string `json:"documents"`
	}{Documents: documents}

	var res pipeline.IngestResult
	if err := c.do(ctx, http.MethodPost, "/v1/documents", req, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// Job retrieves one job snapshot by ID.
func (c *Client) Job(ctx context.Context, jobID string) (*job.Snapshot, error) {
	var snap job.Snapshot
	if err := c.do(ctx, http.MethodGet, "/v1/jobs/"+url.PathEscape(jobID), nil, &snap); err != nil {
		return nil, err
	}
	return &snap, nil
}

// Jobs lists job snapshots, optionally filtered by status. An empty
// status returns all jobs.
func (c *Client) Jobs(ctx context.Context, status string) ([]*job.Snapshot, error) {
	path := "/v1/jobs"
	if status != "" {
		path += "?status=" + url.QueryEscape(status)
	}
	var snaps []*job.Snapshot
	if err := c.do(ctx, http.MethodGet, path, nil, &snaps); err != nil {
		return nil, err
	}
	return snaps, nil
}

// EvictJob removes a terminal job record from the server.
func (c *Client) EvictJob(ctx context.Context, jobID string) error {
	return c.do(ctx, http.MethodDelete, "/v1/jobs/"+url.PathEscape(jobID), nil, nil)
}

// Stats holds the aggregate counters reported by the server.
type Stats struct {
	Jobs       map[job.Status]int `json:"jobs"`
	Active     int                `json:"active"`
	DLQCount   int64              `json:"dlq_count"`
	DLQEnabled bool               `json:"dlq_enabled"`
}

// Stats retrieves aggregate job and DLQ statistics.
func (c *Client) Stats(ctx context.Context) (*Stats, error) {
	var s Stats
	if err := c.do(ctx, http.MethodGet, "/v1/stats", nil, &s); err != nil {
		return nil, err
	}
	return &s, nil
}
