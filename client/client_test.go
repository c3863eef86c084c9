package client_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/xraph/distill"
	"github.com/xraph/distill/api"
	"github.com/xraph/distill/client"
	"github.com/xraph/distill/dlq"
	"github.com/xraph/distill/engine"
	"github.com/xraph/distill/job"
	"github.com/xraph/distill/pipeline"
	"github.com/xraph/distill/processor"
	"github.com/xraph/distill/storage/memory"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type flakyProcessor struct {
	fail bool
}

func (p *flakyProcessor) Process(_ context.Context, ref string, _ int) (string, error) {
	if p.fail {
		return "", processor.Errorf(processor.KindSchemaValidation, "bad response for %s", ref)
	}
	return "out-" + ref, nil
}

// newTestServer brings up a full engine behind an httptest server and
// returns a client pointed at it.
func newTestServer(t *testing.T, proc processor.Processor, rtOpts ...distill.Option) (*client.Client, *engine.Engine) {
	t.Helper()
	opts := append([]distill.Option{
		distill.WithLogger(testLogger()),
		distill.WithOutputStore(memory.New()),
	}, rtOpts...)
	rt, err := distill.New(opts...)
	if err != nil {
		t.Fatalf("distill.New: %v", err)
	}
	eng, err := engine.Build(rt, proc)
	if err != nil {
		t.Fatalf("engine.Build: %v", err)
	}
	if err := eng.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}

	chunker, err := pipeline.NewChunker(10, 2)
	if err != nil {
		t.Fatalf("NewChunker: %v", err)
	}
	ingestor := pipeline.NewIngestor(rt.Outputs().(*memory.Store), eng, chunker, testLogger())

	srv := httptest.NewServer(api.New(eng, ingestor, testLogger()).Handler())
	t.Cleanup(func() {
		srv.Close()
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = eng.Stop(ctx)
	})

	return client.New(srv.URL, client.WithLogger(testLogger())), eng
}

func waitTerminal(t *testing.T, eng *engine.Engine) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		done := true
		for _, snap := range eng.Jobs() {
			if !snap.Status.Terminal() {
				done = false
			}
		}
		if done {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("jobs never reached a terminal status")
}

func TestClient_SubmitAndPoll(t *testing.T) {
	c, eng := newTestServer(t, &flakyProcessor{})
	ctx := context.Background()

	res, err := c.SubmitDocuments(ctx, "the quick brown fox jumps over the lazy dog again and again")
	if err != nil {
		t.Fatalf("SubmitDocuments: %v", err)
	}
	if len(res.Submitted) != 1 {
		t.Fatalf("submitted = %d, want 1", len(res.Submitted))
	}

	waitTerminal(t, eng)

	snaps, err := c.Jobs(ctx, "")
	if err != nil {
		t.Fatalf("Jobs: %v", err)
	}
	if len(snaps) != 1 {
		t.Fatalf("jobs = %d, want 1", len(snaps))
	}

	snap, err := c.Job(ctx, snaps[0].ID.String())
	if err != nil {
		t.Fatalf("Job: %v", err)
	}
	if snap.Status != job.StatusDone {
		t.Errorf("status = %s, want %s", snap.Status, job.StatusDone)
	}

	stats, err := c.Stats(ctx)
	if err != nil {
		t.Fatalf("Stats: %v", err)
	}
	if stats.Jobs[job.StatusDone] != 1 {
		t.Errorf("done count = %d, want 1", stats.Jobs[job.StatusDone])
	}
}

func TestClient_NotFound(t *testing.T) {
	c, eng := newTestServer(t, &flakyProcessor{})
	ctx := context.Background()

	// A valid but unknown job ID.
	snap, err := eng.Submit(ctx, "probe", nil)
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if err := eng.Evict(snap.ID); err != nil {
		t.Fatalf("Evict: %v", err)
	}

	_, err = c.Job(ctx, snap.ID.String())
	if !client.IsNotFound(err) {
		t.Errorf("Job error = %v, want 404 APIError", err)
	}
}

func TestClient_DLQRoundTrip(t *testing.T) {
	proc := &flakyProcessor{fail: true}
	c, eng := newTestServer(t, proc, distill.WithRetryLimits(0, 0))
	ctx := context.Background()

	if _, err := c.SubmitDocuments(ctx, "a document that will fail extraction"); err != nil {
		t.Fatalf("SubmitDocuments: %v", err)
	}
	waitTerminal(t, eng)

	count, err := c.DLQCount(ctx)
	if err != nil {
		t.Fatalf("DLQCount: %v", err)
	}
	if count != 1 {
		t.Fatalf("count = %d, want 1", count)
	}

	entries, err := c.DLQEntries(ctx, dlq.ListOpts{})
	if err != nil {
		t.Fatalf("DLQEntries: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("entries = %d, want 1", len(entries))
	}

	entry, err := c.DLQEntry(ctx, entries[0].ID.String())
	if err != nil {
		t.Fatalf("DLQEntry: %v", err)
	}
	if len(entry.FailedChunks()) == 0 {
		t.Error("entry has no failed chunks")
	}

	proc.fail = false
	snap, err := c.ReplayDLQ(ctx, entry.ID.String())
	if err != nil {
		t.Fatalf("ReplayDLQ: %v", err)
	}
	if snap.DocID != entry.DocID {
		t.Errorf("replayed doc = %q, want %q", snap.DocID, entry.DocID)
	}

	// Double replay is a conflict.
	_, err = c.ReplayDLQ(ctx, entry.ID.String())
	var apiErr *client.APIError
	if !errors.As(err, &apiErr) || apiErr.Status != http.StatusConflict {
		t.Errorf("second replay error = %v, want 409", err)
	}
}
