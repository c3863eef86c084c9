package api

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/xraph/distill"
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

// echoProcessor succeeds every chunk, or fails every chunk when fail is
// set.
type echoProcessor struct {
	fail bool
}

func (p *echoProcessor) Process(_ context.Context, ref string, _ int) (string, error) {
	if p.fail {
		return "", processor.Errorf(processor.KindSchemaValidation, "bad response for %s", ref)
	}
	return "out-" + ref, nil
}

func newTestAPI(t *testing.T, proc processor.Processor, rtOpts ...distill.Option) (*API, *engine.Engine) {
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
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = eng.Stop(ctx)
	})

	chunker, err := pipeline.NewChunker(10, 2)
	if err != nil {
		t.Fatalf("NewChunker: %v", err)
	}
	kv := rt.Outputs().(*memory.Store)
	ingestor := pipeline.NewIngestor(kv, eng, chunker, testLogger())

	return New(eng, ingestor, testLogger()), eng
}

func doRequest(t *testing.T, h http.Handler, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	var rdr io.Reader
	if body != "" {
		rdr = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, rdr)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
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

func TestAPI_SubmitAndGetJob(t *testing.T) {
	a, eng := newTestAPI(t, &echoProcessor{})
	h := a.Handler()

	rec := doRequest(t, h, http.MethodPost, "/v1/documents",
		`{"documents": ["one two three four five six seven eight nine ten eleven twelve"]}`)
	if rec.Code != http.StatusAccepted {
		t.Fatalf("POST /v1/documents = %d, body %s", rec.Code, rec.Body)
	}
	var res pipeline.IngestResult
	if err := json.Unmarshal(rec.Body.Bytes(), &res); err != nil {
		t.Fatalf("decode ingest result: %v", err)
	}
	if len(res.Submitted) != 1 {
		t.Fatalf("submitted = %d jobs, want 1", len(res.Submitted))
	}

	waitTerminal(t, eng)

	rec = doRequest(t, h, http.MethodGet, "/v1/jobs", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("GET /v1/jobs = %d", rec.Code)
	}
	var snaps []*job.Snapshot
	if err := json.Unmarshal(rec.Body.Bytes(), &snaps); err != nil {
		t.Fatalf("decode jobs: %v", err)
	}
	if len(snaps) != 1 {
		t.Fatalf("jobs = %d, want 1", len(snaps))
	}
	if snaps[0].Status != job.StatusDone {
		t.Errorf("job status = %s, want %s", snaps[0].Status, job.StatusDone)
	}

	rec = doRequest(t, h, http.MethodGet, "/v1/jobs/"+snaps[0].ID.String(), "")
	if rec.Code != http.StatusOK {
		t.Errorf("GET /v1/jobs/{id} = %d", rec.Code)
	}
}

func TestAPI_GetJobErrors(t *testing.T) {
	a, _ := newTestAPI(t, &echoProcessor{})
	h := a.Handler()

	rec := doRequest(t, h, http.MethodGet, "/v1/jobs/not-an-id", "")
	if rec.Code != http.StatusBadRequest {
		t.Errorf("malformed ID = %d, want %d", rec.Code, http.StatusBadRequest)
	}

	snap, err := a.eng.Submit(context.Background(), "probe", nil)
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if err := a.eng.Evict(snap.ID); err != nil {
		t.Fatalf("Evict: %v", err)
	}
	rec = doRequest(t, h, http.MethodGet, "/v1/jobs/"+snap.ID.String(), "")
	if rec.Code != http.StatusNotFound {
		t.Errorf("missing job = %d, want %d", rec.Code, http.StatusNotFound)
	}
}

func TestAPI_EvictJob(t *testing.T) {
	a, eng := newTestAPI(t, &echoProcessor{})
	h := a.Handler()

	// Zero-chunk submissions are terminal immediately, so evictable.
	snap, err := eng.Submit(context.Background(), "doc-evict", nil)
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}

	rec := doRequest(t, h, http.MethodDelete, "/v1/jobs/"+snap.ID.String(), "")
	if rec.Code != http.StatusNoContent {
		t.Errorf("DELETE = %d, want %d", rec.Code, http.StatusNoContent)
	}
	if _, err := eng.Job(snap.ID); err == nil {
		t.Error("job still present after evict")
	}
}

func TestAPI_SubmitDocumentsValidation(t *testing.T) {
	a, _ := newTestAPI(t, &echoProcessor{})
	h := a.Handler()

	rec := doRequest(t, h, http.MethodPost, "/v1/documents", `{"documents": []}`)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("empty documents = %d, want %d", rec.Code, http.StatusBadRequest)
	}

	rec = doRequest(t, h, http.MethodPost, "/v1/documents", `{not json`)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("malformed body = %d, want %d", rec.Code, http.StatusBadRequest)
	}
}

func TestAPI_DLQListAndReplay(t *testing.T) {
	proc := &echoProcessor{fail: true}
	a, eng := newTestAPI(t, proc, distill.WithRetryLimits(0, 0))
	h := a.Handler()

	rec := doRequest(t, h, http.MethodPost, "/v1/documents",
		`{"documents": ["short failing document"]}`)
	if rec.Code != http.StatusAccepted {
		t.Fatalf("POST /v1/documents = %d", rec.Code)
	}
	waitTerminal(t, eng)

	rec = doRequest(t, h, http.MethodGet, "/v1/dlq", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("GET /v1/dlq = %d", rec.Code)
	}
	var entries []*dlq.Entry
	if err := json.Unmarshal(rec.Body.Bytes(), &entries); err != nil {
		t.Fatalf("decode entries: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("entries = %d, want 1", len(entries))
	}

	rec = doRequest(t, h, http.MethodGet, "/v1/dlq/count", "")
	if rec.Code != http.StatusOK {
		t.Errorf("GET /v1/dlq/count = %d", rec.Code)
	}

	rec = doRequest(t, h, http.MethodGet, "/v1/dlq/"+entries[0].ID.String(), "")
	if rec.Code != http.StatusOK {
		t.Errorf("GET /v1/dlq/{id} = %d", rec.Code)
	}

	// Fix the processor so the replayed job can succeed.
	proc.fail = false
	rec = doRequest(t, h, http.MethodPost, "/v1/dlq/"+entries[0].ID.String()+"/replay", "")
	if rec.Code != http.StatusCreated {
		t.Fatalf("replay = %d, body %s", rec.Code, rec.Body)
	}

	rec = doRequest(t, h, http.MethodPost, "/v1/dlq/"+entries[0].ID.String()+"/replay", "")
	if rec.Code != http.StatusConflict {
		t.Errorf("second replay = %d, want %d", rec.Code, http.StatusConflict)
	}
}

func TestAPI_Stats(t *testing.T) {
	a, eng := newTestAPI(t, &echoProcessor{})
	h := a.Handler()

	if _, err := eng.Submit(context.Background(), "doc-stats", nil); err != nil {
		t.Fatalf("Submit: %v", err)
	}

	rec := doRequest(t, h, http.MethodGet, "/v1/stats", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("GET /v1/stats = %d", rec.Code)
	}
	var resp statsResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode stats: %v", err)
	}
	if resp.Jobs[job.StatusFailed] != 1 {
		t.Errorf("failed count = %d, want 1", resp.Jobs[job.StatusFailed])
	}
	if !resp.DLQExists {
		t.Error("DLQ should be enabled with the memory store")
	}
}
