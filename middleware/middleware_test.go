package middleware

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/xraph/distill/id"
	"github.com/xraph/distill/job"
	"github.com/xraph/distill/processor"
)

func testItem() job.WorkItem {
	return job.WorkItem{
		JobID:      id.NewJobID(),
		ChunkID:    id.NewChunkID(),
		ContentRef: "chunk-abc",
		Attempt:    1,
	}
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestChain_Order(t *testing.T) {
	var order []string
	mk := func(name string) Middleware {
		return func(ctx context.Context, _ job.WorkItem, next Handler) (string, error) {
			order = append(order, name+":before")
			out, err := next(ctx)
			order = append(order, name+":after")
			return out, err
		}
	}

	chain := Chain(mk("outer"), mk("inner"))
	out, err := chain(context.Background(), testItem(), func(context.Context) (string, error) {
		order = append(order, "handler")
		return "out", nil
	})
	if err != nil || out != "out" {
		t.Fatalf("chain = (%q, %v)", out, err)
	}

	want := "outer:before,inner:before,handler,inner:after,outer:after"
	if got := strings.Join(order, ","); got != want {
		t.Errorf("order = %s, want %s", got, want)
	}
}

func TestChain_Empty(t *testing.T) {
	chain := Chain()
	out, err := chain(context.Background(), testItem(), func(context.Context) (string, error) {
		return "out", nil
	})
	if err != nil || out != "out" {
		t.Errorf("empty chain = (%q, %v), want pass-through", out, err)
	}
}

func TestRecover_ConvertsPanicToError(t *testing.T) {
	mw := Recover(discardLogger())
	out, err := mw(context.Background(), testItem(), func(context.Context) (string, error) {
		panic("boom")
	})
	if out != "" {
		t.Errorf("out = %q, want empty after panic", out)
	}
	if err == nil {
		t.Fatal("expected error from recovered panic")
	}
	if got := processor.KindOf(err); got != processor.KindOther {
		t.Errorf("kind = %q, want %q", got, processor.KindOther)
	}
}

func TestRecover_PassThrough(t *testing.T) {
	mw := Recover(discardLogger())
	wantErr := errors.New("plain failure")
	_, err := mw(context.Background(), testItem(), func(context.Context) (string, error) {
		return "", wantErr
	})
	if !errors.Is(err, wantErr) {
		t.Errorf("err = %v, want original error untouched", err)
	}
}

func TestTimeout_CancelsContext(t *testing.T) {
	mw := Timeout(10 * time.Millisecond)
	_, err := mw(context.Background(), testItem(), func(ctx context.Context) (string, error) {
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-time.After(5 * time.Second):
			return "out", nil
		}
	})
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("err = %v, want DeadlineExceeded", err)
	}
	if got := processor.KindOf(err); got != processor.KindTimeout {
		t.Errorf("kind = %q, want %q", got, processor.KindTimeout)
	}
}

func TestTimeout_ZeroDisablesDeadline(t *testing.T) {
	mw := Timeout(0)
	_, err := mw(context.Background(), testItem(), func(ctx context.Context) (string, error) {
		if _, ok := ctx.Deadline(); ok {
			t.Error("unexpected deadline on context")
		}
		return "out", nil
	})
	if err != nil {
		t.Fatalf("err = %v", err)
	}
}

func TestLogging_PreservesResult(t *testing.T) {
	mw := Logging(discardLogger())

	out, err := mw(context.Background(), testItem(), func(context.Context) (string, error) {
		return "out", nil
	})
	if err != nil || out != "out" {
		t.Errorf("success result altered: (%q, %v)", out, err)
	}

	wantErr := processor.Errorf(processor.KindUpstreamUnavailable, "503")
	_, err = mw(context.Background(), testItem(), func(context.Context) (string, error) {
		return "", wantErr
	})
	if !errors.Is(err, wantErr) {
		t.Errorf("failure result altered: %v", err)
	}
}

// Metrics and Tracing fall back to noop providers when no SDK is
// installed; they must still pass results through untouched.
func TestMetricsAndTracing_NoopPassThrough(t *testing.T) {
	chain := Chain(Metrics(), Tracing())
	out, err := chain(context.Background(), testItem(), func(context.Context) (string, error) {
		return "out", nil
	})
	if err != nil || out != "out" {
		t.Errorf("noop instrumentation altered result: (%q, %v)", out, err)
	}

	wantErr := processor.Errorf(processor.KindTimeout, "deadline exceeded")
	_, err = chain(context.Background(), testItem(), func(context.Context) (string, error) {
		return "", wantErr
	})
	if !errors.Is(err, wantErr) {
		t.Errorf("noop instrumentation altered error: %v", err)
	}
}
