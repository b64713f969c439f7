package backend

import (
	"context"
	"time"

	"github.com/robochat-dev/robochat/pkg/observability"
)

// Instrumented wraps a Backend with metrics and a trace span per call.
type Instrumented struct {
	inner Backend
}

// Instrument wraps inner. Metrics must already be registered via
// observability.InitMetrics.
func Instrument(inner Backend) *Instrumented {
	return &Instrumented{inner: inner}
}

func (i *Instrumented) Name() string { return i.inner.Name() }

func (i *Instrumented) Chat(ctx context.Context, req *Request) (*Response, error) {
	ctx, span := observability.StartSpan(ctx, "backend.chat")
	defer span.End()

	start := time.Now()
	resp, err := i.inner.Chat(ctx, req)
	status := "ok"
	if err != nil {
		status = "error"
		span.RecordError(err)
	}
	observability.RecordBackendRequest(i.inner.Name(), status, time.Since(start))
	return resp, err
}
