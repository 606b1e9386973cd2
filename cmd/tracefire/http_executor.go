package main

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/torosent/tracefire/internal/extractor"
	"github.com/torosent/tracefire/internal/httpclient"
	"github.com/torosent/tracefire/internal/replay"
	"github.com/torosent/tracefire/internal/tracing"
)

const maxLoggedBodyBytes = 1024

// httpExecutor implements replay.Executor for one HTTP request per dispatch.
type httpExecutor struct {
	client    *http.Client
	template  *httpclient.Template
	checks    []extractor.Check
	propagate bool
}

// Execute sends the template request and times it from just before the send
// until the body is fully read.
func (e *httpExecutor) Execute(ctx context.Context, _ replay.DispatchRecord) replay.Response {
	req, err := e.template.NewRequest(ctx)
	if err != nil {
		return replay.Response{Err: err}
	}
	if e.propagate {
		tracing.InjectHTTPHeaders(ctx, req.Header)
	}

	start := time.Now()
	resp, err := e.client.Do(req)
	if err != nil {
		return replay.Response{Latency: time.Since(start), Err: err}
	}
	defer resp.Body.Close()

	success := resp.StatusCode >= 200 && resp.StatusCode < 300
	var (
		body    []byte
		n       int64
		readErr error
	)
	if success && len(e.checks) == 0 {
		n, readErr = io.Copy(io.Discard, resp.Body)
	} else {
		body, readErr = io.ReadAll(resp.Body)
		n = int64(len(body))
	}

	out := replay.Response{
		StatusCode: resp.StatusCode,
		Latency:    time.Since(start),
		BytesRead:  n,
	}
	switch {
	case readErr != nil:
		out.Err = fmt.Errorf("read response body: %w", readErr)
	case !success:
		snippet := body
		if len(snippet) > maxLoggedBodyBytes {
			snippet = snippet[:maxLoggedBodyBytes]
		}
		out.Err = &replay.HTTPError{
			StatusCode: resp.StatusCode,
			Body:       strings.TrimSpace(string(snippet)),
		}
	case len(e.checks) > 0:
		out.Err = extractor.Evaluate(body, e.checks)
	}
	return out
}
