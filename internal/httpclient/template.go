package httpclient

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/torosent/tracefire/internal/config"
	"github.com/torosent/tracefire/internal/payload"
)

// Template is the immutable request every dispatch is built from. It is safe
// for concurrent use; NewRequest never mutates it.
type Template struct {
	method  string
	target  string
	host    string
	headers http.Header
	body    []byte
}

// NewTemplate validates cfg and freezes the request it describes. The body is
// read once here so that no dispatch touches the filesystem.
func NewTemplate(cfg *config.Config) (*Template, error) {
	if cfg == nil {
		return nil, errors.New("config cannot be nil")
	}

	target := strings.TrimSpace(cfg.TargetURL)
	if target == "" && cfg.KServe.Enabled() {
		predict, err := payload.PredictURL(cfg.KServe.IngressHost, cfg.KServe.Port, cfg.KServe.ModelName)
		if err != nil {
			return nil, fmt.Errorf("kserve: %w", err)
		}
		target = predict
	}
	if target == "" {
		return nil, errors.New("target URL is required")
	}
	parsed, err := url.Parse(target)
	if err != nil {
		return nil, fmt.Errorf("invalid target URL: %w", err)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return nil, fmt.Errorf("invalid target URL %q: scheme must be http or https", target)
	}
	if parsed.Host == "" {
		return nil, fmt.Errorf("invalid target URL %q: missing host", target)
	}

	method := strings.ToUpper(strings.TrimSpace(cfg.Method))
	if method == "" {
		method = http.MethodPost
	}

	headers := http.Header{}
	for key, value := range cfg.Headers {
		trimmedKey := strings.TrimSpace(key)
		if trimmedKey == "" || strings.ContainsAny(trimmedKey, "\r\n :") {
			return nil, fmt.Errorf("invalid header key %q", key)
		}
		canonicalKey := http.CanonicalHeaderKey(trimmedKey)
		if strings.ContainsAny(value, "\r\n") {
			return nil, fmt.Errorf("invalid header value for %s", canonicalKey)
		}
		headers.Set(canonicalKey, value)
	}

	// net/http ignores a Host entry in the header map; it must go on the
	// request itself.
	host := headers.Get("Host")
	headers.Del("Host")
	if cfg.KServe.Enabled() {
		if sh := strings.TrimSpace(cfg.KServe.ServiceHost); sh != "" {
			host = sh
		}
		if headers.Get("Content-Type") == "" {
			headers.Set("Content-Type", payload.ContentType)
		}
	}

	body, err := loadBody(cfg)
	if err != nil {
		return nil, err
	}

	return &Template{
		method:  method,
		target:  parsed.String(),
		host:    host,
		headers: headers,
		body:    body,
	}, nil
}

func (t *Template) Method() string { return t.method }

func (t *Template) URL() string { return t.target }

// Host returns the Host header override, or "" to use the URL host.
func (t *Template) Host() string { return t.host }

// Header returns a copy of the template headers.
func (t *Template) Header() http.Header { return t.headers.Clone() }

// BodyLen returns the size of the frozen body in bytes.
func (t *Template) BodyLen() int { return len(t.body) }

// NewRequest returns a fresh request bound to ctx. Headers are copied, so
// callers may add per-dispatch headers such as trace context.
func (t *Template) NewRequest(ctx context.Context) (*http.Request, error) {
	if t == nil {
		return nil, errors.New("template cannot be nil")
	}
	if ctx == nil {
		ctx = context.Background()
	}

	var body io.Reader
	if len(t.body) > 0 {
		body = bytes.NewReader(t.body)
	}
	req, err := http.NewRequestWithContext(ctx, t.method, t.target, body)
	if err != nil {
		return nil, err
	}
	req.Header = t.headers.Clone()
	if t.host != "" {
		req.Host = t.host
	}
	return req, nil
}
