package httpclient

import (
	"net/http"
	"time"
)

// idleConnsPerHost bounds the keep-alive pool towards the replay target.
const idleConnsPerHost = 256

// NewClient returns the client shared by every dispatch of a run. A timeout
// of zero leaves request lifetime to the transport and the caller's context.
func NewClient(timeout time.Duration) *http.Client {
	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.MaxIdleConns = 2 * idleConnsPerHost
	transport.MaxIdleConnsPerHost = idleConnsPerHost

	return &http.Client{
		Timeout:   max(timeout, 0),
		Transport: transport,
	}
}
