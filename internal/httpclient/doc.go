// Package httpclient turns tracefire configuration into the request that is
// replayed, and provides the HTTP client used to send it.
//
// A [Template] is built once before the replay starts. It validates the
// target, canonicalizes headers and reads the body into memory, so every
// dispatch only allocates a fresh request:
//
//	tmpl, err := httpclient.NewTemplate(cfg)
//	if err != nil {
//		return err
//	}
//	req, err := tmpl.NewRequest(ctx)
//
// When kserve.model_name is configured and no explicit target is given, the
// target becomes the model's v1 predict URL, the Host header is set to the
// KServe service host, and kserve.image (if any) is encoded as the body.
//
// [NewClient] returns a client with a tuned transport:
//
//	client := httpclient.NewClient(cfg.Timeout)
package httpclient
