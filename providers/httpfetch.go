package providers

import (
	"context"
	"crypto/tls"
	"time"

	"github.com/bytedance/sonic"
	"github.com/cloudwego/hertz/pkg/app/client"
	"github.com/cloudwego/hertz/pkg/protocol"
	"github.com/cloudwego/hertz/pkg/protocol/consts"
	"golang.org/x/time/rate"
)

// FetchJSON performs a GET against a provider pricing endpoint and decodes
// the JSON body into out. Response status is mapped onto the adapter
// failure taxonomy; bodies are never included in returned errors.
func FetchJSON(ctx context.Context, url string, headers map[string]string, timeout time.Duration, out interface{}) error {
	req, resp := protocol.AcquireRequest(), protocol.AcquireResponse()
	defer func() {
		protocol.ReleaseRequest(req)
		protocol.ReleaseResponse(resp)
	}()

	req.SetMethod(consts.MethodGet)
	req.SetRequestURI(url)
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	hClient, err := client.NewClient(client.WithTLSConfig(&tls.Config{
		MinVersion: tls.VersionTLS12,
	}))
	if err != nil {
		return Transient(err, "create http client")
	}

	if err = hClient.DoTimeout(ctx, req, resp, timeout); err != nil {
		return Transient(err, "fetch "+url)
	}

	switch code := resp.StatusCode(); {
	case code == consts.StatusOK:
	case code == consts.StatusUnauthorized || code == consts.StatusForbidden:
		return AuthFailedf("url %s returned %d", url, code)
	default:
		return Transientf("url %s returned %d", url, code)
	}

	if err = sonic.Unmarshal(resp.Body(), out); err != nil {
		return ParseError(err, "decode "+url)
	}
	return nil
}

// Throttle enforces an adapter's sustainable QPS. Zero-value QPS means
// unthrottled.
type Throttle struct {
	limiter *rate.Limiter
}

// NewThrottle builds a limiter for the given sustained QPS with a burst of
// one request.
func NewThrottle(qps float64) Throttle {
	if qps <= 0 {
		return Throttle{}
	}
	return Throttle{limiter: rate.NewLimiter(rate.Limit(qps), 1)}
}

// Wait blocks until the next request is admitted or ctx is done.
func (t Throttle) Wait(ctx context.Context) error {
	if t.limiter == nil {
		return nil
	}
	if err := t.limiter.Wait(ctx); err != nil {
		return Transient(err, "rate limit wait")
	}
	return nil
}
