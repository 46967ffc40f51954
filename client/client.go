package client

import (
	"encoding/base64"
	"sync/atomic"
	"time"

	"github.com/valyala/fasthttp"
	"go.uber.org/zap"

	"github.com/skillatlas/taxonomy-service/types"
)

const defaultTimeout = 30 * time.Second

type Config struct {
	BaseURL string
	Timeout time.Duration
	// Username/Password enable basic auth. Only the encoded header value is
	// computed at call time; the raw credential is never logged.
	Username string
	Password string
}

// HTTPClient is the transport under the provider adapters. It owns connection
// pooling and the per-call timeout; rate limiting and breaker gating live a
// layer up, in the adapters. Once a call is dispatched it runs to completion
// or timeout regardless of the caller; cancellation is not propagated into
// in-flight requests.
type HTTPClient struct {
	logger  types.Logger
	name    string
	client  *fasthttp.Client
	config  *Config
	auth    string
	closed  int32
	timeout time.Duration
}

func NewHTTPClient(logger types.Logger, name string, config *Config) *HTTPClient {
	timeout := config.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}

	var auth string
	if config.Username != "" {
		auth = "Basic " + base64.StdEncoding.EncodeToString(
			[]byte(config.Username+":"+config.Password))
	}

	return &HTTPClient{
		logger: logger,
		name:   name,
		client: &fasthttp.Client{
			ReadTimeout:  timeout,
			WriteTimeout: timeout,
		},
		config:  config,
		auth:    auth,
		timeout: timeout,
	}
}

func (c *HTTPClient) Call(method, path string, query map[string]string, opts *types.CallOptions) ([]byte, int, error) {
	if atomic.LoadInt32(&c.closed) == 1 {
		return nil, 0, types.Errorf(types.ErrProviderUnavailable, "client %s is closed", c.name)
	}

	req := fasthttp.AcquireRequest()
	resp := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseRequest(req)
	defer fasthttp.ReleaseResponse(resp)

	req.SetRequestURI(c.config.BaseURL + path)
	req.Header.SetMethod(method)
	req.Header.Set("Accept", "application/json")

	for key, value := range query {
		req.URI().QueryArgs().Set(key, value)
	}

	if c.auth != "" {
		req.Header.Set("Authorization", c.auth)
	}

	timeout := c.timeout
	if opts != nil {
		for key, value := range opts.Headers {
			req.Header.Set(key, value)
		}
		if opts.Timeout > 0 {
			timeout = opts.Timeout
		}
	}

	c.logger.Debug("Provider request",
		zap.String("upstream", c.name),
		zap.String("method", method),
		zap.String("path", path))

	if err := c.client.DoTimeout(req, resp, timeout); err != nil {
		return nil, 0, types.WrapError(err, "request to "+c.name+" failed")
	}

	body := make([]byte, len(resp.Body()))
	copy(body, resp.Body())

	return body, resp.StatusCode(), nil
}

func (c *HTTPClient) Close() {
	if !atomic.CompareAndSwapInt32(&c.closed, 0, 1) {
		return
	}
	c.client.CloseIdleConnections()
	c.logger.Debug("HTTP client closed", zap.String("upstream", c.name))
}
