package provider

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/skillatlas/taxonomy-service/logger"
	"github.com/skillatlas/taxonomy-service/types"
)

// stubCaller replays canned responses per path and records every call.
type stubCaller struct {
	mu        sync.Mutex
	responses map[string]stubResponse
	calls     []stubCall
}

type stubResponse struct {
	body   string
	status int
	err    error
}

type stubCall struct {
	method string
	path   string
	query  map[string]string
}

func newStubCaller() *stubCaller {
	return &stubCaller{responses: make(map[string]stubResponse)}
}

func (s *stubCaller) respond(path, body string) {
	s.responses[path] = stubResponse{body: body, status: 200}
}

func (s *stubCaller) respondStatus(path string, status int) {
	s.responses[path] = stubResponse{status: status}
}

func (s *stubCaller) Call(method, path string, query map[string]string, _ *types.CallOptions) ([]byte, int, error) {
	s.mu.Lock()
	s.calls = append(s.calls, stubCall{method: method, path: path, query: query})
	s.mu.Unlock()

	resp, ok := s.responses[path]
	if !ok {
		return nil, 404, nil
	}
	if resp.err != nil {
		return nil, 0, resp.err
	}
	return []byte(resp.body), resp.status, nil
}

func (s *stubCaller) Close() {}

func (s *stubCaller) callCount(path string) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	count := 0
	for _, call := range s.calls {
		if call.path == path {
			count++
		}
	}
	return count
}

type allowAllLimiter struct{}

func (allowAllLimiter) Check(context.Context) error { return nil }
func (allowAllLimiter) Status(context.Context) (*types.RateLimitStatus, error) {
	return &types.RateLimitStatus{}, nil
}
func (allowAllLimiter) Reset(context.Context) error { return nil }

type denyLimiter struct{}

func (denyLimiter) Check(context.Context) error {
	return &types.RateLimitError{Key: "test", Limit: 1, Window: time.Minute, RetryAfter: time.Second}
}
func (denyLimiter) Status(context.Context) (*types.RateLimitStatus, error) {
	return &types.RateLimitStatus{}, nil
}
func (denyLimiter) Reset(context.Context) error { return nil }

type passBreaker struct{}

func (passBreaker) Execute(fn func() error) error { return fn() }
func (passBreaker) State() string                 { return "closed" }
func (passBreaker) Reset()                        {}

type openBreaker struct{}

func (openBreaker) Execute(func() error) error {
	return types.Errorf(types.ErrBreakerOpen, "upstream: test")
}
func (openBreaker) State() string { return "open" }
func (openBreaker) Reset()        {}

type testStore struct {
	mu   sync.Mutex
	data map[string]interface{}
}

func newTestStore() *testStore {
	return &testStore{data: make(map[string]interface{})}
}

func (s *testStore) Get(key string) (interface{}, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.data[key]
	return v, ok
}

func (s *testStore) Set(key string, value interface{}, _ time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[key] = value
	return nil
}

func (s *testStore) Delete(key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.data, key)
	return nil
}

func (s *testStore) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data = make(map[string]interface{})
	return nil
}

func (s *testStore) Size() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.data)
}

func testLogger() types.Logger {
	return logger.NewZapWrapper(zap.NewNop())
}

func testProviderConfig() *types.ProviderConfig {
	return &types.ProviderConfig{
		Enabled:   true,
		Language:  "en",
		SearchTTL: time.Hour,
		DetailTTL: 24 * time.Hour,
	}
}
