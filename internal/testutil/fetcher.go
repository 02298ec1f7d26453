package testutil

import (
	"context"
	"errors"
	"sync"
	"time"
)

// ErrScriptExhausted is returned by ScriptedFetcher once every scripted
// response has been served.
var ErrScriptExhausted = errors.New("scripted fetcher: no more responses")

// Response is one scripted fetch result.
type Response struct {
	Timestamp time.Time
	Body      []byte
	Err       error
}

// ScriptedFetcher serves canned responses in order, per endpoint.
//
// It satisfies the ingest fetch contract without any network I/O, so ingest
// tests produce identical captures on every run.
//
// Thread-safety: ScriptedFetcher is safe for concurrent use.
type ScriptedFetcher struct {
	mu        sync.Mutex
	responses map[string][]Response
	calls     map[string]int
}

// NewScriptedFetcher creates an empty fetcher. Use Add to script responses.
func NewScriptedFetcher() *ScriptedFetcher {
	return &ScriptedFetcher{
		responses: map[string][]Response{},
		calls:     map[string]int{},
	}
}

// Add appends a response for endpoint.
func (f *ScriptedFetcher) Add(endpoint string, r Response) *ScriptedFetcher {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.responses[endpoint] = append(f.responses[endpoint], r)
	return f
}

// Fetch returns the next scripted response for endpoint.
func (f *ScriptedFetcher) Fetch(ctx context.Context, endpoint string) (time.Time, []byte, error) {
	if err := ctx.Err(); err != nil {
		return time.Time{}, nil, err
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	f.calls[endpoint]++
	queue := f.responses[endpoint]
	if len(queue) == 0 {
		return time.Time{}, nil, ErrScriptExhausted
	}
	r := queue[0]
	f.responses[endpoint] = queue[1:]
	return r.Timestamp, r.Body, r.Err
}

// Calls returns how many times endpoint was fetched.
func (f *ScriptedFetcher) Calls(endpoint string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[endpoint]
}
