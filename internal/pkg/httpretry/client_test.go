package httpretry

import (
	"io"
	"net/http"
	"strings"
	"testing"
	"time"
)

type scriptedDoer struct {
	statuses []int
	calls    int
}

func (d *scriptedDoer) Do(req *http.Request) (*http.Response, error) {
	status := d.statuses[d.calls]
	if d.calls < len(d.statuses)-1 {
		d.calls++
	}
	return &http.Response{
		StatusCode: status,
		Body:       io.NopCloser(strings.NewReader("{}")),
	}, nil
}

func fastClient(doer HTTPDoer, maxRetries int) *RetryClient {
	return &RetryClient{
		client:     doer,
		maxRetries: maxRetries,
		baseDelay:  time.Millisecond,
		maxDelay:   time.Millisecond,
	}
}

func TestDoRetriesTransientStatus(t *testing.T) {
	doer := &scriptedDoer{statuses: []int{503, 503, 200}}
	rc := fastClient(doer, 3)

	req, _ := http.NewRequest(http.MethodGet, "http://upstream.test/v1/ping", nil)
	resp, err := rc.Do(req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != 200 {
		t.Errorf("expected 200 after retries, got %d", resp.StatusCode)
	}
	if doer.calls != 2 {
		t.Errorf("expected 2 retries before success, got %d", doer.calls)
	}
}

func TestDoDoesNotRetryClientErrors(t *testing.T) {
	doer := &scriptedDoer{statuses: []int{404, 200}}
	rc := fastClient(doer, 3)

	req, _ := http.NewRequest(http.MethodGet, "http://upstream.test/v1/missing", nil)
	resp, err := rc.Do(req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != 404 {
		t.Errorf("expected 404 returned as-is, got %d", resp.StatusCode)
	}
	if doer.calls != 0 {
		t.Errorf("expected no retries for 404, got %d", doer.calls)
	}
}

func TestDoReturnsFinalResponseWhenRetriesExhausted(t *testing.T) {
	doer := &scriptedDoer{statuses: []int{503}}
	rc := fastClient(doer, 1)

	req, _ := http.NewRequest(http.MethodGet, "http://upstream.test/v1/ping", nil)
	resp, err := rc.Do(req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != 503 {
		t.Errorf("expected final 503 response, got %d", resp.StatusCode)
	}
}
