package client

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"testing"

	"github.com/jarcoal/httpmock"

	"github.com/naramarket/go-naramarket/config"
)

func sampleListItem() map[string]string {
	return map[string]string{
		"prdctClsfcNoFst":  "43",
		"prdctClsfcNoScnd": "21",
		"prdctStndrdNo":    "43211503-001",
		"mnfcturCmpnyNm":   "삼성전자(주)",
		"prdctClsfcNoNm":   "데스크톱컴퓨터",
	}
}

func TestDetailAttributes(t *testing.T) {
	transport := httpmock.NewMockTransport()
	calls := 0
	var payload map[string]string
	transport.RegisterResponder("POST", config.DefaultConfig().DetailURL,
		func(req *http.Request) (*http.Response, error) {
			calls++
			body, _ := io.ReadAll(req.Body)
			if err := json.Unmarshal(body, &payload); err != nil {
				t.Fatalf("decode payload: %v", err)
			}
			return httpmock.NewStringResponse(200,
				`{"resultList":[{"prdctAtrbNm":"CPU","prdctAtrbVl":"8코어"},{"prdctAtrbNm":"메모리","prdctAtrbVl":"16GB"},{"prdctAtrbNm":"","prdctAtrbVl":"dropped"},{"prdctAtrbNm":"빈값","prdctAtrbVl":" "}]}`), nil
		})

	c := newTestClient(t, transport)
	attrs, sent, err := c.DetailAttributes(context.Background(), sampleListItem())
	if err != nil {
		t.Fatalf("detail attributes: %v", err)
	}

	if len(attrs) != 2 {
		t.Fatalf("attributes = %d, want 2 (blank names and values dropped): %v", len(attrs), attrs)
	}
	if attrs["CPU"] != "8코어" || attrs["메모리"] != "16GB" {
		t.Fatalf("unexpected attributes: %v", attrs)
	}

	// Only identifying fields go into the payload; descriptive list
	// fields stay out.
	if _, ok := payload["prdctClsfcNoNm"]; ok {
		t.Fatalf("payload should not include prdctClsfcNoNm: %v", payload)
	}
	if payload["prdctStndrdNo"] != "43211503-001" {
		t.Fatalf("payload missing prdctStndrdNo: %v", payload)
	}
	if len(sent) != len(payload) {
		t.Fatalf("reported payload (%d fields) differs from sent payload (%d fields)", len(sent), len(payload))
	}
	if calls != 1 {
		t.Fatalf("remote calls = %d, want 1", calls)
	}
}

func TestDetailAttributesCached(t *testing.T) {
	transport := httpmock.NewMockTransport()
	calls := 0
	transport.RegisterResponder("POST", config.DefaultConfig().DetailURL,
		func(*http.Request) (*http.Response, error) {
			calls++
			return httpmock.NewStringResponse(200, `{"resultList":[{"prdctAtrbNm":"CPU","prdctAtrbVl":"8코어"}]}`), nil
		})

	c := newTestClient(t, transport)
	for i := 0; i < 3; i++ {
		if _, _, err := c.DetailAttributes(context.Background(), sampleListItem()); err != nil {
			t.Fatalf("detail attributes (call %d): %v", i, err)
		}
	}

	if calls != 1 {
		t.Fatalf("remote calls = %d, want 1 (repeats served from cache)", calls)
	}
	hits, misses := c.DetailCacheStats()
	if hits != 2 || misses != 1 {
		t.Fatalf("cache stats = (%d hits, %d misses), want (2, 1)", hits, misses)
	}
}

func TestDetailAttributesNoUsableFields(t *testing.T) {
	c := newTestClient(t, httpmock.NewMockTransport())
	_, _, err := c.DetailAttributes(context.Background(), map[string]string{"unrelated": "field"})
	if got := StatusLabel(err); got != StatusMalformed {
		t.Fatalf("StatusLabel = %q, want %q", got, StatusMalformed)
	}
}

func TestDetailAttributesErrorClassification(t *testing.T) {
	tests := []struct {
		name       string
		status     int
		body       string
		wantStatus string
	}{
		{name: "rate limited", status: 429, body: "", wantStatus: StatusRateLimited},
		{name: "server error", status: 500, body: "", wantStatus: StatusNetwork},
		{name: "html response", status: 200, body: "<html>blocked</html>", wantStatus: StatusMalformed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			transport := httpmock.NewMockTransport()
			transport.RegisterResponder("POST", config.DefaultConfig().DetailURL, httpmock.NewStringResponder(tt.status, tt.body))

			c := newTestClient(t, transport)
			_, _, err := c.DetailAttributes(context.Background(), sampleListItem())
			if got := StatusLabel(err); got != tt.wantStatus {
				t.Fatalf("StatusLabel = %q, want %q (err: %v)", got, tt.wantStatus, err)
			}
		})
	}
}

func TestCacheKeyDeterministic(t *testing.T) {
	a := map[string]string{"x": "1", "y": "2", "z": "3"}
	b := map[string]string{"z": "3", "y": "2", "x": "1"}
	if cacheKey(a) != cacheKey(b) {
		t.Fatalf("cache key should not depend on map iteration order")
	}
	if cacheKey(a) == cacheKey(map[string]string{"x": "1", "y": "2"}) {
		t.Fatalf("different payloads should not collide")
	}
}
