package crawler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"testing"
	"time"

	"github.com/jarcoal/httpmock"

	"github.com/naramarket/go-naramarket/client"
	"github.com/naramarket/go-naramarket/config"
	"github.com/naramarket/go-naramarket/models"
)

const listEndpointURL = "http://apis.data.go.kr/1230000/at/ShoppingMallPrdctInfoService/getShoppingMallPrdctInfoList"

func newTestClient(t *testing.T, transport *httpmock.MockTransport) *client.Client {
	t.Helper()
	cfg := config.DefaultConfig()
	cfg.ServiceKey = "test-key"
	c, err := client.New(cfg, &http.Client{Transport: transport})
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	return c
}

// pagedResponder serves a fixed population of items sliced by the
// pageNo/numOfRows query parameters, the way the real list API pages.
func pagedResponder(total int) httpmock.Responder {
	return func(req *http.Request) (*http.Response, error) {
		query := req.URL.Query()
		pageNo, _ := strconv.Atoi(query.Get("pageNo"))
		numRows, _ := strconv.Atoi(query.Get("numOfRows"))

		start := (pageNo - 1) * numRows
		count := total - start
		if count > numRows {
			count = numRows
		}
		if count < 0 {
			count = 0
		}

		items := make([]map[string]string, 0, count)
		for i := 0; i < count; i++ {
			items = append(items, map[string]string{"prdctIdntNo": fmt.Sprintf("%08d", start+i)})
		}
		env := map[string]any{
			"response": map[string]any{
				"header": map[string]string{"resultCode": "00"},
				"body": map[string]any{
					"items":      items,
					"totalCount": total,
					"pageNo":     pageNo,
					"numOfRows":  numRows,
				},
			},
		}
		body, err := json.Marshal(env)
		if err != nil {
			return nil, err
		}
		return httpmock.NewBytesResponse(200, body), nil
	}
}

func TestPaginatorWalksAllPages(t *testing.T) {
	transport := httpmock.NewMockTransport()
	transport.RegisterResponder("GET", listEndpointURL, pagedResponder(250))

	p := &Paginator{Client: newTestClient(t, transport), NumRows: 100}

	received := 0
	pages, err := p.Each(context.Background(), client.ShoppingList, nil, func(resp *models.ApiResponse) error {
		received += len(resp.Items)
		return nil
	})
	if err != nil {
		t.Fatalf("each: %v", err)
	}
	if pages != 3 {
		t.Fatalf("pages = %d, want 3", pages)
	}
	if received != 250 {
		t.Fatalf("received = %d, want 250", received)
	}
}

func TestPaginatorEmptyFirstPage(t *testing.T) {
	transport := httpmock.NewMockTransport()
	transport.RegisterResponder("GET", listEndpointURL, pagedResponder(0))

	p := &Paginator{Client: newTestClient(t, transport), NumRows: 100}
	pages, err := p.Each(context.Background(), client.ShoppingList, nil, func(*models.ApiResponse) error {
		t.Fatalf("callback should not run for an empty page")
		return nil
	})
	if err != nil || pages != 0 {
		t.Fatalf("pages = %d, err = %v, want 0 pages and nil error", pages, err)
	}
}

func TestPaginatorMaxPages(t *testing.T) {
	transport := httpmock.NewMockTransport()
	transport.RegisterResponder("GET", listEndpointURL, pagedResponder(1000))

	p := &Paginator{Client: newTestClient(t, transport), NumRows: 10, MaxPages: 2}
	pages, err := p.Each(context.Background(), client.ShoppingList, nil, func(*models.ApiResponse) error {
		return nil
	})
	if err != nil {
		t.Fatalf("each: %v", err)
	}
	if pages != 2 {
		t.Fatalf("pages = %d, want 2 (capped)", pages)
	}
}

func TestPaginatorRetriesRateLimit(t *testing.T) {
	transport := httpmock.NewMockTransport()
	calls := 0
	transport.RegisterResponder("GET", listEndpointURL,
		func(req *http.Request) (*http.Response, error) {
			calls++
			if calls == 1 {
				return httpmock.NewStringResponse(429, ""), nil
			}
			return pagedResponder(1)(req)
		})

	p := &Paginator{
		Client:  newTestClient(t, transport),
		NumRows: 100,
		Retry:   RetryPolicy{MaxAttempts: 3, Backoff: time.Millisecond},
	}

	received := 0
	pages, err := p.Each(context.Background(), client.ShoppingList, nil, func(resp *models.ApiResponse) error {
		received += len(resp.Items)
		return nil
	})
	if err != nil {
		t.Fatalf("each: %v", err)
	}
	if pages != 1 || received != 1 {
		t.Fatalf("pages = %d, received = %d, want 1 and 1", pages, received)
	}
	if calls != 2 {
		t.Fatalf("transport calls = %d, want 2 (one retry)", calls)
	}
}

func TestPaginatorAuthErrorNotRetried(t *testing.T) {
	transport := httpmock.NewMockTransport()
	calls := 0
	transport.RegisterResponder("GET", listEndpointURL,
		func(*http.Request) (*http.Response, error) {
			calls++
			return httpmock.NewStringResponse(200,
				`{"response":{"header":{"resultCode":"30","resultMsg":"SERVICE_KEY_IS_NOT_REGISTERED_ERROR"}}}`), nil
		})

	p := &Paginator{
		Client:  newTestClient(t, transport),
		NumRows: 100,
		Retry:   RetryPolicy{MaxAttempts: 3, Backoff: time.Millisecond},
	}

	pages, err := p.Each(context.Background(), client.ShoppingList, nil, func(*models.ApiResponse) error {
		return nil
	})
	if got := client.StatusLabel(err); got != client.StatusAuthError {
		t.Fatalf("StatusLabel = %q, want %q", got, client.StatusAuthError)
	}
	if pages != 0 {
		t.Fatalf("pages = %d, want 0", pages)
	}
	if calls != 1 {
		t.Fatalf("transport calls = %d, want 1 (terminal error, no retry)", calls)
	}
}

func TestPaginatorRetriesExhausted(t *testing.T) {
	transport := httpmock.NewMockTransport()
	calls := 0
	transport.RegisterResponder("GET", listEndpointURL,
		func(*http.Request) (*http.Response, error) {
			calls++
			return httpmock.NewStringResponse(429, ""), nil
		})

	p := &Paginator{
		Client:  newTestClient(t, transport),
		NumRows: 100,
		Retry:   RetryPolicy{MaxAttempts: 3, Backoff: time.Millisecond},
	}

	_, err := p.Each(context.Background(), client.ShoppingList, nil, func(*models.ApiResponse) error {
		return nil
	})
	if got := client.StatusLabel(err); got != client.StatusRateLimited {
		t.Fatalf("StatusLabel = %q, want %q", got, client.StatusRateLimited)
	}
	if calls != 3 {
		t.Fatalf("transport calls = %d, want 3", calls)
	}
}

func TestPaginatorCallbackErrorAborts(t *testing.T) {
	transport := httpmock.NewMockTransport()
	transport.RegisterResponder("GET", listEndpointURL, pagedResponder(300))

	sinkErr := errors.New("sink full")
	p := &Paginator{Client: newTestClient(t, transport), NumRows: 100}
	pages, err := p.Each(context.Background(), client.ShoppingList, nil, func(*models.ApiResponse) error {
		return sinkErr
	})
	if !errors.Is(err, sinkErr) {
		t.Fatalf("err = %v, want %v", err, sinkErr)
	}
	if pages != 0 {
		t.Fatalf("pages = %d, want 0 (failed page does not count)", pages)
	}
}

func TestRetryPolicyBackoff(t *testing.T) {
	policy := RetryPolicy{Backoff: 200 * time.Millisecond, BackoffMax: 500 * time.Millisecond}

	if got := policy.backoffFor(1); got != 200*time.Millisecond {
		t.Fatalf("backoff(1) = %v, want 200ms", got)
	}
	if got := policy.backoffFor(2); got != 400*time.Millisecond {
		t.Fatalf("backoff(2) = %v, want 400ms", got)
	}
	for attempt := 3; attempt <= 10; attempt++ {
		if got := policy.backoffFor(attempt); got > policy.BackoffMax {
			t.Fatalf("backoff(%d) = %v exceeds cap %v", attempt, got, policy.BackoffMax)
		}
	}
}
