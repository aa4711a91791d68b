// Package client issues requests to the Nara Market government APIs
// and classifies failures into a small error taxonomy.
package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/naramarket/go-naramarket/config"
	"github.com/naramarket/go-naramarket/models"
)

const snippetLen = 500

// Result codes used by the data.go.kr response envelope.
const (
	codeNormal       = "00"
	codeQuotaExceeds = "22"
)

// Result codes that mean the service key itself was rejected.
var authCodes = map[string]struct{}{
	"20": {}, // service access denied
	"30": {}, // service key not registered
	"31": {}, // service key deadline expired
	"32": {}, // unregistered IP
}

// Client calls the government list and detail APIs. It performs no
// retries; retry policy belongs to the pagination engine.
type Client struct {
	cfg    *config.Config
	http   *http.Client
	detail *detailClient
}

// New builds a client. The service key is validated up front: a missing
// or placeholder key fails fast with ErrConfig before any call is made.
func New(cfg *config.Config, httpClient *http.Client) (*Client, error) {
	if err := config.ValidateServiceKey(cfg.ServiceKey); err != nil {
		return nil, ErrConfig{Err: err}
	}
	if httpClient == nil {
		httpClient = &http.Client{
			Timeout: cfg.Timeout,
			Transport: &http.Transport{
				Proxy: http.ProxyFromEnvironment,
				DialContext: (&net.Dialer{
					Timeout:   cfg.Timeout,
					KeepAlive: 30 * time.Second,
				}).DialContext,
				MaxIdleConns:        100,
				IdleConnTimeout:     90 * time.Second,
				TLSHandshakeTimeout: 10 * time.Second,
			},
		}
	}
	c := &Client{cfg: cfg, http: httpClient}
	detail, err := newDetailClient(cfg, httpClient)
	if err != nil {
		return nil, err
	}
	c.detail = detail
	return c, nil
}

// Call issues a single GET against endpoint with params merged into
// the base query (serviceKey, type=json) and returns the parsed page.
func (c *Client) Call(ctx context.Context, id EndpointID, params map[string]string) (*models.ApiResponse, error) {
	ep, err := LookupEndpoint(id)
	if err != nil {
		return nil, ErrConfig{Err: err}
	}

	query := url.Values{}
	query.Set("serviceKey", c.cfg.ServiceKey)
	query.Set("type", "json")
	for k, v := range ep.ExtraParams {
		query.Set(k, v)
	}
	for k, v := range params {
		if v != "" {
			query.Set(k, v)
		}
	}

	reqURL := c.cfg.ListURL + ep.Path + "?" + query.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, ErrNetwork{Err: fmt.Errorf("build request: %w", err)}
	}
	req.Header.Set("Accept", "application/json")

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, classifyTransportErr(err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 32<<20))
	if err != nil {
		return nil, classifyTransportErr(err)
	}

	slog.Debug("list api call",
		slog.String("endpoint", string(id)),
		slog.Int("status", resp.StatusCode),
		slog.Duration("elapsed", time.Since(start)),
	)

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return nil, ErrRateLimited{Code: strconv.Itoa(resp.StatusCode), Msg: "http 429"}
	case resp.StatusCode != http.StatusOK:
		return nil, ErrNetwork{Err: fmt.Errorf("http status %d", resp.StatusCode)}
	}

	return parseEnvelope(body)
}

// DetailAttributes fetches category-specific attributes for one list
// item from the G2B detail endpoint.
func (c *Client) DetailAttributes(ctx context.Context, item map[string]string) (map[string]string, map[string]string, error) {
	return c.detail.attributes(ctx, item)
}

// DetailCacheStats exposes hit/miss counts for the detail LRU cache.
func (c *Client) DetailCacheStats() (hits, misses int64) {
	return c.detail.stats()
}

func classifyTransportErr(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return ErrNetwork{Err: err, Timeout: true}
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return ErrNetwork{Err: err, Timeout: true}
	}
	return ErrNetwork{Err: err}
}

// envelope mirrors the data.go.kr JSON response shape. Numeric fields
// arrive as numbers or strings depending on the service, so everything
// goes through json.RawMessage.
type envelope struct {
	Response struct {
		Header struct {
			ResultCode string `json:"resultCode"`
			ResultMsg  string `json:"resultMsg"`
		} `json:"header"`
		Body struct {
			Items      json.RawMessage `json:"items"`
			TotalCount json.RawMessage `json:"totalCount"`
			PageNo     json.RawMessage `json:"pageNo"`
			NumOfRows  json.RawMessage `json:"numOfRows"`
		} `json:"body"`
	} `json:"response"`

	// Service-level failures (bad key, quota) come back in a different
	// wrapper than regular responses.
	ServiceResponse *struct {
		Header struct {
			ReasonCode string `json:"returnReasonCode"`
			AuthMsg    string `json:"returnAuthMsg"`
		} `json:"cmmMsgHeader"`
	} `json:"OpenAPI_ServiceResponse"`
}

func parseEnvelope(body []byte) (*models.ApiResponse, error) {
	var env envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, ErrMalformed{Err: fmt.Errorf("decode envelope: %w", err), Snippet: snippet(body)}
	}

	if env.ServiceResponse != nil {
		return nil, classifyResultCode(env.ServiceResponse.Header.ReasonCode, env.ServiceResponse.Header.AuthMsg, body)
	}

	code := env.Response.Header.ResultCode
	if code == "" {
		return nil, ErrMalformed{Err: fmt.Errorf("missing result code"), Snippet: snippet(body)}
	}
	if code != codeNormal {
		return nil, classifyResultCode(code, env.Response.Header.ResultMsg, body)
	}

	items, err := normalizeItems(env.Response.Body.Items)
	if err != nil {
		return nil, ErrMalformed{Err: err, Snippet: snippet(body)}
	}

	return &models.ApiResponse{
		Items:      items,
		TotalCount: flexInt(env.Response.Body.TotalCount),
		PageNo:     flexInt(env.Response.Body.PageNo),
		NumRows:    flexInt(env.Response.Body.NumOfRows),
	}, nil
}

func classifyResultCode(code, msg string, body []byte) error {
	if _, ok := authCodes[code]; ok {
		return ErrAuth{Code: code, Msg: msg}
	}
	if code == codeQuotaExceeds {
		return ErrRateLimited{Code: code, Msg: msg}
	}
	return ErrMalformed{
		Err:     fmt.Errorf("unexpected result code %s: %s", code, msg),
		Snippet: snippet(body),
	}
}

// normalizeItems flattens the three shapes the API uses: a plain list,
// an {"item": ...} wrapper holding a list or a single object, and an
// empty string when the window has no data.
func normalizeItems(raw json.RawMessage) ([]map[string]string, error) {
	if len(raw) == 0 {
		return nil, nil
	}

	var direct []map[string]json.RawMessage
	if err := json.Unmarshal(raw, &direct); err == nil {
		return stringifyAll(direct), nil
	}

	var wrapper struct {
		Item json.RawMessage `json:"item"`
	}
	if err := json.Unmarshal(raw, &wrapper); err == nil && len(wrapper.Item) > 0 {
		return normalizeItems(wrapper.Item)
	}

	var single map[string]json.RawMessage
	if err := json.Unmarshal(raw, &single); err == nil {
		if len(single) == 0 {
			return nil, nil
		}
		return stringifyAll([]map[string]json.RawMessage{single}), nil
	}

	var empty string
	if err := json.Unmarshal(raw, &empty); err == nil && empty == "" {
		return nil, nil
	}

	return nil, fmt.Errorf("unrecognized items shape")
}

func stringifyAll(items []map[string]json.RawMessage) []map[string]string {
	out := make([]map[string]string, 0, len(items))
	for _, item := range items {
		fields := make(map[string]string, len(item))
		for k, v := range item {
			fields[k] = flexString(v)
		}
		out = append(out, fields)
	}
	return out
}

func flexString(raw json.RawMessage) string {
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err == nil {
		return n.String()
	}
	var b bool
	if err := json.Unmarshal(raw, &b); err == nil {
		return strconv.FormatBool(b)
	}
	return string(raw)
}

func flexInt(raw json.RawMessage) int {
	if len(raw) == 0 {
		return 0
	}
	var n int
	if err := json.Unmarshal(raw, &n); err == nil {
		return n
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		if parsed, err := strconv.Atoi(s); err == nil {
			return parsed
		}
	}
	return 0
}

func snippet(body []byte) string {
	if len(body) > snippetLen {
		return string(body[:snippetLen])
	}
	return string(body)
}
