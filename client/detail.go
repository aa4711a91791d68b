package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"
	"sync/atomic"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/naramarket/go-naramarket/config"
)

// detailPayloadFields are the list-item fields forwarded to the G2B
// detail endpoint to identify a product.
var detailPayloadFields = []string{
	"prdctClsfcNoFst",
	"prdctClsfcNoScnd",
	"prdctClsfcNoThrd",
	"prdctClsfcNoFrth",
	"prdctClsfcNoFfth",
	"prdctStndrdNo",
	"mnfcturCmpnyNm",
	"mfgCmpnyNm",
	"mfgCmpnyNm2",
	"mfgCmpnyNm3",
	"mfgCmpnyNm4",
	"mfgCmpnyNm5",
}

// The G2B shop endpoint rejects requests without browser-shaped headers.
var detailHeaders = map[string]string{
	"Accept":           "application/json",
	"Content-Type":     "application/json;charset=UTF-8",
	"Referer":          "https://shop.g2b.go.kr/",
	"Origin":           "https://shop.g2b.go.kr",
	"User-Agent":       "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36",
	"X-Requested-With": "XMLHttpRequest",
}

type detailClient struct {
	cfg   *config.Config
	http  *http.Client
	cache *lru.Cache[string, map[string]string]

	hits   atomic.Int64
	misses atomic.Int64
}

func newDetailClient(cfg *config.Config, httpClient *http.Client) (*detailClient, error) {
	cache, err := lru.New[string, map[string]string](cfg.DetailCacheSize)
	if err != nil {
		return nil, fmt.Errorf("detail cache: %w", err)
	}
	return &detailClient{cfg: cfg, http: httpClient, cache: cache}, nil
}

// attributes returns the detail attribute map for item, consulting the
// LRU cache first. Identical products recur across pages and windows,
// so the cache saves a remote call per repeat.
func (d *detailClient) attributes(ctx context.Context, item map[string]string) (map[string]string, map[string]string, error) {
	payload := extractDetailPayload(item)
	if len(payload) == 0 {
		return nil, payload, ErrMalformed{Err: fmt.Errorf("item has no fields usable for a detail lookup")}
	}

	key := cacheKey(payload)
	if cached, ok := d.cache.Get(key); ok {
		d.hits.Add(1)
		return cached, payload, nil
	}
	d.misses.Add(1)

	attrs, err := d.fetch(ctx, payload)
	if err != nil {
		return nil, payload, err
	}
	d.cache.Add(key, attrs)
	return attrs, payload, nil
}

func (d *detailClient) fetch(ctx context.Context, payload map[string]string) (map[string]string, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, ErrMalformed{Err: fmt.Errorf("encode payload: %w", err)}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.cfg.DetailURL, bytes.NewReader(body))
	if err != nil {
		return nil, ErrNetwork{Err: fmt.Errorf("build request: %w", err)}
	}
	for k, v := range detailHeaders {
		req.Header.Set(k, v)
	}

	resp, err := d.http.Do(req)
	if err != nil {
		return nil, classifyTransportErr(err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 8<<20))
	if err != nil {
		return nil, classifyTransportErr(err)
	}
	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return nil, ErrRateLimited{Code: "429", Msg: "http 429"}
	case resp.StatusCode != http.StatusOK:
		return nil, ErrNetwork{Err: fmt.Errorf("http status %d", resp.StatusCode)}
	}

	var parsed struct {
		ResultList []struct {
			Name  string `json:"prdctAtrbNm"`
			Value string `json:"prdctAtrbVl"`
		} `json:"resultList"`
	}
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return nil, ErrMalformed{Err: fmt.Errorf("decode detail response: %w", err), Snippet: snippet(raw)}
	}

	attrs := make(map[string]string, len(parsed.ResultList))
	for _, entry := range parsed.ResultList {
		name := strings.TrimSpace(entry.Name)
		value := strings.TrimSpace(entry.Value)
		if name == "" || value == "" {
			continue
		}
		attrs[name] = value
	}
	return attrs, nil
}

func (d *detailClient) stats() (hits, misses int64) {
	return d.hits.Load(), d.misses.Load()
}

// extractDetailPayload picks the identifying fields out of a list item,
// dropping blanks.
func extractDetailPayload(item map[string]string) map[string]string {
	payload := make(map[string]string)
	for _, field := range detailPayloadFields {
		if v, ok := item[field]; ok && v != "" {
			payload[field] = v
		}
	}
	return payload
}

func cacheKey(payload map[string]string) string {
	keys := make([]string, 0, len(payload))
	for k := range payload {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	for _, k := range keys {
		b.WriteString(k)
		b.WriteByte('=')
		b.WriteString(payload[k])
		b.WriteByte(';')
	}
	return b.String()
}
