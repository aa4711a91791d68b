// Package tools exposes the crawler as MCP tools. The registry is
// built once at startup: each tool is a typed operation descriptor
// (input schema inferred from the struct, handler reference) added to
// the MCP server.
package tools

import (
	"fmt"
	"net/http"
	"path/filepath"
	"sync"
	"time"

	"github.com/naramarket/go-naramarket/client"
	"github.com/naramarket/go-naramarket/config"
	"github.com/naramarket/go-naramarket/crawler"
	"github.com/naramarket/go-naramarket/models"
)

const (
	// AppName and Version identify the server to MCP clients.
	AppName = "naramarket"
	Version = "1.0.0"

	defaultDaysBack = 7
)

// Categories the hosted service advertised; the API accepts any
// Korean classification name, these are just the known-good ones.
var Categories = []string{
	"데스크톱컴퓨터",
	"운영체제",
	"DVD드라이브",
	"마그네틱카드판독기",
}

// Service bundles the client, crawler, and configuration behind the
// tool handlers. The API client is built lazily so that a missing
// service key surfaces as a per-call config_error instead of killing
// the server at startup.
type Service struct {
	cfg        *config.Config
	httpClient *http.Client
	metrics    *crawler.Metrics

	mu      sync.Mutex
	client  *client.Client
	crawler *crawler.Crawler
}

// NewService builds the tool service. httpClient may be nil outside
// tests.
func NewService(cfg *config.Config, httpClient *http.Client, metrics *crawler.Metrics) (*Service, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &Service{cfg: cfg, httpClient: httpClient, metrics: metrics}, nil
}

// Metrics exposes the crawler metrics registry for the cmd layer.
func (s *Service) Metrics() *crawler.Metrics {
	return s.metrics
}

func (s *Service) ensureClient() (*client.Client, *crawler.Crawler, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.client != nil {
		return s.client, s.crawler, nil
	}
	c, err := client.New(s.cfg, s.httpClient)
	if err != nil {
		return nil, nil, err
	}
	s.client = c
	s.crawler = crawler.New(c, s.cfg, s.metrics)
	return s.client, s.crawler, nil
}

// resolveOutputPath keeps relative CSV paths inside the configured
// output directory, matching the hosted service's behavior.
func (s *Service) resolveOutputPath(path string) string {
	if filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(s.cfg.OutputDir, path)
}

// dateRangeDaysBack returns an inclusive YYYYMMDD range ending today.
func dateRangeDaysBack(daysBack int) (begin, end string) {
	if daysBack <= 0 {
		daysBack = defaultDaysBack
	}
	now := time.Now()
	return now.AddDate(0, 0, -daysBack).Format(models.DateFormat), now.Format(models.DateFormat)
}

func elapsedSince(start time.Time) float64 {
	return time.Since(start).Seconds()
}
