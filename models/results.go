package models

// Tool result envelopes. Status carries one of the classification
// labels: success, partial, auth_error, rate_limited, malformed_response,
// config_error, network_error.

// CrawlListResult is the crawl_list tool output.
type CrawlListResult struct {
	Status      string              `json:"status"`
	Items       []map[string]string `json:"items,omitempty"`
	TotalCount  int                 `json:"total_count"`
	CurrentPage int                 `json:"current_page"`
	Category    string              `json:"category"`
	ElapsedSec  float64             `json:"elapsed_sec"`
	Error       string              `json:"error,omitempty"`
}

// DetailResult is the get_detailed_attributes tool output.
type DetailResult struct {
	Status     string            `json:"status"`
	Attributes map[string]string `json:"attributes,omitempty"`
	Payload    map[string]string `json:"payload_attempted,omitempty"`
	ElapsedSec float64           `json:"elapsed_sec"`
	Error      string            `json:"error,omitempty"`
}

// MemoryCrawlResult is the crawl_to_memory tool output.
type MemoryCrawlResult struct {
	Status   string         `json:"status"`
	Rows     []Row          `json:"rows,omitempty"`
	Progress *CrawlProgress `json:"progress,omitempty"`
	Error    string         `json:"error,omitempty"`
}

// CrawlCSVResult is the crawl_to_csv tool output.
type CrawlCSVResult struct {
	Status    string         `json:"status"`
	OutputCSV string         `json:"output_csv"`
	Progress  *CrawlProgress `json:"progress,omitempty"`
	Error     string         `json:"error,omitempty"`
}

// EndpointResult is the output of the single-call endpoint tools
// (bid announcements, successful bids, contracts, ...).
type EndpointResult struct {
	Status     string              `json:"status"`
	Endpoint   string              `json:"endpoint"`
	Items      []map[string]string `json:"items,omitempty"`
	TotalCount int                 `json:"total_count"`
	Error      string              `json:"error,omitempty"`
}

// ServerInfo is the server_info tool output.
type ServerInfo struct {
	App        string   `json:"app"`
	Version    string   `json:"version"`
	Tools      []string `json:"tools"`
	Categories []string `json:"categories"`
}
