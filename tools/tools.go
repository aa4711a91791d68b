package tools

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/naramarket/go-naramarket/client"
	"github.com/naramarket/go-naramarket/crawler"
	"github.com/naramarket/go-naramarket/models"
	"github.com/naramarket/go-naramarket/pipeline"
)

// toolNames lists every registered tool, in registration order.
var toolNames = []string{
	"crawl_list",
	"get_detailed_attributes",
	"crawl_to_memory",
	"crawl_to_csv",
	"get_bid_announcement_info",
	"get_successful_bid_info",
	"get_contract_info",
	"get_total_procurement_status",
	"get_mas_contract_product_info",
	"server_info",
}

// Register adds every tool to the MCP server. Called once at startup.
func Register(server *mcp.Server, svc *Service) {
	mcp.AddTool(server, &mcp.Tool{
		Name:        "crawl_list",
		Description: "Fetch one page of the shopping mall product list for a category (Korean name) and date range.",
	}, svc.CrawlList)
	mcp.AddTool(server, &mcp.Tool{
		Name:        "get_detailed_attributes",
		Description: "Fetch category-specific detail attributes for one list item from the G2B detail API.",
	}, svc.GetDetailedAttributes)
	mcp.AddTool(server, &mcp.Tool{
		Name:        "crawl_to_memory",
		Description: "Crawl a category backward over a date range in windows and return the normalized rows in the response.",
	}, svc.CrawlToMemory)
	mcp.AddTool(server, &mcp.Tool{
		Name:        "crawl_to_csv",
		Description: "Crawl a category backward over a date range in windows and stream rows to a CSV file; supports append-mode resumption via the reported anchor date.",
	}, svc.CrawlToCSV)
	mcp.AddTool(server, &mcp.Tool{
		Name:        "get_bid_announcement_info",
		Description: "조회 입찰공고정보 (getDataSetOpnStdBidPblancInfo).",
	}, svc.GetBidAnnouncementInfo)
	mcp.AddTool(server, &mcp.Tool{
		Name:        "get_successful_bid_info",
		Description: "조회 낙찰정보 (getDataSetOpnStdScsbidInfo).",
	}, svc.GetSuccessfulBidInfo)
	mcp.AddTool(server, &mcp.Tool{
		Name:        "get_contract_info",
		Description: "조회 계약정보 (getDataSetOpnStdCntrctInfo).",
	}, svc.GetContractInfo)
	mcp.AddTool(server, &mcp.Tool{
		Name:        "get_total_procurement_status",
		Description: "전체 공공조달 현황 조회 (getTotlPubPrcrmntSttus).",
	}, svc.GetTotalProcurementStatus)
	mcp.AddTool(server, &mcp.Tool{
		Name:        "get_mas_contract_product_info",
		Description: "다수공급자계약 품목정보 조회 (getMASCntrctPrdctInfoList).",
	}, svc.GetMASContractProductInfo)
	mcp.AddTool(server, &mcp.Tool{
		Name:        "server_info",
		Description: "Server version, registered tools, and known categories.",
	}, svc.GetServerInfo)
}

// ToolNames returns the registered tool names.
func ToolNames() []string {
	out := make([]string, len(toolNames))
	copy(out, toolNames)
	return out
}

// CrawlListInput is the crawl_list tool input.
type CrawlListInput struct {
	Category     string `json:"category"`
	PageNo       int    `json:"page_no,omitempty"`
	NumRows      int    `json:"num_rows,omitempty"`
	DaysBack     int    `json:"days_back,omitempty"`
	InqryBgnDate string `json:"inqry_bgn_date,omitempty"`
	InqryEndDate string `json:"inqry_end_date,omitempty"`
}

// CrawlList fetches a single page of the shopping mall list API.
func (s *Service) CrawlList(ctx context.Context, _ *mcp.CallToolRequest, in CrawlListInput) (*mcp.CallToolResult, models.CrawlListResult, error) {
	start := time.Now()
	pageNo := in.PageNo
	if pageNo <= 0 {
		pageNo = 1
	}
	out := models.CrawlListResult{Category: in.Category, CurrentPage: pageNo}

	c, _, err := s.ensureClient()
	if err != nil {
		out.Status = client.StatusLabel(err)
		out.Error = err.Error()
		return nil, out, nil
	}

	begin, end := in.InqryBgnDate, in.InqryEndDate
	if begin == "" || end == "" {
		begin, end = dateRangeDaysBack(in.DaysBack)
	}
	numRows := in.NumRows
	if numRows <= 0 {
		numRows = s.cfg.NumRows
	}

	ep, _ := client.LookupEndpoint(client.ShoppingList)
	params := map[string]string{
		ep.BeginDateParam: begin,
		ep.EndDateParam:   end,
		"pageNo":          strconv.Itoa(pageNo),
		"numOfRows":       strconv.Itoa(numRows),
	}
	if in.Category != "" {
		params[ep.CategoryParam] = in.Category
	}

	resp, err := c.Call(ctx, client.ShoppingList, params)
	out.ElapsedSec = elapsedSince(start)
	if err != nil {
		out.Status = client.StatusLabel(err)
		out.Error = err.Error()
		return nil, out, nil
	}

	out.Status = client.StatusSuccess
	out.Items = resp.Items
	out.TotalCount = resp.TotalCount
	return nil, out, nil
}

// DetailInput is the get_detailed_attributes tool input.
type DetailInput struct {
	// ApiItem is a product item as returned by crawl_list.
	ApiItem map[string]string `json:"api_item"`
}

// GetDetailedAttributes fetches detail attributes for one list item.
func (s *Service) GetDetailedAttributes(ctx context.Context, _ *mcp.CallToolRequest, in DetailInput) (*mcp.CallToolResult, models.DetailResult, error) {
	start := time.Now()
	var out models.DetailResult

	if len(in.ApiItem) == 0 {
		out.Status = client.StatusMalformed
		out.Error = "api_item must be a non-empty object"
		return nil, out, nil
	}

	c, _, err := s.ensureClient()
	if err != nil {
		out.Status = client.StatusLabel(err)
		out.Error = err.Error()
		return nil, out, nil
	}

	attrs, payload, err := c.DetailAttributes(ctx, in.ApiItem)
	out.ElapsedSec = elapsedSince(start)
	if err != nil {
		out.Status = client.StatusLabel(err)
		out.Error = err.Error()
		out.Payload = payload
		return nil, out, nil
	}

	out.Status = client.StatusSuccess
	out.Attributes = attrs
	return nil, out, nil
}

// MemoryCrawlInput is the crawl_to_memory tool input.
type MemoryCrawlInput struct {
	Category          string `json:"category"`
	TotalDays         int    `json:"total_days,omitempty"`
	WindowDays        int    `json:"window_days,omitempty"`
	MaxWindowsPerCall int    `json:"max_windows_per_call,omitempty"`
	ExplodeAttributes bool   `json:"explode_attributes,omitempty"`
	// IncludeDetails adds a detail API lookup per item; off by default
	// in memory mode to keep responses small.
	IncludeDetails bool `json:"include_details,omitempty"`
}

// CrawlToMemory crawls windows and returns the rows in the response.
func (s *Service) CrawlToMemory(ctx context.Context, _ *mcp.CallToolRequest, in MemoryCrawlInput) (*mcp.CallToolResult, models.MemoryCrawlResult, error) {
	var out models.MemoryCrawlResult

	_, cr, err := s.ensureClient()
	if err != nil {
		out.Status = client.StatusLabel(err)
		out.Error = err.Error()
		return nil, out, nil
	}

	sink := &pipeline.MemorySink{}
	progress, err := cr.Crawl(ctx, crawler.Request{
		Category:          in.Category,
		TotalDays:         s.valueOr(in.TotalDays, s.cfg.TotalDays),
		WindowDays:        s.valueOr(in.WindowDays, s.cfg.WindowDays),
		MaxWindows:        in.MaxWindowsPerCall,
		ExplodeAttributes: in.ExplodeAttributes,
		IncludeDetails:    in.IncludeDetails,
	}, sink)
	out.Progress = progress
	if err != nil {
		out.Status = client.StatusLabel(err)
		out.Error = err.Error()
		out.Rows = sink.Rows()
		return nil, out, nil
	}

	out.Status = statusFor(progress)
	out.Rows = sink.Rows()
	return nil, out, nil
}

// CSVCrawlInput is the crawl_to_csv tool input.
type CSVCrawlInput struct {
	Category  string `json:"category"`
	OutputCSV string `json:"output_csv"`
	// Format selects the output sink: csv (default), ndjson, or dual
	// (CSV plus an NDJSON sidecar next to it).
	Format            string `json:"format,omitempty"`
	TotalDays         int    `json:"total_days,omitempty"`
	WindowDays        int    `json:"window_days,omitempty"`
	AnchorEndDate     string `json:"anchor_end_date,omitempty"`
	MaxWindowsPerCall int    `json:"max_windows_per_call,omitempty"`
	MaxRuntimeSec     int    `json:"max_runtime_sec,omitempty"`
	Append            bool   `json:"append,omitempty"`
	ExplodeAttributes bool   `json:"explode_attributes,omitempty"`
	// AllowNewColumns permits rows whose columns are absent from an
	// existing append-target header; by default that is a hard error.
	AllowNewColumns bool `json:"allow_new_columns,omitempty"`
	// SkipDetails disables the per-item detail lookup; details are on
	// by default in CSV mode.
	SkipDetails bool `json:"skip_details,omitempty"`
}

// CrawlToCSV crawls windows and streams rows to a CSV file.
func (s *Service) CrawlToCSV(ctx context.Context, _ *mcp.CallToolRequest, in CSVCrawlInput) (*mcp.CallToolResult, models.CrawlCSVResult, error) {
	var out models.CrawlCSVResult

	if in.OutputCSV == "" {
		out.Status = client.StatusConfigError
		out.Error = "output_csv is required"
		return nil, out, nil
	}
	out.OutputCSV = s.resolveOutputPath(in.OutputCSV)

	_, cr, err := s.ensureClient()
	if err != nil {
		out.Status = client.StatusLabel(err)
		out.Error = err.Error()
		return nil, out, nil
	}

	sink, err := newFileSink(in.Format, out.OutputCSV, pipeline.CSVOptions{
		Append:           in.Append,
		FailOnNewColumns: !in.AllowNewColumns,
	})
	if err != nil {
		out.Status = client.StatusConfigError
		out.Error = err.Error()
		return nil, out, nil
	}

	progress, crawlErr := cr.Crawl(ctx, crawler.Request{
		Category:          in.Category,
		TotalDays:         s.valueOr(in.TotalDays, s.cfg.TotalDays),
		WindowDays:        s.valueOr(in.WindowDays, s.cfg.WindowDays),
		AnchorEndDate:     in.AnchorEndDate,
		MaxWindows:        in.MaxWindowsPerCall,
		MaxRuntime:        time.Duration(in.MaxRuntimeSec) * time.Second,
		ExplodeAttributes: in.ExplodeAttributes,
		IncludeDetails:    !in.SkipDetails,
	}, sink)
	out.Progress = progress

	if closeErr := sink.Close(); closeErr != nil && crawlErr == nil {
		crawlErr = closeErr
	}

	if crawlErr != nil {
		out.Status = csvErrStatus(crawlErr)
		out.Error = crawlErr.Error()
		return nil, out, nil
	}

	out.Status = statusFor(progress)
	return nil, out, nil
}

// EndpointQueryInput is the shared input for the single-call endpoint
// tools. BeginDate/EndDate map onto the endpoint's own date params.
type EndpointQueryInput struct {
	NumRows   int    `json:"num_rows,omitempty"`
	PageNo    int    `json:"page_no,omitempty"`
	BeginDate string `json:"begin_date,omitempty"`
	EndDate   string `json:"end_date,omitempty"`
}

// SuccessfulBidInput adds the mandatory business division code.
type SuccessfulBidInput struct {
	EndpointQueryInput
	// BusinessDivCode: 1 물품, 2 외자, 3 공사, 5 용역.
	BusinessDivCode string `json:"business_div_code"`
}

// ContractInput adds institution filters.
type ContractInput struct {
	EndpointQueryInput
	InstitutionDivCode string `json:"institution_div_code,omitempty"`
	InstitutionCode    string `json:"institution_code,omitempty"`
}

// ProcurementStatusInput selects the statistics base year.
type ProcurementStatusInput struct {
	NumRows        int    `json:"num_rows,omitempty"`
	PageNo         int    `json:"page_no,omitempty"`
	SearchBaseYear string `json:"search_base_year,omitempty"`
}

// MASContractProductInput mirrors the getMASCntrctPrdctInfoList params.
type MASContractProductInput struct {
	EndpointQueryInput
	ProductName          string `json:"product_name,omitempty"`
	ProductID            string `json:"product_id,omitempty"`
	ContractCompanyName  string `json:"contract_company_name,omitempty"`
	ChangeBeginDate      string `json:"change_begin_date,omitempty"`
	ChangeEndDate        string `json:"change_end_date,omitempty"`
	ProductCertification string `json:"product_certification,omitempty"`
}

// GetBidAnnouncementInfo queries bid announcements.
func (s *Service) GetBidAnnouncementInfo(ctx context.Context, _ *mcp.CallToolRequest, in EndpointQueryInput) (*mcp.CallToolResult, models.EndpointResult, error) {
	out := s.callEndpoint(ctx, client.BidAnnouncements, in, nil)
	return nil, out, nil
}

// GetSuccessfulBidInfo queries successful bid records.
func (s *Service) GetSuccessfulBidInfo(ctx context.Context, _ *mcp.CallToolRequest, in SuccessfulBidInput) (*mcp.CallToolResult, models.EndpointResult, error) {
	out := s.callEndpoint(ctx, client.SuccessfulBids, in.EndpointQueryInput, map[string]string{
		"bsnsDivCd": in.BusinessDivCode,
	})
	return nil, out, nil
}

// GetContractInfo queries contract conclusions.
func (s *Service) GetContractInfo(ctx context.Context, _ *mcp.CallToolRequest, in ContractInput) (*mcp.CallToolResult, models.EndpointResult, error) {
	out := s.callEndpoint(ctx, client.Contracts, in.EndpointQueryInput, map[string]string{
		"insttDivCd": in.InstitutionDivCode,
		"insttCd":    in.InstitutionCode,
	})
	return nil, out, nil
}

// GetTotalProcurementStatus queries procurement statistics.
func (s *Service) GetTotalProcurementStatus(ctx context.Context, _ *mcp.CallToolRequest, in ProcurementStatusInput) (*mcp.CallToolResult, models.EndpointResult, error) {
	out := s.callEndpoint(ctx, client.ProcurementStatus, EndpointQueryInput{NumRows: in.NumRows, PageNo: in.PageNo}, map[string]string{
		"srchBssYear": in.SearchBaseYear,
	})
	return nil, out, nil
}

// GetMASContractProductInfo queries multi-supplier contract products.
func (s *Service) GetMASContractProductInfo(ctx context.Context, _ *mcp.CallToolRequest, in MASContractProductInput) (*mcp.CallToolResult, models.EndpointResult, error) {
	out := s.callEndpoint(ctx, client.MASContractList, in.EndpointQueryInput, map[string]string{
		"prdctClsfcNoNm": in.ProductName,
		"prdctIdntNo":    in.ProductID,
		"cntrctCorpNm":   in.ContractCompanyName,
		"chgDtBgnDt":     in.ChangeBeginDate,
		"chgDtEndDt":     in.ChangeEndDate,
		"prodctCertYn":   in.ProductCertification,
	})
	return nil, out, nil
}

// ServerInfoInput is empty; server_info takes no arguments.
type ServerInfoInput struct{}

// GetServerInfo reports server metadata.
func (s *Service) GetServerInfo(_ context.Context, _ *mcp.CallToolRequest, _ ServerInfoInput) (*mcp.CallToolResult, models.ServerInfo, error) {
	return nil, models.ServerInfo{
		App:        AppName,
		Version:    Version,
		Tools:      ToolNames(),
		Categories: append([]string(nil), Categories...),
	}, nil
}

func (s *Service) callEndpoint(ctx context.Context, id client.EndpointID, in EndpointQueryInput, extra map[string]string) models.EndpointResult {
	out := models.EndpointResult{Endpoint: string(id)}

	c, _, err := s.ensureClient()
	if err != nil {
		out.Status = client.StatusLabel(err)
		out.Error = err.Error()
		return out
	}

	ep, err := client.LookupEndpoint(id)
	if err != nil {
		out.Status = client.StatusConfigError
		out.Error = err.Error()
		return out
	}

	pageNo := in.PageNo
	if pageNo <= 0 {
		pageNo = 1
	}
	numRows := in.NumRows
	if numRows <= 0 {
		numRows = 10
	}

	params := map[string]string{
		"pageNo":    strconv.Itoa(pageNo),
		"numOfRows": strconv.Itoa(numRows),
	}
	if in.BeginDate != "" && ep.BeginDateParam != "" {
		params[ep.BeginDateParam] = in.BeginDate
	}
	if in.EndDate != "" && ep.EndDateParam != "" {
		params[ep.EndDateParam] = in.EndDate
	}
	for k, v := range extra {
		if v != "" {
			params[k] = v
		}
	}

	resp, err := c.Call(ctx, id, params)
	if err != nil {
		out.Status = client.StatusLabel(err)
		out.Error = err.Error()
		return out
	}

	out.Status = client.StatusSuccess
	out.Items = resp.Items
	out.TotalCount = resp.TotalCount
	return out
}

// newFileSink builds the output sink for crawl_to_csv. The ndjson and
// dual formats derive the NDJSON path from the CSV path.
func newFileSink(format, path string, opts pipeline.CSVOptions) (pipeline.RowSink, error) {
	switch format {
	case "", "csv":
		return pipeline.NewCSVSink(path, opts)
	case "ndjson":
		return pipeline.NewNDJSONSink(ndjsonPath(path))
	case "dual":
		return pipeline.NewDualSink(path, ndjsonPath(path), opts)
	default:
		return nil, fmt.Errorf("unsupported format: %s", format)
	}
}

func ndjsonPath(csvPath string) string {
	return strings.TrimSuffix(csvPath, ".csv") + ".ndjson"
}

func (s *Service) valueOr(v, fallback int) int {
	if v > 0 {
		return v
	}
	return fallback
}

// statusFor maps a finished crawl to success or partial.
func statusFor(progress *models.CrawlProgress) string {
	if progress != nil && progress.Incomplete {
		return client.StatusPartial
	}
	return client.StatusSuccess
}

// csvErrStatus distinguishes the sink's header mismatch from API
// classifications.
func csvErrStatus(err error) string {
	var mismatch *pipeline.HeaderMismatchError
	if errors.As(err, &mismatch) {
		return client.StatusConfigError
	}
	return client.StatusLabel(err)
}
