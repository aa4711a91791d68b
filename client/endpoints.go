package client

import (
	_ "embed"
	"fmt"
	"sort"

	"gopkg.in/yaml.v3"
)

//go:embed endpoints.yaml
var endpointsYAML []byte

// EndpointID identifies one of the fixed government API operations.
type EndpointID string

const (
	ShoppingList      EndpointID = "shopping_list"
	MASContractList   EndpointID = "mas_contract_list"
	BidAnnouncements  EndpointID = "bid_announcements"
	SuccessfulBids    EndpointID = "successful_bids"
	Contracts         EndpointID = "contracts"
	ProcurementStatus EndpointID = "procurement_status"
)

// Endpoint describes a list API operation: its URL path and the names
// of the date-range and category query parameters it accepts. Param
// names differ per operation (inqryBgnDate vs bidNtceBgnDt etc), which
// is exactly the translation this layer exists for.
type Endpoint struct {
	ID             EndpointID        `yaml:"id"`
	Path           string            `yaml:"path"`
	Description    string            `yaml:"description"`
	BeginDateParam string            `yaml:"begin_date_param"`
	EndDateParam   string            `yaml:"end_date_param"`
	CategoryParam  string            `yaml:"category_param"`
	ExtraParams    map[string]string `yaml:"extra_params"`
}

type endpointsFile struct {
	Endpoints []Endpoint `yaml:"endpoints"`
}

var endpointRegistry = mustLoadEndpoints()

func mustLoadEndpoints() map[EndpointID]Endpoint {
	var file endpointsFile
	if err := yaml.Unmarshal(endpointsYAML, &file); err != nil {
		panic(fmt.Sprintf("client: parse endpoints.yaml: %v", err))
	}
	registry := make(map[EndpointID]Endpoint, len(file.Endpoints))
	for _, ep := range file.Endpoints {
		registry[ep.ID] = ep
	}
	return registry
}

// LookupEndpoint returns the endpoint descriptor for id.
func LookupEndpoint(id EndpointID) (Endpoint, error) {
	ep, ok := endpointRegistry[id]
	if !ok {
		return Endpoint{}, fmt.Errorf("unknown endpoint %q", id)
	}
	return ep, nil
}

// EndpointIDs returns all registered endpoint identifiers, sorted.
func EndpointIDs() []EndpointID {
	ids := make([]EndpointID, 0, len(endpointRegistry))
	for id := range endpointRegistry {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}
