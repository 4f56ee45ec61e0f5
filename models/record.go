// Package models defines data structures for the collector.
package models

import (
	"encoding/json"
	"strconv"
	"time"
)

// Category identifies one fuel type tracked by the upstream site. The
// value doubles as the "anp" form field on page requests.
type Category string

const (
	CategoryGasolina Category = "GASOLINA"
	CategoryEtanol   Category = "ETANOL"
	CategoryGNV      Category = "GNV"
	CategoryDiesel   Category = "DIESEL"
)

// DefaultCategories returns the fuel types collected by default.
func DefaultCategories() []Category {
	return []Category{CategoryGasolina, CategoryEtanol, CategoryGNV, CategoryDiesel}
}

// QueryParams carries the search parameters sent with every page request
// and echoed into each raw record for replayability.
type QueryParams struct {
	Hours     int     `json:"horas"`
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	RadiusKm  int     `json:"raio"`
	Order     string  `json:"ordenar"`
	Page      int     `json:"pagina,omitempty"`
}

// PageRequest describes one paginated POST against the products endpoint.
// Values are fixed at construction.
type PageRequest struct {
	Category Category
	Query    QueryParams
}

// NewPageRequest builds the request for one page of a category.
func NewPageRequest(category Category, page int, query QueryParams) PageRequest {
	query.Page = page
	return PageRequest{Category: category, Query: query}
}

// FormData returns the form-encoded body fields expected upstream.
func (r PageRequest) FormData() map[string]string {
	return map[string]string{
		"horas":     strconv.Itoa(r.Query.Hours),
		"anp":       string(r.Category),
		"latitude":  strconv.FormatFloat(r.Query.Latitude, 'f', -1, 64),
		"longitude": strconv.FormatFloat(r.Query.Longitude, 'f', -1, 64),
		"raio":      strconv.Itoa(r.Query.RadiusKm),
		"pagina":    strconv.Itoa(r.Query.Page),
		"ordenar":   r.Query.Order,
	}
}

// RawRecord is one upstream result item, stored verbatim with collection
// provenance. One record becomes one line in the run's JSONL artifact.
type RawRecord struct {
	CollectedAt time.Time       `json:"collected_at_utc"`
	RunID       string          `json:"run_id"`
	Source      string          `json:"source"`
	Category    Category        `json:"anp"`
	Query       QueryParams     `json:"query"`
	Raw         json.RawMessage `json:"raw"`
}

// ProductsResponse is the JSON envelope returned by the products endpoint.
// Result items stay opaque; only the paging envelope is interpreted.
type ProductsResponse struct {
	Results      []json.RawMessage `json:"resultado"`
	TotalPages   int               `json:"totalPaginas"`
	TotalRecords int               `json:"totalRegistros"`
	PageRecords  int               `json:"registrosdaPagina"`
}
