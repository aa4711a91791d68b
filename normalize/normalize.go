// Package normalize reshapes enriched products into flat rows for
// tabular export. Normalization here is structural only: values pass
// through untouched, no type coercion.
package normalize

import (
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/naramarket/go-naramarket/models"
)

var (
	nonColumnChars = regexp.MustCompile(`[^\w가-힣]`)
	underscoreRuns = regexp.MustCompile(`_+`)
)

// Rows flattens one product into 1..N rows. With explode=true there is
// one row per non-empty attribute (base fields repeated, attribute name
// and value in dedicated columns); a product with no non-empty
// attributes yields zero rows. With explode=false the attributes are
// summarized into an attribute_count column on a single row.
func Rows(p *models.Product, explode bool) []models.Row {
	if p == nil {
		return nil
	}

	base := baseRow(p)
	if !explode {
		base["attribute_count"] = strconv.Itoa(countNonEmpty(p.Attributes))
		return []models.Row{base}
	}

	names := make([]string, 0, len(p.Attributes))
	for name, value := range p.Attributes {
		if strings.TrimSpace(name) == "" || strings.TrimSpace(value) == "" {
			continue
		}
		names = append(names, name)
	}
	sort.Strings(names)

	rows := make([]models.Row, 0, len(names))
	for _, name := range names {
		row := make(models.Row, len(base)+2)
		for k, v := range base {
			row[k] = v
		}
		row["attr_name"] = SanitizeColumn(name)
		row["attr_value"] = p.Attributes[name]
		rows = append(rows, row)
	}
	return rows
}

func baseRow(p *models.Product) models.Row {
	row := make(models.Row, len(p.Fields)+3)
	for k, v := range p.Fields {
		row[SanitizeColumn(k)] = v
	}
	row["window_start"] = p.WindowStart
	row["window_end"] = p.WindowEnd
	if p.DetailOK {
		row["detail_success"] = "1"
	} else {
		row["detail_success"] = "0"
	}
	return row
}

func countNonEmpty(attrs map[string]string) int {
	n := 0
	for name, value := range attrs {
		if strings.TrimSpace(name) != "" && strings.TrimSpace(value) != "" {
			n++
		}
	}
	return n
}

// SanitizeColumn makes a field name safe for CSV headers: anything
// outside word characters and Hangul becomes an underscore, runs
// collapse, and leading/trailing underscores are trimmed.
func SanitizeColumn(name string) string {
	name = nonColumnChars.ReplaceAllString(name, "_")
	name = underscoreRuns.ReplaceAllString(name, "_")
	name = strings.Trim(name, "_")
	if name == "" {
		return "unknown"
	}
	return name
}
