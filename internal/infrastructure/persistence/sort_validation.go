package persistence

import (
	"strings"

	"github.com/feeledger/backend/internal/domain/shared"
)

// sortable lists the columns a listing may be ordered by, plus its fallback.
type sortable struct {
	fields   map[string]bool
	fallback string
}

var (
	feeItemSort = sortable{
		fields: map[string]bool{
			"created_at":     true,
			"item_key":       true,
			"name":           true,
			"sort_order":     true,
			"effective_from": true,
		},
		fallback: "sort_order",
	}
	invoiceSort = sortable{
		fields: map[string]bool{
			"created_at":     true,
			"updated_at":     true,
			"due_date":       true,
			"billing_period": true,
			"invoice_number": true,
			"status":         true,
			"sequence":       true,
		},
		fallback: "created_at",
	}
	periodCloseSort = sortable{
		fields: map[string]bool{
			"closed_at":      true,
			"billing_period": true,
		},
		fallback: "closed_at",
	}
)

// orderClause builds "<column> <ASC|DESC>" from a filter. Unknown columns
// fall back so user input never reaches the SQL text.
func (s sortable) orderClause(filter shared.Filter) string {
	return ValidateSortField(filter.OrderBy, s.fields, s.fallback) + " " + ValidateSortOrder(filter.OrderDir)
}

// ValidateSortOrder normalizes a direction to ASC or DESC, defaulting to DESC.
func ValidateSortOrder(orderDir string) string {
	if strings.EqualFold(strings.TrimSpace(orderDir), "asc") {
		return "ASC"
	}
	return "DESC"
}

// ValidateSortField returns sortField when whitelisted, otherwise defaultField.
func ValidateSortField(sortField string, allowedFields map[string]bool, defaultField string) string {
	if trimmed := strings.TrimSpace(sortField); allowedFields[trimmed] {
		return trimmed
	}
	return defaultField
}
