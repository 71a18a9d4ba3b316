// Package reporting renders validation outcomes for staff and partners: the validation report CSV,
// the partner error report workbook, and the preview and final notification emails.
package reporting

import (
	"strings"

	"github.com/jonathan/partner-intake/internal/types"
)

// Category groups violations for email summaries.
type Category string

const (
	CategoryRequiredField        Category = "required_field"
	CategoryActivePastGraduation Category = "active_past_graduation"
	CategoryZipCode              Category = "zip_code_format"
	CategoryDate                 Category = "date_validation"
	CategoryAddress              Category = "address_validation"
	CategoryStatus               Category = "status_validation"
	CategoryEmployment           Category = "employment_validation"
	CategoryOther                Category = "other"
)

var categoryOrder = []Category{
	CategoryRequiredField, CategoryActivePastGraduation, CategoryZipCode, CategoryDate,
	CategoryAddress, CategoryStatus, CategoryEmployment, CategoryOther,
}

var categoryLabels = map[Category]string{
	CategoryRequiredField:        "Required Field Errors",
	CategoryActivePastGraduation: "Active Past Graduation Errors",
	CategoryZipCode:              "Zip Code Format Errors",
	CategoryDate:                 "Date Validation Errors",
	CategoryAddress:              "Address Validation Errors",
	CategoryStatus:               "Program Status Errors",
	CategoryEmployment:           "Employment Information Errors",
	CategoryOther:                "Other Errors",
}

// Label returns the human-readable category name.
func (c Category) Label() string {
	if l, ok := categoryLabels[c]; ok {
		return l
	}
	return string(c)
}

// CategoryCount is a non-zero error count for one category.
type CategoryCount struct {
	Category Category
	Label    string
	Count    int
}

// Categorize assigns a violation to a category from its message and field.
func Categorize(v types.Violation) Category {
	msg := strings.ToLower(v.Message)
	field := strings.ToLower(v.Field)
	switch {
	case strings.Contains(msg, "required") || strings.Contains(msg, "missing"):
		return CategoryRequiredField
	case strings.Contains(msg, "graduation"):
		return CategoryActivePastGraduation
	case strings.Contains(msg, "zip") || strings.Contains(msg, "postal") || strings.Contains(field, "zip"):
		return CategoryZipCode
	case strings.Contains(field, "date") || strings.Contains(msg, "mm/dd/yyyy"):
		return CategoryDate
	case strings.Contains(field, "address") || strings.Contains(msg, "po box"):
		return CategoryAddress
	case strings.Contains(field, "employ") || strings.Contains(field, "job"):
		return CategoryEmployment
	case strings.Contains(field, "status") || strings.Contains(field, "completion"):
		return CategoryStatus
	default:
		return CategoryOther
	}
}

// CountErrorsByCategory counts Error-severity violations per category, in display order, omitting zeros.
func CountErrorsByCategory(violations types.Violations) []CategoryCount {
	counts := make(map[Category]int)
	for _, v := range violations.Violations {
		if v.Severity == types.SeverityError {
			counts[Categorize(v)]++
		}
	}
	var out []CategoryCount
	for _, c := range categoryOrder {
		if n := counts[c]; n > 0 {
			out = append(out, CategoryCount{Category: c, Label: c.Label(), Count: n})
		}
	}
	return out
}
