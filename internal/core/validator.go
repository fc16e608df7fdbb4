package core

// validator.go provides row-level validation for product CSV rows.
//
// Missing-required-field errors are reported before type and format
// checks: a row missing its sku is rejected with only the missing
// messages, matching how clients display them. Both kinds land in the
// same per-row error list.

import (
	"fmt"
	"strconv"
	"strings"
)

// MaxFieldLength bounds every string field in a row.
const MaxFieldLength = 255

// requiredColumns are the fields every row must carry, non-blank.
var requiredColumns = []string{ColSKU, ColName, ColPrice}

// Normalized column names produced by CsvStreamReader.
const (
	ColSKU         = "sku"
	ColName        = "name"
	ColPrice       = "price"
	ColCategory    = "category"
	ColStock       = "stock"
	ColDescription = "description"
	ColImage       = "image"
)

// ValidationResult is the outcome of validating one row.
type ValidationResult struct {
	Valid  bool
	Errors []string
}

// ValidateRow checks a header-mapped row against the product rules:
// required non-blank {sku, name, price}; price a non-negative number;
// stock, when present, a non-negative integer; all strings bounded in
// length. Pure function.
func ValidateRow(fields map[string]string) ValidationResult {
	var errs []string

	for _, col := range requiredColumns {
		if strings.TrimSpace(fields[col]) == "" {
			errs = append(errs, fmt.Sprintf("Missing required column: %s", col))
		}
	}
	if len(errs) > 0 {
		return ValidationResult{Valid: false, Errors: errs}
	}

	if price, err := strconv.ParseFloat(strings.TrimSpace(fields[ColPrice]), 64); err != nil {
		errs = append(errs, fmt.Sprintf("Invalid number for price: %q", fields[ColPrice]))
	} else if price < 0 {
		errs = append(errs, "Price must not be negative")
	}

	if raw := strings.TrimSpace(fields[ColStock]); raw != "" {
		if stock, err := strconv.Atoi(raw); err != nil {
			errs = append(errs, fmt.Sprintf("Invalid integer for stock: %q", raw))
		} else if stock < 0 {
			errs = append(errs, "Stock must not be negative")
		}
	}

	for _, col := range []string{ColSKU, ColName, ColCategory, ColImage} {
		if len(fields[col]) > MaxFieldLength {
			errs = append(errs, fmt.Sprintf("Value for %s exceeds %d characters", col, MaxFieldLength))
		}
	}

	return ValidationResult{Valid: len(errs) == 0, Errors: errs}
}

// ParseStock converts a validated stock cell to an int, defaulting to
// zero when the column is absent or blank.
func ParseStock(raw string) int {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0
	}
	return n
}
