package core

import (
	"strings"
	"testing"
)

func validRow() map[string]string {
	return map[string]string{
		ColSKU:   "A1",
		ColName:  "Widget",
		ColPrice: "9.99",
		ColStock: "5",
	}
}

func TestValidateRow_Valid(t *testing.T) {
	result := ValidateRow(validRow())
	if !result.Valid {
		t.Errorf("valid row rejected: %v", result.Errors)
	}
}

func TestValidateRow_MissingRequired(t *testing.T) {
	tests := []struct {
		name string
		col  string
	}{
		{"missing sku", ColSKU},
		{"missing name", ColName},
		{"missing price", ColPrice},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			row := validRow()
			row[tt.col] = "  "

			result := ValidateRow(row)
			if result.Valid {
				t.Fatal("row with blank required field accepted")
			}
			if len(result.Errors) != 1 {
				t.Fatalf("Errors = %v, want exactly one", result.Errors)
			}
			want := "Missing required column: " + tt.col
			if result.Errors[0] != want {
				t.Errorf("error = %q, want %q", result.Errors[0], want)
			}
		})
	}
}

func TestValidateRow_MissingShortCircuits(t *testing.T) {
	// A missing required field suppresses format checks on the rest.
	row := validRow()
	row[ColSKU] = ""
	row[ColPrice] = "not-a-number"

	result := ValidateRow(row)
	if len(result.Errors) != 1 {
		t.Fatalf("Errors = %v, want only the missing-column message", result.Errors)
	}
	if !strings.Contains(result.Errors[0], "Missing required column") {
		t.Errorf("error = %q", result.Errors[0])
	}
}

func TestValidateRow_Price(t *testing.T) {
	tests := []struct {
		price string
		valid bool
	}{
		{"9.99", true},
		{"0", true},
		{" 12.5 ", true},
		{"abc", false},
		{"-1", false},
	}

	for _, tt := range tests {
		row := validRow()
		row[ColPrice] = tt.price
		result := ValidateRow(row)
		if result.Valid != tt.valid {
			t.Errorf("price %q: Valid = %v, want %v (%v)", tt.price, result.Valid, tt.valid, result.Errors)
		}
	}
}

func TestValidateRow_Stock(t *testing.T) {
	tests := []struct {
		stock string
		valid bool
	}{
		{"", true}, // stock is optional
		{"0", true},
		{"42", true},
		{"-3", false},
		{"many", false},
		{"1.5", false},
	}

	for _, tt := range tests {
		row := validRow()
		row[ColStock] = tt.stock
		result := ValidateRow(row)
		if result.Valid != tt.valid {
			t.Errorf("stock %q: Valid = %v, want %v (%v)", tt.stock, result.Valid, tt.valid, result.Errors)
		}
	}
}

func TestValidateRow_FieldLength(t *testing.T) {
	row := validRow()
	row[ColName] = strings.Repeat("x", MaxFieldLength+1)

	result := ValidateRow(row)
	if result.Valid {
		t.Error("over-long name accepted")
	}

	row[ColName] = strings.Repeat("x", MaxFieldLength)
	result = ValidateRow(row)
	if !result.Valid {
		t.Errorf("name at the limit rejected: %v", result.Errors)
	}
}

func TestParseStock(t *testing.T) {
	tests := []struct {
		raw  string
		want int
	}{
		{"", 0},
		{"  ", 0},
		{"7", 7},
		{" 12 ", 12},
		{"junk", 0},
	}

	for _, tt := range tests {
		if got := ParseStock(tt.raw); got != tt.want {
			t.Errorf("ParseStock(%q) = %d, want %d", tt.raw, got, tt.want)
		}
	}
}
