package search_test

import (
	"strings"
	"testing"

	"github.com/factly/gopie/internal/search"
)

// ─── Column typing ────────────────────────────────────────────────────────────

func TestIsTextColumn(t *testing.T) {
	cases := map[string]bool{
		"varchar":           true,
		"VARCHAR(255)":      true,
		"text":              true,
		"String":            true,
		"character varying": true,
		"char(2)":           true,
		"object":            true,
		"integer":           false,
		"bigint":            false,
		"double":            false,
		"decimal(10,2)":     false,
		"date":              false,
		"timestamp":         false,
		"boolean":           false,
		"":                  false,
	}
	for in, want := range cases {
		if got := search.IsTextColumn(in); got != want {
			t.Errorf("IsTextColumn(%q) = %v, want %v", in, got, want)
		}
	}
}

// ─── Schema helpers ───────────────────────────────────────────────────────────

func TestColumnLookupIsCaseInsensitive(t *testing.T) {
	s := search.DatasetSchema{
		Name: "sales",
		Columns: []search.ColumnSchema{
			{Name: "State", Type: "varchar"},
			{Name: "amount", Type: "double"},
		},
	}

	if col := s.Column("state"); col == nil || col.Name != "State" {
		t.Errorf("Column(state) = %v", col)
	}
	if col := s.Column("missing"); col != nil {
		t.Errorf("Column(missing) = %v, want nil", col)
	}
}

func TestSchemaStringIncludesColumnsAndDescription(t *testing.T) {
	s := search.DatasetSchema{
		Name:        "sales",
		TableName:   "sales_2022",
		Description: "Monthly sales figures",
		Columns: []search.ColumnSchema{
			{Name: "state", Type: "varchar", Description: "Indian state"},
			{Name: "amount", Type: "double"},
		},
	}

	out := s.String()
	for _, want := range []string{"sales", "sales_2022", "Monthly sales figures", "state (varchar)", "Indian state", "amount (double)"} {
		if !strings.Contains(out, want) {
			t.Errorf("rendered schema missing %q:\n%s", want, out)
		}
	}
}
