package export

import (
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/haasonsaas/finsight/pkg/models"
)

func TestExportDescriptor(t *testing.T) {
	tool := New()
	out, err := tool.Execute(context.Background(), json.RawMessage(`{
		"title": "Q2 Variance Report",
		"format": "XLSX",
		"columns": ["Line", "Variance"],
		"rows": [["Marketing", "+12%"], ["R&D", "-4%"]]
	}`))
	if err != nil {
		t.Fatal(err)
	}
	if out.Type != models.OutputExport {
		t.Fatalf("type = %s", out.Type)
	}
	if out.IsCanvas() {
		t.Error("export descriptors are downloads, not canvas artifacts")
	}

	var payload exportPayload
	if err := json.Unmarshal(out.Data, &payload); err != nil {
		t.Fatal(err)
	}
	if payload.Format != "xlsx" {
		t.Errorf("format = %q", payload.Format)
	}
	if payload.Filename != "q2-variance-report.xlsx" {
		t.Errorf("filename = %q", payload.Filename)
	}
	if payload.RowCount != 2 {
		t.Errorf("row count = %d", payload.RowCount)
	}
	if payload.ExportID == "" {
		t.Error("missing export id")
	}
}

func TestExportValidation(t *testing.T) {
	cases := []struct {
		name  string
		input string
	}{
		{"bad format", `{"title":"t","format":"docx","columns":["a"],"rows":[]}`},
		{"no columns", `{"title":"t","format":"csv","columns":[],"rows":[]}`},
		{"ragged rows", `{"title":"t","format":"csv","columns":["a","b"],"rows":[["1"]]}`},
		{"blank title", `{"title":" ","format":"csv","columns":["a"],"rows":[]}`},
	}
	tool := New()
	for _, tc := range cases {
		if _, err := tool.Execute(context.Background(), json.RawMessage(tc.input)); err == nil {
			t.Errorf("%s: expected error", tc.name)
		}
	}
}

func TestSlugify(t *testing.T) {
	cases := map[string]string{
		"Q2 Variance Report":      "q2-variance-report",
		"  FY25 -- Budget (v2) ":  "fy25-budget-v2",
		"Margin %":                "margin",
		"already-slugged":         "already-slugged",
	}
	for in, want := range cases {
		if got := slugify(in); got != want {
			t.Errorf("slugify(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestSpreadsheetWorkbook(t *testing.T) {
	tool := NewSpreadsheetTool()
	out, err := tool.Execute(context.Background(), json.RawMessage(`{
		"title": "FY25 Model",
		"sheets": [
			{"name": "Revenue", "columns": ["Quarter", "Amount"], "rows": [["Q1", "10.2"]]},
			{"name": "Costs", "columns": ["Quarter", "Amount"], "rows": [["Q1", "6.1"]]}
		]
	}`))
	if err != nil {
		t.Fatal(err)
	}
	if out.Type != models.OutputSpreadsheet || !out.IsCanvas() {
		t.Fatalf("type = %s, canvas = %v", out.Type, out.IsCanvas())
	}

	var payload spreadsheetPayload
	if err := json.Unmarshal(out.Data, &payload); err != nil {
		t.Fatal(err)
	}
	if payload.Title != "FY25 Model" || len(payload.Sheets) != 2 {
		t.Errorf("payload = %+v", payload)
	}
	if payload.WorkbookID == "" {
		t.Error("missing workbook id")
	}
}

func TestSpreadsheetValidation(t *testing.T) {
	cases := []struct {
		name    string
		input   string
		wantErr string
	}{
		{"no sheets", `{"title":"t","sheets":[]}`, "at least one sheet"},
		{"unnamed sheet", `{"title":"t","sheets":[{"name":" ","columns":["a"],"rows":[]}]}`, "no name"},
		{"duplicate names", `{"title":"t","sheets":[{"name":"A","columns":["a"],"rows":[]},{"name":"A","columns":["a"],"rows":[]}]}`, "duplicate"},
		{"ragged sheet", `{"title":"t","sheets":[{"name":"A","columns":["a","b"],"rows":[["1"]]}]}`, "cells"},
	}
	tool := NewSpreadsheetTool()
	for _, tc := range cases {
		_, err := tool.Execute(context.Background(), json.RawMessage(tc.input))
		if err == nil || !strings.Contains(err.Error(), tc.wantErr) {
			t.Errorf("%s: err = %v", tc.name, err)
		}
	}
}
