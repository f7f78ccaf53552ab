package export_test

import (
	"bytes"
	"encoding/csv"
	"testing"

	"github.com/shopspring/decimal"

	"fundtrail/internal/domain"
	"fundtrail/internal/export"
	"fundtrail/internal/repo"
)

func TestProjectsCSV(t *testing.T) {
	projects := []repo.ProjectWithRequest{
		{
			Project: domain.Project{
				ID:         "p-1",
				RequestID:  "r-1",
				Status:     domain.ProjectOngoing,
				GivenFund:  decimal.RequireFromString("150000.50"),
				ApprovedAt: "2026-03-01T12:00:00Z",
			},
			Request: domain.FundingRequest{
				ID:      "r-1",
				Title:   "Drainage repair",
				Site:    "Barangay San Isidro",
				EndDate: "2026-06-30",
			},
		},
		{
			Project: domain.Project{
				ID:         "p-2",
				RequestID:  "r-2",
				Status:     domain.ProjectCompleted,
				GivenFund:  decimal.RequireFromString("50000"),
				ApprovedAt: "2026-02-10T08:30:00Z",
			},
			Request: domain.FundingRequest{
				ID:      "r-2",
				Title:   "Street lighting",
				Site:    "Barangay Mabini",
				EndDate: "2026-04-15",
			},
		},
	}

	var buf bytes.Buffer
	if err := export.ProjectsCSV(&buf, projects); err != nil {
		t.Fatalf("write csv: %v", err)
	}

	rows, err := csv.NewReader(&buf).ReadAll()
	if err != nil {
		t.Fatalf("read back: %v", err)
	}
	if len(rows) != 3 {
		t.Fatalf("got %d rows, want header + 2", len(rows))
	}
	wantHeader := []string{"project_id", "title", "site", "status", "given_fund", "approved_at", "end_date"}
	for i, col := range wantHeader {
		if rows[0][i] != col {
			t.Errorf("header[%d] = %q, want %q", i, rows[0][i], col)
		}
	}
	if rows[1][0] != "p-1" || rows[1][4] != "150000.5" {
		t.Errorf("row 1 = %v", rows[1])
	}
	if rows[2][3] != "Completed" || rows[2][6] != "2026-04-15" {
		t.Errorf("row 2 = %v", rows[2])
	}
}

func TestProjectsCSVEmpty(t *testing.T) {
	var buf bytes.Buffer
	if err := export.ProjectsCSV(&buf, nil); err != nil {
		t.Fatalf("write csv: %v", err)
	}
	rows, err := csv.NewReader(&buf).ReadAll()
	if err != nil {
		t.Fatalf("read back: %v", err)
	}
	if len(rows) != 1 {
		t.Errorf("got %d rows, want header only", len(rows))
	}
}
