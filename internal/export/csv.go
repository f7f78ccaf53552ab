// Package export renders project reports for download.
package export

import (
	"encoding/csv"
	"io"

	"fundtrail/internal/repo"
)

// ProjectsCSV writes one row per project, sorted by the caller (the API
// exports fund-descending). Amounts are written as decimal strings.
func ProjectsCSV(w io.Writer, projects []repo.ProjectWithRequest) error {
	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"project_id", "title", "site", "status", "given_fund", "approved_at", "end_date"}); err != nil {
		return err
	}
	for _, pr := range projects {
		row := []string{
			pr.Project.ID,
			pr.Request.Title,
			pr.Request.Site,
			string(pr.Project.Status),
			pr.Project.GivenFund.String(),
			pr.Project.ApprovedAt,
			pr.Request.EndDate,
		}
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}
