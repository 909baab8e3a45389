package result

import "a11ywatch/internal/models"

// Conversion is the normalized form of one checker run.
type Conversion struct {
	Count   models.Count
	Results []models.Issue
}

// ConvertCheckerResults counts issues by severity. Issues with a type other
// than error, warning or notice count towards Total only. The issue list is
// returned unchanged.
func ConvertCheckerResults(issues []models.Issue) Conversion {
	c := Conversion{
		Count:   models.Count{Total: len(issues)},
		Results: issues,
	}
	for _, issue := range issues {
		switch issue.Type {
		case models.IssueError:
			c.Count.Error++
		case models.IssueWarning:
			c.Count.Warning++
		case models.IssueNotice:
			c.Count.Notice++
		}
	}
	return c
}
