package render

import (
	"fmt"
	"strings"

	"github.com/CosmoTheDev/repowatch/models"
)

// Fallback returns the plain-text summary of a batch. It never fails and is
// what channels receive when rendering does.
func (r *Renderer) Fallback(b models.Batch) string {
	return Summary(b)
}

// Summary formats a batch as plain text, one line per record.
func Summary(b models.Batch) string {
	lines := []string{fmt.Sprintf("[%s] %s\n", b.Repo, plural(b.Len(), "new "+kindNouns[b.Kind]))}

	switch b.Kind {
	case models.KindCommits:
		for _, c := range b.Commits {
			lines = append(lines, fmt.Sprintf("* %s %s: %s", c.ShortSHA(), c.Author, cut(firstLine(c.Message), 60)))
		}
	case models.KindIssues, models.KindPulls:
		for _, i := range b.Issues {
			action := i.Action
			if action == "" {
				action = i.State
			}
			lines = append(lines, fmt.Sprintf("[%s] #%d %s - %s", action, i.Number, cut(i.Title, 50), i.Author))
		}
	case models.KindComments:
		for _, c := range b.Comments {
			lines = append(lines, fmt.Sprintf("[%s#%d] %s: %s", sourceLabel(c.Source), c.TargetNumber, c.Author, cut(oneLine(c.Body), 60)))
		}
	case models.KindActions:
		for _, run := range b.Runs {
			lines = append(lines, fmt.Sprintf("#%d %s [%s] - %s", run.RunNumber, run.Name, orDefault(run.Conclusion, run.Status), run.Actor))
		}
	}
	return strings.Join(lines, "\n")
}

// cut truncates to max runes without a marker.
func cut(s string, max int) string {
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	return string(r[:max])
}
