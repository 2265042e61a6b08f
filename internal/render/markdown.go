package render

import (
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/CosmoTheDev/repowatch/models"
)

const (
	maxCommits   = 5
	maxFiles     = 5
	maxPatch     = 1500
	maxIssueBody = 200
	maxComment   = 300
)

var kindTitles = map[models.ContentKind]string{
	models.KindCommits:  "Commits",
	models.KindIssues:   "Issues",
	models.KindPulls:    "Pull Requests",
	models.KindComments: "Comments",
	models.KindActions:  "Actions",
}

var kindNouns = map[models.ContentKind]string{
	models.KindCommits:  "commit",
	models.KindIssues:   "issue",
	models.KindPulls:    "pull request",
	models.KindComments: "comment",
	models.KindActions:  "run update",
}

// truncate cuts s to max runes and marks the cut.
func truncate(s string, max int) string {
	if utf8.RuneCountInString(s) <= max {
		return s
	}
	r := []rune(s)
	return string(r[:max]) + "..."
}

func firstLine(s string) string {
	line, _, _ := strings.Cut(s, "\n")
	return strings.TrimSpace(line)
}

func oneLine(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func plural(n int, noun string) string {
	if n == 1 {
		return fmt.Sprintf("%d %s", n, noun)
	}
	return fmt.Sprintf("%d %ss", n, noun)
}

// more writes "and N more nouns", pluralizing the noun.
func more(n int, noun string) string {
	if n != 1 {
		noun += "s"
	}
	return fmt.Sprintf("_and %d more %s_", n, noun)
}

func link(text, url string) string {
	if url == "" {
		return text
	}
	return fmt.Sprintf("[%s](%s)", text, url)
}

// markdown writes the built-in layout of a batch.
func (r *Renderer) markdown(b models.Batch) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "### %s · %s\n\n", kindTitles[b.Kind], b.Repo)
	fmt.Fprintf(&sb, "%s\n\n", plural(b.Len(), "new "+kindNouns[b.Kind]))

	switch b.Kind {
	case models.KindCommits:
		r.commits(&sb, b.Commits)
	case models.KindIssues, models.KindPulls:
		r.issues(&sb, b.Issues)
	case models.KindComments:
		r.comments(&sb, b.Comments)
	case models.KindActions:
		r.runs(&sb, b.Runs)
	}
	return sb.String()
}

func (r *Renderer) when(t time.Time) string {
	return t.In(r.loc).Format("2006-01-02 15:04")
}

func (r *Renderer) commits(sb *strings.Builder, commits []models.CommitRecord) {
	shown := commits
	if len(shown) > maxCommits {
		shown = shown[:maxCommits]
	}
	for _, c := range shown {
		fmt.Fprintf(sb, "- %s %s · %s · %s\n",
			link("`"+c.ShortSHA()+"`", c.URL), truncate(firstLine(c.Message), 80), c.Author, r.when(c.Timestamp))
		files := c.FileChanges
		if len(files) > maxFiles {
			files = files[:maxFiles]
		}
		for _, f := range files {
			fmt.Fprintf(sb, "  - `%s` %s +%d -%d\n", f.Filename, f.Status, f.Additions, f.Deletions)
			if f.Patch != "" {
				fmt.Fprintf(sb, "\n    ```diff\n")
				for _, line := range strings.Split(truncate(f.Patch, maxPatch), "\n") {
					fmt.Fprintf(sb, "    %s\n", line)
				}
				fmt.Fprintf(sb, "    ```\n\n")
			}
		}
		if rest := len(c.FileChanges) - len(files); rest > 0 {
			fmt.Fprintf(sb, "  - %s\n", more(rest, "file"))
		}
	}
	if rest := len(commits) - len(shown); rest > 0 {
		fmt.Fprintf(sb, "\n%s\n", more(rest, "commit"))
	}
}

func (r *Renderer) issues(sb *strings.Builder, issues []models.IssueRecord) {
	for _, i := range issues {
		fmt.Fprintf(sb, "- **#%d** %s `%s` · @%s · %s",
			i.Number, link(truncate(i.Title, 80), i.URL), orDefault(i.Action, i.State), i.Author, r.when(i.CreatedAt))
		if len(i.Labels) > 0 {
			names := make([]string, 0, len(i.Labels))
			for _, l := range i.Labels {
				names = append(names, l.Name)
			}
			fmt.Fprintf(sb, " · %s", strings.Join(names, ", "))
		}
		sb.WriteString("\n")
		if body := oneLine(i.Body); body != "" && !i.PullRequest {
			fmt.Fprintf(sb, "  > %s\n", truncate(body, maxIssueBody))
		}
	}
}

func (r *Renderer) comments(sb *strings.Builder, comments []models.CommentRecord) {
	type group struct {
		first models.CommentRecord
		items []models.CommentRecord
	}
	var order []string
	groups := map[string]*group{}
	for _, c := range comments {
		key := fmt.Sprintf("%s#%d", c.Source, c.TargetNumber)
		g, ok := groups[key]
		if !ok {
			g = &group{first: c}
			groups[key] = g
			order = append(order, key)
		}
		g.items = append(g.items, c)
	}

	for i, key := range order {
		g := groups[key]
		if i > 0 {
			sb.WriteString("\n")
		}
		fmt.Fprintf(sb, "**%s #%d** %s (%s)\n\n",
			sourceLabel(g.first.Source), g.first.TargetNumber, truncate(g.first.TargetTitle, 60), plural(len(g.items), "comment"))
		for _, c := range g.items {
			fmt.Fprintf(sb, "- %s · %s: %s\n", link("@"+c.Author, c.URL), r.when(c.Timestamp), truncate(oneLine(c.Body), maxComment))
		}
	}
}

func (r *Renderer) runs(sb *strings.Builder, runs []models.ActionRunRecord) {
	for _, run := range runs {
		fmt.Fprintf(sb, "- **#%d** %s `%s` · @%s · %s · %s · %s\n",
			run.RunNumber, link(truncate(run.Name, 60), run.URL), orDefault(run.Conclusion, run.Status),
			run.Actor, run.Event, run.Branch, r.when(run.CreatedAt))
	}
}

func sourceLabel(s models.CommentSource) string {
	if s == models.SourcePullRequest {
		return "PR"
	}
	return "Issue"
}

func orDefault(s, fallback string) string {
	if s != "" {
		return s
	}
	return fallback
}
