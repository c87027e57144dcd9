package app

import (
	"fmt"
	"strings"

	"github.com/rancher/gitpanel/internal/dispatch"
	gh "github.com/rancher/gitpanel/internal/github"
	"github.com/rancher/gitpanel/internal/notify"
)

// RenderStats formats an updateStats payload as a markdown table.
func RenderStats(stats notify.Stats) string {
	var builder strings.Builder
	builder.WriteString("| Field | Value |\n")
	builder.WriteString("| --- | --- |\n")

	rows := [][2]string{
		{"Repository", stats.RepoName},
		{"Path", stats.RepoPath},
		{"Branch", stats.Branch},
		{"Remote", stats.Remote},
		{"Status", stats.Status},
	}
	if user, ok := stats.User.(gh.ProfileSummary); ok {
		rows = append(rows, [2]string{"User", renderUser(user)})
	}

	for _, row := range rows {
		builder.WriteString(fmt.Sprintf("| %s | %s |\n", row[0], sanitizeMarkdownCell(row[1])))
	}
	return builder.String()
}

func renderUser(user gh.ProfileSummary) string {
	name := user.DisplayName
	if user.Login != "" && user.Login != name {
		name = fmt.Sprintf("%s (@%s)", name, user.Login)
	}
	if user.Email != "" {
		name = fmt.Sprintf("%s <%s>", name, user.Email)
	}
	return fmt.Sprintf("%s, %d repos, %d contributions, %d followers", name, user.RepositoryCount, user.ContributionCount, user.Followers)
}

// RenderResult formats the outcome of a git action for a terminal.
func RenderResult(result dispatch.Result) string {
	if !result.Succeeded {
		return result.ErrorMessage
	}
	out := strings.TrimSpace(result.Output)
	if out == "" {
		return fmt.Sprintf("%s succeeded", result.Action)
	}
	return out
}

func sanitizeMarkdownCell(value string) string {
	value = strings.ReplaceAll(value, "|", "\\|")
	value = strings.ReplaceAll(value, "\n", "<br>")
	value = strings.TrimSpace(value)
	if value == "" {
		return "-"
	}
	return value
}
