package git

import (
	"regexp"
	"strings"
)

var (
	repoNameFromURL     = regexp.MustCompile(`/([^/]+?)(?:\.git)?$`)
	embeddedCredentials = regexp.MustCompile(`https://.*?@`)
)

// RepoNameFromURL extracts the trailing repository name from a remote URL,
// dropping a ".git" suffix. It reports false when no name can be found.
func RepoNameFromURL(remote string) (string, bool) {
	remote = strings.TrimRight(strings.TrimSpace(remote), "/")
	m := repoNameFromURL.FindStringSubmatch(remote)
	if len(m) < 2 || m[1] == "" {
		return "", false
	}
	return m[1], true
}

// WithToken embeds token as the credential of an HTTPS remote URL, replacing
// any credential already present. Non-HTTPS URLs are returned unchanged with
// ok set to false.
func WithToken(remote, token string) (string, bool) {
	remote = strings.TrimSpace(remote)
	if !strings.HasPrefix(remote, "https://") {
		return remote, false
	}
	stripped := embeddedCredentials.ReplaceAllString(remote, "https://")
	return "https://" + token + "@" + strings.TrimPrefix(stripped, "https://"), true
}
