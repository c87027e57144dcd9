package gh

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strings"

	github "github.com/google/go-github/v55/github"
	"github.com/shurcooL/githubv4"
	"golang.org/x/oauth2"
)

const defaultUserAgent = "rancher-gitpanel"

// NewRESTFactory returns a GitHub client factory backed by go-github for REST
// calls and githubv4 for GraphQL queries. When base and upload URLs are
// provided, the factory targets a GitHub Enterprise instance.
func NewRESTFactory(baseURL, uploadURL string) Factory {
	return &restFactory{
		userAgent: defaultUserAgent,
		baseURL:   strings.TrimSpace(baseURL),
		uploadURL: strings.TrimSpace(uploadURL),
	}
}

type restFactory struct {
	userAgent string
	baseURL   string
	uploadURL string
}

type restClient struct {
	client  *github.Client
	graphql *githubv4.Client
}

func (f *restFactory) New(ctx context.Context, token string) (Client, error) {
	if token == "" {
		return nil, fmt.Errorf("github token is required")
	}

	ts := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token})
	tc := oauth2.NewClient(ctx, ts)

	if f.baseURL == "" && f.uploadURL != "" {
		return nil, fmt.Errorf("github upload url cannot be set without base url")
	}

	var ghClient *github.Client
	if f.baseURL != "" {
		baseURLNormalized, err := normalizeGitHubURL(f.baseURL)
		if err != nil {
			return nil, fmt.Errorf("parse github base url: %w", err)
		}

		uploadURL := f.uploadURL
		if uploadURL == "" {
			uploadURL = baseURLNormalized
		}

		uploadURLNormalized, err := normalizeGitHubURL(uploadURL)
		if err != nil {
			return nil, fmt.Errorf("parse github upload url: %w", err)
		}

		ghClient, err = github.NewClient(tc).WithEnterpriseURLs(baseURLNormalized, uploadURLNormalized)
		if err != nil {
			return nil, fmt.Errorf("construct enterprise github client: %w", err)
		}
	} else {
		ghClient = github.NewClient(tc)
	}

	if f.userAgent != "" {
		ghClient.UserAgent = f.userAgent
	}

	var v4 *githubv4.Client
	if f.baseURL != "" {
		v4 = githubv4.NewEnterpriseClient(graphQLEndpoint(ghClient.BaseURL), tc)
	} else {
		v4 = githubv4.NewClient(tc)
	}

	return &restClient{client: ghClient, graphql: v4}, nil
}

func normalizeGitHubURL(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", fmt.Errorf("url cannot be empty")
	}

	parsed, err := url.Parse(raw)
	if err != nil {
		return "", err
	}

	if parsed.Scheme == "" {
		return "", fmt.Errorf("url must include scheme (e.g. https://)")
	}

	if parsed.Host == "" {
		return "", fmt.Errorf("url must include host")
	}

	if parsed.Path == "" {
		parsed.Path = "/"
	} else if !strings.HasSuffix(parsed.Path, "/") {
		parsed.Path += "/"
	}

	parsed.RawQuery = ""
	parsed.Fragment = ""

	return parsed.String(), nil
}

// graphQLEndpoint maps a REST base such as https://ghe.example.com/api/v3/ to
// its GraphQL endpoint https://ghe.example.com/api/graphql.
func graphQLEndpoint(restBase *url.URL) string {
	u := *restBase
	path := strings.TrimSuffix(u.Path, "/")
	path = strings.TrimSuffix(path, "/v3")
	u.Path = path + "/graphql"
	u.RawQuery = ""
	u.Fragment = ""
	return u.String()
}

type viewerQuery struct {
	Viewer struct {
		Login        string
		Name         string
		Email        string
		AvatarURL    string `graphql:"avatarUrl"`
		Followers    struct{ TotalCount int }
		Following    struct{ TotalCount int }
		Repositories struct {
			TotalCount int
		} `graphql:"repositories(ownerAffiliations: OWNER)"`
		ContributionsCollection struct {
			ContributionCalendar struct {
				TotalContributions int
			}
		}
	}
}

func (c *restClient) Viewer(ctx context.Context) (Viewer, error) {
	var q viewerQuery
	if err := c.graphql.Query(ctx, &q, nil); err != nil {
		err = classifyGitHubError(err)
		return Viewer{}, fmt.Errorf("query viewer: %w", err)
	}

	v := q.Viewer
	return Viewer{
		Login:             v.Login,
		Name:              v.Name,
		Email:             v.Email,
		AvatarURL:         v.AvatarURL,
		Followers:         v.Followers.TotalCount,
		Following:         v.Following.TotalCount,
		RepositoryCount:   v.Repositories.TotalCount,
		ContributionCount: v.ContributionsCollection.ContributionCalendar.TotalContributions,
	}, nil
}

func (c *restClient) PrimaryEmail(ctx context.Context) (string, error) {
	emails, _, err := c.client.Users.ListEmails(ctx, &github.ListOptions{PerPage: 100})
	if err != nil {
		err = classifyGitHubError(err)
		return "", fmt.Errorf("list emails: %w", err)
	}

	for _, e := range emails {
		if e == nil {
			continue
		}
		if e.GetPrimary() && e.GetEmail() != "" {
			return e.GetEmail(), nil
		}
	}
	return "", ErrNoPrimaryEmail
}

func classifyGitHubError(err error) error {
	if err == nil {
		return nil
	}
	if isRetryableGitHubError(err) {
		return &retryableError{err: err}
	}
	return err
}

func isRetryableGitHubError(err error) bool {
	if err == nil {
		return false
	}

	var rateLimitErr *github.RateLimitError
	if errors.As(err, &rateLimitErr) {
		return true
	}

	var abuseErr *github.AbuseRateLimitError
	if errors.As(err, &abuseErr) {
		return true
	}

	var acceptedErr *github.AcceptedError
	if errors.As(err, &acceptedErr) {
		return true
	}

	var respErr *github.ErrorResponse
	if errors.As(err, &respErr) {
		if respErr.Response != nil {
			code := respErr.Response.StatusCode
			if code == http.StatusTooManyRequests || (code >= 500 && code <= 599) {
				return true
			}
		}
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		if netErr.Timeout() {
			return true
		}
	}

	return false
}
