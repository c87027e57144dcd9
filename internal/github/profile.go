package gh

import (
	"context"
	"log/slog"
)

const defaultDisplayName = "GitHub User"

// ProfileSummary is the normalized identity shown for a linked account. Every
// field is independently defaulted.
type ProfileSummary struct {
	Login             string `json:"login"`
	DisplayName       string `json:"displayName"`
	Email             string `json:"email"`
	AvatarURL         string `json:"avatarUrl"`
	Followers         int    `json:"followers"`
	Following         int    `json:"following"`
	RepositoryCount   int    `json:"repositoryCount"`
	ContributionCount int    `json:"contributionCount"`
}

// ProfileResolver fetches a ProfileSummary for an access token.
type ProfileResolver struct {
	factory Factory
	log     *slog.Logger
}

// NewProfileResolver returns a resolver that builds clients from factory.
func NewProfileResolver(factory Factory, logger *slog.Logger) *ProfileResolver {
	return &ProfileResolver{factory: factory, log: logger}
}

// FetchProfile runs the primary profile query and, when it reports no email,
// looks up the primary address. Only a primary query failure is returned; the
// email lookup degrades to an empty email.
func (r *ProfileResolver) FetchProfile(ctx context.Context, token string) (ProfileSummary, error) {
	client, err := r.factory.New(ctx, token)
	if err != nil {
		return ProfileSummary{}, &ProfileFetchError{Err: err}
	}

	viewer, err := client.Viewer(ctx)
	if err != nil {
		return ProfileSummary{}, &ProfileFetchError{Err: err}
	}

	summary := ProfileSummary{
		Login:             viewer.Login,
		DisplayName:       viewer.Name,
		Email:             viewer.Email,
		AvatarURL:         viewer.AvatarURL,
		Followers:         viewer.Followers,
		Following:         viewer.Following,
		RepositoryCount:   viewer.RepositoryCount,
		ContributionCount: viewer.ContributionCount,
	}

	if summary.DisplayName == "" {
		summary.DisplayName = summary.Login
	}
	if summary.DisplayName == "" {
		summary.DisplayName = defaultDisplayName
	}

	if summary.Email == "" {
		email, err := client.PrimaryEmail(ctx)
		if err != nil {
			if r.log != nil {
				r.log.Warn("primary email lookup failed", "error", err, "retryable", IsRetryable(err))
			}
		} else {
			summary.Email = email
		}
	}

	return summary, nil
}
