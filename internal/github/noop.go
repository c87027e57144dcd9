package gh

import (
	"context"
	"errors"
)

// ErrNotConfigured is returned by the noop client for every call.
var ErrNotConfigured = errors.New("github: integration not configured")

// NewNoopFactory returns a Factory that builds clients which fail every call.
// It stands in when no GitHub endpoint is configured.
func NewNoopFactory() Factory {
	return noopFactory{}
}

type noopFactory struct{}

func (noopFactory) New(ctx context.Context, token string) (Client, error) {
	return noopClient{}, nil
}

type noopClient struct{}

func (noopClient) Viewer(ctx context.Context) (Viewer, error) {
	return Viewer{}, ErrNotConfigured
}

func (noopClient) PrimaryEmail(ctx context.Context) (string, error) {
	return "", ErrNotConfigured
}
