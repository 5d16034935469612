package credentials

import (
	"context"
	"strings"
)

// Source resolves the API key to use for a provider. An empty key with a nil error means
// the caller holds no credential for that provider.
type Source interface {
	APIKey(ctx context.Context, provider string) (string, error)
}

// Static serves keys from configuration.
type Static map[string]string

func (s Static) APIKey(_ context.Context, provider string) (string, error) {
	return strings.TrimSpace(s[provider]), nil
}

// APIKey makes *Store usable as a Source.
func (s *Store) APIKey(ctx context.Context, provider string) (string, error) {
	return s.Token(ctx, provider)
}

// Chain consults each source in order and returns the first non-empty key. A failing
// source is skipped so a database outage does not hide keys present in the environment;
// its error is returned only when no later source has a key.
type Chain []Source

func (c Chain) APIKey(ctx context.Context, provider string) (string, error) {
	var firstErr error
	for _, src := range c {
		if src == nil {
			continue
		}
		key, err := src.APIKey(ctx, provider)
		if err != nil {
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		if key != "" {
			return key, nil
		}
	}
	return "", firstErr
}
