package github

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/cenkalti/backoff/v4"
	gh "github.com/google/go-github/v82/github"
)

// fetch runs a single API call, retrying rate-limited responses with bounded
// exponential backoff. Any other failure is returned immediately.
func fetch[T any](ctx context.Context, c *Client, endpoint string, call func() (T, *gh.Response, error)) (T, error) {
	var out T
	attempt := 0

	op := func() error {
		attempt++
		v, resp, err := call()
		logRateLimit(resp, endpoint)
		if err == nil {
			out = v
			return nil
		}
		if isRateLimited(resp, err) {
			slog.Warn("github rate limited, backing off",
				"endpoint", endpoint,
				"attempt", attempt,
				"error", err,
			)
			return err
		}
		return backoff.Permanent(err)
	}

	b := backoff.WithContext(backoff.WithMaxRetries(c.newBackOff(), c.maxRetries), ctx)
	if err := backoff.Retry(op, b); err != nil {
		var zero T
		return zero, err
	}
	return out, nil
}

// fetchAllPages follows NextPage links until the listing is exhausted. A
// failure on any page discards the partial result.
func fetchAllPages[T any](ctx context.Context, c *Client, endpoint string, call func(opts gh.ListOptions) ([]T, *gh.Response, error)) ([]T, error) {
	var all []T
	opts := gh.ListOptions{PerPage: listPageSize}

	for {
		var next int
		page, err := fetch(ctx, c, endpoint, func() ([]T, *gh.Response, error) {
			items, resp, err := call(opts)
			if resp != nil {
				next = resp.NextPage
			}
			return items, resp, err
		})
		if err != nil {
			return nil, err
		}

		all = append(all, page...)

		if next == 0 {
			break
		}
		opts.Page = next
	}

	return all, nil
}

// isRateLimited reports whether err signals a primary or secondary rate limit.
func isRateLimited(resp *gh.Response, err error) bool {
	var rateErr *gh.RateLimitError
	if errors.As(err, &rateErr) {
		return true
	}

	var abuseErr *gh.AbuseRateLimitError
	if errors.As(err, &abuseErr) {
		return true
	}

	if resp != nil && resp.Response != nil {
		return resp.StatusCode == http.StatusForbidden || resp.StatusCode == http.StatusTooManyRequests
	}
	return false
}
