// internal/github/client.go
package github

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/google/go-github/v62/github"
	"golang.org/x/oauth2"

	custom_errors "code-gems/internal/errors"
	"code-gems/internal/model"
)

// Client is a wrapper around the go-github client.
type Client struct {
	gh     *github.Client
	logger *slog.Logger
}

// NewClient creates and configures a new Client instance.
// An empty token leaves the client unauthenticated, which puts it on
// GitHub's 60-calls-per-hour per-IP quota.
func NewClient(token string, logger *slog.Logger) *Client {
	if token == "" {
		return &Client{
			gh:     github.NewClient(nil),
			logger: logger,
		}
	}

	ctx := context.Background()
	ts := oauth2.StaticTokenSource(
		&oauth2.Token{AccessToken: token},
	)
	tc := oauth2.NewClient(ctx, ts)

	return &Client{
		gh:     github.NewClient(tc),
		logger: logger,
	}
}

// FetchRepository resolves a github.com web URL to its repository endpoint
// and issues two sequential calls: repository metadata, then the per-language
// byte breakdown. Any non-success response aborts the fetch with a nil
// result; there is no retry. The returned rate info is taken from the most
// recent response that carried the x-ratelimit-* headers, so the caller can
// fold it into the process-wide quota state either way.
func (c *Client) FetchRepository(ctx context.Context, rawURL string) (*model.RepoMetadata, model.RateLimit, error) {
	owner, name, err := ParseRepoURL(rawURL)
	if err != nil {
		return nil, model.RateLimit{}, err
	}

	c.logger.Debug("Fetching repository metadata", "owner", owner, "repo", name)

	repo, resp, err := c.gh.Repositories.Get(ctx, owner, name)
	rate := rateFromResponse(resp)
	if err != nil {
		return nil, rate, fmt.Errorf("fetching repository %s/%s: %w", owner, name, err)
	}

	langs, lresp, err := c.gh.Repositories.ListLanguages(ctx, owner, name)
	if lresp != nil {
		rate = rateFromResponse(lresp)
	}
	if err != nil {
		return nil, rate, fmt.Errorf("fetching languages for %s/%s: %w", owner, name, err)
	}

	return toRepoMetadata(repo, langs), rate, nil
}

// OverrideBaseURL points the underlying client at a different API root.
// Used by tests that run against a stub GitHub server.
func (c *Client) OverrideBaseURL(rawURL string) error {
	u, err := url.Parse(strings.TrimSuffix(rawURL, "/") + "/")
	if err != nil {
		return err
	}
	c.gh.BaseURL = u
	return nil
}

// ParseRepoURL maps a github.com web URL to its owner and repository name.
func ParseRepoURL(raw string) (owner, name string, err error) {
	u, parseErr := url.Parse(raw)
	if parseErr != nil || !isGithubHost(u.Host) {
		return "", "", &custom_errors.ErrInvalidProjectURL{URL: raw}
	}

	parts := strings.Split(strings.Trim(u.Path, "/"), "/")
	if len(parts) < 2 || parts[0] == "" || parts[1] == "" {
		return "", "", &custom_errors.ErrInvalidProjectURL{URL: raw}
	}

	return parts[0], strings.TrimSuffix(parts[1], ".git"), nil
}

// isGithubHost matches github.com and its subdomains on a dot boundary, so
// look-alike hosts such as evilgithub.com do not pass as project sources.
func isGithubHost(host string) bool {
	host = strings.ToLower(host)
	return host == "github.com" || strings.HasSuffix(host, ".github.com")
}

// toRepoMetadata translates the go-github response objects to our internal model.
func toRepoMetadata(r *github.Repository, langs map[string]int) *model.RepoMetadata {
	return &model.RepoMetadata{
		Owner:       r.GetOwner().GetLogin(),
		Name:        r.GetName(),
		Description: r.Description,
		Stars:       r.GetStargazersCount(),
		Forks:       r.GetForksCount(),
		Languages:   langs,
	}
}

// rateFromResponse lifts the parsed x-ratelimit-remaining / x-ratelimit-reset
// headers out of a go-github response. Responses are present even for
// non-2xx statuses, so failed calls still report quota consumption.
func rateFromResponse(resp *github.Response) model.RateLimit {
	if resp == nil || (resp.Rate.Limit == 0 && resp.Rate.Reset.Time.IsZero()) {
		return model.RateLimit{}
	}
	return model.RateLimit{
		Remaining:   resp.Rate.Remaining,
		ResetEpoch:  resp.Rate.Reset.Unix(),
		LastChecked: time.Now(),
	}
}
