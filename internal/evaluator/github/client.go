// Package github lists benchmark submissions from open pull requests and
// comments on them.
package github

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"strings"
	"time"

	gh "github.com/google/go-github/v66/github"
	"golang.org/x/oauth2"

	"neurojudge/internal/common/cache"
	"neurojudge/internal/evaluator/model"
	appErr "neurojudge/pkg/errors"
	"neurojudge/pkg/utils/logger"

	"go.uber.org/zap"
)

// maxPerPage is the largest page size the API honours.
const maxPerPage = 100

// Config configures the GitHub API client.
type Config struct {
	BaseURL string        `yaml:"baseURL"`
	Owner   string        `yaml:"owner" validate:"required"`
	Repo    string        `yaml:"repo" validate:"required"`
	Token   string        `yaml:"token"`
	Timeout time.Duration `yaml:"timeout"`
	PerPage int           `yaml:"perPage"`

	// UserCacheTTL bounds how long profiles stay in the shared cache.
	UserCacheTTL time.Duration `yaml:"userCacheTTL"`
}

// Client talks to the GitHub REST API.
type Client struct {
	cfg   Config
	api   *gh.Client
	users cache.Cache
}

// NewClient creates a client. A token, when set, is sent as a bearer token.
// BaseURL overrides the public API endpoint, e.g. for GitHub Enterprise.
func NewClient(cfg Config) (*Client, error) {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.PerPage <= 0 {
		cfg.PerPage = 50
	}
	if cfg.PerPage > maxPerPage {
		cfg.PerPage = maxPerPage
	}
	if cfg.UserCacheTTL <= 0 {
		cfg.UserCacheTTL = 6 * time.Hour
	}

	hc := &http.Client{}
	if cfg.Token != "" {
		hc = oauth2.NewClient(context.Background(), oauth2.StaticTokenSource(&oauth2.Token{AccessToken: cfg.Token}))
	}
	hc.Timeout = cfg.Timeout

	api := gh.NewClient(hc)
	if cfg.BaseURL != "" {
		base, err := url.Parse(strings.TrimRight(cfg.BaseURL, "/") + "/")
		if err != nil || base.Scheme == "" || base.Host == "" {
			return nil, appErr.ConfigError("github.baseURL", "must be an absolute URL")
		}
		api.BaseURL = base
	}
	return &Client{cfg: cfg, api: api}, nil
}

// WithUserCache shares fetched user profiles across passes and processes.
func (c *Client) WithUserCache(users cache.Cache) *Client {
	c.users = users
	return c
}

// user is the cached slice of a GitHub profile.
type user struct {
	Login     string `json:"login"`
	AvatarURL string `json:"avatar_url"`
	Email     string `json:"email"`
}

// ListSubmissions returns every open pull request as a submission. The list
// endpoint omits mergeability, so each pull request is fetched individually.
// A pull request that cannot be fetched is skipped; rate limiting and
// cancellation abort the pass.
func (c *Client) ListSubmissions(ctx context.Context) ([]model.Submission, error) {
	var out []model.Submission
	users := make(map[string]user)
	opts := &gh.PullRequestListOptions{
		State:       "open",
		ListOptions: gh.ListOptions{PerPage: c.cfg.PerPage},
	}
	for {
		pulls, resp, err := c.api.PullRequests.List(ctx, c.cfg.Owner, c.cfg.Repo, opts)
		if err != nil {
			return nil, appErr.Wrapf(err, appErr.SubmissionListFailed, "list pull requests failed")
		}
		for _, p := range pulls {
			sub, ok, err := c.submission(ctx, p.GetNumber(), users)
			if err != nil {
				if aborts(ctx, err) {
					return nil, appErr.Wrapf(err, appErr.SubmissionListFailed, "get pull request %d failed", p.GetNumber())
				}
				logger.Warn(ctx, "skipping pull request", zap.Int("number", p.GetNumber()), zap.Error(err))
				continue
			}
			if ok {
				out = append(out, sub)
			}
		}
		if resp.NextPage == 0 {
			return out, nil
		}
		opts.Page = resp.NextPage
	}
}

func aborts(ctx context.Context, err error) bool {
	var rate *gh.RateLimitError
	var abuse *gh.AbuseRateLimitError
	return ctx.Err() != nil || errors.As(err, &rate) || errors.As(err, &abuse)
}

func (c *Client) submission(ctx context.Context, number int, users map[string]user) (model.Submission, bool, error) {
	p, _, err := c.api.PullRequests.Get(ctx, c.cfg.Owner, c.cfg.Repo, number)
	if err != nil {
		return model.Submission{}, false, err
	}
	head := p.GetHead().GetRepo()
	if head == nil {
		logger.Warn(ctx, "skipping pull request without head repository", zap.Int("number", number))
		return model.Submission{}, false, nil
	}

	login := p.GetUser().GetLogin()
	u, ok := users[login]
	if !ok {
		var err error
		if u, err = c.lookupUser(ctx, login); err != nil || u.Login == "" {
			logger.Warn(ctx, "get user failed", zap.String("login", login), zap.Error(err))
			u = user{Login: login, AvatarURL: p.GetUser().GetAvatarURL()}
		}
		users[login] = u
	}

	return model.Submission{
		ID:        p.GetID(),
		Number:    p.GetNumber(),
		Login:     login,
		SourceURL: head.GetCloneURL(),
		Branch:    p.GetHead().GetRef(),
		UpdatedAt: p.GetUpdatedAt().Time,
		Mergeable: p.GetMergeable(),
		HTMLURL:   p.GetHTMLURL(),
		AvatarURL: p.GetUser().GetAvatarURL(),
		Email:     u.Email,
	}, true, nil
}

// lookupUser fetches a profile, through the shared user cache when one is set.
func (c *Client) lookupUser(ctx context.Context, login string) (user, error) {
	fetch := func(ctx context.Context) (user, error) {
		u, _, err := c.api.Users.Get(ctx, login)
		if err != nil {
			return user{}, err
		}
		return user{Login: u.GetLogin(), AvatarURL: u.GetAvatarURL(), Email: u.GetEmail()}, nil
	}
	if c.users == nil {
		return fetch(ctx)
	}
	return cache.GetWithCached(ctx, c.users, userCacheKey(login),
		cache.JitterTTL(c.cfg.UserCacheTTL), time.Minute,
		func(u user) bool { return u.Login == "" },
		func(u user) string {
			data, _ := json.Marshal(u)
			return string(data)
		},
		func(data string) (user, error) {
			var u user
			err := json.Unmarshal([]byte(data), &u)
			return u, err
		},
		fetch)
}

func userCacheKey(login string) string {
	return "neurojudge:github:user:" + strings.ToLower(login)
}

// CreateComment posts body as a comment on the pull request.
func (c *Client) CreateComment(ctx context.Context, number int, body string) error {
	_, _, err := c.api.Issues.CreateComment(ctx, c.cfg.Owner, c.cfg.Repo, number, &gh.IssueComment{Body: gh.String(body)})
	if err != nil {
		return appErr.Wrapf(err, appErr.NotificationFailed, "comment on pull request %d failed", number)
	}
	return nil
}
