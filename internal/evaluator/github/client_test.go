package github

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"neurojudge/internal/common/cache"
	appErr "neurojudge/pkg/errors"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

// openPulls is served by fakeGitHub in this order. 13 has no head repository,
// 14 cannot be fetched.
var openPulls = []int{12, 13, 14, 15}

type fakeGitHub struct {
	mu          sync.Mutex
	comments    map[string]string
	auth        string
	userHits    int
	perPage     []string
	pages       int
	rateLimited bool
}

func (f *fakeGitHub) handler(t *testing.T) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /repos/codeneuro/neurofinder/pulls", func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		f.mu.Lock()
		f.auth = r.Header.Get("Authorization")
		f.perPage = append(f.perPage, q.Get("per_page"))
		f.pages++
		f.mu.Unlock()

		size, _ := strconv.Atoi(q.Get("per_page"))
		page, _ := strconv.Atoi(q.Get("page"))
		if page < 1 {
			page = 1
		}
		start := min((page-1)*size, len(openPulls))
		end := min(start+size, len(openPulls))
		if end < len(openPulls) {
			next := *r.URL
			q.Set("page", strconv.Itoa(page+1))
			next.RawQuery = q.Encode()
			w.Header().Set("Link", fmt.Sprintf(`<http://%s%s>; rel="next"`, r.Host, next.RequestURI()))
		}
		var items []string
		for _, n := range openPulls[start:end] {
			items = append(items, fmt.Sprintf(`{"number": %d}`, n))
		}
		w.Write([]byte("[" + strings.Join(items, ",") + "]"))
	})
	mux.HandleFunc("GET /repos/codeneuro/neurofinder/pulls/{number}", func(w http.ResponseWriter, r *http.Request) {
		switch r.PathValue("number") {
		case "12":
			w.Write([]byte(`{
				"id": 5012, "number": 12, "html_url": "https://github.com/codeneuro/neurofinder/pull/12",
				"updated_at": "2016-04-01T08:00:00Z", "mergeable": true,
				"user": {"login": "ada", "avatar_url": "https://avatars/ada"},
				"head": {"ref": "ada-nmf", "repo": {"clone_url": "https://github.com/ada/neurofinder.git"}}
			}`))
		case "13":
			w.Write([]byte(`{"id": 5013, "number": 13, "user": {"login": "ghost"}, "head": {"ref": "gone", "repo": null}}`))
		case "14":
			f.mu.Lock()
			limited := f.rateLimited
			f.mu.Unlock()
			if limited {
				w.Header().Set("X-RateLimit-Remaining", "0")
				w.WriteHeader(http.StatusForbidden)
				w.Write([]byte(`{"message": "API rate limit exceeded"}`))
				return
			}
			http.Error(w, `{"message": "boom"}`, http.StatusInternalServerError)
		case "15":
			w.Write([]byte(`{
				"id": 5015, "number": 15, "updated_at": "2016-04-02T08:00:00Z",
				"user": {"login": "ada"},
				"head": {"ref": "ada-cnmf", "repo": {"clone_url": "https://github.com/ada/neurofinder.git"}}
			}`))
		default:
			http.NotFound(w, r)
		}
	})
	mux.HandleFunc("GET /users/ada", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		f.userHits++
		f.mu.Unlock()
		w.Write([]byte(`{"login": "ada", "email": "ada@example.com"}`))
	})
	mux.HandleFunc("POST /repos/codeneuro/neurofinder/issues/12/comments", func(w http.ResponseWriter, r *http.Request) {
		var body map[string]string
		data, _ := io.ReadAll(r.Body)
		if err := json.Unmarshal(data, &body); err != nil {
			t.Errorf("comment body: %v", err)
		}
		f.mu.Lock()
		f.comments["12"] = body["body"]
		f.mu.Unlock()
		w.WriteHeader(http.StatusCreated)
		w.Write([]byte(`{}`))
	})
	return mux
}

func newTestClient(t *testing.T, cfg Config) (*Client, *fakeGitHub) {
	t.Helper()
	fake := &fakeGitHub{comments: make(map[string]string)}
	srv := httptest.NewServer(fake.handler(t))
	t.Cleanup(srv.Close)
	cfg.BaseURL = srv.URL
	cfg.Owner, cfg.Repo = "codeneuro", "neurofinder"
	c, err := NewClient(cfg)
	if err != nil {
		t.Fatalf("NewClient() error = %v", err)
	}
	return c, fake
}

func TestListSubmissions(t *testing.T) {
	c, fake := newTestClient(t, Config{Token: "s3cret", PerPage: 2})
	subs, err := c.ListSubmissions(context.Background())
	if err != nil {
		t.Fatalf("ListSubmissions() error = %v", err)
	}
	if len(subs) != 2 {
		t.Fatalf("submissions = %d, want 2 (no head repo and failed fetch skipped)", len(subs))
	}
	s := subs[0]
	if s.ID != 5012 || s.Number != 12 || s.Login != "ada" || s.Branch != "ada-nmf" {
		t.Errorf("submission = %+v", s)
	}
	if !s.Mergeable || s.SourceURL != "https://github.com/ada/neurofinder.git" || s.Email != "ada@example.com" {
		t.Errorf("submission = %+v", s)
	}
	if !s.UpdatedAt.Equal(time.Date(2016, 4, 1, 8, 0, 0, 0, time.UTC)) {
		t.Errorf("UpdatedAt = %v", s.UpdatedAt)
	}
	if subs[1].Number != 15 || subs[1].Mergeable {
		t.Errorf("second page submission = %+v", subs[1])
	}

	fake.mu.Lock()
	defer fake.mu.Unlock()
	if fake.auth != "Bearer s3cret" {
		t.Errorf("Authorization = %q", fake.auth)
	}
	if fake.pages != 2 {
		t.Errorf("pages fetched = %d, want 2", fake.pages)
	}
	if fake.userHits != 1 {
		t.Errorf("user fetched %d times in one pass, want 1", fake.userHits)
	}
}

func TestListSubmissions_PerPageCapped(t *testing.T) {
	c, fake := newTestClient(t, Config{PerPage: 500})
	subs, err := c.ListSubmissions(context.Background())
	if err != nil {
		t.Fatalf("ListSubmissions() error = %v", err)
	}
	if len(subs) != 2 {
		t.Fatalf("submissions = %d, want 2", len(subs))
	}
	fake.mu.Lock()
	defer fake.mu.Unlock()
	if len(fake.perPage) != 1 || fake.perPage[0] != "100" {
		t.Fatalf("per_page sent = %q, want [100]", fake.perPage)
	}
}

func TestListSubmissions_RateLimitAborts(t *testing.T) {
	c, fake := newTestClient(t, Config{})
	fake.mu.Lock()
	fake.rateLimited = true
	fake.mu.Unlock()
	if _, err := c.ListSubmissions(context.Background()); !appErr.Is(err, appErr.SubmissionListFailed) {
		t.Fatalf("ListSubmissions() error = %v, want SubmissionListFailed", err)
	}
}

func TestListSubmissionsSharesUserCache(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	rc, err := cache.NewRedisCacheWithClient(rdb)
	if err != nil {
		t.Fatalf("cache: %v", err)
	}
	c, fake := newTestClient(t, Config{})
	c.WithUserCache(rc)

	for i := 0; i < 2; i++ {
		subs, err := c.ListSubmissions(context.Background())
		if err != nil || len(subs) != 2 || subs[0].Email != "ada@example.com" {
			t.Fatalf("pass %d: %+v, %v", i+1, subs, err)
		}
	}
	fake.mu.Lock()
	defer fake.mu.Unlock()
	if fake.userHits != 1 {
		t.Fatalf("user fetched %d times, want 1", fake.userHits)
	}
	if !mr.Exists(userCacheKey("ada")) {
		t.Fatal("profile not cached")
	}
}

func TestCreateComment(t *testing.T) {
	c, fake := newTestClient(t, Config{})
	if err := c.CreateComment(context.Background(), 12, "Validation successful"); err != nil {
		t.Fatalf("CreateComment() error = %v", err)
	}
	fake.mu.Lock()
	got := fake.comments["12"]
	fake.mu.Unlock()
	if got != "Validation successful" {
		t.Errorf("comment = %q", got)
	}
	err := c.CreateComment(context.Background(), 99, "x")
	if !appErr.Is(err, appErr.NotificationFailed) {
		t.Fatalf("CreateComment() error = %v, want NotificationFailed", err)
	}
	if !strings.Contains(err.Error(), "99") {
		t.Errorf("error should name the pull request: %v", err)
	}
}

func TestListSubmissions_ServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "forbidden", http.StatusForbidden)
	}))
	defer srv.Close()
	c, err := NewClient(Config{BaseURL: srv.URL, Owner: "o", Repo: "r"})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := c.ListSubmissions(context.Background()); !appErr.Is(err, appErr.SubmissionListFailed) {
		t.Fatalf("ListSubmissions() error = %v", err)
	}
}

func TestNewClient_BadBaseURL(t *testing.T) {
	_, err := NewClient(Config{BaseURL: "api.github.local", Owner: "o", Repo: "r"})
	if !appErr.Is(err, appErr.ConfigurationError) {
		t.Fatalf("NewClient() error = %v, want ConfigurationError", err)
	}
}
