// Package remote is gh-grep's GitHub REST API client.
//
// It wraps go-github with an OAuth2 token source, an optional client-side
// rate limit, a span and Prometheus sample per request, and *APIError
// classification (IsNotFound, IsTooLarge) for the callers' fallback logic.
package remote

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/fyrsmithlabs/gh-grep/internal/config"
	"github.com/fyrsmithlabs/gh-grep/internal/logging"
	"github.com/fyrsmithlabs/gh-grep/internal/metrics"
	"github.com/google/go-github/v57/github"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"golang.org/x/oauth2"
)

var tracer = otel.Tracer("gh-grep/remote")

// rawMediaType asks the contents API for the file body instead of JSON.
const rawMediaType = "application/vnd.github.v3.raw"

// Operation names used for spans, metrics and errors.
const (
	OpSearchCode     = "search_code"
	OpGetContent     = "get_content"
	OpGetRepository  = "get_repository"
	OpGetRef         = "get_ref"
	OpGetCommit      = "get_commit"
	OpGetCommitByRef = "get_commit_by_ref"
	OpGetTree        = "get_tree"
	OpGetBlob        = "get_blob"
)

// Options configures NewClient.
type Options struct {
	// BaseURL is the REST root, e.g. https://api.github.com/ or
	// https://ghe.example.com/api/v3/.
	BaseURL string

	// RequestsPerSecond throttles outgoing requests; 0 disables it.
	RequestsPerSecond float64
	Burst             int

	// HTTPClient supplies the base transport. Defaults to
	// http.DefaultTransport.
	HTTPClient *http.Client

	Metrics *metrics.Metrics
	Logger  *logging.Logger
}

// Client talks to one GitHub host.
type Client struct {
	gh      *github.Client
	metrics *metrics.Metrics
	logger  *logging.Logger
}

// NewClient creates a GitHub client with token authentication.
func NewClient(ctx context.Context, token config.Secret, opts Options) (*Client, error) {
	var base http.RoundTripper
	if opts.HTTPClient != nil {
		base = opts.HTTPClient.Transport
	}
	hc := &http.Client{Transport: newRateLimitedTransport(base, opts.RequestsPerSecond, opts.Burst)}

	if token.IsSet() {
		ts := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token.Value()})
		hc = oauth2.NewClient(context.WithValue(ctx, oauth2.HTTPClient, hc), ts)
	}

	gh := github.NewClient(hc)
	if opts.BaseURL != "" {
		u, err := url.Parse(opts.BaseURL)
		if err != nil {
			return nil, fmt.Errorf("invalid API URL %q: %w", opts.BaseURL, err)
		}
		if !strings.HasSuffix(u.Path, "/") {
			u.Path += "/"
		}
		gh.BaseURL = u
	}

	logger := opts.Logger
	if logger == nil {
		logger = logging.NewNop()
	}

	return &Client{gh: gh, metrics: opts.Metrics, logger: logger}, nil
}

// BaseURL returns the REST root the client talks to.
func (c *Client) BaseURL() string {
	return c.gh.BaseURL.String()
}

// SearchCode runs one code search and returns a single page of at most
// perPage hits. No further pages are requested.
func (c *Client) SearchCode(ctx context.Context, query string, perPage int) ([]SearchHit, error) {
	var result *github.CodeSearchResult
	err := c.call(ctx, OpSearchCode, RepoRef{}, "", []attribute.KeyValue{attribute.String("github.query", query)},
		func(ctx context.Context) (*github.Response, error) {
			var resp *github.Response
			var err error
			result, resp, err = c.gh.Search.Code(ctx, query, &github.SearchOptions{
				ListOptions: github.ListOptions{PerPage: perPage},
			})
			return resp, err
		})
	if err != nil {
		return nil, err
	}

	hits := make([]SearchHit, 0, len(result.CodeResults))
	for _, r := range result.CodeResults {
		repo := r.GetRepository()
		hits = append(hits, SearchHit{
			Repo: RepoRef{Owner: repo.GetOwner().GetLogin(), Name: repo.GetName()},
			Path: r.GetPath(),
		})
	}
	return hits, nil
}

// GetContent returns the raw body of path at the default branch, or at
// ref when it is non-empty.
func (c *Client) GetContent(ctx context.Context, repo RepoRef, path, ref string) (string, error) {
	var buf bytes.Buffer
	err := c.call(ctx, OpGetContent, repo, path, nil, func(ctx context.Context) (*github.Response, error) {
		u := fmt.Sprintf("repos/%s/%s/contents/%s", repo.Owner, repo.Name, escapePath(path))
		if ref != "" {
			u += "?ref=" + url.QueryEscape(ref)
		}
		req, err := c.gh.NewRequest(http.MethodGet, u, nil)
		if err != nil {
			return nil, err
		}
		req.Header.Set("Accept", rawMediaType)
		return c.gh.Do(ctx, req, &buf)
	})
	if err != nil {
		return "", err
	}
	return buf.String(), nil
}

// GetDefaultBranch returns the repository's default branch name.
func (c *Client) GetDefaultBranch(ctx context.Context, repo RepoRef) (string, error) {
	var r *github.Repository
	err := c.call(ctx, OpGetRepository, repo, "", nil, func(ctx context.Context) (*github.Response, error) {
		var resp *github.Response
		var err error
		r, resp, err = c.gh.Repositories.Get(ctx, repo.Owner, repo.Name)
		return resp, err
	})
	if err != nil {
		return "", err
	}
	return r.GetDefaultBranch(), nil
}

// GetRef resolves a ref such as "heads/main" to the sha it points at.
func (c *Client) GetRef(ctx context.Context, repo RepoRef, ref string) (string, error) {
	var r *github.Reference
	err := c.call(ctx, OpGetRef, repo, "", []attribute.KeyValue{attribute.String("git.ref", ref)},
		func(ctx context.Context) (*github.Response, error) {
			var resp *github.Response
			var err error
			r, resp, err = c.gh.Git.GetRef(ctx, repo.Owner, repo.Name, ref)
			return resp, err
		})
	if err != nil {
		return "", err
	}
	return r.GetObject().GetSHA(), nil
}

// GetCommit returns the tree sha of the commit object sha.
func (c *Client) GetCommit(ctx context.Context, repo RepoRef, sha string) (string, error) {
	var commit *github.Commit
	err := c.call(ctx, OpGetCommit, repo, "", []attribute.KeyValue{attribute.String("git.sha", sha)},
		func(ctx context.Context) (*github.Response, error) {
			var resp *github.Response
			var err error
			commit, resp, err = c.gh.Git.GetCommit(ctx, repo.Owner, repo.Name, sha)
			return resp, err
		})
	if err != nil {
		return "", err
	}
	return commit.GetTree().GetSHA(), nil
}

// GetCommitByRef resolves any commit-ish (including an abbreviated sha)
// and returns its tree sha.
func (c *Client) GetCommitByRef(ctx context.Context, repo RepoRef, ref string) (string, error) {
	var commit *github.RepositoryCommit
	err := c.call(ctx, OpGetCommitByRef, repo, "", []attribute.KeyValue{attribute.String("git.ref", ref)},
		func(ctx context.Context) (*github.Response, error) {
			var resp *github.Response
			var err error
			commit, resp, err = c.gh.Repositories.GetCommit(ctx, repo.Owner, repo.Name, ref, nil)
			return resp, err
		})
	if err != nil {
		return "", err
	}
	return commit.GetCommit().GetTree().GetSHA(), nil
}

// GetTree lists the tree sha, descending into subtrees when recursive.
func (c *Client) GetTree(ctx context.Context, repo RepoRef, sha string, recursive bool) (*Tree, error) {
	var t *github.Tree
	err := c.call(ctx, OpGetTree, repo, "", []attribute.KeyValue{
		attribute.String("git.sha", sha),
		attribute.Bool("git.recursive", recursive),
	}, func(ctx context.Context) (*github.Response, error) {
		var resp *github.Response
		var err error
		t, resp, err = c.gh.Git.GetTree(ctx, repo.Owner, repo.Name, sha, recursive)
		return resp, err
	})
	if err != nil {
		return nil, err
	}

	tree := &Tree{
		SHA:       t.GetSHA(),
		Truncated: t.GetTruncated(),
		Entries:   make([]TreeEntry, 0, len(t.Entries)),
	}
	for _, e := range t.Entries {
		tree.Entries = append(tree.Entries, TreeEntry{
			Path: e.GetPath(),
			Type: e.GetType(),
			SHA:  e.GetSHA(),
			Size: e.GetSize(),
		})
	}
	return tree, nil
}

// GetBlob fetches a blob. Content is returned as the host encoded it.
func (c *Client) GetBlob(ctx context.Context, repo RepoRef, sha string) (*Blob, error) {
	var b *github.Blob
	err := c.call(ctx, OpGetBlob, repo, "", []attribute.KeyValue{attribute.String("git.sha", sha)},
		func(ctx context.Context) (*github.Response, error) {
			var resp *github.Response
			var err error
			b, resp, err = c.gh.Git.GetBlob(ctx, repo.Owner, repo.Name, sha)
			return resp, err
		})
	if err != nil {
		return nil, err
	}
	return &Blob{
		SHA:      b.GetSHA(),
		Content:  b.GetContent(),
		Encoding: b.GetEncoding(),
		Size:     b.GetSize(),
	}, nil
}

// call runs one API request inside a span and records its outcome.
func (c *Client) call(
	ctx context.Context,
	op string,
	repo RepoRef,
	path string,
	attrs []attribute.KeyValue,
	fn func(context.Context) (*github.Response, error),
) error {
	var repoName string
	if repo.Owner != "" {
		repoName = repo.String()
		attrs = append(attrs, attribute.String("github.repository", repoName))
	}
	if path != "" {
		attrs = append(attrs, attribute.String("github.path", path))
	}

	ctx, span := tracer.Start(ctx, "github."+op, trace.WithAttributes(attrs...))
	defer span.End()

	start := time.Now()
	resp, err := fn(ctx)
	elapsed := time.Since(start)
	status := getStatusCode(resp)

	c.metrics.RecordRequest(op, status, elapsed)
	span.SetAttributes(attribute.Int("http.status_code", status))
	c.logger.Trace(ctx, "github request",
		zap.String("operation", op),
		zap.String("repo", repoName),
		zap.String("path", path),
		zap.Int("status", status),
		zap.Duration("duration", elapsed),
	)

	if err != nil {
		wrapped := wrapError(op, repoName, path, resp, err)
		if !IsNotFound(wrapped) {
			span.RecordError(wrapped)
			span.SetStatus(codes.Error, "request failed")
		}
		return wrapped
	}
	return nil
}

// escapePath percent-encodes each segment of a repository path.
func escapePath(p string) string {
	return (&url.URL{Path: strings.TrimPrefix(p, "/")}).EscapedPath()
}
