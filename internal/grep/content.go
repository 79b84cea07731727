package grep

import (
	"context"
	"encoding/base64"
	"fmt"
	"regexp"
	"strings"

	"github.com/fyrsmithlabs/gh-grep/internal/logging"
	"github.com/fyrsmithlabs/gh-grep/internal/metrics"
	"github.com/fyrsmithlabs/gh-grep/internal/remote"
	lru "github.com/hashicorp/golang-lru/v2"
	"go.uber.org/zap"
)

// DefaultCacheSize bounds each of the retriever's lookup caches.
const DefaultCacheSize = 128

var commitishPattern = regexp.MustCompile(`^[\da-f]{7,40}$`)

// ContentAPI is the subset of the GitHub API used to read files.
type ContentAPI interface {
	GetContent(ctx context.Context, repo remote.RepoRef, path, ref string) (string, error)
	GetDefaultBranch(ctx context.Context, repo remote.RepoRef) (string, error)
	GetRef(ctx context.Context, repo remote.RepoRef, ref string) (string, error)
	GetCommit(ctx context.Context, repo remote.RepoRef, sha string) (string, error)
	GetCommitByRef(ctx context.Context, repo remote.RepoRef, ref string) (string, error)
	GetTree(ctx context.Context, repo remote.RepoRef, sha string, recursive bool) (*remote.Tree, error)
	GetBlob(ctx context.Context, repo remote.RepoRef, sha string) (*remote.Blob, error)
}

// Retriever reads files of any size. Files the contents API refuses as
// too large are read through the git tree and blob APIs instead.
//
// Default branches, resolved trees and tree listings are cached so that
// several large files in one repository walk the tree once.
type Retriever struct {
	api     ContentAPI
	metrics *metrics.Metrics

	branches *lru.Cache[string, string]
	commits  *lru.Cache[string, string]
	trees    *lru.Cache[string, *remote.Tree]
}

// NewRetriever creates a retriever with caches of cacheSize entries.
func NewRetriever(api ContentAPI, cacheSize int) (*Retriever, error) {
	if cacheSize < 1 {
		cacheSize = DefaultCacheSize
	}
	branches, err := lru.New[string, string](cacheSize)
	if err != nil {
		return nil, fmt.Errorf("failed to create branch cache: %w", err)
	}
	commits, err := lru.New[string, string](cacheSize)
	if err != nil {
		return nil, fmt.Errorf("failed to create commit cache: %w", err)
	}
	trees, err := lru.New[string, *remote.Tree](cacheSize)
	if err != nil {
		return nil, fmt.Errorf("failed to create tree cache: %w", err)
	}
	return &Retriever{api: api, branches: branches, commits: commits, trees: trees}, nil
}

// SetMetrics sets the metrics tracker for this retriever.
func (r *Retriever) SetMetrics(m *metrics.Metrics) {
	r.metrics = m
}

// Fetch returns the content of path in repo at ref (the default branch
// when ref is empty). A file that does not exist yields "" and a nil
// error.
func (r *Retriever) Fetch(ctx context.Context, repo remote.RepoRef, path, ref string) (string, error) {
	content, err := r.api.GetContent(ctx, repo, path, contentRef(ref))
	switch {
	case err == nil:
		r.metrics.RecordFileFetched(metrics.OutcomeOK)
		return content, nil
	case remote.IsNotFound(err):
		r.metrics.RecordFileFetched(metrics.OutcomeNotFound)
		logging.FromContext(ctx).Debug(ctx, "file not found", zap.String("path", path))
		return "", nil
	case remote.IsTooLarge(err):
		r.metrics.RecordFileFetched(metrics.OutcomeTooLarge)
		logging.FromContext(ctx).Debug(ctx, "file too large, reading blob", zap.String("path", path))
		content, err := r.fetchLarge(ctx, repo, path, ref)
		if err != nil {
			if remote.IsNotFound(err) {
				return "", nil
			}
			return "", err
		}
		return content, nil
	default:
		return "", err
	}
}

// fetchLarge walks ref -> commit -> tree -> blob and decodes the blob.
func (r *Retriever) fetchLarge(ctx context.Context, repo remote.RepoRef, path, ref string) (string, error) {
	path = strings.TrimPrefix(path, "/")

	if ref == "" {
		branch, err := r.defaultBranch(ctx, repo)
		if err != nil {
			return "", err
		}
		ref = "heads/" + branch
	}

	treeSHA, err := r.resolveTree(ctx, repo, ref)
	if err != nil {
		return "", err
	}

	tree, err := r.tree(ctx, repo, treeSHA, strings.Contains(path, "/"))
	if err != nil {
		return "", err
	}

	entry, ok := tree.Find(path)
	if !ok {
		if tree.Truncated {
			return "", fmt.Errorf("%w: %s in %s", ErrTreeTruncated, path, repo)
		}
		return "", fmt.Errorf("%w: %s in %s", ErrTreeEntryNotFound, path, repo)
	}

	blob, err := r.api.GetBlob(ctx, repo, entry.SHA)
	if err != nil {
		return "", err
	}
	return DecodeBlob(blob)
}

// DecodeBlob decodes a base64 blob body. GitHub wraps the body at 60
// columns, so whitespace is dropped before decoding.
func DecodeBlob(blob *remote.Blob) (string, error) {
	if blob.Encoding != "base64" {
		return "", fmt.Errorf("%w: %s", ErrUnsupportedEncoding, blob.Encoding)
	}
	clean := strings.Map(func(r rune) rune {
		switch r {
		case '\n', '\r', ' ', '\t':
			return -1
		}
		return r
	}, blob.Content)
	data, err := base64.StdEncoding.DecodeString(clean)
	if err != nil {
		return "", fmt.Errorf("failed to decode blob %s: %w", blob.SHA, err)
	}
	return string(data), nil
}

func (r *Retriever) defaultBranch(ctx context.Context, repo remote.RepoRef) (string, error) {
	key := repo.String()
	if b, ok := r.branches.Get(key); ok {
		return b, nil
	}
	b, err := r.api.GetDefaultBranch(ctx, repo)
	if err != nil {
		return "", err
	}
	r.branches.Add(key, b)
	return b, nil
}

// resolveTree maps ref to the sha of its commit's tree. A ref lookup
// that 404s is retried as a commit-ish only when ref looks like a sha.
func (r *Retriever) resolveTree(ctx context.Context, repo remote.RepoRef, ref string) (string, error) {
	key := repo.String() + "@" + ref
	if sha, ok := r.commits.Get(key); ok {
		return sha, nil
	}

	treeSHA, err := r.treeFromRef(ctx, repo, ref)
	if err != nil {
		if !remote.IsNotFound(err) || !commitishPattern.MatchString(ref) {
			return "", err
		}
		treeSHA, err = r.api.GetCommitByRef(ctx, repo, ref)
		if err != nil {
			return "", err
		}
	}
	r.commits.Add(key, treeSHA)
	return treeSHA, nil
}

func (r *Retriever) treeFromRef(ctx context.Context, repo remote.RepoRef, ref string) (string, error) {
	commitSHA, err := r.api.GetRef(ctx, repo, ref)
	if err != nil {
		return "", err
	}
	return r.api.GetCommit(ctx, repo, commitSHA)
}

func (r *Retriever) tree(ctx context.Context, repo remote.RepoRef, sha string, recursive bool) (*remote.Tree, error) {
	key := fmt.Sprintf("%s@%s/%t", repo, sha, recursive)
	if t, ok := r.trees.Get(key); ok {
		return t, nil
	}
	t, err := r.api.GetTree(ctx, repo, sha, recursive)
	if err != nil {
		return nil, err
	}
	r.trees.Add(key, t)
	return t, nil
}

// BranchRef qualifies a bare branch name as "heads/<name>" so the ref
// lookup can resolve it. Shas and refs already under heads/, tags/ or
// refs/ pass through; tags must be given as "tags/<name>".
func BranchRef(ref string) string {
	if ref == "" || commitishPattern.MatchString(ref) {
		return ref
	}
	for _, prefix := range []string{"heads/", "tags/", "refs/"} {
		if strings.HasPrefix(ref, prefix) {
			return ref
		}
	}
	return "heads/" + ref
}

// contentRef converts a git ref ("heads/main", "tags/v1") to the short
// name the contents API expects. Shas pass through.
func contentRef(ref string) string {
	for _, prefix := range []string{"refs/heads/", "refs/tags/", "heads/", "tags/"} {
		if strings.HasPrefix(ref, prefix) {
			return strings.TrimPrefix(ref, prefix)
		}
	}
	return ref
}
