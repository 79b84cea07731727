package grep

import (
	"context"
	"sync"

	"github.com/dlclark/regexp2"
	"github.com/fyrsmithlabs/gh-grep/internal/logging"
	"github.com/fyrsmithlabs/gh-grep/internal/remote"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// SearchResultCeiling is the page size requested from code search. Only
// one page is read.
const SearchResultCeiling = 999

// unsafeSearchChars matches anything code search cannot combine with
// qualifiers.
var unsafeSearchChars = regexp2.MustCompile(`[^\w\s=,/;-]`, regexp2.ECMAScript)

// SearchAPI is the subset of the GitHub API used for discovery.
type SearchAPI interface {
	SearchCode(ctx context.Context, query string, perPage int) ([]remote.SearchHit, error)
}

// IsSearchSafe reports whether pattern only uses characters code search
// treats literally.
func IsSearchSafe(pattern string) bool {
	unsafe, err := unsafeSearchChars.MatchString(pattern)
	return err == nil && !unsafe
}

// Discoverer finds repositories containing candidate files.
type Discoverer struct {
	api SearchAPI
}

// NewDiscoverer creates a discoverer over api.
func NewDiscoverer(api SearchAPI) *Discoverer {
	return &Discoverer{api: api}
}

// Discover runs one search per distinct qualifier set concurrently and
// returns the repositories hit, deduplicated, in arrival order. Any
// failed search fails the whole discovery.
func (d *Discoverer) Discover(ctx context.Context, pattern string, files []string) ([]remote.RepoRef, error) {
	if !IsSearchSafe(pattern) {
		return nil, ErrPatternRequiresExplicitRepos
	}

	quals := QualifierSet(files)

	ctx, span := tracer.Start(ctx, "grep.discover")
	defer span.End()
	span.SetAttributes(attribute.Int("grep.qualifier_sets", len(quals)))

	log := logging.FromContext(ctx)
	log.Debug(ctx, "searching for repositories", zap.Strings("qualifiers", quals))

	found := newRepoSet()
	g, gctx := errgroup.WithContext(ctx)
	for _, q := range quals {
		query := pattern + " " + q
		g.Go(func() error {
			hits, err := d.api.SearchCode(gctx, query, SearchResultCeiling)
			if err != nil {
				return err
			}
			for _, h := range hits {
				found.add(h.Repo)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		span.RecordError(err)
		return nil, err
	}

	repos := found.list()
	span.SetAttributes(attribute.Int("grep.repositories", len(repos)))
	log.Debug(ctx, "discovered repositories", zap.Int("count", len(repos)))
	return repos, nil
}

// repoSet is a concurrency-safe set of repositories that remembers
// insertion order.
type repoSet struct {
	mu    sync.Mutex
	seen  map[string]bool
	order []remote.RepoRef
}

func newRepoSet() *repoSet {
	return &repoSet{seen: make(map[string]bool)}
}

func (s *repoSet) add(r remote.RepoRef) {
	key := r.String()
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.seen[key] {
		return
	}
	s.seen[key] = true
	s.order = append(s.order, r)
}

func (s *repoSet) list() []remote.RepoRef {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]remote.RepoRef(nil), s.order...)
}
