// Package grep runs one pattern across files in many GitHub repositories
// without cloning them.
//
// A run parses the target list, discovers repositories through code
// search when none are named, fetches every requested file from a
// bounded number of repositories at a time, extracts matching lines with
// context, and renders records to a Sink.
package grep

import (
	"context"
	"sync"

	"github.com/fyrsmithlabs/gh-grep/internal/logging"
	"github.com/fyrsmithlabs/gh-grep/internal/metrics"
	"github.com/fyrsmithlabs/gh-grep/internal/remote"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

var tracer = otel.Tracer("gh-grep/grep")

// DefaultParallel is the number of repositories processed at once when
// Options.Parallel is not positive.
const DefaultParallel = 5

// API is everything the engine needs from the host.
type API interface {
	SearchAPI
	ContentAPI
}

// Options selects what a run prints.
type Options struct {
	// Parallel bounds how many repositories are in flight at once.
	Parallel int

	IgnoreCase        bool
	FilesWithMatches  bool
	FilesWithoutMatch bool
	ReposWithMatches  bool
	ReposWithoutMatch bool
	OnlyMatching      bool

	// Filename and Reponame allow file and repository prefixes; the CLI
	// turns them off with -h and -R.
	Filename bool
	Reponame bool

	// Context, when set, overrides both AfterContext and BeforeContext.
	Context       *int
	AfterContext  int
	BeforeContext int

	// Ref reads files at a branch, tag or commit instead of the default
	// branch.
	Ref string
}

// DefaultOptions returns the options of a bare invocation.
func DefaultOptions() Options {
	return Options{
		Parallel: DefaultParallel,
		Filename: true,
		Reponame: true,
	}
}

// contextWindow returns the effective after/before context.
func (o Options) contextWindow() (after, before int) {
	if o.Context != nil {
		return max(*o.Context, 0), max(*o.Context, 0)
	}
	return max(o.AfterContext, 0), max(o.BeforeContext, 0)
}

// Engine executes grep runs.
type Engine struct {
	api       API
	sink      Sink
	highlight func(string) string
	progress  func(remote.RepoRef)
	cacheSize int
	metrics   *metrics.Metrics
	logger    *logging.Logger
}

// New creates an engine that reads from api and writes to sink.
func New(api API, sink Sink) *Engine {
	return &Engine{
		api:       api,
		sink:      sink,
		cacheSize: DefaultCacheSize,
		logger:    logging.NewNop(),
	}
}

// SetHighlighter sets the function that emphasizes matched spans in text
// output. Without one, lines are printed unchanged.
func (e *Engine) SetHighlighter(fn func(string) string) {
	e.highlight = fn
}

// SetProgress sets a callback invoked when a repository starts.
func (e *Engine) SetProgress(fn func(remote.RepoRef)) {
	e.progress = fn
}

// SetCacheSize sets the size of the large-file lookup caches.
func (e *Engine) SetCacheSize(n int) {
	e.cacheSize = n
}

// SetMetrics sets the metrics tracker for this engine.
func (e *Engine) SetMetrics(m *metrics.Metrics) {
	e.metrics = m
}

// SetLogger sets the logger for this engine.
func (e *Engine) SetLogger(l *logging.Logger) {
	if l != nil {
		e.logger = l
	}
}

// Run greps pattern across target, which is a file (or a "[ files... ]"
// group) followed by zero or more owner/repo names.
//
// Records stream to the sink as each repository completes. The first
// fatal error cancels all outstanding work and is returned; records
// already emitted stay emitted.
func (e *Engine) Run(ctx context.Context, pattern string, target []string, opts Options) error {
	t, err := ParseTarget(pattern, target)
	if err != nil {
		return err
	}
	return e.RunTarget(ctx, t, opts)
}

// RunTarget is Run for an already parsed target.
func (e *Engine) RunTarget(ctx context.Context, t *Target, opts Options) (err error) {
	p, err := CompilePattern(t.Pattern, opts.IgnoreCase)
	if err != nil {
		return err
	}

	parallel := opts.Parallel
	if parallel < 1 {
		parallel = DefaultParallel
	}
	after, before := opts.contextWindow()
	display := ResolveDisplay(opts, len(t.Files), len(t.ExplicitRepos))

	ctx = logging.WithLogger(ctx, e.logger)
	ctx, span := tracer.Start(ctx, "grep.run")
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()
	span.SetAttributes(
		attribute.Int("grep.files", len(t.Files)),
		attribute.Int("grep.explicit_repos", len(t.ExplicitRepos)),
		attribute.Int("grep.parallel", parallel),
	)

	e.logger.Debug(ctx, "grep",
		zap.String("pattern", t.Pattern),
		zap.Strings("files", t.Files),
		zap.Bool("show_file", display.ShowFile),
		zap.Bool("show_repo", display.ShowRepo),
		zap.Bool("show_content", display.ShowContent),
		zap.Int("after_context", after),
		zap.Int("before_context", before),
	)

	repos := t.ExplicitRepos
	if t.NeedsDiscovery() {
		repos, err = NewDiscoverer(e.api).Discover(ctx, t.Pattern, t.Files)
		if err != nil {
			return err
		}
	}

	retriever, err := NewRetriever(e.api, e.cacheSize)
	if err != nil {
		return err
	}
	retriever.SetMetrics(e.metrics)

	var emitMu sync.Mutex
	r := &renderer{
		pattern:   p,
		opts:      opts,
		display:   display,
		after:     after,
		before:    before,
		highlight: e.highlight,
		emit: func(message string, data map[string]string) error {
			if err := e.sink.Log(message, data); err != nil {
				return err
			}
			e.metrics.RecordEmitted()
			return nil
		},
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(parallel)
	for _, repo := range repos {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			results, err := e.fetchRepository(gctx, retriever, repo, t.Files, opts.Ref)
			if err != nil {
				return err
			}

			emitMu.Lock()
			defer emitMu.Unlock()
			if err := r.render(repo, results); err != nil {
				return err
			}
			e.metrics.RecordRepository()
			return nil
		})
	}
	return g.Wait()
}

// fetchRepository fetches every file of repo concurrently and returns
// them in argument order once all have settled.
func (e *Engine) fetchRepository(ctx context.Context, retriever *Retriever, repo remote.RepoRef, files []string, ref string) ([]fileResult, error) {
	ctx = logging.WithRepository(ctx, repo.String())
	ctx, span := tracer.Start(ctx, "grep.repository")
	defer span.End()
	span.SetAttributes(
		attribute.String("github.repository", repo.String()),
		attribute.Int("grep.files", len(files)),
	)

	if e.progress != nil {
		e.progress(repo)
	}

	results := make([]fileResult, len(files))
	g, gctx := errgroup.WithContext(ctx)
	for i, path := range files {
		g.Go(func() error {
			content, err := retriever.Fetch(gctx, repo, path, ref)
			if err != nil {
				return err
			}
			results[i] = fileResult{path: path, content: content}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "fetch failed")
		e.logger.Debug(ctx, "repository failed", zap.Error(err))
		return nil, err
	}
	return results, nil
}
