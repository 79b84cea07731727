package grep

import (
	"context"
	"errors"
	"net/http"
	"testing"

	"github.com/fyrsmithlabs/gh-grep/internal/config"
	"github.com/fyrsmithlabs/gh-grep/internal/logging"
	"github.com/fyrsmithlabs/gh-grep/internal/metrics"
	"github.com/fyrsmithlabs/gh-grep/internal/remote"
	"github.com/fyrsmithlabs/gh-grep/internal/remote/remotetest"
	"github.com/fyrsmithlabs/gh-grep/internal/telemetry"
	"github.com/google/go-cmp/cmp"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
)

func bold(s string) string { return "*" + s + "*" }

// newFixtureServer serves the two-repository fixture used throughout.
func newFixtureServer(t *testing.T) *remotetest.Server {
	t.Helper()
	srv := remotetest.NewServer(t)
	srv.AddFile("org", "repo1", "file1", "This\nis\na repo1\nfile1\nabc\nadc\n")
	srv.AddFile("org", "repo1", "dir/file2", "This\nis\na repo1\nfile2\nyadda\n")
	srv.AddFile("org", "repo2", "file1", "this\nis\na repo2\nfile1\nyadda\n")
	srv.AddSearch("repo filename:file1 path:/",
		remotetest.Hit{Owner: "org", Repo: "repo1", Path: "file1"},
		remotetest.Hit{Owner: "org", Repo: "repo2", Path: "file1"},
	)
	return srv
}

type run struct {
	sink    *collector
	metrics *metrics.Metrics
	err     error
}

// grepFixture runs the engine against srv the way the CLI would, one
// repository at a time so record order is deterministic.
func grepFixture(t *testing.T, srv *remotetest.Server, pattern string, files, repos []string, mutate func(*Options)) run {
	t.Helper()

	client, err := remote.NewClient(context.Background(), config.Secret("gho_test"), remote.Options{BaseURL: srv.BaseURL()})
	require.NoError(t, err)

	args := append([]string(nil), files...)
	if len(files) != 1 {
		args = append(append([]string{"["}, files...), "]")
	}
	args = append(args, repos...)

	opts := DefaultOptions()
	opts.Parallel = 1
	if mutate != nil {
		mutate(&opts)
	}

	sink := &collector{}
	m := metrics.New()
	engine := New(client, sink)
	engine.SetHighlighter(bold)
	engine.SetMetrics(m)

	err = engine.Run(context.Background(), pattern, args, opts)
	return run{sink: sink, metrics: m, err: err}
}

func assertGrep(t *testing.T, pattern string, files, repos []string, mutate func(*Options), want []string) {
	t.Helper()
	srv := newFixtureServer(t)
	res := grepFixture(t, srv, pattern, files, repos, mutate)
	require.NoError(t, res.err)
	if diff := cmp.Diff(want, res.sink.Messages()); diff != "" {
		t.Errorf("records mismatch (-want +got):\n%s", diff)
	}
}

func TestRun_FilesWithMatches(t *testing.T) {
	assertGrep(t, "a.c", []string{"file1"}, []string{"org/repo1", "org/repo2"},
		func(o *Options) { o.FilesWithMatches = true },
		[]string{"org/repo1: file1"})
}

func TestRun_FilesWithoutMatchMultipleFiles(t *testing.T) {
	assertGrep(t, "a.c", []string{"file1", "dir/file2"}, []string{"org/repo1"},
		func(o *Options) { o.FilesWithoutMatch = true },
		[]string{"dir/file2"})
}

func TestRun_ImplicitSearchNoReponame(t *testing.T) {
	srv := newFixtureServer(t)
	res := grepFixture(t, srv, "repo", []string{"file1"}, nil, func(o *Options) { o.Reponame = false })
	require.NoError(t, res.err)

	assert.Equal(t, []string{"a " + bold("repo") + "1", "a " + bold("repo") + "2"}, res.sink.Messages())
	assert.Equal(t, []string{"repo filename:file1 path:/"}, srv.Queries())
}

func TestRun_RegexpRequiresExplicitRepos(t *testing.T) {
	srv := newFixtureServer(t)
	res := grepFixture(t, srv, "a.*c", []string{"file1"}, nil, nil)
	require.ErrorIs(t, res.err, ErrPatternRequiresExplicitRepos)
	assert.Contains(t, res.err.Error(), "grep with an actual regexp")
	assert.Empty(t, srv.Requests(), "no network call before the pattern is rejected")
}

func TestRun_ReposWithMatches(t *testing.T) {
	assertGrep(t, ".", []string{"file1"}, []string{"org/repo1", "org/repo2"},
		func(o *Options) { o.ReposWithMatches = true },
		[]string{"org/repo1", "org/repo2"})
}

func TestRun_ReposWithoutMatch(t *testing.T) {
	assertGrep(t, "repo1", []string{"file1"}, []string{"org/repo1", "org/repo2"},
		func(o *Options) { o.ReposWithoutMatch = true },
		[]string{"org/repo2"})
}

func TestRun_OnlyMatching(t *testing.T) {
	srv := newFixtureServer(t)
	res := grepFixture(t, srv, `repo\d`, []string{"file1"}, []string{"org/repo1", "org/repo2"},
		func(o *Options) { o.OnlyMatching = true })
	require.NoError(t, res.err)

	assert.Equal(t, []string{"org/repo1: repo1", "org/repo2: repo2"}, res.sink.Messages())
	assert.Equal(t, map[string]string{
		"match": "repo1", "line": "a repo1", "owner": "org", "repo": "repo1", "path": "file1",
	}, res.sink.data[0])
}

func TestRun_Filename(t *testing.T) {
	assertGrep(t, `file\d`, []string{"file1", "dir/file2"}, []string{"org/repo1"}, nil,
		[]string{"file1: " + bold("file1"), "dir/file2: " + bold("file2")})

	assertGrep(t, `file\d`, []string{"file1", "dir/file2"}, []string{"org/repo1"},
		func(o *Options) { o.Filename = false },
		[]string{bold("file1"), bold("file2")})
}

func TestRun_IgnoreCase(t *testing.T) {
	repos := []string{"org/repo1", "org/repo2"}
	assertGrep(t, "this", []string{"file1"}, repos,
		func(o *Options) { o.Reponame = false },
		[]string{bold("this")})

	assertGrep(t, "this", []string{"file1"}, repos,
		func(o *Options) { o.Reponame = false; o.IgnoreCase = true },
		[]string{bold("This"), bold("this")})
}

func TestRun_Context(t *testing.T) {
	repos := []string{"org/repo1"}
	assertGrep(t, "^is$", []string{"file1"}, repos,
		func(o *Options) { o.AfterContext = 1 },
		[]string{bold("is"), "a repo1"})

	assertGrep(t, "^is$", []string{"file1"}, repos,
		func(o *Options) { o.BeforeContext = 5 },
		[]string{"This", bold("is")})

	two := 2
	assertGrep(t, "^is$", []string{"file1"}, repos,
		func(o *Options) { o.Context = &two },
		[]string{"This", bold("is"), "a repo1", "file1"})
}

func TestRun_ZeroContextOverridesAfterAndBefore(t *testing.T) {
	zero := 0
	assertGrep(t, "^is$", []string{"file1"}, []string{"org/repo1"},
		func(o *Options) {
			o.Context = &zero
			o.AfterContext = 2
			o.BeforeContext = 1
		},
		[]string{bold("is")})
}

func TestOptions_ContextWindow(t *testing.T) {
	zero, three := 0, 3
	tests := []struct {
		name                  string
		opts                  Options
		wantAfter, wantBefore int
	}{
		{"none", Options{}, 0, 0},
		{"after and before", Options{AfterContext: 2, BeforeContext: 1}, 2, 1},
		{"context wins", Options{Context: &three, AfterContext: 1}, 3, 3},
		{"zero context wins", Options{Context: &zero, AfterContext: 2, BeforeContext: 1}, 0, 0},
		{"negative clamps", Options{AfterContext: -1, BeforeContext: -4}, 0, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			after, before := tt.opts.contextWindow()
			assert.Equal(t, tt.wantAfter, after)
			assert.Equal(t, tt.wantBe, before)
		})
	}
}

func TestRun_StructuredData(t *testing.T) {
	srv := newFixtureServer(t)
	two := 2
	res := grepFixture(t, srv, "^is$", []string{"file1"}, []string{"org/repo1"},
		func(o *Options) { o.Context = &two })
	require.NoError(t, res.err)

	want := []map[string]string{
		{"line": "This", "owner": "org", "path": "file1", "repo": "repo1"},
		{"line": "is", "owner": "org", "path": "file1", "repo": "repo1"},
		{"line": "a repo1", "owner": "org", "path": "file1", "repo": "repo1"},
		{"line": "file1", "owner": "org", "path": "file1", "repo": "repo1"},
	}
	assert.Equal(t, want, res.sink.data)
}

func TestRun_MissingFileIsNotAnError(t *testing.T) {
	srv := newFixtureServer(t)
	res := grepFixture(t, srv, "x*", []string{"nope.txt"}, []string{"org/repo1"}, nil)
	require.NoError(t, res.err)
	assert.Empty(t, res.sink.Messages())
	assert.Equal(t, 1.0, testutil.ToFloat64(res.metrics.FilesFetchedTotal.WithLabelValues(metrics.OutcomeNotFound)))
}

func TestRun_LargeFileThroughBlobs(t *testing.T) {
	srv := newFixtureServer(t)
	big := srv.AddRepo("org", "big")
	big.Files["dir/huge.txt"] = "header\nneedle in here\nfooter\n"
	big.TooLarge["dir/huge.txt"] = true

	res := grepFixture(t, srv, "needle", []string{"dir/huge.txt"}, []string{"org/big"}, nil)
	require.NoError(t, res.err)
	assert.Equal(t, []string{bold("needle") + " in here"}, res.sink.Messages())
	assert.Equal(t, 1, srv.CountRequests("repos/org/big/git/blobs/"))
	assert.Equal(t, 1.0, testutil.ToFloat64(res.metrics.FilesFetchedTotal.WithLabelValues(metrics.OutcomeTooLarge)))
}

func TestRun_RemoteFailureAborts(t *testing.T) {
	srv := newFixtureServer(t)
	srv.FailPath("repos/org/repo2/contents", http.StatusInternalServerError)

	res := grepFixture(t, srv, "is", []string{"file1"}, []string{"org/repo1", "org/repo2"}, nil)
	require.Error(t, res.err)
	assert.Equal(t, http.StatusInternalServerError, remote.StatusCode(res.err))

	// repo1 completed before repo2 started, so its records stay emitted.
	assert.NotEmpty(t, res.sink.Messages())
}

func TestRun_SearchFailureAborts(t *testing.T) {
	srv := newFixtureServer(t)
	srv.FailPath("search/code", http.StatusServiceUnavailable)

	res := grepFixture(t, srv, "repo", []string{"file1"}, nil, nil)
	require.Error(t, res.err)
	assert.Equal(t, http.StatusServiceUnavailable, remote.StatusCode(res.err))
	assert.Equal(t, 0, srv.CountRequests("repos/"))
}

func TestRun_MalformedTargetBeforeNetwork(t *testing.T) {
	srv := newFixtureServer(t)
	client, err := remote.NewClient(context.Background(), "", remote.Options{BaseURL: srv.BaseURL()})
	require.NoError(t, err)

	engine := New(client, &collector{})
	err = engine.Run(context.Background(), "x", []string{"[", "file1"}, DefaultOptions())
	assert.ErrorIs(t, err, ErrMalformedTarget)

	err = engine.Run(context.Background(), "x", []string{"file1", "not-a-repo"}, DefaultOptions())
	assert.ErrorIs(t, err, ErrMalformedRepo)
	assert.Empty(t, srv.Requests())
}

func TestRun_InvalidPattern(t *testing.T) {
	srv := newFixtureServer(t)
	res := grepFixture(t, srv, "(", []string{"file1"}, []string{"org/repo1"}, nil)
	assert.ErrorIs(t, res.err, ErrInvalidPattern)
	assert.Empty(t, srv.Requests())
}

func TestRun_ParallelKeepsRepositoryRecordsContiguous(t *testing.T) {
	srv := remotetest.NewServer(t)
	var repos []string
	for _, name := range []string{"a", "b", "c", "d", "e", "f", "g", "h"} {
		srv.AddFile("org", name, "f", "x1\nx2\nx3\n")
		repos = append(repos, "org/"+name)
	}

	client, err := remote.NewClient(context.Background(), "", remote.Options{BaseURL: srv.BaseURL()})
	require.NoError(t, err)

	sink := &collector{}
	m := metrics.New()
	engine := New(client, sink)
	engine.SetMetrics(m)

	var started []remote.RepoRef
	engine.SetProgress(func(r remote.RepoRef) {
		sink.mu.Lock()
		started = append(started, r)
		sink.mu.Unlock()
	})

	opts := DefaultOptions()
	opts.Parallel = 3
	require.NoError(t, engine.Run(context.Background(), "x", append([]string{"f"}, repos...), opts))

	msgs := sink.Messages()
	require.Len(t, msgs, 24)
	for i := 0; i < len(msgs); i += 3 {
		repo := sink.data[i]["repo"]
		assert.Equal(t, repo, sink.data[i+1]["repo"])
		assert.Equal(t, repo, sink.data[i+2]["repo"])
	}
	assert.Len(t, started, 8)
	assert.Equal(t, 8.0, testutil.ToFloat64(m.RepositoriesProcessed))
	assert.Equal(t, 24.0, testutil.ToFloat64(m.RecordsEmittedTotal))
}

func TestRun_SinkErrorStopsRun(t *testing.T) {
	srv := newFixtureServer(t)
	client, err := remote.NewClient(context.Background(), "", remote.Options{BaseURL: srv.BaseURL()})
	require.NoError(t, err)

	broken := errors.New("broken pipe")
	engine := New(client, SinkFunc(func(string, map[string]string) error { return broken }))
	opts := DefaultOptions()
	opts.Parallel = 1

	err = engine.Run(context.Background(), "is", []string{"file1", "org/repo1", "org/repo2"}, opts)
	assert.ErrorIs(t, err, broken)
}

func TestRun_LogsWithRepository(t *testing.T) {
	srv := newFixtureServer(t)
	client, err := remote.NewClient(context.Background(), "", remote.Options{BaseURL: srv.BaseURL()})
	require.NoError(t, err)

	tl := logging.NewTestLogger()
	engine := New(client, &collector{})
	engine.SetLogger(tl.Logger)

	require.NoError(t, engine.Run(context.Background(), "zzz", []string{"missing", "org/repo1"}, DefaultOptions()))
	tl.AssertLogged(t, zapcore.DebugLevel, "file not found")
	tl.AssertField(t, "file not found", "repo", "org/repo1")
}

func TestRun_Spans(t *testing.T) {
	tt := telemetry.NewTestTelemetry()
	t.Cleanup(tt.Install())

	srv := newFixtureServer(t)
	res := grepFixture(t, srv, "repo", []string{"file1"}, nil, nil)
	require.NoError(t, res.err)

	tt.AssertSpanExists(t, "grep.run")
	tt.AssertSpanExists(t, "grep.discover")
	tt.AssertSpanAttribute(t, "grep.run", "grep.files", int64(1))
	tt.AssertSpanAttribute(t, "github.search_code", "http.status_code", int64(200))
	assert.Len(t, tt.SpansNamed("grep.repository"), 2)
	assert.Len(t, tt.SpansNamed("github.get_content"), 2)
}
