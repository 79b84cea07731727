package mcp

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/gh-grep/internal/grep"
	"github.com/fyrsmithlabs/gh-grep/internal/remote"
)

type grepInput struct {
	Pattern           string   `json:"pattern" jsonschema:"JavaScript regular expression to search for"`
	Files             []string `json:"files" jsonschema:"Paths of the files to read in every repository"`
	Repos             []string `json:"repos,omitempty" jsonschema:"owner/name repositories; when empty, repositories are found with code search (literal patterns only)"`
	Ref               string   `json:"ref,omitempty" jsonschema:"Branch name, tags/<tag> or commit sha to read instead of the default branch"`
	Parallel          int      `json:"parallel,omitempty" jsonschema:"Repositories processed at once"`
	IgnoreCase        bool     `json:"ignore_case,omitempty" jsonschema:"Match case-insensitively"`
	FilesWithMatches  bool     `json:"files_with_matches,omitempty" jsonschema:"Only report files that match"`
	FilesWithoutMatch bool     `json:"files_without_match,omitempty" jsonschema:"Only report files that do not match"`
	ReposWithMatches  bool     `json:"repos_with_matches,omitempty" jsonschema:"Only report repositories with a matching file"`
	ReposWithoutMatch bool     `json:"repos_without_match,omitempty" jsonschema:"Only report repositories where no file matches"`
	OnlyMatching      bool     `json:"only_matching,omitempty" jsonschema:"Report only the matched parts of lines"`
	NoFilename        bool     `json:"no_filename,omitempty" jsonschema:"Never prefix records with the file name"`
	NoReponame        bool     `json:"no_reponame,omitempty" jsonschema:"Never prefix records with the repository name"`
	Context           *int     `json:"context,omitempty" jsonschema:"Lines of context around each match; overrides after_context and before_context"`
	AfterContext      int      `json:"after_context,omitempty" jsonschema:"Lines of context after each match"`
	BeforeContext     int      `json:"before_context,omitempty" jsonschema:"Lines of context before each match"`
}

type grepRecord struct {
	Message string            `json:"message" jsonschema:"Record as printed by the command line"`
	Data    map[string]string `json:"data" jsonschema:"Structured fields: owner, repo, path, line, match"`
}

type grepOutput struct {
	Records []grepRecord `json:"records" jsonschema:"Output records in emission order"`
	Count   int          `json:"count" jsonschema:"Number of records"`
}

// recordSink collects records in memory.
type recordSink struct {
	mu      sync.Mutex
	records []grepRecord
}

func (r *recordSink) Log(message string, data map[string]string) error {
	if data == nil {
		data = map[string]string{}
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.records = append(r.records, grepRecord{Message: message, Data: data})
	return nil
}

func (s *Server) registerTools() {
	mcp.AddTool(s.mcp, &mcp.Tool{
		Name: "grep",
		Description: "Search files across GitHub repositories without cloning them. " +
			"Reads the given files from each repository and returns matching lines.",
	}, s.handleGrep)
}

func (s *Server) handleGrep(ctx context.Context, req *mcp.CallToolRequest, args grepInput) (*mcp.CallToolResult, grepOutput, error) {
	start := time.Now()

	target, err := buildTarget(args.Pattern, args.Files, args.Repos)
	if err != nil {
		return nil, grepOutput{}, err
	}

	sink := &recordSink{}
	engine := grep.New(s.api, sink)
	engine.SetCacheSize(s.cacheSz)
	engine.SetMetrics(s.metrics)
	engine.SetLogger(s.logger)

	if err := engine.RunTarget(ctx, target, s.options(args)); err != nil {
		s.logger.Warn(ctx, "grep tool failed", zap.String("pattern", args.Pattern), zap.Error(err))
		return nil, grepOutput{}, fmt.Errorf("grep failed: %w", err)
	}

	out := grepOutput{Records: sink.records, Count: len(sink.records)}
	if out.Records == nil {
		out.Records = []grepRecord{}
	}
	s.logger.Debug(ctx, "grep tool completed",
		zap.Int("records", out.Count),
		zap.Duration("duration", time.Since(start)),
	)

	return &mcp.CallToolResult{
		Content: []mcp.Content{
			&mcp.TextContent{Text: fmt.Sprintf("Found %d records", out.Count)},
		},
	}, out, nil
}

func (s *Server) options(args grepInput) grep.Options {
	opts := grep.DefaultOptions()
	opts.Parallel = s.parallel
	if args.Parallel > 0 {
		opts.Parallel = args.Parallel
	}
	opts.IgnoreCase = args.IgnoreCase
	opts.FilesWithMatches = args.FilesWithMatches
	opts.FilesWithoutMatch = args.FilesWithoutMatch
	opts.ReposWithMatches = args.ReposWithMatches
	opts.ReposWithoutMatch = args.ReposWithoutMatch
	opts.OnlyMatching = args.OnlyMatching
	opts.Filename = !args.NoFilename
	opts.Reponame = !args.NoReponame
	opts.Context = args.Context
	opts.AfterContext = args.AfterContext
	opts.BeforeContext = args.BeforeContext
	opts.Ref = grep.BranchRef(args.Ref)
	return opts
}

// buildTarget turns the structured arguments into a target. Files are
// taken literally, so no name is special.
func buildTarget(pattern string, files, repos []string) (*grep.Target, error) {
	if len(files) == 0 {
		return nil, fmt.Errorf("%w: at least one file is required", grep.ErrMalformedTarget)
	}
	t := &grep.Target{
		Pattern:       pattern,
		Files:         make([]string, len(files)),
		ExplicitRepos: make([]remote.RepoRef, 0, len(repos)),
	}
	for i, f := range files {
		t.Files[i] = strings.TrimPrefix(f, "/")
	}
	for _, r := range repos {
		ref, err := remote.ParseRepoRef(r)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", grep.ErrMalformedRepo, err)
		}
		t.ExplicitRepos = append(t.ExplicitRepos, ref)
	}
	return t, nil
}
