package main

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/term"

	"github.com/fyrsmithlabs/gh-grep/internal/grep"
	"github.com/fyrsmithlabs/gh-grep/internal/output"
	"github.com/fyrsmithlabs/gh-grep/internal/remote"
)

// grepFlags holds the flags of the root command.
type grepFlags struct {
	json              bool
	parallel          int
	ignoreCase        bool
	filesWithMatches  bool
	filesWithoutMatch bool
	noFilename        bool
	noReponame        bool
	reposWithMatches  bool
	reposWithoutMatch bool
	onlyMatching      bool
	afterContext      int
	beforeContext     int
	context           int
	ref               string
}

func newRootCmd(stdout, stderr io.Writer) *cobra.Command {
	g := &globalFlags{}
	f := &grepFlags{}

	cmd := &cobra.Command{
		Use:   "gh-grep <pattern> <files-then-optional-repos...>",
		Short: "Search files across GitHub repositories without cloning them",
		Long: `gh-grep searches for a JavaScript-style regular expression in the given
files of many GitHub repositories, reading them through the API.

Several files must be bracketed: \[ first second third \]

When no repositories are named they are found with code search, which
only works for literal patterns.

Examples:
  # Which repos use a given node version
  gh-grep 'node: 18' .nvmrc org/api org/web

  # Search every repo whose package.json mentions lodash
  gh-grep lodash package.json

  # Several files, only the names of files that match
  gh-grep -l TODO [ README.md docs/index.md ] org/api`,
		Version:       version,
		Args:          cobra.MinimumNArgs(2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runGrep(cmd, g, f, args, stdout, stderr)
		},
	}
	cmd.SetOut(stdout)
	cmd.SetErr(stderr)

	g.register(cmd)

	flags := cmd.Flags()
	// -h belongs to --no-filename.
	flags.Bool("help", false, "help for gh-grep")
	flags.BoolVar(&f.json, "json", false, "Return output as JSON rows")
	flags.IntVar(&f.parallel, "parallel", 0, "Parallelism limit (default from config, 5)")
	flags.BoolVarP(&f.ignoreCase, "ignore-case", "i", false, "Add /i to your pattern")
	flags.BoolVarP(&f.filesWithMatches, "files-with-matches", "l", false, "Only the repo/names of matching files will be output")
	flags.BoolVarP(&f.filesWithoutMatch, "files-without-match", "L", false, "Only the repo/names of non-matching files will be output")
	flags.BoolVarP(&f.noFilename, "no-filename", "h", false, "Even for multiple files, never show the name")
	flags.BoolVarP(&f.noReponame, "no-reponame", "R", false, "Even for multiple repos, never show the name")
	flags.BoolVarP(&f.reposWithMatches, "repos-with-matches", "p", false, "Only the repos of matching files will be output")
	flags.BoolVarP(&f.reposWithoutMatch, "repos-without-match", "P", false, "Only the repos where none of the files match will be output")
	flags.BoolVarP(&f.onlyMatching, "only-matching", "o", false, "Only outputs the matching parts of lines")
	flags.IntVarP(&f.afterContext, "after-context", "A", 0, "Print num lines of trailing context after each match")
	flags.IntVarP(&f.beforeContext, "before-context", "B", 0, "Print num lines of leading context before each match")
	flags.IntVarP(&f.context, "context", "C", 0, "Print num lines of leading and trailing context surrounding each match")
	flags.StringVar(&f.ref, "ref", "", "Read files at this branch, tags/<tag> or commit sha instead of the default branch")

	cmd.AddCommand(newMCPCmd(g, stderr))
	cmd.AddCommand(newVersionCmd(stdout))
	return cmd
}

func runGrep(cmd *cobra.Command, g *globalFlags, f *grepFlags, args []string, stdout, stderr io.Writer) (err error) {
	ctx, sess, err := g.bootstrap(cmd.Context(), stderr)
	if err != nil {
		return err
	}
	defer sess.close(ctx)

	opts := grep.DefaultOptions()
	opts.Parallel = sess.cfg.Grep.Parallel
	if cmd.Flags().Changed("parallel") {
		opts.Parallel = f.parallel
	}
	opts.IgnoreCase = f.ignoreCase
	opts.FilesWithMatches = f.filesWithMatches
	opts.FilesWithoutMatch = f.filesWithoutMatch
	opts.ReposWithMatches = f.reposWithMatches
	opts.ReposWithoutMatch = f.reposWithoutMatch
	opts.OnlyMatching = f.onlyMatching
	opts.Filename = !f.noFilename
	opts.Reponame = !f.noReponame
	opts.AfterContext = f.afterContext
	opts.BeforeContext = f.beforeContext
	if cmd.Flags().Changed("context") {
		c := f.context
		opts.Context = &c
	}
	opts.Ref = grep.BranchRef(f.ref)

	sink := output.New(stdout, f.json)
	defer func() {
		if cerr := sink.Close(); err == nil {
			err = cerr
		}
	}()

	engine := grep.New(sess.client, sink)
	engine.SetCacheSize(sess.cfg.Cache.TreeEntries)
	engine.SetMetrics(sess.metrics)
	engine.SetLogger(sess.logger)

	if !f.json && isTerminal(stdout) {
		engine.SetHighlighter(output.NewEmphasis(stdout).Bold)
		engine.SetProgress(func(r remote.RepoRef) {
			_ = sink.Tmp(fmt.Sprintf("searching %s", r))
		})
	}

	pattern, target := args[0], args[1:]
	if err := engine.Run(ctx, pattern, target, opts); err != nil {
		if !output.IsBrokenPipe(err) {
			sess.logger.Debug(ctx, "grep failed", zap.Error(err))
		}
		return err
	}
	return nil
}

// isTerminal reports whether w is a terminal.
func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}
