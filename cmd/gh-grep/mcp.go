package main

import (
	"io"

	"github.com/spf13/cobra"

	"github.com/fyrsmithlabs/gh-grep/internal/mcp"
)

func newMCPCmd(g *globalFlags, stderr io.Writer) *cobra.Command {
	return &cobra.Command{
		Use:   "mcp",
		Short: "Serve the grep tool over MCP on stdio",
		Long: `Run a Model Context Protocol server on stdin/stdout exposing one tool,
"grep", which takes the same options as the command line and returns the
matching records.

Diagnostics go to stderr so they never corrupt the protocol stream.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, sess, err := g.bootstrap(cmd.Context(), stderr)
			if err != nil {
				return err
			}
			defer sess.close(ctx)

			srv, err := mcp.NewServer(&mcp.Config{
				Name:      "gh-grep",
				Version:   version,
				Parallel:  sess.cfg.Grep.Parallel,
				CacheSize: sess.cfg.Cache.TreeEntries,
				Metrics:   sess.metrics,
				Logger:    sess.logger,
			}, sess.client)
			if err != nil {
				return err
			}
			return srv.Run(ctx)
		},
	}
}
