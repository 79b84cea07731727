package main

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"
)

func newVersionCmd(stdout io.Writer) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(stdout, "gh-grep by Fyrsmith Labs\n")
			fmt.Fprintf(stdout, "Version:    %s\n", version)
			fmt.Fprintf(stdout, "Commit:     %s\n", gitCommit)
			fmt.Fprintf(stdout, "Build Date: %s\n", buildDate)
		},
	}
}
