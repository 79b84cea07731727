package grep

import (
	"fmt"
	"strings"

	"github.com/fyrsmithlabs/gh-grep/internal/remote"
)

// Target is a parsed invocation: what to look for, where.
type Target struct {
	Pattern       string
	Files         []string
	ExplicitRepos []remote.RepoRef
}

// NeedsDiscovery reports whether repositories must be found by search.
func (t *Target) NeedsDiscovery() bool {
	return len(t.ExplicitRepos) == 0
}

// ParseTarget splits args into files and repositories.
//
// A leading "[" opens a file group that runs to the next "]"; everything
// after it is a repository. Without a group the first argument is the
// only file. Leading slashes are stripped from file paths.
func ParseTarget(pattern string, args []string) (*Target, error) {
	if len(args) == 0 {
		return nil, fmt.Errorf("%w: at least one file is required", ErrMalformedTarget)
	}

	var files, repoArgs []string
	if args[0] == "[" {
		end := -1
		for i, a := range args {
			if a == "]" {
				end = i
				break
			}
		}
		if end == -1 {
			return nil, fmt.Errorf("%w: you must end a list of files with a ] argument", ErrMalformedTarget)
		}
		files, repoArgs = args[1:end], args[end+1:]
		if len(files) == 0 {
			return nil, fmt.Errorf("%w: empty file list", ErrMalformedTarget)
		}
	} else {
		files, repoArgs = args[:1], args[1:]
	}

	t := &Target{
		Pattern:       pattern,
		Files:         make([]string, len(files)),
		ExplicitRepos: make([]remote.RepoRef, 0, len(repoArgs)),
	}
	for i, f := range files {
		t.Files[i] = strings.TrimPrefix(f, "/")
	}
	for _, a := range repoArgs {
		r, err := remote.ParseRepoRef(a)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformedRepo, err)
		}
		t.ExplicitRepos = append(t.ExplicitRepos, r)
	}
	return t, nil
}
