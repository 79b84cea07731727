package grep

import (
	"strings"

	"github.com/fyrsmithlabs/gh-grep/internal/remote"
)

// Sink receives rendered records. message is the human-readable line;
// data is the structured payload carried verbatim in JSON mode.
type Sink interface {
	Log(message string, data map[string]string) error
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(message string, data map[string]string) error

// Log calls f.
func (f SinkFunc) Log(message string, data map[string]string) error {
	return f(message, data)
}

// Display is the per-run answer to "what does each record show".
type Display struct {
	WithoutMatch bool
	ShowFile     bool
	ShowRepo     bool
	ShowContent  bool
}

// ResolveDisplay derives the display flags from opts, the number of
// requested files and the number of explicitly named repositories.
func ResolveDisplay(opts Options, files, explicitRepos int) Display {
	withoutMatch := opts.FilesWithoutMatch || opts.ReposWithoutMatch
	return Display{
		WithoutMatch: withoutMatch,
		ShowFile: opts.FilesWithMatches || opts.FilesWithoutMatch ||
			(!opts.ReposWithoutMatch && opts.Filename && files > 1),
		ShowRepo: opts.ReposWithMatches || opts.ReposWithoutMatch ||
			(opts.Reponame && explicitRepos != 1),
		ShowContent: !withoutMatch && !opts.ReposWithMatches && !opts.FilesWithMatches,
	}
}

// fileResult is one fetched file, in argument order.
type fileResult struct {
	path    string
	content string
}

// renderer turns one repository's fetched files into records.
type renderer struct {
	pattern   *Pattern
	opts      Options
	display   Display
	after     int
	before    int
	highlight func(string) string
	emit      func(message string, data map[string]string) error
}

// render emits every record for repo. Files are visited in argument
// order and lines in source order.
func (r *renderer) render(repo remote.RepoRef, files []fileResult) error {
	anyMatches := false

	for _, f := range files {
		lines := GetLines(f.content, r.pattern, r.after, r.before)

		var parts []string
		if r.display.ShowRepo {
			parts = append(parts, repo.String())
		}
		if r.display.ShowFile {
			parts = append(parts, f.path)
		}
		data := func(extra ...string) map[string]string {
			d := map[string]string{
				"owner": repo.Owner,
				"repo":  repo.Name,
				"path":  f.path,
			}
			for i := 0; i+1 < len(extra); i += 2 {
				d[extra[i]] = extra[i+1]
			}
			return d
		}

		if len(lines) == 0 {
			if r.opts.FilesWithoutMatch {
				if err := r.emit(joinParts(parts), data()); err != nil {
					return err
				}
			}
			continue
		}

		anyMatches = true
		if r.display.WithoutMatch {
			continue
		}

		if !r.display.ShowContent {
			if err := r.emit(joinParts(parts), data()); err != nil {
				return err
			}
			if !r.display.ShowFile {
				break
			}
			continue
		}

		for _, line := range lines {
			if r.opts.OnlyMatching {
				for _, m := range r.pattern.FindAll(line) {
					if err := r.emit(joinParts(parts, m), data("match", m, "line", line)); err != nil {
						return err
					}
				}
				continue
			}
			msg := joinParts(parts, r.pattern.Emphasize(line, r.highlight))
			if err := r.emit(msg, data("line", line)); err != nil {
				return err
			}
		}
	}

	if r.opts.ReposWithoutMatch && !anyMatches {
		return r.emit(repo.String(), map[string]string{
			"owner": repo.Owner,
			"repo":  repo.Name,
		})
	}
	return nil
}

func joinParts(parts []string, extra ...string) string {
	all := make([]string, 0, len(parts)+len(extra))
	all = append(all, parts...)
	all = append(all, extra...)
	return strings.Join(all, ": ")
}
