package grep

import (
	"path"
	"strings"
)

// Qualifier narrows a code search to files like one requested path.
type Qualifier struct {
	Filename  string
	Path      string
	Extension string
}

// NewQualifier derives the qualifier for file. A bare filename maps to
// the root path "/". Dotfiles and names ending in "." have no extension.
func NewQualifier(file string) Qualifier {
	filename := path.Base(file)
	return Qualifier{
		Filename:  filename,
		Path:      path.Dir("/" + strings.TrimPrefix(file, "/")),
		Extension: extension(filename),
	}
}

// String renders the search qualifier clause, omitting an empty
// extension.
func (q Qualifier) String() string {
	s := "filename:" + q.Filename + " path:" + q.Path
	if q.Extension != "" {
		s += " extension:" + q.Extension
	}
	return s
}

// QualifierSet returns the distinct qualifier strings for files in
// first-seen order.
func QualifierSet(files []string) []string {
	seen := make(map[string]bool, len(files))
	out := make([]string, 0, len(files))
	for _, f := range files {
		q := NewQualifier(f).String()
		if seen[q] {
			continue
		}
		seen[q] = true
		out = append(out, q)
	}
	return out
}

func extension(filename string) string {
	i := strings.LastIndex(filename, ".")
	if i <= 0 {
		return ""
	}
	return filename[i+1:]
}
