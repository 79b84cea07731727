package remote

import (
	"fmt"
	"strings"
)

// RepoRef identifies a repository. Its identity key is "owner/name".
type RepoRef struct {
	Owner string
	Name  string
}

// String returns "owner/name".
func (r RepoRef) String() string {
	return r.Owner + "/" + r.Name
}

// ParseRepoRef splits "owner/name" on its single "/". Tokens without a
// separator, with an empty half, or with a nested path are rejected.
func ParseRepoRef(s string) (RepoRef, error) {
	owner, name, ok := strings.Cut(s, "/")
	if !ok || owner == "" || name == "" || strings.Contains(name, "/") {
		return RepoRef{}, fmt.Errorf("expected owner/repo, got %q", s)
	}
	return RepoRef{Owner: owner, Name: name}, nil
}

// SearchHit is one code-search result.
type SearchHit struct {
	Repo RepoRef
	Path string
}

// TreeEntry is one path in a git tree.
type TreeEntry struct {
	Path string
	Type string
	SHA  string
	Size int
}

// Tree is a git tree listing. Truncated is set when the host cut a
// recursive listing short.
type Tree struct {
	SHA       string
	Entries   []TreeEntry
	Truncated bool
}

// Find returns the entry whose path equals path exactly.
func (t *Tree) Find(path string) (TreeEntry, bool) {
	for _, e := range t.Entries {
		if e.Path == path {
			return e, true
		}
	}
	return TreeEntry{}, false
}

// Blob is a git blob as returned by the host, still encoded.
type Blob struct {
	SHA      string
	Content  string
	Encoding string
	Size     int
}
