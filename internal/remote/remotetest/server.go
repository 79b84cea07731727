// Package remotetest provides an in-memory GitHub REST API for tests.
//
// It serves the endpoints gh-grep uses: code search, raw contents,
// repository metadata, refs, commits, trees and blobs.
package remotetest

import (
	"crypto/sha1"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sort"
	"strings"
	"sync"
	"testing"
)

// TreeSHA is the tree sha every commit in the fake resolves to.
const TreeSHA = "0000000000000000000000000000000000000001"

// Repo is a fake repository with a single branch.
type Repo struct {
	DefaultBranch string
	Files         map[string]string
	// TooLarge lists paths whose contents call fails with too_large,
	// forcing the blob fallback.
	TooLarge map[string]bool
	// TruncateTree marks every tree response as truncated and drops
	// its entries.
	TruncateTree bool
	// BlobEncoding overrides the "base64" encoding reported for blobs.
	BlobEncoding string
}

// Hit is one code-search hit.
type Hit struct {
	Owner, Repo, Path string
}

// Server is a fake GitHub API.
type Server struct {
	*httptest.Server

	mu       sync.Mutex
	repos    map[string]*Repo
	searches map[string][]Hit
	failures map[string]int
	queries  []string
	requests []string
	blobs    map[string]string
}

// NewServer starts a fake API and closes it when the test ends.
func NewServer(t testing.TB) *Server {
	t.Helper()
	s := &Server{
		repos:    make(map[string]*Repo),
		searches: make(map[string][]Hit),
		failures: make(map[string]int),
		blobs:    make(map[string]string),
	}
	s.Server = httptest.NewServer(http.HandlerFunc(s.handle))
	t.Cleanup(s.Close)
	return s
}

// BaseURL returns the REST root for remote.Options.BaseURL.
func (s *Server) BaseURL() string {
	return s.URL + "/"
}

// AddRepo registers owner/name and returns it for further setup.
func (s *Server) AddRepo(owner, name string) *Repo {
	s.mu.Lock()
	defer s.mu.Unlock()
	r := &Repo{DefaultBranch: "main", Files: map[string]string{}, TooLarge: map[string]bool{}}
	s.repos[owner+"/"+name] = r
	return r
}

// AddFile sets a file's content, creating the repository when needed.
func (s *Server) AddFile(owner, name, path, content string) {
	s.mu.Lock()
	r, ok := s.repos[owner+"/"+name]
	s.mu.Unlock()
	if !ok {
		r = s.AddRepo(owner, name)
	}
	s.mu.Lock()
	r.Files[path] = content
	s.mu.Unlock()
}

// AddSearch makes query return hits.
func (s *Server) AddSearch(query string, hits ...Hit) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.searches[query] = append(s.searches[query], hits...)
}

// FailPath makes every request whose path starts with prefix fail with
// status.
func (s *Server) FailPath(prefix string, status int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures[prefix] = status
}

// Queries returns every code-search query received, in order.
func (s *Server) Queries() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.queries...)
}

// Requests returns "METHOD path" for every request received.
func (s *Server) Requests() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.requests...)
}

// CountRequests counts requests whose path starts with prefix.
func (s *Server) CountRequests(prefix string) int {
	n := 0
	for _, r := range s.Requests() {
		if strings.HasPrefix(strings.TrimPrefix(r, "GET "), prefix) {
			n++
		}
	}
	return n
}

func (s *Server) handle(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/")

	s.mu.Lock()
	s.requests = append(s.requests, r.Method+" "+path)
	for prefix, status := range s.failures {
		if strings.HasPrefix(path, prefix) {
			s.mu.Unlock()
			writeError(w, status, "injected failure")
			return
		}
	}
	s.mu.Unlock()

	if path == "search/code" {
		s.handleSearch(w, r)
		return
	}

	parts := strings.SplitN(path, "/", 4)
	if len(parts) < 3 || parts[0] != "repos" {
		writeError(w, http.StatusNotFound, "Not Found")
		return
	}
	owner, name := parts[1], parts[2]

	s.mu.Lock()
	repo, ok := s.repos[owner+"/"+name]
	s.mu.Unlock()
	if !ok {
		writeError(w, http.StatusNotFound, "Not Found")
		return
	}

	if len(parts) == 3 {
		writeJSON(w, map[string]interface{}{
			"name":           name,
			"owner":          map[string]string{"login": owner},
			"default_branch": repo.DefaultBranch,
		})
		return
	}

	rest := parts[3]
	switch {
	case strings.HasPrefix(rest, "contents/"):
		s.handleContents(w, r, repo, strings.TrimPrefix(rest, "contents/"))
	case strings.HasPrefix(rest, "git/ref/"):
		ref := strings.TrimPrefix(rest, "git/ref/")
		if ref != "heads/"+repo.DefaultBranch {
			writeError(w, http.StatusNotFound, "Not Found")
			return
		}
		writeJSON(w, map[string]interface{}{
			"ref":    "refs/" + ref,
			"object": map[string]string{"sha": commitSHA(repo.DefaultBranch), "type": "commit"},
		})
	case strings.HasPrefix(rest, "git/commits/"):
		sha := strings.TrimPrefix(rest, "git/commits/")
		writeJSON(w, map[string]interface{}{
			"sha":  sha,
			"tree": map[string]string{"sha": TreeSHA},
		})
	case strings.HasPrefix(rest, "commits/"):
		ref := strings.TrimPrefix(rest, "commits/")
		writeJSON(w, map[string]interface{}{
			"sha":    ref,
			"commit": map[string]interface{}{"tree": map[string]string{"sha": TreeSHA}},
		})
	case strings.HasPrefix(rest, "git/trees/"):
		s.handleTree(w, r, repo)
	case strings.HasPrefix(rest, "git/blobs/"):
		s.handleBlob(w, repo, strings.TrimPrefix(rest, "git/blobs/"))
	default:
		writeError(w, http.StatusNotFound, "Not Found")
	}
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query().Get("q")

	s.mu.Lock()
	s.queries = append(s.queries, q)
	hits := s.searches[q]
	s.mu.Unlock()

	items := make([]map[string]interface{}, 0, len(hits))
	for _, h := range hits {
		items = append(items, map[string]interface{}{
			"path": h.Path,
			"repository": map[string]interface{}{
				"name":  h.Repo,
				"owner": map[string]string{"login": h.Owner},
			},
		})
	}
	writeJSON(w, map[string]interface{}{
		"total_count":        len(items),
		"incomplete_results": false,
		"items":              items,
	})
}

func (s *Server) handleContents(w http.ResponseWriter, r *http.Request, repo *Repo, path string) {
	s.mu.Lock()
	content, ok := repo.Files[path]
	tooLarge := repo.TooLarge[path]
	s.mu.Unlock()

	if tooLarge {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusForbidden)
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"message": "This API returns blobs up to 1 MB in size.",
			"errors": []map[string]string{
				{"resource": "Blob", "field": "data", "code": "too_large"},
			},
		})
		return
	}
	if !ok {
		writeError(w, http.StatusNotFound, "Not Found")
		return
	}
	if r.Header.Get("Accept") != "application/vnd.github.v3.raw" {
		writeError(w, http.StatusUnsupportedMediaType, "raw media type expected")
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = w.Write([]byte(content))
}

func (s *Server) handleTree(w http.ResponseWriter, r *http.Request, repo *Repo) {
	recursive := r.URL.Query().Get("recursive") != ""

	s.mu.Lock()
	defer s.mu.Unlock()

	if repo.TruncateTree {
		writeJSON(w, map[string]interface{}{
			"sha": TreeSHA, "tree": []interface{}{}, "truncated": true,
		})
		return
	}

	paths := make([]string, 0, len(repo.Files))
	for p := range repo.Files {
		paths = append(paths, p)
	}
	sort.Strings(paths)

	seenDirs := map[string]bool{}
	entries := make([]map[string]interface{}, 0, len(paths))
	for _, p := range paths {
		if !recursive && strings.Contains(p, "/") {
			dir := p[:strings.Index(p, "/")]
			if !seenDirs[dir] {
				seenDirs[dir] = true
				entries = append(entries, map[string]interface{}{"path": dir, "type": "tree", "sha": blobSHA(dir)})
			}
			continue
		}
		sha := blobSHA(p)
		s.blobs[sha] = repo.Files[p]
		entries = append(entries, map[string]interface{}{
			"path": p, "type": "blob", "sha": sha, "size": len(repo.Files[p]),
		})
	}
	writeJSON(w, map[string]interface{}{"sha": TreeSHA, "tree": entries, "truncated": false})
}

func (s *Server) handleBlob(w http.ResponseWriter, repo *Repo, sha string) {
	s.mu.Lock()
	content, ok := s.blobs[sha]
	encoding := repo.BlobEncoding
	s.mu.Unlock()
	if !ok {
		writeError(w, http.StatusNotFound, "Not Found")
		return
	}
	if encoding == "" {
		encoding = "base64"
	}

	body := content
	if encoding == "base64" {
		body = wrapLines(base64.StdEncoding.EncodeToString([]byte(content)), 60)
	}
	writeJSON(w, map[string]interface{}{
		"sha": sha, "content": body, "encoding": encoding, "size": len(content),
	})
}

// wrapLines breaks s into newline-terminated lines of width n, the way
// GitHub formats base64 blob bodies.
func wrapLines(s string, n int) string {
	var b strings.Builder
	for len(s) > n {
		b.WriteString(s[:n])
		b.WriteByte('\n')
		s = s[n:]
	}
	b.WriteString(s)
	b.WriteByte('\n')
	return b.String()
}

func commitSHA(branch string) string {
	return blobSHA("commit:" + branch)
}

func blobSHA(s string) string {
	sum := sha1.Sum([]byte(s))
	return hex.EncodeToString(sum[:])
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"message": msg})
}
