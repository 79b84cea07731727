package grep

import (
	"context"
	"fmt"
	"net/http"
	"sync"

	"github.com/fyrsmithlabs/gh-grep/internal/remote"
)

// fakeAPI is an in-memory API with call accounting.
type fakeAPI struct {
	mu sync.Mutex

	files     map[string]string // "owner/repo:path"
	tooLarge  map[string]bool
	failures  map[string]error // "owner/repo:path" -> content error
	searches  map[string][]remote.SearchHit
	searchErr error

	branch  string
	refs    map[string]string // ref -> commit sha
	commits map[string]string // commit sha -> tree sha
	byRef   map[string]string // commit-ish -> tree sha
	trees   map[string]*remote.Tree
	blobs   map[string]*remote.Blob

	calls map[string]int
}

func newFakeAPI() *fakeAPI {
	return &fakeAPI{
		files:    map[string]string{},
		tooLarge: map[string]bool{},
		failures: map[string]error{},
		searches: map[string][]remote.SearchHit{},
		branch:   "main",
		refs:     map[string]string{},
		commits:  map[string]string{},
		byRef:    map[string]string{},
		trees:    map[string]*remote.Tree{},
		blobs:    map[string]*remote.Blob{},
		calls:    map[string]int{},
	}
}

func (f *fakeAPI) count(op string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[op]
}

func (f *fakeAPI) record(op string) {
	f.mu.Lock()
	f.calls[op]++
	f.mu.Unlock()
}

func notFound(op string) error {
	return &remote.APIError{Operation: op, StatusCode: http.StatusNotFound, Err: fmt.Errorf("Not Found")}
}

func (f *fakeAPI) SearchCode(_ context.Context, query string, _ int) ([]remote.SearchHit, error) {
	f.record(remote.OpSearchCode)
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.searchErr != nil {
		return nil, f.searchErr
	}
	return f.searches[query], nil
}

func (f *fakeAPI) GetContent(ctx context.Context, repo remote.RepoRef, path, _ string) (string, error) {
	f.record(remote.OpGetContent)
	if err := ctx.Err(); err != nil {
		return "", err
	}
	key := repo.String() + ":" + path
	f.mu.Lock()
	defer f.mu.Unlock()
	if err, ok := f.failures[key]; ok {
		return "", err
	}
	if f.tooLarge[key] {
		return "", &remote.APIError{Operation: remote.OpGetContent, StatusCode: http.StatusForbidden, Codes: []string{"too_large"}, Err: fmt.Errorf("too large")}
	}
	content, ok := f.files[key]
	if !ok {
		return "", notFound(remote.OpGetContent)
	}
	return content, nil
}

func (f *fakeAPI) GetDefaultBranch(context.Context, remote.RepoRef) (string, error) {
	f.record(remote.OpGetRepository)
	return f.branch, nil
}

func (f *fakeAPI) GetRef(_ context.Context, _ remote.RepoRef, ref string) (string, error) {
	f.record(remote.OpGetRef)
	f.mu.Lock()
	defer f.mu.Unlock()
	sha, ok := f.refs[ref]
	if !ok {
		return "", notFound(remote.OpGetRef)
	}
	return sha, nil
}

func (f *fakeAPI) GetCommit(_ context.Context, _ remote.RepoRef, sha string) (string, error) {
	f.record(remote.OpGetCommit)
	f.mu.Lock()
	defer f.mu.Unlock()
	tree, ok := f.commits[sha]
	if !ok {
		return "", notFound(remote.OpGetCommit)
	}
	return tree, nil
}

func (f *fakeAPI) GetCommitByRef(_ context.Context, _ remote.RepoRef, ref string) (string, error) {
	f.record(remote.OpGetCommitByRef)
	f.mu.Lock()
	defer f.mu.Unlock()
	tree, ok := f.byRef[ref]
	if !ok {
		return "", notFound(remote.OpGetCommitByRef)
	}
	return tree, nil
}

func (f *fakeAPI) GetTree(_ context.Context, _ remote.RepoRef, sha string, recursive bool) (*remote.Tree, error) {
	f.record(remote.OpGetTree)
	f.mu.Lock()
	defer f.mu.Unlock()
	t, ok := f.trees[fmt.Sprintf("%s/%t", sha, recursive)]
	if !ok {
		return nil, notFound(remote.OpGetTree)
	}
	return t, nil
}

func (f *fakeAPI) GetBlob(_ context.Context, _ remote.RepoRef, sha string) (*remote.Blob, error) {
	f.record(remote.OpGetBlob)
	f.mu.Lock()
	defer f.mu.Unlock()
	b, ok := f.blobs[sha]
	if !ok {
		return nil, notFound(remote.OpGetBlob)
	}
	return b, nil
}

// collector is a Sink that keeps every record.
type collector struct {
	mu       sync.Mutex
	messages []string
	data     []map[string]string
}

func (c *collector) Log(message string, data map[string]string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.messages = append(c.messages, message)
	c.data = append(c.data, data)
	return nil
}

func (c *collector) Messages() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.messages...)
}
