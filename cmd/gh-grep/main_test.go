package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"syscall"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/gh-grep/internal/remote/remotetest"
)

// setupEnv points gh-grep at a fake GitHub with a token in the
// environment and no config file.
func setupEnv(t *testing.T) *remotetest.Server {
	t.Helper()

	t.Setenv("HOME", t.TempDir())
	t.Setenv("GH_TOKEN", "gho_test")
	t.Setenv("GH_HOST", "")

	srv := remotetest.NewServer(t)
	srv.AddFile("org", "repo1", "file1", "This\nis\na repo1\nfile1\nabc\nadc\n")
	srv.AddFile("org", "repo1", "dir/file2", "This\nis\na repo1\nfile2\nyadda\n")
	srv.AddFile("org", "repo2", "file1", "this\nis\na repo2\nfile1\nyadda\n")
	srv.AddSearch("repo filename:file1 path:/",
		remotetest.Hit{Owner: "org", Repo: "repo1", Path: "file1"},
		remotetest.Hit{Owner: "org", Repo: "repo2", Path: "file1"},
	)
	t.Setenv("GH_GREP_GITHUB_API_URL", srv.BaseURL())
	return srv
}

func execute(t *testing.T, args ...string) (stdout, stderr string, code int) {
	t.Helper()
	var out, errb bytes.Buffer
	code = run(context.Background(), args, &out, &errb)
	return out.String(), errb.String(), code
}

func TestRun_TextOutput(t *testing.T) {
	srv := setupEnv(t)

	stdout, stderr, code := execute(t, "--parallel", "1", "-R", "repo", "file1")
	require.Equal(t, 0, code, stderr)

	assert.Equal(t, "a repo1\na repo2\n", stdout)
	assert.Equal(t, []string{"repo filename:file1 path:/"}, srv.Queries())
}

func TestRun_NoFilenameShorthand(t *testing.T) {
	setupEnv(t)

	stdout, stderr, code := execute(t, "-h", `file\d`, "[", "file1", "dir/file2", "]", "org/repo1")
	require.Equal(t, 0, code, stderr)
	assert.Equal(t, "file1\nfile2\n", stdout)

	stdout, _, code = execute(t, `file\d`, "[", "file1", "dir/file2", "]", "org/repo1")
	require.Equal(t, 0, code)
	assert.Equal(t, "file1: file1\ndir/file2: file2\n", stdout)
}

func TestRun_SubcommandsKeepHelpShorthand(t *testing.T) {
	stdout, stderr, code := execute(t, "mcp", "-h")
	require.Equal(t, 0, code, stderr)
	assert.Contains(t, stdout, "mcp")

	stdout, stderr, code = execute(t, "-h", "--version")
	require.Equal(t, 0, code, stderr)
	assert.Contains(t, stdout, "dev")
}

func TestRun_BareBranchRefOnLargeFile(t *testing.T) {
	srv := setupEnv(t)
	big := srv.AddRepo("org", "big")
	big.Files["dir/huge.txt"] = "header\nneedle in here\nfooter\n"
	big.TooLarge["dir/huge.txt"] = true

	stdout, stderr, code := execute(t, "--ref", "main", "needle", "dir/huge.txt", "org/big")
	require.Equal(t, 0, code, stderr)
	assert.Equal(t, "needle in here\n", stdout)
	assert.Equal(t, 1, srv.CountRequests("repos/org/big/git/ref/heads/main"))
	assert.Zero(t, srv.CountRequests("repos/org/big/commits/"))
}

func TestRun_ContextFlags(t *testing.T) {
	setupEnv(t)

	stdout, _, code := execute(t, "-C", "1", "^is$", "file1", "org/repo1")
	require.Equal(t, 0, code)
	assert.Equal(t, "This\nis\na repo1\n", stdout)

	// -C 0 still overrides -A.
	stdout, _, code = execute(t, "-A", "2", "-C", "0", "^is$", "file1", "org/repo1")
	require.Equal(t, 0, code)
	assert.Equal(t, "is\n", stdout)

	stdout, _, code = execute(t, "-A", "1", "^is$", "file1", "org/repo1")
	require.Equal(t, 0, code)
	assert.Equal(t, "is\na repo1\n", stdout)
}

func TestRun_JSONOutput(t *testing.T) {
	setupEnv(t)

	stdout, stderr, code := execute(t, "--json", "--parallel", "1", "-l", "a.c", "file1", "org/repo1", "org/repo2")
	require.Equal(t, 0, code, stderr)

	lines := strings.Split(strings.TrimSuffix(stdout, "\n"), "\n")
	require.Len(t, lines, 1)

	var rec struct {
		T    int64             `json:"t"`
		Data map[string]string `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &rec))
	assert.Positive(t, rec.T)
	assert.Equal(t, map[string]string{"owner": "org", "repo": "repo1", "path": "file1"}, rec.Data)
}

func TestRun_ReposFlags(t *testing.T) {
	setupEnv(t)

	stdout, _, code := execute(t, "--parallel", "1", "-p", ".", "file1", "org/repo1", "org/repo2")
	require.Equal(t, 0, code)
	assert.Equal(t, "org/repo1\norg/repo2\n", stdout)

	stdout, _, code = execute(t, "--parallel", "1", "-P", "repo1", "file1", "org/repo1", "org/repo2")
	require.Equal(t, 0, code)
	assert.Equal(t, "org/repo2\n", stdout)

	stdout, _, code = execute(t, "--parallel", "1", "-o", "-i", `REPO\d`, "file1", "org/repo1", "org/repo2")
	require.Equal(t, 0, code)
	assert.Equal(t, "org/repo1: repo1\norg/repo2: repo2\n", stdout)
}

func TestRun_Errors(t *testing.T) {
	tests := []struct {
		name string
		args []string
		want string
	}{
		{"missing files", []string{"pattern"}, "requires at least 2 arg(s)"},
		{"regexp needs repos", []string{"a.*c", "file1"}, "grep with an actual regexp requires explicit repos"},
		{"unterminated file list", []string{"x", "[", "file1"}, "you must end a list of files with a ] argument"},
		{"malformed repo", []string{"x", "file1", "nope"}, "malformed repository"},
		{"bad pattern", []string{"(", "file1", "org/repo1"}, "invalid pattern"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := setupEnv(t)

			stdout, stderr, code := execute(t, tt.args...)
			assert.Equal(t, 1, code)
			assert.Empty(t, stdout)
			assert.True(t, strings.HasPrefix(stderr, "Error: "), stderr)
			assert.Contains(t, stderr, tt.want)
			assert.Empty(t, srv.Requests())
		})
	}
}

func TestRun_RemoteFailure(t *testing.T) {
	srv := setupEnv(t)
	srv.FailPath("repos/org/repo1/contents", http.StatusBadGateway)

	_, stderr, code := execute(t, "x", "file1", "org/repo1")
	assert.Equal(t, 1, code)
	assert.Contains(t, stderr, "502")
}

func TestRun_Version(t *testing.T) {
	stdout, _, code := execute(t, "version")
	require.Equal(t, 0, code)
	assert.Contains(t, stdout, "Version:    dev")

	stdout, _, code = execute(t, "--version")
	require.Equal(t, 0, code)
	assert.Contains(t, stdout, "dev")
}

func TestRun_HelpHasNoShorthand(t *testing.T) {
	stdout, _, code := execute(t, "--help")
	require.Equal(t, 0, code)
	assert.Contains(t, stdout, "--no-filename")
	assert.Contains(t, stdout, "-h, --no-filename")
	assert.NotContains(t, stdout, "-h, --help")
}

func TestExitCode(t *testing.T) {
	assert.Equal(t, 0, exitCode(nil))
	assert.Equal(t, 0, exitCode(fmt.Errorf("write /dev/stdout: %w", syscall.EPIPE)))
	assert.Equal(t, 130, exitCode(context.Canceled))
	assert.Equal(t, 1, exitCode(errors.New("boom")))
}
