// Package auth resolves the GitHub host and API token gh-grep talks to.
//
// Sources are tried in order: GH_TOKEN / GITHUB_TOKEN in the environment,
// the configured github.token, `gh auth status --show-token`, and finally
// the gh CLI's hosts.yml when the gh binary is not installed.
package auth

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"github.com/fyrsmithlabs/gh-grep/internal/config"
	"github.com/fyrsmithlabs/gh-grep/internal/logging"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

// DefaultHost is used when nothing names a host.
const DefaultHost = "github.com"

var (
	// ErrAuthFailed means gh reported a failed login.
	ErrAuthFailed = errors.New("GH authentication failed; try running gh auth refresh")

	// ErrNoCredentials means no source produced a token.
	ErrNoCredentials = errors.New("no GitHub credentials found; set GH_TOKEN or run gh auth login")
)

var (
	tokenPattern = regexp.MustCompile(`Token: (\w+)`)
	hostPattern  = regexp.MustCompile(`Logged in to (\S+)`)
)

// Status is a resolved host and token.
type Status struct {
	Host   string
	Token  config.Secret
	Source string
}

// Provider resolves credentials. The function fields exist so tests can
// replace the process environment and the gh binary.
type Provider struct {
	ConfigHost  string
	ConfigToken config.Secret

	Getenv    func(string) string
	LookPath  func(string) (string, error)
	RunGH     func(ctx context.Context, args ...string) ([]byte, error)
	HostsFile string
}

// NewProvider returns a provider backed by the real environment.
func NewProvider(host string, token config.Secret) *Provider {
	return &Provider{
		ConfigHost:  host,
		ConfigToken: token,
		Getenv:      os.Getenv,
		LookPath:    exec.LookPath,
		RunGH:       runGH,
	}
}

// Resolve returns the first credentials found.
func (p *Provider) Resolve(ctx context.Context) (*Status, error) {
	log := logging.FromContext(ctx)

	envHost := p.getenv("GH_HOST")
	for _, name := range []string{"GH_TOKEN", "GITHUB_TOKEN"} {
		if tok := p.getenv(name); tok != "" {
			log.Debug(ctx, "using token from environment", zap.String("variable", name))
			return &Status{Host: firstNonEmpty(envHost, p.ConfigHost, DefaultHost), Token: config.Secret(tok), Source: "env"}, nil
		}
	}

	if p.ConfigToken.IsSet() {
		log.Debug(ctx, "using token from configuration")
		return &Status{Host: firstNonEmpty(p.ConfigHost, envHost, DefaultHost), Token: p.ConfigToken, Source: "config"}, nil
	}

	lookPath := p.LookPath
	if lookPath == nil {
		lookPath = exec.LookPath
	}
	if _, err := lookPath("gh"); err == nil {
		run := p.RunGH
		if run == nil {
			run = runGH
		}
		out, err := run(ctx, "auth", "status", "--show-token")
		if err != nil {
			return nil, fmt.Errorf("gh auth status: %w", err)
		}
		st, err := ParseStatus(string(out))
		if err != nil {
			return nil, err
		}
		log.Debug(ctx, "using token from gh auth status", zap.String("host", st.Host))
		return st, nil
	}

	path := p.HostsFile
	if path == "" {
		path = hostsFilePath(p.getenv)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, ErrNoCredentials
		}
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	st, err := ParseHostsFile(data, firstNonEmpty(envHost, p.ConfigHost))
	if err != nil {
		return nil, err
	}
	log.Debug(ctx, "using token from gh hosts file", zap.String("host", st.Host))
	return st, nil
}

// ParseStatus extracts the token and host from `gh auth status
// --show-token` output. gh lists the preferred host first.
func ParseStatus(out string) (*Status, error) {
	if strings.Contains(out, "authentication failed") {
		return nil, ErrAuthFailed
	}
	tok := tokenPattern.FindStringSubmatch(out)
	if tok == nil {
		return nil, fmt.Errorf("failed to find token in gh auth status --show-token output:\n%s", out)
	}
	host := hostPattern.FindStringSubmatch(out)
	if host == nil {
		return nil, fmt.Errorf("failed to find hostname in gh auth status --show-token output:\n%s", out)
	}
	return &Status{Host: host[1], Token: config.Secret(tok[1]), Source: "gh"}, nil
}

type hostEntry struct {
	OAuthToken string `yaml:"oauth_token"`
	User       string `yaml:"user"`
}

// ParseHostsFile reads gh's hosts.yml. The preferred host wins when it
// has a token, then github.com, then the first host in name order.
func ParseHostsFile(data []byte, prefer string) (*Status, error) {
	var hosts map[string]hostEntry
	if err := yaml.Unmarshal(data, &hosts); err != nil {
		return nil, fmt.Errorf("failed to parse gh hosts file: %w", err)
	}

	candidates := make([]string, 0, len(hosts)+2)
	if prefer != "" {
		candidates = append(candidates, prefer)
	}
	candidates = append(candidates, DefaultHost)
	names := make([]string, 0, len(hosts))
	for name := range hosts {
		names = append(names, name)
	}
	sort.Strings(names)
	candidates = append(candidates, names...)

	for _, name := range candidates {
		if h, ok := hosts[name]; ok && h.OAuthToken != "" {
			return &Status{Host: name, Token: config.Secret(h.OAuthToken), Source: "hosts.yml"}, nil
		}
	}
	return nil, ErrNoCredentials
}

// APIBaseURL returns the REST endpoint for host. github.com maps to
// api.github.com; anything else is treated as GitHub Enterprise.
func APIBaseURL(host string) string {
	host = strings.TrimSuffix(strings.TrimSpace(host), "/")
	if host == "" || host == DefaultHost {
		return "https://api.github.com/"
	}
	return "https://" + host + "/api/v3/"
}

func runGH(ctx context.Context, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, "gh", args...)
	out, err := cmd.CombinedOutput()
	if err != nil {
		// gh exits non-zero when any host is logged out; the output is
		// still parseable.
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return out, nil
		}
		return nil, err
	}
	return out, nil
}

func hostsFilePath(getenv func(string) string) string {
	if dir := getenv("GH_CONFIG_DIR"); dir != "" {
		return filepath.Join(dir, "hosts.yml")
	}
	if dir := getenv("XDG_CONFIG_HOME"); dir != "" {
		return filepath.Join(dir, "gh", "hosts.yml")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".config", "gh", "hosts.yml")
	}
	return filepath.Join(home, ".config", "gh", "hosts.yml")
}

func (p *Provider) getenv(key string) string {
	if p.Getenv == nil {
		return os.Getenv(key)
	}
	return p.Getenv(key)
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
