package main

import (
	"context"
	"fmt"
	"io"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/gh-grep/internal/auth"
	"github.com/fyrsmithlabs/gh-grep/internal/config"
	"github.com/fyrsmithlabs/gh-grep/internal/logging"
	"github.com/fyrsmithlabs/gh-grep/internal/metrics"
	"github.com/fyrsmithlabs/gh-grep/internal/remote"
	"github.com/fyrsmithlabs/gh-grep/internal/telemetry"
)

// globalFlags are shared by every command.
type globalFlags struct {
	configPath string
	envFile    string
	debug      bool
}

func (g *globalFlags) register(cmd *cobra.Command) {
	pf := cmd.PersistentFlags()
	pf.StringVar(&g.configPath, "config", "", "Config file (default ~/.config/gh-grep/config.yaml)")
	pf.StringVar(&g.envFile, "env-file", "", "Load environment variables from a dotenv file")
	pf.BoolVar(&g.debug, "debug", false, "Log diagnostics to stderr")
}

// session is everything a command needs to talk to GitHub.
type session struct {
	cfg     *config.Config
	logger  *logging.Logger
	metrics *metrics.Metrics
	tel     *telemetry.Telemetry
	client  *remote.Client
	host    string
}

// bootstrap loads configuration, sets up diagnostics and resolves
// credentials. The returned context carries the logger and run id.
func (g *globalFlags) bootstrap(ctx context.Context, stderr io.Writer) (context.Context, *session, error) {
	if err := config.LoadEnvFile(g.envFile); err != nil {
		return ctx, nil, err
	}

	cfg, err := config.Load(g.configPath)
	if err != nil {
		return ctx, nil, fmt.Errorf("failed to load config: %w", err)
	}

	logger, err := newLogger(cfg, g.debug, stderr)
	if err != nil {
		return ctx, nil, err
	}
	ctx = logging.WithRunID(ctx, uuid.NewString())
	ctx = logging.WithLogger(ctx, logger)

	tel, err := telemetry.New(ctx, telemetry.FromConfig(cfg.Telemetry, version))
	if err != nil {
		return ctx, nil, err
	}
	if h := tel.Health(); h.Degraded {
		logger.Warn(ctx, "tracing disabled", zap.Error(h.Err))
	}

	sess := &session{cfg: cfg, logger: logger, metrics: metrics.New(), tel: tel}

	st, err := auth.NewProvider(cfg.GitHub.Host, cfg.GitHub.Token).Resolve(ctx)
	if err != nil {
		sess.close(ctx)
		return ctx, nil, err
	}
	sess.host = st.Host

	baseURL := cfg.GitHub.APIURL
	if baseURL == "" {
		baseURL = auth.APIBaseURL(st.Host)
	}
	logger.Debug(ctx, "resolved github host",
		zap.String("host", st.Host),
		zap.String("source", st.Source),
		zap.String("api_url", baseURL),
		logging.Secret("token", st.Token),
	)

	sess.client, err = remote.NewClient(ctx, st.Token, remote.Options{
		BaseURL:           baseURL,
		RequestsPerSecond: cfg.RateLimit.RequestsPerSecond,
		Burst:             cfg.RateLimit.Burst,
		Metrics:           sess.metrics,
		Logger:            logger,
	})
	if err != nil {
		sess.close(ctx)
		return ctx, nil, err
	}
	return ctx, sess, nil
}

// close pushes metrics and flushes spans. Failures are logged, never
// returned: the grep result is already on stdout.
func (s *session) close(ctx context.Context) {
	ctx = context.WithoutCancel(ctx)

	if url := s.cfg.Metrics.PushgatewayURL; url != "" {
		if err := s.metrics.Push(ctx, url, s.cfg.Metrics.Job); err != nil {
			s.logger.Warn(ctx, "metrics push failed", zap.Error(err))
		}
	}
	if err := s.tel.Shutdown(ctx); err != nil {
		s.logger.Warn(ctx, "telemetry shutdown failed", zap.Error(err))
	}
	_ = s.logger.Sync()
}

func newLogger(cfg *config.Config, debug bool, w io.Writer) (*logging.Logger, error) {
	lc := logging.NewDefaultConfig()
	lc.Format = cfg.Logging.Format

	level, err := logging.LevelFromString(cfg.Logging.Level)
	if err != nil {
		return nil, fmt.Errorf("invalid logging level: %w", err)
	}
	lc.Level = level
	if debug && level > zap.DebugLevel {
		lc.Level = zap.DebugLevel
	}

	return logging.NewLogger(lc, w)
}
