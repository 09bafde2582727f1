package main

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/spf13/cobra"

	"github.com/clipforge/clipforge-agent/internal/cloud"
	"github.com/clipforge/clipforge-agent/internal/config"
	"github.com/clipforge/clipforge-agent/internal/db"
	"github.com/clipforge/clipforge-agent/internal/library"
	"github.com/clipforge/clipforge-agent/internal/logging"
	"github.com/clipforge/clipforge-agent/internal/session"
	"github.com/clipforge/clipforge-agent/internal/workflow"
)

type commandContext struct {
	configFlag   *string
	logLevelFlag *string

	configOnce sync.Once
	config     *config.Config
	configErr  error

	loggerOnce sync.Once
	logger     *slog.Logger
}

func newCommandContext(configFlag, logLevelFlag *string) *commandContext {
	return &commandContext{
		configFlag:   configFlag,
		logLevelFlag: logLevelFlag,
	}
}

func (c *commandContext) ensureConfig() (*config.Config, error) {
	c.configOnce.Do(func() {
		var path string
		if c.configFlag != nil {
			path = strings.TrimSpace(*c.configFlag)
		}
		cfg, _, _, err := config.Load(path)
		if err != nil {
			c.configErr = err
			return
		}
		if c.logLevelFlag != nil && strings.TrimSpace(*c.logLevelFlag) != "" {
			cfg.Logging.Level = strings.ToLower(strings.TrimSpace(*c.logLevelFlag))
		}
		if err := cfg.EnsureDirectories(); err != nil {
			c.configErr = err
			return
		}
		c.config = cfg
	})
	return c.config, c.configErr
}

func (c *commandContext) configValue() *config.Config {
	cfg, _ := c.ensureConfig()
	return cfg
}

// loggerFor writes to the command's stderr so output stays pipeable.
func (c *commandContext) loggerFor(cmd *cobra.Command) *slog.Logger {
	c.loggerOnce.Do(func() {
		cfg := c.configValue()
		level, format := "warn", "auto"
		if cfg != nil {
			level, format = cfg.Logging.Level, cfg.Logging.Format
		}
		c.logger = logging.NewWriterLogger(cmd.ErrOrStderr(), level, format)
	})
	return c.logger
}

func (c *commandContext) sessionStore() *session.FileStore {
	return session.NewFileStore(c.configValue().Paths.SessionFile)
}

func (c *commandContext) cloudClient(cmd *cobra.Command) *cloud.HTTPClient {
	cfg := c.configValue()
	return cloud.NewHTTPClient(cfg.Backend.BaseURL, c.sessionStore(), logging.WithComponent(c.loggerFor(cmd), "cloud"),
		cloud.WithAuthScheme(cfg.Backend.AuthScheme),
		cloud.WithTimeouts(cfg.RequestTimeout(), cfg.UploadTimeout()),
	)
}

// requireLogin fails early when no session is stored.
func (c *commandContext) requireLogin() (session.Session, error) {
	sess, err := c.sessionStore().Load()
	if err != nil {
		return session.Session{}, err
	}
	if !sess.Valid() {
		return session.Session{}, errors.New("not logged in; run `clipforge login` first")
	}
	return sess, nil
}

func (c *commandContext) newWorkflow(cmd *cobra.Command, backend workflow.Backend, opts ...workflow.Option) *workflow.Workflow {
	cfg := c.configValue()
	wcfg := workflow.Config{
		MaxAttempts:    cfg.Workflow.MaxAttempts,
		Delay:          cfg.PollDelay(),
		ExpectedShorts: cfg.Workflow.ExpectedShorts,
	}
	return workflow.New(backend, workflow.NewProbe(cfg.Workflow.PollMode, backend), wcfg, c.loggerFor(cmd), opts...)
}

// openLibrary opens the library database. The caller closes the returned DB.
func (c *commandContext) openLibrary(cmd *cobra.Command) (*db.DB, *library.Service, error) {
	cfg := c.configValue()
	logger := c.loggerFor(cmd)

	database, err := db.New(cfg.DBPath(), logging.WithComponent(logger, "db"))
	if err != nil {
		return nil, nil, fmt.Errorf("open library: %w", err)
	}
	svc := library.NewService(library.NewRepository(database.Conn()), c.cloudClient(cmd), logger,
		library.WithMaxPages(cfg.Library.MaxPages),
		library.WithCacheDir(cfg.ShortsCacheDir()),
	)
	return database, svc, nil
}

// withLibrary opens the library database for the duration of fn.
func (c *commandContext) withLibrary(cmd *cobra.Command, fn func(*library.Service) error) error {
	database, svc, err := c.openLibrary(cmd)
	if err != nil {
		return err
	}
	defer database.Close()
	return fn(svc)
}

func shouldSkipConfig(cmd *cobra.Command) bool {
	for c := cmd; c != nil; c = c.Parent() {
		if c.Annotations != nil && c.Annotations["skipConfigLoad"] == "true" {
			return true
		}
	}
	return false
}
