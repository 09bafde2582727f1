package main

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/gofrs/flock"
	"github.com/spf13/cobra"

	"github.com/clipforge/clipforge-agent/internal/api"
	"github.com/clipforge/clipforge-agent/internal/config"
	"github.com/clipforge/clipforge-agent/internal/export"
	"github.com/clipforge/clipforge-agent/internal/library"
	"github.com/clipforge/clipforge-agent/internal/logging"
	"github.com/clipforge/clipforge-agent/internal/playback"
	"github.com/clipforge/clipforge-agent/internal/ui"
	"github.com/clipforge/clipforge-agent/internal/workflow"
)

const agentLockFile = "agent.lock"

func newServeCommand(ctx *commandContext) *cobra.Command {
	var headless bool
	var port int

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the local agent API and the system tray",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := ctx.configValue()
			if cmd.Flags().Changed("headless") {
				cfg.API.Headless = headless
			}
			if cmd.Flags().Changed("port") {
				cfg.API.Port = port
			}
			return serve(cmd, ctx, cfg)
		},
	}

	cmd.Flags().BoolVar(&headless, "headless", false, "Do not show the system tray")
	cmd.Flags().IntVar(&port, "port", 0, "Override api.port")
	return cmd
}

func serve(cmd *cobra.Command, ctx *commandContext, cfg *config.Config) error {
	startTime := time.Now()
	logger := ctx.loggerFor(cmd)

	lockPath := filepath.Join(cfg.Paths.DataDir, agentLockFile)
	lock := flock.New(lockPath)
	ok, err := lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return errors.New("another clipforge agent is already running")
	}
	defer lock.Unlock()

	database, svc, err := ctx.openLibrary(cmd)
	if err != nil {
		return err
	}
	defer database.Close()

	if n, err := database.MarkInterruptedRuns(cmd.Context()); err != nil {
		logger.Warn("failed to mark interrupted runs", "error", err)
	} else if n > 0 {
		logger.Info("marked interrupted runs", "count", n)
	}

	authToken, err := ensureAuthToken(cmd.Context(), svc.Repo())
	if err != nil {
		return fmt.Errorf("failed to ensure auth token: %w", err)
	}
	printBanner(cmd.OutOrStdout(), cfg.API.Port, authToken)

	runCtx, cancel := context.WithCancel(context.WithoutCancel(cmd.Context()))
	defer cancel()

	recorder := library.NewRecorder(svc, logger)
	recorder.Start(runCtx)
	defer recorder.Close()

	client := ctx.cloudClient(cmd)
	wf := ctx.newWorkflow(cmd, client, workflow.WithListener(recorder.Listen))
	// Reset finishes an in-flight run so the recorder marks it cancelled.
	defer wf.Reset()

	uploadDir := filepath.Join(cfg.Paths.CacheDir, "uploads")
	if err := os.MkdirAll(uploadDir, 0o755); err != nil {
		return fmt.Errorf("create upload dir: %w", err)
	}

	apiServer := api.NewServer(api.ServerConfig{
		Port:      cfg.API.Port,
		UploadDir: uploadDir,
		Workflow:  wf,
		Library:   svc,
		Exporter:  export.NewExporter(svc),
		Playback:  playback.NewServer(svc, logging.WithComponent(logger, "playback")),
		Status:    client,
		Session:   ctx.sessionStore(),
		Tokens:    svc.Repo(),
		Logger:    logging.WithComponent(logger, "api"),
		StartTime: startTime,
		Version:   config.Version,
	})

	serverErr := make(chan error, 1)
	go func() {
		serverErr <- apiServer.Start()
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	quitCh := make(chan struct{})
	var quitErr error

	go func() {
		select {
		case sig := <-sigCh:
			logger.Info("received shutdown signal", "signal", sig)
		case err := <-serverErr:
			if err != nil {
				logger.Error("HTTP server error", "error", err)
				quitErr = err
			}
		case <-runCtx.Done():
		}
		close(quitCh)
	}()

	var tray *ui.Tray
	if cfg.API.Headless {
		logger.Info("running in headless mode (no system tray)")
	} else {
		tray = ui.NewTray(ui.TrayConfig{
			Runner: wf,
			Logger: logging.WithComponent(logger, "tray"),
			OnQuit: cancel,
		})
		go tray.Run()
	}

	<-quitCh

	logger.Info("initiating graceful shutdown")
	if tray != nil {
		tray.Quit()
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := apiServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("failed to shutdown HTTP server", "error", err)
	}

	logger.Info("shutdown complete")
	return quitErr
}

// tokenRepository stores the API bearer token.
type tokenRepository interface {
	GetConfig(ctx context.Context, key string) (string, error)
	SetConfig(ctx context.Context, key, value string) error
}

func ensureAuthToken(ctx context.Context, repo tokenRepository) (string, error) {
	existing, err := repo.GetConfig(ctx, library.ConfigKeyAPIToken)
	if err == nil && existing != "" {
		return existing, nil
	}

	tokenBytes := make([]byte, 32)
	if _, err := rand.Read(tokenBytes); err != nil {
		return "", err
	}
	token := hex.EncodeToString(tokenBytes)

	if err := repo.SetConfig(ctx, library.ConfigKeyAPIToken, token); err != nil {
		return "", err
	}

	return token, nil
}

func printBanner(w io.Writer, port int, token string) {
	const width = 79
	line := strings.Repeat("═", width)
	fmt.Fprintln(w)
	fmt.Fprintln(w, "╔"+line+"╗")
	fmt.Fprintf(w, "║  %-*s║\n", width-2, "CLIPFORGE AGENT v"+config.Version)
	fmt.Fprintln(w, "╠"+line+"╣")
	fmt.Fprintf(w, "║  API URL:    %-*s║\n", width-14, fmt.Sprintf("http://127.0.0.1:%d", port))
	fmt.Fprintf(w, "║  Auth Token: %-*s║\n", width-14, token)
	fmt.Fprintln(w, "╚"+line+"╝")
	fmt.Fprintln(w)
}
