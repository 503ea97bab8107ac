package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/kamikazebr/ssh-api/internal/config"
	"github.com/kamikazebr/ssh-api/internal/logging"
	"github.com/kamikazebr/ssh-api/internal/server/api"
	"github.com/kamikazebr/ssh-api/internal/sshexec"
	"github.com/kamikazebr/ssh-api/pkg/version"
)

const serviceName = "ssh-api-server"

// writeTimeoutMargin is added to the longest allowed ssh timeout.
const writeTimeoutMargin = 30 * time.Second

var (
	configFile string
	envFiles   []string
)

var rootCmd = &cobra.Command{
	Use:   serviceName,
	Short: "SSH API Server - run remote commands over HTTP",
	Long:  "HTTP API that executes non-interactive commands on remote hosts through the system ssh client",
	// Default to serve command if no subcommand provided
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServe(cmd, args)
	},
	SilenceUsage: true,
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API server",
	RunE:  runServe,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Show version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println(version.GetVersion(serviceName))
		if verbose, _ := cmd.Flags().GetBool("verbose"); verbose {
			fmt.Println(version.GetVersionInfo())
		}
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "Path to a YAML config file")
	rootCmd.PersistentFlags().StringSliceVar(&envFiles, "env-file", nil, "Dotenv files to load (default .env)")
	versionCmd.Flags().BoolP("verbose", "v", false, "Show detailed build information")
	rootCmd.AddCommand(serveCmd, execCmd, hashKeyCmd, versionCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// loadConfig reads configuration and initializes the global logger.
func loadConfig() (*config.Config, io.Closer, error) {
	loader := config.NewLoader()
	loader.SetDefault("ssh_dir", "~/.ssh")
	if configFile != "" {
		loader.SetConfigFile(configFile)
	}
	if len(envFiles) > 0 {
		loader.SetEnvFiles(envFiles...)
	}

	cfg, err := loader.Load()
	if err != nil {
		return nil, nil, err
	}

	closer, err := logging.Init(logging.Config{
		Level:  cfg.LogLevel,
		Format: cfg.LogFormat,
		Output: os.Stderr,
		File:   cfg.LogFile,
	})
	if err != nil {
		return nil, nil, err
	}
	if !loader.DotenvLoaded() {
		logging.Logger.Debug().Msg(".env file not found, using environment variables")
	}
	return cfg, closer, nil
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, closer, err := loadConfig()
	if err != nil {
		return err
	}
	defer closer.Close()

	log := logging.Component("server")
	log.Info().Str("version", version.GetVersion(serviceName)).Msg("starting")

	if cfg.UsingDevSecret() {
		log.Warn().Msg("JWT_SECRET not set, using insecure development secret")
	}
	if len(cfg.Keys()) == 0 {
		log.Info().Msg("no API keys configured, only JWT bearer tokens are accepted")
	}

	if pre, err := sshexec.Preflight(cfg.SSHBinary); err != nil {
		log.Warn().Err(err).Msg("ssh client preflight failed, requests will fail until it is installed")
	} else {
		log.Info().Str("path", pre.Path).Str("ssh_version", pre.Version).Msg("ssh client found")
	}

	runner := sshexec.NewRunner(cfg.SSHBinary, logging.Component("sshexec"))
	router := api.NewRouter(cfg, runner, logging.Component("http"))

	srv := &http.Server{
		Addr:         cfg.Addr(),
		Handler:      router,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: time.Duration(sshexec.MaxTimeout)*time.Second + writeTimeoutMargin,
		IdleTimeout:  cfg.IdleTimeout,
	}

	serverErr := make(chan error, 1)
	go func() {
		log.Info().Str("addr", cfg.Addr()).Str("ssh_binary", runner.Binary()).Msg("server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err, ok := <-serverErr:
		if ok {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	case sig := <-quit:
		log.Info().Str("signal", sig.String()).Msg("server shutting down")
	}

	ctx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		// Runs are detached from their requests, so their ssh process
		// groups would outlive the server.
		if n := runner.Abort(); n > 0 {
			log.Warn().Int("killed", n).Msg("killed in-flight ssh commands")
		}
		return fmt.Errorf("server forced to shutdown: %w", err)
	}

	log.Info().Msg("server stopped")
	return nil
}
