package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/kamikazebr/ssh-api/internal/config"
	"github.com/kamikazebr/ssh-api/internal/logging"
	"github.com/kamikazebr/ssh-api/internal/mcp"
	"github.com/kamikazebr/ssh-api/internal/sshexec"
	"github.com/kamikazebr/ssh-api/pkg/version"
)

var (
	configFile string
	envFiles   []string
)

var rootCmd = &cobra.Command{
	Use:   mcp.ServerName,
	Short: "SSH MCP server - expose the ssh tool over JSON-RPC stdio",
	Long: `Reads line-delimited JSON-RPC 2.0 requests from stdin and writes one
response per line to stdout. Logs go to stderr.`,
	RunE:         runServe,
	SilenceUsage: true,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Show version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println(version.GetVersion(mcp.ServerName))
		if verbose, _ := cmd.Flags().GetBool("verbose"); verbose {
			fmt.Println(version.GetVersionInfo())
		}
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "Path to a YAML config file")
	rootCmd.PersistentFlags().StringSliceVar(&envFiles, "env-file", nil, "Dotenv files to load (default .env)")
	versionCmd.Flags().BoolP("verbose", "v", false, "Show detailed build information")
	rootCmd.AddCommand(versionCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func runServe(cmd *cobra.Command, args []string) error {
	loader := config.NewLoader()
	if configFile != "" {
		loader.SetConfigFile(configFile)
	}
	if len(envFiles) > 0 {
		loader.SetEnvFiles(envFiles...)
	}
	cfg, err := loader.Load()
	if err != nil {
		return err
	}

	// stdout carries the protocol; logs must never reach it.
	closer, err := logging.Init(logging.Config{
		Level:  cfg.LogLevel,
		Format: cfg.LogFormat,
		Output: os.Stderr,
		File:   cfg.LogFile,
	})
	if err != nil {
		return err
	}
	defer closer.Close()

	log := logging.Component("mcp")
	if !loader.DotenvLoaded() {
		log.Debug().Msg(".env file not found, using environment variables")
	}
	log.Info().
		Str("version", version.GetVersion(mcp.ServerName)).
		Str("ssh_dir", cfg.SSHDir).
		Msg("starting")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if _, err := sshexec.Preflight(cfg.SSHBinary); err != nil {
		log.Warn().Err(err).Msg("ssh client preflight failed")
	}

	runner := sshexec.NewRunner(cfg.SSHBinary, logging.Component("sshexec"))
	server := mcp.NewServer(runner, cfg.SSHDir, version.Short(), log)

	if err := server.Serve(ctx, os.Stdin, os.Stdout); err != nil && ctx.Err() == nil {
		return err
	}
	return nil
}
