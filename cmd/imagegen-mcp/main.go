package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/mando222/ai-image-gen/internal/cli"
	"github.com/mando222/ai-image-gen/internal/config"
	"github.com/mando222/ai-image-gen/internal/logging"
	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

var version = "dev"

var rootCmd = &cobra.Command{
	Use:   "imagegen-mcp",
	Short: "MCP server exposing image generation as tools",
	Long: `imagegen-mcp speaks the Model Context Protocol over stdio and exposes the
generation service as three tools: generate_image, list_loras and
list_images. One generation runs at a time.

Configuration comes from IMAGEGEN_* environment variables or a .env file.
Logs go to stderr; stdout carries only protocol messages.`,
	Args: cobra.NoArgs,
	Run:  runMain,
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func runMain(cmd *cobra.Command, args []string) {
	startTime := time.Now()
	logging.Init()
	cfg := config.Load()
	logging.ApplyLevel()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	client := cli.InitClient(ctx, cfg)
	ctrl, closeMetrics := cli.InitSession(cfg, client)
	defer closeMetrics()

	server := newServer(&tools{ctrl: ctrl, mode: cfg.Mode})

	logging.NewStartupLogger("imagegen-mcp").
		Version(version).
		Endpoint("api", cfg.APIBaseURL).
		Endpoint("results", cfg.ResultBaseURL).
		Feature("metrics", cfg.MetricsFile != "").
		Config("mode", cfg.Mode).
		Config("transport", "stdio").
		InitDuration(time.Since(startTime)).
		Log()

	if err := server.Run(ctx, &mcp.StdioTransport{}); err != nil && ctx.Err() == nil {
		log.Fatal().Err(err).Msg("MCP server failed")
	}
}
