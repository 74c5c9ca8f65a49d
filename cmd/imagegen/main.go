package main

import (
	"os"
	"time"

	"github.com/mando222/ai-image-gen/internal/config"
	"github.com/mando222/ai-image-gen/internal/logging"
	"github.com/spf13/cobra"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

// Service flags shared by every subcommand. Each one overrides the matching
// IMAGEGEN_* variable only when given.
var (
	apiURLFlag       string
	resultURLFlag    string
	modeFlag         string
	pollIntervalFlag time.Duration
	timeoutFlag      time.Duration
)

var rootCmd = &cobra.Command{
	Use:   "imagegen",
	Short: "Generate images on a remote diffusion service",
	Long: `imagegen collects generation parameters, submits them to a remote
image-generation service, follows progress until the image is ready, and
prints the result URL.

The service is configured with IMAGEGEN_* environment variables or a .env
file; flags override both.

Examples:
  imagegen generate -p "a cat" --steps 28 --guidance-scale 7 --strength 0.8
  imagegen generate -p "a cat" --image ./seed.png --tui
  imagegen generate --mode poll --model-type fast --lora fast-detail
  imagegen loras
  imagegen images`,
	SilenceUsage: true,
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVar(&apiURLFlag, "api-url", "", "Generation service base URL (env IMAGEGEN_API_URL)")
	pf.StringVar(&resultURLFlag, "result-url", "", "Base URL for relative image paths (env IMAGEGEN_RESULT_BASE_URL)")
	pf.StringVar(&modeFlag, "mode", "", "Progress mode: stream or poll (env IMAGEGEN_MODE)")
	pf.DurationVar(&pollIntervalFlag, "poll-interval", 0, "Delay between status polls in poll mode (env IMAGEGEN_POLL_INTERVAL)")
	pf.DurationVar(&timeoutFlag, "timeout", 0, "Timeout for non-streaming requests (env IMAGEGEN_REQUEST_TIMEOUT)")

	rootCmd.AddCommand(generateCmd, lorasCmd, imagesCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// loadConfig starts the logger, reads the environment, and applies flag
// overrides.
func loadConfig(cmd *cobra.Command) *config.Config {
	logging.Init()
	cfg := config.Load()
	logging.ApplyLevel()

	flags := cmd.Flags()
	if flags.Changed("api-url") {
		cfg.APIBaseURL = apiURLFlag
		if !flags.Changed("result-url") && os.Getenv("IMAGEGEN_RESULT_BASE_URL") == "" {
			cfg.ResultBaseURL = apiURLFlag
		}
	}
	if flags.Changed("result-url") {
		cfg.ResultBaseURL = resultURLFlag
	}
	if flags.Changed("mode") {
		cfg.Mode = config.NormalizeMode(modeFlag)
	}
	if flags.Changed("poll-interval") {
		cfg.PollInterval = pollIntervalFlag
	}
	if flags.Changed("timeout") {
		cfg.RequestTimeout = timeoutFlag
	}
	return cfg
}
