package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/mando222/ai-image-gen/internal/config"
	"github.com/mando222/ai-image-gen/internal/logging"
	"github.com/mando222/ai-image-gen/internal/stub"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

var version = "dev"

// CLI flags
var (
	portFlag       int
	stepsFlag      int
	frameDelayFlag time.Duration
	imagesFlag     []string
)

var rootCmd = &cobra.Command{
	Use:   "imagegen-stub",
	Short: "Local stand-in for the image generation service",
	Long: `imagegen-stub serves the generation endpoints with deterministic progress
and a placeholder image, for developing the client without a GPU.

Prompts containing "fail" fail halfway through.

Examples:
  imagegen-stub
  imagegen-stub --port 5001 --steps 10 --frame-delay 500ms
  imagegen-stub --image out/existing.png`,
	Args: cobra.NoArgs,
	Run:  runMain,
}

func init() {
	rootCmd.Flags().IntVar(&portFlag, "port", 5000, "Port to listen on")
	rootCmd.Flags().IntVar(&stepsFlag, "steps", 10, "Progress frames per stream, and status polls per job")
	rootCmd.Flags().DurationVar(&frameDelayFlag, "frame-delay", 300*time.Millisecond, "Pause between streamed progress frames")
	rootCmd.Flags().StringSliceVar(&imagesFlag, "image", nil, "Existing image path to list in the gallery, repeatable")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func runMain(cmd *cobra.Command, args []string) {
	startTime := time.Now()
	logging.Init()
	config.LoadDotEnv()
	logging.ApplyLevel()

	if zerolog.GlobalLevel() > zerolog.DebugLevel {
		gin.SetMode(gin.ReleaseMode)
	}

	svc := stub.New(
		stub.WithSteps(stepsFlag),
		stub.WithFrameDelay(frameDelayFlag),
		stub.WithImages(imagesFlag...),
	)

	addr := fmt.Sprintf(":%d", portFlag)
	srv := &http.Server{
		Addr:        addr,
		Handler:     svc.Handler(),
		ReadTimeout: 30 * time.Second,
		IdleTimeout: 60 * time.Second,
	}

	// Graceful shutdown
	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh
		log.Info().Msg("Shutting down...")
		shutdown(srv, 10*time.Second)
	}()

	logging.NewStartupLogger("imagegen-stub").
		Version(version).
		Endpoint("listen", "http://localhost"+addr).
		Config("steps", strconv.Itoa(stepsFlag)).
		Config("frameDelay", frameDelayFlag.String()).
		Config("seedImages", strconv.Itoa(len(imagesFlag))).
		InitDuration(time.Since(startTime)).
		Log()

	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Fatal().Err(err).Msg("Server failed")
	}
}

// shutdown drains srv, giving in-flight streams up to timeout to finish.
func shutdown(srv *http.Server, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("Shutdown did not complete cleanly")
		return err
	}
	return nil
}
