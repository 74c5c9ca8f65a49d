package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/mando222/ai-image-gen/internal/cli"
	"github.com/mando222/ai-image-gen/internal/config"
	"github.com/mando222/ai-image-gen/internal/form"
	"github.com/mando222/ai-image-gen/internal/logging"
	"github.com/mando222/ai-image-gen/internal/session"
	"github.com/mando222/ai-image-gen/internal/tui"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

// Generate flags
var (
	promptFlag         string
	negativePromptFlag string
	stepsFlag          int
	guidanceScaleFlag  float64
	strengthFlag       float64
	aspectRatioFlag    string
	modelTypeFlag      string
	lorasFlag          []string
	imageFlag          string
	pickImageFlag      bool
	tuiFlag            bool
)

var generateCmd = &cobra.Command{
	Use:   "generate",
	Short: "Generate one image and print its URL",
	Long: `Generate submits one image generation and follows its progress.

Without --prompt the prompt is read interactively. Numeric values outside the
allowed ranges are clamped: steps 1-100, guidance scale 1-20 (0.1 steps),
strength 0-1 (0.01 steps).

Stream mode sends prompt, negative prompt, steps, guidance scale, strength and
the seed image. Poll mode sends prompt, aspect ratio, model type and the LoRAs
that belong to the selected model type.`,
	Args: cobra.NoArgs,
	Run:  runGenerate,
}

func init() {
	f := generateCmd.Flags()
	f.StringVarP(&promptFlag, "prompt", "p", "", "What to generate")
	f.StringVarP(&negativePromptFlag, "negative-prompt", "n", "", "What to avoid")
	f.IntVar(&stepsFlag, "steps", 28, "Sampling steps (1-100)")
	f.Float64VarP(&guidanceScaleFlag, "guidance-scale", "g", 7.0, "Guidance scale (1-20)")
	f.Float64Var(&strengthFlag, "strength", 0.8, "Seed image strength (0-1)")
	f.StringVar(&aspectRatioFlag, "aspect-ratio", "1:1", "Aspect ratio, poll mode only")
	f.StringVar(&modelTypeFlag, "model-type", "fast", "Model type: fast or slow, poll mode only")
	f.StringSliceVar(&lorasFlag, "lora", nil, "LoRA id to apply, repeatable, poll mode only")
	f.StringVar(&imageFlag, "image", "", "Seed image file")
	f.BoolVar(&pickImageFlag, "pick-image", false, "Choose the seed image with a file dialog")
	f.BoolVar(&tuiFlag, "tui", false, "Show a terminal progress UI")
	generateCmd.MarkFlagsMutuallyExclusive("image", "pick-image")
}

func runGenerate(cmd *cobra.Command, args []string) {
	startTime := time.Now()
	cfg := loadConfig(cmd)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	client := cli.InitClient(ctx, cfg)
	ctrl, closeMetrics := cli.InitSession(cfg, client)
	defer closeMetrics()

	logging.NewStartupLogger("imagegen").
		Version(version).
		Endpoint("api", cfg.APIBaseURL).
		Endpoint("results", cfg.ResultBaseURL).
		Feature("tui", tuiFlag).
		Feature("metrics", cfg.MetricsFile != "").
		Config("mode", cfg.Mode).
		Config("pollInterval", cfg.PollInterval.String()).
		Config("requestTimeout", cfg.RequestTimeout.String()).
		InitDuration(time.Since(startTime)).
		Log()

	f := buildForm()
	if err := attachImage(f); err != nil {
		cli.ExitOnError(err)
	}

	if cfg.Mode == config.ModePoll {
		if _, err := ctrl.LoadLoras(ctx); err != nil {
			log.Warn().Err(err).Msg("Could not load LoRA catalog, submitting selection unfiltered")
		}
	}

	if err := ctrl.Submit(ctx, f); err != nil {
		cli.ExitOnError(err)
	}

	var snap session.Snapshot
	var err error
	if tuiFlag {
		snap, err = tui.Run(ctx, ctrl, f.Values().Prompt)
	} else {
		snap, err = followProgress(ctx, ctrl)
	}
	if err != nil {
		cli.ExitOnError(err)
	}

	switch snap.State {
	case session.StateCompleted:
		log.Info().Str("jobId", snap.JobID).Str("elapsed", cli.FormatDurationShort(time.Since(startTime))).Msg("Image ready")
		fmt.Println(snap.ImageURL)
	default:
		cli.ExitOnError(context.Canceled)
	}
}

// buildForm applies the generate flags to a fresh form, asking for the
// prompt when none was given.
func buildForm() *form.Form {
	f := form.New()
	prompt := promptFlag
	if prompt == "" {
		prompt = cli.PromptForText("Prompt", "")
	}
	f.SetPrompt(prompt)
	f.SetNegativePrompt(negativePromptFlag)
	f.SetSteps(stepsFlag)
	f.SetGuidanceScale(guidanceScaleFlag)
	f.SetStrength(strengthFlag)
	f.SetAspectRatio(aspectRatioFlag)
	f.SetModelType(modelTypeFlag)
	f.SetLoras(lorasFlag)

	v := f.Values()
	if v.Steps != stepsFlag || v.GuidanceScale != guidanceScaleFlag || v.Strength != strengthFlag {
		log.Info().
			Int("steps", v.Steps).
			Float64("guidanceScale", v.GuidanceScale).
			Float64("strength", v.Strength).
			Msg("Adjusted values to the allowed ranges")
	}
	return f
}

func attachImage(f *form.Form) error {
	switch {
	case imageFlag != "":
		return f.LoadInitImage(imageFlag)
	case pickImageFlag:
		path, err := f.PickInitImage()
		if errors.Is(err, form.ErrNoImage) {
			log.Info().Msg("No seed image selected, continuing without one")
			return nil
		}
		if err != nil {
			return err
		}
		log.Info().Str("path", path).Msg("Seed image selected")
	}
	return nil
}

// followProgress prints a progress line to stderr until the generation ends.
func followProgress(ctx context.Context, ctrl *session.Controller) (session.Snapshot, error) {
	updates, stop := ctrl.Subscribe()
	defer stop()

	start := time.Now()
	snap := ctrl.Snapshot()
	for snap.Generating() {
		select {
		case snap = <-updates:
			fmt.Fprintf(os.Stderr, "\r%s", cli.FormatProgressLine(snap.Progress, time.Since(start)))
		case <-ctx.Done():
			fmt.Fprintln(os.Stderr)
			return ctrl.Wait(ctx)
		}
	}
	fmt.Fprintln(os.Stderr)
	return ctrl.Wait(ctx)
}
