package cli

import (
	"context"
	"os"
	"time"

	"github.com/mando222/ai-image-gen/internal/config"
	"github.com/mando222/ai-image-gen/internal/genapi"
	"github.com/mando222/ai-image-gen/internal/progress"
	"github.com/mando222/ai-image-gen/internal/session"
	"github.com/rs/zerolog/log"
)

// aliveTimeout bounds the startup liveness probe.
const aliveTimeout = 3 * time.Second

// InitClient validates cfg and creates a service client. Exits fatally on a
// bad configuration. An unreachable service is only a warning: the service
// may not answer on its root path.
func InitClient(ctx context.Context, cfg *config.Config) *genapi.Client {
	if err := cfg.Validate(); err != nil {
		log.Fatal().Err(err).Msg("Invalid configuration")
	}

	client := genapi.NewClient(cfg.APIBaseURL, genapi.WithTimeout(cfg.RequestTimeout))

	probeCtx, cancel := context.WithTimeout(ctx, aliveTimeout)
	defer cancel()
	if client.Alive(probeCtx) {
		log.Info().Str("url", cfg.APIBaseURL).Msg("Generation service reachable")
	} else {
		log.Warn().Str("url", cfg.APIBaseURL).Msg("Generation service did not answer a liveness probe; continuing")
	}
	return client
}

// NewSource returns the progress source for cfg.Mode.
func NewSource(cfg *config.Config, client *genapi.Client) progress.Source {
	if cfg.Mode == config.ModePoll {
		return &progress.PollSource{
			Client:        client,
			ResultBaseURL: cfg.ResultBaseURL,
			Interval:      cfg.PollInterval,
		}
	}
	return &progress.StreamSource{Client: client, ResultBaseURL: cfg.ResultBaseURL}
}

// InitSession builds the session controller for cfg. The returned func
// closes the metrics file, if one was opened.
func InitSession(cfg *config.Config, client *genapi.Client) (*session.Controller, func()) {
	opts := []session.Option{
		session.WithResultBaseURL(cfg.ResultBaseURL),
		session.WithLoraCacheTTL(cfg.LoraCacheTTL),
	}

	closeFn := func() {}
	if cfg.MetricsFile != "" {
		f, err := os.OpenFile(cfg.MetricsFile, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
		if err != nil {
			log.Fatal().Err(err).Str("path", cfg.MetricsFile).Msg("Failed to open metrics file")
		}
		opts = append(opts, session.WithMetrics(f))
		closeFn = func() {
			if err := f.Close(); err != nil {
				log.Warn().Err(err).Msg("Failed to close metrics file")
			}
		}
	}

	return session.New(client, NewSource(cfg, client), opts...), closeFn
}
