package progress

import (
	"context"
	"time"

	"github.com/mando222/ai-image-gen/internal/genapi"
	"github.com/rs/zerolog/log"
)

// DefaultPollInterval is the delay between status queries.
const DefaultPollInterval = time.Second

// failedMessage is shown when the service marks a job failed without detail.
const failedMessage = "Image generation failed"

// Poller is the part of genapi.Client used by PollSource.
type Poller interface {
	Submit(ctx context.Context, req *genapi.SubmitRequest) (string, error)
	Status(ctx context.Context, jobID string) (*genapi.JobStatus, error)
}

// PollSource submits a job and queries its status on a fixed interval.
// A failed status query is logged and retried on the next tick; it never ends
// the job by itself.
type PollSource struct {
	Client        Poller
	ResultBaseURL string
	Interval      time.Duration
}

func (p *PollSource) Name() string { return "poll" }

func (p *PollSource) Run(ctx context.Context, sub Submission, events chan<- Event) {
	req, err := sub.Form.PollRequest(sub.Loras)
	if err != nil {
		fail(ctx, events, "", err)
		return
	}

	jobID, err := p.Client.Submit(ctx, req)
	if err != nil {
		if ctx.Err() == nil {
			fail(ctx, events, "", err)
		}
		return
	}
	if !emit(ctx, events, Event{Kind: EventStarted, JobID: jobID}) {
		return
	}

	interval := p.Interval
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Debug().Str("jobId", jobID).Msg("Polling cancelled")
			return
		case <-ticker.C:
		}

		status, err := p.Client.Status(ctx, jobID)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			log.Warn().Err(err).Str("jobId", jobID).Msg("Status poll error, retrying on next tick")
			if !emit(ctx, events, Event{Kind: EventTickError, JobID: jobID, Err: err}) {
				return
			}
			continue
		}

		if !emit(ctx, events, Event{Kind: EventProgress, JobID: jobID, Percent: status.Progress}) {
			return
		}

		switch status.Status {
		case genapi.StatusCompleted:
			if status.ImageURL == "" {
				log.Debug().Str("jobId", jobID).Msg("Job completed but no image URL yet")
				continue
			}
			url, err := genapi.ResolveImageURL(p.ResultBaseURL, status.ImageURL)
			if err != nil {
				fail(ctx, events, jobID, err)
				return
			}
			emit(ctx, events, Event{Kind: EventCompleted, JobID: jobID, ImageURL: url})
			return

		case genapi.StatusFailed:
			msg := status.Error
			if msg == "" {
				msg = failedMessage
			}
			fail(ctx, events, jobID, &genapi.ServiceError{StatusCode: 200, Message: msg})
			return

		case genapi.StatusPending, "":
			log.Debug().Str("jobId", jobID).Float64("progress", status.Progress).Dur("nextPoll", interval).Msg("Job still running")

		default:
			log.Warn().Str("jobId", jobID).Str("status", status.Status).Msg("Unknown job status")
		}
	}
}
