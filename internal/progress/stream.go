package progress

import (
	"context"
	"errors"
	"io"

	"github.com/mando222/ai-image-gen/internal/genapi"
	"github.com/rs/zerolog/log"
)

// errStreamEnded is reported when the service closes the stream without an
// image or error frame.
var errStreamEnded = errors.New("stream ended before an image was produced")

// Streamer is the part of genapi.Client used by StreamSource.
type Streamer interface {
	Stream(ctx context.Context, req *genapi.GenerateRequest) (*genapi.FrameReader, error)
}

// StreamSource reads progress from a streamed POST /generate response. Any
// read or decode failure ends the generation.
type StreamSource struct {
	Client        Streamer
	ResultBaseURL string
}

func (s *StreamSource) Name() string { return "stream" }

func (s *StreamSource) Run(ctx context.Context, sub Submission, events chan<- Event) {
	req, err := sub.Form.StreamRequest()
	if err != nil {
		fail(ctx, events, "", err)
		return
	}

	frames, err := s.Client.Stream(ctx, req)
	if err != nil {
		if ctx.Err() == nil {
			fail(ctx, events, "", err)
		}
		return
	}
	defer frames.Close()

	if !emit(ctx, events, Event{Kind: EventStarted}) {
		return
	}

	for {
		frame, err := frames.Next()
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			if errors.Is(err, io.EOF) {
				err = &genapi.TransportError{Op: "read stream", Err: errStreamEnded}
			}
			log.Error().Err(err).Msg("Stream read failed")
			fail(ctx, events, "", err)
			return
		}

		switch {
		case frame.Error != "":
			fail(ctx, events, "", &genapi.ServiceError{StatusCode: 200, Message: frame.Error})
			return

		case frame.ImagePath != "":
			url, err := genapi.ResolveImageURL(s.ResultBaseURL, frame.ImagePath)
			if err != nil {
				fail(ctx, events, "", err)
				return
			}
			emit(ctx, events, Event{Kind: EventCompleted, ImageURL: url})
			return

		case frame.Image != "":
			emit(ctx, events, Event{Kind: EventCompleted, ImageURL: genapi.InlineImageURL(frame.Image)})
			return

		case frame.Progress != nil:
			if !emit(ctx, events, Event{Kind: EventProgress, Percent: *frame.Progress}) {
				return
			}

		default:
			log.Debug().Msg("Ignoring empty stream frame")
		}
	}
}
