package cli

import (
	"context"
	"errors"

	"github.com/mando222/ai-image-gen/internal/form"
	"github.com/mando222/ai-image-gen/internal/genapi"
	"github.com/mando222/ai-image-gen/internal/session"
	"github.com/rs/zerolog/log"
)

// UserMessage turns any error from the generation workflow into the single
// message shown to the user.
func UserMessage(err error) string {
	if err == nil {
		return ""
	}

	var validationErr *form.ValidationError
	var serviceErr *genapi.ServiceError
	var transportErr *genapi.TransportError
	var decodeErr *genapi.DecodeError

	switch {
	case errors.As(err, &validationErr):
		return validationErr.Message
	case errors.Is(err, session.ErrBusy):
		return "A generation is already running. Wait for it to finish."
	case errors.Is(err, context.Canceled):
		return "Generation cancelled."
	case errors.Is(err, context.DeadlineExceeded):
		return "Timed out waiting for the generation service."
	case errors.As(err, &serviceErr):
		return serviceErr.Error()
	case errors.As(err, &decodeErr):
		return "The generation service sent a response that could not be read."
	case errors.As(err, &transportErr):
		return "Could not reach the generation service. Check that it is running and IMAGEGEN_API_URL is correct."
	case errors.Is(err, form.ErrNoImage):
		return "No image selected."
	default:
		return err.Error()
	}
}

// ExitOnError logs the user message for err and exits non-zero. It returns
// normally when err is nil.
func ExitOnError(err error) {
	if err == nil {
		return
	}
	log.Fatal().Err(err).Msg(UserMessage(err))
}
