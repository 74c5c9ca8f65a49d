package main

import (
	"context"
	"errors"

	"github.com/mando222/ai-image-gen/internal/cli"
	"github.com/mando222/ai-image-gen/internal/config"
	"github.com/mando222/ai-image-gen/internal/form"
	"github.com/mando222/ai-image-gen/internal/genapi"
	"github.com/mando222/ai-image-gen/internal/session"
	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/rs/zerolog/log"
)

type generateInput struct {
	Prompt         string   `json:"prompt" jsonschema:"what to generate"`
	NegativePrompt string   `json:"negativePrompt,omitempty" jsonschema:"what to avoid"`
	Steps          *int     `json:"steps,omitempty" jsonschema:"sampling steps, 1 to 100, default 28"`
	GuidanceScale  *float64 `json:"guidanceScale,omitempty" jsonschema:"guidance scale, 1 to 20, default 7"`
	Strength       *float64 `json:"strength,omitempty" jsonschema:"seed image strength, 0 to 1, default 0.8"`
	AspectRatio    string   `json:"aspectRatio,omitempty" jsonschema:"aspect ratio such as 1:1 or 16:9"`
	ModelType      string   `json:"modelType,omitempty" jsonschema:"fast or slow"`
	Loras          []string `json:"loras,omitempty" jsonschema:"LoRA ids from list_loras for the chosen model type"`
	InitImagePath  string   `json:"initImagePath,omitempty" jsonschema:"local path of a seed image"`
}

type generateOutput struct {
	ImageURL string `json:"imageUrl"`
	JobID    string `json:"jobId,omitempty"`
}

type listLorasInput struct {
	ModelType string `json:"modelType,omitempty" jsonschema:"fast or slow; omit to list both"`
}

type listLorasOutput struct {
	Fast []genapi.Lora `json:"fast"`
	Slow []genapi.Lora `json:"slow"`
}

type listImagesInput struct{}

type listImagesOutput struct {
	Images []string `json:"images"`
}

// controller is the part of session.Controller the tools use.
type controller interface {
	Start(ctx context.Context, f *form.Form) (uint64, error)
	WaitRun(ctx context.Context, id uint64) (session.Snapshot, error)
	CancelRun(id uint64)
	LoadLoras(ctx context.Context) (*genapi.LoraGroups, error)
	LoadGallery(ctx context.Context) ([]string, error)
}

type tools struct {
	ctrl controller
	mode string
}

func newServer(t *tools) *mcp.Server {
	server := mcp.NewServer(&mcp.Implementation{Name: "imagegen", Version: version}, nil)
	mcp.AddTool(server, &mcp.Tool{
		Name:        "generate_image",
		Description: "Generate one image from a prompt and return its URL. Blocks until the image is ready.",
	}, t.generateImage)
	mcp.AddTool(server, &mcp.Tool{
		Name:        "list_loras",
		Description: "List LoRA add-ons grouped by model type.",
	}, t.listLoras)
	mcp.AddTool(server, &mcp.Tool{
		Name:        "list_images",
		Description: "List URLs of images the service already holds, newest generated first.",
	}, t.listImages)
	return server
}

func (t *tools) generateImage(ctx context.Context, req *mcp.CallToolRequest, in generateInput) (*mcp.CallToolResult, generateOutput, error) {
	f := form.New()
	f.SetPrompt(in.Prompt)
	f.SetNegativePrompt(in.NegativePrompt)
	if in.Steps != nil {
		f.SetSteps(*in.Steps)
	}
	if in.GuidanceScale != nil {
		f.SetGuidanceScale(*in.GuidanceScale)
	}
	if in.Strength != nil {
		f.SetStrength(*in.Strength)
	}
	f.SetAspectRatio(in.AspectRatio)
	if in.ModelType != "" {
		f.SetModelType(in.ModelType)
	}
	f.SetLoras(in.Loras)
	if in.InitImagePath != "" {
		if err := f.LoadInitImage(in.InitImagePath); err != nil {
			return nil, generateOutput{}, toolError(err)
		}
	}

	if t.mode == config.ModePoll {
		if _, err := t.ctrl.LoadLoras(ctx); err != nil {
			log.Warn().Err(err).Msg("Could not load LoRA catalog, submitting selection unfiltered")
		}
	}

	id, err := t.ctrl.Start(ctx, f)
	if err != nil {
		return nil, generateOutput{}, toolError(err)
	}
	snap, err := t.ctrl.WaitRun(ctx, id)
	if err != nil {
		if ctx.Err() != nil {
			t.ctrl.CancelRun(id)
		}
		return nil, generateOutput{}, toolError(err)
	}
	if snap.State != session.StateCompleted {
		return nil, generateOutput{}, toolError(context.Canceled)
	}
	return nil, generateOutput{ImageURL: snap.ImageURL, JobID: snap.JobID}, nil
}

func (t *tools) listLoras(ctx context.Context, req *mcp.CallToolRequest, in listLorasInput) (*mcp.CallToolResult, listLorasOutput, error) {
	groups, err := t.ctrl.LoadLoras(ctx)
	if err != nil {
		return nil, listLorasOutput{}, toolError(err)
	}
	out := listLorasOutput{Fast: []genapi.Lora{}, Slow: []genapi.Lora{}}
	if in.ModelType == "" || in.ModelType == genapi.ModelFast {
		out.Fast = append(out.Fast, groups.Fast...)
	}
	if in.ModelType == "" || in.ModelType == genapi.ModelSlow {
		out.Slow = append(out.Slow, groups.Slow...)
	}
	return nil, out, nil
}

func (t *tools) listImages(ctx context.Context, req *mcp.CallToolRequest, in listImagesInput) (*mcp.CallToolResult, listImagesOutput, error) {
	gallery, err := t.ctrl.LoadGallery(ctx)
	if err != nil {
		return nil, listImagesOutput{}, toolError(err)
	}
	return nil, listImagesOutput{Images: gallery}, nil
}

// toolError reports err to the MCP client as the user-facing message.
func toolError(err error) error {
	log.Error().Err(err).Msg("Tool call failed")
	return errors.New(cli.UserMessage(err))
}
