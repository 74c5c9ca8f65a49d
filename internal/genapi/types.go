package genapi

// GenerateRequest is the body of POST /generate (streaming contract).
type GenerateRequest struct {
	Prompt         string  `json:"prompt"`
	NegativePrompt string  `json:"negative_prompt,omitempty"`
	Steps          int     `json:"steps"`
	GuidanceScale  float64 `json:"guidance_scale"`
	Strength       float64 `json:"strength"`
	// InitImage is the base64-encoded seed image, without a data URL prefix.
	InitImage string `json:"init_image,omitempty"`
}

// SubmitRequest is the body of POST /api/generate (polling contract).
type SubmitRequest struct {
	Prompt      string   `json:"prompt"`
	AspectRatio string   `json:"aspectRatio"`
	ModelType   string   `json:"modelType"`
	Loras       []string `json:"loras"`
}

// submitResponse is either {jobId} or {error}.
type submitResponse struct {
	JobID string `json:"jobId"`
	Error string `json:"error,omitempty"`
}

// Job status values reported by GET /api/status/:jobId.
const (
	StatusPending   = "pending"
	StatusCompleted = "completed"
	StatusFailed    = "failed"
)

// JobStatus is the response of GET /api/status/:jobId.
type JobStatus struct {
	Progress float64 `json:"progress"`
	Status   string  `json:"status"`
	ImageURL string  `json:"imageUrl,omitempty"`
	Error    string  `json:"error,omitempty"`
}

// Terminal reports whether the job has finished one way or the other.
// A completed status without an image URL is not terminal.
func (s *JobStatus) Terminal() bool {
	return s.Status == StatusFailed || (s.Status == StatusCompleted && s.ImageURL != "")
}

// Model types, which also name the LoRA groups.
const (
	ModelFast = "fast"
	ModelSlow = "slow"
)

// Lora is one selectable LoRA add-on.
type Lora struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// LoraGroups is the response of GET /api/loras.
type LoraGroups struct {
	Fast []Lora `json:"fast"`
	Slow []Lora `json:"slow"`
}

// For returns the group used by the given model type. Anything other than
// "fast" selects the slow group.
func (g *LoraGroups) For(modelType string) []Lora {
	if g == nil {
		return nil
	}
	if modelType == ModelFast {
		return g.Fast
	}
	return g.Slow
}

// Contains reports whether id is in the group for modelType.
func (g *LoraGroups) Contains(modelType, id string) bool {
	for _, l := range g.For(modelType) {
		if l.ID == id {
			return true
		}
	}
	return false
}

// Frame is one `data:` event from the streaming endpoint. Exactly one field
// is expected to be set.
type Frame struct {
	Progress  *float64 `json:"progress,omitempty"`
	ImagePath string   `json:"image_path,omitempty"`
	// Image carries an inline base64 PNG from services that do not write
	// results to disk.
	Image string `json:"image,omitempty"`
	Error string `json:"error,omitempty"`
}
