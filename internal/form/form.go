// Package form collects generation parameters and turns them into request
// payloads for either progress contract.
//
// Numeric setters behave like range inputs: values outside the allowed range
// are clamped, never stored. The only submission rule is that the prompt must
// contain something other than whitespace.
package form

import (
	"math"
	"strings"

	"github.com/mando222/ai-image-gen/internal/genapi"
	"github.com/mcuadros/go-defaults"
)

// Input bounds and slider granularity.
const (
	MinSteps = 1
	MaxSteps = 100

	MinGuidanceScale = 1.0
	MaxGuidanceScale = 20.0

	MinStrength = 0.0
	MaxStrength = 1.0

	// Slider steps of 0.1 and 0.01, as divisors.
	guidanceScalePrecision = 10
	strengthPrecision      = 100
)

// Values is a snapshot of every field. Default tags are the initial state of
// a fresh form.
type Values struct {
	Prompt         string
	NegativePrompt string
	Steps          int     `default:"28"`
	GuidanceScale  float64 `default:"7.0"`
	Strength       float64 `default:"0.8"`
	AspectRatio    string  `default:"1:1"`
	ModelType      string  `default:"fast"`
	Loras          []string
	// InitImage is base64 without a data URL prefix; empty when no image is attached.
	InitImage string
}

// Form holds the current field values. The zero value is not usable; call New.
type Form struct {
	v Values
}

// New returns a form populated with defaults.
func New() *Form {
	var v Values
	defaults.SetDefaults(&v)
	return &Form{v: v}
}

// Values returns a copy of the current field values.
func (f *Form) Values() Values {
	v := f.v
	v.Loras = append([]string(nil), f.v.Loras...)
	return v
}

func (f *Form) SetPrompt(s string)         { f.v.Prompt = s }
func (f *Form) SetNegativePrompt(s string) { f.v.NegativePrompt = s }

// SetSteps stores n clamped to [MinSteps, MaxSteps].
func (f *Form) SetSteps(n int) {
	f.v.Steps = min(max(n, MinSteps), MaxSteps)
}

// SetGuidanceScale stores g clamped to [1, 20] on a 0.1 grid.
func (f *Form) SetGuidanceScale(g float64) {
	f.v.GuidanceScale = snap(clamp(g, MinGuidanceScale, MaxGuidanceScale), guidanceScalePrecision)
}

// SetStrength stores s clamped to [0, 1] on a 0.01 grid.
func (f *Form) SetStrength(s float64) {
	f.v.Strength = snap(clamp(s, MinStrength, MaxStrength), strengthPrecision)
}

func (f *Form) SetAspectRatio(r string) {
	if r = strings.TrimSpace(r); r != "" {
		f.v.AspectRatio = r
	}
}

// SetModelType switches between the fast and slow model. Unknown values
// select the slow model, matching how the LoRA groups are chosen.
func (f *Form) SetModelType(m string) {
	if m == genapi.ModelFast {
		f.v.ModelType = genapi.ModelFast
		return
	}
	f.v.ModelType = genapi.ModelSlow
}

// SetLoras replaces the selected LoRA ids, dropping blanks and duplicates.
func (f *Form) SetLoras(ids []string) {
	seen := make(map[string]bool, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		id = strings.TrimSpace(id)
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	f.v.Loras = out
}

// ActiveLoras returns the selected ids that belong to the group for the
// current model type. With nil groups the selection is returned unfiltered.
func (f *Form) ActiveLoras(groups *genapi.LoraGroups) []string {
	if groups == nil {
		return append([]string{}, f.v.Loras...)
	}
	out := make([]string, 0, len(f.v.Loras))
	for _, id := range f.v.Loras {
		if groups.Contains(f.v.ModelType, id) {
			out = append(out, id)
		}
	}
	return out
}

// CanSubmit reports whether the submit action should be enabled.
func (f *Form) CanSubmit() bool {
	return f.Validate() == nil
}

// Validate returns a *ValidationError when the form cannot be submitted.
func (f *Form) Validate() error {
	if strings.TrimSpace(f.v.Prompt) == "" {
		return &ValidationError{Field: "prompt", Message: "Please enter a prompt"}
	}
	return nil
}

// StreamRequest builds the payload for the streaming contract.
func (f *Form) StreamRequest() (*genapi.GenerateRequest, error) {
	if err := f.Validate(); err != nil {
		return nil, err
	}
	return &genapi.GenerateRequest{
		Prompt:         f.v.Prompt,
		NegativePrompt: f.v.NegativePrompt,
		Steps:          f.v.Steps,
		GuidanceScale:  f.v.GuidanceScale,
		Strength:       f.v.Strength,
		InitImage:      f.v.InitImage,
	}, nil
}

// PollRequest builds the payload for the polling contract. Only LoRAs from
// the active group are sent.
func (f *Form) PollRequest(groups *genapi.LoraGroups) (*genapi.SubmitRequest, error) {
	if err := f.Validate(); err != nil {
		return nil, err
	}
	return &genapi.SubmitRequest{
		Prompt:      f.v.Prompt,
		AspectRatio: f.v.AspectRatio,
		ModelType:   f.v.ModelType,
		Loras:       f.ActiveLoras(groups),
	}, nil
}

func clamp(v, lo, hi float64) float64 {
	if math.IsNaN(v) {
		return lo
	}
	return math.Min(math.Max(v, lo), hi)
}

func snap(v, precision float64) float64 {
	return math.Round(v*precision) / precision
}
