package form

import (
	"encoding/base64"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/ncruces/zenity"
	"github.com/rs/zerolog/log"
)

// ErrNoImage is returned by PickInitImage when the dialog was dismissed.
var ErrNoImage = errors.New("no image selected")

// selectFile opens the native picker. Replaced in tests.
var selectFile = func() (string, error) {
	return zenity.SelectFile(
		zenity.Title("Select a seed image"),
		zenity.FileFilters{
			{
				Name:     "Images",
				Patterns: []string{"*.png", "*.jpg", "*.jpeg", "*.webp", "*.gif", "*.bmp"},
			},
		},
	)
}

// LoadInitImage reads a local file and attaches it as the seed image. Type
// and size are not checked here; the service decides what it accepts.
func (f *Form) LoadInitImage(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read seed image %s: %w", path, err)
	}
	f.v.InitImage = base64.StdEncoding.EncodeToString(data)
	log.Debug().Str("path", path).Int("bytes", len(data)).Msg("Seed image attached")
	return nil
}

// PickInitImage asks the user for a seed image through a native file dialog.
// A cancelled dialog leaves the form unchanged and returns ErrNoImage.
func (f *Form) PickInitImage() (string, error) {
	path, err := selectFile()
	if err != nil {
		if errors.Is(err, zenity.ErrCanceled) {
			return "", ErrNoImage
		}
		return "", fmt.Errorf("file picker failed: %w", err)
	}
	if err := f.LoadInitImage(path); err != nil {
		return "", err
	}
	return path, nil
}

// SetInitImage attaches already-encoded image data. A data URL prefix such as
// "data:image/png;base64," is stripped.
func (f *Form) SetInitImage(b64 string) {
	if strings.HasPrefix(b64, "data:") {
		if i := strings.Index(b64, ","); i >= 0 {
			b64 = b64[i+1:]
		}
	}
	f.v.InitImage = b64
}

// ClearInitImage detaches the seed image.
func (f *Form) ClearInitImage() {
	f.v.InitImage = ""
}

// HasInitImage reports whether a seed image is attached.
func (f *Form) HasInitImage() bool {
	return f.v.InitImage != ""
}
