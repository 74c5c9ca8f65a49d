package genapi

import (
	"fmt"
	"net/url"
	"strings"
)

// ResolveImageURL turns an image reference from the service into an absolute
// URL. Absolute references and data URLs are returned unchanged; relative
// paths such as "out/1.png" or "/images/1.png" are joined onto base.
func ResolveImageURL(base, ref string) (string, error) {
	if ref == "" {
		return "", fmt.Errorf("empty image reference")
	}
	if strings.HasPrefix(ref, "data:") {
		return ref, nil
	}

	refURL, err := url.Parse(ref)
	if err != nil {
		return "", fmt.Errorf("parse image reference %q: %w", ref, err)
	}
	if refURL.IsAbs() {
		return ref, nil
	}

	baseURL, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("parse result base URL %q: %w", base, err)
	}
	// Treat the base as a directory so "out/1.png" lands beneath it.
	if !strings.HasSuffix(baseURL.Path, "/") {
		baseURL.Path += "/"
	}
	return baseURL.ResolveReference(refURL).String(), nil
}

// InlineImageURL wraps a base64 PNG payload as a data URL.
func InlineImageURL(b64 string) string {
	return "data:image/png;base64," + b64
}
