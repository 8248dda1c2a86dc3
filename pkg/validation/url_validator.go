package validation

import (
	"net/url"
	"strings"

	apperrors "github.com/anime-shed/bookscan-go/internal/errors"
)

// SourceKind tells the caller which fetcher should handle an image URL
type SourceKind string

const (
	SourceHTTP SourceKind = "http"
	SourceBlob SourceKind = "blob"
)

const blobHostSuffix = ".blob.core.windows.net"

// URLValidator handles URL validation logic
type URLValidator struct {
	allowedSchemes []string
	allowedHosts   []string
}

// NewURLValidator creates a new URL validator with default settings
func NewURLValidator() *URLValidator {
	return &URLValidator{
		allowedSchemes: []string{"http", "https"},
		allowedHosts:   []string{}, // empty means all hosts allowed
	}
}

// NewURLValidatorWithOptions creates a URL validator with custom options
func NewURLValidatorWithOptions(schemes []string, hosts []string) *URLValidator {
	return &URLValidator{
		allowedSchemes: schemes,
		allowedHosts:   hosts,
	}
}

// ValidateImageURL checks the URL and reports whether it points at Azure blob
// storage or a plain HTTP server.
func (v *URLValidator) ValidateImageURL(imageURL string) (SourceKind, error) {
	if strings.TrimSpace(imageURL) == "" {
		return "", apperrors.NewValidationError("image_url cannot be empty", nil)
	}

	parsedURL, err := url.Parse(imageURL)
	if err != nil {
		return "", apperrors.NewValidationError("Invalid URL format", err)
	}

	if !v.isSchemeAllowed(strings.ToLower(parsedURL.Scheme)) {
		return "", apperrors.NewValidationError("URL scheme not allowed", nil)
	}

	if parsedURL.Hostname() == "" {
		return "", apperrors.NewValidationError("URL must have a valid host", nil)
	}

	if !v.isHostAllowed(parsedURL.Hostname()) {
		return "", apperrors.NewValidationError("URL host not allowed", nil)
	}

	if strings.HasSuffix(strings.ToLower(parsedURL.Hostname()), blobHostSuffix) {
		return SourceBlob, nil
	}
	return SourceHTTP, nil
}

func (v *URLValidator) isSchemeAllowed(scheme string) bool {
	for _, allowed := range v.allowedSchemes {
		if scheme == allowed {
			return true
		}
	}
	return false
}

// isHostAllowed returns true if no host restrictions are set
func (v *URLValidator) isHostAllowed(host string) bool {
	if len(v.allowedHosts) == 0 {
		return true
	}
	for _, allowed := range v.allowedHosts {
		if strings.EqualFold(host, allowed) {
			return true
		}
	}
	return false
}
