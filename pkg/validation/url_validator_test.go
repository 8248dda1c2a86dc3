package validation

import (
	"testing"

	apperrors "github.com/anime-shed/bookscan-go/internal/errors"
)

func TestNewURLValidator(t *testing.T) {
	validator := NewURLValidator()
	if validator == nil {
		t.Fatal("Expected non-nil URL validator")
	}

	expectedSchemes := []string{"http", "https"}
	if len(validator.allowedSchemes) != len(expectedSchemes) {
		t.Errorf("Expected %d schemes, got %d", len(expectedSchemes), len(validator.allowedSchemes))
	}
}

func TestValidateImageURL_Kinds(t *testing.T) {
	validator := NewURLValidator()

	tests := []struct {
		url  string
		want SourceKind
	}{
		{"http://example.com/cover.jpg", SourceHTTP},
		{"https://cdn.example.com/scans/info.png", SourceHTTP},
		{"http://192.168.1.1:8000/price.jpg", SourceHTTP},
		{"https://acct.blob.core.windows.net/scans/abc/cover.jpg", SourceBlob},
		{"HTTPS://ACCT.BLOB.CORE.WINDOWS.NET/scans/x.png", SourceBlob},
	}

	for _, tt := range tests {
		t.Run(tt.url, func(t *testing.T) {
			got, err := validator.ValidateImageURL(tt.url)
			if err != nil {
				t.Fatalf("Expected %s to pass validation, got error: %v", tt.url, err)
			}
			if got != tt.want {
				t.Errorf("ValidateImageURL(%s) = %s, want %s", tt.url, got, tt.want)
			}
		})
	}
}

func TestValidateImageURL_Invalid(t *testing.T) {
	validator := NewURLValidator()

	invalid := []string{
		"",
		"   ",
		"ftp://example.com/cover.jpg",
		"file:///etc/passwd",
		"http://",
		"://missing-scheme",
	}

	for _, u := range invalid {
		_, err := validator.ValidateImageURL(u)
		if err == nil {
			t.Errorf("Expected %q to fail validation", u)
			continue
		}
		if !apperrors.IsType(err, apperrors.ErrorTypeValidation) {
			t.Errorf("Expected validation error for %q, got %v", u, err)
		}
	}
}

func TestValidateImageURL_HostRestrictions(t *testing.T) {
	validator := NewURLValidatorWithOptions([]string{"https"}, []string{"images.example.com"})

	if _, err := validator.ValidateImageURL("https://images.example.com/a.jpg"); err != nil {
		t.Errorf("Expected allowed host to pass, got %v", err)
	}
	if _, err := validator.ValidateImageURL("https://Images.Example.com/a.jpg"); err != nil {
		t.Errorf("Expected host match to ignore case, got %v", err)
	}
	if _, err := validator.ValidateImageURL("https://evil.example.com/a.jpg"); err == nil {
		t.Error("Expected disallowed host to fail")
	}
	if _, err := validator.ValidateImageURL("http://images.example.com/a.jpg"); err == nil {
		t.Error("Expected http scheme to fail when only https is allowed")
	}
}
