package validation

import (
	"net/url"
	"strings"

	apperrors "github.com/anime-shed/content-analyzer-go/internal/errors"
)

// SchemeAzureBlob addresses content as azblob://container/blob
const SchemeAzureBlob = "azblob"

// ContentRefValidator handles content reference validation logic
type ContentRefValidator struct {
	allowedSchemes []string
	allowedHosts   []string
}

// NewContentRefValidator creates a validator accepting http, https and azblob references
func NewContentRefValidator() *ContentRefValidator {
	return &ContentRefValidator{
		allowedSchemes: []string{"http", "https", SchemeAzureBlob},
		allowedHosts:   []string{}, // empty means all hosts allowed
	}
}

// NewContentRefValidatorWithOptions creates a validator with custom options.
// For azblob references the host list restricts containers.
func NewContentRefValidatorWithOptions(schemes []string, hosts []string) *ContentRefValidator {
	return &ContentRefValidator{
		allowedSchemes: schemes,
		allowedHosts:   hosts,
	}
}

// ValidateContentRef validates if the provided reference can be resolved
func (v *ContentRefValidator) ValidateContentRef(ref string) error {
	if strings.TrimSpace(ref) == "" {
		return apperrors.NewValidationError("content reference cannot be empty", nil)
	}

	parsed, err := url.Parse(strings.TrimSpace(ref))
	if err != nil {
		return apperrors.NewValidationError("invalid content reference format", err)
	}

	if !v.isSchemeAllowed(parsed.Scheme) {
		return apperrors.NewValidationError("content reference scheme not allowed", nil)
	}

	if parsed.Host == "" {
		return apperrors.NewValidationError("content reference must have a valid host", nil)
	}

	if parsed.Scheme == SchemeAzureBlob && strings.Trim(parsed.Path, "/") == "" {
		return apperrors.NewValidationError("azblob reference must name a blob", nil)
	}

	if !v.isHostAllowed(parsed.Hostname()) {
		return apperrors.NewValidationError("content reference host not allowed", nil)
	}

	return nil
}

// isSchemeAllowed checks if the scheme is in the allowed list
func (v *ContentRefValidator) isSchemeAllowed(scheme string) bool {
	for _, allowed := range v.allowedSchemes {
		if strings.EqualFold(scheme, allowed) {
			return true
		}
	}
	return false
}

// isHostAllowed checks if the host is in the allowed list
// Returns true if no host restrictions are set (empty allowedHosts)
func (v *ContentRefValidator) isHostAllowed(host string) bool {
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
