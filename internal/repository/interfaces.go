package repository

import (
	"context"
)

// ContentRepository resolves content references into bytes
type ContentRepository interface {
	// Resolve fetches the referenced content and hashes it
	Resolve(ctx context.Context, ref string) (*Content, error)

	// ValidateContentRef validates if the provided reference is acceptable
	ValidateContentRef(ref string) error
}

// Content is resolved content ready for analysis
type Content struct {
	Ref      string
	Data     []byte
	MimeType string
	// Hash is the hex sha256 of Data
	Hash string
}
