package domain

import (
	"errors"
	"fmt"
)

// ErrEmptyDraft marks a draft that must be dropped instead of stored.
var ErrEmptyDraft = errors.New("empty draft")

// ViabilityPolicy decides whether a draft is worth storing.
type ViabilityPolicy string

const (
	// PolicyRequireImage stores drafts that have an image and a publisher URL.
	PolicyRequireImage ViabilityPolicy = "require_image"
	// PolicyAnyContent drops drafts only when image, title and content are all missing.
	PolicyAnyContent ViabilityPolicy = "any_content"
)

// ParseViabilityPolicy returns the policy named by s. An empty string selects PolicyRequireImage.
func ParseViabilityPolicy(s string) (ViabilityPolicy, error) {
	switch ViabilityPolicy(s) {
	case "", PolicyRequireImage:
		return PolicyRequireImage, nil
	case PolicyAnyContent:
		return PolicyAnyContent, nil
	default:
		return "", fmt.Errorf("unknown viability policy %q", s)
	}
}

// Check returns an error wrapping ErrEmptyDraft when d should be skipped.
func (p ViabilityPolicy) Check(d ArticleDraft) error {
	if d.PublisherURL == "" {
		return fmt.Errorf("%w: missing publisher url", ErrEmptyDraft)
	}

	switch p {
	case PolicyAnyContent:
		if d.ImageURL == "" && d.Title == "" && d.Content == "" {
			return fmt.Errorf("%w: no image, title or content", ErrEmptyDraft)
		}
	default:
		if d.ImageURL == "" {
			return fmt.Errorf("%w: missing image url", ErrEmptyDraft)
		}
	}

	return nil
}
