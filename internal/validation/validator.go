package validation

import (
	"fmt"
	"path"
	"regexp"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/blog-moderation-api/internal/models"
	"github.com/google/uuid"
)

// Limits on post input
const (
	PostTitleMaxLength = 255
	PostBodyMinLength  = 10
)

var imageExtRegex = regexp.MustCompile(`(?i)\.(jpe?g|png|gif|webp)$`)

// publishedAtLayouts are accepted for published_at, most specific first.
// The last one is what HTML datetime-local inputs submit.
var publishedAtLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04",
}

// ValidationError represents a single validation error
type ValidationError struct {
	Field   string      `json:"field"`
	Message string      `json:"message"`
	Value   interface{} `json:"value,omitempty"`
}

// Validator provides validation methods
type Validator struct {
	commentMinLength int
	commentMaxLength int
}

// NewValidator creates a validator enforcing the given comment length bounds.
// Lengths are counted in characters, not bytes.
func NewValidator(commentMinLength, commentMaxLength int) *Validator {
	return &Validator{
		commentMinLength: commentMinLength,
		commentMaxLength: commentMaxLength,
	}
}

// ValidateComment validates a comment body. The body is expected to be
// trimmed already.
func (v *Validator) ValidateComment(body string) []ValidationError {
	var errors []ValidationError

	length := utf8.RuneCountInString(body)
	switch {
	case length == 0:
		errors = append(errors, ValidationError{Field: "body", Message: "comment is required"})
	case length < v.commentMinLength:
		errors = append(errors, ValidationError{
			Field:   "body",
			Message: fmt.Sprintf("comment must be at least %d characters", v.commentMinLength),
		})
	case length > v.commentMaxLength:
		errors = append(errors, ValidationError{
			Field:   "body",
			Message: fmt.Sprintf("comment may not be greater than %d characters", v.commentMaxLength),
		})
	}

	return errors
}

// ValidatePost validates post input
func (v *Validator) ValidatePost(req *models.PostRequest) []ValidationError {
	var errors []ValidationError

	title := strings.TrimSpace(req.Title)
	if title == "" {
		errors = append(errors, ValidationError{Field: "title", Message: "title is required"})
	} else if utf8.RuneCountInString(title) > PostTitleMaxLength {
		errors = append(errors, ValidationError{
			Field:   "title",
			Message: fmt.Sprintf("title may not be greater than %d characters", PostTitleMaxLength),
		})
	}

	body := strings.TrimSpace(req.Body)
	if body == "" {
		errors = append(errors, ValidationError{Field: "body", Message: "body is required"})
	} else if utf8.RuneCountInString(body) < PostBodyMinLength {
		errors = append(errors, ValidationError{
			Field:   "body",
			Message: fmt.Sprintf("body must be at least %d characters", PostBodyMinLength),
		})
	}

	if req.PublishedAt != "" {
		if _, err := ParsePublishedAt(req.PublishedAt); err != nil {
			errors = append(errors, ValidationError{
				Field:   "published_at",
				Message: "invalid date format, expected RFC 3339",
				Value:   req.PublishedAt,
			})
		}
	}

	if req.FeaturedImage != "" && !IsValidImagePath(req.FeaturedImage) {
		errors = append(errors, ValidationError{
			Field:   "featured_image",
			Message: "featured image must be a relative jpeg, png, gif or webp path",
			Value:   req.FeaturedImage,
		})
	}

	return errors
}

// ParsePublishedAt parses a published_at value. An empty string is a draft
// and yields nil.
func ParsePublishedAt(s string) (*time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}
	var lastErr error
	for _, layout := range publishedAtLayouts {
		t, err := time.Parse(layout, s)
		if err == nil {
			t = t.UTC()
			return &t, nil
		}
		lastErr = err
	}
	return nil, lastErr
}

// IsValidImagePath reports whether p is a clean relative image path that
// stays inside the storage root
func IsValidImagePath(p string) bool {
	if p == "" || strings.HasPrefix(p, "/") || strings.Contains(p, `\`) {
		return false
	}
	clean := path.Clean(p)
	if clean != p || clean == ".." || strings.HasPrefix(clean, "../") {
		return false
	}
	return imageExtRegex.MatchString(clean)
}

// IsValidUUID reports whether s is a well-formed UUID
func IsValidUUID(s string) bool {
	_, err := uuid.Parse(s)
	return err == nil
}
