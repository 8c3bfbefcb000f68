package notification

import (
	"regexp"
	"strings"

	"github.com/go-playground/validator/v10"

	domainerrors "github.com/nimbusgate/core/internal/domain/errors"
)

// Request is the intake DTO. Validation limits follow the API contract:
// title <= 200 chars, content <= 5000, action-url <= 500, all XSS-safe.
type Request struct {
	RecipientID   string            `json:"recipientId" validate:"required"`
	Type          Type              `json:"type" validate:"required"`
	Title         string            `json:"title" validate:"required,max=200"`
	Content       string            `json:"content" validate:"required,max=5000"`
	ActionURL     string            `json:"actionUrl,omitempty" validate:"omitempty,max=500,url"`
	Priority      int               `json:"priority" validate:"gte=0,lte=9"`
	Language      string            `json:"language,omitempty"`
	Variables     map[string]string `json:"variables,omitempty"`
	Metadata      map[string]string `json:"metadata,omitempty"`
	CorrelationID string            `json:"-"`
}

var validate = validator.New()

// scriptContentRe catches the markers the intake refuses outright: script
// blocks, inline event handlers, and javascript: URLs surviving in any field.
var scriptContentRe = regexp.MustCompile(`(?i)(<\s*script|javascript\s*:|on[a-z]+\s*=|<\s*iframe|data\s*:\s*text/html)`)

// allowedContentTags is the limited HTML allow-list for the content field.
var allowedContentTags = map[string]struct{}{
	"b": {}, "i": {}, "em": {}, "strong": {}, "u": {},
	"p": {}, "br": {}, "ul": {}, "ol": {}, "li": {}, "a": {},
}

var htmlTagRe = regexp.MustCompile(`<\s*/?\s*([a-zA-Z0-9]+)[^>]*>`)

// Validate enforces the full intake rule set, returning a 400-mapped domain
// error on the first violation.
func (r Request) Validate() error {
	if err := validate.Struct(r); err != nil {
		return domainerrors.NewDomainWithCause(domainerrors.CodeValidationError, validationMessage(err), err)
	}
	if !KnownType(r.Type) {
		return domainerrors.NewDomain(domainerrors.CodeValidationError, "unknown notification type: "+string(r.Type))
	}
	if scriptContentRe.MatchString(r.Title) {
		return domainerrors.NewDomain(domainerrors.CodeValidationError, "title contains disallowed markup")
	}
	if htmlTagRe.MatchString(r.Title) {
		return domainerrors.NewDomain(domainerrors.CodeValidationError, "title must be plain text")
	}
	if scriptContentRe.MatchString(r.Content) {
		return domainerrors.NewDomain(domainerrors.CodeValidationError, "content contains disallowed markup")
	}
	if tag, ok := disallowedTag(r.Content); !ok {
		return domainerrors.NewDomain(domainerrors.CodeValidationError, "content contains disallowed tag: "+tag)
	}
	if scriptContentRe.MatchString(r.ActionURL) {
		return domainerrors.NewDomain(domainerrors.CodeValidationError, "action url contains disallowed markup")
	}
	return nil
}

// disallowedTag scans content for HTML tags outside the allow-list.
// ok is true when every tag is allowed.
func disallowedTag(content string) (string, bool) {
	for _, m := range htmlTagRe.FindAllStringSubmatch(content, -1) {
		tag := strings.ToLower(m[1])
		if _, allowed := allowedContentTags[tag]; !allowed {
			return tag, false
		}
	}
	return "", true
}

func validationMessage(err error) string {
	var verrs validator.ValidationErrors
	if ok := asValidationErrors(err, &verrs); ok && len(verrs) > 0 {
		fe := verrs[0]
		switch fe.Tag() {
		case "required":
			return fieldName(fe.Field()) + " is required"
		case "max":
			return fieldName(fe.Field()) + " exceeds maximum length of " + fe.Param()
		case "url":
			return fieldName(fe.Field()) + " must be a valid URL"
		case "gte", "lte":
			return fieldName(fe.Field()) + " must be between 0 and 9"
		}
		return fieldName(fe.Field()) + " is invalid"
	}
	return "invalid notification request"
}

func asValidationErrors(err error, target *validator.ValidationErrors) bool {
	v, ok := err.(validator.ValidationErrors)
	if ok {
		*target = v
	}
	return ok
}

func fieldName(structField string) string {
	if structField == "" {
		return "request"
	}
	return strings.ToLower(structField[:1]) + structField[1:]
}
