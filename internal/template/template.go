// Package template implements the notification plane's Template Store:
// (type, language) keyed subject/body templates with variable extraction,
// validation and rendering. Lookup is read-dominant; the store keeps an
// atomically swapped snapshot of all templates so the render hot path never
// touches the repository.
package template

import (
	"regexp"
	"sort"
	"strings"
	"time"

	domainerrors "github.com/nimbusgate/core/internal/domain/errors"
)

// Template is one (type, language) entry. RequiredVariables is the declared
// set of placeholders a caller must supply; every placeholder referenced in
// Subject or Body must appear in it.
type Template struct {
	ID                string
	Type              string
	Language          string
	Subject           string
	Body              string
	RequiredVariables []string
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// ProcessedTemplate is the result of rendering a template with variables.
type ProcessedTemplate struct {
	Subject string `json:"subject"`
	Body    string `json:"body"`
}

// placeholderRe matches the single bracketed substitution syntax, e.g.
// {userName} or {reset.url}.
var placeholderRe = regexp.MustCompile(`\{([a-zA-Z0-9_.]+)\}`)

// ExtractVariables returns the sorted set of placeholder names referenced in
// subject and body.
func ExtractVariables(subject, body string) []string {
	seen := map[string]struct{}{}
	for _, m := range placeholderRe.FindAllStringSubmatch(subject+"\n"+body, -1) {
		seen[m[1]] = struct{}{}
	}
	out := make([]string, 0, len(seen))
	for name := range seen {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// Render substitutes variables into the template. Referenced but unsupplied
// variables fail with a validation error listing every missing name, per the
// TemplateValidation contract.
func (t Template) Render(variables map[string]string) (ProcessedTemplate, error) {
	if missing := missingVariables(t, variables); len(missing) > 0 {
		return ProcessedTemplate{}, domainerrors.NewDomainWithHint(
			domainerrors.CodeValidationError,
			"missing template variables: "+strings.Join(missing, ", "),
			"supply all variables referenced by the template",
		)
	}
	return ProcessedTemplate{
		Subject: substitute(t.Subject, variables),
		Body:    substitute(t.Body, variables),
	}, nil
}

// Validate checks a variable map against the template without rendering,
// returning the missing names.
func (t Template) Validate(variables map[string]string) []string {
	return missingVariables(t, variables)
}

func missingVariables(t Template, variables map[string]string) []string {
	var missing []string
	for _, name := range ExtractVariables(t.Subject, t.Body) {
		if _, ok := variables[name]; !ok {
			missing = append(missing, name)
		}
	}
	return missing
}

func substitute(s string, variables map[string]string) string {
	return placeholderRe.ReplaceAllStringFunc(s, func(match string) string {
		name := match[1 : len(match)-1]
		if v, ok := variables[name]; ok {
			return v
		}
		return match
	})
}
