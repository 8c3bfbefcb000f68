package template

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	domainerrors "github.com/nimbusgate/core/internal/domain/errors"
)

// Repository persists templates. The Postgres implementation lives in
// internal/infra/postgres; tests use an in-memory fake.
type Repository interface {
	Insert(ctx context.Context, t *Template) error
	Update(ctx context.Context, t *Template) error
	DeleteByID(ctx context.Context, id string) error
	LoadAll(ctx context.Context) ([]Template, error)
}

// Store serves template lookups from an atomically swapped in-process
// snapshot and writes through to the Repository. Missing-language lookups
// fall back to the configured default language.
type Store struct {
	repo            Repository
	defaultLanguage string
	snapshot        atomic.Pointer[map[snapshotKey]Template]
}

type snapshotKey struct {
	Type     string
	Language string
}

// NewStore builds a Store and loads the initial snapshot from repo.
// defaultLanguage is the fallback for unknown languages (e.g. "en").
func NewStore(ctx context.Context, repo Repository, defaultLanguage string) (*Store, error) {
	s := &Store{repo: repo, defaultLanguage: defaultLanguage}
	if err := s.Reload(ctx); err != nil {
		return nil, fmt.Errorf("template: initial load: %w", err)
	}
	return s, nil
}

// Reload republishes the snapshot from the repository. Readers always see
// either the old or the new snapshot, never a partial one.
func (s *Store) Reload(ctx context.Context) error {
	all, err := s.repo.LoadAll(ctx)
	if err != nil {
		return err
	}
	snap := make(map[snapshotKey]Template, len(all))
	for _, t := range all {
		snap[snapshotKey{Type: t.Type, Language: t.Language}] = t
	}
	s.snapshot.Store(&snap)
	return nil
}

func (s *Store) current() map[snapshotKey]Template {
	p := s.snapshot.Load()
	if p == nil {
		return nil
	}
	return *p
}

// Create inserts a new template. (type, language) must be unique.
func (s *Store) Create(ctx context.Context, t Template) (Template, error) {
	if t.Type == "" || t.Language == "" {
		return Template{}, domainerrors.NewDomain(domainerrors.CodeValidationError, "template type and language are required")
	}
	if _, ok := s.current()[snapshotKey{Type: t.Type, Language: t.Language}]; ok {
		return Template{}, domainerrors.NewDomain(domainerrors.CodeConflict,
			fmt.Sprintf("template already exists for type %s language %s", t.Type, t.Language))
	}
	if err := validateDeclaredVariables(t); err != nil {
		return Template{}, err
	}

	now := time.Now().UTC()
	t.ID = uuid.New().String()
	t.CreatedAt = now
	t.UpdatedAt = now
	if err := s.repo.Insert(ctx, &t); err != nil {
		return Template{}, fmt.Errorf("template: insert: %w", err)
	}
	return t, s.Reload(ctx)
}

// BulkCreate inserts templates best-effort per item, returning the created
// entries and a per-index error map for the ones that failed.
func (s *Store) BulkCreate(ctx context.Context, templates []Template) ([]Template, map[int]error) {
	created := make([]Template, 0, len(templates))
	failed := map[int]error{}
	for i, t := range templates {
		out, err := s.Create(ctx, t)
		if err != nil {
			failed[i] = err
			continue
		}
		created = append(created, out)
	}
	return created, failed
}

// UpdateByID replaces subject/body/required-variables of an existing template.
func (s *Store) UpdateByID(ctx context.Context, id string, subject, body string, required []string) (Template, error) {
	existing, ok := s.findByID(id)
	if !ok {
		return Template{}, notFound(id)
	}
	existing.Subject = subject
	existing.Body = body
	existing.RequiredVariables = required
	existing.UpdatedAt = time.Now().UTC()
	if err := validateDeclaredVariables(existing); err != nil {
		return Template{}, err
	}
	if err := s.repo.Update(ctx, &existing); err != nil {
		return Template{}, fmt.Errorf("template: update: %w", err)
	}
	return existing, s.Reload(ctx)
}

// DeleteByID removes a template.
func (s *Store) DeleteByID(ctx context.Context, id string) error {
	if _, ok := s.findByID(id); !ok {
		return notFound(id)
	}
	if err := s.repo.DeleteByID(ctx, id); err != nil {
		return fmt.Errorf("template: delete: %w", err)
	}
	return s.Reload(ctx)
}

// Find returns the template for (notificationType, language), falling back
// to the default language when the requested one has no entry.
func (s *Store) Find(notificationType, language string) (Template, error) {
	snap := s.current()
	if t, ok := snap[snapshotKey{Type: notificationType, Language: language}]; ok {
		return t, nil
	}
	if language != s.defaultLanguage {
		if t, ok := snap[snapshotKey{Type: notificationType, Language: s.defaultLanguage}]; ok {
			return t, nil
		}
	}
	return Template{}, domainerrors.NewDomain(domainerrors.CodeNotFound,
		fmt.Sprintf("no template for type %s language %s", notificationType, language))
}

// Render looks up (notificationType, language) with default-language
// fallback and substitutes variables.
func (s *Store) Render(notificationType, language string, variables map[string]string) (ProcessedTemplate, error) {
	t, err := s.Find(notificationType, language)
	if err != nil {
		return ProcessedTemplate{}, err
	}
	return t.Render(variables)
}

// List returns every template in the snapshot, ordered by (type, language).
func (s *Store) List() []Template {
	snap := s.current()
	out := make([]Template, 0, len(snap))
	for _, t := range snap {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Type != out[j].Type {
			return out[i].Type < out[j].Type
		}
		return out[i].Language < out[j].Language
	})
	return out
}

// Languages returns the distinct languages present for notificationType.
func (s *Store) Languages(notificationType string) []string {
	seen := map[string]struct{}{}
	for key := range s.current() {
		if key.Type == notificationType {
			seen[key.Language] = struct{}{}
		}
	}
	out := make([]string, 0, len(seen))
	for lang := range seen {
		out = append(out, lang)
	}
	sort.Strings(out)
	return out
}

// Statistics returns the template count per notification type.
func (s *Store) Statistics() map[string]int {
	stats := map[string]int{}
	for key := range s.current() {
		stats[key.Type]++
	}
	return stats
}

func (s *Store) findByID(id string) (Template, bool) {
	for _, t := range s.current() {
		if t.ID == id {
			return t, true
		}
	}
	return Template{}, false
}

// validateDeclaredVariables enforces the invariant that every placeholder
// referenced in subject or body appears in RequiredVariables.
func validateDeclaredVariables(t Template) error {
	declared := map[string]struct{}{}
	for _, name := range t.RequiredVariables {
		declared[name] = struct{}{}
	}
	var undeclared []string
	for _, name := range ExtractVariables(t.Subject, t.Body) {
		if _, ok := declared[name]; !ok {
			undeclared = append(undeclared, name)
		}
	}
	if len(undeclared) > 0 {
		return domainerrors.NewDomainWithHint(domainerrors.CodeValidationError,
			"template references undeclared variables",
			"declare: "+strings.Join(undeclared, ", "))
	}
	return nil
}

func notFound(id string) error {
	return domainerrors.NewDomain(domainerrors.CodeNotFound, "template not found: "+id)
}
