package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/nimbusgate/core/internal/interface/http/problem"
	"github.com/nimbusgate/core/internal/template"
)

// TemplateHandler serves the Template Store CRUD and render surface.
type TemplateHandler struct {
	store *template.Store
}

// NewTemplateHandler builds a TemplateHandler.
func NewTemplateHandler(store *template.Store) *TemplateHandler {
	return &TemplateHandler{store: store}
}

// TemplateDTO is the wire shape of a template.
type TemplateDTO struct {
	ID                string   `json:"id"`
	Type              string   `json:"type"`
	Language          string   `json:"language"`
	Subject           string   `json:"subject"`
	Body              string   `json:"body"`
	RequiredVariables []string `json:"requiredVariables"`
}

func toTemplateDTO(t template.Template) TemplateDTO {
	return TemplateDTO{
		ID:                t.ID,
		Type:              t.Type,
		Language:          t.Language,
		Subject:           t.Subject,
		Body:              t.Body,
		RequiredVariables: t.RequiredVariables,
	}
}

func fromTemplateDTO(dto TemplateDTO) template.Template {
	return template.Template{
		Type:              dto.Type,
		Language:          dto.Language,
		Subject:           dto.Subject,
		Body:              dto.Body,
		RequiredVariables: dto.RequiredVariables,
	}
}

// List returns every template.
// GET /api/v1/templates
func (h *TemplateHandler) List(w http.ResponseWriter, r *http.Request) {
	out := make([]TemplateDTO, 0)
	for _, t := range h.store.List() {
		out = append(out, toTemplateDTO(t))
	}
	writeJSON(w, http.StatusOK, out)
}

// Create adds a template for a (type, language) pair.
// POST /api/v1/templates
func (h *TemplateHandler) Create(w http.ResponseWriter, r *http.Request) {
	var dto TemplateDTO
	if err := json.NewDecoder(r.Body).Decode(&dto); err != nil {
		problem.Write(w, http.StatusBadRequest, "invalid JSON body", r.URL.Path)
		return
	}
	created, err := h.store.Create(r.Context(), fromTemplateDTO(dto))
	if err != nil {
		problem.WriteError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toTemplateDTO(created))
}

// BulkCreate adds templates best-effort per item.
// POST /api/v1/templates/bulk
func (h *TemplateHandler) BulkCreate(w http.ResponseWriter, r *http.Request) {
	var dtos []TemplateDTO
	if err := json.NewDecoder(r.Body).Decode(&dtos); err != nil {
		problem.Write(w, http.StatusBadRequest, "invalid JSON body", r.URL.Path)
		return
	}
	in := make([]template.Template, len(dtos))
	for i, dto := range dtos {
		in[i] = fromTemplateDTO(dto)
	}
	created, failed := h.store.BulkCreate(r.Context(), in)

	createdDTOs := make([]TemplateDTO, len(created))
	for i, t := range created {
		createdDTOs[i] = toTemplateDTO(t)
	}
	failures := map[int]string{}
	for idx, err := range failed {
		failures[idx] = err.Error()
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"created": createdDTOs,
		"failed":  failures,
	})
}

// Update replaces the mutable fields of a template by id.
// PUT /api/v1/templates/{id}
func (h *TemplateHandler) Update(w http.ResponseWriter, r *http.Request) {
	var dto TemplateDTO
	if err := json.NewDecoder(r.Body).Decode(&dto); err != nil {
		problem.Write(w, http.StatusBadRequest, "invalid JSON body", r.URL.Path)
		return
	}
	updated, err := h.store.UpdateByID(r.Context(), chi.URLParam(r, "id"), dto.Subject, dto.Body, dto.RequiredVariables)
	if err != nil {
		problem.WriteError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toTemplateDTO(updated))
}

// Delete removes a template by id.
// DELETE /api/v1/templates/{id}
func (h *TemplateHandler) Delete(w http.ResponseWriter, r *http.Request) {
	if err := h.store.DeleteByID(r.Context(), chi.URLParam(r, "id")); err != nil {
		problem.WriteError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Languages lists the languages available for a type.
// GET /api/v1/templates/{type}/languages
func (h *TemplateHandler) Languages(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.store.Languages(chi.URLParam(r, "type")))
}

// Statistics returns the template count per type.
// GET /api/v1/templates/statistics
func (h *TemplateHandler) Statistics(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.store.Statistics())
}

// ExtractVariables returns the placeholders referenced by a submitted
// subject/body pair.
// POST /api/v1/templates/variables/extract
func (h *TemplateHandler) ExtractVariables(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Subject string `json:"subject"`
		Body    string `json:"body"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		problem.Write(w, http.StatusBadRequest, "invalid JSON body", r.URL.Path)
		return
	}
	writeJSON(w, http.StatusOK, map[string][]string{
		"variables": template.ExtractVariables(body.Subject, body.Body),
	})
}

// ValidateVariables checks a variable map against a stored template and
// reports missing names.
// POST /api/v1/templates/{type}/{lang}/validate
func (h *TemplateHandler) ValidateVariables(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Variables map[string]string `json:"variables"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		problem.Write(w, http.StatusBadRequest, "invalid JSON body", r.URL.Path)
		return
	}
	tpl, err := h.store.Find(chi.URLParam(r, "type"), chi.URLParam(r, "lang"))
	if err != nil {
		problem.WriteError(w, r, err)
		return
	}
	missing := tpl.Validate(body.Variables)
	writeJSON(w, http.StatusOK, map[string]any{
		"valid":   len(missing) == 0,
		"missing": missing,
	})
}

// Process renders a template with the supplied variables.
// POST /api/v1/templates/{type}/{lang}/process
func (h *TemplateHandler) Process(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Variables map[string]string `json:"variables"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		problem.Write(w, http.StatusBadRequest, "invalid JSON body", r.URL.Path)
		return
	}
	processed, err := h.store.Render(chi.URLParam(r, "type"), chi.URLParam(r, "lang"), body.Variables)
	if err != nil {
		problem.WriteError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, processed)
}
