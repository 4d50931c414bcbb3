package a2a

import (
	"net/http"
	"strings"
)

// SkillSummary is the minimal listing shape returned by GET /agent/skills
// (id, name, documentation link only — spec §6).
type SkillSummary struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	DocsLink  string `json:"docs_link,omitempty"`
}

// Skill is the full metadata returned by GET /agent/skills/{id}, minus
// the documentation body itself (spec §6).
type Skill struct {
	ID          string   `json:"id"`
	Name        string   `json:"name"`
	Description string   `json:"description"`
	Tags        []string `json:"tags,omitempty"`
	Examples    []string `json:"examples,omitempty"`
}

// SkillRegistry is the collaborator boundary realizing spec.md §1's
// "per-skill capability-matching scorer": Bindu only needs to list,
// fetch, and serve documentation for skills, not score or match them.
// Grounded on the teacher's model-card CRUD surface (handlers.go
// listModelCards/getModelCard), applied to skills instead of model
// cards.
type SkillRegistry interface {
	Summaries() []SkillSummary
	Get(id string) (*Skill, bool)
	Documentation(id string) (string, bool)
}

// StaticRegistry is an in-process SkillRegistry backed by a fixed list,
// the common case for a single-handler deployment.
type StaticRegistry struct {
	skills []Skill
	docs   map[string]string
	byID   map[string]Skill
}

// NewStaticRegistry builds a registry from a fixed skill list and their
// documentation bodies (keyed by skill id).
func NewStaticRegistry(skills []Skill, docs map[string]string) *StaticRegistry {
	byID := make(map[string]Skill, len(skills))
	for _, sk := range skills {
		byID[sk.ID] = sk
	}
	return &StaticRegistry{skills: skills, docs: docs, byID: byID}
}

func (r *StaticRegistry) Summaries() []SkillSummary {
	out := make([]SkillSummary, 0, len(r.skills))
	for _, sk := range r.skills {
		_, hasDocs := r.docs[sk.ID]
		link := ""
		if hasDocs {
			link = "/agent/skills/" + sk.ID + "/documentation"
		}
		out = append(out, SkillSummary{ID: sk.ID, Name: sk.Name, DocsLink: link})
	}
	return out
}

func (r *StaticRegistry) Get(id string) (*Skill, bool) {
	sk, ok := r.byID[id]
	if !ok {
		return nil, false
	}
	return &sk, true
}

func (r *StaticRegistry) Documentation(id string) (string, bool) {
	doc, ok := r.docs[id]
	return doc, ok
}

var _ SkillRegistry = (*StaticRegistry)(nil)

// SkillHandler serves the three GET /agent/skills* endpoints (spec §6),
// grounded on the teacher's handlers.go listModelCards/getModelCard
// 404-on-missing shape.
type SkillHandler struct {
	registry SkillRegistry
}

// NewSkillHandler constructs the skill-endpoint handler.
func NewSkillHandler(registry SkillRegistry) *SkillHandler {
	return &SkillHandler{registry: registry}
}

// ServeList implements GET /agent/skills.
func (h *SkillHandler) ServeList(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	writeJSON(w, http.StatusOK, h.registry.Summaries())
}

// ServeGet implements GET /agent/skills/{id} and the sibling
// /agent/skills/{id}/documentation route, dispatching on the trailing
// path segment.
func (h *SkillHandler) ServeGet(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	id, wantDocs := parseSkillPath(r.URL.Path)
	if id == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "skill id required"})
		return
	}

	if wantDocs {
		doc, ok := h.registry.Documentation(id)
		if !ok {
			writeSkillNotFound(w, id)
			return
		}
		w.Header().Set("Content-Type", "application/yaml")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(doc))
		return
	}

	sk, ok := h.registry.Get(id)
	if !ok {
		writeSkillNotFound(w, id)
		return
	}
	writeJSON(w, http.StatusOK, sk)
}

func writeSkillNotFound(w http.ResponseWriter, id string) {
	writeJSON(w, http.StatusNotFound, map[string]any{
		"error":    "skill not found",
		"code":     codeSkillNotFound,
		"skill_id": id,
	})
}

func parseSkillPath(path string) (id string, documentation bool) {
	trimmed := strings.TrimPrefix(path, "/agent/skills/")
	if trimmed == path {
		return "", false
	}
	parts := strings.Split(strings.Trim(trimmed, "/"), "/")
	if len(parts) == 0 || parts[0] == "" {
		return "", false
	}
	if len(parts) > 1 && parts[1] == "documentation" {
		return parts[0], true
	}
	return parts[0], false
}
