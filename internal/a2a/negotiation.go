package a2a

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"bindu/internal/store"
)

// NegotiationRequest is the capability-assessment request body (spec §1
// "negotiation endpoints"), grounded on the original Bindu negotiation
// endpoint's request shape: a task summary plus the constraints a caller
// wants checked before committing a task/send.
type NegotiationRequest struct {
	TaskSummary     string          `json:"task_summary"`
	TaskDetails     string          `json:"task_details,omitempty"`
	InputMimeTypes  []string        `json:"input_mime_types,omitempty"`
	OutputMimeTypes []string        `json:"output_mime_types,omitempty"`
	RequiredTools   []string        `json:"required_tools,omitempty"`
	ForbiddenTools  []string        `json:"forbidden_tools,omitempty"`
	MinScore        float64         `json:"min_score,omitempty"`
	Weights         *ScoringWeights `json:"weights,omitempty"`
}

// ScoringWeights tunes how the five subscores combine into the overall
// score. Defaults mirror the original implementation's weighting:
// skill match dominates, then IO compatibility, then performance/load/cost.
type ScoringWeights struct {
	SkillMatch      float64 `json:"skill_match"`
	IOCompatibility float64 `json:"io_compatibility"`
	Performance     float64 `json:"performance"`
	Load            float64 `json:"load"`
	Cost            float64 `json:"cost"`
}

// DefaultScoringWeights matches the original negotiation endpoint's
// hardcoded defaults.
func DefaultScoringWeights() ScoringWeights {
	return ScoringWeights{SkillMatch: 0.55, IOCompatibility: 0.20, Performance: 0.15, Load: 0.05, Cost: 0.05}
}

// SkillMatch reports how well one registered skill matched the request.
type SkillMatch struct {
	SkillID   string   `json:"skill_id"`
	SkillName string   `json:"skill_name"`
	Score     float64  `json:"score"`
	Reasons   []string `json:"reasons,omitempty"`
}

// NegotiationResult is the capability assessment returned to the caller.
type NegotiationResult struct {
	Accepted        bool               `json:"accepted"`
	Score           float64            `json:"score"`
	Confidence      float64            `json:"confidence"`
	RejectionReason string             `json:"rejection_reason,omitempty"`
	SkillMatches    []SkillMatch       `json:"skill_matches,omitempty"`
	MatchedTags     []string           `json:"matched_tags,omitempty"`
	QueueDepth      *int               `json:"queue_depth,omitempty"`
	Subscores       map[string]float64 `json:"subscores,omitempty"`
}

// NegotiationScorer is the collaborator boundary realizing the original's
// CapabilityCalculator: the semantic/embedding-backed matching logic
// stays an external concern (spec §1's "business rules are a host
// concern"), reached through this interface. HeuristicScorer below is
// the always-available tag-overlap fallback a deployment gets for free.
type NegotiationScorer interface {
	Score(ctx context.Context, req NegotiationRequest, skills []Skill, queueDepth int) NegotiationResult
}

// HeuristicScorer scores a negotiation request by tag/mode overlap
// against the registered skills and current queue depth, with no
// external dependency (embeddings, pricing oracles) required. A
// deployment wanting the original's NLP-driven skill matching supplies
// its own NegotiationScorer in place of this one.
type HeuristicScorer struct {
	InputModes    []string
	OutputModes   []string
	MaxQueueDepth int
	skillsRef     []Skill
}

// Score implements NegotiationScorer.
func (h HeuristicScorer) Score(_ context.Context, req NegotiationRequest, skills []Skill, queueDepth int) NegotiationResult {
	weights := DefaultScoringWeights()
	if req.Weights != nil {
		weights = *req.Weights
	}

	skillScore, matches, tags := h.scoreSkills(req)
	ioScore := h.scoreIO(req)
	loadScore := h.scoreLoad(queueDepth)
	performanceScore := 0.8 // no latency history collaborator wired: a neutral default
	costScore := 1.0        // no pricing collaborator wired: cost never penalizes by default

	total := weights.SkillMatch*skillScore +
		weights.IOCompatibility*ioScore +
		weights.Performance*performanceScore +
		weights.Load*loadScore +
		weights.Cost*costScore

	minScore := req.MinScore
	accepted := total >= minScore
	reason := ""
	if !accepted {
		reason = "score below minimum threshold"
	}
	if len(skills) > 0 && len(matches) == 0 {
		accepted = false
		reason = "no registered skill matches the requested task"
	}

	depth := queueDepth
	return NegotiationResult{
		Accepted:        accepted,
		Score:           total,
		Confidence:      confidenceFor(len(matches), len(skills)),
		RejectionReason: reason,
		SkillMatches:    matches,
		MatchedTags:     tags,
		QueueDepth:      &depth,
		Subscores: map[string]float64{
			"skill_match":      skillScore,
			"io_compatibility": ioScore,
			"performance":      performanceScore,
			"load":             loadScore,
			"cost":             costScore,
		},
	}
}

func (h HeuristicScorer) scoreSkills(req NegotiationRequest) (float64, []SkillMatch, []string) {
	if len(h.skillsRef) == 0 {
		// No skills registered at all: nothing to match against, so the
		// request is judged purely on IO/load/cost subscores.
		return 1.0, nil, nil
	}
	want := strings.ToLower(req.TaskSummary + " " + req.TaskDetails)
	var matches []SkillMatch
	tagSet := map[string]bool{}
	for _, sk := range h.skillsRef {
		var reasons []string
		score := 0.0
		for _, tag := range sk.Tags {
			if want != "" && strings.Contains(want, strings.ToLower(tag)) {
				score += 1.0
				reasons = append(reasons, "tag match: "+tag)
				tagSet[tag] = true
			}
		}
		if strings.Contains(want, strings.ToLower(sk.Name)) {
			score += 1.0
			reasons = append(reasons, "name match")
		}
		if score > 0 {
			matches = append(matches, SkillMatch{SkillID: sk.ID, SkillName: sk.Name, Score: normalizeMatchScore(score), Reasons: reasons})
		}
	}
	if len(matches) == 0 {
		return 0.0, nil, nil
	}
	best := 0.0
	for _, m := range matches {
		if m.Score > best {
			best = m.Score
		}
	}
	tags := make([]string, 0, len(tagSet))
	for t := range tagSet {
		tags = append(tags, t)
	}
	return best, matches, tags
}

func normalizeMatchScore(raw float64) float64 {
	if raw > 2 {
		return 1.0
	}
	return raw / 2
}

func (h HeuristicScorer) scoreIO(req NegotiationRequest) float64 {
	if len(req.InputMimeTypes) == 0 && len(req.OutputMimeTypes) == 0 {
		return 1.0
	}
	if !overlaps(req.InputMimeTypes, h.InputModes) && len(req.InputMimeTypes) > 0 {
		return 0.0
	}
	if !overlaps(req.OutputMimeTypes, h.OutputModes) && len(req.OutputMimeTypes) > 0 {
		return 0.0
	}
	return 1.0
}

func (h HeuristicScorer) scoreLoad(queueDepth int) float64 {
	if h.MaxQueueDepth <= 0 {
		return 1.0
	}
	if queueDepth >= h.MaxQueueDepth {
		return 0.0
	}
	return 1.0 - float64(queueDepth)/float64(h.MaxQueueDepth)
}

func overlaps(requested, supported []string) bool {
	set := make(map[string]bool, len(supported))
	for _, s := range supported {
		set[strings.ToLower(s)] = true
	}
	for _, r := range requested {
		if set[strings.ToLower(r)] {
			return true
		}
	}
	return false
}

func confidenceFor(matched, total int) float64 {
	if total == 0 {
		return 0.5
	}
	return 0.5 + 0.5*float64(matched)/float64(total)
}

// NegotiationHandler serves POST /negotiation (spec §1), grounded on the
// teacher's handlers.go request/response JSON shape and on skills.go's
// 400/500-on-malformed-input style.
type NegotiationHandler struct {
	skills      SkillRegistry
	storage     store.Storage
	scorer      NegotiationScorer
	nonTerminal []store.TaskState
}

// NewNegotiationHandler constructs the handler. scorer may be nil, in
// which case a HeuristicScorer built from the deployment's own
// input/output modes is used.
func NewNegotiationHandler(skills SkillRegistry, storage store.Storage, scorer NegotiationScorer, inputModes, outputModes []string) *NegotiationHandler {
	if scorer == nil {
		scorer = HeuristicScorer{InputModes: inputModes, OutputModes: outputModes, MaxQueueDepth: 1000}
	}
	return &NegotiationHandler{
		skills:  skills,
		storage: storage,
		scorer:  scorer,
		nonTerminal: []store.TaskState{
			store.TaskSubmitted, store.TaskWorking, store.TaskInputRequired, store.TaskAuthRequired,
		},
	}
}

// ServeNegotiation implements POST /negotiation.
func (h *NegotiationHandler) ServeNegotiation(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	var req NegotiationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON payload"})
		return
	}
	if req.TaskSummary == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "'task_summary' is required"})
		return
	}
	if len(req.TaskSummary) > 10000 {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "task_summary exceeds maximum length of 10000 characters"})
		return
	}

	var skills []Skill
	for _, summary := range h.skills.Summaries() {
		if sk, ok := h.skills.Get(summary.ID); ok {
			skills = append(skills, *sk)
		}
	}

	queueDepth := h.queueDepth(r.Context())

	scorer := h.scorer
	if hs, ok := scorer.(HeuristicScorer); ok {
		hs.skillsRef = skills
		scorer = hs
	}
	result := scorer.Score(r.Context(), req, skills, queueDepth)
	writeJSON(w, http.StatusOK, result)
}

func (h *NegotiationHandler) queueDepth(ctx context.Context) int {
	if h.storage == nil {
		return 0
	}
	total := 0
	for _, state := range h.nonTerminal {
		n, err := h.storage.CountTasks(ctx, state)
		if err != nil {
			return 0
		}
		total += n
	}
	return total
}
