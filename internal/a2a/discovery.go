package a2a

import (
	"encoding/json"
	"net/http"

	"github.com/google/uuid"

	"bindu/internal/store"
)

// AgentCard is the discovery document served at /.well-known/agent.json
// (spec §6), grounded on the teacher's agent_card.go shape — identity,
// capabilities, and a skill summary list replace the teacher's
// hardcoded chat/embeddings/images skills with this deployment's own.
type AgentCard struct {
	ID              string       `json:"id"`
	Name            string       `json:"name"`
	Description     string       `json:"description"`
	URL             string       `json:"url"`
	Version         string       `json:"version"`
	ProtocolVersion string       `json:"protocol_version"`
	DID             string       `json:"did,omitempty"`
	Capabilities    Capabilities `json:"capabilities"`
	Skills          []SkillSummary `json:"skills"`
	Trust           TrustInfo    `json:"trust"`
	InputModes      []string     `json:"input_modes"`
	OutputModes     []string     `json:"output_modes"`
}

// Capabilities describes what this deployment supports (spec §6).
type Capabilities struct {
	Streaming         bool `json:"streaming"`
	PushNotifications bool `json:"push_notifications"`
	Extensions        bool `json:"extensions"`
}

// TrustInfo describes the identity assertion this agent makes about
// itself; DID verification itself stays an external collaborator.
type TrustInfo struct {
	Schemes []string `json:"schemes"`
}

// DiscoveryConfig is the static identity data a deployment supplies;
// bound from internal/config.Config at composition time.
type DiscoveryConfig struct {
	BaseURL         string
	Name            string
	Description     string
	Version         string
	DID             string
	PushEnabled     bool
	ProtocolVersion string
}

// DiscoveryHandler serves the Agent Card and DID resolution (spec §6),
// grounded on the teacher's AgentCardHandler. The skill endpoints are
// served by SkillHandler.
type DiscoveryHandler struct {
	cfg      DiscoveryConfig
	skills   SkillRegistry
	cardID   string
}

// NewDiscoveryHandler constructs the handler. The Agent Card's id is
// minted once per process and stable across requests (spec §6).
func NewDiscoveryHandler(cfg DiscoveryConfig, skills SkillRegistry) *DiscoveryHandler {
	if cfg.ProtocolVersion == "" {
		cfg.ProtocolVersion = "a2a/1.0"
	}
	return &DiscoveryHandler{cfg: cfg, skills: skills, cardID: uuid.NewString()}
}

func (h *DiscoveryHandler) card() AgentCard {
	summaries := h.skills.Summaries()
	return AgentCard{
		ID:              h.cardID,
		Name:            h.cfg.Name,
		Description:     h.cfg.Description,
		URL:             h.cfg.BaseURL,
		Version:         h.cfg.Version,
		ProtocolVersion: h.cfg.ProtocolVersion,
		DID:             h.cfg.DID,
		Capabilities: Capabilities{
			Streaming:         false,
			PushNotifications: h.cfg.PushEnabled,
			Extensions:        false,
		},
		Skills: summaries,
		Trust: TrustInfo{
			Schemes: []string{"DID"},
		},
		InputModes:  []string{"text"},
		OutputModes: []string{"text"},
	}
}

// Card returns the current Agent Card, for callers outside the HTTP
// path (e.g. publishing it to an agent discovery event stream at
// startup).
func (h *DiscoveryHandler) Card() AgentCard {
	return h.card()
}

// ServeAgentCard implements GET /.well-known/agent.json.
func (h *DiscoveryHandler) ServeAgentCard(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	writeJSON(w, http.StatusOK, h.card())
}

type didResolveRequest struct {
	DID string `json:"did"`
}

// ServeDIDResolve implements POST /did/resolve: a thin self-DID
// comparison (spec §6); DID document construction beyond that remains an
// external collaborator's concern.
func (h *DiscoveryHandler) ServeDIDResolve(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	var req didResolveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}
	if req.DID == "" || h.cfg.DID == "" || req.DID != h.cfg.DID {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "did not found"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"@context": []string{"https://www.w3.org/ns/did/v1"},
		"id":       h.cfg.DID,
	})
}

// HealthStatus reports liveness plus component readiness (spec §6).
type HealthStatus struct {
	Storage   bool `json:"storage"`
	Scheduler bool `json:"scheduler"`
	Worker    bool `json:"worker"`
}

// HealthChecker reports the three component readiness booleans a health
// probe needs.
type HealthChecker struct {
	storage      store.Storage
	schedulePing func() bool
	workerUp     func() bool
}

// NewHealthChecker constructs the /health handler's backing checks.
func NewHealthChecker(storage store.Storage, schedulePing, workerUp func() bool) *HealthChecker {
	return &HealthChecker{storage: storage, schedulePing: schedulePing, workerUp: workerUp}
}

func (h *HealthChecker) ServeHealth(w http.ResponseWriter, r *http.Request) {
	status := HealthStatus{
		Storage:   h.storage.Ping(r.Context()) == nil,
		Scheduler: h.schedulePing == nil || h.schedulePing(),
		Worker:    h.workerUp == nil || h.workerUp(),
	}
	code := http.StatusOK
	if !status.Storage || !status.Scheduler || !status.Worker {
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, status)
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
