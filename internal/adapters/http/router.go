package httpadapter

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/MiscMich/villabot-sub004/internal/core/domain"
	"github.com/MiscMich/villabot-sub004/internal/core/ports"
)

type Router struct {
	answerUC ports.MessageAnswerer
	ingestUC ports.DocumentIngestor
	docs     ports.DocumentReader
	metrics  http.Handler
	traffic  TrafficConfig

	obsService string
	observer   PipelineObserver
}

// PipelineObserver receives retrieval-pipeline outcome signals from the
// message route.
type PipelineObserver interface {
	RecordIntent(service, intent string, responded bool)
	RecordRetrieval(service string, contextChunks int, duration time.Duration)
	RecordCacheLookup(service, cache string, hit bool)
}

// TrafficConfig tunes the per-workspace rate limiter and the global
// backpressure gate in front of the pipeline.
type TrafficConfig struct {
	RateLimitRPS    float64
	RateLimitBurst  int
	MaxInFlight     int
	AdmissionWait   time.Duration
	LimiterIdleTTL  time.Duration
	SweepInterval   time.Duration
	DisableLimiting bool
}

func NewRouter(
	answerUC ports.MessageAnswerer,
	ingestUC ports.DocumentIngestor,
	docs ports.DocumentReader,
	metrics http.Handler,
	traffic TrafficConfig,
) *Router {
	return &Router{
		answerUC: answerUC,
		ingestUC: ingestUC,
		docs:     docs,
		metrics:  metrics,
		traffic:  traffic,
	}
}

// WithObservability attaches an outcome observer; without it the route only
// serves the request.
func (rt *Router) WithObservability(service string, obs PipelineObserver) *Router {
	rt.obsService = service
	rt.observer = obs
	return rt
}

func (rt *Router) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", rt.healthz)
	if rt.metrics != nil {
		mux.Handle("/metrics", rt.metrics)
	}
	mux.HandleFunc("/v1/messages", rt.handleMessage)
	mux.HandleFunc("/v1/documents", rt.uploadDocument)
	mux.HandleFunc("/v1/documents/", rt.getDocumentByID)

	var handler http.Handler = mux
	if !rt.traffic.DisableLimiting {
		handler = rateLimitMiddleware(handler, rt.traffic)
		handler = backpressureMiddleware(handler, rt.traffic.MaxInFlight, rt.traffic.AdmissionWait)
	}
	handler = accessLogMiddleware(handler)
	handler = requestIDMiddleware(handler)
	return handler
}

func (rt *Router) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type messageRequest struct {
	WorkspaceID   string `json:"workspace_id"`
	BotID         string `json:"bot_id"`
	ChannelID     string `json:"channel_id"`
	ThreadID      string `json:"thread_id"`
	Text          string `json:"text"`
	IsThreadReply bool   `json:"is_thread_reply"`
}

func (rt *Router) handleMessage(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}

	var req messageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid json"})
		return
	}
	if strings.TrimSpace(req.WorkspaceID) == "" || strings.TrimSpace(req.BotID) == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "workspace_id and bot_id are required"})
		return
	}
	if strings.TrimSpace(req.Text) == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "text is required"})
		return
	}
	tagTenant(r.Context(), req.WorkspaceID, req.BotID)

	start := time.Now()
	answer, err := rt.answerUC.HandleMessage(r.Context(), ports.InboundMessage{
		Scope:         scopeFromRequest(req),
		ChannelID:     req.ChannelID,
		ThreadID:      req.ThreadID,
		Text:          req.Text,
		IsThreadReply: req.IsThreadReply,
	})
	if err != nil {
		status := mapErrorToHTTPStatus(err)
		writeJSON(w, status, map[string]string{"error": err.Error()})
		return
	}

	if rt.observer != nil {
		rt.observer.RecordIntent(rt.obsService, string(answer.Intent.Intent), !answer.Skipped)
		if !answer.Skipped {
			rt.observer.RecordRetrieval(rt.obsService, len(answer.Sources), time.Since(start))
			rt.observer.RecordCacheLookup(rt.obsService, "responses", answer.Cached)
		}
	}
	writeJSON(w, http.StatusOK, answer)
}

func (rt *Router) uploadDocument(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}

	workspaceID := strings.TrimSpace(r.FormValue("workspace_id"))
	if workspaceID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "form field 'workspace_id' is required"})
		return
	}
	tagTenant(r.Context(), workspaceID, "")

	file, fileHeader, err := r.FormFile("file")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "multipart field 'file' is required"})
		return
	}
	defer file.Close()

	doc, err := rt.ingestUC.Upload(
		r.Context(),
		workspaceID,
		fileHeader.Filename,
		fileHeader.Header.Get("Content-Type"),
		file,
	)
	if err != nil {
		status := mapErrorToHTTPStatus(err)
		writeJSON(w, status, map[string]string{"error": err.Error()})
		return
	}

	writeJSON(w, http.StatusAccepted, doc)
}

func (rt *Router) getDocumentByID(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}

	id := strings.TrimPrefix(r.URL.Path, "/v1/documents/")
	if id == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "document id is required"})
		return
	}

	doc, err := rt.docs.GetByID(r.Context(), id)
	if err != nil {
		status := mapErrorToHTTPStatus(err)
		writeJSON(w, status, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, doc)
}

func scopeFromRequest(req messageRequest) domain.TenantScope {
	return domain.TenantScope{WorkspaceID: req.WorkspaceID, BotID: req.BotID}
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
