// Package http exposes the engine over a chi-routed JSON API: the admin
// review surface, the company KYB surface, and the public registration and
// session endpoints.
package http

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"bountydesk/internal/audit"
	"bountydesk/internal/platform/middleware"
	"bountydesk/internal/principal"
	"bountydesk/internal/queue"
	"bountydesk/internal/verification/models"
	id "bountydesk/pkg/domain"
	dErrors "bountydesk/pkg/domain-errors"
	"bountydesk/pkg/platform/httputil"
)

// Decider is the admin-facing slice of the verification service.
type Decider interface {
	Apply(ctx context.Context, decision models.Decision) (*models.VerificationRecord, error)
	CurrentStatus(ctx context.Context, principalID id.PrincipalID, kind models.Kind) (models.Status, error)
	History(ctx context.Context, principalID id.PrincipalID, kind models.Kind) ([]audit.Entry, error)
}

// Intaker is the company-facing slice of the intake adapter.
type Intaker interface {
	Attach(ctx context.Context, principalID id.PrincipalID, ref id.DocumentRef) (*models.VerificationRecord, error)
	Submit(ctx context.Context, principalID id.PrincipalID) (*models.VerificationRecord, error)
	Record(ctx context.Context, principalID id.PrincipalID) (*models.VerificationRecord, error)
}

// QueueReader serves the admin queue projection.
type QueueReader interface {
	ListPending(ctx context.Context, kind models.Kind) ([]queue.Item, error)
}

// Registrar onboards new principals.
type Registrar interface {
	Register(ctx context.Context, email, name, password string) (*principal.Principal, error)
	RegisterCompany(ctx context.Context, email, name, password string) (*principal.Principal, error)
}

// SessionIssuer authenticates and mints session tokens.
type SessionIssuer interface {
	Login(ctx context.Context, email, password string) (string, error)
}

type Handler struct {
	decider  Decider
	intake   Intaker
	queue    QueueReader
	registry Registrar
	sessions SessionIssuer
}

func NewHandler(decider Decider, intake Intaker, q QueueReader, registry Registrar, sessions SessionIssuer) *Handler {
	return &Handler{
		decider:  decider,
		intake:   intake,
		queue:    q,
		registry: registry,
		sessions: sessions,
	}
}

func kindParam(r *http.Request) (models.Kind, error) {
	kind := models.Kind(r.URL.Query().Get("kind"))
	if !kind.Valid() {
		return "", dErrors.New(dErrors.CodeInvalidInput, "kind must be account or kyb")
	}
	return kind, nil
}

func principalParam(r *http.Request) (id.PrincipalID, error) {
	return id.ParsePrincipalID(chi.URLParam(r, "id"))
}

// HandleQueue serves GET /admin/queue?kind=.
func (h *Handler) HandleQueue(w http.ResponseWriter, r *http.Request) {
	kind, err := kindParam(r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	items, err := h.queue.ListPending(r.Context(), kind)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]any{
		"kind":  kind,
		"items": items,
	})
}

type decisionRequest struct {
	PrincipalID string `json:"principal_id"`
	Kind        string `json:"kind"`
	Action      string `json:"action"`
	Reason      string `json:"reason,omitempty"`
}

type decisionResponse struct {
	PrincipalID string        `json:"principal_id"`
	Kind        models.Kind   `json:"kind"`
	Status      models.Status `json:"status"`
	Version     int64         `json:"version"`
}

// HandleDecision serves POST /admin/decisions. The acting admin comes from
// the bearer token, never from the request body.
func (h *Handler) HandleDecision(w http.ResponseWriter, r *http.Request) {
	var req decisionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid JSON body"))
		return
	}
	principalID, err := id.ParsePrincipalID(req.PrincipalID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	record, err := h.decider.Apply(r.Context(), models.Decision{
		PrincipalID: principalID,
		Kind:        models.Kind(req.Kind),
		Action:      models.Action(req.Action),
		Actor:       middleware.GetAdminID(r.Context()),
		Reason:      req.Reason,
	})
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, decisionResponse{
		PrincipalID: record.PrincipalID.String(),
		Kind:        record.Kind,
		Status:      record.Status,
		Version:     record.Version,
	})
}

// HandleHistory serves GET /admin/principals/{id}/history?kind=.
func (h *Handler) HandleHistory(w http.ResponseWriter, r *http.Request) {
	principalID, err := principalParam(r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	kind, err := kindParam(r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	entries, err := h.decider.History(r.Context(), principalID, kind)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]any{
		"principal_id": principalID.String(),
		"kind":         kind,
		"entries":      entries,
	})
}

type attachRequest struct {
	DocumentRef string `json:"document_ref"`
}

// HandleAttach serves POST /kyb/{id}/documents.
func (h *Handler) HandleAttach(w http.ResponseWriter, r *http.Request) {
	principalID, err := principalParam(r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	var req attachRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid JSON body"))
		return
	}
	ref, err := id.ParseDocumentRef(req.DocumentRef)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	record, err := h.intake.Attach(r.Context(), principalID, ref)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]any{
		"status":         record.Status,
		"evidence_count": len(record.Evidence),
	})
}

// HandleSubmit serves POST /kyb/{id}/submit.
func (h *Handler) HandleSubmit(w http.ResponseWriter, r *http.Request) {
	principalID, err := principalParam(r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	record, err := h.intake.Submit(r.Context(), principalID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]any{
		"status":         record.Status,
		"evidence_count": len(record.Evidence),
	})
}

// HandleStatus serves GET /principals/{id}/status?kind=.
func (h *Handler) HandleStatus(w http.ResponseWriter, r *http.Request) {
	principalID, err := principalParam(r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	kind, err := kindParam(r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	status, err := h.decider.CurrentStatus(r.Context(), principalID, kind)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]any{
		"principal_id": principalID.String(),
		"kind":         kind,
		"status":       status,
	})
}

type registrationRequest struct {
	Kind     string `json:"kind"`
	Email    string `json:"email"`
	Name     string `json:"name"`
	Password string `json:"password"`
}

// HandleRegister serves POST /registrations. Kind defaults to USER.
func (h *Handler) HandleRegister(w http.ResponseWriter, r *http.Request) {
	var req registrationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid JSON body"))
		return
	}

	var (
		p   *principal.Principal
		err error
	)
	switch principal.Kind(req.Kind) {
	case principal.KindCompany:
		p, err = h.registry.RegisterCompany(r.Context(), req.Email, req.Name, req.Password)
	case principal.KindUser, "":
		p, err = h.registry.Register(r.Context(), req.Email, req.Name, req.Password)
	default:
		err = dErrors.New(dErrors.CodeInvalidInput, "kind must be USER or COMPANY")
	}
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, map[string]any{
		"principal_id": p.ID.String(),
		"kind":         p.Kind,
		"status":       models.StatusPending,
	})
}

type sessionRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// HandleSession serves POST /sessions.
func (h *Handler) HandleSession(w http.ResponseWriter, r *http.Request) {
	var req sessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid JSON body"))
		return
	}
	token, err := h.sessions.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]any{"token": token})
}
