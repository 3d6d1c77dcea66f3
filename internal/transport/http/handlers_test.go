package http

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"

	"bountydesk/internal/audit"
	auditstore "bountydesk/internal/audit/store"
	"bountydesk/internal/intake"
	"bountydesk/internal/principal"
	"bountydesk/internal/queue"
	"bountydesk/internal/registration"
	"bountydesk/internal/session"
	"bountydesk/internal/verification"
	"bountydesk/internal/verification/service"
	verificationstore "bountydesk/internal/verification/store"
	id "bountydesk/pkg/domain"
)

type HandlersSuite struct {
	suite.Suite
	ctx        context.Context
	server     *httptest.Server
	records    *verificationstore.InMemoryStore
	sessions   *session.Service
	adminToken string
}

func TestHandlersSuite(t *testing.T) {
	suite.Run(t, new(HandlersSuite))
}

func (s *HandlersSuite) SetupTest() {
	s.ctx = context.Background()
	s.records = verificationstore.NewInMemoryStore()
	auditLog := auditstore.NewInMemoryStore()
	principals := principal.NewInMemoryStore()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	locks := verification.NewRecordLocks(5 * time.Second)
	auditor := audit.NewEmitter(auditLog, logger, nil, 3)
	projector := queue.NewProjector(s.records, principals, nil, logger, nil)

	verifier := service.New(s.records, locks, auditor, nil, projector, logger, nil)
	intaker := intake.New(s.records, locks, auditor, projector, logger)
	registrar := registration.New(principals, s.records, auditor, projector, logger, nil)
	s.sessions = session.New(principals, verifier, []byte("test-signing-key"), logger)

	router := NewRouter(RouterDeps{
		Handler:        NewHandler(verifier, intaker, projector, registrar, s.sessions),
		AdminValidator: s.sessions,
		Logger:         logger,
	})
	s.server = httptest.NewServer(router)

	token, err := s.sessions.IssueAdmin(id.AdminID(uuid.New()))
	s.Require().NoError(err)
	s.adminToken = token
}

func (s *HandlersSuite) TearDownTest() {
	s.server.Close()
}

func (s *HandlersSuite) do(method, path, token string, body any) *http.Response {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		s.Require().NoError(err)
		reader = bytes.NewReader(payload)
	}
	req, err := http.NewRequest(method, s.server.URL+path, reader)
	s.Require().NoError(err)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := s.server.Client().Do(req)
	s.Require().NoError(err)
	return resp
}

func (s *HandlersSuite) decode(resp *http.Response) map[string]any {
	defer resp.Body.Close()
	var out map[string]any
	s.Require().NoError(json.NewDecoder(resp.Body).Decode(&out))
	return out
}

func (s *HandlersSuite) register(kind, email, name string) string {
	resp := s.do(http.MethodPost, "/registrations", "", map[string]string{
		"kind":     kind,
		"email":    email,
		"name":     name,
		"password": "long-enough-password",
	})
	s.Require().Equal(http.StatusCreated, resp.StatusCode)
	return s.decode(resp)["principal_id"].(string)
}

func (s *HandlersSuite) TestRegistrationFlow() {
	principalID := s.register("USER", "alice@example.com", "Alice")
	s.NotEmpty(principalID)

	resp := s.do(http.MethodGet, "/principals/"+principalID+"/status?kind=account", "", nil)
	s.Require().Equal(http.StatusOK, resp.StatusCode)
	s.Equal("PENDING", s.decode(resp)["status"])
}

func (s *HandlersSuite) TestSessionDeniedWhilePending() {
	s.register("USER", "pending@example.com", "Pending User")

	resp := s.do(http.MethodPost, "/sessions", "", map[string]string{
		"email":    "pending@example.com",
		"password": "long-enough-password",
	})
	s.Equal(http.StatusForbidden, resp.StatusCode)
	resp.Body.Close()
}

func (s *HandlersSuite) TestSessionAfterActivation() {
	principalID := s.register("USER", "alice@example.com", "Alice")

	resp := s.do(http.MethodPost, "/admin/decisions", s.adminToken, map[string]string{
		"principal_id": principalID,
		"kind":         "account",
		"action":       "APPROVE",
	})
	s.Require().Equal(http.StatusOK, resp.StatusCode)
	s.Equal("ACTIVE", s.decode(resp)["status"])

	resp = s.do(http.MethodPost, "/sessions", "", map[string]string{
		"email":    "alice@example.com",
		"password": "long-enough-password",
	})
	s.Require().Equal(http.StatusOK, resp.StatusCode)
	s.NotEmpty(s.decode(resp)["token"])
}

func (s *HandlersSuite) TestAdminRoutesRequireToken() {
	resp := s.do(http.MethodGet, "/admin/queue?kind=account", "", nil)
	s.Equal(http.StatusUnauthorized, resp.StatusCode)
	resp.Body.Close()

	resp = s.do(http.MethodGet, "/admin/queue?kind=account", "garbage", nil)
	s.Equal(http.StatusUnauthorized, resp.StatusCode)
	resp.Body.Close()
}

func (s *HandlersSuite) TestQueueListsOldestFirst() {
	first := s.register("USER", "first@example.com", "First")
	second := s.register("USER", "second@example.com", "Second")

	resp := s.do(http.MethodGet, "/admin/queue?kind=account", s.adminToken, nil)
	s.Require().Equal(http.StatusOK, resp.StatusCode)

	items := s.decode(resp)["items"].([]any)
	s.Require().Len(items, 2)
	s.Equal(first, items[0].(map[string]any)["principal_id"])
	s.Equal(second, items[1].(map[string]any)["principal_id"])
}

func (s *HandlersSuite) TestSecondDecisionConflicts() {
	principalID := s.register("USER", "alice@example.com", "Alice")

	resp := s.do(http.MethodPost, "/admin/decisions", s.adminToken, map[string]string{
		"principal_id": principalID,
		"kind":         "account",
		"action":       "APPROVE",
	})
	s.Require().Equal(http.StatusOK, resp.StatusCode)
	resp.Body.Close()

	resp = s.do(http.MethodPost, "/admin/decisions", s.adminToken, map[string]string{
		"principal_id": principalID,
		"kind":         "account",
		"action":       "REJECT",
	})
	s.Equal(http.StatusConflict, resp.StatusCode)
	s.Equal("stale_state", s.decode(resp)["error"])
}

func (s *HandlersSuite) TestDecisionOnUnsubmittedKYB() {
	principalID := s.register("COMPANY", "acme@example.com", "Acme")

	// Attach evidence but never submit: the KYB record is not reviewable.
	resp := s.do(http.MethodPost, "/kyb/"+principalID+"/documents", "", map[string]string{
		"document_ref": "doc://articles",
	})
	s.Require().Equal(http.StatusOK, resp.StatusCode)
	resp.Body.Close()

	resp = s.do(http.MethodPost, "/admin/decisions", s.adminToken, map[string]string{
		"principal_id": principalID,
		"kind":         "kyb",
		"action":       "APPROVE",
	})
	s.Equal(http.StatusUnprocessableEntity, resp.StatusCode)
	s.Equal("invalid_transition", s.decode(resp)["error"])
}

func (s *HandlersSuite) TestKYBLifecycleOverHTTP() {
	principalID := s.register("COMPANY", "acme@example.com", "Acme")

	resp := s.do(http.MethodPost, "/kyb/"+principalID+"/documents", "", map[string]string{
		"document_ref": "doc://articles",
	})
	s.Require().Equal(http.StatusOK, resp.StatusCode)
	resp.Body.Close()

	resp = s.do(http.MethodPost, "/kyb/"+principalID+"/submit", "", nil)
	s.Require().Equal(http.StatusOK, resp.StatusCode)
	s.Equal("PENDING", s.decode(resp)["status"])

	resp = s.do(http.MethodPost, "/admin/decisions", s.adminToken, map[string]string{
		"principal_id": principalID,
		"kind":         "kyb",
		"action":       "APPROVE",
	})
	s.Require().Equal(http.StatusOK, resp.StatusCode)
	s.Equal("VERIFIED", s.decode(resp)["status"])

	resp = s.do(http.MethodGet, fmt.Sprintf("/admin/principals/%s/history?kind=kyb", principalID), s.adminToken, nil)
	s.Require().Equal(http.StatusOK, resp.StatusCode)
	entries := s.decode(resp)["entries"].([]any)
	s.Len(entries, 2)
}

func (s *HandlersSuite) TestSubmitWithUnknownRecord() {
	resp := s.do(http.MethodPost, "/kyb/"+uuid.NewString()+"/submit", "", nil)
	s.Equal(http.StatusNotFound, resp.StatusCode)
	resp.Body.Close()
}

func (s *HandlersSuite) TestStatusUnknownKind() {
	principalID := s.register("USER", "alice@example.com", "Alice")

	resp := s.do(http.MethodGet, "/principals/"+principalID+"/status?kind=passport", "", nil)
	s.Equal(http.StatusBadRequest, resp.StatusCode)
	resp.Body.Close()
}
