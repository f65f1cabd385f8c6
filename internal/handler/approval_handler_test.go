package handler

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"backend/internal/service"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
)

type approvalServiceStub struct {
	calls    int
	decision service.Decision
	comment  string
}

func (s *approvalServiceStub) RecordApprovalAction(ctx context.Context, requestID, actorID string, decision service.Decision, comment string) (*service.RequestResponse, error) {
	s.calls++
	s.decision = decision
	s.comment = comment
	return &service.RequestResponse{ID: requestID, Status: string(decision)}, nil
}

func (s *approvalServiceStub) ListPending(ctx context.Context, page, limit int) ([]service.RequestResponse, int64, error) {
	return nil, 0, nil
}

func (s *approvalServiceStub) ListReviewed(ctx context.Context, actorID string, mine bool, page, limit int) ([]service.RequestResponse, int64, error) {
	return nil, 0, nil
}

func newDecisionRouter(stub *approvalServiceStub) *gin.Engine {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(func(c *gin.Context) {
		c.Set("userID", "9c9e3f66-6a3e-4d26-9b2c-2f6d7c3f1a01")
	})
	h := NewApprovalHandler(stub)
	router.PATCH("/requests/:id/approve", h.ApproveRequest)
	router.PATCH("/requests/:id/reject", h.RejectRequest)
	return router
}

func TestDecideMalformedBodyIsRejected(t *testing.T) {
	stub := &approvalServiceStub{}
	router := newDecisionRouter(stub)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPatch, "/requests/abc/reject", strings.NewReader(`{"comment": "price too`))
	req.Header.Set("Content-Type", "application/json")
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Zero(t, stub.calls)
}

func TestDecideEmptyBodyApproves(t *testing.T) {
	stub := &approvalServiceStub{}
	router := newDecisionRouter(stub)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPatch, "/requests/abc/approve", nil)
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 1, stub.calls)
	assert.Equal(t, service.DecisionApprove, stub.decision)
	assert.Empty(t, stub.comment)
}

func TestDecideCommentPassedThrough(t *testing.T) {
	stub := &approvalServiceStub{}
	router := newDecisionRouter(stub)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPatch, "/requests/abc/reject", strings.NewReader(`{"comment":"price too high"}`))
	req.Header.Set("Content-Type", "application/json")
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 1, stub.calls)
	assert.Equal(t, service.DecisionReject, stub.decision)
	assert.Equal(t, "price too high", stub.comment)
}
