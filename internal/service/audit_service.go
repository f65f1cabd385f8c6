package service

import (
	"context"
	"fmt"
	"time"

	"backend/internal/repository"
)

type AuditEntryResponse struct {
	ID         string `json:"id"`
	UserID     string `json:"user_id,omitempty"`
	Username   string `json:"username,omitempty"`
	Action     string `json:"action"`
	EntityID   string `json:"entity_id"`
	EntityName string `json:"entity_name,omitempty"`
	Details    string `json:"details"`
	CreatedAt  string `json:"created_at"`
}

// AuditService exposes the audit trail written alongside workflow mutations.
type AuditService interface {
	List(ctx context.Context, action string, page, limit int) ([]AuditEntryResponse, int64, error)
}

type auditService struct {
	repo repository.AuditRepository
}

func NewAuditService(repo repository.AuditRepository) AuditService {
	return &auditService{repo: repo}
}

func (s *auditService) List(ctx context.Context, action string, page, limit int) ([]AuditEntryResponse, int64, error) {
	entries, total, err := s.repo.List(ctx, action, (page-1)*limit, limit)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list audit entries: %w", err)
	}

	result := make([]AuditEntryResponse, 0, len(entries))
	for _, entry := range entries {
		resp := AuditEntryResponse{
			ID:         entry.ID.String(),
			Action:     entry.Action,
			EntityID:   entry.EntityID,
			EntityName: entry.EntityName,
			Details:    entry.Details,
			CreatedAt:  entry.CreatedAt.Format(time.RFC3339),
		}
		if entry.UserID != nil {
			resp.UserID = entry.UserID.String()
		}
		if entry.User != nil {
			resp.Username = entry.User.Username
		}
		result = append(result, resp)
	}
	return result, total, nil
}
