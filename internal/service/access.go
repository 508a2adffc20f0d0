package service

import (
	"errors"
	"fmt"

	"github.com/ivmel/modelbooth-bot/internal/models"
	"github.com/ivmel/modelbooth-bot/internal/store"
)

// ErrNotAdmin marks an approve/deny attempt by anyone other than the
// configured admin. Callers ignore it silently; unauthorized moderation
// attempts get no feedback at all.
var ErrNotAdmin = errors.New("invoker is not the admin")

// AccessService is the approval workflow: users request access once, the
// single admin approves or denies, and every gated action re-checks status
// at call time so a revocation takes effect on the next action.
type AccessService struct {
	registry *store.Registry
	adminID  string
}

func NewAccessService(registry *store.Registry, adminID string) *AccessService {
	return &AccessService{registry: registry, adminID: adminID}
}

// RequestAccess records the user as pending. Repeated requests are no-ops;
// only the first creates the record.
func (s *AccessService) RequestAccess(userID, displayName string) (bool, error) {
	created, err := s.registry.EnsurePending(userID, displayName)
	if err != nil {
		return false, fmt.Errorf("request access: %w", err)
	}
	return created, nil
}

// Approve marks the target user approved. Only the admin may call it.
func (s *AccessService) Approve(invokerID, targetID string) error {
	if invokerID != s.adminID {
		return ErrNotAdmin
	}
	return s.registry.SetStatus(targetID, models.StatusApproved)
}

// Deny marks the target user denied. Only the admin may call it.
func (s *AccessService) Deny(invokerID, targetID string) error {
	if invokerID != s.adminID {
		return ErrNotAdmin
	}
	return s.registry.SetStatus(targetID, models.StatusDenied)
}

// IsApproved reports whether the user may use gated actions.
func (s *AccessService) IsApproved(userID string) bool {
	status, ok := s.registry.Status(userID)
	return ok && status == models.StatusApproved
}

// IsAdmin reports whether the id is the configured admin identity.
func (s *AccessService) IsAdmin(userID string) bool {
	return userID == s.adminID
}

// ListByStatus exposes registry listings for the admin surface.
func (s *AccessService) ListByStatus(status models.Status) []models.User {
	return s.registry.ListByStatus(status)
}
