// Parley - Real-time Room Messaging Server
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/parley

package authz

import (
	"context"
	"errors"
	"fmt"

	"github.com/tomtom215/parley/internal/logging"
	"github.com/tomtom215/parley/internal/models"
)

var (
	// ErrNotMember is returned when the caller does not belong to the room.
	ErrNotMember = errors.New("not a member of this room")

	// ErrForbidden is returned when the caller's role lacks the action.
	ErrForbidden = errors.New("insufficient room permissions")
)

// MembershipProvider resolves durable room membership.
type MembershipProvider interface {
	IsMember(ctx context.Context, principalID, roomID string) (models.Role, bool, error)
	RoomsOf(ctx context.Context, principalID string) ([]string, error)
}

// Service combines durable membership with the role policy.
type Service struct {
	enforcer *Enforcer
	members  MembershipProvider
}

// NewService creates the room authorization service.
func NewService(enforcer *Enforcer, members MembershipProvider) *Service {
	return &Service{enforcer: enforcer, members: members}
}

// Enforcer returns the underlying policy enforcer.
func (s *Service) Enforcer() *Enforcer {
	return s.enforcer
}

// RoomRole returns the caller's durable role, or ErrNotMember.
func (s *Service) RoomRole(ctx context.Context, principalID, roomID string) (models.Role, error) {
	role, ok, err := s.members.IsMember(ctx, principalID, roomID)
	if err != nil {
		AuthzErrorsTotal.WithLabelValues("membership_lookup").Inc()
		return "", fmt.Errorf("membership lookup: %w", err)
	}
	if !ok {
		return "", ErrNotMember
	}
	return role, nil
}

// Require checks that the caller belongs to the room and that their role
// grants action. It returns the role on success.
func (s *Service) Require(ctx context.Context, principalID, roomID, action string) (models.Role, error) {
	role, err := s.RoomRole(ctx, principalID, roomID)
	if err != nil {
		return "", err
	}
	if err := s.Check(role, action); err != nil {
		logging.Ctx(ctx).Debug().
			Str("room_id", roomID).
			Str("role", string(role)).
			Str("action", action).
			Msg("room action denied")
		return role, err
	}
	return role, nil
}

// Check returns ErrForbidden unless role grants action.
func (s *Service) Check(role models.Role, action string) error {
	allowed, err := s.enforcer.Allowed(role, action)
	if err != nil {
		return err
	}
	if !allowed {
		return ErrForbidden
	}
	return nil
}

// RequireNotify permits a direct notice when the actor holds user:notify
// in at least one room the target also belongs to.
func (s *Service) RequireNotify(ctx context.Context, actorID, targetID string) error {
	rooms, err := s.members.RoomsOf(ctx, targetID)
	if err != nil {
		AuthzErrorsTotal.WithLabelValues("membership_lookup").Inc()
		return fmt.Errorf("membership lookup: %w", err)
	}
	for _, roomID := range rooms {
		role, ok, err := s.members.IsMember(ctx, actorID, roomID)
		if err != nil {
			AuthzErrorsTotal.WithLabelValues("membership_lookup").Inc()
			return fmt.Errorf("membership lookup: %w", err)
		}
		if !ok {
			continue
		}
		if s.Check(role, ActionUserNotify) == nil {
			return nil
		}
	}
	return ErrForbidden
}
