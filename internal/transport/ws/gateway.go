// Package ws maps realtime channel events onto the admin coordination services.
package ws

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"

	"github.com/go-restaurant-api/internal/application/approval"
	"github.com/go-restaurant-api/internal/domain"
	jwtinfra "github.com/go-restaurant-api/internal/infrastructure/jwt"
	"github.com/go-restaurant-api/internal/infrastructure/wshub"
)

type tokenVerifier interface {
	Verify(token string) (*jwtinfra.Claims, error)
}

type presenceRegistry interface {
	Register(adminID, address, displayName string) domain.AdminPresenceRecord
	Unregister(address string) (domain.AdminPresenceRecord, bool)
}

type (
	authenticateRequest struct {
		Token string `json:"token"`
	}
	registerPendingRequest struct {
		ApprovalID string `json:"approvalId"`
	}
	approvalResponseRequest struct {
		ApprovalID string `json:"approvalId"`
		Approved   bool   `json:"approved"`
	}

	authenticatedPayload struct {
		Identity string `json:"identity"`
		Role     string `json:"role"`
		Name     string `json:"name"`
	}
	pendingRegisteredPayload struct {
		ApprovalID string `json:"approvalId"`
	}
	messagePayload struct {
		Message string `json:"message"`
	}
)

// Gateway is the wshub.Handler of the realtime channel.
type Gateway struct {
	verifier  tokenVerifier
	presence  presenceRegistry
	approvals approval.Service
}

func NewGateway(verifier tokenVerifier, presence presenceRegistry, approvals approval.Service) *Gateway {
	return &Gateway{verifier: verifier, presence: presence, approvals: approvals}
}

func (g *Gateway) HandleEvent(ctx context.Context, s wshub.Session, env wshub.Envelope) {
	switch env.Event {
	case domain.EventAuthenticate:
		g.authenticate(s, env.Data)
	case domain.EventRegisterPendingUser:
		g.registerPending(s, env.Data)
	case domain.EventLoginApprovalResponse:
		g.decide(ctx, s, env.Data)
	default:
		g.fail(s, domain.EventError, "unknown event "+env.Event)
	}
}

// HandleDisconnect drops the admin presence held by the closed connection.
func (g *Gateway) HandleDisconnect(s wshub.Session) {
	if rec, ok := g.presence.Unregister(s.Address()); ok {
		slog.Info("admin went offline", "admin_id", rec.AdminID, "address", s.Address())
	}
}

// authenticate trusts only the signed token: identity, role and name come from
// its claims.
func (g *Gateway) authenticate(s wshub.Session, data json.RawMessage) {
	var req authenticateRequest
	if err := json.Unmarshal(data, &req); err != nil || req.Token == "" {
		g.fail(s, domain.EventAuthenticationError, "token is required")
		return
	}
	claims, err := g.verifier.Verify(req.Token)
	if err != nil {
		g.fail(s, domain.EventAuthenticationError, "invalid or expired token")
		return
	}

	// Re-authenticating replaces the identity, so drop any presence the old one held.
	if prev, bound := s.Identity(); bound && (prev.UserID != claims.UserID || claims.Role != domain.RoleAdmin) {
		if rec, ok := g.presence.Unregister(s.Address()); ok {
			slog.Info("admin went offline", "admin_id", rec.AdminID, "address", s.Address())
		}
	}
	s.Bind(wshub.Identity{UserID: claims.UserID, Role: claims.Role, Name: claims.Name})
	if claims.Role == domain.RoleAdmin {
		g.presence.Register(claims.UserID, s.Address(), claims.Name)
		s.Join(domain.GroupAdmins)
		slog.Info("admin online", "admin_id", claims.UserID, "address", s.Address())
	}
	g.send(s, domain.EventAuthenticated, authenticatedPayload{
		Identity: claims.UserID,
		Role:     claims.Role,
		Name:     claims.Name,
	})
}

func (g *Gateway) registerPending(s wshub.Session, data json.RawMessage) {
	var req registerPendingRequest
	if err := json.Unmarshal(data, &req); err != nil || req.ApprovalID == "" {
		g.fail(s, domain.EventError, "approvalId is required")
		return
	}
	if err := g.approvals.AttachRequester(req.ApprovalID, s.Address()); err != nil {
		msg := "approval not found or expired"
		if errors.Is(err, domain.ErrConflict) {
			msg = "approval is registered to another connection"
		}
		g.fail(s, domain.EventError, msg)
		return
	}
	g.send(s, domain.EventPendingRegistered, pendingRegisteredPayload{ApprovalID: req.ApprovalID})
}

func (g *Gateway) decide(ctx context.Context, s wshub.Session, data json.RawMessage) {
	ident, ok := s.Identity()
	if !ok || ident.Role != domain.RoleAdmin {
		g.fail(s, domain.EventError, "administrator authentication required")
		return
	}
	var req approvalResponseRequest
	if err := json.Unmarshal(data, &req); err != nil || req.ApprovalID == "" {
		g.fail(s, domain.EventError, "approvalId is required")
		return
	}
	if _, err := g.approvals.Decide(ctx, ident.UserID, req.ApprovalID, req.Approved); err != nil {
		msg := "could not record decision"
		switch {
		case errors.Is(err, domain.ErrApprovalNotFound):
			msg = "approval not found or expired"
		case errors.Is(err, domain.ErrUnauthorized):
			msg = "administrator authentication required"
		default:
			slog.Error("login approval decision failed", "approval_id", req.ApprovalID, "err", err)
		}
		g.fail(s, domain.EventError, msg)
	}
}

func (g *Gateway) fail(s wshub.Session, event, msg string) {
	g.send(s, event, messagePayload{Message: msg})
}

func (g *Gateway) send(s wshub.Session, event string, payload any) {
	if err := s.Send(event, payload); err != nil {
		slog.Warn("realtime reply dropped", "event", event, "address", s.Address(), "err", err)
	}
}
