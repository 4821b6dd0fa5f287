package http

import (
	"github.com/go-restaurant-api/internal/application/approval"
	"github.com/go-restaurant-api/internal/application/auth"
	"github.com/go-restaurant-api/internal/application/dashboard"
	jwtinfra "github.com/go-restaurant-api/internal/infrastructure/jwt"
	"github.com/go-restaurant-api/internal/infrastructure/wshub"
)

// Deps holds the services and infrastructure the router exposes. Services are
// built and run by the caller; the router only wires them to routes.
type Deps struct {
	Auth        auth.Service
	Approvals   approval.Service
	Dashboard   dashboard.Service
	JWTProvider *jwtinfra.Provider
	Realtime    *wshub.Hub
}
