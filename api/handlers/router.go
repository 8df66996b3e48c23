package handlers

import (
	"github.com/gin-gonic/gin"

	"github.com/vekjja/espwifi-broker/internal/ws"
)

// Deps are the collaborators the router hands to its handlers.
type Deps struct {
	Service *ws.Service
	// Events is nil when no journal store is configured.
	Events EventLister
}

// NewRouter builds the gin engine serving every broker endpoint.
func NewRouter(deps Deps) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), RequestLogger(), CORS())

	r.GET("/healthz", Health)

	NewWebSocketHandler(deps.Service).RegisterRoutes(r)

	api := r.Group("/api")
	{
		NewClaimHandler(deps.Service).RegisterRoutes(api)
		NewDeviceHandler(deps.Service, deps.Events).RegisterRoutes(api)
	}

	return r
}
