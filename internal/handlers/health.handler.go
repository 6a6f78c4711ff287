package handlers

import (
	"context"

	"github.com/fasthttp/router"
	xhttp "github.com/wavecast/broadcast-gateway/pkg/http"
)

type HealthService interface {
	Check(ctx context.Context) error
}

type HealthHandler struct {
	svc HealthService
}

func RegisterHealthRoutes(e *router.Group, h *HealthHandler) {
	e.GET("/health", h.GetHealth)
}

func NewHealthHandler(svc HealthService) *HealthHandler {
	return &HealthHandler{
		svc: svc,
	}
}

func (h *HealthHandler) GetHealth(ctx *xhttp.RequestCtx) {
	if err := h.svc.Check(ctx); err != nil {
		writeError(ctx, 503, err.Error())
		return
	}
	ctx.Response.SetBodyString("success")
}
