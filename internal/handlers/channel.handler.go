package handlers

import (
	"context"

	"github.com/fasthttp/router"
	"github.com/wavecast/broadcast-gateway/internal/model"
	xhttp "github.com/wavecast/broadcast-gateway/pkg/http"
)

type ChannelService interface {
	Connect(ctx context.Context, workspaceID string) (*model.ChannelSession, error)
	Status(ctx context.Context, workspaceID string) (*model.ChannelSession, error)
	Disconnect(ctx context.Context, workspaceID string) error
}

type ChannelHandler struct {
	svc ChannelService
}

func RegisterChannelRoutes(e *router.Group, h *ChannelHandler) {
	e.POST("/workspaces/{id}/channel/connect", h.Connect)
	e.GET("/workspaces/{id}/channel", h.Status)
	e.DELETE("/workspaces/{id}/channel", h.Disconnect)
}

func NewChannelHandler(svc ChannelService) *ChannelHandler {
	return &ChannelHandler{
		svc: svc,
	}
}

// channelResponse hides the credential blob; the UI only needs status
// and, while pairing, the code.
type channelResponse struct {
	WorkspaceID string `json:"workspace_id"`
	Status      string `json:"status"`
	PairingCode string `json:"pairing_code,omitempty"`
	EndpointID  string `json:"endpoint_id,omitempty"`
}

func toChannelResponse(s *model.ChannelSession) channelResponse {
	return channelResponse{
		WorkspaceID: s.WorkspaceID,
		Status:      string(s.Status),
		PairingCode: s.PairingCode,
		EndpointID:  s.EndpointID,
	}
}

func (h *ChannelHandler) Connect(ctx *xhttp.RequestCtx) {
	s, err := h.svc.Connect(ctx, param(ctx, "id"))
	if err != nil {
		writeServiceError(ctx, err)
		return
	}
	writeJSON(ctx, 202, toChannelResponse(s))
}

func (h *ChannelHandler) Status(ctx *xhttp.RequestCtx) {
	s, err := h.svc.Status(ctx, param(ctx, "id"))
	if err != nil {
		writeServiceError(ctx, err)
		return
	}
	writeJSON(ctx, 200, toChannelResponse(s))
}

func (h *ChannelHandler) Disconnect(ctx *xhttp.RequestCtx) {
	if err := h.svc.Disconnect(ctx, param(ctx, "id")); err != nil {
		writeServiceError(ctx, err)
		return
	}
	writeJSON(ctx, 200, map[string]string{"status": "disconnected"})
}
