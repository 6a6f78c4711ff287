package handlers

import (
	"context"
	"encoding/json"
	"strconv"
	"time"

	"github.com/fasthttp/router"
	"github.com/wavecast/broadcast-gateway/internal/model"
	"github.com/wavecast/broadcast-gateway/internal/services"
	xhttp "github.com/wavecast/broadcast-gateway/pkg/http"
)

type BroadcastService interface {
	Create(ctx context.Context, p model.BroadcastCreateRequest) (*model.Broadcast, error)
	Launch(ctx context.Context, id string) (*model.Broadcast, error)
	Get(ctx context.Context, id string) (*model.Broadcast, error)
	Progress(ctx context.Context, id string) (*model.BroadcastProgress, error)
	List(ctx context.Context, workspaceID string, limit, offset int) ([]*model.Broadcast, int64, error)
}

type BroadcastHandler struct {
	svc BroadcastService
}

func RegisterBroadcastRoutes(e *router.Group, h *BroadcastHandler) {
	e.POST("/broadcasts", h.CreateBroadcast)
	e.POST("/broadcasts/{id}/launch", h.LaunchBroadcast)
	e.GET("/broadcasts/{id}", h.GetBroadcast)
	e.GET("/broadcasts/{id}/progress", h.GetProgress)
	e.GET("/broadcasts", h.ListBroadcasts)
}

func NewBroadcastHandler(svc BroadcastService) *BroadcastHandler {
	return &BroadcastHandler{
		svc: svc,
	}
}

type createBroadcastRequest struct {
	WorkspaceID     string `json:"workspace_id"`
	Content         string `json:"content"`
	MediaURL        string `json:"media_url"`
	RecipientFilter string `json:"recipient_filter"`
}

type broadcastListResponse struct {
	Items []*model.Broadcast `json:"items"`
	Total int64              `json:"total"`
}

/* --------------------------------- Routes ----------------------------------- */

func (h *BroadcastHandler) CreateBroadcast(ctx *xhttp.RequestCtx) {
	var req createBroadcastRequest
	if err := readJSON(ctx, &req); err != nil {
		writeError(ctx, 400, "invalid JSON: "+err.Error())
		return
	}

	b, err := h.svc.Create(ctx, model.BroadcastCreateRequest{
		WorkspaceID:     req.WorkspaceID,
		Content:         req.Content,
		MediaURL:        req.MediaURL,
		RecipientFilter: req.RecipientFilter,
	})
	if err != nil {
		writeServiceError(ctx, err)
		return
	}
	writeJSON(ctx, 201, b)
}

func (h *BroadcastHandler) LaunchBroadcast(ctx *xhttp.RequestCtx) {
	b, err := h.svc.Launch(ctx, param(ctx, "id"))
	if err != nil {
		writeServiceError(ctx, err)
		return
	}
	writeJSON(ctx, 200, b)
}

func (h *BroadcastHandler) GetBroadcast(ctx *xhttp.RequestCtx) {
	b, err := h.svc.Get(ctx, param(ctx, "id"))
	if err != nil {
		writeServiceError(ctx, err)
		return
	}
	writeJSON(ctx, 200, b)
}

func (h *BroadcastHandler) GetProgress(ctx *xhttp.RequestCtx) {
	p, err := h.svc.Progress(ctx, param(ctx, "id"))
	if err != nil {
		writeServiceError(ctx, err)
		return
	}
	writeJSON(ctx, 200, p)
}

func (h *BroadcastHandler) ListBroadcasts(ctx *xhttp.RequestCtx) {
	workspaceID := query(ctx, "workspace_id")
	if workspaceID == "" {
		writeError(ctx, 400, "workspace_id is required")
		return
	}

	items, total, err := h.svc.List(ctx, workspaceID, queryInt(ctx, "limit"), queryInt(ctx, "offset"))
	if err != nil {
		writeServiceError(ctx, err)
		return
	}
	writeJSON(ctx, 200, broadcastListResponse{Items: items, Total: total})
}

/* --------------------------------- Helpers ----------------------------------- */

func readJSON(ctx *xhttp.RequestCtx, dst any) error {
	return json.Unmarshal(ctx.PostBody(), dst)
}

func writeJSON(ctx *xhttp.RequestCtx, status int, v any) {
	b, _ := json.Marshal(v)
	ctx.Response.Header.Set("Content-Type", "application/json; charset=utf-8")
	ctx.Response.SetStatusCode(status)
	ctx.Response.SetBodyRaw(b)
}

func writeError(ctx *xhttp.RequestCtx, status int, msg string) {
	writeJSON(ctx, status, map[string]string{"error": msg})
}

// writeServiceError maps the service sentinels onto status codes.
func writeServiceError(ctx *xhttp.RequestCtx, err error) {
	switch err {
	case services.ErrNotFound:
		writeError(ctx, 404, err.Error())
	case services.ErrBroadcastFinished, services.ErrDuplicatePhone:
		writeError(ctx, 409, err.Error())
	default:
		writeError(ctx, 400, err.Error())
	}
}

func param(ctx *xhttp.RequestCtx, name string) string {
	v, _ := ctx.UserValue(name).(string)
	return v
}

func query(ctx *xhttp.RequestCtx, key string) string {
	return string(ctx.QueryArgs().Peek(key))
}

func queryInt(ctx *xhttp.RequestCtx, key string) int {
	n, _ := strconv.Atoi(query(ctx, key))
	return n
}

func parseTime(s string) (time.Time, error) {
	// Accept RFC3339 or YYYY-MM-DD
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	return time.Parse("2006-01-02", s)
}
