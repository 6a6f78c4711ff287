package handlers

import (
	"context"
	"strings"

	"github.com/fasthttp/router"
	"github.com/wavecast/broadcast-gateway/internal/model"
	xhttp "github.com/wavecast/broadcast-gateway/pkg/http"
)

type MessageLister interface {
	List(ctx context.Context, f model.MessageFilter) ([]*model.Message, int64, error)
}

type MessageHandler struct {
	svc MessageLister
}

func RegisterMessageRoutes(e *router.Group, h *MessageHandler) {
	e.GET("/messages", h.ListMessages)
}

func NewMessageHandler(svc MessageLister) *MessageHandler {
	return &MessageHandler{
		svc: svc,
	}
}

type messageListResponse struct {
	Items []*model.Message `json:"items"`
	Total int64            `json:"total"`
}

func (h *MessageHandler) ListMessages(ctx *xhttp.RequestCtx) {
	var f model.MessageFilter

	if v := query(ctx, "workspace_id"); v != "" {
		f.WorkspaceID = &v
	}
	if v := query(ctx, "broadcast_id"); v != "" {
		f.BroadcastID = &v
	}
	if v := query(ctx, "contact_id"); v != "" {
		f.ContactID = &v
	}
	if v := query(ctx, "direction"); v != "" {
		d := model.MessageDirection(v)
		f.Direction = &d
	}
	if v := query(ctx, "status"); v != "" {
		parts := strings.Split(v, ",")
		for i := range parts {
			parts[i] = strings.TrimSpace(parts[i])
			if parts[i] != "" {
				f.Statuses = append(f.Statuses, model.MessageStatus(parts[i]))
			}
		}
	}
	if v := query(ctx, "from"); v != "" {
		if t, e := parseTime(v); e == nil {
			f.From = &t
		}
	}
	if v := query(ctx, "to"); v != "" {
		if t, e := parseTime(v); e == nil {
			f.To = &t
		}
	}
	f.Limit = queryInt(ctx, "limit")
	f.Offset = queryInt(ctx, "offset")
	if strings.EqualFold(query(ctx, "order"), "desc") {
		f.Desc = true
	}

	items, total, err := h.svc.List(ctx, f)
	if err != nil {
		writeError(ctx, 400, err.Error())
		return
	}
	writeJSON(ctx, 200, messageListResponse{Items: items, Total: total})
}
