package handlers

import (
	"context"

	"github.com/fasthttp/router"
	"github.com/wavecast/broadcast-gateway/internal/model"
	xhttp "github.com/wavecast/broadcast-gateway/pkg/http"
)

type WorkspaceService interface {
	Create(ctx context.Context, name string) (*model.Workspace, error)
	Get(ctx context.Context, id string) (*model.Workspace, error)
}

type ContactService interface {
	Create(ctx context.Context, p model.ContactCreateRequest) (*model.Contact, error)
	List(ctx context.Context, workspaceID, tag string, limit, offset int) ([]*model.Contact, int64, error)
}

type WorkspaceHandler struct {
	workspaces WorkspaceService
	contacts   ContactService
}

func RegisterWorkspaceRoutes(e *router.Group, h *WorkspaceHandler) {
	e.POST("/workspaces", h.CreateWorkspace)
	e.GET("/workspaces/{id}", h.GetWorkspace)
	e.POST("/workspaces/{id}/contacts", h.CreateContact)
	e.GET("/workspaces/{id}/contacts", h.ListContacts)
}

func NewWorkspaceHandler(workspaces WorkspaceService, contacts ContactService) *WorkspaceHandler {
	return &WorkspaceHandler{
		workspaces: workspaces,
		contacts:   contacts,
	}
}

type createWorkspaceRequest struct {
	Name string `json:"name"`
}

type createContactRequest struct {
	Name  string `json:"name"`
	Phone string `json:"phone"`
	Tag   string `json:"tag"`
}

type contactListResponse struct {
	Items []*model.Contact `json:"items"`
	Total int64            `json:"total"`
}

func (h *WorkspaceHandler) CreateWorkspace(ctx *xhttp.RequestCtx) {
	var req createWorkspaceRequest
	if err := readJSON(ctx, &req); err != nil {
		writeError(ctx, 400, "invalid JSON: "+err.Error())
		return
	}

	w, err := h.workspaces.Create(ctx, req.Name)
	if err != nil {
		writeServiceError(ctx, err)
		return
	}
	writeJSON(ctx, 201, w)
}

func (h *WorkspaceHandler) GetWorkspace(ctx *xhttp.RequestCtx) {
	w, err := h.workspaces.Get(ctx, param(ctx, "id"))
	if err != nil {
		writeServiceError(ctx, err)
		return
	}
	writeJSON(ctx, 200, w)
}

func (h *WorkspaceHandler) CreateContact(ctx *xhttp.RequestCtx) {
	var req createContactRequest
	if err := readJSON(ctx, &req); err != nil {
		writeError(ctx, 400, "invalid JSON: "+err.Error())
		return
	}

	c, err := h.contacts.Create(ctx, model.ContactCreateRequest{
		WorkspaceID: param(ctx, "id"),
		Name:        req.Name,
		Phone:       req.Phone,
		Tag:         req.Tag,
	})
	if err != nil {
		writeServiceError(ctx, err)
		return
	}
	writeJSON(ctx, 201, c)
}

func (h *WorkspaceHandler) ListContacts(ctx *xhttp.RequestCtx) {
	items, total, err := h.contacts.List(ctx, param(ctx, "id"), query(ctx, "tag"), queryInt(ctx, "limit"), queryInt(ctx, "offset"))
	if err != nil {
		writeServiceError(ctx, err)
		return
	}
	writeJSON(ctx, 200, contactListResponse{Items: items, Total: total})
}
