package handlers

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/valyala/fasthttp"
	"github.com/wavecast/broadcast-gateway/internal/model"
	"github.com/wavecast/broadcast-gateway/internal/services"
	xhttp "github.com/wavecast/broadcast-gateway/pkg/http"
)

type MockBroadcastService struct {
	mock.Mock
}

func (m *MockBroadcastService) Create(ctx context.Context, p model.BroadcastCreateRequest) (*model.Broadcast, error) {
	args := m.Called(ctx, p)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Broadcast), args.Error(1)
}

func (m *MockBroadcastService) Launch(ctx context.Context, id string) (*model.Broadcast, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Broadcast), args.Error(1)
}

func (m *MockBroadcastService) Get(ctx context.Context, id string) (*model.Broadcast, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Broadcast), args.Error(1)
}

func (m *MockBroadcastService) Progress(ctx context.Context, id string) (*model.BroadcastProgress, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.BroadcastProgress), args.Error(1)
}

func (m *MockBroadcastService) List(ctx context.Context, workspaceID string, limit, offset int) ([]*model.Broadcast, int64, error) {
	args := m.Called(ctx, workspaceID, limit, offset)
	if args.Get(0) == nil {
		return nil, args.Get(1).(int64), args.Error(2)
	}
	return args.Get(0).([]*model.Broadcast), args.Get(1).(int64), args.Error(2)
}

func setupTestContext(method, path string, body []byte) *xhttp.RequestCtx {
	ctx := &fasthttp.RequestCtx{}
	ctx.Request.Header.SetMethod(method)
	ctx.Request.SetRequestURI(path)
	if body != nil {
		ctx.Request.SetBody(body)
	}
	return ctx
}

func TestBroadcastHandler_CreateBroadcast(t *testing.T) {
	t.Run("successful creation", func(t *testing.T) {
		svc := new(MockBroadcastService)
		handler := NewBroadcastHandler(svc)

		reqBody := createBroadcastRequest{
			WorkspaceID: "ws-1",
			Content:     "big sale",
		}
		bodyBytes, _ := json.Marshal(reqBody)

		expected := &model.Broadcast{
			ID:            "bc-1",
			WorkspaceID:   "ws-1",
			Content:       "big sale",
			Status:        model.BroadcastStatusPending,
			TotalContacts: 5,
		}

		svc.On("Create", mock.Anything, mock.MatchedBy(func(p model.BroadcastCreateRequest) bool {
			return p.WorkspaceID == "ws-1" && p.Content == "big sale"
		})).Return(expected, nil)

		ctx := setupTestContext("POST", "/broadcasts", bodyBytes)
		handler.CreateBroadcast(ctx)

		assert.Equal(t, 201, ctx.Response.StatusCode())

		var response model.Broadcast
		err := json.Unmarshal(ctx.Response.Body(), &response)
		require.NoError(t, err)
		assert.Equal(t, "bc-1", response.ID)
		assert.Equal(t, 5, response.TotalContacts)

		svc.AssertExpectations(t)
	})

	t.Run("invalid JSON", func(t *testing.T) {
		svc := new(MockBroadcastService)
		handler := NewBroadcastHandler(svc)

		ctx := setupTestContext("POST", "/broadcasts", []byte("not json"))
		handler.CreateBroadcast(ctx)

		assert.Equal(t, 400, ctx.Response.StatusCode())
	})

	t.Run("unknown workspace maps to 404", func(t *testing.T) {
		svc := new(MockBroadcastService)
		handler := NewBroadcastHandler(svc)

		bodyBytes, _ := json.Marshal(createBroadcastRequest{WorkspaceID: "nope", Content: "x"})
		svc.On("Create", mock.Anything, mock.Anything).Return(nil, services.ErrNotFound)

		ctx := setupTestContext("POST", "/broadcasts", bodyBytes)
		handler.CreateBroadcast(ctx)

		assert.Equal(t, 404, ctx.Response.StatusCode())
	})
}

func TestBroadcastHandler_LaunchBroadcast(t *testing.T) {
	t.Run("launch returns the processing broadcast", func(t *testing.T) {
		svc := new(MockBroadcastService)
		handler := NewBroadcastHandler(svc)

		svc.On("Launch", mock.Anything, "bc-1").Return(&model.Broadcast{
			ID:     "bc-1",
			Status: model.BroadcastStatusProcessing,
		}, nil)

		ctx := setupTestContext("POST", "/broadcasts/bc-1/launch", nil)
		ctx.SetUserValue("id", "bc-1")
		handler.LaunchBroadcast(ctx)

		assert.Equal(t, 200, ctx.Response.StatusCode())
		svc.AssertExpectations(t)
	})

	t.Run("finished broadcast maps to 409", func(t *testing.T) {
		svc := new(MockBroadcastService)
		handler := NewBroadcastHandler(svc)

		svc.On("Launch", mock.Anything, "bc-2").Return(nil, services.ErrBroadcastFinished)

		ctx := setupTestContext("POST", "/broadcasts/bc-2/launch", nil)
		ctx.SetUserValue("id", "bc-2")
		handler.LaunchBroadcast(ctx)

		assert.Equal(t, 409, ctx.Response.StatusCode())
	})
}

func TestBroadcastHandler_GetProgress(t *testing.T) {
	svc := new(MockBroadcastService)
	handler := NewBroadcastHandler(svc)

	svc.On("Progress", mock.Anything, "bc-1").Return(&model.BroadcastProgress{
		BroadcastID: "bc-1",
		Status:      model.BroadcastStatusProcessing,
		Total:       10,
		Sent:        4,
		Failed:      1,
	}, nil)

	ctx := setupTestContext("GET", "/broadcasts/bc-1/progress", nil)
	ctx.SetUserValue("id", "bc-1")
	handler.GetProgress(ctx)

	assert.Equal(t, 200, ctx.Response.StatusCode())

	var response model.BroadcastProgress
	require.NoError(t, json.Unmarshal(ctx.Response.Body(), &response))
	assert.Equal(t, 10, response.Total)
	assert.Equal(t, 4, response.Sent)
}

func TestBroadcastHandler_ListBroadcasts(t *testing.T) {
	t.Run("missing workspace_id refuses", func(t *testing.T) {
		svc := new(MockBroadcastService)
		handler := NewBroadcastHandler(svc)

		ctx := setupTestContext("GET", "/broadcasts", nil)
		handler.ListBroadcasts(ctx)

		assert.Equal(t, 400, ctx.Response.StatusCode())
	})

	t.Run("lists by workspace", func(t *testing.T) {
		svc := new(MockBroadcastService)
		handler := NewBroadcastHandler(svc)

		svc.On("List", mock.Anything, "ws-1", 10, 0).Return([]*model.Broadcast{
			{ID: "bc-1"}, {ID: "bc-2"},
		}, int64(2), nil)

		ctx := setupTestContext("GET", "/broadcasts?workspace_id=ws-1&limit=10", nil)
		handler.ListBroadcasts(ctx)

		assert.Equal(t, 200, ctx.Response.StatusCode())

		var response broadcastListResponse
		require.NoError(t, json.Unmarshal(ctx.Response.Body(), &response))
		assert.Equal(t, int64(2), response.Total)
		assert.Len(t, response.Items, 2)
	})
}
