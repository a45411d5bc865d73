package apiv1

import (
	"bufio"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/beam-cloud/toolshelf/pkg/repository"
	"github.com/beam-cloud/toolshelf/pkg/types"
)

func newToolsServer(t *testing.T) (*echo.Echo, *repository.CollectionMemoryRepository) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	collection := repository.NewCollectionMemoryRepositoryForTest(ctx)
	e := echo.New()
	api := e.Group(HttpServerBaseRoute)
	NewHealthGroup(api.Group("/health"), collection)
	RegisterCategoriesRoute(api)
	NewToolsGroup(api.Group("/tools"), collection, "tools")
	return e, collection
}

func doJSON(e *echo.Echo, method, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func decodeData[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var resp struct {
		Success bool `json:"success"`
		Data    T    `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.True(t, resp.Success)
	return resp.Data
}

const soraJSON = `{"name":"Sora","url":"sora.com","description":"video gen","category":"Video"}`

func TestHealth(t *testing.T) {
	e, _ := newToolsServer(t)

	rec := doJSON(e, http.MethodGet, "/api/v1/health", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"ok"`)
}

func TestCategories(t *testing.T) {
	e, _ := newToolsServer(t)

	rec := doJSON(e, http.MethodGet, "/api/v1/categories", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, types.FilterCategories(), decodeData[[]types.Category](t, rec))
}

func TestCreateAndListTools(t *testing.T) {
	e, _ := newToolsServer(t)

	rec := doJSON(e, http.MethodPost, "/api/v1/tools", soraJSON)
	require.Equal(t, http.StatusCreated, rec.Code)
	created := decodeData[ToolResponse](t, rec)
	assert.NotEmpty(t, created.Id)
	assert.Equal(t, "Sora", created.Name)
	assert.Contains(t, created.Favicon, "sora.com")

	rec = doJSON(e, http.MethodPost, "/api/v1/tools",
		`{"name":"Suno","url":"suno.com","description":"music","category":"Audio"}`)
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = doJSON(e, http.MethodGet, "/api/v1/tools", "")
	require.Equal(t, http.StatusOK, rec.Code)
	list := decodeData[ToolListResponse](t, rec)
	assert.Equal(t, 2, list.Total)
	require.Len(t, list.Tools, 2)
	assert.Equal(t, "Sora", list.Tools[0].Name)
	assert.Equal(t, "Suno", list.Tools[1].Name)

	rec = doJSON(e, http.MethodGet, "/api/v1/tools?category=Audio", "")
	list = decodeData[ToolListResponse](t, rec)
	require.Len(t, list.Tools, 1)
	assert.Equal(t, "Suno", list.Tools[0].Name)

	rec = doJSON(e, http.MethodGet, "/api/v1/tools?search=VIDEO&category=Robotics", "")
	list = decodeData[ToolListResponse](t, rec)
	require.Len(t, list.Tools, 1)
	assert.Equal(t, "Sora", list.Tools[0].Name)
}

func TestCreateToolValidation(t *testing.T) {
	e, collection := newToolsServer(t)

	tests := []struct {
		name string
		body string
	}{
		{"missing url", `{"name":"X","description":"d","category":"Image"}`},
		{"unknown category", `{"name":"X","url":"x.com","description":"d","category":"Robotics"}`},
		{"all sentinel", `{"name":"X","url":"x.com","description":"d","category":"All"}`},
		{"malformed", `{"name":`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := doJSON(e, http.MethodPost, "/api/v1/tools", tt.body)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
		})
	}

	snapshot, err := collection.Snapshot(context.Background(), "tools")
	require.NoError(t, err)
	assert.Empty(t, snapshot.Tools)
}

func TestUpdateTool(t *testing.T) {
	e, collection := newToolsServer(t)

	id, err := collection.Create(context.Background(), "tools", types.ToolFields{
		Name: "Sora", Url: "sora.com", Description: "video gen", Category: "Video",
	})
	require.NoError(t, err)

	rec := doJSON(e, http.MethodPut, "/api/v1/tools/"+id,
		`{"name":"Sora","url":"sora.com","description":"video gen","category":"Generative AI"}`)
	require.Equal(t, http.StatusOK, rec.Code)

	snapshot, err := collection.Snapshot(context.Background(), "tools")
	require.NoError(t, err)
	require.Len(t, snapshot.Tools, 1)
	assert.Equal(t, "Generative AI", snapshot.Tools[0].Category)

	rec = doJSON(e, http.MethodPut, "/api/v1/tools/"+id, `{"name":"Sora"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doJSON(e, http.MethodPut, "/api/v1/tools/unknown", soraJSON)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestDeleteTool(t *testing.T) {
	e, collection := newToolsServer(t)

	id, err := collection.Create(context.Background(), "tools", types.ToolFields{
		Name: "Sora", Url: "sora.com", Description: "video gen", Category: "Video",
	})
	require.NoError(t, err)

	rec := doJSON(e, http.MethodDelete, "/api/v1/tools/"+id, "")
	assert.Equal(t, http.StatusOK, rec.Code)

	// unknown ids are not an error
	rec = doJSON(e, http.MethodDelete, "/api/v1/tools/"+id, "")
	assert.Equal(t, http.StatusOK, rec.Code)

	snapshot, err := collection.Snapshot(context.Background(), "tools")
	require.NoError(t, err)
	assert.Empty(t, snapshot.Tools)
}

func TestStreamTools(t *testing.T) {
	e, collection := newToolsServer(t)
	server := httptest.NewServer(e)
	defer server.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, server.URL+"/api/v1/tools/stream?category=Video", nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, "text/event-stream", resp.Header.Get(echo.HeaderContentType))

	events := make(chan ToolListResponse, 8)
	go func() {
		scanner := bufio.NewScanner(resp.Body)
		for scanner.Scan() {
			line := scanner.Text()
			if !strings.HasPrefix(line, "data: ") {
				continue
			}
			var list ToolListResponse
			if json.Unmarshal([]byte(strings.TrimPrefix(line, "data: ")), &list) == nil {
				events <- list
			}
		}
		close(events)
	}()

	first := <-events
	assert.Empty(t, first.Tools)

	_, err = collection.Create(context.Background(), "tools", types.ToolFields{
		Name: "Suno", Url: "suno.com", Description: "music", Category: "Audio",
	})
	require.NoError(t, err)
	_, err = collection.Create(context.Background(), "tools", types.ToolFields{
		Name: "Sora", Url: "sora.com", Description: "video gen", Category: "Video",
	})
	require.NoError(t, err)

	// snapshots may be coalesced; wait for the one with both records
	for list := range events {
		if list.Total == 2 {
			require.Len(t, list.Tools, 1)
			assert.Equal(t, "Sora", list.Tools[0].Name)
			return
		}
	}
	t.Fatal("stream closed before the second snapshot")
}
