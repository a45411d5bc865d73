package apiv1

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog/log"

	"github.com/beam-cloud/toolshelf/pkg/catalog"
	"github.com/beam-cloud/toolshelf/pkg/repository"
	"github.com/beam-cloud/toolshelf/pkg/types"
)

type ToolsGroup struct {
	routerGroup *echo.Group
	collection  repository.CollectionRepository
	path        string
}

type ToolRequest struct {
	Name        string `json:"name"`
	Url         string `json:"url"`
	Description string `json:"description"`
	Category    string `json:"category"`
}

type ToolResponse struct {
	Id          string `json:"id"`
	Name        string `json:"name"`
	Url         string `json:"url"`
	Description string `json:"description"`
	Category    string `json:"category"`
	Favicon     string `json:"favicon"`
}

type ToolListResponse struct {
	Path  string         `json:"path"`
	Total int            `json:"total"`
	Tools []ToolResponse `json:"tools"`
}

func NewToolsGroup(routerGroup *echo.Group, collection repository.CollectionRepository, path string) *ToolsGroup {
	if path == "" {
		path = catalog.DefaultPath
	}
	g := &ToolsGroup{routerGroup: routerGroup, collection: collection, path: path}
	g.registerRoutes()
	return g
}

func (g *ToolsGroup) registerRoutes() {
	g.routerGroup.GET("", g.ListTools)
	g.routerGroup.POST("", g.CreateTool)
	g.routerGroup.GET("/stream", g.StreamTools)
	g.routerGroup.PUT("/:id", g.UpdateTool)
	g.routerGroup.DELETE("/:id", g.DeleteTool)
}

// RegisterCategoriesRoute exposes the filter categories, "All" first.
func RegisterCategoriesRoute(routerGroup *echo.Group) {
	routerGroup.GET("/categories", func(c echo.Context) error {
		return SuccessResponse(c, types.FilterCategories())
	})
}

func (g *ToolsGroup) ListTools(c echo.Context) error {
	search, category := filterParams(c)

	snapshot, err := g.collection.Snapshot(c.Request().Context(), g.path)
	if err != nil {
		log.Error().Err(err).Str("path", g.path).Msg("failed to load snapshot")
		return ErrorResponse(c, http.StatusInternalServerError, "failed to load tools")
	}

	return SuccessResponse(c, toolList(snapshot, search, category))
}

func (g *ToolsGroup) CreateTool(c echo.Context) error {
	var req ToolRequest
	if err := c.Bind(&req); err != nil {
		return ErrorResponse(c, http.StatusBadRequest, "invalid request body")
	}

	fields := req.fields()
	if err := types.ValidateFields(fields); err != nil {
		return ErrorResponse(c, http.StatusBadRequest, err.Error())
	}

	id, err := g.collection.Create(c.Request().Context(), g.path, fields)
	if err != nil {
		log.Error().Err(err).Str("path", g.path).Msg("failed to create tool")
		return ErrorResponse(c, http.StatusInternalServerError, "failed to create tool")
	}

	return c.JSON(http.StatusCreated, Response{
		Success: true,
		Data:    toolToResponse(types.NewTool(id, fields)),
	})
}

func (g *ToolsGroup) UpdateTool(c echo.Context) error {
	id := c.Param("id")

	var req ToolRequest
	if err := c.Bind(&req); err != nil {
		return ErrorResponse(c, http.StatusBadRequest, "invalid request body")
	}

	fields := req.fields()
	if err := types.ValidateFields(fields); err != nil {
		return ErrorResponse(c, http.StatusBadRequest, err.Error())
	}

	if err := g.collection.Update(c.Request().Context(), g.path, id, fields); err != nil {
		if (&types.ErrToolNotFound{}).From(err) {
			return ErrorResponse(c, http.StatusNotFound, "tool not found")
		}
		log.Error().Err(err).Str("path", g.path).Str("id", id).Msg("failed to update tool")
		return ErrorResponse(c, http.StatusInternalServerError, "failed to update tool")
	}

	return SuccessResponse(c, toolToResponse(types.NewTool(id, fields)))
}

// DeleteTool succeeds whether or not the id exists.
func (g *ToolsGroup) DeleteTool(c echo.Context) error {
	id := c.Param("id")

	if err := g.collection.Delete(c.Request().Context(), g.path, id); err != nil {
		log.Error().Err(err).Str("path", g.path).Str("id", id).Msg("failed to delete tool")
		return ErrorResponse(c, http.StatusInternalServerError, "failed to delete tool")
	}

	return SuccessResponse(c, map[string]string{"id": id})
}

// StreamTools sends a "snapshot" event with the filtered list every time the
// collection changes. A slow client only ever sees the newest snapshot.
func (g *ToolsGroup) StreamTools(c echo.Context) error {
	ctx := c.Request().Context()
	search, category := filterParams(c)

	snapshots := newLatest[types.Snapshot]()
	unsubscribe, err := g.collection.Subscribe(ctx, g.path, snapshots.put)
	if err != nil {
		log.Error().Err(err).Str("path", g.path).Msg("failed to subscribe")
		return ErrorResponse(c, http.StatusInternalServerError, "failed to subscribe")
	}
	defer unsubscribe()

	startSSE(c)

	heartbeat := time.NewTicker(HeartbeatInterval)
	defer heartbeat.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case snapshot := <-snapshots.ch:
			if err := writeSSE(c, "snapshot", toolList(snapshot, search, category)); err != nil {
				return nil
			}
		case <-heartbeat.C:
			if err := writeHeartbeat(c); err != nil {
				return nil
			}
		}
	}
}

func (r ToolRequest) fields() types.ToolFields {
	return types.ToolFields{
		Name:        r.Name,
		Url:         r.Url,
		Description: r.Description,
		Category:    r.Category,
	}
}

// filterParams reads search and category from the query. An unknown category
// is treated as All, the same as the page filter.
func filterParams(c echo.Context) (string, types.Category) {
	category := types.Category(c.QueryParam("category"))
	if !category.IsFilter() {
		category = types.CategoryAll
	}
	return c.QueryParam("search"), category
}

func toolList(snapshot types.Snapshot, search string, category types.Category) ToolListResponse {
	complete := make([]types.Tool, 0, len(snapshot.Tools))
	for _, t := range snapshot.Tools {
		if t.Complete() {
			complete = append(complete, t)
		}
	}

	filtered := catalog.Filter(complete, search, category)
	resp := ToolListResponse{
		Path:  snapshot.Path,
		Total: len(complete),
		Tools: make([]ToolResponse, 0, len(filtered)),
	}
	for _, t := range filtered {
		resp.Tools = append(resp.Tools, toolToResponse(t))
	}
	return resp
}

func toolToResponse(t types.Tool) ToolResponse {
	return ToolResponse{
		Id:          t.Id,
		Name:        t.Name,
		Url:         t.Url,
		Description: t.Description,
		Category:    t.Category,
		Favicon:     t.FaviconURL(),
	}
}
