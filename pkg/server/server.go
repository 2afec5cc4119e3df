// Package server exposes a theme engine over HTTP, with a WebSocket stream
// of engine events.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/roomforge/themekit/pkg/engine"
	"github.com/roomforge/themekit/pkg/inheritance"
	"github.com/roomforge/themekit/pkg/overrides"
	"github.com/roomforge/themekit/pkg/registry"
	"github.com/roomforge/themekit/pkg/theme"
)

type Server struct {
	e      *echo.Echo
	engine *engine.Engine
}

func New(eng *engine.Engine) *Server {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Use(middleware.CORS())
	e.Use(middleware.RequestIDWithConfig(middleware.RequestIDConfig{
		Generator: uuid.NewString,
	}))
	e.Use(middleware.RequestLogger())

	s := &Server{
		e:      e,
		engine: eng,
	}

	group := e.Group("/api")

	// List all themes
	group.GET("/themes", s.listThemes)
	// Get, create or replace, and delete a theme record
	group.GET("/themes/:id", s.getTheme)
	group.PUT("/themes/:id", s.putTheme)
	group.DELETE("/themes/:id", s.deleteTheme)
	// Replace the own configuration of a theme
	group.PUT("/themes/:id/config", s.putThemeConfig)
	// Hierarchy queries
	group.GET("/themes/:id/resolved", s.resolveTheme)
	group.GET("/themes/:id/chain", s.getChain)
	group.GET("/themes/:id/descendants", s.getDescendants)
	// Inheritance edits
	group.PUT("/themes/:id/parent", s.putParent)
	group.DELETE("/themes/:id/parent", s.deleteParent)
	// Apply override buckets
	group.POST("/themes/:id/overrides", s.applyOverrides)

	group.GET("/stats", s.getStats)
	// Stream engine events
	group.GET("/events", s.streamEvents)

	// Health check endpoint
	group.GET("/ping", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
	})

	return s
}

// Handler returns the HTTP handler of the server.
func (s *Server) Handler() http.Handler {
	return s.e
}

// Serve serves on ln until ctx is done.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := http.Server{
		Handler:           s.e,
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) && ctx.Err() == nil {
		slog.Error("Failed to start server", "error", err)
		return err
	}

	return nil
}

type ResolvedResponse struct {
	ThemeID string        `json:"theme_id"`
	Chain   []string      `json:"chain"`
	Config  *theme.Config `json:"config"`
}

type ChainResponse struct {
	ThemeID string   `json:"theme_id"`
	Chain   []string `json:"chain"`
}

type DescendantsResponse struct {
	ThemeID     string   `json:"theme_id"`
	Descendants []string `json:"descendants"`
}

type ParentRequest struct {
	Parent string `json:"parent"`
}

func (s *Server) listThemes(c echo.Context) error {
	records, err := s.engine.ListThemes(c.Request().Context())
	if err != nil {
		return httpError("failed to list themes", err)
	}
	if records == nil {
		records = []*theme.Record{}
	}
	return c.JSON(http.StatusOK, records)
}

func (s *Server) getTheme(c echo.Context) error {
	rec, err := s.engine.GetTheme(c.Request().Context(), c.Param("id"))
	if err != nil {
		return httpError("failed to get theme", err)
	}
	return c.JSON(http.StatusOK, rec)
}

func (s *Server) putTheme(c echo.Context) error {
	id := c.Param("id")

	var doc map[string]any
	if err := decodeJSON(c, &doc); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, fmt.Sprintf("invalid request body: %v", err))
	}
	if doc == nil {
		doc = map[string]any{}
	}
	if bodyID, ok := doc["id"]; ok && bodyID != id {
		return echo.NewHTTPError(http.StatusBadRequest, fmt.Sprintf("theme id %v does not match path %q", bodyID, id))
	}
	doc["id"] = id

	rec, err := theme.RecordFromMap(doc)
	if err != nil {
		return httpError("invalid theme", err)
	}
	if err := s.engine.RegisterTheme(c.Request().Context(), rec); err != nil {
		return httpError("failed to store theme", err)
	}
	return c.JSON(http.StatusOK, rec)
}

func (s *Server) deleteTheme(c echo.Context) error {
	if err := s.engine.DeleteTheme(c.Request().Context(), c.Param("id")); err != nil {
		return httpError("failed to delete theme", err)
	}
	return c.JSON(http.StatusOK, map[string]string{"message": "theme deleted"})
}

func (s *Server) putThemeConfig(c echo.Context) error {
	var doc map[string]any
	if err := decodeJSON(c, &doc); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, fmt.Sprintf("invalid request body: %v", err))
	}
	cfg, err := theme.FromMap(doc)
	if err != nil {
		return httpError("invalid configuration", err)
	}
	if err := s.engine.UpdateThemeConfig(c.Request().Context(), c.Param("id"), cfg); err != nil {
		return httpError("failed to update configuration", err)
	}
	return c.JSON(http.StatusOK, cfg)
}

func (s *Server) resolveTheme(c echo.Context) error {
	id := c.Param("id")
	entry, err := s.engine.Resolve(c.Request().Context(), id)
	if err != nil {
		return httpError("failed to resolve theme", err)
	}
	return c.JSON(http.StatusOK, ResolvedResponse{ThemeID: id, Chain: entry.Chain, Config: entry.Resolved})
}

func (s *Server) getChain(c echo.Context) error {
	id := c.Param("id")
	return c.JSON(http.StatusOK, ChainResponse{ThemeID: id, Chain: s.engine.GetInheritanceChain(id)})
}

func (s *Server) getDescendants(c echo.Context) error {
	id := c.Param("id")
	descendants := s.engine.GetDescendants(id)
	if descendants == nil {
		descendants = []string{}
	}
	return c.JSON(http.StatusOK, DescendantsResponse{ThemeID: id, Descendants: descendants})
}

func (s *Server) putParent(c echo.Context) error {
	var req ParentRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, fmt.Sprintf("invalid request body: %v", err))
	}
	if req.Parent == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "parent is required")
	}

	id := c.Param("id")
	if err := s.engine.RegisterInheritance(c.Request().Context(), id, req.Parent); err != nil {
		return httpError("failed to register inheritance", err)
	}
	return c.JSON(http.StatusOK, ChainResponse{ThemeID: id, Chain: s.engine.GetInheritanceChain(id)})
}

func (s *Server) deleteParent(c echo.Context) error {
	id := c.Param("id")
	if err := s.engine.RemoveInheritance(c.Request().Context(), id); err != nil {
		return httpError("failed to remove inheritance", err)
	}
	return c.JSON(http.StatusOK, ChainResponse{ThemeID: id, Chain: s.engine.GetInheritanceChain(id)})
}

func (s *Server) applyOverrides(c echo.Context) error {
	var buckets overrides.Buckets
	if err := decodeJSON(c, &buckets); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, fmt.Sprintf("invalid request body: %v", err))
	}

	res, err := s.engine.ApplyOverrides(c.Request().Context(), c.Param("id"), buckets)
	if err != nil {
		return httpError("failed to apply overrides", err)
	}
	if !res.Success {
		return c.JSON(statusOf(overrides.ErrOverridesDisabled), res)
	}
	return c.JSON(http.StatusOK, res)
}

func (s *Server) getStats(c echo.Context) error {
	return c.JSON(http.StatusOK, s.engine.GetStatistics())
}

// decodeJSON decodes the request body into v. Unlike c.Bind it never mixes
// path parameters into map targets.
func decodeJSON(c echo.Context, v any) error {
	return json.NewDecoder(c.Request().Body).Decode(v)
}

// statusOf maps engine errors to HTTP status codes.
func statusOf(err error) int {
	switch {
	case errors.Is(err, registry.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, registry.ErrInvalidID):
		return http.StatusBadRequest
	case errors.Is(err, engine.ErrInheritanceDisabled),
		errors.Is(err, engine.ErrReadOnly),
		errors.Is(err, overrides.ErrOverridesDisabled):
		return http.StatusConflict
	}

	if _, ok := errors.AsType[*inheritance.CycleError](err); ok {
		return http.StatusUnprocessableEntity
	}
	if _, ok := errors.AsType[*inheritance.DepthExceededError](err); ok {
		return http.StatusUnprocessableEntity
	}
	if _, ok := errors.AsType[*overrides.MergeError](err); ok {
		return http.StatusUnprocessableEntity
	}
	if _, ok := errors.AsType[*theme.ShapeError](err); ok {
		return http.StatusUnprocessableEntity
	}
	if errors.Is(err, theme.ErrInvalidRecord) {
		return http.StatusUnprocessableEntity
	}
	return http.StatusInternalServerError
}

func httpError(msg string, err error) *echo.HTTPError {
	status := statusOf(err)
	if status == http.StatusInternalServerError {
		slog.Error(msg, "error", err)
	}
	return echo.NewHTTPError(status, fmt.Sprintf("%s: %v", msg, err))
}
