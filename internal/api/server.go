// Package api exposes the model catalog over HTTP: loading checkpoints,
// listing and inspecting what is resident, and releasing models.
package api

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strings"

	json "github.com/goccy/go-json"
	"github.com/labstack/echo/v5"

	"github.com/samcharles93/ember/internal/catalog"
	"github.com/samcharles93/ember/internal/dtype"
	"github.com/samcharles93/ember/internal/loader"
	"github.com/samcharles93/ember/internal/record"
)

// LoadFunc loads a checkpoint. It exists so tests can stub the loader.
type LoadFunc func(ctx context.Context, path string, opts loader.Options) (*loader.Model, error)

type Server struct {
	cat  *catalog.Catalog
	load LoadFunc
}

func NewServer(cat *catalog.Catalog, load LoadFunc) *Server {
	if cat == nil {
		cat = catalog.New()
	}
	if load == nil {
		load = loader.Load
	}
	return &Server{cat: cat, load: load}
}

func (s *Server) Register(e *echo.Echo) {
	e.GET("/healthz", s.handleHealth)
	e.POST("/v1/models", s.handleLoadModel)
	e.GET("/v1/models", s.handleListModels)
	e.GET("/v1/models/:id", s.handleGetModel)
	e.DELETE("/v1/models/:id", s.handleDeleteModel)
}

type LoadModelRequest struct {
	Path        string `json:"path"`
	Name        string `json:"name"`
	Target      string `json:"target"`
	Strict      bool   `json:"strict"`
	CopyTensors bool   `json:"copy_tensors"`
	Workers     int    `json:"workers"`
}

type LoadModelResponse struct {
	Model       catalog.ModelInfo `json:"model"`
	Diagnostics []string          `json:"diagnostics,omitempty"`
}

func (s *Server) handleHealth(c *echo.Context) error {
	return c.JSON(http.StatusOK, map[string]any{
		"status": "ok",
		"models": s.cat.Len(),
	})
}

func (s *Server) handleLoadModel(c *echo.Context) error {
	req, err := decodeJSON[LoadModelRequest](c.Request().Body)
	if err != nil {
		return writeBadRequest(c, err.Error())
	}
	if strings.TrimSpace(req.Path) == "" {
		return writeBadRequest(c, "path is required")
	}
	target := dtype.F32
	if req.Target != "" {
		d, ok := dtype.Parse(strings.ToUpper(req.Target))
		if !ok {
			return writeBadRequest(c, "unknown target dtype "+req.Target)
		}
		target = d
	}

	m, err := s.load(c.Request().Context(), req.Path, loader.Options{
		Target:      target,
		Strict:      req.Strict,
		CopyTensors: req.CopyTensors,
		Workers:     req.Workers,
		Catalog:     s.cat,
		Name:        req.Name,
	})
	if err != nil {
		var vErr *record.ValidationError
		if errors.As(err, &vErr) {
			problems := make([]string, len(vErr.Problems))
			for i, p := range vErr.Problems {
				problems[i] = p.Error()
			}
			return c.JSON(http.StatusUnprocessableEntity, map[string]any{
				"error": ErrorBody{Message: "checkpoint failed validation", Type: "validation_error"},
				"problems": problems,
			})
		}
		return writeError(c, http.StatusBadRequest, "load_error", err.Error())
	}

	info, _ := s.cat.Get(m.CatalogID)
	resp := LoadModelResponse{Model: info}
	for _, d := range m.Diagnostics {
		resp.Diagnostics = append(resp.Diagnostics, d.String())
	}
	return c.JSON(http.StatusCreated, resp)
}

func (s *Server) handleListModels(c *echo.Context) error {
	return c.JSON(http.StatusOK, map[string]any{
		"models": s.cat.List(),
	})
}

func (s *Server) handleGetModel(c *echo.Context) error {
	info, ok := s.cat.Get(c.Param("id"))
	if !ok {
		return writeNotFound(c, "no such model")
	}
	return c.JSON(http.StatusOK, info)
}

func (s *Server) handleDeleteModel(c *echo.Context) error {
	ok, err := s.cat.Remove(c.Param("id"))
	if !ok {
		return writeNotFound(c, "no such model")
	}
	if err != nil {
		return writeError(c, http.StatusInternalServerError, "server_error", err.Error())
	}
	return c.NoContent(http.StatusNoContent)
}

type ErrorBody struct {
	Message string `json:"message"`
	Type    string `json:"type"`
}

func writeBadRequest(c *echo.Context, msg string) error {
	return writeError(c, http.StatusBadRequest, "invalid_request_error", msg)
}

func writeNotFound(c *echo.Context, msg string) error {
	return writeError(c, http.StatusNotFound, "not_found_error", msg)
}

func writeError(c *echo.Context, status int, errType, msg string) error {
	return c.JSON(status, map[string]any{
		"error": ErrorBody{Message: msg, Type: errType},
	})
}

func decodeJSON[T any](r io.Reader) (T, error) {
	var v T
	dec := json.NewDecoder(r)
	if err := dec.Decode(&v); err != nil {
		return v, err
	}
	return v, nil
}
