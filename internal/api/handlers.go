package api

import (
	"fmt"
	"io"
	"net/http"

	"github.com/labstack/echo/v4"

	"fpoadmin/internal/api/wire"
	"fpoadmin/pkg/domain"
	"fpoadmin/pkg/domain/attribute"
)

func (s *Server) listSchemas(c echo.Context) error {
	registry := s.svc.Registry()
	out := make([]attribute.Schema, 0)
	for _, category := range registry.Categories() {
		schema, err := registry.Schema(category)
		if err != nil {
			return err
		}
		out = append(out, schema)
	}
	return c.JSON(http.StatusOK, out)
}

func (s *Server) listRecords(c echo.Context) error {
	records, err := s.svc.ListRecords(c.Request().Context(), c.Param("parentID"))
	if err != nil {
		return err
	}
	if records == nil {
		records = []domain.Record{}
	}
	return c.JSON(http.StatusOK, wire.ListResponse{Records: records})
}

func (s *Server) createRecord(c echo.Context) error {
	var req wire.CreateRequest
	if err := c.Bind(&req); err != nil {
		return err
	}
	if err := c.Validate(&req); err != nil {
		return err
	}
	parentID := c.Param("parentID")
	if req.ParentID != "" && req.ParentID != parentID {
		return fmt.Errorf("%w: body parent_id %q does not match path %q", domain.ErrMalformedChangeSet, req.ParentID, parentID)
	}
	category, err := s.svc.Registry().ParseCategory(req.Category)
	if err != nil {
		return err
	}
	rec, _, err := s.svc.CreateRecord(c.Request().Context(), category, parentID, req.Details)
	if err != nil {
		return err
	}
	s.logger.Info("record created", "id", rec.ID, "parent_id", parentID, "category", category, "subject", Subject(c))
	return c.JSON(http.StatusCreated, wire.CreateResponse{ID: rec.ID})
}

func (s *Server) getRecord(c echo.Context) error {
	rec, err := s.svc.GetRecord(c.Request().Context(), c.Param("id"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, rec)
}

// updateRecord applies a flat change set body as a merge patch.
func (s *Server) updateRecord(c echo.Context) error {
	body, err := io.ReadAll(c.Request().Body)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "unreadable body")
	}
	cs, err := domain.ParseChangeSet(body)
	if err != nil {
		return err
	}
	id := c.Param("id")
	rec, _, err := s.svc.ApplyChangeSet(c.Request().Context(), id, cs)
	if err != nil {
		return err
	}
	s.logger.Info("record updated", "id", id, "fields", cs.ChangedFields.Keys(), "subject", Subject(c))
	return c.JSON(http.StatusOK, rec)
}

func (s *Server) deleteRecord(c echo.Context) error {
	id := c.Param("id")
	if _, err := s.svc.DeleteRecord(c.Request().Context(), id); err != nil {
		return err
	}
	s.logger.Info("record deleted", "id", id, "subject", Subject(c))
	return c.NoContent(http.StatusNoContent)
}
