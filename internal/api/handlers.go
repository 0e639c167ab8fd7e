package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/mesh-intelligence/domainkit/internal/store"
	"github.com/mesh-intelligence/domainkit/pkg/domain"
)

// FieldError is one rejected property value.
type FieldError struct {
	Code     string `json:"code"`
	Property string `json:"property,omitempty"`
	Message  string `json:"message"`
}

// Error codes of FieldError.
const (
	CodeRequired     = "required"
	CodeRange        = "out_of_range"
	CodeLength       = "too_long"
	CodeTypeMismatch = "type_mismatch"
	CodeReadOnly     = "read_only"
	CodeUndefined    = "undefined"
)

func fieldError(err error) FieldError {
	fe := FieldError{Message: err.Error()}
	var ve *domain.ValueError
	if errors.As(err, &ve) {
		fe.Property = ve.PropertyID
	}
	var le *domain.LookupError
	if errors.As(err, &le) {
		fe.Property = le.PropertyID
	}
	switch {
	case errors.Is(err, domain.ErrNullValidation):
		fe.Code = CodeRequired
	case errors.Is(err, domain.ErrRangeValidation):
		fe.Code = CodeRange
	case errors.Is(err, domain.ErrLengthValidation):
		fe.Code = CodeLength
	case errors.Is(err, domain.ErrReadOnlyViolation):
		fe.Code = CodeReadOnly
	case errors.Is(err, domain.ErrUndefinedProperty), errors.Is(err, domain.ErrUndefinedForeignKey):
		fe.Code = CodeUndefined
	default:
		fe.Code = CodeTypeMismatch
	}
	return fe
}

// fail writes err with the status matching its kind.
func (s *Server) fail(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, domain.ErrUndefinedEntity), errors.Is(err, store.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, store.ErrReadOnlyEntity):
		status = http.StatusMethodNotAllowed
	case errors.Is(err, domain.ErrTypeMismatch), errors.Is(err, domain.ErrUndefinedProperty),
		errors.Is(err, domain.ErrUndefinedForeignKey), errors.Is(err, domain.ErrReadOnlyViolation),
		errors.Is(err, domain.ErrNullValidation), errors.Is(err, domain.ErrRangeValidation),
		errors.Is(err, domain.ErrLengthValidation):
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error(), "errors": []FieldError{fieldError(err)}})
		return
	}
	if status == http.StatusInternalServerError {
		s.logger.Error("request failed", zap.String("path", c.Request.URL.Path), zap.Error(err))
	}
	c.JSON(status, gin.H{"error": err.Error()})
}

func (s *Server) definition(c *gin.Context) (*domain.Definition, bool) {
	def, err := s.domain.Definition(c.Param("entity"))
	if err != nil {
		s.fail(c, err)
		return nil, false
	}
	return def, true
}

func bindValues(c *gin.Context) (map[string]any, error) {
	dec := json.NewDecoder(c.Request.Body)
	dec.UseNumber()
	var body map[string]any
	if err := dec.Decode(&body); err != nil {
		return nil, fmt.Errorf("%w: invalid JSON: %v", domain.ErrTypeMismatch, err)
	}
	return body, nil
}

// parseKey reads the key path parameter. Composite key values are separated
// by commas in primary key order.
func parseKey(d *domain.Domain, def *domain.Definition, raw string) (*domain.Key, error) {
	pk := def.PrimaryKey()
	parts := strings.Split(raw, ",")
	if len(parts) != len(pk) {
		return nil, fmt.Errorf("%w: %s expects %d key values, got %d", domain.ErrTypeMismatch, def.EntityID(), len(pk), len(parts))
	}
	values := make(map[string]any, len(pk))
	for i, c := range pk {
		v, err := domain.ParseValue(c.Type(), parts[i])
		if err != nil {
			return nil, fmt.Errorf("%w: key %s: %v", domain.ErrTypeMismatch, c.ID(), err)
		}
		values[c.ID()] = v
	}
	return d.CompositeKey(def.EntityID(), values)
}

// GET /api/domain
func (s *Server) getDomain(c *gin.Context) {
	c.JSON(http.StatusOK, DescribeDomain(s.domain))
}

// GET /api/entities/:entity
func (s *Server) getEntity(c *gin.Context) {
	def, ok := s.definition(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, DescribeEntity(def))
}

// POST /api/entities/:entity/validate
//
// Builds a new entity from the body and reports every invalid property, not
// only the first.
func (s *Server) validate(c *gin.Context) {
	def, ok := s.definition(c)
	if !ok {
		return
	}
	body, err := bindValues(c)
	if err != nil {
		s.fail(c, err)
		return
	}
	e, err := s.domain.DefaultEntity(def.EntityID())
	if err != nil {
		s.fail(c, err)
		return
	}
	var errs []FieldError
	for id, raw := range body {
		if err := putValues(e, map[string]any{id: raw}); err != nil {
			errs = append(errs, fieldError(err))
		}
	}
	for _, p := range def.Properties() {
		if p.ReadOnly() {
			continue
		}
		if err := def.Validator().ValidateProperty(e, p); err != nil {
			errs = append(errs, fieldError(err))
		}
	}
	if len(errs) > 0 {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"valid": false, "errors": errs})
		return
	}
	c.JSON(http.StatusOK, gin.H{"valid": true, "values": encodeEntity(e, false)})
}

// GET /api/entities/:entity/rows
func (s *Server) listRows(c *gin.Context) {
	def, ok := s.definition(c)
	if !ok {
		return
	}
	entities, err := s.repo.SelectAll(c.Request.Context(), def.EntityID())
	if err != nil {
		s.fail(c, err)
		return
	}
	out := make([]map[string]any, 0, len(entities))
	for _, e := range entities {
		out = append(out, encodeEntity(e, false))
	}
	c.JSON(http.StatusOK, out)
}

// GET /api/entities/:entity/rows/:key
func (s *Server) getRow(c *gin.Context) {
	e, ok := s.selectRow(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, encodeEntity(e, false))
}

func (s *Server) selectRow(c *gin.Context) (*domain.Entity, bool) {
	def, ok := s.definition(c)
	if !ok {
		return nil, false
	}
	k, err := parseKey(s.domain, def, c.Param("key"))
	if err != nil {
		s.fail(c, err)
		return nil, false
	}
	e, err := s.repo.Select(c.Request.Context(), k)
	if err != nil {
		s.fail(c, err)
		return nil, false
	}
	return e, true
}

// POST /api/entities/:entity/rows
func (s *Server) createRow(c *gin.Context) {
	def, ok := s.definition(c)
	if !ok {
		return
	}
	body, err := bindValues(c)
	if err != nil {
		s.fail(c, err)
		return
	}
	e, err := s.domain.DefaultEntity(def.EntityID())
	if err != nil {
		s.fail(c, err)
		return
	}
	if err := putValues(e, body); err != nil {
		s.fail(c, err)
		return
	}
	keys, err := s.repo.Insert(c.Request.Context(), e)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.Header("Location", c.Request.URL.Path+"/"+keyPath(keys[0]))
	c.JSON(http.StatusCreated, encodeEntity(e, false))
}

// PUT /api/entities/:entity/rows/:key
func (s *Server) updateRow(c *gin.Context) {
	e, ok := s.selectRow(c)
	if !ok {
		return
	}
	body, err := bindValues(c)
	if err != nil {
		s.fail(c, err)
		return
	}
	if err := putValues(e, body); err != nil {
		s.fail(c, err)
		return
	}
	if err := s.repo.Update(c.Request.Context(), e); err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, encodeEntity(e, false))
}

// DELETE /api/entities/:entity/rows/:key
func (s *Server) deleteRow(c *gin.Context) {
	def, ok := s.definition(c)
	if !ok {
		return
	}
	k, err := parseKey(s.domain, def, c.Param("key"))
	if err != nil {
		s.fail(c, err)
		return
	}
	if err := s.repo.Delete(c.Request.Context(), k); err != nil {
		s.fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func keyPath(k *domain.Key) string {
	cols := k.Columns()
	parts := make([]string, 0, len(cols))
	for _, col := range cols {
		parts = append(parts, fmt.Sprint(encodeValue(col, k.Get(col))))
	}
	return strings.Join(parts, ",")
}
