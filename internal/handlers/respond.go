package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"

	"github.com/Kayo-b/voto-db/internal/service"
	"github.com/Kayo-b/voto-db/internal/store"
)

// Error kinds reported to clients
const (
	KindNoData   = "no_data"
	KindRejected = "rejected"
	KindConflict = "conflict"
	KindError    = "error"
)

var validate = validator.New()

// Envelope is the JSON body of every API response
type Envelope struct {
	Success   bool      `json:"success"`
	Data      any       `json:"data,omitempty"`
	FromCache bool      `json:"fromCache"`
	Degraded  bool      `json:"degraded"`
	Warning   string    `json:"warning,omitempty"`
	Error     *APIError `json:"error,omitempty"`
}

// APIError describes a failed request
type APIError struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

func respond[T any](c *fiber.Ctx, res service.Result[T]) error {
	return c.JSON(Envelope{
		Success:   true,
		Data:      res.Data,
		FromCache: res.FromCache,
		Degraded:  res.Degraded,
		Warning:   res.Warning,
	})
}

func ok(c *fiber.Ctx, status int, data any) error {
	return c.Status(status).JSON(Envelope{Success: true, Data: data})
}

func fail(c *fiber.Ctx, err error) error {
	status, kind := classify(err)
	return c.Status(status).JSON(Envelope{
		Error: &APIError{Kind: kind, Message: err.Error()},
	})
}

// classify maps an error to its HTTP status and client-facing kind
func classify(err error) (int, string) {
	var rejected *service.RejectedError
	var fiberErr *fiber.Error
	var invalid validator.ValidationErrors

	switch {
	case errors.Is(err, store.ErrConflict):
		return http.StatusConflict, KindConflict
	case errors.Is(err, store.ErrNotFound):
		return http.StatusNotFound, KindNoData
	case errors.Is(err, store.ErrUnavailable):
		return http.StatusServiceUnavailable, KindNoData
	case errors.As(err, &rejected):
		switch rejected.Status {
		case http.StatusNotFound:
			return http.StatusNotFound, KindNoData
		case http.StatusUnprocessableEntity:
			return http.StatusUnprocessableEntity, KindRejected
		}
		return http.StatusBadRequest, KindRejected
	case errors.As(err, &invalid):
		return http.StatusBadRequest, KindRejected
	case service.IsTransient(err), errors.Is(err, context.DeadlineExceeded):
		return http.StatusServiceUnavailable, KindNoData
	case errors.As(err, &fiberErr):
		if fiberErr.Code == fiber.StatusNotFound {
			return fiberErr.Code, KindNoData
		}
		if fiberErr.Code < 500 {
			return fiberErr.Code, KindRejected
		}
		return fiberErr.Code, KindError
	}
	return http.StatusInternalServerError, KindError
}

// ErrorHandler renders errors returned by handlers and middleware
func ErrorHandler(c *fiber.Ctx, err error) error {
	return fail(c, err)
}

// parseQuery binds and validates query parameters into dst
func parseQuery(c *fiber.Ctx, dst any) error {
	if err := c.QueryParser(dst); err != nil {
		return service.NewRejectedError(http.StatusBadRequest, "invalid query: %v", err)
	}
	if err := validate.Struct(dst); err != nil {
		return service.NewRejectedError(http.StatusBadRequest, "invalid query: %v", err)
	}
	return nil
}

func paramID(c *fiber.Ctx) (int64, error) {
	id, err := c.ParamsInt("id")
	if err != nil || id <= 0 {
		return 0, service.NewRejectedError(http.StatusBadRequest, "invalid id %q", c.Params("id"))
	}
	return int64(id), nil
}
