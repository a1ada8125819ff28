package api

import (
	"errors"
	"fmt"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"graph-persistence/internal/query"
	"graph-persistence/internal/registry"
	"graph-persistence/internal/service"
	"graph-persistence/internal/store"
)

type AppError struct {
	Code    string        `json:"code"`
	Status  int           `json:"-"`
	Message string        `json:"message"`
	Details []ErrorDetail `json:"details,omitempty"`
}

type ErrorDetail struct {
	Field   string `json:"field,omitempty"`
	Rule    string `json:"rule,omitempty"`
	Message string `json:"message"`
}

func (e *AppError) Error() string {
	return e.Message
}

type ErrorResponse struct {
	Error *AppError `json:"error"`
}

func NewAppError(code string, status int, msg string) *AppError {
	return &AppError{Code: code, Status: status, Message: msg}
}

func NotFoundError(entity string, id any) *AppError {
	return &AppError{
		Code:    "NOT_FOUND",
		Status:  fiber.StatusNotFound,
		Message: fmt.Sprintf("%s with id %v not found", entity, id),
	}
}

func UnknownEntityError(name string) *AppError {
	return &AppError{
		Code:    "UNKNOWN_ENTITY",
		Status:  fiber.StatusNotFound,
		Message: fmt.Sprintf("Unknown entity: %s", name),
	}
}

func InvalidPayloadError(msg string) *AppError {
	return NewAppError("INVALID_PAYLOAD", fiber.StatusBadRequest, msg)
}

// MapError translates a domain error into the response the client sees.
// It returns nil for errors that have no client-facing meaning.
func MapError(err error) *AppError {
	var (
		appErr      *AppError
		unknownType *registry.UnknownEntityTypeError
		unknownFld  *query.UnknownFieldError
		unsupported *query.UnsupportedOperatorError
		invalid     *query.InvalidValueError
		invalidPage *query.InvalidPageError
		missing     *service.MissingEntityError
		fiberErr    *fiber.Error
	)
	switch {
	case errors.As(err, &appErr):
		return appErr
	case errors.As(err, &unknownType):
		return UnknownEntityError(unknownType.EntityType)
	case errors.As(err, &unknownFld):
		return &AppError{
			Code:    "UNKNOWN_FIELD",
			Status:  fiber.StatusBadRequest,
			Message: unknownFld.Error(),
			Details: []ErrorDetail{{Field: unknownFld.Field, Rule: "unknown", Message: unknownFld.Error()}},
		}
	case errors.As(err, &unsupported):
		return &AppError{
			Code:    "UNSUPPORTED_OPERATOR",
			Status:  fiber.StatusBadRequest,
			Message: unsupported.Error(),
			Details: []ErrorDetail{{Field: unsupported.Field, Rule: unsupported.Operator, Message: unsupported.Error()}},
		}
	case errors.As(err, &invalid):
		return InvalidPayloadError(invalid.Error())
	case errors.As(err, &invalidPage):
		return InvalidPayloadError(invalidPage.Error())
	case errors.As(err, &missing):
		return NotFoundError(missing.EntityType, missing.ID)
	case errors.Is(err, service.ErrMaxDepth):
		return InvalidPayloadError(err.Error())
	case errors.Is(err, registry.ErrNotInitialized):
		return NewAppError("NOT_READY", fiber.StatusServiceUnavailable, "Entity registry is not initialized")
	case errors.Is(err, store.ErrUniqueViolation):
		return NewAppError("CONFLICT", fiber.StatusConflict, "A record with this value already exists")
	case errors.As(err, &fiberErr):
		return NewAppError("HTTP_ERROR", fiberErr.Code, fiberErr.Message)
	}
	return nil
}

func respondError(c *fiber.Ctx, appErr *AppError) error {
	return c.Status(appErr.Status).JSON(ErrorResponse{Error: appErr})
}

// ErrorHandler renders every error returned by a handler as an
// ErrorResponse. Unmapped errors are logged and reported as 500.
func ErrorHandler(logger *zap.Logger) fiber.ErrorHandler {
	return func(c *fiber.Ctx, err error) error {
		if appErr := MapError(err); appErr != nil {
			return respondError(c, appErr)
		}
		logger.Error("request failed",
			zap.String("method", c.Method()), zap.String("path", c.Path()), zap.Error(err))
		return respondError(c, NewAppError("INTERNAL_ERROR", fiber.StatusInternalServerError, "Internal server error"))
	}
}
