package auth

import (
	"errors"
	"net/http"

	"github.com/gofiber/fiber/v2"
	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-print"
	"github.com/goliatone/go-router"
)

// ErrorResponse is the JSON body rendered for failed requests
type ErrorResponse struct {
	Error   string         `json:"error"`
	Message string         `json:"message"`
	Details map[string]any `json:"details,omitempty"`
}

// ErrorHandler is the fiber app level handler for errors that escape a
// route, such as unknown paths. It renders the same body as RouteErrorHandler.
func ErrorHandler(logger Logger) fiber.ErrorHandler {
	if logger == nil {
		logger = defLogger{}
	}

	return func(c *fiber.Ctx, err error) error {
		status, res := errorResponse(logger, c.Method(), c.OriginalURL(), err)
		return c.Status(status).JSON(res)
	}
}

// RouteErrorHandler renders rich errors with their status code and text
// code. Anything else is logged and reported as a generic 500.
func RouteErrorHandler(logger Logger) router.ErrorHandler {
	if logger == nil {
		logger = defLogger{}
	}

	return func(ctx router.Context, err error) error {
		status, res := errorResponse(logger, ctx.Method(), ctx.OriginalURL(), err)
		return ctx.JSON(status, res)
	}
}

func errorResponse(logger Logger, method, path string, err error) (int, ErrorResponse) {
	var fiberErr *fiber.Error
	if errors.As(err, &fiberErr) {
		code := TextCodeHTTP
		if fiberErr.Code == http.StatusBadRequest {
			code = TextCodeInvalidBody
		}
		return fiberErr.Code, ErrorResponse{
			Error:   code,
			Message: fiberErr.Message,
		}
	}

	var richErr *goerrors.Error
	if !goerrors.As(err, &richErr) || richErr.Category == goerrors.CategoryInternal || richErr.Code == 0 {
		logger.Error("unexpected error on %s %s: %v", method, path, err)
		return http.StatusInternalServerError, ErrorResponse{
			Error:   TextCodeInternal,
			Message: "an unexpected server error occurred",
		}
	}

	logger.Debug("request error %s: %s", richErr.TextCode, print.MaybePrettyJSON(richErr.Metadata))

	res := ErrorResponse{
		Error:   richErr.TextCode,
		Message: richErr.Message,
	}
	if richErr.Category == goerrors.CategoryValidation {
		res.Details = richErr.Metadata
	}

	return richErr.Code, res
}
