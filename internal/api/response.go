package api

import (
	"net/http"
	"strconv"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/chataru/craftsite/internal/domain"
	"github.com/chataru/craftsite/internal/session"
)

const storageFailureMsg = "Something went wrong, please try again."

func ok(c echo.Context, extra map[string]interface{}) error {
	body := map[string]interface{}{"success": true}
	for k, v := range extra {
		body[k] = v
	}
	return c.JSON(http.StatusOK, body)
}

func fail(c echo.Context, status int, code, msg string, fields map[string]string) error {
	body := map[string]interface{}{
		"error": msg,
		"code":  code,
	}
	if len(fields) > 0 {
		body["fields"] = fields
	}
	return c.JSON(status, body)
}

// failFromErr maps the error taxonomy onto HTTP responses. Storage detail
// goes to the log only.
func failFromErr(c echo.Context, err error, op string) error {
	if ve, isValidation := domain.IsValidation(err); isValidation {
		return fail(c, http.StatusBadRequest, "VALIDATION_ERROR", ve.Error(), ve.Fields)
	}
	switch {
	case errors.Is(err, session.ErrInvalidCredentials):
		return fail(c, http.StatusUnauthorized, "INVALID_CREDENTIALS", "Wrong password.", nil)
	case errors.Is(err, session.ErrUnauthorized):
		return fail(c, http.StatusUnauthorized, "UNAUTHORIZED", "Unauthorized", nil)
	case errors.Is(err, session.ErrServerMisconfigured):
		zap.L().Error("admin login attempted but no admin password is configured")
		return fail(c, http.StatusInternalServerError, "SERVER_MISCONFIGURED", "ADMIN_PASSWORD not set on server.", nil)
	}

	var he *echo.HTTPError
	if errors.As(err, &he) && he.Code < http.StatusInternalServerError {
		msg, _ := he.Message.(string)
		if msg == "" {
			msg = http.StatusText(he.Code)
		}
		return fail(c, he.Code, "INVALID_REQUEST", msg, nil)
	}

	zap.L().Error(op+" failed",
		zap.String("path", c.Request().URL.Path),
		zap.Bool("storage", errors.Is(err, domain.ErrStorage)),
		zap.Error(err))
	return fail(c, http.StatusInternalServerError, "SERVER_ERROR", storageFailureMsg, nil)
}

// handleValidationError converts validator tag failures into a ValidationError response.
func handleValidationError(c echo.Context, err error) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return failFromErr(c, err, "validate request")
	}
	ve := &domain.ValidationError{}
	for _, fe := range verrs {
		reason := fe.Tag()
		if fe.Param() != "" {
			reason += "=" + fe.Param()
		}
		ve.Add(fe.Field(), reason)
	}
	return failFromErr(c, ve, "validate request")
}

type pageQuery struct {
	Page    int `query:"page" validate:"omitempty,min=1"`
	PerPage int `query:"perPage" validate:"omitempty,min=1,max=500"`
}

// parsePagination reads optional page/perPage; without perPage everything is returned.
func parsePagination(c echo.Context) (domain.Page, error) {
	var q pageQuery
	if err := (&echo.DefaultBinder{}).BindQueryParams(c, &q); err != nil {
		return domain.Page{}, &domain.ValidationError{
			Message: "page and perPage must be whole numbers.",
			Fields:  map[string]string{"page": "number", "perPage": "number"},
		}
	}
	if err := c.Validate(&q); err != nil {
		return domain.Page{}, err
	}
	return domain.NewPage(q.Page, q.PerPage), nil
}

func setTotal(c echo.Context, total int64) {
	c.Response().Header().Set("X-Total-Count", strconv.FormatInt(total, 10))
}

func parseIDParam(c echo.Context, name string) (int64, error) {
	id, err := strconv.ParseInt(c.Param(name), 10, 64)
	if err != nil || id <= 0 {
		return 0, &domain.ValidationError{Message: "Invalid product ID.", Fields: map[string]string{name: "must be a positive integer"}}
	}
	return id, nil
}
