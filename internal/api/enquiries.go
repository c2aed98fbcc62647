package api

import (
	"bytes"
	"fmt"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/chataru/craftsite/internal/domain"
	"github.com/chataru/craftsite/internal/enquiry"
)

func (h *handlers) submitEnquiry(c echo.Context) error {
	var sub enquiry.Submission
	if err := c.Bind(&sub); err != nil {
		return failFromErr(c, err, "bind enquiry")
	}
	if err := c.Validate(&sub); err != nil {
		return handleValidationError(c, err)
	}
	if _, err := h.enquiries.Submit(c.Request().Context(), sub); err != nil {
		return failFromErr(c, err, "submit enquiry")
	}
	return ok(c, map[string]interface{}{"message": "Enquiry submitted successfully."})
}

func (h *handlers) listEnquiries(c echo.Context) error {
	page, err := parsePagination(c)
	if err != nil {
		return handleValidationError(c, err)
	}
	rows, total, err := h.enquiries.List(c.Request().Context(), page)
	if err != nil {
		return failFromErr(c, err, "list enquiries")
	}
	if rows == nil {
		rows = []domain.Enquiry{}
	}
	setTotal(c, total)
	return c.JSON(http.StatusOK, rows)
}

func (h *handlers) exportEnquiries(c echo.Context) error {
	// buffered so a storage failure can still be reported as JSON
	var buf bytes.Buffer
	if err := h.enquiries.ExportCSV(c.Request().Context(), &buf); err != nil {
		return failFromErr(c, err, "export enquiries")
	}
	c.Response().Header().Set(echo.HeaderContentDisposition,
		fmt.Sprintf("attachment; filename=enquiries-%s.csv", time.Now().Format("20060102")))
	return c.Blob(http.StatusOK, "text/csv; charset=utf-8", buf.Bytes())
}
