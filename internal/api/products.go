package api

import (
	"mime/multipart"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/chataru/craftsite/internal/domain"
	"github.com/chataru/craftsite/internal/upload"
)

func (h *handlers) listProducts(c echo.Context) error {
	page, err := parsePagination(c)
	if err != nil {
		return handleValidationError(c, err)
	}
	rows, total, err := h.catalogue.List(c.Request().Context(), page)
	if err != nil {
		return failFromErr(c, err, "list products")
	}
	if rows == nil {
		rows = []domain.Product{}
	}
	setTotal(c, total)
	return c.JSON(http.StatusOK, rows)
}

func (h *handlers) createProduct(c echo.Context) error {
	file, closeFile, err := imageFromForm(c)
	if err != nil {
		return failFromErr(c, err, "read product image")
	}
	defer closeFile()

	if _, err := h.catalogue.Create(c.Request().Context(), productInput(c), file); err != nil {
		return failFromErr(c, err, "create product")
	}
	return ok(c, nil)
}

func (h *handlers) updateProduct(c echo.Context) error {
	id, err := parseIDParam(c, "id")
	if err != nil {
		return failFromErr(c, err, "update product")
	}
	file, closeFile, err := imageFromForm(c)
	if err != nil {
		return failFromErr(c, err, "read product image")
	}
	defer closeFile()

	outcome, err := h.catalogue.Update(c.Request().Context(), id, productInput(c), file)
	if err != nil {
		return failFromErr(c, err, "update product")
	}
	return ok(c, map[string]interface{}{"outcome": outcome.String()})
}

func (h *handlers) deleteProduct(c echo.Context) error {
	id, err := parseIDParam(c, "id")
	if err != nil {
		return failFromErr(c, err, "delete product")
	}
	outcome, err := h.catalogue.Delete(c.Request().Context(), id)
	if err != nil {
		return failFromErr(c, err, "delete product")
	}
	return ok(c, map[string]interface{}{"outcome": outcome.String()})
}

func productInput(c echo.Context) domain.ProductInput {
	return domain.ProductInput{
		Name:        c.FormValue("name"),
		Price:       c.FormValue("price"),
		Description: c.FormValue("description"),
	}
}

// imageFromForm opens the optional "image" part. A missing part yields a nil file.
func imageFromForm(c echo.Context) (*upload.File, func(), error) {
	noop := func() {}
	fh, err := c.FormFile("image")
	if errors.Is(err, http.ErrMissingFile) || errors.Is(err, http.ErrNotMultipart) {
		return nil, noop, nil
	}
	if err != nil {
		return nil, noop, echo.NewHTTPError(http.StatusBadRequest, "Unable to read the uploaded image.")
	}
	return openPart(fh)
}

func openPart(fh *multipart.FileHeader) (*upload.File, func(), error) {
	f, err := fh.Open()
	if err != nil {
		return nil, func() {}, errors.Wrap(err, "open multipart image")
	}
	return &upload.File{Filename: fh.Filename, Reader: f}, func() { _ = f.Close() }, nil
}
