package api

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/chataru/craftsite/config"
	"github.com/chataru/craftsite/internal/app"
	"github.com/chataru/craftsite/internal/domain"
	"github.com/chataru/craftsite/internal/webserver"
)

const adminPassword = "letmein"

var pngBytes = append([]byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR"), bytes.Repeat([]byte{0}, 32)...)

type testSite struct {
	t   *testing.T
	e   *echo.Echo
	app *app.Application
}

func newTestSite(t *testing.T, secret string, mutate ...func(cfg *config.AppConfig)) *testSite {
	t.Helper()
	dir := t.TempDir()
	cfg := config.DefaultAppConfig()
	cfg.System.Workdir = dir
	cfg.Web.PublicDir = filepath.Join(dir, "public")
	cfg.Web.CookieSecret = "test-cookie-secret-0123456789abc"
	cfg.Upload.Dir = filepath.Join(cfg.Web.PublicDir, "uploads")
	cfg.Admin.Password = secret
	for _, m := range mutate {
		m(cfg)
	}
	require.NoError(t, os.MkdirAll(cfg.Web.PublicDir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(cfg.Web.PublicDir, "index.html"), []byte("<h1>shop</h1>"), 0o600))

	db, err := gorm.Open(sqlite.Open(filepath.Join(dir, "test.db")), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	application := app.NewApplication(cfg)
	application.OverrideDB(db)
	require.NoError(t, application.MigrateDB(false))
	require.NoError(t, application.Wire(context.Background()))
	t.Cleanup(application.Release)

	srv := webserver.NewWebServer(cfg)
	Init(srv, application)
	return &testSite{t: t, e: srv.Root(), app: application}
}

func (s *testSite) do(req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	s.e.ServeHTTP(rec, req)
	return rec
}

func (s *testSite) jsonRequest(method, path, body string) *http.Request {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	return req
}

// login returns the cookies and bearer token of a fresh admin session.
func (s *testSite) login() ([]*http.Cookie, string) {
	s.t.Helper()
	rec := s.do(s.jsonRequest(http.MethodPost, "/api/admin/login", `{"password":"`+adminPassword+`"}`))
	require.Equal(s.t, http.StatusOK, rec.Code, rec.Body.String())
	var body struct {
		Success bool   `json:"success"`
		Token   string `json:"token"`
	}
	require.NoError(s.t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.True(s.t, body.Success)
	require.NotEmpty(s.t, body.Token)
	return rec.Result().Cookies(), body.Token
}

func withCookies(req *http.Request, cookies []*http.Cookie) *http.Request {
	for _, c := range cookies {
		req.AddCookie(c)
	}
	return req
}

func withBearer(req *http.Request, token string) *http.Request {
	req.Header.Set(echo.HeaderAuthorization, "Bearer "+token)
	return req
}

func productForm(t *testing.T, method, path string, fields map[string]string, image []byte) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	for k, v := range fields {
		require.NoError(t, w.WriteField(k, v))
	}
	if image != nil {
		part, err := w.CreateFormFile("image", "mug.png")
		require.NoError(t, err)
		_, err = part.Write(image)
		require.NoError(t, err)
	}
	require.NoError(t, w.Close())
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set(echo.HeaderContentType, w.FormDataContentType())
	return req
}

func decodeProducts(t *testing.T, rec *httptest.ResponseRecorder) []domain.Product {
	t.Helper()
	var rows []domain.Product
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &rows))
	return rows
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Contains(t, body, "error")
	return body
}

func TestLoginWrongPassword(t *testing.T) {
	s := newTestSite(t, adminPassword)
	rec := s.do(s.jsonRequest(http.MethodPost, "/api/admin/login", `{"password":"nope"}`))

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "INVALID_CREDENTIALS", decodeError(t, rec)["code"])
	assert.Empty(t, rec.Result().Cookies())
}

func TestLoginWithoutConfiguredSecret(t *testing.T) {
	s := newTestSite(t, "")
	rec := s.do(s.jsonRequest(http.MethodPost, "/api/admin/login", `{"password":""}`))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	body := decodeError(t, rec)
	assert.Equal(t, "SERVER_MISCONFIGURED", body["code"])
	assert.Equal(t, "ADMIN_PASSWORD not set on server.", body["error"])
}

func TestAdminRoutesRequireSession(t *testing.T) {
	s := newTestSite(t, adminPassword)

	for _, req := range []*http.Request{
		httptest.NewRequest(http.MethodGet, "/api/admin/enquiries", nil),
		httptest.NewRequest(http.MethodGet, "/api/admin/enquiries/export", nil),
		productForm(t, http.MethodPost, "/api/admin/products", map[string]string{"name": "Mug", "price": "500"}, pngBytes),
		productForm(t, http.MethodPut, "/api/admin/products/1", map[string]string{"name": "Mug", "price": "500"}, nil),
		httptest.NewRequest(http.MethodDelete, "/api/admin/products/1", nil),
		withBearer(httptest.NewRequest(http.MethodGet, "/api/admin/enquiries", nil), "forged"),
	} {
		rec := s.do(req)
		assert.Equal(t, http.StatusUnauthorized, rec.Code, req.Method+" "+req.URL.Path)
		assert.Equal(t, "UNAUTHORIZED", decodeError(t, rec)["code"])
	}

	rec := s.do(httptest.NewRequest(http.MethodGet, "/api/products", nil))
	assert.Empty(t, decodeProducts(t, rec))
}

func TestCookieAndBearerSessions(t *testing.T) {
	s := newTestSite(t, adminPassword)
	cookies, token := s.login()
	require.NotEmpty(t, cookies)

	rec := s.do(withCookies(httptest.NewRequest(http.MethodGet, "/api/admin/enquiries", nil), cookies))
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = s.do(withBearer(httptest.NewRequest(http.MethodGet, "/api/admin/enquiries", nil), token))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestLogoutRevokesSession(t *testing.T) {
	s := newTestSite(t, adminPassword)
	cookies, token := s.login()

	rec := s.do(withCookies(httptest.NewRequest(http.MethodPost, "/api/admin/logout", nil), cookies))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"success":true}`, rec.Body.String())

	assert.True(t, adminCookieCleared(rec), "logout should expire the admin cookie")

	rec = s.do(withBearer(httptest.NewRequest(http.MethodGet, "/api/admin/enquiries", nil), token))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	// logging out again without any session is still fine
	rec = s.do(httptest.NewRequest(http.MethodPost, "/api/admin/logout", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func adminCookieCleared(rec *httptest.ResponseRecorder) bool {
	for _, c := range rec.Result().Cookies() {
		if c.Name == cookieName && c.MaxAge < 0 {
			return true
		}
	}
	return false
}

func TestLogoutClearsCookieWhenRegistryIsDown(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)
	s := newTestSite(t, adminPassword, func(cfg *config.AppConfig) {
		cfg.Session.Backend = "redis"
		cfg.Session.RedisAddr = mr.Addr()
	})
	cookies, _ := s.login()

	mr.Close()
	rec := s.do(withCookies(httptest.NewRequest(http.MethodPost, "/api/admin/logout", nil), cookies))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.True(t, adminCookieCleared(rec), "cookie must be cleared even when revoke fails")
}

func TestReloginRevokesPreviousSession(t *testing.T) {
	s := newTestSite(t, adminPassword)
	cookies, first := s.login()

	req := withCookies(s.jsonRequest(http.MethodPost, "/api/admin/login", `{"password":"`+adminPassword+`"}`), cookies)
	rec := s.do(req)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = s.do(withBearer(httptest.NewRequest(http.MethodGet, "/api/admin/enquiries", nil), first))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestSessionStatus(t *testing.T) {
	s := newTestSite(t, adminPassword)

	rec := s.do(httptest.NewRequest(http.MethodGet, "/api/admin/session", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"authenticated":false}`, rec.Body.String())

	_, token := s.login()
	rec = s.do(withBearer(httptest.NewRequest(http.MethodGet, "/api/admin/session", nil), token))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"authenticated":true`)
	assert.Contains(t, rec.Body.String(), `"expires_at"`)
}

func TestCreateProductWithoutImageWritesNothing(t *testing.T) {
	s := newTestSite(t, adminPassword)
	_, token := s.login()

	req := productForm(t, http.MethodPost, "/api/admin/products", map[string]string{"name": "Mug", "price": "500"}, nil)
	rec := s.do(withBearer(req, token))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	body := decodeError(t, rec)
	assert.Equal(t, "VALIDATION_ERROR", body["code"])
	assert.Equal(t, "Name, price and image are required.", body["error"])

	rec = s.do(httptest.NewRequest(http.MethodGet, "/api/products", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	for _, p := range decodeProducts(t, rec) {
		assert.NotEqual(t, "Mug", p.Name)
	}
	entries, err := os.ReadDir(s.app.Config().Upload.Dir)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestProductLifecycle(t *testing.T) {
	s := newTestSite(t, adminPassword)
	_, token := s.login()

	req := productForm(t, http.MethodPost, "/api/admin/products",
		map[string]string{"name": "Mug", "price": "500", "description": "Hand thrown"}, pngBytes)
	rec := s.do(withBearer(req, token))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.JSONEq(t, `{"success":true}`, rec.Body.String())

	rec = s.do(httptest.NewRequest(http.MethodGet, "/api/products", nil))
	assert.Equal(t, "1", rec.Header().Get("X-Total-Count"))
	rows := decodeProducts(t, rec)
	require.Len(t, rows, 1)
	mug := rows[0]
	assert.Equal(t, "Mug", mug.Name)
	assert.EqualValues(t, 500, mug.Price)
	assert.True(t, strings.HasPrefix(mug.Image, "/uploads/"))

	// the stored image is publicly served
	rec = s.do(httptest.NewRequest(http.MethodGet, mug.Image, nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, pngBytes, rec.Body.Bytes())

	id := jsonID(mug.ID)
	req = productForm(t, http.MethodPut, "/api/admin/products/"+id, map[string]string{"name": "Big Mug", "price": "650"}, nil)
	rec = s.do(withBearer(req, token))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.JSONEq(t, `{"success":true,"outcome":"applied"}`, rec.Body.String())

	rows = decodeProducts(t, s.do(httptest.NewRequest(http.MethodGet, "/api/products", nil)))
	require.Len(t, rows, 1)
	assert.Equal(t, "Big Mug", rows[0].Name)
	assert.Equal(t, mug.Image, rows[0].Image)

	rec = s.do(withBearer(httptest.NewRequest(http.MethodDelete, "/api/admin/products/"+id, nil), token))
	assert.JSONEq(t, `{"success":true,"outcome":"applied"}`, rec.Body.String())
	rec = s.do(withBearer(httptest.NewRequest(http.MethodDelete, "/api/admin/products/"+id, nil), token))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"success":true,"outcome":"no_such_record"}`, rec.Body.String())

	rows = decodeProducts(t, s.do(httptest.NewRequest(http.MethodGet, "/api/products", nil)))
	assert.Empty(t, rows)
}

func TestUpdateMissingProductSucceeds(t *testing.T) {
	s := newTestSite(t, adminPassword)
	_, token := s.login()

	req := productForm(t, http.MethodPut, "/api/admin/products/999", map[string]string{"name": "Ghost", "price": "1"}, nil)
	rec := s.do(withBearer(req, token))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"success":true,"outcome":"no_such_record"}`, rec.Body.String())

	req = productForm(t, http.MethodPut, "/api/admin/products/999", map[string]string{"name": "Ghost"}, nil)
	rec = s.do(withBearer(req, token))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestInvalidProductID(t *testing.T) {
	s := newTestSite(t, adminPassword)
	_, token := s.login()

	rec := s.do(withBearer(httptest.NewRequest(http.MethodDelete, "/api/admin/products/abc", nil), token))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "Invalid product ID.", decodeError(t, rec)["error"])
}

func TestEnquiryScenario(t *testing.T) {
	s := newTestSite(t, adminPassword)

	rec := s.do(s.jsonRequest(http.MethodPost, "/api/enquiry", `{"name":"Early","email":"e@x.com","message":"first"}`))
	require.Equal(t, http.StatusOK, rec.Code)

	rec = s.do(s.jsonRequest(http.MethodPost, "/api/enquiry", `{"name":"A","email":"a@b.com","message":"hi"}`))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"success":true,"message":"Enquiry submitted successfully."}`, rec.Body.String())

	_, token := s.login()
	rec = s.do(withBearer(httptest.NewRequest(http.MethodGet, "/api/admin/enquiries", nil), token))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "2", rec.Header().Get("X-Total-Count"))

	var rows []domain.Enquiry
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &rows))
	require.Len(t, rows, 2)
	assert.Equal(t, "A", rows[0].Name)
	assert.Equal(t, "a@b.com", rows[0].Email)
	assert.Equal(t, "hi", rows[0].Message)
	assert.False(t, rows[0].CreatedAt.IsZero())
	assert.Equal(t, "Early", rows[1].Name)

	rec = s.do(withBearer(httptest.NewRequest(http.MethodGet, "/api/admin/enquiries?page=2&perPage=1", nil), token))
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &rows))
	require.Len(t, rows, 1)
	assert.Equal(t, "Early", rows[0].Name)
	assert.Equal(t, "2", rec.Header().Get("X-Total-Count"))
}

func TestEnquiryValidation(t *testing.T) {
	s := newTestSite(t, adminPassword)

	rec := s.do(s.jsonRequest(http.MethodPost, "/api/enquiry", `{"name":"A","phone":"123"}`))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	body := decodeError(t, rec)
	assert.Equal(t, "Name, email and message are required.", body["error"])
	assert.Contains(t, body["fields"], "email")

	long := strings.Repeat("x", 201)
	rec = s.do(s.jsonRequest(http.MethodPost, "/api/enquiry", `{"name":"`+long+`","email":"a@b.com","message":"hi"}`))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, decodeError(t, rec)["fields"], "name")

	rec = s.do(s.jsonRequest(http.MethodPost, "/api/enquiry", `{"name":`))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestEnquiryExport(t *testing.T) {
	s := newTestSite(t, adminPassword)
	rec := s.do(s.jsonRequest(http.MethodPost, "/api/enquiry", `{"name":"A","email":"a@b.com","message":"hi","sourcePage":"/contact"}`))
	require.Equal(t, http.StatusOK, rec.Code)

	_, token := s.login()
	rec = s.do(withBearer(httptest.NewRequest(http.MethodGet, "/api/admin/enquiries/export", nil), token))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, strings.HasPrefix(rec.Header().Get(echo.HeaderContentType), "text/csv"))
	assert.Contains(t, rec.Header().Get(echo.HeaderContentDisposition), "attachment")
	lines := strings.Split(strings.TrimSpace(rec.Body.String()), "\n")
	require.Len(t, lines, 2)
	assert.Contains(t, lines[1], "/contact")
}

func TestPaginationRejectsJunk(t *testing.T) {
	s := newTestSite(t, adminPassword)
	rec := s.do(httptest.NewRequest(http.MethodGet, "/api/products?perPage=abc", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = s.do(httptest.NewRequest(http.MethodGet, "/api/products?perPage=-5", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func jsonID(id int64) string {
	b, _ := json.Marshal(id)
	return string(b)
}
