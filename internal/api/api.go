package api

import (
	"github.com/chataru/craftsite/internal/app"
	"github.com/chataru/craftsite/internal/webserver"
)

// Init registers every site and admin route on srv.
func Init(srv *webserver.WebServer, appCtx app.AppContext) {
	h := &handlers{
		auth:         appCtx.Authenticator(),
		catalogue:    appCtx.Catalogue(),
		enquiries:    appCtx.Enquiries(),
		secureCookie: appCtx.Config().Web.SecureCookie,
		sessionTTL:   appCtx.Config().Session.TTL,
	}
	guard := h.requireSession

	// public
	srv.ApiGET("/products", h.listProducts)
	srv.ApiPOST("/enquiry", h.submitEnquiry)

	// admin session
	srv.ApiPOST("/admin/login", h.login)
	srv.ApiPOST("/admin/logout", h.logout)
	srv.ApiGET("/admin/session", h.sessionStatus)

	// admin, session required
	srv.ApiPOST("/admin/products", h.createProduct, guard)
	srv.ApiPUT("/admin/products/:id", h.updateProduct, guard)
	srv.ApiDELETE("/admin/products/:id", h.deleteProduct, guard)
	srv.ApiGET("/admin/enquiries", h.listEnquiries, guard)
	srv.ApiGET("/admin/enquiries/export", h.exportEnquiries, guard)
}
