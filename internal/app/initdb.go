package app

import (
	"go.uber.org/zap"
)

// checkAdminSecret warns at startup when admin login cannot work.
func (a *Application) checkAdminSecret() {
	if a.appConfig.Admin.Configured() {
		return
	}
	zap.L().Warn("ADMIN_PASSWORD is not set; admin login will report a server misconfiguration")
}
