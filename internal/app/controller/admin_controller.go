package controller

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/lojamoda/storefront-auth/internal/app/service"
	apperrors "github.com/lojamoda/storefront-auth/internal/errors"
	"github.com/lojamoda/storefront-auth/internal/middleware"
)

type AdminController struct {
	cleanupService service.CleanupService
}

func NewAdminController(cleanupService service.CleanupService) *AdminController {
	return &AdminController{cleanupService: cleanupService}
}

// RunTwoFactorCleanup purges old codes and rate limit rows on demand
// POST /api/admin/two-factor/cleanup
func (ctrl *AdminController) RunTwoFactorCleanup(c *gin.Context) {
	log := middleware.GetLoggerFromContext(c)
	userID, _ := middleware.GetUserID(c)

	result, err := ctrl.cleanupService.Run(c.Request.Context())
	if err != nil {
		apperrors.ParseAndRespond(c, http.StatusInternalServerError, err, "cleanup")
		return
	}

	log.Info("Manual two-factor cleanup", map[string]interface{}{
		"admin_id":            userID,
		"deleted_codes":       result.DeletedCodes,
		"deleted_rate_limits": result.DeletedRateLimits,
	})

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"result":  result,
	})
}
