package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/yourusername/course-api/internal/middleware"
	"github.com/yourusername/course-api/internal/service"
)

// UserHandler обрабатывает запросы профиля пользователя
type UserHandler struct {
	progressService *service.ProgressService
}

// NewUserHandler создает новый обработчик пользователей
func NewUserHandler(progressService *service.ProgressService) *UserHandler {
	return &UserHandler{progressService: progressService}
}

// Me возвращает профиль аутентифицированного пользователя
func (h *UserHandler) Me(c *gin.Context) {
	user := middleware.CurrentUser(c)
	if user == nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized", "error_type": "token_missing"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"user": user})
}

// MyCourses возвращает права пользователя на курсы вместе с прогрессом
func (h *UserHandler) MyCourses(c *gin.Context) {
	user := middleware.CurrentUser(c)
	if user == nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized", "error_type": "token_missing"})
		return
	}

	entitlements, err := h.progressService.ListEntitlements(user.ID)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"courses": entitlements, "count": len(entitlements)})
}
