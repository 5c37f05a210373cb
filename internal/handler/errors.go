package handler

import (
	"errors"
	"log"
	"net/http"

	"github.com/gin-gonic/gin"

	apperrors "github.com/yourusername/course-api/internal/pkg/errors"
	"github.com/yourusername/course-api/internal/service"
)

// respondError приводит ошибки таксономии приложения к HTTP статусам
// со стабильными error_type значениями для клиентов
func respondError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, apperrors.ErrValidation):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error(), "error_type": "validation_error"})
	case errors.Is(err, service.ErrInvalidCredentials):
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid email or password", "error_type": "invalid_credentials"})
	case errors.Is(err, apperrors.ErrExpiredToken):
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Token is expired", "error_type": "token_expired"})
	case errors.Is(err, apperrors.ErrInvalidToken):
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Token is invalid or already used", "error_type": "token_invalid"})
	case errors.Is(err, apperrors.ErrStaleCredential):
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Password was changed, please log in again", "error_type": "stale_credential"})
	case errors.Is(err, apperrors.ErrAccessDenied):
		c.JSON(http.StatusForbidden, gin.H{"error": "Please purchase this course first", "error_type": "purchase_required"})
	case errors.Is(err, service.ErrScoreTooLow):
		c.JSON(http.StatusForbidden, gin.H{"error": "Quiz score is below the certification threshold", "error_type": "score_too_low"})
	case errors.Is(err, apperrors.ErrForbidden):
		c.JSON(http.StatusForbidden, gin.H{"error": "Forbidden", "error_type": "forbidden"})
	case errors.Is(err, apperrors.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "Resource not found", "error_type": "not_found"})
	case errors.Is(err, apperrors.ErrConflict):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error(), "error_type": "conflict"})
	default:
		log.Printf("[Handler] Внутренняя ошибка: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error", "error_type": "internal_error"})
	}
}
