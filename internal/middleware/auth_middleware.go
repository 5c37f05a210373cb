package middleware

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/yourusername/course-api/internal/domain/entity"
	apperrors "github.com/yourusername/course-api/internal/pkg/errors"
	"github.com/yourusername/course-api/internal/service"
)

// Операции, защищенные ролевой авторизацией
const (
	OpProgressUpdate  = "progress.update"
	OpCertificate     = "certificate.issue"
	OpProgressExport  = "progress.export"
	OpUserReactivate  = "user.reactivate"
	OpCoursesOverview = "courses.overview"
)

// rolePolicy — декларативная таблица возможностей: операция -> допустимые роли.
// Единственное место, где объявляются требования к ролям.
var rolePolicy = map[string][]string{
	OpProgressUpdate:  {entity.RoleStudent, entity.RoleInstructor, entity.RoleAdmin},
	OpCertificate:     {entity.RoleStudent, entity.RoleInstructor, entity.RoleAdmin},
	OpCoursesOverview: {entity.RoleStudent, entity.RoleInstructor, entity.RoleAdmin},
	OpProgressExport:  {entity.RoleInstructor, entity.RoleAdmin},
	OpUserReactivate:  {entity.RoleAdmin},
}

// AuthMiddleware обеспечивает аутентификацию и авторизацию для защищенных маршрутов
type AuthMiddleware struct {
	authService *service.AuthService
}

// NewAuthMiddleware создает новый middleware аутентификации
func NewAuthMiddleware(authService *service.AuthService) *AuthMiddleware {
	return &AuthMiddleware{authService: authService}
}

// RequireAuth проверяет сессионный токен и кладет пользователя в контекст запроса.
// Порядок проверок (формат -> срок -> статус аккаунта -> эпоха пароля)
// обеспечивается AuthService.Authenticate.
func (m *AuthMiddleware) RequireAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Authorization header is required", "error_type": "token_missing"})
			c.Abort()
			return
		}

		parts := strings.Split(authHeader, " ")
		if len(parts) != 2 || parts[0] != "Bearer" {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Authorization header format must be Bearer {token}", "error_type": "token_format"})
			c.Abort()
			return
		}

		user, claims, err := m.authService.Authenticate(parts[1])
		if err != nil {
			switch {
			case errors.Is(err, apperrors.ErrExpiredToken):
				c.JSON(http.StatusUnauthorized, gin.H{"error": "Token is expired", "error_type": "token_expired"})
			case errors.Is(err, apperrors.ErrStaleCredential):
				c.JSON(http.StatusUnauthorized, gin.H{"error": "Password was changed, please log in again", "error_type": "stale_credential"})
			case errors.Is(err, apperrors.ErrForbidden):
				c.JSON(http.StatusForbidden, gin.H{"error": "Account is not allowed to access this resource", "error_type": "forbidden"})
			default:
				c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid token", "error_type": "token_invalid"})
			}
			c.Abort()
			return
		}

		c.Set("user", user)
		c.Set("user_id", user.ID)
		c.Set("role", claims.Role)

		c.Next()
	}
}

// Authorize проверяет роль пользователя против таблицы возможностей.
// Должен применяться ПОСЛЕ RequireAuth.
func (m *AuthMiddleware) Authorize(operation string) gin.HandlerFunc {
	allowed, known := rolePolicy[operation]
	return func(c *gin.Context) {
		if !known {
			c.JSON(http.StatusForbidden, gin.H{"error": "Operation is not declared in role policy", "error_type": "forbidden"})
			c.Abort()
			return
		}

		user := CurrentUser(c)
		if user == nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized", "error_type": "token_missing"})
			c.Abort()
			return
		}

		if !user.RoleAllowed(allowed...) {
			c.JSON(http.StatusForbidden, gin.H{"error": "Insufficient role for this operation", "error_type": "forbidden"})
			c.Abort()
			return
		}

		c.Next()
	}
}

// CurrentUser возвращает аутентифицированного пользователя из контекста запроса
func CurrentUser(c *gin.Context) *entity.User {
	value, exists := c.Get("user")
	if !exists {
		return nil
	}
	user, ok := value.(*entity.User)
	if !ok {
		return nil
	}
	return user
}
