package handler

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yourusername/course-api/internal/domain/entity"
	"github.com/yourusername/course-api/internal/domain/repository"
	apperrors "github.com/yourusername/course-api/internal/pkg/errors"
	"github.com/yourusername/course-api/internal/service"
)

func init() {
	gin.SetMode(gin.TestMode)
}

// newTestGinContext создает *gin.Context для тестов с JSON body
func newTestGinContext(method, path string, body interface{}) (*gin.Context, *httptest.ResponseRecorder) {
	w := httptest.NewRecorder()

	var req *http.Request
	if body != nil {
		bodyBytes, _ := json.Marshal(body)
		req, _ = http.NewRequest(method, path, bytes.NewReader(bodyBytes))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req, _ = http.NewRequest(method, path, nil)
	}

	c, _ := gin.CreateTestContext(w)
	c.Request = req
	return c, w
}

// parseJSONResponse парсит JSON ответ из *httptest.ResponseRecorder
func parseJSONResponse(t *testing.T, w *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var resp map[string]interface{}
	err := json.Unmarshal(w.Body.Bytes(), &resp)
	require.NoError(t, err, "Response body should be valid JSON: %s", w.Body.String())
	return resp
}

// ============================================================================
// Стабы репозиториев: встраивание интерфейса закрывает неиспользуемые методы
// ============================================================================

type stubUserRepo struct {
	repository.UserRepository
	user *entity.User
	err  error
}

func (s *stubUserRepo) GetByID(id uint) (*entity.User, error) {
	return s.user, s.err
}

type stubCourseRepo struct {
	repository.CourseRepository
	course *entity.Course
	err    error
}

func (s *stubCourseRepo) GetByID(id uint) (*entity.Course, error) {
	return s.course, s.err
}

type stubEntitlementRepo struct {
	repository.EntitlementRepository
	ent      *entity.Entitlement
	created  bool
	grantErr error
}

func (s *stubEntitlementRepo) Grant(userID, courseID uint, paymentRef string) (*entity.Entitlement, bool, error) {
	return s.ent, s.created, s.grantErr
}

func newTestWebhookHandler(t *testing.T, userRepo repository.UserRepository, courseRepo repository.CourseRepository, entitlementRepo repository.EntitlementRepository) *WebhookHandler {
	t.Helper()
	fulfillmentService, err := service.NewFulfillmentService(userRepo, courseRepo, entitlementRepo, nil)
	require.NoError(t, err)
	return NewWebhookHandler(fulfillmentService)
}

// ============================================================================
// CheckoutCompleted
// ============================================================================

func TestWebhookCheckoutCompleted_GrantsAndAcknowledges(t *testing.T) {
	// Arrange
	handler := newTestWebhookHandler(t,
		&stubUserRepo{user: &entity.User{ID: 1}},
		&stubCourseRepo{course: &entity.Course{ID: 2}},
		&stubEntitlementRepo{ent: &entity.Entitlement{ID: 7}, created: true},
	)
	c, w := newTestGinContext("POST", "/api/v1/webhooks/checkout-completed", map[string]interface{}{
		"user_id":           1,
		"course_id":         2,
		"payment_reference": "pay_123",
	})

	// Act
	handler.CheckoutCompleted(c)

	// Assert
	assert.Equal(t, http.StatusOK, w.Code)
	resp := parseJSONResponse(t, w)
	assert.Equal(t, true, resp["received"])
}

func TestWebhookCheckoutCompleted_MalformedBodyStillAcknowledged(t *testing.T) {
	// Arrange: битый payload нельзя починить ретраем, провайдер получает 200
	handler := newTestWebhookHandler(t,
		&stubUserRepo{},
		&stubCourseRepo{},
		&stubEntitlementRepo{},
	)

	w := httptest.NewRecorder()
	req, _ := http.NewRequest("POST", "/api/v1/webhooks/checkout-completed", bytes.NewReader([]byte("not-json")))
	req.Header.Set("Content-Type", "application/json")
	c, _ := gin.CreateTestContext(w)
	c.Request = req

	// Act
	handler.CheckoutCompleted(c)

	// Assert
	assert.Equal(t, http.StatusOK, w.Code, "Некорректное уведомление подтверждается, чтобы провайдер не ретраил вечно")
}

func TestWebhookCheckoutCompleted_UnknownUserAcknowledged(t *testing.T) {
	// Arrange: аномалия логируется, но ответ — 200
	handler := newTestWebhookHandler(t,
		&stubUserRepo{err: apperrors.ErrNotFound},
		&stubCourseRepo{},
		&stubEntitlementRepo{},
	)
	c, w := newTestGinContext("POST", "/api/v1/webhooks/checkout-completed", map[string]interface{}{
		"user_id":           999,
		"course_id":         2,
		"payment_reference": "pay_123",
	})

	// Act
	handler.CheckoutCompleted(c)

	// Assert
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestWebhookCheckoutCompleted_InfraErrorReturns500(t *testing.T) {
	// Arrange: отказ БД — единственный случай не-2xx ответа
	handler := newTestWebhookHandler(t,
		&stubUserRepo{user: &entity.User{ID: 1}},
		&stubCourseRepo{course: &entity.Course{ID: 2}},
		&stubEntitlementRepo{grantErr: assert.AnError},
	)
	c, w := newTestGinContext("POST", "/api/v1/webhooks/checkout-completed", map[string]interface{}{
		"user_id":           1,
		"course_id":         2,
		"payment_reference": "pay_123",
	})

	// Act
	handler.CheckoutCompleted(c)

	// Assert: обработка идемпотентна, ретрай провайдера безопасен
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	resp := parseJSONResponse(t, w)
	assert.Equal(t, "internal_error", resp["error_type"])
}
