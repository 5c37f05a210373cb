package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/yourusername/course-api/internal/domain/entity"
	apperrors "github.com/yourusername/course-api/internal/pkg/errors"
)

// ============================================================================
// Моки для тестирования FulfillmentService
// ============================================================================

// MockCourseRepository реализует repository.CourseRepository
type MockCourseRepository struct {
	mock.Mock
}

func (m *MockCourseRepository) GetByID(id uint) (*entity.Course, error) {
	args := m.Called(id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*entity.Course), args.Error(1)
}

// MockEntitlementRepository реализует repository.EntitlementRepository
type MockEntitlementRepository struct {
	mock.Mock
}

func (m *MockEntitlementRepository) GetByUserAndCourse(userID, courseID uint) (*entity.Entitlement, error) {
	args := m.Called(userID, courseID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*entity.Entitlement), args.Error(1)
}

func (m *MockEntitlementRepository) Grant(userID, courseID uint, paymentRef string) (*entity.Entitlement, bool, error) {
	args := m.Called(userID, courseID, paymentRef)
	if args.Get(0) == nil {
		return nil, args.Bool(1), args.Error(2)
	}
	return args.Get(0).(*entity.Entitlement), args.Bool(1), args.Error(2)
}

func (m *MockEntitlementRepository) AddWatchTime(userID, courseID, lectureID uint, seconds int64) error {
	args := m.Called(userID, courseID, lectureID, seconds)
	return args.Error(0)
}

func (m *MockEntitlementRepository) UpdateScore(userID, courseID uint, score int) error {
	args := m.Called(userID, courseID, score)
	return args.Error(0)
}

func (m *MockEntitlementRepository) ListByUser(userID uint) ([]entity.Entitlement, error) {
	args := m.Called(userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]entity.Entitlement), args.Error(1)
}

func (m *MockEntitlementRepository) ListByCourse(courseID uint) ([]entity.Entitlement, error) {
	args := m.Called(courseID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]entity.Entitlement), args.Error(1)
}

// MockCacheRepository реализует repository.CacheRepository
type MockCacheRepository struct {
	mock.Mock
}

func (m *MockCacheRepository) SetNX(key string, value interface{}, expiration time.Duration) (bool, error) {
	args := m.Called(key, value, expiration)
	return args.Bool(0), args.Error(1)
}

func (m *MockCacheRepository) Delete(key string) error {
	args := m.Called(key)
	return args.Error(0)
}

// ============================================================================
// Вспомогательные функции
// ============================================================================

// Типизированный nil в интерфейсе не считался бы nil внутри сервиса,
// поэтому отсутствие кеша передаётся явным nil-литералом.
func newTestFulfillmentService(t *testing.T, userRepo *MockUserRepository, courseRepo *MockCourseRepository, entitlementRepo *MockEntitlementRepository, cacheRepo *MockCacheRepository) *FulfillmentService {
	t.Helper()
	if cacheRepo == nil {
		svc, err := NewFulfillmentService(userRepo, courseRepo, entitlementRepo, nil)
		require.NoError(t, err)
		return svc
	}
	svc, err := NewFulfillmentService(userRepo, courseRepo, entitlementRepo, cacheRepo)
	require.NoError(t, err)
	return svc
}

// ============================================================================
// Process
// ============================================================================

func TestFulfillmentService_Process_GrantsEntitlement(t *testing.T) {
	// Arrange
	userRepo := new(MockUserRepository)
	courseRepo := new(MockCourseRepository)
	entitlementRepo := new(MockEntitlementRepository)
	svc := newTestFulfillmentService(t, userRepo, courseRepo, entitlementRepo, nil)

	userRepo.On("GetByID", uint(1)).Return(&entity.User{ID: 1}, nil)
	courseRepo.On("GetByID", uint(2)).Return(&entity.Course{ID: 2}, nil)
	entitlementRepo.On("Grant", uint(1), uint(2), "pay_123").
		Return(&entity.Entitlement{ID: 7, UserID: 1, CourseID: 2}, true, nil)

	// Act
	err := svc.Process(context.Background(), PaymentNotification{
		UserID:           1,
		CourseID:         2,
		PaymentReference: "pay_123",
	})

	// Assert
	require.NoError(t, err)
	entitlementRepo.AssertExpectations(t)
}

func TestFulfillmentService_Process_RedeliveryIsNoop(t *testing.T) {
	// Arrange: повторная доставка того же уведомления, право уже выдано
	userRepo := new(MockUserRepository)
	courseRepo := new(MockCourseRepository)
	entitlementRepo := new(MockEntitlementRepository)
	svc := newTestFulfillmentService(t, userRepo, courseRepo, entitlementRepo, nil)

	userRepo.On("GetByID", uint(1)).Return(&entity.User{ID: 1}, nil)
	courseRepo.On("GetByID", uint(2)).Return(&entity.Course{ID: 2}, nil)
	entitlementRepo.On("Grant", uint(1), uint(2), "pay_123").
		Return(&entity.Entitlement{ID: 7, UserID: 1, CourseID: 2, WatchedTime: 500, Score: 15}, false, nil)

	// Act
	err := svc.Process(context.Background(), PaymentNotification{
		UserID:           1,
		CourseID:         2,
		PaymentReference: "pay_123",
	})

	// Assert: дубликат подтверждается без ошибки и без второго права
	require.NoError(t, err, "Повторная доставка не должна возвращать ошибку")
}

func TestFulfillmentService_Process_DuplicateReferenceShortCircuits(t *testing.T) {
	// Arrange: кеш уже видел этот референс платежа
	userRepo := new(MockUserRepository)
	courseRepo := new(MockCourseRepository)
	entitlementRepo := new(MockEntitlementRepository)
	cacheRepo := new(MockCacheRepository)
	svc := newTestFulfillmentService(t, userRepo, courseRepo, entitlementRepo, cacheRepo)

	cacheRepo.On("SetNX", "fulfillment:ref:pay_123", mock.Anything, mock.Anything).Return(false, nil)

	// Act
	err := svc.Process(context.Background(), PaymentNotification{
		UserID:           1,
		CourseID:         2,
		PaymentReference: "pay_123",
	})

	// Assert: до БД дубликат не доходит
	require.NoError(t, err)
	entitlementRepo.AssertNotCalled(t, "Grant", mock.Anything, mock.Anything, mock.Anything)
	userRepo.AssertNotCalled(t, "GetByID", mock.Anything)
}

func TestFulfillmentService_Process_CacheFailureDoesNotBlock(t *testing.T) {
	// Arrange: кеш недоступен, фулфилмент должен пройти через БД
	userRepo := new(MockUserRepository)
	courseRepo := new(MockCourseRepository)
	entitlementRepo := new(MockEntitlementRepository)
	cacheRepo := new(MockCacheRepository)
	svc := newTestFulfillmentService(t, userRepo, courseRepo, entitlementRepo, cacheRepo)

	cacheRepo.On("SetNX", mock.Anything, mock.Anything, mock.Anything).Return(false, assert.AnError)
	userRepo.On("GetByID", uint(1)).Return(&entity.User{ID: 1}, nil)
	courseRepo.On("GetByID", uint(2)).Return(&entity.Course{ID: 2}, nil)
	entitlementRepo.On("Grant", uint(1), uint(2), "pay_123").
		Return(&entity.Entitlement{ID: 7}, true, nil)

	// Act
	err := svc.Process(context.Background(), PaymentNotification{
		UserID:           1,
		CourseID:         2,
		PaymentReference: "pay_123",
	})

	// Assert: grant сам идемпотентен, недоступность кеша не блокирует
	require.NoError(t, err)
	entitlementRepo.AssertExpectations(t)
}

func TestFulfillmentService_Process_EmptyReferenceAcknowledged(t *testing.T) {
	// Arrange: уведомление без референса платежа
	userRepo := new(MockUserRepository)
	courseRepo := new(MockCourseRepository)
	entitlementRepo := new(MockEntitlementRepository)
	svc := newTestFulfillmentService(t, userRepo, courseRepo, entitlementRepo, nil)

	// Act
	err := svc.Process(context.Background(), PaymentNotification{UserID: 1, CourseID: 2})

	// Assert: аномалия логируется и подтверждается, право не выдаётся
	require.NoError(t, err)
	entitlementRepo.AssertNotCalled(t, "Grant", mock.Anything, mock.Anything, mock.Anything)
}

func TestFulfillmentService_Process_UnknownUserAcknowledged(t *testing.T) {
	// Arrange: платёж за несуществующего пользователя
	userRepo := new(MockUserRepository)
	courseRepo := new(MockCourseRepository)
	entitlementRepo := new(MockEntitlementRepository)
	svc := newTestFulfillmentService(t, userRepo, courseRepo, entitlementRepo, nil)

	userRepo.On("GetByID", uint(999)).Return(nil, apperrors.ErrNotFound)

	// Act
	err := svc.Process(context.Background(), PaymentNotification{
		UserID:           999,
		CourseID:         2,
		PaymentReference: "pay_123",
	})

	// Assert: fail-open — провайдер не должен ретраить вечно
	require.NoError(t, err, "Неизвестный пользователь — аномалия, но не ошибка для провайдера")
	entitlementRepo.AssertNotCalled(t, "Grant", mock.Anything, mock.Anything, mock.Anything)
}

func TestFulfillmentService_Process_UnknownCourseAcknowledged(t *testing.T) {
	// Arrange: платёж за несуществующий курс
	userRepo := new(MockUserRepository)
	courseRepo := new(MockCourseRepository)
	entitlementRepo := new(MockEntitlementRepository)
	svc := newTestFulfillmentService(t, userRepo, courseRepo, entitlementRepo, nil)

	userRepo.On("GetByID", uint(1)).Return(&entity.User{ID: 1}, nil)
	courseRepo.On("GetByID", uint(999)).Return(nil, apperrors.ErrNotFound)

	// Act
	err := svc.Process(context.Background(), PaymentNotification{
		UserID:           1,
		CourseID:         999,
		PaymentReference: "pay_123",
	})

	// Assert
	require.NoError(t, err)
	entitlementRepo.AssertNotCalled(t, "Grant", mock.Anything, mock.Anything, mock.Anything)
}

func TestFulfillmentService_Process_InfraErrorIsReturned(t *testing.T) {
	// Arrange: отказ БД при выдаче права
	userRepo := new(MockUserRepository)
	courseRepo := new(MockCourseRepository)
	entitlementRepo := new(MockEntitlementRepository)
	svc := newTestFulfillmentService(t, userRepo, courseRepo, entitlementRepo, nil)

	userRepo.On("GetByID", uint(1)).Return(&entity.User{ID: 1}, nil)
	courseRepo.On("GetByID", uint(2)).Return(&entity.Course{ID: 2}, nil)
	entitlementRepo.On("Grant", uint(1), uint(2), "pay_123").
		Return(nil, false, assert.AnError)

	// Act
	err := svc.Process(context.Background(), PaymentNotification{
		UserID:           1,
		CourseID:         2,
		PaymentReference: "pay_123",
	})

	// Assert: инфраструктурная ошибка отдаётся провайдеру для безопасного ретрая
	require.Error(t, err)
	assert.ErrorIs(t, err, assert.AnError)
}

func TestFulfillmentService_Process_GrantFailureFreesDedupeKey(t *testing.T) {
	// Arrange: первая доставка падает на выдаче права уже после того,
	// как ключ дедупликации был поставлен
	userRepo := new(MockUserRepository)
	courseRepo := new(MockCourseRepository)
	entitlementRepo := new(MockEntitlementRepository)
	cacheRepo := new(MockCacheRepository)
	svc := newTestFulfillmentService(t, userRepo, courseRepo, entitlementRepo, cacheRepo)

	cacheRepo.On("SetNX", "fulfillment:ref:pay_123", mock.Anything, mock.Anything).Return(true, nil)
	cacheRepo.On("Delete", "fulfillment:ref:pay_123").Return(nil)
	userRepo.On("GetByID", uint(1)).Return(&entity.User{ID: 1}, nil)
	courseRepo.On("GetByID", uint(2)).Return(&entity.Course{ID: 2}, nil)
	entitlementRepo.On("Grant", uint(1), uint(2), "pay_123").Return(nil, false, assert.AnError)

	// Act
	err := svc.Process(context.Background(), PaymentNotification{
		UserID:           1,
		CourseID:         2,
		PaymentReference: "pay_123",
	})

	// Assert: ошибка отдана провайдеру, а ключ снят — иначе ретрай
	// подтвердился бы как "повторная доставка" без выдачи права
	require.Error(t, err)
	cacheRepo.AssertCalled(t, "Delete", "fulfillment:ref:pay_123")
}

func TestFulfillmentService_Process_RetryAfterGrantFailureGrants(t *testing.T) {
	// Arrange: провайдер ретраит доставку после 500-й от первой попытки
	userRepo := new(MockUserRepository)
	courseRepo := new(MockCourseRepository)
	entitlementRepo := new(MockEntitlementRepository)
	cacheRepo := new(MockCacheRepository)
	svc := newTestFulfillmentService(t, userRepo, courseRepo, entitlementRepo, cacheRepo)

	// Ключ снимается после неудачи, поэтому SetNX проходит в обеих попытках
	cacheRepo.On("SetNX", "fulfillment:ref:pay_123", mock.Anything, mock.Anything).Return(true, nil).Twice()
	cacheRepo.On("Delete", "fulfillment:ref:pay_123").Return(nil).Once()
	userRepo.On("GetByID", uint(1)).Return(&entity.User{ID: 1}, nil)
	courseRepo.On("GetByID", uint(2)).Return(&entity.Course{ID: 2}, nil)
	entitlementRepo.On("Grant", uint(1), uint(2), "pay_123").Return(nil, false, assert.AnError).Once()
	entitlementRepo.On("Grant", uint(1), uint(2), "pay_123").
		Return(&entity.Entitlement{ID: 7, UserID: 1, CourseID: 2}, true, nil).Once()

	notification := PaymentNotification{
		UserID:           1,
		CourseID:         2,
		PaymentReference: "pay_123",
	}

	// Act
	firstErr := svc.Process(context.Background(), notification)
	retryErr := svc.Process(context.Background(), notification)

	// Assert: ретрай доходит до выдачи права, покупка не теряется
	require.Error(t, firstErr, "Первая попытка должна вернуть ошибку для ретрая")
	require.NoError(t, retryErr, "Ретрай должен выдать право")
	entitlementRepo.AssertNumberOfCalls(t, "Grant", 2)
	cacheRepo.AssertExpectations(t)
}

func TestFulfillmentService_Process_UserLookupFailureFreesDedupeKey(t *testing.T) {
	// Arrange: инфраструктурный отказ на чтении пользователя (не "не найден")
	userRepo := new(MockUserRepository)
	courseRepo := new(MockCourseRepository)
	entitlementRepo := new(MockEntitlementRepository)
	cacheRepo := new(MockCacheRepository)
	svc := newTestFulfillmentService(t, userRepo, courseRepo, entitlementRepo, cacheRepo)

	cacheRepo.On("SetNX", "fulfillment:ref:pay_123", mock.Anything, mock.Anything).Return(true, nil)
	cacheRepo.On("Delete", "fulfillment:ref:pay_123").Return(nil)
	userRepo.On("GetByID", uint(1)).Return(nil, assert.AnError)

	// Act
	err := svc.Process(context.Background(), PaymentNotification{
		UserID:           1,
		CourseID:         2,
		PaymentReference: "pay_123",
	})

	// Assert
	require.Error(t, err)
	cacheRepo.AssertCalled(t, "Delete", "fulfillment:ref:pay_123")
}
