package service

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yourusername/course-api/internal/domain/entity"
	apperrors "github.com/yourusername/course-api/internal/pkg/errors"
)

func newTestCertificateService(t *testing.T, entitlementRepo *MockEntitlementRepository, courseRepo *MockCourseRepository) *CertificateService {
	t.Helper()
	svc, err := NewCertificateService(entitlementRepo, courseRepo)
	require.NoError(t, err)
	return svc
}

// ============================================================================
// Evaluate — чистая функция решения
// ============================================================================

func TestEvaluate_NotPurchased(t *testing.T) {
	// Arrange: права на курс нет
	user := &entity.User{ID: 1, Name: "Student"}
	course := &entity.Course{ID: 2, Title: "Go Basics"}

	// Act
	data, err := Evaluate(user, course, nil, time.Now())

	// Assert
	require.Error(t, err)
	assert.ErrorIs(t, err, apperrors.ErrAccessDenied, "Без покупки сертификат не выдаётся")
	assert.Nil(t, data)
}

func TestEvaluate_ScoreAtThresholdDenied(t *testing.T) {
	// Arrange: балл ровно на пороге — отказ, выдача строго при score > 12
	user := &entity.User{ID: 1, Name: "Student"}
	course := &entity.Course{ID: 2, Title: "Go Basics"}
	ent := &entity.Entitlement{UserID: 1, CourseID: 2, Score: 12}

	// Act
	data, err := Evaluate(user, course, ent, time.Now())

	// Assert
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrScoreTooLow)
	assert.Nil(t, data)
}

func TestEvaluate_ScoreAboveThresholdGranted(t *testing.T) {
	// Arrange: балл 13 — минимальный проходной
	author := &entity.User{ID: 9, Name: "Jane Instructor"}
	user := &entity.User{ID: 1, Name: "John Student"}
	course := &entity.Course{
		ID:            2,
		Title:         "Go Basics",
		TotalDuration: 5400,
		Author:        author,
	}
	ent := &entity.Entitlement{UserID: 1, CourseID: 2, Score: 13}
	now := time.Date(2026, time.March, 5, 10, 0, 0, 0, time.UTC)

	// Act
	data, err := Evaluate(user, course, ent, now)

	// Assert
	require.NoError(t, err)
	assert.Equal(t, "John Student", data.Name)
	assert.Equal(t, "Go Basics", data.CourseName)
	assert.Equal(t, "1hours 30 minutes", data.Duration, "5400 секунд — это 1 час 30 минут")
	assert.Equal(t, 13, data.Marks)
	assert.Equal(t, "Jane Instructor", data.Author)
	assert.Equal(t, "05 / 3 / 2026", data.Date)
}

func TestEvaluate_ZeroScoreDenied(t *testing.T) {
	// Arrange: купленный, но не пройденный курс
	user := &entity.User{ID: 1, Name: "Student"}
	course := &entity.Course{ID: 2, Title: "Go Basics"}
	ent := &entity.Entitlement{UserID: 1, CourseID: 2, Score: 0}

	// Act
	data, err := Evaluate(user, course, ent, time.Now())

	// Assert
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrScoreTooLow)
	assert.Nil(t, data)
}

func TestFormatDuration(t *testing.T) {
	// Arrange
	cases := []struct {
		name     string
		seconds  int64
		expected string
	}{
		{"полтора часа", 5400, "1hours 30 minutes"},
		{"меньше часа", 1800, "30 minutes"},
		{"ровно час", 3600, "1hours 0 minutes"},
		{"секунды усекаются", 119, "1 minutes"},
		{"ноль", 0, "0 minutes"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			// Act & Assert
			assert.Equal(t, tc.expected, formatDuration(tc.seconds))
		})
	}
}

func TestFormatCertificateDate(t *testing.T) {
	// Arrange: день с ведущим нулём, месяц и год без
	date := time.Date(2026, time.November, 7, 12, 0, 0, 0, time.UTC)

	// Act & Assert
	assert.Equal(t, "07 / 11 / 2026", formatCertificateDate(date))
}

// ============================================================================
// BuildCertificate
// ============================================================================

func TestCertificateService_BuildCertificate_Success(t *testing.T) {
	// Arrange
	entitlementRepo := new(MockEntitlementRepository)
	courseRepo := new(MockCourseRepository)
	svc := newTestCertificateService(t, entitlementRepo, courseRepo)

	user := &entity.User{ID: 1, Name: "John Student"}
	course := &entity.Course{ID: 2, Title: "Go Basics", TotalDuration: 3600, Author: &entity.User{Name: "Jane"}}
	courseRepo.On("GetByID", uint(2)).Return(course, nil)
	entitlementRepo.On("GetByUserAndCourse", uint(1), uint(2)).
		Return(&entity.Entitlement{UserID: 1, CourseID: 2, Score: 18}, nil)

	// Act
	data, err := svc.BuildCertificate(user, 2)

	// Assert
	require.NoError(t, err)
	assert.Equal(t, 18, data.Marks)
	assert.Equal(t, "Jane", data.Author)
}

func TestCertificateService_BuildCertificate_NotPurchased(t *testing.T) {
	// Arrange: записи о праве нет
	entitlementRepo := new(MockEntitlementRepository)
	courseRepo := new(MockCourseRepository)
	svc := newTestCertificateService(t, entitlementRepo, courseRepo)

	user := &entity.User{ID: 1, Name: "John Student"}
	courseRepo.On("GetByID", uint(2)).Return(&entity.Course{ID: 2, Title: "Go Basics"}, nil)
	entitlementRepo.On("GetByUserAndCourse", uint(1), uint(2)).Return(nil, apperrors.ErrNotFound)

	// Act
	data, err := svc.BuildCertificate(user, 2)

	// Assert
	require.Error(t, err)
	assert.ErrorIs(t, err, apperrors.ErrAccessDenied)
	assert.Nil(t, data)
}

func TestCertificateService_BuildCertificate_UnknownCourse(t *testing.T) {
	// Arrange
	entitlementRepo := new(MockEntitlementRepository)
	courseRepo := new(MockCourseRepository)
	svc := newTestCertificateService(t, entitlementRepo, courseRepo)

	courseRepo.On("GetByID", uint(404)).Return(nil, apperrors.ErrNotFound)

	// Act
	data, err := svc.BuildCertificate(&entity.User{ID: 1}, 404)

	// Assert
	require.Error(t, err)
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
	assert.Nil(t, data)
}
