package service

import (
	"errors"
	"fmt"
	"log"

	"github.com/yourusername/course-api/internal/domain/entity"
	"github.com/yourusername/course-api/internal/domain/repository"
	apperrors "github.com/yourusername/course-api/internal/pkg/errors"
)

// ProgressService применяет обновления учебного прогресса к существующему праву на курс.
// Права он не создает: отсутствие записи означает, что курс не куплен.
type ProgressService struct {
	entitlementRepo repository.EntitlementRepository
	courseRepo      repository.CourseRepository
}

// NewProgressService создает новый сервис прогресса и возвращает ошибку при проблемах
func NewProgressService(
	entitlementRepo repository.EntitlementRepository,
	courseRepo repository.CourseRepository,
) (*ProgressService, error) {
	if entitlementRepo == nil {
		return nil, fmt.Errorf("EntitlementRepository is required for ProgressService")
	}
	if courseRepo == nil {
		return nil, fmt.Errorf("CourseRepository is required for ProgressService")
	}
	return &ProgressService{
		entitlementRepo: entitlementRepo,
		courseRepo:      courseRepo,
	}, nil
}

// UpdateWatchTime прибавляет seconds к накопленному времени просмотра
// и запоминает текущую лекцию. Обновление затрагивает только поля просмотра:
// конкурентная отправка балла за квиз не теряется.
func (s *ProgressService) UpdateWatchTime(userID, courseID, lectureID uint, seconds int64) error {
	if seconds < 0 {
		return fmt.Errorf("%w: watch time seconds must not be negative", apperrors.ErrValidation)
	}

	err := s.entitlementRepo.AddWatchTime(userID, courseID, lectureID, seconds)
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			return fmt.Errorf("%w: course must be purchased first", apperrors.ErrAccessDenied)
		}
		return err
	}
	return nil
}

// SubmitQuizScore устанавливает балл за квиз (last-write-wins).
// Балл должен попадать в диапазон оценок курса.
func (s *ProgressService) SubmitQuizScore(userID, courseID uint, score int) error {
	course, err := s.courseRepo.GetByID(courseID)
	if err != nil {
		return err
	}
	if score < 0 || score > course.TotalMarks {
		return fmt.Errorf("%w: score must be between 0 and %d", apperrors.ErrValidation, course.TotalMarks)
	}

	err = s.entitlementRepo.UpdateScore(userID, courseID, score)
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			return fmt.Errorf("%w: course must be purchased first", apperrors.ErrAccessDenied)
		}
		return err
	}

	log.Printf("[Progress] Балл за квиз обновлен user=%d course=%d score=%d", userID, courseID, score)
	return nil
}

// ListEntitlements возвращает все права пользователя с их прогрессом ("мои курсы")
func (s *ProgressService) ListEntitlements(userID uint) ([]entity.Entitlement, error) {
	return s.entitlementRepo.ListByUser(userID)
}

// ListCourseEntitlements возвращает все права на курс для отчетности
func (s *ProgressService) ListCourseEntitlements(courseID uint) ([]entity.Entitlement, error) {
	return s.entitlementRepo.ListByCourse(courseID)
}
