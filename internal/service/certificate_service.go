package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/yourusername/course-api/internal/domain/entity"
	"github.com/yourusername/course-api/internal/domain/repository"
	apperrors "github.com/yourusername/course-api/internal/pkg/errors"
)

// passingScore — фиксированный проходной порог квиза: сертификат выдается
// строго при score > 12.
const passingScore = 12

// CertificateData — данные для рендеринга сертификата внешним рендерером.
type CertificateData struct {
	Name       string `json:"name"`
	CourseName string `json:"course_name"`
	Duration   string `json:"duration"`
	Marks      int    `json:"marks"`
	Author     string `json:"author"`
	Date       string `json:"date"`
}

// CertificateRenderer — внешний рендерер документов.
// Ядро не генерирует байты сертификата само.
type CertificateRenderer interface {
	Render(ctx context.Context, templateRef string, data *CertificateData) ([]byte, error)
}

// CertificateService решает, положен ли пользователю сертификат,
// и собирает данные для рендеринга.
type CertificateService struct {
	entitlementRepo repository.EntitlementRepository
	courseRepo      repository.CourseRepository
}

// NewCertificateService создает новый сервис сертификатов и возвращает ошибку при проблемах
func NewCertificateService(
	entitlementRepo repository.EntitlementRepository,
	courseRepo repository.CourseRepository,
) (*CertificateService, error) {
	if entitlementRepo == nil {
		return nil, fmt.Errorf("EntitlementRepository is required for CertificateService")
	}
	if courseRepo == nil {
		return nil, fmt.Errorf("CourseRepository is required for CertificateService")
	}
	return &CertificateService{
		entitlementRepo: entitlementRepo,
		courseRepo:      courseRepo,
	}, nil
}

// BuildCertificate загружает право и курс и передает их чистой функции Evaluate
func (s *CertificateService) BuildCertificate(user *entity.User, courseID uint) (*CertificateData, error) {
	course, err := s.courseRepo.GetByID(courseID)
	if err != nil {
		return nil, err
	}

	ent, err := s.entitlementRepo.GetByUserAndCourse(user.ID, courseID)
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			ent = nil
		} else {
			return nil, err
		}
	}

	return Evaluate(user, course, ent, time.Now())
}

// Evaluate — чистая функция решения о выдаче сертификата.
// Отказы: право отсутствует (курс не куплен) либо балл не выше проходного порога.
func Evaluate(user *entity.User, course *entity.Course, ent *entity.Entitlement, now time.Time) (*CertificateData, error) {
	if ent == nil {
		return nil, fmt.Errorf("%w: please purchase this course", apperrors.ErrAccessDenied)
	}
	if ent.Score <= passingScore {
		return nil, fmt.Errorf("%w: at least %d marks required, got %d", ErrScoreTooLow, passingScore+1, ent.Score)
	}

	authorName := ""
	if course.Author != nil {
		authorName = course.Author.Name
	}

	return &CertificateData{
		Name:       user.Name,
		CourseName: course.Title,
		Duration:   formatDuration(course.TotalDuration),
		Marks:      ent.Score,
		Author:     authorName,
		Date:       formatCertificateDate(now),
	}, nil
}

// formatDuration возвращает человекочитаемую длительность курса.
// Минуты и часы усекаются целочисленным делением, минуты нормализуются
// по модулю часа: 5400 секунд -> "1hours 30 minutes".
func formatDuration(totalSeconds int64) string {
	minutes := totalSeconds / 60
	hours := minutes / 60
	if hours > 0 {
		return fmt.Sprintf("%dhours %d minutes", hours, minutes%60)
	}
	return fmt.Sprintf("%d minutes", minutes)
}

// formatCertificateDate возвращает дату в формате "DD / MM / YYYY" с ведущим нулем дня
func formatCertificateDate(now time.Time) string {
	return fmt.Sprintf("%02d / %d / %d", now.Day(), int(now.Month()), now.Year())
}
