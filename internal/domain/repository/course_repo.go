package repository

import (
	"github.com/yourusername/course-api/internal/domain/entity"
)

// CourseRepository определяет методы чтения курсов.
// Ядро не создает и не изменяет курсы.
type CourseRepository interface {
	// GetByID возвращает курс вместе с автором.
	GetByID(id uint) (*entity.Course, error)
}
