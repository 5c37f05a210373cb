package postgres

import (
	"errors"

	"gorm.io/gorm"

	"github.com/yourusername/course-api/internal/domain/entity"
	apperrors "github.com/yourusername/course-api/internal/pkg/errors"
)

// CourseRepo реализует repository.CourseRepository
type CourseRepo struct {
	db *gorm.DB
}

// NewCourseRepo создает новый репозиторий курсов
func NewCourseRepo(db *gorm.DB) *CourseRepo {
	return &CourseRepo{db: db}
}

// GetByID возвращает курс вместе с автором
func (r *CourseRepo) GetByID(id uint) (*entity.Course, error) {
	var course entity.Course
	err := r.db.Preload("Author").First(&course, id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.ErrNotFound
		}
		return nil, err
	}
	return &course, nil
}
