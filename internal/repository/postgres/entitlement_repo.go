package postgres

import (
	"errors"
	"fmt"
	"log"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/yourusername/course-api/internal/domain/entity"
	apperrors "github.com/yourusername/course-api/internal/pkg/errors"
)

// EntitlementRepo реализует repository.EntitlementRepository
type EntitlementRepo struct {
	db *gorm.DB
}

// NewEntitlementRepo создает новый репозиторий прав на курсы
func NewEntitlementRepo(db *gorm.DB) *EntitlementRepo {
	return &EntitlementRepo{db: db}
}

// GetByUserAndCourse возвращает право пользователя на курс
func (r *EntitlementRepo) GetByUserAndCourse(userID, courseID uint) (*entity.Entitlement, error) {
	var ent entity.Entitlement
	err := r.db.Where("user_id = ? AND course_id = ?", userID, courseID).First(&ent).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.ErrNotFound
		}
		return nil, err
	}
	return &ent, nil
}

// Grant идемпотентно выдает право на курс.
// INSERT .. ON CONFLICT DO NOTHING поверх unique constraint (user_id, course_id)
// сериализует конкурентные выдачи: вставка происходит максимум один раз,
// повторные вызовы возвращают существующую запись с нетронутым прогрессом.
func (r *EntitlementRepo) Grant(userID, courseID uint, paymentRef string) (*entity.Entitlement, bool, error) {
	ent := &entity.Entitlement{
		UserID:     userID,
		CourseID:   courseID,
		PaymentRef: paymentRef,
	}

	result := r.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "user_id"}, {Name: "course_id"}},
		DoNothing: true,
	}).Create(ent)

	if result.Error != nil {
		// Подстраховка: unique violation возможна, если constraint сработал
		// раньше, чем ON CONFLICT (например, при конкурентной вставке в транзакции)
		if isUniqueViolation(result.Error) {
			log.Printf("[EntitlementRepo] Повторная выдача права user=%d course=%d схлопнута по unique constraint", userID, courseID)
		} else {
			return nil, false, fmt.Errorf("grant entitlement user=%d course=%d failed: %w", userID, courseID, result.Error)
		}
	}

	created := result.Error == nil && result.RowsAffected > 0

	// При DoNothing поле ID не заполняется — перечитываем актуальную запись
	existing, err := r.GetByUserAndCourse(userID, courseID)
	if err != nil {
		return nil, false, fmt.Errorf("reload entitlement user=%d course=%d failed: %w", userID, courseID, err)
	}
	return existing, created, nil
}

// AddWatchTime атомарно прибавляет seconds к времени просмотра и обновляет
// маркер текущей лекции. Инкремент выражением на стороне БД не затирает
// конкурентные обновления других полей той же записи.
func (r *EntitlementRepo) AddWatchTime(userID, courseID, lectureID uint, seconds int64) error {
	result := r.db.Model(&entity.Entitlement{}).
		Where("user_id = ? AND course_id = ?", userID, courseID).
		UpdateColumns(map[string]interface{}{
			"watched_time":       gorm.Expr("watched_time + ?", seconds),
			"current_lecture_id": lectureID,
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return apperrors.ErrNotFound
	}
	return nil
}

// UpdateScore устанавливает балл за квиз, не затрагивая поля просмотра
func (r *EntitlementRepo) UpdateScore(userID, courseID uint, score int) error {
	result := r.db.Model(&entity.Entitlement{}).
		Where("user_id = ? AND course_id = ?", userID, courseID).
		UpdateColumn("score", score)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return apperrors.ErrNotFound
	}
	return nil
}

// ListByUser возвращает все права пользователя
func (r *EntitlementRepo) ListByUser(userID uint) ([]entity.Entitlement, error) {
	var ents []entity.Entitlement
	err := r.db.Where("user_id = ?", userID).Order("id").Find(&ents).Error
	return ents, err
}

// ListByCourse возвращает все права на курс
func (r *EntitlementRepo) ListByCourse(courseID uint) ([]entity.Entitlement, error) {
	var ents []entity.Entitlement
	err := r.db.Where("course_id = ?", courseID).Order("id").Find(&ents).Error
	return ents, err
}

// isUniqueViolation проверяет Postgres unique violation (23505) для pgconn и lib/pq драйверов
func isUniqueViolation(err error) bool {
	// pgx/v5 driver (pgconn.PgError)
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return true
	}
	// lib/pq driver
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == "23505" {
		return true
	}
	return false
}
