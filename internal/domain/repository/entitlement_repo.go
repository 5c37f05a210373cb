package repository

import (
	"github.com/yourusername/course-api/internal/domain/entity"
)

// EntitlementRepository определяет методы работы с правами на курсы.
// Grant — единственная точка вставки Entitlement во всем приложении.
type EntitlementRepository interface {
	// GetByUserAndCourse возвращает право пользователя на курс
	// или apperrors.ErrNotFound, если курс не куплен.
	GetByUserAndCourse(userID, courseID uint) (*entity.Entitlement, error)

	// Grant идемпотентно выдает право на курс: вставляет новую запись с нулевым
	// прогрессом либо возвращает существующую без изменений.
	// created=false означает, что право уже было выдано ранее.
	Grant(userID, courseID uint, paymentRef string) (ent *entity.Entitlement, created bool, err error)

	// AddWatchTime атомарно прибавляет seconds к накопленному времени просмотра
	// и обновляет маркер текущей лекции. Не затрагивает другие поля записи.
	AddWatchTime(userID, courseID, lectureID uint, seconds int64) error

	// UpdateScore устанавливает балл за квиз (last-write-wins), не затрагивая
	// поля прогресса просмотра.
	UpdateScore(userID, courseID uint, score int) error

	ListByUser(userID uint) ([]entity.Entitlement, error)
	// ListByCourse возвращает все права на курс для отчетности инструктора.
	ListByCourse(courseID uint) ([]entity.Entitlement, error)
}
