package entity

import (
	"time"
)

// Entitlement представляет право пользователя на курс и его учебный прогресс.
// Запись уникальна по паре (user_id, course_id): unique constraint в БД
// превращает повторную выдачу права в no-op и сериализует конкурентные grant'ы.
type Entitlement struct {
	ID       uint `gorm:"primaryKey" json:"id"`
	UserID   uint `gorm:"not null;uniqueIndex:idx_entitlements_user_course" json:"user_id"`
	CourseID uint `gorm:"not null;uniqueIndex:idx_entitlements_user_course" json:"course_id"`

	// WatchedTime — накопленное время просмотра в секундах, монотонно неубывающее.
	WatchedTime int64 `gorm:"not null;default:0" json:"watched_time"`

	// CurrentLectureID — маркер последней позиции в курсе.
	CurrentLectureID *uint `json:"current_lecture_id,omitempty"`

	// Score — балл за квиз, last-write-wins. Используется для выдачи сертификата.
	Score int `gorm:"not null;default:0" json:"score"`

	// PaymentRef — референс платежа, создавшего право. Только для аудита.
	PaymentRef string `gorm:"size:100;not null;default:''" json:"-"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// TableName задает имя таблицы для GORM
func (Entitlement) TableName() string {
	return "entitlements"
}
