package entity

import (
	"time"
)

// Course представляет курс. Ядро читает курсы, но не управляет ими:
// создание и редактирование курсов — внешняя по отношению к ядру операция.
type Course struct {
	ID    uint   `gorm:"primaryKey" json:"id"`
	Title string `gorm:"size:200;not null" json:"title"`

	// TotalDuration — суммарная длительность лекций курса в секундах.
	TotalDuration int64 `gorm:"not null;default:0" json:"total_duration"`

	// TotalMarks — максимальный балл квиза курса. Верхняя граница для Score.
	TotalMarks int `gorm:"not null;default:20" json:"total_marks"`

	AuthorID uint  `gorm:"not null;index" json:"author_id"`
	Author   *User `gorm:"foreignKey:AuthorID" json:"author,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// TableName определяет имя таблицы для GORM
func (Course) TableName() string {
	return "courses"
}
