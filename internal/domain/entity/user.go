package entity

import (
	"log"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

// Роли пользователей
const (
	RoleStudent    = "student"
	RoleInstructor = "instructor"
	RoleAdmin      = "admin"
)

// Статусы аккаунта
const (
	StatusNotVerified = "not-verified"
	StatusVerified    = "verified"
	StatusDeactivated = "deactivated"
)

// passwordHashCost согласован с pkg/auth: одна и та же стоимость bcrypt
// для хука сущности и прямого обновления пароля в репозитории.
const passwordHashCost = 12

// User представляет пользователя в системе
type User struct {
	ID       uint   `gorm:"primaryKey" json:"id"`
	Name     string `gorm:"size:40;not null" json:"name"`
	Email    string `gorm:"size:100;not null;uniqueIndex" json:"email"`
	Password string `gorm:"size:100;not null" json:"-"`
	Role     string `gorm:"size:20;not null;default:'student'" json:"role"`     // student, instructor, admin
	Status   string `gorm:"size:20;not null;default:'not-verified'" json:"status"` // not-verified, verified, deactivated

	// PasswordChangedAt — эпоха пароля: все сессионные токены,
	// выпущенные раньше этого момента, считаются отозванными.
	PasswordChangedAt *time.Time `gorm:"type:timestamp" json:"-"`

	// Хеши одноразовых токенов. Открытые значения никогда не сохраняются.
	VerifyAccountToken string     `gorm:"size:64;default:''" json:"-"`
	ResetPasswordToken string     `gorm:"size:64;default:''" json:"-"`
	ResetTokenExpires  *time.Time `gorm:"type:timestamp" json:"-"`

	Entitlements []Entitlement `gorm:"foreignKey:UserID" json:"entitlements,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// TableName определяет имя таблицы для GORM
func (User) TableName() string {
	return "users"
}

// BeforeSave хеширует пароль перед сохранением, только если он не является bcrypt-хешем
func (u *User) BeforeSave(tx *gorm.DB) error {
	if len(u.Password) > 0 && !strings.HasPrefix(u.Password, "$2a$") &&
		!strings.HasPrefix(u.Password, "$2b$") && !strings.HasPrefix(u.Password, "$2y$") {
		hashedPassword, err := bcrypt.GenerateFromPassword([]byte(u.Password), passwordHashCost)
		if err != nil {
			log.Printf("[User.BeforeSave] Ошибка при хешировании пароля для email=%s: %v", u.Email, err)
			return err
		}
		u.Password = string(hashedPassword)
	}
	return nil
}

// CheckPassword проверяет, соответствует ли переданный пароль хешу
func (u *User) CheckPassword(password string) bool {
	return bcrypt.CompareHashAndPassword([]byte(u.Password), []byte(password)) == nil
}

// PasswordChangedAfter возвращает true, если пароль менялся после issuedAt.
// Используется для отзыва сессий, выпущенных до смены пароля.
func (u *User) PasswordChangedAfter(issuedAt time.Time) bool {
	if u.PasswordChangedAt == nil {
		return false
	}
	// Сравниваем с точностью до секунды: в JWT время выпуска хранится в секундах
	return issuedAt.Unix() < u.PasswordChangedAt.Unix()
}

// IsDeactivated возвращает true для деактивированного аккаунта
func (u *User) IsDeactivated() bool {
	return u.Status == StatusDeactivated
}

// RoleAllowed проверяет, входит ли роль пользователя в разрешенный набор.
// Чистый предикат авторизации: наборы ролей объявляются на маршрутах.
func (u *User) RoleAllowed(allowed ...string) bool {
	for _, role := range allowed {
		if u.Role == role {
			return true
		}
	}
	return false
}
