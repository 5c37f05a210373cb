package repository

import (
	"time"

	"github.com/yourusername/course-api/internal/domain/entity"
)

// UserRepository определяет методы для работы с пользователями.
// Постоянный инвариант: все методы чтения, кроме GetByIDAnyStatus,
// исключают деактивированные аккаунты.
type UserRepository interface {
	Create(user *entity.User) error
	GetByID(id uint) (*entity.User, error)
	GetByEmail(email string) (*entity.User, error)
	// GetByIDAnyStatus возвращает пользователя независимо от статуса аккаунта.
	// Нужен только административной реактивации.
	GetByIDAnyStatus(id uint) (*entity.User, error)

	// UpdatePassword хеширует и сохраняет новый пароль, сдвигая эпоху пароля
	// (password_changed_at), что отзывает все ранее выпущенные сессии.
	UpdatePassword(userID uint, newPassword string) error
	UpdateStatus(userID uint, status string) error

	// Одноразовые токены. Сохраняются только хеши.
	SetVerificationToken(userID uint, tokenHash string) error
	GetByVerificationTokenHash(tokenHash string) (*entity.User, error)
	// ConsumeVerificationToken атомарно гасит токен и помечает аккаунт верифицированным.
	// Возвращает apperrors.ErrInvalidToken, если токен уже погашен конкурентным запросом.
	ConsumeVerificationToken(userID uint, tokenHash string) error

	SetResetToken(userID uint, tokenHash string, expires time.Time) error
	GetByResetTokenHash(tokenHash string) (*entity.User, error)
	// ConsumeResetToken атомарно гасит reset-токен. Семантика гонки как у
	// ConsumeVerificationToken: проигравший запрос получает ErrInvalidToken.
	ConsumeResetToken(userID uint, tokenHash string) error
}
