package postgres

import (
	"errors"
	"log"
	"time"

	"gorm.io/gorm"

	"github.com/yourusername/course-api/internal/domain/entity"
	apperrors "github.com/yourusername/course-api/internal/pkg/errors"
	"github.com/yourusername/course-api/pkg/auth"
)

// UserRepo реализует repository.UserRepository
type UserRepo struct {
	db *gorm.DB
}

// NewUserRepo создает новый репозиторий пользователей
func NewUserRepo(db *gorm.DB) *UserRepo {
	return &UserRepo{db: db}
}

// activeOnly — постоянный инвариант чтения: все выборки пользователей
// исключают деактивированные аккаунты. Применяется каждым методом чтения явно,
// вместо неявного хука на уровне ORM.
func activeOnly(db *gorm.DB) *gorm.DB {
	return db.Where("status <> ?", entity.StatusDeactivated)
}

// Create создает нового пользователя
func (r *UserRepo) Create(user *entity.User) error {
	return r.db.Create(user).Error
}

// GetByID возвращает активного пользователя по ID
func (r *UserRepo) GetByID(id uint) (*entity.User, error) {
	var user entity.User
	err := r.db.Scopes(activeOnly).First(&user, id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.ErrNotFound
		}
		return nil, err
	}
	return &user, nil
}

// GetByEmail возвращает активного пользователя по email
func (r *UserRepo) GetByEmail(email string) (*entity.User, error) {
	var user entity.User
	err := r.db.Scopes(activeOnly).Where("email = ?", email).First(&user).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.ErrNotFound
		}
		return nil, err
	}
	return &user, nil
}

// GetByIDAnyStatus возвращает пользователя независимо от статуса аккаунта
func (r *UserRepo) GetByIDAnyStatus(id uint) (*entity.User, error) {
	var user entity.User
	err := r.db.First(&user, id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.ErrNotFound
		}
		return nil, err
	}
	return &user, nil
}

// UpdatePassword безопасно обновляет пароль пользователя.
// Хеширует пароль и сдвигает эпоху пароля одним запросом: сессии,
// выпущенные до этого момента, перестают проходить проверку.
func (r *UserRepo) UpdatePassword(userID uint, newPassword string) error {
	hashedPassword, err := auth.HashPassword(newPassword)
	if err != nil {
		log.Printf("[UserRepo.UpdatePassword] Ошибка при хешировании пароля: %v", err)
		return err
	}

	// SQL напрямую, чтобы обойти хук BeforeSave и исключить двойное хеширование
	result := r.db.Exec(
		"UPDATE users SET password = ?, password_changed_at = ?, updated_at = ? WHERE id = ?",
		hashedPassword,
		time.Now(),
		time.Now(),
		userID,
	)
	if result.Error != nil {
		log.Printf("[UserRepo.UpdatePassword] Ошибка при обновлении пароля для пользователя ID=%d: %v", userID, result.Error)
		return result.Error
	}
	if result.RowsAffected == 0 {
		return apperrors.ErrNotFound
	}

	log.Printf("[UserRepo.UpdatePassword] Пароль обновлён для пользователя ID=%d, эпоха пароля сдвинута", userID)
	return nil
}

// UpdateStatus устанавливает статус аккаунта
func (r *UserRepo) UpdateStatus(userID uint, status string) error {
	result := r.db.Model(&entity.User{}).Where("id = ?", userID).Update("status", status)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return apperrors.ErrNotFound
	}
	return nil
}

// SetVerificationToken сохраняет хеш токена верификации аккаунта.
// Срок действия не хранится: верификация ограничена только статусом аккаунта.
func (r *UserRepo) SetVerificationToken(userID uint, tokenHash string) error {
	return r.db.Model(&entity.User{}).Where("id = ?", userID).
		Update("verify_account_token", tokenHash).Error
}

// GetByVerificationTokenHash возвращает активного пользователя по хешу токена верификации
func (r *UserRepo) GetByVerificationTokenHash(tokenHash string) (*entity.User, error) {
	if tokenHash == "" {
		return nil, apperrors.ErrNotFound
	}
	var user entity.User
	err := r.db.Scopes(activeOnly).Where("verify_account_token = ?", tokenHash).First(&user).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.ErrNotFound
		}
		return nil, err
	}
	return &user, nil
}

// ConsumeVerificationToken атомарно гасит токен верификации и помечает аккаунт
// верифицированным. Условие WHERE по хешу гарантирует, что из двух конкурентных
// запросов выигрывает ровно один: проигравший видит RowsAffected == 0.
func (r *UserRepo) ConsumeVerificationToken(userID uint, tokenHash string) error {
	result := r.db.Model(&entity.User{}).
		Where("id = ? AND verify_account_token = ?", userID, tokenHash).
		Updates(map[string]interface{}{
			"verify_account_token": "",
			"status":               entity.StatusVerified,
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return apperrors.ErrInvalidToken
	}
	return nil
}

// SetResetToken сохраняет хеш reset-токена и срок его действия
func (r *UserRepo) SetResetToken(userID uint, tokenHash string, expires time.Time) error {
	return r.db.Model(&entity.User{}).Where("id = ?", userID).
		Updates(map[string]interface{}{
			"reset_password_token": tokenHash,
			"reset_token_expires":  expires,
		}).Error
}

// GetByResetTokenHash возвращает активного пользователя по хешу reset-токена
func (r *UserRepo) GetByResetTokenHash(tokenHash string) (*entity.User, error) {
	if tokenHash == "" {
		return nil, apperrors.ErrNotFound
	}
	var user entity.User
	err := r.db.Scopes(activeOnly).Where("reset_password_token = ?", tokenHash).First(&user).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.ErrNotFound
		}
		return nil, err
	}
	return &user, nil
}

// ConsumeResetToken атомарно гасит reset-токен. Та же схема гонки,
// что и у ConsumeVerificationToken.
func (r *UserRepo) ConsumeResetToken(userID uint, tokenHash string) error {
	result := r.db.Model(&entity.User{}).
		Where("id = ? AND reset_password_token = ?", userID, tokenHash).
		Updates(map[string]interface{}{
			"reset_password_token": "",
			"reset_token_expires":  nil,
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return apperrors.ErrInvalidToken
	}
	return nil
}
