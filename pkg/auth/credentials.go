package auth

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"fmt"
	"unicode"

	"golang.org/x/crypto/bcrypt"

	apperrors "github.com/yourusername/course-api/internal/pkg/errors"
)

// bcryptCost — фиксированный work factor для хеширования паролей.
const bcryptCost = 12

// securityTokenBytes — длина одноразового токена в байтах.
const securityTokenBytes = 32

// HashPassword хеширует пароль через bcrypt с фиксированным cost factor.
func HashPassword(plaintext string) (string, error) {
	hashed, err := bcrypt.GenerateFromPassword([]byte(plaintext), bcryptCost)
	if err != nil {
		return "", fmt.Errorf("failed to hash password: %w", err)
	}
	return string(hashed), nil
}

// CheckPasswordHash проверяет, соответствует ли пароль bcrypt-хешу.
func CheckPasswordHash(plaintext, hash string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(plaintext)) == nil
}

// ValidatePasswordPolicy проверяет пароль на соответствие политике:
// минимум 8 символов, хотя бы одна цифра, одна строчная и одна заглавная буква.
func ValidatePasswordPolicy(password string) error {
	if len(password) < 8 {
		return fmt.Errorf("%w: password must be at least 8 characters", apperrors.ErrValidation)
	}

	var hasDigit, hasLower, hasUpper bool
	for _, r := range password {
		switch {
		case unicode.IsDigit(r):
			hasDigit = true
		case unicode.IsLower(r):
			hasLower = true
		case unicode.IsUpper(r):
			hasUpper = true
		}
	}

	if !hasDigit || !hasLower || !hasUpper {
		return fmt.Errorf("%w: password must contain a digit, a lowercase and an uppercase letter", apperrors.ErrValidation)
	}
	return nil
}

// NewSecurityToken генерирует одноразовый токен.
// Открытое значение возвращается вызывающему для доставки внешним каналом,
// в БД сохраняется только SHA-256 хеш. Открытое значение никогда не персистится и не логируется.
func NewSecurityToken() (plaintext string, hash string, err error) {
	b := make([]byte, securityTokenBytes)
	if _, err := rand.Read(b); err != nil {
		return "", "", fmt.Errorf("failed to generate security token: %w", err)
	}
	plaintext = hex.EncodeToString(b)
	return plaintext, HashSecurityToken(plaintext), nil
}

// HashSecurityToken возвращает hex-представление SHA-256 хеша токена.
func HashSecurityToken(plaintext string) string {
	sum := sha256.Sum256([]byte(plaintext))
	return hex.EncodeToString(sum[:])
}

// CheckSecurityToken сравнивает хеш кандидата со значением из БД за константное время.
// Проверка срока действия и атомарное гашение токена выполняются на уровне хранилища.
func CheckSecurityToken(candidatePlaintext, storedHash string) bool {
	if storedHash == "" {
		return false
	}
	candidateHash := HashSecurityToken(candidatePlaintext)
	return subtle.ConstantTimeCompare([]byte(candidateHash), []byte(storedHash)) == 1
}
