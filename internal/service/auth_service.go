package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"regexp"
	"strings"
	"time"

	"github.com/yourusername/course-api/internal/domain/entity"
	"github.com/yourusername/course-api/internal/domain/repository"
	apperrors "github.com/yourusername/course-api/internal/pkg/errors"
	"github.com/yourusername/course-api/pkg/auth"
)

// resetTokenTTL — срок действия reset-токена.
// Токен верификации аккаунта срока действия не имеет: доступ и так
// ограничен статусом аккаунта до подтверждения.
const resetTokenTTL = time.Hour

var emailRegexp = regexp.MustCompile(`^[^@\s]+@[^@\s]+\.[^@\s]+$`)

// AuthService предоставляет методы для работы с аутентификацией и пользователями
type AuthService struct {
	userRepo     repository.UserRepository
	jwtService   *auth.JWTService
	emailService EmailService
}

// SignupInput содержит все данные для регистрации
type SignupInput struct {
	Name            string
	Email           string
	Password        string
	ConfirmPassword string
}

// NewAuthService создает новый сервис аутентификации и возвращает ошибку при проблемах
func NewAuthService(
	userRepo repository.UserRepository,
	jwtService *auth.JWTService,
	emailService EmailService,
) (*AuthService, error) {
	if userRepo == nil {
		return nil, fmt.Errorf("UserRepository is required for AuthService")
	}
	if jwtService == nil {
		return nil, fmt.Errorf("JWTService is required for AuthService")
	}
	if emailService == nil {
		return nil, fmt.Errorf("EmailService is required for AuthService")
	}
	return &AuthService{
		userRepo:     userRepo,
		jwtService:   jwtService,
		emailService: emailService,
	}, nil
}

// Signup регистрирует нового пользователя и отправляет ему токен верификации.
// Открытое значение токена уходит во внешний канал доставки и нигде не сохраняется.
func (s *AuthService) Signup(ctx context.Context, input SignupInput) (*entity.User, error) {
	input.Email = normalizeEmail(input.Email)
	input.Name = strings.TrimSpace(input.Name)

	if len(input.Name) < 3 || len(input.Name) > 40 {
		return nil, fmt.Errorf("%w: name must be between 3 and 40 characters", apperrors.ErrValidation)
	}
	if !emailRegexp.MatchString(input.Email) {
		return nil, fmt.Errorf("%w: email format is incorrect", apperrors.ErrValidation)
	}
	// Политика пароля и совпадение подтверждения проверяются до хеширования
	if err := auth.ValidatePasswordPolicy(input.Password); err != nil {
		return nil, err
	}
	if input.Password != input.ConfirmPassword {
		return nil, fmt.Errorf("%w: confirm password must match password", apperrors.ErrValidation)
	}

	// Проверяем, существует ли пользователь с таким email
	_, err := s.userRepo.GetByEmail(input.Email)
	if err == nil {
		return nil, fmt.Errorf("%w: user with this email already exists", apperrors.ErrConflict)
	}
	if !errors.Is(err, apperrors.ErrNotFound) {
		return nil, fmt.Errorf("failed to check email existence: %w", err)
	}

	user := &entity.User{
		Name:     input.Name,
		Email:    input.Email,
		Password: input.Password,
		Role:     entity.RoleStudent,
		Status:   entity.StatusNotVerified,
	}
	if err := s.userRepo.Create(user); err != nil {
		return nil, fmt.Errorf("failed to create user: %w", err)
	}

	plaintext, tokenHash, err := auth.NewSecurityToken()
	if err != nil {
		return nil, fmt.Errorf("failed to issue verification token: %w", err)
	}
	if err := s.userRepo.SetVerificationToken(user.ID, tokenHash); err != nil {
		return nil, fmt.Errorf("failed to store verification token: %w", err)
	}

	idempotencyKey := fmt.Sprintf("verify:%d:%s", user.ID, tokenHash[:16])
	if err := s.emailService.SendVerificationLink(ctx, user.Email, plaintext, idempotencyKey); err != nil {
		// Регистрацию не прерываем: пользователь сможет запросить письмо повторно
		log.Printf("[AuthService] Ошибка отправки письма верификации для пользователя ID=%d: %v", user.ID, err)
	}

	return user, nil
}

// VerifyAccount подтверждает аккаунт по одноразовому токену.
// Гашение токена атомарно: из двух конкурентных запросов с одним и тем же
// токеном выигрывает ровно один, второй получает ErrInvalidToken.
func (s *AuthService) VerifyAccount(tokenPlaintext string) (*entity.User, error) {
	tokenHash := auth.HashSecurityToken(tokenPlaintext)

	user, err := s.userRepo.GetByVerificationTokenHash(tokenHash)
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			return nil, apperrors.ErrInvalidToken
		}
		return nil, err
	}
	if !auth.CheckSecurityToken(tokenPlaintext, user.VerifyAccountToken) {
		return nil, apperrors.ErrInvalidToken
	}

	if err := s.userRepo.ConsumeVerificationToken(user.ID, tokenHash); err != nil {
		return nil, err
	}

	user.Status = entity.StatusVerified
	user.VerifyAccountToken = ""
	log.Printf("[AuthService] Аккаунт подтвержден для пользователя ID=%d", user.ID)
	return user, nil
}

// Login проверяет учетные данные и выпускает сессионный токен
func (s *AuthService) Login(email, password string) (string, *entity.User, error) {
	email = normalizeEmail(email)

	user, err := s.userRepo.GetByEmail(email)
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			return "", nil, ErrInvalidCredentials
		}
		return "", nil, err
	}
	if !user.CheckPassword(password) {
		return "", nil, ErrInvalidCredentials
	}

	token, err := s.jwtService.GenerateToken(user)
	if err != nil {
		return "", nil, fmt.Errorf("failed to generate session token: %w", err)
	}
	return token, user, nil
}

// Authenticate валидирует сессионный токен и возвращает пользователя.
// Порядок проверок фиксирован: формат/подпись -> срок действия -> существование
// и статус пользователя -> эпоха пароля.
func (s *AuthService) Authenticate(tokenString string) (*entity.User, *auth.SessionClaims, error) {
	claims, err := s.jwtService.ParseToken(tokenString)
	if err != nil {
		return nil, nil, err
	}

	// Деактивированные аккаунты отсекаются скоупом чтения репозитория
	user, err := s.userRepo.GetByID(claims.UserID)
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			return nil, nil, apperrors.ErrForbidden
		}
		return nil, nil, err
	}

	// Любая смена пароля немедленно отзывает все ранее выпущенные сессии
	if user.PasswordChangedAfter(claims.IssuedAt.Time) {
		return nil, nil, apperrors.ErrStaleCredential
	}

	return user, claims, nil
}

// ForgotPassword выпускает reset-токен и отправляет его пользователю
func (s *AuthService) ForgotPassword(ctx context.Context, email string) error {
	email = normalizeEmail(email)

	user, err := s.userRepo.GetByEmail(email)
	if err != nil {
		return err
	}

	plaintext, tokenHash, err := auth.NewSecurityToken()
	if err != nil {
		return fmt.Errorf("failed to issue reset token: %w", err)
	}
	expires := time.Now().Add(resetTokenTTL)
	if err := s.userRepo.SetResetToken(user.ID, tokenHash, expires); err != nil {
		return fmt.Errorf("failed to store reset token: %w", err)
	}

	idempotencyKey := fmt.Sprintf("reset:%d:%s", user.ID, tokenHash[:16])
	if err := s.emailService.SendPasswordResetLink(ctx, user.Email, plaintext, idempotencyKey); err != nil {
		return fmt.Errorf("failed to send reset email: %w", err)
	}
	return nil
}

// ResetPassword устанавливает новый пароль по одноразовому reset-токену.
// Успешный сброс сдвигает эпоху пароля и тем самым отзывает все сессии.
func (s *AuthService) ResetPassword(tokenPlaintext, newPassword, confirmPassword string) error {
	if err := auth.ValidatePasswordPolicy(newPassword); err != nil {
		return err
	}
	if newPassword != confirmPassword {
		return fmt.Errorf("%w: confirm password must match password", apperrors.ErrValidation)
	}

	tokenHash := auth.HashSecurityToken(tokenPlaintext)
	user, err := s.userRepo.GetByResetTokenHash(tokenHash)
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			return apperrors.ErrInvalidToken
		}
		return err
	}
	if !auth.CheckSecurityToken(tokenPlaintext, user.ResetPasswordToken) {
		return apperrors.ErrInvalidToken
	}
	if user.ResetTokenExpires == nil || time.Now().After(*user.ResetTokenExpires) {
		return apperrors.ErrExpiredToken
	}

	// Атомарное гашение: проигравший конкурентную гонку получает ErrInvalidToken
	if err := s.userRepo.ConsumeResetToken(user.ID, tokenHash); err != nil {
		return err
	}

	if err := s.userRepo.UpdatePassword(user.ID, newPassword); err != nil {
		return fmt.Errorf("failed to update password: %w", err)
	}
	log.Printf("[AuthService] Пароль сброшен по токену для пользователя ID=%d", user.ID)
	return nil
}

// UpdatePassword меняет пароль аутентифицированного пользователя
func (s *AuthService) UpdatePassword(userID uint, currentPassword, newPassword, confirmPassword string) error {
	user, err := s.userRepo.GetByID(userID)
	if err != nil {
		return err
	}
	if !user.CheckPassword(currentPassword) {
		return ErrInvalidCredentials
	}
	if err := auth.ValidatePasswordPolicy(newPassword); err != nil {
		return err
	}
	if newPassword != confirmPassword {
		return fmt.Errorf("%w: confirm password must match password", apperrors.ErrValidation)
	}

	if err := s.userRepo.UpdatePassword(userID, newPassword); err != nil {
		return fmt.Errorf("failed to update password: %w", err)
	}
	log.Printf("[AuthService] Пароль изменен для пользователя ID=%d, прежние сессии отозваны", userID)
	return nil
}

// Deactivate деактивирует аккаунт пользователя.
// Деактивированный аккаунт исчезает из всех выборок чтения.
func (s *AuthService) Deactivate(userID uint) error {
	return s.userRepo.UpdateStatus(userID, entity.StatusDeactivated)
}

// Reactivate возвращает деактивированный аккаунт в строй (административная операция)
func (s *AuthService) Reactivate(userID uint) error {
	user, err := s.userRepo.GetByIDAnyStatus(userID)
	if err != nil {
		return err
	}
	if !user.IsDeactivated() {
		return fmt.Errorf("%w: user is not deactivated", apperrors.ErrConflict)
	}
	return s.userRepo.UpdateStatus(userID, entity.StatusVerified)
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
