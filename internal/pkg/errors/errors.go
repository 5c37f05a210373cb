package errors

import "errors"

// Общие ошибки приложения
var (
	// ErrNotFound используется, когда запись или ресурс не найдены.
	ErrNotFound = errors.New("record not found")

	// ErrValidation используется для ошибок валидации входных данных.
	ErrValidation = errors.New("validation failed")

	// ErrInvalidToken используется, когда токен (сессионный или одноразовый)
	// имеет неверный формат, неверную подпись или уже был использован.
	ErrInvalidToken = errors.New("token is invalid")

	// ErrExpiredToken используется, когда срок действия токена истек.
	ErrExpiredToken = errors.New("token is expired")

	// ErrForbidden используется, когда у пользователя недостаточно прав для действия
	// или аккаунт деактивирован.
	ErrForbidden = errors.New("forbidden")

	// ErrStaleCredential используется, когда сессионный токен был выпущен
	// до последней смены пароля и потому отозван.
	ErrStaleCredential = errors.New("token issued before last password change")

	// ErrAccessDenied используется, когда у пользователя нет доступа к курсу
	// (курс не куплен).
	ErrAccessDenied = errors.New("course access denied")

	// ErrConflict используется для конфликтов состояния
	// (например, повторная регистрация на тот же email).
	ErrConflict = errors.New("resource state conflict")
)
