package service

import "errors"

// Ошибки auth-флоу, используемые хендлерами для стабильного error_type маппинга.
var (
	ErrInvalidCredentials = errors.New("invalid_credentials")
	ErrScoreTooLow        = errors.New("score_too_low")
)
