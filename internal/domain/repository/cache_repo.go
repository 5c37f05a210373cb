package repository

import (
	"time"
)

// CacheRepository определяет методы для работы с кешем
type CacheRepository interface {
	// SetNX устанавливает значение ключа, только если ключ не существует.
	// Возвращает true, если ключ был установлен, false - если ключ уже существовал.
	SetNX(key string, value interface{}, expiration time.Duration) (bool, error)
	Delete(key string) error
}
