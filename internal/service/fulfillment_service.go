package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"github.com/yourusername/course-api/internal/domain/repository"
	apperrors "github.com/yourusername/course-api/internal/pkg/errors"
)

// fulfillmentDedupeTTL — время жизни ключа дедупликации по референсу платежа.
const fulfillmentDedupeTTL = 24 * time.Hour

// PaymentNotification — уведомление платежного провайдера о завершенной оплате.
// Провайдер доставляет его at-least-once: дубликаты ожидаемы.
type PaymentNotification struct {
	UserID           uint   `json:"user_id"`
	CourseID         uint   `json:"course_id"`
	PaymentReference string `json:"payment_reference"`
}

// FulfillmentService превращает завершенную оплату в право на курс.
// Единственный создатель записей Entitlement во всем приложении.
type FulfillmentService struct {
	userRepo        repository.UserRepository
	courseRepo      repository.CourseRepository
	entitlementRepo repository.EntitlementRepository
	cacheRepo       repository.CacheRepository
}

// NewFulfillmentService создает новый сервис фулфилмента и возвращает ошибку при проблемах
func NewFulfillmentService(
	userRepo repository.UserRepository,
	courseRepo repository.CourseRepository,
	entitlementRepo repository.EntitlementRepository,
	cacheRepo repository.CacheRepository,
) (*FulfillmentService, error) {
	if userRepo == nil {
		return nil, fmt.Errorf("UserRepository is required for FulfillmentService")
	}
	if courseRepo == nil {
		return nil, fmt.Errorf("CourseRepository is required for FulfillmentService")
	}
	if entitlementRepo == nil {
		return nil, fmt.Errorf("EntitlementRepository is required for FulfillmentService")
	}
	// cacheRepo может быть nil: дедупликация по референсу — только быстрый путь,
	// авторитетная защита — unique constraint на (user_id, course_id)
	return &FulfillmentService{
		userRepo:        userRepo,
		courseRepo:      courseRepo,
		entitlementRepo: entitlementRepo,
		cacheRepo:       cacheRepo,
	}, nil
}

// Process идемпотентно обрабатывает уведомление об оплате.
// Контракт: повторная доставка того же уведомления не создает второго права
// и не возвращает ошибку. Уведомления с неизвестными идентификаторами
// логируются как аномалии и подтверждаются (fail-open): ошибку получает
// вызывающий только при отказе инфраструктуры.
func (s *FulfillmentService) Process(ctx context.Context, n PaymentNotification) error {
	eventID := uuid.NewString()

	if n.PaymentReference == "" {
		log.Printf("[Fulfillment] АНОМАЛИЯ event=%s: уведомление без референса платежа (user=%d course=%d), подтверждено без обработки",
			eventID, n.UserID, n.CourseID)
		return nil
	}

	// Быстрый путь дедупликации по референсу платежа.
	// Ключ ставится до выдачи права, поэтому каждый выход с ошибкой обязан
	// освободить его: провайдер получит 500 и повторит доставку, и ретрай
	// не должен схлопнуться об остаток ключа от неудавшейся попытки.
	dedupeKey := "fulfillment:ref:" + n.PaymentReference
	dedupeClaimed := false
	if s.cacheRepo != nil {
		set, err := s.cacheRepo.SetNX(dedupeKey, eventID, fulfillmentDedupeTTL)
		if err != nil {
			// Недоступность кеша не блокирует фулфилмент: grant сам идемпотентен
			log.Printf("[Fulfillment] event=%s: ошибка дедупликации в кеше для ref=%s: %v", eventID, n.PaymentReference, err)
		} else if !set {
			log.Printf("[Fulfillment] event=%s: повторная доставка ref=%s (user=%d course=%d), no-op",
				eventID, n.PaymentReference, n.UserID, n.CourseID)
			return nil
		} else {
			dedupeClaimed = true
		}
	}

	user, err := s.userRepo.GetByID(n.UserID)
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			log.Printf("[Fulfillment] АНОМАЛИЯ event=%s ref=%s: пользователь ID=%d не найден, уведомление подтверждено без выдачи права",
				eventID, n.PaymentReference, n.UserID)
			return nil
		}
		s.releaseDedupeKey(eventID, dedupeKey, dedupeClaimed)
		return fmt.Errorf("fulfillment: failed to resolve user %d: %w", n.UserID, err)
	}

	course, err := s.courseRepo.GetByID(n.CourseID)
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			log.Printf("[Fulfillment] АНОМАЛИЯ event=%s ref=%s: курс ID=%d не найден, уведомление подтверждено без выдачи права",
				eventID, n.PaymentReference, n.CourseID)
			return nil
		}
		s.releaseDedupeKey(eventID, dedupeKey, dedupeClaimed)
		return fmt.Errorf("fulfillment: failed to resolve course %d: %w", n.CourseID, err)
	}

	ent, created, err := s.entitlementRepo.Grant(user.ID, course.ID, n.PaymentReference)
	if err != nil {
		s.releaseDedupeKey(eventID, dedupeKey, dedupeClaimed)
		return fmt.Errorf("fulfillment: failed to grant entitlement: %w", err)
	}

	if created {
		log.Printf("[Fulfillment] event=%s ref=%s: право выдано user=%d course=%d entitlement=%d",
			eventID, n.PaymentReference, user.ID, course.ID, ent.ID)
	} else {
		log.Printf("[Fulfillment] event=%s ref=%s: право уже существовало user=%d course=%d, no-op",
			eventID, n.PaymentReference, user.ID, course.ID)
	}
	return nil
}

// releaseDedupeKey снимает ключ дедупликации, поставленный текущей попыткой,
// когда обработка завершается ошибкой. Без этого ретрай провайдера попал бы
// в ветку "повторная доставка" и подтвердился бы без выдачи права.
func (s *FulfillmentService) releaseDedupeKey(eventID, key string, claimed bool) {
	if !claimed || s.cacheRepo == nil {
		return
	}
	if err := s.cacheRepo.Delete(key); err != nil {
		// Ключ истечет по TTL сам; грант идемпотентен, так что это только лог
		log.Printf("[Fulfillment] event=%s: не удалось снять ключ дедупликации %s: %v", eventID, key, err)
	}
}
