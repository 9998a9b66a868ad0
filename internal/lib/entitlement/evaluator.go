package entitlement

import (
	"time"

	"github.com/magabrotheeeer/storefront-entitlements/internal/models"
)

// Evaluator привязывает функции пакета к источнику времени.
// Нулевое значение использует time.Now.
type Evaluator struct {
	Now func() time.Time
}

// NewEvaluator создаёт Evaluator с заданными часами. nil означает time.Now.
func NewEvaluator(now func() time.Time) *Evaluator {
	return &Evaluator{Now: now}
}

func (e *Evaluator) now() time.Time {
	if e == nil || e.Now == nil {
		return time.Now()
	}
	return e.Now()
}

// IsPremium сообщает, есть ли у пользователя премиум-доступ сейчас.
func (e *Evaluator) IsPremium(u *models.User) bool { return IsPremium(u, e.now()) }

// IsOnTrial сообщает, идёт ли у пользователя пробный период.
func (e *Evaluator) IsOnTrial(u *models.User) bool { return IsOnTrial(u, e.now()) }

// HasTrialExpired сообщает, что пробный период уже закончился.
func (e *Evaluator) HasTrialExpired(u *models.User) bool { return HasTrialExpired(u, e.now()) }

// TrialDaysRemaining возвращает число оставшихся дней пробного периода, округлённое вверх.
func (e *Evaluator) TrialDaysRemaining(u *models.User) int {
	return TrialDaysRemaining(u, e.now())
}

// CanAccessFeature сообщает, доступна ли пользователю функция f.
func (e *Evaluator) CanAccessFeature(u *models.User, f models.Feature) bool {
	return CanAccessFeature(u, f, e.now())
}

// IsOriginalTrialWindowValid сообщает, не прошли ли семь дней с регистрации.
func (e *Evaluator) IsOriginalTrialWindowValid(u *models.User) bool {
	return IsOriginalTrialWindowValid(u, e.now())
}

// NeedsEnforcement сообщает, что с пользователя пора снять премиум.
func (e *Evaluator) NeedsEnforcement(u *models.User) bool { return NeedsEnforcement(u, e.now()) }

// Evaluate вычисляет права пользователя на текущий момент.
func (e *Evaluator) Evaluate(u *models.User) models.Entitlements { return Evaluate(u, e.now()) }

// Time возвращает текущее время по часам Evaluator.
func (e *Evaluator) Time() time.Time { return e.now() }
