// Package entitlement вычисляет премиум-доступ и состояние пробного периода
// пользователя по его записи. Функции пакета чистые: текущее время передаётся
// явно, ввод/вывод отсутствует, отсутствующий пользователь всегда получает
// самый безопасный (не премиальный) ответ.
//
// Порядок проверок фиксирован: роль администратора важнее бессрочного премиума,
// бессрочный премиум важнее пробного периода, пробный период важнее
// устаревшего флага is_premium.
package entitlement

import (
	"time"

	"github.com/magabrotheeeer/storefront-entitlements/internal/models"
)

const day = 24 * time.Hour

// IsAdmin сообщает, является ли пользователь администратором.
func IsAdmin(u *models.User) bool {
	return u != nil && u.Role == models.RoleAdmin
}

// IsPermanent сообщает, выдан ли пользователю бессрочный премиум администратором.
func IsPermanent(u *models.User) bool {
	return u != nil && u.IsPremiumAdminSet != nil && *u.IsPremiumAdminSet
}

// IsPremium сообщает, есть ли у пользователя премиум-доступ на момент now.
func IsPremium(u *models.User, now time.Time) bool {
	if u == nil {
		return false
	}
	if IsAdmin(u) {
		return true
	}
	if IsPermanent(u) {
		return true
	}
	if u.TrialEndDate != nil && u.TrialEndDate.After(now) {
		return true
	}
	return u.IsPremium
}

// IsOnTrial сообщает, идёт ли у пользователя пробный период.
func IsOnTrial(u *models.User, now time.Time) bool {
	if u == nil || IsPermanent(u) {
		return false
	}
	return u.TrialEndDate != nil && u.TrialEndDate.After(now)
}

// HasTrialExpired сообщает, закончился ли пробный период.
// Дата окончания, равная now, истёкшей не считается.
func HasTrialExpired(u *models.User, now time.Time) bool {
	if u == nil || IsPermanent(u) {
		return false
	}
	return u.TrialEndDate != nil && u.TrialEndDate.Before(now)
}

// TrialDaysRemaining возвращает количество оставшихся дней пробного периода,
// округлённое вверх. Никогда не возвращает отрицательное значение.
func TrialDaysRemaining(u *models.User, now time.Time) int {
	if u == nil || u.TrialEndDate == nil || IsPermanent(u) {
		return 0
	}
	remaining := u.TrialEndDate.Sub(now)
	if remaining <= 0 {
		return 0
	}
	days := int(remaining / day)
	if remaining%day != 0 {
		days++
	}
	return days
}

// CanAccessFeature сообщает, доступна ли пользователю функция feature.
func CanAccessFeature(u *models.User, feature models.Feature, now time.Time) bool {
	if u == nil {
		return false
	}
	switch feature {
	case models.FeatureAdmin:
		return IsAdmin(u)
	case models.FeatureAnalytics:
		return true
	case models.FeatureCSVImport, models.FeatureExport:
		return IsPremium(u, now) || IsAdmin(u)
	default:
		return false
	}
}

// IsOriginalTrialWindowValid сообщает, не истекло ли исходное семидневное окно,
// отсчитываемое от даты регистрации. Только внутри этого окна триал можно сбросить.
func IsOriginalTrialWindowValid(u *models.User, now time.Time) bool {
	if u == nil || u.CreatedAt.IsZero() {
		return false
	}
	return u.CreatedAt.Add(models.TrialPeriod).After(now)
}

// NeedsEnforcement сообщает, что пробный период истёк, а флаг премиума в записи
// ещё не сброшен. Бессрочный премиум от администратора никогда не понижается.
func NeedsEnforcement(u *models.User, now time.Time) bool {
	return u != nil && HasTrialExpired(u, now) && u.IsPremium && !IsPermanent(u)
}

// NeedsPremiumBackfill сообщает, что у записи выставлен is_premium, но признак
// бессрочного премиума ни разу не записывался. Такие записи остались от старой схемы.
func NeedsPremiumBackfill(u *models.User) bool {
	return u != nil && u.IsPremium && u.IsPremiumAdminSet == nil
}

// Evaluate собирает все вычисленные права пользователя в одну структуру.
func Evaluate(u *models.User, now time.Time) models.Entitlements {
	e := models.Entitlements{
		Features: make(map[models.Feature]bool, len(models.Features)),
	}
	if u != nil {
		e.UserUID = u.UUID
	}
	e.IsAdmin = IsAdmin(u)
	e.IsPremium = IsPremium(u, now)
	e.IsOnTrial = IsOnTrial(u, now)
	e.HasTrialExpired = HasTrialExpired(u, now)
	e.TrialDaysRemaining = TrialDaysRemaining(u, now)
	for _, f := range models.Features {
		e.Features[f] = CanAccessFeature(u, f, now)
	}
	return e
}
