// Package models содержит доменную модель пользователя витрины и его магазина,
// а также вспомогательные типы для частичных обновлений и вычисленных прав доступа.
// Структуры используются в бизнес‑логике, кэше и при работе с хранилищем.
package models

import "time"

const (
	// RoleUser роль обычного владельца магазина.
	RoleUser = "user"
	// RoleAdmin роль администратора платформы.
	RoleAdmin = "admin"

	// TrialPeriod длительность пробного периода.
	TrialPeriod = 7 * 24 * time.Hour
)

// TrialEndedSentinel дата окончания пробного периода, которую администратор
// выставляет при досрочном завершении триала. Всегда лежит в прошлом.
var TrialEndedSentinel = time.Unix(0, 0).UTC()

// User представляет зарегистрированного пользователя витрины.
type User struct {
	UUID         string `json:"uid"`          // Уникальный идентификатор пользователя
	Email        string `json:"email"`        // Электронная почта
	DisplayName  string `json:"display_name"` // Отображаемое имя
	PasswordHash string `json:"-"`            // Хэш пароля пользователя
	Role         string `json:"role"`         // Роль пользователя, admin или user
	IsPremium    bool   `json:"is_premium"`   // Устаревший общий признак премиума
	// IsPremiumAdminSet признак бессрочного премиума, выданного администратором.
	// nil означает, что поле ни разу не выставлялось (NULL в базе).
	IsPremiumAdminSet *bool      `json:"is_premium_admin_set"`
	TrialEndDate      *time.Time `json:"trial_end_date"` // Дата окончания пробного периода
	CreatedAt         time.Time  `json:"created_at"`
	UpdatedAt         time.Time  `json:"updated_at"`
}

// UserUpdate описывает частичное обновление пользователя.
// Поля со значением nil не изменяются.
type UserUpdate struct {
	Role              *string
	IsPremium         *bool
	IsPremiumAdminSet *bool
	TrialEndDate      *time.Time
	// ClearTrialEndDate записывает NULL в trial_end_date и имеет приоритет над TrialEndDate.
	ClearTrialEndDate bool
}

// Empty сообщает, что обновление не затрагивает ни одного поля.
func (u UserUpdate) Empty() bool {
	return u.Role == nil && u.IsPremium == nil && u.IsPremiumAdminSet == nil &&
		u.TrialEndDate == nil && !u.ClearTrialEndDate
}

// UserSnapshot актуальное состояние пользователя, полученное из ленты изменений.
// User равен nil, если запись больше не существует.
type UserSnapshot struct {
	UserUID string
	User    *User
}

// Bool возвращает указатель на значение v.
func Bool(v bool) *bool { return &v }

// String возвращает указатель на значение v.
func String(v string) *string { return &v }

// Time возвращает указатель на значение v.
func Time(v time.Time) *time.Time { return &v }
