package models

// Feature функция платформы, доступ к которой зависит от прав пользователя.
type Feature string

const (
	FeatureAnalytics Feature = "analytics"
	FeatureCSVImport Feature = "csv_import"
	FeatureExport    Feature = "export"
	FeatureAdmin     Feature = "admin"
)

// Features перечисляет все известные функции в стабильном порядке.
var Features = []Feature{FeatureAnalytics, FeatureCSVImport, FeatureExport, FeatureAdmin}

// Entitlements вычисленные права пользователя на момент запроса.
type Entitlements struct {
	UserUID            string           `json:"user_uid"`
	IsAdmin            bool             `json:"is_admin"`
	IsPremium          bool             `json:"is_premium"`
	IsOnTrial          bool             `json:"is_on_trial"`
	HasTrialExpired    bool             `json:"has_trial_expired"`
	TrialDaysRemaining int              `json:"trial_days_remaining"`
	Features           map[Feature]bool `json:"features"`
}

// MigrationFailure описывает пользователя, которого не удалось мигрировать.
type MigrationFailure struct {
	UserUID string `json:"user_uid"`
	Error   string `json:"error"`
}

// MigrationReport итог пакетной миграции премиум-статусов.
type MigrationReport struct {
	Scanned  int                `json:"scanned"`
	Migrated int                `json:"migrated"`
	Skipped  int                `json:"skipped"`
	Failed   []MigrationFailure `json:"failed,omitempty"`
}
