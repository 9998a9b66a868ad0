// Package metrics содержит счётчики Prometheus сервиса прав.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "entitlements"

var (
	// EnforcementsTotal считает принудительные снятия премиума по результату.
	EnforcementsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "enforcer",
		Name:      "enforcements_total",
		Help:      "Trial enforcements by outcome (ok, user_write_failed, store_write_failed).",
	}, []string{"outcome"})

	// StoreWriteRetries считает повторные попытки записи флагов магазина.
	StoreWriteRetries = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "enforcer",
		Name:      "store_write_retries_total",
		Help:      "Failed store feature flag write attempts that were retried.",
	})

	// StoreRepairs считает повторное выключение флагов магазина после неудачного Enforce.
	StoreRepairs = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "enforcer",
		Name:      "store_repairs_total",
		Help:      "Stores of downgraded users whose premium flags were disabled by the sweeper, by outcome.",
	}, []string{"outcome"})

	SweepRuns = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "enforcer",
		Name:      "sweep_runs_total",
		Help:      "Expired trial sweeps by outcome.",
	}, []string{"outcome"})

	// MigratedUsersTotal считает записи, обработанные миграцией премиальных флагов.
	MigratedUsersTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "migrator",
		Name:      "users_total",
		Help:      "Users processed by the premium flag migration by outcome (migrated, skipped, failed).",
	}, []string{"outcome"})

	TrialEmails = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "notifier",
		Name:      "trial_emails_total",
		Help:      "Trial expiry emails by outcome (sent, skipped, failed).",
	}, []string{"outcome"})

	// CacheLookups считает обращения к кешу прав.
	CacheLookups = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "cache",
		Name:      "lookups_total",
		Help:      "Entitlement cache lookups by result (hit, miss, error).",
	}, []string{"result"})
)

// Outcome labels.
const (
	OutcomeOK               = "ok"
	OutcomeUserWriteFailed  = "user_write_failed"
	OutcomeStoreWriteFailed = "store_write_failed"
	OutcomeMigrated         = "migrated"
	OutcomeFailed           = "failed"
	OutcomeSent             = "sent"
	OutcomeSkipped          = "skipped"

	CacheHit   = "hit"
	CacheMiss  = "miss"
	CacheError = "error"
)
