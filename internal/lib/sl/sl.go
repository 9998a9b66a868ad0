// Package sl содержит атрибуты slog, общие для всех пакетов сервиса.
package sl

import "log/slog"

// Err возвращает атрибут "error" с текстом ошибки. Для nil пишется пустая строка,
// чтобы вызов в ветке восстановления после panic не ронял логирование.
//
//	log.Error("failed to enforce trial expiry", sl.Err(err))
func Err(err error) slog.Attr {
	if err == nil {
		return slog.String("error", "")
	}
	return slog.String("error", err.Error())
}

// UserUID атрибут с идентификатором пользователя.
func UserUID(uid string) slog.Attr {
	return slog.String("user_uid", uid)
}
