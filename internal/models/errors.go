package models

import "errors"

var (
	// ErrNotFound запись не найдена.
	ErrNotFound = errors.New("not found")
	// ErrAlreadyExists запись с таким уникальным ключом уже существует.
	ErrAlreadyExists = errors.New("already exists")
	// ErrInvalidState операция недопустима в текущем состоянии пользователя.
	ErrInvalidState = errors.New("invalid state")
	// ErrStoreUnavailable хранилище недоступно.
	ErrStoreUnavailable = errors.New("store unavailable")
)
