package models

import "errors"

var (
	ErrNotFound      = errors.New("booking not found")
	ErrUnknownStatus = errors.New("unknown booking status")
)

const (
	// CalendarFirstHour and CalendarLastHour bound the week grid, inclusive.
	CalendarFirstHour = 7
	CalendarLastHour  = 20

	// DaysPerWeek is the width of the week grid.
	DaysPerWeek = 7
)

const (
	// DefaultSnapshotTTL время жизни сохранённого снимка заявок в кэше
	DefaultSnapshotTTL = 24 * 60 * 60 // 24 часа в секундах

	// DefaultRefreshInterval период фоновой сверки с сервером
	DefaultRefreshInterval = 30 // секунд

	// RateLimitRPS и RateLimitBurst ограничения API по умолчанию
	RateLimitRPS   = 10
	RateLimitBurst = 20

	// DefaultTokenTTL время жизни токена актёра
	DefaultTokenTTL = 12 * 60 * 60 // 12 часов в секундах
)
