package internal

import "errors"

var (
	ErrNotFound               = errors.New("short link not found")
	ErrLinkExpired            = errors.New("short link expired")
	ErrPersistenceUnavailable = errors.New("persistence unavailable")
	ErrCodeTaken              = errors.New("short code already taken")
	ErrInvalidURL             = errors.New("invalid target url")
	ErrInvalidCode            = errors.New("invalid short code")
	ErrInvalidExpiry          = errors.New("invalid expiry")
)
