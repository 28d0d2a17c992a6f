package apperrors

import (
	"errors"
)

var (
	ErrSessionNotFound = errors.New("session not found")
	ErrSessionExists   = errors.New("session already exists")

	ErrNoAccessToken = errors.New("no access token in session")

	// Backend answered 401 to an authorized call
	ErrUnauthorized = errors.New("backend rejected credentials")

	ErrActionInvalid = errors.New("action payload is invalid")
)
