package rooms

import "errors"

var (
	ErrNotFound            = errors.New("not found")
	ErrConflict            = errors.New("already exists")
	ErrJoinClosed          = errors.New("room is not accepting new players")
	ErrRoundInProgress     = errors.New("round already in progress")
	ErrInsufficientPlayers = errors.New("need at least 3 players")
	ErrUnauthorized        = errors.New("not allowed")
	ErrInvalidInput        = errors.New("invalid input")
	ErrTransient           = errors.New("store temporarily unavailable")
)
