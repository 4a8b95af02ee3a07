package presence

import "errors"

var (
	ErrInvalidRequest   = errors.New("ticket_id and gate are required")
	ErrInvalidDirection = errors.New("direction must be INSIDE or OUTSIDE")
	ErrMissingToken     = errors.New("token is required")
)
