package models

import "errors"

// Domain error taxonomy. Handlers map these onto HTTP status codes;
// repositories wrap them with context via fmt.Errorf("%w: ...").
var (
	ErrValidation       = errors.New("validation failed")
	ErrNotFound         = errors.New("not found")
	ErrPermission       = errors.New("permission denied")
	ErrSelfConversation = errors.New("cannot start a conversation with yourself")
)
