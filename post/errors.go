package post

import "errors"

var (
	ErrNotFound         = errors.New("post: session not found")
	ErrInvalidState     = errors.New("post: session already finalized")
	ErrDuplicateSession = errors.New("post: duplicate session id")
)
