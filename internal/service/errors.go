package service

import (
	"errors"
	"fmt"

	"gorm.io/gorm"
)

var (
	ErrThreadNotFound  = errors.New("thread not found")
	ErrMessageNotFound = errors.New("message not found")
	ErrGroupNotFound   = errors.New("group not found")
	ErrForbidden       = errors.New("forbidden")
	ErrEmptyContent    = errors.New("content is required")
	ErrClientIDReused  = errors.New("client_id already used in another thread")

	// ErrNotAuthor is a Forbidden outcome; errors.Is(ErrNotAuthor, ErrForbidden) holds.
	ErrNotAuthor = fmt.Errorf("%w: only the author can modify this message", ErrForbidden)

	// ErrMessageLocked means another participant has already seen the message.
	ErrMessageLocked = errors.New("message already seen by another participant")
)

func isNotFound(err error) bool {
	return errors.Is(err, gorm.ErrRecordNotFound)
}
