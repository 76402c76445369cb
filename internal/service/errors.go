package service

import (
	"errors"
	"time"

	"github.com/LeventeLantos/scheduled-messaging/internal/repo"
)

var (
	ErrNotFound         = repo.ErrNotFound
	ErrConflict         = repo.ErrConflict
	ErrMissingRecipient = errors.New("recipient not found for owner")
	ErrContentTooLong   = errors.New("content too long")
	ErrEmptyContent     = errors.New("content is empty")
	ErrNoGenerator      = errors.New("content not supplied and no generator configured")
)

const (
	reasonNoPhone       = "no phone"
	reasonWindowMissed  = "delivery window missed"
	defaultChannel      = "whatsapp"
	defaultContentMax   = 4096
	defaultBatchSize    = 100
	defaultConcurrency  = 8
	defaultSendTimeout  = time.Minute
	systemActor         = "system"
	resourceTypeMessage = "message"
)
