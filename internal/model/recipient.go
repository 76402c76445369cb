package model

import (
	"time"

	"github.com/google/uuid"
)

// Recipient is the owner's contact. Name and phone are stored encrypted.
type Recipient struct {
	ID             uuid.UUID
	OwnerID        uuid.UUID
	NameEncrypted  string
	PhoneEncrypted string
	CreatedAt      time.Time
}
