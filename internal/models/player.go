package models

import (
	"time"

	"github.com/google/uuid"
)

// Player is the identity record captured by the registration form.
type Player struct {
	ID      uuid.UUID `json:"id"`
	Name    string    `json:"name"`
	Phone   string    `json:"phone"`
	SavedAt time.Time `json:"saved_at"`
}
