package model

import "time"

// AIPreferences is free-form scheduling guidance passed to the model verbatim.
type AIPreferences struct {
	UserID         string    `json:"-"`
	WorkingHours   string    `json:"workingHours"`
	PreferredTimes string    `json:"preferredTimes"`
	SelectedModel  string    `json:"selectedModel"`
	CreatedAt      time.Time `json:"createdAt,omitzero"`
	UpdatedAt      time.Time `json:"updatedAt,omitzero"`
}
