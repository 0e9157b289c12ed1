package model

import "time"

const (
	NotifTypeEventReminder = "event_reminder"
	NotifTypeDeadline      = "deadline"
)

type PushSubscription struct {
	ID         int64     `json:"id"`
	UserID     string    `json:"userId"`
	Endpoint   string    `json:"endpoint"`
	P256dhKey  string    `json:"p256dhKey"`
	AuthKey    string    `json:"authKey"`
	DeviceName string    `json:"deviceName"`
	CreatedAt  time.Time `json:"createdAt"`
}

type NotificationPreference struct {
	ID               int64     `json:"id"`
	UserID           string    `json:"userId"`
	NotificationType string    `json:"notificationType"`
	Enabled          bool      `json:"enabled"`
	CreatedAt        time.Time `json:"createdAt"`
	UpdatedAt        time.Time `json:"updatedAt"`
}
