package models

import (
	"time"
)

type User struct {
	ID           string       `json:"id" db:"id"`
	Email        string       `json:"email" db:"email"`
	Username     string       `json:"username" db:"username"`
	DisplayName  string       `json:"display_name" db:"display_name"`
	AvatarURL    string       `json:"avatar_url" db:"avatar_url"`
	PasswordHash string       `json:"-" db:"password_hash"`
	Online       bool         `json:"online" db:"online"`
	LastSeen     time.Time    `json:"last_seen" db:"last_seen"`
	CreatedAt    time.Time    `json:"created_at" db:"created_at"`
	UpdatedAt    time.Time    `json:"updated_at" db:"updated_at"`
	Settings     UserSettings `json:"settings" db:"-"`
}

// UserSettings are per-account toggles. ShowOnline gates presence visibility,
// ReadReceipts gates read-flag fan-out to the other participant.
type UserSettings struct {
	Notifications bool `json:"notifications" db:"notifications"`
	ShowOnline    bool `json:"online_status" db:"show_online"`
	ReadReceipts  bool `json:"read_receipts" db:"read_receipts"`
}

func DefaultSettings() UserSettings {
	return UserSettings{Notifications: true, ShowOnline: true, ReadReceipts: true}
}

type UserSession struct {
	UserID     string    `json:"user_id" db:"user_id"`
	SessionID  string    `json:"session_id" db:"session_id"`
	DeviceInfo string    `json:"device_info,omitempty" db:"device_info"`
	IPAddress  string    `json:"ip_address,omitempty" db:"ip_address"`
	LastActive time.Time `json:"last_active" db:"last_active"`
	CreatedAt  time.Time `json:"created_at" db:"created_at"`
	IsActive   bool      `json:"is_active" db:"is_active"`
}

type UserPresence struct {
	UserID   string    `json:"user_id"`
	Online   bool      `json:"online"`
	LastSeen time.Time `json:"last_seen,omitempty"`
}

type RegisterRequest struct {
	Email           string `json:"email"`
	Password        string `json:"password"`
	ConfirmPassword string `json:"confirm_password"`
	Username        string `json:"username"`
}

type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type AuthResponse struct {
	Token     string    `json:"token"`
	User      User      `json:"user"`
	ExpiresAt time.Time `json:"expires_at"`
}

type SettingsUpdateRequest struct {
	DisplayName   *string `json:"display_name,omitempty"`
	AvatarURL     *string `json:"avatar_url,omitempty"`
	Notifications *bool   `json:"notifications,omitempty"`
	ShowOnline    *bool   `json:"online_status,omitempty"`
	ReadReceipts  *bool   `json:"read_receipts,omitempty"`
}
