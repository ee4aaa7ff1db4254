package api

import (
	"encoding/json"
	"time"
)

// User is an account on the platform, either a patient or a doctor.
type User struct {
	ID      int64    `json:"id"`
	Name    string   `json:"name"`
	Email   string   `json:"email"`
	Role    string   `json:"role,omitempty"` // "patient" or "doctor"
	Avatar  string   `json:"avatar,omitempty"`
	Patient *Patient `json:"patient,omitempty"`
	Doctor  *Doctor  `json:"doctor,omitempty"`
}

type Patient struct {
	ID          int64  `json:"id"`
	UserID      int64  `json:"user_id"`
	Name        string `json:"name,omitempty"`
	Phone       string `json:"phone,omitempty"`
	DateOfBirth string `json:"date_of_birth,omitempty"`
	User        *User  `json:"user,omitempty"`
}

type Doctor struct {
	ID                int64       `json:"id"`
	UserID            int64       `json:"user_id"`
	Name              string      `json:"name,omitempty"`
	Phone             string      `json:"phone,omitempty"`
	Specialization    string      `json:"specialization,omitempty"`
	LicenseNumber     string      `json:"license_number,omitempty"`
	YearsOfExperience int         `json:"years_of_experience,omitempty"`
	ConsultationFee   json.Number `json:"consultation_fee,omitempty"`
	Bio               string      `json:"bio,omitempty"`
	User              *User       `json:"user,omitempty"`
}

// AuthResponse is returned by login, register and refresh.
type AuthResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int64  `json:"expires_in"`
	User        User   `json:"user"`
}

// AppointmentStatus enumerates the appointment lifecycle.
type AppointmentStatus string

const (
	AppointmentPending         AppointmentStatus = "pending"
	AppointmentAwaitingPayment AppointmentStatus = "awaiting_payment"
	AppointmentConfirmed       AppointmentStatus = "confirmed"
	AppointmentCancelled       AppointmentStatus = "cancelled"
	AppointmentCompleted       AppointmentStatus = "completed"
)

// Valid reports whether s is a known status.
func (s AppointmentStatus) Valid() bool {
	switch s {
	case AppointmentPending, AppointmentAwaitingPayment, AppointmentConfirmed,
		AppointmentCancelled, AppointmentCompleted:
		return true
	}
	return false
}

type Appointment struct {
	ID              int64             `json:"id"`
	AppointmentDate string            `json:"appointment_date"`
	Status          AppointmentStatus `json:"status"`
	Notes           string            `json:"notes,omitempty"`
	Doctor          *Doctor           `json:"doctor,omitempty"`
	Patient         *Patient          `json:"patient,omitempty"`
	CreatedAt       *time.Time        `json:"created_at,omitempty"`
	UpdatedAt       *time.Time        `json:"updated_at,omitempty"`
}

// Chat is a conversation between a patient and a doctor.
type Chat struct {
	UUID          string `json:"uuid"`
	Status        string `json:"status"` // "active" or "closed"
	User1         *User  `json:"user1,omitempty"`
	User2         *User  `json:"user2,omitempty"`
	AppointmentID int64  `json:"appointment_id,omitempty"`
}

// ChatListItem is the /chats list shape, one row per conversation.
type ChatListItem struct {
	UUID            string   `json:"uuid"`
	Status          string   `json:"status"`
	OtherUser       *User    `json:"other_user,omitempty"`
	LastMessage     *Message `json:"last_message,omitempty"`
	UnreadCount     int      `json:"unread_count"`
	LastMessageTime string   `json:"last_message_time,omitempty"`
}

type Message struct {
	ID        int64      `json:"id"`
	ChatID    int64      `json:"chat_id"`
	SenderID  int64      `json:"sender_id"`
	Content   string     `json:"content"`
	FilePath  string     `json:"file_path,omitempty"`
	ReadAt    *time.Time `json:"read_at"`
	CreatedAt time.Time  `json:"created_at"`
}

// Notification mirrors the server's database notification shape.
type Notification struct {
	ID           string           `json:"id"`
	NotifiableID int64            `json:"notifiable_id"`
	Type         string           `json:"type"`
	Data         NotificationData `json:"data"`
	ReadAt       *time.Time       `json:"read_at"`
	CreatedAt    time.Time        `json:"created_at"`
	UpdatedAt    time.Time        `json:"updated_at"`
}

// NotificationData is the type-specific payload; Message is always present.
type NotificationData struct {
	Message       string `json:"message"`
	Status        string `json:"status,omitempty"`
	AppointmentID int64  `json:"appointment_id,omitempty"`
	ChatUUID      string `json:"chat_uuid,omitempty"`
}

// envelope wraps appointment responses: {message, statusCode, status, data}.
type envelope[T any] struct {
	Message    string `json:"message"`
	StatusCode int    `json:"statusCode"`
	Status     string `json:"status"`
	Data       T      `json:"data"`
}
