package types

import (
	"time"
)

const (
	ControlModeHostOnly   = "host_only"
	ControlModeAllMembers = "all_members"
)

const (
	SourceModeLink   = "link"
	SourceModeUpload = "upload"
	SourceModeLocal  = "local"
)

const (
	RoleUser  = "user"
	RoleAdmin = "admin"
)

type User struct {
	Id           int       `json:"id"`
	Username     string    `json:"username"`
	EmailAddress string    `json:"email_address,omitempty"`
	Role         string    `json:"role,omitempty"`
	Password     string    `json:"-"`
	IsActive     bool      `json:"is_active,omitempty"`
	CreatedAt    time.Time `json:"created_at,omitempty"`
	UpdatedAt    time.Time `json:"updated_at,omitempty"`
}

type Room struct {
	Id          int       `json:"id"`
	RoomCode    string    `json:"room_code"`
	RoomName    string    `json:"room_name"`
	HostUserId  int       `json:"host_user_id"`
	ControlMode string    `json:"control_mode"`
	SourceMode  string    `json:"mode"`
	VideoSource string    `json:"video_source,omitempty"`
	ContentHash string    `json:"content_hash,omitempty"`
	CurrentTime float64   `json:"current_time"`
	IsPlaying   bool      `json:"is_playing"`
	IsActive    bool      `json:"is_active"`
	MemberCount int       `json:"member_count,omitempty"`
	CreatedAt   time.Time `json:"created_at,omitempty"`
	UpdatedAt   time.Time `json:"updated_at,omitempty"`
}

type Member struct {
	Id           int       `json:"id"`
	RoomId       int       `json:"room_id"`
	UserId       int       `json:"user_id"`
	Username     string    `json:"username"`
	Nickname     string    `json:"nickname"`
	IsVerified   bool      `json:"is_verified"`
	IsOnline     bool      `json:"is_online"`
	LastActiveAt time.Time `json:"last_active_at,omitempty"`
	JoinedAt     time.Time `json:"joined_at,omitempty"`
}

type Message struct {
	Id        int       `json:"id"`
	RoomId    int       `json:"room_id"`
	UserId    int       `json:"user_id"`
	Username  string    `json:"username,omitempty"`
	Content   string    `json:"message"`
	CreatedAt time.Time `json:"created_at"`
}

// PlaybackState is a durably-committed playback snapshot for a room.
type PlaybackState struct {
	CurrentTime float64 `json:"time"`
	IsPlaying   bool    `json:"is_playing"`
}
