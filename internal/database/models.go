package database

import (
	"database/sql"
	"time"
)

type User struct {
	Id           int
	Username     string
	EmailAddress string
	PasswordHash string
	Role         string
	IsActive     bool
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

type Room struct {
	Id          int
	RoomCode    string
	RoomName    string
	HostUserId  int
	ControlMode string
	SourceMode  string
	VideoSource sql.NullString
	ContentHash sql.NullString
	CurrentTime float64
	IsPlaying   bool
	IsActive    bool
	MemberCount int
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

type Member struct {
	Id           int
	RoomId       int
	UserId       int
	Username     string
	Nickname     sql.NullString
	IsVerified   bool
	IsOnline     bool
	LastActiveAt time.Time
	JoinedAt     time.Time
}

type Message struct {
	Id        int
	RoomId    int
	UserId    int
	Username  string
	Content   string
	CreatedAt time.Time
}

type CreateAccountParams struct {
	Username     string
	EmailAddress string
	PasswordHash string
	Role         string
}

type CreateRoomParams struct {
	RoomCode    string
	RoomName    string
	HostUserId  int
	ControlMode string
	SourceMode  string
	VideoSource string
	ContentHash string
}
