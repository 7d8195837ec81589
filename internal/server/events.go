package server

import (
	"errors"
	"time"

	"github.com/bluealbum/watchroom/internal/session"
	"github.com/bluealbum/watchroom/internal/types"
)

type BaseEvent struct {
	Id        int       `json:"id,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// ClientEvent is the inbound envelope: exactly one of the pointer
// fields is set, decoded once at the gateway boundary.
type ClientEvent struct {
	BaseEvent
	Join        *JoinEvent        `json:"join,omitempty"`
	Leave       *LeaveEvent       `json:"leave,omitempty"`
	Control     *ControlEvent     `json:"control,omitempty"`
	Message     *MessageEvent     `json:"message,omitempty"`
	SyncRequest *SyncRequestEvent `json:"sync_request,omitempty"`
	TimeUpdate  *TimeUpdateEvent  `json:"time_update,omitempty"`
}

type JoinEvent struct {
	RoomId   int    `json:"room_id"`
	Nickname string `json:"nickname,omitempty"`
	Stealth  bool   `json:"stealth,omitempty"`
}

type LeaveEvent struct {
	RoomId int `json:"room_id"`
}

type ControlEvent struct {
	RoomId int      `json:"room_id"`
	Action string   `json:"action"`
	Time   *float64 `json:"time,omitempty"`
	Rate   *float64 `json:"rate,omitempty"`
}

type MessageEvent struct {
	RoomId  int    `json:"room_id"`
	Message string `json:"message"`
}

type SyncRequestEvent struct {
	RoomId int `json:"room_id"`
}

type TimeUpdateEvent struct {
	RoomId int      `json:"room_id"`
	Time   *float64 `json:"time"`
}

// ServerEvent is the outbound envelope, one pointer field per event
// kind. SkipConnId suppresses delivery to one connection during a
// room broadcast.
type ServerEvent struct {
	BaseEvent
	JoinSuccess        *JoinSuccess        `json:"join_success,omitempty"`
	MemberJoined       *MemberJoined       `json:"member_joined,omitempty"`
	MemberLeft         *MemberLeft         `json:"member_left,omitempty"`
	PlaybackSync       *PlaybackSync       `json:"playback_sync,omitempty"`
	NewMessage         *types.Message      `json:"new_message,omitempty"`
	TimeSync           *TimeSync           `json:"time_sync,omitempty"`
	ControlModeChanged *ControlModeChanged `json:"control_mode_changed,omitempty"`
	RoomClosed         *RoomClosed         `json:"room_closed,omitempty"`
	Error              *ErrorEvent         `json:"error,omitempty"`
	SkipConnId         string              `json:"-"`
}

type JoinSuccess struct {
	RoomId  int            `json:"room_id"`
	Room    types.Room     `json:"room"`
	Members []types.Member `json:"members"`
}

type MemberJoined struct {
	RoomId   int    `json:"room_id"`
	UserId   int    `json:"user_id"`
	Username string `json:"username"`
	Nickname string `json:"nickname,omitempty"`
}

type MemberLeft struct {
	RoomId int `json:"room_id"`
	UserId int `json:"user_id"`
}

type PlaybackSync struct {
	RoomId    int      `json:"room_id"`
	Action    string   `json:"action"`
	Time      float64  `json:"time"`
	Rate      *float64 `json:"rate,omitempty"`
	IsPlaying bool     `json:"is_playing"`
	UserId    int      `json:"user_id"`
}

type TimeSync struct {
	RoomId int     `json:"room_id"`
	Time   float64 `json:"time"`
	UserId int     `json:"user_id"`
}

// ControlModeChanged announces a host-leave escalation, so members
// learn they can drive playback without waiting for a rejected control.
type ControlModeChanged struct {
	RoomId      int    `json:"room_id"`
	ControlMode string `json:"control_mode"`
}

type RoomClosed struct {
	RoomId int `json:"room_id"`
}

type ErrorEvent struct {
	Message string `json:"message"`
}

func errEvent(id int, message string) *ServerEvent {
	return &ServerEvent{
		BaseEvent: BaseEvent{
			Id:        id,
			Timestamp: Now(),
		},
		Error: &ErrorEvent{Message: message},
	}
}

func ErrInvalidEvent(id int) *ServerEvent {
	return errEvent(id, "invalid event format")
}

func ErrRoomNotFound(id int) *ServerEvent {
	return errEvent(id, "room not found")
}

func ErrInternalError(id int) *ServerEvent {
	return errEvent(id, "internal server error")
}

func ErrServiceUnavailable(id int) *ServerEvent {
	return errEvent(id, "service unavailable")
}

// sessionErrEvent translates a session error into an error event for
// the originating connection only. Failed operations never broadcast.
func sessionErrEvent(id int, err error) *ServerEvent {
	switch {
	case errors.Is(err, session.ErrRoomNotFound), errors.Is(err, session.ErrRoomClosed):
		return ErrRoomNotFound(id)
	case errors.Is(err, session.ErrForbidden):
		return errEvent(id, err.Error())
	case errors.Is(err, session.ErrInvalidArgument):
		return errEvent(id, err.Error())
	case errors.Is(err, session.ErrStoreUnavailable):
		return ErrServiceUnavailable(id)
	default:
		return ErrInternalError(id)
	}
}

func Now() time.Time {
	return time.Now().UTC().Round(time.Millisecond)
}
