package session

import (
	"crypto/rand"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/bluealbum/watchroom/internal/database"
	"github.com/bluealbum/watchroom/internal/presence"
	"github.com/bluealbum/watchroom/internal/stats"
	"github.com/bluealbum/watchroom/internal/types"
)

const (
	ActionPlay  = "play"
	ActionPause = "pause"
	ActionSeek  = "seek"
	ActionRate  = "rate"
	ActionSync  = "sync"
)

const (
	roomCodeAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	roomCodeLength   = 6
	maxCodeAttempts  = 20

	maxMessageLength = 500
)

// Manager owns the per-room playback state machine and membership
// transitions. All mutations of a room's row, its member rows and its
// presence entries are serialized through a per-room mutex.
type Manager struct {
	log      *log.Logger
	db       database.WatchRoomRepository
	registry *presence.Registry
	stats    stats.StatsProvider

	mu    sync.Mutex
	locks map[int]*sync.Mutex
}

func NewManager(logger *log.Logger, db database.WatchRoomRepository, registry *presence.Registry, sp stats.StatsProvider) *Manager {
	return &Manager{
		log:      logger,
		db:       db,
		registry: registry,
		stats:    sp,
		locks:    make(map[int]*sync.Mutex),
	}
}

func (m *Manager) Registry() *presence.Registry {
	return m.registry
}

func (m *Manager) roomLock(roomId int) *sync.Mutex {
	m.mu.Lock()
	defer m.mu.Unlock()

	l, ok := m.locks[roomId]
	if !ok {
		l = &sync.Mutex{}
		m.locks[roomId] = l
	}

	return l
}

func (m *Manager) dropRoomLock(roomId int) {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.locks, roomId)
}

type CreateRoomParams struct {
	RoomName    string
	HostUserId  int
	ControlMode string
	SourceMode  string
	VideoSource string
	ContentHash string
}

// CreateRoom generates a unique room code, persists the room and
// auto-joins the host as its first member.
func (m *Manager) CreateRoom(params CreateRoomParams) (types.Room, error) {
	if strings.TrimSpace(params.RoomName) == "" {
		return types.Room{}, fmt.Errorf("%w: room name required", ErrInvalidArgument)
	}

	switch params.ControlMode {
	case "":
		params.ControlMode = types.ControlModeHostOnly
	case types.ControlModeHostOnly, types.ControlModeAllMembers:
	default:
		return types.Room{}, fmt.Errorf("%w: unknown control mode %q", ErrInvalidArgument, params.ControlMode)
	}

	switch params.SourceMode {
	case "":
		params.SourceMode = types.SourceModeLink
	case types.SourceModeLink, types.SourceModeUpload, types.SourceModeLocal:
	default:
		return types.Room{}, fmt.Errorf("%w: unknown source mode %q", ErrInvalidArgument, params.SourceMode)
	}

	code, err := m.generateRoomCode()
	if err != nil {
		return types.Room{}, err
	}

	dbRoom, err := m.db.CreateRoom(database.CreateRoomParams{
		RoomCode:    code,
		RoomName:    params.RoomName,
		HostUserId:  params.HostUserId,
		ControlMode: params.ControlMode,
		SourceMode:  params.SourceMode,
		VideoSource: params.VideoSource,
		ContentHash: params.ContentHash,
	})
	if err != nil {
		return types.Room{}, storeErr(err)
	}

	m.stats.Incr(stats.ActiveRooms)
	m.log.Printf("created room %q (code %s) for host %d", dbRoom.RoomName, dbRoom.RoomCode, dbRoom.HostUserId)

	return toRoom(dbRoom), nil
}

func (m *Manager) generateRoomCode() (string, error) {
	for attempt := 0; attempt < maxCodeAttempts; attempt++ {
		code, err := randomCode()
		if err != nil {
			return "", err
		}

		inUse, err := m.db.RoomCodeInUse(code)
		if err != nil {
			return "", storeErr(err)
		}
		if !inUse {
			return code, nil
		}

		m.log.Printf("room code %s collided, retrying", code)
	}

	return "", ErrCodeGenerationExhausted
}

// randomCode draws each character uniformly from the code alphabet.
// Bytes at or above the largest multiple of the alphabet size are
// rejected, so no character is overweighted by the modulo.
func randomCode() (string, error) {
	const limit = 256 - 256%len(roomCodeAlphabet)

	code := make([]byte, 0, roomCodeLength)
	buf := make([]byte, roomCodeLength)
	for len(code) < roomCodeLength {
		if _, err := rand.Read(buf); err != nil {
			return "", fmt.Errorf("generate room code: %w", err)
		}
		for _, b := range buf {
			if int(b) >= limit {
				continue
			}
			code = append(code, roomCodeAlphabet[int(b)%len(roomCodeAlphabet)])
			if len(code) == roomCodeLength {
				break
			}
		}
	}

	return string(code), nil
}

// JoinRoom is idempotent: a user with an existing member row gets it
// back marked online, never a duplicate.
func (m *Manager) JoinRoom(roomId, userId int, nickname string) (types.Member, error) {
	l := m.roomLock(roomId)
	l.Lock()
	defer l.Unlock()

	if _, err := m.db.GetRoomById(roomId); err != nil {
		return types.Member{}, storeErr(err)
	}

	member, err := m.db.GetMember(roomId, userId)
	switch {
	case err == nil:
		if err := m.db.SetMemberOnline(roomId, userId, true); err != nil {
			return types.Member{}, storeErr(err)
		}
		member.IsOnline = true
		member.LastActiveAt = time.Now().UTC()
		return toMember(member), nil
	case errors.Is(err, sql.ErrNoRows):
		// AddMember returns the complete row with the account username,
		// already marked online
		member, err = m.db.AddMember(roomId, userId, nickname)
		if err != nil {
			return types.Member{}, storeErr(err)
		}
		return toMember(member), nil
	default:
		return types.Member{}, storeErr(err)
	}
}

// AttachResult is what a live connection needs after joining a room.
type AttachResult struct {
	Room    types.Room
	Members []types.Member
	// Replaced is the previous handle for this (room, user), if the
	// attach displaced a still-registered connection.
	Replaced presence.Handle
}

// Attach binds a live connection to a room. Regular members must
// already have a member row; a stealth attach (admin observer) adds
// only the presence handle and touches no durable state.
func (m *Manager) Attach(roomId, userId int, handle presence.Handle, stealth bool) (AttachResult, error) {
	l := m.roomLock(roomId)
	l.Lock()
	defer l.Unlock()

	dbRoom, err := m.db.GetRoomById(roomId)
	if err != nil {
		return AttachResult{}, storeErr(err)
	}

	if stealth {
		user, err := m.db.GetAccountById(userId)
		if err != nil {
			return AttachResult{}, storeErr(err)
		}
		if user.Role != types.RoleAdmin {
			return AttachResult{}, fmt.Errorf("%w: stealth join requires admin", ErrForbidden)
		}
	} else {
		if !m.db.IsMember(roomId, userId) {
			return AttachResult{}, ErrNotMember
		}
		if err := m.db.SetMemberOnline(roomId, userId, true); err != nil {
			return AttachResult{}, storeErr(err)
		}
	}

	replaced, _ := m.registry.Add(roomId, userId, handle, stealth)

	dbMembers, err := m.db.ListMembers(roomId, false)
	if err != nil {
		return AttachResult{}, storeErr(err)
	}

	members := make([]types.Member, len(dbMembers))
	for i, dm := range dbMembers {
		members[i] = toMember(dm)
	}

	return AttachResult{
		Room:     toRoom(dbRoom),
		Members:  members,
		Replaced: replaced,
	}, nil
}

// DetachResult reports what LeaveRoom changed, so the gateway knows
// which notifications to broadcast.
type DetachResult struct {
	WasPresent bool
	// ControlModeChanged is set when the departing host's room
	// auto-escalated from host_only to all_members.
	ControlModeChanged bool
}

// LeaveRoom marks the member offline and removes the presence entry.
// The member row itself survives; only room deletion removes it. If
// connId is non-empty, the presence entry is removed only when it
// still belongs to that connection.
func (m *Manager) LeaveRoom(roomId, userId int, connId string, stealth bool) (DetachResult, error) {
	l := m.roomLock(roomId)
	l.Lock()
	defer l.Unlock()

	var res DetachResult
	if connId != "" {
		res.WasPresent = m.registry.RemoveHandle(roomId, userId, connId)
	} else {
		res.WasPresent = m.registry.Contains(roomId, userId)
		m.registry.Remove(roomId, userId)
	}

	if stealth {
		return res, nil
	}

	dbRoom, err := m.db.GetRoomById(roomId)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			// room already closed or reaped, nothing durable to update
			return res, nil
		}
		return res, storeErr(err)
	}

	if err := m.db.SetMemberOnline(roomId, userId, false); err != nil {
		return res, storeErr(err)
	}

	// A departing host must not freeze playback control for everyone
	// else. One-way transition; rejoining does not revert it.
	if dbRoom.ControlMode == types.ControlModeHostOnly && dbRoom.HostUserId == userId {
		if err := m.db.UpdateRoomControlMode(roomId, types.ControlModeAllMembers); err != nil {
			return res, storeErr(err)
		}
		res.ControlModeChanged = true
		m.log.Printf("host %d left room %d, control mode escalated to all_members", userId, roomId)
	}

	return res, nil
}

// ApplyControl validates a playback command against the room's control
// mode, persists the resulting state and returns the committed
// snapshot. The snapshot, not the raw command, is what gets broadcast:
// a seek must carry the current is_playing so paused rooms don't
// resume on seek.
func (m *Manager) ApplyControl(roomId, userId int, action string, timeSecs, rate *float64) (types.PlaybackState, error) {
	l := m.roomLock(roomId)
	l.Lock()
	defer l.Unlock()

	dbRoom, err := m.db.GetRoomById(roomId)
	if err != nil {
		return types.PlaybackState{}, storeErr(err)
	}

	if dbRoom.ControlMode == types.ControlModeHostOnly && userId != dbRoom.HostUserId {
		return types.PlaybackState{}, fmt.Errorf("%w: only the host controls playback", ErrForbidden)
	}

	state := types.PlaybackState{
		CurrentTime: dbRoom.CurrentTime,
		IsPlaying:   dbRoom.IsPlaying,
	}

	switch action {
	case ActionPlay:
		state.IsPlaying = true
	case ActionPause:
		state.IsPlaying = false
	case ActionSeek:
		if timeSecs == nil {
			return types.PlaybackState{}, fmt.Errorf("%w: seek requires a time", ErrInvalidArgument)
		}
		if *timeSecs < 0 {
			return types.PlaybackState{}, fmt.Errorf("%w: negative seek time", ErrInvalidArgument)
		}
		state.CurrentTime = *timeSecs
	case ActionRate:
		// rate is broadcast metadata only, never persisted
		if rate == nil {
			return types.PlaybackState{}, fmt.Errorf("%w: rate requires a value", ErrInvalidArgument)
		}
	default:
		return types.PlaybackState{}, fmt.Errorf("%w: unknown action %q", ErrInvalidArgument, action)
	}

	// persist before broadcast so the outbound event reflects
	// durably-committed state
	if err := m.db.UpdateRoomPlayback(roomId, state.CurrentTime, state.IsPlaying); err != nil {
		return types.PlaybackState{}, storeErr(err)
	}

	m.stats.Incr(stats.ControlEvents)

	return state, nil
}

// AuthorizeControl reports whether the user may drive playback under
// the room's current control mode. Used for unpersisted time updates.
func (m *Manager) AuthorizeControl(roomId, userId int) error {
	dbRoom, err := m.db.GetRoomById(roomId)
	if err != nil {
		return storeErr(err)
	}

	if dbRoom.ControlMode == types.ControlModeHostOnly && userId != dbRoom.HostUserId {
		return fmt.Errorf("%w: only the host controls playback", ErrForbidden)
	}

	return nil
}

// SyncSnapshot returns the current playback state and the host id it
// is attributed to, without mutating anything.
func (m *Manager) SyncSnapshot(roomId, userId int, stealth bool) (types.PlaybackState, int, error) {
	dbRoom, err := m.db.GetRoomById(roomId)
	if err != nil {
		return types.PlaybackState{}, 0, storeErr(err)
	}

	if !stealth && !m.db.IsMember(roomId, userId) {
		return types.PlaybackState{}, 0, ErrNotMember
	}

	return types.PlaybackState{
		CurrentTime: dbRoom.CurrentTime,
		IsPlaying:   dbRoom.IsPlaying,
	}, dbRoom.HostUserId, nil
}

// PostMessage validates and persists a chat message for fan-out.
func (m *Manager) PostMessage(roomId, userId int, text string) (types.Message, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return types.Message{}, ErrEmptyMessage
	}
	if utf8.RuneCountInString(text) > maxMessageLength {
		return types.Message{}, ErrMessageTooLong
	}

	l := m.roomLock(roomId)
	l.Lock()
	defer l.Unlock()

	if _, err := m.db.GetRoomById(roomId); err != nil {
		return types.Message{}, storeErr(err)
	}

	if !m.db.IsMember(roomId, userId) {
		return types.Message{}, ErrNotMember
	}

	dbMsg, err := m.db.AddMessage(roomId, userId, text)
	if err != nil {
		return types.Message{}, storeErr(err)
	}

	m.stats.Incr(stats.MessagesSent)

	return toMessage(dbMsg), nil
}

// CloseRoom deactivates the room. Only the host or an admin may close
// it; a populated room closes too, the gateway force-detaches members.
func (m *Manager) CloseRoom(roomId, requesterId int) error {
	l := m.roomLock(roomId)
	l.Lock()
	defer l.Unlock()

	dbRoom, err := m.db.GetRoomById(roomId)
	if err != nil {
		return storeErr(err)
	}

	if dbRoom.HostUserId != requesterId {
		user, err := m.db.GetAccountById(requesterId)
		if err != nil {
			return storeErr(err)
		}
		if user.Role != types.RoleAdmin {
			return fmt.Errorf("%w: only the host may close the room", ErrForbidden)
		}
	}

	if err := m.db.SetRoomActive(roomId, false); err != nil {
		return storeErr(err)
	}

	m.stats.Decr(stats.ActiveRooms)
	m.log.Printf("room %d closed by user %d", roomId, requesterId)

	return nil
}

// DeleteRoom hard-deletes the room with its members and messages.
// Admin/reaper path; permission checks happen at the caller.
func (m *Manager) DeleteRoom(roomId int) error {
	l := m.roomLock(roomId)
	l.Lock()

	wasActive := true
	if _, err := m.db.GetRoomById(roomId); errors.Is(err, sql.ErrNoRows) {
		wasActive = false
	}

	if err := m.db.DeleteRoom(roomId); err != nil {
		l.Unlock()
		return storeErr(err)
	}
	l.Unlock()

	m.dropRoomLock(roomId)
	if wasActive {
		m.stats.Decr(stats.ActiveRooms)
	}

	return nil
}

// ReapIdleRooms deletes rooms that are closed, or that have had no
// live presence since before the timeout, and returns the deleted room
// ids. Presence is re-checked inside the room's critical section
// immediately before each delete, so a join racing the sweep either
// lands first (delete skipped) or observes NotFound after it. Failures
// on one room don't abort the sweep.
func (m *Manager) ReapIdleRooms(timeout time.Duration) ([]int, error) {
	rooms, err := m.db.ListRooms(false)
	if err != nil {
		return nil, storeErr(err)
	}

	cutoff := time.Now().UTC().Add(-timeout)

	var reaped []int
	for _, room := range rooms {
		if room.IsActive {
			if room.UpdatedAt.After(cutoff) {
				continue
			}
			if !m.registry.IsEmpty(room.Id) {
				continue
			}
		}

		l := m.roomLock(room.Id)
		l.Lock()
		if room.IsActive && !m.registry.IsEmpty(room.Id) {
			// somebody joined between the scan and the lock
			l.Unlock()
			continue
		}

		err := m.db.DeleteRoom(room.Id)
		l.Unlock()
		if err != nil {
			m.log.Printf("reap room %d: %v", room.Id, err)
			continue
		}

		m.dropRoomLock(room.Id)
		if room.IsActive {
			m.stats.Decr(stats.ActiveRooms)
		}
		m.stats.Incr(stats.RoomsReaped)
		m.log.Printf("reaped idle room %d (code %s)", room.Id, room.RoomCode)
		reaped = append(reaped, room.Id)
	}

	return reaped, nil
}

func toRoom(r database.Room) types.Room {
	return types.Room{
		Id:          r.Id,
		RoomCode:    r.RoomCode,
		RoomName:    r.RoomName,
		HostUserId:  r.HostUserId,
		ControlMode: r.ControlMode,
		SourceMode:  r.SourceMode,
		VideoSource: r.VideoSource.String,
		ContentHash: r.ContentHash.String,
		CurrentTime: r.CurrentTime,
		IsPlaying:   r.IsPlaying,
		IsActive:    r.IsActive,
		MemberCount: r.MemberCount,
		CreatedAt:   r.CreatedAt,
		UpdatedAt:   r.UpdatedAt,
	}
}

func toMember(m database.Member) types.Member {
	nickname := m.Nickname.String
	if nickname == "" {
		nickname = m.Username
	}

	return types.Member{
		Id:           m.Id,
		RoomId:       m.RoomId,
		UserId:       m.UserId,
		Username:     m.Username,
		Nickname:     nickname,
		IsVerified:   m.IsVerified,
		IsOnline:     m.IsOnline,
		LastActiveAt: m.LastActiveAt,
		JoinedAt:     m.JoinedAt,
	}
}

func toMessage(m database.Message) types.Message {
	return types.Message{
		Id:        m.Id,
		RoomId:    m.RoomId,
		UserId:    m.UserId,
		Username:  m.Username,
		Content:   m.Content,
		CreatedAt: m.CreatedAt,
	}
}
