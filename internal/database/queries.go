package database

import (
	"database/sql"
	"fmt"
	"time"
)

const (
	roomColumns = "id, room_code, room_name, host_user_id, control_mode, source_mode, " +
		"video_source, content_hash, current_time_secs, is_playing, is_active, created_at, updated_at"
	// the insert returns the full member row joined with the account's
	// username, same shape as GetMember, so a first join serializes a
	// complete member to the client
	addMemberQuery = "WITH ins AS (" +
		"INSERT INTO room_members (room_id, user_id, nickname, is_online, last_active_at, joined_at) " +
		"VALUES ($1, $2, $3, TRUE, $4, $4) " +
		"RETURNING id, room_id, user_id, nickname, is_verified, is_online, last_active_at, joined_at) " +
		"SELECT ins.id, ins.room_id, ins.user_id, a.username, ins.nickname, ins.is_verified, ins.is_online, " +
		"ins.last_active_at, ins.joined_at " +
		"FROM ins JOIN accounts a ON ins.user_id = a.id"
)

func (db *PgWatchRoomRepository) CreateAccount(params CreateAccountParams) (User, error) {
	res := db.conn.QueryRow(
		"INSERT INTO accounts (username, email, password_hash, role, is_active, created_at, updated_at) "+
			"VALUES ($1, $2, $3, $4, TRUE, $5, $5) RETURNING id, username, email, role",
		params.Username,
		params.EmailAddress,
		params.PasswordHash,
		params.Role,
		time.Now().UTC(),
	)

	var u User
	err := res.Scan(
		&u.Id,
		&u.Username,
		&u.EmailAddress,
		&u.Role,
	)

	return u, err
}

func (db *PgWatchRoomRepository) GetAccountById(userId int) (User, error) {
	row := db.conn.QueryRow(
		"SELECT id, username, email, role, is_active, created_at, updated_at FROM accounts "+
			"WHERE id = $1 LIMIT 1",
		userId,
	)

	var user User
	err := row.Scan(
		&user.Id,
		&user.Username,
		&user.EmailAddress,
		&user.Role,
		&user.IsActive,
		&user.CreatedAt,
		&user.UpdatedAt,
	)

	return user, err
}

func (db *PgWatchRoomRepository) GetAccountByEmail(email string) (User, error) {
	row := db.conn.QueryRow(
		"SELECT id, username, email, password_hash, role, is_active, created_at, updated_at FROM accounts "+
			"WHERE email = $1 LIMIT 1",
		email,
	)

	var user User
	err := row.Scan(
		&user.Id,
		&user.Username,
		&user.EmailAddress,
		&user.PasswordHash,
		&user.Role,
		&user.IsActive,
		&user.CreatedAt,
		&user.UpdatedAt,
	)

	return user, err
}

// CreateRoom inserts the room and its host membership in one transaction,
// so a room never exists without a first member.
func (db *PgWatchRoomRepository) CreateRoom(params CreateRoomParams) (Room, error) {
	tx, err := db.conn.Begin()
	if err != nil {
		return Room{}, err
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()

	res := tx.QueryRow(
		"INSERT INTO rooms (room_code, room_name, host_user_id, control_mode, source_mode, "+
			"video_source, content_hash, current_time_secs, is_playing, is_active, created_at, updated_at) "+
			"VALUES ($1, $2, $3, $4, $5, $6, $7, 0, FALSE, TRUE, $8, $8) "+
			"RETURNING "+roomColumns,
		params.RoomCode,
		params.RoomName,
		params.HostUserId,
		params.ControlMode,
		params.SourceMode,
		nullString(params.VideoSource),
		nullString(params.ContentHash),
		time.Now().UTC(),
	)

	var room Room
	err = scanRoom(res, &room)
	if err != nil {
		return Room{}, err
	}

	_, err = tx.Exec(
		addMemberQuery,
		room.Id,
		params.HostUserId,
		sql.NullString{},
		time.Now().UTC(),
	)
	if err != nil {
		return Room{}, err
	}

	if err = tx.Commit(); err != nil {
		return Room{}, err
	}

	return room, nil
}

func (db *PgWatchRoomRepository) GetRoomById(roomId int) (Room, error) {
	row := db.conn.QueryRow(
		"SELECT "+roomColumns+" FROM rooms WHERE id = $1 AND is_active = TRUE LIMIT 1",
		roomId,
	)

	var room Room
	err := scanRoom(row, &room)
	return room, err
}

func (db *PgWatchRoomRepository) GetRoomByCode(roomCode string) (Room, error) {
	row := db.conn.QueryRow(
		"SELECT "+roomColumns+" FROM rooms WHERE room_code = $1 AND is_active = TRUE LIMIT 1",
		roomCode,
	)

	var room Room
	err := scanRoom(row, &room)
	return room, err
}

func (db *PgWatchRoomRepository) RoomCodeInUse(roomCode string) (bool, error) {
	row := db.conn.QueryRow(
		"SELECT id FROM rooms WHERE room_code = $1 AND is_active = TRUE LIMIT 1",
		roomCode,
	)

	var id int
	err := row.Scan(&id)
	if err == sql.ErrNoRows {
		return false, nil
	}

	return err == nil, err
}

func (db *PgWatchRoomRepository) UpdateRoomPlayback(roomId int, currentTime float64, isPlaying bool) error {
	_, err := db.conn.Exec(
		"UPDATE rooms SET current_time_secs = $2, is_playing = $3, updated_at = $4 WHERE id = $1",
		roomId,
		currentTime,
		isPlaying,
		time.Now().UTC(),
	)

	return err
}

func (db *PgWatchRoomRepository) UpdateRoomControlMode(roomId int, controlMode string) error {
	_, err := db.conn.Exec(
		"UPDATE rooms SET control_mode = $2, updated_at = $3 WHERE id = $1",
		roomId,
		controlMode,
		time.Now().UTC(),
	)

	return err
}

func (db *PgWatchRoomRepository) SetRoomActive(roomId int, active bool) error {
	_, err := db.conn.Exec(
		"UPDATE rooms SET is_active = $2, updated_at = $3 WHERE id = $1",
		roomId,
		active,
		time.Now().UTC(),
	)

	return err
}

// DeleteRoom hard-deletes the room and cascades to members and messages.
func (db *PgWatchRoomRepository) DeleteRoom(roomId int) error {
	tx, err := db.conn.Begin()
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()

	_, err = tx.Exec("DELETE FROM room_members WHERE room_id = $1", roomId)
	if err != nil {
		return err
	}

	_, err = tx.Exec("DELETE FROM room_messages WHERE room_id = $1", roomId)
	if err != nil {
		return err
	}

	_, err = tx.Exec("DELETE FROM rooms WHERE id = $1", roomId)
	if err != nil {
		return err
	}

	return tx.Commit()
}

func (db *PgWatchRoomRepository) ListRoomsForUser(userId, skip, limit int) ([]Room, error) {
	if limit <= 0 {
		limit = 20
	}

	rows, err := db.conn.Query(
		"SELECT r.id, r.room_code, r.room_name, r.host_user_id, r.control_mode, r.source_mode, "+
			"r.video_source, r.content_hash, r.current_time_secs, r.is_playing, r.is_active, r.created_at, r.updated_at, "+
			"(SELECT COUNT(*) FROM room_members rm2 WHERE rm2.room_id = r.id) AS member_count "+
			"FROM rooms r JOIN room_members rm ON r.id = rm.room_id "+
			"WHERE rm.user_id = $1 AND r.is_active = TRUE "+
			"ORDER BY r.created_at DESC OFFSET $2 LIMIT $3",
		userId,
		skip,
		limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var rooms = make([]Room, 0)
	for rows.Next() {
		var room Room
		if err = rows.Scan(
			&room.Id,
			&room.RoomCode,
			&room.RoomName,
			&room.HostUserId,
			&room.ControlMode,
			&room.SourceMode,
			&room.VideoSource,
			&room.ContentHash,
			&room.CurrentTime,
			&room.IsPlaying,
			&room.IsActive,
			&room.CreatedAt,
			&room.UpdatedAt,
			&room.MemberCount,
		); err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}

		rooms = append(rooms, room)
	}

	return rooms, rows.Err()
}

func (db *PgWatchRoomRepository) ListRooms(activeOnly bool) ([]Room, error) {
	query := "SELECT " + roomColumns + " FROM rooms"
	if activeOnly {
		query += " WHERE is_active = TRUE"
	}
	query += " ORDER BY created_at"

	rows, err := db.conn.Query(query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var rooms = make([]Room, 0)
	for rows.Next() {
		var room Room
		if err = scanRoom(rows, &room); err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}

		rooms = append(rooms, room)
	}

	return rooms, rows.Err()
}

func (db *PgWatchRoomRepository) AddMember(roomId, userId int, nickname string) (Member, error) {
	res := db.conn.QueryRow(
		addMemberQuery,
		roomId,
		userId,
		nullString(nickname),
		time.Now().UTC(),
	)

	var member Member
	err := res.Scan(
		&member.Id,
		&member.RoomId,
		&member.UserId,
		&member.Username,
		&member.Nickname,
		&member.IsVerified,
		&member.IsOnline,
		&member.LastActiveAt,
		&member.JoinedAt,
	)

	return member, err
}

func (db *PgWatchRoomRepository) GetMember(roomId, userId int) (Member, error) {
	row := db.conn.QueryRow(
		"SELECT m.id, m.room_id, m.user_id, a.username, m.nickname, m.is_verified, m.is_online, "+
			"m.last_active_at, m.joined_at "+
			"FROM room_members m JOIN accounts a ON m.user_id = a.id "+
			"WHERE m.room_id = $1 AND m.user_id = $2 LIMIT 1",
		roomId,
		userId,
	)

	var member Member
	err := row.Scan(
		&member.Id,
		&member.RoomId,
		&member.UserId,
		&member.Username,
		&member.Nickname,
		&member.IsVerified,
		&member.IsOnline,
		&member.LastActiveAt,
		&member.JoinedAt,
	)

	return member, err
}

func (db *PgWatchRoomRepository) SetMemberOnline(roomId, userId int, online bool) error {
	_, err := db.conn.Exec(
		"UPDATE room_members SET is_online = $3, last_active_at = $4 WHERE room_id = $1 AND user_id = $2",
		roomId,
		userId,
		online,
		time.Now().UTC(),
	)

	return err
}

func (db *PgWatchRoomRepository) ListMembers(roomId int, onlineOnly bool) ([]Member, error) {
	query := "SELECT m.id, m.room_id, m.user_id, a.username, m.nickname, m.is_verified, m.is_online, " +
		"m.last_active_at, m.joined_at " +
		"FROM room_members m JOIN accounts a ON m.user_id = a.id WHERE m.room_id = $1"
	if onlineOnly {
		query += " AND m.is_online = TRUE"
	}
	query += " ORDER BY m.joined_at"

	rows, err := db.conn.Query(query, roomId)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var members = make([]Member, 0)
	for rows.Next() {
		var member Member
		if err = rows.Scan(
			&member.Id,
			&member.RoomId,
			&member.UserId,
			&member.Username,
			&member.Nickname,
			&member.IsVerified,
			&member.IsOnline,
			&member.LastActiveAt,
			&member.JoinedAt,
		); err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}

		members = append(members, member)
	}

	return members, rows.Err()
}

func (db *PgWatchRoomRepository) IsMember(roomId, userId int) bool {
	res := db.conn.QueryRow(
		"SELECT id FROM room_members WHERE room_id = $1 AND user_id = $2 LIMIT 1",
		roomId,
		userId,
	)

	var id int
	return res.Scan(&id) == nil
}

func (db *PgWatchRoomRepository) AddMessage(roomId, userId int, content string) (Message, error) {
	res := db.conn.QueryRow(
		"INSERT INTO room_messages (room_id, user_id, message, created_at) "+
			"VALUES ($1, $2, $3, $4) RETURNING id, room_id, user_id, message, created_at",
		roomId,
		userId,
		content,
		time.Now().UTC(),
	)

	var msg Message
	err := res.Scan(
		&msg.Id,
		&msg.RoomId,
		&msg.UserId,
		&msg.Content,
		&msg.CreatedAt,
	)

	return msg, err
}

func (db *PgWatchRoomRepository) ListMessages(roomId, skip, limit int) ([]Message, error) {
	if limit <= 0 {
		limit = 50
	}

	rows, err := db.conn.Query(
		"SELECT m.id, m.room_id, m.user_id, a.username, m.message, m.created_at "+
			"FROM room_messages m JOIN accounts a ON m.user_id = a.id "+
			"WHERE m.room_id = $1 ORDER BY m.created_at OFFSET $2 LIMIT $3",
		roomId,
		skip,
		limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var messages = make([]Message, 0, limit)
	for rows.Next() {
		var msg Message
		if err = rows.Scan(
			&msg.Id,
			&msg.RoomId,
			&msg.UserId,
			&msg.Username,
			&msg.Content,
			&msg.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}

		messages = append(messages, msg)
	}

	return messages, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRoom(s scanner, room *Room) error {
	return s.Scan(
		&room.Id,
		&room.RoomCode,
		&room.RoomName,
		&room.HostUserId,
		&room.ControlMode,
		&room.SourceMode,
		&room.VideoSource,
		&room.ContentHash,
		&room.CurrentTime,
		&room.IsPlaying,
		&room.IsActive,
		&room.CreatedAt,
		&room.UpdatedAt,
	)
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
