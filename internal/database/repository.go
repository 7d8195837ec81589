package database

type WatchRoomRepository interface {
	Ping() error

	CreateAccount(params CreateAccountParams) (User, error)
	GetAccountById(userId int) (User, error)
	GetAccountByEmail(email string) (User, error)

	CreateRoom(params CreateRoomParams) (Room, error)
	GetRoomById(roomId int) (Room, error)
	GetRoomByCode(roomCode string) (Room, error)
	RoomCodeInUse(roomCode string) (bool, error)
	UpdateRoomPlayback(roomId int, currentTime float64, isPlaying bool) error
	UpdateRoomControlMode(roomId int, controlMode string) error
	SetRoomActive(roomId int, active bool) error
	DeleteRoom(roomId int) error
	ListRoomsForUser(userId, skip, limit int) ([]Room, error)
	ListRooms(activeOnly bool) ([]Room, error)

	AddMember(roomId, userId int, nickname string) (Member, error)
	GetMember(roomId, userId int) (Member, error)
	SetMemberOnline(roomId, userId int, online bool) error
	ListMembers(roomId int, onlineOnly bool) ([]Member, error)
	IsMember(roomId, userId int) bool

	AddMessage(roomId, userId int, content string) (Message, error)
	ListMessages(roomId, skip, limit int) ([]Message, error)
}
