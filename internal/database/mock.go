package database

import (
	"github.com/stretchr/testify/mock"
)

type MockWatchRoomRepository struct {
	mock.Mock
}

func (m *MockWatchRoomRepository) Ping() error {
	args := m.Called()
	return args.Error(0)
}
func (m *MockWatchRoomRepository) CreateAccount(params CreateAccountParams) (User, error) {
	args := m.Called(params)
	return args.Get(0).(User), args.Error(1)
}
func (m *MockWatchRoomRepository) GetAccountById(userId int) (User, error) {
	args := m.Called(userId)
	return args.Get(0).(User), args.Error(1)
}
func (m *MockWatchRoomRepository) GetAccountByEmail(email string) (User, error) {
	args := m.Called(email)
	return args.Get(0).(User), args.Error(1)
}
func (m *MockWatchRoomRepository) CreateRoom(params CreateRoomParams) (Room, error) {
	args := m.Called(params)
	return args.Get(0).(Room), args.Error(1)
}
func (m *MockWatchRoomRepository) GetRoomById(roomId int) (Room, error) {
	args := m.Called(roomId)
	return args.Get(0).(Room), args.Error(1)
}
func (m *MockWatchRoomRepository) GetRoomByCode(roomCode string) (Room, error) {
	args := m.Called(roomCode)
	return args.Get(0).(Room), args.Error(1)
}
func (m *MockWatchRoomRepository) RoomCodeInUse(roomCode string) (bool, error) {
	args := m.Called(roomCode)
	return args.Bool(0), args.Error(1)
}
func (m *MockWatchRoomRepository) UpdateRoomPlayback(roomId int, currentTime float64, isPlaying bool) error {
	args := m.Called(roomId, currentTime, isPlaying)
	return args.Error(0)
}
func (m *MockWatchRoomRepository) UpdateRoomControlMode(roomId int, controlMode string) error {
	args := m.Called(roomId, controlMode)
	return args.Error(0)
}
func (m *MockWatchRoomRepository) SetRoomActive(roomId int, active bool) error {
	args := m.Called(roomId, active)
	return args.Error(0)
}
func (m *MockWatchRoomRepository) DeleteRoom(roomId int) error {
	args := m.Called(roomId)
	return args.Error(0)
}
func (m *MockWatchRoomRepository) ListRoomsForUser(userId, skip, limit int) ([]Room, error) {
	args := m.Called(userId, skip, limit)
	return args.Get(0).([]Room), args.Error(1)
}
func (m *MockWatchRoomRepository) ListRooms(activeOnly bool) ([]Room, error) {
	args := m.Called(activeOnly)
	return args.Get(0).([]Room), args.Error(1)
}
func (m *MockWatchRoomRepository) AddMember(roomId, userId int, nickname string) (Member, error) {
	args := m.Called(roomId, userId, nickname)
	return args.Get(0).(Member), args.Error(1)
}
func (m *MockWatchRoomRepository) GetMember(roomId, userId int) (Member, error) {
	args := m.Called(roomId, userId)
	return args.Get(0).(Member), args.Error(1)
}
func (m *MockWatchRoomRepository) SetMemberOnline(roomId, userId int, online bool) error {
	args := m.Called(roomId, userId, online)
	return args.Error(0)
}
func (m *MockWatchRoomRepository) ListMembers(roomId int, onlineOnly bool) ([]Member, error) {
	args := m.Called(roomId, onlineOnly)
	return args.Get(0).([]Member), args.Error(1)
}
func (m *MockWatchRoomRepository) IsMember(roomId, userId int) bool {
	args := m.Called(roomId, userId)
	return args.Bool(0)
}
func (m *MockWatchRoomRepository) AddMessage(roomId, userId int, content string) (Message, error) {
	args := m.Called(roomId, userId, content)
	return args.Get(0).(Message), args.Error(1)
}
func (m *MockWatchRoomRepository) ListMessages(roomId, skip, limit int) ([]Message, error) {
	args := m.Called(roomId, skip, limit)
	return args.Get(0).([]Message), args.Error(1)
}
