package api

import (
	"bytes"
	"database/sql"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/bluealbum/watchroom/internal/config"
	"github.com/bluealbum/watchroom/internal/database"
	"github.com/bluealbum/watchroom/internal/presence"
	"github.com/bluealbum/watchroom/internal/server"
	"github.com/bluealbum/watchroom/internal/session"
	"github.com/bluealbum/watchroom/internal/stats"
	"github.com/bluealbum/watchroom/internal/testutil"
	"github.com/bluealbum/watchroom/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// newFullTestApp wires a real manager, gateway and reaper over the
// mocked repository, for handlers that drive room operations.
func newFullTestApp(t *testing.T, mockRepo *database.MockWatchRoomRepository) *WatchRoomApp {
	t.Helper()
	registry := presence.NewRegistry()
	manager := session.NewManager(testutil.TestLogger(t), mockRepo, registry, &stats.MockStatsUpdater{})
	gateway := server.NewGateway(testutil.TestLogger(t), manager, registry, &stats.MockStatsUpdater{})
	reaper := session.NewReaper(testutil.TestLogger(t), manager, gateway, time.Minute, time.Minute)

	return NewWatchRoomApp(
		http.NewServeMux(),
		testutil.TestLogger(t),
		mockRepo,
		gateway,
		manager,
		reaper,
		&config.Config{
			SigningKey: []byte("test-signing-key"),
		},
	)
}

func jsonBody(t *testing.T, v any) *bytes.Buffer {
	t.Helper()
	buf := &bytes.Buffer{}
	require.NoError(t, json.NewEncoder(buf).Encode(v))
	return buf
}

func authedRequest(method, target string, body *bytes.Buffer, userId int) *http.Request {
	if body == nil {
		body = &bytes.Buffer{}
	}
	req := httptest.NewRequest(method, target, body)
	return req.WithContext(WithUserId(req.Context(), userId))
}

func findCookie(rr *httptest.ResponseRecorder, name string) *http.Cookie {
	for _, cookie := range rr.Result().Cookies() {
		if cookie.Name == name {
			return cookie
		}
	}
	return nil
}

func testApiRoom() database.Room {
	return database.Room{
		Id:          1,
		RoomCode:    "ABC123",
		RoomName:    "movie night",
		HostUserId:  1,
		ControlMode: types.ControlModeHostOnly,
		SourceMode:  types.SourceModeLink,
		IsActive:    true,
	}
}

func Test_healthCheck(t *testing.T) {
	tcases := []struct {
		name    string
		mockErr error
	}{
		{
			name:    "successful health check",
			mockErr: nil,
		},
		{
			name:    "failed health check",
			mockErr: errors.New("db error"),
		},
	}

	for _, tc := range tcases {
		t.Run(tc.name, func(t *testing.T) {
			mockRepo := &database.MockWatchRoomRepository{}
			defer mockRepo.AssertExpectations(t)
			app := newTestApp(t, mockRepo)

			mockRepo.On("Ping").Return(tc.mockErr).Once()

			rr := httptest.NewRecorder()
			req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
			app.healthCheck(rr, req)

			if tc.mockErr != nil {
				assert.Equal(t, http.StatusInternalServerError, rr.Code)
			} else {
				assert.Equal(t, http.StatusOK, rr.Code)
				assert.Equal(t, "OK", rr.Body.String())
			}
		})
	}
}

func TestCreateAccountHandler(t *testing.T) {
	newUser := database.User{
		Id:           1,
		Username:     "newuser",
		EmailAddress: "newuser@example.com",
		Role:         types.RoleUser,
	}

	tcases := []struct {
		name         string
		body         any
		mockErr      error
		expectCreate bool
		expectedCode int
	}{
		{
			name: "successfully creates a new account",
			body: RegisterRequest{
				Username: "newuser",
				Email:    "newuser@example.com",
				Password: "password",
			},
			expectCreate: true,
			expectedCode: http.StatusCreated,
		},
		{
			name:         "invalid json body",
			body:         "invalid json",
			expectedCode: http.StatusBadRequest,
		},
		{
			name: "missing username",
			body: RegisterRequest{
				Email:    "newuser@example.com",
				Password: "password",
			},
			expectedCode: http.StatusBadRequest,
		},
		{
			name: "missing password",
			body: RegisterRequest{
				Username: "newuser",
				Email:    "newuser@example.com",
			},
			expectedCode: http.StatusBadRequest,
		},
		{
			name: "database error",
			body: RegisterRequest{
				Username: "newuser",
				Email:    "newuser@example.com",
				Password: "password",
			},
			mockErr:      errors.New("db error"),
			expectCreate: true,
			expectedCode: http.StatusInternalServerError,
		},
	}

	for _, tc := range tcases {
		t.Run(tc.name, func(t *testing.T) {
			mockRepo := &database.MockWatchRoomRepository{}
			defer mockRepo.AssertExpectations(t)
			app := newTestApp(t, mockRepo)

			if tc.expectCreate {
				mockRepo.On("CreateAccount", mock.MatchedBy(func(p database.CreateAccountParams) bool {
					return p.Username == "newuser" && p.Role == types.RoleUser &&
						verifyPassword(p.PasswordHash, "password")
				})).Return(newUser, tc.mockErr).Once()
			}

			rr := httptest.NewRecorder()
			req := httptest.NewRequest(http.MethodPost, "/api/auth/register", jsonBody(t, tc.body))
			app.createAccount(rr, req)

			assert.Equal(t, tc.expectedCode, rr.Code)
			if tc.expectedCode == http.StatusCreated {
				var got types.User
				require.NoError(t, json.NewDecoder(rr.Body).Decode(&got))
				assert.Equal(t, newUser.Id, got.Id)
				assert.Equal(t, newUser.Username, got.Username)
			}
		})
	}
}

func TestLoginHandler(t *testing.T) {
	passwordHash, err := hashPassword("password")
	require.NoError(t, err)

	activeUser := database.User{
		Id:           1,
		Username:     "frank",
		EmailAddress: "frank@example.com",
		PasswordHash: passwordHash,
		Role:         types.RoleUser,
		IsActive:     true,
	}

	tcases := []struct {
		name         string
		body         any
		mockUser     database.User
		mockErr      error
		expectLookup bool
		expectedCode int
		expectCookie bool
	}{
		{
			name:         "successful login",
			body:         LoginRequest{Email: "frank@example.com", Password: "password"},
			mockUser:     activeUser,
			expectLookup: true,
			expectedCode: http.StatusOK,
			expectCookie: true,
		},
		{
			name:         "wrong password",
			body:         LoginRequest{Email: "frank@example.com", Password: "nope"},
			mockUser:     activeUser,
			expectLookup: true,
			expectedCode: http.StatusUnauthorized,
		},
		{
			name: "deactivated account",
			body: LoginRequest{Email: "frank@example.com", Password: "password"},
			mockUser: func() database.User {
				u := activeUser
				u.IsActive = false
				return u
			}(),
			expectLookup: true,
			expectedCode: http.StatusUnauthorized,
		},
		{
			name:         "unknown email",
			body:         LoginRequest{Email: "frank@example.com", Password: "password"},
			mockErr:      sql.ErrNoRows,
			expectLookup: true,
			expectedCode: http.StatusNotFound,
		},
		{
			name:         "missing credentials",
			body:         LoginRequest{Email: "frank@example.com"},
			expectedCode: http.StatusBadRequest,
		},
		{
			name:         "invalid json",
			body:         "invalid json",
			expectedCode: http.StatusBadRequest,
		},
	}

	for _, tc := range tcases {
		t.Run(tc.name, func(t *testing.T) {
			mockRepo := &database.MockWatchRoomRepository{}
			defer mockRepo.AssertExpectations(t)
			app := newTestApp(t, mockRepo)

			if tc.expectLookup {
				mockRepo.On("GetAccountByEmail", "frank@example.com").Return(tc.mockUser, tc.mockErr).Once()
			}

			rr := httptest.NewRecorder()
			req := httptest.NewRequest(http.MethodPost, "/api/auth/login", jsonBody(t, tc.body))
			app.login(rr, req)

			assert.Equal(t, tc.expectedCode, rr.Code)

			cookie := findCookie(rr, tokenCookieKey)
			if tc.expectCookie {
				require.NotNil(t, cookie, "expected a session cookie")
				userId, err := app.extractUserIdFromToken(cookie.Value)
				require.NoError(t, err)
				assert.Equal(t, activeUser.Id, userId)
			} else {
				assert.Nil(t, cookie)
			}
		})
	}
}

func TestSessionHandler(t *testing.T) {
	mockRepo := &database.MockWatchRoomRepository{}
	defer mockRepo.AssertExpectations(t)
	app := newTestApp(t, mockRepo)

	mockRepo.On("GetAccountById", 1).Return(database.User{
		Id:       1,
		Username: "frank",
		Role:     types.RoleUser,
	}, nil).Once()

	rr := httptest.NewRecorder()
	app.session(rr, authedRequest(http.MethodGet, "/api/auth/session", nil, 1))

	assert.Equal(t, http.StatusOK, rr.Code)

	var got types.User
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&got))
	assert.Equal(t, "frank", got.Username)
}

func TestLogoutHandler(t *testing.T) {
	app := newTestApp(t, &database.MockWatchRoomRepository{})

	rr := httptest.NewRecorder()
	app.logout(rr, httptest.NewRequest(http.MethodGet, "/api/auth/logout", nil))

	assert.Equal(t, http.StatusNoContent, rr.Code)

	cookie := findCookie(rr, tokenCookieKey)
	require.NotNil(t, cookie)
	assert.Empty(t, cookie.Value, "logout must clear the token")
	assert.True(t, cookie.Expires.Before(time.Now().Add(time.Minute)))
}

func TestCreateRoomHandler(t *testing.T) {
	t.Run("successful create", func(t *testing.T) {
		mockRepo := &database.MockWatchRoomRepository{}
		defer mockRepo.AssertExpectations(t)
		app := newFullTestApp(t, mockRepo)

		mockRepo.On("RoomCodeInUse", mock.AnythingOfType("string")).Return(false, nil).Once()
		mockRepo.On("CreateRoom", mock.MatchedBy(func(p database.CreateRoomParams) bool {
			return p.RoomName == "movie night" && p.HostUserId == 1
		})).Return(testApiRoom(), nil).Once()

		body := jsonBody(t, CreateRoomRequest{RoomName: "movie night"})
		rr := httptest.NewRecorder()
		app.createRoom(rr, authedRequest(http.MethodPost, "/api/rooms", body, 1))

		assert.Equal(t, http.StatusCreated, rr.Code)

		var got types.Room
		require.NoError(t, json.NewDecoder(rr.Body).Decode(&got))
		assert.Equal(t, "ABC123", got.RoomCode)
	})

	t.Run("invalid control mode", func(t *testing.T) {
		app := newFullTestApp(t, &database.MockWatchRoomRepository{})

		body := jsonBody(t, CreateRoomRequest{RoomName: "movie night", ControlMode: "dictator"})
		rr := httptest.NewRecorder()
		app.createRoom(rr, authedRequest(http.MethodPost, "/api/rooms", body, 1))

		assert.Equal(t, http.StatusBadRequest, rr.Code)
	})
}

func TestGetRoomsHandler(t *testing.T) {
	t.Run("lookup by code", func(t *testing.T) {
		mockRepo := &database.MockWatchRoomRepository{}
		defer mockRepo.AssertExpectations(t)
		app := newFullTestApp(t, mockRepo)

		mockRepo.On("GetRoomByCode", "ABC123").Return(testApiRoom(), nil).Once()

		rr := httptest.NewRecorder()
		app.getRooms(rr, authedRequest(http.MethodGet, "/api/rooms?code=ABC123", nil, 2))

		assert.Equal(t, http.StatusOK, rr.Code)

		var got types.Room
		require.NoError(t, json.NewDecoder(rr.Body).Decode(&got))
		assert.Equal(t, 1, got.Id)
	})

	t.Run("unknown code", func(t *testing.T) {
		mockRepo := &database.MockWatchRoomRepository{}
		defer mockRepo.AssertExpectations(t)
		app := newFullTestApp(t, mockRepo)

		mockRepo.On("GetRoomByCode", "ZZZZZZ").Return(database.Room{}, sql.ErrNoRows).Once()

		rr := httptest.NewRecorder()
		app.getRooms(rr, authedRequest(http.MethodGet, "/api/rooms?code=ZZZZZZ", nil, 2))

		assert.Equal(t, http.StatusNotFound, rr.Code)
	})

	t.Run("lists the caller's rooms", func(t *testing.T) {
		mockRepo := &database.MockWatchRoomRepository{}
		defer mockRepo.AssertExpectations(t)
		app := newFullTestApp(t, mockRepo)

		mockRepo.On("ListRoomsForUser", 2, 0, 20).Return([]database.Room{testApiRoom()}, nil).Once()

		rr := httptest.NewRecorder()
		app.getRooms(rr, authedRequest(http.MethodGet, "/api/rooms", nil, 2))

		assert.Equal(t, http.StatusOK, rr.Code)

		var got []types.Room
		require.NoError(t, json.NewDecoder(rr.Body).Decode(&got))
		assert.Len(t, got, 1)
	})

	t.Run("invalid pagination", func(t *testing.T) {
		app := newFullTestApp(t, &database.MockWatchRoomRepository{})

		rr := httptest.NewRecorder()
		app.getRooms(rr, authedRequest(http.MethodGet, "/api/rooms?skip=-1", nil, 2))

		assert.Equal(t, http.StatusBadRequest, rr.Code)
	})
}

func TestJoinRoomHandler(t *testing.T) {
	t.Run("successful join by code", func(t *testing.T) {
		mockRepo := &database.MockWatchRoomRepository{}
		defer mockRepo.AssertExpectations(t)
		app := newFullTestApp(t, mockRepo)

		mockRepo.On("GetRoomByCode", "ABC123").Return(testApiRoom(), nil).Once()
		mockRepo.On("GetRoomById", 1).Return(testApiRoom(), nil).Once()
		mockRepo.On("GetMember", 1, 2).Return(database.Member{}, sql.ErrNoRows).Once()
		mockRepo.On("AddMember", 1, 2, "frankie").Return(database.Member{
			Id: 5, RoomId: 1, UserId: 2, Username: "frank",
			Nickname: sql.NullString{String: "frankie", Valid: true},
			IsOnline: true, LastActiveAt: time.Now().UTC(), JoinedAt: time.Now().UTC(),
		}, nil).Once()

		body := jsonBody(t, JoinRoomRequest{RoomCode: "ABC123", Nickname: "frankie"})
		rr := httptest.NewRecorder()
		app.joinRoom(rr, authedRequest(http.MethodPost, "/api/rooms/join", body, 2))

		assert.Equal(t, http.StatusOK, rr.Code)

		var got struct {
			Room   types.Room   `json:"room"`
			Member types.Member `json:"member"`
		}
		require.NoError(t, json.NewDecoder(rr.Body).Decode(&got))
		assert.Equal(t, "ABC123", got.Room.RoomCode)
		assert.Equal(t, 2, got.Member.UserId)
		assert.Equal(t, "frank", got.Member.Username)
		assert.Equal(t, "frankie", got.Member.Nickname)
		assert.False(t, got.Member.JoinedAt.IsZero())
	})

	t.Run("unknown code", func(t *testing.T) {
		mockRepo := &database.MockWatchRoomRepository{}
		defer mockRepo.AssertExpectations(t)
		app := newFullTestApp(t, mockRepo)

		mockRepo.On("GetRoomByCode", "ZZZZZZ").Return(database.Room{}, sql.ErrNoRows).Once()

		body := jsonBody(t, JoinRoomRequest{RoomCode: "ZZZZZZ"})
		rr := httptest.NewRecorder()
		app.joinRoom(rr, authedRequest(http.MethodPost, "/api/rooms/join", body, 2))

		assert.Equal(t, http.StatusNotFound, rr.Code)
	})

	t.Run("missing code", func(t *testing.T) {
		app := newFullTestApp(t, &database.MockWatchRoomRepository{})

		body := jsonBody(t, JoinRoomRequest{})
		rr := httptest.NewRecorder()
		app.joinRoom(rr, authedRequest(http.MethodPost, "/api/rooms/join", body, 2))

		assert.Equal(t, http.StatusBadRequest, rr.Code)
	})
}

func TestLeaveRoomHandler(t *testing.T) {
	t.Run("member leaves", func(t *testing.T) {
		mockRepo := &database.MockWatchRoomRepository{}
		defer mockRepo.AssertExpectations(t)
		app := newFullTestApp(t, mockRepo)

		mockRepo.On("GetRoomById", 1).Return(testApiRoom(), nil).Once()
		mockRepo.On("SetMemberOnline", 1, 2, false).Return(nil).Once()

		body := jsonBody(t, LeaveRoomRequest{RoomId: 1})
		rr := httptest.NewRecorder()
		app.leaveRoom(rr, authedRequest(http.MethodPost, "/api/rooms/leave", body, 2))

		assert.Equal(t, http.StatusNoContent, rr.Code)
	})

	t.Run("host leave escalates control mode", func(t *testing.T) {
		mockRepo := &database.MockWatchRoomRepository{}
		defer mockRepo.AssertExpectations(t)
		app := newFullTestApp(t, mockRepo)

		mockRepo.On("GetRoomById", 1).Return(testApiRoom(), nil).Once()
		mockRepo.On("SetMemberOnline", 1, 1, false).Return(nil).Once()
		mockRepo.On("UpdateRoomControlMode", 1, types.ControlModeAllMembers).Return(nil).Once()

		body := jsonBody(t, LeaveRoomRequest{RoomId: 1})
		rr := httptest.NewRecorder()
		app.leaveRoom(rr, authedRequest(http.MethodPost, "/api/rooms/leave", body, 1))

		assert.Equal(t, http.StatusNoContent, rr.Code)
	})
}

func TestDeleteRoomHandler(t *testing.T) {
	t.Run("host closes the room", func(t *testing.T) {
		mockRepo := &database.MockWatchRoomRepository{}
		defer mockRepo.AssertExpectations(t)
		app := newFullTestApp(t, mockRepo)

		mockRepo.On("GetRoomById", 1).Return(testApiRoom(), nil).Once()
		mockRepo.On("SetRoomActive", 1, false).Return(nil).Once()

		rr := httptest.NewRecorder()
		app.deleteRoom(rr, authedRequest(http.MethodDelete, "/api/rooms?id=1", nil, 1))

		assert.Equal(t, http.StatusNoContent, rr.Code)
	})

	t.Run("non-host rejected", func(t *testing.T) {
		mockRepo := &database.MockWatchRoomRepository{}
		defer mockRepo.AssertExpectations(t)
		app := newFullTestApp(t, mockRepo)

		mockRepo.On("GetRoomById", 1).Return(testApiRoom(), nil).Once()
		mockRepo.On("GetAccountById", 2).Return(database.User{Id: 2, Role: types.RoleUser}, nil).Once()

		rr := httptest.NewRecorder()
		app.deleteRoom(rr, authedRequest(http.MethodDelete, "/api/rooms?id=1", nil, 2))

		assert.Equal(t, http.StatusForbidden, rr.Code)
		mockRepo.AssertNotCalled(t, "SetRoomActive", mock.Anything, mock.Anything)
	})

	t.Run("missing id", func(t *testing.T) {
		app := newFullTestApp(t, &database.MockWatchRoomRepository{})

		rr := httptest.NewRecorder()
		app.deleteRoom(rr, authedRequest(http.MethodDelete, "/api/rooms", nil, 1))

		assert.Equal(t, http.StatusBadRequest, rr.Code)
	})
}

func TestGetMessagesHandler(t *testing.T) {
	t.Run("member reads history", func(t *testing.T) {
		mockRepo := &database.MockWatchRoomRepository{}
		defer mockRepo.AssertExpectations(t)
		app := newFullTestApp(t, mockRepo)

		mockRepo.On("IsMember", 1, 2).Return(true).Once()
		mockRepo.On("ListMessages", 1, 0, 50).Return([]database.Message{
			{Id: 7, RoomId: 1, UserId: 2, Username: "frank", Content: "hello"},
		}, nil).Once()

		rr := httptest.NewRecorder()
		app.getMessages(rr, authedRequest(http.MethodGet, "/api/messages?room_id=1", nil, 2))

		assert.Equal(t, http.StatusOK, rr.Code)

		var got []types.Message
		require.NoError(t, json.NewDecoder(rr.Body).Decode(&got))
		require.Len(t, got, 1)
		assert.Equal(t, "hello", got[0].Content)
	})

	t.Run("non-member rejected", func(t *testing.T) {
		mockRepo := &database.MockWatchRoomRepository{}
		defer mockRepo.AssertExpectations(t)
		app := newFullTestApp(t, mockRepo)

		mockRepo.On("IsMember", 1, 2).Return(false).Once()

		rr := httptest.NewRecorder()
		app.getMessages(rr, authedRequest(http.MethodGet, "/api/messages?room_id=1", nil, 2))

		assert.Equal(t, http.StatusForbidden, rr.Code)
		mockRepo.AssertNotCalled(t, "ListMessages", mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("missing room id", func(t *testing.T) {
		app := newFullTestApp(t, &database.MockWatchRoomRepository{})

		rr := httptest.NewRecorder()
		app.getMessages(rr, authedRequest(http.MethodGet, "/api/messages", nil, 2))

		assert.Equal(t, http.StatusBadRequest, rr.Code)
	})
}

func TestAdminListRoomsHandler(t *testing.T) {
	mockRepo := &database.MockWatchRoomRepository{}
	defer mockRepo.AssertExpectations(t)
	app := newFullTestApp(t, mockRepo)

	inactive := testApiRoom()
	inactive.Id = 2
	inactive.IsActive = false
	mockRepo.On("ListRooms", false).Return([]database.Room{testApiRoom(), inactive}, nil).Once()

	rr := httptest.NewRecorder()
	app.adminListRooms(rr, authedRequest(http.MethodGet, "/api/admin/rooms", nil, 9))

	assert.Equal(t, http.StatusOK, rr.Code)

	var got []types.Room
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&got))
	assert.Len(t, got, 2, "admin listing includes inactive rooms")
}

func TestAdminDeleteRoomHandler(t *testing.T) {
	mockRepo := &database.MockWatchRoomRepository{}
	defer mockRepo.AssertExpectations(t)
	app := newFullTestApp(t, mockRepo)

	mockRepo.On("GetRoomById", 1).Return(testApiRoom(), nil).Once()
	mockRepo.On("DeleteRoom", 1).Return(nil).Once()

	rr := httptest.NewRecorder()
	app.adminDeleteRoom(rr, authedRequest(http.MethodDelete, "/api/admin/rooms?id=1", nil, 9))

	assert.Equal(t, http.StatusNoContent, rr.Code)
}

func TestAdminCleanupHandler(t *testing.T) {
	t.Run("sweeps with the given threshold", func(t *testing.T) {
		mockRepo := &database.MockWatchRoomRepository{}
		defer mockRepo.AssertExpectations(t)
		app := newFullTestApp(t, mockRepo)

		stale := testApiRoom()
		mockRepo.On("ListRooms", false).Return([]database.Room{stale}, nil).Once()
		mockRepo.On("DeleteRoom", 1).Return(nil).Once()

		rr := httptest.NewRecorder()
		app.adminCleanup(rr, authedRequest(http.MethodPost, "/api/admin/cleanup?minutes=1", nil, 9))

		assert.Equal(t, http.StatusOK, rr.Code)

		var got map[string]int
		require.NoError(t, json.NewDecoder(rr.Body).Decode(&got))
		assert.Equal(t, 1, got["reaped"])
	})

	t.Run("invalid minutes", func(t *testing.T) {
		app := newFullTestApp(t, &database.MockWatchRoomRepository{})

		rr := httptest.NewRecorder()
		app.adminCleanup(rr, authedRequest(http.MethodPost, "/api/admin/cleanup?minutes=-5", nil, 9))

		assert.Equal(t, http.StatusBadRequest, rr.Code)
	})
}
