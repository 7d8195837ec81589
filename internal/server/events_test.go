package server

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/bluealbum/watchroom/internal/session"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClientEventDecoding(t *testing.T) {
	raw := `{"id":3,"control":{"room_id":1,"action":"seek","time":42.5}}`

	var evt ClientEvent
	require.NoError(t, json.Unmarshal([]byte(raw), &evt))
	assert.Equal(t, 3, evt.Id)
	require.NotNil(t, evt.Control)
	assert.Equal(t, 1, evt.Control.RoomId)
	assert.Equal(t, "seek", evt.Control.Action)
	require.NotNil(t, evt.Control.Time)
	assert.Equal(t, 42.5, *evt.Control.Time)
	assert.Nil(t, evt.Control.Rate)
	assert.Nil(t, evt.Join)
}

func TestServerEventSerialization(t *testing.T) {
	evt := &ServerEvent{
		BaseEvent: BaseEvent{Id: 1, Timestamp: Now()},
		PlaybackSync: &PlaybackSync{
			RoomId:    1,
			Action:    session.ActionPause,
			Time:      42.5,
			IsPlaying: false,
			UserId:    2,
		},
		SkipConnId: "conn-1",
	}

	expected := `{"id":1,"timestamp":"` + evt.Timestamp.Format(time.RFC3339Nano) +
		`","playback_sync":{"room_id":1,"action":"pause","time":42.5,"is_playing":false,"user_id":2}}`

	bytes, err := json.Marshal(evt)
	require.NoError(t, err)
	assert.Equal(t, expected, string(bytes), "SkipConnId must never hit the wire")
}

func TestSessionErrEvent(t *testing.T) {
	tcases := []struct {
		name     string
		err      error
		expected string
	}{
		{
			name:     "room not found",
			err:      session.ErrRoomNotFound,
			expected: "room not found",
		},
		{
			name:     "closed room reads as not found",
			err:      session.ErrRoomClosed,
			expected: "room not found",
		},
		{
			name:     "forbidden keeps its message",
			err:      session.ErrNotMember,
			expected: session.ErrNotMember.Error(),
		},
		{
			name:     "invalid argument keeps its message",
			err:      session.ErrMessageTooLong,
			expected: session.ErrMessageTooLong.Error(),
		},
		{
			name:     "store outage",
			err:      session.ErrStoreUnavailable,
			expected: "service unavailable",
		},
		{
			name:     "anything else is internal",
			err:      errors.New("boom"),
			expected: "internal server error",
		},
	}

	for _, tc := range tcases {
		t.Run(tc.name, func(t *testing.T) {
			evt := sessionErrEvent(5, tc.err)
			require.NotNil(t, evt.Error)
			assert.Equal(t, 5, evt.Id)
			assert.Equal(t, tc.expected, evt.Error.Message)
		})
	}
}
