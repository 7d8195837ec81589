package server

import (
	"encoding/json"
	"log"
	"sync"
	"time"

	"github.com/bluealbum/watchroom/internal/session"
	"github.com/bluealbum/watchroom/internal/types"
	"github.com/gorilla/websocket"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingInterval   = (pongWait * 9) / 10
	maxEventSize   = 2048
	sendBufferSize = 256
)

// Client is one live websocket connection bound to an authenticated
// user. It tracks which rooms this connection attached to, so an
// abrupt disconnect can be turned into explicit leaves.
type Client struct {
	id      string
	conn    *websocket.Conn
	gateway *Gateway
	log     *log.Logger
	user    types.User

	send chan *ServerEvent

	// rooms maps room id to whether the attach was stealth
	rooms     map[int]bool
	roomsLock sync.RWMutex

	stop     chan struct{}
	stopOnce sync.Once
}

func NewClient(id string, user types.User, conn *websocket.Conn, gw *Gateway, l *log.Logger) *Client {
	return &Client{
		id:      id,
		conn:    conn,
		gateway: gw,
		log:     l,
		user:    user,
		send:    make(chan *ServerEvent, sendBufferSize),
		rooms:   make(map[int]bool),
		stop:    make(chan struct{}),
	}
}

// ConnId implements presence.Handle.
func (c *Client) ConnId() string {
	return c.id
}

func (c *Client) Write() {
	ticker := time.NewTicker(pingInterval)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case evt, ok := <-c.send:
			if !ok {
				return
			}

			bytes, err := json.Marshal(evt)
			if err != nil {
				c.log.Println("failed to serialize event:", err)
				continue
			}

			if !c.sendMessage(websocket.TextMessage, bytes) {
				return
			}
		case <-c.stop:
			return
		case <-ticker.C:
			if !c.sendMessage(websocket.PingMessage, nil) {
				return
			}
		}
	}
}

func (c *Client) Read() {
	defer func() {
		c.conn.Close()
		c.cleanup()
	}()

	c.conn.SetReadLimit(maxEventSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(appData string) error { c.conn.SetReadDeadline(time.Now().Add(pongWait)); return nil })
	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure,
				websocket.CloseNormalClosure) {
				c.log.Printf("ws: read: %v", err)
			}
			break
		}

		var evt ClientEvent
		if err := json.Unmarshal(raw, &evt); err != nil {
			c.log.Println("error parsing event:", err)
			c.queueEvent(ErrInvalidEvent(0))
			continue
		}

		c.dispatch(&evt)
	}
}

func (c *Client) dispatch(evt *ClientEvent) {
	switch {
	case evt.Join != nil:
		c.handleJoin(evt)
	case evt.Leave != nil:
		c.handleLeave(evt)
	case evt.Control != nil:
		c.handleControl(evt)
	case evt.Message != nil:
		c.handleMessage(evt)
	case evt.SyncRequest != nil:
		c.handleSyncRequest(evt)
	case evt.TimeUpdate != nil:
		c.handleTimeUpdate(evt)
	default:
		c.queueEvent(ErrInvalidEvent(evt.Id))
	}
}

func (c *Client) handleJoin(evt *ClientEvent) {
	join := evt.Join
	if join.RoomId == 0 {
		c.queueEvent(ErrInvalidEvent(evt.Id))
		return
	}

	res, err := c.gateway.manager.Attach(join.RoomId, c.user.Id, c, join.Stealth)
	if err != nil {
		c.queueEvent(sessionErrEvent(evt.Id, err))
		return
	}

	// last connection wins: detach the room from any displaced client
	if prev, ok := res.Replaced.(*Client); ok && prev != c {
		prev.delRoom(join.RoomId)
	}

	c.addRoom(join.RoomId, join.Stealth)

	c.queueEvent(&ServerEvent{
		BaseEvent: BaseEvent{Id: evt.Id, Timestamp: Now()},
		JoinSuccess: &JoinSuccess{
			RoomId:  join.RoomId,
			Room:    res.Room,
			Members: res.Members,
		},
	})

	if !join.Stealth {
		c.gateway.broadcast(join.RoomId, &ServerEvent{
			BaseEvent: BaseEvent{Timestamp: Now()},
			MemberJoined: &MemberJoined{
				RoomId:   join.RoomId,
				UserId:   c.user.Id,
				Username: c.user.Username,
				Nickname: join.Nickname,
			},
			SkipConnId: c.id,
		})
	}

	c.log.Printf("user %q joined room %d", c.user.Username, join.RoomId)
}

func (c *Client) handleLeave(evt *ClientEvent) {
	leave := evt.Leave
	if leave.RoomId == 0 {
		c.queueEvent(ErrInvalidEvent(evt.Id))
		return
	}

	c.leaveRoom(leave.RoomId, false)
}

// leaveRoom runs the leave flow for one room. With skipSelf set the
// member_left broadcast skips this connection (disconnect cleanup,
// the socket is already gone).
func (c *Client) leaveRoom(roomId int, skipSelf bool) {
	stealth := c.roomStealth(roomId)

	res, err := c.gateway.manager.LeaveRoom(roomId, c.user.Id, c.id, stealth)
	if err != nil {
		c.log.Printf("leave room %d: %v", roomId, err)
	}

	c.delRoom(roomId)

	if res.WasPresent && !stealth {
		out := &ServerEvent{
			BaseEvent:  BaseEvent{Timestamp: Now()},
			MemberLeft: &MemberLeft{RoomId: roomId, UserId: c.user.Id},
		}
		if skipSelf {
			out.SkipConnId = c.id
		}
		c.gateway.broadcast(roomId, out)
	}

	if res.ControlModeChanged {
		c.gateway.NotifyControlModeChanged(roomId, types.ControlModeAllMembers)
	}

	c.log.Printf("user %q left room %d", c.user.Username, roomId)
}

func (c *Client) handleControl(evt *ClientEvent) {
	ctl := evt.Control
	if ctl.RoomId == 0 || ctl.Action == "" {
		c.queueEvent(ErrInvalidEvent(evt.Id))
		return
	}

	state, err := c.gateway.manager.ApplyControl(ctl.RoomId, c.user.Id, ctl.Action, ctl.Time, ctl.Rate)
	if err != nil {
		c.queueEvent(sessionErrEvent(evt.Id, err))
		return
	}

	// everyone gets the committed snapshot, sender included
	c.gateway.broadcast(ctl.RoomId, &ServerEvent{
		BaseEvent: BaseEvent{Timestamp: Now()},
		PlaybackSync: &PlaybackSync{
			RoomId:    ctl.RoomId,
			Action:    ctl.Action,
			Time:      state.CurrentTime,
			Rate:      ctl.Rate,
			IsPlaying: state.IsPlaying,
			UserId:    c.user.Id,
		},
	})
}

func (c *Client) handleMessage(evt *ClientEvent) {
	msg := evt.Message
	if msg.RoomId == 0 {
		c.queueEvent(ErrInvalidEvent(evt.Id))
		return
	}

	posted, err := c.gateway.manager.PostMessage(msg.RoomId, c.user.Id, msg.Message)
	if err != nil {
		c.queueEvent(sessionErrEvent(evt.Id, err))
		return
	}

	posted.Username = c.user.Username
	c.gateway.broadcast(msg.RoomId, &ServerEvent{
		BaseEvent:  BaseEvent{Id: evt.Id, Timestamp: Now()},
		NewMessage: &posted,
	})
}

func (c *Client) handleSyncRequest(evt *ClientEvent) {
	req := evt.SyncRequest
	if req.RoomId == 0 {
		c.queueEvent(ErrInvalidEvent(evt.Id))
		return
	}

	state, hostId, err := c.gateway.manager.SyncSnapshot(req.RoomId, c.user.Id, c.roomStealth(req.RoomId))
	if err != nil {
		c.queueEvent(sessionErrEvent(evt.Id, err))
		return
	}

	// snapshot goes to the requester only, attributed to the host
	c.queueEvent(&ServerEvent{
		BaseEvent: BaseEvent{Id: evt.Id, Timestamp: Now()},
		PlaybackSync: &PlaybackSync{
			RoomId:    req.RoomId,
			Action:    session.ActionSync,
			Time:      state.CurrentTime,
			IsPlaying: state.IsPlaying,
			UserId:    hostId,
		},
	})
}

func (c *Client) handleTimeUpdate(evt *ClientEvent) {
	upd := evt.TimeUpdate
	if upd.RoomId == 0 || upd.Time == nil {
		return
	}

	// unauthorized time updates are dropped silently, no error traffic
	// for a periodic ticker event
	if err := c.gateway.manager.AuthorizeControl(upd.RoomId, c.user.Id); err != nil {
		return
	}

	c.gateway.broadcast(upd.RoomId, &ServerEvent{
		BaseEvent: BaseEvent{Timestamp: Now()},
		TimeSync: &TimeSync{
			RoomId: upd.RoomId,
			Time:   *upd.Time,
			UserId: c.user.Id,
		},
		SkipConnId: c.id,
	})
}

func (c *Client) queueEvent(evt *ServerEvent) bool {
	select {
	case c.send <- evt:
	default:
		c.log.Println("failed to queue event, client channel is full")
		return false
	}

	return true
}

func (c *Client) sendMessage(msgType int, msg []byte) bool {
	c.conn.SetWriteDeadline(time.Now().Add(writeWait))

	if err := c.conn.WriteMessage(msgType, msg); err != nil {
		if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure,
			websocket.CloseNormalClosure) {
			c.log.Printf("write message: %s", err)
		}
		return false
	}

	return true
}

func (c *Client) stopClient() {
	c.stopOnce.Do(func() {
		close(c.stop)
	})
}

// cleanup turns a dropped socket into explicit leaves for every room
// this connection attached. Leave processing completes even though the
// socket is already gone.
func (c *Client) cleanup() {
	for _, roomId := range c.roomIds() {
		c.leaveRoom(roomId, true)
	}

	c.gateway.removeClient(c)
	c.stopClient()
}

func (c *Client) addRoom(roomId int, stealth bool) {
	c.roomsLock.Lock()
	defer c.roomsLock.Unlock()

	c.rooms[roomId] = stealth
}

func (c *Client) delRoom(roomId int) {
	c.roomsLock.Lock()
	defer c.roomsLock.Unlock()

	delete(c.rooms, roomId)
}

func (c *Client) roomStealth(roomId int) bool {
	c.roomsLock.RLock()
	defer c.roomsLock.RUnlock()

	return c.rooms[roomId]
}

func (c *Client) roomIds() []int {
	c.roomsLock.RLock()
	defer c.roomsLock.RUnlock()

	ids := make([]int, 0, len(c.rooms))
	for id := range c.rooms {
		ids = append(ids, id)
	}

	return ids
}
