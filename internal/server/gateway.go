// Package server is the event gateway: it owns the websocket clients,
// decodes their events into session manager calls and fans results
// back out to every live connection in the room.
package server

import (
	"log"
	"sync"

	"github.com/bluealbum/watchroom/internal/presence"
	"github.com/bluealbum/watchroom/internal/session"
	"github.com/bluealbum/watchroom/internal/stats"
	"github.com/bluealbum/watchroom/internal/types"
	"github.com/gorilla/websocket"
	"github.com/teris-io/shortid"
)

type Gateway struct {
	log      *log.Logger
	manager  *session.Manager
	registry *presence.Registry
	stats    stats.StatsProvider

	clients     map[*Client]struct{}
	clientsLock sync.Mutex
}

func NewGateway(logger *log.Logger, manager *session.Manager, registry *presence.Registry, sp stats.StatsProvider) *Gateway {
	return &Gateway{
		log:      logger,
		manager:  manager,
		registry: registry,
		stats:    sp,
		clients:  make(map[*Client]struct{}),
	}
}

// Connect registers a new client for an upgraded connection. The
// caller starts the pumps with go client.Write(); go client.Read().
func (g *Gateway) Connect(user types.User, conn *websocket.Conn) (*Client, error) {
	connId, err := shortid.Generate()
	if err != nil {
		return nil, err
	}

	client := NewClient(connId, user, conn, g, g.log)
	g.addClient(client)
	g.log.Printf("connection %s opened for %q", connId, user.Username)

	return client, nil
}

func (g *Gateway) addClient(c *Client) {
	g.clientsLock.Lock()
	defer g.clientsLock.Unlock()

	g.clients[c] = struct{}{}
	g.stats.Incr(stats.ActiveConnections)
}

func (g *Gateway) removeClient(c *Client) {
	g.clientsLock.Lock()
	defer g.clientsLock.Unlock()

	if _, ok := g.clients[c]; !ok {
		return
	}

	delete(g.clients, c)
	g.stats.Decr(stats.ActiveConnections)
	g.log.Printf("connection %s closed for %q", c.id, c.user.Username)
}

// broadcast queues the event on every live handle in the room, minus
// SkipConnId. The registry snapshot keeps a mid-removal handle from
// receiving a send-after-close.
func (g *Gateway) broadcast(roomId int, evt *ServerEvent) {
	for _, h := range g.registry.Handles(roomId) {
		client, ok := h.(*Client)
		if !ok || client.id == evt.SkipConnId {
			continue
		}

		client.queueEvent(evt)
	}
}

// NotifyMemberLeft broadcasts member_left after an out-of-band leave,
// such as the REST leave endpoint.
func (g *Gateway) NotifyMemberLeft(roomId, userId int) {
	g.broadcast(roomId, &ServerEvent{
		BaseEvent:  BaseEvent{Timestamp: Now()},
		MemberLeft: &MemberLeft{RoomId: roomId, UserId: userId},
	})
}

// NotifyControlModeChanged broadcasts the room's new control mode
// after a host-leave escalation.
func (g *Gateway) NotifyControlModeChanged(roomId int, controlMode string) {
	g.broadcast(roomId, &ServerEvent{
		BaseEvent:          BaseEvent{Timestamp: Now()},
		ControlModeChanged: &ControlModeChanged{RoomId: roomId, ControlMode: controlMode},
	})
}

// NotifyRoomClosed broadcasts room_closed and force-detaches every
// connection in the room. Used for host close, admin force delete and
// reaper deletions.
func (g *Gateway) NotifyRoomClosed(roomId int) {
	evt := &ServerEvent{
		BaseEvent:  BaseEvent{Timestamp: Now()},
		RoomClosed: &RoomClosed{RoomId: roomId},
	}

	for _, h := range g.registry.Handles(roomId) {
		client, ok := h.(*Client)
		if !ok {
			continue
		}

		client.queueEvent(evt)
		client.delRoom(roomId)
		g.registry.RemoveHandle(roomId, client.user.Id, client.id)
	}

	g.log.Printf("room %d closed, connections detached", roomId)
}

// Shutdown stops every client pump. In-flight leave processing still
// runs as each read pump unwinds.
func (g *Gateway) Shutdown() {
	g.clientsLock.Lock()
	defer g.clientsLock.Unlock()

	g.log.Println("shutting down gateway clients")
	for c := range g.clients {
		c.stopClient()
	}
}
