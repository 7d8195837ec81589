package session

import (
	"log"
	"time"
)

const (
	DefaultReapInterval = 5 * time.Minute
	DefaultIdleTimeout  = 10 * time.Minute
)

// RoomCloseNotifier lets the sweep tell the gateway to detach any
// remaining connections from a deleted room.
type RoomCloseNotifier interface {
	NotifyRoomClosed(roomId int)
}

// Reaper periodically reclaims abandoned rooms.
type Reaper struct {
	log      *log.Logger
	manager  *Manager
	notifier RoomCloseNotifier
	interval time.Duration
	timeout  time.Duration
	stop     chan struct{}
	done     chan struct{}
}

func NewReaper(logger *log.Logger, m *Manager, notifier RoomCloseNotifier, interval, timeout time.Duration) *Reaper {
	if interval <= 0 {
		interval = DefaultReapInterval
	}
	if timeout <= 0 {
		timeout = DefaultIdleTimeout
	}

	return &Reaper{
		log:      logger,
		manager:  m,
		notifier: notifier,
		interval: interval,
		timeout:  timeout,
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
}

func (r *Reaper) Run() {
	defer close(r.done)

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	r.log.Printf("reaper running, interval %s, idle timeout %s", r.interval, r.timeout)
	for {
		select {
		case <-ticker.C:
			r.sweep(r.timeout)
		case <-r.stop:
			return
		}
	}
}

func (r *Reaper) Stop() {
	close(r.stop)
	<-r.done
}

// SweepNow runs one pass with the given idle threshold. Admin path.
func (r *Reaper) SweepNow(timeout time.Duration) (int, error) {
	if timeout <= 0 {
		timeout = r.timeout
	}

	return r.sweep(timeout)
}

func (r *Reaper) sweep(timeout time.Duration) (int, error) {
	reaped, err := r.manager.ReapIdleRooms(timeout)
	if err != nil {
		r.log.Printf("reaper sweep: %v", err)
		return 0, err
	}

	for _, roomId := range reaped {
		if r.notifier != nil {
			r.notifier.NotifyRoomClosed(roomId)
		}
	}

	if len(reaped) > 0 {
		r.log.Printf("reaper deleted %d rooms", len(reaped))
	}

	return len(reaped), nil
}
