// Package notify delivers file lifecycle events to connected users.
//
// A Hub keeps the live subscriptions of every user. The HTTP layer opens a
// subscription per event-stream connection; the ingestion pipeline pushes
// events through SendTo without knowing how they are transported.
package notify

import (
	"context"
	"errors"
	"sync"

	"github.com/kart-io/logger"
)

var (
	// ErrClosed Hub 已关闭。
	ErrClosed = errors.New("notify hub is closed")
	// ErrOffline 用户没有活动的订阅。
	ErrOffline = errors.New("user is offline")
)

// Event 一条推送给用户的事件。
type Event struct {
	Name string
	Data any
}

// Hub 按用户维护订阅。慢消费者的事件会被丢弃，推送从不阻塞调用方。
type Hub struct {
	mu     sync.RWMutex
	subs   map[string]map[*Subscription]struct{}
	buffer int
	closed bool
}

// NewHub 创建 Hub，buffer 为每个订阅的缓冲事件数。
func NewHub(buffer int) *Hub {
	if buffer <= 0 {
		buffer = 16
	}
	return &Hub{subs: make(map[string]map[*Subscription]struct{}), buffer: buffer}
}

// Subscription 一个用户连接的事件流。
type Subscription struct {
	userID string
	events chan Event
	hub    *Hub
	once   sync.Once
}

// Events 返回事件通道，订阅关闭后通道被关闭。
func (s *Subscription) Events() <-chan Event { return s.events }

// Close 取消订阅，可重复调用。
func (s *Subscription) Close() {
	s.hub.remove(s)
}

// Subscribe 为 userID 打开一个订阅。
func (h *Hub) Subscribe(userID string) (*Subscription, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return nil, ErrClosed
	}

	s := &Subscription{userID: userID, events: make(chan Event, h.buffer), hub: h}
	set, ok := h.subs[userID]
	if !ok {
		set = make(map[*Subscription]struct{})
		h.subs[userID] = set
	}
	set[s] = struct{}{}
	logger.Debugw("Notification subscriber connected", "user_id", userID, "connections", len(set))
	return s, nil
}

func (h *Hub) remove(s *Subscription) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if set, ok := h.subs[s.userID]; ok {
		delete(set, s)
		if len(set) == 0 {
			delete(h.subs, s.userID)
		}
	}
	s.once.Do(func() { close(s.events) })
}

// IsOnline 判断用户是否至少有一个订阅。
func (h *Hub) IsOnline(userID string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs[userID]) > 0
}

// SendTo 向用户的所有订阅推送事件。
func (h *Hub) SendTo(userID, event string, payload any) error {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if h.closed {
		return ErrClosed
	}
	set := h.subs[userID]
	if len(set) == 0 {
		return ErrOffline
	}

	ev := Event{Name: event, Data: payload}
	for s := range set {
		select {
		case s.events <- ev:
		default:
			logger.Warnw("Dropping notification for slow subscriber", "user_id", userID, "event", event)
		}
	}
	return nil
}

// Online 返回在线用户数。
func (h *Hub) Online() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}

// Name 返回组件名称。
func (h *Hub) Name() string { return "events-hub" }

// Start 无需启动动作。
func (h *Hub) Start(context.Context) error { return nil }

// Stop 关闭所有订阅，使 SSE 长连接先于 HTTP 服务返回。
func (h *Hub) Stop(context.Context) error { return h.Close() }

// Close 关闭所有订阅，之后的 Subscribe 与 SendTo 返回 ErrClosed。
func (h *Hub) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return nil
	}
	h.closed = true
	for _, set := range h.subs {
		for s := range set {
			s.once.Do(func() { close(s.events) })
		}
	}
	h.subs = make(map[string]map[*Subscription]struct{})
	return nil
}
