package callsession

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/zhouzirui/avatar-call/backend/pkg/logger"
)

const (
	readTimeout  = 60 * time.Second
	writeTimeout = 10 * time.Second
	pingInterval = (readTimeout * 9) / 10
	eventBuffer  = 32
)

// Hub 把通话组件的指令与事件桥接到浏览器页面的 WebSocket 上。
// 每个浏览器会话最多一个连接和一个组件。
type Hub struct {
	mu    sync.Mutex
	links map[string]*link
	log   *logger.Logger
}

type link struct {
	conn    *websocket.Conn
	writeMu sync.Mutex
	frame   *hubFrame
	pending []Command
}

// NewHub 创建 Hub。
func NewHub(log *logger.Logger) *Hub {
	return &Hub{
		links: make(map[string]*link),
		log:   log.Named("hub"),
	}
}

// Factory 返回为指定浏览器会话创建组件的 FrameFactory。
func (h *Hub) Factory(sessionID string) FrameFactory {
	return func(ctx context.Context) (Frame, error) {
		return h.NewFrame(sessionID), nil
	}
}

// NewFrame creates the frame for sessionID, destroying any previous one first.
// Commands sent before the page attaches are queued.
func (h *Hub) NewFrame(sessionID string) Frame {
	f := &hubFrame{
		hub:       h,
		sessionID: sessionID,
		events:    make(chan Event, eventBuffer),
		done:      make(chan struct{}),
	}

	h.mu.Lock()
	l := h.linkLocked(sessionID)
	old := l.frame
	l.frame = f
	l.pending = nil
	conn := l.conn
	h.mu.Unlock()

	if old != nil {
		old.closeDone()
		if conn != nil {
			h.write(l, conn, Command{Type: CmdDestroy})
		}
	}
	return f
}

// Attach binds the page's WebSocket to sessionID, flushes queued commands and
// reads widget events until the connection closes. An existing connection for
// the same session is closed.
func (h *Hub) Attach(ctx context.Context, sessionID string, conn *websocket.Conn) error {
	h.mu.Lock()
	l := h.linkLocked(sessionID)
	old := l.conn
	l.conn = conn
	pending := l.pending
	l.pending = nil
	l.writeMu.Lock()
	h.mu.Unlock()

	if old != nil {
		old.Close()
	}
	for _, cmd := range pending {
		conn.SetWriteDeadline(time.Now().Add(writeTimeout))
		if err := conn.WriteJSON(cmd); err != nil {
			h.log.Warnw("flush queued command failed", "session_id", sessionID, "type", cmd.Type, "error", err)
			break
		}
	}
	l.writeMu.Unlock()

	h.log.Infow("call page attached", "session_id", sessionID, "flushed", len(pending))

	conn.SetReadDeadline(time.Now().Add(readTimeout))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(readTimeout))
		return nil
	})

	pingCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	go h.pingLoop(pingCtx, l, conn)

	err := h.readLoop(sessionID, l, conn)

	h.mu.Lock()
	var frame *hubFrame
	if l.conn == conn {
		l.conn = nil
		frame = l.frame
	}
	h.mu.Unlock()
	conn.Close()

	if frame != nil {
		frame.deliver(Event{Type: EventDetached})
	}
	h.log.Infow("call page detached", "session_id", sessionID)
	return err
}

func (h *Hub) readLoop(sessionID string, l *link, conn *websocket.Conn) error {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseNoStatusReceived) {
				h.log.Warnw("call page read failed", "session_id", sessionID, "error", err)
				return err
			}
			return nil
		}
		conn.SetReadDeadline(time.Now().Add(readTimeout))

		var ev Event
		if err := json.Unmarshal(data, &ev); err != nil || ev.Type == "" {
			h.log.Warnw("malformed widget event", "session_id", sessionID, "error", err)
			continue
		}

		h.mu.Lock()
		frame := l.frame
		h.mu.Unlock()
		if frame == nil {
			h.log.Debugw("event without frame", "session_id", sessionID, "type", ev.Type)
			continue
		}
		frame.deliver(ev)
	}
}

func (h *Hub) pingLoop(ctx context.Context, l *link, conn *websocket.Conn) {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			l.writeMu.Lock()
			conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			err := conn.WriteMessage(websocket.PingMessage, nil)
			l.writeMu.Unlock()
			if err != nil {
				return
			}
		}
	}
}

// Remove 销毁会话的组件并关闭页面连接。
func (h *Hub) Remove(sessionID string) {
	h.mu.Lock()
	l, ok := h.links[sessionID]
	if !ok {
		h.mu.Unlock()
		return
	}
	delete(h.links, sessionID)
	frame, conn := l.frame, l.conn
	h.mu.Unlock()

	if frame != nil {
		frame.closeDone()
	}
	if conn != nil {
		conn.Close()
	}
}

// CloseAll 关闭所有连接。
func (h *Hub) CloseAll() {
	h.mu.Lock()
	ids := make([]string, 0, len(h.links))
	for id := range h.links {
		ids = append(ids, id)
	}
	h.mu.Unlock()

	for _, id := range ids {
		h.Remove(id)
	}
}

func (h *Hub) linkLocked(sessionID string) *link {
	l, ok := h.links[sessionID]
	if !ok {
		l = &link{}
		h.links[sessionID] = l
	}
	return l
}

func (h *Hub) send(f *hubFrame, cmd Command) error {
	h.mu.Lock()
	l, ok := h.links[f.sessionID]
	if !ok || l.frame != f {
		h.mu.Unlock()
		return ErrFrameDestroyed
	}
	if l.conn == nil {
		l.pending = append(l.pending, cmd)
		h.mu.Unlock()
		return nil
	}
	conn := l.conn
	h.mu.Unlock()

	return h.write(l, conn, cmd)
}

func (h *Hub) release(f *hubFrame) {
	h.mu.Lock()
	l, ok := h.links[f.sessionID]
	if !ok || l.frame != f {
		h.mu.Unlock()
		return
	}
	l.frame = nil
	l.pending = nil
	conn := l.conn
	h.mu.Unlock()

	if conn != nil {
		h.write(l, conn, Command{Type: CmdDestroy})
	}
}

func (h *Hub) write(l *link, conn *websocket.Conn, cmd Command) error {
	l.writeMu.Lock()
	defer l.writeMu.Unlock()
	conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	if err := conn.WriteJSON(cmd); err != nil {
		h.log.Warnw("send command failed", "type", cmd.Type, "error", err)
		return err
	}
	return nil
}

type hubFrame struct {
	hub       *Hub
	sessionID string
	events    chan Event
	done      chan struct{}
	once      sync.Once
}

func (f *hubFrame) Send(cmd Command) error {
	select {
	case <-f.done:
		return ErrFrameDestroyed
	default:
	}
	return f.hub.send(f, cmd)
}

func (f *hubFrame) Events() <-chan Event {
	return f.events
}

func (f *hubFrame) Destroy() {
	f.closeDone()
	f.hub.release(f)
}

func (f *hubFrame) closeDone() {
	f.once.Do(func() { close(f.done) })
}

func (f *hubFrame) deliver(ev Event) {
	select {
	case f.events <- ev:
	case <-f.done:
	}
}
