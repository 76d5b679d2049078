package callsession

import (
	"context"
	"sync"

	"github.com/zhouzirui/avatar-call/backend/internal/metrics"
	"github.com/zhouzirui/avatar-call/backend/internal/model/session"
	"github.com/zhouzirui/avatar-call/backend/pkg/logger"
)

// Hooks 会话向外通知的回调，均在锁外调用。
type Hooks struct {
	// OnLeave runs once when the widget reports that the local user left.
	OnLeave func()
	// OnChange runs after every state change.
	OnChange func()
}

// Session 包装一个通话组件：加入房间、切换音视频、监听连接事件并负责销毁。
type Session struct {
	mu      sync.Mutex
	factory FrameFactory
	frame   Frame
	status  session.ConnectionStatus
	media   session.MediaState
	lastErr *WidgetError
	closed  bool

	hooks     Hooks
	leaveOnce sync.Once
	stop      chan struct{}

	metrics *metrics.Metrics
	log     *logger.Logger
}

// New 创建尚未加入房间的会话，音视频默认开启。
func New(factory FrameFactory, hooks Hooks, m *metrics.Metrics, log *logger.Logger) *Session {
	return &Session{
		factory: factory,
		status:  session.StatusConnecting,
		media:   session.MediaState{Audio: true, Video: true},
		hooks:   hooks,
		stop:    make(chan struct{}),
		metrics: m,
		log:     log.Named("callsession"),
	}
}

// Join creates the frame if absent, starts the event loop and asks the frame to join url.
func (s *Session) Join(ctx context.Context, url string) error {
	s.mu.Lock()
	if s.closed || s.status == session.StatusDisconnected {
		s.mu.Unlock()
		return ErrSessionClosed
	}

	if s.frame == nil {
		frame, err := s.factory(ctx)
		if err != nil {
			s.mu.Unlock()
			return err
		}
		s.frame = frame
		s.metrics.CallStarted()
		go s.loop(frame)
	}
	frame := s.frame
	s.status = session.StatusConnecting
	s.mu.Unlock()

	s.log.Infow("joining call", "url", url)
	return frame.Send(Command{Type: CmdJoin, URL: url})
}

// ToggleAudio 发送取反后的麦克风状态并立即更新本地标志，返回新值。
func (s *Session) ToggleAudio() (bool, error) {
	return s.toggle(CmdSetLocalAudio, &s.media.Audio)
}

// ToggleVideo 发送取反后的摄像头状态并立即更新本地标志，返回新值。
func (s *Session) ToggleVideo() (bool, error) {
	return s.toggle(CmdSetLocalVideo, &s.media.Video)
}

func (s *Session) toggle(cmd string, flag *bool) (bool, error) {
	s.mu.Lock()
	if s.closed {
		current := *flag
		s.mu.Unlock()
		return current, ErrSessionClosed
	}
	if s.frame == nil {
		current := *flag
		s.mu.Unlock()
		return current, ErrNotJoined
	}
	frame := s.frame
	next := !*flag
	*flag = next
	s.mu.Unlock()

	if err := frame.Send(Command{Type: cmd, Enabled: boolPtr(next)}); err != nil {
		s.mu.Lock()
		if *flag == next {
			*flag = !next
		}
		s.mu.Unlock()
		return !next, err
	}

	s.changed()
	return next, nil
}

// Leave 请求组件离开房间；随后到达的 left-meeting 事件触发 OnLeave。
// 组件已断开（例如报错）时不会再有 left-meeting，直接触发 OnLeave。
func (s *Session) Leave(ctx context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrSessionClosed
	}
	if s.frame == nil {
		s.mu.Unlock()
		return ErrNotJoined
	}
	frame := s.frame
	disconnected := s.status == session.StatusDisconnected
	s.mu.Unlock()

	if disconnected {
		s.log.Infow("leaving disconnected call")
		if s.hooks.OnLeave != nil {
			s.leaveOnce.Do(s.hooks.OnLeave)
		}
		return nil
	}
	return frame.Send(Command{Type: CmdLeave})
}

// Destroy 销毁通话组件，可重复调用。
func (s *Session) Destroy() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.status = session.StatusDisconnected
	frame := s.frame
	s.frame = nil
	close(s.stop)
	s.mu.Unlock()

	if frame != nil {
		frame.Destroy()
		s.metrics.CallEnded()
		s.log.Infow("call frame destroyed")
	}
}

// State returns a copy of the connection and media state.
func (s *Session) State() session.CallState {
	s.mu.Lock()
	defer s.mu.Unlock()
	state := session.CallState{Status: s.status, Media: s.media}
	if s.lastErr != nil {
		state.Error = s.lastErr.Message
	}
	return state
}

// Err 返回最近一次组件错误。
func (s *Session) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.lastErr == nil {
		return nil
	}
	return s.lastErr
}

func (s *Session) loop(frame Frame) {
	events := frame.Events()
	for {
		select {
		case <-s.stop:
			return
		case ev := <-events:
			s.handle(ev)
		}
	}
}

func (s *Session) handle(ev Event) {
	s.metrics.RecordWidgetEvent(ev.Type)

	leave := false
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	switch ev.Type {
	case EventJoinedMeeting:
		if s.status == session.StatusConnecting {
			s.status = session.StatusConnected
		}
	case EventLeftMeeting, EventDetached:
		s.status = session.StatusDisconnected
		leave = true
	case EventError:
		s.status = session.StatusDisconnected
		s.lastErr = &WidgetError{Message: ev.Message}
		s.log.Warnw("call widget error", "error", s.lastErr)
	case EventParticipantUpdated:
		s.reconcile(ev)
	default:
		s.log.Debugw("ignoring widget event", "type", ev.Type)
		s.mu.Unlock()
		return
	}
	s.mu.Unlock()

	s.changed()
	if leave && s.hooks.OnLeave != nil {
		s.leaveOnce.Do(s.hooks.OnLeave)
	}
}

// reconcile 以组件确认的状态覆盖乐观更新的本地标志，调用方持有锁。
func (s *Session) reconcile(ev Event) {
	if ev.Audio != nil && *ev.Audio != s.media.Audio {
		s.log.Debugw("reconciling audio state", "local", s.media.Audio, "widget", *ev.Audio)
		s.media.Audio = *ev.Audio
	}
	if ev.Video != nil && *ev.Video != s.media.Video {
		s.log.Debugw("reconciling video state", "local", s.media.Video, "widget", *ev.Video)
		s.media.Video = *ev.Video
	}
}

func (s *Session) changed() {
	if s.hooks.OnChange != nil {
		s.hooks.OnChange()
	}
}
