package screen

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/looplab/fsm"

	"github.com/zhouzirui/avatar-call/backend/internal/metrics"
	"github.com/zhouzirui/avatar-call/backend/internal/model/conversation"
	"github.com/zhouzirui/avatar-call/backend/internal/model/persona"
	"github.com/zhouzirui/avatar-call/backend/internal/model/session"
	"github.com/zhouzirui/avatar-call/backend/internal/service/callsession"
	"github.com/zhouzirui/avatar-call/backend/pkg/logger"
)

var (
	ErrInvalidTransition = errors.New("invalid screen transition")
	ErrBusy              = errors.New("session is busy")
	ErrNotFound          = errors.New("session not found")
	ErrClosed            = errors.New("session closed")
	ErrUnknownProfile    = errors.New("unknown persona profile")
)

const (
	eventStart = "start"
	eventJoin  = "join"
	eventEnd   = "end"

	defaultTerminateTimeout = 10 * time.Second
)

// Avatar 创建与结束会话所需的服务。
type Avatar interface {
	CreatePersona(ctx context.Context, profile persona.Profile) (persona.Persona, error)
	CreateConversation(ctx context.Context, profile persona.Profile, personaID string) (conversation.Conversation, error)
	EndConversation(ctx context.Context, conversationID string) error
}

// Controller drives one browser session through welcome, hairCheck and call,
// and owns the conversation for that session.
type Controller struct {
	id      string
	profile persona.Profile
	avatar  Avatar
	frames  callsession.FrameFactory
	machine *fsm.FSM

	mu          sync.Mutex
	loading     bool
	errMsg      string
	conv        *conversation.Conversation
	roomURL     string
	backend     persona.BackendMode
	call        *callsession.Session
	terminating bool
	closed      bool
	updatedAt   time.Time
	// watchers 当前附着的页面连接与事件流数量。
	watchers int

	subMu sync.Mutex
	subs  map[chan session.Snapshot]struct{}

	terminateTimeout time.Duration
	metrics          *metrics.Metrics
	log              *logger.Logger
}

// NewController 创建处于 welcome 界面的控制器。
func NewController(id string, profile persona.Profile, avatar Avatar, frames callsession.FrameFactory, m *metrics.Metrics, log *logger.Logger) *Controller {
	c := &Controller{
		id:               id,
		profile:          profile,
		avatar:           avatar,
		frames:           frames,
		subs:             make(map[chan session.Snapshot]struct{}),
		updatedAt:        time.Now().UTC(),
		terminateTimeout: defaultTerminateTimeout,
		metrics:          m,
		log:              log.Named("screen").With("session_id", id),
	}
	c.machine = fsm.NewFSM(
		string(session.ScreenWelcome),
		fsm.Events{
			{Name: eventStart, Src: []string{string(session.ScreenWelcome)}, Dst: string(session.ScreenHairCheck)},
			{Name: eventJoin, Src: []string{string(session.ScreenHairCheck)}, Dst: string(session.ScreenCall)},
			{Name: eventEnd, Src: []string{string(session.ScreenHairCheck), string(session.ScreenCall)}, Dst: string(session.ScreenWelcome)},
		},
		fsm.Callbacks{
			"enter_state": func(_ context.Context, e *fsm.Event) {
				m.RecordTransition(e.Event)
			},
		},
	)
	return c
}

// ID 返回浏览器会话标识。
func (c *Controller) ID() string {
	return c.id
}

// Start creates the persona and then the conversation. On success the screen
// moves to hairCheck; on failure it stays on welcome with an error message.
// If the controller is closed while the requests are in flight, the created
// conversation is terminated as soon as it resolves.
func (c *Controller) Start(ctx context.Context) error {
	c.mu.Lock()
	switch {
	case c.closed:
		c.mu.Unlock()
		return ErrClosed
	case c.loading, c.terminating:
		c.mu.Unlock()
		return ErrBusy
	case !c.machine.Can(eventStart):
		c.mu.Unlock()
		return ErrInvalidTransition
	}
	c.loading = true
	c.errMsg = ""
	profile := c.profile
	c.touchLocked()
	c.mu.Unlock()
	c.publish()

	// 请求方断开也要等待创建结果，否则远端会话无人结束。
	reqCtx := context.WithoutCancel(ctx)

	p, err := c.avatar.CreatePersona(reqCtx, profile)
	var conv conversation.Conversation
	if err == nil {
		conv, err = c.avatar.CreateConversation(reqCtx, profile, p.ID)
	}

	c.mu.Lock()
	c.loading = false
	c.touchLocked()
	if err != nil {
		c.errMsg = err.Error()
		c.mu.Unlock()
		c.log.Warnw("start failed", "error", err)
		c.publish()
		return err
	}
	if c.closed {
		c.mu.Unlock()
		c.log.Infow("session closed during start, terminating late conversation", "conversation_id", conv.ID)
		c.terminate(reqCtx, conv.ID)
		return ErrClosed
	}

	c.conv = &conv
	c.roomURL = conv.RoomURL
	c.backend = p.Backend
	if err := c.machine.Event(reqCtx, eventStart); err != nil {
		c.log.Errorw("start transition failed", "error", err)
	}
	c.mu.Unlock()

	c.log.Infow("conversation ready", "conversation_id", conv.ID, "backend", p.Backend)
	c.publish()
	return nil
}

// Join moves hairCheck to call and joins the conversation through a new call session.
func (c *Controller) Join(ctx context.Context) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	if c.conv == nil || !c.machine.Can(eventJoin) {
		c.mu.Unlock()
		return ErrInvalidTransition
	}

	var call *callsession.Session
	call = callsession.New(c.frames, callsession.Hooks{
		OnLeave:  func() { c.onCallLeft(call) },
		OnChange: c.publish,
	}, c.metrics, c.log)
	c.call = call
	url := c.conv.JoinURL()
	if err := c.machine.Event(ctx, eventJoin); err != nil {
		c.log.Errorw("join transition failed", "error", err)
	}
	c.touchLocked()
	c.mu.Unlock()
	c.publish()

	if err := call.Join(ctx, url); err != nil {
		c.log.Warnw("call join failed", "error", err)
		c.mu.Lock()
		c.errMsg = err.Error()
		c.mu.Unlock()
		c.End(ctx)
		return err
	}
	return nil
}

// ToggleAudio 切换麦克风，返回新状态。
func (c *Controller) ToggleAudio() (bool, error) {
	call, err := c.activeCall()
	if err != nil {
		return false, err
	}
	return call.ToggleAudio()
}

// ToggleVideo 切换摄像头，返回新状态。
func (c *Controller) ToggleVideo() (bool, error) {
	call, err := c.activeCall()
	if err != nil {
		return false, err
	}
	return call.ToggleVideo()
}

func (c *Controller) activeCall() (*callsession.Session, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil, ErrClosed
	}
	if c.call == nil {
		return nil, ErrInvalidTransition
	}
	return c.call, nil
}

// Leave asks the call widget to leave. The widget's left-meeting event then
// ends the session. Without an active call it ends directly.
func (c *Controller) Leave(ctx context.Context) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	call := c.call
	c.mu.Unlock()

	if call == nil {
		return c.End(ctx)
	}
	if err := call.Leave(ctx); err != nil {
		c.log.Warnw("call leave failed, ending directly", "error", err)
		return c.End(ctx)
	}
	return nil
}

// End 结束会话并回到 welcome；重复调用不会再次发送结束请求。
func (c *Controller) End(ctx context.Context) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	conv, call := c.conv, c.call
	if conv == nil && call == nil && c.machine.Is(string(session.ScreenWelcome)) {
		c.mu.Unlock()
		return nil
	}

	c.conv = nil
	c.call = nil
	c.roomURL = ""
	c.backend = ""
	if conv != nil {
		c.terminating = true
	}
	if c.machine.Can(eventEnd) {
		if err := c.machine.Event(ctx, eventEnd); err != nil {
			c.log.Errorw("end transition failed", "error", err)
		}
	}
	c.touchLocked()
	c.mu.Unlock()

	if call != nil {
		call.Destroy()
	}
	if conv != nil {
		c.terminate(ctx, conv.ID)
		c.mu.Lock()
		c.terminating = false
		c.mu.Unlock()
	}
	c.publish()
	return nil
}

// Close tears the session down: the held conversation is terminated exactly
// once and the call session is destroyed. Subscribers are released.
func (c *Controller) Close(ctx context.Context) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	conv, call := c.conv, c.call
	c.conv = nil
	c.call = nil
	c.roomURL = ""
	c.touchLocked()
	c.mu.Unlock()

	if call != nil {
		call.Destroy()
	}
	if conv != nil {
		c.terminate(ctx, conv.ID)
	}

	c.subMu.Lock()
	for ch := range c.subs {
		close(ch)
	}
	c.subs = nil
	c.subMu.Unlock()
	c.log.Infow("session closed")
}

func (c *Controller) onCallLeft(call *callsession.Session) {
	c.mu.Lock()
	current := c.call == call
	c.mu.Unlock()
	if !current {
		return
	}
	c.log.Infow("call left")
	c.End(context.Background())
}

func (c *Controller) terminate(ctx context.Context, conversationID string) {
	tctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.terminateTimeout)
	defer cancel()
	if err := c.avatar.EndConversation(tctx, conversationID); err != nil {
		c.log.Warnw("terminate conversation failed", "conversation_id", conversationID, "error", err)
	}
}

// Snapshot 返回当前状态的副本。
func (c *Controller) Snapshot() session.Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()

	snap := session.Snapshot{
		ID:        c.id,
		ProfileID: c.profile.ID,
		Screen:    session.Screen(c.machine.Current()),
		Loading:   c.loading,
		Error:     c.errMsg,
		RoomURL:   c.roomURL,
		Backend:   c.backend,
		UpdatedAt: c.updatedAt,
	}
	if c.conv != nil {
		conv := *c.conv
		snap.Conversation = &conv
	}
	if c.call != nil {
		state := c.call.State()
		snap.Call = &state
	}
	return snap
}

// Subscribe returns a channel that always holds the latest snapshot. The
// channel is closed by cancel or when the controller closes. A subscription
// counts as a watcher until cancelled.
func (c *Controller) Subscribe() (<-chan session.Snapshot, func()) {
	ch := make(chan session.Snapshot, 1)
	ch <- c.Snapshot()

	c.subMu.Lock()
	if c.subs == nil {
		c.subMu.Unlock()
		close(ch)
		return ch, func() {}
	}
	c.subs[ch] = struct{}{}
	c.subMu.Unlock()

	release := c.Watch()
	cancel := func() {
		release()
		c.subMu.Lock()
		defer c.subMu.Unlock()
		if _, ok := c.subs[ch]; ok {
			delete(c.subs, ch)
			close(ch)
		}
	}
	return ch, cancel
}

// Watch marks the session as observed by a page until release is called.
// Sessions nobody watches are reaped by the registry after the idle timeout.
func (c *Controller) Watch() (release func()) {
	c.mu.Lock()
	c.watchers++
	c.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			c.mu.Lock()
			c.watchers--
			if c.watchers == 0 {
				c.touchLocked()
			}
			c.mu.Unlock()
		})
	}
}

// idleSince 返回最后一次活动时间；有观察者、正在创建或已关闭时 ok 为 false。
func (c *Controller) idleSince() (since time.Time, ok bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.watchers > 0 || c.loading || c.closed {
		return time.Time{}, false
	}
	return c.updatedAt, true
}

func (c *Controller) publish() {
	snap := c.Snapshot()

	c.subMu.Lock()
	defer c.subMu.Unlock()
	for ch := range c.subs {
		select {
		case <-ch:
		default:
		}
		ch <- snap
	}
}

func (c *Controller) touchLocked() {
	c.updatedAt = time.Now().UTC()
}
