package screen

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/zhouzirui/avatar-call/backend/internal/metrics"
	"github.com/zhouzirui/avatar-call/backend/internal/model/persona"
	"github.com/zhouzirui/avatar-call/backend/internal/service/callsession"
	"github.com/zhouzirui/avatar-call/backend/pkg/logger"
)

// FrameProvider 为浏览器会话提供通话组件，Hub 实现了该接口。
type FrameProvider interface {
	Factory(sessionID string) callsession.FrameFactory
	Remove(sessionID string)
}

// Registry keeps one Controller per browser session.
type Registry struct {
	mu          sync.RWMutex
	controllers map[string]*Controller

	profiles       persona.Store
	defaultProfile string
	avatar         Avatar
	frames         FrameProvider
	metrics        *metrics.Metrics
	log            *logger.Logger
	reapLog        *logger.Logger
}

// NewRegistry 创建控制器注册表。
func NewRegistry(profiles persona.Store, defaultProfile string, avatar Avatar, frames FrameProvider, m *metrics.Metrics, log *logger.Logger) *Registry {
	return &Registry{
		controllers:    make(map[string]*Controller),
		profiles:       profiles,
		defaultProfile: defaultProfile,
		avatar:         avatar,
		frames:         frames,
		metrics:        m,
		log:            log,
		reapLog:        log.Named("registry"),
	}
}

// Create provisions a controller for a new browser session. An empty
// profileID selects the default profile.
func (r *Registry) Create(_ context.Context, profileID string) (*Controller, error) {
	if profileID == "" {
		profileID = r.defaultProfile
	}
	profile, ok := r.profiles.FindByID(profileID)
	if !ok {
		return nil, ErrUnknownProfile
	}

	id := uuid.NewString()
	c := NewController(id, profile, r.avatar, r.frames.Factory(id), r.metrics, r.log)

	r.mu.Lock()
	r.controllers[id] = c
	r.mu.Unlock()

	r.metrics.SessionOpened()
	return c, nil
}

// Get 按标识查找控制器。
func (r *Registry) Get(id string) (*Controller, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.controllers[id]
	if !ok {
		return nil, ErrNotFound
	}
	return c, nil
}

// Remove closes the controller, terminating its conversation, and forgets it.
func (r *Registry) Remove(ctx context.Context, id string) error {
	r.mu.Lock()
	c, ok := r.controllers[id]
	if ok {
		delete(r.controllers, id)
	}
	r.mu.Unlock()
	if !ok {
		return ErrNotFound
	}

	c.Close(ctx)
	r.frames.Remove(id)
	r.metrics.SessionClosed()
	return nil
}

// CloseAll 关闭所有控制器，进程退出前调用。
func (r *Registry) CloseAll(ctx context.Context) {
	r.mu.Lock()
	controllers := r.controllers
	r.controllers = make(map[string]*Controller)
	r.mu.Unlock()

	var wg sync.WaitGroup
	for id, c := range controllers {
		wg.Add(1)
		go func(id string, c *Controller) {
			defer wg.Done()
			c.Close(ctx)
			r.frames.Remove(id)
			r.metrics.SessionClosed()
		}(id, c)
	}
	wg.Wait()
}

// Reap closes every session that nobody has watched for longer than idle,
// terminating held conversations, and returns how many were closed.
func (r *Registry) Reap(ctx context.Context, idle time.Duration) int {
	cutoff := time.Now().Add(-idle)

	r.mu.Lock()
	var stale []*Controller
	for id, c := range r.controllers {
		if since, ok := c.idleSince(); ok && !since.After(cutoff) {
			delete(r.controllers, id)
			stale = append(stale, c)
		}
	}
	r.mu.Unlock()

	for _, c := range stale {
		r.reapLog.Infow("closing idle session", "session_id", c.ID(), "idle_timeout", idle)
		c.Close(ctx)
		r.frames.Remove(c.ID())
		r.metrics.SessionClosed()
	}
	return len(stale)
}

// RunReaper 按 idle/4 的间隔回收空闲会话，直到 ctx 结束。
func (r *Registry) RunReaper(ctx context.Context, idle time.Duration) {
	interval := idle / 4
	if interval < time.Second {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.Reap(ctx, idle)
		}
	}
}

// Len 返回存活的控制器数量。
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.controllers)
}
