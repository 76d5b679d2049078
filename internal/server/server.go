package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/zhouzirui/avatar-call/backend/pkg/logger"
)

const shutdownTimeout = 10 * time.Second

// New 使用统一的超时设置创建 HTTP 服务。
func New(addr string, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
}

// Run serves until ctx is cancelled, then shuts the server down and calls
// onShutdown with a bounded context.
func Run(ctx context.Context, srv *http.Server, log *logger.Logger, onShutdown func(context.Context)) error {
	log = log.Named("server")
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()
	log.Infow("listening", "addr", srv.Addr)

	select {
	case <-ctx.Done():
		log.Infow("shutting down", "addr", srv.Addr)
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if onShutdown != nil {
			onShutdown(shutdownCtx)
		}
		_ = srv.Shutdown(shutdownCtx)
		err := <-errCh
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}
