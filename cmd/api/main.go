package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/zhouzirui/avatar-call/backend/internal/config"
	"github.com/zhouzirui/avatar-call/backend/internal/handler"
	"github.com/zhouzirui/avatar-call/backend/internal/metrics"
	"github.com/zhouzirui/avatar-call/backend/internal/model/persona"
	"github.com/zhouzirui/avatar-call/backend/internal/server"
	"github.com/zhouzirui/avatar-call/backend/internal/service/avatar"
	"github.com/zhouzirui/avatar-call/backend/internal/service/callsession"
	"github.com/zhouzirui/avatar-call/backend/internal/service/screen"
	"github.com/zhouzirui/avatar-call/backend/internal/service/tavus"
	"github.com/zhouzirui/avatar-call/backend/pkg/logger"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	envErr := godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		logger.New(false).Fatalw("failed to load configuration", "error", err)
	}

	log := logger.New(cfg.Debug)
	defer log.Sync()
	if envErr != nil {
		log.Infow("no .env file loaded, using process environment only", "error", envErr)
	}

	profiles := persona.Seed()
	if cfg.Persona.ProfileFile != "" {
		profiles, err = persona.LoadProfiles(cfg.Persona.ProfileFile, profiles)
		if err != nil {
			log.Fatalw("failed to load persona profiles", "file", cfg.Persona.ProfileFile, "error", err)
		}
	}
	profileStore := persona.NewMemoryStore(profiles)
	if _, ok := profileStore.FindByID(cfg.Persona.DefaultProfile); !ok {
		log.Fatalw("default persona profile not found", "profile", cfg.Persona.DefaultProfile)
	}

	if err := cfg.Tavus.CheckCredentials(false); err != nil {
		log.Warnw("conversations cannot be started until credentials are set", "error", err)
	}

	m := metrics.New("")
	client := tavus.NewClient(cfg.Tavus, m, log)
	avatarSvc := avatar.NewService(client, cfg.Tavus, cfg.Persona, log)
	hub := callsession.NewHub(log)
	sessions := screen.NewRegistry(profileStore, cfg.Persona.DefaultProfile, avatarSvc, hub, m, log)

	router := handler.NewRouter(handler.Deps{
		Profiles:       profileStore,
		DefaultProfile: cfg.Persona.DefaultProfile,
		Sessions:       sessions,
		Frames:         hub,
		AllowedOrigins: cfg.Server.AllowedOrigins,
		Metrics:        m,
		Log:            log,
	})

	// 页面离开后无人观察的会话在超时后关闭，避免远端会话泄漏。
	go sessions.RunReaper(ctx, cfg.Session.IdleTimeout)

	srv := server.New(cfg.Server.Addr, router)
	err = server.Run(ctx, srv, log, func(ctx context.Context) {
		// 退出前结束所有仍持有的会话。
		sessions.CloseAll(ctx)
		hub.CloseAll()
	})
	if err != nil {
		log.Fatalw("server error", "error", err)
	}
}
