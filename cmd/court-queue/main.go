package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os/signal"
	"syscall"
	"time"

	"github.com/park285/court-queue/internal/api"
	"github.com/park285/court-queue/internal/chatbot"
	appcfg "github.com/park285/court-queue/internal/config"
	"github.com/park285/court-queue/internal/iris"
	"github.com/park285/court-queue/internal/ledger"
	"github.com/park285/court-queue/internal/msgcat"
	"github.com/park285/court-queue/internal/obslog"
	"github.com/park285/court-queue/internal/queue"
	"github.com/park285/court-queue/internal/roster"
	"go.uber.org/zap"
)

func main() {
	cfg, err := appcfg.Load()
	if err != nil {
		log.Fatalf("config error: %v", err)
	}
	if err := obslog.InitFromEnv(); err != nil {
		log.Fatalf("logger init error: %v", err)
	}
	defer func() { _ = obslog.L().Sync() }()
	logger := obslog.L()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	b, err := openBackend(ctx, cfg)
	if err != nil {
		logger.Fatal("store_init_error", zap.String("backend", string(cfg.StoreBackend)), zap.Error(err))
	}
	defer func() { _ = b.store.Close() }()

	sched, err := queue.NewScheduler(b.store, queue.WithLocker(b.locker))
	if err != nil {
		logger.Fatal("scheduler_init_error", zap.Error(err))
	}
	rs := roster.NewService(b.store, roster.WithClock(sched.Now))
	lg := ledger.NewService(b.payments, b.store, sched.Now)

	if cfg.ChatEnabled() {
		ws, err := startChat(ctx, cfg, sched, rs)
		if err != nil {
			logger.Fatal("chat_init_error", zap.Error(err))
		}
		defer func() {
			cctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = ws.Close(cctx)
		}()
	} else {
		logger.Info("chat_disabled", zap.String("reason", "IRIS_BASE_URL, IRIS_WS_URL and BOT_PREFIX are required"))
	}

	srv := api.NewServer(sched, rs, lg, b.store)
	if err := srv.ListenAndServe(ctx, cfg.HTTPAddr); err != nil {
		logger.Error("http_server_error", zap.Error(err))
	}
	logger.Info("shutdown")
}

type backend struct {
	store    queue.Store
	locker   queue.Locker
	payments ledger.Repository
}

// openBackend pairs every store with the lock that shares its connection.
func openBackend(ctx context.Context, cfg *appcfg.AppConfig) (*backend, error) {
	switch cfg.StoreBackend {
	case appcfg.BackendRedis:
		rs, err := queue.NewRedisStore(ctx, cfg.RedisURL)
		if err != nil {
			return nil, err
		}
		return &backend{
			store:    rs,
			locker:   queue.NewRedisLocker(rs.Client(), cfg.LockTTL, cfg.LockRetries, cfg.LockRetryInterval),
			payments: ledger.NewRedisRepository(rs.Client()),
		}, nil
	case appcfg.BackendPostgres:
		db, err := queue.OpenPostgres(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, err
		}
		ps := queue.NewPostgresStore(db)
		if err := ps.EnsureSchema(ctx); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("queue schema: %w", err)
		}
		if err := ledger.EnsureSchema(ctx, db); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("ledger schema: %w", err)
		}
		return &backend{
			store:    ps,
			locker:   queue.NewAdvisoryLocker(db),
			payments: ledger.NewPostgresRepository(db),
		}, nil
	case appcfg.BackendMemory:
		return &backend{
			store:    queue.NewMemoryStore(),
			locker:   queue.NewMutexLocker(),
			payments: ledger.NewMemoryRepository(),
		}, nil
	default:
		return nil, errors.New("unknown backend")
	}
}

func startChat(ctx context.Context, cfg *appcfg.AppConfig, sched *queue.Scheduler, rs *roster.Service) (*iris.WebSocket, error) {
	cat, err := msgcat.New(cfg.MessageDir)
	if err != nil {
		return nil, fmt.Errorf("message catalog: %w", err)
	}
	headers := func() map[string]string {
		h := map[string]string{}
		if cfg.XUserID != "" {
			h["X-User-Id"] = cfg.XUserID
		}
		if cfg.XUserEmail != "" {
			h["X-User-Email"] = cfg.XUserEmail
		}
		if cfg.XSessionID != "" {
			h["X-Session-Id"] = cfg.XSessionID
		}
		return h
	}

	client := iris.NewClient(cfg.IrisBaseURL, iris.WithHeaderProvider(headers))
	ws := iris.NewWebSocket(cfg.IrisWSURL, 5)
	ws.SetHeaderProvider(headers)
	ws.OnStateChange(func(state iris.WebSocketState) {
		obslog.L().Info("iris_ws_state", zap.String("state", state.String()))
	})

	bot, err := chatbot.New(sched, rs, cat, iris.NewEgress("auto", client, ws), chatbot.Options{
		Prefix:        cfg.BotPrefix,
		AllowedRooms:  cfg.AllowedRooms,
		RatePerMinute: cfg.ChatRatePerMinute,
	})
	if err != nil {
		return nil, err
	}
	ws.OnMessage(bot.OnMessage)

	cctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := ws.Connect(cctx); err != nil {
		// reconnects continue in the background
		obslog.L().Warn("iris_ws_connect_error", zap.Error(err))
	}
	return ws, nil
}
