package main

import (
	"context"
	"errors"
	"net/http"
	"time"

	_ "procurement/api/swagger" // swagger docs
	"procurement/internal/config"
	"procurement/internal/database"
	"procurement/internal/handler"
	"procurement/internal/logger"
	"procurement/internal/middleware"
	"procurement/internal/realtime"
	"procurement/internal/repository"
	"procurement/internal/service"
	"procurement/internal/websocket"

	"github.com/gin-gonic/gin"
	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func NewDatabase(lc fx.Lifecycle, cfg *config.Config, log *zap.Logger) (*gorm.DB, error) {
	db, err := database.NewConnection(cfg.DSN(), log)
	if err != nil {
		return nil, err
	}
	log.Info("connected to PostgreSQL", zap.String("host", cfg.DBHost), zap.String("db", cfg.DBName))

	lc.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			sqlDB, err := db.DB()
			if err != nil {
				return err
			}
			return sqlDB.Close()
		},
	})
	return db, nil
}

func NewBus(cfg *config.Config, log *zap.Logger) *realtime.Bus {
	return realtime.NewBus(cfg.BusBuffer, log.Named("bus"))
}

func NewNotificationService(
	notifications repository.NotificationRepository,
	requests repository.RequestRepository,
	steps repository.StepRepository,
	users repository.UserRepository,
	txManager repository.TransactionManager,
	locks *service.RequestLocks,
	events service.EventPublisher,
	cfg *config.Config,
	log *zap.Logger,
) service.NotificationService {
	return service.NewNotificationService(service.NotificationDeps{
		Notifications: notifications,
		Requests:      requests,
		Steps:         steps,
		Users:         users,
		TxManager:     txManager,
		Locks:         locks,
		Events:        events,
		Timeout:       cfg.StoreTimeout,
		Log:           log.Named("notifications"),
	})
}

func NewNotificationQueue(svc service.NotificationService, cfg *config.Config, log *zap.Logger) *service.NotificationQueue {
	return service.NewNotificationQueue(svc, cfg.NotifyQueueSize, cfg.StoreTimeout, log.Named("notify_queue"))
}

func NewLedgerService(
	requests repository.RequestRepository,
	steps repository.StepRepository,
	effects repository.EffectRepository,
	inventory repository.InventoryRepository,
	users repository.UserRepository,
	audit repository.AuditRepository,
	txManager repository.TransactionManager,
	locks *service.RequestLocks,
	events service.EventPublisher,
	notifier service.Notifier,
	cfg *config.Config,
	log *zap.Logger,
) service.LedgerService {
	return service.NewLedgerService(service.LedgerDeps{
		Requests:  requests,
		Steps:     steps,
		Effects:   effects,
		Inventory: inventory,
		Users:     users,
		Audit:     audit,
		TxManager: txManager,
		Policy:    service.ChainPolicy{AdminThreshold: cfg.AdminThreshold},
		Locks:     locks,
		Events:    events,
		Notifier:  notifier,
		Timeout:   cfg.StoreTimeout,
		Log:       log.Named("ledger"),
	})
}

func NewEffectExecutor(
	effects repository.EffectRepository,
	orders repository.PurchaseOrderRepository,
	inventory repository.InventoryRepository,
	audit repository.AuditRepository,
	txManager repository.TransactionManager,
	log *zap.Logger,
) service.EffectExecutor {
	return service.NewEffectExecutor(effects, orders, inventory, audit, txManager, log.Named("effects"))
}

func NewApprovalService(
	requests repository.RequestRepository,
	steps repository.StepRepository,
	audit repository.AuditRepository,
	txManager repository.TransactionManager,
	executor service.EffectExecutor,
	locks *service.RequestLocks,
	events service.EventPublisher,
	notifier service.Notifier,
	cfg *config.Config,
	log *zap.Logger,
) service.ApprovalService {
	return service.NewApprovalService(service.ApprovalDeps{
		Requests:  requests,
		Steps:     steps,
		Audit:     audit,
		TxManager: txManager,
		Executor:  executor,
		Locks:     locks,
		Events:    events,
		Notifier:  notifier,
		Timeout:   cfg.StoreTimeout,
		Log:       log.Named("approvals"),
	})
}

func NewReconcileService(requests repository.RequestRepository, steps repository.StepRepository, notify service.NotificationService, cfg *config.Config, log *zap.Logger) *service.ReconcileService {
	return service.NewReconcileService(requests, steps, notify, cfg.ReconcileGrace, cfg.StoreTimeout, log.Named("reconcile"))
}

func NewUserService(repo repository.UserRepository, cfg *config.Config) service.UserService {
	return service.NewUserService(repo, []byte(cfg.JWTSecret), cfg.StoreTimeout)
}

func NewAuditService(repo repository.AuditRepository, cfg *config.Config) service.AuditService {
	return service.NewAuditService(repo, cfg.StoreTimeout)
}

func NewInventoryService(repo repository.InventoryRepository, cfg *config.Config) service.InventoryService {
	return service.NewInventoryService(repo, cfg.StoreTimeout)
}

func NewHub(bus *realtime.Bus, cfg *config.Config, log *zap.Logger) *websocket.Hub {
	return websocket.NewHub(bus, []byte(cfg.JWTSecret), log.Named("ws"))
}

func NewHandlers(
	cfg *config.Config,
	users service.UserService,
	ledger service.LedgerService,
	approvals service.ApprovalService,
	notifications service.NotificationService,
	audit service.AuditService,
	inventory service.InventoryService,
) handler.Handlers {
	return handler.Handlers{
		Users:         handler.NewUserHandler(users, middleware.Authenticate([]byte(cfg.JWTSecret)), cfg.IsProduction()),
		Requests:      handler.NewRequestHandler(ledger, audit),
		Approvals:     handler.NewApprovalHandler(approvals, ledger),
		Notifications: handler.NewNotificationHandler(notifications),
		Inventory:     handler.NewInventoryHandler(inventory),
	}
}

// StartServer runs the HTTP server for the lifetime of the app.
func StartServer(lc fx.Lifecycle, router *gin.Engine, cfg *config.Config, log *zap.Logger) {
	srv := &http.Server{Addr: ":" + cfg.Port, Handler: router}
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				log.Info("server listening", zap.String("port", cfg.Port))
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					log.Fatal("server failed", zap.Error(err))
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			return srv.Shutdown(ctx)
		},
	})
}

// StartWorkers owns the background pieces: the notification worker, the reconciler
// and the realtime bus. Stop order drains notices before sessions are closed.
func StartWorkers(lc fx.Lifecycle, queue *service.NotificationQueue, reconciler *service.ReconcileService, bus *realtime.Bus, hub *websocket.Hub, cfg *config.Config, log *zap.Logger) {
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			queue.Start()
			return reconciler.Start(cfg.ReconcileSchedule)
		},
		OnStop: func(ctx context.Context) error {
			reconciler.Stop()
			stopCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
			defer cancel()
			if err := queue.Stop(stopCtx); err != nil {
				log.Warn("notification queue did not drain", zap.Error(err))
			}
			hub.Shutdown()
			bus.Close()
			return nil
		},
	})
}

// @title           Procurement Approval API
// @version         1.0
// @description     Multi-level approval workflow for purchase and inventory change requests.
// @host            localhost:8080
// @BasePath        /
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
func main() {
	app := fx.New(
		fx.Provide(
			config.LoadConfig,
			logger.NewLogger,
			NewDatabase,

			repository.NewTransactionManager,
			repository.NewUserRepository,
			repository.NewRequestRepository,
			repository.NewStepRepository,
			repository.NewEffectRepository,
			repository.NewPurchaseOrderRepository,
			repository.NewInventoryRepository,
			repository.NewNotificationRepository,
			repository.NewAuditRepository,

			NewBus,
			func(b *realtime.Bus) service.EventPublisher { return b },
			service.NewRequestLocks,

			NewNotificationService,
			NewNotificationQueue,
			func(q *service.NotificationQueue) service.Notifier { return q },
			NewLedgerService,
			NewEffectExecutor,
			NewApprovalService,
			NewReconcileService,
			NewUserService,
			NewAuditService,
			NewInventoryService,

			NewHub,
			NewHandlers,
			handler.NewRouter,
		),
		fx.WithLogger(func(log *zap.Logger) fxevent.Logger {
			return &fxevent.ZapLogger{Logger: log}
		}),
		fx.Invoke(
			StartWorkers,
			StartServer,
		),
	)

	app.Run()
}
