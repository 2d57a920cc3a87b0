package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"

	"github.com/MarkoPoloResearchLab/cmsconsole/internal/dyntable"
	"github.com/MarkoPoloResearchLab/cmsconsole/internal/gateway"
	"github.com/MarkoPoloResearchLab/cmsconsole/internal/httpapi"
	"github.com/MarkoPoloResearchLab/cmsconsole/internal/metrics"
	"github.com/MarkoPoloResearchLab/cmsconsole/internal/password"
	"github.com/MarkoPoloResearchLab/cmsconsole/internal/realtime"
	"github.com/MarkoPoloResearchLab/cmsconsole/internal/storage"
	"github.com/MarkoPoloResearchLab/cmsconsole/internal/task"
)

const (
	loggerCreationErrorMessage = "logger"
	logEventListening          = "listening"
	logEventShutdown           = "shutdown"
	logEventRealtimeDisabled   = "realtime_disabled"
	logFieldAddress            = "addr"
	readHeaderTimeout          = 5 * time.Second
	shutdownTimeout            = 10 * time.Second
	maintenanceInterval        = 5 * time.Minute
	maintenanceTaskName        = "maintenance"
	loginRequestsPerMinute     = 10
	forgotRequestsPerMinute    = 5
	healthCheckDatabase        = "database"
	healthCheckRealtime        = "realtime"
)

// console holds the wired components of one running process.
type console struct {
	router    http.Handler
	consumer  *realtime.Consumer
	scheduler *task.Scheduler
	events    *realtime.Broadcaster
}

func (application *ServerApplication) serve(ctx context.Context, serverConfig ServerConfig) error {
	logger, loggerErr := zap.NewProduction()
	if loggerErr != nil {
		return fmt.Errorf("%s: %w", loggerCreationErrorMessage, loggerErr)
	}
	defer func() {
		_ = logger.Sync()
	}()

	database, databaseErr := application.databaseOpener(storage.Config{
		DriverName:     serverConfig.DatabaseDriver,
		DataSourceName: serverConfig.DatabaseDSN,
	})
	if databaseErr != nil {
		return databaseErr
	}
	if migrateErr := storage.AutoMigrate(database); migrateErr != nil {
		return migrateErr
	}

	wired, wireErr := wireConsole(serverConfig, database, logger)
	if wireErr != nil {
		return wireErr
	}
	defer wired.events.Close()

	signalContext, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	group, groupContext := errgroup.WithContext(signalContext)

	httpServer := &http.Server{
		Addr:              serverConfig.ApplicationAddress,
		Handler:           wired.router,
		ReadHeaderTimeout: readHeaderTimeout,
		BaseContext: func(net.Listener) context.Context {
			return groupContext
		},
	}

	group.Go(func() error {
		logger.Info(logEventListening, zap.String(logFieldAddress, serverConfig.ApplicationAddress))
		if serveErr := httpServer.ListenAndServe(); serveErr != nil && !errors.Is(serveErr, http.ErrServerClosed) {
			return serveErr
		}
		return nil
	})
	group.Go(func() error {
		<-groupContext.Done()
		logger.Info(logEventShutdown)
		shutdownContext, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return httpServer.Shutdown(shutdownContext)
	})
	if wired.consumer != nil {
		group.Go(func() error {
			return wired.consumer.Run(groupContext)
		})
	}
	group.Go(func() error {
		return wired.scheduler.Run(groupContext)
	})

	return group.Wait()
}

func wireConsole(serverConfig ServerConfig, database *gorm.DB, logger *zap.Logger) (*console, error) {
	collector := metrics.NewCollector()

	journal, journalErr := storage.NewActivityJournal(database, logger)
	if journalErr != nil {
		return nil, journalErr
	}

	backend, backendErr := gateway.New(gateway.Config{
		BaseURL: serverConfig.BackendBaseURL,
		Metrics: collector,
		Logger:  logger,
	})
	if backendErr != nil {
		return nil, backendErr
	}

	consoleConfig, consoleConfigErr := loadConsoleConfig(serverConfig.ConsoleConfigPath)
	if consoleConfigErr != nil {
		return nil, consoleConfigErr
	}

	unread := realtime.NewUnreadTracker()
	events := realtime.NewBroadcaster()

	pages, pagesErr := httpapi.NewPages(httpapi.PagesConfig{
		Menu:     consoleConfig.Menu(),
		Unread:   unread,
		Renderer: dyntable.NewRenderer(serverConfig.AssetBaseURL),
		Logger:   logger,
	})
	if pagesErr != nil {
		return nil, pagesErr
	}

	authManager, authErr := httpapi.NewAuthManager(httpapi.AuthConfig{
		Secret:       serverConfig.SessionSecret,
		SecureCookie: serverConfig.SecureCookie,
		Logger:       logger,
	})
	if authErr != nil {
		return nil, authErr
	}

	wizard, wizardErr := password.NewWizard(backend, journal)
	if wizardErr != nil {
		return nil, wizardErr
	}

	views := httpapi.NewViewRegistry(collector)
	consoleHandlers, consoleErr := httpapi.NewConsoleHandlers(httpapi.ConsoleHandlersConfig{
		Backend:  backend,
		Pages:    pages,
		Views:    views,
		Console:  consoleConfig,
		Unread:   unread,
		Events:   events,
		Recorder: journal,
		Logger:   logger,
	})
	if consoleErr != nil {
		return nil, consoleErr
	}

	authHandlers := httpapi.NewAuthHandlers(httpapi.AuthHandlersConfig{
		Pages:         pages,
		Auth:          authManager,
		Authenticator: backend,
		Wizard:        wizard,
		Recorder:      journal,
		Logger:        logger,
	})

	activityHandlers, activityErr := httpapi.NewActivityHandlers(journal, logger)
	if activityErr != nil {
		return nil, activityErr
	}

	checks := []httpapi.HealthCheck{{Name: healthCheckDatabase, Probe: databaseProbe(database)}}
	var consumer *realtime.Consumer
	if serverConfig.RealtimeURL != "" {
		createdConsumer, consumerErr := realtime.NewConsumer(realtime.ConsumerConfig{
			URL:         serverConfig.RealtimeURL,
			Broadcaster: events,
			Unread:      unread,
			Metrics:     collector,
			Logger:      logger,
		})
		if consumerErr != nil {
			return nil, consumerErr
		}
		consumer = createdConsumer
		checks = append(checks, httpapi.HealthCheck{Name: healthCheckRealtime, Probe: consumer.Probe})
	} else {
		logger.Warn(logEventRealtimeDisabled)
	}

	loginThrottle := httpapi.NewThrottle(loginRequestsPerMinute)
	forgotThrottle := httpapi.NewThrottle(forgotRequestsPerMinute)

	maintenance, maintenanceErr := task.NewMaintenanceJob(task.MaintenanceConfig{
		Journal:          journal,
		Views:            views,
		Throttles:        []task.ThrottlePruner{loginThrottle, forgotThrottle},
		JournalRetention: serverConfig.JournalRetention,
		Logger:           logger,
	})
	if maintenanceErr != nil {
		return nil, maintenanceErr
	}

	router := buildRouter(routerDependencies{
		logger:           logger,
		metrics:          collector,
		authManager:      authManager,
		authHandlers:     authHandlers,
		consoleHandlers:  consoleHandlers,
		activityHandlers: activityHandlers,
		healthHandlers:   httpapi.NewHealthHandlers(logger, checks...),
		loginThrottle:    loginThrottle,
		forgotThrottle:   forgotThrottle,
		allowedOrigin:    serverConfig.AllowedOrigin,
	})

	return &console{
		router:   router,
		consumer: consumer,
		scheduler: task.NewScheduler(task.SchedulerConfig{
			Name:     maintenanceTaskName,
			Interval: maintenanceInterval,
			Runner:   maintenance.Run,
			Logger:   logger,
		}),
		events: events,
	}, nil
}

func databaseProbe(database *gorm.DB) func(context.Context) error {
	return func(ctx context.Context) error {
		sqlDatabase, sqlErr := database.DB()
		if sqlErr != nil {
			return sqlErr
		}
		return sqlDatabase.PingContext(ctx)
	}
}
