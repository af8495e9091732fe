// cmd/pipeline-manager/main.go
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	_ "net/http/pprof"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/camunda/zeebe/clients/go/v8/pkg/entities"
	"github.com/camunda/zeebe/clients/go/v8/pkg/worker"
	"github.com/camunda/zeebe/clients/go/v8/pkg/zbc"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"meetingsync/internal/approval"
	"meetingsync/internal/audit"
	commonaws "meetingsync/internal/common/aws"
	"meetingsync/internal/common/camunda"
	"meetingsync/internal/common/config"
	"meetingsync/internal/common/database"
	"meetingsync/internal/common/logger"
	"meetingsync/internal/common/observability"
	"meetingsync/internal/crm"
	"meetingsync/internal/models"
	"meetingsync/internal/notify"
	"meetingsync/internal/session"
	"meetingsync/internal/store"

	// Session Workers
	cs "meetingsync/internal/workers/sessions/create-session"
	xs "meetingsync/internal/workers/sessions/expire-sessions"

	// Sync Workers
	ecs "meetingsync/internal/workers/sync/execute-crm-sync"
)

// retryWithBackoff attempts to execute a function with exponential backoff
func retryWithBackoff(operation func() error, maxRetries int, initialDelay time.Duration, log *zap.Logger, operationName string) error {
	var err error
	delay := initialDelay

	for i := 0; i < maxRetries; i++ {
		err = operation()
		if err == nil {
			return nil
		}

		if i < maxRetries-1 {
			log.Warn(fmt.Sprintf("%s failed, retrying...", operationName),
				zap.Error(err),
				zap.Int("attempt", i+1),
				zap.Int("maxRetries", maxRetries),
				zap.Duration("nextRetryIn", delay),
			)
			time.Sleep(delay)
			delay *= 2 // Exponential backoff
		}
	}

	return fmt.Errorf("%s failed after %d attempts: %w", operationName, maxRetries, err)
}

func main() {
	zapLog := logger.New("info", "console")
	defer zapLog.Sync()

	// Wrap zap logger with our logger interface
	log := logger.NewZapAdapter(zapLog)

	zapLog.Info("Starting pipeline manager...")

	cfg, err := config.Load()
	if err != nil {
		zapLog.Fatal("config load failed", zap.Error(err))
	}

	obs := observability.New("pipeline-manager")
	defer obs.Shutdown()

	ctx := context.Background()

	// --- Init Zeebe Client with retry ---
	var camundaClient *camunda.Client
	err = retryWithBackoff(func() error {
		var err error
		camundaClient, err = camunda.NewClientWithConfig(&camunda.ClientConfig{
			GatewayAddress:         cfg.Camunda.BrokerAddress,
			UsePlaintextConnection: true,
			ConnectionTimeout:      10 * time.Second,
			RequestTimeout:         time.Duration(cfg.Camunda.RequestTimeout) * time.Millisecond,
			RetryConfig:            camunda.DefaultRetryConfig,
		})
		return err
	}, 10, 2*time.Second, zapLog, "Zeebe client initialization")

	if err != nil {
		zapLog.Fatal("zeebe client failed after retries", zap.Error(err))
	}
	zeebeClient := camundaClient.GetClient()
	zapLog.Info("Zeebe client connected successfully")

	// --- Init PostgreSQL with retry ---
	var pg *database.PostgresClient
	err = retryWithBackoff(func() error {
		var err error
		pg, err = database.NewPostgres(cfg.Database.Postgres)
		if err != nil {
			return err
		}
		// Test the connection with context
		return pg.Ping(ctx)
	}, 15, 2*time.Second, zapLog, "PostgreSQL connection")

	if err != nil {
		zapLog.Fatal("postgres failed after retries", zap.Error(err))
	}
	defer pg.Close()
	zapLog.Info("PostgreSQL connected successfully")

	// --- Init Elasticsearch with retry ---
	var esClient *database.ElasticsearchClient
	err = retryWithBackoff(func() error {
		var err error
		esClient, err = database.NewElasticsearch(cfg.Database.Elasticsearch)
		if err != nil {
			return err
		}
		// Test the connection
		return esClient.Ping()
	}, 15, 2*time.Second, zapLog, "Elasticsearch connection")

	if err != nil {
		zapLog.Fatal("elasticsearch failed after retries", zap.Error(err))
	}
	zapLog.Info("Elasticsearch connected successfully")

	// --- Init Redis with retry ---
	var redis *database.RedisClient
	err = retryWithBackoff(func() error {
		var err error
		redis, err = database.NewRedis(cfg.Database.Redis)
		if err != nil {
			return err
		}
		// Test the connection with context
		return redis.Ping(ctx)
	}, 10, 2*time.Second, zapLog, "Redis connection")

	if err != nil {
		zapLog.Fatal("redis failed after retries", zap.Error(err))
	}
	defer redis.Close()
	zapLog.Info("Redis connected successfully")

	// --- Init AWS Clients (optional, notifications only) ---
	var sesClient *commonaws.SESClient
	var snsClient *commonaws.SNSClient
	if cfg.Notifications.Email.Enabled {
		sesClient, err = commonaws.NewSESClient(ctx, cfg.Notifications.AWS.Region)
		if err != nil {
			zapLog.Warn("SES client init failed, email notifications disabled", zap.Error(err))
			sesClient = nil
		}
	}
	if cfg.Notifications.SMS.Enabled {
		snsClient, err = commonaws.NewSNSClient(ctx, cfg.Notifications.AWS.Region)
		if err != nil {
			zapLog.Warn("SNS client init failed, SMS notifications disabled", zap.Error(err))
			snsClient = nil
		}
	}

	// --- Repositories ---
	draftRepo := store.NewPostgresDraftRepository(pg.DB)
	syncRepo := store.NewPostgresSyncRecordRepository(pg.DB)
	leadDir := store.NewPostgresLeadDirectory(pg.DB)

	var sessionRepo models.SessionRepository = store.NewPostgresSessionRepository(pg.DB)
	if ttl := cfg.Database.Redis.CacheTTL; ttl > 0 {
		sessionRepo = store.NewCachedSessionRepository(
			sessionRepo, redis.Client, time.Duration(ttl)*time.Second, log,
		)
		zapLog.Info("Session cache enabled", zap.Int("ttl_seconds", ttl))
	}

	// --- Domain Services ---
	auditSink := audit.NewIndexer(esClient, cfg.Database.Elasticsearch.AuditIndex, log)
	if err := auditSink.Bootstrap(ctx); err != nil {
		zapLog.Warn("Audit index bootstrap failed", zap.Error(err))
	}

	sessionManager := session.NewManager(
		sessionRepo, draftRepo, leadDir, auditSink,
		time.Duration(cfg.Sessions.DefaultDurationHours)*time.Hour,
		cfg.Sessions.AuditMaxEntries,
		log,
	)

	registry, err := crm.NewRegistry(cfg.CRM, log)
	if err != nil {
		zapLog.Fatal("crm registry init failed", zap.Error(err))
	}
	crmService := crm.NewService(registry, sessionRepo, draftRepo, leadDir, log)
	coordinator := approval.NewCoordinator(sessionRepo, syncRepo, draftRepo, registry, sessionManager, log)

	notifier := notify.NewNotifier(sesClient, snsClient, cfg.Notifications, log)

	zapLog.Info("All domain services initialized",
		zap.Int("crm_providers", len(registry.Systems())),
	)

	// --- START: Register Workers ---

	// --- 1. Session Workers ---
	if cfg.Workers[cs.TaskType].Enabled {
		handler := cs.NewHandler(
			&cs.Config{
				Timeout: time.Duration(cfg.Workers[cs.TaskType].Timeout) * time.Millisecond,
			},
			draftRepo, sessionManager, notifier, log,
		)
		startWorker(zeebeClient, cs.TaskType, cfg.Workers[cs.TaskType], handler.Handle, zapLog)
	}

	if cfg.Workers[xs.TaskType].Enabled {
		handler := xs.NewHandler(
			&xs.Config{
				Timeout:        time.Duration(cfg.Workers[xs.TaskType].Timeout) * time.Millisecond,
				ReminderWindow: 2 * time.Hour,
			},
			sessionManager, notifier, log,
		)
		startWorker(zeebeClient, xs.TaskType, cfg.Workers[xs.TaskType], handler.Handle, zapLog)
	}

	// --- 2. Sync Workers ---
	if cfg.Workers[ecs.TaskType].Enabled {
		handler := ecs.NewHandler(
			&ecs.Config{
				Timeout: time.Duration(cfg.Workers[ecs.TaskType].Timeout) * time.Millisecond,
			},
			syncRepo, sessionRepo, coordinator, crmService, notifier, log,
		)
		startWorker(zeebeClient, ecs.TaskType, cfg.Workers[ecs.TaskType], handler.Handle, zapLog)
	}

	zapLog.Info("All workers registered successfully")

	// --- Health & Metrics Server ---
	go func() {
		http.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusOK)
			json.NewEncoder(w).Encode(map[string]string{
				"status": "healthy",
				"time":   time.Now().Format(time.RFC3339),
			})
		})
		http.HandleFunc("/ready", func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			checks := map[string]func() error{
				"camunda":       func() error { return camundaClient.HealthCheck(r.Context()) },
				"postgres":      func() error { return pg.Ping(r.Context()) },
				"redis":         func() error { return redis.Ping(r.Context()) },
				"elasticsearch": esClient.Ping,
			}
			failures := map[string]string{}
			for name, check := range checks {
				if err := check(); err != nil {
					failures[name] = err.Error()
				}
			}
			if len(failures) > 0 {
				w.WriteHeader(http.StatusServiceUnavailable)
				json.NewEncoder(w).Encode(map[string]interface{}{
					"status":   "not ready",
					"failures": failures,
				})
				return
			}
			w.WriteHeader(http.StatusOK)
			json.NewEncoder(w).Encode(map[string]string{
				"status": "ready",
				"time":   time.Now().Format(time.RFC3339),
			})
		})
		http.Handle("/metrics", promhttp.Handler())
		zapLog.Info("Health/Metrics server listening on :8080")
		if err := http.ListenAndServe(":8080", nil); err != nil {
			zapLog.Error("Health/Metrics server failed", zap.Error(err))
		}
	}()

	// --- Graceful Shutdown ---
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	zapLog.Info("Shutdown signal received, stopping workers...")

	if err := camundaClient.Close(); err != nil {
		zapLog.Error("Error closing Zeebe client", zap.Error(err))
	}

	zapLog.Info("Pipeline manager stopped gracefully")
}

func startWorker(client zbc.Client, taskType string, wcfg config.WorkerConfig, handlerFunc func(worker.JobClient, entities.Job), log *zap.Logger) {
	if !wcfg.Enabled {
		log.Info("worker disabled", zap.String("taskType", taskType))
		return
	}

	client.NewJobWorker().
		JobType(taskType).
		Handler(handlerFunc).
		MaxJobsActive(wcfg.MaxJobsActive).
		Timeout(time.Duration(wcfg.Timeout) * time.Millisecond).
		Open()

	log.Info("worker started",
		zap.String("taskType", taskType),
		zap.Int("maxJobsActive", wcfg.MaxJobsActive),
		zap.Int("timeout_ms", wcfg.Timeout),
	)
}
