// Command server wires the trust registry: stores, services, audit
// pipeline, and the HTTP surface. Business logic lives in the internal
// service packages; this file only assembles them.
package main

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	_ "github.com/lib/pq"
	"golang.org/x/sync/errgroup"

	"credence/internal/anchor"
	"credence/internal/apikey"
	"credence/internal/badge"
	"credence/internal/certificate"
	"credence/internal/dispute"
	"credence/internal/identity"
	"credence/internal/jwttoken"
	"credence/internal/platform/config"
	"credence/internal/platform/httpserver"
	"credence/internal/platform/logger"
	"credence/internal/platform/metrics"
	platformredis "credence/internal/platform/redis"
	"credence/internal/policy"
	"credence/internal/proof"
	httptransport "credence/internal/transport/http"
	"credence/internal/trust"
	"credence/internal/verification"
	id "credence/pkg/domain"
	"credence/pkg/platform/audit"
	auditpublisher "credence/pkg/platform/audit/publisher"
	auditkafka "credence/pkg/platform/audit/store/kafka"
	auditmemory "credence/pkg/platform/audit/store/memory"
	auditpostgres "credence/pkg/platform/audit/store/postgres"
	auditworker "credence/pkg/platform/audit/worker"
	"credence/pkg/platform/keylock"
)

const trustCacheTTL = 5 * time.Minute

func main() {
	cfg := config.FromEnv()
	log := logger.New()
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	root, err := rootAdmin(cfg)
	if err != nil {
		log.Error("invalid root admin", "error", err)
		os.Exit(1)
	}
	log.Info("root admin bootstrapped", "subject", root.String())

	// Storage backends. Postgres when a DSN is configured, in-memory
	// otherwise so the binary runs self-contained in development.
	var db *sql.DB
	var pool *pgxpool.Pool
	if cfg.PostgresDSN != "" {
		db, err = sql.Open("postgres", cfg.PostgresDSN)
		if err != nil {
			log.Error("open postgres", "error", err)
			os.Exit(1)
		}
		defer db.Close()

		pool, err = pgxpool.New(ctx, cfg.PostgresDSN)
		if err != nil {
			log.Error("open pgx pool", "error", err)
			os.Exit(1)
		}
		defer pool.Close()
	}

	// Audit pipeline: buffered channel, background worker, durable store.
	// Kafka, when configured, receives a tee'd copy of every event.
	var auditStore audit.Store
	if db != nil {
		auditStore = auditpostgres.New(db)
	} else {
		auditStore = auditmemory.New()
	}
	if len(cfg.Kafka.Brokers) > 0 {
		kafkaStore, err := auditkafka.New(ctx, cfg.Kafka.Brokers, cfg.Kafka.AuditTopic)
		if err != nil {
			log.Error("connect kafka audit sink", "error", err)
			os.Exit(1)
		}
		defer kafkaStore.Close()
		auditStore = audit.Tee(auditStore, kafkaStore)
	}
	auditInbox := make(chan audit.Event, 1024)
	publisher := auditpublisher.New(auditInbox, log)
	worker := auditworker.NewWorker(auditStore, auditInbox, log)

	m := metrics.New()
	locks := keylock.New()
	gate := policy.Bootstrap(root, policy.WithLogger(log), policy.WithAuditPublisher(publisher))

	// Each component mutates trust scores through its own actor identity so
	// every adjustment in the audit trail names its origin.
	identityActor := id.NewSubjectID()
	certificateActor := id.NewSubjectID()
	badgeActor := id.NewSubjectID()
	disputeActor := id.NewSubjectID()
	verificationActor := id.NewSubjectID()
	for _, actor := range []id.SubjectID{identityActor, certificateActor, badgeActor, disputeActor, verificationActor} {
		if err := gate.Grant(ctx, root, policy.CapScoreWriter, actor); err != nil {
			log.Error("grant score writer", "error", err)
			os.Exit(1)
		}
	}
	if err := gate.Grant(ctx, root, policy.CapRegistryWriter, verificationActor); err != nil {
		log.Error("grant registry writer", "error", err)
		os.Exit(1)
	}

	var identityStore identity.Store
	if db != nil {
		identityStore = identity.NewPostgresStore(db)
	} else {
		identityStore = identity.NewInMemoryStore()
	}

	var trustStore trust.Store = trust.NewInMemoryStore()
	redisClient, err := platformredis.New(cfg.Redis)
	if err != nil {
		log.Error("connect redis", "error", err)
		os.Exit(1)
	}
	if redisClient != nil {
		defer redisClient.Close()
		trustStore = trust.NewCachedStore(trustStore, redisClient, trustCacheTTL)
	}

	trustSvc, err := trust.New(trustStore, gate, locks,
		trust.WithLogger(log), trust.WithAuditPublisher(publisher), trust.WithMetrics(m))
	if err != nil {
		log.Error("build trust service", "error", err)
		os.Exit(1)
	}

	identitySvc, err := identity.New(identityStore, gate, locks, trustSvc.InitializerAs(identityActor),
		identity.WithLogger(log), identity.WithAuditPublisher(publisher), identity.WithMetrics(m))
	if err != nil {
		log.Error("build identity service", "error", err)
		os.Exit(1)
	}

	certificateSvc, err := certificate.New(certificate.NewInMemoryStore(), gate, locks,
		identitySvc, trustSvc, proof.NewOpaqueChecker(), certificateActor,
		certificate.WithLogger(log), certificate.WithAuditPublisher(publisher), certificate.WithMetrics(m))
	if err != nil {
		log.Error("build certificate service", "error", err)
		os.Exit(1)
	}

	badgeSvc, err := badge.New(badge.NewInMemoryStore(), gate, locks, trustSvc, certificateSvc, badgeActor,
		badge.WithLogger(log), badge.WithAuditPublisher(publisher), badge.WithMetrics(m))
	if err != nil {
		log.Error("build badge service", "error", err)
		os.Exit(1)
	}

	var escrow dispute.Escrow
	if pool != nil {
		escrow = dispute.NewPostgresEscrow(pool)
	} else {
		escrow = dispute.NewInMemoryEscrow()
	}
	disputeSvc, err := dispute.New(dispute.NewInMemoryStore(), escrow, gate, locks,
		trustSvc, dispute.NewLogSlasher(log), cfg.Dispute, disputeActor,
		dispute.WithLogger(log), dispute.WithAuditPublisher(publisher), dispute.WithMetrics(m))
	if err != nil {
		log.Error("build dispute service", "error", err)
		os.Exit(1)
	}

	verificationMgr, err := verification.New(identitySvc, trustSvc, verificationActor,
		verification.WithLogger(log))
	if err != nil {
		log.Error("build verification manager", "error", err)
		os.Exit(1)
	}

	anchorSvc, err := anchor.New(anchor.NewInMemoryStore(), gate, identitySvc,
		anchor.WithLogger(log), anchor.WithAuditPublisher(publisher))
	if err != nil {
		log.Error("build anchor service", "error", err)
		os.Exit(1)
	}

	tokens := jwttoken.NewService(cfg.JWTSigningKey, "credence", "credence")
	keyring := apikey.NewKeyring()

	router := httptransport.NewRouter(httptransport.Deps{
		Identity:       identitySvc,
		Trust:          trustSvc,
		Certificates:   certificateSvc,
		Badges:         badgeSvc,
		Disputes:       disputeSvc,
		Anchors:        anchorSvc,
		Verification:   verificationMgr,
		Policy:         gate,
		Keys:           keyring,
		TokenValidator: tokens,
		APIKeys:        keyring,
		Logger:         log,
	})
	srv := httpserver.New(cfg.Addr, router)

	log.Info("starting credence", "addr", cfg.Addr)

	g, runCtx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := worker.Run(runCtx); err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-runCtx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		log.Error("server exited", "error", err)
		os.Exit(1)
	}
	log.Info("shutdown complete")
}

func rootAdmin(cfg config.Server) (id.SubjectID, error) {
	if cfg.RootAdmin == "" {
		return id.NewSubjectID(), nil
	}
	return id.ParseSubjectID(cfg.RootAdmin)
}
