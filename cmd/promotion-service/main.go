// promotion-service exposes the promotion step over HTTP for pipeline
// controllers that prefer a service call over running the CLI in-job.
package main

import (
	"context"
	"database/sql"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/lib/pq"

	"github.com/bookverse/promotion/internal/apptrust"
	"github.com/bookverse/promotion/internal/audit"
	"github.com/bookverse/promotion/internal/auth"
	"github.com/bookverse/promotion/internal/config"
	"github.com/bookverse/promotion/internal/evidence"
	"github.com/bookverse/promotion/internal/httpserver"
	"github.com/bookverse/promotion/internal/promotion"
	"github.com/bookverse/promotion/internal/stage"
)

func main() {
	cfg, err := config.LoadService()
	if err != nil {
		log.Fatalf("config load: %v", err)
	}

	level, err := apptrust.ParseTraceLevel(cfg.TraceLevel)
	if err != nil {
		log.Fatalf("trace level: %v", err)
	}
	client, err := apptrust.New(apptrust.Config{
		BaseURL:    cfg.BaseURL,
		Token:      cfg.Token,
		ProjectKey: cfg.ProjectKey,
		Tracer:     apptrust.NewTracer(level, log.Default()),
	})
	if err != nil {
		log.Fatalf("platform client: %v", err)
	}
	ladder, err := stage.NewLadder(cfg.ProjectKey, cfg.Stages)
	if err != nil {
		log.Fatalf("stage ladder: %v", err)
	}

	var evSigner evidence.Signer
	var auditSigner audit.Signer
	if cfg.SigningKeyB64 != "" {
		signer, err := evidence.NewEd25519SignerFromB64(cfg.SigningKeyB64, cfg.SigningKeyID)
		if err != nil {
			log.Fatalf("signer init: %v", err)
		}
		evSigner = signer
		auditSigner = signer
	}
	attacher := evidence.NewAttacher(client, evSigner, evidence.NewPolicy(cfg.ProviderID, cfg.CommitSHA), cfg.WorkDir, log.Default())

	var sinks []audit.Trail
	var pinger httpserver.Pinger
	if cfg.Audit.Dir != "" {
		sinks = append(sinks, audit.NewFileTrail(cfg.Audit.Dir, auditSigner))
	}
	if cfg.Audit.DatabaseURL != "" {
		db, err := sql.Open("postgres", cfg.Audit.DatabaseURL)
		if err != nil {
			log.Fatalf("db open: %v", err)
		}
		defer db.Close()
		db.SetMaxOpenConns(10)
		db.SetMaxIdleConns(5)
		db.SetConnMaxLifetime(30 * time.Minute)
		trail := audit.NewPGTrail(db, auditSigner)
		if err := trail.Ping(context.Background()); err != nil {
			log.Fatalf("db ping: %v", err)
		}
		sinks = append(sinks, trail)
		pinger = trail
	}
	if len(cfg.Audit.KafkaBrokers) > 0 {
		emitter, err := audit.NewKafkaEmitter(audit.KafkaEmitterConfig{
			Brokers: cfg.Audit.KafkaBrokers,
			Topic:   cfg.Audit.KafkaTopic,
		})
		if err != nil {
			log.Fatalf("kafka emitter: %v", err)
		}
		defer emitter.Close()
		sinks = append(sinks, emitter)
	}
	if cfg.Audit.S3Bucket != "" {
		archiver, err := audit.NewS3Archiver(context.Background(), cfg.Audit.S3Bucket, cfg.Audit.S3Prefix)
		if err != nil {
			log.Fatalf("s3 archiver: %v", err)
		}
		sinks = append(sinks, archiver)
	}
	var trail audit.Trail
	if len(sinks) > 0 {
		trail = audit.NewFanout(sinks...)
	}

	var verifier *auth.Verifier
	if cfg.AuthPublicKeyB64 != "" {
		verifier, err = auth.NewVerifier(cfg.AuthPublicKeyB64, cfg.AuthScope)
		if err != nil {
			log.Fatalf("auth verifier: %v", err)
		}
	} else {
		log.Printf("PROMOTION_AUTH_PUBLIC_KEY_B64 not set, write endpoints are unauthenticated")
	}

	orch := promotion.New(client, ladder, attacher, trail, log.Default())
	server := httpserver.New(orch, verifier, pinger, log.Default())

	httpServer := &http.Server{
		Addr:    cfg.Addr,
		Handler: server.Router(),
	}

	go func() {
		log.Printf("promotion service listening on %s", cfg.Addr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("http server error: %v", err)
		}
	}()

	waitForShutdown(httpServer)
}

func waitForShutdown(srv *http.Server) {
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Printf("graceful shutdown failed: %v", err)
	}
}
