// promotctl advances one application version one stage per invocation,
// or rolls a released version back. It is meant to run inside a CI job:
// configuration comes from the environment, flags override it.
package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"flag"
	"log"
	"os"
	"time"

	_ "github.com/lib/pq"

	"github.com/bookverse/promotion/internal/apptrust"
	"github.com/bookverse/promotion/internal/audit"
	"github.com/bookverse/promotion/internal/config"
	"github.com/bookverse/promotion/internal/evidence"
	"github.com/bookverse/promotion/internal/promotion"
	"github.com/bookverse/promotion/internal/stage"
)

func main() {
	rollback := flag.Bool("rollback", false, "roll the version back instead of advancing it")
	dryRun := flag.Bool("dry-run", false, "with -rollback, report what would happen without calling the platform")
	app := flag.String("application", "", "application key (overrides PROMOTION_APPLICATION_KEY)")
	version := flag.String("version", "", "version (overrides PROMOTION_VERSION)")
	target := flag.String("target-stage", "", "target stage (overrides PROMOTION_TARGET_STAGE)")
	release := flag.Bool("release", false, "authorize the terminal release hop for this run")
	trace := flag.String("trace", "", "request tracing: none, basic or verbose (overrides PROMOTION_TRACE)")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config load: %v", err)
	}
	if *app != "" {
		cfg.ApplicationKey = *app
	}
	if *version != "" {
		cfg.Version = *version
	}
	if *target != "" {
		cfg.TargetStage = *target
	}
	if *release {
		cfg.ReleaseAllowed = true
	}
	if *trace != "" {
		cfg.TraceLevel = *trace
	}
	if !*rollback && cfg.TargetStage == "" {
		log.Fatalf("PROMOTION_TARGET_STAGE (or -target-stage) required")
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

	var signer *evidence.Ed25519Signer
	if cfg.SigningKeyB64 != "" {
		signer, err = evidence.NewEd25519SignerFromB64(cfg.SigningKeyB64, cfg.SigningKeyID)
		if err != nil {
			log.Fatalf("signer init: %v", err)
		}
	}
	var attacher promotion.Attacher
	if !*rollback {
		var evSigner evidence.Signer
		if signer != nil {
			evSigner = signer
		}
		attacher = evidence.NewAttacher(client, evSigner, evidence.NewPolicy(cfg.ProviderID, cfg.CommitSHA), cfg.WorkDir, log.Default())
	}

	var auditSigner audit.Signer
	if signer != nil {
		auditSigner = signer
	}

	ctx := context.Background()
	trail, closeTrail, err := buildTrail(ctx, cfg.Audit, auditSigner)
	if err != nil {
		log.Fatalf("audit trail: %v", err)
	}
	defer closeTrail()

	orch := promotion.New(client, ladder, attacher, trail, log.Default())

	if *rollback {
		outcome, err := orch.Rollback(ctx, promotion.RollbackRequest{
			ApplicationKey: cfg.ApplicationKey,
			Version:        cfg.Version,
			DryRun:         *dryRun,
		})
		if err != nil {
			log.Fatalf("rollback: %v", err)
		}
		report(outcome, outcome.Advisories)
		return
	}

	outcome, err := orch.AdvanceOneStep(ctx, promotion.StepRequest{
		ApplicationKey:        cfg.ApplicationKey,
		Version:               cfg.Version,
		TargetStage:           cfg.TargetStage,
		ReleaseAllowed:        cfg.ReleaseAllowed,
		ReleaseRepositoryKeys: cfg.ReleaseRepositoryKeys,
	})
	if err != nil {
		log.Fatalf("advance: %v", err)
	}
	report(outcome, outcome.Advisories)
}

// report prints the outcome as JSON on stdout so pipeline steps can
// consume it, and echoes advisories on the log.
func report(outcome interface{}, advisories []promotion.Advisory) {
	for _, adv := range advisories {
		log.Printf("advisory: %s", adv.Message)
	}
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	_ = enc.Encode(outcome)
}

// buildTrail assembles the configured audit sinks into one fan-out.
// All sinks are optional; with none configured the trail is nil and
// the orchestrator skips auditing.
func buildTrail(ctx context.Context, cfg config.Audit, signer audit.Signer) (audit.Trail, func(), error) {
	var sinks []audit.Trail
	var closers []func()

	if cfg.Dir != "" {
		sinks = append(sinks, audit.NewFileTrail(cfg.Dir, signer))
	}
	if cfg.DatabaseURL != "" {
		db, err := sql.Open("postgres", cfg.DatabaseURL)
		if err != nil {
			return nil, nil, err
		}
		db.SetMaxOpenConns(5)
		db.SetConnMaxLifetime(30 * time.Minute)
		trail := audit.NewPGTrail(db, signer)
		if err := trail.Ping(ctx); err != nil {
			db.Close()
			return nil, nil, err
		}
		sinks = append(sinks, trail)
		closers = append(closers, func() { db.Close() })
	}
	if len(cfg.KafkaBrokers) > 0 {
		emitter, err := audit.NewKafkaEmitter(audit.KafkaEmitterConfig{
			Brokers: cfg.KafkaBrokers,
			Topic:   cfg.KafkaTopic,
		})
		if err != nil {
			return nil, nil, err
		}
		sinks = append(sinks, emitter)
		closers = append(closers, func() { emitter.Close() })
	}
	if cfg.S3Bucket != "" {
		archiver, err := audit.NewS3Archiver(ctx, cfg.S3Bucket, cfg.S3Prefix)
		if err != nil {
			return nil, nil, err
		}
		sinks = append(sinks, archiver)
	}

	closeAll := func() {
		for _, c := range closers {
			c()
		}
	}
	if len(sinks) == 0 {
		return nil, closeAll, nil
	}
	return audit.NewFanout(sinks...), closeAll, nil
}
