// Package main is the entry point for the TarXiv pipeline binary.
package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Shopify/sarama"

	"github.com/tarxiv/tarxiv/internal/buildinfo"
	"github.com/tarxiv/tarxiv/internal/catalog"
	"github.com/tarxiv/tarxiv/internal/checkpoint"
	"github.com/tarxiv/tarxiv/internal/config"
	"github.com/tarxiv/tarxiv/internal/detection"
	"github.com/tarxiv/tarxiv/internal/events"
	"github.com/tarxiv/tarxiv/internal/lightcurve"
	"github.com/tarxiv/tarxiv/internal/mail"
	"github.com/tarxiv/tarxiv/internal/matcher"
	"github.com/tarxiv/tarxiv/internal/notify"
	"github.com/tarxiv/tarxiv/internal/opstate"
	"github.com/tarxiv/tarxiv/internal/reconciler"
	"github.com/tarxiv/tarxiv/internal/schema"
	"github.com/tarxiv/tarxiv/internal/sources"

	_ "github.com/mattn/go-sqlite3"
)

// sinkTopic is the topic the matcher publishes MatchCandidates to and
// the reconciler consumes from — the Go rendering of finders.py's
// Spark-sink topic.
const sinkTopic = "spark-sink"

// matcherGroupID/reconcilerGroupID name the consumer groups each
// long-running subcommand joins. reconcilerGroupID matches
// finders.py's hardcoded "xmatch_group".
const (
	matcherGroupID    = "tarxiv-matcher"
	reconcilerGroupID = "xmatch_group"
)

func main() {
	configPath := flag.String("config", "", "path to config file")
	flag.Parse()

	if flag.NArg() == 0 {
		printUsage()
		return
	}

	bootLogger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))

	switch flag.Arg(0) {
	case "matcher":
		runMatcher(bootLogger, *configPath)
	case "reconciler":
		runReconciler(bootLogger, *configPath)
	case "fusion":
		runFusion(bootLogger, *configPath)
	case "mailwatch":
		runMailwatch(bootLogger, *configPath)
	case "ingest-survey":
		if flag.NArg() < 2 {
			fmt.Fprintln(os.Stderr, "usage: tarxiv ingest-survey <atlas|ztf|asas-sn|lsst>")
			os.Exit(1)
		}
		runIngestSurvey(bootLogger, *configPath, flag.Arg(1))
	case "version":
		fmt.Println(buildinfo.String())
		for k, v := range buildinfo.BuildInfo() {
			fmt.Printf("  %-12s %s\n", k+":", v)
		}
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n", flag.Arg(0))
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println("TarXiv - Cross-Survey Transient Aggregator")
	fmt.Println()
	fmt.Println("Commands:")
	fmt.Println("  matcher        Run the spatial stream matcher")
	fmt.Println("  reconciler     Run the match reconciler")
	fmt.Println("  fusion         Run the light-curve fusion sweeper")
	fmt.Println("  mailwatch      Run the TNS mail alert listener")
	fmt.Println("  ingest-survey  Run one survey adapter's alert ingestion loop")
	fmt.Println("  version        Show version")
	fmt.Println()
	fmt.Println("Flags:")
	flag.PrintDefaults()
}

// bootstrap loads config.yml and the authoritative environment
// variable set. Fatal to the caller on either failure, matching
// spec.md §7's "fatal initialization errors" rule.
func bootstrap(configPath string) (*config.Config, config.Env) {
	path, err := config.FindConfig(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}
	cfg, err := config.Load(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}
	return cfg, config.LoadEnv()
}

func newModuleLogger(cfg *config.Config, module string) *slog.Logger {
	level, _ := config.ParseLogLevel(cfg.LogLevel)
	logger, err := config.NewLogger(config.Print|config.Logfile, module, cfg, level)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logging: %v\n", err)
		os.Exit(1)
	}
	return logger
}

// runCtx returns a context cancelled on SIGINT/SIGTERM, the top-level
// cancellation source for every subcommand (SPEC_FULL.md §13).
func runCtx() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
}

// openCatalog dials Couchbase using the pipeline-role credentials.
func openCatalog(ctx context.Context, env config.Env, logger *slog.Logger) *catalog.Store {
	if err := env.RequirePipelineCouchbase(); err != nil {
		logger.Error("missing couchbase credentials", "error", err)
		os.Exit(1)
	}
	store, err := catalog.Open(ctx, catalog.Options{
		ConnectionString: env.CouchbaseHost,
		Username:         env.CouchbasePipelineUsername,
		Password:         env.CouchbasePipelinePassword,
	})
	if err != nil {
		logger.Error("catalog open failed", "error", err)
		os.Exit(1)
	}
	return store
}

func openNotifier(env config.Env, logger *slog.Logger) *notify.Publisher {
	if err := env.RequireKafka(); err != nil {
		logger.Error("missing kafka host", "error", err)
		os.Exit(1)
	}
	pub, err := notify.NewPublisher([]string{env.KafkaHost}, logger)
	if err != nil {
		logger.Error("notify publisher open failed", "error", err)
		os.Exit(1)
	}
	return pub
}

func openCheckpointer(logger *slog.Logger) (*sql.DB, *checkpoint.Checkpointer) {
	db, err := sql.Open("sqlite3", "tarxiv-checkpoint.db")
	if err != nil {
		logger.Error("checkpoint db open failed", "error", err)
		os.Exit(1)
	}
	cp, err := checkpoint.NewCheckpointer(db, checkpoint.Config{PeriodicDetections: 5000}, logger)
	if err != nil {
		logger.Error("checkpointer init failed", "error", err)
		os.Exit(1)
	}
	return db, cp
}

// runMatcher consumes raw per-survey detections off cfg.XMatchIngestTopic
// and runs the spatial stream matcher over them, publishing
// MatchCandidates to sinkTopic.
func runMatcher(bootLogger *slog.Logger, configPath string) {
	cfg, env := bootstrap(configPath)
	logger := newModuleLogger(cfg, "matcher")
	if err := env.RequireKafka(); err != nil {
		logger.Error("missing kafka host", "error", err)
		os.Exit(1)
	}

	ctx, cancel := runCtx()
	defer cancel()

	bus, err := detection.NewBus([]string{env.KafkaHost}, logger)
	if err != nil {
		logger.Error("detection bus open failed", "error", err)
		os.Exit(1)
	}
	defer bus.Close()

	m := matcher.New(matcher.Config{
		Window:       time.Duration(cfg.XMatchWindowLen) * time.Hour,
		RadiusArcsec: cfg.XMatchRadius,
		SinkTopic:    sinkTopic,
	}, bus, logger)

	db, cp := openCheckpointer(logger)
	defer db.Close()
	if err := m.UseCheckpointer(cp); err != nil {
		logger.Error("checkpointer wiring failed", "error", err)
		os.Exit(1)
	}

	group, err := detection.NewConsumerGroup([]string{env.KafkaHost}, matcherGroupID)
	if err != nil {
		logger.Error("join consumer group failed", "error", err)
		os.Exit(1)
	}
	defer group.Close()

	in := make(chan detection.DetectionEvent, 256)
	go func() {
		err := detection.RunConsumerGroup(ctx, group, []string{cfg.XMatchIngestTopic}, logger, func(ctx context.Context, msg *sarama.ConsumerMessage) error {
			var ev detection.DetectionEvent
			if err := decodeEvent(msg.Value, &ev); err != nil {
				logger.Error("decode detection event failed", "error", err)
				return nil
			}
			select {
			case in <- ev:
			case <-ctx.Done():
			}
			return nil
		})
		if err != nil {
			logger.Error("consumer group stopped", "error", err)
		}
		close(in)
	}()

	logger.Info("matcher starting", "window_hours", cfg.XMatchWindowLen, "radius_arcsec", cfg.XMatchRadius)
	if err := m.Run(ctx, in); err != nil && ctx.Err() == nil {
		logger.Error("matcher stopped", "error", err)
		os.Exit(1)
	}
	logger.Info("matcher stopped")
}

// runReconciler consumes MatchCandidates off sinkTopic and folds each
// into the catalog store.
func runReconciler(bootLogger *slog.Logger, configPath string) {
	cfg, env := bootstrap(configPath)
	logger := newModuleLogger(cfg, "reconciler")
	if err := env.RequireKafka(); err != nil {
		logger.Error("missing kafka host", "error", err)
		os.Exit(1)
	}

	ctx, cancel := runCtx()
	defer cancel()

	store := openCatalog(ctx, env, logger)
	defer store.Close()

	notifier := openNotifier(env, logger)
	defer notifier.Close()

	registry, err := schema.LoadRegistry(env.ConfigDir)
	if err != nil {
		logger.Warn("citation registry unavailable, hits will carry no sources", "error", err)
		registry = nil
	}

	adapters := buildAdapters(cfg, logger)

	rc := reconciler.New(reconciler.Config{
		XMatchIDLen:       cfg.XMatchIDLen,
		AssociatedSources: associatedSources(cfg),
	}, store, adapters, registry, notifier, logger)

	group, err := detection.NewConsumerGroup([]string{env.KafkaHost}, reconcilerGroupID)
	if err != nil {
		logger.Error("join consumer group failed", "error", err)
		os.Exit(1)
	}
	defer group.Close()

	logger.Info("reconciler starting")
	err = detection.RunConsumerGroup(ctx, group, []string{sinkTopic}, logger, func(ctx context.Context, msg *sarama.ConsumerMessage) error {
		var mc detection.MatchCandidate
		if err := decodeEvent(msg.Value, &mc); err != nil {
			logger.Error("decode match candidate failed", "error", err)
			return nil
		}
		return rc.Handle(ctx, mc)
	})
	if err != nil && ctx.Err() == nil {
		logger.Error("reconciler stopped", "error", err)
		os.Exit(1)
	}
	logger.Info("reconciler stopped")
}

// runFusion runs the periodic active-objects sweep, rebuilding every
// object still within its active window.
func runFusion(bootLogger *slog.Logger, configPath string) {
	cfg, env := bootstrap(configPath)
	logger := newModuleLogger(cfg, "fusion")

	ctx, cancel := runCtx()
	defer cancel()

	store := openCatalog(ctx, env, logger)
	defer store.Close()

	notifier := openNotifier(env, logger)
	defer notifier.Close()

	registry, err := schema.LoadRegistry(env.ConfigDir)
	if err != nil {
		logger.Warn("citation registry unavailable", "error", err)
		registry = nil
	}

	builder := buildBuilder(cfg, store, registry, notifier, logger)
	sweeper := lightcurve.NewSweeper(builder, store, cfg.TNS.ObjActiveDays, time.Hour, logger)

	logger.Info("fusion sweeper starting", "active_days", cfg.TNS.ObjActiveDays)
	if err := sweeper.Run(ctx); err != nil && ctx.Err() == nil {
		logger.Error("fusion sweeper stopped", "error", err)
		os.Exit(1)
	}
	logger.Info("fusion sweeper stopped")
}

// runMailwatch polls the configured mailbox for TNS notification
// emails and rebuilds the named object for each one.
func runMailwatch(bootLogger *slog.Logger, configPath string) {
	cfg, env := bootstrap(configPath)
	logger := newModuleLogger(cfg, "mailwatch")
	if err := env.RequireIMAP(); err != nil {
		logger.Error("missing imap credentials", "error", err)
		os.Exit(1)
	}

	ctx, cancel := runCtx()
	defer cancel()

	store := openCatalog(ctx, env, logger)
	defer store.Close()

	notifier := openNotifier(env, logger)
	defer notifier.Close()

	registry, err := schema.LoadRegistry(env.ConfigDir)
	if err != nil {
		logger.Warn("citation registry unavailable", "error", err)
		registry = nil
	}

	builder := buildBuilder(cfg, store, registry, notifier, logger)

	opstateDB, err := opstate.NewStore("tarxiv-opstate.db")
	if err != nil {
		logger.Error("opstate store open failed", "error", err)
		os.Exit(1)
	}
	defer opstateDB.Close()

	bus := events.New()

	client := mail.NewClient(mail.Params{
		Host:     cfg.IMAP.Server,
		Port:     cfg.IMAP.Port,
		Username: env.IMAPUsername,
		Password: env.IMAPPassword,
		TLS:      true,
	}, logger)

	handler := func(ctx context.Context, objName string) error {
		_, _, summary, err := builder.BuildObject(ctx, objName)
		if err != nil {
			return err
		}
		_ = opstateDB.Set("mailwatch", "last_obj_name", objName)
		_ = opstateDB.Set("mailwatch", "last_run_at", time.Now().UTC().Format(time.RFC3339))
		logger.Info("mail alert processed", "obj_name", objName, "status", summary.Status)
		return nil
	}

	interval := time.Duration(cfg.IMAP.PollingInterval) * time.Second
	listener := mail.NewListener(client, handler, interval, logger, bus)

	logger.Info("mailwatch starting", "server", cfg.IMAP.Server, "polling_interval_s", cfg.IMAP.PollingInterval)
	if err := listener.Run(ctx); err != nil && ctx.Err() == nil {
		logger.Error("mailwatch stopped", "error", err)
		os.Exit(1)
	}
	logger.Info("mailwatch stopped")
}

// runIngestSurvey runs one survey adapter's IngestAlerts loop,
// publishing each normalized DetectionEvent onto cfg.XMatchIngestTopic.
func runIngestSurvey(bootLogger *slog.Logger, configPath string, survey string) {
	cfg, env := bootstrap(configPath)
	logger := newModuleLogger(cfg, "ingest-"+survey)
	if err := env.RequireKafka(); err != nil {
		logger.Error("missing kafka host", "error", err)
		os.Exit(1)
	}

	ctx, cancel := runCtx()
	defer cancel()

	bus, err := detection.NewBus([]string{env.KafkaHost}, logger)
	if err != nil {
		logger.Error("detection bus open failed", "error", err)
		os.Exit(1)
	}
	defer bus.Close()

	adapter, ok := buildAdapters(cfg, logger)[detection.Source(survey)]
	if !ok {
		fmt.Fprintf(os.Stderr, "unknown survey: %s\n", survey)
		os.Exit(1)
	}

	out := make(chan detection.DetectionEvent, 256)
	go func() {
		for {
			select {
			case ev, ok := <-out:
				if !ok {
					return
				}
				if err := bus.PublishDetection(cfg.XMatchIngestTopic, ev); err != nil {
					logger.Error("publish detection failed", "obj_id", ev.ObjID, "error", err)
				}
			case <-ctx.Done():
				return
			}
		}
	}()

	logger.Info("survey ingestion starting", "survey", survey)
	if err := adapter.IngestAlerts(ctx, out); err != nil && ctx.Err() == nil {
		logger.Error("survey ingestion stopped", "error", err)
		os.Exit(1)
	}
	logger.Info("survey ingestion stopped", "survey", survey)
}

func buildAdapters(cfg *config.Config, logger *slog.Logger) map[detection.Source]sources.Adapter {
	return map[detection.Source]sources.Adapter{
		detection.SourceATLAS:  sources.NewATLASAdapter(cfg.ATLAS),
		detection.SourceZTF:    sources.NewZTFAdapter(cfg.ZTF, logger),
		detection.SourceASASSN: sources.NewASASSNAdapter(cfg.ASASSN, logger),
		detection.SourceLSST:   sources.NewLSSTAdapter(cfg.LSST, logger),
		detection.SourceTNS:    sources.NewTNSAdapter(cfg.TNS, "tarxiv", "tarxiv-pipeline"),
	}
}

// decodeEvent unmarshals a raw Kafka message value into dst.
func decodeEvent(raw []byte, dst any) error {
	return json.Unmarshal(raw, dst)
}

func associatedSources(cfg *config.Config) map[detection.Source][]string {
	return map[detection.Source][]string{
		detection.SourceATLAS:  cfg.ATLAS.AssociatedSources,
		detection.SourceZTF:    cfg.ZTF.AssociatedSources,
		detection.SourceASASSN: cfg.ASASSN.AssociatedSources,
		detection.SourceLSST:   cfg.LSST.AssociatedSources,
		detection.SourceTNS:    cfg.TNS.AssociatedSources,
	}
}

func buildBuilder(cfg *config.Config, store *catalog.Store, registry *schema.Registry, notifier *notify.Publisher, logger *slog.Logger) *lightcurve.Builder {
	all := buildAdapters(cfg, logger)
	tns := all[detection.SourceTNS]
	secondary := map[detection.Source]sources.Adapter{
		detection.SourceATLAS:  all[detection.SourceATLAS],
		detection.SourceZTF:    all[detection.SourceZTF],
		detection.SourceASASSN: all[detection.SourceASASSN],
	}
	lcCfg := lightcurve.NewConfigFromTNS(cfg.TNS, associatedSources(cfg))
	return lightcurve.NewBuilder(lcCfg, tns, secondary, store, registry, notifier, logger)
}
