package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	gcsclient "cloud.google.com/go/storage"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/cna-research/geoharvest/internal/allowlist"
	"github.com/cna-research/geoharvest/internal/api"
	"github.com/cna-research/geoharvest/internal/browse"
	"github.com/cna-research/geoharvest/internal/classify"
	"github.com/cna-research/geoharvest/internal/config"
	"github.com/cna-research/geoharvest/internal/controller"
	"github.com/cna-research/geoharvest/internal/cursor"
	"github.com/cna-research/geoharvest/internal/fetch"
	"github.com/cna-research/geoharvest/internal/identifiers"
	"github.com/cna-research/geoharvest/internal/ledger"
	"github.com/cna-research/geoharvest/internal/logging"
	"github.com/cna-research/geoharvest/internal/missing"
	"github.com/cna-research/geoharvest/internal/notify"
	notifypubsub "github.com/cna-research/geoharvest/internal/notify/pubsub"
	"github.com/cna-research/geoharvest/internal/sink"
	"github.com/cna-research/geoharvest/internal/sink/gcs"
	"github.com/cna-research/geoharvest/internal/sink/local"
	sinkmemory "github.com/cna-research/geoharvest/internal/sink/memory"
	"github.com/cna-research/geoharvest/internal/status"
	"github.com/cna-research/geoharvest/internal/status/sinks"
)

var (
	resumePage  int
	searchTitle string
)

func newHarvestCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "harvest",
		Short: "Runs one harvest pass over the catalog",
		Long: `Submits the catalog search, resumes from the persisted page cursor,
and walks each listing page in order, transferring every allowlisted
document that is not already in storage.`,
		RunE: runHarvestCommand,
	}
	cmd.Flags().IntVar(&resumePage, "resume-page", 0, "override the persisted resume page (0 uses the cursor file)")
	cmd.Flags().StringVar(&searchTitle, "title", "", "optional title filter posted with the search form")
	return cmd
}

func runHarvestCommand(cmd *cobra.Command, _ []string) error {
	path := cfgFile
	if path == "" {
		if _, err := os.Stat("config.yaml"); err == nil {
			path = "config.yaml"
		}
	}
	cfg, err := config.Load(path)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger, err := logging.New(cfg.Logging.Development)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer logger.Sync() //nolint:errcheck // best-effort flush
	zap.ReplaceGlobals(logger)

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	ids, err := identifiers.LoadFile(cfg.Identifiers.Path)
	if err != nil {
		return fmt.Errorf("load identifiers: %w", err)
	}
	if len(ids) == 0 {
		return fmt.Errorf("no identifiers loaded from %s; refusing to harvest with an empty allowlist", cfg.Identifiers.Path)
	}
	allow := allowlist.Build(ids)
	logger.Info("allowlist loaded",
		zap.String("path", cfg.Identifiers.Path),
		zap.Int("identifiers", allow.Len()))

	classifier := classify.New(cfg.Catalog.Extensions, cfg.Catalog.ExternalPrefix, allow)

	fetchClient := fetch.New(fetch.Config{
		UserAgent:       cfg.Catalog.UserAgent,
		PageTimeout:     cfg.Fetch.PageTimeout(),
		ArtifactTimeout: cfg.Fetch.ArtifactTimeout(),
		Attempts:        cfg.Fetch.Attempts,
		RetryDelay:      cfg.Fetch.RetryDelay(),
	}, logger)

	dest, cleanup, err := buildDestination(ctx, cfg.Sink, logger)
	if err != nil {
		return err
	}
	defer cleanup()

	transfers := sink.New(sink.Config{
		Prefix:       cfg.Sink.Prefix,
		SkipKeywords: cfg.Sink.SkipKeywords,
	}, dest, fetchClient, allow, logger)

	cursorStore := cursor.New(cfg.Progress.CursorPath)
	missingLog, err := missing.Open(cfg.Progress.MissingPath)
	if err != nil {
		return fmt.Errorf("open missing log: %w", err)
	}

	registry := prometheus.NewRegistry()
	promSink, err := sinks.NewPrometheusSink(registry)
	if err != nil {
		return fmt.Errorf("init metrics: %w", err)
	}
	tracker := sinks.NewTracker()
	hubSinks := []status.Sink{sinks.NewLogSink(logger), promSink, tracker}

	if cfg.Ledger.DSN != "" {
		ldgr, lerr := ledger.New(ctx, ledger.Config{
			DSN:      cfg.Ledger.DSN,
			MaxConns: cfg.Ledger.MaxConns,
			MinConns: cfg.Ledger.MinConns,
		})
		if lerr != nil {
			return fmt.Errorf("init ledger: %w", lerr)
		}
		hubSinks = append(hubSinks, ldgr)
	}

	if cfg.PubSub.Topic != "" {
		pub, perr := notifypubsub.New(ctx, cfg.PubSub.ProjectID)
		if perr != nil {
			return fmt.Errorf("init pubsub: %w", perr)
		}
		defer pub.Close() //nolint:errcheck // best-effort close
		notifier, nerr := notify.New(pub, cfg.PubSub.Topic)
		if nerr != nil {
			return fmt.Errorf("init notifier: %w", nerr)
		}
		hubSinks = append(hubSinks, notifier)
	}

	hub := status.NewHub(status.Config{Logger: logger}, hubSinks...)
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if cerr := hub.Close(closeCtx); cerr != nil {
			logger.Warn("status hub close failed", zap.Error(cerr))
		}
	}()

	pause := controller.NewPause()
	if cfg.Server.Enabled {
		shutdown := startStatusServer(cfg.Server.Port, tracker, pause, registry, logger)
		defer shutdown()
	}

	session, err := browse.New(browse.Config{
		BaseURL:     cfg.Catalog.BaseURL,
		EntryPath:   cfg.Catalog.EntryPath,
		DisplayPath: cfg.Catalog.DisplayPath,
		TitleField:  cfg.Catalog.TitleField,
		SearchTitle: searchTitle,
		UserAgent:   cfg.Catalog.UserAgent,
		NavTimeout:  cfg.Catalog.NavTimeout(),
		SettleDelay: cfg.Catalog.SettleDelay(),
		Headless:    cfg.Catalog.Headless,
	}, logger)
	if err != nil {
		return fmt.Errorf("open browse session: %w", err)
	}

	ctrl := controller.New(controller.Config{
		BaseURL:        cfg.Catalog.BaseURL,
		DisplayPath:    cfg.Catalog.DisplayPath,
		ResumeOverride: resumePage,
	}, session, classifier, transfers, fetchClient, cursorStore, missingLog, hub, pause, logger)

	if err := ctrl.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("run harvest: %w", err)
	}
	logger.Info("harvest finished")
	return nil
}

func buildDestination(ctx context.Context, cfg config.SinkConfig, logger *zap.Logger) (sink.Destination, func(), error) {
	switch cfg.Backend {
	case "gcs":
		client, err := gcsclient.NewClient(ctx)
		if err != nil {
			return nil, nil, fmt.Errorf("create gcs client: %w", err)
		}
		store, err := gcs.New(client, gcs.Config{Bucket: cfg.GCSBucket})
		if err != nil {
			client.Close() //nolint:errcheck // already failing
			return nil, nil, fmt.Errorf("init gcs destination: %w", err)
		}
		cleanup := func() {
			if cerr := client.Close(); cerr != nil {
				logger.Warn("gcs client close failed", zap.Error(cerr))
			}
		}
		return store, cleanup, nil
	case "local":
		store, err := local.New(local.Config{BaseDir: cfg.LocalDir})
		if err != nil {
			return nil, nil, fmt.Errorf("init local destination: %w", err)
		}
		return store, func() {}, nil
	case "memory":
		return sinkmemory.New(), func() {}, nil
	default:
		return nil, nil, fmt.Errorf("unknown sink backend %q", cfg.Backend)
	}
}

func startStatusServer(
	port int,
	tracker *sinks.Tracker,
	pause *controller.Pause,
	registry *prometheus.Registry,
	logger *zap.Logger,
) func() {
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           api.NewServer(tracker, pause, registry, logger).Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		logger.Info("status server listening", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Warn("status server failed", zap.Error(err))
		}
	}()
	return func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Warn("status server shutdown failed", zap.Error(err))
		}
	}
}
