package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Skyhug-AI/skyhug-backend/internal/db"
	"github.com/Skyhug-AI/skyhug-backend/internal/dispatch"
	"github.com/Skyhug-AI/skyhug-backend/internal/httpapi"
	"github.com/Skyhug-AI/skyhug-backend/internal/metrics"
	"github.com/Skyhug-AI/skyhug-backend/internal/prompt"
	"github.com/Skyhug-AI/skyhug-backend/internal/realtime"
	"github.com/Skyhug-AI/skyhug-backend/internal/summarizer"
	"github.com/Skyhug-AI/skyhug-backend/internal/transcribe"
	"github.com/Skyhug-AI/skyhug-backend/internal/tts"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const warmupTimeout = 10 * time.Second

func newServeCmd() *cobra.Command {
	var (
		configPath string
		port       int
		migrate    bool
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the API server, change-feed trigger and summarizer",
		Long: "Starts the HTTP API, subscribes to message changes to generate replies and transcriptions, " +
			"and periodically closes inactive conversations.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd, configPath, port, migrate)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", defaultConfigPath, "path to Skyhug config file")
	cmd.Flags().IntVarP(&port, "port", "p", 0, "port to listen on (overrides http.port)")
	cmd.Flags().BoolVar(&migrate, "migrate", false, "migrate tables before starting")
	return cmd
}

// server is the fully wired set of long-running components.
type server struct {
	httpOpts        httpapi.StartOpts
	trigger         *realtime.Trigger
	summarizer      *summarizer.Service
	cleanupInterval time.Duration
	scheduleCleanup bool
	warmups         []func(context.Context)
}

func runServe(cmd *cobra.Command, configPath string, port int, migrate bool) error {
	a, err := connectFromConfig(configPath)
	if err != nil {
		return err
	}
	defer a.log.Sync() //nolint:errcheck

	if migrate {
		if err := db.AutoMigrate(a.store.DB()); err != nil {
			return err
		}
	}
	if port > 0 {
		a.cfg.HTTP.Port = port
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	srv, err := buildServer(a, reg)
	if err != nil {
		return err
	}
	srv.httpOpts.Out = cmd.OutOrStdout()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	warmCtx, cancel := context.WithTimeout(ctx, warmupTimeout)
	for _, w := range srv.warmups {
		w(warmCtx)
	}
	cancel()

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return httpapi.Start(ctx, srv.httpOpts) })
	g.Go(func() error { return srv.trigger.Run(ctx) })
	if srv.scheduleCleanup {
		g.Go(func() error { return srv.summarizer.Schedule(ctx, srv.cleanupInterval) })
	}

	a.log.Info("skyhug started",
		zap.String("version", Version),
		zap.Int("port", a.cfg.HTTP.Port),
		zap.String("realtime_mode", a.cfg.Realtime.Mode),
	)
	if err := g.Wait(); err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), "Shut down cleanly")
	return nil
}

func buildServer(a *app, reg *prometheus.Registry) (*server, error) {
	cfg := a.cfg
	m := metrics.New(reg)

	builder, err := prompt.NewBuilder(prompt.BuilderOpts{
		Store:        a.store,
		Completer:    a.client,
		Cache:        prompt.NewSessionCache(cfg.SessionCacheSize),
		SummaryModel: cfg.OpenAI.FastModel,
		Logger:       a.log.Named("prompt"),
	})
	if err != nil {
		return nil, err
	}

	dispatcher, err := dispatch.New(dispatch.Opts{
		Store:         a.store,
		Builder:       builder,
		Completer:     a.client,
		Models:        dispatch.Models{Fast: cfg.OpenAI.FastModel, Deep: cfg.OpenAI.DeepModel},
		PublicBaseURL: cfg.HTTP.PublicBaseURL,
		Metrics:       m,
		Logger:        a.log.Named("dispatch"),
	})
	if err != nil {
		return nil, err
	}

	srv := &server{
		cleanupInterval: cfg.Summarizer.Interval(),
		scheduleCleanup: !cfg.Summarizer.Disabled,
	}
	if cfg.OpenAI.Warmup {
		srv.warmups = append(srv.warmups, func(ctx context.Context) {
			if err := a.client.Warmup(ctx, cfg.OpenAI.FastModel, cfg.OpenAI.DeepModel); err != nil {
				a.log.Warn("openai warmup failed", zap.Error(err))
			}
		})
	}

	var transcriber realtime.Handler
	if cfg.Storage.BaseURL != "" {
		audio, err := transcribe.NewStorageSource(transcribe.StorageOpts{
			BaseURL:    cfg.Storage.BaseURL,
			Bucket:     cfg.Storage.Bucket,
			ServiceKey: cfg.Storage.ServiceKey,
		})
		if err != nil {
			return nil, err
		}
		svc, err := transcribe.New(transcribe.Opts{
			Store:       a.store,
			Audio:       audio,
			Transcriber: a.client,
			Next:        dispatcher,
			Metrics:     m,
			Logger:      a.log.Named("transcribe"),
		})
		if err != nil {
			return nil, err
		}
		transcriber = svc
	} else {
		a.log.Warn("storage.base_url not set; voice messages will not be transcribed")
	}

	eleven, err := tts.NewElevenLabs(tts.ElevenLabsOpts{
		APIKey:  cfg.ElevenLabs.APIKey,
		BaseURL: cfg.ElevenLabs.BaseURL,
	})
	if err != nil {
		return nil, err
	}
	speech, err := tts.New(tts.Opts{
		Store:          a.store,
		Synthesizer:    eleven,
		DefaultVoiceID: cfg.ElevenLabs.VoiceID,
		Logger:         a.log.Named("tts"),
	})
	if err != nil {
		return nil, err
	}
	if cfg.ElevenLabs.Warmup && cfg.ElevenLabs.VoiceID != "" {
		srv.warmups = append(srv.warmups, func(ctx context.Context) {
			eleven.Warmup(ctx, cfg.ElevenLabs.VoiceID)
		})
	}

	srv.summarizer, err = a.summarizer(m)
	if err != nil {
		return nil, err
	}

	feed, err := newFeed(a)
	if err != nil {
		return nil, err
	}
	opts := realtime.TriggerOpts{
		Feed:       feed,
		Dispatcher: dispatcher,
		Catchup:    a.store,
		Workers:    cfg.Realtime.Workers,
		Metrics:    m,
		Logger:     a.log.Named("realtime"),
	}
	if transcriber != nil {
		opts.Transcriber = transcriber
	}
	srv.trigger, err = realtime.NewTrigger(opts)
	if err != nil {
		return nil, err
	}

	srv.httpOpts = httpapi.StartOpts{
		Opts: httpapi.Opts{
			Speech:          speech,
			Summarizer:      srv.summarizer,
			CleanupInterval: cfg.Summarizer.Interval(),
			Gatherer:        reg,
			Logger:          a.log.Named("http"),
		},
		Port: cfg.HTTP.Port,
	}
	return srv, nil
}

func newFeed(a *app) (realtime.ChangeFeed, error) {
	log := a.log.Named("feed")
	onState := func(s realtime.State) {
		log.Info("feed state", zap.Stringer("state", s))
	}
	rc := a.cfg.Realtime
	if rc.Mode == "socket" {
		return realtime.NewSocketFeed(realtime.SocketFeedOpts{
			URL:     rc.URL,
			APIKey:  rc.APIKey,
			Channel: rc.Channel,
			OnState: onState,
			Logger:  log,
		})
	}
	return realtime.NewPollFeed(realtime.PollFeedOpts{
		Source:   a.store,
		Interval: rc.PollInterval(),
		OnState:  onState,
		Logger:   log,
	})
}
