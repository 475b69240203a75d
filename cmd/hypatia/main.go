package main

import (
	"context"
	"log"
	"log/slog"
	"net/http"
	"os"

	"github.com/pitabwire/frame"
	"github.com/pitabwire/frame/config"
	"github.com/pitabwire/frame/workerpool"

	hconfig "github.com/hypatia-tutor/hypatia/config"
	"github.com/hypatia-tutor/hypatia/internal/connectutil"
	"github.com/hypatia-tutor/hypatia/internal/logging"
	tutorhandler "github.com/hypatia-tutor/hypatia/internal/tutor/handler"
	"github.com/hypatia-tutor/hypatia/pkg/api"
	"github.com/hypatia-tutor/hypatia/pkg/choreo"
	"github.com/hypatia-tutor/hypatia/pkg/events"
	"github.com/hypatia-tutor/hypatia/pkg/hooks"
	"github.com/hypatia-tutor/hypatia/pkg/lesson"
	"github.com/hypatia-tutor/hypatia/pkg/stage"
	"github.com/hypatia-tutor/hypatia/pkg/transcript"
	"github.com/hypatia-tutor/hypatia/pkg/tutor"
	"github.com/hypatia-tutor/hypatia/pkg/urlvalidation"
)

func main() {
	ctx := context.Background()

	cfg, err := config.LoadWithOIDC[hconfig.TutorConfig](ctx)
	if err != nil {
		log.Fatalf("loading config: %v", err)
	}

	logger, closeLog, err := logging.New(logging.Options{
		Terminal: os.Stderr,
		File:     cfg.LogFile,
		Journal:  logging.UnderSystemd(),
	})
	if err != nil {
		log.Fatalf("setting up logging: %v", err)
	}
	defer closeLog()
	slog.SetDefault(logger)

	timing, err := cfg.Timing()
	if err != nil {
		log.Fatalf("%v", err)
	}
	policy, err := cfg.StagePolicy()
	if err != nil {
		log.Fatalf("%v", err)
	}

	eventRef := cfg.GetEventsQueueName()
	eventURL := cfg.GetEventsQueueURL()

	opts := []frame.Option{
		frame.WithConfig(&cfg),
		frame.WithName("hypatia"),
		frame.WithRegisterPublisher(eventRef, eventURL),
		frame.WithWorkerPoolOptions(
			workerpool.WithPoolCount(cfg.WorkerPoolCount),
			workerpool.WithSinglePoolCapacity(cfg.WorkerPoolCapacity),
		),
	}
	if cfg.TranscriptsEnabled {
		opts = append(opts, frame.WithDatastore())
	}
	if cfg.AuthEnabled {
		opts = append(opts, frame.WithRegisterServerOauth2Client())
	}

	ctx, srv := frame.NewService(opts...)
	defer srv.Stop(ctx)

	pool, err := srv.WorkManager().GetPool()
	if err != nil {
		log.Fatalf("getting worker pool: %v", err)
	}

	pub := events.NewPublisher(srv.QueueManager(), "hypatia", eventRef)

	// --- Lessons ---
	loader := lesson.NewLoader(cfg.LessonDir)
	if _, err := loader.LoadAll(); err != nil {
		log.Fatalf("loading lessons: %v", err)
	}
	if _, ok := loader.Get(cfg.DefaultLesson); !ok {
		log.Fatalf("default lesson %q not found", cfg.DefaultLesson)
	}
	if cfg.LessonDir != "" {
		_ = pool.Submit(ctx, func() {
			if err := loader.WatchAndReload(ctx.Done()); err != nil {
				slog.ErrorContext(ctx, "lesson watcher stopped", slog.String("error", err.Error()))
			}
		})
	}

	// --- Model ---
	if cfg.AnthropicAPIKey == "" {
		slog.Warn("ANTHROPIC_API_KEY is not set; every reply will fail")
	}
	model := tutor.NewClient(cfg.ClientConfig())

	// --- Renderer hook ---
	var renderer stage.Dispatcher
	if rc, ok := cfg.RendererConfig(); ok {
		var vopts []urlvalidation.Option
		if cfg.AllowPrivateHookIPs {
			vopts = append(vopts, urlvalidation.AllowPrivateIPs())
		}
		exec := hooks.NewExecutor(pub, vopts...)
		if err := exec.Validate(ctx, rc.Hook); err != nil {
			log.Fatalf("renderer hook: %v", err)
		}
		r := hooks.NewRenderer(exec, rc)
		if err := pool.Submit(ctx, func() { r.Run(ctx) }); err != nil {
			go r.Run(ctx)
		}
		renderer = r
	}

	// --- Tutor service ---
	tutorHdlr := tutorhandler.NewTutorHandler(loader, model, pub, pool, tutorhandler.Config{
		Timing:        timing,
		Policy:        policy,
		DefaultLesson: cfg.DefaultLesson,
		SessionTTL:    cfg.SessionTTL,
		MaxHistory:    cfg.MaxHistory,
		Renderer:      renderer,
	})
	defer tutorHdlr.Shutdown(context.Background())

	// --- Transcripts ---
	var (
		transcripts    *transcript.Repository
		subscriberOpts []frame.Option
	)
	if cfg.TranscriptsEnabled {
		transcripts = transcript.NewRepository(
			srv.DatastoreManager().GetPool(ctx, "__default__pool_name__"),
		)
		if err := transcripts.Migrate(ctx); err != nil {
			log.Fatalf("migrating transcripts: %v", err)
		}
		subscriberOpts = append(subscriberOpts, frame.WithRegisterSubscriber(
			eventRef+".transcripts", eventURL,
			&transcript.Subscriber{Store: transcripts, Skip: []events.EventType{events.HookResult}},
		))
	}

	// --- HTTP Mux ---
	mux := http.NewServeMux()

	connectOpts := connectutil.DefaultOptions()
	authenticator := srv.SecurityManager().GetAuthenticator(ctx)
	if cfg.AuthEnabled {
		connectOpts, err = connectutil.AuthenticatedOptions(ctx, authenticator)
		if err != nil {
			log.Fatalf("setting up auth interceptors: %v", err)
		}
	}
	path, h := tutorhandler.NewTutorServiceHandler(tutorHdlr, connectOpts...)
	mux.Handle(path, h)

	apiCfg := api.Config{
		Model:       model,
		Models:      model,
		Timing:      timing,
		DefaultMode: defaultMode(loader, cfg.DefaultLesson),
	}
	if transcripts != nil {
		apiCfg.Transcripts = transcripts
	}
	restMux := http.NewServeMux()
	api.NewHandler(apiCfg).RegisterRoutes(restMux)
	var rest http.Handler = restMux
	if cfg.AuthEnabled {
		rest = connectutil.AuthenticatedHTTPMiddleware(rest, authenticator)
	}
	mux.Handle("/api/", rest)

	tutorHdlr.StartReaper(ctx)

	srv.Init(ctx, append(subscriberOpts,
		frame.WithHTTPHandler(connectutil.H2CHandler(api.WithCORS(mux, cfg.Origins()))),
	)...)

	slog.InfoContext(ctx, "hypatia tutor starting",
		slog.String("model", model.Model()),
		slog.String("default_lesson", cfg.DefaultLesson),
		slog.String("cross_message_policy", string(policy)),
		slog.String("sequencer_policy", string(timing.Policy)))

	if err := srv.Run(ctx, ""); err != nil {
		log.Fatalf("service exited: %v", err)
	}
}

func defaultMode(loader *lesson.Loader, name string) choreo.Mode {
	if l, ok := loader.Get(name); ok {
		return l.Mode
	}
	return choreo.ModeAlgebraic
}
