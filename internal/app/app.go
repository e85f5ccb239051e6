// Package app wires the daemon together: config, logging, storage, the
// stats client, the tracking scheduler, the admin HTTP API and periodic
// maintenance.
package app

import (
	"context"
	"strings"
	"time"

	"viewtrack/internal/config"
	"viewtrack/internal/runtime/supervisor"
	"viewtrack/internal/search"
	"viewtrack/internal/server"
	"viewtrack/internal/stats"
	"viewtrack/internal/storage"
	"viewtrack/internal/tracker"
	logx "viewtrack/pkg/logx"
)

type App struct {
	cfgPath string

	cfgm *config.Manager
	sup  *supervisor.Supervisor

	log   logx.Logger
	logs  *logx.Service
	store storage.Store

	client  *stats.Client
	exec    *tracker.Executor
	sched   *tracker.Scheduler
	svc     *tracker.Service
	httpSrv *server.Server
	janitor *Janitor
}

func New(cfgPath string) (*App, error) {
	cfgm := config.NewManager(cfgPath)
	cfg, err := cfgm.Load()
	if err != nil {
		return nil, err
	}

	logSvc, log := logx.New(cfg.LogxConfig())
	log = log.With(logx.String("comp", "app"))

	storeCfg, err := cfg.StorageConfig()
	if err != nil {
		return nil, err
	}
	store, err := storage.Open(storeCfg, log.With(logx.String("comp", "storage")))
	if err != nil {
		return nil, err
	}
	log.Info("storage opened", logx.String("driver", storeCfg.Driver))

	provCfg, err := cfg.ProviderConfig()
	if err != nil {
		return nil, err
	}
	client, err := stats.NewClient(provCfg, log.With(logx.String("comp", "stats")))
	if err != nil {
		return nil, err
	}

	retryCfg, err := cfg.RetryConfig()
	if err != nil {
		return nil, err
	}
	exec := tracker.NewExecutor(store, client, retryCfg, log.With(logx.String("comp", "poll")))

	schedCfg, err := cfg.SchedulerConfig()
	if err != nil {
		return nil, err
	}
	sched := tracker.NewScheduler(store, exec, schedCfg, log.With(logx.String("comp", "scheduler")))

	index := search.NewMemory()
	svc := tracker.NewService(store, index, sched, log.With(logx.String("comp", "tracker")))

	srvCfg, err := cfg.ServerConfig()
	if err != nil {
		return nil, err
	}
	httpSrv := server.New(srvCfg, svc, log.With(logx.String("comp", "http")))

	checkpoint, retention, err := cfg.JanitorIntervals()
	if err != nil {
		return nil, err
	}
	jan := NewJanitor(JanitorConfig{
		CheckpointEvery: checkpoint,
		EventRetention:  retention,
	}, store, sched, log.With(logx.String("comp", "janitor")))

	return &App{
		cfgPath: cfgPath,
		cfgm:    cfgm,
		log:     log,
		logs:    logSvc,
		store:   store,
		client:  client,
		exec:    exec,
		sched:   sched,
		svc:     svc,
		httpSrv: httpSrv,
		janitor: jan,
	}, nil
}

// Done is closed when the app supervisor context is cancelled (fatal
// error or Stop).
func (a *App) Done() <-chan struct{} {
	if a.sup == nil {
		ch := make(chan struct{})
		close(ch)
		return ch
	}
	return a.sup.Context().Done()
}

// Err returns the first fatal error observed by the supervisor, if any.
func (a *App) Err() error {
	if a.sup == nil {
		return nil
	}
	return a.sup.Err()
}

func (a *App) Start(ctx context.Context) error {
	a.sup = supervisor.New(ctx, supervisor.WithLogger(a.log), supervisor.WithCancelOnError(true))
	a.cfgm.SetLogger(a.log.With(logx.String("comp", "config")))

	// Warm the title index before the API starts answering searches.
	if err := a.svc.Reindex(a.sup.Context()); err != nil {
		return err
	}

	a.sched.Start(a.sup.Context())
	a.janitor.Start(a.sup.Context())

	a.sup.Go("http.serve", func(c context.Context) error {
		return a.httpSrv.Run(c)
	})
	a.sup.GoRestart("config.watch", func(c context.Context) error {
		return a.cfgm.Watch(c)
	})

	sub := a.cfgm.Subscribe(8)
	a.sup.Go0("config.reload", func(c context.Context) {
		defer a.cfgm.Unsubscribe(sub)
		a.reloadLoop(c, sub)
	})

	a.log.Info("started", logx.String("config", a.cfgPath))
	return nil
}

// reloadLoop applies hot-reloadable sections of published config updates:
// logging, poll retries and the provider rate cap. Storage and listener
// changes need a restart and are only logged.
func (a *App) reloadLoop(ctx context.Context, sub chan *config.Config) {
	lastApplied := a.cfgm.Get()
	for {
		select {
		case <-ctx.Done():
			return
		case newCfg, ok := <-sub:
			if !ok {
				return
			}
			// Coalesce bursts: keep only the latest update.
			for {
				select {
				case newer := <-sub:
					if newer != nil {
						newCfg = newer
					}
				default:
					goto APPLY
				}
			}
		APPLY:
			sections, attrs := config.SummarizeChange(lastApplied, newCfg)
			if len(sections) == 0 {
				a.log.Debug("config reload received, no effective changes")
				continue
			}
			fields := append([]logx.Field{logx.String("changed", strings.Join(sections, ","))}, attrs...)
			a.log.Info("config change summary", fields...)
			prev := lastApplied
			lastApplied = newCfg

			for _, s := range sections {
				switch s {
				case "logging":
					a.logs.Apply(newCfg.LogxConfig())
				case "poll":
					if rc, err := newCfg.RetryConfig(); err == nil {
						a.exec.ApplyRetry(rc)
					} else {
						a.log.Warn("invalid poll config; keeping previous", logx.Err(err))
					}
				case "provider":
					a.client.SetRate(newCfg.Provider.RequestsPerSec)
					if prev == nil || newCfg.Provider.BaseURL != prev.Provider.BaseURL {
						a.log.Warn("provider.base_url changed; restart required to take effect")
					}
				case "storage", "server", "scheduler", "janitor":
					a.log.Warn("section changed; restart required to take effect",
						logx.String("section", s))
				}
			}
		}
	}
}

// Stop drains in the reverse of startup: no new polls, wait for in-flight
// work, stop the API and maintenance, then close storage.
func (a *App) Stop(ctx context.Context) error {
	if a.sup == nil {
		return nil
	}

	drainCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	a.sched.Stop(drainCtx)
	a.janitor.Stop()

	a.sup.Cancel()
	err := a.sup.Wait(drainCtx)

	if cerr := a.store.Checkpoint(context.Background()); cerr != nil {
		a.log.Warn("final checkpoint failed", logx.Err(cerr))
	}
	if cerr := a.store.Close(); cerr != nil && err == nil {
		err = cerr
	}

	a.log.Info("stopped")
	_ = a.logs.Close()
	return err
}
