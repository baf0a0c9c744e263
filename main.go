package main

import (
	"context"
	"errors"
	"flag"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/render"
	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
	socketio "github.com/zishang520/socket.io/v2/socket"

	"printdesign-server/config"
	"printdesign-server/export/persist"
	"printdesign-server/export/printzone"
	"printdesign-server/handlers/api/designs"
	"printdesign-server/handlers/api/export"
	"printdesign-server/handlers/api/snapshots"
	"printdesign-server/handlers/api/templates"
	"printdesign-server/handlers/auth"
	"printdesign-server/handlers/websocket"
	authMiddleware "printdesign-server/middleware"
	"printdesign-server/stores"
	"printdesign-server/stores/rediscache"
	"printdesign-server/stores/seed"
)

const (
	shutdownTimeout      = 10 * time.Second
	templateFetchTimeout = 5 * time.Second
)

type server struct {
	cfg        *config.Config
	store      stores.Store
	zoneSource printzone.TemplateSource
	tokens     *auth.Tokens
	auth       *auth.Handler
	limiter    *authMiddleware.RateLimiter
	relay      *websocket.Relay
	guard      *persist.Guard
}

func setupRouter(s *server) *chi.Mux {
	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   s.cfg.CORSOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "Content-Length", "Origin", "X-Requested-With"},
		ExposedHeaders:   []string{"X-Print-DPI"},
		AllowCredentials: true,
		MaxAge:           300, // Maximum value not ignored by any of major browsers
	}))

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		render.JSON(w, r, map[string]string{"status": "ok"})
	})

	r.Route("/api/v2", func(r chi.Router) {
		// Template geometry is public; the editor reads it before login.
		r.Route("/templates", func(r chi.Router) {
			r.Get("/", templates.HandleListTemplates(s.store))
			r.Route("/{templateId}", func(r chi.Router) {
				r.Get("/", templates.HandleGetTemplate(s.store))
				r.Get("/views/{viewId}", templates.HandleGetTemplateView(s.store))
			})
		})

		r.Group(func(r chi.Router) {
			r.Use(authMiddleware.AuthJWT(s.tokens))
			r.Route("/designs", func(r chi.Router) {
				r.Get("/", designs.HandleListDesigns(s.store))
				r.Route("/{designId}", func(r chi.Router) {
					r.Get("/", designs.HandleGetDesign(s.store))
					r.Put("/", designs.HandleSaveDesign(s.store))
					r.Delete("/", designs.HandleDeleteDesign(s.store))

					r.Get("/snapshots", snapshots.HandleListSnapshots(s.store))
					r.Route("/views/{viewId}/snapshot", func(r chi.Router) {
						r.Get("/", snapshots.HandleGetSnapshotFile(s.store))
						r.Put("/", snapshots.HandleUploadSnapshot(s.store, s.cfg.MaxUploadBytes))
					})

					r.With(s.limiter.Handler).Post("/export", export.HandleExport(export.Deps{
						Designs:        s.store,
						Templates:      s.store,
						TemplateSource: s.zoneSource,
						PublicBaseURL:  s.cfg.PublicBaseURL,
						Guard:          s.guard,
						Strokes:        s.cfg.PrintZoneStrokes,
						Notifier:       s.relay,
					}))
				})
			})
		})
	})

	r.Route("/auth", func(r chi.Router) {
		r.Get("/login", s.auth.HandleLogin)
		r.Get("/callback", s.auth.HandleCallback)
		r.Post("/refresh", s.auth.HandleRefresh)
	})

	return r
}

// openStore selects the backend, puts the Redis template cache in front of it
// when configured and applies the template seed file.
func openStore(ctx context.Context, cfg *config.Config) (stores.Store, *seed.Watcher, error) {
	store, err := stores.GetStore(ctx, cfg)
	if err != nil {
		return nil, nil, err
	}

	if cfg.RedisURL != "" {
		rdb, err := rediscache.NewClient(ctx, cfg.RedisURL)
		if err != nil {
			return nil, nil, err
		}
		store = stores.WithTemplateCache(store, rediscache.New(store, rdb, cfg.TemplateCacheTTL))
	}

	if cfg.TemplatesFile == "" {
		return store, nil, nil
	}
	ids, err := seed.LoadAndApply(ctx, store, cfg.TemplatesFile)
	if err != nil {
		return nil, nil, err
	}
	logrus.WithFields(logrus.Fields{
		"file":      cfg.TemplatesFile,
		"templates": len(ids),
	}).Info("Templates seeded")

	watcher, err := seed.Watch(ctx, cfg.TemplatesFile, store, seed.DefaultDebounce, nil)
	if err != nil {
		logrus.WithError(err).Warn("Template file will not be reloaded on change")
		return store, nil, nil
	}
	return store, watcher, nil
}

func waitForShutdown(cancel context.CancelFunc, srv *http.Server, ioo *socketio.Server, closers ...io.Closer) {
	signalC := make(chan os.Signal, 1)
	signal.Notify(signalC, os.Interrupt, syscall.SIGHUP, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)
	s := <-signalC
	logrus.WithField("signal", s.String()).Info("Shutting down...")

	ctx, done := context.WithTimeout(context.Background(), shutdownTimeout)
	defer done()
	if err := srv.Shutdown(ctx); err != nil {
		logrus.WithError(err).Warn("HTTP server did not shut down cleanly")
	}
	ioo.Close(nil)
	cancel()
	for _, c := range closers {
		if err := c.Close(); err != nil {
			logrus.WithError(err).Warn("Failed to close resource")
		}
	}
}

func main() {
	// Load .env file
	if err := godotenv.Load(); err != nil {
		logrus.Info("No .env file found")
	}

	listenAddress := flag.String("listen", ":3002", "The address to listen on.")
	logLevel := flag.String("loglevel", "info", "The log level (debug, info, warn, error).")
	flag.Parse()

	level, err := logrus.ParseLevel(*logLevel)
	if err != nil {
		logrus.Fatalf("Invalid log level: %v", err)
	}
	logrus.SetLevel(level)
	logrus.SetFormatter(&logrus.TextFormatter{
		FullTimestamp: true,
	})

	cfg, err := config.Load()
	if err != nil {
		logrus.Fatal(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	store, watcher, err := openStore(ctx, cfg)
	if err != nil {
		logrus.WithError(err).Fatal("Failed to open storage")
	}

	tokens := auth.NewTokens(cfg.JWTSecret, cfg.TokenTTL, cfg.RefreshWindow)
	ioo := websocket.SetupSocketIO(tokens, store, cfg.CORSOrigins)

	s := &server{
		cfg:     cfg,
		store:   store,
		tokens:  tokens,
		auth:    auth.New(ctx, cfg, tokens),
		limiter: authMiddleware.NewRateLimiter(ctx, cfg.ExportRateLimit, cfg.ExportRateBurst),
		relay:   websocket.NewRelay(ioo),
		guard:   persist.NewGuard(),
	}
	if cfg.TemplateSourceURL != "" {
		s.zoneSource = printzone.NewHTTPSource(cfg.TemplateSourceURL, &http.Client{Timeout: templateFetchTimeout})
		logrus.WithField("url", cfg.TemplateSourceURL).Info("Resolving print zones from remote templates")
	}
	r := setupRouter(s)
	r.Mount("/socket.io/", ioo.ServeHandler(nil))

	srv := &http.Server{Addr: *listenAddress, Handler: r}
	logrus.WithField("addr", *listenAddress).Info("starting server")
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logrus.WithField("event", "start server").Fatal(err)
		}
	}()

	var closers []io.Closer
	if watcher != nil {
		closers = append(closers, watcher)
	}
	if c, ok := store.(io.Closer); ok {
		closers = append(closers, c)
	}
	waitForShutdown(cancel, srv, ioo, closers...)
}
