package main

import (
	"context"
	"flag"
	"garment-designer/assets"
	"garment-designer/config"
	"garment-designer/designer"
	assetsApi "garment-designer/handlers/api/assets"
	"garment-designer/handlers/api/designs"
	"garment-designer/handlers/api/files"
	sessionsApi "garment-designer/handlers/api/sessions"
	"garment-designer/handlers/auth"
	"garment-designer/handlers/websocket"
	authMiddleware "garment-designer/middleware"
	"garment-designer/sessions"
	"garment-designer/stores"
	"image"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fogleman/gg"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
	socketio "github.com/zishang520/socket.io/v2/socket"
)

type app struct {
	stores   stores.Stores
	catalog  *assets.Catalog
	registry *sessions.Registry
	renderer *designer.Renderer
	finisher *designer.Finisher
}

func setupRouter(a *app) *chi.Mux {
	r := chi.NewRouter()
	r.Use(middleware.Logger)

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"https://*", "http://*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "Content-Length", "X-Requested-With"},
		AllowCredentials: true,
		MaxAge:           300, // Maximum value not ignored by any of major browsers
	}))

	r.Route("/api/v2", func(r chi.Router) {
		r.Use(authMiddleware.AuthJWT)

		r.Get("/assets", assetsApi.HandleCatalog(a.catalog))

		r.Route("/designs", func(r chi.Router) {
			r.Get("/", designs.HandleList(a.stores.Designs))
			r.Get("/{id}", designs.HandleGet(a.stores.Designs))
		})

		r.Route("/sessions", func(r chi.Router) {
			r.Post("/", sessionsApi.HandleCreate(a.registry, a.stores.Designs))
			r.Route("/{sid}", func(r chi.Router) {
				r.Get("/", sessionsApi.HandleGet(a.registry))
				r.Delete("/", sessionsApi.HandleDelete(a.registry))

				r.Post("/elements", sessionsApi.HandleAddElement(a.registry))
				r.Patch("/elements/{eid}", sessionsApi.HandleUpdateElement(a.registry))
				r.Delete("/elements/{eid}", sessionsApi.HandleRemoveElement(a.registry))

				r.Put("/active", sessionsApi.HandleSetActive(a.registry))
				r.Put("/garment", sessionsApi.HandleSetGarmentColor(a.registry, a.catalog))

				r.Post("/drag/begin", sessionsApi.HandleDragBegin(a.registry))
				r.Post("/drag/move", sessionsApi.HandleDragMove(a.registry))
				r.Post("/drag/end", sessionsApi.HandleDragEnd(a.registry))
				r.Post("/drag/cancel", sessionsApi.HandleDragCancel(a.registry))
				r.Post("/tap", sessionsApi.HandleTap(a.registry))

				r.Get("/preview.png", sessionsApi.HandlePreview(a.registry, a.renderer))
				r.Post("/finish", sessionsApi.HandleFinish(a.registry, a.finisher))
			})
		})
	})

	if a.stores.Images.Reader != nil {
		r.Get("/files/{key}", files.HandleGet(a.stores.Images.Reader))
	}

	return r
}

func loadGarment(path string) image.Image {
	if path == "" {
		return nil
	}
	img, err := gg.LoadImage(path)
	if err != nil {
		logrus.WithFields(logrus.Fields{
			"path":  path,
			"error": err,
		}).Warn("Failed to load garment image, using the built-in silhouette")
		return nil
	}
	return img
}

func waitForShutdown(ioo *socketio.Server, cancel context.CancelFunc) {
	signalC := make(chan os.Signal, 1)
	signal.Notify(signalC, os.Interrupt, syscall.SIGHUP, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)

	s := <-signalC
	logrus.WithField("signal", s.String()).Info("Shutting down...")
	cancel()
	ioo.Close(nil)
	os.Exit(0)
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

	cfg := config.Load()
	auth.InitAuth(cfg.JWTSecret)

	fonts, err := assets.NewFonts(designer.DefaultFontID)
	if err != nil {
		logrus.Fatalf("Failed to load fonts: %v", err)
	}
	catalog, err := assets.LoadCatalog(cfg.AssetCatalogPath, fonts)
	if err != nil {
		logrus.Fatalf("Failed to load asset catalog: %v", err)
	}

	st := stores.GetStores(cfg)
	renderer := designer.NewRenderer(fonts, loadGarment(cfg.GarmentImagePath))
	renderer.Loader = designer.NewDefaultLoader(15*time.Second, cfg.StickerDir, catalog.HasSticker)
	finisher := designer.NewFinisher(renderer, st.Images, st.Designs)
	finisher.Timeout = cfg.FinishTimeout

	canvas := designer.Canvas{Width: cfg.CanvasWidth, Height: cfg.CanvasHeight, Inset: cfg.CanvasInset}
	registry := sessions.NewRegistry(canvas, cfg.SessionIdleTimeout)
	registry.AllowSticker = catalog.HasSticker

	ctx, cancel := context.WithCancel(context.Background())
	go registry.Run(ctx)

	r := setupRouter(&app{
		stores:   st,
		catalog:  catalog,
		registry: registry,
		renderer: renderer,
		finisher: finisher,
	})

	ioo := websocket.SetupSocketIO(registry)
	r.Mount("/socket.io/", ioo.ServeHandler(nil))

	srv := &http.Server{
		Addr:              *listenAddress,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}
	logrus.WithFields(logrus.Fields{
		"addr":   *listenAddress,
		"canvas": canvas,
	}).Info("starting server")
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logrus.WithField("event", "start server").Fatal(err)
		}
	}()

	logrus.Debug("Server is running in the background")
	waitForShutdown(ioo, cancel)
}
