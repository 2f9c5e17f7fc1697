package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"syscall"

	"cadence/config"
	"cadence/handlers"
	"cadence/logging"
	"cadence/metrics"
	"cadence/middleware"
	"cadence/services"
	"cadence/store"
	"cadence/types"
	"cadence/websocket"

	"github.com/gin-gonic/gin"
	"github.com/gofrs/flock"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

func newServeCmd() *cobra.Command {
	var port int

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API and live channel",
		RunE: func(cmd *cobra.Command, args []string) error {
			if cmd.Flags().Changed("port") {
				cfg.Server.Port = port
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return StartWebServer(ctx, cfg, logger)
		},
	}
	cmd.Flags().IntVarP(&port, "port", "p", 0, "override server.port")
	return cmd
}

// Dependencies are the external tools the app drives. Nil fields get the
// ffprobe/ffmpeg backed defaults.
type Dependencies struct {
	Probe      services.MetadataProbe
	Transcoder services.Transcoder
}

// App is the wired server: store, live channel, queue, worker and router
type App struct {
	Router  *gin.Engine
	Store   *store.Store
	Hub     websocket.Hub
	Queue   services.JobQueue
	Worker  *services.ConversionWorker
	Library *services.LibraryService
	Metrics *metrics.Metrics
}

// NewApp wires every service around an open store and starts the live
// channel hub
func NewApp(cfg *config.Config, st *store.Store, deps Dependencies, log zerolog.Logger) *App {
	m := metrics.New()

	hub := websocket.NewHub(m, logging.Component(log, "hub"))
	go hub.Run()

	probe := deps.Probe
	if probe == nil {
		probe = services.NewMetadataProbe(cfg.Conversion.FFprobePath, logging.Component(log, "probe"))
	}
	transcoder := deps.Transcoder
	if transcoder == nil {
		transcoder = services.NewFFmpegTranscoder(cfg.Conversion.FFmpegPath, cfg.Conversion.FFprobePath, logging.Component(log, "ffmpeg"))
	}

	classifier := services.NewDirectoryClassifier(probe, cfg.Library.Extensions, logging.Component(log, "classifier"))
	scanner := services.NewLibraryScanner(classifier, cfg.Library.ConvertedDir, cfg.Library.ScanConcurrency, logging.Component(log, "scanner"))
	library := services.NewLibraryService(scanner, st, m, logging.Component(log, "library"))

	queue := services.NewJobQueue(hub, m, logging.Component(log, "queue"))
	hub.SetSnapshot(func() types.Event {
		return types.QueueUpdate(queue.Snapshot())
	})

	worker := services.NewConversionWorker(queue, transcoder, library, hub, services.WorkerOptions{
		Timeout:      cfg.Conversion.Timeout,
		ConvertedDir: cfg.Library.ConvertedDir,
	}, m, logging.Component(log, "worker"))

	fileService := services.NewFileService(logging.Component(log, "files"))

	httpLog := logging.Component(log, "http")
	libraryHandler := handlers.NewLibraryHandler(library, st, hub, httpLog)
	convertHandler := handlers.NewConvertHandler(worker, queue, st, hub, httpLog)
	fileHandler := handlers.NewFileHandler(fileService, library, httpLog)
	healthHandler := handlers.NewHealthHandler(st)

	r := gin.New()
	r.Use(middleware.Recovery(httpLog))
	r.Use(middleware.CORS(cfg.Server.CORSOrigins))
	r.Use(middleware.Logging(httpLog))

	setupRoutes(r, libraryHandler, convertHandler, fileHandler, healthHandler, m)

	return &App{
		Router:  r,
		Store:   st,
		Hub:     hub,
		Queue:   queue,
		Worker:  worker,
		Library: library,
		Metrics: m,
	}
}

// Close stops the worker and disconnects every observer. The store is left
// open for the caller to close.
func (a *App) Close() {
	a.Worker.Shutdown()
	a.Hub.Stop()
}

// StartWebServer serves the API until ctx is cancelled, then shuts down
// gracefully
func StartWebServer(ctx context.Context, cfg *config.Config, log zerolog.Logger) error {
	if mode := os.Getenv("GIN_MODE"); mode != "" {
		gin.SetMode(mode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	if err := os.MkdirAll(filepath.Dir(cfg.Database.Path), 0o755); err != nil {
		return fmt.Errorf("create database directory: %w", err)
	}
	lock := flock.New(cfg.Database.Path + ".lock")
	locked, err := lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire database lock: %w", err)
	}
	if !locked {
		return fmt.Errorf("another cadence server is already using %s", cfg.Database.Path)
	}
	defer func() {
		if err := lock.Unlock(); err != nil {
			log.Warn().Err(err).Msg("failed to release database lock")
		}
	}()

	st, err := store.Open(cfg.Database.Path, logging.Component(log, "store"))
	if err != nil {
		return err
	}
	defer st.Close()

	app := NewApp(cfg, st, Dependencies{}, log)
	defer app.Close()

	srv := &http.Server{
		Addr:    ":" + strconv.Itoa(cfg.Server.Port),
		Handler: app.Router,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info().Int("port", cfg.Server.Port).Str("database", cfg.Database.Path).Msg("cadence server starting")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("serve: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	log.Info().Msg("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}

// setupRoutes configures all the HTTP routes
func setupRoutes(r *gin.Engine, libraryHandler *handlers.LibraryHandler, convertHandler *handlers.ConvertHandler, fileHandler *handlers.FileHandler, healthHandler *handlers.HealthHandler, m *metrics.Metrics) {
	r.GET("/health", healthHandler.HealthCheck)
	r.GET("/metrics", gin.WrapH(m.Handler()))

	apiGroup := r.Group("/api")
	{
		apiGroup.POST("/scan", libraryHandler.Scan)
		apiGroup.GET("/library", libraryHandler.GetLibrary)
		apiGroup.POST("/library/compare", libraryHandler.Compare)

		dirGroup := apiGroup.Group("/directories")
		{
			dirGroup.GET("", libraryHandler.ListDirectories)
			dirGroup.POST("", libraryHandler.AddDirectory)
			dirGroup.DELETE("/:id", libraryHandler.RemoveDirectory)
		}

		// File management
		apiGroup.POST("/rename", fileHandler.Rename)
		apiGroup.POST("/delete-files", fileHandler.DeleteFiles)
		apiGroup.POST("/fix-unnecessary-subfolder", fileHandler.FixUnnecessarySubfolder)
		apiGroup.POST("/browse", fileHandler.Browse)
		apiGroup.GET("/files/stream", fileHandler.StreamFile)

		convertGroup := apiGroup.Group("/convert")
		{
			convertGroup.POST("/add", convertHandler.Add)
			convertGroup.POST("/start", convertHandler.Start)
			convertGroup.POST("/pause", convertHandler.Pause)
			convertGroup.POST("/clear", convertHandler.Clear)
			convertGroup.POST("/remove", convertHandler.Remove)
			convertGroup.GET("/queue", convertHandler.Queue)
			convertGroup.GET("/history", convertHandler.History)
		}

		// Live channel
		apiGroup.GET("/ws", convertHandler.LiveChannel)
	}
}
