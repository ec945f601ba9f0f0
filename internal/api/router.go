package api

import (
	"io/fs"
	"net/http"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"mcpanel/internal/console"
	"mcpanel/internal/handlers"
	"mcpanel/internal/middleware"
	"mcpanel/internal/service"
)

type Router struct {
	*mux.Router
}

func NewRouter(sv *service.Supervisor, queue *console.Queue, templatesFS, staticFS fs.FS, logger *zap.Logger) (*Router, error) {
	r := mux.NewRouter()
	log := logger.Named("http").Sugar()

	tmplHandler, err := handlers.NewTemplateHandler(templatesFS, sv, log)
	if err != nil {
		return nil, err
	}

	procHandler := handlers.NewProcessHandler(sv, queue, log)
	consoleStream := handlers.NewConsoleStream(sv, queue, logger.Named("console_ws").Sugar())

	// Health check endpoints (no middleware for faster response)
	r.HandleFunc("/health", handlers.HealthCheck).Methods(http.MethodGet)
	r.HandleFunc("/ready", handlers.ReadyCheck(sv)).Methods(http.MethodGet)

	r.HandleFunc("/", tmplHandler.ServeTemplate("index", "Dashboard")).Methods(http.MethodGet)

	staticHandler := http.FileServer(http.FS(staticFS))
	r.PathPrefix("/static/").Handler(http.StripPrefix("/static/", staticHandler))

	api := r.PathPrefix("/api").Subrouter()
	api.HandleFunc("/start", procHandler.StartServer).Methods(http.MethodPost)
	api.HandleFunc("/stop", procHandler.StopServer).Methods(http.MethodPost)
	api.HandleFunc("/restart", procHandler.RestartServer).Methods(http.MethodPost)
	api.HandleFunc("/command", procHandler.SendCommand).Methods(http.MethodPost)
	api.HandleFunc("/status", procHandler.GetStatus).Methods(http.MethodGet)
	api.HandleFunc("/console", procHandler.GetConsole).Methods(http.MethodGet)
	api.Handle("/console/ws", consoleStream).Methods(http.MethodGet)
	api.HandleFunc("/events", procHandler.GetEvents).Methods(http.MethodGet)

	api.Use(middleware.Stack(log)...)

	return &Router{Router: r}, nil
}
