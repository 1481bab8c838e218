package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"path/filepath"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/adapters/humago"
	"github.com/rs/cors"
	"go.uber.org/zap"

	"github.com/joeblew999/plat-trip/internal/api"
	"github.com/joeblew999/plat-trip/internal/api/mapui"
	"github.com/joeblew999/plat-trip/internal/db"
	"github.com/joeblew999/plat-trip/internal/humastar"
	"github.com/joeblew999/plat-trip/internal/provider/google"
	"github.com/joeblew999/plat-trip/internal/service"
	"github.com/joeblew999/plat-trip/internal/templates"
)

// Config holds the server configuration.
type Config struct {
	Host    string
	Port    string
	DataDir string // Empty keeps preferences and the plan in memory
	WebDir  string // Path to web/ directory for static files and the map page

	GoogleAPIKey      string
	RequestsPerSecond float64

	// Session tuning; nil uses service.DefaultConfig.
	Session *service.Config
	Logger  *zap.Logger
}

// Server is the trip planner HTTP server.
type Server struct {
	config   Config
	log      *zap.Logger
	mux      *http.ServeMux
	handler  http.Handler
	humaAPI  huma.API
	links    *humastar.Links
	repo     *db.Repository
	session  *service.Session
	renderer *templates.Renderer
}

// New creates a new trip server. A database or provider that cannot be set
// up is logged and the server runs without it.
func New(cfg Config) *Server {
	log := cfg.Logger
	if log == nil {
		log = zap.NewNop()
	}
	mux := http.NewServeMux()
	links := &humastar.Links{}

	// Create Huma API with humago (pure stdlib) adapter
	humaConfig := huma.DefaultConfig("plat-trip API", "1.0.0")
	humaConfig.Info.Description = "Trip planning map API: hub places, nearby discovery, the new trip point workflow and the map page event stream."
	humaConfig.Servers = []*huma.Server{
		{URL: fmt.Sprintf("http://%s:%s", cfg.Host, cfg.Port), Description: "Local server"},
	}
	// Disable $schema property in responses (cleaner JSON)
	humaConfig.CreateHooks = []func(huma.Config) huma.Config{}
	humaConfig.Transformers = append(humaConfig.Transformers, humastar.LinkTransformer(links))

	humaAPI := humago.New(mux, humaConfig)

	s := &Server{
		config:  cfg,
		log:     log,
		mux:     mux,
		humaAPI: humaAPI,
		links:   links,
	}
	s.renderer = s.loadTemplates()

	deps := service.Deps{Logger: log}
	repo, err := db.Open(db.Config{DataDir: cfg.DataDir, DBName: "trip"}, log)
	if err != nil {
		log.Warn("database unavailable, state is not persisted", zap.Error(err))
	} else {
		s.repo = repo
		deps.Persister = repo
	}

	provider := google.New(google.Options{
		APIKey:            cfg.GoogleAPIKey,
		RequestsPerSecond: cfg.RequestsPerSecond,
		Logger:            log,
	})
	if provider.Enabled() {
		deps.Searcher = provider
		deps.Geocoder = provider
	} else {
		log.Warn("no Google API key, nearby search and reverse geocoding are disabled")
	}

	sessCfg := service.DefaultConfig()
	if cfg.Session != nil {
		sessCfg = *cfg.Session
	}
	s.session = service.New(sessCfg, deps)
	s.session.Start(context.Background())

	s.routes(provider.Enabled())
	return s
}

func (s *Server) loadTemplates() *templates.Renderer {
	if s.config.WebDir != "" {
		fragmentsDir := filepath.Join(s.config.WebDir, "templates", "fragments")
		if _, err := os.Stat(fragmentsDir); err == nil {
			r, err := templates.New(fragmentsDir)
			if err == nil {
				s.log.Info("loaded fragment templates", zap.String("dir", fragmentsDir))
				return r
			}
			s.log.Warn("fragment templates not loaded, using embedded", zap.Error(err))
		}
	}
	r, err := templates.New("")
	if err != nil {
		// The embedded fragments are part of the binary.
		panic(err)
	}
	return r
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.handler.ServeHTTP(w, r)
}

// Session returns the map session the server drives.
func (s *Server) Session() *service.Session {
	return s.session
}

// OpenAPI returns the generated OpenAPI document.
func (s *Server) OpenAPI() *huma.OpenAPI {
	return s.humaAPI.OpenAPI()
}

// Close closes server resources.
func (s *Server) Close() error {
	s.session.Close()
	if s.repo != nil {
		return s.repo.Close()
	}
	return nil
}

func (s *Server) routes(provider bool) {
	// Register Huma REST API routes (OpenAPI-documented JSON endpoints)
	huma.AutoRegister(s.humaAPI, api.NewAPIHandler(s.session))
	api.NewInfoHandler(s.config.DataDir, s.repo != nil, provider).RegisterRoutes(s.humaAPI)

	// Register map page SSE routes using Huma + Datastar SDK
	mapui.NewMapHandler(s.session, s.renderer, s.log).RegisterRoutes(s.humaAPI)

	s.links.Build(s.humaAPI, "/health", mapui.Tag)

	// Static files
	if s.config.WebDir != "" {
		staticDir := filepath.Join(s.config.WebDir, "static")
		s.mux.Handle("/static/", http.StripPrefix("/static/", http.FileServer(http.Dir(staticDir))))
	}

	// Page routes
	s.mux.HandleFunc("/map", s.handleMap)
	s.mux.HandleFunc("/", s.handleRoot)

	s.handler = cors.New(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Content-Type", "Accept", "Datastar-Request"},
		ExposedHeaders: []string{"Link"},
	}).Handler(s.mux)
}

func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	for _, link := range s.links.Entry() {
		w.Header().Add("Link", link)
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{
		"service": "plat-trip",
		"status":  "running",
	})
}

func (s *Server) handleMap(w http.ResponseWriter, r *http.Request) {
	if s.config.WebDir == "" {
		http.NotFound(w, r)
		return
	}
	templatePath := filepath.Join(s.config.WebDir, "templates", "map.html")
	http.ServeFile(w, r, templatePath)
}
