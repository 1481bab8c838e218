package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/danielgtaylor/huma/v2/humacli"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/joeblew999/plat-trip/internal/server"
)

// Options defines all CLI flags and env vars for the trip server.
// Flags: --host, --port, --data-dir, --web-dir, --google-api-key, --requests-per-second, --debug
// Env vars: SERVICE_HOST, SERVICE_PORT, SERVICE_DATA_DIR, SERVICE_WEB_DIR, ...
// GOOGLE_API_KEY is used when no key is given; a .env file is loaded first.
type Options struct {
	Host              string  `doc:"Host to bind to" default:"0.0.0.0"`
	Port              int     `doc:"Port to listen on" short:"p" default:"8086"`
	DataDir           string  `doc:"Directory for the DuckDB file holding preferences and the plan" default:".data"`
	WebDir            string  `doc:"Path to web/ directory" default:"web"`
	GoogleAPIKey      string  `doc:"Google Places and Geocoding API key"`
	RequestsPerSecond float64 `doc:"Rate limit for Google API calls, 0 for none" default:"5"`
	Debug             bool    `doc:"Development logging"`
}

func newLogger(debug bool) *zap.Logger {
	var (
		log *zap.Logger
		err error
	)
	if debug {
		log, err = zap.NewDevelopment()
	} else {
		log, err = zap.NewProduction()
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error creating logger: %v\n", err)
		return zap.NewNop()
	}
	return log
}

func newServer(opts *Options, log *zap.Logger) *server.Server {
	key := opts.GoogleAPIKey
	if key == "" {
		key = os.Getenv("GOOGLE_API_KEY")
	}
	return server.New(server.Config{
		Host:              opts.Host,
		Port:              fmt.Sprintf("%d", opts.Port),
		DataDir:           opts.DataDir,
		WebDir:            opts.WebDir,
		GoogleAPIKey:      key,
		RequestsPerSecond: opts.RequestsPerSecond,
		Logger:            log,
	})
}

func main() {
	_ = godotenv.Load()

	cli := humacli.New(func(hooks humacli.Hooks, opts *Options) {
		log := newLogger(opts.Debug)
		srv := newServer(opts, log)
		httpServer := &http.Server{
			Addr:              fmt.Sprintf("%s:%d", opts.Host, opts.Port),
			Handler:           srv,
			ReadHeaderTimeout: 5 * time.Second,
		}

		hooks.OnStart(func() {
			displayHost := opts.Host
			if displayHost == "0.0.0.0" {
				displayHost = "localhost"
			}
			baseURL := fmt.Sprintf("http://%s:%d", displayHost, opts.Port)

			fmt.Println()
			fmt.Printf("plat-trip API server starting...\n")
			fmt.Printf("  Server:  %s\n", baseURL)
			fmt.Printf("  Data:    %s\n", opts.DataDir)
			fmt.Println()
			fmt.Printf("  Map:     %s/map\n", baseURL)
			fmt.Printf("  Docs:    %s/docs\n", baseURL)
			fmt.Printf("  OpenAPI: %s/openapi.json\n", baseURL)
			fmt.Println()

			if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Fatal("server error", zap.Error(err))
			}
		})

		hooks.OnStop(func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := httpServer.Shutdown(ctx); err != nil {
				log.Warn("shutdown", zap.Error(err))
			}
			if err := srv.Close(); err != nil {
				log.Warn("close", zap.Error(err))
			}
			_ = log.Sync()
		})
	})

	cli.Root().Use = "trip"
	cli.Root().Short = "Trip planning map server"
	cli.Root().Version = "0.1.0"

	// spec subcommand: export OpenAPI spec
	specCmd := &cobra.Command{
		Use:   "spec",
		Short: "Export OpenAPI spec (JSON by default, --yaml for YAML)",
		Run: humacli.WithOptions(func(cmd *cobra.Command, args []string, opts *Options) {
			// An in-memory server is enough to describe the routes.
			srv := server.New(server.Config{Host: opts.Host, Port: fmt.Sprintf("%d", opts.Port)})
			defer srv.Close()
			spec := srv.OpenAPI()

			useYAML, _ := cmd.Flags().GetBool("yaml")

			var output []byte
			var err error
			if useYAML {
				output, err = yaml.Marshal(spec)
			} else {
				output, err = json.MarshalIndent(spec, "", "  ")
			}
			if err != nil {
				fmt.Fprintf(os.Stderr, "Error marshaling spec: %v\n", err)
				os.Exit(1)
			}
			fmt.Println(string(output))
		}),
	}
	specCmd.Flags().BoolP("yaml", "y", false, "Output as YAML instead of JSON")
	cli.Root().AddCommand(specCmd)

	cli.Run()
}
