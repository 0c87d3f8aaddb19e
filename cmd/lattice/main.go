package main

import (
	"bytes"
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/latticegql/lattice/internal/auth"
	"github.com/latticegql/lattice/internal/blueprint"
	"github.com/latticegql/lattice/internal/config"
	"github.com/latticegql/lattice/internal/engine"
	"github.com/latticegql/lattice/internal/eventbus"
	"github.com/latticegql/lattice/internal/executor"
	"github.com/latticegql/lattice/internal/grpcdispatch"
	"github.com/latticegql/lattice/internal/introspection"
	"github.com/latticegql/lattice/internal/metric"
	"github.com/latticegql/lattice/internal/otel"
	lrt "github.com/latticegql/lattice/internal/runtime"
	"github.com/latticegql/lattice/internal/schema"
	"github.com/latticegql/lattice/internal/server"
	"github.com/latticegql/lattice/pkg/logger"
)

const rootUsage = `lattice — directive-driven GraphQL composition gateway

USAGE:
  lattice <command> [flags]

COMMANDS:
  start <file>   Compile a schema and serve it over HTTP
  check <file>   Validate a schema without serving it
  init <dir>     Scaffold a starter project
  help           Show help for any command
`

const startUsage = `start FLAGS:
  -addr <addr>            HTTP listen address, overrides @server(addr: ...)
  -config <file>          YAML config file (overridable by LATTICE_* env vars)
  -pretty                 Pretty-print JSON responses
  -otel.endpoint <addr>   OTLP collector endpoint
  -otel.service <name>    OpenTelemetry service name (default: lattice)
`

const checkUsage = `check FLAGS:
  -n, --n-plus-one-queries   Report fields likely to issue one upstream call per list item
  -s, --schema               Print the compiled SDL
`

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	global := flag.NewFlagSet("lattice", flag.ContinueOnError)
	global.SetOutput(new(bytes.Buffer))
	if err := global.Parse(args); err != nil {
		fmt.Fprint(os.Stderr, rootUsage)
		return err
	}
	remaining := global.Args()
	if len(remaining) == 0 {
		fmt.Fprint(os.Stderr, rootUsage)
		return fmt.Errorf("missing command")
	}

	cmd := remaining[0]
	cmdArgs := remaining[1:]
	switch cmd {
	case "start":
		return cmdStart(cmdArgs)
	case "check":
		return cmdCheck(cmdArgs)
	case "init":
		return cmdInit(cmdArgs)
	case "help":
		return cmdHelp(cmdArgs)
	default:
		fmt.Fprint(os.Stderr, rootUsage)
		return fmt.Errorf("unknown command %q", cmd)
	}
}

func cmdHelp(args []string) error {
	if len(args) == 0 {
		fmt.Print(rootUsage)
		return nil
	}
	switch args[0] {
	case "start":
		fmt.Print(startUsage)
	case "check":
		fmt.Print(checkUsage)
	default:
		return fmt.Errorf("unknown help topic %q", args[0])
	}
	return nil
}

// loadSources reads path into a blueprint.Compile source set. A directory is
// walked non-recursively for *.graphql files; a single file is read as its
// own source under its base name.
func loadSources(path string) (map[string]string, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, err
	}
	sources := make(map[string]string)
	if !info.IsDir() {
		b, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}
		sources[filepath.Base(path)] = string(b)
		return sources, nil
	}
	entries, err := os.ReadDir(path)
	if err != nil {
		return nil, err
	}
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".graphql") {
			continue
		}
		b, err := os.ReadFile(filepath.Join(path, e.Name()))
		if err != nil {
			return nil, err
		}
		sources[e.Name()] = string(b)
	}
	if len(sources) == 0 {
		return nil, fmt.Errorf("no .graphql sources found under %s", path)
	}
	return sources, nil
}

func compileFile(path string) (*blueprint.Blueprint, error) {
	sources, err := loadSources(path)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	bp, err := blueprint.Compile(sources)
	if err != nil {
		return nil, err
	}
	return bp, nil
}

func cmdStart(args []string) error {
	addr := ""
	configFile := ""
	pretty := false
	otelEndpoint := ""
	otelService := ""

	fs := flag.NewFlagSet("start", flag.ContinueOnError)
	fs.SetOutput(new(bytes.Buffer))
	fs.StringVar(&addr, "addr", addr, "HTTP listen address")
	fs.StringVar(&configFile, "config", configFile, "YAML config file")
	fs.BoolVar(&pretty, "pretty", pretty, "Pretty-print JSON responses")
	fs.StringVar(&otelEndpoint, "otel.endpoint", otelEndpoint, "OTLP collector endpoint")
	fs.StringVar(&otelService, "otel.service", otelService, "OpenTelemetry service name")
	if err := fs.Parse(args); err != nil {
		fmt.Fprint(os.Stderr, startUsage)
		return err
	}
	if fs.NArg() != 1 {
		fmt.Fprint(os.Stderr, startUsage)
		return fmt.Errorf("start requires exactly one <file> argument")
	}
	file := fs.Arg(0)

	bp, err := compileFile(file)
	if err != nil {
		return err
	}

	log := logger.New()

	cfg, err := config.Load(configFile, log)
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}
	// CLI flags win over file/env when explicitly given.
	if addr != "" {
		cfg.Addr = addr
	}
	if pretty {
		cfg.Pretty = true
	}
	if otelEndpoint != "" {
		cfg.OtelEndpoint = otelEndpoint
	}
	if otelService != "" {
		cfg.OtelService = otelService
	}

	eventbus.Use(eventbus.New())
	shutdown, err := otel.Setup(cfg.OtelEndpoint, cfg.OtelService)
	if err != nil {
		return fmt.Errorf("otel setup: %w", err)
	}
	defer func() { _ = shutdown(context.Background()) }()

	reg := prometheus.NewRegistry()
	metrics := metric.New(reg)

	httpClient := lrt.NewHTTPClient(30*time.Second, log)
	rt := engine.New(bp)
	app := engine.BuildAppContext(bp, engine.Deps{
		HTTPClient: httpClient,
		GRPCClient: grpcdispatch.New(false),
		Env:        lrt.OSEnv{},
		Metrics:    metrics,
	})

	var runtime executor.Runtime = rt
	sch := bp.Schema
	wrapper := introspection.Wrap(runtime, sch)
	runtime, sch = wrapper.Runtime, wrapper.Schema

	sopts := []server.Option{
		server.WithMetrics(metrics),
		server.WithMaxBodyBytes(cfg.MaxBodyBytes),
		server.WithGraphiQL(cfg.GraphiQL),
		server.WithBatchRequests(bp.Server.EnableBatchRequests),
		server.WithExposeInternalErrors(bp.Server.ExposeInternalErrors),
	}
	if cfg.Pretty {
		sopts = append(sopts, server.WithPretty())
	}
	sopts = append(sopts, server.WithTimeout(time.Duration(cfg.RequestTimeoutSeconds)*time.Second))
	if origins := cfg.AllowedOrigins(); len(origins) > 0 {
		sopts = append(sopts, server.WithCORS(origins...))
	}
	jwksURL, issuer, audiences := bp.Server.JWKSURL, bp.Server.Issuer, bp.Server.Audiences
	if cfg.JWKSURL != "" {
		jwksURL, issuer, audiences = cfg.JWKSURL, cfg.Issuer, cfg.AudienceList()
	}
	if jwksURL != "" {
		provider, err := auth.NewProvider(context.Background(), jwksURL, issuer, audiences, httpClient)
		if err != nil {
			return fmt.Errorf("auth setup: %w", err)
		}
		sopts = append(sopts, server.WithAuth(provider))
	}
	h, err := server.New(runtime, sch, app, log, sopts...)
	if err != nil {
		return fmt.Errorf("server init: %w", err)
	}

	router := chi.NewRouter()
	router.Handle("/graphql", h)
	router.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	router.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	listenAddr := bp.Server.Addr
	if cfg.Addr != "" {
		listenAddr = cfg.Addr
	}
	log.Infof("listening on %s", listenAddr)
	return http.ListenAndServe(listenAddr, router)
}

func cmdCheck(args []string) error {
	var showNPlusOne, showSchema bool

	fs := flag.NewFlagSet("check", flag.ContinueOnError)
	fs.SetOutput(new(bytes.Buffer))
	fs.BoolVar(&showNPlusOne, "n-plus-one-queries", false, "Report fields likely to issue one upstream call per list item")
	fs.BoolVar(&showNPlusOne, "n", false, "Shorthand for -n-plus-one-queries")
	fs.BoolVar(&showSchema, "schema", false, "Print the compiled SDL")
	fs.BoolVar(&showSchema, "s", false, "Shorthand for -schema")
	if err := fs.Parse(args); err != nil {
		fmt.Fprint(os.Stderr, checkUsage)
		return err
	}
	if fs.NArg() != 1 {
		fmt.Fprint(os.Stderr, checkUsage)
		return fmt.Errorf("check requires exactly one <file> argument")
	}

	bp, err := compileFile(fs.Arg(0))
	if err != nil {
		return err
	}

	if showSchema {
		fmt.Print(schema.Render(bp.Schema))
	}
	if showNPlusOne {
		warnings := bp.AnalyzeNPlusOne()
		if len(warnings) == 0 {
			fmt.Println("no N+1 risks found")
		}
		for _, w := range warnings {
			fmt.Println(w.Message)
		}
	}
	fmt.Println("ok")
	return nil
}

func cmdInit(args []string) error {
	fs := flag.NewFlagSet("init", flag.ContinueOnError)
	fs.SetOutput(new(bytes.Buffer))
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		return fmt.Errorf("init requires exactly one <dir> argument")
	}
	dir := fs.Arg(0)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}
	schemaPath := filepath.Join(dir, "schema.graphql")
	if _, err := os.Stat(schemaPath); err == nil {
		return fmt.Errorf("%s already exists", schemaPath)
	}
	if err := os.WriteFile(schemaPath, []byte(starterSchema), 0644); err != nil {
		return err
	}
	fmt.Printf("wrote %s\n", schemaPath)
	return nil
}

const starterSchema = `directive @server(addr: String) on SCHEMA
directive @upstream(name: String!, baseURL: String!, timeout: String, allowedHeaders: [String!]) on SCHEMA
directive @http(upstream: String!, method: String, path: String!) on FIELD_DEFINITION
directive @const(value: String!) on FIELD_DEFINITION

schema @server(addr: ":8080") @upstream(name: "example", baseURL: "https://example.com") {
  query: Query
}

type Query {
  hello: String @const(value: "world")
}
`
