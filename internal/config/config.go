// Package config loads the gateway's deployment-level settings: the knobs
// that describe how a lattice process is run (listen address, tracing
// exporter, request limits) rather than what it serves, which is the SDL's
// job via @server/@upstream. Settings come from an optional YAML file
// overlaid with LATTICE_-prefixed environment variables, in that order.
package config

import (
	"fmt"
	"os"
	"strings"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/go-ozzo/ozzo-validation/v4/is"
	"github.com/qiangxue/go-env"
	"gopkg.in/yaml.v2"

	"github.com/latticegql/lattice/pkg/logger"
)

const (
	defaultRequestTimeoutMS = 0
	defaultMaxBodyBytes     = 1 << 20 // 1 MiB
	defaultOtelService      = "lattice"
)

// Config is the process-level configuration for the `start` command. Addr,
// Pretty, OtelEndpoint and OtelService can also be set by an equivalent CLI
// flag, which always wins over both the file and the environment when
// explicitly provided; the other fields have no CLI flag.
type Config struct {
	// Addr is the HTTP listen address, e.g. ":8080". Overrides the SDL's
	// @server(addr:) when non-empty.
	Addr string `yaml:"addr" env:"ADDR"`

	// Pretty indents JSON responses. Intended for local development only.
	Pretty bool `yaml:"pretty" env:"PRETTY"`

	// GraphiQL serves the in-browser IDE on GET requests that accept HTML.
	GraphiQL bool `yaml:"graphiql" env:"GRAPHIQL"`

	// RequestTimeoutSeconds sets the deadline on the context the server hands
	// the executor for a single GraphQL operation; upstream calls do not
	// observe that deadline. 0 disables
	// the default (the incoming request's own context deadline still
	// applies if the caller set one).
	RequestTimeoutSeconds int `yaml:"request_timeout_seconds" env:"REQUEST_TIMEOUT_SECONDS"`

	// MaxBodyBytes caps the incoming request body size. 0 means unlimited.
	MaxBodyBytes int64 `yaml:"max_body_bytes" env:"MAX_BODY_BYTES"`

	// CORSAllowedOrigins is a comma-delimited list of allowed origins.
	// Empty disables CORS handling entirely.
	CORSAllowedOrigins string `yaml:"cors_allowed_origins" env:"CORS_ALLOWED_ORIGINS"`

	// OtelEndpoint is the OTLP/gRPC collector address. Empty disables
	// tracing export.
	OtelEndpoint string `yaml:"otel_endpoint" env:"OTEL_ENDPOINT"`

	// OtelService names this process in exported spans.
	OtelService string `yaml:"otel_service" env:"OTEL_SERVICE"`

	// JWKSURL, Issuer, and Audiences override the SDL's @server bearer-auth
	// settings when set; useful for pointing the same schema at different
	// identity providers per environment without editing the schema file.
	JWKSURL   string `yaml:"jwks_url" env:"JWKS_URL"`
	Issuer    string `yaml:"issuer" env:"ISSUER"`
	Audiences string `yaml:"audiences" env:"AUDIENCES"` // comma-delimited
}

// Validate checks field-level constraints that go beyond zero-value
// defaults, e.g. that Addr carries a valid port when set.
func (c Config) Validate() error {
	return validation.ValidateStruct(&c,
		validation.Field(&c.Addr, validation.By(validateAddr)),
		validation.Field(&c.RequestTimeoutSeconds, validation.Min(0)),
		validation.Field(&c.MaxBodyBytes, validation.Min(int64(0))),
	)
}

func validateAddr(value interface{}) error {
	addr, _ := value.(string)
	if addr == "" {
		return nil
	}
	idx := strings.LastIndex(addr, ":")
	if idx < 0 {
		return fmt.Errorf("must be of the form [host]:port")
	}
	port := addr[idx+1:]
	if port == "" {
		return nil
	}
	return validation.Validate(port, is.Port)
}

// AllowedOrigins splits CORSAllowedOrigins on commas, trimming whitespace
// and dropping empty entries.
func (c Config) AllowedOrigins() []string {
	return splitCSV(c.CORSAllowedOrigins)
}

// AudienceList splits Audiences on commas, trimming whitespace and
// dropping empty entries.
func (c Config) AudienceList() []string {
	return splitCSV(c.Audiences)
}

func splitCSV(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

// Load builds a Config from defaults, an optional YAML file, and
// LATTICE_-prefixed environment variables, in that order of increasing
// precedence. file may be empty to skip the file layer.
func Load(file string, log logger.Logger) (*Config, error) {
	c := Config{
		// Addr is left empty by default so the SDL's @server(addr:) is the
		// effective default; it is only overridden when the file, the
		// environment, or a CLI flag sets it explicitly.
		MaxBodyBytes:          defaultMaxBodyBytes,
		OtelService:           defaultOtelService,
		RequestTimeoutSeconds: defaultRequestTimeoutMS,
	}

	if file != "" {
		b, err := os.ReadFile(file)
		if err != nil {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		if err := yaml.Unmarshal(b, &c); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	}

	logf := func(string, ...interface{}) {}
	if log != nil {
		logf = log.Infof
	}
	if err := env.New("LATTICE_", logf).Load(&c); err != nil {
		return nil, fmt.Errorf("loading environment overrides: %w", err)
	}

	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &c, nil
}
