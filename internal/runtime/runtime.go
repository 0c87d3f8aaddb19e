// Package runtime wires the process-wide capabilities (HTTP transport,
// clock, environment access) that Expression evaluation and RequestTemplate
// rendering depend on but must never construct for themselves, so tests can
// substitute fakes.
package runtime

import (
	"net/http"
	"os"
	"time"

	"github.com/hashicorp/go-retryablehttp"

	"github.com/latticegql/lattice/pkg/logger"
)

// Clock abstracts wall-clock reads so timeout and cache-TTL logic is
// testable without real sleeps.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

// SystemClock is the production Clock.
var SystemClock Clock = systemClock{}

// OSEnv reads from the real process environment.
type OSEnv struct{}

func (OSEnv) Lookup(key string) (string, bool) { return os.LookupEnv(key) }

// NewHTTPClient builds the retrying HTTP client every @http upstream call
// goes through: exponential backoff on transport errors and 5xx/429
// responses, bounded by the caller-supplied timeout.
func NewHTTPClient(timeout time.Duration, log logger.Logger) *http.Client {
	retryClient := retryablehttp.NewClient()
	retryClient.Logger = retryableLogAdapter{log}
	retryClient.RetryMax = 3
	retryClient.HTTPClient.Timeout = timeout
	return retryClient.StandardClient()
}

type retryableLogAdapter struct {
	log logger.Logger
}

func (a retryableLogAdapter) Printf(format string, args ...interface{}) {
	a.log.Debugf(format, args...)
}
