package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/latticegql/lattice/internal/blueprint"
	"github.com/latticegql/lattice/internal/dataloader"
	"github.com/latticegql/lattice/internal/expr"
	"github.com/latticegql/lattice/internal/grpcdispatch"
	"github.com/latticegql/lattice/internal/metric"
	"github.com/latticegql/lattice/internal/reqcontext"
	"github.com/latticegql/lattice/internal/reqtemplate"
	"github.com/latticegql/lattice/internal/value"
	"github.com/latticegql/lattice/pkg/errors"
)

// Deps bundles the process-wide capabilities BuildAppContext wires into the
// DataLoader registered for every @http/@grpc/@graphQL field.
type Deps struct {
	HTTPClient *http.Client
	GRPCClient *grpcdispatch.Client
	Env        reqcontext.EnvIO

	// Metrics, if set, records per-flush batch sizes and per-call upstream
	// counters.
	Metrics *metric.Metrics
}

// BuildAppContext walks every compiled field of bp once, registering one
// DataLoader per distinct LoaderID. The compiler sets each IO's LoaderID to
// its own "Type.field", so every IO-backed field gets its own loader. The
// returned AppContext is safe to share across every request the server
// handles concurrently.
func BuildAppContext(bp *blueprint.Blueprint, deps Deps) *reqcontext.AppContext {
	app := &reqcontext.AppContext{
		HTTPClient: deps.HTTPClient,
		Loaders:    make(map[string]*reqcontext.Loader),
		Entities:   reqcontext.NewEntityCache(),
		Env:        deps.Env,
	}

	for _, fields := range bp.Fields {
		for _, cf := range fields {
			node := findIO(cf.Expression)
			if node == nil {
				continue
			}
			if _, exists := app.Loaders[node.LoaderID]; exists {
				continue
			}
			app.Loaders[node.LoaderID] = newLoader(node, deps)
		}
	}
	return app
}

// newLoader builds the DataLoader for one IO node, picking the protocol-
// specific LoadFunc. A short delay window lets concurrently-issued
// BatchResolveAsync goroutines land in the same batch. @groupBy loaders
// flush at most 200 keys per merged upstream call; every other loader
// flushes at most 1000 keys per batch.
func newLoader(node *expr.IO, deps Deps) *reqcontext.Loader {
	var load dataloader.LoadFunc[reqcontext.DataLoaderRequest, reqcontext.Loaded]
	maxBatch := 1000

	switch node.Protocol {
	case expr.IOProtocolHTTP:
		if len(node.GroupBy) > 0 {
			load = groupByHTTPLoadFunc(deps.HTTPClient, node.GroupBy)
			maxBatch = 200
		} else {
			load = httpLoadFunc(deps.HTTPClient)
		}
	case expr.IOProtocolGraphQL:
		plan := node.Plan.(reqtemplate.GraphQL)
		load = graphQLLoadFunc(deps.HTTPClient, plan.FieldName, plan.Federate)
	case expr.IOProtocolGRPC:
		plan := node.Plan.(reqtemplate.GRPC)
		load = grpcLoadFunc(deps.GRPCClient, plan.Target, plan.Path())
	default:
		load = func(keys []reqcontext.DataLoaderRequest) (map[reqcontext.DataLoaderRequest]reqcontext.Loaded, error) {
			return nil, fmt.Errorf("engine: unsupported IO protocol %v", node.Protocol)
		}
	}

	if deps.Metrics != nil {
		load = observeBatchSize(load, deps.Metrics, node.LoaderID, protocolLabel(node.Protocol))
	}
	return dataloader.New(load).WithMaxBatchSize(maxBatch)
}

func protocolLabel(p expr.IOProtocol) string {
	switch p {
	case expr.IOProtocolGRPC:
		return "grpc"
	case expr.IOProtocolGraphQL:
		return "graphql"
	default:
		return "http"
	}
}

// observeBatchSize wraps a LoadFunc to record the number of keys per flush
// and the per-flush upstream outcome and latency.
func observeBatchSize(load dataloader.LoadFunc[reqcontext.DataLoaderRequest, reqcontext.Loaded], m *metric.Metrics, loaderID, protocol string) dataloader.LoadFunc[reqcontext.DataLoaderRequest, reqcontext.Loaded] {
	return func(keys []reqcontext.DataLoaderRequest) (map[reqcontext.DataLoaderRequest]reqcontext.Loaded, error) {
		m.LoaderBatchSize.WithLabelValues(loaderID).Observe(float64(len(keys)))
		start := time.Now()
		out, err := load(keys)
		status := "ok"
		if err != nil {
			status = "error"
		}
		m.UpstreamRequests.WithLabelValues(protocol, status).Inc()
		m.UpstreamRequestDuration.WithLabelValues(protocol).Observe(time.Since(start).Seconds())
		return out, err
	}
}

// concurrentFetch runs fetch once per key concurrently, collecting
// successes into the result map; a key whose fetch errors is simply
// omitted (the dispatcher reports it as an unresolved — not a failed —
// load, matching LoadFunc's "absent key" contract), except when every key
// in the batch failed, in which case the first error is surfaced so the
// caller doesn't silently receive an all-null batch.
func concurrentFetch(keys []reqcontext.DataLoaderRequest, fetch func(reqcontext.DataLoaderRequest) (reqcontext.Loaded, error)) (map[reqcontext.DataLoaderRequest]reqcontext.Loaded, error) {
	out := make(map[reqcontext.DataLoaderRequest]reqcontext.Loaded, len(keys))
	var mu sync.Mutex
	var wg sync.WaitGroup
	var firstErr error

	for _, k := range keys {
		wg.Add(1)
		go func(k reqcontext.DataLoaderRequest) {
			defer wg.Done()
			v, err := fetch(k)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				if firstErr == nil {
					firstErr = err
				}
				return
			}
			out[k] = v
		}(k)
	}
	wg.Wait()

	if len(out) == 0 && firstErr != nil {
		return nil, firstErr
	}
	return out, nil
}

// checkStatus turns a non-2xx upstream response into a remote-failure error
// carrying the status and the leading bytes of the body, draining the body
// either way so the transport's connection can be reused.
func checkStatus(resp *http.Response) ([]byte, error) {
	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, errors.Wrap(err, errors.ERemote, "reading upstream response")
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, errors.New(errors.ERemote, "upstream returned %d: %s", resp.StatusCode, bodySnippet(body))
	}
	return body, nil
}

func bodySnippet(body []byte) string {
	const max = 256
	s := strings.TrimSpace(string(body))
	if len(s) > max {
		s = s[:max] + "..."
	}
	return s
}

func responsePolicy(resp *http.Response) reqcontext.CachePolicy {
	return reqcontext.ParseCacheControl(resp.Header.Get("Cache-Control"))
}

func httpLoadFunc(client *http.Client) dataloader.LoadFunc[reqcontext.DataLoaderRequest, reqcontext.Loaded] {
	return func(keys []reqcontext.DataLoaderRequest) (map[reqcontext.DataLoaderRequest]reqcontext.Loaded, error) {
		return concurrentFetch(keys, func(k reqcontext.DataLoaderRequest) (reqcontext.Loaded, error) {
			req, err := rebuildRequest(k)
			if err != nil {
				return reqcontext.Loaded{}, err
			}
			resp, err := client.Do(req)
			if err != nil {
				return reqcontext.Loaded{}, errors.Wrap(err, errors.ERemote, "%s %s", k.Method, k.URL)
			}
			defer resp.Body.Close()
			body, err := checkStatus(resp)
			if err != nil {
				return reqcontext.Loaded{}, err
			}
			v, err := decodeJSONBody(body)
			if err != nil {
				return reqcontext.Loaded{}, err
			}
			return reqcontext.Loaded{Value: v, Cache: responsePolicy(resp)}, nil
		})
	}
}

// graphQLLoadFunc issues each key's GraphQL-over-HTTP request independently
// (GraphQL upstream calls are not merged the way @groupBy merges HTTP
// calls — the single-flight coalescing of identical requests is the only
// batching GraphQL upstreams get) and unwraps the `{"data": ...}` envelope,
// taking the requested field (or, in federated mode, the first
// `_entities` result).
func graphQLLoadFunc(client *http.Client, fieldName string, federate bool) dataloader.LoadFunc[reqcontext.DataLoaderRequest, reqcontext.Loaded] {
	return func(keys []reqcontext.DataLoaderRequest) (map[reqcontext.DataLoaderRequest]reqcontext.Loaded, error) {
		return concurrentFetch(keys, func(k reqcontext.DataLoaderRequest) (reqcontext.Loaded, error) {
			req, err := rebuildRequest(k)
			if err != nil {
				return reqcontext.Loaded{}, err
			}
			resp, err := client.Do(req)
			if err != nil {
				return reqcontext.Loaded{}, errors.Wrap(err, errors.ERemote, "POST %s", k.URL)
			}
			defer resp.Body.Close()
			body, err := checkStatus(resp)
			if err != nil {
				return reqcontext.Loaded{}, err
			}

			var envelope struct {
				Data   map[string]any `json:"data"`
				Errors []struct {
					Message string `json:"message"`
				} `json:"errors"`
			}
			if err := json.Unmarshal(body, &envelope); err != nil {
				return reqcontext.Loaded{}, errors.Wrap(err, errors.ERemote, "decoding upstream GraphQL response")
			}
			if len(envelope.Errors) > 0 {
				return reqcontext.Loaded{}, errors.New(errors.ERemote, "upstream GraphQL error: %s", envelope.Errors[0].Message)
			}
			policy := responsePolicy(resp)
			if federate {
				entities, _ := envelope.Data["_entities"].([]any)
				if len(entities) == 0 {
					return reqcontext.Loaded{Value: value.Null, Cache: policy}, nil
				}
				return reqcontext.Loaded{Value: value.FromJSON(entities[0]), Cache: policy}, nil
			}
			return reqcontext.Loaded{Value: value.FromJSON(envelope.Data[fieldName]), Cache: policy}, nil
		})
	}
}

func grpcLoadFunc(client *grpcdispatch.Client, target, path string) dataloader.LoadFunc[reqcontext.DataLoaderRequest, reqcontext.Loaded] {
	return func(keys []reqcontext.DataLoaderRequest) (map[reqcontext.DataLoaderRequest]reqcontext.Loaded, error) {
		return concurrentFetch(keys, func(k reqcontext.DataLoaderRequest) (reqcontext.Loaded, error) {
			respBody, err := client.Call(context.Background(), target, path, []byte(k.Body))
			if err != nil {
				return reqcontext.Loaded{}, errors.Wrap(err, errors.ERemote, "calling %s%s", target, path)
			}
			var decoded any
			if err := json.Unmarshal(respBody, &decoded); err != nil {
				return reqcontext.Loaded{}, errors.Wrap(err, errors.ERemote, "decoding gRPC response message")
			}
			return reqcontext.Loaded{Value: value.FromJSON(decoded)}, nil
		})
	}
}

// groupByHTTPLoadFunc merges a batch of otherwise-identical requests that
// differ only in one query parameter's value into a single upstream call:
// it unions every distinct value of that parameter into one request, then
// splits the JSON array response back to each original key by matching
// `groupBy`'s path within each response item against that key's own query
// value.
func groupByHTTPLoadFunc(client *http.Client, groupBy []string) dataloader.LoadFunc[reqcontext.DataLoaderRequest, reqcontext.Loaded] {
	return func(keys []reqcontext.DataLoaderRequest) (map[reqcontext.DataLoaderRequest]reqcontext.Loaded, error) {
		if len(keys) == 0 {
			return nil, nil
		}

		base, err := url.Parse(keys[0].URL)
		if err != nil {
			return nil, fmt.Errorf("engine: @groupBy: invalid request URL: %w", err)
		}

		parsedQueries := make([]url.Values, len(keys))
		merged := url.Values{}
		for i, k := range keys {
			u, err := url.Parse(k.URL)
			if err != nil {
				return nil, fmt.Errorf("engine: @groupBy: invalid request URL: %w", err)
			}
			parsedQueries[i] = u.Query()
			for name, vals := range parsedQueries[i] {
				for _, v := range vals {
					if !containsString(merged[name], v) {
						merged[name] = append(merged[name], v)
					}
				}
			}
		}
		varyParam := varyingQueryParam(parsedQueries)
		for name := range merged {
			sort.Strings(merged[name])
		}

		reqURL := *base
		reqURL.RawQuery = merged.Encode()

		req, err := http.NewRequest(keys[0].Method, reqURL.String(), nil)
		if err != nil {
			return nil, err
		}
		req.Header = parseCanonicalHeaders(keys[0].Headers)
		if keys[0].Body != "" {
			req.Body = io.NopCloser(strings.NewReader(keys[0].Body))
			req.ContentLength = int64(len(keys[0].Body))
		}

		resp, err := client.Do(req)
		if err != nil {
			return nil, errors.Wrap(err, errors.ERemote, "merged request failed")
		}
		defer resp.Body.Close()

		raw, err := checkStatus(resp)
		if err != nil {
			return nil, err
		}
		var items []any
		if err := json.Unmarshal(raw, &items); err != nil {
			return nil, errors.Wrap(err, errors.ERemote, "response is not a JSON array")
		}
		policy := responsePolicy(resp)

		byGroup := make(map[string][]value.Value)
		for _, item := range items {
			v := value.FromJSON(item)
			gk := lookupGroupKey(v, groupBy)
			byGroup[gk] = append(byGroup[gk], v)
		}

		out := make(map[reqcontext.DataLoaderRequest]reqcontext.Loaded, len(keys))
		for i, k := range keys {
			own := parsedQueries[i].Get(varyParam)
			out[k] = reqcontext.Loaded{Value: value.List(byGroup[own]...), Cache: policy}
		}
		return out, nil
	}
}

// varyingQueryParam picks the query parameter whose value differs most
// across the batch — the one the blueprint's templated query actually
// varied per call. Tied or singleton batches fall back to the first
// parameter name observed, which is harmless since there is then nothing
// to distinguish keys by.
func varyingQueryParam(queries []url.Values) string {
	distinct := make(map[string]map[string]struct{})
	var firstSeen []string
	for _, q := range queries {
		for name, vals := range q {
			if _, ok := distinct[name]; !ok {
				distinct[name] = make(map[string]struct{})
				firstSeen = append(firstSeen, name)
			}
			for _, v := range vals {
				distinct[name][v] = struct{}{}
			}
		}
	}
	best := ""
	bestCount := 1
	for _, name := range firstSeen {
		if n := len(distinct[name]); n > bestCount {
			bestCount = n
			best = name
		}
	}
	if best == "" && len(firstSeen) > 0 {
		best = firstSeen[0]
	}
	return best
}

func lookupGroupKey(v value.Value, path []string) string {
	cur := v
	for _, p := range path {
		next, ok := cur.Field(p)
		if !ok {
			return ""
		}
		cur = next
	}
	return value.Scalar(cur)
}

func containsString(ss []string, s string) bool {
	for _, v := range ss {
		if v == s {
			return true
		}
	}
	return false
}

func rebuildRequest(k reqcontext.DataLoaderRequest) (*http.Request, error) {
	var body io.Reader
	if k.Body != "" {
		body = strings.NewReader(k.Body)
	}
	req, err := http.NewRequest(k.Method, k.URL, body)
	if err != nil {
		return nil, fmt.Errorf("engine: rebuilding request for %s %s: %w", k.Method, k.URL, err)
	}
	req.Header = parseCanonicalHeaders(k.Headers)
	if k.Body != "" {
		req.ContentLength = int64(len(k.Body))
	}
	return req, nil
}

func decodeJSONBody(body []byte) (value.Value, error) {
	var decoded any
	if err := json.Unmarshal(body, &decoded); err != nil {
		return value.Null, errors.Wrap(err, errors.ERemote, "decoding upstream JSON response")
	}
	return value.FromJSON(decoded), nil
}
