package route

import (
	"encoding/json"
	"fmt"
	"os"
	"time"
)

// fileRoute is the JSON shape of one route table entry.
type fileRoute struct {
	ID        string `json:"id"`
	Predicate struct {
		Path    string            `json:"path"`
		Methods []string          `json:"methods,omitempty"`
		Headers map[string]string `json:"headers,omitempty"`
		Query   map[string]string `json:"query,omitempty"`
		Version string            `json:"version,omitempty"`
	} `json:"predicate"`
	Target     string `json:"target"`
	Deprecated bool   `json:"deprecated,omitempty"`
	Filters    []struct {
		Kind          string            `json:"kind"`
		Quota         string            `json:"quota,omitempty"`
		RewriteFrom   string            `json:"rewriteFrom,omitempty"`
		RewriteTo     string            `json:"rewriteTo,omitempty"`
		InjectHeaders map[string]string `json:"injectHeaders,omitempty"`
	} `json:"filters,omitempty"`
	CircuitBreaker struct {
		FailureRatio    float64 `json:"failureRatio,omitempty"`
		MinimumRequests uint32  `json:"minimumRequests,omitempty"`
		CooldownSeconds int     `json:"cooldownSeconds,omitempty"`
	} `json:"circuitBreaker"`
}

// LoadFile reads a route table from a JSON file. The declared order in the
// file is the evaluation order.
func LoadFile(path string) ([]Route, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("route: read %s: %w", path, err)
	}
	return parseRoutes(data)
}

func parseRoutes(data []byte) ([]Route, error) {
	var entries []fileRoute
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("route: parse: %w", err)
	}

	out := make([]Route, 0, len(entries))
	for i, e := range entries {
		if e.ID == "" {
			return nil, fmt.Errorf("route: entry %d has no id", i)
		}
		if e.Target == "" {
			return nil, fmt.Errorf("route %s: no target", e.ID)
		}
		r := Route{
			ID:         e.ID,
			Target:     e.Target,
			Deprecated: e.Deprecated,
			Predicate: Predicate{
				PathPattern: e.Predicate.Path,
				Methods:     e.Predicate.Methods,
				Headers:     e.Predicate.Headers,
				Query:       e.Predicate.Query,
				Version:     e.Predicate.Version,
			},
			CircuitBreakerPolicy: CircuitBreakerPolicy{
				FailureRatioThreshold: e.CircuitBreaker.FailureRatio,
				MinimumRequests:       e.CircuitBreaker.MinimumRequests,
				CooldownSeconds:       e.CircuitBreaker.CooldownSeconds,
			},
		}
		for _, f := range e.Filters {
			kind := FilterKind(f.Kind)
			switch kind {
			case FilterJWTRequired, FilterRateLimit, FilterPathRewrite, FilterCircuitBreaker, FilterHeaderInject:
			default:
				return nil, fmt.Errorf("route %s: unknown filter kind %q", e.ID, f.Kind)
			}
			r.Filters = append(r.Filters, Filter{
				Kind:               kind,
				RateLimitQuotaName: f.Quota,
				RewriteFrom:        f.RewriteFrom,
				RewriteTo:          f.RewriteTo,
				InjectHeaders:      f.InjectHeaders,
			})
		}
		out = append(out, r)
	}
	return out, nil
}

// WatchFile polls path and hot-reloads the resolver when the file changes.
// It returns a stop function. Reload errors keep the previous snapshot.
func WatchFile(path string, interval time.Duration, resolver *Resolver, onErr func(error)) (stop func()) {
	done := make(chan struct{})
	go func() {
		var lastMod time.Time
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				info, err := os.Stat(path)
				if err != nil {
					continue
				}
				if !info.ModTime().After(lastMod) {
					continue
				}
				lastMod = info.ModTime()
				routes, err := LoadFile(path)
				if err != nil {
					if onErr != nil {
						onErr(err)
					}
					continue
				}
				resolver.Reload(routes)
			}
		}
	}()
	return func() { close(done) }
}
