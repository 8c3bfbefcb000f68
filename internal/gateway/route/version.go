package route

import (
	"net/http"
	"regexp"
	"sort"
	"strconv"
	"strings"

	domainerrors "github.com/nimbusgate/core/internal/domain/errors"
)

// ErrNoAcceptableVersion is returned when version negotiation can't satisfy
// any configured version; the caller maps it to 406.
var ErrNoAcceptableVersion = domainerrors.NewDomain(domainerrors.CodeVersionNotAcceptable, "no acceptable API version")

// pathVersionPattern matches a leading "/vN" path segment, e.g. "/v2/hives/1".
var pathVersionPattern = regexp.MustCompile(`^/v(\d+)(/.*)?$`)

// weightedVersion is one entry of a quality-weighted Accept-Version list,
// e.g. "v2, v1;q=0.8".
type weightedVersion struct {
	version string
	q       float64
}

// VersionNegotiator resolves the API version in effect for a request, per
// precedence order: explicit path segment > Accept-Version header
// (quality-weighted) > version query parameter > configured default.
type VersionNegotiator struct {
	// Available is the set of versions the gateway can actually route to,
	// in no particular order.
	Available []string
	// Default is used when no other signal selects a version.
	Default string
	// Deprecated marks versions that must attach a Deprecation/Warning
	// response header.
	Deprecated map[string]bool
}

// availableSet builds a lookup set from Available.
func (n VersionNegotiator) availableSet() map[string]bool {
	set := make(map[string]bool, len(n.Available))
	for _, v := range n.Available {
		set[v] = true
	}
	return set
}

// StripPathVersion removes a leading "/vN" segment from path, returning the
// version (e.g. "v2") and the remaining path. ok is false if no version
// segment is present.
func StripPathVersion(path string) (version, rest string, ok bool) {
	m := pathVersionPattern.FindStringSubmatch(path)
	if m == nil {
		return "", path, false
	}
	rest = m[2]
	if rest == "" {
		rest = "/"
	}
	return "v" + m[1], rest, true
}

// Negotiate resolves the version for req, honoring the precedence order.
// Resolve returns ErrNoAcceptableVersion if no candidate version is
// available.
func (n VersionNegotiator) Negotiate(req *http.Request) (version string, rest string, err error) {
	available := n.availableSet()

	if v, r, ok := StripPathVersion(req.URL.Path); ok {
		if !available[v] {
			return "", "", ErrNoAcceptableVersion
		}
		return v, r, nil
	}

	if accept := req.Header.Get("Accept-Version"); accept != "" {
		if v, ok := n.negotiateWeighted(accept, available); ok {
			return v, req.URL.Path, nil
		}
		return "", "", ErrNoAcceptableVersion
	}

	if v := req.URL.Query().Get("version"); v != "" {
		if !available[v] {
			return "", "", ErrNoAcceptableVersion
		}
		return v, req.URL.Path, nil
	}

	if n.Default != "" {
		if !available[n.Default] {
			return "", "", ErrNoAcceptableVersion
		}
		return n.Default, req.URL.Path, nil
	}

	return "", "", ErrNoAcceptableVersion
}

// negotiateWeighted parses a quality-weighted Accept-Version list (e.g.
// "v2, v1;q=0.8") and picks the highest-weighted version that is also
// mutually available: negotiation picks the highest-weighted mutually
// available version.
func (n VersionNegotiator) negotiateWeighted(header string, available map[string]bool) (string, bool) {
	var candidates []weightedVersion
	for _, part := range strings.Split(header, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		version := part
		q := 1.0
		if idx := strings.Index(part, ";"); idx >= 0 {
			version = strings.TrimSpace(part[:idx])
			params := part[idx+1:]
			for _, p := range strings.Split(params, ";") {
				p = strings.TrimSpace(p)
				if strings.HasPrefix(p, "q=") {
					if parsed, err := strconv.ParseFloat(strings.TrimPrefix(p, "q="), 64); err == nil {
						q = parsed
					}
				}
			}
		}
		candidates = append(candidates, weightedVersion{version: version, q: q})
	}

	sort.SliceStable(candidates, func(i, j int) bool { return candidates[i].q > candidates[j].q })

	for _, c := range candidates {
		if available[c.version] {
			return c.version, true
		}
	}
	return "", false
}

// IsDeprecated reports whether version is marked deprecated.
func (n VersionNegotiator) IsDeprecated(version string) bool {
	return n.Deprecated != nil && n.Deprecated[version]
}

// ApplyHeaders sets the versioning response headers once a version has
// been negotiated: "API-Version" always, plus "Deprecation"/"Warning" for
// deprecated versions.
func (n VersionNegotiator) ApplyHeaders(w http.ResponseWriter, version string) {
	if version == "" {
		return
	}
	w.Header().Set("API-Version", version)
	if n.IsDeprecated(version) {
		w.Header().Set("Deprecation", "true")
		w.Header().Set("Warning", `299 - "API version `+version+` is deprecated"`)
	}
}
