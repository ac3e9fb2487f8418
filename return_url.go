package kyc

import (
	"net/url"
	"sort"
	"strings"
)

// ReturnURLResolver picks where the hosted verification flow sends the user
// back to, based on the Origin and Referer of the start request.
type ReturnURLResolver struct {
	defaultURL string
	// hosts maps a host (or parent domain) to a return URL
	hosts map[string]string
	keys  []string
}

// NewReturnURLResolver builds a resolver. Keys of byHost are host names such
// as "example.com" or "localhost"; subdomains match their parent.
func NewReturnURLResolver(defaultURL string, byHost map[string]string) *ReturnURLResolver {
	r := &ReturnURLResolver{
		defaultURL: defaultURL,
		hosts:      make(map[string]string, len(byHost)),
	}
	for host, target := range byHost {
		host = strings.ToLower(strings.TrimSpace(host))
		if host == "" || target == "" {
			continue
		}
		r.hosts[host] = target
		r.keys = append(r.keys, host)
	}
	// longest first so the most specific domain wins
	sort.Slice(r.keys, func(i, j int) bool {
		if len(r.keys[i]) == len(r.keys[j]) {
			return r.keys[i] < r.keys[j]
		}
		return len(r.keys[i]) > len(r.keys[j])
	})
	return r
}

// Resolve returns the return URL for the Origin, then the Referer, falling
// back to the default.
func (r *ReturnURLResolver) Resolve(origin, referer string) string {
	if r == nil {
		return ""
	}
	for _, candidate := range []string{origin, referer} {
		if target, ok := r.match(candidate); ok {
			return target
		}
	}
	return r.defaultURL
}

func (r *ReturnURLResolver) match(raw string) (string, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", false
	}

	u, err := url.Parse(raw)
	if err != nil || u.Hostname() == "" {
		return "", false
	}

	host := strings.ToLower(u.Hostname())
	for _, key := range r.keys {
		if host == key || strings.HasSuffix(host, "."+key) {
			return r.hosts[key], true
		}
	}
	return "", false
}
