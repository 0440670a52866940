package firewall

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"strings"
	"time"

	"aidev/internal/logging"
)

// DefaultMetaURL is the provider metadata endpoint publishing GitHub's
// service CIDR ranges.
const DefaultMetaURL = "https://api.github.com/meta"

// requiredMetaFields are the metadata arrays the resolver depends on.
// A response missing any of them is rejected outright.
var requiredMetaFields = []string{"web", "api", "git"}

// Resolver computes the egress allow-list from provider metadata and
// live DNS lookups.
type Resolver struct {
	// MetaURL overrides the provider metadata endpoint.
	MetaURL string

	// HTTPClient overrides the client used for the metadata fetch.
	HTTPClient *http.Client

	// LookupIP overrides DNS resolution (tests).
	LookupIP func(ctx context.Context, host string) ([]net.IP, error)

	// Stderr receives user-facing warnings about hosts dropped from
	// the allow-list.
	Stderr io.Writer

	Log *logging.Logger
}

// NewResolver creates a resolver with production defaults.
func NewResolver(log *logging.Logger) *Resolver {
	return &Resolver{
		MetaURL:    DefaultMetaURL,
		HTTPClient: &http.Client{Timeout: 15 * time.Second},
		Stderr:     os.Stderr,
		Log:        log,
	}
}

// Resolve builds the AddressSet for the given required hostnames.
//
// Provider metadata problems (fetch failure, missing required fields,
// malformed CIDR entries) are fatal: a partial allow-list would either
// break the tools or silently widen the policy. A hostname that fails
// DNS resolution only produces a warning and is left off the list.
func (r *Resolver) Resolve(ctx context.Context, hostnames []string) (*AddressSet, error) {
	set := NewAddressSet()

	if err := r.addProviderRanges(ctx, set); err != nil {
		return nil, err
	}

	if err := r.addResolvedHosts(ctx, set, hostnames); err != nil {
		return nil, err
	}

	r.Log.Infof("allow-list resolved: %d entries", set.Len())
	return set, nil
}

func (r *Resolver) addProviderRanges(ctx context.Context, set *AddressSet) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, r.MetaURL, nil)
	if err != nil {
		return fmt.Errorf("failed to build metadata request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := r.HTTPClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to fetch provider metadata from %s: %w", r.MetaURL, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("provider metadata fetch returned status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return fmt.Errorf("failed to read provider metadata: %w", err)
	}

	var meta map[string]json.RawMessage
	if err := json.Unmarshal(body, &meta); err != nil {
		return fmt.Errorf("failed to parse provider metadata: %w", err)
	}

	for _, field := range requiredMetaFields {
		raw, ok := meta[field]
		if !ok {
			return fmt.Errorf("provider metadata missing required field %q", field)
		}

		var ranges []string
		if err := json.Unmarshal(raw, &ranges); err != nil {
			return fmt.Errorf("provider metadata field %q is not a string array: %w", field, err)
		}

		for _, cidr := range ranges {
			// The metadata mixes IPv4 and IPv6 ranges; the
			// rule set is IPv4-only.
			if strings.Contains(cidr, ":") {
				continue
			}
			if err := set.Add(cidr); err != nil {
				return fmt.Errorf("provider metadata field %q: %w", field, err)
			}
		}
	}

	return nil
}

func (r *Resolver) addResolvedHosts(ctx context.Context, set *AddressSet, hostnames []string) error {
	lookup := r.LookupIP
	if lookup == nil {
		lookup = func(ctx context.Context, host string) ([]net.IP, error) {
			return net.DefaultResolver.LookupIP(ctx, "ip4", host)
		}
	}

	for _, host := range hostnames {
		ips, err := lookup(ctx, host)
		if err != nil || len(ips) == 0 {
			r.Log.Warnf("could not resolve %s, leaving it off the allow-list: %v", host, err)
			if r.Stderr != nil {
				fmt.Fprintf(r.Stderr, "warning: could not resolve %s, leaving it off the allow-list\n", host)
			}
			continue
		}

		for _, ip := range ips {
			v4 := ip.To4()
			if v4 == nil {
				continue
			}
			if err := set.Add(v4.String()); err != nil {
				return fmt.Errorf("resolved address for %s: %w", host, err)
			}
		}
	}

	return nil
}
