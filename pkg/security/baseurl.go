// Package security validates the endpoints devchat sends conversations to.
package security

import (
	"net/netip"
	"net/url"
	"strings"

	"github.com/pkg/errors"
)

// ValidateBaseURL checks a provider base URL before any request is sent to
// it. Only https targets on public hosts are accepted unless allowLocal is
// set, which also permits http and loopback, private or link-local targets
// such as a proxy running on the developer's machine.
func ValidateBaseURL(raw string, allowLocal bool) error {
	u, err := url.Parse(raw)
	if err != nil {
		return errors.Wrap(err, "invalid base URL")
	}

	switch u.Scheme {
	case "https":
	case "http":
		if !allowLocal {
			return errors.New("http base URL requires allowing local endpoints")
		}
	default:
		return errors.Errorf("unsupported base URL scheme %q", u.Scheme)
	}

	host := strings.ToLower(u.Hostname())
	if host == "" {
		return errors.New("base URL has no host")
	}
	if allowLocal {
		return nil
	}

	if host == "localhost" || strings.HasSuffix(host, ".localhost") || strings.HasSuffix(host, ".local") {
		return errors.Errorf("local host %q is not allowed", host)
	}

	// IP literals are checked without resolving anything
	addr, err := netip.ParseAddr(host)
	if err != nil {
		return nil
	}
	if addr.Zone() != "" {
		return errors.Errorf("zoned address %q is not allowed", host)
	}
	addr = addr.Unmap()
	if addr.IsUnspecified() || addr.IsMulticast() || addr.IsLoopback() || addr.IsPrivate() ||
		addr.IsLinkLocalUnicast() || addr.IsLinkLocalMulticast() {
		return errors.Errorf("address %q is not allowed", host)
	}
	return nil
}
