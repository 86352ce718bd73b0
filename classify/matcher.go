// Package classify implements the C3 rule matcher set: an ordered list of
// matchers that classifies a destination domain or IP literal into an
// Action, first-match-wins.
package classify

import (
	"net"
	"strings"

	"relaytunnel/domain/wire"
)

// matcher is the closed set of matcher kinds from SPEC_FULL.md §4.3,
// modeled as a tagged union rather than per-variant polymorphism per §9.
type matcher struct {
	kind    wire.MatchKind
	pattern string
	network *net.IPNet // only set for MatchCIDR4/MatchCIDR6
	action  wire.Action
}

// match reports whether destination matches this entry, and returns
// whether the match is conclusive (i.e. whether the caller should stop
// here). MatchGeoIP never matches (stub hook per §9).
func (m matcher) match(destination string) bool {
	switch m.kind {
	case wire.MatchExact:
		return destination == m.pattern
	case wire.MatchSuffix:
		return strings.HasSuffix(destination, m.pattern)
	case wire.MatchKeyword:
		return strings.Contains(destination, m.pattern)
	case wire.MatchCIDR4, wire.MatchCIDR6:
		if m.network == nil {
			return false
		}
		ip := net.ParseIP(destination)
		return ip != nil && m.network.Contains(ip)
	case wire.MatchGeoIP:
		return false // stub hook: never matches, per spec Non-goals.
	case wire.MatchCatchall:
		return true
	default:
		return false
	}
}
