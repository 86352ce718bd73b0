package classify

import (
	"encoding/json"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"

	gocache "github.com/patrickmn/go-cache"

	"relaytunnel/application"
	"relaytunnel/domain/wire"
	"relaytunnel/relayerr"
)

// DefaultMode is the process-wide fallback used when no matcher matches.
// Per SPEC_FULL.md §4.3, if this is wire.ActionProxy the fallback resolves
// to wire.ActionDirect instead; any installed catchall rule makes the
// fallback unreachable in practice.
type DefaultMode = wire.Action

// Set is a Classifier (application.Classifier) backed by an ordered,
// atomically-replaceable matcher list. Installation is atomic: SetRules
// builds the new list off to the side and swaps it in under one lock, so
// Classify never observes a half-built set.
type Set struct {
	mu      sync.RWMutex
	matchers []matcher
	fallback atomic.Int32 // wire.Action

	cache *gocache.Cache
}

var _ application.Classifier = (*Set)(nil)

// New returns a Set with the given process-wide default proxy mode and a
// bounded classify-result cache (destination -> action), mirroring the
// TTL-cache pattern the retrieval pack uses for repeated-lookup hot paths.
func New(fallback wire.Action) *Set {
	s := &Set{
		cache: gocache.New(30*time.Second, time.Minute),
	}
	s.fallback.Store(int32(fallback))
	return s
}

// SetRules implements application.Classifier.
func (s *Set) SetRules(jsonText []byte) error {
	var entries []wire.RuleEntry
	if err := json.Unmarshal(jsonText, &entries); err != nil {
		return fmt.Errorf("%w: %v", relayerr.ErrConfig, err)
	}

	built := make([]matcher, 0, len(entries))
	for _, e := range entries {
		m := matcher{kind: e.Matching, pattern: e.Domain, action: e.ProxyType}
		if e.Matching == wire.MatchCIDR4 || e.Matching == wire.MatchCIDR6 {
			_, network, err := net.ParseCIDR(e.Domain)
			if err != nil {
				return fmt.Errorf("%w: invalid CIDR %q: %v", relayerr.ErrConfig, e.Domain, err)
			}
			m.network = network
		}
		built = append(built, m)
	}

	s.mu.Lock()
	s.matchers = built
	s.mu.Unlock()
	s.cache.Flush()
	return nil
}

// Classify implements application.Classifier.
func (s *Set) Classify(destination string) wire.Action {
	if cached, ok := s.cache.Get(destination); ok {
		return cached.(wire.Action)
	}

	s.mu.RLock()
	matchers := s.matchers
	s.mu.RUnlock()

	for _, m := range matchers {
		if m.match(destination) {
			s.cache.SetDefault(destination, m.action)
			return m.action
		}
	}

	fallback := wire.Action(s.fallback.Load())
	if fallback == wire.ActionProxy {
		fallback = wire.ActionDirect
	}
	s.cache.SetDefault(destination, fallback)
	return fallback
}
