package feed

import (
	"fmt"

	"github.com/thomasjjj/Track-UA-Air-Attacks/internal/ports"
)

// Registry keeps a mapping from feed strategy names to their transports.
type Registry struct {
	feeds map[string]ports.SourceFeed
}

// NewRegistry builds an empty registry.
func NewRegistry() *Registry {
	return &Registry{feeds: map[string]ports.SourceFeed{}}
}

// Register adds or replaces a feed implementation.
func (r *Registry) Register(feed ports.SourceFeed) {
	if r.feeds == nil {
		r.feeds = map[string]ports.SourceFeed{}
	}
	r.feeds[feed.Name()] = feed
}

// Resolve returns a feed by name or an error if it is absent.
func (r *Registry) Resolve(name string) (ports.SourceFeed, error) {
	if feed, ok := r.feeds[name]; ok {
		return feed, nil
	}
	return nil, fmt.Errorf("feed %s is not registered", name)
}
