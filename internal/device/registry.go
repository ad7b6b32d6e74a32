package device

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/jmattison/huectl/internal/hue"
	"github.com/jmattison/huectl/internal/kv"
)

// snapshotKey is where the last discovery result lands in the cache.
const snapshotKey = "lights"

// Registry maps device name to device handle, built from one bridge
// snapshot. A device belongs to at most one room; the first group naming its
// index wins.
type Registry struct {
	client *hue.Client
	cache  *kv.Store // optional, may be nil

	mu    sync.RWMutex
	bulbs map[string]*Bulb
}

// NewRegistry creates an empty registry. Call Refresh to populate it.
func NewRegistry(client *hue.Client, cache *kv.Store) *Registry {
	return &Registry{
		client: client,
		cache:  cache,
		bulbs:  make(map[string]*Bulb),
	}
}

// Refresh fetches lights and groups from the bridge and rebuilds the name
// map. Unreachable bulbs are skipped unless permitUnreachable is set. On
// success the raw snapshot is written to the cache for offline listing.
func (r *Registry) Refresh(ctx context.Context, permitUnreachable bool) error {
	lights, err := r.client.Lights(ctx)
	if err != nil {
		return err
	}
	groups, err := r.client.Groups(ctx)
	if err != nil {
		return err
	}

	rooms := make(map[string]string) // light index -> room name
	for _, group := range groups {
		for _, idx := range group.Lights {
			if _, taken := rooms[idx]; !taken {
				rooms[idx] = group.Name
			}
		}
	}

	bulbs := make(map[string]*Bulb, len(lights))
	for idx, light := range lights {
		if !light.State.Reachable && !permitUnreachable {
			log.Debug().Str("bulb", light.Name).Msg("Skipping unreachable bulb")
			continue
		}
		bulbs[light.Name] = newBulb(r.client, light.Name, idx, rooms[idx], light.State)
	}

	r.mu.Lock()
	r.bulbs = bulbs
	r.mu.Unlock()

	if r.cache != nil {
		if err := r.cache.Put(snapshotKey, lights); err != nil {
			log.Warn().Err(err).Msg("Failed to cache device snapshot")
		}
	}

	log.Debug().Int("bulbs", len(bulbs)).Msg("Registry refreshed")
	return nil
}

// Get returns the handle for a named bulb.
func (r *Registry) Get(name string) (*Bulb, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	b, ok := r.bulbs[name]
	if !ok {
		return nil, fmt.Errorf("bulb %q: %w", name, ErrNotFound)
	}
	return b, nil
}

// Names returns all known bulb names, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.bulbs))
	for name := range r.bulbs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// All returns every known bulb, sorted by name.
func (r *Registry) All() []*Bulb {
	r.mu.RLock()
	defer r.mu.RUnlock()
	bulbs := make([]*Bulb, 0, len(r.bulbs))
	for _, b := range r.bulbs {
		bulbs = append(bulbs, b)
	}
	sort.Slice(bulbs, func(i, j int) bool { return bulbs[i].Name() < bulbs[j].Name() })
	return bulbs
}

// ByRoom groups bulbs by room name. Ungrouped bulbs land under "".
func (r *Registry) ByRoom() map[string][]*Bulb {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rooms := make(map[string][]*Bulb)
	for _, b := range r.bulbs {
		rooms[b.Room()] = append(rooms[b.Room()], b)
	}
	for _, bulbs := range rooms {
		sort.Slice(bulbs, func(i, j int) bool { return bulbs[i].Name() < bulbs[j].Name() })
	}
	return rooms
}

// CachedLights returns the last cached snapshot, for listing when the bridge
// is unreachable.
func (r *Registry) CachedLights() (map[string]hue.Light, error) {
	if r.cache == nil {
		return nil, fmt.Errorf("snapshot cache: %w", ErrNotFound)
	}
	var lights map[string]hue.Light
	ok, err := r.cache.Get(snapshotKey, &lights)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("snapshot cache: %w", ErrNotFound)
	}
	return lights, nil
}
