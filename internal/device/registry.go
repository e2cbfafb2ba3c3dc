package device

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"
)

// Registry is the authoritative in-memory view of registered devices,
// backed by a repository for persistence.
//
// Reads are served from the cache; writes go through to the repository
// first and update the cache only on success. All returned devices are
// deep copies, so callers can never mutate cached state.
//
// Thread Safety: all methods are safe for concurrent use.
type Registry struct {
	mu      sync.RWMutex
	devices map[string]*Device
	repo    Repository
}

// NewRegistry creates a registry backed by the repository and hydrates the
// cache from it.
func NewRegistry(ctx context.Context, repo Repository) (*Registry, error) {
	r := &Registry{
		devices: make(map[string]*Device),
		repo:    repo,
	}

	devices, err := repo.GetAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("load devices: %w", err)
	}
	for _, dev := range devices {
		r.devices[dev.ID] = dev
	}
	return r, nil
}

// Register persists a new device and adds it to the cache.
func (r *Registry) Register(ctx context.Context, dev *Device) error {
	if err := dev.Validate(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.devices[dev.ID]; exists {
		return fmt.Errorf("%w: %s", ErrDuplicateID, dev.ID)
	}

	now := time.Now().UTC()
	dev.CreatedAt = now
	dev.UpdatedAt = now

	if err := r.repo.Save(ctx, dev); err != nil {
		return fmt.Errorf("save device %s: %w", dev.ID, err)
	}
	r.devices[dev.ID] = dev.DeepCopy()
	return nil
}

// Get returns a copy of the device.
func (r *Registry) Get(id string) (*Device, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	dev, ok := r.devices[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return dev.DeepCopy(), nil
}

// List returns copies of all devices, sorted by id.
func (r *Registry) List() []*Device {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*Device, 0, len(r.devices))
	for _, dev := range r.devices {
		out = append(out, dev.DeepCopy())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// MarkSeen records a successful poll: the device is online and was seen at
// the given time.
func (r *Registry) MarkSeen(ctx context.Context, id string, at time.Time) error {
	return r.setHealth(ctx, id, true, &at)
}

// MarkOffline records a failed poll.
func (r *Registry) MarkOffline(ctx context.Context, id string) error {
	return r.setHealth(ctx, id, false, nil)
}

func (r *Registry) setHealth(ctx context.Context, id string, online bool, seen *time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	dev, ok := r.devices[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}

	updated := dev.DeepCopy()
	updated.Online = online
	if seen != nil {
		at := seen.UTC()
		updated.LastSeen = &at
	}
	updated.UpdatedAt = time.Now().UTC()

	if err := r.repo.Save(ctx, updated); err != nil {
		return fmt.Errorf("save device %s: %w", id, err)
	}
	r.devices[id] = updated
	return nil
}

// Remove deletes the device from the repository and the cache.
func (r *Registry) Remove(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.devices[id]; !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err := r.repo.Delete(ctx, id); err != nil {
		return fmt.Errorf("delete device %s: %w", id, err)
	}
	delete(r.devices, id)
	return nil
}
