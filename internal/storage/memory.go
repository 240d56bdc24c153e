package storage

import (
	"sort"
	"sync"
	"time"

	"github.com/mockgate/mockgate/pkg/service"
)

// InMemoryStore is a thread-safe in-memory Store. IDs are monotonic
// per process, starting at 1.
type InMemoryStore struct {
	mu       sync.RWMutex
	services map[int]*service.Service
	nextID   int

	// active is the published dispatch snapshot, rebuilt after every
	// mutation so readers never take the write lock.
	active []*service.Service
}

// NewInMemoryStore creates an empty InMemoryStore.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		services: make(map[int]*service.Service),
		nextID:   1,
	}
}

// Create validates, persists and returns the new service.
func (s *InMemoryStore) Create(c *service.Create) (*service.Service, error) {
	c.Normalize()
	if _, err := c.Validate(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	svc := c.ToService()
	svc.ID = s.nextID
	s.nextID++
	svc.CreatedAt = time.Now().UTC()
	s.services[svc.ID] = svc
	s.rebuildActiveLocked()
	return cloneService(svc), nil
}

// Get returns the service with the given id.
func (s *InMemoryStore) Get(id int) (*service.Service, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	svc, ok := s.services[id]
	if !ok {
		return nil, ErrNotFound
	}
	return cloneService(svc), nil
}

// List returns services ordered by id, paginated.
func (s *InMemoryStore) List(skip, limit int) []*service.Service {
	s.mu.RLock()
	defer s.mu.RUnlock()

	all := make([]*service.Service, 0, len(s.services))
	for _, svc := range s.services {
		all = append(all, svc)
	}
	sort.Slice(all, func(i, j int) bool { return all[i].ID < all[j].ID })

	if skip < 0 {
		skip = 0
	}
	if skip >= len(all) {
		return nil
	}
	end := len(all)
	if limit > 0 && skip+limit < end {
		end = skip + limit
	}

	out := make([]*service.Service, 0, end-skip)
	for _, svc := range all[skip:end] {
		out = append(out, cloneService(svc))
	}
	return out
}

// ListActive returns the current dispatch snapshot.
func (s *InMemoryStore) ListActive() []*service.Service {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.active
}

// Update applies a partial mutation and returns the updated record.
func (s *InMemoryStore) Update(id int, u *service.Update) (*service.Service, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.services[id]
	if !ok {
		return nil, ErrNotFound
	}

	updated := cloneService(existing)
	u.Apply(updated)

	// Re-validate the merged record through the Create rules.
	check := createFromService(updated)
	check.Normalize()
	if _, err := check.Validate(); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	updated.UpdatedAt = &now
	s.services[id] = updated
	s.rebuildActiveLocked()
	return cloneService(updated), nil
}

// Delete removes a service.
func (s *InMemoryStore) Delete(id int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.services[id]; !ok {
		return ErrNotFound
	}
	delete(s.services, id)
	s.rebuildActiveLocked()
	return nil
}

// Replace atomically swaps the whole service set. Validation failures
// leave the previous set untouched.
func (s *InMemoryStore) Replace(creates []*service.Create) error {
	staged := make([]*service.Service, 0, len(creates))
	for _, c := range creates {
		c.Normalize()
		if _, err := c.Validate(); err != nil {
			return err
		}
		staged = append(staged, c.ToService())
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.services = make(map[int]*service.Service, len(staged))
	s.nextID = 1
	now := time.Now().UTC()
	for _, svc := range staged {
		svc.ID = s.nextID
		s.nextID++
		svc.CreatedAt = now
		s.services[svc.ID] = svc
	}
	s.rebuildActiveLocked()
	return nil
}

// rebuildActiveLocked publishes a fresh snapshot of active services.
// Caller holds the write lock.
func (s *InMemoryStore) rebuildActiveLocked() {
	active := make([]*service.Service, 0, len(s.services))
	for _, svc := range s.services {
		if svc.IsActive {
			active = append(active, svc)
		}
	}
	sort.Slice(active, func(i, j int) bool { return active[i].ID < active[j].ID })
	s.active = active
}

func cloneService(src *service.Service) *service.Service {
	dst := *src
	dst.Methods = append([]string(nil), src.Methods...)
	dst.ConditionalResponses = append([]service.ConditionalResponse(nil), src.ConditionalResponses...)
	dst.StaticHeaders = cloneMap(src.StaticHeaders)
	dst.ConditionalHeaders = cloneMap(src.ConditionalHeaders)
	return &dst
}

func cloneMap(src map[string]string) map[string]string {
	if src == nil {
		return nil
	}
	dst := make(map[string]string, len(src))
	for k, v := range src {
		dst[k] = v
	}
	return dst
}

func createFromService(svc *service.Service) *service.Create {
	active := svc.IsActive
	return &service.Create{
		Name:                  svc.Name,
		Path:                  svc.Path,
		Methods:               append([]string(nil), svc.Methods...),
		Strategy:              svc.Strategy,
		ServiceType:           svc.ServiceType,
		IsActive:              &active,
		ProxyURL:              svc.ProxyURL,
		ProxyDelay:            svc.ProxyDelay,
		StaticResponse:        svc.StaticResponse,
		StaticStatusCode:      svc.StaticStatusCode,
		StaticHeaders:         svc.StaticHeaders,
		StaticDelay:           svc.StaticDelay,
		ConditionCode:         svc.ConditionCode,
		ConditionalResponses:  svc.ConditionalResponses,
		ConditionalDelay:      svc.ConditionalDelay,
		ConditionalStatusCode: svc.ConditionalStatusCode,
		ConditionalHeaders:    svc.ConditionalHeaders,
	}
}
