// Package storage provides the mock-service repository consumed by the
// router and the management API.
package storage

import (
	"errors"

	"github.com/mockgate/mockgate/pkg/service"
)

// ErrNotFound is returned when a service id has no record.
var ErrNotFound = errors.New("mock service not found")

// Store is the repository for mock-service definitions. The dispatch
// path only ever calls ListActive; mutation happens through the
// management surface.
type Store interface {
	// Create validates, persists and returns the new service.
	Create(c *service.Create) (*service.Service, error)

	// Get returns the service with the given id, or ErrNotFound.
	Get(id int) (*service.Service, error)

	// List returns services ordered by id, paginated.
	List(skip, limit int) []*service.Service

	// ListActive returns a snapshot of all active services, ordered by
	// id. The returned slice and records are safe for lock-free reads.
	ListActive() []*service.Service

	// Update applies a partial mutation and returns the updated record,
	// or ErrNotFound.
	Update(id int, u *service.Update) (*service.Service, error)

	// Delete removes a service. Returns ErrNotFound when absent.
	Delete(id int) error

	// Replace swaps the whole service set (seed-file reloads).
	Replace(creates []*service.Create) error
}
