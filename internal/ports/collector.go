package ports

import "github.com/ghalamif/QShield/internal/domain"

// Collector feeds submitted jobs into the runtime. Implementations never close out.
type Collector interface {
	Start(out chan<- *domain.Job) error
	Stop() error
}
