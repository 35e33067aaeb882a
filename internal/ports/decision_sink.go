package ports

import "github.com/ghalamif/QShield/internal/domain"

type DecisionSink interface {
	WriteBatch(outcomes []*domain.Outcome) error
	Name() string
}
