package ports

import "github.com/ghalamif/QShield/internal/domain"

type Observability interface {
	LogInfo(msg string, fields ...Field)
	LogWarn(msg string, fields ...Field)
	LogError(msg string, err error, fields ...Field)
	LogCritical(msg string, err error, fields ...Field)

	// IncCounter adds v to the named counter. Label values are matched
	// positionally against the labels the counter was declared with.
	IncCounter(name string, v float64, labelValues ...string)
	ObserveLatency(name string, seconds float64)

	SetGauge(name string, v float64)

	RecordDLQ(id WALEntryID, job *domain.Job, err error)
}

type Field struct {
	Key   string
	Value any
}
