package stats

import (
	"expvar"
)

// Counter names recorded by the client data layer.
const (
	DecodeFailures   = "FeedDecodeFailures"
	FeedReconnects   = "FeedReconnects"
	StalePayloads    = "StaleSnapshotsDiscarded"
	ReadPosPersisted = "ReadPositionWrites"
	ReadPosRetries   = "ReadPositionRetries"
)

type StatsProvider interface {
	Incr(name string)
	RegisterMetric(name string)
}

// StatsUpdater publishes counters through expvar so a debug build can
// expose them without any extra plumbing.
type StatsUpdater struct {
	vars *expvar.Map
}

func NewStatsUpdater() *StatsUpdater {
	su := &StatsUpdater{vars: new(expvar.Map).Init()}

	for _, name := range []string{
		DecodeFailures,
		FeedReconnects,
		StalePayloads,
		ReadPosPersisted,
		ReadPosRetries,
	} {
		su.RegisterMetric(name)
	}

	return su
}

func (su *StatsUpdater) RegisterMetric(name string) {
	su.vars.Set(name, new(expvar.Int))
}

func (su *StatsUpdater) Incr(name string) {
	metric := su.vars.Get(name)
	if metric == nil {
		panic("metric not found: " + name)
	}

	metric.(*expvar.Int).Add(1)
}

// Value returns the current count for a metric, zero if unknown.
func (su *StatsUpdater) Value(name string) int64 {
	metric, ok := su.vars.Get(name).(*expvar.Int)
	if !ok {
		return 0
	}

	return metric.Value()
}
