// Package metric publishes binding counters per node type with expvar.
package metric

import (
	"expvar"
	"fmt"
	"sync"
	"sync/atomic"
	"time"
)

const nodesLabel = "patchbay.nodes"

const (
	// BindingCounter measures number of live bindings.
	BindingCounter = "Bindings"
	// UnitCounter measures number of live engine units.
	UnitCounter = "Units"
	// ConnectCounter counts engine connects.
	ConnectCounter = "Connects"
	// DisconnectCounter counts engine disconnects.
	DisconnectCounter = "Disconnects"
	// FailureCounter counts engine failures.
	FailureCounter = "Failures"
	// LatencyCounter measures duration of the last wiring.
	LatencyCounter = "Latency"
)

var (
	nodes = meters{
		m: make(map[string]*Meter),
	}

	counters = []string{
		BindingCounter,
		UnitCounter,
		ConnectCounter,
		DisconnectCounter,
		FailureCounter,
		LatencyCounter,
	}
)

// Get metrics values for provided node type.
func Get(nodeType string) map[string]string {
	return getCounters(nodeType)
}

// GetAll returns counters for all measured node types.
func GetAll() map[string]map[string]string {
	m := make(map[string]map[string]string)
	nodes.Lock()
	defer nodes.Unlock()
	for nodeType := range nodes.m {
		m[nodeType] = getCounters(nodeType)
	}
	return m
}

func getCounters(nodeType string) map[string]string {
	m := make(map[string]string)
	for _, counter := range counters {
		v := expvar.Get(key(nodeType, counter))
		if v != nil {
			m[counter] = v.String()
		}
	}
	return m
}

// Meter captures counters of a single node type. Counters are shared by
// every graph in the process.
type Meter struct {
	bindings    *expvar.Int
	units       *expvar.Int
	connects    *expvar.Int
	disconnects *expvar.Int
	failures    *expvar.Int
	latency     *duration
}

// For returns the meter of node type, registering its counters on first use.
func For(nodeType string) *Meter {
	return nodes.get(nodeType)
}

// Bound records a new binding made of n units.
func (m *Meter) Bound(n int) {
	m.bindings.Add(1)
	m.units.Add(int64(n))
}

// Released records a torn down binding made of n units.
func (m *Meter) Released(n int) {
	m.bindings.Add(-1)
	m.units.Add(-int64(n))
}

// Connected records an engine connect that took d.
func (m *Meter) Connected(d time.Duration) {
	m.connects.Add(1)
	m.latency.set(d)
}

// Disconnected records an engine disconnect.
func (m *Meter) Disconnected() {
	m.disconnects.Add(1)
}

// Failed records an engine failure.
func (m *Meter) Failed() {
	m.failures.Add(1)
}

type meters struct {
	sync.Mutex
	m map[string]*Meter
}

func (m *meters) get(nodeType string) *Meter {
	m.Lock()
	defer m.Unlock()
	if meter, ok := m.m[nodeType]; ok {
		// return existing meter if available
		return meter
	}
	meter := newMeter(nodeType)
	m.m[nodeType] = meter
	return meter
}

func newMeter(nodeType string) *Meter {
	m := &Meter{
		bindings:    expvar.NewInt(key(nodeType, BindingCounter)),
		units:       expvar.NewInt(key(nodeType, UnitCounter)),
		connects:    expvar.NewInt(key(nodeType, ConnectCounter)),
		disconnects: expvar.NewInt(key(nodeType, DisconnectCounter)),
		failures:    expvar.NewInt(key(nodeType, FailureCounter)),
		latency:     &duration{},
	}
	expvar.Publish(key(nodeType, LatencyCounter), m.latency)
	return m
}

func key(nodeType, counter string) string {
	return fmt.Sprintf("%s.%s.%s", nodesLabel, nodeType, counter)
}

// duration allows to format time.Duration metric values.
type duration struct {
	d int64
}

func (v *duration) String() string {
	return fmt.Sprintf("%q", time.Duration(atomic.LoadInt64(&v.d)).String())
}

func (v *duration) set(value time.Duration) {
	atomic.StoreInt64(&v.d, int64(value))
}
