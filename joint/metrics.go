package joint

import (
	"io"
	"time"

	gometrics "github.com/rcrowley/go-metrics"
)

// jointMetrics mirrors the teacher's counter-per-lifecycle-event style
// (incr/decr on a shared go-metrics registry) rather than a one-off
// struct of plain ints, so the same JSON reporter used for pinghub's
// "channels"/"websockets" counters applies here unchanged.
type jointMetrics struct {
	reg gometrics.Registry
}

func newJointMetrics() *jointMetrics {
	return &jointMetrics{reg: gometrics.NewRegistry()}
}

func (m *jointMetrics) incr(name string, n int64) {
	gometrics.GetOrRegisterCounter(name, m.reg).Inc(n)
}

func (m *jointMetrics) decr(name string, n int64) {
	gometrics.GetOrRegisterCounter(name, m.reg).Dec(n)
}

// startReporting periodically writes the registry as JSON to w, matching
// metrics.go's startMetrics/gometrics.WriteJSON in the teacher repository.
func (m *jointMetrics) startReporting(w io.Writer, tick time.Duration) {
	go gometrics.WriteJSON(m.reg, tick, w)
}

const (
	metricRooms   = "injoint.rooms"
	metricClients = "injoint.clients"
	metricActions = "injoint.actions"
)
