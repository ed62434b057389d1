package api

import (
	"sync"

	"go.uber.org/zap"
)

// Monitor de-duplicates network failure handling. The first network-class error
// after a healthy period records the caller's location (for redirect-back once
// connectivity returns) and fires OnOffline; repeats are ignored until a
// response is received again.
type Monitor struct {
	mu           sync.Mutex
	offline      bool
	lastLocation string

	// Location reports where the user currently is. Optional.
	Location func() string
	// OnOffline runs once per offline period with the recorded location. Optional.
	OnOffline func(location string)

	logger *zap.Logger
}

func NewMonitor(logger *zap.Logger) *Monitor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Monitor{logger: logger}
}

// ReportNetworkError flags the offline state. It returns true only for the
// first report of an offline period.
func (m *Monitor) ReportNetworkError(err error) bool {
	m.mu.Lock()
	if m.offline {
		m.mu.Unlock()
		return false
	}
	m.offline = true
	if m.Location != nil {
		m.lastLocation = m.Location()
	}
	location := m.lastLocation
	onOffline := m.OnOffline
	m.mu.Unlock()

	m.logger.Warn("Backend unreachable", zap.Error(err), zap.String("location", location))
	if onOffline != nil {
		onOffline(location)
	}
	return true
}

// ReportSuccess clears the offline flag.
func (m *Monitor) ReportSuccess() {
	m.mu.Lock()
	wasOffline := m.offline
	m.offline = false
	m.mu.Unlock()
	if wasOffline {
		m.logger.Info("Backend reachable again")
	}
}

func (m *Monitor) Offline() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.offline
}

// RedirectBack returns the location recorded when the connection dropped and
// forgets it.
func (m *Monitor) RedirectBack() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	loc := m.lastLocation
	m.lastLocation = ""
	return loc
}
