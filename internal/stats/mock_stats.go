package stats

type MockStatsUpdater struct {
	Counts map[string]int
}

func (m *MockStatsUpdater) Incr(name string) {
	if m.Counts == nil {
		m.Counts = make(map[string]int)
	}
	m.Counts[name]++
}

func (m *MockStatsUpdater) Decr(name string) {
	if m.Counts == nil {
		m.Counts = make(map[string]int)
	}
	m.Counts[name]--
}

func (m *MockStatsUpdater) RegisterMetric(name string) {}

func (m *MockStatsUpdater) Run() {}
