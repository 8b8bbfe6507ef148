package recorder

// NoopRecorder is a no-op implementation used when SQLite is not configured.
type NoopRecorder struct{}

func NewNoopRecorder() *NoopRecorder { return &NoopRecorder{} }

func (n *NoopRecorder) RecordRefresh(_ *RefreshRun) error           { return nil }
func (n *NoopRecorder) RecordMetric(_ *MetricEvent) error           { return nil }
func (n *NoopRecorder) RecordInflation(_ []InflationSnapshot) error { return nil }
func (n *NoopRecorder) RecordSupplyCheck(_ *SupplyCheckEvent) error { return nil }
func (n *NoopRecorder) Close() error                                { return nil }
