package feed

import (
	"context"
	"sync"

	"go.uber.org/zap"
)

// StreamRunner is a streaming source whose connection lifecycle is owned by
// the ConnectionManager.
type StreamRunner interface {
	StreamingSource
	Run(ctx context.Context)
}

// ConnectionManager explicitly owns one supervised connection per streaming
// vendor: it starts their reconnect loops, and tears them all down on
// shutdown. There is no package-level connection state.
type ConnectionManager struct {
	logger *zap.Logger

	mu      sync.Mutex
	streams map[string]StreamRunner
	started bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

func NewConnectionManager(logger *zap.Logger) *ConnectionManager {
	return &ConnectionManager{
		logger:  logger,
		streams: make(map[string]StreamRunner),
	}
}

// Add registers a streaming source. Must be called before Start.
func (m *ConnectionManager) Add(stream StreamRunner) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.streams[stream.Name()] = stream
}

// Get returns a registered stream by vendor name.
func (m *ConnectionManager) Get(name string) (StreamRunner, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	stream, ok := m.streams[name]
	return stream, ok
}

// Start launches every stream's supervision loop.
func (m *ConnectionManager) Start(ctx context.Context) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.started {
		return
	}
	m.started = true

	ctx, m.cancel = context.WithCancel(ctx)
	for name, stream := range m.streams {
		m.wg.Add(1)
		go func(name string, stream StreamRunner) {
			defer m.wg.Done()
			m.logger.Info("starting streaming connection", zap.String("vendor", name))
			stream.Run(ctx)
			m.logger.Info("streaming connection stopped", zap.String("vendor", name))
		}(name, stream)
	}
}

// Close stops all supervision loops and waits for them to exit.
func (m *ConnectionManager) Close() error {
	m.mu.Lock()
	cancel := m.cancel
	streams := make([]StreamRunner, 0, len(m.streams))
	for _, stream := range m.streams {
		streams = append(streams, stream)
	}
	m.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	for _, stream := range streams {
		if err := stream.Close(); err != nil {
			m.logger.Warn("stream close failed",
				zap.String("vendor", stream.Name()), zap.Error(err))
		}
	}
	m.wg.Wait()
	return nil
}
