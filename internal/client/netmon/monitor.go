package netmon

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"
)

// State состояние сетевого соединения.
type State string

// Connectivity states
const (
	// StateUnknown начальное состояние до первой пробы.
	StateUnknown State = "unknown"
	// StateOnline соединение доступно с приемлемым качеством.
	StateOnline State = "online"
	// StateDegraded соединение доступно, но с высокой задержкой.
	StateDegraded State = "degraded"
	// StateOffline соединение недоступно.
	StateOffline State = "offline"
)

//go:generate moq -out prober_mock.go . Prober

// Prober измеряет доступность и задержку до удаленной стороны.
type Prober interface {
	// Probe выполняет одну пробу и возвращает round-trip задержку.
	Probe(ctx context.Context) (time.Duration, error)
}

// HTTPProber реализует Prober через HEAD-запрос к заданному URL.
type HTTPProber struct {
	client *http.Client
	url    string
}

// NewHTTPProber creates a prober issuing HEAD requests to the given URL
func NewHTTPProber(url string, timeout time.Duration) *HTTPProber {
	return &HTTPProber{
		url:    url,
		client: &http.Client{Timeout: timeout},
	}
}

// Probe выполняет HEAD-запрос и измеряет задержку.
func (p *HTTPProber) Probe(ctx context.Context) (time.Duration, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, p.url, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to create probe request: %w", err)
	}

	start := time.Now()
	resp, err := p.client.Do(req)
	if err != nil {
		return 0, fmt.Errorf("probe request failed: %w", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode >= 500 {
		return 0, fmt.Errorf("probe returned status %d", resp.StatusCode)
	}

	return time.Since(start), nil
}

// Config конфигурация монитора сети.
type Config struct {
	// ProbeInterval период активной пробы.
	ProbeInterval time.Duration
	// ProbeTimeout таймаут одной пробы.
	ProbeTimeout time.Duration
	// FailureThreshold число подряд неуспешных проб до перехода в Offline.
	FailureThreshold int
}

// DefaultConfig returns default network monitor configuration
func DefaultConfig() Config {
	return Config{
		ProbeInterval:    10 * time.Second,
		ProbeTimeout:     5 * time.Second,
		FailureThreshold: 3,
	}
}

// Monitor отслеживает состояние сети: платформенные сигналы применяются
// немедленно, периодическая активная проба уточняет качество соединения.
type Monitor struct {
	cfg       Config
	prober    Prober
	logger    *slog.Logger
	listeners map[int]func(State)
	cancel    context.CancelFunc
	state     State
	quality   float64
	failures  int
	nextSub   int
	running   bool
	wg        sync.WaitGroup
	mu        sync.RWMutex
}

// New creates a new network monitor with the given prober
func New(cfg Config, prober Prober, logger *slog.Logger) *Monitor {
	if cfg.ProbeInterval <= 0 {
		cfg.ProbeInterval = 10 * time.Second
	}
	if cfg.FailureThreshold <= 0 {
		cfg.FailureThreshold = 3
	}
	return &Monitor{
		cfg:       cfg,
		prober:    prober,
		logger:    logger,
		state:     StateUnknown,
		listeners: make(map[int]func(State)),
	}
}

// Start запускает фоновый цикл проб.
func (m *Monitor) Start(ctx context.Context) {
	m.mu.Lock()
	if m.running {
		m.mu.Unlock()
		return
	}
	m.running = true
	ctx, m.cancel = context.WithCancel(ctx)
	m.mu.Unlock()

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()

		// Первая проба сразу, не дожидаясь тика
		m.ProbeNow(ctx)

		ticker := time.NewTicker(m.cfg.ProbeInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				m.ProbeNow(ctx)
			}
		}
	}()
}

// Stop останавливает фоновый цикл.
func (m *Monitor) Stop() {
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return
	}
	m.running = false
	cancel := m.cancel
	m.mu.Unlock()

	cancel()
	m.wg.Wait()
}

// State возвращает текущее состояние.
func (m *Monitor) State() State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state
}

// Quality возвращает последнюю оценку качества соединения [0.0, 1.0].
func (m *Monitor) Quality() float64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.quality
}

// IsOnline сообщает, допустима ли попытка синхронизации.
// Деградированное соединение считается online: синхронизация разрешена.
func (m *Monitor) IsOnline() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state == StateOnline || m.state == StateDegraded
}

// SetOnline применяет платформенный сигнал о связности немедленно,
// минуя пробу. Сброс счетчика неуспехов при переходе в online.
func (m *Monitor) SetOnline(online bool) {
	if online {
		m.transition(StateOnline, 1.0, true)
		return
	}
	m.transition(StateOffline, 0.0, true)
}

// Subscribe регистрирует слушателя переходов состояния.
// Возвращает функцию отписки.
func (m *Monitor) Subscribe(fn func(State)) func() {
	m.mu.Lock()
	id := m.nextSub
	m.nextSub++
	m.listeners[id] = fn
	m.mu.Unlock()

	return func() {
		m.mu.Lock()
		delete(m.listeners, id)
		m.mu.Unlock()
	}
}

// WaitForOnline блокируется до первого перехода в online-эквивалентное
// состояние либо до истечения таймаута. Сразу выполняет пробу, а не ждет
// пассивно следующего тика.
func (m *Monitor) WaitForOnline(ctx context.Context, timeout time.Duration) bool {
	// Немедленная ре-проба
	m.ProbeNow(ctx)
	if m.IsOnline() {
		return true
	}

	online := make(chan struct{}, 1)
	unsubscribe := m.Subscribe(func(state State) {
		if state == StateOnline || state == StateDegraded {
			select {
			case online <- struct{}{}:
			default:
			}
		}
	})
	defer unsubscribe()

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-online:
		return true
	case <-timer.C:
		return false
	case <-ctx.Done():
		return false
	}
}

// ProbeNow выполняет одну пробу и обновляет состояние.
func (m *Monitor) ProbeNow(ctx context.Context) {
	if m.cfg.ProbeTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, m.cfg.ProbeTimeout)
		defer cancel()
	}

	latency, err := m.prober.Probe(ctx)
	if err != nil {
		m.probeFailed(err)
		return
	}

	score := qualityScore(latency)
	state := StateOnline
	if score < 0.5 {
		state = StateDegraded
	}

	m.logger.Debug("Network probe completed",
		"latency", latency,
		"quality", score,
		"state", state)

	m.transition(state, score, true)
}

func (m *Monitor) probeFailed(err error) {
	m.mu.Lock()
	m.failures++
	failures := m.failures
	threshold := m.cfg.FailureThreshold
	m.mu.Unlock()

	m.logger.Debug("Network probe failed", "error", err, "consecutive_failures", failures)

	if failures >= threshold {
		m.transition(StateOffline, 0.0, false)
	}
}

// transition обновляет состояние и уведомляет слушателей при изменении.
// resetFailures сбрасывает счетчик подряд неуспешных проб.
func (m *Monitor) transition(state State, quality float64, resetFailures bool) {
	m.mu.Lock()
	previous := m.state
	m.state = state
	m.quality = quality
	if resetFailures {
		m.failures = 0
	}

	var listeners []func(State)
	if previous != state {
		listeners = make([]func(State), 0, len(m.listeners))
		for _, fn := range m.listeners {
			listeners = append(listeners, fn)
		}
	}
	m.mu.Unlock()

	if previous != state {
		m.logger.Info("Network state changed", "from", previous, "to", state)
		// Слушатели вызываются вне мьютекса
		for _, fn := range listeners {
			fn(state)
		}
	}
}

// qualityScore отображает round-trip задержку в оценку качества.
func qualityScore(latency time.Duration) float64 {
	switch {
	case latency < 50*time.Millisecond:
		return 1.0
	case latency < 150*time.Millisecond:
		return 0.8
	case latency < 300*time.Millisecond:
		return 0.5
	case latency < 1000*time.Millisecond:
		return 0.2
	default:
		return 0.0
	}
}
