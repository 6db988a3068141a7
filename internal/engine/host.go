package engine

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	interevents "github.com/flowgate-labs/flowgate/internal/events"
	intermetrics "github.com/flowgate-labs/flowgate/internal/metrics"
	"github.com/flowgate-labs/flowgate/internal/retry"
	interstate "github.com/flowgate-labs/flowgate/internal/state"
	intertracing "github.com/flowgate-labs/flowgate/internal/tracing"
	v1 "github.com/flowgate-labs/flowgate/pkg/flowgate/v1"
	gateerrors "github.com/flowgate-labs/flowgate/pkg/flowgate/v1/errors"
	"github.com/flowgate-labs/flowgate/pkg/flowgate/v1/events"
	"github.com/flowgate-labs/flowgate/pkg/flowgate/v1/flow"
	gatelog "github.com/flowgate-labs/flowgate/pkg/flowgate/v1/log"
	gatemetrics "github.com/flowgate-labs/flowgate/pkg/flowgate/v1/metrics"
	"github.com/flowgate-labs/flowgate/pkg/flowgate/v1/state"
	gatetracing "github.com/flowgate-labs/flowgate/pkg/flowgate/v1/tracing"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// Host owns the shared store between update cycles and hands exclusive
// access back and forth to flows via the handoff protocol. It implements
// the public v1.HostV1 interface.
//
// Threading model: StartFlow and ServiceAccess/Close belong to the host
// loop's thread. Each flow body runs on its own dedicated worker thread and
// only ever touches the store through a live guard.
type Host struct {
	log             gatelog.Logger
	stateStore      state.Store
	eventBus        events.Bus
	metricsProvider gatemetrics.RegistryProvider
	tracerProvider  gatetracing.TracerProvider
	tracer          trace.Tracer
	serviceCap      int

	registry   *flowRegistry
	retry      *retry.Helper
	generation atomic.Uint64
	totalFlows atomic.Int64

	resultsMu  sync.RWMutex
	results    map[flow.ID]*v1.FlowResult
	flowErrors map[flow.ID]error

	closed         atomic.Bool
	closedChan     chan struct{}
	closeOnce      sync.Once
	internalCtx    context.Context
	internalCancel context.CancelFunc
	wg             sync.WaitGroup

	flowRunsTotal           *prometheus.CounterVec
	handoffGrantsTotal      prometheus.Counter
	storeHoldDuration       prometheus.Histogram
	grantWaitDuration       prometheus.Histogram
	serviceCycleDuration    prometheus.Histogram
	activeFlowsGauge        prometheus.Gauge
	protocolViolationsTotal prometheus.Counter
	eventsTotal             *prometheus.CounterVec
}

var _ v1.HostV1 = (*Host)(nil)

// NewHost creates a host with default components (in-memory store, no-op
// event bus, Prometheus metrics provider, no-op tracer), then applies the
// given options. Options must be applied here, before any flow starts.
func NewHost(log gatelog.Logger, opts ...v1.HostOption) (*Host, error) {
	if log == nil {
		return nil, gateerrors.NewConfigError("logger cannot be nil", nil)
	}

	noopTracer, err := intertracing.NewNoOpProvider()
	if err != nil {
		return nil, gateerrors.NewConfigError("failed to create default tracer provider", err)
	}

	internalCtx, internalCancel := context.WithCancel(context.Background())
	h := &Host{
		log:             log,
		stateStore:      interstate.NewMemoryStore(),
		eventBus:        interevents.NewNoOpEventBus(),
		metricsProvider: intermetrics.NewPrometheusRegistryProvider(),
		tracerProvider:  noopTracer,
		registry:        newFlowRegistry(),
		retry:           retry.NewHelper(log),
		results:         make(map[flow.ID]*v1.FlowResult),
		flowErrors:      make(map[flow.ID]error),
		closedChan:      make(chan struct{}),
		internalCtx:     internalCtx,
		internalCancel:  internalCancel,
	}

	for _, opt := range opts {
		if opt == nil {
			continue
		}
		if err := opt(h); err != nil {
			internalCancel()
			return nil, err
		}
	}

	h.initMetrics()
	h.tracer = h.tracerProvider.GetTracer("flowgate-host")

	// A channel-backed bus gets its protocol-level event stream mirrored
	// into the events metric.
	if channelBus, ok := h.eventBus.(*interevents.ChannelEventBus); ok {
		listener := interevents.NewMetricsEventListener(channelBus, h.eventsTotal, h.log)
		go listener.Start(h.internalCtx)
	}

	h.log.Debugf("Host initialized (service_cap=%d)", h.serviceCap)
	return h, nil
}

// initMetrics creates and registers the host's Prometheus metrics on the
// configured registry.
func (h *Host) initMetrics() {
	h.flowRunsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "flowgate_flow_runs_total",
		Help: "Total number of finished flows, partitioned by flow name and final status.",
	}, []string{"flow_name", "status"})

	h.handoffGrantsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "flowgate_handoff_grants_total",
		Help: "Total number of store access grants issued by the host.",
	})

	h.storeHoldDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "flowgate_store_hold_duration_seconds",
		Help:    "Time the store was held by a flow per grant, from grant to drained return.",
		Buckets: prometheus.ExponentialBuckets(0.00001, 4, 12),
	})

	h.grantWaitDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "flowgate_grant_wait_duration_seconds",
		Help:    "Time a flow waited between signalling a request and receiving the grant.",
		Buckets: prometheus.ExponentialBuckets(0.0001, 4, 12),
	})

	h.serviceCycleDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "flowgate_service_cycle_duration_seconds",
		Help:    "Duration of one full ServiceAccess pass.",
		Buckets: prometheus.ExponentialBuckets(0.00001, 4, 14),
	})

	h.activeFlowsGauge = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "flowgate_active_flows",
		Help: "Number of flows currently running.",
	})

	h.protocolViolationsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "flowgate_protocol_violations_total",
		Help: "Total number of handoff protocol violations detected.",
	})

	h.eventsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "flowgate_events_total",
		Help: "Total host events observed on the event bus, partitioned by type.",
	}, []string{"type"})

	h.metricsProvider.Registry().MustRegister(
		h.flowRunsTotal,
		h.handoffGrantsTotal,
		h.storeHoldDuration,
		h.grantWaitDuration,
		h.serviceCycleDuration,
		h.activeFlowsGauge,
		h.protocolViolationsTotal,
		h.eventsTotal,
	)
}

// StartFlow spawns a dedicated worker thread for body, registers it, and
// returns its ID.
func (h *Host) StartFlow(ctx context.Context, name string, body flow.Body) (flow.ID, error) {
	if h.isClosed() {
		return "", gateerrors.NewHostClosedError()
	}
	if body == nil {
		return "", gateerrors.NewConfigError("flow body cannot be nil", nil)
	}
	if ctx == nil {
		ctx = context.Background()
	}

	id := flow.ID(uuid.NewString())
	flowCtx, cancel := context.WithCancel(ctx)
	entry := newFlowEntry(id, name, cancel)
	fc := newFlowContext(h, entry, h.log.With("flow_id", string(id), "flow_name", name))

	h.registry.add(entry)
	h.totalFlows.Add(1)
	h.activeFlowsGauge.Inc()
	h.emitFlowEvent(events.FlowStarted, entry, 0)
	h.log.Infof("Started flow '%s' (%s)", name, id)

	h.runFlowWorker(flowCtx, entry, fc, body)
	return id, nil
}

// ServiceAccess runs one handoff servicing pass. It walks flows in start
// order, grants each pending request in turn, and blocks on that flow's
// return before moving on, up to the configured per-cycle cap. Terminal
// entries encountered during the walk are reaped. It returns the number of
// grants serviced.
func (h *Host) ServiceAccess(ctx context.Context) (int, error) {
	if h.isClosed() {
		return 0, gateerrors.NewHostClosedError()
	}
	if ctx == nil {
		ctx = context.Background()
	}

	cycleCtx, cycleSpan := h.tracer.Start(ctx, "flowgate.service.cycle")
	defer cycleSpan.End()
	cycleStart := time.Now()

	serviced := 0
	for _, entry := range h.registry.snapshot() {
		if entry.finished() {
			h.registry.remove(entry.id)
			continue
		}
		if h.serviceCap > 0 && serviced >= h.serviceCap {
			continue
		}
		if !entry.channel.tryTakeRequest() {
			continue
		}
		if stale, ok := entry.channel.drainStaleReturn(); ok {
			// Left over from a pass that was aborted while this flow held
			// the store; the fresh grant below starts a clean cycle.
			h.log.Warnf("Discarded stale return (generation %d) from flow '%s'", stale.generation, entry.name)
		}

		gen := h.generation.Add(1)
		token := &accessToken{generation: gen, store: h.stateStore}
		entry.setState(stGranted)
		h.emitFlowEvent(events.AccessGranted, entry, gen)

		_, holdSpan := h.tracer.Start(cycleCtx, "flowgate.handoff.hold", trace.WithAttributes(
			attribute.String("flow.id", string(entry.id)),
			attribute.String("flow.name", entry.name),
			attribute.Int64("handoff.generation", int64(gen)),
		))

		holdStart := time.Now()
		entry.channel.grantAccess(token)
		returned, err := entry.channel.awaitReturn(ctx)
		if err != nil {
			intertracing.RecordError(holdSpan, err)
			holdSpan.End()
			h.log.Errorf("Servicing aborted while flow '%s' held the store: %v", entry.name, err)
			return serviced, err
		}
		holdDuration := time.Since(holdStart)
		holdSpan.End()

		if returned.generation != gen {
			h.protocolViolationsTotal.Inc()
			h.emitFlowEvent(events.ProtocolViolation, entry, returned.generation)
			h.log.Errorf("Flow '%s' returned token generation %d, expected %d", entry.name, returned.generation, gen)
		}

		entry.grants.Add(1)
		entry.holdNanos.Add(holdDuration.Nanoseconds())
		// The flow may have already re-requested; in that case both swaps
		// fail and the Requesting state stands.
		if !entry.casState(stReturning, stIdle) {
			entry.casState(stGranted, stIdle)
		}
		h.emitFlowEvent(events.AccessReturned, entry, gen)
		h.handoffGrantsTotal.Inc()
		h.storeHoldDuration.Observe(holdDuration.Seconds())
		serviced++
	}

	h.serviceCycleDuration.Observe(time.Since(cycleStart).Seconds())
	cycleSpan.SetAttributes(attribute.Int("handoff.serviced", serviced))
	return serviced, nil
}

// ActiveFlows returns the number of flows currently registered.
func (h *Host) ActiveFlows() int {
	return h.registry.len()
}

// FlowStatus returns the current state of a flow, consulting finished
// results when the flow is no longer registered.
func (h *Host) FlowStatus(id flow.ID) (flow.State, error) {
	if entry, ok := h.registry.get(id); ok {
		return entry.currentState(), nil
	}
	h.resultsMu.RLock()
	result, ok := h.results[id]
	h.resultsMu.RUnlock()
	if ok {
		return flow.State(result.Status), nil
	}
	return "", gateerrors.NewFlowNotFoundError(string(id))
}

// FlowError returns the failure recorded for a flow. A completed or still
// running flow yields nil; unknown IDs yield a FlowNotFoundError.
func (h *Host) FlowError(id flow.ID) error {
	h.resultsMu.RLock()
	failure, failed := h.flowErrors[id]
	_, finished := h.results[id]
	h.resultsMu.RUnlock()

	if failed {
		return failure
	}
	if finished {
		return nil
	}
	if _, ok := h.registry.get(id); ok {
		return nil
	}
	return gateerrors.NewFlowNotFoundError(string(id))
}

// Result returns the recorded outcome of a finished flow.
func (h *Host) Result(id flow.ID) (*v1.FlowResult, bool) {
	h.resultsMu.RLock()
	defer h.resultsMu.RUnlock()
	result, ok := h.results[id]
	return result, ok
}

// Report summarizes all flows the host has seen so far.
func (h *Host) Report() *v1.Report {
	h.resultsMu.RLock()
	defer h.resultsMu.RUnlock()

	report := &v1.Report{
		TotalFlows:  int(h.totalFlows.Load()),
		ActiveFlows: h.registry.len(),
		FlowResults: make(map[flow.ID]*v1.FlowResult, len(h.results)),
	}
	for id, result := range h.results {
		report.FlowResults[id] = result
		switch flow.State(result.Status) {
		case flow.StateCompleted:
			report.CompletedFlows++
		case flow.StateFailed:
			report.FailedFlows++
		}
	}
	return report
}

// SeedVars loads initial scenario vars into the shared store. Must be
// called before any flow starts, while the host loop still owns the store
// unconditionally.
func (h *Host) SeedVars(vars map[string]interface{}) error {
	if h.isClosed() {
		return gateerrors.NewHostClosedError()
	}
	if len(vars) == 0 {
		return nil
	}
	return h.stateStore.Load(vars)
}

// Close shuts the host down: pending borrows observe a HostClosedError,
// every flow's context is cancelled, and workers are awaited up to ctx's
// deadline. Close must not run concurrently with ServiceAccess.
func (h *Host) Close(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}

	var closeErr error
	h.closeOnce.Do(func() {
		h.log.Infof("Closing host (%d active flows)", h.registry.len())
		h.closed.Store(true)
		close(h.closedChan)

		for _, entry := range h.registry.all() {
			entry.cancel()
		}

		done := make(chan struct{})
		go func() {
			h.wg.Wait()
			close(done)
		}()
		select {
		case <-done:
		case <-ctx.Done():
			closeErr = ctx.Err()
			h.log.Errorf("Timed out waiting for flow workers to exit: %v", closeErr)
		}

		h.internalCancel()
		if err := h.stateStore.Close(); err != nil && closeErr == nil {
			closeErr = err
		}
	})
	return closeErr
}

// MetricsRegistryProvider returns the underlying metrics provider.
func (h *Host) MetricsRegistryProvider() gatemetrics.RegistryProvider {
	return h.metricsProvider
}

// TracerProvider returns the underlying tracing provider.
func (h *Host) TracerProvider() gatetracing.TracerProvider {
	return h.tracerProvider
}

// SetStateStore replaces the shared store. Only valid before flows start.
func (h *Host) SetStateStore(store state.Store) error {
	if store == nil {
		return gateerrors.NewConfigError("state store cannot be nil", nil)
	}
	h.stateStore = store
	return nil
}

// SetEventBus replaces the event bus. Only valid before flows start.
func (h *Host) SetEventBus(bus events.Bus) error {
	if bus == nil {
		return gateerrors.NewConfigError("event bus cannot be nil", nil)
	}
	h.eventBus = bus
	return nil
}

// SetMetricsRegistryProvider replaces the metrics provider. Only valid
// before flows start.
func (h *Host) SetMetricsRegistryProvider(provider gatemetrics.RegistryProvider) error {
	if provider == nil {
		return gateerrors.NewConfigError("metrics registry provider cannot be nil", nil)
	}
	h.metricsProvider = provider
	return nil
}

// SetTracerProvider replaces the tracing provider. Only valid before flows
// start.
func (h *Host) SetTracerProvider(provider gatetracing.TracerProvider) error {
	if provider == nil {
		return gateerrors.NewConfigError("tracer provider cannot be nil", nil)
	}
	h.tracerProvider = provider
	return nil
}

// SetServiceCap bounds how many flows are serviced per cycle. Zero means
// no cap.
func (h *Host) SetServiceCap(cap int) error {
	if cap < 0 {
		return gateerrors.NewConfigError("service cap cannot be negative", nil)
	}
	h.serviceCap = cap
	return nil
}

// SetEventBufferSize swaps the event bus for a channel-backed one with the
// given buffer size. Only valid before flows start.
func (h *Host) SetEventBufferSize(size int) error {
	if size <= 0 {
		return gateerrors.NewConfigError("event buffer size must be positive", nil)
	}
	h.eventBus = interevents.NewChannelEventBus(size, h.log)
	return nil
}

func (h *Host) isClosed() bool {
	return h.closed.Load()
}

func (h *Host) closedCh() <-chan struct{} {
	return h.closedChan
}

func (h *Host) retryHelper() *retry.Helper {
	return h.retry
}

func (h *Host) observeGrantWait(d time.Duration) {
	h.grantWaitDuration.Observe(d.Seconds())
}

func (h *Host) emitFlowEvent(eventType events.EventType, entry *flowEntry, generation uint64) {
	h.eventBus.Emit(events.Event{
		Type:       eventType,
		Timestamp:  time.Now(),
		FlowID:     string(entry.id),
		FlowName:   entry.name,
		Generation: generation,
	})
}
