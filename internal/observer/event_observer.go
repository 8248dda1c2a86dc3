package observer

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// ScanEvent describes one step of a scan session's life
type ScanEvent struct {
	EventType      EventType              `json:"event_type"`
	Timestamp      time.Time              `json:"timestamp"`
	SessionID      string                 `json:"session_id"`
	Step           string                 `json:"step,omitempty"`
	ProcessingTime time.Duration          `json:"processing_time"`
	ErrorType      string                 `json:"error_type,omitempty"`
	ErrorMessage   string                 `json:"error_message,omitempty"`
	Metadata       map[string]interface{} `json:"metadata,omitempty"`
}

// EventType represents the type of scan event
type EventType string

const (
	ScanStarted      EventType = "scan_started"
	ScanCompleted    EventType = "scan_completed"
	ScanFailed       EventType = "scan_failed"
	SessionFinalized EventType = "session_finalized"
)

// Observer defines the interface for event observers
type Observer interface {
	OnEvent(ctx context.Context, event ScanEvent)
	GetObserverName() string
}

// Subject defines the interface for event publishers
type Subject interface {
	Subscribe(observer Observer)
	Unsubscribe(observer Observer)
	NotifyObservers(ctx context.Context, event ScanEvent)
}

// LoggingObserver logs scan events
type LoggingObserver struct {
	logger *logrus.Logger
}

// NewLoggingObserver creates a new logging observer
func NewLoggingObserver(logger *logrus.Logger) Observer {
	return &LoggingObserver{logger: logger}
}

func (o *LoggingObserver) OnEvent(_ context.Context, event ScanEvent) {
	fields := logrus.Fields{
		"event_type": event.EventType,
		"session_id": event.SessionID,
	}
	if event.Step != "" {
		fields["step"] = event.Step
	}
	if event.ProcessingTime > 0 {
		fields["processing_time"] = event.ProcessingTime
	}
	if event.ErrorType != "" {
		fields["error_type"] = event.ErrorType
		fields["error"] = event.ErrorMessage
	}
	for k, v := range event.Metadata {
		fields[k] = v
	}

	entry := o.logger.WithFields(fields)
	switch event.EventType {
	case ScanStarted:
		entry.Debug("Scan started")
	case ScanCompleted:
		entry.Info("Scan completed")
	case ScanFailed:
		// Extraction misses are expected with bad photos
		entry.Warn("Scan failed")
	case SessionFinalized:
		entry.Info("Session finalized")
	default:
		entry.Info("Scan event occurred")
	}
}

func (o *LoggingObserver) GetObserverName() string {
	return "logging_observer"
}

// Snapshot is a point-in-time copy of the collected counters
type Snapshot struct {
	ScansStarted      int64            `json:"scans_started"`
	ScansCompleted    int64            `json:"scans_completed"`
	ScansFailed       int64            `json:"scans_failed"`
	SessionsFinalized int64            `json:"sessions_finalized"`
	CompletedByStep   map[string]int64 `json:"completed_by_step"`
	FailuresByType    map[string]int64 `json:"failures_by_type"`
	AvgProcessingTime time.Duration    `json:"avg_processing_time"`
}

// MetricsObserver counts scan outcomes
type MetricsObserver struct {
	mu                  sync.RWMutex
	started             int64
	completed           int64
	failed              int64
	finalized           int64
	completedByStep     map[string]int64
	failuresByType      map[string]int64
	totalProcessingTime time.Duration
}

// NewMetricsObserver creates a new metrics observer
func NewMetricsObserver() *MetricsObserver {
	return &MetricsObserver{
		completedByStep: make(map[string]int64),
		failuresByType:  make(map[string]int64),
	}
}

func (o *MetricsObserver) OnEvent(_ context.Context, event ScanEvent) {
	o.mu.Lock()
	defer o.mu.Unlock()

	switch event.EventType {
	case ScanStarted:
		o.started++
	case ScanCompleted:
		o.completed++
		o.completedByStep[event.Step]++
		o.totalProcessingTime += event.ProcessingTime
	case ScanFailed:
		o.failed++
		o.failuresByType[event.ErrorType]++
	case SessionFinalized:
		o.finalized++
	}
}

func (o *MetricsObserver) GetObserverName() string {
	return "metrics_observer"
}

// Snapshot returns the current counters
func (o *MetricsObserver) Snapshot() Snapshot {
	o.mu.RLock()
	defer o.mu.RUnlock()

	s := Snapshot{
		ScansStarted:      o.started,
		ScansCompleted:    o.completed,
		ScansFailed:       o.failed,
		SessionsFinalized: o.finalized,
		CompletedByStep:   make(map[string]int64, len(o.completedByStep)),
		FailuresByType:    make(map[string]int64, len(o.failuresByType)),
	}
	for k, v := range o.completedByStep {
		s.CompletedByStep[k] = v
	}
	for k, v := range o.failuresByType {
		s.FailuresByType[k] = v
	}
	if o.completed > 0 {
		s.AvgProcessingTime = o.totalProcessingTime / time.Duration(o.completed)
	}
	return s
}

// EventPublisher implements the Subject interface
type EventPublisher struct {
	mu        sync.RWMutex
	observers []Observer
}

// NewEventPublisher creates a new event publisher
func NewEventPublisher() *EventPublisher {
	return &EventPublisher{observers: make([]Observer, 0)}
}

func (p *EventPublisher) Subscribe(observer Observer) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.observers = append(p.observers, observer)
}

func (p *EventPublisher) Unsubscribe(observer Observer) {
	p.mu.Lock()
	defer p.mu.Unlock()

	for i, obs := range p.observers {
		if obs.GetObserverName() == observer.GetObserverName() {
			p.observers = append(p.observers[:i], p.observers[i+1:]...)
			break
		}
	}
}

// NotifyObservers delivers the event to every observer in subscription order.
// Delivery is synchronous so counters are current when the request returns.
func (p *EventPublisher) NotifyObservers(ctx context.Context, event ScanEvent) {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	p.mu.RLock()
	observers := make([]Observer, len(p.observers))
	copy(observers, p.observers)
	p.mu.RUnlock()

	for _, obs := range observers {
		notify(ctx, obs, event)
	}
}

func notify(ctx context.Context, obs Observer, event ScanEvent) {
	defer func() {
		if r := recover(); r != nil {
			logrus.WithField("observer", obs.GetObserverName()).
				WithField("panic", r).
				Error("Observer panicked while handling event")
		}
	}()
	obs.OnEvent(ctx, event)
}
