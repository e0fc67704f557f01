package resilience

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// DegradationLevel represents the current degradation state
type DegradationLevel int

const (
	LevelNormal DegradationLevel = iota
	LevelDegraded
	LevelCritical
	LevelEmergency
)

func (l DegradationLevel) String() string {
	switch l {
	case LevelNormal:
		return "normal"
	case LevelDegraded:
		return "degraded"
	case LevelCritical:
		return "critical"
	case LevelEmergency:
		return "emergency"
	}
	return "unknown"
}

// MarshalText renders the level by name in JSON health payloads.
func (l DegradationLevel) MarshalText() ([]byte, error) {
	return []byte(l.String()), nil
}

// DegradationConfig holds configuration for graceful degradation
type DegradationConfig struct {
	HealthCheckInterval time.Duration `json:"health_check_interval"`
	HealthCheckTimeout  time.Duration `json:"health_check_timeout"`
	DegradedThreshold   float64       `json:"degraded_threshold"`  // error rate 0.0-1.0
	CriticalThreshold   float64       `json:"critical_threshold"`  // error rate 0.0-1.0
	EmergencyThreshold  float64       `json:"emergency_threshold"` // error rate 0.0-1.0
	// Window is the number of most recent outcomes the error rate covers.
	Window int `json:"window"`
}

// DefaultDegradationConfig returns sensible defaults
func DefaultDegradationConfig() DegradationConfig {
	return DegradationConfig{
		HealthCheckInterval: 30 * time.Second,
		HealthCheckTimeout:  5 * time.Second,
		DegradedThreshold:   0.1,
		CriticalThreshold:   0.25,
		EmergencyThreshold:  0.5,
		Window:              50,
	}
}

// ServiceHealth is a snapshot of one dependency's health
type ServiceHealth struct {
	ServiceName   string           `json:"service_name"`
	Level         DegradationLevel `json:"level"`
	ErrorRate     float64          `json:"error_rate"`
	TotalRequests int64            `json:"total_requests"`
	ErrorCount    int64            `json:"error_count"`
	LastError     string           `json:"last_error,omitempty"`
	LastErrorTime *time.Time       `json:"last_error_time,omitempty"`
	StatusMessage string           `json:"status_message"`
}

type serviceState struct {
	health   ServiceHealth
	window   []bool // true marks a failure
	next     int
	check    HealthCheckFunc
	optional bool
}

// HealthCheckFunc represents a function that checks service health
type HealthCheckFunc func(ctx context.Context) error

// DegradationManager tracks the health of the dependencies behind the API:
// the database, redis and the narrative provider.
type DegradationManager struct {
	config   DegradationConfig
	mutex    sync.RWMutex
	services map[string]*serviceState
}

// NewDegradationManager creates a new degradation manager
func NewDegradationManager(config DegradationConfig) *DegradationManager {
	if config.Window <= 0 {
		config.Window = DefaultDegradationConfig().Window
	}
	if config.HealthCheckTimeout <= 0 {
		config.HealthCheckTimeout = DefaultDegradationConfig().HealthCheckTimeout
	}
	return &DegradationManager{
		config:   config,
		services: make(map[string]*serviceState),
	}
}

// RegisterService registers a dependency. Optional dependencies never make
// the whole service unhealthy.
func (dm *DegradationManager) RegisterService(serviceName string, healthCheck HealthCheckFunc, optional bool) {
	dm.mutex.Lock()
	defer dm.mutex.Unlock()

	dm.services[serviceName] = &serviceState{
		health: ServiceHealth{
			ServiceName:   serviceName,
			Level:         LevelNormal,
			StatusMessage: "Service is healthy",
		},
		window:   make([]bool, 0, dm.config.Window),
		check:    healthCheck,
		optional: optional,
	}
	slog.Debug("Registered service for degradation management", "service", serviceName, "optional", optional)
}

// RecordRequest records the outcome of a call to serviceName
func (dm *DegradationManager) RecordRequest(serviceName string, success bool) {
	var err error
	if !success {
		err = fmt.Errorf("%s request failed", serviceName)
	}
	dm.record(serviceName, err)
}

// RecordError records a failed call to serviceName
func (dm *DegradationManager) RecordError(serviceName string, err error) {
	if err == nil {
		err = fmt.Errorf("%s request failed", serviceName)
	}
	dm.record(serviceName, err)
}

func (dm *DegradationManager) record(serviceName string, err error) {
	dm.mutex.Lock()
	defer dm.mutex.Unlock()

	svc, ok := dm.services[serviceName]
	if !ok {
		return
	}

	failed := err != nil
	if len(svc.window) < dm.config.Window {
		svc.window = append(svc.window, failed)
	} else {
		svc.window[svc.next] = failed
		svc.next = (svc.next + 1) % dm.config.Window
	}

	svc.health.TotalRequests++
	if failed {
		now := time.Now()
		svc.health.ErrorCount++
		svc.health.LastError = err.Error()
		svc.health.LastErrorTime = &now
	}

	failures := 0
	for _, f := range svc.window {
		if f {
			failures++
		}
	}
	svc.health.ErrorRate = float64(failures) / float64(len(svc.window))
	dm.updateDegradationLevel(&svc.health)
}

func (dm *DegradationManager) updateDegradationLevel(service *ServiceHealth) {
	oldLevel := service.Level

	switch {
	case service.ErrorRate >= dm.config.EmergencyThreshold:
		service.Level = LevelEmergency
		service.StatusMessage = "Service is in emergency state - high error rate"
	case service.ErrorRate >= dm.config.CriticalThreshold:
		service.Level = LevelCritical
		service.StatusMessage = "Service is in critical state - elevated error rate"
	case service.ErrorRate >= dm.config.DegradedThreshold:
		service.Level = LevelDegraded
		service.StatusMessage = "Service is degraded - moderate error rate"
	default:
		service.Level = LevelNormal
		service.StatusMessage = "Service is healthy"
	}

	if oldLevel != service.Level {
		slog.Warn("Service degradation level changed",
			"service", service.ServiceName,
			"old_level", oldLevel.String(),
			"new_level", service.Level.String(),
			"error_rate", service.ErrorRate)
	}
}

// GetServiceHealth returns a copy of the health of a service
func (dm *DegradationManager) GetServiceHealth(serviceName string) (ServiceHealth, bool) {
	dm.mutex.RLock()
	defer dm.mutex.RUnlock()

	svc, ok := dm.services[serviceName]
	if !ok {
		return ServiceHealth{}, false
	}
	return svc.health, true
}

// GetAllServiceHealth returns health status for all services
func (dm *DegradationManager) GetAllServiceHealth() map[string]ServiceHealth {
	dm.mutex.RLock()
	defer dm.mutex.RUnlock()

	result := make(map[string]ServiceHealth, len(dm.services))
	for name, svc := range dm.services {
		result[name] = svc.health
	}
	return result
}

// IsServiceAvailable reports whether a service should still be called.
// Unknown services are unavailable.
func (dm *DegradationManager) IsServiceAvailable(serviceName string) bool {
	dm.mutex.RLock()
	defer dm.mutex.RUnlock()

	svc, ok := dm.services[serviceName]
	return ok && svc.health.Level != LevelEmergency
}

// OverallLevel is the worst level among required services.
func (dm *DegradationManager) OverallLevel() DegradationLevel {
	dm.mutex.RLock()
	defer dm.mutex.RUnlock()

	level := LevelNormal
	for _, svc := range dm.services {
		if !svc.optional && svc.health.Level > level {
			level = svc.health.Level
		}
	}
	return level
}

// CheckNow runs every registered health check once and waits for them.
func (dm *DegradationManager) CheckNow(ctx context.Context) {
	dm.mutex.RLock()
	checks := make(map[string]HealthCheckFunc, len(dm.services))
	for name, svc := range dm.services {
		if svc.check != nil {
			checks[name] = svc.check
		}
	}
	dm.mutex.RUnlock()

	var wg sync.WaitGroup
	for name, check := range checks {
		wg.Add(1)
		go func(name string, check HealthCheckFunc) {
			defer wg.Done()
			checkCtx, cancel := context.WithTimeout(ctx, dm.config.HealthCheckTimeout)
			defer cancel()

			if err := check(checkCtx); err != nil {
				dm.RecordError(name, fmt.Errorf("health check failed for %s: %w", name, err))
				return
			}
			dm.RecordRequest(name, true)
		}(name, check)
	}
	wg.Wait()
}

// StartHealthChecks runs CheckNow on every interval until ctx is done.
func (dm *DegradationManager) StartHealthChecks(ctx context.Context) {
	if dm.config.HealthCheckInterval <= 0 {
		return
	}
	ticker := time.NewTicker(dm.config.HealthCheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			dm.CheckNow(ctx)
		}
	}
}

// ResetService clears a service's recorded outcomes
func (dm *DegradationManager) ResetService(serviceName string) {
	dm.mutex.Lock()
	defer dm.mutex.Unlock()

	if svc, ok := dm.services[serviceName]; ok {
		svc.window = svc.window[:0]
		svc.next = 0
		svc.health = ServiceHealth{
			ServiceName:   serviceName,
			Level:         LevelNormal,
			StatusMessage: "Service is healthy",
		}
	}
}
