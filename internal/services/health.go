package services

import (
	"context"
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
)

const defaultHealthCheckTimeout = 5 * time.Second

// HealthCheck probes one dependency. Failing critical checks make the service
// unhealthy; failing non-critical checks only degrade it.
type HealthCheck struct {
	Name     string
	Critical bool
	Check    func(ctx context.Context) error
}

type HealthService struct {
	checks  []HealthCheck
	timeout time.Duration
	logger  *logrus.Logger

	// Prometheus metrics
	healthCheckStatus *prometheus.GaugeVec
	lastHealthCheck   *prometheus.GaugeVec
}

type HealthStatus struct {
	Status      string                 `json:"status"`
	Timestamp   time.Time              `json:"timestamp"`
	Services    map[string]string      `json:"services"`
	Critical    []string               `json:"critical_failures,omitempty"`
	NonCritical []string               `json:"non_critical_failures,omitempty"`
	Latency     time.Duration          `json:"latency,omitempty"`
	Details     map[string]interface{} `json:"details,omitempty"`
}

// NewHealthService registers the health gauges with reg, reusing collectors
// a previous instance already registered there. A nil registerer leaves them
// unregistered.
func NewHealthService(checks []HealthCheck, reg prometheus.Registerer, logger *logrus.Logger) *HealthService {
	hs := &HealthService{
		checks:  checks,
		timeout: defaultHealthCheckTimeout,
		logger:  logger,
	}

	hs.healthCheckStatus = registerGaugeVec(reg, prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "health_check_status",
		Help: "Health check status (1 = healthy, 0 = unhealthy)",
	}, []string{"service"}), logger)

	hs.lastHealthCheck = registerGaugeVec(reg, prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "health_check_timestamp",
		Help: "Timestamp of last health check",
	}, []string{"service"}), logger)

	return hs
}

func registerGaugeVec(reg prometheus.Registerer, gauge *prometheus.GaugeVec, logger *logrus.Logger) *prometheus.GaugeVec {
	if reg == nil {
		return gauge
	}
	if err := reg.Register(gauge); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(*prometheus.GaugeVec); ok {
				return existing
			}
		}
		logger.WithError(err).Warn("Failed to register health metric")
	}
	return gauge
}

func (s *HealthService) CheckHealth(ctx context.Context) *HealthStatus {
	start := time.Now()
	status := &HealthStatus{
		Timestamp: start,
		Services:  make(map[string]string),
	}

	allCriticalHealthy := true
	for _, check := range s.checks {
		if err := s.run(ctx, check); err != nil {
			status.Services[check.Name] = "unhealthy"
			if check.Critical {
				status.Critical = append(status.Critical, check.Name)
				allCriticalHealthy = false
				s.logger.WithError(err).Errorf("Critical service %s is unhealthy", check.Name)
			} else {
				status.NonCritical = append(status.NonCritical, check.Name)
				s.logger.WithError(err).Warnf("Non-critical service %s is unhealthy", check.Name)
			}
			s.UpdateHealthMetrics(check.Name, false)
		} else {
			status.Services[check.Name] = "healthy"
			s.UpdateHealthMetrics(check.Name, true)
		}
	}

	// Overall status
	if allCriticalHealthy {
		if len(status.NonCritical) == 0 {
			status.Status = "healthy"
		} else {
			status.Status = "degraded"
		}
	} else {
		status.Status = "unhealthy"
	}
	status.Latency = time.Since(start)

	return status
}

func (s *HealthService) run(ctx context.Context, check HealthCheck) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	return check.Check(ctx)
}

// UpdateHealthMetrics updates health check metrics
func (s *HealthService) UpdateHealthMetrics(serviceName string, healthy bool) {
	if healthy {
		s.healthCheckStatus.WithLabelValues(serviceName).Set(1)
	} else {
		s.healthCheckStatus.WithLabelValues(serviceName).Set(0)
	}
	s.lastHealthCheck.WithLabelValues(serviceName).Set(float64(time.Now().Unix()))
}
