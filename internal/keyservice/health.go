package keyservice

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"cskeys/internal/keycodec"
	"cskeys/internal/localstore"
)

// HealthStatus is the aggregate state of the key subsystem.
type HealthStatus string

const (
	HealthStatusHealthy   HealthStatus = "healthy"
	HealthStatusDegraded  HealthStatus = "degraded"
	HealthStatusUnhealthy HealthStatus = "unhealthy"
)

// ComponentHealth reports one check's outcome.
type ComponentHealth struct {
	Status   HealthStatus `json:"status"`
	Message  string       `json:"message"`
	Duration string       `json:"duration,omitempty"`
	Error    string       `json:"error,omitempty"`
}

// HealthResult aggregates all component checks.
type HealthResult struct {
	Status     HealthStatus                `json:"status"`
	Timestamp  time.Time                   `json:"timestamp"`
	Components map[string]*ComponentHealth `json:"components"`
}

// healthCheckTimeout bounds each individual check.
const healthCheckTimeout = 5 * time.Second

// HealthCheck probes the remote ledger, the local store, fingerprint
// derivation, and codec self-consistency. Checks run concurrently; the
// aggregate is unhealthy when the remote ledger is unreachable and
// degraded when only a local component misbehaves.
func (s *Service) HealthCheck(ctx context.Context) *HealthResult {
	result := &HealthResult{
		Timestamp:  s.now(),
		Components: make(map[string]*ComponentHealth),
	}

	var mu sync.Mutex
	record := func(name string, h *ComponentHealth) {
		mu.Lock()
		defer mu.Unlock()
		result.Components[name] = h
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		record("remote_store", s.checkRemoteStore(gctx))
		return nil
	})
	g.Go(func() error {
		record("local_store", s.checkLocalStore())
		return nil
	})
	g.Go(func() error {
		record("fingerprint", s.checkFingerprint())
		return nil
	})
	g.Go(func() error {
		record("key_codec", s.checkCodec())
		return nil
	})
	_ = g.Wait() // checks report through their ComponentHealth, never an error

	result.Status = HealthStatusHealthy
	for name, component := range result.Components {
		if component.Status == HealthStatusHealthy {
			continue
		}
		if name == "remote_store" && component.Status == HealthStatusUnhealthy {
			result.Status = HealthStatusUnhealthy
			break
		}
		result.Status = HealthStatusDegraded
	}
	return result
}

func (s *Service) checkRemoteStore(ctx context.Context) *ComponentHealth {
	ctx, cancel := context.WithTimeout(ctx, healthCheckTimeout)
	defer cancel()

	start := time.Now()
	result, err := s.remote.List(ctx)
	duration := time.Since(start).String()
	if err != nil {
		return &ComponentHealth{
			Status:   HealthStatusUnhealthy,
			Message:  "remote ledger unreachable",
			Duration: duration,
			Error:    err.Error(),
		}
	}
	if !result.Success {
		return &ComponentHealth{
			Status:   HealthStatusDegraded,
			Message:  "remote ledger rejected listing",
			Duration: duration,
		}
	}
	return &ComponentHealth{
		Status:   HealthStatusHealthy,
		Message:  "remote ledger reachable",
		Duration: duration,
	}
}

func (s *Service) checkLocalStore() *ComponentHealth {
	// A real append exercises the full marshal-write-rename path
	ev := localstore.Event{Category: "health", Action: "probe", At: s.now()}
	if err := s.local.AppendEvent(ev); err != nil {
		return &ComponentHealth{
			Status:  HealthStatusDegraded,
			Message: "local store not writable",
			Error:   err.Error(),
		}
	}
	return &ComponentHealth{Status: HealthStatusHealthy, Message: "local store writable"}
}

func (s *Service) checkFingerprint() *ComponentHealth {
	fp := s.fingerprint(s.now())
	if len(fp) == 0 {
		return &ComponentHealth{
			Status:  HealthStatusDegraded,
			Message: "fingerprint derivation returned empty value",
		}
	}
	return &ComponentHealth{Status: HealthStatusHealthy, Message: "fingerprint derivation working"}
}

// checkCodec exercises the encode/verify round trip with the derived seed.
func (s *Service) checkCodec() *ComponentHealth {
	dateStamp := s.now().Format(dateStampLayout)
	code := s.dated.Encode(keycodec.KeyTypeFree, dateStamp, keycodec.DeriveSeed(dateStamp))
	if !s.dated.VerifyIntegrity(code) {
		return &ComponentHealth{
			Status:  HealthStatusUnhealthy,
			Message: "codec round trip failed",
		}
	}
	return &ComponentHealth{Status: HealthStatusHealthy, Message: "codec round trip ok"}
}
