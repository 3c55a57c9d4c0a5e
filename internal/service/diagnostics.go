package service

import (
	"context"
	"fmt"

	"github.com/josh-kwaku/umrah-va-gateway/internal/domain"
	"github.com/josh-kwaku/umrah-va-gateway/internal/gateway"
)

type BankInfo struct {
	Code domain.BankCode `json:"code"`
	Name string          `json:"name"`
}

type GatewayStatus struct {
	Mode                      gateway.Mode   `json:"mode"`
	LiveCredentialsConfigured bool           `json:"live_credentials_configured"`
	SupportedBanks            []BankInfo     `json:"supported_banks"`
	QueueJobs                 map[string]int `json:"queue_jobs"`
	Downstream                []string       `json:"downstream"`
}

// DiagnosticsService reports gateway mode and queue health without exposing
// credentials.
type DiagnosticsService struct {
	cfg   gateway.Config
	queue queueStats
	sinks []string
}

func NewDiagnosticsService(cfg gateway.Config, q queueStats, sinks []string) *DiagnosticsService {
	return &DiagnosticsService{cfg: cfg, queue: q, sinks: sinks}
}

func (s *DiagnosticsService) GatewayStatus(ctx context.Context) (*GatewayStatus, error) {
	banks := domain.SupportedBanks()
	status := &GatewayStatus{
		Mode:                      s.cfg.Mode,
		LiveCredentialsConfigured: s.cfg.HasLiveCredentials(),
		SupportedBanks:            make([]BankInfo, 0, len(banks)),
		QueueJobs:                 map[string]int{},
		Downstream:                s.sinks,
	}
	for _, b := range banks {
		status.SupportedBanks = append(status.SupportedBanks, BankInfo{Code: b, Name: b.DisplayName()})
	}
	if status.Downstream == nil {
		status.Downstream = []string{}
	}

	if s.queue != nil {
		stats, err := s.queue.Stats(ctx)
		if err != nil {
			return nil, fmt.Errorf("GatewayStatus: %w", err)
		}
		for k, v := range stats {
			status.QueueJobs[string(k)] = v
		}
	}
	return status, nil
}
