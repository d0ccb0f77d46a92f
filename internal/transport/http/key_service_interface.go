package http

import (
	"context"

	"cskeys/internal/keyservice"
	"cskeys/internal/localstore"
	"cskeys/internal/sheetstore"
)

// KeyService is the surface of the key lifecycle service the handlers
// depend on. Kept as an interface so handler tests can substitute a
// stub without a remote ledger.
type KeyService interface {
	GenerateFreeKey(ctx context.Context) keyservice.GenerateResult
	GeneratePaidKey(ctx context.Context) keyservice.GenerateResult
	GenerateLegacyKey(ctx context.Context) keyservice.GenerateResult

	ValidateKey(ctx context.Context, code string) keyservice.ValidationResult
	ConsumeKey(ctx context.Context, code string) keyservice.ConsumeResult

	ValidateLegacyKey(ctx context.Context, code string) keyservice.ValidationResult
	ConsumeLegacyKey(ctx context.Context, code string) keyservice.ConsumeResult

	KeyStats(ctx context.Context) (*keyservice.KeyStats, error)
	LegacyKeyStats() *keyservice.KeyStats
	ListKeys(ctx context.Context) (*sheetstore.ListResult, error)
	AuditLog() []localstore.AuditRecord

	HealthCheck(ctx context.Context) *keyservice.HealthResult
}
