package keyservice

import (
	"context"
	"log/slog"

	"cskeys/internal/localstore"
)

// GenerateLegacyKey issues an offline-only key. Legacy keys never touch the
// remote ledger: the local store holds their metadata, usage state, and the
// daily counter that caps issuance.
func (s *Service) GenerateLegacyKey(ctx context.Context) GenerateResult {
	start := s.now()

	ok, err := s.legacyPolicy.CanIssue(ctx)
	if err != nil {
		return s.failGeneration(ctx, "LEGACY", StateCheckingQuota, FailurePersistError,
			msgGenerateFailed+": "+err.Error(), start)
	}
	if !ok {
		return s.failGeneration(ctx, "LEGACY", StateCheckingQuota, FailureQuotaExceeded, msgQuotaExceeded, start)
	}

	random, err := randomLegacyComponent()
	if err != nil {
		return s.failGeneration(ctx, "LEGACY", StateDeriving, FailurePersistError,
			msgGenerateFailed+": "+err.Error(), start)
	}
	code := s.legacy.Encode(s.now().Unix(), random)

	rec := localstore.LegacyKeyRecord{
		Code:       code,
		IssuedAt:   s.now(),
		UsageBonus: s.cfg.LegacyBonus,
	}
	if err := s.local.PutLegacyKey(rec); err != nil {
		return s.failGeneration(ctx, "LEGACY", StatePersisting, FailurePersistError,
			msgPersistFailed+": "+err.Error(), start)
	}
	if err := s.legacyPolicy.RecordIssuance(ctx); err != nil {
		s.logger.WarnContext(ctx, "legacy quota counter update failed",
			slog.String("error", err.Error()),
		)
	}
	s.recordEvent(ctx, "key", "generated", "LEGACY")

	s.logger.InfoContext(ctx, "legacy key generated",
		slog.String("key", maskKey(code)),
	)
	s.metrics.recordGeneration(ctx, "LEGACY", true, "", s.now().Sub(start))

	return GenerateResult{
		Success:    true,
		Key:        code,
		Type:       "LEGACY",
		UsageBonus: s.cfg.LegacyBonus,
		Message:    "金鑰生成成功",
	}
}

// ValidateLegacyKey checks an offline key against local bookkeeping only.
// There is no integrity stage: the legacy format's random component is not
// re-derivable, so shape, usage, and expiry are all there is to check.
func (s *Service) ValidateLegacyKey(ctx context.Context, code string) ValidationResult {
	start := s.now()

	if !s.legacy.Matches(code) {
		return s.rejectValidation(ctx, code, StageFormat, LegacyReasonFormatInvalid, start)
	}
	if s.local.IsUsed(code) {
		return s.rejectValidation(ctx, code, StageDecision, LegacyReasonUsed, start)
	}

	rec, ok := s.local.LegacyKey(code)
	if !ok {
		// No local record means the key is from a previous session that
		// was pruned, or was never issued here. Both count as expired.
		return s.rejectValidation(ctx, code, StageDecision, ReasonExpired, start)
	}
	if s.now().Sub(rec.IssuedAt) > s.cfg.LegacyMaxAge {
		return s.rejectValidation(ctx, code, StageDecision, ReasonExpired, start)
	}

	s.metrics.recordValidation(ctx, true, string(StageDecision), s.now().Sub(start))
	return ValidationResult{
		Valid:      true,
		Reason:     ReasonValid,
		UsageBonus: rec.UsageBonus,
		KeyType:    "LEGACY",
	}
}

// ConsumeLegacyKey validates an offline key and marks it used locally.
func (s *Service) ConsumeLegacyKey(ctx context.Context, code string) ConsumeResult {
	validation := s.ValidateLegacyKey(ctx, code)
	if !validation.Valid {
		return ConsumeResult{Success: false, Message: validation.Reason}
	}

	fp := s.fingerprint(s.now())
	if err := s.local.MarkUsed(code, fp); err != nil {
		s.metrics.recordConsumption(ctx, false)
		return ConsumeResult{Success: false, Message: consumePrefix + err.Error()}
	}

	s.recordEvent(ctx, "key", "consumed", code)
	s.metrics.recordConsumption(ctx, true)
	return ConsumeResult{Success: true, Message: ReasonValid, Fingerprint: fp}
}

// LegacyKeyStats aggregates local legacy bookkeeping.
func (s *Service) LegacyKeyStats() *KeyStats {
	stats := &KeyStats{}
	now := s.now()
	for _, rec := range s.local.LegacyKeys() {
		stats.TotalGenerated++
		if rec.Used {
			stats.TotalUsed++
			continue
		}
		if now.Sub(rec.IssuedAt) > s.cfg.LegacyMaxAge {
			stats.TotalExpired++
		}
	}
	stats.Remaining = stats.TotalGenerated - stats.TotalUsed - stats.TotalExpired
	return stats
}

// CleanupExpired prunes legacy records past their validity window. Meant
// to run at startup, mirroring the original page-load cleanup.
func (s *Service) CleanupExpired(ctx context.Context) error {
	removed, err := s.local.CleanupExpired(s.now(), s.cfg.LegacyMaxAge)
	if err != nil {
		return err
	}
	if removed > 0 {
		s.logger.InfoContext(ctx, "expired legacy keys pruned",
			slog.Int("removed", removed),
		)
	}
	return nil
}
