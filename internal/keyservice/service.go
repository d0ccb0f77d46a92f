package keyservice

import (
	"context"
	"crypto/rand"
	"fmt"
	"log/slog"
	"math/big"
	"time"

	apperrors "cskeys/internal/errors"
	"cskeys/internal/fingerprint"
	"cskeys/internal/hashcodec"
	"cskeys/internal/keycodec"
	"cskeys/internal/localstore"
	"cskeys/internal/quota"
	"cskeys/internal/sheetstore"
)

// dateStampLayout is the YYYYMMDD stamp embedded in dated keys.
const dateStampLayout = "20060102"

// User-facing decision reasons for the dated (remote-backed) scheme. These
// strings are wire-visible on the download page and must not change.
const (
	ReasonFormatInvalid   = "金鑰格式不正確"
	ReasonIntegrityFailed = "金鑰格式無效"
	ReasonNotFound        = "金鑰不存在"
	ReasonUsed            = "金鑰已被使用"
	ReasonExpired         = "金鑰已過期"
	ReasonValid           = "金鑰有效"
)

// Decision reasons for the legacy offline scheme. The legacy client used
// slightly different wording; both sets are preserved verbatim.
const (
	LegacyReasonFormatInvalid = "格式不正確"
	LegacyReasonUsed          = "金鑰已使用"
)

// Messages for generation outcomes.
const (
	msgQuotaExceeded  = "今日金鑰生成次數已達上限"
	msgPersistFailed  = "金鑰儲存失敗"
	msgGenerateFailed = "金鑰生成失敗"
	validatePrefix    = "驗證失敗: "
	consumePrefix     = "使用金鑰失敗: "
)

// GenerationState labels the stages of one issuance attempt.
type GenerationState string

const (
	StateCheckingQuota GenerationState = "checking_quota"
	StateDeriving      GenerationState = "deriving"
	StatePersisting    GenerationState = "persisting"
	StateLogged        GenerationState = "logged"
	StateFailed        GenerationState = "failed"
)

// FailureReason classifies why an issuance attempt failed.
type FailureReason string

const (
	FailureQuotaExceeded  FailureReason = "quota_exceeded"
	FailurePersistError   FailureReason = "persist_error"
	FailureTransportError FailureReason = "transport_error"
)

// ValidationStage labels where a validation attempt stopped.
type ValidationStage string

const (
	StageFormat    ValidationStage = "format"
	StageIntegrity ValidationStage = "integrity"
	StageNetwork   ValidationStage = "network"
	StageDecision  ValidationStage = "decision"
)

// GenerateResult is the structured outcome of one issuance attempt.
type GenerateResult struct {
	Success    bool             `json:"success"`
	Key        string           `json:"key,omitempty"`
	Type       keycodec.KeyType `json:"type,omitempty"`
	UsageBonus int              `json:"usageBonus,omitempty"`
	Message    string           `json:"message,omitempty"`
	Error      string           `json:"error,omitempty"`

	// FailureReason is set when Success is false.
	FailureReason FailureReason `json:"-"`
}

// ValidationResult is the structured outcome of one validation attempt.
type ValidationResult struct {
	Valid      bool   `json:"valid"`
	Reason     string `json:"reason"`
	UsageBonus int    `json:"usageBonus,omitempty"`
	KeyType    string `json:"keyType,omitempty"`
	ValidUntil string `json:"validUntil,omitempty"`

	// FailureStage is set when Valid is false and identifies the stage
	// that rejected the key.
	FailureStage ValidationStage `json:"-"`
}

// ConsumeResult is the structured outcome of one consumption attempt.
type ConsumeResult struct {
	Success     bool   `json:"success"`
	Message     string `json:"message"`
	Fingerprint string `json:"fingerprint,omitempty"`
}

// KeyStats aggregates ledger state for the operator endpoints.
type KeyStats struct {
	TotalGenerated int `json:"totalGenerated"`
	TotalUsed      int `json:"totalUsed"`
	TotalExpired   int `json:"totalExpired"`
	Remaining      int `json:"remaining"`
}

// RemoteStore is the slice of the remote ledger the service depends on.
type RemoteStore interface {
	Create(ctx context.Context, code string, keyType string, usageBonus int, validUntil time.Time) (*sheetstore.CreateResult, error)
	Validate(ctx context.Context, code string) (*sheetstore.ValidateResult, error)
	Consume(ctx context.Context, code, fingerprint string) (*sheetstore.ConsumeResult, error)
	List(ctx context.Context) (*sheetstore.ListResult, error)
}

// Config carries the tunables of both key schemes.
type Config struct {
	Secret       string        // dated scheme shared secret
	LegacySecret string        // legacy scheme shared secret (a different revision)
	Hash         hashcodec.Algorithm
	ValidityDays int           // dated key validity window (30)
	LegacyMaxAge time.Duration // legacy key validity window (24h)
	FreeBonus    int           // usage bonus granted by a FREE key (20)
	PaidBonus    int           // usage bonus for PAID keys; -1 means unlimited
	LegacyBonus  int           // usage bonus for legacy keys (10)
}

// DefaultConfig returns the deployed production parameters, minus secrets.
func DefaultConfig() Config {
	return Config{
		Hash:         hashcodec.AlgorithmSHA256,
		ValidityDays: 30,
		LegacyMaxAge: 24 * time.Hour,
		FreeBonus:    20,
		PaidBonus:    -1,
		LegacyBonus:  10,
	}
}

// Service is the key lifecycle orchestrator. Construct with New and inject
// every collaborator explicitly; there are no package-level singletons.
type Service struct {
	remote       RemoteStore
	policy       quota.Policy
	legacyPolicy *quota.LocalPolicy
	local        *localstore.Store
	dated        keycodec.DatedCodec
	legacy       keycodec.LegacyCodec
	cfg          Config
	logger       *slog.Logger
	metrics      *Metrics
	now          func() time.Time
	fingerprint  func(time.Time) string
}

// Option configures a Service.
type Option func(*Service)

// WithLogger sets the structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) { s.logger = logger }
}

// WithMetrics attaches OpenTelemetry instruments.
func WithMetrics(m *Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

// WithClock overrides the time source. Test hook.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// WithFingerprintFunc overrides fingerprint derivation. Test hook.
func WithFingerprintFunc(fn func(time.Time) string) Option {
	return func(s *Service) { s.fingerprint = fn }
}

// WithLegacyPolicy sets the local quota policy for the legacy scheme.
func WithLegacyPolicy(p *quota.LocalPolicy) Option {
	return func(s *Service) { s.legacyPolicy = p }
}

// New creates a key lifecycle service.
func New(remote RemoteStore, policy quota.Policy, local *localstore.Store, cfg Config, opts ...Option) *Service {
	s := &Service{
		remote: remote,
		policy: policy,
		local:  local,
		cfg:    cfg,
		dated:  keycodec.DatedCodec{Secret: cfg.Secret, Hash: cfg.Hash},
		legacy: keycodec.LegacyCodec{Secret: cfg.LegacySecret, Hash: cfg.Hash},
		logger: slog.Default().With(slog.String("component", "keyservice")),
		now:    time.Now,
	}
	s.fingerprint = fingerprint.Generate
	for _, opt := range opts {
		opt(s)
	}
	if s.legacyPolicy == nil && local != nil {
		s.legacyPolicy = quota.NewLocalPolicy(local, quota.DefaultDailyCap)
	}
	return s
}

// GenerateFreeKey issues a FREE key with the configured usage bonus.
func (s *Service) GenerateFreeKey(ctx context.Context) GenerateResult {
	return s.generate(ctx, keycodec.KeyTypeFree, s.cfg.FreeBonus)
}

// GeneratePaidKey issues a PAID key with unlimited usage.
func (s *Service) GeneratePaidKey(ctx context.Context) GenerateResult {
	return s.generate(ctx, keycodec.KeyTypePaid, s.cfg.PaidBonus)
}

// generate runs the issuance state machine for the dated scheme.
//
// The quota check and remote create are not transactional: a concurrent
// caller may pass the check before this one persists. The overrun is
// bounded by the number of concurrent callers and accepted as-is.
func (s *Service) generate(ctx context.Context, keyType keycodec.KeyType, bonus int) GenerateResult {
	start := s.now()
	state := StateCheckingQuota

	ok, err := s.policy.CanIssue(ctx)
	if err != nil {
		return s.failGeneration(ctx, keyType, state, FailureTransportError,
			msgGenerateFailed+": "+err.Error(), start)
	}
	if !ok {
		return s.failGeneration(ctx, keyType, state, FailureQuotaExceeded, msgQuotaExceeded, start)
	}

	state = StateDeriving
	dateStamp := s.now().Format(dateStampLayout)
	// The seed must be the derived one: integrity verification reconstructs
	// it from the date stamp alone, so any other seed would mint codes that
	// fail the offline pre-check.
	code := s.dated.Encode(keyType, dateStamp, keycodec.DeriveSeed(dateStamp))

	state = StatePersisting
	validUntil := s.now().AddDate(0, 0, s.cfg.ValidityDays)
	if _, err := s.remote.Create(ctx, code, string(keyType), bonus, validUntil); err != nil {
		reason := FailurePersistError
		if apperrors.IsTransport(err) {
			reason = FailureTransportError
		}
		return s.failGeneration(ctx, keyType, state, reason,
			msgPersistFailed+": "+err.Error(), start)
	}

	state = StateLogged
	audit := localstore.AuditRecord{Code: code, Type: string(keyType), Generated: s.now()}
	if err := s.local.AppendAudit(audit); err != nil {
		// The key already exists remotely; a failed audit write must not
		// turn a successful issuance into a user-visible failure.
		s.logger.WarnContext(ctx, "audit log write failed",
			slog.String("key", maskKey(code)),
			slog.String("error", err.Error()),
		)
	}
	s.recordEvent(ctx, "key", "generated", string(keyType))

	s.logger.InfoContext(ctx, "key generated",
		slog.String("key", maskKey(code)),
		slog.String("type", string(keyType)),
		slog.String("state", string(state)),
		slog.Duration("duration", s.now().Sub(start)),
	)
	s.metrics.recordGeneration(ctx, string(keyType), true, "", s.now().Sub(start))

	return GenerateResult{
		Success:    true,
		Key:        code,
		Type:       keyType,
		UsageBonus: bonus,
		Message:    fmt.Sprintf("%s金鑰生成成功", keyType),
	}
}

func (s *Service) failGeneration(ctx context.Context, keyType keycodec.KeyType, state GenerationState, reason FailureReason, message string, start time.Time) GenerateResult {
	s.logger.WarnContext(ctx, "key generation failed",
		slog.String("type", string(keyType)),
		slog.String("state", string(state)),
		slog.String("reason", string(reason)),
		slog.String("error", message),
	)
	s.metrics.recordGeneration(ctx, string(keyType), false, string(reason), s.now().Sub(start))
	return GenerateResult{Success: false, Error: message, FailureReason: reason}
}

// ValidateKey runs the validation state machine for a dated key code:
// FormatCheck -> IntegrityCheck -> RemoteLookup -> Decision. Calling it
// repeatedly on the same key is side-effect free.
func (s *Service) ValidateKey(ctx context.Context, code string) ValidationResult {
	start := s.now()

	if !s.dated.Matches(code) {
		return s.rejectValidation(ctx, code, StageFormat, ReasonFormatInvalid, start)
	}

	if !s.dated.VerifyIntegrity(code) {
		return s.rejectValidation(ctx, code, StageIntegrity, ReasonIntegrityFailed, start)
	}

	remote, err := s.remote.Validate(ctx, code)
	if err != nil {
		return s.rejectValidation(ctx, code, StageNetwork, validatePrefix+err.Error(), start)
	}

	if !remote.Exists {
		return s.rejectValidation(ctx, code, StageDecision, ReasonNotFound, start)
	}
	if remote.Used {
		return s.rejectValidation(ctx, code, StageDecision, ReasonUsed, start)
	}
	if remote.ValidUntil != "" {
		validUntil, parseErr := time.Parse(time.RFC3339, remote.ValidUntil)
		if parseErr != nil {
			// An unreadable expiry cannot expire the key; the deployed
			// client behaves the same way.
			s.logger.WarnContext(ctx, "unparsable validUntil from remote store",
				slog.String("key", maskKey(code)),
				slog.String("valid_until", remote.ValidUntil),
			)
		} else if s.now().After(validUntil) {
			return s.rejectValidation(ctx, code, StageDecision, ReasonExpired, start)
		}
	}

	s.logger.InfoContext(ctx, "key validated",
		slog.String("key", maskKey(code)),
		slog.String("type", remote.Type),
		slog.Duration("duration", s.now().Sub(start)),
	)
	s.metrics.recordValidation(ctx, true, string(StageDecision), s.now().Sub(start))

	return ValidationResult{
		Valid:      true,
		Reason:     ReasonValid,
		UsageBonus: remote.UsageBonus,
		KeyType:    remote.Type,
		ValidUntil: remote.ValidUntil,
	}
}

func (s *Service) rejectValidation(ctx context.Context, code string, stage ValidationStage, reason string, start time.Time) ValidationResult {
	s.logger.InfoContext(ctx, "key rejected",
		slog.String("key", maskKey(code)),
		slog.String("stage", string(stage)),
		slog.String("reason", reason),
	)
	s.metrics.recordValidation(ctx, false, string(stage), s.now().Sub(start))
	return ValidationResult{Valid: false, Reason: reason, FailureStage: stage}
}

// ConsumeKey validates a dated key and, if valid, marks it used remotely,
// recording the local environment fingerprint.
//
// The validate-then-consume sequence is a check-then-act race by design:
// the remote store enforces first-consume-wins, and this client never
// assumes it is the only consumer of a code.
func (s *Service) ConsumeKey(ctx context.Context, code string) ConsumeResult {
	validation := s.ValidateKey(ctx, code)
	if !validation.Valid {
		return ConsumeResult{Success: false, Message: validation.Reason}
	}

	fp := s.fingerprint(s.now())
	remote, err := s.remote.Consume(ctx, code, fp)
	if err != nil {
		s.logger.ErrorContext(ctx, "key consumption failed",
			slog.String("key", maskKey(code)),
			slog.String("error", err.Error()),
		)
		s.metrics.recordConsumption(ctx, false)
		return ConsumeResult{Success: false, Message: consumePrefix + err.Error()}
	}

	s.recordEvent(ctx, "key", "consumed", code)
	s.logger.InfoContext(ctx, "key consumed",
		slog.String("key", maskKey(code)),
		slog.Bool("success", remote.Success),
	)
	s.metrics.recordConsumption(ctx, remote.Success)

	return ConsumeResult{Success: remote.Success, Message: remote.Message, Fingerprint: fp}
}

// KeyStats aggregates the remote ledger into issuance statistics.
func (s *Service) KeyStats(ctx context.Context) (*KeyStats, error) {
	result, err := s.remote.List(ctx)
	if err != nil {
		return nil, err
	}
	if !result.Success {
		return nil, apperrors.NewRemoteLogicError("GET_ALL_KEYS", "listing rejected")
	}

	stats := &KeyStats{}
	now := s.now()
	for _, key := range result.Keys {
		stats.TotalGenerated++
		if key.Used {
			stats.TotalUsed++
			continue
		}
		if key.ValidUntil == "" {
			continue
		}
		if validUntil, err := time.Parse(time.RFC3339, key.ValidUntil); err == nil && now.After(validUntil) {
			stats.TotalExpired++
		}
	}
	stats.Remaining = stats.TotalGenerated - stats.TotalUsed - stats.TotalExpired
	return stats, nil
}

// ListKeys returns the full remote ledger.
func (s *Service) ListKeys(ctx context.Context) (*sheetstore.ListResult, error) {
	result, err := s.remote.List(ctx)
	if err != nil {
		return nil, err
	}
	if !result.Success {
		return nil, apperrors.NewRemoteLogicError("GET_ALL_KEYS", "listing rejected")
	}
	return result, nil
}

// AuditLog exposes the capped local generation log.
func (s *Service) AuditLog() []localstore.AuditRecord {
	return s.local.AuditLog()
}

// recordEvent appends to the local analytics log. Best effort.
func (s *Service) recordEvent(ctx context.Context, category, action, label string) {
	ev := localstore.Event{Category: category, Action: action, Label: label, At: s.now()}
	if err := s.local.AppendEvent(ev); err != nil {
		s.logger.DebugContext(ctx, "event log write failed", slog.String("error", err.Error()))
	}
}

// randomLegacyComponent returns a 5-digit random number (10000-99999).
func randomLegacyComponent() (int, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(90000))
	if err != nil {
		return 0, err
	}
	return int(n.Int64()) + 10000, nil
}

// maskKey shortens a key code for logs: first four and last four characters.
func maskKey(code string) string {
	if len(code) <= 8 {
		return "****"
	}
	return code[:4] + "****" + code[len(code)-4:]
}
