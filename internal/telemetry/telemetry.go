// Package telemetry wires the schema registry, privacy redaction, sampler,
// buffer manager, writer backend, and manifest aggregator into one engine.
// Callers submit plain field maps; everything downstream of Log is structured
package telemetry

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-playground/validator/v10"

	"rklog/internal/core/artifact"
	"rklog/internal/platform/config"
	perr "rklog/internal/platform/errors"
	"rklog/internal/platform/logger"
	"rklog/internal/telemetry/buffer"
	"rklog/internal/telemetry/manifest"
	"rklog/internal/telemetry/privacy"
	"rklog/internal/telemetry/sampling"
	"rklog/internal/telemetry/schema"
	"rklog/internal/telemetry/writer"
)

// Config tunes one engine instance
type Config struct {
	// BaseDir roots the partitioned data files, manifests, and overflow area
	BaseDir string `validate:"required"`

	// SystemVersion is stamped into records and manifests
	SystemVersion string

	// PrivacyTier gates raw content: internal, research, or public
	PrivacyTier string `validate:"oneof=internal research public"`

	// PreviewFields keep a bounded prefix instead of a hash at research tier
	PreviewFields []string

	// Sampling maps artifact type to keep rate; unlisted types keep everything
	Sampling map[string]float64 `validate:"dive,gte=0,lte=1"`

	// SchemaVersions overrides the builtin schema version per type
	SchemaVersions map[string]int

	// MaxBatchSize triggers a flush when a type's buffer reaches this size
	MaxBatchSize int `validate:"gte=1"`

	// MaxBatchAge triggers a flush when a type's oldest buffered record is
	// this old
	MaxBatchAge time.Duration

	// FlushWorkers bounds concurrent async flushes; 0 flushes inline
	FlushWorkers int `validate:"gte=0"`

	// MaxRetries caps flush attempts beyond the first
	MaxRetries int `validate:"gte=0"`
}

// DefaultConfig returns a workable config rooted at baseDir
func DefaultConfig(baseDir string) Config {
	return Config{
		BaseDir:       baseDir,
		SystemVersion: "0.0.0",
		PrivacyTier:   privacy.TierInternal.String(),
		MaxBatchSize:  100,
		MaxBatchAge:   30 * time.Second,
		MaxRetries:    3,
	}
}

// ConfigFromEnv loads config from RKLOG_-prefixed environment variables
func ConfigFromEnv() Config {
	cfg := config.New().Prefix("RKLOG_")
	return Config{
		BaseDir:       cfg.MustString("BASE_DIR"),
		SystemVersion: cfg.MayString("SYSTEM_VERSION", "0.0.0"),
		PrivacyTier:   cfg.MayEnum("PRIVACY_TIER", "internal", "internal", "research", "public"),
		PreviewFields: cfg.MayCSV("PREVIEW_FIELDS", nil),
		Sampling:      cfg.MayFloatMap("SAMPLING", nil),
		MaxBatchSize:  cfg.MayInt("MAX_BATCH_SIZE", 100),
		MaxBatchAge:   cfg.MayDuration("MAX_BATCH_AGE", 30*time.Second),
		FlushWorkers:  cfg.MayInt("FLUSH_WORKERS", 0),
		MaxRetries:    cfg.MayInt("MAX_RETRIES", 3),
	}
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// LogOption adjusts a single Log call
type LogOption func(*logOpts)

type logOpts struct{ force bool }

// WithForce bypasses sampling for one record; validation and redaction still
// apply
func WithForce() LogOption { return func(o *logOpts) { o.force = true } }

// Engine is the ingestion facade. One instance per process; all methods are
// safe for concurrent use
type Engine struct {
	registry      *schema.Registry
	policy        privacy.Policy
	sampler       *sampling.Sampler
	backend       *writer.Backend
	aggregator    *manifest.Aggregator
	buf           *buffer.Manager
	log           *logger.Logger
	systemVersion string

	sampledOut atomic.Uint64

	mu     sync.Mutex
	closed bool
}

// Stats combines the buffer counters with facade-level counters
type Stats struct {
	buffer.Stats
	SampledOut uint64
}

// New validates cfg and assembles an engine. Schema conflicts and invalid
// config are construction-time failures, never runtime surprises
func New(cfg Config) (*Engine, error) {
	if err := validate.Struct(cfg); err != nil {
		return nil, perr.Wrap(err, perr.ErrorCodeInvalidConfig, "telemetry config rejected")
	}

	tier, err := privacy.ParseTier(cfg.PrivacyTier)
	if err != nil {
		return nil, err
	}

	versions := make(map[artifact.Type]int, len(cfg.SchemaVersions))
	for t, v := range cfg.SchemaVersions {
		versions[artifact.Type(t)] = v
	}
	registry, err := schema.Builtin(versions)
	if err != nil {
		return nil, err
	}

	rates := make(sampling.Policy, len(cfg.Sampling))
	for t, r := range cfg.Sampling {
		rates[artifact.Type(t)] = r
	}

	policy := privacy.DefaultPolicy(tier)
	policy.PreviewFields = cfg.PreviewFields

	schemaVersions := make(map[artifact.Type]int)
	for _, t := range registry.Types() {
		spec, _ := registry.Spec(t)
		schemaVersions[t] = spec.Version
	}

	backend := writer.NewBackend(cfg.BaseDir, writer.SelectEncoder(registry))
	aggregator := manifest.NewAggregator(cfg.BaseDir, cfg.SystemVersion, schemaVersions)

	e := &Engine{
		registry:   registry,
		policy:     policy,
		sampler:    sampling.New(rates),
		backend:    backend,
		aggregator: aggregator,
		log:        logger.Named("telemetry"),
	}
	e.buf = buffer.NewManager(sink{e}, e.writeOverflow, registry.Types(), buffer.Options{
		MaxBatchSize: cfg.MaxBatchSize,
		MaxBatchAge:  cfg.MaxBatchAge,
		Workers:      cfg.FlushWorkers,
		MaxRetries:   cfg.MaxRetries,
	})

	e.systemVersion = cfg.SystemVersion

	e.log.Info().Str("base_dir", cfg.BaseDir).Str("privacy_tier", tier.String()).
		Int("max_batch_size", cfg.MaxBatchSize).Dur("max_batch_age", cfg.MaxBatchAge).
		Msg("telemetry engine ready")
	return e, nil
}

// sink adapts the writer backend and manifest aggregator to the buffer's
// flush interface
type sink struct{ e *Engine }

func (s sink) WriteBatch(_ context.Context, t artifact.Type, records []artifact.Record) error {
	spec, ok := s.e.registry.Spec(t)
	if !ok {
		return perr.UnknownArtifactf("artifact type %q is not registered", t)
	}
	res, err := s.e.backend.WriteBatch(t, spec, records)
	if err != nil {
		return err
	}
	if res.Records > 0 {
		s.e.aggregator.RecordFlush(t, manifest.DayOf(res.FlushedAt), res.Records)
	}
	return nil
}

func (e *Engine) writeOverflow(t artifact.Type, records []artifact.Record) error {
	spec, _ := e.registry.Spec(t)
	_, err := e.backend.WriteOverflow(t, spec, records)
	return err
}

// Log validates, redacts, samples, and buffers one record. Rejections come
// back with every violation listed; sampled-out records succeed silently
func (e *Engine) Log(ctx context.Context, artifactType string, fields map[string]any, opts ...LogOption) error {
	e.mu.Lock()
	closed := e.closed
	e.mu.Unlock()
	if closed {
		return perr.Unavailablef("telemetry engine is closed")
	}

	var o logOpts
	for _, opt := range opts {
		opt(&o)
	}

	t := artifact.Type(artifactType)
	if _, ok := e.registry.Spec(t); !ok {
		logger.C(ctx).Warn().Str("artifact_type", artifactType).Msg("unknown artifact type")
		return perr.UnknownArtifactf("artifact type %q is not registered", t)
	}

	fs, err := artifact.FieldsFromAny(fields)
	if err != nil {
		logger.C(ctx).Warn().Err(err).Str("artifact_type", artifactType).Msg("record rejected")
		return perr.Wrapf(err, perr.ErrorCodeSchemaViolation, "record rejected for %s", t)
	}
	e.enrich(fs)

	if err := e.registry.Validate(t, fs); err != nil {
		logger.C(ctx).Warn().Err(err).Str("artifact_type", artifactType).Msg("record rejected")
		return err
	}

	fs = privacy.Apply(fs, e.policy)

	if !o.force && !e.sampler.ShouldKeep(t) {
		e.sampledOut.Add(1)
		return nil
	}

	return e.buf.Enqueue(ctx, artifact.Record{
		Type:        t,
		Fields:      fs,
		SubmittedAt: time.Now().UTC(),
	})
}

// enrich stamps ambient fields a caller usually omits
func (e *Engine) enrich(fs artifact.Fields) {
	if _, ok := fs["timestamp"]; !ok {
		fs["timestamp"] = artifact.Timestamp(time.Now())
	}
	if _, ok := fs["system_version"]; !ok && e.systemVersion != "" {
		fs["system_version"] = artifact.String(e.systemVersion)
	}
	if _, ok := fs["type3_compliant"]; !ok {
		fs["type3_compliant"] = artifact.Bool(true)
	}
}

// Flush synchronously writes whatever is buffered for one type
func (e *Engine) Flush(ctx context.Context, artifactType string) error {
	return e.buf.Flush(ctx, artifact.Type(artifactType))
}

// FlushAll synchronously drains every type's buffer
func (e *Engine) FlushAll(ctx context.Context) {
	e.buf.FlushAll(ctx)
}

// Close drains the buffers and writes manifests for every day that saw a
// flush. Idempotent; Log returns Unavailable afterwards
func (e *Engine) Close(ctx context.Context) error {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return nil
	}
	e.closed = true
	e.mu.Unlock()

	e.buf.Close(ctx)

	var first error
	for _, day := range e.aggregator.PendingDays() {
		if _, err := e.aggregator.WriteManifest(day); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// Stats exposes the ingestion counters for health checks
func (e *Engine) Stats() Stats {
	return Stats{Stats: e.buf.Stats(), SampledOut: e.sampledOut.Load()}
}

// DetectDrift compares sample field maps against the registered schema
func (e *Engine) DetectDrift(artifactType string, samples []artifact.Fields) (schema.DriftReport, error) {
	return e.registry.DetectDrift(artifact.Type(artifactType), samples)
}
