package telemetry

import (
	"context"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"rklog/internal/core/artifact"
	perr "rklog/internal/platform/errors"
	"rklog/internal/platform/logger"
	kit "rklog/internal/platform/testkit"
	"rklog/internal/telemetry/manifest"
	"rklog/internal/telemetry/privacy"
	"rklog/internal/telemetry/schema"
	"rklog/internal/telemetry/writer"
)

func newEngine(t *testing.T, mutate func(*Config)) (*Engine, string) {
	t.Helper()
	base := t.TempDir()
	cfg := DefaultConfig(base)
	cfg.SystemVersion = "0.3.0"
	cfg.MaxBatchSize = 10
	cfg.MaxBatchAge = time.Hour
	if mutate != nil {
		mutate(&cfg)
	}
	e, err := New(cfg)
	kit.MustNoErr(t, err)
	return e, base
}

func event(id string) map[string]any {
	return map[string]any{
		"event_id": id,
		"action":   "llm_call",
	}
}

func dataFiles(t *testing.T, base string, typ artifact.Type) []string {
	t.Helper()
	matches, err := filepath.Glob(filepath.Join(base, string(typ), "*", "*", "*", "*"))
	kit.MustNoErr(t, err)
	return matches
}

func TestEndToEndBatchesAndManifest(t *testing.T) {
	e, base := newEngine(t, nil)

	for i := 0; i < 20; i++ {
		kit.MustNoErr(t, e.Log(context.Background(), "boundary_event", event("evt")))
	}
	kit.MustNoErr(t, e.Close(context.Background()))

	files := dataFiles(t, base, artifact.BoundaryEvent)
	if len(files) != 2 {
		t.Fatalf("expected 2 data files, got %d: %v", len(files), files)
	}
	total := 0
	for _, f := range files {
		n, err := writer.CountParquetRows(f)
		kit.MustNoErr(t, err)
		total += n
	}
	if total != 20 {
		t.Fatalf("expected 20 persisted records, got %d", total)
	}

	m, err := manifest.Read(base, manifest.DayOf(time.Now()))
	kit.MustNoErr(t, err)
	be := m.Artifacts[artifact.BoundaryEvent]
	if be.RecordCount != 20 || be.FileCount != 2 {
		t.Fatalf("manifest miscounted: %+v", be)
	}
	if m.SystemVersion != "0.3.0" {
		t.Fatalf("manifest missing system version: %+v", m)
	}
}

func TestRecordsAreEnriched(t *testing.T) {
	e, base := newEngine(t, nil)

	kit.MustNoErr(t, e.Log(context.Background(), "boundary_event", event("evt-1")))
	kit.MustNoErr(t, e.Close(context.Background()))

	files := dataFiles(t, base, artifact.BoundaryEvent)
	if len(files) != 1 {
		t.Fatalf("expected 1 file, got %v", files)
	}
	rows, err := writer.ReadParquet(files[0], boundarySpec(t))
	kit.MustNoErr(t, err)

	fields := rows[0]
	if v, _ := fields["system_version"].Str(); v != "0.3.0" {
		t.Fatalf("system_version not stamped: %v", fields.Any())
	}
	if b, _ := fields["type3_compliant"].Boolean(); !b {
		t.Fatalf("type3_compliant not stamped: %v", fields.Any())
	}
	if _, ok := fields["timestamp"]; !ok {
		t.Fatalf("timestamp not stamped: %v", fields.Any())
	}
}

func boundarySpec(t *testing.T) schema.Spec {
	t.Helper()
	reg, err := schema.Builtin(nil)
	kit.MustNoErr(t, err)
	spec, _ := reg.Spec(artifact.BoundaryEvent)
	return spec
}

func TestUnknownTypeIsRejectedWithoutSideEffects(t *testing.T) {
	e, base := newEngine(t, nil)
	defer e.Close(context.Background())

	// session-scoped ctx feeds the rejection log line
	ctx := logger.WithSession(context.Background(), "sess-1", "mystery")
	err := e.Log(ctx, "mystery", map[string]any{"x": 1})
	kit.MustErr(t, err)
	if !perr.IsCode(err, perr.ErrorCodeUnknownArtifact) {
		t.Fatalf("expected unknown artifact, got %v", err)
	}
	if files := dataFiles(t, base, "mystery"); len(files) != 0 {
		t.Fatalf("rejected type produced files: %v", files)
	}
}

func TestInvalidRecordListsEveryViolation(t *testing.T) {
	e, _ := newEngine(t, nil)
	defer e.Close(context.Background())

	// event_id wrong kind, action missing
	err := e.Log(context.Background(), "boundary_event", map[string]any{
		"event_id": 42,
		"severity": "low",
	})
	kit.MustErr(t, err)
	if !perr.IsCode(err, perr.ErrorCodeSchemaViolation) {
		t.Fatalf("expected schema violation, got %v", err)
	}
	vs := perr.ViolationsOf(err)
	if len(vs) != 2 {
		t.Fatalf("expected 2 violations, got %v", vs)
	}
	if vs[0].Field != "action" || vs[1].Field != "event_id" {
		t.Fatalf("violations not sorted by field: %v", vs)
	}
}

func TestResearchTierHashesSensitiveFields(t *testing.T) {
	e, base := newEngine(t, func(c *Config) { c.PrivacyTier = "research" })

	fields := event("evt-1")
	fields["decision_text"] = "the model chose option B because..."
	kit.MustNoErr(t, e.Log(context.Background(), "boundary_event", fields))
	kit.MustNoErr(t, e.Close(context.Background()))

	files := dataFiles(t, base, artifact.BoundaryEvent)
	rows, err := writer.ReadParquet(files[0], boundarySpec(t))
	kit.MustNoErr(t, err)

	row := rows[0]
	if _, ok := row["decision_text"]; ok {
		t.Fatalf("raw sensitive field persisted: %v", row.Any())
	}
	h, _ := row["decision_text_hash"].Str()
	if !strings.HasPrefix(h, privacy.DigestPrefix) || len(h) != 71 {
		t.Fatalf("bad digest %q", h)
	}
	if h != privacy.HashText("the model chose option B because...") {
		t.Fatalf("digest not deterministic")
	}
}

func TestSamplingDropsAndForceBypasses(t *testing.T) {
	e, base := newEngine(t, func(c *Config) {
		c.Sampling = map[string]float64{"boundary_event": 0.0}
	})

	for i := 0; i < 50; i++ {
		kit.MustNoErr(t, e.Log(context.Background(), "boundary_event", event("evt")))
	}
	kit.MustNoErr(t, e.Log(context.Background(), "boundary_event", event("kept"), WithForce()))

	st := e.Stats()
	if st.SampledOut != 50 {
		t.Fatalf("expected 50 sampled-out records, got %d", st.SampledOut)
	}
	if st.Enqueued != 1 {
		t.Fatalf("expected only the forced record enqueued, got %d", st.Enqueued)
	}
	kit.MustNoErr(t, e.Close(context.Background()))

	files := dataFiles(t, base, artifact.BoundaryEvent)
	if len(files) != 1 {
		t.Fatalf("expected only the forced record's file, got %v", files)
	}
	n, err := writer.CountParquetRows(files[0])
	kit.MustNoErr(t, err)
	if n != 1 {
		t.Fatalf("expected 1 forced record, got %d", n)
	}
}

func TestCloseIsIdempotent(t *testing.T) {
	e, base := newEngine(t, nil)

	kit.MustNoErr(t, e.Log(context.Background(), "boundary_event", event("evt")))
	kit.MustNoErr(t, e.Close(context.Background()))
	kit.MustNoErr(t, e.Close(context.Background()))

	m, err := manifest.Read(base, manifest.DayOf(time.Now()))
	kit.MustNoErr(t, err)
	be := m.Artifacts[artifact.BoundaryEvent]
	if be.RecordCount != 1 || be.FileCount != 1 {
		t.Fatalf("double close double-counted: %+v", be)
	}

	err = e.Log(context.Background(), "boundary_event", event("late"))
	kit.MustErr(t, err)
	if !perr.IsCode(err, perr.ErrorCodeUnavailable) {
		t.Fatalf("expected unavailable after close, got %v", err)
	}
}

func TestConfigValidation(t *testing.T) {
	_, err := New(Config{PrivacyTier: "internal", MaxBatchSize: 1})
	kit.MustErr(t, err)
	if !perr.IsCode(err, perr.ErrorCodeInvalidConfig) {
		t.Fatalf("missing base dir should be invalid config, got %v", err)
	}

	cfg := DefaultConfig(t.TempDir())
	cfg.Sampling = map[string]float64{"boundary_event": 1.5}
	_, err = New(cfg)
	kit.MustErr(t, err)

	cfg = DefaultConfig(t.TempDir())
	cfg.PrivacyTier = "secret"
	_, err = New(cfg)
	kit.MustErr(t, err)
}

func TestStatsCountFlushes(t *testing.T) {
	e, _ := newEngine(t, nil)

	for i := 0; i < 10; i++ {
		kit.MustNoErr(t, e.Log(context.Background(), "boundary_event", event("evt")))
	}
	st := e.Stats()
	if st.Enqueued != 10 || st.FlushedBatches != 1 || st.FlushedRecords != 10 {
		t.Fatalf("unexpected stats: %+v", st)
	}
	kit.MustNoErr(t, e.Close(context.Background()))
}
