package writer

import (
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"rklog/internal/core/artifact"
	perr "rklog/internal/platform/errors"
	"rklog/internal/platform/logger"
	"rklog/internal/telemetry/schema"
)

// WriteResult describes one persisted batch file. FlushedAt is the instant
// the partition path was derived from, so manifest accounting files the batch
// under the same day as the data
type WriteResult struct {
	Path      string
	Format    string
	Records   int
	Bytes     int
	BatchID   string
	FlushedAt time.Time
}

// nowUTC is a seam for partition-time tests
var nowUTC = func() time.Time { return time.Now().UTC() }

// Backend serializes batches under a base directory. The primary encoder is
// tried first; encode failures fall back to line-delimited JSON transparently
// and never surface to ingestion callers
type Backend struct {
	baseDir  string
	primary  Encoder
	fallback Encoder
	resolver *Resolver
	log      *logger.Logger
}

// NewBackend builds a backend rooted at baseDir
func NewBackend(baseDir string, primary Encoder) *Backend {
	return &Backend{
		baseDir:  baseDir,
		primary:  primary,
		fallback: NDJSONEncoder{},
		resolver: NewResolver(),
		log:      logger.Named("writer"),
	}
}

// SelectEncoder probes the columnar encoder against every registered schema
// and returns it when usable, the line-delimited fallback otherwise
func SelectEncoder(reg *schema.Registry) Encoder {
	primary := ParquetEncoder{}
	for _, t := range reg.Types() {
		spec, _ := reg.Spec(t)
		probe := artifact.Record{Type: t, Fields: artifact.Fields{}, SubmittedAt: nowUTC()}
		if _, err := primary.Encode(t, spec, []artifact.Record{probe}); err != nil {
			logger.Named("writer").Warn().Err(err).Str("artifact_type", string(t)).
				Msg("columnar probe failed; using ndjson")
			return NDJSONEncoder{}
		}
	}
	return primary
}

// WriteBatch persists one batch to its partitioned file. The partition key is
// computed once from wall-clock time at flush. Files are written to a temp
// name and renamed so a partial file is never the final state
func (b *Backend) WriteBatch(t artifact.Type, spec schema.Spec, records []artifact.Record) (WriteResult, error) {
	if len(records) == 0 {
		return WriteResult{}, nil
	}
	flushTime := nowUTC()

	enc := b.primary
	data, err := enc.Encode(t, spec, records)
	if err != nil {
		// encode failure is absorbed here: same records, fallback format
		b.log.Warn().Err(err).Str("artifact_type", string(t)).Int("records", len(records)).
			Msg("columnar encode failed; falling back to ndjson")
		enc = b.fallback
		if data, err = enc.Encode(t, spec, records); err != nil {
			return WriteResult{}, err
		}
	}

	rel := b.resolver.Resolve(t, flushTime, enc.Ext())
	path := filepath.Join(b.baseDir, rel)
	if err := atomicWrite(path, data); err != nil {
		return WriteResult{}, err
	}

	res := WriteResult{
		Path:      path,
		Format:    enc.Name(),
		Records:   len(records),
		Bytes:     len(data),
		BatchID:   uuid.NewString(),
		FlushedAt: flushTime,
	}
	b.log.Debug().Str("artifact_type", string(t)).Str("path", rel).
		Str("format", res.Format).Int("records", res.Records).Msg("batch flushed")
	return res, nil
}

// WriteOverflow appends a failed batch to the emergency overflow area in the
// always-available line format. Used after flush retries are exhausted
func (b *Backend) WriteOverflow(t artifact.Type, spec schema.Spec, records []artifact.Record) (WriteResult, error) {
	data, err := b.fallback.Encode(t, spec, records)
	if err != nil {
		return WriteResult{}, err
	}
	id := uuid.NewString()
	at := nowUTC()
	name := string(t) + "_" + at.Format("20060102T150405") + "_" + id + ".ndjson"
	path := filepath.Join(b.baseDir, "overflow", name)
	if err := atomicWrite(path, data); err != nil {
		return WriteResult{}, err
	}
	return WriteResult{
		Path:      path,
		Format:    b.fallback.Name(),
		Records:   len(records),
		Bytes:     len(data),
		BatchID:   id,
		FlushedAt: at,
	}, nil
}

// atomicWrite creates parent directories, writes to a temp name, then renames
func atomicWrite(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return perr.Wrapf(err, perr.ErrorCodeWriterIO, "mkdir %s", dir)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return perr.Wrapf(err, perr.ErrorCodeWriterIO, "write %s", tmp)
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return perr.Wrapf(err, perr.ErrorCodeWriterIO, "rename %s", path)
	}
	return nil
}
