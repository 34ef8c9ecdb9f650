// Package writer serializes record batches to date/type-partitioned files.
// The primary format is columnar (parquet); a line-delimited JSON fallback
// covers encoder failures with record-level equivalence
package writer

import (
	"bufio"
	"bytes"
	"encoding/json"
	"os"

	"rklog/internal/core/artifact"
	perr "rklog/internal/platform/errors"
	"rklog/internal/telemetry/schema"
)

// Encoder turns a batch into file bytes. Implementations are stateless and
// safe for concurrent use
type Encoder interface {
	Name() string
	Ext() string
	Encode(t artifact.Type, spec schema.Spec, records []artifact.Record) ([]byte, error)
}

// NDJSONEncoder writes one JSON object per line. The schema is implied by the
// partition directory, not annotated per line
type NDJSONEncoder struct{}

// Name implements Encoder
func (NDJSONEncoder) Name() string { return "ndjson" }

// Ext implements Encoder
func (NDJSONEncoder) Ext() string { return "ndjson" }

// Encode implements Encoder
func (NDJSONEncoder) Encode(t artifact.Type, _ schema.Spec, records []artifact.Record) ([]byte, error) {
	var buf bytes.Buffer
	for _, rec := range records {
		line, err := json.Marshal(rec.Fields)
		if err != nil {
			return nil, perr.Wrapf(err, perr.ErrorCodeWriterEncode, "ndjson encode %s", t)
		}
		buf.Write(line)
		buf.WriteByte('\n')
	}
	return buf.Bytes(), nil
}

// ReadNDJSON decodes a line-delimited file back into field maps
func ReadNDJSON(path string) ([]artifact.Fields, error) {
	fh, err := os.Open(path)
	if err != nil {
		return nil, perr.Wrapf(err, perr.ErrorCodeWriterIO, "open %s", path)
	}
	defer fh.Close()

	var out []artifact.Fields
	sc := bufio.NewScanner(fh)
	sc.Buffer(make([]byte, 0, 64*1024), 8*1024*1024)
	for sc.Scan() {
		line := bytes.TrimSpace(sc.Bytes())
		if len(line) == 0 {
			continue
		}
		var raw map[string]any
		if err := json.Unmarshal(line, &raw); err != nil {
			return nil, perr.Wrapf(err, perr.ErrorCodeWriterEncode, "ndjson decode %s", path)
		}
		fields, err := artifact.FieldsFromAny(raw)
		if err != nil {
			return nil, perr.Wrapf(err, perr.ErrorCodeWriterEncode, "ndjson decode %s", path)
		}
		out = append(out, fields)
	}
	if err := sc.Err(); err != nil {
		return nil, perr.Wrapf(err, perr.ErrorCodeWriterIO, "read %s", path)
	}
	return out, nil
}
