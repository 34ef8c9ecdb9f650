package writer

import (
	"bytes"
	"encoding/json"
	"io"
	"os"
	"sort"
	"time"

	"github.com/parquet-go/parquet-go"

	"rklog/internal/core/artifact"
	perr "rklog/internal/platform/errors"
	"rklog/internal/telemetry/schema"
)

// ParquetEncoder writes self-describing columnar files. Every column is
// optional so records with absent optional fields encode as nulls; list and
// nested values are stored as JSON-annotated byte columns
type ParquetEncoder struct{}

// Name implements Encoder
func (ParquetEncoder) Name() string { return "parquet" }

// Ext implements Encoder
func (ParquetEncoder) Ext() string { return "parquet" }

// Encode implements Encoder
func (ParquetEncoder) Encode(t artifact.Type, spec schema.Spec, records []artifact.Record) ([]byte, error) {
	ps := parquetSchema(t, spec, records)

	rows := make([]map[string]any, len(records))
	for i, rec := range records {
		row := make(map[string]any, len(rec.Fields))
		for name, v := range rec.Fields {
			cv, err := columnValue(v)
			if err != nil {
				return nil, perr.Wrapf(err, perr.ErrorCodeWriterEncode, "parquet encode %s field %s", t, name)
			}
			row[name] = cv
		}
		rows[i] = row
	}

	var buf bytes.Buffer
	w := parquet.NewGenericWriter[map[string]any](&buf, ps, parquet.Compression(&parquet.Snappy))
	if _, err := w.Write(rows); err != nil {
		return nil, perr.Wrapf(err, perr.ErrorCodeWriterEncode, "parquet write %s", t)
	}
	if err := w.Close(); err != nil {
		return nil, perr.Wrapf(err, perr.ErrorCodeWriterEncode, "parquet close %s", t)
	}
	return buf.Bytes(), nil
}

// parquetSchema builds the column set from the declared schema plus any
// undeclared fields observed in the batch (advisory drift still persists)
func parquetSchema(t artifact.Type, spec schema.Spec, records []artifact.Record) *parquet.Schema {
	kinds := make(map[string]artifact.Kind, len(spec.Fields))
	for name, fs := range spec.Fields {
		kinds[name] = fs.Kind
	}
	for _, rec := range records {
		for name, v := range rec.Fields {
			if _, ok := kinds[name]; !ok {
				kinds[name] = v.Kind()
			}
		}
	}

	names := make([]string, 0, len(kinds))
	for name := range kinds {
		names = append(names, name)
	}
	sort.Strings(names)

	group := parquet.Group{}
	for _, name := range names {
		group[name] = parquet.Optional(columnNode(kinds[name]))
	}
	return parquet.NewSchema(string(t), group)
}

func columnNode(k artifact.Kind) parquet.Node {
	switch k {
	case artifact.KindInt:
		return parquet.Int(64)
	case artifact.KindFloat:
		return parquet.Leaf(parquet.DoubleType)
	case artifact.KindBool:
		return parquet.Leaf(parquet.BooleanType)
	case artifact.KindList, artifact.KindNested:
		return parquet.JSON()
	default:
		// strings and timestamps (RFC3339 text) share a column shape
		return parquet.String()
	}
}

// columnValue maps a Value to its parquet cell representation
func columnValue(v artifact.Value) (any, error) {
	switch v.Kind() {
	case artifact.KindString:
		s, _ := v.Str()
		return s, nil
	case artifact.KindInt:
		i, _ := v.Int64()
		return i, nil
	case artifact.KindFloat:
		f, _ := v.Float64()
		return f, nil
	case artifact.KindBool:
		b, _ := v.Boolean()
		return b, nil
	case artifact.KindTimestamp:
		ts, _ := v.Time()
		return ts.Format(time.RFC3339Nano), nil
	case artifact.KindList, artifact.KindNested:
		raw, err := json.Marshal(v)
		if err != nil {
			return nil, err
		}
		return raw, nil
	default:
		return nil, perr.EncodeErrf("invalid value kind")
	}
}

// ReadParquet decodes a columnar file back into field maps. The column set
// comes from the file itself, so undeclared drift fields survive the round
// trip; columns declared list or nested in the schema are re-hydrated from
// their JSON form
func ReadParquet(path string, spec schema.Spec) ([]artifact.Fields, error) {
	rows, err := readRows(path)
	if err != nil {
		return nil, err
	}

	out := make([]artifact.Fields, 0, len(rows))
	for _, row := range rows {
		fields := make(artifact.Fields, len(row))
		for name, cell := range row {
			if cell == nil {
				continue
			}
			if fs, ok := spec.Fields[name]; ok {
				switch fs.Kind {
				case artifact.KindList, artifact.KindNested:
					hydrated, err := hydrateJSONCell(cell)
					if err != nil {
						return nil, perr.Wrapf(err, perr.ErrorCodeWriterEncode, "decode %s column %s", path, name)
					}
					if hydrated.Kind() != artifact.KindInvalid {
						fields[name] = hydrated
					}
					continue
				case artifact.KindTimestamp:
					// timestamps travel as RFC3339 text columns
					var s string
					switch c := cell.(type) {
					case string:
						s = c
					case []byte:
						s = string(c)
					}
					if ts, err := time.Parse(time.RFC3339Nano, s); err == nil {
						fields[name] = artifact.Timestamp(ts)
						continue
					}
				}
			}
			v, ok := artifact.FromAny(cell)
			if !ok {
				continue
			}
			fields[name] = v
		}
		out = append(out, fields)
	}
	return out, nil
}

// readRows loads every row of a columnar file as a plain map, using the
// schema embedded in the file
func readRows(path string) ([]map[string]any, error) {
	fh, err := os.Open(path)
	if err != nil {
		return nil, perr.Wrapf(err, perr.ErrorCodeWriterIO, "read parquet %s", path)
	}
	defer fh.Close()

	st, err := fh.Stat()
	if err != nil {
		return nil, perr.Wrapf(err, perr.ErrorCodeWriterIO, "read parquet %s", path)
	}
	pf, err := parquet.OpenFile(fh, st.Size())
	if err != nil {
		return nil, perr.Wrapf(err, perr.ErrorCodeWriterIO, "read parquet %s", path)
	}

	r := parquet.NewGenericReader[map[string]any](fh, pf.Schema())
	defer r.Close()

	out := make([]map[string]any, 0, pf.NumRows())
	for {
		batch := make([]map[string]any, 64)
		for i := range batch {
			batch[i] = map[string]any{}
		}
		n, err := r.Read(batch)
		out = append(out, batch[:n]...)
		if err == io.EOF {
			return out, nil
		}
		if err != nil {
			return nil, perr.Wrapf(err, perr.ErrorCodeWriterEncode, "decode parquet %s", path)
		}
	}
}

// CountParquetRows returns the number of records in a columnar file without
// decoding rows; used by the manifest rebuild path
func CountParquetRows(path string) (int, error) {
	fh, err := os.Open(path)
	if err != nil {
		return 0, perr.Wrapf(err, perr.ErrorCodeWriterIO, "read parquet %s", path)
	}
	defer fh.Close()

	st, err := fh.Stat()
	if err != nil {
		return 0, perr.Wrapf(err, perr.ErrorCodeWriterIO, "read parquet %s", path)
	}
	pf, err := parquet.OpenFile(fh, st.Size())
	if err != nil {
		return 0, perr.Wrapf(err, perr.ErrorCodeWriterIO, "read parquet %s", path)
	}
	return int(pf.NumRows()), nil
}

func hydrateJSONCell(cell any) (artifact.Value, error) {
	var raw []byte
	switch c := cell.(type) {
	case []byte:
		raw = c
	case string:
		raw = []byte(c)
	default:
		v, _ := artifact.FromAny(cell)
		return v, nil
	}
	var decoded any
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return artifact.Value{}, err
	}
	v, _ := artifact.FromAny(decoded)
	return v, nil
}
