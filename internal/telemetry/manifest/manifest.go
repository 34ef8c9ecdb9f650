// Package manifest tracks per-day record and file counts per artifact type
// and persists them as daily JSON manifests. Manifests merge with whatever a
// previous process wrote for the same day, and can be rebuilt from the data
// files when the counters are suspect
package manifest

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"rklog/internal/core/artifact"
	perr "rklog/internal/platform/errors"
	"rklog/internal/platform/logger"
	"rklog/internal/telemetry/writer"
)

// Day keys manifests; format 2006-01-02, always UTC
type Day string

// DayOf returns the manifest day for a point in time
func DayOf(t time.Time) Day { return Day(t.UTC().Format("2006-01-02")) }

// ArtifactEntry is the per-type section of a daily manifest
type ArtifactEntry struct {
	RecordCount   int `json:"record_count"`
	FileCount     int `json:"file_count"`
	SchemaVersion int `json:"schema_version"`
}

// Manifest is the persisted daily summary
type Manifest struct {
	Date          string                          `json:"date"`
	SystemVersion string                          `json:"system_version"`
	Artifacts     map[artifact.Type]ArtifactEntry `json:"artifacts"`
	GeneratedAt   string                          `json:"generated_at"`
	CorrectedBy   string                          `json:"corrected_by,omitempty"`
}

// Aggregator accumulates flush counters in memory and writes merged daily
// manifests. Safe for concurrent use
type Aggregator struct {
	mu             sync.Mutex
	baseDir        string
	systemVersion  string
	schemaVersions map[artifact.Type]int
	days           map[Day]map[artifact.Type]*ArtifactEntry
	log            *logger.Logger
}

// NewAggregator builds an aggregator rooted at baseDir. schemaVersions stamps
// each type's section; types never flushed still appear with zero counts when
// the manifest for their day is written
func NewAggregator(baseDir, systemVersion string, schemaVersions map[artifact.Type]int) *Aggregator {
	return &Aggregator{
		baseDir:        baseDir,
		systemVersion:  systemVersion,
		schemaVersions: schemaVersions,
		days:           make(map[Day]map[artifact.Type]*ArtifactEntry),
		log:            logger.Named("manifest"),
	}
}

// RecordFlush accounts one flushed file of records records for t on day
func (a *Aggregator) RecordFlush(t artifact.Type, day Day, records int) {
	a.mu.Lock()
	defer a.mu.Unlock()
	byType, ok := a.days[day]
	if !ok {
		byType = make(map[artifact.Type]*ArtifactEntry)
		a.days[day] = byType
	}
	e, ok := byType[t]
	if !ok {
		e = &ArtifactEntry{SchemaVersion: a.schemaVersions[t]}
		byType[t] = e
	}
	e.RecordCount += records
	e.FileCount++
}

// Path returns the manifest file path for day
func (a *Aggregator) Path(day Day) string {
	return filepath.Join(a.baseDir, "manifests", string(day)+".json")
}

// WriteManifest merges the in-memory counters for day into the existing
// on-disk manifest (if any) and writes the result atomically. Counters for
// the day are zeroed after a successful write so a second call is a no-op
// rather than a double count
func (a *Aggregator) WriteManifest(day Day) (Manifest, error) {
	a.mu.Lock()
	pending := a.days[day]
	snapshot := make(map[artifact.Type]ArtifactEntry, len(pending))
	for t, e := range pending {
		snapshot[t] = *e
	}
	a.mu.Unlock()

	m := Manifest{
		Date:          string(day),
		SystemVersion: a.systemVersion,
		Artifacts:     make(map[artifact.Type]ArtifactEntry),
	}
	for t, v := range a.schemaVersions {
		m.Artifacts[t] = ArtifactEntry{SchemaVersion: v}
	}

	path := a.Path(day)
	if prev, err := readManifest(path); err == nil {
		for t, e := range prev.Artifacts {
			m.Artifacts[t] = e
		}
	} else if !os.IsNotExist(perr.Root(err)) {
		return Manifest{}, err
	}

	for t, e := range snapshot {
		cur := m.Artifacts[t]
		cur.RecordCount += e.RecordCount
		cur.FileCount += e.FileCount
		cur.SchemaVersion = e.SchemaVersion
		m.Artifacts[t] = cur
	}
	m.GeneratedAt = time.Now().UTC().Format(time.RFC3339)

	if err := writeManifest(path, m); err != nil {
		return Manifest{}, err
	}

	// consume only what was snapshotted; flushes recorded while the write was
	// in progress stay pending for the next write
	a.mu.Lock()
	byType := a.days[day]
	for t, snap := range snapshot {
		e, ok := byType[t]
		if !ok {
			continue
		}
		e.RecordCount -= snap.RecordCount
		e.FileCount -= snap.FileCount
		if e.RecordCount == 0 && e.FileCount == 0 {
			delete(byType, t)
		}
	}
	if len(byType) == 0 {
		delete(a.days, day)
	}
	a.mu.Unlock()

	a.log.Debug().Str("day", string(day)).Int("types", len(m.Artifacts)).Msg("manifest written")
	return m, nil
}

// PendingDays returns the days with unwritten counters, oldest first
func (a *Aggregator) PendingDays() []Day {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]Day, 0, len(a.days))
	for d := range a.days {
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func readManifest(path string) (Manifest, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return Manifest{}, perr.Wrapf(err, perr.ErrorCodeWriterIO, "read manifest %s", path)
	}
	var m Manifest
	if err := json.Unmarshal(raw, &m); err != nil {
		return Manifest{}, perr.Wrapf(err, perr.ErrorCodeWriterEncode, "decode manifest %s", path)
	}
	return m, nil
}

// Read loads the manifest for day from disk
func Read(baseDir string, day Day) (Manifest, error) {
	return readManifest(filepath.Join(baseDir, "manifests", string(day)+".json"))
}

func writeManifest(path string, m Manifest) error {
	raw, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return perr.Wrapf(err, perr.ErrorCodeWriterEncode, "encode manifest %s", path)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return perr.Wrapf(err, perr.ErrorCodeWriterIO, "mkdir %s", filepath.Dir(path))
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, raw, 0o644); err != nil {
		return perr.Wrapf(err, perr.ErrorCodeWriterIO, "write %s", tmp)
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return perr.Wrapf(err, perr.ErrorCodeWriterIO, "rename %s", path)
	}
	return nil
}

// Rebuild recounts a day's manifest from the data files themselves, walking
// each type's partition directory for day and counting rows in every file.
// The rebuilt manifest is marked with the corrector's name and replaces the
// on-disk manifest
func Rebuild(baseDir string, day Day, schemaVersions map[artifact.Type]int, systemVersion, correctedBy string) (Manifest, error) {
	dt, err := time.Parse("2006-01-02", string(day))
	if err != nil {
		return Manifest{}, perr.InvalidConfigf("bad day %q: %s", day, err)
	}

	m := Manifest{
		Date:          string(day),
		SystemVersion: systemVersion,
		Artifacts:     make(map[artifact.Type]ArtifactEntry),
		CorrectedBy:   correctedBy,
	}

	for t, version := range schemaVersions {
		entry := ArtifactEntry{SchemaVersion: version}
		dir := filepath.Join(baseDir, string(t), dt.Format("2006"), dt.Format("01"), dt.Format("02"))
		entries, err := os.ReadDir(dir)
		if os.IsNotExist(err) {
			m.Artifacts[t] = entry
			continue
		}
		if err != nil {
			return Manifest{}, perr.Wrapf(err, perr.ErrorCodeWriterIO, "read dir %s", dir)
		}
		for _, de := range entries {
			if de.IsDir() {
				continue
			}
			path := filepath.Join(dir, de.Name())
			var n int
			switch {
			case strings.HasSuffix(de.Name(), ".parquet"):
				n, err = writer.CountParquetRows(path)
			case strings.HasSuffix(de.Name(), ".ndjson"):
				var rows []artifact.Fields
				rows, err = writer.ReadNDJSON(path)
				n = len(rows)
			default:
				continue
			}
			if err != nil {
				return Manifest{}, err
			}
			entry.RecordCount += n
			entry.FileCount++
		}
		m.Artifacts[t] = entry
	}

	m.GeneratedAt = time.Now().UTC().Format(time.RFC3339)
	path := filepath.Join(baseDir, "manifests", string(day)+".json")
	if err := writeManifest(path, m); err != nil {
		return Manifest{}, err
	}
	return m, nil
}
