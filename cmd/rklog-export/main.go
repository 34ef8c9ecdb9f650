package main

import (
	"archive/zip"
	"encoding/json"
	"flag"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"rklog/internal/core/version"
	"rklog/internal/platform/config"
	"rklog/internal/platform/logger"
)

// exportManifest describes the bundle for whoever receives it
type exportManifest struct {
	GeneratedAt   string   `json:"generated_at"`
	Since         string   `json:"since,omitempty"`
	SystemVersion string   `json:"system_version"`
	FileCount     int      `json:"file_count"`
	TotalBytes    int64    `json:"total_bytes"`
	Files         []string `json:"files"`
}

func main() {
	root := config.New().Prefix("RKLOG_")
	l := logger.Get()

	var (
		fOutput  = flag.String("output", "", "path of the zip bundle to write (required)")
		fBaseDir = flag.String("base-dir", root.MayString("BASE_DIR", ""), "telemetry base directory")
		fSince   = flag.String("since", "", "only include partitions on or after this UTC day (YYYY-MM-DD)")
	)
	flag.Parse()

	if *fOutput == "" {
		l.Panic().Msg("-output is required")
	}
	if *fBaseDir == "" {
		l.Panic().Msg("-base-dir or RKLOG_BASE_DIR is required")
	}

	var since time.Time
	if *fSince != "" {
		t, err := time.Parse("2006-01-02", *fSince)
		if err != nil {
			l.Panic().Err(err).Str("since", *fSince).Msg("bad -since, want YYYY-MM-DD")
		}
		since = t
	}

	out, err := os.Create(*fOutput)
	if err != nil {
		l.Fatal().Err(err).Str("output", *fOutput).Msg("create bundle failed")
	}
	zw := zip.NewWriter(out)

	var included []string
	bytes := int64(0)
	err = filepath.WalkDir(*fBaseDir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || strings.HasSuffix(path, ".tmp") {
			return nil
		}
		rel, err := filepath.Rel(*fBaseDir, path)
		if err != nil {
			return err
		}
		if !include(rel, since) {
			return nil
		}
		w, err := zw.Create(filepath.ToSlash(rel))
		if err != nil {
			return err
		}
		fh, err := os.Open(path)
		if err != nil {
			return err
		}
		n, err := io.Copy(w, fh)
		fh.Close()
		if err != nil {
			return err
		}
		included = append(included, filepath.ToSlash(rel))
		bytes += n
		return nil
	})
	if err != nil {
		l.Fatal().Err(err).Msg("bundle walk failed")
	}

	em := exportManifest{
		GeneratedAt:   time.Now().UTC().Format(time.RFC3339),
		Since:         *fSince,
		SystemVersion: root.MayString("SYSTEM_VERSION", version.Info().Version),
		FileCount:     len(included),
		TotalBytes:    bytes,
		Files:         included,
	}
	w, err := zw.Create("export_manifest.json")
	if err != nil {
		l.Fatal().Err(err).Msg("bundle manifest failed")
	}
	raw, _ := json.MarshalIndent(em, "", "  ")
	if _, err := w.Write(raw); err != nil {
		l.Fatal().Err(err).Msg("bundle manifest write failed")
	}

	if err := zw.Close(); err != nil {
		l.Fatal().Err(err).Msg("bundle finalize failed")
	}
	if err := out.Close(); err != nil {
		l.Fatal().Err(err).Msg("bundle close failed")
	}

	l.Info().Str("output", *fOutput).Int("files", len(included)).Int64("bytes", bytes).Msg("bundle written")
}

// include applies the -since day filter. Data files carry their day in the
// path ({type}/{YYYY}/{MM}/{DD}/...), manifests in their name; overflow files
// are always included since their day is not recoverable from the path
func include(rel string, since time.Time) bool {
	if since.IsZero() {
		return true
	}
	parts := strings.Split(filepath.ToSlash(rel), "/")
	switch {
	case parts[0] == "manifests" && len(parts) == 2:
		day, err := time.Parse("2006-01-02", strings.TrimSuffix(parts[1], ".json"))
		return err != nil || !day.Before(since)
	case parts[0] == "overflow":
		return true
	case len(parts) == 5:
		day, err := time.Parse("2006/01/02", strings.Join(parts[1:4], "/"))
		return err != nil || !day.Before(since)
	default:
		return true
	}
}
