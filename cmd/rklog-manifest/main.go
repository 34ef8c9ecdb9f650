package main

import (
	"flag"
	"time"

	"rklog/internal/core/artifact"
	"rklog/internal/core/version"
	"rklog/internal/platform/config"
	"rklog/internal/platform/logger"
	"rklog/internal/telemetry/manifest"
	"rklog/internal/telemetry/schema"
)

func main() {
	root := config.New().Prefix("RKLOG_")
	l := logger.Get()

	var (
		fDate    = flag.String("date", time.Now().UTC().Format("2006-01-02"), "UTC day to rebuild (YYYY-MM-DD)")
		fBaseDir = flag.String("base-dir", root.MayString("BASE_DIR", ""), "telemetry base directory")
		fVersion = flag.String("system-version", root.MayString("SYSTEM_VERSION", version.Info().Version), "system version stamped into the manifest")
	)
	flag.Parse()

	if *fBaseDir == "" {
		l.Panic().Msg("-base-dir or RKLOG_BASE_DIR is required")
	}

	reg, err := schema.Builtin(nil)
	if err != nil {
		l.Panic().Err(err).Msg("builtin schema registration failed")
	}
	versions := make(map[artifact.Type]int)
	for _, t := range reg.Types() {
		spec, _ := reg.Spec(t)
		versions[t] = spec.Version
	}

	m, err := manifest.Rebuild(*fBaseDir, manifest.Day(*fDate), versions, *fVersion, "rklog-manifest")
	if err != nil {
		l.Fatal().Err(err).Str("date", *fDate).Msg("manifest rebuild failed")
	}

	for t, e := range m.Artifacts {
		l.Info().Str("artifact_type", string(t)).
			Int("records", e.RecordCount).Int("files", e.FileCount).
			Int("schema_version", e.SchemaVersion).Msg("rebuilt")
	}
	l.Info().Str("date", *fDate).Str("base_dir", *fBaseDir).Msg("manifest rebuilt")
}
