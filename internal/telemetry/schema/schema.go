// Package schema holds the versioned artifact schema registry: registration
// with conflict detection, record validation, and offline drift detection
package schema

import (
	"sort"
	"sync"
	"time"

	"rklog/internal/core/artifact"
	perr "rklog/internal/platform/errors"
)

// FieldSpec declares one field of an artifact schema
type FieldSpec struct {
	Required bool
	Kind     artifact.Kind
}

// Spec is the versioned schema for one artifact type. Versions are monotonic
// and immutable once published; same-version changes must be strictly additive
type Spec struct {
	Version int
	Fields  map[string]FieldSpec
}

// RequiredFields returns the sorted required field names
func (s Spec) RequiredFields() []string {
	out := make([]string, 0, len(s.Fields))
	for name, fs := range s.Fields {
		if fs.Required {
			out = append(out, name)
		}
	}
	sort.Strings(out)
	return out
}

// Registry maps artifact types to their current schema. Safe for concurrent
// use; registration normally happens once at startup
type Registry struct {
	mu    sync.RWMutex
	specs map[artifact.Type]Spec
}

// NewRegistry returns an empty registry
func NewRegistry() *Registry {
	return &Registry{specs: make(map[artifact.Type]Spec)}
}

// Register installs or upgrades the schema for t. It fails with SchemaConflict
// when the version regresses, or when a same-or-higher version removes a
// field, narrows a kind, or tightens an optional field to required
func (r *Registry) Register(t artifact.Type, spec Spec) error {
	if spec.Version < 1 {
		return perr.SchemaConflictf("artifact %q: schema version must be >= 1, got %d", t, spec.Version)
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	prev, exists := r.specs[t]
	if exists {
		if spec.Version < prev.Version {
			return perr.SchemaConflictf("artifact %q: version %d regresses published version %d",
				t, spec.Version, prev.Version)
		}
		if err := additive(t, prev, spec); err != nil {
			return err
		}
	}
	r.specs[t] = spec
	return nil
}

// additive verifies next keeps every field of prev with a compatible shape
func additive(t artifact.Type, prev, next Spec) error {
	for name, old := range prev.Fields {
		nw, ok := next.Fields[name]
		if !ok {
			return perr.SchemaConflictf("artifact %q v%d: field %q removed", t, next.Version, name)
		}
		if !old.Kind.CompatibleWith(nw.Kind) {
			return perr.SchemaConflictf("artifact %q v%d: field %q narrowed from %s to %s",
				t, next.Version, name, old.Kind, nw.Kind)
		}
		if !old.Required && nw.Required {
			return perr.SchemaConflictf("artifact %q v%d: optional field %q became required",
				t, next.Version, name)
		}
	}
	// same-version additions must be optional or they break already-persisted data
	if next.Version == prev.Version {
		for name, nw := range next.Fields {
			if _, ok := prev.Fields[name]; !ok && nw.Required {
				return perr.SchemaConflictf("artifact %q v%d: new field %q cannot be required without a version bump",
					t, next.Version, name)
			}
		}
	}
	return nil
}

// Spec returns the current schema for t
func (r *Registry) Spec(t artifact.Type) (Spec, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.specs[t]
	return s, ok
}

// Types returns the registered artifact types in stable order
func (r *Registry) Types() []artifact.Type {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]artifact.Type, 0, len(r.specs))
	for t := range r.specs {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Validate checks fields against the schema for t. It reports every missing
// or mismatched field in one pass so callers get complete diagnostics
func (r *Registry) Validate(t artifact.Type, fields artifact.Fields) error {
	spec, ok := r.Spec(t)
	if !ok {
		return perr.UnknownArtifactf("artifact type %q is not registered", t)
	}

	var vs []perr.Violation
	names := make([]string, 0, len(spec.Fields))
	for name := range spec.Fields {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		fs := spec.Fields[name]
		v, present := fields[name]
		if !present {
			if fs.Required {
				vs = append(vs, perr.Violation{Field: name, Reason: "required field missing"})
			}
			continue
		}
		if !kindSatisfies(v, fs.Kind) {
			vs = append(vs, perr.Violation{
				Field:  name,
				Reason: "expected " + fs.Kind.String() + ", got " + v.Kind().String(),
			})
		}
	}
	if len(vs) > 0 {
		return perr.WithViolations("record rejected for "+string(t), vs)
	}
	return nil
}

// kindSatisfies allows RFC3339 strings where a timestamp is declared, since
// callers routinely submit pre-formatted timestamps
func kindSatisfies(v artifact.Value, want artifact.Kind) bool {
	if v.Kind().CompatibleWith(want) {
		return true
	}
	if want == artifact.KindTimestamp {
		if s, ok := v.Str(); ok {
			if _, err := time.Parse(time.RFC3339Nano, s); err == nil {
				return true
			}
			if _, err := time.Parse(time.RFC3339, s); err == nil {
				return true
			}
		}
	}
	return false
}

// DriftReport flags divergence between a schema and observed data. Advisory
// only; it never blocks the write path
type DriftReport struct {
	Type             artifact.Type `json:"artifact_type"`
	SampleCount      int           `json:"sample_count"`
	UndeclaredFields []string      `json:"undeclared_fields,omitempty"`
	MissingRequired  []string      `json:"missing_required,omitempty"`
}

// Clean reports whether no drift was observed
func (d DriftReport) Clean() bool {
	return len(d.UndeclaredFields) == 0 && len(d.MissingRequired) == 0
}

// DetectDrift compares sample records against the schema for t: fields present
// in data but absent from the schema, and required fields absent from all data
func (r *Registry) DetectDrift(t artifact.Type, samples []artifact.Fields) (DriftReport, error) {
	spec, ok := r.Spec(t)
	if !ok {
		return DriftReport{}, perr.UnknownArtifactf("artifact type %q is not registered", t)
	}

	report := DriftReport{Type: t, SampleCount: len(samples)}

	undeclared := map[string]struct{}{}
	seen := map[string]struct{}{}
	for _, fields := range samples {
		for name := range fields {
			seen[name] = struct{}{}
			if _, declared := spec.Fields[name]; !declared {
				undeclared[name] = struct{}{}
			}
		}
	}
	for name := range undeclared {
		report.UndeclaredFields = append(report.UndeclaredFields, name)
	}
	sort.Strings(report.UndeclaredFields)

	if len(samples) > 0 {
		for _, name := range spec.RequiredFields() {
			if _, ok := seen[name]; !ok {
				report.MissingRequired = append(report.MissingRequired, name)
			}
		}
	}
	return report, nil
}
