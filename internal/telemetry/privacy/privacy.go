// Package privacy provides one-way content hashing and tiered redaction.
// It runs before any record is buffered so raw sensitive content never
// outlives the single validate-redact call
package privacy

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"io"
	"os"
	"sort"
	"strings"

	"rklog/internal/core/artifact"
	perr "rklog/internal/platform/errors"
)

// DigestPrefix marks hashed values on the wire, e.g. "sha256:ab12..."
const DigestPrefix = "sha256:"

// HashSuffix is appended to a field name when its value is replaced by a hash
const HashSuffix = "_hash"

// HashText returns the prefixed lowercase hex SHA-256 of s.
// Deterministic, one-way, 71 characters total
func HashText(s string) string {
	sum := sha256.Sum256([]byte(s))
	return DigestPrefix + hex.EncodeToString(sum[:])
}

// HashFields hashes the canonical JSON form of the fields (keys sorted) so
// logically equal field sets produce equal digests
func HashFields(f artifact.Fields) string {
	keys := make([]string, 0, len(f))
	for k := range f {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	b.WriteByte('{')
	for i, k := range keys {
		if i > 0 {
			b.WriteByte(',')
		}
		kb, _ := json.Marshal(k)
		vb, _ := json.Marshal(f[k])
		b.Write(kb)
		b.WriteByte(':')
		b.Write(vb)
	}
	b.WriteByte('}')
	return HashText(b.String())
}

// HashFile returns the prefixed SHA-256 of a file's contents
func HashFile(path string) (string, error) {
	fh, err := os.Open(path)
	if err != nil {
		return "", perr.Wrapf(err, perr.ErrorCodeWriterIO, "hash file %s", path)
	}
	defer fh.Close()

	h := sha256.New()
	if _, err := io.Copy(h, fh); err != nil {
		return "", perr.Wrapf(err, perr.ErrorCodeWriterIO, "hash file %s", path)
	}
	return DigestPrefix + hex.EncodeToString(h.Sum(nil)), nil
}

// RedactPreview returns the first maxChars runes of s with no hashing.
// Bounded information leakage for fields explicitly designated preview tier
func RedactPreview(s string, maxChars int) string {
	if maxChars <= 0 {
		return ""
	}
	runes := []rune(s)
	if len(runes) <= maxChars {
		return s
	}
	return string(runes[:maxChars])
}

// Tier classifies how much raw content a persisted record may carry
type Tier uint8

// Tiers, least to most restrictive
const (
	TierInternal Tier = iota
	TierResearch
	TierPublic
)

// String returns the configuration label for the tier
func (t Tier) String() string {
	switch t {
	case TierResearch:
		return "research"
	case TierPublic:
		return "public"
	default:
		return "internal"
	}
}

// ParseTier parses a configuration label
func ParseTier(s string) (Tier, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "internal":
		return TierInternal, nil
	case "research":
		return TierResearch, nil
	case "public":
		return TierPublic, nil
	default:
		return TierInternal, perr.InvalidConfigf("unknown privacy tier %q", s)
	}
}

// Action is the redaction decision for one field
type Action uint8

// Actions
const (
	ActionKeep Action = iota
	ActionHash
	ActionDrop
	ActionPreview
)

// Policy controls per-field redaction decisions for a tier
type Policy struct {
	Tier Tier

	// SensitiveSuffixes marks raw-content fields by name suffix
	SensitiveSuffixes []string

	// SensitiveFields marks raw-content fields by exact name
	SensitiveFields []string

	// PreviewFields keep a bounded prefix instead of a hash at research tier
	PreviewFields []string

	// PreviewChars bounds the preview length
	PreviewChars int
}

// DefaultPolicy returns the stock policy for a tier: fields ending in _text,
// _content, or _raw carry raw content and are hashed (research) or dropped
// (public)
func DefaultPolicy(tier Tier) Policy {
	return Policy{
		Tier:              tier,
		SensitiveSuffixes: []string{"_text", "_content", "_raw"},
		PreviewChars:      64,
	}
}

func (p Policy) sensitive(field string) bool {
	for _, s := range p.SensitiveSuffixes {
		if strings.HasSuffix(field, s) {
			return true
		}
	}
	for _, name := range p.SensitiveFields {
		if field == name {
			return true
		}
	}
	return false
}

func (p Policy) preview(field string) bool {
	for _, name := range p.PreviewFields {
		if field == name {
			return true
		}
	}
	return false
}

// Classify returns the redaction action for a field under this policy
func (p Policy) Classify(field string) Action {
	switch p.Tier {
	case TierInternal:
		return ActionKeep
	case TierResearch:
		if p.preview(field) {
			return ActionPreview
		}
		if p.sensitive(field) {
			return ActionHash
		}
		return ActionKeep
	default: // TierPublic
		if p.sensitive(field) || p.preview(field) {
			return ActionDrop
		}
		// hashes derived from sensitive fields leak cross-reference ability;
		// public records drop those too
		if base, ok := strings.CutSuffix(field, HashSuffix); ok && p.sensitive(base) {
			return ActionDrop
		}
		return ActionKeep
	}
}

// Apply returns a redacted copy of fields per the policy. The input map is
// never mutated. Hashed fields are renamed with the _hash suffix; preview
// fields are truncated in place; dropped fields are absent from the result
func Apply(fields artifact.Fields, p Policy) artifact.Fields {
	out := make(artifact.Fields, len(fields))
	for name, v := range fields {
		switch p.Classify(name) {
		case ActionKeep:
			out[name] = v
		case ActionHash:
			out[name+HashSuffix] = artifact.String(hashValue(v))
		case ActionPreview:
			if s, ok := v.Str(); ok {
				out[name] = artifact.String(RedactPreview(s, p.PreviewChars))
			} else {
				out[name] = v
			}
		case ActionDrop:
			// absent by design
		}
	}
	return out
}

// hashValue hashes a string payload directly, anything else via its JSON form
func hashValue(v artifact.Value) string {
	if s, ok := v.Str(); ok {
		return HashText(s)
	}
	raw, _ := json.Marshal(v)
	return HashText(string(raw))
}
