package schema

import (
	"rklog/internal/core/artifact"
)

// Builtin returns a registry preloaded with the Phase 0 artifact schemas.
// versions overrides the schema version per type (default 1)
func Builtin(versions map[artifact.Type]int) (*Registry, error) {
	r := NewRegistry()
	for t, spec := range builtinSpecs() {
		if v, ok := versions[t]; ok {
			spec.Version = v
		}
		if err := r.Register(t, spec); err != nil {
			return nil, err
		}
	}
	return r, nil
}

func builtinSpecs() map[artifact.Type]Spec {
	req := func(k artifact.Kind) FieldSpec { return FieldSpec{Required: true, Kind: k} }
	opt := func(k artifact.Kind) FieldSpec { return FieldSpec{Required: false, Kind: k} }

	return map[artifact.Type]Spec{
		artifact.ExecutionContext: {
			Version: 1,
			Fields: map[string]FieldSpec{
				"session_id":      req(artifact.KindString),
				"turn_id":         req(artifact.KindInt),
				"agent_id":        req(artifact.KindString),
				"model_id":        req(artifact.KindString),
				"timestamp":       req(artifact.KindTimestamp),
				"model_rev":       opt(artifact.KindString),
				"quant":           opt(artifact.KindString),
				"temp":            opt(artifact.KindFloat),
				"top_p":           opt(artifact.KindFloat),
				"ctx_tokens_used": opt(artifact.KindInt),
				"gen_tokens":      opt(artifact.KindInt),
				"tool_lat_ms":     opt(artifact.KindInt),
				"cache_hit":       opt(artifact.KindBool),
				"prompt_id_hash":  opt(artifact.KindString),
				"pipeline_phase":  opt(artifact.KindString),
				"care_metadata":   opt(artifact.KindNested),
				"system_version":  opt(artifact.KindString),
				"type3_compliant": opt(artifact.KindBool),
			},
		},
		artifact.AgentGraph: {
			Version: 1,
			Fields: map[string]FieldSpec{
				"edge_id":         req(artifact.KindString),
				"session_id":      req(artifact.KindString),
				"from_agent":      req(artifact.KindString),
				"to_agent":        req(artifact.KindString),
				"msg_type":        req(artifact.KindString),
				"content_hash":    req(artifact.KindString),
				"intent_tag":      opt(artifact.KindString),
				"parent_edge_id":  opt(artifact.KindString),
				"role_tags":       opt(artifact.KindList),
				"latency_ms":      opt(artifact.KindInt),
				"retry_count":     opt(artifact.KindInt),
				"timestamp":       opt(artifact.KindTimestamp),
				"system_version":  opt(artifact.KindString),
				"type3_compliant": opt(artifact.KindBool),
			},
		},
		artifact.BoundaryEvent: {
			Version: 1,
			Fields: map[string]FieldSpec{
				"event_id":        req(artifact.KindString),
				"action":          req(artifact.KindString),
				"agent_id":        opt(artifact.KindString),
				"rule_id":         opt(artifact.KindString),
				"trigger_tag":     opt(artifact.KindString),
				"context_tag":     opt(artifact.KindString),
				"reviewer":        opt(artifact.KindString),
				"severity":        opt(artifact.KindString),
				"timestamp":       opt(artifact.KindTimestamp),
				"system_version":  opt(artifact.KindString),
				"type3_compliant": opt(artifact.KindBool),
			},
		},
		artifact.GovernanceLedger: {
			Version: 1,
			Fields: map[string]FieldSpec{
				"publish_id":               req(artifact.KindString),
				"artifact_ids":             req(artifact.KindList),
				"contributing_agent_ids":   opt(artifact.KindList),
				"verification_hashes":      opt(artifact.KindList),
				"human_signoff_id":         opt(artifact.KindString),
				"quality_score":            opt(artifact.KindFloat),
				"type3_verified":           opt(artifact.KindBool),
				"care_compliance_verified": opt(artifact.KindBool),
				"timestamp":                opt(artifact.KindTimestamp),
				"system_version":           opt(artifact.KindString),
				"type3_compliant":          opt(artifact.KindBool),
			},
		},
	}
}
