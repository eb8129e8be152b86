package main

import (
	"encoding/json"
	"os"
	"strings"

	"palisade/pkg/palisade"
)

// loadPBTRequestFromConfig reads a run config JSON file. Keys mirror the pbt
// subcommand flags; missing keys stay zero so the merge keeps the flag value.
func loadPBTRequestFromConfig(path string) (palisade.PBTRequest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return palisade.PBTRequest{}, err
	}
	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		return palisade.PBTRequest{}, err
	}

	var req palisade.PBTRequest
	if v, ok := asString(raw["run_id"]); ok {
		req.RunID = v
	}
	if v, ok := asString(raw["env"]); ok {
		req.EnvKind = v
	}
	if v, ok := asString(raw["scenario"]); ok {
		req.Scenario = v
	}
	if v, ok := asInt(raw["main_agent"]); ok {
		req.MainAgentID = v
	}
	if v, ok := asInt(raw["num_opponents"]); ok {
		req.NumOpponents = v
	}
	if v, ok := asFloat64(raw["experience_factor"]); ok {
		req.ExperienceFactor = v
	}
	if v, ok := asInt64(raw["growth_interval"]); ok {
		req.GrowthInterval = v
	}
	if v, ok := asInt(raw["max_opponents"]); ok {
		req.MaxOpponents = v
	}
	if v, ok := asInt64(raw["checkpoint_interval"]); ok {
		req.CheckpointInterval = v
	}
	if v, ok := asInt64(raw["eval_interval"]); ok {
		req.EvalInterval = v
	}
	if v, ok := asInt64(raw["max_timesteps"]); ok {
		req.MaxTimesteps = v
	}
	if v, ok := asBool(raw["limit_policy_cache"]); ok {
		req.LimitPolicyCache = v
	}
	if v, ok := asInt(raw["workers"]); ok {
		req.NumWorkers = v
	}
	if v, ok := asInt64(raw["timesteps_per_iter"]); ok {
		req.TimestepsPerIteration = v
	}
	if v, ok := asInt(raw["episodes_per_worker"]); ok {
		req.EpisodesPerWorker = v
	}
	if v, ok := asInt(raw["horizon"]); ok {
		req.Horizon = v
	}
	if v, ok := asInt64(raw["seed"]); ok {
		req.Seed = v
	}
	if v, ok := asStringList(raw["baselines"]); ok {
		req.BaselineArtifacts = v
	}
	if v, ok := asString(raw["baseline_policy"]); ok {
		req.BaselinePolicy = v
	}
	if v, ok := asString(raw["artifact_root"]); ok {
		req.ArtifactRoot = v
	}
	return req, nil
}

// mergePBTRequest overlays the non-zero fields of src onto dst. Config values
// replace flag defaults; overrideFromFlags reapplies explicitly passed flags
// afterwards so flag values always win.
func mergePBTRequest(dst *palisade.PBTRequest, src palisade.PBTRequest) {
	if src.RunID != "" {
		dst.RunID = src.RunID
	}
	if src.EnvKind != "" {
		dst.EnvKind = src.EnvKind
	}
	if src.Scenario != "" {
		dst.Scenario = src.Scenario
	}
	if src.MainAgentID != 0 {
		dst.MainAgentID = src.MainAgentID
	}
	if src.NumOpponents != 0 {
		dst.NumOpponents = src.NumOpponents
	}
	if src.ExperienceFactor != 0 {
		dst.ExperienceFactor = src.ExperienceFactor
	}
	if src.GrowthInterval != 0 {
		dst.GrowthInterval = src.GrowthInterval
	}
	if src.MaxOpponents != 0 {
		dst.MaxOpponents = src.MaxOpponents
	}
	if src.CheckpointInterval != 0 {
		dst.CheckpointInterval = src.CheckpointInterval
	}
	if src.EvalInterval != 0 {
		dst.EvalInterval = src.EvalInterval
	}
	if src.MaxTimesteps != 0 {
		dst.MaxTimesteps = src.MaxTimesteps
	}
	if src.LimitPolicyCache {
		dst.LimitPolicyCache = true
	}
	if src.NumWorkers != 0 {
		dst.NumWorkers = src.NumWorkers
	}
	if src.TimestepsPerIteration != 0 {
		dst.TimestepsPerIteration = src.TimestepsPerIteration
	}
	if src.EpisodesPerWorker != 0 {
		dst.EpisodesPerWorker = src.EpisodesPerWorker
	}
	if src.Horizon != 0 {
		dst.Horizon = src.Horizon
	}
	if src.Seed != 0 {
		dst.Seed = src.Seed
	}
	if len(src.BaselineArtifacts) > 0 {
		dst.BaselineArtifacts = src.BaselineArtifacts
	}
	if src.BaselinePolicy != "" {
		dst.BaselinePolicy = src.BaselinePolicy
	}
	if src.ArtifactRoot != "" {
		dst.ArtifactRoot = src.ArtifactRoot
	}
}

// overrideFromFlags reapplies the flags the user actually set on top of a
// config-loaded request. set holds the names seen by fs.Visit after parsing.
func overrideFromFlags(req *palisade.PBTRequest, set map[string]bool, flagValue map[string]any) {
	for name := range set {
		v, ok := flagValue[name]
		if !ok {
			continue
		}
		switch name {
		case "run-id":
			req.RunID = v.(string)
		case "env":
			req.EnvKind = v.(string)
		case "scenario":
			req.Scenario = v.(string)
		case "main-agent":
			req.MainAgentID = v.(int)
		case "num-opponents":
			req.NumOpponents = v.(int)
		case "experience-factor":
			req.ExperienceFactor = v.(float64)
		case "growth-interval":
			req.GrowthInterval = v.(int64)
		case "max-opponents":
			req.MaxOpponents = v.(int)
		case "checkpoint-interval":
			req.CheckpointInterval = v.(int64)
		case "eval-interval":
			req.EvalInterval = v.(int64)
		case "max-timesteps":
			req.MaxTimesteps = v.(int64)
		case "limit-policy-cache":
			req.LimitPolicyCache = v.(bool)
		case "workers":
			req.NumWorkers = v.(int)
		case "timesteps-per-iter":
			req.TimestepsPerIteration = v.(int64)
		case "episodes-per-worker":
			req.EpisodesPerWorker = v.(int)
		case "horizon":
			req.Horizon = v.(int)
		case "seed":
			req.Seed = v.(int64)
		case "baselines":
			req.BaselineArtifacts = strings.Split(v.(string), ",")
		case "baseline-policy":
			req.BaselinePolicy = v.(string)
		case "artifact-root":
			req.ArtifactRoot = v.(string)
		}
	}
}

func asString(v any) (string, bool) {
	s, ok := v.(string)
	return s, ok
}

func asBool(v any) (bool, bool) {
	b, ok := v.(bool)
	return b, ok
}

func asInt(v any) (int, bool) {
	switch x := v.(type) {
	case int:
		return x, true
	case float64:
		return int(x), true
	default:
		return 0, false
	}
}

func asInt64(v any) (int64, bool) {
	switch x := v.(type) {
	case int64:
		return x, true
	case int:
		return int64(x), true
	case float64:
		return int64(x), true
	default:
		return 0, false
	}
}

func asFloat64(v any) (float64, bool) {
	switch x := v.(type) {
	case float64:
		return x, true
	case int:
		return float64(x), true
	default:
		return 0, false
	}
}

func asStringList(v any) ([]string, bool) {
	items, ok := v.([]any)
	if !ok {
		return nil, false
	}
	out := make([]string, 0, len(items))
	for _, item := range items {
		s, ok := item.(string)
		if !ok {
			return nil, false
		}
		out = append(out, s)
	}
	return out, len(out) > 0
}
