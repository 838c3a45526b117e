package assembler

import (
	"github.com/sentience/sentience/internal/intent"
	"github.com/sentience/sentience/internal/persona"
)

// Tier is a model size class
type Tier string

const (
	TierFast Tier = "fast"
	TierDeep Tier = "deep"
)

// Params are the model settings for one call
type Params struct {
	Tier        Tier    `json:"tier"`
	Model       string  `json:"model"`
	Temperature float64 `json:"temperature"`
	MaxTokens   int     `json:"maxTokens"`
}

// tierParams is the whole selection policy: two rows, no interpolation
var tierParams = map[Tier]Params{
	TierFast: {Tier: TierFast, Temperature: 0.7, MaxTokens: 1024},
	TierDeep: {Tier: TierDeep, Temperature: 0.2, MaxTokens: 2048},
}

// Models names the model served for each tier
type Models struct {
	Fast string
	Deep string
}

func (m Models) withDefaults() Models {
	if m.Fast == "" {
		m.Fast = "llama-3.1-8b-instant"
	}
	if m.Deep == "" {
		m.Deep = "llama-3.3-70b-versatile"
	}
	return m
}

// SelectTier picks the deep tier for coding requests or dev mode
func SelectTier(mode persona.Mode, i intent.Intent) Tier {
	if i == intent.Coding || mode == persona.Dev {
		return TierDeep
	}
	return TierFast
}

// Select returns the full parameters for mode and intent
func (m Models) Select(mode persona.Mode, i intent.Intent) Params {
	m = m.withDefaults()
	p := tierParams[SelectTier(mode, i)]
	if p.Tier == TierDeep {
		p.Model = m.Deep
	} else {
		p.Model = m.Fast
	}
	return p
}
