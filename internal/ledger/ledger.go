// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package ledger accumulates token, dollar, and latency cost across the model
// calls of one pipeline run.
package ledger

import (
	"fmt"
	"os"
	"sort"
	"sync"
	"time"

	"go.yaml.in/yaml/v3"

	"github.com/pdiddy/report-engine/internal/metrics"
	"github.com/pdiddy/report-engine/pkg/types"
)

// Entry is the cost of one completed model call. Callers build it locally
// after the call returns and hand it to Record.
type Entry struct {
	Stage   string
	Model   string
	Usage   types.TokenUsage
	Latency time.Duration
}

// StageTotals aggregates the entries of one stage.
type StageTotals struct {
	Calls   int              `json:"calls" yaml:"calls"`
	Usage   types.TokenUsage `json:"usage" yaml:"usage"`
	Cost    float64          `json:"cost" yaml:"cost"`
	Latency time.Duration    `json:"latency" yaml:"latency"`
}

// Snapshot is a point-in-time copy of the ledger.
type Snapshot struct {
	Calls   int                    `json:"calls" yaml:"calls"`
	Usage   types.TokenUsage       `json:"usage" yaml:"usage"`
	Cost    float64                `json:"cost" yaml:"cost"`
	Latency time.Duration          `json:"latency" yaml:"latency"`
	Stages  map[string]StageTotals `json:"stages" yaml:"stages"`
}

// StageNames returns the recorded stage names in sorted order.
func (s Snapshot) StageNames() []string {
	names := make([]string, 0, len(s.Stages))
	for n := range s.Stages {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Ledger is safe for concurrent use. The mutex guards only in-memory
// arithmetic; it is never held across a model call.
type Ledger struct {
	pricing types.PricingConfig

	mu     sync.Mutex
	totals Snapshot
}

// New returns an empty ledger priced with p.
func New(p types.PricingConfig) *Ledger {
	return &Ledger{
		pricing: p,
		totals:  Snapshot{Stages: make(map[string]StageTotals)},
	}
}

// Cost returns the USD cost of usage under the ledger's pricing.
func (l *Ledger) Cost(model string, u types.TokenUsage) float64 {
	price, ok := l.pricing.Models[model]
	if !ok {
		return float64(u.Input+u.Output) / 1000 * l.pricing.DefaultPer1K
	}
	return float64(u.Input)/1000*price.InputPer1K + float64(u.Output)/1000*price.OutputPer1K
}

// Record merges one entry into the totals and returns its cost.
func (l *Ledger) Record(e Entry) float64 {
	if e.Usage.Total == 0 {
		e.Usage.Total = e.Usage.Input + e.Usage.Output
	}
	cost := l.Cost(e.Model, e.Usage)

	l.mu.Lock()
	st := l.totals.Stages[e.Stage]
	st.Calls++
	st.Usage = st.Usage.Add(e.Usage)
	st.Cost += cost
	st.Latency += e.Latency
	l.totals.Stages[e.Stage] = st

	l.totals.Calls++
	l.totals.Usage = l.totals.Usage.Add(e.Usage)
	l.totals.Cost += cost
	l.totals.Latency += e.Latency
	l.mu.Unlock()

	metrics.ModelCalls.WithLabelValues(e.Stage, e.Model).Inc()
	metrics.ModelTokens.WithLabelValues(e.Stage, "input").Add(float64(e.Usage.Input))
	metrics.ModelTokens.WithLabelValues(e.Stage, "output").Add(float64(e.Usage.Output))
	metrics.ModelCostUSD.WithLabelValues(e.Stage).Add(cost)
	metrics.ModelLatency.WithLabelValues(e.Stage).Observe(e.Latency.Seconds())

	return cost
}

// Snapshot returns a copy of the current totals.
func (l *Ledger) Snapshot() Snapshot {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := l.totals
	out.Stages = make(map[string]StageTotals, len(l.totals.Stages))
	for k, v := range l.totals.Stages {
		out.Stages[k] = v
	}
	return out
}

// LoadPricing reads a pricing table from a YAML file of the form:
//
//	default_per_1k: 0.01
//	models:
//	  claude-sonnet-4-5-20250929:
//	    input_per_1k: 0.003
//	    output_per_1k: 0.015
func LoadPricing(path string) (types.PricingConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return types.PricingConfig{}, fmt.Errorf("reading pricing %s: %w", path, err)
	}
	var p types.PricingConfig
	if err := yaml.Unmarshal(data, &p); err != nil {
		return types.PricingConfig{}, fmt.Errorf("parsing pricing %s: %w", path, err)
	}
	return p, nil
}
