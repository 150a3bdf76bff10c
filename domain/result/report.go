package result

import (
	"fmt"
	"sort"
	"strings"
)

// ReplicateFailure records why one replicate contributed nothing
type ReplicateFailure struct {
	Replicate int    `json:"replicate"`
	Stage     string `json:"stage"`
	Reason    string `json:"reason"`
}

// RunReport accounts for a finished run: what was intended, what succeeded,
// and exactly which replicates dropped out and why. Aggregates that rest on
// fewer replicates than intended are visible here, never papered over.
type RunReport struct {
	Manifest   RunManifest        `json:"manifest"`
	Aggregates []Aggregate        `json:"aggregates"`
	Failures   []ReplicateFailure `json:"failures"`
	Completed  int                `json:"completed"`
}

// UsableFraction returns completed replicates over intended
func (r *RunReport) UsableFraction() float64 {
	if r.Manifest.Replicates == 0 {
		return 0
	}
	return float64(r.Completed) / float64(r.Manifest.Replicates)
}

// Markdown renders the report as a markdown document: the run header, the
// aggregate table, and the failure accounting.
func (r *RunReport) Markdown() string {
	var b strings.Builder

	fmt.Fprintf(&b, "# Replication report: %s\n\n", r.Manifest.Experiment)
	fmt.Fprintf(&b, "- Run: `%s`\n", r.Manifest.RunID)
	fmt.Fprintf(&b, "- Seed: %d\n", r.Manifest.Seed)
	fmt.Fprintf(&b, "- Replicates: %d intended, %d completed (%.1f%%)\n",
		r.Manifest.Replicates, r.Completed, 100*r.UsableFraction())
	fmt.Fprintf(&b, "- Inner draws: %d (burn-in %d)\n", r.Manifest.InnerDraws, r.Manifest.BurnIn)
	fmt.Fprintf(&b, "- Fingerprint: `%s`\n\n", r.Manifest.Fingerprint)

	b.WriteString("## Aggregates\n\n")
	b.WriteString("| Statistic | Mean | 95% CI | p | n |\n")
	b.WriteString("|---|---|---|---|---|\n")
	aggs := make([]Aggregate, len(r.Aggregates))
	copy(aggs, r.Aggregates)
	sort.Slice(aggs, func(i, j int) bool { return aggs[i].Name < aggs[j].Name })
	for _, a := range aggs {
		fmt.Fprintf(&b, "| %s | %.4f | [%.4f, %.4f] | %.4f | %d/%d |\n",
			a.Name, a.Mean, a.CILow, a.CIHigh, a.PValue, a.NUsable, a.NIntended)
	}

	if len(r.Failures) > 0 {
		b.WriteString("\n## Dropped replicates\n\n")
		b.WriteString("| Replicate | Stage | Reason |\n")
		b.WriteString("|---|---|---|\n")
		for _, f := range r.Failures {
			fmt.Fprintf(&b, "| %d | %s | %s |\n", f.Replicate, f.Stage, f.Reason)
		}
	}

	return b.String()
}
