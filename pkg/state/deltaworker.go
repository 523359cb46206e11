package state

import "log/slog"

// AnalysisWorker merges a ChoiceAnalysis into a NarrativeState.
type AnalysisWorker struct {
	ns       *NarrativeState
	analysis ChoiceAnalysis
	logger   *slog.Logger
}

// NewAnalysisWorker creates a worker for a single merge. The analysis is
// normalised before it is applied.
func NewAnalysisWorker(ns *NarrativeState, analysis ChoiceAnalysis, logger *slog.Logger) *AnalysisWorker {
	if logger == nil {
		logger = slog.Default()
	}
	return &AnalysisWorker{
		ns:       ns,
		analysis: analysis.Normalize(),
		logger:   logger,
	}
}

// Apply merges tension, traits and mood. Tension is clamped to [0,10].
func (w *AnalysisWorker) Apply() {
	if w.analysis.IsEmpty() {
		w.ns.Tension = clamp(w.ns.Tension, MinTension, MaxTension)
		w.logger.Debug("Choice analysis is neutral, nothing to apply")
		return
	}

	before := w.ns.Tension
	w.ns.Tension = clamp(w.ns.Tension+w.analysis.TensionDelta, MinTension, MaxTension)

	for _, t := range w.analysis.Traits {
		w.ns.AddTrait(t)
	}

	switch w.analysis.Impact {
	case ImpactPositive:
		w.ns.Mood = "hopeful"
	case ImpactNegative:
		w.ns.Mood = "ominous"
	}

	w.logger.Debug("Applied choice analysis",
		"impact", w.analysis.Impact,
		"tension_before", before,
		"tension_after", w.ns.Tension,
		"traits", w.analysis.Traits,
		"mood", w.ns.Mood)
}

// ApplyAnalysis is a shorthand for NewAnalysisWorker(...).Apply().
func (ns *NarrativeState) ApplyAnalysis(a ChoiceAnalysis) {
	NewAnalysisWorker(ns, a, nil).Apply()
}
