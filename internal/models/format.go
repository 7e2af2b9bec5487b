package models

// Format is a named rendering variant. The catalog is code-level
// configuration; only the chosen format's name is persisted on the job so a
// later catalog change never rewrites history.
type Format struct {
	Name   string
	Frames []FrameSpec
	// Topics this format suits. A format still wins for other topics, just
	// at a penalized weight.
	Topics []string
}

// FrameSpec describes one frame slot: which slide role fills it, the visual
// theme the renderer applies, and the base clip length in seconds.
type FrameSpec struct {
	Role    string  `json:"role"`
	Theme   string  `json:"theme"`
	Seconds float64 `json:"seconds"`
}

// TotalSeconds is the nominal duration before per-slide adjustments.
func (f Format) TotalSeconds() float64 {
	var total float64
	for _, fr := range f.Frames {
		total += fr.Seconds
	}
	return total
}

// SuitsTopic reports whether topic is listed for the format.
func (f Format) SuitsTopic(topic string) bool {
	for _, t := range f.Topics {
		if t == topic {
			return true
		}
	}
	return false
}

// SelectionRule configures the weighted format draw for one tenant persona.
type SelectionRule struct {
	Formats  []string           `json:"formats"`
	Weights  map[string]float64 `json:"weights"`
	Fallback string             `json:"fallback"`
}
