package service

import (
	"math/rand"
	"sync"
	"time"

	"github.com/reelforge/reelforge/internal/models"
)

const (
	// Weight multiplier when the format does not list the topic.
	offTopicPenalty = 0.5
	// Weight multiplier per occurrence in the recent window, compounding.
	repeatPenalty = 0.8
	// Scale of the additive bonus for topic-preferred formats.
	preferenceBonus = 0.3
	// Floor for configured candidates so none is starved entirely.
	minScore = 0.01
	// How many recent selections the diversity penalty looks at.
	recentWindow = 3
)

// FormatSelector draws a rendering format for a generation unit. This is the
// only intentional randomness in the pipeline.
type FormatSelector struct {
	mu  sync.Mutex
	rng *rand.Rand
}

// NewFormatSelector seeds the draw; seed 0 means seed from the clock.
func NewFormatSelector(seed int64) *FormatSelector {
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	return &FormatSelector{rng: rand.New(rand.NewSource(seed))}
}

// Select draws a format name. Scores start from the rule's weights, lose
// half off-topic, gain a rank-scaled bonus from the topic's preference list,
// and shrink for every recent repeat. Candidates with a configured weight
// are floored at a small positive score so nothing is starved. When every
// score is zero the first configured candidate wins, deterministically.
func (s *FormatSelector) Select(rule models.SelectionRule, topic string, recent []string) string {
	candidates := rule.Formats
	if len(candidates) == 0 {
		if rule.Fallback != "" {
			return rule.Fallback
		}
		candidates = defaultSelectionRule.Formats
		rule = defaultSelectionRule
	}

	if len(recent) > recentWindow {
		recent = recent[:recentWindow]
	}

	scores := make([]float64, len(candidates))
	total := 0.0
	for i, name := range candidates {
		weight := rule.Weights[name]
		if weight <= 0 {
			continue
		}
		score := weight

		if format, ok := formatCatalog[name]; ok && topic != "" && !format.SuitsTopic(topic) {
			score *= offTopicPenalty
		}
		if rank, size := preferenceRank(topic, name); rank >= 0 {
			score += preferenceBonus * float64(size-rank) / float64(size)
		}
		for _, prev := range recent {
			if prev == name {
				score *= repeatPenalty
			}
		}
		if score < minScore {
			score = minScore
		}

		scores[i] = score
		total += score
	}

	// All weights zero or missing: the draw is undefined, take the first
	// candidate so repeated calls agree.
	if total <= 0 {
		return candidates[0]
	}

	s.mu.Lock()
	draw := s.rng.Float64() * total
	s.mu.Unlock()

	for i, score := range scores {
		draw -= score
		if draw < 0 {
			return candidates[i]
		}
	}
	return candidates[len(candidates)-1]
}

func preferenceRank(topic, format string) (rank, size int) {
	prefs := topicPreferences[topic]
	for i, name := range prefs {
		if name == format {
			return i, len(prefs)
		}
	}
	return -1, 0
}
