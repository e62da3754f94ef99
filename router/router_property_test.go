package router

import (
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

// rank orders Complexity values so monotonicity can be checked with <=.
func rank(c Complexity) int {
	switch c {
	case ComplexitySimple:
		return 0
	case ComplexityModerate:
		return 1
	case ComplexityComplex:
		return 2
	default:
		return 3
	}
}

// TestClassifyMonotonicInMessageCountProperty verifies that classify never
// becomes less complex as messageCount grows, holding toolCount fixed.
func TestClassifyMonotonicInMessageCountProperty(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	properties.Property("classify is monotonic in messageCount", prop.ForAll(
		func(messageCount, delta, toolCount int) bool {
			return rank(classify(messageCount, toolCount)) <= rank(classify(messageCount+delta, toolCount))
		},
		gen.IntRange(0, 50),
		gen.IntRange(0, 50),
		gen.IntRange(0, 20),
	))

	properties.TestingRun(t)
}

// TestClassifyMonotonicInToolCountProperty verifies that classify never
// becomes less complex as toolCount grows, holding messageCount fixed.
func TestClassifyMonotonicInToolCountProperty(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	properties.Property("classify is monotonic in toolCount", prop.ForAll(
		func(toolCount, delta, messageCount int) bool {
			return rank(classify(messageCount, toolCount)) <= rank(classify(messageCount, toolCount+delta))
		},
		gen.IntRange(0, 20),
		gen.IntRange(0, 20),
		gen.IntRange(0, 50),
	))

	properties.TestingRun(t)
}

// TestClassifyThresholdsProperty pins the documented thresholds exactly, so
// a refactor of classify can't silently drift the boundaries.
func TestClassifyThresholdsProperty(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	properties.Property("messageCount>=11 or toolCount>=6 is always complex", prop.ForAll(
		func(messageCount, toolCount int) bool {
			if messageCount < 11 && toolCount < 6 {
				return true
			}
			return classify(messageCount, toolCount) == ComplexityComplex
		},
		gen.IntRange(0, 30),
		gen.IntRange(0, 20),
	))

	properties.Property("below complex thresholds, messageCount>=4 or toolCount>=3 is always moderate", prop.ForAll(
		func(messageCount, toolCount int) bool {
			if messageCount >= 11 || toolCount >= 6 {
				return true
			}
			if messageCount < 4 && toolCount < 3 {
				return true
			}
			return classify(messageCount, toolCount) == ComplexityModerate
		},
		gen.IntRange(0, 10),
		gen.IntRange(0, 5),
	))

	properties.TestingRun(t)
}
