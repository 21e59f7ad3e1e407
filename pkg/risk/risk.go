// Package risk maps fraud probabilities onto the LOW/MEDIUM/HIGH/CRITICAL
// taxonomy used for display and routing.
package risk

import (
	"fmt"
	"math"
	"strings"
)

// Level is a discrete risk level.
type Level string

const (
	LevelLow      Level = "LOW"
	LevelMedium   Level = "MEDIUM"
	LevelHigh     Level = "HIGH"
	LevelCritical Level = "CRITICAL"
)

// Lower bounds of each band. Bands are half-open: p >= bound.
const (
	CriticalThreshold = 0.8
	HighThreshold     = 0.6
	MediumThreshold   = 0.3
)

// Band is one row of the threshold table.
type Band struct {
	Level          Level   `json:"level" yaml:"level"`
	Min            float64 `json:"min" yaml:"min"`
	Recommendation string  `json:"recommendation" yaml:"recommendation"`
}

// bands is evaluated high to low; the last band catches everything else.
var bands = []Band{
	{Level: LevelCritical, Min: CriticalThreshold, Recommendation: "Immediate investigation required"},
	{Level: LevelHigh, Min: HighThreshold, Recommendation: "Detailed review recommended"},
	{Level: LevelMedium, Min: MediumThreshold, Recommendation: "Standard verification needed"},
	{Level: LevelLow, Min: 0, Recommendation: "Contract appears normal"},
}

// Levels returns all levels from lowest to highest.
func Levels() []Level {
	return []Level{LevelLow, LevelMedium, LevelHigh, LevelCritical}
}

// Bands returns a copy of the threshold table, highest band first.
func Bands() []Band {
	out := make([]Band, len(bands))
	copy(out, bands)
	return out
}

// Classify maps p onto a level and its recommendation. Values below zero fall
// in LOW, values above one in CRITICAL. NaN is treated as CRITICAL so that an
// unscorable contract is routed for investigation.
func Classify(p float64) (Level, string) {
	if math.IsNaN(p) {
		return bands[0].Level, bands[0].Recommendation
	}
	for _, b := range bands[:len(bands)-1] {
		if p >= b.Min {
			return b.Level, b.Recommendation
		}
	}
	last := bands[len(bands)-1]
	return last.Level, last.Recommendation
}

// Recommendation returns the recommendation text for l.
func (l Level) Recommendation() string {
	for _, b := range bands {
		if b.Level == l {
			return b.Recommendation
		}
	}
	return ""
}

// Rank orders levels from 0 (LOW) to 3 (CRITICAL); unknown levels rank -1.
func (l Level) Rank() int {
	for i, v := range Levels() {
		if v == l {
			return i
		}
	}
	return -1
}

// ParseLevel reads a level case-insensitively.
func ParseLevel(s string) (Level, error) {
	l := Level(strings.ToUpper(strings.TrimSpace(s)))
	if l.Rank() < 0 {
		return "", fmt.Errorf("invalid risk level: %q", s)
	}
	return l, nil
}

func (l Level) String() string { return string(l) }
