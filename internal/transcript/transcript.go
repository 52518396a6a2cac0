// Package transcript applies the configured cosmetic transforms to raw
// speech-to-text output before it is handed to the caller.
//
// The transforms are deliberately few: a dictation tool types the text into
// whatever has focus, so the only adjustments are the ones that make the
// result fit into running prose. They are applied in a fixed order:
//
//  1. strip one trailing period
//  2. append one trailing space
//  3. lowercase
package transcript

import "strings"

// Options selects which transforms [Process] applies.
type Options struct {
	// RemoveTrailingPeriod strips a single trailing '.'.
	RemoveTrailingPeriod bool `yaml:"remove_trailing_period"`

	// AddTrailingSpace appends a single ' '.
	AddTrailingSpace bool `yaml:"add_trailing_space"`

	// RemoveCapitalization lowercases the whole text.
	RemoveCapitalization bool `yaml:"remove_capitalization"`
}

// Stage is a single text transform.
type Stage func(string) string

// StripTrailingPeriod removes one trailing period, if present.
func StripTrailingPeriod(s string) string {
	return strings.TrimSuffix(s, ".")
}

// AppendSpace appends one space.
func AppendSpace(s string) string {
	return s + " "
}

// Lowercase maps all letters to lower case.
func Lowercase(s string) string {
	return strings.ToLower(s)
}

// Stages returns the enabled transforms in application order.
func (o Options) Stages() []Stage {
	var stages []Stage
	if o.RemoveTrailingPeriod {
		stages = append(stages, StripTrailingPeriod)
	}
	if o.AddTrailingSpace {
		stages = append(stages, AppendSpace)
	}
	if o.RemoveCapitalization {
		stages = append(stages, Lowercase)
	}
	return stages
}

// Process applies the transforms enabled in o to text. An empty text is
// returned unchanged so that "no speech" stays distinguishable from a result.
func Process(text string, o Options) string {
	if text == "" {
		return ""
	}
	for _, stage := range o.Stages() {
		text = stage(text)
	}
	return text
}
