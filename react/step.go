package react

import (
	"fmt"
	"regexp"
	"strings"
)

// DefaultFinalAnswerMarker ends the loop when it appears in a completion.
const DefaultFinalAnswerMarker = "Final Answer"

// Step is one Thought/Action/Action Input triple parsed from a completion.
// ActionInput is the raw JSON text as the model wrote it.
type Step struct {
	Thought     string `json:"thought"`
	Action      string `json:"action"`
	ActionInput string `json:"action_input"`
}

const (
	ParseErrorStep = "step"
	ParseErrorJSON = "json"
)

// ParseError is recovered inside the loop by asking the model to try again.
type ParseError struct {
	Kind  string
	Text  string
	Cause error
}

func (e *ParseError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s parse error: %v", e.Kind, e.Cause)
	}
	return fmt.Sprintf("%s parse error", e.Kind)
}

func (e *ParseError) Unwrap() error {
	return e.Cause
}

// Field markers accept an ASCII or full-width colon. Observation is matched so
// an action input stops before a hallucinated observation.
var fieldPattern = regexp.MustCompile(`(?m)^[ \t]*(Thought|Action Input|Action|Observation)[ \t]*[:：]`)

var fencePattern = regexp.MustCompile("(?s)^```[a-zA-Z]*\\s*(.*?)\\s*```$")

// Parse scans a completion for steps. A step needs at least an action name;
// text belonging to the same step may span several lines.
func Parse(text string) []Step {
	matches := fieldPattern.FindAllStringSubmatchIndex(text, -1)

	var (
		steps   []Step
		current Step
		started bool
	)
	// completions often continue a prompt that already ended in "Thought:"
	if len(matches) > 0 {
		if lead := strings.TrimSpace(text[:matches[0][0]]); lead != "" {
			current.Thought = lead
			started = true
		}
	}
	flush := func() {
		if current.Action != "" {
			steps = append(steps, current)
		}
		current = Step{}
		started = false
	}

	for i, m := range matches {
		field := text[m[2]:m[3]]
		end := len(text)
		if i+1 < len(matches) {
			end = matches[i+1][0]
		}
		value := strings.TrimSpace(text[m[1]:end])

		switch field {
		case "Thought":
			if started {
				flush()
			}
			current.Thought = value
			started = true
		case "Action":
			if current.Action != "" {
				flush()
			}
			current.Action = strings.Trim(value, "`\"' ")
			started = true
		case "Action Input":
			current.ActionInput = stripFence(value)
			started = true
		case "Observation":
			flush()
		}
	}
	flush()
	return steps
}

// HasStepMarkers reports whether the text tries to follow the step format.
func HasStepMarkers(text string) bool {
	for _, m := range fieldPattern.FindAllStringSubmatch(text, -1) {
		if m[1] != "Observation" {
			return true
		}
	}
	return false
}

// FinalAnswer extracts the text after the final answer marker.
func FinalAnswer(text, marker string) (string, bool) {
	return finalAnswer(markerPattern(marker), text)
}

func markerPattern(marker string) *regexp.Regexp {
	if marker == "" {
		marker = DefaultFinalAnswerMarker
	}
	return regexp.MustCompile(regexp.QuoteMeta(marker) + `[ \t]*[:：]?`)
}

func finalAnswer(pattern *regexp.Regexp, text string) (string, bool) {
	loc := pattern.FindStringIndex(text)
	if loc == nil {
		return "", false
	}
	return strings.TrimSpace(text[loc[1]:]), true
}

func stripFence(value string) string {
	if m := fencePattern.FindStringSubmatch(value); m != nil {
		return strings.TrimSpace(m[1])
	}
	return value
}
