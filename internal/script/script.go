// Package script turns moderated content into a timed scene script.
package script

import (
	"errors"
	"fmt"
	"math"
	"strings"
)

// ErrInvalidScript is returned when a generated object fails validation.
var ErrInvalidScript = errors.New("script: invalid script")

const (
	defaultSceneSeconds = 3.0
	defaultCaption      = "minimal"
	durationTolerance   = 0.25
)

var (
	tones    = []string{"energetic", "funny", "informative", "dry", "sardonic"}
	pacings  = []string{"slow", "medium", "fast"}
	captions = []string{"bold-large", "minimal", "italic"}
)

// Scene is one timed caption within a script.
type Scene struct {
	Text     string  `json:"text"`
	Start    float64 `json:"start"`
	Duration float64 `json:"duration"`
	Visual   string  `json:"visual,omitempty"`
}

// Script is a validated, normalized scene script.
type Script struct {
	Tone          string  `json:"tone"`
	Pacing        string  `json:"pacing"`
	CTA           string  `json:"cta"`
	CaptionStyle  string  `json:"caption_style"`
	LengthSeconds float64 `json:"length_seconds"`
	Scenes        []Scene `json:"scenes"`
}

// Total is the summed duration of all scenes.
func (s Script) Total() float64 {
	var t float64
	for _, sc := range s.Scenes {
		t += sc.Duration
	}
	return t
}

// Narration joins the scene texts in order.
func (s Script) Narration() string {
	parts := make([]string, 0, len(s.Scenes))
	for _, sc := range s.Scenes {
		if t := strings.TrimSpace(sc.Text); t != "" {
			parts = append(parts, t)
		}
	}
	return strings.Join(parts, " ")
}

// DurationDrift reports whether the scene total is more than 25% away from
// the target length.
func (s Script) DurationDrift() bool {
	if s.LengthSeconds <= 0 {
		return false
	}
	return math.Abs(s.Total()-s.LengthSeconds)/s.LengthSeconds > durationTolerance
}

// Validate checks a generated object and normalizes it into a Script.
// defaultLength is used when the object carries no usable length_seconds.
func Validate(obj map[string]any, defaultLength float64) (Script, error) {
	for _, key := range []string{"tone", "pacing", "cta", "scenes"} {
		if _, ok := obj[key]; !ok {
			return Script{}, fmt.Errorf("%w: missing %q", ErrInvalidScript, key)
		}
	}

	s := Script{
		CTA:           strings.TrimSpace(stringField(obj, "cta")),
		CaptionStyle:  defaultCaption,
		LengthSeconds: defaultLength,
	}

	var err error
	if s.Tone, err = enumField(obj, "tone", tones); err != nil {
		return Script{}, err
	}
	if s.Pacing, err = enumField(obj, "pacing", pacings); err != nil {
		return Script{}, err
	}
	if _, ok := obj["caption_style"]; ok {
		if s.CaptionStyle, err = enumField(obj, "caption_style", captions); err != nil {
			return Script{}, err
		}
	}
	if n, ok := number(obj["length_seconds"]); ok && n > 0 {
		s.LengthSeconds = n
	}

	raw, ok := obj["scenes"].([]any)
	if !ok {
		return Script{}, fmt.Errorf("%w: scenes is %T, not a list", ErrInvalidScript, obj["scenes"])
	}
	if len(raw) == 0 {
		return Script{}, fmt.Errorf("%w: no scenes", ErrInvalidScript)
	}

	var cursor float64
	for i, item := range raw {
		m, ok := item.(map[string]any)
		if !ok {
			return Script{}, fmt.Errorf("%w: scene %d is %T", ErrInvalidScript, i, item)
		}
		sc := Scene{
			Text:   strings.TrimSpace(stringField(m, "text")),
			Visual: strings.TrimSpace(stringField(m, "visual")),
		}
		if d, ok := number(m["duration"]); ok && d > 0 {
			sc.Duration = d
		} else {
			sc.Duration = defaultSceneSeconds
		}
		if st, ok := number(m["start"]); ok && st >= 0 {
			sc.Start = st
		} else {
			sc.Start = cursor
		}
		cursor = sc.Start + sc.Duration
		s.Scenes = append(s.Scenes, sc)
	}
	return s, nil
}

func enumField(obj map[string]any, key string, allowed []string) (string, error) {
	v := strings.ToLower(strings.TrimSpace(stringField(obj, key)))
	for _, a := range allowed {
		if v == a {
			return v, nil
		}
	}
	return "", fmt.Errorf("%w: %s %q not one of %s", ErrInvalidScript, key, v, strings.Join(allowed, "|"))
}

func stringField(obj map[string]any, key string) string {
	switch v := obj[key].(type) {
	case string:
		return v
	case nil:
		return ""
	default:
		return fmt.Sprint(v)
	}
}

func number(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	}
	return 0, false
}
