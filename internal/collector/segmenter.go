package collector

import (
	"regexp"
	"strings"
	"unicode/utf8"
)

const (
	// MaxSingleMessage is the rune length above which text is treated as
	// several messages run together.
	MaxSingleMessage = 3000
	// ChunkSize is the rune length of last-resort chunks.
	ChunkSize = 2000
)

var (
	userMarkers      = []string{"You said:", "You wrote:", "User:", "Human:"}
	assistantMarkers = []string{"Assistant:", "Claude:", "ChatGPT said:"}

	speakerMarker = markerPattern(append(append([]string{}, userMarkers...), assistantMarkers...))
	blankLine     = regexp.MustCompile(`\n[ \t\r\f\v]*\n`)
)

func markerPattern(markers []string) *regexp.Regexp {
	quoted := make([]string, len(markers))
	for i, m := range markers {
		quoted[i] = regexp.QuoteMeta(m)
	}
	return regexp.MustCompile(`(?i)` + strings.Join(quoted, "|"))
}

// splitter is one way of cutting aggregated text. It reports false when it
// does not apply, letting the next splitter try.
type splitter func(text string) ([]Segment, bool)

// Segmenter splits aggregated candidate text into message segments.
type Segmenter struct {
	splitters []splitter
}

// NewSegmenter returns a segmenter that tries speaker markers, then blank
// line paragraphs, then fixed-size chunks.
func NewSegmenter() *Segmenter {
	return &Segmenter{splitters: []splitter{splitMarkers, splitParagraphs, splitChunks}}
}

// Aggregated reports whether text likely holds more than one message.
func Aggregated(text string) bool {
	return utf8.RuneCountInString(text) > MaxSingleMessage || speakerMarker.MatchString(text)
}

// Split returns the segments of text. Text that is not aggregated comes
// back as a single segment with no role.
func (s *Segmenter) Split(text string) []Segment {
	text = strings.TrimSpace(text)
	if !Aggregated(text) {
		return []Segment{{Text: text}}
	}
	for _, split := range s.splitters {
		if segs, ok := split(text); ok {
			return segs
		}
	}
	return []Segment{{Text: text}}
}

// splitMarkers cuts at every speaker marker. The marker introduces its
// segment, is stripped from the text and decides the segment's role.
func splitMarkers(text string) ([]Segment, bool) {
	locs := speakerMarker.FindAllStringIndex(text, -1)
	if len(locs) == 0 {
		return nil, false
	}

	var segs []Segment
	add := func(role Role, s string) {
		if s = strings.TrimSpace(s); s != "" {
			segs = append(segs, Segment{Role: role, Text: s})
		}
	}

	add(RoleNone, text[:locs[0][0]])
	for i, loc := range locs {
		end := len(text)
		if i+1 < len(locs) {
			end = locs[i+1][0]
		}
		add(markerRole(text[loc[0]:loc[1]]), text[loc[1]:end])
	}
	return segs, len(segs) >= 2
}

func markerRole(marker string) Role {
	for _, m := range assistantMarkers {
		if strings.EqualFold(m, marker) {
			return RoleAssistant
		}
	}
	return RoleUser
}

func splitParagraphs(text string) ([]Segment, bool) {
	var segs []Segment
	for _, p := range blankLine.Split(text, -1) {
		if p = strings.TrimSpace(p); p != "" {
			segs = append(segs, Segment{Text: p})
		}
	}
	return segs, len(segs) >= 2
}

func splitChunks(text string) ([]Segment, bool) {
	runes := []rune(text)
	var segs []Segment
	for i := 0; i < len(runes); i += ChunkSize {
		end := min(i+ChunkSize, len(runes))
		if chunk := strings.TrimSpace(string(runes[i:end])); chunk != "" {
			segs = append(segs, Segment{Text: chunk})
		}
	}
	return segs, len(segs) > 0
}
