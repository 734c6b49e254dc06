package collector

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAggregated(t *testing.T) {
	assert.False(t, Aggregated("just a message"))
	assert.True(t, Aggregated("you SAID: hi"))
	assert.True(t, Aggregated("ChatGPT said: hello"))
	assert.True(t, Aggregated(strings.Repeat("x", MaxSingleMessage+1)))
	assert.False(t, Aggregated(strings.Repeat("é", MaxSingleMessage)))
}

func TestSegmenter_NotAggregated(t *testing.T) {
	got := NewSegmenter().Split("  hello there \n")
	assert.Equal(t, []Segment{{Text: "hello there"}}, got)
}

func TestSegmenter_Markers(t *testing.T) {
	text := "Conversation export\nYou said: what is Go?\nChatGPT said: A language.\nUser:   thanks\nClaude: welcome"
	got := NewSegmenter().Split(text)
	assert.Equal(t, []Segment{
		{Role: RoleNone, Text: "Conversation export"},
		{Role: RoleUser, Text: "what is Go?"},
		{Role: RoleAssistant, Text: "A language."},
		{Role: RoleUser, Text: "thanks"},
		{Role: RoleAssistant, Text: "welcome"},
	}, got)
}

func TestSegmenter_MarkersCaseInsensitive(t *testing.T) {
	got := NewSegmenter().Split("HUMAN: hi assistant: hello")
	assert.Equal(t, []Segment{
		{Role: RoleUser, Text: "hi"},
		{Role: RoleAssistant, Text: "hello"},
	}, got)
}

func TestSegmenter_EmptyMarkerSegmentsDropped(t *testing.T) {
	got := NewSegmenter().Split("User: Assistant: answer\nUser: next")
	assert.Equal(t, []Segment{
		{Role: RoleAssistant, Text: "answer"},
		{Role: RoleUser, Text: "next"},
	}, got)
}

func TestSegmenter_SingleMarkerFallsBackToParagraphs(t *testing.T) {
	got := NewSegmenter().Split("User: first paragraph\n\nsecond paragraph")
	assert.Equal(t, []Segment{
		{Text: "User: first paragraph"},
		{Text: "second paragraph"},
	}, got)
}

func TestSegmenter_Paragraphs(t *testing.T) {
	para := strings.Repeat("a", 1600)
	text := para + "\n\n  \n" + para + "\n \n" + para
	got := NewSegmenter().Split(text)
	require.Len(t, got, 3)
	for _, s := range got {
		assert.Equal(t, RoleNone, s.Role)
		assert.Equal(t, para, s.Text)
	}
}

func TestSegmenter_Chunks(t *testing.T) {
	text := strings.Repeat("ü", ChunkSize*2+10)
	got := NewSegmenter().Split(text)
	require.Len(t, got, 3)
	assert.Equal(t, ChunkSize, utf8.RuneCountInString(got[0].Text))
	assert.Equal(t, ChunkSize, utf8.RuneCountInString(got[1].Text))
	assert.Equal(t, 10, utf8.RuneCountInString(got[2].Text))
	for _, s := range got {
		assert.Equal(t, RoleNone, s.Role)
	}
}

func TestSegmenter_SingleMarkerShortText(t *testing.T) {
	got := NewSegmenter().Split("Human: only one turn")
	assert.Equal(t, []Segment{{Text: "Human: only one turn"}}, got)
}
