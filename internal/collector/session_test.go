package collector

import (
	"context"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSourceFor(t *testing.T) {
	tests := []struct {
		url    string
		source string
		conv   string
	}{
		{"https://chat.openai.com/c/abc", "chat.openai.com", "/c/abc"},
		{"https://cdn.openai.com/x", "chat.openai.com", "/x"},
		{"https://claude.ai/chat/1", "claude.ai", "/chat/1"},
		{"https://chatgpt.com/c/2", "chatgpt.com", "/c/2"},
		{"https://Example.COM:8443", "example.com", "/"},
	}
	for _, tt := range tests {
		t.Run(tt.url, func(t *testing.T) {
			u, err := url.Parse(tt.url)
			require.NoError(t, err)
			source, conv := SourceFor(u)
			assert.Equal(t, tt.source, source)
			assert.Equal(t, tt.conv, conv)
		})
	}
}

func TestSession_Apply(t *testing.T) {
	pl, _, relay := newTestPipeline(t)
	sched := &manualScheduler{}
	u, _ := url.Parse("https://claude.ai/chat/7")
	s := NewSession(context.Background(), u, pl, WithScheduler(sched))

	first := parse(t, `<body><main>
<div class="message" data-author="user">hi</div>
</main></body>`)
	applied, err := s.Apply(context.Background(), first)
	require.NoError(t, err)
	require.NotNil(t, applied.Full)
	assert.Len(t, applied.Full.Messages, 1)

	second := parse(t, `<body><main>
<div class="message" data-author="user">hi</div>
<div class="message" data-author="assistant">hello!</div>
</main></body>`)
	applied, err = s.Apply(context.Background(), second)
	require.NoError(t, err)
	assert.Nil(t, applied.Full)
	assert.Equal(t, 1, applied.Inserted)
	assert.Len(t, relay.Batches(), 1)

	sched.FireAll()

	batches := relay.Batches()
	require.Len(t, batches, 2)
	assert.Equal(t, []Message{{Role: RoleAssistant, Text: "hello!"}}, batches[1].Messages)
	assert.Equal(t, "claude.ai", batches[1].Source)
	assert.Equal(t, "/chat/7", batches[1].ConversationID)
}

func TestSession_InsertBeforeComposer(t *testing.T) {
	pl, _, relay := newTestPipeline(t)
	u, _ := url.Parse("https://claude.ai/chat/8")
	s := NewSession(context.Background(), u, pl, WithScheduler(&manualScheduler{}))

	_, err := s.Apply(context.Background(), parse(t, `<body><main>`+
		`<div class="message" data-author="user">first question</div>`+
		`<div class="composer">Type here</div>`+
		`</main></body>`))
	require.NoError(t, err)

	applied, err := s.Apply(context.Background(), parse(t, `<body><main>`+
		`<div class="message" data-author="user">first question</div>`+
		`<div class="message" data-author="assistant">the answer</div>`+
		`<div class="composer">Type here</div>`+
		`</main></body>`))
	require.NoError(t, err)
	assert.Equal(t, 1, applied.Inserted)

	res, err := s.Flush(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []Message{{Role: RoleAssistant, Text: "the answer"}}, res.Messages)

	batches := relay.Batches()
	require.Len(t, batches, 2)
	for _, b := range batches {
		for _, m := range b.Messages {
			assert.NotEqual(t, "Type here", m.Text)
		}
	}
}

func TestSession_FlushAndClose(t *testing.T) {
	pl, _, relay := newTestPipeline(t)
	u, _ := url.Parse("https://chatgpt.com/c/9")
	s := NewSession(context.Background(), u, pl, WithScheduler(&manualScheduler{}))

	_, err := s.Apply(context.Background(), parse(t, `<body><main></main></body>`))
	require.NoError(t, err)
	_, err = s.Apply(context.Background(), parse(t, `<body><main><div class="message">new</div></main></body>`))
	require.NoError(t, err)

	res, err := s.Flush(context.Background())
	require.NoError(t, err)
	require.Len(t, res.Messages, 1)
	assert.Equal(t, "chatgpt.com", relay.Batches()[0].Source)

	s.Close()
	_, err = s.Apply(context.Background(), parse(t, `<body></body>`))
	assert.ErrorIs(t, err, ErrSessionClosed)

	_, err = s.Apply(context.Background(), nil)
	assert.ErrorIs(t, err, ErrNilRoot)
}

func TestSessions(t *testing.T) {
	pl, _, _ := newTestPipeline(t)
	reg := NewSessions(context.Background(), pl, WithScheduler(&manualScheduler{}))

	a, err := reg.Get("https://claude.ai/chat/1")
	require.NoError(t, err)
	b, err := reg.Get("https://claude.ai/chat/1")
	require.NoError(t, err)
	assert.Same(t, a, b)

	c, err := reg.Get("https://claude.ai/chat/2")
	require.NoError(t, err)
	assert.NotSame(t, a, c)
	assert.Equal(t, []string{"claude.ai/chat/1", "claude.ai/chat/2"}, reg.Keys())

	_, err = reg.Get("not a url")
	assert.Error(t, err)
	_, err = reg.Get("://bad")
	assert.Error(t, err)

	require.NoError(t, reg.Close(context.Background()))
	assert.Empty(t, reg.Keys())
	_, err = a.Apply(context.Background(), parse(t, `<body></body>`))
	assert.ErrorIs(t, err, ErrSessionClosed)
}
