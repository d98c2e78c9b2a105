package notify

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type captureSender struct {
	name   string
	err    error
	titles []string
}

func (c *captureSender) Send(_ context.Context, title, _ string) error {
	c.titles = append(c.titles, title)
	return c.err
}

func (c *captureSender) Name() string { return c.name }

type countingLimiter struct {
	allowed int
	err     error
	keys    []string
}

func (l *countingLimiter) Allow(_ context.Context, key string, limit int, _ time.Duration) (bool, error) {
	l.keys = append(l.keys, key)
	if l.err != nil {
		return false, l.err
	}
	if l.allowed >= limit {
		return false, nil
	}
	l.allowed++
	return true, nil
}

func TestNotifierFiltersEvents(t *testing.T) {
	s := &captureSender{name: "a"}
	n := NewNotifier([]Sender{s}, []string{"trading_disabled", " "}, discardLogger())

	require.NoError(t, n.Notify(context.Background(), "config_change", "t", "m"))
	assert.Empty(t, s.titles)

	require.NoError(t, n.Notify(context.Background(), "trading_disabled", "halt", "m"))
	assert.Equal(t, []string{"halt"}, s.titles)
}

func TestNotifierContinuesPastFailingSender(t *testing.T) {
	bad := &captureSender{name: "bad", err: errors.New("boom")}
	good := &captureSender{name: "good"}
	n := NewNotifier([]Sender{bad, good}, nil, discardLogger(), WithTitlePrefix("[bot-1] "))

	err := n.Notify(context.Background(), "any", "title", "m")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bad: boom")
	assert.Equal(t, []string{"[bot-1] title"}, good.titles)
}

func TestNotifierRateLimit(t *testing.T) {
	s := &captureSender{name: "a"}
	l := &countingLimiter{}
	n := NewNotifier([]Sender{s}, nil, discardLogger(), WithRateLimit(l, 2, time.Minute))

	for i := 0; i < 5; i++ {
		require.NoError(t, n.Notify(context.Background(), "unhedged_leg", "t", "m"))
	}
	assert.Len(t, s.titles, 2)
	assert.Equal(t, "notify:unhedged_leg", l.keys[0])

	l.err = errors.New("redis down")
	require.NoError(t, n.Notify(context.Background(), "unhedged_leg", "t", "m"))
	assert.Len(t, s.titles, 3)
}

func TestTelegramSender(t *testing.T) {
	var got map[string]any
	var path string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path = r.URL.Path
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	s := NewTelegramSender("tok", "42")
	s.baseURL = srv.URL
	require.NoError(t, s.Send(context.Background(), "Title", "body"))
	assert.Equal(t, "/bottok/sendMessage", path)
	assert.Equal(t, "42", got["chat_id"])
	assert.Equal(t, "*Title*\nbody", got["text"])
}

func TestTelegramSenderStatusError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "chat not found", http.StatusBadRequest)
	}))
	defer srv.Close()

	s := NewTelegramSender("tok", "42")
	s.baseURL = srv.URL
	err := s.Send(context.Background(), "t", "m")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "400")
}

func TestDiscordSender(t *testing.T) {
	var got map[string]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	s := NewDiscordSender(srv.URL)
	require.NoError(t, s.Send(context.Background(), "T", strings.Repeat("x", 3000)))
	assert.LessOrEqual(t, len(got["content"]), discordMaxLen)
	assert.True(t, strings.HasPrefix(got["content"], "**T**\n"))
	assert.True(t, strings.HasSuffix(got["content"], "..."))
}

func TestTruncateKeepsRunes(t *testing.T) {
	s := strings.Repeat("é", 10) // 20 bytes
	out := truncate(s, 8)
	assert.LessOrEqual(t, len(out), 8)
	assert.True(t, strings.HasSuffix(out, "..."))
	assert.Equal(t, s, truncate(s, 20))
}
