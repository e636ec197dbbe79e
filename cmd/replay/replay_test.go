package main

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReplayOfflineText(t *testing.T) {
	in := strings.NewReader("{true, has_copd(j).}.~{false, has_autism(j).}.~How long?\n\nJust a reply\n")
	var out bytes.Buffer

	err := runReplay(context.Background(), in, &out, &replayOptions{delimiter: "~", format: "text"})
	require.NoError(t, err)

	got := out.String()
	assert.Contains(t, got, "line 1\n")
	assert.Contains(t, got, "ready    copd")
	assert.Contains(t, got, "has_copd(j).")
	assert.Contains(t, got, "pending")
	assert.Contains(t, got, "{false, has_autism(j).}.")
	assert.Contains(t, got, "reply    How long?")
	assert.Contains(t, got, "line 3\n")
	assert.Contains(t, got, "reply    Just a reply")
}

func TestReplayConversationLogWithSolver(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var literal string
		_ = json.NewDecoder(r.Body).Decode(&literal)
		if strings.HasPrefix(literal, "has_autism") {
			_, _ = io.WriteString(w, "Y = 5")
			return
		}
		_, _ = io.WriteString(w, "no models")
	}))
	defer srv.Close()

	log := strings.Join([]string{
		`{"ts":"2026-01-01T00:00:00Z","session_id":"s1","seq":1,"event_type":"user_message","content_raw":"hi"}`,
		`{"ts":"2026-01-01T00:00:01Z","session_id":"s1","seq":1,"event_type":"assistant_message","content_raw":"{true, has_autism(j).}.~Thanks."}`,
	}, "\n")
	var out bytes.Buffer

	err := runReplay(context.Background(), strings.NewReader(log), &out, &replayOptions{
		delimiter: "~",
		solverURL: srv.URL,
		fromLog:   true,
		format:    "json",
	})
	require.NoError(t, err)

	var rep report
	require.NoError(t, json.Unmarshal(out.Bytes(), &rep))
	assert.Equal(t, 2, rep.Line)
	assert.Equal(t, "s1", rep.SessionID)
	assert.Equal(t, "Thanks.", rep.Reply)
	require.Len(t, rep.Outcomes, 1)
	assert.Equal(t, "1", rep.Outcomes[0].Severity)
}

func TestReplayRejectsBadOptions(t *testing.T) {
	err := runReplay(context.Background(), strings.NewReader(""), io.Discard, &replayOptions{delimiter: "~~", format: "text"})
	assert.Error(t, err)

	err = runReplay(context.Background(), strings.NewReader(""), io.Discard, &replayOptions{delimiter: "~", format: "yaml"})
	assert.Error(t, err)

	err = runReplay(context.Background(), strings.NewReader("not json\n"), io.Discard, &replayOptions{delimiter: "~", format: "json", fromLog: true})
	assert.Error(t, err)
}

func TestRootCommandReadsStdin(t *testing.T) {
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetIn(strings.NewReader("{true, has_pneumonia(j).}.~ok\n"))
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"--format", "json"})

	require.NoError(t, cmd.Execute())
	assert.Contains(t, out.String(), `"literal":"has_pneumonia(j)."`)
}
