package cli

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/folio/internal/engine"
)

func TestOutputFormatter_JSON(t *testing.T) {
	tests := []struct {
		name  string
		write func(f *OutputFormatter) error
		check func(t *testing.T, resp CLIResponse)
	}{
		{
			name:  "success",
			write: func(f *OutputFormatter) error { return f.Success(map[string]int{"pending": 2}) },
			check: func(t *testing.T, resp CLIResponse) {
				assert.Equal(t, "ok", resp.Status)
				assert.Equal(t, map[string]any{"pending": float64(2)}, resp.Data)
				assert.Nil(t, resp.Error)
			},
		},
		{
			name:  "error",
			write: func(f *OutputFormatter) error { return f.Error("OFFLINE", "backend unreachable", nil) },
			check: func(t *testing.T, resp CLIResponse) {
				assert.Equal(t, "error", resp.Status)
				require.NotNil(t, resp.Error)
				assert.Equal(t, "OFFLINE", resp.Error.Code)
				assert.Equal(t, "backend unreachable", resp.Error.Message)
				assert.Nil(t, resp.Error.Details)
			},
		},
		{
			name: "error with details",
			write: func(f *OutputFormatter) error {
				return f.Error("INVALID", "form skill_create", []string{"proficiency: must be at most 100"})
			},
			check: func(t *testing.T, resp CLIResponse) {
				require.NotNil(t, resp.Error)
				assert.Equal(t, []any{"proficiency: must be at most 100"}, resp.Error.Details)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			buf := &bytes.Buffer{}
			require.NoError(t, tt.write(&OutputFormatter{Format: "json", Writer: buf}))

			var resp CLIResponse
			require.NoError(t, json.Unmarshal(buf.Bytes(), &resp), buf.String())
			tt.check(t, resp)
		})
	}
}

func TestOutputFormatter_Text(t *testing.T) {
	buf := &bytes.Buffer{}
	f := &OutputFormatter{Format: "text", Writer: buf}

	require.NoError(t, f.Success("Outbox is empty."))
	require.NoError(t, f.Error("OFFLINE", "backend unreachable", "ignored unless verbose"))
	require.NoError(t, f.Emit(map[string]int{"pending": 2}, func(w io.Writer) error {
		_, err := io.WriteString(w, "2 queued\n")
		return err
	}))

	assert.Equal(t, "Outbox is empty.\nError [OFFLINE]: backend unreachable\n2 queued\n", buf.String())
}

func TestOutputFormatter_VerboseDetailsAndLog(t *testing.T) {
	out := &bytes.Buffer{}
	diag := &bytes.Buffer{}
	f := &OutputFormatter{Format: "json", Writer: out, ErrWriter: diag, Verbose: true}

	f.VerboseLog("replaying %s", "intent 3")
	assert.Equal(t, "replaying intent 3\n", diag.String())
	assert.Empty(t, out.String())

	text := &bytes.Buffer{}
	tf := &OutputFormatter{Format: "text", Writer: text, Verbose: true}
	require.NoError(t, tf.Error("INVALID", "form skill_create", "proficiency"))
	assert.Contains(t, text.String(), "Details: proficiency")

	quiet := &bytes.Buffer{}
	(&OutputFormatter{Writer: quiet}).VerboseLog("dropped")
	assert.Empty(t, quiet.String())
}

func TestPalette(t *testing.T) {
	off := NewPalette(false)
	assert.Equal(t, "ok", off.OK("ok"))
	assert.Equal(t, "bad", off.Bad("bad"))
	assert.Equal(t, "dim", off.Dim("dim"))

	on := NewPalette(true)
	assert.NotEqual(t, "warn", on.Warn("warn"))
	assert.Contains(t, on.Warn("warn"), "warn")
}

func TestGetExitCode(t *testing.T) {
	assert.Equal(t, ExitSuccess, GetExitCode(nil))
	assert.Equal(t, ExitFailure, GetExitCode(errors.New("boom")))
	assert.Equal(t, ExitCommandError, GetExitCode(fmt.Errorf("wrapped: %w", NewExitError(ExitCommandError, "bad flag"))))

	err := WrapExitError(ExitFailure, "sync paused", errors.New("REPLAY_REJECTED"))
	assert.Equal(t, "sync paused: REPLAY_REJECTED", err.Error())
	assert.EqualError(t, errors.Unwrap(err), "REPLAY_REJECTED")
}

func TestRenderStatus(t *testing.T) {
	buf := &bytes.Buffer{}
	st := engine.Status{Online: true, Text: "Online. Local mirror and database are in sync."}
	require.NoError(t, renderStatus(buf, NewPalette(false), st))
	assert.Equal(t, "Online. Local mirror and database are in sync.\n", buf.String())
}
