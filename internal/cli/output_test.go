package cli

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/recordkeep/internal/backup"
	"github.com/roach88/recordkeep/internal/config"
	"github.com/roach88/recordkeep/internal/lock"
	"github.com/roach88/recordkeep/internal/recordstore"
)

func TestOutputFormatter_JSONSuccess(t *testing.T) {
	buf := &bytes.Buffer{}
	formatter := &OutputFormatter{Format: "json", Writer: buf}

	require.NoError(t, formatter.Success(map[string]string{"result": "success"}))

	var resp CLIResponse
	require.NoError(t, json.Unmarshal(buf.Bytes(), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.NotNil(t, resp.Data)
}

func TestOutputFormatter_JSONError(t *testing.T) {
	buf := &bytes.Buffer{}
	formatter := &OutputFormatter{Format: "json", Writer: buf}

	require.NoError(t, formatter.Error(ErrCodeIntegrity, "checksum mismatch", map[string]string{"file": "visitors.csv"}))

	var resp CLIResponse
	require.NoError(t, json.Unmarshal(buf.Bytes(), &resp))
	assert.Equal(t, "error", resp.Status)
	require.NotNil(t, resp.Error)
	assert.Equal(t, "E004", resp.Error.Code)
	assert.Equal(t, "checksum mismatch", resp.Error.Message)
	assert.NotNil(t, resp.Error.Details)
}

func TestOutputFormatter_TextUsesTexter(t *testing.T) {
	buf := &bytes.Buffer{}
	formatter := &OutputFormatter{Format: "text", Writer: buf}

	result := BackupResult{Files: []BackupFile{{Path: "b/visitors.csv", Bytes: 2048}, {Path: "b/audit.csv", Bytes: 10}}}
	require.NoError(t, formatter.Success(result))
	assert.Equal(t, "b/visitors.csv\nb/audit.csv\n", buf.String())

	buf.Reset()
	formatter.Verbose = true
	require.NoError(t, formatter.Success(result))
	assert.Equal(t, "b/visitors.csv (2.0 kB)\nb/audit.csv (10 B)\n", buf.String())
}

func TestOutputFormatter_TextFallsBackToPrintln(t *testing.T) {
	buf := &bytes.Buffer{}
	formatter := &OutputFormatter{Format: "text", Writer: buf}

	require.NoError(t, formatter.Success("done"))
	assert.Equal(t, "done\n", buf.String())
}

func TestOutputFormatter_TextError(t *testing.T) {
	buf := &bytes.Buffer{}
	formatter := &OutputFormatter{Format: "text", Writer: buf}

	require.NoError(t, formatter.Error("E001", "backup failed", "ignored when quiet"))
	assert.Equal(t, "Error [E001]: backup failed\n", buf.String())

	buf.Reset()
	formatter.Verbose = true
	require.NoError(t, formatter.Error("E001", "backup failed", "disk full"))
	assert.Contains(t, buf.String(), "Details: disk full")
}

func TestOutputFormatter_Fail(t *testing.T) {
	buf := &bytes.Buffer{}
	formatter := &OutputFormatter{Format: "text", Writer: buf}
	cause := &backup.IntegrityError{Path: "x.csv", Reason: "checksum sidecar missing"}

	err := formatter.Fail("restore failed", cause)

	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.ErrorIs(t, err, backup.ErrIntegrity)
	assert.Contains(t, buf.String(), "Error [E004]: restore failed: ")
}

func TestOutputFormatter_VerboseLog(t *testing.T) {
	tests := []struct {
		name    string
		verbose bool
		wantLog bool
	}{
		{"verbose_enabled", true, true},
		{"verbose_disabled", false, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out := &bytes.Buffer{}
			diag := &bytes.Buffer{}
			formatter := &OutputFormatter{Format: "json", Writer: out, ErrWriter: diag, Verbose: tt.verbose}

			formatter.VerboseLog("Verifying %s", "visitors.csv")

			assert.Empty(t, out.String(), "diagnostics never go to the JSON stream")
			if tt.wantLog {
				assert.Contains(t, diag.String(), "Verifying visitors.csv")
			} else {
				assert.Empty(t, diag.String())
			}
		})
	}
}

func TestErrorCode(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{"config", &config.ValidationError{Problems: []string{"x"}}, ErrCodeConfig},
		{"lock timeout", fmt.Errorf("write: %w", &lock.TimeoutError{Path: "a.json"}), ErrCodeLockTimeout},
		{"integrity", &backup.IntegrityError{Path: "a.csv"}, ErrCodeIntegrity},
		{"snapshot parse", &backup.ParseError{Path: "a.csv", Row: 2, Err: errors.New("bad")}, ErrCodeParse},
		{"collection parse", &recordstore.ParseError{Path: "a.json", Err: errors.New("bad")}, ErrCodeParse},
		{"io", &recordstore.IOError{Op: "rename", Path: "a.json", Err: errors.New("denied")}, ErrCodeIO},
		{"other", errors.New("boom"), ErrCodeGeneric},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ErrorCode(tt.err))
		})
	}
}

func TestGetExitCode(t *testing.T) {
	assert.Equal(t, ExitFailure, GetExitCode(errors.New("plain")))
	assert.Equal(t, 3, GetExitCode(fmt.Errorf("wrapped: %w", NewExitError(3, "custom"))))
	assert.Equal(t, "ctx: cause", WrapExitError(1, "ctx", errors.New("cause")).Error())
}
