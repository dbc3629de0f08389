package config

import (
	_ "embed"
	"fmt"
	"strings"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"cuelang.org/go/cue/errors"
)

//go:embed schema.cue
var schemaSource []byte

// ValidationError lists every constraint the config violates.
type ValidationError struct {
	Problems []string
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	if len(e.Problems) == 1 {
		return "invalid config: " + e.Problems[0]
	}
	return fmt.Sprintf("invalid config: %d problems: %v", len(e.Problems), e.Problems)
}

// Validate checks c against the embedded schema.
func (c *Config) Validate() error {
	ctx := cuecontext.New()

	schema := ctx.CompileBytes(schemaSource, cue.Filename("schema.cue"))
	if err := schema.Err(); err != nil {
		return fmt.Errorf("compile config schema: %w", err)
	}
	def := schema.LookupPath(cue.ParsePath("#Config"))

	v := def.Unify(ctx.Encode(c.schemaValue()))
	if err := v.Validate(cue.Concrete(true)); err != nil {
		var problems []string
		for _, e := range errors.Errors(err) {
			format, args := e.Msg()
			problems = append(problems, strings.Join(e.Path(), ".")+": "+fmt.Sprintf(format, args...))
		}
		return &ValidationError{Problems: problems}
	}
	return nil
}

// schemaValue is c in the schema's shape.
func (c *Config) schemaValue() map[string]any {
	return map[string]any{
		"data_dir":       c.DataDir,
		"backup_dir":     c.BackupDir,
		"audit_log_path": c.AuditLogPath,
		"lock": map[string]any{
			"timeout":        int64(c.Lock.Timeout),
			"retry_interval": int64(c.Lock.RetryInterval),
		},
		"audit": map[string]any{
			"batch_size":    c.Audit.BatchSize,
			"flush_delay":   int64(c.Audit.FlushDelay),
			"retry_delay":   int64(c.Audit.RetryDelay),
			"default_actor": c.Audit.DefaultActor,
		},
	}
}
