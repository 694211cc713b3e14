package cli

import "fmt"

// ConfigError reports an invalid or unloadable configuration. Field
// holds the dotted config path of the offending value when known.
type ConfigError struct {
	Field   string
	Message string
}

func (e *ConfigError) Error() string {
	if e.Field == "" {
		return "invalid configuration: " + e.Message
	}
	return fmt.Sprintf("invalid configuration at %s: %s", e.Field, e.Message)
}

// NewConfigError creates a ConfigError for the given config path.
func NewConfigError(field, message string) *ConfigError {
	return &ConfigError{Field: field, Message: message}
}

// CommandError wraps a failure from one subcommand run, prefixing the
// command name so multi-step wrappers stay attributable.
type CommandError struct {
	Command string
	Err     error
}

func (e *CommandError) Error() string {
	return fmt.Sprintf("%s: %v", e.Command, e.Err)
}

func (e *CommandError) Unwrap() error { return e.Err }

// NewCommandError wraps err as a CommandError.
func NewCommandError(command string, err error) *CommandError {
	return &CommandError{Command: command, Err: err}
}
