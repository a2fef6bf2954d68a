package wire

import (
	"encoding/json"
	"fmt"
)

// CommandRequest is sent from the bridge to the host executor.
type CommandRequest struct {
	Command   string          `json:"command"`
	Params    json.RawMessage `json:"params,omitempty"`
	AuthToken string          `json:"auth_token,omitempty"` // shared token for privileged commands
}

// NewRequest builds a CommandRequest, marshaling params to JSON.
// A nil params produces an empty object so handlers never see null.
func NewRequest(command string, params any) (*CommandRequest, error) {
	if params == nil {
		return &CommandRequest{Command: command, Params: json.RawMessage("{}")}, nil
	}
	raw, err := json.Marshal(params)
	if err != nil {
		return nil, fmt.Errorf("encoding params for %s: %w", command, err)
	}
	return &CommandRequest{Command: command, Params: raw}, nil
}

// CommandResult is sent from the host executor back to the bridge.
// Exactly one of Result or Error is populated, matching Success.
type CommandResult struct {
	Success bool            `json:"success"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   string          `json:"error,omitempty"`
}

// OK builds a successful result carrying v.
func OK(v any) *CommandResult {
	raw, err := json.Marshal(v)
	if err != nil {
		// A handler returned something unserializable; report it rather
		// than crash the dispatch loop.
		return Errorf("encoding result: %v", err)
	}
	return &CommandResult{Success: true, Result: raw}
}

// Errorf builds a failed result with a formatted message.
func Errorf(format string, args ...any) *CommandResult {
	return &CommandResult{Success: false, Error: fmt.Sprintf(format, args...)}
}

// Decode unmarshals the result payload into v. It fails on error results.
func (r *CommandResult) Decode(v any) error {
	if !r.Success {
		return fmt.Errorf("host error: %s", r.Error)
	}
	if isJSONNull(r.Result) {
		return nil
	}
	if err := json.Unmarshal(r.Result, v); err != nil {
		return fmt.Errorf("decoding result: %w", err)
	}
	return nil
}
