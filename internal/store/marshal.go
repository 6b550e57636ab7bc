package store

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/roach88/sandcalc/internal/ir"
)

// marshalJSON encodes v as compact JSON TEXT with HTML escaping disabled.
func marshalJSON(v any) (string, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return "", err
	}
	// Encoder adds a trailing newline, remove it
	return string(bytes.TrimSuffix(buf.Bytes(), []byte{'\n'})), nil
}

// marshalArguments converts an argument list to JSON TEXT for storage.
// A nil list is stored as [].
func marshalArguments(args []ir.FunctionArgument) (string, error) {
	if args == nil {
		args = []ir.FunctionArgument{}
	}
	data, err := marshalJSON(args)
	if err != nil {
		return "", fmt.Errorf("marshal arguments: %w", err)
	}
	return data, nil
}

// marshalScenarios converts scenarios to JSON TEXT for storage.
// A nil list is stored as [].
func marshalScenarios(scenarios []ir.Scenario) (string, error) {
	if scenarios == nil {
		scenarios = []ir.Scenario{}
	}
	data, err := marshalJSON(scenarios)
	if err != nil {
		return "", fmt.Errorf("marshal scenarios: %w", err)
	}
	return data, nil
}

// unmarshalArguments parses stored JSON TEXT. Returns nil for an empty list.
func unmarshalArguments(data string) ([]ir.FunctionArgument, error) {
	var args []ir.FunctionArgument
	if err := json.Unmarshal([]byte(data), &args); err != nil {
		return nil, fmt.Errorf("unmarshal arguments: %w", err)
	}
	if len(args) == 0 {
		return nil, nil
	}
	return args, nil
}

// unmarshalScenarios parses stored JSON TEXT. Returns nil for an empty list.
func unmarshalScenarios(data string) ([]ir.Scenario, error) {
	var scenarios []ir.Scenario
	if err := json.Unmarshal([]byte(data), &scenarios); err != nil {
		return nil, fmt.Errorf("unmarshal scenarios: %w", err)
	}
	if len(scenarios) == 0 {
		return nil, nil
	}
	return scenarios, nil
}
