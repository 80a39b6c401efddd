// Package tools implements the service one-shot commands: each retrieval
// and LLM service gets a subcommand that runs a single operation from the
// shell and prints the result as JSON.
package tools

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
)

// readText resolves the text input for a one-shot: the -text flag wins,
// then the -file flag, then stdin.
func readText(flagText, flagFile string) (string, error) {
	if flagText != "" {
		return flagText, nil
	}
	if flagFile != "" {
		b, err := os.ReadFile(flagFile)
		if err != nil {
			return "", fmt.Errorf("reading %s: %w", flagFile, err)
		}
		return string(b), nil
	}
	b, err := io.ReadAll(os.Stdin)
	if err != nil {
		return "", fmt.Errorf("reading stdin: %w", err)
	}
	return string(b), nil
}

// printJSON renders v indented for the terminal.
func printJSON(v interface{}) (string, error) {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return "", err
	}
	return string(b), nil
}
