package main

import (
	"encoding/json"
	"fmt"
)

// printJSON writes v to stdout as indented JSON, the only output format
// this CLI produces — it is meant to be piped into jq or another process,
// not read as a human report.
func printJSON(v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return runtimeErr(fmt.Errorf("encoding output: %w", err))
	}
	fmt.Println(string(data))
	return nil
}
