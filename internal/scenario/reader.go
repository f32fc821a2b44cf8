// Package scenario replays JSONL operation streams through the engine.
package scenario

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"clamm/internal/model"
)

// Step is an operation with its 1-based position in the stream.
type Step struct {
	Seq uint64
	Op  model.Operation
}

// Read parses and validates a JSONL stream. Blank lines are skipped but still count
// toward line numbers in errors; Seq counts operations only.
func Read(r io.Reader, v *Validator) ([]Step, error) {
	scanner := bufio.NewScanner(r)
	buf := make([]byte, 0, 64*1024)
	scanner.Buffer(buf, 10*1024*1024)

	var (
		steps []Step
		line  int
	)
	for scanner.Scan() {
		line++
		raw := bytes.TrimSpace(scanner.Bytes())
		if len(raw) == 0 {
			continue
		}

		var op model.Operation
		dec := json.NewDecoder(bytes.NewReader(raw))
		dec.DisallowUnknownFields()
		if err := dec.Decode(&op); err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		if v != nil {
			if err := v.Validate(op); err != nil {
				return nil, fmt.Errorf("line %d: %w", line, err)
			}
		}
		steps = append(steps, Step{Seq: uint64(len(steps) + 1), Op: op})
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("scan input: %w", err)
	}
	return steps, nil
}

// ReadFile is Read over a file path.
func ReadFile(path string, v *Validator) ([]Step, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open input: %w", err)
	}
	defer f.Close()
	return Read(f, v)
}
