package watcher

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/hyperjump/shelf/internal/models"
)

const maxLineBytes = 4 << 20

// ReadBatchFile reads a JSONL file of records.
func ReadBatchFile(path string) ([]*models.RecordInput, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	inputs, err := ReadBatch(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return inputs, nil
}

// ReadBatch decodes one record per line. Blank lines are skipped; any
// malformed line fails the whole batch with ErrValidation.
func ReadBatch(r io.Reader) ([]*models.RecordInput, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), maxLineBytes)
	var out []*models.RecordInput
	line := 0
	for scanner.Scan() {
		line++
		text := strings.TrimSpace(scanner.Text())
		if text == "" {
			continue
		}
		var in models.RecordInput
		if err := json.Unmarshal([]byte(text), &in); err != nil {
			return nil, fmt.Errorf("line %d: %v: %w", line, err, models.ErrValidation)
		}
		out = append(out, &in)
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return out, nil
}
