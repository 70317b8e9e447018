package results

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"sync"
)

// TSVSink appends records to a text file as header/data line pairs.
type TSVSink struct {
	mu   sync.Mutex
	file *os.File
}

// OpenTSV opens path for appending, creating it if needed.
func OpenTSV(path string) (*TSVSink, error) {
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to open result file: %w", err)
	}
	return &TSVSink{file: f}, nil
}

func (s *TSVSink) Write(ctx context.Context, rec Record) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	w := bufio.NewWriter(s.file)
	for _, b := range rec.Blocks {
		header, data := b.Lines()
		fmt.Fprintln(w, header)
		fmt.Fprintln(w, data)
	}
	if err := w.Flush(); err != nil {
		return fmt.Errorf("failed to write results for %s: %w", rec.Image, err)
	}
	return nil
}

func (s *TSVSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.file.Close()
}
