package etl

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/kinohub/moviesearch/pkg/logger"
)

// DeadLetterEntry records one document the sink rejected during a bulk load.
// The watermark advances past rejected documents, so the journal is the only
// place they survive until an operator replays or discards them.
type DeadLetterEntry struct {
	Index    string          `json:"index"`
	DocID    string          `json:"doc_id"`
	Reason   string          `json:"reason"`
	Document json.RawMessage `json:"document,omitempty"`
	FailedAt time.Time       `json:"failed_at"`
}

// DeadLetterJournal appends rejected documents to a JSON-lines file, one
// entry per line.
type DeadLetterJournal struct {
	path string
	log  *slog.Logger
	mu   sync.Mutex
}

func NewDeadLetterJournal(path string, log *slog.Logger) *DeadLetterJournal {
	return &DeadLetterJournal{
		path: path,
		log:  log.With(logger.Scope("etl.deadletter")),
	}
}

// Append writes the entries to the journal. The file is opened in append mode
// per call so an external rotation never holds a stale handle.
func (j *DeadLetterJournal) Append(entries ...DeadLetterEntry) error {
	if len(entries) == 0 {
		return nil
	}

	j.mu.Lock()
	defer j.mu.Unlock()

	file, err := os.OpenFile(j.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open dead letter journal %s: %w", j.path, err)
	}
	defer file.Close()

	enc := json.NewEncoder(file)
	for _, entry := range entries {
		if err := enc.Encode(entry); err != nil {
			return fmt.Errorf("append dead letter entry: %w", err)
		}
	}

	j.log.Warn("documents sent to dead letter journal",
		slog.Int("count", len(entries)),
		slog.String("path", j.path))
	return nil
}

// Load reads every entry currently in the journal. Missing file means no
// entries. Used by diagnostics and tests; the ETL itself only appends.
func (j *DeadLetterJournal) Load() ([]DeadLetterEntry, error) {
	j.mu.Lock()
	defer j.mu.Unlock()

	file, err := os.Open(j.path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("open dead letter journal %s: %w", j.path, err)
	}
	defer file.Close()

	var entries []DeadLetterEntry
	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var entry DeadLetterEntry
		if err := json.Unmarshal(line, &entry); err != nil {
			return nil, fmt.Errorf("decode dead letter entry: %w", err)
		}
		entries = append(entries, entry)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read dead letter journal %s: %w", j.path, err)
	}
	return entries, nil
}
