package etl

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/elastic/go-elasticsearch/v8"

	"github.com/kinohub/moviesearch/internal/config"
	"github.com/kinohub/moviesearch/pkg/backoff"
	"github.com/kinohub/moviesearch/pkg/logger"
)

// Loader writes documents to Elasticsearch. Ensure and bulk calls are wrapped
// in the shared retry policy independently, so a flaky sink is retried inside
// the tick before the error ever reaches the worker loop.
type Loader struct {
	client  *elasticsearch.Client
	journal *DeadLetterJournal
	policy  backoff.Policy
	log     *slog.Logger

	moviesIndex  string
	genresIndex  string
	personsIndex string
}

// NewLoader creates a sink writer using the index names from cfg.
func NewLoader(client *elasticsearch.Client, journal *DeadLetterJournal, cfg *config.Config, log *slog.Logger) *Loader {
	return &Loader{
		client:       client,
		journal:      journal,
		policy:       backoff.Default(),
		log:          log.With(logger.Scope("etl.sink")),
		moviesIndex:  cfg.Elastic.MoviesIndex,
		genresIndex:  cfg.Elastic.GenresIndex,
		personsIndex: cfg.Elastic.PersonsIndex,
	}
}

// EnsureMoviesIndex creates the movies index if it does not exist yet.
func (l *Loader) EnsureMoviesIndex(ctx context.Context) error {
	return l.ensureIndex(ctx, l.moviesIndex, moviesIndexBody)
}

// EnsureGenresIndex creates the genres index if it does not exist yet.
func (l *Loader) EnsureGenresIndex(ctx context.Context) error {
	return l.ensureIndex(ctx, l.genresIndex, genresIndexBody)
}

// EnsurePersonsIndex creates the persons index if it does not exist yet.
func (l *Loader) EnsurePersonsIndex(ctx context.Context) error {
	return l.ensureIndex(ctx, l.personsIndex, personsIndexBody)
}

func (l *Loader) ensureIndex(ctx context.Context, name, body string) error {
	return backoff.RetryNotify(ctx, l.policy, func() error {
		exists, err := l.indexExists(ctx, name)
		if err != nil {
			return err
		}
		if exists {
			l.log.Debug("index exists", slog.String("index", name))
			return nil
		}
		return l.createIndex(ctx, name, body)
	}, l.retryLogger("ensure index "+name))
}

func (l *Loader) indexExists(ctx context.Context, name string) (bool, error) {
	res, err := l.client.Indices.Exists([]string{name}, l.client.Indices.Exists.WithContext(ctx))
	if err != nil {
		return false, fmt.Errorf("check index %s: %w", name, err)
	}
	defer res.Body.Close()

	switch res.StatusCode {
	case 200:
		return true, nil
	case 404:
		return false, nil
	default:
		return false, fmt.Errorf("check index %s: unexpected status %s", name, res.Status())
	}
}

func (l *Loader) createIndex(ctx context.Context, name, body string) error {
	res, err := l.client.Indices.Create(name,
		l.client.Indices.Create.WithBody(strings.NewReader(body)),
		l.client.Indices.Create.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("create index %s: %w", name, err)
	}
	defer res.Body.Close()

	if res.IsError() {
		raw, _ := io.ReadAll(res.Body)
		// A concurrent writer won the creation race, which is fine.
		if bytes.Contains(raw, []byte("resource_already_exists_exception")) {
			l.log.Debug("index already created concurrently", slog.String("index", name))
			return nil
		}
		return fmt.Errorf("create index %s: %s: %s", name, res.Status(), raw)
	}

	l.log.Info("created index", slog.String("index", name))
	return nil
}

// BulkLoad submits the documents in a single bulk request against index.
// Documents rejected by the sink do not fail the call; they are logged,
// counted and appended to the dead letter journal while the rest of the batch
// stands. Zero documents is a no-op.
func (l *Loader) BulkLoad(ctx context.Context, index string, docs []Document) error {
	if len(docs) == 0 {
		l.log.Debug("no documents to load", slog.String("index", index))
		return nil
	}

	payload, byID, err := bulkPayload(index, docs)
	if err != nil {
		return err
	}

	var rejected []bulkItemError
	err = backoff.RetryNotify(ctx, l.policy, func() error {
		var attemptErr error
		rejected, attemptErr = l.submitBulk(ctx, index, payload)
		return attemptErr
	}, l.retryLogger("bulk load "+index))
	if err != nil {
		return err
	}

	DocumentsIndexed.WithLabelValues(index).Add(float64(len(docs) - len(rejected)))
	l.log.Info("bulk load complete",
		slog.String("index", index),
		slog.Int("documents", len(docs)-len(rejected)),
		slog.Int("rejected", len(rejected)))

	if len(rejected) == 0 {
		return nil
	}
	return l.reportRejected(index, rejected, byID)
}

type bulkAction struct {
	Index bulkActionMeta `json:"index"`
}

type bulkActionMeta struct {
	Index string `json:"_index"`
	ID    string `json:"_id"`
}

func bulkPayload(index string, docs []Document) ([]byte, map[string]Document, error) {
	var buf bytes.Buffer
	byID := make(map[string]Document, len(docs))

	for _, doc := range docs {
		meta, err := json.Marshal(bulkAction{Index: bulkActionMeta{Index: index, ID: doc.DocID()}})
		if err != nil {
			return nil, nil, fmt.Errorf("encode bulk action: %w", err)
		}
		source, err := json.Marshal(doc)
		if err != nil {
			return nil, nil, fmt.Errorf("encode document %s: %w", doc.DocID(), err)
		}
		buf.Write(meta)
		buf.WriteByte('\n')
		buf.Write(source)
		buf.WriteByte('\n')
		byID[doc.DocID()] = doc
	}
	return buf.Bytes(), byID, nil
}

type bulkItemError struct {
	ID     string
	Status int
	Reason string
}

type bulkResponse struct {
	Errors bool `json:"errors"`
	Items  []struct {
		Index struct {
			ID     string `json:"_id"`
			Status int    `json:"status"`
			Error  *struct {
				Type   string `json:"type"`
				Reason string `json:"reason"`
			} `json:"error"`
		} `json:"index"`
	} `json:"items"`
}

func (l *Loader) submitBulk(ctx context.Context, index string, payload []byte) ([]bulkItemError, error) {
	res, err := l.client.Bulk(bytes.NewReader(payload), l.client.Bulk.WithContext(ctx))
	if err != nil {
		return nil, fmt.Errorf("bulk load %s: %w", index, err)
	}
	defer res.Body.Close()

	if res.IsError() {
		raw, _ := io.ReadAll(res.Body)
		return nil, fmt.Errorf("bulk load %s: %s: %s", index, res.Status(), raw)
	}

	var body bulkResponse
	if err := json.NewDecoder(res.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("decode bulk response: %w", err)
	}
	if !body.Errors {
		return nil, nil
	}

	var rejected []bulkItemError
	for _, item := range body.Items {
		if item.Index.Status < 300 {
			continue
		}
		reason := "unknown"
		if item.Index.Error != nil {
			reason = item.Index.Error.Type + ": " + item.Index.Error.Reason
		}
		rejected = append(rejected, bulkItemError{
			ID:     item.Index.ID,
			Status: item.Index.Status,
			Reason: reason,
		})
	}
	return rejected, nil
}

// reportRejected logs the first rejections, updates counters and preserves
// every rejected document in the journal. A journal write failure does fail
// the call: losing rejected documents silently defeats its purpose.
func (l *Loader) reportRejected(index string, rejected []bulkItemError, byID map[string]Document) error {
	for i, item := range rejected {
		if i >= 3 {
			l.log.Warn("further bulk rejections suppressed",
				slog.String("index", index),
				slog.Int("remaining", len(rejected)-3))
			break
		}
		l.log.Warn("bulk item rejected",
			slog.String("index", index),
			slog.String("doc_id", item.ID),
			slog.Int("status", item.Status),
			slog.String("reason", item.Reason))
	}

	BulkItemErrors.WithLabelValues(index).Add(float64(len(rejected)))
	DeadLetterTotal.WithLabelValues(index).Add(float64(len(rejected)))

	entries := make([]DeadLetterEntry, 0, len(rejected))
	now := time.Now().UTC()
	for _, item := range rejected {
		entry := DeadLetterEntry{
			Index:    index,
			DocID:    item.ID,
			Reason:   item.Reason,
			FailedAt: now,
		}
		if doc, ok := byID[item.ID]; ok {
			if raw, err := json.Marshal(doc); err == nil {
				entry.Document = raw
			}
		}
		entries = append(entries, entry)
	}
	return l.journal.Append(entries...)
}

func (l *Loader) retryLogger(op string) func(error, time.Duration) {
	return func(err error, wait time.Duration) {
		l.log.Warn("sink operation failed, retrying",
			slog.String("op", op),
			slog.Duration("wait", wait),
			logger.Error(err))
	}
}
