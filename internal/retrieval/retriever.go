// Package retrieval turns a question into a short ranked list of passages
// from a pre-built chromem-go index.
//
// The index is read-only here: it must already exist on disk, hold the named
// collection, and have been built with the same embedding model that the
// EmbeddingFunc passed to New queries. A mismatched model does not error, it
// only degrades relevance.
package retrieval

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	chromem "github.com/philippgille/chromem-go"
)

// DefaultK is the number of passages returned when the caller passes k <= 0.
const DefaultK = 3

var (
	ErrIndexNotFound      = errors.New("vector index directory not found")
	ErrCollectionNotFound = errors.New("vector collection not found")
)

// Status says how a search ended.
type Status int

const (
	// StatusOK means the index answered; Passages may still be empty.
	StatusOK Status = iota
	// StatusDegraded means the search failed and Passages is empty.
	StatusDegraded
)

func (s Status) String() string {
	switch s {
	case StatusOK:
		return "ok"
	case StatusDegraded:
		return "degraded"
	default:
		return fmt.Sprintf("status(%d)", int(s))
	}
}

// Result carries passage contents in the index's ranking order.
// Err is set only when Status is StatusDegraded.
type Result struct {
	Passages []string
	Status   Status
	Err      error
}

// Retriever queries one collection.
type Retriever struct {
	collection *chromem.Collection
	embed      chromem.EmbeddingFunc
}

// New opens the persistent index at path and binds the named collection.
// A missing directory or collection is fatal for the caller.
func New(path, collection string, embed chromem.EmbeddingFunc) (*Retriever, error) {
	info, err := os.Stat(path)
	if err != nil || !info.IsDir() {
		return nil, fmt.Errorf("%w: %s", ErrIndexNotFound, path)
	}

	db, err := chromem.NewPersistentDB(path, false)
	if err != nil {
		return nil, fmt.Errorf("open vector index: %w", err)
	}

	col := db.GetCollection(collection, embed)
	if col == nil {
		return nil, fmt.Errorf("%w: %q at %s", ErrCollectionNotFound, collection, path)
	}

	slog.Info("vector collection connected", "collection", collection, "documents", col.Count())
	return NewFromCollection(col, embed), nil
}

// NewFromCollection wraps an already opened collection.
func NewFromCollection(col *chromem.Collection, embed chromem.EmbeddingFunc) *Retriever {
	return &Retriever{collection: col, embed: embed}
}

// Count returns the number of indexed documents.
func (r *Retriever) Count() int {
	return r.collection.Count()
}

// Search embeds query and returns up to k passage contents, most similar
// first. It never fails the caller: any error, including a panic in the
// embedding backend, yields an empty degraded Result.
func (r *Retriever) Search(ctx context.Context, query string, k int) (res Result) {
	defer func() {
		if p := recover(); p != nil {
			res = degraded(fmt.Errorf("search panicked: %v", p))
		}
	}()

	if k <= 0 {
		k = DefaultK
	}

	vector, err := r.embed(ctx, query)
	if err != nil {
		return degraded(fmt.Errorf("embed query: %w", err))
	}

	// chromem rejects nResults above the document count
	if count := r.collection.Count(); k > count {
		k = count
	}
	if k == 0 {
		return Result{Status: StatusOK}
	}

	docs, err := r.collection.QueryEmbedding(ctx, vector, k, nil, nil)
	if err != nil {
		return degraded(fmt.Errorf("query collection: %w", err))
	}

	passages := make([]string, 0, len(docs))
	for _, doc := range docs {
		passages = append(passages, doc.Content)
	}
	return Result{Passages: passages, Status: StatusOK}
}

func degraded(err error) Result {
	slog.Warn("retrieval degraded to empty context", "err", err)
	return Result{Status: StatusDegraded, Err: err}
}
