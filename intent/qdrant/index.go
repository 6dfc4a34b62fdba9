// Package qdrant provides an intent.Index backed by a Qdrant collection, for
// deployments where the intent catalog is large or shared across processes.
package qdrant

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/qdrant/go-client/qdrant"

	"github.com/jupyter-naas/abi-sub005/intent"
	"github.com/jupyter-naas/abi-sub005/logging"
)

const payloadTextKey = "text"

// Options configure the Qdrant index.
type Options struct {
	Host       string
	Port       int
	APIKey     string
	UseTLS     bool
	Collection string
	// VectorSize is the embedding dimension used when the collection must be
	// created.
	VectorSize uint64
	Logger     logging.Logger
}

// Index stores intent phrase vectors in a Qdrant collection.
type Index struct {
	client     *qdrant.Client
	collection string
	logger     logging.Logger
}

// New connects to Qdrant and ensures the collection exists, creating it with
// cosine distance when missing.
func New(ctx context.Context, optFns ...func(o *Options)) (*Index, error) {
	opts := Options{
		Host:       "localhost",
		Port:       6334,
		Collection: "intents",
		VectorSize: 1536,
	}
	for _, fn := range optFns {
		fn(&opts)
	}

	client, err := qdrant.NewClient(&qdrant.Config{
		Host:   opts.Host,
		Port:   opts.Port,
		APIKey: opts.APIKey,
		UseTLS: opts.UseTLS,
	})
	if err != nil {
		return nil, fmt.Errorf("qdrant client: %w", err)
	}

	idx := &Index{
		client:     client,
		collection: opts.Collection,
		logger:     logging.OrNoOp(opts.Logger),
	}
	if err := idx.ensureCollection(ctx, opts.VectorSize); err != nil {
		return nil, err
	}
	return idx, nil
}

func (i *Index) ensureCollection(ctx context.Context, vectorSize uint64) error {
	exists, err := i.client.CollectionExists(ctx, i.collection)
	if err != nil {
		return fmt.Errorf("qdrant collection check: %w", err)
	}
	if exists {
		return nil
	}

	i.logger.Info("qdrant.collection.create", "collection", i.collection, "vector_size", vectorSize)
	err = i.client.CreateCollection(ctx, &qdrant.CreateCollection{
		CollectionName: i.collection,
		VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
			Size:     vectorSize,
			Distance: qdrant.Distance_Cosine,
		}),
	})
	if err != nil {
		return fmt.Errorf("qdrant collection create: %w", err)
	}
	return nil
}

// Add implements intent.Index.
func (i *Index) Add(ctx context.Context, texts []string, vectors [][]float32) error {
	if len(texts) != len(vectors) {
		return fmt.Errorf("qdrant index: %d texts but %d vectors", len(texts), len(vectors))
	}
	if len(texts) == 0 {
		return nil
	}

	points := make([]*qdrant.PointStruct, len(texts))
	for n, text := range texts {
		payload, err := qdrant.TryValueMap(map[string]any{payloadTextKey: text})
		if err != nil {
			return fmt.Errorf("qdrant payload: %w", err)
		}
		points[n] = &qdrant.PointStruct{
			Id:      qdrant.NewIDUUID(uuid.NewString()),
			Vectors: qdrant.NewVectorsDense(vectors[n]),
			Payload: payload,
		}
	}

	_, err := i.client.Upsert(ctx, &qdrant.UpsertPoints{
		CollectionName: i.collection,
		Wait:           qdrant.PtrOf(true),
		Points:         points,
	})
	if err != nil {
		return fmt.Errorf("qdrant upsert: %w", err)
	}
	return nil
}

// Search implements intent.Index.
func (i *Index) Search(ctx context.Context, vector []float32, k int) ([]intent.Hit, error) {
	if k <= 0 {
		return nil, nil
	}

	scored, err := i.client.Query(ctx, &qdrant.QueryPoints{
		CollectionName: i.collection,
		Query:          qdrant.NewQueryDense(vector),
		Limit:          qdrant.PtrOf(uint64(k)),
		WithPayload:    qdrant.NewWithPayload(true),
	})
	if err != nil {
		return nil, fmt.Errorf("qdrant query: %w", err)
	}

	hits := make([]intent.Hit, 0, len(scored))
	for _, point := range scored {
		text := point.GetPayload()[payloadTextKey].GetStringValue()
		if text == "" {
			continue
		}
		hits = append(hits, intent.Hit{Text: text, Score: float64(point.GetScore())})
	}
	return hits, nil
}
