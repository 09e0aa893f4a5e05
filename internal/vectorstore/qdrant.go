package vectorstore

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"path/filepath"
	"strconv"

	"github.com/google/uuid"
	"github.com/qdrant/go-client/qdrant"

	"kbassist/internal/contextutil"
	"kbassist/internal/kb"
)

// Payload keys stored on every Qdrant point.
const (
	payloadText      = "text"
	payloadSource    = "source"
	payloadCategory  = "category"
	payloadFilename  = "filename"
	payloadStartLine = "start_line"
	payloadEndLine   = "end_line"
	payloadNorm      = "norm"
)

// qdrantBinding is the content of qdrant.json: the collection a persisted store lives in.
type qdrantBinding struct {
	Collection string `json:"collection"`
	VectorSize int    `json:"vector_size"`
	Points     int    `json:"points"`
}

// QdrantBackend builds stores backed by Qdrant collections. Every build writes
// into a fresh collection named "<base>_<id>", so the live store is never
// modified while a rebuild is in progress.
type QdrantBackend struct {
	client     *qdrant.Client
	base       string
	vectorSize int
	embedder   Embedder
	binding    Binding
	batchSize  int
}

// qdrantAddress derives the gRPC host and port from a Qdrant HTTP URL such as
// "http://localhost:6333". The gRPC port is the HTTP port + 1 (6334 by default).
func qdrantAddress(urlStr string) (string, int, error) {
	parsedURL, err := url.Parse(urlStr)
	if err != nil {
		return "", 0, fmt.Errorf("invalid Qdrant URL: %w", err)
	}

	host := parsedURL.Hostname()
	if host == "" {
		host = "localhost"
	}

	port := 6334
	if parsedURL.Port() != "" {
		if httpPort, err := strconv.Atoi(parsedURL.Port()); err == nil {
			port = httpPort + 1
		}
	}
	return host, port, nil
}

// NewQdrantBackend creates a Qdrant-backed backend. vectorSize must match the
// output size of the embedder.
func NewQdrantBackend(urlStr, baseCollection string, vectorSize int, embedder Embedder, binding Binding, batchSize int) (*QdrantBackend, error) {
	host, port, err := qdrantAddress(urlStr)
	if err != nil {
		return nil, err
	}

	client, err := qdrant.NewClient(&qdrant.Config{
		Host: host,
		Port: port,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create Qdrant client: %w", err)
	}

	binding.Dimension = vectorSize
	return &QdrantBackend{
		client:     client,
		base:       baseCollection,
		vectorSize: vectorSize,
		embedder:   embedder,
		binding:    binding,
		batchSize:  batchSize,
	}, nil
}

// Close closes the underlying client connection.
func (b *QdrantBackend) Close() error {
	return b.client.Close()
}

func (b *QdrantBackend) newCollectionName() string {
	return b.base + "_" + uuid.New().String()[:8]
}

// Build embeds texts into a new collection and returns a store bound to it.
// The collection is deleted again if any step fails.
func (b *QdrantBackend) Build(ctx context.Context, texts []string, metas []kb.ChunkMeta) (Store, error) {
	logger := contextutil.LoggerFromContext(ctx)

	if err := validateBuildInput(texts, metas); err != nil {
		return nil, err
	}

	vectors, err := embedAll(ctx, b.embedder, texts, b.batchSize)
	if err != nil {
		return nil, err
	}
	for i, v := range vectors {
		if len(v) != b.vectorSize {
			return nil, fmt.Errorf("embedding %d has size %d, expected %d", i, len(v), b.vectorSize)
		}
	}

	collection := b.newCollectionName()
	if err := b.createCollection(ctx, collection); err != nil {
		return nil, err
	}

	points := make([]*qdrant.PointStruct, len(texts))
	for i := range texts {
		points[i] = &qdrant.PointStruct{
			Id:      qdrant.NewID(uuid.New().String()),
			Vectors: qdrant.NewVectors(vectors[i]...),
			Payload: qdrant.NewValueMap(chunkPayload(texts[i], metas[i], norm(vectors[i]))),
		}
	}

	if err := b.upsert(ctx, collection, points); err != nil {
		if delErr := b.client.DeleteCollection(ctx, collection); delErr != nil {
			logger.WarnContext(ctx, "failed to delete partial collection", "collection", collection, "error", delErr)
		}
		return nil, err
	}

	logger.InfoContext(ctx, "built qdrant vector store", "collection", collection, "chunks", len(points))
	return &QdrantStore{backend: b, collection: collection, count: len(points)}, nil
}

// Load reopens the collection recorded in dir/qdrant.json.
func (b *QdrantBackend) Load(ctx context.Context, dir string) (Store, error) {
	var ref qdrantBinding
	if err := readJSON(filepath.Join(dir, QdrantFile), &ref); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	if ref.Collection == "" {
		return nil, fmt.Errorf("%s has no collection name", QdrantFile)
	}

	exists, err := b.client.CollectionExists(ctx, ref.Collection)
	if err != nil {
		return nil, fmt.Errorf("failed to check collection existence: %w", err)
	}
	if !exists {
		return nil, fmt.Errorf("collection %s: %w", ref.Collection, ErrNotFound)
	}

	exact := true
	count, err := b.client.Count(ctx, &qdrant.CountPoints{
		CollectionName: ref.Collection,
		Exact:          &exact,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to count points: %w", err)
	}

	checkBinding(ctx, dir, b.binding)

	contextutil.LoggerFromContext(ctx).InfoContext(ctx, "loaded qdrant vector store",
		"collection", ref.Collection, "chunks", count)
	return &QdrantStore{backend: b, collection: ref.Collection, count: int(count)}, nil
}

// createCollection creates a cosine-distance collection sized for the embedder.
func (b *QdrantBackend) createCollection(ctx context.Context, collection string) error {
	logger := contextutil.LoggerFromContext(ctx)

	logger.InfoContext(ctx, "creating collection", "collection", collection, "vector_size", b.vectorSize)
	err := b.client.CreateCollection(ctx, &qdrant.CreateCollection{
		CollectionName: collection,
		VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
			Size:     uint64(b.vectorSize),
			Distance: qdrant.Distance_Cosine,
		}),
	})
	if err != nil {
		return fmt.Errorf("failed to create collection: %w", err)
	}

	// Category filters match on this field.
	fieldType := qdrant.FieldType_FieldTypeKeyword
	wait := true
	if _, err := b.client.CreateFieldIndex(ctx, &qdrant.CreateFieldIndexCollection{
		CollectionName: collection,
		FieldName:      payloadCategory,
		FieldType:      &fieldType,
		Wait:           &wait,
	}); err != nil {
		logger.WarnContext(ctx, "failed to index category field", "collection", collection, "error", err)
	}
	return nil
}

// upsert writes points in batches, waiting for each batch to be applied.
func (b *QdrantBackend) upsert(ctx context.Context, collection string, points []*qdrant.PointStruct) error {
	logger := contextutil.LoggerFromContext(ctx)

	batchSize := b.batchSize
	if batchSize <= 0 {
		batchSize = len(points)
	}
	wait := true
	for start := 0; start < len(points); start += batchSize {
		end := min(start+batchSize, len(points))
		_, err := b.client.Upsert(ctx, &qdrant.UpsertPoints{
			CollectionName: collection,
			Wait:           &wait,
			Points:         points[start:end],
		})
		if err != nil {
			logger.ErrorContext(ctx, "failed to upsert points", "collection", collection, "count", end-start, "error", err)
			return fmt.Errorf("failed to upsert points: %w", err)
		}
	}
	logger.InfoContext(ctx, "upserted points", "collection", collection, "count", len(points))
	return nil
}

// QdrantStore is a store living in one Qdrant collection.
type QdrantStore struct {
	backend    *QdrantBackend
	collection string
	count      int
}

// Collection returns the name of the backing collection.
func (s *QdrantStore) Collection() string {
	return s.collection
}

// Len implements Store.
func (s *QdrantStore) Len() int {
	return s.count
}

// SimilaritySearch implements Store. The category set is applied as a
// MatchKeywords filter inside the query, before the limit.
func (s *QdrantStore) SimilaritySearch(ctx context.Context, query string, k int, categories []string) ([]kb.Chunk, error) {
	logger := contextutil.LoggerFromContext(ctx)

	if k <= 0 {
		return nil, fmt.Errorf("k must be greater than 0")
	}

	vectors, err := s.backend.embedder.EmbedTexts(ctx, []string{query})
	if err != nil {
		return nil, fmt.Errorf("failed to embed query: %w", err)
	}
	if len(vectors) != 1 {
		return nil, fmt.Errorf("expected 1 query embedding, got %d", len(vectors))
	}

	limit := uint64(k)
	req := &qdrant.QueryPoints{
		CollectionName: s.collection,
		Query:          qdrant.NewQuery(vectors[0]...),
		Limit:          &limit,
		Filter:         categoryFilter(categories),
		WithPayload:    qdrant.NewWithPayload(true),
		WithVectors:    qdrant.NewWithVectors(true),
	}

	points, err := s.backend.client.Query(ctx, req)
	if err != nil {
		logger.ErrorContext(ctx, "failed to search points", "collection", s.collection, "k", k, "error", err)
		return nil, fmt.Errorf("failed to search points: %w", err)
	}

	chunks := make([]kb.Chunk, 0, len(points))
	for _, p := range points {
		payload := convertPayloadToMap(p.GetPayload())
		chunk := chunkFromPayload(payload)
		chunk.ID = p.GetId().GetUuid()
		chunk.Score = p.GetScore()
		if v := p.GetVectors().GetVector(); v != nil {
			n, _ := payload[payloadNorm].(float64)
			chunk.Vector = rawVector(v.GetData(), n)
		}
		chunks = append(chunks, chunk)
	}

	logger.DebugContext(ctx, "qdrant search completed", "collection", s.collection, "k", k, "results", len(chunks))
	return chunks, nil
}

// Persist implements Store. Only the collection reference and embedding binding
// are written; the vectors stay in Qdrant.
func (s *QdrantStore) Persist(ctx context.Context, dir string) error {
	if err := mkdirAll(dir); err != nil {
		return err
	}
	ref := qdrantBinding{Collection: s.collection, VectorSize: s.backend.vectorSize, Points: s.count}
	if err := writeJSON(filepath.Join(dir, QdrantFile), ref); err != nil {
		return err
	}
	return writeJSON(filepath.Join(dir, BindingFile), s.backend.binding)
}

// Release implements Store by deleting the backing collection.
func (s *QdrantStore) Release(ctx context.Context) error {
	if err := s.backend.client.DeleteCollection(ctx, s.collection); err != nil {
		return fmt.Errorf("failed to delete collection %s: %w", s.collection, err)
	}
	contextutil.LoggerFromContext(ctx).InfoContext(ctx, "deleted collection", "collection", s.collection)
	return nil
}

// categoryFilter restricts a query to the given categories; nil means no restriction.
func categoryFilter(categories []string) *qdrant.Filter {
	if len(categories) == 0 {
		return nil
	}
	return &qdrant.Filter{
		Must: []*qdrant.Condition{
			qdrant.NewMatchKeywords(payloadCategory, categories...),
		},
	}
}

// chunkPayload also records the embedding's norm, since a cosine collection
// only keeps the unit vector.
func chunkPayload(text string, meta kb.ChunkMeta, vectorNorm float32) map[string]any {
	return map[string]any{
		payloadNorm:      float64(vectorNorm),
		payloadText:      text,
		payloadSource:    meta.Source,
		payloadCategory:  meta.Category,
		payloadFilename:  meta.Filename,
		payloadStartLine: meta.StartLine,
		payloadEndLine:   meta.EndLine,
	}
}

// rawVector scales a unit vector returned by Qdrant back to the embedder's
// output. Without a recorded norm it returns nil and the chunk is embedded again.
func rawVector(unit []float32, n float64) []float32 {
	if n <= 0 || len(unit) == 0 {
		return nil
	}
	out := make([]float32, len(unit))
	for i, x := range unit {
		out[i] = x * float32(n)
	}
	return out
}

func chunkFromPayload(payload map[string]any) kb.Chunk {
	str := func(key string) string {
		s, _ := payload[key].(string)
		return s
	}
	num := func(key string) int {
		switch v := payload[key].(type) {
		case int64:
			return int(v)
		case float64:
			return int(v)
		}
		return 0
	}
	return kb.Chunk{
		Text: str(payloadText),
		Meta: kb.ChunkMeta{
			Source:    str(payloadSource),
			Category:  str(payloadCategory),
			Filename:  str(payloadFilename),
			StartLine: num(payloadStartLine),
			EndLine:   num(payloadEndLine),
		},
	}
}

// convertPayloadToMap converts Qdrant payload to map[string]any.
func convertPayloadToMap(payload map[string]*qdrant.Value) map[string]any {
	result := make(map[string]any, len(payload))
	for k, v := range payload {
		if v == nil {
			continue
		}
		result[k] = convertValue(v)
	}
	return result
}

// convertValue converts a Qdrant Value to Go any type.
func convertValue(v *qdrant.Value) any {
	switch val := v.Kind.(type) {
	case *qdrant.Value_BoolValue:
		return val.BoolValue
	case *qdrant.Value_IntegerValue:
		return val.IntegerValue
	case *qdrant.Value_DoubleValue:
		return val.DoubleValue
	case *qdrant.Value_StringValue:
		return val.StringValue
	case *qdrant.Value_ListValue:
		list := make([]any, len(val.ListValue.Values))
		for i, item := range val.ListValue.Values {
			list[i] = convertValue(item)
		}
		return list
	case *qdrant.Value_StructValue:
		return convertPayloadToMap(val.StructValue.Fields)
	default:
		return nil
	}
}
