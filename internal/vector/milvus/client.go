package milvus

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/milvus-io/milvus-sdk-go/v2/client"
	"github.com/milvus-io/milvus-sdk-go/v2/entity"
	"go.uber.org/zap"

	"github.com/autoaid/backend/internal/vector"
	"github.com/autoaid/backend/pkg/logger"
)

// Client adapts a Milvus collection to the vector.Index contract.
type Client struct {
	client         client.Client
	collectionName string
	vectorDim      int
}

func NewClient(endpoint, collectionName string, vectorDim int) (*Client, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	c, err := client.NewGrpcClient(ctx, endpoint)
	if err != nil {
		return nil, fmt.Errorf("failed to create milvus client: %w", err)
	}

	logger.Info("Milvus client initialized",
		zap.String("endpoint", endpoint),
		zap.String("collection", collectionName),
	)

	return &Client{
		client:         c,
		collectionName: collectionName,
		vectorDim:      vectorDim,
	}, nil
}

func (m *Client) Close() error {
	return m.client.Close()
}

// EnsureCollection creates and loads the knowledge collection if missing.
func (m *Client) EnsureCollection(ctx context.Context) error {
	has, err := m.client.HasCollection(ctx, m.collectionName)
	if err != nil {
		return fmt.Errorf("failed to check collection: %w", err)
	}
	if has {
		logger.Info("Collection already exists", zap.String("collection", m.collectionName))
		return nil
	}

	schema := &entity.Schema{
		CollectionName: m.collectionName,
		Description:    "Vehicle knowledge document chunk embeddings",
		Fields: []*entity.Field{
			{
				Name:       "vector_id",
				DataType:   entity.FieldTypeVarChar,
				PrimaryKey: true,
				AutoID:     false,
				TypeParams: map[string]string{"max_length": "128"},
			},
			{
				Name:       "embedding",
				DataType:   entity.FieldTypeFloatVector,
				TypeParams: map[string]string{"dim": fmt.Sprintf("%d", m.vectorDim)},
			},
			{
				Name:       "content",
				DataType:   entity.FieldTypeVarChar,
				TypeParams: map[string]string{"max_length": "4096"},
			},
			{
				Name:       "document_id",
				DataType:   entity.FieldTypeVarChar,
				TypeParams: map[string]string{"max_length": "64"},
			},
			{
				Name:       "title",
				DataType:   entity.FieldTypeVarChar,
				TypeParams: map[string]string{"max_length": "256"},
			},
			{
				Name:       "source_type",
				DataType:   entity.FieldTypeVarChar,
				TypeParams: map[string]string{"max_length": "32"},
			},
			{
				Name:       "vehicle_make",
				DataType:   entity.FieldTypeVarChar,
				TypeParams: map[string]string{"max_length": "80"},
			},
			{
				Name:       "vehicle_model",
				DataType:   entity.FieldTypeVarChar,
				TypeParams: map[string]string{"max_length": "80"},
			},
			{
				Name:     "year_from",
				DataType: entity.FieldTypeInt64,
			},
			{
				Name:     "year_to",
				DataType: entity.FieldTypeInt64,
			},
			{
				Name:     "chunk_index",
				DataType: entity.FieldTypeInt64,
			},
		},
	}

	if err := m.client.CreateCollection(ctx, schema, entity.DefaultShardNumber); err != nil {
		return fmt.Errorf("failed to create collection: %w", err)
	}

	idx, err := entity.NewIndexIvfFlat(entity.L2, 1024)
	if err != nil {
		return fmt.Errorf("failed to build index params: %w", err)
	}
	if err := m.client.CreateIndex(ctx, m.collectionName, "embedding", idx, false); err != nil {
		return fmt.Errorf("failed to create index: %w", err)
	}

	if err := m.client.LoadCollection(ctx, m.collectionName, false); err != nil {
		return fmt.Errorf("failed to load collection: %w", err)
	}

	logger.Info("Collection created and loaded", zap.String("collection", m.collectionName))

	return nil
}

func (m *Client) Upsert(ctx context.Context, entries []vector.Entry) error {
	if len(entries) == 0 {
		return nil
	}

	ids := make([]string, len(entries))
	embeddings := make([][]float32, len(entries))
	contents := make([]string, len(entries))
	docIDs := make([]string, len(entries))
	titles := make([]string, len(entries))
	sourceTypes := make([]string, len(entries))
	makes := make([]string, len(entries))
	modelNames := make([]string, len(entries))
	yearFroms := make([]int64, len(entries))
	yearTos := make([]int64, len(entries))
	chunkIndexes := make([]int64, len(entries))

	for i, e := range entries {
		ids[i] = e.ID
		embeddings[i] = e.Vector
		contents[i] = e.Content
		docIDs[i] = e.DocumentID
		titles[i] = e.Title
		sourceTypes[i] = e.SourceType
		makes[i] = strings.ToLower(e.VehicleMake)
		modelNames[i] = strings.ToLower(e.VehicleModel)
		yearFroms[i] = e.YearFrom
		yearTos[i] = e.YearTo
		chunkIndexes[i] = e.ChunkIndex
	}

	_, err := m.client.Insert(
		ctx,
		m.collectionName,
		"",
		entity.NewColumnVarChar("vector_id", ids),
		entity.NewColumnFloatVector("embedding", m.vectorDim, embeddings),
		entity.NewColumnVarChar("content", contents),
		entity.NewColumnVarChar("document_id", docIDs),
		entity.NewColumnVarChar("title", titles),
		entity.NewColumnVarChar("source_type", sourceTypes),
		entity.NewColumnVarChar("vehicle_make", makes),
		entity.NewColumnVarChar("vehicle_model", modelNames),
		entity.NewColumnInt64("year_from", yearFroms),
		entity.NewColumnInt64("year_to", yearTos),
		entity.NewColumnInt64("chunk_index", chunkIndexes),
	)
	if err != nil {
		return fmt.Errorf("failed to insert entries: %w", err)
	}

	if err := m.client.Flush(ctx, m.collectionName, false); err != nil {
		return fmt.Errorf("failed to flush: %w", err)
	}

	logger.Info("Entries inserted into vector store", zap.Int("count", len(entries)))

	return nil
}

func (m *Client) Delete(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}

	quoted := make([]string, len(ids))
	for i, id := range ids {
		quoted[i] = fmt.Sprintf("%q", id)
	}
	expr := fmt.Sprintf("vector_id in [%s]", strings.Join(quoted, ", "))

	if err := m.client.Delete(ctx, m.collectionName, "", expr); err != nil {
		return fmt.Errorf("failed to delete entries: %w", err)
	}

	logger.Debug("Entries deleted from vector store", zap.Int("count", len(ids)))

	return nil
}

func (m *Client) Query(ctx context.Context, queryVector []float32, topK int) ([]vector.Match, error) {
	sp, _ := entity.NewIndexIvfFlatSearchParam(16)

	searchResult, err := m.client.Search(
		ctx,
		m.collectionName,
		[]string{},
		"",
		[]string{"vector_id", "content", "document_id", "title", "source_type", "vehicle_make", "vehicle_model", "chunk_index"},
		[]entity.Vector{entity.FloatVector(queryVector)},
		"embedding",
		entity.L2,
		topK,
		sp,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to search: %w", err)
	}

	matches := make([]vector.Match, 0)
	for _, sr := range searchResult {
		for i := 0; i < sr.ResultCount; i++ {
			id, _ := sr.Fields.GetColumn("vector_id").Get(i)
			content, _ := sr.Fields.GetColumn("content").Get(i)
			docID, _ := sr.Fields.GetColumn("document_id").Get(i)
			title, _ := sr.Fields.GetColumn("title").Get(i)
			sourceType, _ := sr.Fields.GetColumn("source_type").Get(i)
			vehicleMake, _ := sr.Fields.GetColumn("vehicle_make").Get(i)
			vehicleModel, _ := sr.Fields.GetColumn("vehicle_model").Get(i)
			chunkIndex, _ := sr.Fields.GetColumn("chunk_index").Get(i)

			matches = append(matches, vector.Match{
				ID:           id.(string),
				Content:      content.(string),
				DocumentID:   docID.(string),
				Title:        title.(string),
				SourceType:   sourceType.(string),
				VehicleMake:  vehicleMake.(string),
				VehicleModel: vehicleModel.(string),
				ChunkIndex:   chunkIndex.(int64),
				Distance:     float64(sr.Scores[i]),
			})
		}
	}

	logger.Debug("Vector search completed",
		zap.Int("topK", topK),
		zap.Int("results", len(matches)),
	)

	return matches, nil
}
