package vectorstore

import (
	"context"
	"fmt"

	"github.com/qdrant/go-client/qdrant"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"
	"google.golang.org/grpc"
)

// Tracer for OpenTelemetry instrumentation.
var tracer = otel.Tracer("botd.vectorstore.qdrant")

// QdrantConfig holds configuration for the Qdrant gRPC client.
type QdrantConfig struct {
	// Host is the Qdrant server hostname or IP address.
	Host string

	// Port is the Qdrant gRPC port (6334, NOT the HTTP REST port 6333).
	Port int

	// APIKey authenticates against Qdrant Cloud or secured instances.
	APIKey string

	// UseTLS enables TLS for the gRPC connection.
	UseTLS bool

	// MaxMessageSize is the maximum gRPC message size in bytes.
	// Defaults to 50MB to handle large ingestion batches.
	MaxMessageSize int
}

// Validate validates the configuration.
func (c QdrantConfig) Validate() error {
	if c.Host == "" {
		return fmt.Errorf("%w: host required", ErrInvalidConfig)
	}
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("%w: invalid port: %d", ErrInvalidConfig, c.Port)
	}
	return nil
}

// ApplyDefaults sets default values for unset fields.
func (c *QdrantConfig) ApplyDefaults() {
	if c.MaxMessageSize == 0 {
		c.MaxMessageSize = 50 * 1024 * 1024
	}
}

// QdrantStore is a Store implementation over Qdrant's native gRPC client.
// The client handle is shared by all in-flight requests; its operations
// are safe for concurrent use.
type QdrantStore struct {
	client qdrantClient
	logger *zap.Logger
}

// qdrantClient is the subset of the Qdrant client the store uses,
// extracted so tests can substitute a fake.
type qdrantClient interface {
	CollectionExists(ctx context.Context, collectionName string) (bool, error)
	CreateCollection(ctx context.Context, request *qdrant.CreateCollection) error
	CreateFieldIndex(ctx context.Context, request *qdrant.CreateFieldIndexCollection) (*qdrant.UpdateResult, error)
	Upsert(ctx context.Context, request *qdrant.UpsertPoints) (*qdrant.UpdateResult, error)
	Query(ctx context.Context, request *qdrant.QueryPoints) ([]*qdrant.ScoredPoint, error)
	Delete(ctx context.Context, request *qdrant.DeletePoints) (*qdrant.UpdateResult, error)
	ListCollections(ctx context.Context) ([]string, error)
	HealthCheck(ctx context.Context) (*qdrant.HealthCheckReply, error)
	Close() error
}

var _ qdrantClient = (*qdrant.Client)(nil)

// NewQdrantStore creates a QdrantStore. The gRPC connection is
// established lazily; call Init before first use and Health to probe
// connectivity.
func NewQdrantStore(cfg QdrantConfig, logger *zap.Logger) (*QdrantStore, error) {
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	client, err := qdrant.NewClient(&qdrant.Config{
		Host:   cfg.Host,
		Port:   cfg.Port,
		APIKey: cfg.APIKey,
		UseTLS: cfg.UseTLS,
		GrpcOptions: []grpc.DialOption{
			grpc.WithDefaultCallOptions(
				grpc.MaxCallRecvMsgSize(cfg.MaxMessageSize),
				grpc.MaxCallSendMsgSize(cfg.MaxMessageSize),
			),
		},
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrConnectionFailed, err)
	}

	return &QdrantStore{
		client: client,
		logger: logger.Named("vectorstore"),
	}, nil
}

// Close closes the gRPC connection.
func (s *QdrantStore) Close() error {
	return s.client.Close()
}

// Init creates each collection only if absent and attaches a keyword
// index on the bot_id payload field. Re-running on an initialized store
// is a no-op per collection.
func (s *QdrantStore) Init(ctx context.Context) error {
	ctx, span := tracer.Start(ctx, "QdrantStore.Init")
	defer span.End()

	for name, size := range allCollections() {
		exists, err := s.client.CollectionExists(ctx, name)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			return fmt.Errorf("checking collection %s: %w", name, err)
		}
		if exists {
			s.logger.Debug("collection already exists", zap.String("collection", name))
			continue
		}

		s.logger.Info("creating collection",
			zap.String("collection", name),
			zap.Uint64("vector_size", size),
		)
		err = s.client.CreateCollection(ctx, &qdrant.CreateCollection{
			CollectionName: name,
			VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
				Size:     size,
				Distance: qdrant.Distance_Cosine,
			}),
		})
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			return fmt.Errorf("creating collection %s: %w", name, err)
		}

		_, err = s.client.CreateFieldIndex(ctx, &qdrant.CreateFieldIndexCollection{
			CollectionName: name,
			FieldName:      PayloadBotID,
			FieldType:      qdrant.FieldType_FieldTypeKeyword.Enum(),
		})
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			return fmt.Errorf("creating %s index on %s: %w", PayloadBotID, name, err)
		}
	}

	span.SetStatus(codes.Ok, "initialized")
	return nil
}

// Upsert writes records into the collection matching the batch's
// dimensionality. All vectors in one call must share a dimensionality.
func (s *QdrantStore) Upsert(ctx context.Context, botID string, records []Record) error {
	ctx, span := tracer.Start(ctx, "QdrantStore.Upsert")
	defer span.End()

	if len(records) == 0 {
		return ErrEmptyBatch
	}

	dimension := len(records[0].Vector)
	collection, err := collectionFor(dimension)
	if err != nil {
		return err
	}
	span.SetAttributes(
		attribute.String("collection", collection),
		attribute.Int("record_count", len(records)),
	)

	points := make([]*qdrant.PointStruct, len(records))
	for i, rec := range records {
		if len(rec.Vector) != dimension {
			return fmt.Errorf("%w: record %d has dimension %d, batch has %d",
				ErrDimensionMismatch, i, len(rec.Vector), dimension)
		}

		payload := toQdrantPayload(rec.Payload)
		payload[PayloadBotID] = toQdrantValue(botID)

		points[i] = &qdrant.PointStruct{
			Id:      qdrant.NewIDUUID(rec.ID),
			Vectors: qdrant.NewVectors(rec.Vector...),
			Payload: payload,
		}
	}

	if _, err := s.client.Upsert(ctx, &qdrant.UpsertPoints{
		CollectionName: collection,
		Points:         points,
	}); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("upserting %d points to %s: %w", len(points), collection, err)
	}

	s.logger.Info("upserted vectors",
		zap.String("collection", collection),
		zap.String("bot_id", botID),
		zap.Int("count", len(points)),
	)
	span.SetStatus(codes.Ok, "success")
	return nil
}

// Search queries the collection matching the vector's dimensionality,
// always filtered by exact bot_id match.
func (s *QdrantStore) Search(ctx context.Context, botID string, vector []float32, limit int, threshold float32) ([]ScoredChunk, error) {
	ctx, span := tracer.Start(ctx, "QdrantStore.Search")
	defer span.End()

	collection, err := collectionFor(len(vector))
	if err != nil {
		return nil, err
	}
	if limit <= 0 {
		return nil, fmt.Errorf("limit must be positive, got %d", limit)
	}
	span.SetAttributes(
		attribute.String("collection", collection),
		attribute.Int("limit", limit),
	)

	points, err := s.client.Query(ctx, &qdrant.QueryPoints{
		CollectionName: collection,
		Query:          qdrant.NewQuery(vector...),
		Filter:         botFilter(botID),
		Limit:          qdrant.PtrOf(uint64(limit)),
		ScoreThreshold: qdrant.PtrOf(threshold),
		WithPayload:    qdrant.NewWithPayload(true),
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("searching %s: %w", collection, err)
	}

	chunks := make([]ScoredChunk, len(points))
	for i, point := range points {
		chunks[i] = ScoredChunk{
			ID:      pointIDString(point.Id),
			Score:   point.Score,
			Payload: fromQdrantPayload(point.Payload),
		}
	}

	span.SetAttributes(attribute.Int("results", len(chunks)))
	span.SetStatus(codes.Ok, "success")
	return chunks, nil
}

// DeleteTenant removes the bot's vectors from every known collection.
// Collections that do not exist yet are skipped, and a failure against
// one collection does not abort cleanup of the others.
func (s *QdrantStore) DeleteTenant(ctx context.Context, botID string) error {
	ctx, span := tracer.Start(ctx, "QdrantStore.DeleteTenant")
	defer span.End()
	span.SetAttributes(attribute.String("bot_id", botID))

	for name := range allCollections() {
		exists, err := s.client.CollectionExists(ctx, name)
		if err != nil || !exists {
			continue
		}

		_, err = s.client.Delete(ctx, &qdrant.DeletePoints{
			CollectionName: name,
			Points: &qdrant.PointsSelector{
				PointsSelectorOneOf: &qdrant.PointsSelector_Filter{
					Filter: botFilter(botID),
				},
			},
		})
		if err != nil {
			// Best-effort cleanup: record and keep going.
			s.logger.Warn("failed to delete tenant vectors",
				zap.String("collection", name),
				zap.String("bot_id", botID),
				zap.Error(err),
			)
			span.RecordError(err)
			continue
		}
		s.logger.Info("deleted tenant vectors",
			zap.String("collection", name),
			zap.String("bot_id", botID),
		)
	}

	span.SetStatus(codes.Ok, "success")
	return nil
}

// Health probes connectivity. Failures are captured in the returned
// status, never raised.
func (s *QdrantStore) Health(ctx context.Context) HealthStatus {
	ctx, span := tracer.Start(ctx, "QdrantStore.Health")
	defer span.End()

	if _, err := s.client.HealthCheck(ctx); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return HealthStatus{Healthy: false, Error: err.Error()}
	}

	collections, err := s.client.ListCollections(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return HealthStatus{Healthy: false, Error: err.Error()}
	}

	span.SetStatus(codes.Ok, "healthy")
	return HealthStatus{Healthy: true, Collections: len(collections)}
}

// botFilter builds the exact-match tenant filter applied to every search
// and delete.
func botFilter(botID string) *qdrant.Filter {
	return &qdrant.Filter{
		Must: []*qdrant.Condition{
			{
				ConditionOneOf: &qdrant.Condition_Field{
					Field: &qdrant.FieldCondition{
						Key: PayloadBotID,
						Match: &qdrant.Match{
							MatchValue: &qdrant.Match_Keyword{Keyword: botID},
						},
					},
				},
			},
		},
	}
}

var _ Store = (*QdrantStore)(nil)
