// Package qdrant stores annotation records in a Qdrant collection over gRPC.
package qdrant

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	pb "github.com/qdrant/go-client/qdrant"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"

	"github.com/kailas-cloud/clipsearch/internal/db"
	"github.com/kailas-cloud/clipsearch/internal/domain"
	"github.com/kailas-cloud/clipsearch/internal/domain/search/candidate"
)

// Payload keys of a stored point.
const (
	payloadCaption   = "caption"
	payloadImageID   = "image_id"
	payloadImagePath = "image_path"

	payloadRecords     = "records"
	payloadCompletedAt = "completed_at"
)

// The ingest marker lives in a companion collection as a single point.
const (
	metaSuffix  = "__meta"
	markerPoint = 1
)

// pointsAPI is the subset of pb.PointsClient the repository calls.
type pointsAPI interface {
	Upsert(ctx context.Context, in *pb.UpsertPoints, opts ...grpc.CallOption) (*pb.PointsOperationResponse, error)
	Search(ctx context.Context, in *pb.SearchPoints, opts ...grpc.CallOption) (*pb.SearchResponse, error)
	Count(ctx context.Context, in *pb.CountPoints, opts ...grpc.CallOption) (*pb.CountResponse, error)
	Get(ctx context.Context, in *pb.GetPoints, opts ...grpc.CallOption) (*pb.GetResponse, error)
}

// collectionsAPI is the subset of pb.CollectionsClient the repository calls.
type collectionsAPI interface {
	List(
		ctx context.Context, in *pb.ListCollectionsRequest, opts ...grpc.CallOption,
	) (*pb.ListCollectionsResponse, error)
	Create(
		ctx context.Context, in *pb.CreateCollection, opts ...grpc.CallOption,
	) (*pb.CollectionOperationResponse, error)
}

// Repo implements the same repository surface as the Redis record repo.
type Repo struct {
	conn        *grpc.ClientConn
	points      pointsAPI
	collections collectionsAPI
	cfg         domain.VectorConfig
	now         func() time.Time
}

// New connects to Qdrant at the given gRPC address.
func New(addr string, cfg domain.VectorConfig) (*Repo, error) {
	conn, err := grpc.NewClient(addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, fmt.Errorf("dial qdrant %s: %w", addr, err)
	}
	r := NewWithClients(pb.NewPointsClient(conn), pb.NewCollectionsClient(conn), cfg)
	r.conn = conn
	return r, nil
}

// NewWithClients builds a Repo over already constructed clients.
func NewWithClients(points pointsAPI, collections collectionsAPI, cfg domain.VectorConfig) *Repo {
	return &Repo{points: points, collections: collections, cfg: cfg, now: time.Now}
}

// Close closes the underlying gRPC connection, if any.
func (r *Repo) Close() error {
	if r.conn == nil {
		return nil
	}
	return r.conn.Close()
}

// Ping verifies the server answers a cheap request.
func (r *Repo) Ping(ctx context.Context) error {
	if _, err := r.collections.List(ctx, &pb.ListCollectionsRequest{}); err != nil {
		return fmt.Errorf("ping qdrant: %w", err)
	}
	return nil
}

// WaitForReady polls Ping until it succeeds or timeout elapses.
func (r *Repo) WaitForReady(ctx context.Context, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	ticker := time.NewTicker(500 * time.Millisecond)
	defer ticker.Stop()

	for {
		if err := r.Ping(ctx); err == nil {
			return nil
		}
		select {
		case <-ctx.Done():
			return fmt.Errorf("qdrant not ready after %v: %w", timeout, ctx.Err())
		case <-ticker.C:
		}
	}
}

// EnsureCollection creates the collection if it does not exist.
func (r *Repo) EnsureCollection(ctx context.Context, collection string) error {
	distance, err := toDistance(r.cfg.DistanceMetric)
	if err != nil {
		return err
	}
	return r.ensure(ctx, collection, uint64(r.cfg.Dimensions), distance)
}

func (r *Repo) ensure(ctx context.Context, name string, dims uint64, distance pb.Distance) error {
	exists, err := r.exists(ctx, name)
	if err != nil {
		return err
	}
	if exists {
		return nil
	}

	_, err = r.collections.Create(ctx, &pb.CreateCollection{
		CollectionName: name,
		VectorsConfig: &pb.VectorsConfig{
			Config: &pb.VectorsConfig_Params{
				Params: &pb.VectorParams{Size: dims, Distance: distance},
			},
		},
	})
	if err != nil {
		// a concurrent ingest may have won the race
		if status.Code(err) == codes.AlreadyExists {
			return nil
		}
		return fmt.Errorf("create collection %s: %w", name, err)
	}
	return nil
}

func (r *Repo) exists(ctx context.Context, name string) (bool, error) {
	list, err := r.collections.List(ctx, &pb.ListCollectionsRequest{})
	if err != nil {
		return false, fmt.Errorf("list collections: %w", err)
	}
	for _, c := range list.GetCollections() {
		if c.GetName() == name {
			return true, nil
		}
	}
	return false, nil
}

// UpsertBatch writes records as points keyed by their numeric annotation id.
func (r *Repo) UpsertBatch(ctx context.Context, collection string, records []domain.Record) error {
	if len(records) == 0 {
		return nil
	}

	points := make([]*pb.PointStruct, len(records))
	for i := range records {
		rec := &records[i]
		if err := rec.Validate(); err != nil {
			return err
		}
		if r.cfg.Dimensions > 0 && len(rec.Embedding) != r.cfg.Dimensions {
			return fmt.Errorf("record %s: embedding has %d dimensions, collection expects %d",
				rec.ID, len(rec.Embedding), r.cfg.Dimensions)
		}
		id, err := strconv.ParseUint(rec.ID, 10, 64)
		if err != nil {
			return fmt.Errorf("record %s: point id must be numeric: %w", rec.ID, err)
		}
		points[i] = &pb.PointStruct{
			Id: numID(id),
			Vectors: &pb.Vectors{
				VectorsOptions: &pb.Vectors_Vector{Vector: &pb.Vector{Data: rec.Embedding}},
			},
			Payload: map[string]*pb.Value{
				payloadCaption:   stringValue(rec.Caption),
				payloadImageID:   stringValue(rec.ImageID),
				payloadImagePath: stringValue(rec.ImagePath),
			},
		}
	}

	if err := r.upsert(ctx, collection, points); err != nil {
		return fmt.Errorf("upsert %d points into %s: %w", len(records), collection, err)
	}
	return nil
}

func (r *Repo) upsert(ctx context.Context, collection string, points []*pb.PointStruct) error {
	wait := true
	_, err := r.points.Upsert(ctx, &pb.UpsertPoints{
		CollectionName: collection,
		Wait:           &wait,
		Points:         points,
	})
	return notFound(collection, err)
}

// Count returns the exact number of stored points.
func (r *Repo) Count(ctx context.Context, collection string) (int, error) {
	exact := true
	resp, err := r.points.Count(ctx, &pb.CountPoints{CollectionName: collection, Exact: &exact})
	if err != nil {
		return 0, fmt.Errorf("count %s: %w", collection, notFound(collection, err))
	}
	return int(resp.GetResult().GetCount()), nil
}

// Query returns the n nearest points to vector. Cosine and dot scores are
// similarities and are converted to distances so callers sort ascending.
// Euclid scores are already distances.
func (r *Repo) Query(
	ctx context.Context, collection string, vector []float32, n int,
) ([]candidate.Candidate, error) {
	metric, err := toDistance(r.cfg.DistanceMetric)
	if err != nil {
		return nil, err
	}

	resp, err := r.points.Search(ctx, &pb.SearchPoints{
		CollectionName: collection,
		Vector:         vector,
		Limit:          uint64(n),
		WithPayload:    &pb.WithPayloadSelector{SelectorOptions: &pb.WithPayloadSelector_Enable{Enable: true}},
	})
	if err != nil {
		return nil, fmt.Errorf("query %s: %w", collection, notFound(collection, err))
	}

	out := make([]candidate.Candidate, 0, len(resp.GetResult()))
	for _, p := range resp.GetResult() {
		payload := p.GetPayload()
		out = append(out, candidate.Candidate{
			ImageID:   payload[payloadImageID].GetStringValue(),
			ImagePath: payload[payloadImagePath].GetStringValue(),
			Caption:   payload[payloadCaption].GetStringValue(),
			Distance:  scoreToDistance(metric, p.GetScore()),
		})
	}
	return out, nil
}

// IngestMarker returns the completed-ingestion marker, or nil if absent.
func (r *Repo) IngestMarker(ctx context.Context, collection string) (*domain.IngestMarker, error) {
	resp, err := r.points.Get(ctx, &pb.GetPoints{
		CollectionName: collection + metaSuffix,
		Ids:            []*pb.PointId{numID(markerPoint)},
		WithPayload:    &pb.WithPayloadSelector{SelectorOptions: &pb.WithPayloadSelector_Enable{Enable: true}},
	})
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return nil, nil
		}
		return nil, fmt.Errorf("get marker %s: %w", collection, err)
	}
	if len(resp.GetResult()) == 0 {
		return nil, nil
	}

	payload := resp.GetResult()[0].GetPayload()
	m := &domain.IngestMarker{Records: int(payload[payloadRecords].GetIntegerValue())}
	if ts := payload[payloadCompletedAt].GetStringValue(); ts != "" {
		t, err := time.Parse(time.RFC3339Nano, ts)
		if err != nil {
			return nil, fmt.Errorf("parse marker %s: %w", collection, err)
		}
		m.CompletedAt = t
	}
	return m, nil
}

// MarkIngested writes the completed-ingestion marker.
func (r *Repo) MarkIngested(ctx context.Context, collection string, records int) error {
	meta := collection + metaSuffix
	if err := r.ensure(ctx, meta, 1, pb.Distance_Cosine); err != nil {
		return fmt.Errorf("ensure marker collection: %w", err)
	}

	point := &pb.PointStruct{
		Id: numID(markerPoint),
		Vectors: &pb.Vectors{
			VectorsOptions: &pb.Vectors_Vector{Vector: &pb.Vector{Data: []float32{1}}},
		},
		Payload: map[string]*pb.Value{
			payloadRecords:     {Kind: &pb.Value_IntegerValue{IntegerValue: int64(records)}},
			payloadCompletedAt: stringValue(r.now().UTC().Format(time.RFC3339Nano)),
		},
	}
	if err := r.upsert(ctx, meta, []*pb.PointStruct{point}); err != nil {
		return fmt.Errorf("set marker %s: %w", collection, err)
	}
	return nil
}

// toDistance maps a configured metric name to the Qdrant distance.
// An empty name means cosine.
func toDistance(metric string) (pb.Distance, error) {
	if metric == "" {
		return pb.Distance_Cosine, nil
	}
	m, err := db.ParseDistanceMetric(metric)
	if err != nil {
		return 0, err
	}
	switch m {
	case db.DistanceL2:
		return pb.Distance_Euclid, nil
	case db.DistanceIP:
		return pb.Distance_Dot, nil
	default:
		return pb.Distance_Cosine, nil
	}
}

func scoreToDistance(metric pb.Distance, score float32) float64 {
	if metric == pb.Distance_Euclid {
		return float64(score)
	}
	return 1 - float64(score)
}

// notFound maps a gRPC NotFound status to domain.ErrCollectionNotFound.
func notFound(collection string, err error) error {
	if err == nil {
		return nil
	}
	if status.Code(err) == codes.NotFound {
		return errors.Join(fmt.Errorf("%s: %w", collection, domain.ErrCollectionNotFound), err)
	}
	return err
}

func numID(id uint64) *pb.PointId {
	return &pb.PointId{PointIdOptions: &pb.PointId_Num{Num: id}}
}

func stringValue(s string) *pb.Value {
	return &pb.Value{Kind: &pb.Value_StringValue{StringValue: s}}
}
