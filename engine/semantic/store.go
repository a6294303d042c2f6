package semantic

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	pb "github.com/qdrant/go-client/qdrant"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/mealscout/mealscout/engine/domain"
)

// Payload keys. cuisine_type and calories_per_serving are the filterable fields.
const (
	keyID          = "id"
	keyName        = "name"
	keyDescription = "description"
	keyCuisine     = "cuisine_type"
	keyCalories    = "calories_per_serving"
	keyIngredients = "ingredients"
	keyBenefits    = "health_benefits"
	keyMethod      = "cooking_method"
	keyTaste       = "taste_profile"
	keyFeatures    = "features"
)

// pointsAPI is the subset of pb.PointsClient the store uses.
type pointsAPI interface {
	Upsert(ctx context.Context, in *pb.UpsertPoints, opts ...grpc.CallOption) (*pb.PointsOperationResponse, error)
	Search(ctx context.Context, in *pb.SearchPoints, opts ...grpc.CallOption) (*pb.SearchResponse, error)
	Count(ctx context.Context, in *pb.CountPoints, opts ...grpc.CallOption) (*pb.CountResponse, error)
}

// collectionsAPI is the subset of pb.CollectionsClient the store uses.
type collectionsAPI interface {
	List(ctx context.Context, in *pb.ListCollectionsRequest, opts ...grpc.CallOption) (*pb.ListCollectionsResponse, error)
	Create(ctx context.Context, in *pb.CreateCollection, opts ...grpc.CallOption) (*pb.CollectionOperationResponse, error)
	Delete(ctx context.Context, in *pb.DeleteCollection, opts ...grpc.CallOption) (*pb.CollectionOperationResponse, error)
}

// VectorStore is the Qdrant Backend. It owns all Qdrant operations.
type VectorStore struct {
	conn        *grpc.ClientConn
	points      pointsAPI
	collections collectionsAPI
}

var _ Backend = (*VectorStore)(nil)

// New creates a VectorStore connected to Qdrant at the given gRPC address.
func New(addr string) (*VectorStore, error) {
	conn, err := grpc.NewClient(addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, fmt.Errorf("semantic: dial qdrant %s: %w", addr, err)
	}
	return &VectorStore{
		conn:        conn,
		points:      pb.NewPointsClient(conn),
		collections: pb.NewCollectionsClient(conn),
	}, nil
}

// NewWithClients builds a VectorStore over existing clients. Close is a no-op.
func NewWithClients(points pointsAPI, collections collectionsAPI) *VectorStore {
	return &VectorStore{points: points, collections: collections}
}

// Close closes the underlying gRPC connection.
func (v *VectorStore) Close() error {
	if v.conn == nil {
		return nil
	}
	return v.conn.Close()
}

func (v *VectorStore) exists(ctx context.Context, name string) (bool, error) {
	list, err := v.collections.List(ctx, &pb.ListCollectionsRequest{})
	if err != nil {
		return false, fmt.Errorf("semantic: list collections: %w", err)
	}
	for _, c := range list.GetCollections() {
		if c.GetName() == name {
			return true, nil
		}
	}
	return false, nil
}

// DeleteCollection drops the collection if it exists.
func (v *VectorStore) DeleteCollection(ctx context.Context, name string) error {
	ok, err := v.exists(ctx, name)
	if err != nil || !ok {
		return err
	}
	if _, err := v.collections.Delete(ctx, &pb.DeleteCollection{CollectionName: name}); err != nil {
		return fmt.Errorf("semantic: delete collection %s: %w", name, err)
	}
	return nil
}

// CreateCollection creates a cosine collection of the given dimension.
func (v *VectorStore) CreateCollection(ctx context.Context, name string, dims int, metadata map[string]string) error {
	if dims <= 0 {
		return fmt.Errorf("semantic: create collection %s: invalid dimension %d", name, dims)
	}
	var meta map[string]*pb.Value
	if len(metadata) > 0 {
		meta = make(map[string]*pb.Value, len(metadata))
		for k, val := range metadata {
			meta[k] = toValue(val)
		}
	}
	_, err := v.collections.Create(ctx, &pb.CreateCollection{
		CollectionName: name,
		Metadata:       meta,
		VectorsConfig: &pb.VectorsConfig{
			Config: &pb.VectorsConfig_Params{
				Params: &pb.VectorParams{
					Size:     uint64(dims),
					Distance: pb.Distance_Cosine,
				},
			},
		},
	})
	if err != nil {
		return fmt.Errorf("semantic: create collection %s: %w", name, err)
	}
	return nil
}

// PointID maps a catalog id to the Qdrant point UUID. Equal ids map to the
// same point, so re-upserting an item overwrites it.
func PointID(itemID string) string {
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte("mealscout:item:"+itemID)).String()
}

// Upsert stores records with the full item as payload.
func (v *VectorStore) Upsert(ctx context.Context, name string, records []VectorRecord) error {
	if len(records) == 0 {
		return nil
	}

	points := make([]*pb.PointStruct, len(records))
	for i, r := range records {
		points[i] = &pb.PointStruct{
			Id: &pb.PointId{
				PointIdOptions: &pb.PointId_Uuid{Uuid: PointID(r.ID)},
			},
			Vectors: &pb.Vectors{
				VectorsOptions: &pb.Vectors_Vector{
					Vector: &pb.Vector{Data: r.Embedding},
				},
			},
			Payload: itemPayload(r.ID, r.Item),
		}
	}

	wait := true
	_, err := v.points.Upsert(ctx, &pb.UpsertPoints{
		CollectionName: name,
		Wait:           &wait,
		Points:         points,
	})
	if err != nil {
		return fmt.Errorf("semantic: upsert %d points into %s: %w", len(records), name, err)
	}
	return nil
}

// Search runs a filtered k-NN query. Qdrant reports cosine similarity,
// which is converted back to distance.
func (v *VectorStore) Search(ctx context.Context, name string, vector []float32, limit int, filter domain.Filter) ([]Hit, error) {
	if limit <= 0 {
		return []Hit{}, nil
	}
	req := &pb.SearchPoints{
		CollectionName: name,
		Vector:         vector,
		Limit:          uint64(limit),
		WithPayload:    &pb.WithPayloadSelector{SelectorOptions: &pb.WithPayloadSelector_Enable{Enable: true}},
		Filter:         buildFilter(filter),
	}

	resp, err := v.points.Search(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("semantic: search %s: %w", name, err)
	}

	hits := make([]Hit, len(resp.GetResult()))
	for i, r := range resp.GetResult() {
		hits[i] = Hit{
			Item:     payloadItem(r.GetPayload()),
			Distance: 1 - float64(r.GetScore()),
		}
	}
	return hits, nil
}

// Count returns the exact number of points in the collection.
func (v *VectorStore) Count(ctx context.Context, name string) (int, error) {
	exact := true
	resp, err := v.points.Count(ctx, &pb.CountPoints{CollectionName: name, Exact: &exact})
	if err != nil {
		return 0, fmt.Errorf("semantic: count %s: %w", name, err)
	}
	return int(resp.GetResult().GetCount()), nil
}

func buildFilter(f domain.Filter) *pb.Filter {
	if f.IsZero() {
		return nil
	}
	var must []*pb.Condition
	if f.Cuisine != "" {
		must = append(must, fieldMatch(keyCuisine, f.Cuisine))
	}
	if f.MaxCalories != nil {
		must = append(must, fieldAtMost(keyCalories, float64(*f.MaxCalories)))
	}
	return &pb.Filter{Must: must}
}

func fieldMatch(key, value string) *pb.Condition {
	return &pb.Condition{
		ConditionOneOf: &pb.Condition_Field{
			Field: &pb.FieldCondition{
				Key: key,
				Match: &pb.Match{
					MatchValue: &pb.Match_Keyword{Keyword: value},
				},
			},
		},
	}
}

func fieldAtMost(key string, limit float64) *pb.Condition {
	return &pb.Condition{
		ConditionOneOf: &pb.Condition_Field{
			Field: &pb.FieldCondition{
				Key:   key,
				Range: &pb.Range{Lte: &limit},
			},
		},
	}
}
