package store

import (
	"context"
	"crypto/sha256"
	"fmt"

	pb "github.com/qdrant/go-client/qdrant"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/quarry-search/quarry/pkg/embed"
	"github.com/quarry-search/quarry/pkg/filter"
	"github.com/quarry-search/quarry/pkg/retrieval"
)

// docIDKey is the payload key holding the original document id. Qdrant point
// ids must be UUIDs, so document ids are hashed into deterministic UUIDs and
// the original kept in the payload.
const docIDKey = "_doc_id"

// contentKey is the payload key holding document content.
const contentKey = "_content"

// QdrantStore is a vector search backend over a remote Qdrant instance. Like
// HNSWStore it owns an embedder. Equality filters on strings push down as
// Qdrant keyword conditions; everything else evaluates in memory over the
// returned payload.
type QdrantStore struct {
	conn        *grpc.ClientConn
	points      pb.PointsClient
	collections pb.CollectionsClient
	collection  string
	embedder    embed.Embedder
}

var (
	_ retrieval.SearchProvider = (*QdrantStore)(nil)
	_ retrieval.Remover        = (*QdrantStore)(nil)
	_ retrieval.Clearer        = (*QdrantStore)(nil)
	_ retrieval.CloserProvider = (*QdrantStore)(nil)
)

// NewQdrantStore connects to Qdrant at addr and ensures the collection
// exists with the embedder's dimensionality.
func NewQdrantStore(ctx context.Context, addr, collection string, embedder embed.Embedder) (*QdrantStore, error) {
	conn, err := grpc.NewClient(addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, fmt.Errorf("dial qdrant %s: %w", addr, err)
	}

	s := &QdrantStore{
		conn:        conn,
		points:      pb.NewPointsClient(conn),
		collections: pb.NewCollectionsClient(conn),
		collection:  collection,
		embedder:    embedder,
	}
	if err := s.ensureCollection(ctx); err != nil {
		_ = conn.Close()
		return nil, err
	}
	return s, nil
}

func (s *QdrantStore) ensureCollection(ctx context.Context) error {
	list, err := s.collections.List(ctx, &pb.ListCollectionsRequest{})
	if err != nil {
		return fmt.Errorf("list collections: %w", err)
	}
	for _, c := range list.GetCollections() {
		if c.GetName() == s.collection {
			return nil
		}
	}

	dims := s.embedder.Dimensions()
	if dims <= 0 {
		// Dimension auto-detection needs one embedding.
		vec, err := s.embedder.Embed(ctx, "quarry")
		if err != nil {
			return fmt.Errorf("probe embedder dimensions: %w", err)
		}
		dims = len(vec)
	}

	_, err = s.collections.Create(ctx, &pb.CreateCollection{
		CollectionName: s.collection,
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
		return fmt.Errorf("create collection %s: %w", s.collection, err)
	}
	return nil
}

// Index embeds documents and upserts them as points.
func (s *QdrantStore) Index(ctx context.Context, docs []retrieval.Document) (int, error) {
	if len(docs) == 0 {
		return 0, nil
	}

	texts := make([]string, len(docs))
	for i, doc := range docs {
		texts[i] = doc.Content
	}
	vectors, err := embed.Batch(ctx, s.embedder.EmbedBatch, texts, nil)
	if err != nil {
		return 0, fmt.Errorf("embed documents: %w", err)
	}

	points := make([]*pb.PointStruct, len(docs))
	for i, doc := range docs {
		payload := make(map[string]*pb.Value, len(doc.Metadata)+2)
		for k, v := range doc.Metadata {
			payload[k] = toQdrantValue(v)
		}
		payload[docIDKey] = &pb.Value{Kind: &pb.Value_StringValue{StringValue: doc.ID}}
		payload[contentKey] = &pb.Value{Kind: &pb.Value_StringValue{StringValue: doc.Content}}

		points[i] = &pb.PointStruct{
			Id: &pb.PointId{
				PointIdOptions: &pb.PointId_Uuid{Uuid: pointUUID(doc.ID)},
			},
			Vectors: &pb.Vectors{
				VectorsOptions: &pb.Vectors_Vector{
					Vector: &pb.Vector{Data: vectors[i]},
				},
			},
			Payload: payload,
		}
	}

	wait := true
	_, err = s.points.Upsert(ctx, &pb.UpsertPoints{
		CollectionName: s.collection,
		Wait:           &wait,
		Points:         points,
	})
	if err != nil {
		return 0, fmt.Errorf("upsert %d points: %w", len(points), err)
	}
	return len(docs), nil
}

// Search embeds the query and runs k-NN search. Qdrant cosine scores are
// already in [0, 1] for normalized vectors.
func (s *QdrantStore) Search(ctx context.Context, query string, opts retrieval.SearchOptions) ([]retrieval.SearchResult, error) {
	vector, err := s.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}

	limit := opts.Limit
	if limit <= 0 {
		limit = retrieval.DefaultSearchLimit
	}

	req := &pb.SearchPoints{
		CollectionName: s.collection,
		Vector:         vector,
		Limit:          uint64(fetchLimit(limit, opts.Filter)),
		WithPayload:    &pb.WithPayloadSelector{SelectorOptions: &pb.WithPayloadSelector_Enable{Enable: true}},
	}
	if must := pushdownConditions(opts.Filter); len(must) > 0 {
		req.Filter = &pb.Filter{Must: must}
	}

	resp, err := s.points.Search(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("search: %w", err)
	}

	results := make([]retrieval.SearchResult, 0, len(resp.GetResult()))
	for _, hit := range resp.GetResult() {
		r := retrieval.SearchResult{Score: float64(hit.GetScore())}
		metadata := make(map[string]any)

		for k, v := range hit.GetPayload() {
			switch k {
			case docIDKey:
				r.ID = v.GetStringValue()
			case contentKey:
				if opts.ReturnContent {
					r.Content = v.GetStringValue()
				}
			default:
				metadata[k] = fromQdrantValue(v)
			}
		}
		if len(metadata) > 0 {
			r.Metadata = metadata
		}
		results = append(results, r)
	}

	results, err = applyFilter(results, opts.Filter, limit)
	if err != nil {
		return nil, err
	}
	if !opts.ReturnMetadata {
		for i := range results {
			results[i].Metadata = nil
		}
	}
	return results, nil
}

// Remove deletes points by document id.
func (s *QdrantStore) Remove(ctx context.Context, ids []string) (int, error) {
	if len(ids) == 0 {
		return 0, nil
	}

	pointIDs := make([]*pb.PointId, len(ids))
	for i, id := range ids {
		pointIDs[i] = &pb.PointId{PointIdOptions: &pb.PointId_Uuid{Uuid: pointUUID(id)}}
	}

	wait := true
	_, err := s.points.Delete(ctx, &pb.DeletePoints{
		CollectionName: s.collection,
		Wait:           &wait,
		Points: &pb.PointsSelector{
			PointsSelectorOneOf: &pb.PointsSelector_Points{
				Points: &pb.PointsIdsList{Ids: pointIDs},
			},
		},
	})
	if err != nil {
		return 0, fmt.Errorf("delete %d points: %w", len(ids), err)
	}
	// Qdrant does not report how many of the ids existed.
	return len(ids), nil
}

// Clear drops and recreates the collection.
func (s *QdrantStore) Clear(ctx context.Context) error {
	_, err := s.collections.Delete(ctx, &pb.DeleteCollection{CollectionName: s.collection})
	if err != nil {
		return fmt.Errorf("delete collection %s: %w", s.collection, err)
	}
	return s.ensureCollection(ctx)
}

// Close closes the gRPC connection and the embedder.
func (s *QdrantStore) Close() error {
	connErr := s.conn.Close()
	embErr := s.embedder.Close()
	if connErr != nil {
		return connErr
	}
	return embErr
}

// pointUUID derives a stable UUID-shaped id from a document id.
func pointUUID(id string) string {
	sum := sha256.Sum256([]byte(id))
	return fmt.Sprintf("%x-%x-%x-%x-%x", sum[0:4], sum[4:6], sum[6:8], sum[8:10], sum[10:16])
}

// pushdownConditions translates string-equality filter conditions into
// Qdrant keyword matches. Other operators stay in the in-memory pass.
func pushdownConditions(f filter.Filter) []*pb.Condition {
	conds, err := f.Conditions()
	if err != nil {
		return nil
	}

	var must []*pb.Condition
	for _, cond := range conds {
		if cond.Op != filter.OpEq {
			continue
		}
		value, ok := cond.Value.(string)
		if !ok {
			continue
		}
		must = append(must, &pb.Condition{
			ConditionOneOf: &pb.Condition_Field{
				Field: &pb.FieldCondition{
					Key: cond.Field,
					Match: &pb.Match{
						MatchValue: &pb.Match_Keyword{Keyword: value},
					},
				},
			},
		})
	}
	return must
}

func toQdrantValue(v any) *pb.Value {
	switch tv := v.(type) {
	case string:
		return &pb.Value{Kind: &pb.Value_StringValue{StringValue: tv}}
	case int:
		return &pb.Value{Kind: &pb.Value_IntegerValue{IntegerValue: int64(tv)}}
	case int64:
		return &pb.Value{Kind: &pb.Value_IntegerValue{IntegerValue: tv}}
	case float64:
		return &pb.Value{Kind: &pb.Value_DoubleValue{DoubleValue: tv}}
	case bool:
		return &pb.Value{Kind: &pb.Value_BoolValue{BoolValue: tv}}
	default:
		return &pb.Value{Kind: &pb.Value_StringValue{StringValue: fmt.Sprint(tv)}}
	}
}

func fromQdrantValue(v *pb.Value) any {
	switch kind := v.GetKind().(type) {
	case *pb.Value_StringValue:
		return kind.StringValue
	case *pb.Value_IntegerValue:
		return kind.IntegerValue
	case *pb.Value_DoubleValue:
		return kind.DoubleValue
	case *pb.Value_BoolValue:
		return kind.BoolValue
	default:
		return v.String()
	}
}
