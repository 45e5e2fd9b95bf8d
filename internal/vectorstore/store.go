// Package vectorstore keeps classified papers as points in Qdrant, one
// collection per feed.
package vectorstore

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/qdrant/go-client/qdrant"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/proto"

	"github.com/paperscope/paperscope/internal/core"
)

const (
	DefaultPort       = 6334
	DefaultVectorSize = 384
	scrollPageSize    = 256
)

// payloadIndexes are created on every collection so dashboards can filter.
var payloadIndexes = []struct {
	field string
	kind  qdrant.FieldType
}{
	{"metadata.title", qdrant.FieldType_FieldTypeKeyword},
	{"metadata.url", qdrant.FieldType_FieldTypeKeyword},
	{"metadata.authors", qdrant.FieldType_FieldTypeKeyword},
	{"metadata.topics", qdrant.FieldType_FieldTypeKeyword},
	{"metadata.modalities", qdrant.FieldType_FieldTypeKeyword},
	{"metadata.star", qdrant.FieldType_FieldTypeBool},
	{"metadata.paper_type", qdrant.FieldType_FieldTypeKeyword},
	{"metadata.source", qdrant.FieldType_FieldTypeKeyword},
	{"metadata.published_date", qdrant.FieldType_FieldTypeDatetime},
	{"metadata.relevance_score", qdrant.FieldType_FieldTypeInteger},
}

// ErrVectorSize is returned when a paper's vector does not match the collection.
var ErrVectorSize = errors.New("vector size does not match collection")

// Options addresses a Qdrant instance.
type Options struct {
	Host   string
	Port   int
	UseTLS bool
	APIKey string
	// Collection overrides the per-feed collection name.
	Collection string
	VectorSize int
}

// Store reads and writes papers over Qdrant's gRPC API.
type Store struct {
	conn        *grpc.ClientConn
	collections qdrant.CollectionsClient
	points      qdrant.PointsClient
	apiKey      string
	collection  string
	vectorSize  int

	mu    sync.Mutex
	ready map[string]bool
}

// Open dials Qdrant. The connection is lazy; the first call surfaces
// network errors.
func Open(opts Options) (*Store, error) {
	host := strings.TrimSpace(opts.Host)
	if host == "" {
		return nil, errors.New("qdrant host is required")
	}
	port := opts.Port
	if port <= 0 {
		port = DefaultPort
	}

	creds := insecure.NewCredentials()
	if opts.UseTLS {
		creds = credentials.NewTLS(&tls.Config{MinVersion: tls.VersionTLS12})
	}
	conn, err := grpc.NewClient(fmt.Sprintf("%s:%d", host, port), grpc.WithTransportCredentials(creds))
	if err != nil {
		return nil, fmt.Errorf("connect to qdrant: %w", err)
	}
	s := New(conn, opts)
	s.conn = conn
	return s, nil
}

// New wraps an existing connection.
func New(conn grpc.ClientConnInterface, opts Options) *Store {
	size := opts.VectorSize
	if size <= 0 {
		size = DefaultVectorSize
	}
	return &Store{
		collections: qdrant.NewCollectionsClient(conn),
		points:      qdrant.NewPointsClient(conn),
		apiKey:      strings.TrimSpace(opts.APIKey),
		collection:  strings.TrimSpace(opts.Collection),
		vectorSize:  size,
		ready:       make(map[string]bool),
	}
}

// Close releases the connection when Open created it.
func (s *Store) Close() error {
	if s == nil || s.conn == nil {
		return nil
	}
	return s.conn.Close()
}

// PointID derives the stable point ID of a paper URL (UUIDv5, URL namespace).
func PointID(url string) string {
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte(url)).String()
}

// CollectionFor returns the collection a feed's papers live in.
func (s *Store) CollectionFor(feed core.FeedType) string {
	if s.collection != "" {
		return s.collection
	}
	return feed.Collection()
}

// EnsureCollection creates the feed's collection and payload indexes when missing.
func (s *Store) EnsureCollection(ctx context.Context, feed core.FeedType) error {
	name := s.CollectionFor(feed)
	s.mu.Lock()
	done := s.ready[name]
	s.mu.Unlock()
	if done {
		return nil
	}

	ctx = s.withAuth(ctx)
	list, err := s.collections.List(ctx, &qdrant.ListCollectionsRequest{})
	if err != nil {
		return fmt.Errorf("list collections: %w", err)
	}
	exists := false
	for _, col := range list.GetCollections() {
		if col.GetName() == name {
			exists = true
			break
		}
	}

	if !exists {
		_, err := s.collections.Create(ctx, &qdrant.CreateCollection{
			CollectionName: name,
			VectorsConfig: &qdrant.VectorsConfig{
				Config: &qdrant.VectorsConfig_Params{
					Params: &qdrant.VectorParams{
						Size:     uint64(s.vectorSize),
						Distance: qdrant.Distance_Cosine,
					},
				},
			},
		})
		if err != nil {
			return fmt.Errorf("create collection %s: %w", name, err)
		}
		for _, idx := range payloadIndexes {
			kind := idx.kind
			_, err := s.points.CreateFieldIndex(ctx, &qdrant.CreateFieldIndexCollection{
				CollectionName: name,
				FieldName:      idx.field,
				FieldType:      &kind,
				Wait:           proto.Bool(true),
			})
			if err != nil {
				return fmt.Errorf("create index %s: %w", idx.field, err)
			}
		}
	}

	s.mu.Lock()
	s.ready[name] = true
	s.mu.Unlock()
	return nil
}

// Exists reports whether a paper with url is stored for feed. A missing
// collection means nothing is stored yet.
func (s *Store) Exists(ctx context.Context, feed core.FeedType, url string) (bool, error) {
	resp, err := s.points.Get(s.withAuth(ctx), &qdrant.GetPoints{
		CollectionName: s.CollectionFor(feed),
		Ids:            []*qdrant.PointId{pointID(url)},
		WithPayload:    &qdrant.WithPayloadSelector{SelectorOptions: &qdrant.WithPayloadSelector_Enable{Enable: false}},
	})
	if status.Code(err) == codes.NotFound {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("lookup point: %w", err)
	}
	return len(resp.GetResult()) > 0, nil
}

// Save upserts a paper. The vector must match the collection size.
func (s *Store) Save(ctx context.Context, paper core.StoredPaper) error {
	if strings.TrimSpace(paper.URL) == "" {
		return errors.New("paper url is required")
	}
	if len(paper.Vector) != s.vectorSize {
		return fmt.Errorf("%w: got %d, want %d", ErrVectorSize, len(paper.Vector), s.vectorSize)
	}
	if err := s.EnsureCollection(ctx, paper.FeedType); err != nil {
		return err
	}

	id := PointID(paper.URL)
	_, err := s.points.Upsert(s.withAuth(ctx), &qdrant.UpsertPoints{
		CollectionName: s.CollectionFor(paper.FeedType),
		Wait:           proto.Bool(true),
		Points: []*qdrant.PointStruct{{
			Id: pointID(paper.URL),
			Vectors: &qdrant.Vectors{
				VectorsOptions: &qdrant.Vectors_Vector{Vector: &qdrant.Vector{Data: paper.Vector}},
			},
			Payload: encodePayload(paper, id, s.vectorSize),
		}},
	})
	if err != nil {
		return fmt.Errorf("upsert point: %w", err)
	}
	return nil
}

// List scrolls every point of the feed's collection.
func (s *Store) List(ctx context.Context, feed core.FeedType) ([]core.StoredPaper, error) {
	ctx = s.withAuth(ctx)
	req := &qdrant.ScrollPoints{
		CollectionName: s.CollectionFor(feed),
		Limit:          proto.Uint32(scrollPageSize),
		WithPayload:    &qdrant.WithPayloadSelector{SelectorOptions: &qdrant.WithPayloadSelector_Enable{Enable: true}},
	}

	var out []core.StoredPaper
	for {
		resp, err := s.points.Scroll(ctx, req)
		if err != nil {
			return nil, fmt.Errorf("scroll points: %w", err)
		}
		for _, point := range resp.GetResult() {
			paper := decodePayload(point.GetPayload())
			if paper.FeedType == "" {
				paper.FeedType = feed
			}
			out = append(out, paper)
		}
		next := resp.GetNextPageOffset()
		if next == nil {
			break
		}
		req.Offset = next
	}
	return out, nil
}

func (s *Store) withAuth(ctx context.Context) context.Context {
	if s.apiKey == "" {
		return ctx
	}
	return metadata.AppendToOutgoingContext(ctx, "api-key", s.apiKey)
}

func pointID(url string) *qdrant.PointId {
	return &qdrant.PointId{PointIdOptions: &qdrant.PointId_Uuid{Uuid: PointID(url)}}
}
