// Package mongo implements store.KV backed by MongoDB, for alias cache and
// approval queue state that needs to survive process restarts (spec §6
// "Persisted state layout").
package mongo

import (
	"context"
	"errors"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	mongodriver "go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
	"go.mongodb.org/mongo-driver/v2/mongo/readpref"

	"github.com/cos-systems/cos/store"
)

const (
	defaultCollection = "cos_kv"
	defaultOpTimeout  = 5 * time.Second
)

// Options configures the Mongo-backed KV store.
type Options struct {
	Client     *mongodriver.Client
	Database   string
	Collection string
	Timeout    time.Duration
}

// Store is a store.KV implementation backed by a single MongoDB collection
// of {_id, value} documents.
type Store struct {
	coll    *mongodriver.Collection
	client  *mongodriver.Client
	timeout time.Duration
}

var _ store.KV = (*Store)(nil)

type doc struct {
	ID    string `bson:"_id"`
	Value []byte `bson:"value"`
}

// New constructs a Store, ensuring the backing collection exists.
func New(opts Options) (*Store, error) {
	if opts.Client == nil {
		return nil, errors.New("store/mongo: client is required")
	}
	if opts.Database == "" {
		return nil, errors.New("store/mongo: database name is required")
	}
	collection := opts.Collection
	if collection == "" {
		collection = defaultCollection
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = defaultOpTimeout
	}
	return &Store{
		coll:    opts.Client.Database(opts.Database).Collection(collection),
		client:  opts.Client,
		timeout: timeout,
	}, nil
}

// Ping verifies connectivity to the primary.
func (s *Store) Ping(ctx context.Context) error {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	return s.client.Ping(ctx, readpref.Primary())
}

func (s *Store) Get(ctx context.Context, key string) ([]byte, bool, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	var d doc
	err := s.coll.FindOne(ctx, bson.M{"_id": key}).Decode(&d)
	if errors.Is(err, mongodriver.ErrNoDocuments) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return d.Value, true, nil
}

func (s *Store) Put(ctx context.Context, key string, value []byte) error {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	_, err := s.coll.UpdateOne(ctx,
		bson.M{"_id": key},
		bson.M{"$set": bson.M{"value": value}},
		options.UpdateOne().SetUpsert(true),
	)
	return err
}

func (s *Store) List(ctx context.Context, prefix string) ([]string, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	filter := bson.M{}
	if prefix != "" {
		filter = bson.M{"_id": bson.M{"$regex": "^" + regexpQuoteMeta(prefix)}}
	}
	cur, err := s.coll.Find(ctx, filter)
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)
	var keys []string
	for cur.Next(ctx) {
		var d doc
		if err := cur.Decode(&d); err != nil {
			return nil, err
		}
		keys = append(keys, d.ID)
	}
	return keys, cur.Err()
}

func (s *Store) Remove(ctx context.Context, key string) error {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	_, err := s.coll.DeleteOne(ctx, bson.M{"_id": key})
	return err
}

func (s *Store) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithTimeout(ctx, s.timeout)
}

// regexpQuoteMeta escapes regex metacharacters in a literal key prefix.
func regexpQuoteMeta(s string) string {
	special := `.+*?()|[]{}^$\`
	out := make([]byte, 0, len(s)*2)
	for i := 0; i < len(s); i++ {
		c := s[i]
		for _, sp := range []byte(special) {
			if c == sp {
				out = append(out, '\\')
				break
			}
		}
		out = append(out, c)
	}
	return string(out)
}
