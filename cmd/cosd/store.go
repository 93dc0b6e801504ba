package main

import (
	"context"
	"fmt"

	goredis "github.com/redis/go-redis/v9"
	mongodriver "go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/cos-systems/cos/config"
	"github.com/cos-systems/cos/store"
	"github.com/cos-systems/cos/store/memory"
	"github.com/cos-systems/cos/store/mongo"
	"github.com/cos-systems/cos/store/redis"
)

// newKV builds the store.KV backend named by cfg.Backend. This is the one
// place cosd has to choose among the three backends the teacher's
// dependency set supports (memory/redis/mongo). In cosd only the approval
// queue is built over the resulting store.KV; the demo alias cache uses an
// in-memory store of its own.
func newKV(ctx context.Context, cfg config.StoreConfig) (store.KV, error) {
	switch cfg.Backend {
	case "", "memory":
		return memory.New(), nil
	case "redis":
		client := goredis.NewClient(&goredis.Options{Addr: cfg.Addr})
		if err := client.Ping(ctx).Err(); err != nil {
			return nil, fmt.Errorf("connecting to redis at %q: %w", cfg.Addr, err)
		}
		return redis.New(client, cfg.Namespace), nil
	case "mongo":
		client, err := mongodriver.Connect(ctx, options.Client().ApplyURI(cfg.Addr))
		if err != nil {
			return nil, fmt.Errorf("connecting to mongo at %q: %w", cfg.Addr, err)
		}
		database := cfg.Namespace
		if database == "" {
			database = "cos"
		}
		return mongo.New(mongo.Options{Client: client, Database: database})
	default:
		return nil, fmt.Errorf("unknown store backend %q", cfg.Backend)
	}
}
