package resolver

import (
	"context"
	"encoding/json"

	"github.com/cos-systems/cos/errors"
	"github.com/cos-systems/cos/store"
)

// aliasRecord is the persisted shape of one alias entry, carrying enough
// call history for the demotion heuristic below.
type aliasRecord struct {
	Target              string `json:"target"`
	Calls               int64  `json:"calls"`
	Failures            int64  `json:"failures"`
	ConsecutiveFailures int64  `json:"consecutive_failures"`
}

const aliasKeyPrefix = "resolver/alias/"

// AliasCache persists capability-id-to-capability-id aliases over a
// store.KV, plus enough outcome history to demote an alias that has gone
// stale (spec §4.4: an alias pointing at a capability whose provider keeps
// failing should eventually stop being served).
type AliasCache struct {
	kv store.KV
}

// NewAliasCache wraps kv as an AliasCache.
func NewAliasCache(kv store.KV) *AliasCache {
	return &AliasCache{kv: kv}
}

// Lookup returns the alias target for id, if one is recorded and has not
// been dismissed.
func (c *AliasCache) Lookup(ctx context.Context, id string) (target string, ok bool, err error) {
	raw, found, err := c.kv.Get(ctx, aliasKeyPrefix+id)
	if err != nil {
		return "", false, err
	}
	if !found {
		return "", false, nil
	}
	var rec aliasRecord
	if err := json.Unmarshal(raw, &rec); err != nil {
		return "", false, errors.Wrap(errors.RuntimeError, "corrupt alias record", err)
	}
	return rec.Target, true, nil
}

// Put records id -> target, replacing any existing alias and resetting its
// call history.
func (c *AliasCache) Put(ctx context.Context, id, target string) error {
	return c.write(ctx, id, aliasRecord{Target: target})
}

// Dismiss removes an alias entirely (it pointed at a capability that no
// longer exists, or was demoted).
func (c *AliasCache) Dismiss(ctx context.Context, id string) error {
	return c.kv.Remove(ctx, aliasKeyPrefix+id)
}

// demoteAfterConsecutiveFailures, demoteMinCallsForRate and
// demoteFailureRate bound how much an alias can fail
// before it is dismissed automatically (spec §4.4: aliases are a
// performance shortcut, not a permanent commitment).
const (
	demoteAfterConsecutiveFailures = 5
	demoteMinCallsForRate          = 100
	demoteFailureRate              = 0.5
)

// RecordOutcome updates id's call history and dismisses the alias if it has
// crossed the demotion thresholds (five consecutive failures, or a failure
// rate over 50% once at least 100 calls have been observed).
func (c *AliasCache) RecordOutcome(ctx context.Context, id string, success bool) error {
	raw, found, err := c.kv.Get(ctx, aliasKeyPrefix+id)
	if err != nil {
		return err
	}
	if !found {
		return nil
	}
	var rec aliasRecord
	if err := json.Unmarshal(raw, &rec); err != nil {
		return errors.Wrap(errors.RuntimeError, "corrupt alias record", err)
	}

	rec.Calls++
	if success {
		rec.ConsecutiveFailures = 0
	} else {
		rec.Failures++
		rec.ConsecutiveFailures++
	}

	if rec.ConsecutiveFailures >= demoteAfterConsecutiveFailures {
		return c.Dismiss(ctx, id)
	}
	if rec.Calls >= demoteMinCallsForRate && float64(rec.Failures)/float64(rec.Calls) > demoteFailureRate {
		return c.Dismiss(ctx, id)
	}

	return c.write(ctx, id, rec)
}

func (c *AliasCache) write(ctx context.Context, id string, rec aliasRecord) error {
	raw, err := json.Marshal(rec)
	if err != nil {
		return errors.Wrap(errors.RuntimeError, "failed to marshal alias record", err)
	}
	return c.kv.Put(ctx, aliasKeyPrefix+id, raw)
}
