// Package approval implements the human-in-the-loop ApprovalRequest queue
// (spec §3, §6): enqueue/get/list_pending_by_category/decide, backed by a
// store.KV so the queue survives process restarts when a persistent backend
// is configured.
package approval

import (
	"context"
	"encoding/json"
	"time"

	"github.com/cos-systems/cos/errors"
	"github.com/cos-systems/cos/schema"
	"github.com/cos-systems/cos/store"
	"github.com/cos-systems/cos/value"
)

// Category tags the kind of sensitive operation an approval gates.
type Category string

const (
	CategorySecretWrite        Category = "SecretWrite"
	CategoryHumanActionRequest Category = "HumanActionRequest"
	CategoryDelegation         Category = "Delegation"
	CategoryPlanGate           Category = "PlanGate"
	CategoryCapabilityWrite    Category = "CapabilityWrite"
)

// Status is the lifecycle state of an ApprovalRequest.
type Status string

const (
	StatusPending  Status = "Pending"
	StatusApproved Status = "Approved"
	StatusRejected Status = "Rejected"
	StatusExpired  Status = "Expired"
)

// Request is a single human-in-the-loop approval gate.
type Request struct {
	ApprovalID             string
	Category               Category
	Status                 Status
	RequestedAt            time.Time
	ExpiresAt              time.Time
	RequiredResponseSchema *schema.Schema
	Response               value.Value
	DecidedBy              string

	// Summary fields carried for display; the substrate itself does not
	// interpret them beyond storage and retrieval.
	CapabilityID string
	PlanID       string
	IntentID     string
	Reason       string
}

// record is Request's wire shape for store.KV persistence. RequiredResponseSchema
// and Response are not serialized structurally (the schema language and
// Value have no canonical JSON form that round-trips every variant); callers
// that need schema-validated responses should keep the in-memory Queue
// alongside a persistent one, or extend this record for their domain.
type record struct {
	ApprovalID   string    `json:"approval_id"`
	Category     Category  `json:"category"`
	Status       Status    `json:"status"`
	RequestedAt  time.Time `json:"requested_at"`
	ExpiresAt    time.Time `json:"expires_at"`
	DecidedBy    string    `json:"decided_by"`
	CapabilityID string    `json:"capability_id"`
	PlanID       string    `json:"plan_id"`
	IntentID     string    `json:"intent_id"`
	Reason       string    `json:"reason"`
	ResponseJSON any       `json:"response_json,omitempty"`
}

// Queue is the approval queue contract (spec §6): enqueue, get,
// list_pending_by_category, decide. Rejection is terminal.
type Queue struct {
	kv store.KV
	// live mirrors in-memory the schema and Value fields that do not
	// survive the KV round trip, keyed by ApprovalID. This keeps
	// RequiredResponseSchema validation available within a single process
	// even when the backing KV is Redis/Mongo.
	live map[string]*Request
}

// New constructs a Queue over kv.
func New(kv store.KV) *Queue {
	return &Queue{kv: kv, live: make(map[string]*Request)}
}

const keyPrefix = "approval/"

// Enqueue stores req (which must be Pending) and returns its id.
func (q *Queue) Enqueue(ctx context.Context, req Request) (string, error) {
	if req.Status == "" {
		req.Status = StatusPending
	}
	clone := req
	q.live[req.ApprovalID] = &clone
	if err := q.persist(ctx, req); err != nil {
		return "", err
	}
	return req.ApprovalID, nil
}

// Get retrieves a request by id.
func (q *Queue) Get(ctx context.Context, id string) (Request, error) {
	if live, ok := q.live[id]; ok {
		return *live, nil
	}
	raw, ok, err := q.kv.Get(ctx, keyPrefix+id)
	if err != nil {
		return Request{}, err
	}
	if !ok {
		return Request{}, errors.Newf(errors.RuntimeError, "approval request %q not found", id)
	}
	var rec record
	if err := json.Unmarshal(raw, &rec); err != nil {
		return Request{}, errors.Wrap(errors.RuntimeError, "corrupt approval record", err)
	}
	return recordToRequest(rec), nil
}

// ListPendingByCategory returns every Pending request tagged cat.
func (q *Queue) ListPendingByCategory(ctx context.Context, cat Category) ([]Request, error) {
	keys, err := q.kv.List(ctx, keyPrefix)
	if err != nil {
		return nil, err
	}
	var out []Request
	for _, k := range keys {
		raw, ok, err := q.kv.Get(ctx, k)
		if err != nil {
			return nil, err
		}
		if !ok {
			continue
		}
		var rec record
		if err := json.Unmarshal(raw, &rec); err != nil {
			continue
		}
		if rec.Status == StatusPending && rec.Category == cat {
			out = append(out, recordToRequest(rec))
		}
	}
	return out, nil
}

// Decide resolves a Pending request. Rejection is terminal: a rejected
// request cannot later be approved. response is validated against the
// request's RequiredResponseSchema, if one was set and is still held
// in-process (see record's doc comment).
func (q *Queue) Decide(ctx context.Context, id string, approved bool, response value.Value, decidedBy string) error {
	current, err := q.Get(ctx, id)
	if err != nil {
		return err
	}
	if current.Status == StatusRejected {
		return errors.Newf(errors.ApprovalRejected, "approval %q was already rejected", id)
	}
	if current.Status != StatusPending {
		return errors.Newf(errors.RuntimeError, "approval %q is not pending (status=%s)", id, current.Status)
	}
	if approved && current.RequiredResponseSchema != nil {
		if issues := schema.Validate(current.RequiredResponseSchema, response); !schema.Admits(issues) {
			return errors.Newf(errors.SchemaError, "approval response failed schema validation: %v", issues)
		}
	}
	current.Response = response
	current.DecidedBy = decidedBy
	if approved {
		current.Status = StatusApproved
	} else {
		current.Status = StatusRejected
	}
	q.live[id] = &current
	return q.persist(ctx, current)
}

// ExpirePastDeadline marks every Pending request whose ExpiresAt has passed
// as Expired, returning the ids affected.
func (q *Queue) ExpirePastDeadline(ctx context.Context, now time.Time) ([]string, error) {
	keys, err := q.kv.List(ctx, keyPrefix)
	if err != nil {
		return nil, err
	}
	var expired []string
	for _, k := range keys {
		raw, ok, err := q.kv.Get(ctx, k)
		if err != nil {
			return nil, err
		}
		if !ok {
			continue
		}
		var rec record
		if err := json.Unmarshal(raw, &rec); err != nil {
			continue
		}
		if rec.Status != StatusPending || rec.ExpiresAt.IsZero() || now.Before(rec.ExpiresAt) {
			continue
		}
		rec.Status = StatusExpired
		if err := q.persistRecord(ctx, rec); err != nil {
			return nil, err
		}
		delete(q.live, rec.ApprovalID)
		expired = append(expired, rec.ApprovalID)
	}
	return expired, nil
}

func (q *Queue) persist(ctx context.Context, req Request) error {
	var responseJSON any
	if !req.Response.IsNil() {
		j, err := value.ToJSON(req.Response)
		if err == nil {
			responseJSON = j
		}
	}
	rec := record{
		ApprovalID:   req.ApprovalID,
		Category:     req.Category,
		Status:       req.Status,
		RequestedAt:  req.RequestedAt,
		ExpiresAt:    req.ExpiresAt,
		DecidedBy:    req.DecidedBy,
		CapabilityID: req.CapabilityID,
		PlanID:       req.PlanID,
		IntentID:     req.IntentID,
		Reason:       req.Reason,
		ResponseJSON: responseJSON,
	}
	return q.persistRecord(ctx, rec)
}

func (q *Queue) persistRecord(ctx context.Context, rec record) error {
	raw, err := json.Marshal(rec)
	if err != nil {
		return errors.Wrap(errors.RuntimeError, "failed to marshal approval record", err)
	}
	return q.kv.Put(ctx, keyPrefix+rec.ApprovalID, raw)
}

func recordToRequest(rec record) Request {
	req := Request{
		ApprovalID:   rec.ApprovalID,
		Category:     rec.Category,
		Status:       rec.Status,
		RequestedAt:  rec.RequestedAt,
		ExpiresAt:    rec.ExpiresAt,
		DecidedBy:    rec.DecidedBy,
		CapabilityID: rec.CapabilityID,
		PlanID:       rec.PlanID,
		IntentID:     rec.IntentID,
		Reason:       rec.Reason,
	}
	if rec.ResponseJSON != nil {
		if v, err := value.FromJSON(rec.ResponseJSON); err == nil {
			req.Response = v
		}
	}
	return req
}
