package approval_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cos-systems/cos/approval"
	memstore "github.com/cos-systems/cos/store/memory"
	"github.com/cos-systems/cos/value"
)

func TestEnqueueGetDecide(t *testing.T) {
	ctx := context.Background()
	q := approval.New(memstore.New())

	id, err := q.Enqueue(ctx, approval.Request{
		ApprovalID:   "appr-1",
		Category:     approval.CategoryCapabilityWrite,
		RequestedAt:  time.Now(),
		CapabilityID: "ccos.fs.write",
	})
	require.NoError(t, err)

	got, err := q.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, approval.StatusPending, got.Status)

	require.NoError(t, q.Decide(ctx, id, true, value.Str("ok"), "operator-1"))
	got, err = q.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, approval.StatusApproved, got.Status)
	assert.Equal(t, "operator-1", got.DecidedBy)
}

func TestRejectionIsTerminal(t *testing.T) {
	ctx := context.Background()
	q := approval.New(memstore.New())
	id, err := q.Enqueue(ctx, approval.Request{ApprovalID: "appr-2", Category: approval.CategoryDelegation})
	require.NoError(t, err)

	require.NoError(t, q.Decide(ctx, id, false, value.Nil(), "operator-1"))
	err = q.Decide(ctx, id, true, value.Nil(), "operator-1")
	require.Error(t, err)
}

func TestListPendingByCategory(t *testing.T) {
	ctx := context.Background()
	q := approval.New(memstore.New())
	_, _ = q.Enqueue(ctx, approval.Request{ApprovalID: "a", Category: approval.CategoryPlanGate})
	_, _ = q.Enqueue(ctx, approval.Request{ApprovalID: "b", Category: approval.CategorySecretWrite})

	pending, err := q.ListPendingByCategory(ctx, approval.CategoryPlanGate)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, "a", pending[0].ApprovalID)
}
