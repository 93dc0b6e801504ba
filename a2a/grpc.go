package a2a

import (
	"context"
	"fmt"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/cos-systems/cos/errors"
)

// GRPCCaller is a placeholder Caller for the A2A gRPC transport. The
// teacher's own A2A runtime documents gRPC as a planned-but-unimplemented
// transport rather than shipping a partial one; COS mirrors that rather
// than silently dropping the protocol or faking a client against
// google.golang.org/grpc with no wire format to target.
type GRPCCaller struct{}

// NewGRPCCaller constructs a GRPCCaller.
func NewGRPCCaller() *GRPCCaller { return &GRPCCaller{} }

// Call always fails: the gRPC transport is not implemented. The underlying
// error is a real grpc status (codes.Unimplemented) so callers that unwrap
// with status.FromError see the same signal a generated grpc client stub
// would return for an unimplemented method, rather than an ad-hoc string.
func (c *GRPCCaller) Call(ctx context.Context, endpoint string, req Request) (Response, error) {
	st := status.New(codes.Unimplemented, fmt.Sprintf("a2a grpc transport not yet implemented: endpoint %q", endpoint))
	return Response{}, errors.Wrap(errors.NetworkError, "a2a grpc transport", st.Err())
}
