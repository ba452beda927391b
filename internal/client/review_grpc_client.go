package client

import (
	"context"
	"fmt"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/pesio-ai/be-ip-review/internal/api"
)

// ReviewGRPCClient is a gRPC client for ipreview.v1.ReviewService
type ReviewGRPCClient struct {
	conn *grpc.ClientConn
}

// NewReviewGRPCClient creates a new review service gRPC client. Extra dial
// options are appended after the defaults.
func NewReviewGRPCClient(addr string, opts ...grpc.DialOption) (*ReviewGRPCClient, error) {
	dialOpts := append([]grpc.DialOption{
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithUnaryInterceptor(forwardMetadata),
		grpc.WithDefaultCallOptions(grpc.CallContentSubtype(api.CodecName)),
	}, opts...)

	conn, err := grpc.NewClient(addr, dialOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create gRPC connection: %w", err)
	}
	return &ReviewGRPCClient{conn: conn}, nil
}

// Close closes the gRPC connection
func (c *ReviewGRPCClient) Close() error {
	if c.conn != nil {
		return c.conn.Close()
	}
	return nil
}

func (c *ReviewGRPCClient) transition(ctx context.Context, method string, req *api.TransitionRequest) (*api.Submission, error) {
	out := new(api.Submission)
	if err := c.conn.Invoke(ctx, api.FullMethod(method), req, out); err != nil {
		return nil, fmt.Errorf("%s: %w", method, err)
	}
	return out, nil
}

func (c *ReviewGRPCClient) Submit(ctx context.Context, req *api.TransitionRequest) (*api.Submission, error) {
	return c.transition(ctx, api.MethodSubmit, req)
}

func (c *ReviewGRPCClient) StartReview(ctx context.Context, req *api.TransitionRequest) (*api.Submission, error) {
	return c.transition(ctx, api.MethodStartReview, req)
}

func (c *ReviewGRPCClient) AdvanceStage(ctx context.Context, req *api.TransitionRequest) (*api.Submission, error) {
	return c.transition(ctx, api.MethodAdvanceStage, req)
}

func (c *ReviewGRPCClient) ReturnStage(ctx context.Context, req *api.TransitionRequest) (*api.Submission, error) {
	return c.transition(ctx, api.MethodReturnStage, req)
}

func (c *ReviewGRPCClient) RequestRevision(ctx context.Context, req *api.TransitionRequest) (*api.Submission, error) {
	return c.transition(ctx, api.MethodRequestRevision, req)
}

func (c *ReviewGRPCClient) SubmitRevision(ctx context.Context, req *api.TransitionRequest) (*api.Submission, error) {
	return c.transition(ctx, api.MethodSubmitRevision, req)
}

func (c *ReviewGRPCClient) Complete(ctx context.Context, req *api.TransitionRequest) (*api.Submission, error) {
	return c.transition(ctx, api.MethodComplete, req)
}

func (c *ReviewGRPCClient) Reject(ctx context.Context, req *api.TransitionRequest) (*api.Submission, error) {
	return c.transition(ctx, api.MethodReject, req)
}

func (c *ReviewGRPCClient) Cancel(ctx context.Context, req *api.TransitionRequest) (*api.Submission, error) {
	return c.transition(ctx, api.MethodCancel, req)
}

// ProcessReviewDecision submits a reviewer verdict
func (c *ReviewGRPCClient) ProcessReviewDecision(ctx context.Context, req *api.ReviewDecisionRequest) (*api.Submission, error) {
	out := new(api.Submission)
	if err := c.conn.Invoke(ctx, api.FullMethod(api.MethodProcessReviewDecision), req, out); err != nil {
		return nil, fmt.Errorf("failed to process review decision: %w", err)
	}
	return out, nil
}

// GetSubmission retrieves a submission with its documents and assignments
func (c *ReviewGRPCClient) GetSubmission(ctx context.Context, submissionID string) (*api.SubmissionView, error) {
	out := new(api.SubmissionView)
	if err := c.conn.Invoke(ctx, api.FullMethod(api.MethodGetSubmission), &api.SubmissionRequest{SubmissionID: submissionID}, out); err != nil {
		return nil, fmt.Errorf("failed to get submission: %w", err)
	}
	return out, nil
}

// EvaluateGates returns the stage and type gate results
func (c *ReviewGRPCClient) EvaluateGates(ctx context.Context, submissionID string) (*api.GateReport, error) {
	out := new(api.GateReport)
	if err := c.conn.Invoke(ctx, api.FullMethod(api.MethodEvaluateGates), &api.SubmissionRequest{SubmissionID: submissionID}, out); err != nil {
		return nil, fmt.Errorf("failed to evaluate gates: %w", err)
	}
	return out, nil
}

// GetTimeline returns the grouped tracking ledger
func (c *ReviewGRPCClient) GetTimeline(ctx context.Context, submissionID string) (*api.Timeline, error) {
	out := new(api.Timeline)
	if err := c.conn.Invoke(ctx, api.FullMethod(api.MethodGetTimeline), &api.SubmissionRequest{SubmissionID: submissionID}, out); err != nil {
		return nil, fmt.Errorf("failed to get timeline: %w", err)
	}
	return out, nil
}
