package handler

import (
	"context"
	"strings"

	"google.golang.org/grpc"
	"google.golang.org/grpc/metadata"

	"github.com/pesio-ai/be-ip-review/internal/api"
	"github.com/pesio-ai/be-ip-review/internal/platform/logger"
)

// ReviewServer is the server API of ipreview.v1.ReviewService.
type ReviewServer interface {
	Submit(context.Context, *api.TransitionRequest) (*api.Submission, error)
	StartReview(context.Context, *api.TransitionRequest) (*api.Submission, error)
	AdvanceStage(context.Context, *api.TransitionRequest) (*api.Submission, error)
	ReturnStage(context.Context, *api.TransitionRequest) (*api.Submission, error)
	RequestRevision(context.Context, *api.TransitionRequest) (*api.Submission, error)
	SubmitRevision(context.Context, *api.TransitionRequest) (*api.Submission, error)
	Complete(context.Context, *api.TransitionRequest) (*api.Submission, error)
	Reject(context.Context, *api.TransitionRequest) (*api.Submission, error)
	Cancel(context.Context, *api.TransitionRequest) (*api.Submission, error)
	ProcessReviewDecision(context.Context, *api.ReviewDecisionRequest) (*api.Submission, error)
	GetSubmission(context.Context, *api.SubmissionRequest) (*api.SubmissionView, error)
	EvaluateGates(context.Context, *api.SubmissionRequest) (*api.GateReport, error)
	GetTimeline(context.Context, *api.SubmissionRequest) (*api.Timeline, error)
}

// unary builds the method handler for one RPC, decoding the request with
// the negotiated codec and running it through the server interceptor chain.
func unary[Req, Resp any](method string, call func(ReviewServer, context.Context, *Req) (*Resp, error)) grpc.MethodHandler {
	return func(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
		in := new(Req)
		if err := dec(in); err != nil {
			return nil, err
		}
		if interceptor == nil {
			return call(srv.(ReviewServer), ctx, in)
		}
		info := &grpc.UnaryServerInfo{Server: srv, FullMethod: api.FullMethod(method)}
		handler := func(ctx context.Context, req interface{}) (interface{}, error) {
			return call(srv.(ReviewServer), ctx, req.(*Req))
		}
		return interceptor(ctx, in, info, handler)
	}
}

var reviewServiceDesc = grpc.ServiceDesc{
	ServiceName: api.ServiceName,
	HandlerType: (*ReviewServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: api.MethodSubmit, Handler: unary(api.MethodSubmit, ReviewServer.Submit)},
		{MethodName: api.MethodStartReview, Handler: unary(api.MethodStartReview, ReviewServer.StartReview)},
		{MethodName: api.MethodAdvanceStage, Handler: unary(api.MethodAdvanceStage, ReviewServer.AdvanceStage)},
		{MethodName: api.MethodReturnStage, Handler: unary(api.MethodReturnStage, ReviewServer.ReturnStage)},
		{MethodName: api.MethodRequestRevision, Handler: unary(api.MethodRequestRevision, ReviewServer.RequestRevision)},
		{MethodName: api.MethodSubmitRevision, Handler: unary(api.MethodSubmitRevision, ReviewServer.SubmitRevision)},
		{MethodName: api.MethodComplete, Handler: unary(api.MethodComplete, ReviewServer.Complete)},
		{MethodName: api.MethodReject, Handler: unary(api.MethodReject, ReviewServer.Reject)},
		{MethodName: api.MethodCancel, Handler: unary(api.MethodCancel, ReviewServer.Cancel)},
		{MethodName: api.MethodProcessReviewDecision, Handler: unary(api.MethodProcessReviewDecision, ReviewServer.ProcessReviewDecision)},
		{MethodName: api.MethodGetSubmission, Handler: unary(api.MethodGetSubmission, ReviewServer.GetSubmission)},
		{MethodName: api.MethodEvaluateGates, Handler: unary(api.MethodEvaluateGates, ReviewServer.EvaluateGates)},
		{MethodName: api.MethodGetTimeline, Handler: unary(api.MethodGetTimeline, ReviewServer.GetTimeline)},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "ipreview/v1/review.proto",
}

// RegisterReviewServer registers srv on s.
func RegisterReviewServer(s grpc.ServiceRegistrar, srv ReviewServer) {
	s.RegisterService(&reviewServiceDesc, srv)
}

// GRPCHandler implements the ReviewService gRPC interface
type GRPCHandler struct {
	svc    Services
	logger *logger.Logger
}

// NewGRPCHandler creates a new gRPC handler
func NewGRPCHandler(svc Services, log *logger.Logger) *GRPCHandler {
	return &GRPCHandler{svc: svc, logger: log.Component("grpc")}
}

// actorID prefers the x-actor-id metadata set by the gateway over the id in
// the message body.
func actorID(ctx context.Context, fallback string) string {
	if md, ok := metadata.FromIncomingContext(ctx); ok {
		if v := md.Get(api.ActorMetadataKey); len(v) > 0 && strings.TrimSpace(v[0]) != "" {
			return strings.TrimSpace(v[0])
		}
	}
	return fallback
}

func (h *GRPCHandler) transition(ctx context.Context, method string, req *api.TransitionRequest, fn transitionFunc) (*api.Submission, error) {
	req.ActorID = actorID(ctx, req.ActorID)
	h.logger.Debug().
		Str("method", method).
		Str("submission_id", req.SubmissionID).
		Str("actor_id", req.ActorID).
		Msg("gRPC transition called")

	if err := api.Validate(req); err != nil {
		return nil, mapErrorToGRPC(err)
	}
	sub, err := fn(ctx, req.ToService())
	if err != nil {
		return nil, mapErrorToGRPC(err)
	}
	return api.FromSubmission(sub), nil
}

func (h *GRPCHandler) Submit(ctx context.Context, req *api.TransitionRequest) (*api.Submission, error) {
	return h.transition(ctx, api.MethodSubmit, req, h.svc.Workflow.Submit)
}

func (h *GRPCHandler) StartReview(ctx context.Context, req *api.TransitionRequest) (*api.Submission, error) {
	return h.transition(ctx, api.MethodStartReview, req, h.svc.Workflow.StartReview)
}

func (h *GRPCHandler) AdvanceStage(ctx context.Context, req *api.TransitionRequest) (*api.Submission, error) {
	return h.transition(ctx, api.MethodAdvanceStage, req, h.svc.Workflow.AdvanceStage)
}

func (h *GRPCHandler) ReturnStage(ctx context.Context, req *api.TransitionRequest) (*api.Submission, error) {
	return h.transition(ctx, api.MethodReturnStage, req, h.svc.Workflow.ReturnStage)
}

func (h *GRPCHandler) RequestRevision(ctx context.Context, req *api.TransitionRequest) (*api.Submission, error) {
	return h.transition(ctx, api.MethodRequestRevision, req, h.svc.Workflow.RequestRevision)
}

func (h *GRPCHandler) SubmitRevision(ctx context.Context, req *api.TransitionRequest) (*api.Submission, error) {
	return h.transition(ctx, api.MethodSubmitRevision, req, h.svc.Workflow.SubmitRevision)
}

func (h *GRPCHandler) Complete(ctx context.Context, req *api.TransitionRequest) (*api.Submission, error) {
	return h.transition(ctx, api.MethodComplete, req, h.svc.Workflow.Complete)
}

func (h *GRPCHandler) Reject(ctx context.Context, req *api.TransitionRequest) (*api.Submission, error) {
	return h.transition(ctx, api.MethodReject, req, h.svc.Workflow.Reject)
}

func (h *GRPCHandler) Cancel(ctx context.Context, req *api.TransitionRequest) (*api.Submission, error) {
	return h.transition(ctx, api.MethodCancel, req, h.svc.Workflow.Cancel)
}

// ProcessReviewDecision applies a reviewer verdict
func (h *GRPCHandler) ProcessReviewDecision(ctx context.Context, req *api.ReviewDecisionRequest) (*api.Submission, error) {
	req.ReviewerID = actorID(ctx, req.ReviewerID)
	h.logger.Debug().
		Str("submission_id", req.SubmissionID).
		Str("reviewer_id", req.ReviewerID).
		Str("decision", req.Decision).
		Msg("gRPC ProcessReviewDecision called")

	if err := api.Validate(req); err != nil {
		return nil, mapErrorToGRPC(err)
	}
	sub, err := h.svc.Review.ProcessReviewDecision(ctx, req.ToService())
	if err != nil {
		return nil, mapErrorToGRPC(err)
	}
	return api.FromSubmission(sub), nil
}

func (h *GRPCHandler) GetSubmission(ctx context.Context, req *api.SubmissionRequest) (*api.SubmissionView, error) {
	if err := api.Validate(req); err != nil {
		return nil, mapErrorToGRPC(err)
	}
	view, err := h.svc.Submissions.GetSubmission(ctx, req.SubmissionID)
	if err != nil {
		return nil, mapErrorToGRPC(err)
	}
	return api.FromSubmissionView(view), nil
}

func (h *GRPCHandler) EvaluateGates(ctx context.Context, req *api.SubmissionRequest) (*api.GateReport, error) {
	if err := api.Validate(req); err != nil {
		return nil, mapErrorToGRPC(err)
	}
	report, err := h.svc.Workflow.EvaluateGates(ctx, req.SubmissionID)
	if err != nil {
		return nil, mapErrorToGRPC(err)
	}
	return api.FromGateReport(report), nil
}

func (h *GRPCHandler) GetTimeline(ctx context.Context, req *api.SubmissionRequest) (*api.Timeline, error) {
	if err := api.Validate(req); err != nil {
		return nil, mapErrorToGRPC(err)
	}
	tl, err := h.svc.Workflow.GetTimeline(ctx, req.SubmissionID)
	if err != nil {
		return nil, mapErrorToGRPC(err)
	}
	return api.FromTimeline(tl), nil
}

var _ ReviewServer = (*GRPCHandler)(nil)
