package api

import (
	"encoding/json"

	"google.golang.org/grpc/encoding"
)

// CodecName is the gRPC content subtype under which the JSON codec is
// registered. Clients select it with grpc.CallContentSubtype(CodecName).
const CodecName = "json"

type jsonCodec struct{}

func (jsonCodec) Marshal(v interface{}) ([]byte, error) { return json.Marshal(v) }
func (jsonCodec) Unmarshal(data []byte, v interface{}) error { return json.Unmarshal(data, v) }
func (jsonCodec) Name() string { return CodecName }

func init() {
	encoding.RegisterCodec(jsonCodec{})
}

// ServiceName is the fully qualified gRPC service name.
const ServiceName = "ipreview.v1.ReviewService"

// gRPC method names on ServiceName.
const (
	MethodSubmit                = "Submit"
	MethodStartReview           = "StartReview"
	MethodAdvanceStage          = "AdvanceStage"
	MethodReturnStage           = "ReturnStage"
	MethodRequestRevision       = "RequestRevision"
	MethodSubmitRevision        = "SubmitRevision"
	MethodComplete              = "Complete"
	MethodReject                = "Reject"
	MethodCancel                = "Cancel"
	MethodProcessReviewDecision = "ProcessReviewDecision"
	MethodGetSubmission         = "GetSubmission"
	MethodEvaluateGates         = "EvaluateGates"
	MethodGetTimeline           = "GetTimeline"
)

// FullMethod returns "/<service>/<method>".
func FullMethod(method string) string {
	return "/" + ServiceName + "/" + method
}

// ActorMetadataKey carries the caller identity on gRPC requests.
const ActorMetadataKey = "x-actor-id"
