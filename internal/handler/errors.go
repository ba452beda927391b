package handler

import (
	"encoding/json"
	"net/http"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/pesio-ai/be-ip-review/internal/api"
	"github.com/pesio-ai/be-ip-review/internal/platform/errors"
	"github.com/pesio-ai/be-ip-review/internal/workflow"
)

// httpStatus maps an error code onto the HTTP status returned to callers.
func httpStatus(code errors.Code) int {
	switch code {
	case errors.ErrCodeInvalidInput:
		return http.StatusBadRequest
	case errors.ErrCodeNotFound:
		return http.StatusNotFound
	case errors.ErrCodeConflict, errors.ErrCodeConcurrentModification:
		return http.StatusConflict
	case errors.ErrCodePreconditionFailed:
		return http.StatusUnprocessableEntity
	case errors.ErrCodeUnauthorized:
		return http.StatusUnauthorized
	default:
		return http.StatusInternalServerError
	}
}

func grpcCode(code errors.Code) codes.Code {
	switch code {
	case errors.ErrCodeInvalidInput:
		return codes.InvalidArgument
	case errors.ErrCodeNotFound:
		return codes.NotFound
	case errors.ErrCodeConflict, errors.ErrCodePreconditionFailed:
		return codes.FailedPrecondition
	case errors.ErrCodeConcurrentModification:
		return codes.Aborted
	case errors.ErrCodeUnauthorized:
		return codes.Unauthenticated
	default:
		return codes.Internal
	}
}

// errorBody renders err for the wire. Internal failures are not described
// beyond their code.
func errorBody(err error) api.ErrorBody {
	code := errors.CodeOf(err)
	body := api.ErrorBody{Code: string(code), Message: err.Error()}
	if code == errors.ErrCodeInternal {
		body.Message = "internal error"
		return body
	}

	var (
		ve   *workflow.ValidationError
		gate *workflow.GateNotSatisfiedError
		app  *errors.AppError
	)
	switch {
	case errors.As(err, &ve):
		body.Field = ve.Field
	case errors.As(err, &gate):
		body.Details = map[string]interface{}{
			"scope":    string(gate.Scope),
			"stage_id": gate.StageID,
			"unmet":    gate.Unmet,
		}
	case errors.As(err, &app):
		body.Field = app.Field
		body.Details = app.Details
	}
	return body
}

func writeJSON(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, err error) {
	writeJSON(w, httpStatus(errors.CodeOf(err)), map[string]interface{}{"error": errorBody(err)})
}

// mapErrorToGRPC converts a service error into a gRPC status carrying the
// application code in its message.
func mapErrorToGRPC(err error) error {
	if err == nil {
		return nil
	}
	body := errorBody(err)
	return status.Error(grpcCode(errors.Code(body.Code)), body.Code+": "+body.Message)
}
