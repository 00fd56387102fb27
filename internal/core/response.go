package core

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"scoutpup/internal/types"
)

// maxRequestBodySize is the maximum allowed size of a request body (1 MB).
const maxRequestBodySize = 1 << 20 // 1 MB

// DataResponse is the standard envelope for successful responses carrying a
// payload: {"data": ...}.
type DataResponse struct {
	Data any `json:"data"`
}

// SuccessResponse is the envelope for successful mutations with no payload:
// {"success": true}.
type SuccessResponse struct {
	Success bool `json:"success"`
}

// ErrorResponse is the envelope for all error responses: {"error": "..."}.
// The message is a stable machine-readable string for known conditions
// (e.g. "free_plan") or a human-readable description otherwise.
type ErrorResponse struct {
	Error string `json:"error"`
}

// JSON writes a JSON response with the given status code and payload.
// If marshalling fails, it falls back to a 500 error response.
func JSON(w http.ResponseWriter, r *http.Request, status int, payload any) {
	body, err := json.Marshal(payload)
	if err != nil {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusInternalServerError)
		// Best-effort write; if this also fails, there is nothing more we can do.
		_, _ = w.Write([]byte(`{"error":"failed to encode response"}`))
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(body)
}

// Data writes a 200-family response wrapping the payload in the standard
// {"data": ...} envelope.
func Data(w http.ResponseWriter, r *http.Request, status int, payload any) {
	JSON(w, r, status, DataResponse{Data: payload})
}

// Success writes {"success": true} with the given status code.
func Success(w http.ResponseWriter, r *http.Request, status int) {
	JSON(w, r, status, SuccessResponse{Success: true})
}

// Error writes an error response to the client. It inspects the error chain:
//   - If the error is (or wraps) a *types.AppError, its Code determines the
//     HTTP status and its Message becomes the "error" field.
//   - Generic errors become a 500 with a safe default message.
//
// Wrapped internal errors are never exposed to the client.
func Error(w http.ResponseWriter, r *http.Request, err error) {
	var appErr *types.AppError
	if errors.As(err, &appErr) {
		JSON(w, r, appErr.HTTPStatus(), ErrorResponse{Error: appErr.Message})
		return
	}
	JSON(w, r, http.StatusInternalServerError, ErrorResponse{Error: "an unexpected error occurred"})
}

// DecodeJSON reads the request body into dst, enforcing a 1 MB size cap.
// Unknown fields are tolerated; dashboard clients send extra fields and the
// contract is additive.
//
// Returns a *types.AppError with code "validation_invalid_json" (400) on
// syntax errors, type mismatches, an empty body, a body over the size limit,
// or a body containing more than one JSON value.
func DecodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)

	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(dst); err != nil {
		return mapDecodeError(err)
	}

	// A second Decode should hit io.EOF if the body held a single value.
	if dec.More() {
		return types.NewAppError(types.ErrCodeValidationInvalidJSON,
			"request body must contain a single JSON object", nil)
	}

	return nil
}

// mapDecodeError translates a json.Decoder error into a structured AppError.
func mapDecodeError(err error) *types.AppError {
	var maxBytesErr *http.MaxBytesError
	if errors.As(err, &maxBytesErr) {
		return types.NewAppError(types.ErrCodeValidationInvalidJSON,
			"request body must not exceed 1MB", err)
	}

	var syntaxErr *json.SyntaxError
	if errors.As(err, &syntaxErr) {
		return types.NewAppError(types.ErrCodeValidationInvalidJSON,
			"malformed JSON in request body", err)
	}

	var unmarshalTypeErr *json.UnmarshalTypeError
	if errors.As(err, &unmarshalTypeErr) {
		return types.NewAppErrorWithDetails(types.ErrCodeValidationInvalidJSON,
			"invalid value for field", err,
			map[string]any{
				"field":    unmarshalTypeErr.Field,
				"expected": unmarshalTypeErr.Type.String(),
			})
	}

	if errors.Is(err, io.EOF) {
		return types.NewAppError(types.ErrCodeValidationInvalidJSON,
			"request body must not be empty", err)
	}

	return types.NewAppError(types.ErrCodeValidationInvalidJSON,
		"invalid JSON in request body", err)
}
