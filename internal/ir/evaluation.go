package ir

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
)

var validate = validator.New()

// EvaluationRequest is an immutable request to run source in the sandbox.
type EvaluationRequest struct {
	Source      string    `json:"source"`
	RequestedAt time.Time `json:"requested_at" validate:"required"`
	TimeoutMs   int64     `json:"timeout_ms" validate:"gt=0"`
	Debug       bool      `json:"debug,omitempty"`
	Log         bool      `json:"log,omitempty"`
}

// InvalidRequestPrefix starts the error text of a request that failed
// Validate.
const InvalidRequestPrefix = "invalid evaluation request: "

// Validate checks struct constraints on the request.
func (r EvaluationRequest) Validate() error {
	if err := validate.Struct(r); err != nil {
		return fmt.Errorf(InvalidRequestPrefix+"%w", err)
	}
	return nil
}

// Timeout returns TimeoutMs as a duration.
func (r EvaluationRequest) Timeout() time.Duration {
	return time.Duration(r.TimeoutMs) * time.Millisecond
}

// EvaluationResponse is the outcome of one evaluation: either a result or an
// error, never both. Construct with Succeeded or Failed.
//
// Callers branch on OK() to detect any failure.
type EvaluationResponse struct {
	ok        bool
	result    string
	err       string
	startTime time.Time
	endTime   time.Time
}

// Succeeded returns a response carrying a result.
func Succeeded(result string, start, end time.Time) EvaluationResponse {
	return EvaluationResponse{ok: true, result: result, startTime: start, endTime: end}
}

// Failed returns a response carrying an error message.
func Failed(err string, start, end time.Time) EvaluationResponse {
	return EvaluationResponse{err: err, startTime: start, endTime: end}
}

// OK reports whether the evaluation produced a result.
func (r EvaluationResponse) OK() bool { return r.ok }

// Result returns the result and true, or "" and false for a failure.
func (r EvaluationResponse) Result() (string, bool) {
	return r.result, r.ok
}

// Err returns the error message, or "" for a success.
func (r EvaluationResponse) Err() string { return r.err }

// StartTime returns when the evaluation began.
func (r EvaluationResponse) StartTime() time.Time { return r.startTime }

// EndTime returns when the evaluation finished.
func (r EvaluationResponse) EndTime() time.Time { return r.endTime }

// Duration returns EndTime - StartTime.
func (r EvaluationResponse) Duration() time.Duration {
	return r.endTime.Sub(r.startTime)
}

type evaluationResponseJSON struct {
	Result    *string   `json:"result"`
	Error     *string   `json:"error"`
	StartTime time.Time `json:"start_time"`
	EndTime   time.Time `json:"end_time"`
}

// MarshalJSON renders {result, error, start_time, end_time} with exactly one
// of result/error non-null.
func (r EvaluationResponse) MarshalJSON() ([]byte, error) {
	out := evaluationResponseJSON{StartTime: r.startTime, EndTime: r.endTime}
	if r.ok {
		out.Result = &r.result
	} else {
		out.Error = &r.err
	}
	return json.Marshal(out)
}

// UnmarshalJSON implements json.Unmarshaler.
func (r *EvaluationResponse) UnmarshalJSON(data []byte) error {
	var in evaluationResponseJSON
	if err := json.Unmarshal(data, &in); err != nil {
		return err
	}
	switch {
	case in.Result != nil && in.Error == nil:
		*r = Succeeded(*in.Result, in.StartTime, in.EndTime)
	case in.Result == nil && in.Error != nil:
		*r = Failed(*in.Error, in.StartTime, in.EndTime)
	default:
		return fmt.Errorf("evaluation response must carry exactly one of result or error")
	}
	return nil
}

// Envelope types crossing the sandbox boundary.
const (
	EnvelopeLoaded   = "loaded"
	EnvelopeResponse = "response"
)

// RequestEnvelope is the only message the host sends into the sandbox.
type RequestEnvelope struct {
	EvaluationID int64  `json:"evaluation_id"`
	Source       string `json:"source"`
	TimeoutMs    int64  `json:"timeout_ms"`
	Debug        bool   `json:"debug"`
	Log          bool   `json:"log"`
}

// ResponseEnvelope is the only message the sandbox sends back, apart from
// the one-time loaded signal (Type == EnvelopeLoaded).
type ResponseEnvelope struct {
	Type         string   `json:"type"`
	EvaluationID int64    `json:"evaluation_id,omitempty"`
	Result       *string  `json:"result"`
	Error        *string  `json:"error"`
	Logs         []string `json:"logs,omitempty"`
}

// Valid reports whether a response envelope carries exactly one of
// result or error.
func (e ResponseEnvelope) Valid() bool {
	return (e.Result == nil) != (e.Error == nil)
}
