package ir

import (
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEvaluationResponseSumType(t *testing.T) {
	start := time.Unix(100, 0).UTC()
	end := start.Add(5 * time.Millisecond)

	ok := Succeeded("44", start, end)
	result, isOK := ok.Result()
	assert.True(t, isOK)
	assert.True(t, ok.OK())
	assert.Equal(t, "44", result)
	assert.Empty(t, ok.Err())
	assert.Equal(t, 5*time.Millisecond, ok.Duration())

	failed := Failed("load timeout", start, end)
	result, isOK = failed.Result()
	assert.False(t, isOK)
	assert.Empty(t, result)
	assert.Equal(t, "load timeout", failed.Err())
}

func TestEvaluationResponseJSON(t *testing.T) {
	start := time.Unix(100, 0).UTC()

	data, err := json.Marshal(Succeeded("", start, start))
	require.NoError(t, err)
	assert.Contains(t, string(data), `"result":""`)
	assert.Contains(t, string(data), `"error":null`)

	data, err = json.Marshal(Failed("boom", start, start))
	require.NoError(t, err)
	assert.Contains(t, string(data), `"result":null`)
	assert.Contains(t, string(data), `"error":"boom"`)

	var decoded EvaluationResponse
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.False(t, decoded.OK())
	assert.Equal(t, "boom", decoded.Err())

	err = json.Unmarshal([]byte(`{"result":"1","error":"2"}`), &decoded)
	assert.Error(t, err, "both fields set")
	err = json.Unmarshal([]byte(`{"result":null,"error":null}`), &decoded)
	assert.Error(t, err, "neither field set")
}

func TestEvaluationRequestValidate(t *testing.T) {
	req := EvaluationRequest{Source: "1", RequestedAt: time.Now(), TimeoutMs: 1000}
	require.NoError(t, req.Validate())
	assert.Equal(t, time.Second, req.Timeout())

	req.TimeoutMs = 0
	err := req.Validate()
	require.Error(t, err)
	assert.True(t, strings.HasPrefix(err.Error(), InvalidRequestPrefix), err.Error())

	req = EvaluationRequest{Source: "1", TimeoutMs: 10}
	assert.Error(t, req.Validate(), "requested_at is required")
}

func TestResponseEnvelopeValid(t *testing.T) {
	r, e := "1", "x"
	assert.True(t, ResponseEnvelope{Result: &r}.Valid())
	assert.True(t, ResponseEnvelope{Error: &e}.Valid())
	assert.False(t, ResponseEnvelope{}.Valid())
	assert.False(t, ResponseEnvelope{Result: &r, Error: &e}.Valid())
}
