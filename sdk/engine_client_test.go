package sdk

import (
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/birbparty/pio-go/sdk/testdata"
)

func newTestEngineClient(t *testing.T, ts *testdata.TestSuite) *EngineClient {
	t.Helper()
	client, err := NewEngineClient(DefaultEngineConfig().
		WithBaseURL(ts.BaseURL).
		WithLogger(quietLogger()))
	require.NoError(t, err)
	t.Cleanup(func() { client.Close() })
	return client
}

func TestNewEngineClient_Defaults(t *testing.T) {
	client, err := NewEngineClient(nil)
	require.NoError(t, err)
	defer client.Close()
	assert.Equal(t, DefaultEngineURL, client.Config().BaseURL)
}

func TestEngineClient_SendQuery(t *testing.T) {
	ts := testdata.NewTestSuite(t, "")
	client := newTestEngineClient(t, ts)

	result, err := client.SendQuery(ts.Context, map[string]interface{}{
		"user": "u1",
		"num":  3,
	})
	require.NoError(t, err)

	scores, err := result.ItemScores()
	require.NoError(t, err)
	require.Len(t, scores, 3)
	assert.Equal(t, "i1", scores[0].Item)
	assert.InDelta(t, 0.3, scores[0].Score, 1e-9)

	m, err := result.Map()
	require.NoError(t, err)
	assert.Contains(t, m, "itemScores")

	reqs := ts.Server.GetRequests()
	require.Len(t, reqs, 1)
	assert.Equal(t, "/queries.json", reqs[0].Path)
	assert.Empty(t, reqs[0].Query)
	body := decodeRecorded(t, reqs[0])
	assert.Equal(t, "u1", body["user"])
}

func TestEngineClient_QueryTimesEncoded(t *testing.T) {
	ts := testdata.NewTestSuite(t, "")
	client := newTestEngineClient(t, ts)

	_, err := client.SendQuery(ts.Context, map[string]interface{}{
		"user":   "u1",
		"after":  testdata.ReferenceTime,
		"window": []interface{}{testdata.ReferenceTime.Add(time.Hour)},
	})
	require.NoError(t, err)

	body := decodeRecorded(t, ts.Server.GetRequests()[0])
	assert.Equal(t, "1794-07-27T00:00:00.000+00:00", body["after"])
	assert.Equal(t, []interface{}{"1794-07-27T01:00:00.000+00:00"}, body["window"])
}

func TestEngineClient_Errors(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
		check  func(t *testing.T, err error)
	}{
		{
			name:   "engine error",
			status: http.StatusInternalServerError,
			body:   `{"message":"engine failed"}`,
			check: func(t *testing.T, err error) {
				assert.True(t, IsProtocol(err))
				assert.Equal(t, http.StatusInternalServerError, StatusCode(err))
			},
		},
		{
			name:   "array body",
			status: http.StatusOK,
			body:   `[1,2,3]`,
			check:  func(t *testing.T, err error) { assert.True(t, IsDecode(err)) },
		},
		{
			name:   "not json",
			status: http.StatusOK,
			body:   `<html>`,
			check:  func(t *testing.T, err error) { assert.True(t, IsDecode(err)) },
		},
		{
			name:   "truncated object",
			status: http.StatusOK,
			body:   `{"itemScores":[`,
			check: func(t *testing.T, err error) {
				assert.True(t, IsDecode(err))
				assert.Equal(t, `{"itemScores":[`, ResponseBody(err))
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ts := testdata.NewTestSuite(t, "")
			ts.Server.WithRawResponse("POST /queries.json", tt.status, tt.body)
			client := newTestEngineClient(t, ts)

			_, err := client.SendQuery(ts.Context, map[string]interface{}{"user": "u1"})
			require.Error(t, err)
			tt.check(t, err)
		})
	}
}

func TestEngineClient_NilQuery(t *testing.T) {
	ts := testdata.NewTestSuite(t, "")
	client := newTestEngineClient(t, ts)

	_, err := client.SendQueryAsync(ts.Context, nil)
	assert.True(t, IsUsage(err))
	assert.Equal(t, 0, ts.Server.GetRequestCount())
}

func TestQueryResult_ItemScoresMissing(t *testing.T) {
	q := QueryResult{raw: []byte(`{"categories":["a"]}`)}
	_, err := q.ItemScores()
	assert.Error(t, err)

	var custom struct {
		Categories []string `json:"categories"`
	}
	require.NoError(t, q.Decode(&custom))
	assert.Equal(t, []string{"a"}, custom.Categories)
	assert.JSONEq(t, `{"categories":["a"]}`, string(q.Raw()))
}
