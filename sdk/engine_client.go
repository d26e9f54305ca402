package sdk

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
)

// EngineClient sends queries to a deployed prediction engine.
type EngineClient struct {
	*baseClient
}

// NewEngineClient creates an engine client. If config is nil,
// DefaultEngineConfig is used. AccessKey is ignored.
func NewEngineClient(config *Config) (*EngineClient, error) {
	base, err := newBaseClient(config, DefaultEngineConfig)
	if err != nil {
		return nil, err
	}
	return &EngineClient{baseClient: base}, nil
}

// Derive returns a new, independent client whose configuration is this
// client's with override applied.
func (c *EngineClient) Derive(override func(*Config)) (*EngineClient, error) {
	return NewEngineClient(c.derivedConfig(override))
}

// QueryResult is the JSON object returned by an engine. Its shape depends on
// the engine, so it is kept raw until the caller decodes it.
type QueryResult struct {
	raw json.RawMessage
}

// Raw returns the response body.
func (q QueryResult) Raw() json.RawMessage { return q.raw }

// Decode unmarshals the result into v.
func (q QueryResult) Decode(v interface{}) error {
	return json.Unmarshal(q.raw, v)
}

// Map returns the result as a generic JSON object.
func (q QueryResult) Map() (map[string]interface{}, error) {
	var m map[string]interface{}
	if err := q.Decode(&m); err != nil {
		return nil, err
	}
	return m, nil
}

// ItemScore is one entry of a recommendation-style result.
type ItemScore struct {
	Item  string  `json:"item"`
	Score float64 `json:"score"`
}

// ItemScores decodes the itemScores array returned by recommendation and
// similar-product engines.
func (q QueryResult) ItemScores() ([]ItemScore, error) {
	var body struct {
		ItemScores *[]ItemScore `json:"itemScores"`
	}
	if err := q.Decode(&body); err != nil {
		return nil, err
	}
	if body.ItemScores == nil {
		return nil, fmt.Errorf("result has no itemScores")
	}
	return *body.ItemScores, nil
}

// SendQueryAsync posts query to POST /queries.json. time.Time values in the
// query are encoded as ISO-8601 strings.
func (c *EngineClient) SendQueryAsync(ctx context.Context, query map[string]interface{}) (*Result[QueryResult], error) {
	const op = "queries.send"
	if query == nil {
		return nil, usageError(op, nil, "query cannot be nil")
	}
	future, err := c.postJSON(ctx, op, c.url("/queries.json", nil), normalizeTimes(query))
	if err != nil {
		return nil, err
	}
	return newResult(future, decodeQuery(op)), nil
}

// SendQuery sends a query and waits for the engine's answer.
func (c *EngineClient) SendQuery(ctx context.Context, query map[string]interface{}) (QueryResult, error) {
	res, err := c.SendQueryAsync(ctx, query)
	if err != nil {
		return QueryResult{}, err
	}
	return res.Wait(ctx)
}

func decodeQuery(op string) DecodeFunc[QueryResult] {
	return func(resp *RawResponse) (QueryResult, error) {
		if err := expectStatus(op, resp, http.StatusOK); err != nil {
			return QueryResult{}, err
		}
		trimmed := bytes.TrimSpace(resp.Body)
		if len(trimmed) == 0 || trimmed[0] != '{' || !json.Valid(trimmed) {
			return QueryResult{}, decodeError(op, resp.Body, fmt.Errorf("response is not a JSON object"))
		}
		return QueryResult{raw: append(json.RawMessage(nil), trimmed...)}, nil
	}
}
