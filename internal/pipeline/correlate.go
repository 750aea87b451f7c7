package pipeline

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"sync"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/prospect-cli/internal/model"
	"github.com/sells-group/prospect-cli/internal/store"
)

// ErrUnknownShape marks a research response whose wrapping the
// correlator does not recognize. New shapes fail loudly instead of
// silently producing an empty result.
var ErrUnknownShape = eris.New("unrecognized research response shape")

// Correlator maps research results back onto records. The synchronous
// path knows the record ids; the asynchronous callback path resolves
// them via correlation token or, failing that, an identity match
// against all currently-processing records.
type Correlator struct {
	store store.Store

	mu     sync.Mutex
	tokens map[string][]string // correlation token -> record ids, for in-flight batches
}

// NewCorrelator creates a Correlator backed by the given store.
func NewCorrelator(st store.Store) *Correlator {
	return &Correlator{
		store:  st,
		tokens: make(map[string][]string),
	}
}

// RegisterBatch makes the batch's correlation token resolvable while
// its dispatch cycle is in flight.
func (c *Correlator) RegisterBatch(batch model.DispatchBatch) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.tokens[batch.Token] = batch.RecordIDs()
}

// ReleaseBatch forgets the batch's correlation token once its cycle
// has resolved.
func (c *Correlator) ReleaseBatch(batch model.DispatchBatch) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.tokens, batch.Token)
}

func (c *Correlator) lookupToken(token string) ([]string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	ids, ok := c.tokens[token]
	return ids, ok
}

// DecodeResult unwraps a research response body into the result
// payload stored on records. Recognized shapes: a bare object, an
// array wrapping one, `{"output": ...}`, and
// `{"response": {"body": {"output": ...}}}`.
func DecodeResult(body []byte) (json.RawMessage, error) {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 {
		return nil, eris.Wrap(ErrUnknownShape, "correlate: empty body")
	}

	if trimmed[0] == '[' {
		var arr []json.RawMessage
		if err := json.Unmarshal(trimmed, &arr); err != nil {
			return nil, eris.Wrapf(ErrUnknownShape, "correlate: bad array: %v", err)
		}
		if len(arr) == 0 {
			return nil, eris.Wrap(ErrUnknownShape, "correlate: empty array")
		}
		return unwrapObject(arr[0])
	}
	if trimmed[0] == '{' {
		return unwrapObject(trimmed)
	}
	return nil, eris.Wrap(ErrUnknownShape, "correlate: not an object or array")
}

func unwrapObject(raw json.RawMessage) (json.RawMessage, error) {
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(raw, &obj); err != nil {
		return nil, eris.Wrapf(ErrUnknownShape, "correlate: bad object: %v", err)
	}

	if resp, ok := obj["response"]; ok {
		var inner map[string]json.RawMessage
		if err := json.Unmarshal(resp, &inner); err != nil {
			return nil, eris.Wrap(ErrUnknownShape, "correlate: response not an object")
		}
		body, ok := inner["body"]
		if !ok {
			return nil, eris.Wrap(ErrUnknownShape, "correlate: response missing body")
		}
		var bodyObj map[string]json.RawMessage
		if err := json.Unmarshal(body, &bodyObj); err != nil {
			return nil, eris.Wrap(ErrUnknownShape, "correlate: response.body not an object")
		}
		output, ok := bodyObj["output"]
		if !ok {
			return nil, eris.Wrap(ErrUnknownShape, "correlate: response.body missing output")
		}
		return output, nil
	}

	if output, ok := obj["output"]; ok {
		return output, nil
	}

	// Bare result object.
	return raw, nil
}

// ApplyToBatch transitions every record id to completed with the same
// result payload. Already-terminal records are skipped as no-ops.
func (c *Correlator) ApplyToBatch(ctx context.Context, recordIDs []string, result json.RawMessage) error {
	for _, id := range recordIDs {
		applied, err := c.store.CompleteRecord(ctx, id, result)
		if err != nil {
			return eris.Wrapf(err, "correlate: complete record %s", id)
		}
		if !applied {
			zap.L().Debug("correlate: record already terminal", zap.String("record_id", id))
		}
	}
	return nil
}

// callbackEnvelope carries the optional correlation token and the
// identity hints used by the heuristic fallback.
type callbackEnvelope struct {
	Token     string `json:"correlation_token"`
	Email     string `json:"email"`
	AltEmail  string `json:"EMail"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Name      string `json:"name"`
}

func (e callbackEnvelope) email() string {
	if e.Email != "" {
		return e.Email
	}
	return e.AltEmail
}

func (e callbackEnvelope) fullName() string {
	if e.Name != "" {
		return e.Name
	}
	return strings.TrimSpace(e.FirstName + " " + e.LastName)
}

// ApplyCallback handles an out-of-band research result. Resolution
// order: correlation token, then email, then name. A miss is logged
// and the payload discarded; it is never an error to the caller.
func (c *Correlator) ApplyCallback(ctx context.Context, payload []byte) error {
	result, err := DecodeResult(payload)
	if err != nil {
		return err
	}

	var env callbackEnvelope
	// Identity hints may sit on the wrapper or the unwrapped result.
	_ = json.Unmarshal(payload, &env)
	if env.Token == "" && env.email() == "" && env.fullName() == "" {
		_ = json.Unmarshal(result, &env)
	}

	if env.Token != "" {
		if ids, ok := c.lookupToken(env.Token); ok {
			zap.L().Info("correlate: callback matched by token",
				zap.String("token", env.Token),
				zap.Int("records", len(ids)),
			)
			return c.ApplyToBatch(ctx, ids, result)
		}
	}

	rec, err := c.matchProcessing(ctx, env)
	if err != nil {
		return err
	}
	if rec == nil {
		zap.L().Warn("correlate: callback matched no processing record, discarding",
			zap.String("email", env.email()),
			zap.String("name", env.fullName()),
		)
		return nil
	}

	zap.L().Warn("correlate: callback resolved via identity heuristic",
		zap.String("record_id", rec.ID),
		zap.String("email", env.email()),
	)
	applied, err := c.store.CompleteRecord(ctx, rec.ID, result)
	if err != nil {
		return eris.Wrapf(err, "correlate: complete record %s", rec.ID)
	}
	if !applied {
		zap.L().Debug("correlate: record already terminal", zap.String("record_id", rec.ID))
	}
	return nil
}

// matchProcessing scans processing records across all tenants for a
// case-insensitive email match, falling back to name containment.
func (c *Correlator) matchProcessing(ctx context.Context, env callbackEnvelope) (*model.Record, error) {
	email := strings.ToLower(strings.TrimSpace(env.email()))
	name := strings.ToLower(strings.TrimSpace(env.fullName()))
	if email == "" && name == "" {
		return nil, nil
	}

	processing, err := c.store.ListRecords(ctx, store.RecordFilter{
		Status: model.RecordStatusProcessing,
		Limit:  10000,
	})
	if err != nil {
		return nil, eris.Wrap(err, "correlate: list processing records")
	}

	if email != "" {
		for i := range processing {
			if strings.ToLower(processing[i].Identity.Email) == email {
				return &processing[i], nil
			}
		}
	}
	if name != "" {
		for i := range processing {
			recName := strings.ToLower(processing[i].Identity.FullName())
			if recName != "" && (strings.Contains(recName, name) || strings.Contains(name, recName)) {
				return &processing[i], nil
			}
		}
	}
	return nil, nil
}
