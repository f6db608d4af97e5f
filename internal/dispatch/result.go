package dispatch

import (
	"bytes"
	"encoding/json"
	"time"
)

// Status is the terminal state of one model call.
type Status string

const (
	StatusOk      Status = "ok"
	StatusTimeout Status = "timeout"
	StatusError   Status = "error"
)

// Result is the outcome of calling one model within a run.
type Result struct {
	ModelID          string        `json:"model_id"`
	Status           Status        `json:"status"`
	Text             string        `json:"text,omitempty"`
	Latency          time.Duration `json:"latency"`
	Error            string        `json:"error,omitempty"`
	PromptTokens     int           `json:"prompt_tokens,omitempty"`
	CompletionTokens int           `json:"completion_tokens,omitempty"`
	StartedAt        time.Time     `json:"started_at"`
}

func (r Result) OK() bool { return r.Status == StatusOk }

// Results maps model ids to results and remembers selection order.
type Results struct {
	order []string
	byID  map[string]Result
}

func newResults(items []Result) *Results {
	rs := &Results{order: make([]string, 0, len(items)), byID: make(map[string]Result, len(items))}
	for _, it := range items {
		rs.order = append(rs.order, it.ModelID)
		rs.byID[it.ModelID] = it
	}
	return rs
}

func (rs *Results) Len() int { return len(rs.order) }

// IDs returns model ids in selection order.
func (rs *Results) IDs() []string { return append([]string(nil), rs.order...) }

func (rs *Results) Get(modelID string) (Result, bool) {
	r, ok := rs.byID[modelID]
	return r, ok
}

// List returns results in selection order.
func (rs *Results) List() []Result {
	out := make([]Result, 0, len(rs.order))
	for _, id := range rs.order {
		out = append(out, rs.byID[id])
	}
	return out
}

// Count returns how many results have the given status.
func (rs *Results) Count(s Status) int {
	n := 0
	for _, r := range rs.byID {
		if r.Status == s {
			n++
		}
	}
	return n
}

// MarshalJSON encodes an object whose keys appear in selection order.
func (rs *Results) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, id := range rs.order {
		if i > 0 {
			buf.WriteByte(',')
		}
		k, err := json.Marshal(id)
		if err != nil {
			return nil, err
		}
		v, err := json.Marshal(rs.byID[id])
		if err != nil {
			return nil, err
		}
		buf.Write(k)
		buf.WriteByte(':')
		buf.Write(v)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// UnmarshalJSON restores the mapping with its key order.
func (rs *Results) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	if _, err := dec.Token(); err != nil {
		return err
	}
	var items []Result
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return err
		}
		key, _ := tok.(string)
		var r Result
		if err := dec.Decode(&r); err != nil {
			return err
		}
		r.ModelID = key
		items = append(items, r)
	}
	*rs = *newResults(items)
	return nil
}
