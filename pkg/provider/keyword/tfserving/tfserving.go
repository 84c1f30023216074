// Package tfserving provides a keyword classifier backed by a TensorFlow
// Serving instance, using its REST predict API.
//
// Each Classify call issues one POST /v1/models/{model}:predict request whose
// "instances" array holds the single input tensor without its batch
// dimension. The first row of the returned "predictions" array is taken as
// the per-class scores.
//
// Typical usage:
//
//	c, err := tfserving.New("http://localhost:8501", "speech_commands",
//	    []string{"down", "go", "left", "no", "right", "stop", "up", "yes"},
//	    tfserving.WithTimeout(500*time.Millisecond),
//	)
//	scores, err := c.Classify(ctx, tensor)
package tfserving

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/MrWong99/sparkie/pkg/provider/keyword"
)

// Compile-time interface assertion.
var _ keyword.Classifier = (*Classifier)(nil)

const (
	defaultTimeout = 2 * time.Second

	// maxErrorBody caps how much of a failed response is quoted in errors.
	maxErrorBody = 512
)

// Option is a functional option for configuring a Classifier.
type Option func(*Classifier)

// WithTimeout sets the per-request HTTP timeout. Defaults to 2 s.
func WithTimeout(d time.Duration) Option {
	return func(c *Classifier) {
		c.httpClient.Timeout = d
	}
}

// WithVersion pins requests to a specific model version.
func WithVersion(v int) Option {
	return func(c *Classifier) {
		c.version = v
	}
}

// WithSignature selects a non-default serving signature.
func WithSignature(name string) Option {
	return func(c *Classifier) {
		c.signature = name
	}
}

// WithHTTPClient replaces the HTTP client. The configured timeout is kept
// unless the supplied client sets its own.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Classifier) {
		if hc.Timeout == 0 {
			hc.Timeout = c.httpClient.Timeout
		}
		c.httpClient = hc
	}
}

// Classifier implements keyword.Classifier against TensorFlow Serving.
// It is safe for concurrent use.
type Classifier struct {
	serverURL  string
	model      string
	version    int
	signature  string
	labels     []string
	httpClient *http.Client
}

// New creates a Classifier for model served at serverURL. labels names the
// model's output classes in score order; TensorFlow Serving does not expose
// them.
func New(serverURL, model string, labels []string, opts ...Option) (*Classifier, error) {
	if serverURL == "" {
		return nil, errors.New("tfserving: serverURL must not be empty")
	}
	if model == "" {
		return nil, errors.New("tfserving: model must not be empty")
	}
	if len(labels) == 0 {
		return nil, errors.New("tfserving: labels must not be empty")
	}
	c := &Classifier{
		serverURL:  strings.TrimRight(serverURL, "/"),
		model:      model,
		labels:     append([]string(nil), labels...),
		httpClient: &http.Client{Timeout: defaultTimeout},
	}
	for _, o := range opts {
		o(c)
	}
	return c, nil
}

// Labels implements keyword.Classifier.
func (c *Classifier) Labels() []string { return c.labels }

type predictResponse struct {
	Predictions [][]float64 `json:"predictions"`
	Error       string      `json:"error,omitempty"`
}

// Classify implements keyword.Classifier.
func (c *Classifier) Classify(ctx context.Context, input keyword.Tensor) ([]float64, error) {
	if err := input.Validate(); err != nil {
		return nil, fmt.Errorf("tfserving: %w", err)
	}

	body := encodeRequest(input, c.signature)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.predictURL(), bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("tfserving: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("tfserving: predict: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("tfserving: read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("tfserving: predict returned %s: %s", resp.Status, truncate(raw))
	}

	var out predictResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("tfserving: decode response: %w", err)
	}
	if out.Error != "" {
		return nil, fmt.Errorf("tfserving: %s", out.Error)
	}
	if len(out.Predictions) == 0 {
		return nil, errors.New("tfserving: response has no predictions")
	}
	scores := out.Predictions[0]
	if len(scores) != len(c.labels) {
		return nil, fmt.Errorf("tfserving: got %d scores for %d labels", len(scores), len(c.labels))
	}
	return scores, nil
}

func (c *Classifier) predictURL() string {
	u := c.serverURL + "/v1/models/" + c.model
	if c.version > 0 {
		u += "/versions/" + strconv.Itoa(c.version)
	}
	return u + ":predict"
}

// encodeRequest renders {"instances":[...]} with the tensor's batch
// dimension becoming the instances list. Values are written directly to keep
// large spectrograms from going through reflection.
func encodeRequest(t keyword.Tensor, signature string) []byte {
	var buf bytes.Buffer
	buf.Grow(len(t.Data)*8 + 64)
	buf.WriteByte('{')
	if signature != "" {
		buf.WriteString(`"signature_name":`)
		sig, _ := json.Marshal(signature)
		buf.Write(sig)
		buf.WriteByte(',')
	}
	buf.WriteString(`"instances":`)
	writeNested(&buf, t.Shape, t.Data)
	buf.WriteByte('}')
	return buf.Bytes()
}

func writeNested(buf *bytes.Buffer, shape []int, data []float32) {
	buf.WriteByte('[')
	if len(shape) == 1 {
		var num []byte
		for i, v := range data {
			if i > 0 {
				buf.WriteByte(',')
			}
			num = strconv.AppendFloat(num[:0], float64(v), 'g', -1, 32)
			buf.Write(num)
		}
	} else {
		stride := len(data) / shape[0]
		for i := range shape[0] {
			if i > 0 {
				buf.WriteByte(',')
			}
			writeNested(buf, shape[1:], data[i*stride:(i+1)*stride])
		}
	}
	buf.WriteByte(']')
}

func truncate(b []byte) string {
	s := strings.TrimSpace(string(b))
	if len(s) > maxErrorBody {
		return s[:maxErrorBody] + "…"
	}
	return s
}
