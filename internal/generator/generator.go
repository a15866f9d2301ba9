package generator

// #region imports
import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"golang.org/x/time/rate"
)

// #endregion imports

// #region errors

// ServiceError wraps any paraphrase-service failure: timeouts, rate-limit
// signals, and responses that do not validate against the contract. A cycle
// that hits one aborts with full rollback; there is no partial success.
type ServiceError struct {
	Reason string // "timeout" | "rate_limited" | "http_status" | "malformed_response" | "empty_response"
	Err    error
}

func (e *ServiceError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("generator: %s: %v", e.Reason, e.Err)
	}
	return fmt.Sprintf("generator: %s", e.Reason)
}

func (e *ServiceError) Unwrap() error { return e.Err }

// IsServiceError reports whether err came from the paraphrase service.
func IsServiceError(err error) bool {
	var se *ServiceError
	return errors.As(err, &se)
}

// #endregion errors

// #region interface

// Expander is the capability the learning engine needs from the paraphrase
// generator: expand one string into up to count related strings. Tests
// substitute a deterministic stub.
type Expander interface {
	Expand(ctx context.Context, text string, count int, diversity float64) ([]string, error)
}

// #endregion interface

// #region wire-types

type expandRequest struct {
	SourceText   string  `json:"source_text"`
	DesiredCount int     `json:"desired_count"`
	Diversity    float64 `json:"diversity"`
}

type expandResponse struct {
	Variations []string `json:"variations"`
}

// #endregion wire-types

// #region client

// Client talks JSON-over-HTTP to the external paraphrase service.
type Client struct {
	url     string
	httpc   *http.Client
	limiter *rate.Limiter
}

// NewClient creates a client for the service at url. timeout bounds each
// call; rps caps outbound request rate so a burst of cycles cannot trip the
// service's own limiter.
func NewClient(url string, timeout time.Duration, rps float64) *Client {
	if rps <= 0 {
		rps = 1
	}
	return &Client{
		url:     url,
		httpc:   &http.Client{Timeout: timeout},
		limiter: rate.NewLimiter(rate.Limit(rps), 1),
	}
}

// Expand requests paraphrases of text. The response must be a JSON object
// holding a non-empty list of at most count non-empty strings; anything
// else is a ServiceError, never a partial result.
func (c *Client) Expand(ctx context.Context, text string, count int, diversity float64) ([]string, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, &ServiceError{Reason: "timeout", Err: err}
	}

	body, err := json.Marshal(expandRequest{
		SourceText:   text,
		DesiredCount: count,
		Diversity:    diversity,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpc.Do(req)
	if err != nil {
		reason := "http_status"
		if errors.Is(err, context.DeadlineExceeded) || isTimeout(err) {
			reason = "timeout"
		}
		return nil, &ServiceError{Reason: reason, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		return nil, &ServiceError{Reason: "rate_limited", Err: fmt.Errorf("status %d", resp.StatusCode)}
	}
	if resp.StatusCode != http.StatusOK {
		return nil, &ServiceError{Reason: "http_status", Err: fmt.Errorf("status %d", resp.StatusCode)}
	}

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &ServiceError{Reason: "malformed_response", Err: err}
	}
	return Validate(raw, count)
}

// isTimeout recognizes net-level timeout errors.
func isTimeout(err error) bool {
	var t interface{ Timeout() bool }
	return errors.As(err, &t) && t.Timeout()
}

// #endregion client

// #region validate

// Validate enforces the response schema at the boundary: a JSON object with
// a "variations" list of 1..max non-empty strings. No best-effort parsing.
func Validate(raw []byte, max int) ([]string, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()

	var parsed expandResponse
	if err := dec.Decode(&parsed); err != nil {
		return nil, &ServiceError{Reason: "malformed_response", Err: err}
	}
	if parsed.Variations == nil {
		return nil, &ServiceError{Reason: "malformed_response", Err: errors.New("missing variations list")}
	}
	if len(parsed.Variations) == 0 {
		return nil, &ServiceError{Reason: "empty_response"}
	}
	if max > 0 && len(parsed.Variations) > max {
		return nil, &ServiceError{Reason: "malformed_response",
			Err: fmt.Errorf("%d variations exceeds requested %d", len(parsed.Variations), max)}
	}
	for i, v := range parsed.Variations {
		if v == "" {
			return nil, &ServiceError{Reason: "malformed_response",
				Err: fmt.Errorf("empty variation at index %d", i)}
		}
	}
	return parsed.Variations, nil
}

// #endregion validate
