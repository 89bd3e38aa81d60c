package suggest

import (
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog"
)

// Client proxies suggestion requests to the reply-suggestion service. The
// backend does not interpret the suggestion payload; it only fronts the
// service so browser clients need a single origin.
type Client struct {
	baseURL string
	client  *http.Client
	logger  zerolog.Logger
}

// NewClient creates a suggestion service client
func NewClient(baseURL string, logger zerolog.Logger) *Client {
	return &Client{
		baseURL: baseURL,
		client:  &http.Client{Timeout: 10 * time.Second},
		logger:  logger,
	}
}

// Proxy forwards a request to the suggestion service and copies the
// response back
func (c *Client) Proxy(w http.ResponseWriter, r *http.Request, method, path string) {
	url := c.baseURL + path

	var body io.Reader
	if r.Body != nil && (method == http.MethodPost || method == http.MethodPut) {
		body = r.Body
	}

	req, err := http.NewRequestWithContext(r.Context(), method, url, body)
	if err != nil {
		c.logger.Error().Err(err).Str("path", path).Msg("failed to create suggestion request")
		http.Error(w, `{"error":"internal error"}`, http.StatusInternalServerError)
		return
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		c.logger.Error().Err(err).Str("url", url).Msg("failed to reach suggestion service")
		http.Error(w, `{"error":"suggestion service unavailable"}`, http.StatusBadGateway)
		return
	}
	defer resp.Body.Close()

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(resp.StatusCode)
	io.Copy(w, resp.Body)
}
