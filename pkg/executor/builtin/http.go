package builtin

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"time"

	"github.com/dagline/dagline/pkg/executor"
	"github.com/dagline/dagline/pkg/models"
)

// HTTPExecutor performs one outbound HTTP request per invocation.
// Config: url (required), method (default GET), headers (mapping),
// body (string, used for POST/PUT). Non-2xx responses are reported as
// failed with the response still populated in output, per spec §4.5.
type HTTPExecutor struct {
	*executor.BaseExecutor
	client *http.Client
}

func NewHTTPExecutor() *HTTPExecutor {
	return &HTTPExecutor{
		BaseExecutor: executor.NewBaseExecutor(string(models.NodeKindHTTP)),
		client:       &http.Client{Timeout: 60 * time.Second},
	}
}

func (e *HTTPExecutor) Validate(node *models.Node) error {
	url, _ := node.Config["url"].(string)
	if url == "" {
		return &models.ValidationError{Field: "config.url", Message: "http node requires a non-empty url", NodeIDs: []string{node.ID}}
	}
	return nil
}

func (e *HTTPExecutor) Execute(ctx context.Context, req executor.Request) (*models.NodeResult, error) {
	start := time.Now()
	config, err := req.Resolver.ResolveMap(req.Node.Config)
	if err != nil {
		return failed(req.Node.ID, start, models.ErrKindInternal, err.Error(), nil), nil
	}

	rawURL, _ := config["url"].(string)
	method := e.GetStringDefault(config, "method", http.MethodGet)

	var bodyReader io.Reader
	if b, ok := config["body"].(string); ok && b != "" {
		bodyReader = bytes.NewReader([]byte(b))
	}

	httpReq, err := http.NewRequestWithContext(ctx, method, rawURL, bodyReader)
	if err != nil {
		return failed(req.Node.ID, start, models.ErrKindInternal, err.Error(), nil), nil
	}

	if headers, err := e.GetMap(config, "headers"); err == nil {
		for k, v := range headers {
			if s, ok := v.(string); ok {
				httpReq.Header.Set(k, s)
			}
		}
	}

	resp, err := e.client.Do(httpReq)
	if err != nil {
		return failed(req.Node.ID, start, models.ErrKindRemoteFailure, err.Error(), nil), nil
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return failed(req.Node.ID, start, models.ErrKindRemoteFailure, err.Error(), nil), nil
	}

	headerMap := make(map[string]interface{}, len(resp.Header))
	for k, v := range resp.Header {
		if len(v) > 0 {
			headerMap[k] = v[0]
		}
	}

	output := map[string]interface{}{
		"status":  resp.StatusCode,
		"headers": headerMap,
		"body":    string(respBody),
	}

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return success(req.Node.ID, start, output), nil
	}
	return failed(req.Node.ID, start, models.ErrKindRemoteFailure, http.StatusText(resp.StatusCode), output), nil
}
