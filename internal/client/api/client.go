package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/sethvargo/go-retry"

	"github.com/iudanet/offsync/pkg/api"
)

//go:generate moq -out client_mock.go . ClientAPI

// ClientAPI описывает операции клиента против сервера синхронизации.
type ClientAPI interface {
	// Push отправляет batch операций на сервер.
	Push(ctx context.Context, req api.PushRequest) (*api.PushResponse, error)
	// Health проверяет доступность сервера.
	Health(ctx context.Context) error
}

// Client представляет HTTP клиент для взаимодействия с сервером
type Client struct {
	httpClient *http.Client
	baseURL    string
	retryBase  time.Duration
	retries    uint64
}

// NewClient создает новый API клиент
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL:   baseURL,
		retries:   3,
		retryBase: 500 * time.Millisecond,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// Push отправляет batch операций на сервер синхронизации.
// Транзиентные ошибки (сетевые, 5xx) повторяются с fibonacci backoff;
// ошибки уровня операции приходят в теле ответа и не ретраятся.
func (c *Client) Push(ctx context.Context, req api.PushRequest) (*api.PushResponse, error) {
	var resp api.PushResponse
	err := c.doRequestRetry(ctx, "POST", "/api/v1/sync", req, &resp)
	if err != nil {
		return nil, fmt.Errorf("sync push failed: %w", err)
	}
	return &resp, nil
}

// Health проверяет доступность сервера.
func (c *Client) Health(ctx context.Context) error {
	if err := c.doRequest(ctx, "GET", "/healthz", nil, nil); err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	return nil
}

// serverError ошибка уровня HTTP с кодом статуса.
type serverError struct {
	message    string
	statusCode int
}

func (e *serverError) Error() string {
	return fmt.Sprintf("server error (%d): %s", e.statusCode, e.message)
}

// doRequestRetry выполняет запрос с повторами на транзиентных ошибках.
func (c *Client) doRequestRetry(ctx context.Context, method, path string, body, result interface{}) error {
	backoff := retry.WithMaxRetries(c.retries, retry.NewFibonacci(c.retryBase))

	return retry.Do(ctx, backoff, func(ctx context.Context) error {
		err := c.doRequest(ctx, method, path, body, result)
		if err == nil {
			return nil
		}
		if isTransient(err) {
			return retry.RetryableError(err)
		}
		return err
	})
}

// isTransient сообщает, имеет ли смысл повторять запрос.
// Сетевые сбои и 5xx транзиентны, 4xx - нет.
func isTransient(err error) bool {
	var srvErr *serverError
	if errors.As(err, &srvErr) {
		return srvErr.statusCode >= 500
	}
	// Ошибка без статуса - сетевой/транспортный сбой
	return true
}

// doRequest выполняет HTTP запрос
func (c *Client) doRequest(ctx context.Context, method, path string, body, result interface{}) error {
	url := c.baseURL + path

	var bodyReader io.Reader
	if body != nil {
		jsonData, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request body: %w", err)
		}
		bodyReader = bytes.NewReader(jsonData)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, bodyReader)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	// Читаем тело ответа
	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response body: %w", err)
	}

	// Проверяем статус код
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var errResp api.ErrorResponse
		if jsonErr := json.Unmarshal(respBody, &errResp); jsonErr == nil && errResp.Message != "" {
			return &serverError{statusCode: resp.StatusCode, message: errResp.Message}
		}
		return &serverError{statusCode: resp.StatusCode, message: string(respBody)}
	}

	// Декодируем успешный ответ
	if result != nil {
		if err := json.Unmarshal(respBody, result); err != nil {
			return fmt.Errorf("failed to decode response: %w", err)
		}
	}

	return nil
}
