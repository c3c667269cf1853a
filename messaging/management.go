// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package messaging

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/bureau-foundation/turbot/lib/netutil"
)

// DefaultManagementTimeout bounds a statistics request when no
// timeout is configured. Publishing waits on these requests.
const DefaultManagementTimeout = 30 * time.Second

// ManagementConfig configures a ManagementClient.
type ManagementConfig struct {
	// URL is the management API base, e.g. http://rabbit1:15672.
	URL      string
	User     string
	Password string

	// VHost defaults to "/".
	VHost string

	// Queue is the consumer queue to report on.
	Queue string

	// ProducerPrefix selects the connections counted as producers.
	// Defaults to ConnectionPrefix.
	ProducerPrefix string

	// HTTPClient is used for all requests. If nil, a client bounded
	// by Timeout is used.
	HTTPClient *http.Client

	// Timeout bounds each request when HTTPClient is nil. Defaults to
	// DefaultManagementTimeout.
	Timeout time.Duration

	Logger *slog.Logger
}

// ManagementClient reads queue statistics from the RabbitMQ
// management HTTP API.
type ManagementClient struct {
	baseURL        string
	user           string
	password       string
	vhost          string
	queue          string
	producerPrefix string
	httpClient     *http.Client
	logger         *slog.Logger
}

// NewManagementClient validates config and returns a client. No
// request is made.
func NewManagementClient(config ManagementConfig) (*ManagementClient, error) {
	if config.URL == "" {
		return nil, errors.New("messaging: management URL is required")
	}
	if _, err := url.Parse(config.URL); err != nil {
		return nil, fmt.Errorf("messaging: invalid management URL %q: %w", config.URL, err)
	}
	if config.Queue == "" {
		return nil, errors.New("messaging: management queue is required")
	}

	client := &ManagementClient{
		baseURL:        strings.TrimRight(config.URL, "/"),
		user:           config.User,
		password:       config.Password,
		vhost:          config.VHost,
		queue:          config.Queue,
		producerPrefix: config.ProducerPrefix,
		httpClient:     config.HTTPClient,
		logger:         config.Logger,
	}
	if client.vhost == "" {
		client.vhost = "/"
	}
	if client.producerPrefix == "" {
		client.producerPrefix = ConnectionPrefix
	}
	if client.httpClient == nil {
		timeout := config.Timeout
		if timeout <= 0 {
			timeout = DefaultManagementTimeout
		}
		client.httpClient = &http.Client{Timeout: timeout}
	}
	if client.logger == nil {
		client.logger = slog.Default()
	}
	return client, nil
}

type queueResponse struct {
	Messages     int `json:"messages"`
	MessageStats struct {
		DeliverGetDetails struct {
			Rate float64 `json:"rate"`
		} `json:"deliver_get_details"`
	} `json:"message_stats"`
}

type connectionResponse struct {
	Name             string `json:"name"`
	UserProvidedName string `json:"user_provided_name"`
	ClientProperties struct {
		ConnectionName string `json:"connection_name"`
	} `json:"client_properties"`
}

// QueueStats reports the queue depth, its consume rate, and how many
// runner connections are open.
func (c *ManagementClient) QueueStats(ctx context.Context) (QueueStats, error) {
	var queue queueResponse
	queuePath := "/api/queues/" + url.PathEscape(c.vhost) + "/" + url.PathEscape(c.queue)
	if err := c.get(ctx, queuePath, nil, &queue); err != nil {
		return QueueStats{}, fmt.Errorf("messaging: queue %s: %w", c.queue, err)
	}

	var connections []connectionResponse
	query := url.Values{"columns": {"name,user_provided_name,client_properties.connection_name"}}
	connectionsPath := "/api/vhosts/" + url.PathEscape(c.vhost) + "/connections"
	if err := c.get(ctx, connectionsPath, query, &connections); err != nil {
		return QueueStats{}, fmt.Errorf("messaging: connections: %w", err)
	}

	producers := 0
	for _, connection := range connections {
		name := connection.UserProvidedName
		if name == "" {
			name = connection.ClientProperties.ConnectionName
		}
		if strings.HasPrefix(name, c.producerPrefix) {
			producers++
		}
	}

	stats := QueueStats{
		Messages:    queue.Messages,
		ConsumeRate: queue.MessageStats.DeliverGetDetails.Rate,
		Producers:   producers,
	}
	c.logger.Debug("queue statistics",
		"queue", c.queue,
		"messages", stats.Messages,
		"consume_rate", stats.ConsumeRate,
		"producers", stats.Producers,
	)
	return stats, nil
}

func (c *ManagementClient) get(ctx context.Context, path string, query url.Values, result any) error {
	requestURL := c.baseURL + path
	if query != nil {
		requestURL += "?" + query.Encode()
	}
	request, err := http.NewRequestWithContext(ctx, http.MethodGet, requestURL, nil)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	if c.user != "" {
		request.SetBasicAuth(c.user, c.password)
	}
	request.Header.Set("Accept", "application/json")

	response, err := c.httpClient.Do(request)
	if err != nil {
		return fmt.Errorf("request to GET %s failed: %w", path, err)
	}
	defer response.Body.Close()

	body, err := netutil.ReadResponse(response.Body)
	if err != nil {
		return fmt.Errorf("reading response body: %w", err)
	}
	if response.StatusCode < 200 || response.StatusCode >= 300 {
		managementErr := &ManagementError{StatusCode: response.StatusCode}
		if jsonErr := json.Unmarshal(body, managementErr); jsonErr != nil || managementErr.Err == "" {
			managementErr.Err = http.StatusText(response.StatusCode)
			managementErr.Reason = strings.TrimSpace(string(body))
		}
		return managementErr
	}
	if err := json.Unmarshal(body, result); err != nil {
		return fmt.Errorf("decoding GET %s response: %w", path, err)
	}
	return nil
}
