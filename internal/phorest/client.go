package phorest

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/wolfman30/salon-scheduler/pkg/logging"
)

const (
	defaultBaseURL = "https://api-gateway-eu.phorest.com/third-party-api-server"
	defaultTimeout = 25 * time.Second
	maxErrorBody   = 300
)

// Client wraps the Phorest third-party REST API for one business.
type Client struct {
	httpClient *http.Client
	baseURL    string
	businessID string
	username   string
	password   string
	logger     *logging.Logger
}

// NewClient constructs a Phorest client using Basic auth.
func NewClient(baseURL, businessID, username, password string, logger *logging.Logger) *Client {
	if strings.TrimSpace(baseURL) == "" {
		baseURL = defaultBaseURL
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Client{
		httpClient: &http.Client{
			Timeout: defaultTimeout,
			Transport: &http.Transport{
				DialContext: (&net.Dialer{
					Timeout:   10 * time.Second,
					KeepAlive: 30 * time.Second,
				}).DialContext,
				MaxIdleConns:        100,
				IdleConnTimeout:     90 * time.Second,
				TLSHandshakeTimeout: 10 * time.Second,
			},
		},
		baseURL:    strings.TrimRight(baseURL, "/"),
		businessID: businessID,
		username:   username,
		password:   password,
		logger:     logger,
	}
}

func (c *Client) branchPath(branchID string, parts ...string) string {
	path := fmt.Sprintf("/api/business/%s/branch/%s", url.PathEscape(c.businessID), url.PathEscape(branchID))
	for _, p := range parts {
		path += "/" + url.PathEscape(p)
	}
	return path
}

// CreateBooking books services for a client and returns the assigned ids.
func (c *Client) CreateBooking(ctx context.Context, branchID string, req BookingRequest) (*BookingResponse, error) {
	var resp BookingResponse
	if err := c.doJSON(ctx, http.MethodPost, c.branchPath(branchID, "booking"), req, &resp); err != nil {
		return nil, fmt.Errorf("create booking: %w", err)
	}
	return &resp, nil
}

// UpdateAppointment moves an appointment to a new date, time or staff member.
func (c *Client) UpdateAppointment(ctx context.Context, branchID, appointmentID string, update AppointmentUpdate) error {
	if err := c.doJSON(ctx, http.MethodPut, c.branchPath(branchID, "appointment", appointmentID), update, nil); err != nil {
		return fmt.Errorf("update appointment: %w", err)
	}
	return nil
}

// CancelAppointment cancels an appointment in the branch.
func (c *Client) CancelAppointment(ctx context.Context, branchID, appointmentID string) error {
	if err := c.doJSON(ctx, http.MethodPost, c.branchPath(branchID, "appointment", appointmentID, "cancel"), nil, nil); err != nil {
		return fmt.Errorf("cancel appointment: %w", err)
	}
	return nil
}

func (c *Client) doJSON(ctx context.Context, method, path string, body interface{}, out interface{}) error {
	endpoint := c.baseURL + path

	var bodyReader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		bodyReader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, bodyReader)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.SetBasicAuth(c.username, c.password)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg := string(respBody)
		if len(msg) > maxErrorBody {
			msg = msg[:maxErrorBody]
		}
		c.logger.Warn("phorest API non-2xx response", "status", resp.StatusCode, "path", path, "body", msg)
		return &APIError{StatusCode: resp.StatusCode, Path: path, Body: msg}
	}

	if len(respBody) == 0 || out == nil {
		return nil
	}
	if err := json.Unmarshal(respBody, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
