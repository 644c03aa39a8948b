package transport

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/jairrab/iot-dps-client/dpsm"
)

// Resolver resolves a bare service name to a set of candidate hosts, e.g.
// via a DNS SRV lookup. When HTTPTransport.Resolve is set, Open always
// calls it with BaseURL, treating BaseURL as a service name rather than a
// literal endpoint.
type Resolver func(ctx context.Context, name string) ([]string, error)

// HTTPTransport is a dpsm.TransportContract that speaks to a DPS-compatible
// HTTP registration endpoint: POST to register, GET to poll status.
type HTTPTransport struct {
	// BaseURL is either a literal "https://host:port" endpoint or, when
	// Resolve is set, a bare service name to resolve before Open.
	BaseURL string
	Resolve Resolver
	Log     *slog.Logger

	client *http.Client
	host   string

	mu         sync.RWMutex
	retryAfter time.Duration
}

const defaultRetryHint = 2 * time.Second

// registrationResponse is the wire shape returned by both the register and
// status endpoints.
type registrationResponse struct {
	OperationID string `json:"operationId"`
	Status      string `json:"status"`
	RegistrationState *struct {
		RegistrationID         string `json:"registrationId"`
		AssignedHub            string `json:"assignedHub"`
		DeviceID               string `json:"deviceId"`
		Substatus              string `json:"substatus"`
		CreatedDateTimeUTC     string `json:"createdDateTimeUtc"`
		LastUpdatedDateTimeUTC string `json:"lastUpdatedDateTimeUtc"`
		ETag                   string `json:"etag"`
		ErrorMessage           string `json:"errorMessage"`
		ErrorCode              *int   `json:"errorCode"`
		TPM                    *struct {
			AuthenticationKey string `json:"authenticationKey"`
		} `json:"tpm"`
	} `json:"registrationState"`
}

func (r *registrationResponse) toOperationStatus() *dpsm.RegistrationOperationStatus {
	out := &dpsm.RegistrationOperationStatus{OperationID: r.OperationID, Status: r.Status}
	if r.RegistrationState != nil {
		state := &dpsm.RegistrationState{
			RegistrationID:         r.RegistrationState.RegistrationID,
			AssignedHub:            r.RegistrationState.AssignedHub,
			DeviceID:               r.RegistrationState.DeviceID,
			Substatus:              r.RegistrationState.Substatus,
			CreatedDateTimeUTC:     r.RegistrationState.CreatedDateTimeUTC,
			LastUpdatedDateTimeUTC: r.RegistrationState.LastUpdatedDateTimeUTC,
			ETag:                   r.RegistrationState.ETag,
			ErrorMessage:           r.RegistrationState.ErrorMessage,
		}
		if r.RegistrationState.ErrorCode != nil {
			state.ErrorCode = *r.RegistrationState.ErrorCode
			state.HasErrorCode = true
		}
		if r.RegistrationState.TPM != nil {
			state.TPM = &dpsm.TPMState{AuthenticationKey: r.RegistrationState.TPM.AuthenticationKey}
		}
		out.State = state
	}
	return out
}

func (t *HTTPTransport) logger() *slog.Logger {
	if t.Log != nil {
		return t.Log
	}
	return slog.Default()
}

// Open resolves the endpoint (if configured to) and primes an *http.Client
// with the TLS material dpsm derived from the security provider.
func (t *HTTPTransport) Open(ctx context.Context, data dpsm.RequestData) error {
	host := t.BaseURL
	if t.Resolve != nil {
		hosts, err := t.Resolve(ctx, t.BaseURL)
		if err != nil {
			return fmt.Errorf("resolve endpoint %q: %w", t.BaseURL, err)
		}
		if len(hosts) == 0 {
			return fmt.Errorf("resolve endpoint %q: no candidates returned", t.BaseURL)
		}
		host = hosts[0]
	}
	t.host = host

	tlsConfig := data.SSLContext
	if tlsConfig == nil {
		tlsConfig = &tls.Config{}
	}

	t.client = &http.Client{
		Transport: &http.Transport{TLSClientConfig: tlsConfig},
		Timeout:   30 * time.Second,
	}

	t.logger().Info("transport opened", "host", t.host, "registration_id", data.RegistrationID, "is_x509", data.IsX509)
	return nil
}

// Close is a no-op beyond letting the *http.Client's idle connections be
// garbage collected; it must never error, including on a transport that was
// never opened.
func (t *HTTPTransport) Close() error {
	t.logger().Info("transport closed", "host", t.host)
	return nil
}

// RetryHint returns the most recently observed Retry-After duration, or a
// conservative default before any status response has been seen.
func (t *HTTPTransport) RetryHint() time.Duration {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if t.retryAfter > 0 {
		return t.retryAfter
	}
	return defaultRetryHint
}

func (t *HTTPTransport) setRetryAfter(raw string) {
	secs, err := strconv.Atoi(raw)
	if err != nil || secs <= 0 {
		return
	}
	t.mu.Lock()
	t.retryAfter = time.Duration(secs) * time.Second
	t.mu.Unlock()
}

// Register submits the registration payload via POST.
func (t *HTTPTransport) Register(ctx context.Context, payload []byte, authz *dpsm.AuthorizationCtx) (*dpsm.RegistrationOperationStatus, error) {
	url := fmt.Sprintf("%s/api/register", t.host)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	if token := authz.SASToken(); token != "" {
		req.Header.Set("Authorization", token)
	}

	resp, parsed, err := t.doAndParse(req)
	if err != nil {
		return nil, err
	}
	if token := resp.Header.Get("Authorization"); token != "" {
		authz.SetSASToken(token)
	}
	t.logger().Info("register call", "operation_id", parsed.OperationID, "status", parsed.Status)
	return parsed, nil
}

// QueryStatus polls an in-flight operation via GET.
func (t *HTTPTransport) QueryStatus(ctx context.Context, operationID string, authz *dpsm.AuthorizationCtx) (*dpsm.RegistrationOperationStatus, error) {
	url := fmt.Sprintf("%s/api/register/%s", t.host, operationID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	if token := authz.SASToken(); token != "" {
		req.Header.Set("Authorization", token)
	}

	_, parsed, err := t.doAndParse(req)
	if err != nil {
		return nil, err
	}
	t.logger().Info("status call", "operation_id", parsed.OperationID, "status", parsed.Status)
	return parsed, nil
}

func (t *HTTPTransport) doAndParse(req *http.Request) (*http.Response, *dpsm.RegistrationOperationStatus, error) {
	resp, err := t.client.Do(req)
	if err != nil {
		return nil, nil, fmt.Errorf("could not reach provisioning endpoint: %w", err)
	}
	defer resp.Body.Close()

	t.setRetryAfter(resp.Header.Get("Retry-After"))

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusAccepted {
		body, _ := io.ReadAll(resp.Body)
		return resp, nil, fmt.Errorf("provisioning endpoint returned %d: %s", resp.StatusCode, string(body))
	}

	var wire registrationResponse
	if err := json.NewDecoder(resp.Body).Decode(&wire); err != nil {
		return resp, nil, fmt.Errorf("could not parse provisioning response: %w", err)
	}
	return resp, wire.toOperationStatus(), nil
}
