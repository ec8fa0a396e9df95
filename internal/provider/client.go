package provider

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/guonaihong/gout"
	"github.com/guonaihong/gout/dataflow"
	jsoniter "github.com/json-iterator/go"
	"github.com/mitchellh/mapstructure"
	"github.com/pkg/errors"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Descriptor is the provider's view of a newly created session.
type Descriptor struct {
	InstanceID string
	ApiKey     string
	State      string
}

// Pairing holds the credentials a session presents for device authorization.
type Pairing struct {
	QRImage     string `json:"qr_image,omitempty"`
	PairingCode string `json:"pairing_code,omitempty"`
	RawCode     string `json:"raw_code,omitempty"`
}

// Usable reports whether the pairing data is enough for a client to pair:
// either a QR image, or a pairing code together with its raw code.
func (p *Pairing) Usable() bool {
	if p == nil {
		return false
	}
	return p.QRImage != "" || (p.PairingCode != "" && p.RawCode != "")
}

// StateInfo is a normalized connection-state snapshot. Some provider builds
// embed pairing data in the state response; when present it is carried here.
type StateInfo struct {
	Status  string // canonical, see MapStatus
	Raw     string
	Pairing *Pairing
}

// Client is a stateless wrapper over the provider REST surface. Retry and
// fallback policy belong to the session manager, not here; every call is a
// single bounded round trip.
type Client struct {
	baseURL string
	apiKey  string
	timeout time.Duration
}

func NewClient(baseURL, apiKey string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Client{baseURL: strings.TrimRight(baseURL, "/"), apiKey: apiKey, timeout: timeout}
}

// do performs one request and classifies the outcome. Transport failures
// (DNS, refused connection, timeout) become UnreachableError; non-2xx
// responses become RejectedError.
func (c *Client) do(ctx context.Context, op, method, url string, payload interface{}) (string, error) {
	var (
		code int
		body string
	)
	g := gout.New()
	var df *dataflow.DataFlow
	switch method {
	case "POST":
		df = g.POST(url)
	case "PUT":
		df = g.PUT(url)
	case "DELETE":
		df = g.DELETE(url)
	default:
		df = g.GET(url)
	}
	df = df.WithContext(ctx).
		SetTimeout(c.timeout).
		SetHeader(gout.H{"apikey": c.apiKey}).
		Code(&code).
		BindBody(&body)
	if payload != nil {
		df = df.SetJSON(payload)
	}
	if err := df.Do(); err != nil {
		if code >= 100 {
			return "", &RejectedError{Op: op, Status: code, Body: body}
		}
		return "", &UnreachableError{Op: op, Err: err}
	}
	if code < 200 || code > 299 {
		return "", &RejectedError{Op: op, Status: code, Body: body}
	}
	return body, nil
}

type createResponse struct {
	Instance struct {
		InstanceName string `mapstructure:"instanceName"`
		InstanceID   string `mapstructure:"instanceId"`
		Status       string `mapstructure:"status"`
	} `mapstructure:"instance"`
	Hash interface{} `mapstructure:"hash"`
}

// Create registers a new session with the provider and returns its
// descriptor. The phone number must carry at least eight digits.
func (c *Client) Create(ctx context.Context, name, phone string) (*Descriptor, error) {
	if countDigits(phone) < 8 {
		return nil, ErrInvalidPhone
	}
	body, err := c.do(ctx, "create", "POST", c.baseURL+"/instance/create", gout.H{
		"instanceName": name,
		"number":       phone,
		"qrcode":       true,
	})
	if err != nil {
		return nil, err
	}

	var raw map[string]interface{}
	if err := json.Unmarshal([]byte(body), &raw); err != nil {
		return nil, errors.Wrap(err, "decode create response")
	}
	var cr createResponse
	if err := mapstructure.Decode(raw, &cr); err != nil {
		return nil, errors.Wrap(err, "map create response")
	}

	desc := &Descriptor{InstanceID: cr.Instance.InstanceID, State: cr.Instance.Status}
	if desc.InstanceID == "" {
		desc.InstanceID = cr.Instance.InstanceName
	}
	// hash is either {"apikey": "..."} or a bare string depending on the
	// provider version
	switch h := cr.Hash.(type) {
	case string:
		desc.ApiKey = h
	case map[string]interface{}:
		if k, ok := h["apikey"].(string); ok {
			desc.ApiKey = k
		}
	}
	return desc, nil
}

// State fetches the session's connection state and any embedded pairing data.
func (c *Client) State(ctx context.Context, name string) (*StateInfo, error) {
	body, err := c.do(ctx, "state", "GET", c.baseURL+"/instance/connectionState/"+name, nil)
	if err != nil {
		return nil, err
	}
	var raw map[string]interface{}
	if err := json.Unmarshal([]byte(body), &raw); err != nil {
		return nil, errors.Wrap(err, "decode state response")
	}
	st := extractState(raw)
	return &StateInfo{Status: MapStatus(st), Raw: st, Pairing: extractPairing(raw)}, nil
}

// Pairing requests live connect/pairing info for an existing session.
// Returns ErrNotAvailable when the provider responds without usable data.
func (c *Client) Pairing(ctx context.Context, name string) (*Pairing, error) {
	body, err := c.do(ctx, "pairing", "GET", c.baseURL+"/instance/connect/"+name, nil)
	if err != nil {
		return nil, err
	}
	var raw map[string]interface{}
	if err := json.Unmarshal([]byte(body), &raw); err != nil {
		return nil, errors.Wrap(err, "decode pairing response")
	}
	p := extractPairing(raw)
	if !p.Usable() {
		return nil, ErrNotAvailable
	}
	return p, nil
}

// Logout signs the session out of the remote device. A 404 means the
// provider already forgot the session and is treated as success.
func (c *Client) Logout(ctx context.Context, name string) error {
	_, err := c.do(ctx, "logout", "DELETE", c.baseURL+"/instance/logout/"+name, nil)
	if IsNotFound(err) {
		return nil
	}
	return err
}

// Delete removes the provider-side session. Idempotent: 404 is success.
func (c *Client) Delete(ctx context.Context, name string) error {
	_, err := c.do(ctx, "delete", "DELETE", c.baseURL+"/instance/delete/"+name, nil)
	if IsNotFound(err) {
		return nil
	}
	return err
}

// Restart asks the provider to restart the session's connection.
func (c *Client) Restart(ctx context.Context, name string) error {
	_, err := c.do(ctx, "restart", "PUT", c.baseURL+"/instance/restart/"+name, nil)
	return err
}

// extractPairing digs pairing fields out of a loosely-shaped payload.
// Providers nest the QR data either at the top level or under "qrcode".
func extractPairing(raw map[string]interface{}) *Pairing {
	src := raw
	if qr, ok := raw["qrcode"].(map[string]interface{}); ok {
		src = qr
	}
	p := &Pairing{}
	if s, ok := src["base64"].(string); ok {
		p.QRImage = s
	}
	if s, ok := src["pairingCode"].(string); ok {
		p.PairingCode = s
	}
	if s, ok := src["code"].(string); ok {
		p.RawCode = s
	}
	return p
}

func countDigits(s string) int {
	n := 0
	for _, r := range s {
		if r >= '0' && r <= '9' {
			n++
		}
	}
	return n
}

// SessionName derives the provider instance name for a local session id.
func SessionName(tenantID, sessionID int64) string {
	return fmt.Sprintf("cg_%d_%d", tenantID, sessionID)
}
