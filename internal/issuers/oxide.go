package issuers

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/tokex-dev/tokex/internal/api/middleware"
	"github.com/tokex-dev/tokex/internal/audit"
	"github.com/tokex-dev/tokex/internal/config"
	"github.com/tokex-dev/tokex/internal/core"
)

// deviceClientID identifies this broker in the silo's device-token flow.
const deviceClientID = "8f2d3bba-5c31-4b97-9e5d-218ab14efcd2"

const deviceGrantType = "urn:ietf:params:oauth:grant-type:device_code"

// SiloIssuer mints rack access tokens by driving the silo's device-token
// flow with the stored root credential: request a device code, confirm it
// as root, then redeem it for the access token. The three calls run
// serially within one Issue; nothing is retried, since issuing a token
// under a root credential is not safe to blindly repeat.
type SiloIssuer struct {
	clients map[string]*siloClient
	now     func() time.Time
}

type siloClient struct {
	baseURL string
	token   config.Secret
	http    *http.Client
}

var _ core.Issuer = (*SiloIssuer)(nil)

func NewSiloIssuer(cfgs []config.SiloConfig, httpClient *http.Client) *SiloIssuer {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	clients := make(map[string]*siloClient, len(cfgs))
	for _, c := range cfgs {
		clients[c.Silo] = &siloClient{
			baseURL: strings.TrimSuffix(c.Silo, "/"),
			token:   c.Token,
			http:    httpClient,
		}
	}
	return &SiloIssuer{clients: clients, now: time.Now}
}

func (s *SiloIssuer) Service() core.Service { return core.ServiceOxide }

func (s *SiloIssuer) Issue(ctx context.Context, req core.Request) (*core.TokenArtifact, error) {
	sreq, ok := req.(*core.SiloTokenRequest)
	if !ok {
		return nil, core.E(core.KindInternal, "silo issuer received a %s request", req.Service())
	}
	client, ok := s.clients[sreq.Silo]
	if !ok {
		return nil, core.E(core.KindScopeUnavailable,
			"silo %q is not configured in this deployment", sreq.Silo)
	}

	logger := log.Ctx(ctx)

	// start the device-token flow, bounded to the requested lifetime
	var auth struct {
		DeviceCode string `json:"device_code"`
		UserCode   string `json:"user_code"`
	}
	err := client.call(ctx, http.MethodPost, "/device/auth", formBody(url.Values{
		"client_id":   {deviceClientID},
		"ttl_seconds": {strconv.FormatInt(sreq.Duration, 10)},
	}), false, &auth)
	if err != nil {
		return nil, err
	}

	// confirm the device code as the silo root identity
	if err := client.call(ctx, http.MethodPost, "/device/confirm",
		jsonBody(map[string]string{"user_code": auth.UserCode}), true, nil); err != nil {
		return nil, err
	}

	// the calls are serial, so the token is ready to redeem immediately
	var grant struct {
		AccessToken string `json:"access_token"`
	}
	err = client.call(ctx, http.MethodPost, "/device/token", formBody(url.Values{
		"grant_type":  {deviceGrantType},
		"device_code": {auth.DeviceCode},
		"client_id":   {deviceClientID},
	}), false, &grant)
	if err != nil {
		return nil, err
	}

	expiresAt := s.now().Add(time.Duration(sreq.Duration) * time.Second)
	logger.Debug().
		Str("silo", sreq.Silo).
		Time("expires_at", expiresAt).
		Msg("silo token issued")

	return &core.TokenArtifact{
		AccessToken: grant.AccessToken,
		ExpiresAt:   expiresAt,
		Fingerprint: audit.Fingerprint(grant.AccessToken),
		Metadata: map[string]any{
			"silo":     sreq.Silo,
			"duration": sreq.Duration,
		},
	}, nil
}

type requestBody struct {
	contentType string
	payload     []byte
}

func formBody(values url.Values) requestBody {
	return requestBody{
		contentType: "application/x-www-form-urlencoded",
		payload:     []byte(values.Encode()),
	}
}

func jsonBody(v any) requestBody {
	data, _ := json.Marshal(v)
	return requestBody{contentType: "application/json", payload: data}
}

// call performs one silo API request. Any failure, transport or remote,
// surfaces as an upstream rejection carrying the silo's reported reason
// where one could be parsed.
func (c *siloClient) call(ctx context.Context, method, path string, body requestBody, asRoot bool, dest any) error {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, strings.NewReader(string(body.payload)))
	if err != nil {
		return core.E(core.KindInternal, "building silo request: %v", err)
	}
	req.Header.Set("Content-Type", body.contentType)
	req.Header.Set("User-Agent", audit.UserAgent(middleware.CorrelationCtx(ctx), string(core.ServiceOxide)))
	if asRoot {
		req.Header.Set("Authorization", "Bearer "+c.token.Value())
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return core.E(core.KindUpstreamRejected, "silo call %s failed: %v", path, err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return core.E(core.KindUpstreamRejected, "reading silo response for %s: %v", path, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return core.E(core.KindUpstreamRejected,
			"silo rejected %s with status %d: %s", path, resp.StatusCode, upstreamReason(data))
	}
	if dest == nil {
		return nil
	}
	if err := json.Unmarshal(data, dest); err != nil {
		return core.E(core.KindUpstreamRejected, "parsing silo response for %s: %v", path, err)
	}
	return nil
}

// upstreamReason extracts a human-readable reason from a silo error body.
func upstreamReason(data []byte) string {
	var body struct {
		Error            string `json:"error"`
		ErrorDescription string `json:"error_description"`
		Message          string `json:"message"`
	}
	if err := json.Unmarshal(data, &body); err == nil {
		switch {
		case body.ErrorDescription != "":
			return body.ErrorDescription
		case body.Message != "":
			return body.Message
		case body.Error != "":
			return body.Error
		}
	}
	return fmt.Sprintf("%.200s", string(data))
}
