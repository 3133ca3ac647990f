package main

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambda"

	"github.com/caresync/telehealth-ivr/internal/ivr"
	"github.com/caresync/telehealth-ivr/pkg/logging"
)

const voicePrefix = "/api/voice"

// forwardedPaths are the telephony webhooks the proxy relays. Operator
// endpoints stay on the API itself.
var forwardedPaths = func() map[string]bool {
	paths := map[string]bool{
		voicePrefix + "/" + ivr.EndpointIncoming:         true,
		voicePrefix + "/" + ivr.EndpointReminderWebhook:  true,
		voicePrefix + "/" + ivr.EndpointReminderResponse: true,
	}
	for _, ep := range ivr.InputEndpoints() {
		paths[voicePrefix+"/"+ep] = true
	}
	return paths
}()

// hangupTwiML keeps the caller from hearing a carrier error when the API is
// unreachable.
const hangupTwiML = `<?xml version="1.0" encoding="UTF-8"?><Response><Say>We are sorry, our booking line is unavailable. Please call again later.</Say><Hangup/></Response>`

type config struct {
	upstreamBaseURL string
	upstreamTimeout time.Duration
	logger          *logging.Logger
}

func loadConfig() (config, error) {
	baseURL := strings.TrimSpace(os.Getenv("UPSTREAM_BASE_URL"))
	if baseURL == "" {
		return config{}, errors.New("UPSTREAM_BASE_URL is required")
	}

	timeout := 5 * time.Second
	if raw := strings.TrimSpace(os.Getenv("UPSTREAM_TIMEOUT")); raw != "" {
		parsed, err := time.ParseDuration(raw)
		if err != nil {
			return config{}, fmt.Errorf("invalid UPSTREAM_TIMEOUT: %w", err)
		}
		timeout = parsed
	}

	return config{
		upstreamBaseURL: strings.TrimRight(baseURL, "/"),
		upstreamTimeout: timeout,
		logger:          logging.New(os.Getenv("LOG_LEVEL")),
	}, nil
}

func main() {
	cfg, err := loadConfig()
	if err != nil {
		panic(err)
	}
	lambda.Start(newProxy(cfg, &http.Client{Timeout: cfg.upstreamTimeout}).handle)
}

// proxy relays API Gateway webhook events to the voice API.
type proxy struct {
	cfg    config
	client *http.Client
}

func newProxy(cfg config, client *http.Client) *proxy {
	if cfg.logger == nil {
		cfg.logger = logging.Default()
	}
	return &proxy{cfg: cfg, client: client}
}

func status(code int, body string) events.APIGatewayV2HTTPResponse {
	return events.APIGatewayV2HTTPResponse{StatusCode: code, Body: body}
}

func eventPath(evt events.APIGatewayV2HTTPRequest) string {
	if p := strings.TrimSpace(evt.RawPath); p != "" {
		return p
	}
	return strings.TrimSpace(evt.RequestContext.HTTP.Path)
}

func (p *proxy) handle(ctx context.Context, evt events.APIGatewayV2HTTPRequest) (events.APIGatewayV2HTTPResponse, error) {
	path := eventPath(evt)
	switch {
	case path == "/health" || path == "/_health":
		return status(http.StatusOK, "ok"), nil
	case !strings.EqualFold(strings.TrimSpace(evt.RequestContext.HTTP.Method), http.MethodPost):
		return status(http.StatusMethodNotAllowed, ""), nil
	case !forwardedPaths[path]:
		return status(http.StatusNotFound, ""), nil
	}

	body, err := decodeBody(evt)
	if err != nil {
		return status(http.StatusBadRequest, "invalid body"), nil
	}

	ctx, cancel := context.WithTimeout(ctx, p.cfg.upstreamTimeout)
	defer cancel()
	req, err := p.upstreamRequest(ctx, path, evt, body)
	if err != nil {
		return status(http.StatusInternalServerError, ""), nil
	}

	resp, err := p.client.Do(req)
	if err != nil {
		p.cfg.logger.Error("voice proxy: upstream unreachable", "path", path, "error", err)
		out := status(http.StatusOK, hangupTwiML)
		out.Headers = map[string]string{"content-type": "text/xml; charset=utf-8"}
		return out, nil
	}
	defer resp.Body.Close()

	payload, _ := io.ReadAll(resp.Body)
	out := status(resp.StatusCode, string(payload))
	out.Headers = map[string]string{}
	if ct := resp.Header.Get("Content-Type"); ct != "" {
		out.Headers["content-type"] = ct
	}
	return out, nil
}

// upstreamRequest rebuilds the webhook for the API. Forwarded host and proto
// headers let the API validate signatures against the public URL the
// telephony provider called.
func (p *proxy) upstreamRequest(ctx context.Context, path string, evt events.APIGatewayV2HTTPRequest, body []byte) (*http.Request, error) {
	target := p.cfg.upstreamBaseURL + path
	if qs := strings.TrimSpace(evt.RawQueryString); qs != "" {
		target += "?" + qs
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, target, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}

	copyHeader(req.Header, evt.Headers, "content-type")
	copyHeader(req.Header, evt.Headers, "x-twilio-signature")

	host := strings.TrimSpace(evt.RequestContext.DomainName)
	if host == "" {
		host = strings.TrimSpace(headerValue(evt.Headers, "host"))
	}
	if host != "" {
		req.Header.Set("X-Forwarded-Host", host)
	}
	proto := strings.TrimSpace(headerValue(evt.Headers, "x-forwarded-proto"))
	if proto == "" {
		proto = "https"
	}
	req.Header.Set("X-Forwarded-Proto", proto)
	return req, nil
}

func decodeBody(evt events.APIGatewayV2HTTPRequest) ([]byte, error) {
	if evt.IsBase64Encoded {
		return base64.StdEncoding.DecodeString(evt.Body)
	}
	return []byte(evt.Body), nil
}

func headerValue(headers map[string]string, key string) string {
	for k, v := range headers {
		if strings.EqualFold(k, key) {
			return v
		}
	}
	return ""
}

func copyHeader(dst http.Header, src map[string]string, header string) {
	if value := strings.TrimSpace(headerValue(src, header)); value != "" {
		dst.Set(header, value)
	}
}
