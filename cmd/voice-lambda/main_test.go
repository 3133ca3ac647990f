package main

import (
	"context"
	"encoding/base64"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/aws/aws-lambda-go/events"
)

func apiEvent(method, path string) events.APIGatewayV2HTTPRequest {
	return events.APIGatewayV2HTTPRequest{
		RawPath: path,
		RequestContext: events.APIGatewayV2HTTPRequestContext{
			HTTP: events.APIGatewayV2HTTPRequestContextHTTPDescription{
				Method: method,
				Path:   path,
			},
		},
	}
}

func TestHandleRouting(t *testing.T) {
	p := newProxy(config{upstreamBaseURL: "http://example.com", upstreamTimeout: time.Second}, &http.Client{Timeout: time.Second})

	tests := []struct {
		name   string
		method string
		path   string
		want   int
	}{
		{name: "health", method: http.MethodGet, path: "/health", want: http.StatusOK},
		{name: "non post", method: http.MethodGet, path: "/api/voice/incoming", want: http.StatusMethodNotAllowed},
		{name: "unknown path", method: http.MethodPost, path: "/api/voice/unknown", want: http.StatusNotFound},
		{name: "operator endpoint stays private", method: http.MethodPost, path: "/api/voice/initiate-call", want: http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, err := p.handle(context.Background(), apiEvent(tt.method, tt.path))
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if resp.StatusCode != tt.want {
				t.Fatalf("expected status %d, got %d", tt.want, resp.StatusCode)
			}
		})
	}
}

func TestForwardedPathsCoverDialogue(t *testing.T) {
	for _, p := range []string{
		"/api/voice/incoming",
		"/api/voice/language-selected",
		"/api/voice/doctor-name",
		"/api/voice/no-slots",
		"/api/voice/reminder-webhook",
		"/api/voice/reminder-response",
	} {
		if !forwardedPaths[p] {
			t.Fatalf("expected %s to be forwarded", p)
		}
	}
}

func TestHandleInvalidBase64Body(t *testing.T) {
	p := newProxy(config{upstreamBaseURL: "http://example.com", upstreamTimeout: time.Second}, &http.Client{Timeout: time.Second})
	evt := apiEvent(http.MethodPost, "/api/voice/incoming")
	evt.Body = "not-base64"
	evt.IsBase64Encoded = true

	resp, err := p.handle(context.Background(), evt)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected status %d, got %d", http.StatusBadRequest, resp.StatusCode)
	}
}

func TestHandleForwardsVoiceWebhook(t *testing.T) {
	type captured struct {
		path    string
		query   string
		headers http.Header
		body    string
	}
	reqCh := make(chan captured, 1)

	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		reqCh <- captured{
			path:    r.URL.Path,
			query:   r.URL.RawQuery,
			headers: r.Header.Clone(),
			body:    string(body),
		}
		w.Header().Set("Content-Type", "text/xml; charset=utf-8")
		_, _ = w.Write([]byte("<Response/>"))
	}))
	defer upstream.Close()

	client := upstream.Client()
	client.Timeout = time.Second
	p := newProxy(config{upstreamBaseURL: upstream.URL, upstreamTimeout: time.Second}, client)

	evt := apiEvent(http.MethodPost, "/api/voice/reminder-response")
	evt.RawQueryString = "appointmentId=appt-1"
	evt.Body = "CallSid=CA1&Digits=1"
	evt.Headers = map[string]string{
		"Content-Type":       "application/x-www-form-urlencoded",
		"X-Twilio-Signature": "sig",
	}
	evt.RequestContext.DomainName = "voice.example.com"

	resp, err := p.handle(context.Background(), evt)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.StatusCode != http.StatusOK || resp.Body != "<Response/>" {
		t.Fatalf("unexpected response %d %q", resp.StatusCode, resp.Body)
	}
	if ct := resp.Headers["content-type"]; ct != "text/xml; charset=utf-8" {
		t.Fatalf("expected content-type to be forwarded, got %q", ct)
	}

	select {
	case got := <-reqCh:
		if got.path != "/api/voice/reminder-response" {
			t.Fatalf("unexpected path %s", got.path)
		}
		if got.query != "appointmentId=appt-1" {
			t.Fatalf("unexpected query %s", got.query)
		}
		if got.body != "CallSid=CA1&Digits=1" {
			t.Fatalf("unexpected body %q", got.body)
		}
		if got.headers.Get("X-Twilio-Signature") != "sig" {
			t.Fatalf("expected signature to be forwarded, got %q", got.headers.Get("X-Twilio-Signature"))
		}
		if got.headers.Get("X-Forwarded-Host") != "voice.example.com" {
			t.Fatalf("expected forwarded host, got %q", got.headers.Get("X-Forwarded-Host"))
		}
		if got.headers.Get("X-Forwarded-Proto") != "https" {
			t.Fatalf("expected https default, got %q", got.headers.Get("X-Forwarded-Proto"))
		}
	case <-time.After(time.Second):
		t.Fatalf("timeout waiting for upstream request")
	}
}

func TestHandleUpstreamDownHangsUp(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	base := upstream.URL
	upstream.Close()

	p := newProxy(config{upstreamBaseURL: base, upstreamTimeout: time.Second}, &http.Client{Timeout: time.Second})
	resp, err := p.handle(context.Background(), apiEvent(http.MethodPost, "/api/voice/incoming"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200 for telephony provider, got %d", resp.StatusCode)
	}
	if !strings.Contains(resp.Body, "<Hangup/>") {
		t.Fatalf("expected hangup document, got %q", resp.Body)
	}
}

func TestDecodeBodyBase64(t *testing.T) {
	evt := events.APIGatewayV2HTTPRequest{
		Body:            base64.StdEncoding.EncodeToString([]byte("hello")),
		IsBase64Encoded: true,
	}
	decoded, err := decodeBody(evt)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if string(decoded) != "hello" {
		t.Fatalf("expected decoded body, got %q", string(decoded))
	}
}
