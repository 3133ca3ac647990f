// Command callctl drives the operator endpoints of a running voice service.
//
//	callctl call <phone>
//	callctl remind <appointmentId>
//	callctl show <callSid>
package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

func main() {
	if len(os.Args) < 3 {
		fmt.Println("Usage: callctl <call|remind|show> <argument>")
		fmt.Println("Example: callctl call 9876543210")
		os.Exit(1)
	}

	apiURL := strings.TrimRight(os.Getenv("API_URL"), "/")
	if apiURL == "" {
		apiURL = "http://localhost:8080"
	}

	req, err := buildRequest(apiURL, os.Args[1], os.Args[2])
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		os.Exit(1)
	}

	if secret := os.Getenv("ADMIN_JWT_SECRET"); secret != "" {
		token, err := operatorToken(secret, time.Now())
		if err != nil {
			fmt.Printf("Error signing token: %v\n", err)
			os.Exit(1)
		}
		req.Header.Set("Authorization", "Bearer "+token)
	}

	client := &http.Client{Timeout: 30 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		fmt.Printf("Error making request: %v\n", err)
		os.Exit(1)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	fmt.Printf("HTTP %d\n", resp.StatusCode)

	var pretty bytes.Buffer
	if json.Indent(&pretty, body, "", "  ") == nil {
		fmt.Println(pretty.String())
	} else {
		fmt.Println(string(body))
	}
	if resp.StatusCode >= 300 {
		os.Exit(1)
	}
}

func buildRequest(apiURL, cmd, arg string) (*http.Request, error) {
	base := apiURL + "/api/voice"
	switch cmd {
	case "call":
		payload, _ := json.Marshal(map[string]string{"phoneNumber": arg})
		req, err := http.NewRequest(http.MethodPost, base+"/initiate-call", bytes.NewReader(payload))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/json")
		return req, nil
	case "remind":
		return http.NewRequest(http.MethodPost, base+"/trigger-reminder/"+url.PathEscape(arg), nil)
	case "show":
		return http.NewRequest(http.MethodGet, base+"/calls/"+url.PathEscape(arg), nil)
	default:
		return nil, fmt.Errorf("unknown command %q", cmd)
	}
}

func operatorToken(secret string, now time.Time) (string, error) {
	claims := jwt.RegisteredClaims{
		Subject:   "operator",
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(time.Hour)),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
}
