package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	jww "github.com/spf13/jwalterweatherman"
)

type loginResponse struct {
	Token    string `json:"token"`
	Username string `json:"username"`
}

// verify_api registers a throwaway account against a running API service,
// logs in and fetches the global history.
func main() {
	apiAddr := flag.String("api", "http://localhost:8081", "api service address")
	flag.Parse()
	jww.SetStdoutThreshold(jww.LevelInfo)

	username := "verify_" + uuid.NewString()[:8]
	creds := map[string]string{"username": username, "password": "verify-password"}

	// 1. Register
	if _, err := post(*apiAddr+"/api/auth/register", creds, http.StatusCreated); err != nil {
		jww.FATAL.Fatalf("Register failed: %v", err)
	}
	jww.INFO.Printf("Registered %s", username)

	// 2. Login
	body, err := post(*apiAddr+"/api/auth/login", creds, http.StatusOK)
	if err != nil {
		jww.FATAL.Fatalf("Login failed: %v", err)
	}
	var login loginResponse
	if err := json.Unmarshal(body, &login); err != nil {
		jww.FATAL.Fatalf("Bad login response: %v", err)
	}
	fmt.Printf("Token: %s...\n", login.Token[:10])

	// 3. Global history
	req, _ := http.NewRequest(http.MethodGet, *apiAddr+"/api/messages", nil)
	req.Header.Add("Authorization", "Bearer "+login.Token)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		jww.FATAL.Fatalf("History request failed: %v", err)
	}
	defer resp.Body.Close()

	history, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK {
		jww.FATAL.Fatalf("History returned %d: %s", resp.StatusCode, history)
	}
	jww.INFO.Printf("History: %s", history)
}

func post(url string, payload any, want int) ([]byte, error) {
	reqBody, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	resp, err := http.Post(url, "application/json", bytes.NewBuffer(reqBody))
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != want {
		return nil, errors.Errorf("%s returned %d: %s", url, resp.StatusCode, body)
	}
	return body, nil
}
