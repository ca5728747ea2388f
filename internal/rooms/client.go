package rooms

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Room is one live room as the room service reports it. The listing is an
// unordered set; ordering is the caller's concern.
type Room struct {
	Name            string `json:"name"`
	NumParticipants int    `json:"num_participants"`
}

type Lister interface {
	ListRooms(ctx context.Context) ([]Room, error)
}

type Client struct {
	baseURL   string
	apiKey    string
	apiSecret string
	client    *http.Client
}

func NewClient(baseURL, apiKey, apiSecret string) *Client {
	return &Client{
		baseURL:   strings.TrimRight(baseURL, "/"),
		apiKey:    apiKey,
		apiSecret: apiSecret,
		client:    &http.Client{Timeout: 10 * time.Second},
	}
}

func (c *Client) ListRooms(ctx context.Context) ([]Room, error) {
	token, err := c.adminToken()
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/rooms", nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(resp.Body)
		msg := strings.TrimSpace(string(body))
		if msg != "" {
			return nil, fmt.Errorf("room service http status %d: %s", resp.StatusCode, msg)
		}
		return nil, fmt.Errorf("room service http status %d", resp.StatusCode)
	}

	var out struct {
		Rooms []Room `json:"rooms"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, err
	}
	return out.Rooms, nil
}

type adminClaims struct {
	Video struct {
		RoomList bool `json:"roomList"`
	} `json:"video"`
	jwt.RegisteredClaims
}

func (c *Client) adminToken() (string, error) {
	now := time.Now()
	claims := adminClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    c.apiKey,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(time.Minute)),
		},
	}
	claims.Video.RoomList = true
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(c.apiSecret))
}
