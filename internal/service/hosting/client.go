package hosting

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/reelforge/reelforge/internal/models"
)

// Status families the platform uses, mapped to sentinels so callers can
// tell a credential problem from a transient one.
var (
	ErrUnauthorized  = errors.New("platform rejected credentials")
	ErrQuotaExceeded = errors.New("platform quota exceeded")
)

// Refresh the access token this close to its expiry.
const tokenExpirySkew = 2 * time.Minute

// Credentials is the JSON shape of a tenant's encrypted platform secret.
type Credentials struct {
	ClientID     string `json:"clientId"`
	ClientSecret string `json:"clientSecret"`
	RefreshToken string `json:"refreshToken"`
}

// VideoMetadata describes one video for publishing.
type VideoMetadata struct {
	Title       string   `json:"title"`
	Description string   `json:"description"`
	Tags        []string `json:"tags"`
}

// Playlist is a platform playlist.
type Playlist struct {
	ID    string `json:"id"`
	Title string `json:"title"`
}

// Client publishes videos to the hosting platform on behalf of one tenant.
// The access token obtained from the refresh-token exchange is cached until
// near expiry.
type Client struct {
	httpClient *http.Client
	baseURL    string
	tokenURL   string
	creds      Credentials

	mu          sync.Mutex
	accessToken string
	tokenExpiry time.Time
	now         func() time.Time
}

func NewClient(baseURL, tokenURL string, creds Credentials, timeout time.Duration) (*Client, error) {
	if creds.ClientID == "" || creds.ClientSecret == "" || creds.RefreshToken == "" {
		return nil, fmt.Errorf("hosting credentials incomplete")
	}
	if timeout <= 0 {
		timeout = 10 * time.Minute
	}
	return &Client{
		httpClient: &http.Client{Timeout: timeout},
		baseURL:    strings.TrimRight(baseURL, "/"),
		tokenURL:   tokenURL,
		creds:      creds,
		now:        time.Now,
	}, nil
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int    `json:"expires_in"`
}

// token returns a cached access token, exchanging the refresh token when
// the cache is empty or about to expire.
func (c *Client) token(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.accessToken != "" && c.now().Add(tokenExpirySkew).Before(c.tokenExpiry) {
		return c.accessToken, nil
	}

	form := url.Values{}
	form.Set("grant_type", "refresh_token")
	form.Set("refresh_token", c.creds.RefreshToken)
	form.Set("client_id", c.creds.ClientID)
	form.Set("client_secret", c.creds.ClientSecret)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.tokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return "", fmt.Errorf("failed to create token request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to exchange refresh token: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read token response: %w", err)
	}
	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		return "", fmt.Errorf("%w: token exchange status %d", ErrUnauthorized, resp.StatusCode)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("token exchange failed (status %d): %s", resp.StatusCode, string(body))
	}

	var tr tokenResponse
	if err := json.Unmarshal(body, &tr); err != nil {
		return "", fmt.Errorf("failed to parse token response: %w", err)
	}
	if tr.AccessToken == "" {
		return "", fmt.Errorf("token exchange returned no access token")
	}

	c.accessToken = tr.AccessToken
	c.tokenExpiry = c.now().Add(time.Duration(tr.ExpiresIn) * time.Second)
	return c.accessToken, nil
}

type uploadResponse struct {
	ID          string    `json:"id"`
	WatchURL    string    `json:"watchUrl"`
	PublishedAt time.Time `json:"publishedAt"`
}

// Upload publishes the video file with its metadata and returns the
// platform's identifiers.
func (c *Client) Upload(ctx context.Context, videoPath string, meta VideoMetadata) (*models.UploadResult, error) {
	token, err := c.token(ctx)
	if err != nil {
		return nil, err
	}

	file, err := os.Open(videoPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open video: %w", err)
	}
	defer file.Close()

	metaJSON, err := json.Marshal(meta)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal metadata: %w", err)
	}

	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)

	if err := writer.WriteField("metadata", string(metaJSON)); err != nil {
		return nil, fmt.Errorf("failed to write metadata field: %w", err)
	}

	part, err := writer.CreateFormFile("video", filepath.Base(videoPath))
	if err != nil {
		return nil, fmt.Errorf("failed to create video field: %w", err)
	}
	if _, err := io.Copy(part, file); err != nil {
		return nil, fmt.Errorf("failed to copy video content: %w", err)
	}
	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("failed to close multipart writer: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/videos", body)
	if err != nil {
		return nil, fmt.Errorf("failed to create upload request: %w", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to upload video: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read upload response: %w", err)
	}
	if err := statusError("upload", resp.StatusCode, respBody); err != nil {
		return nil, err
	}

	var up uploadResponse
	if err := json.Unmarshal(respBody, &up); err != nil {
		return nil, fmt.Errorf("failed to parse upload response: %w", err)
	}
	if up.ID == "" {
		return nil, fmt.Errorf("upload response has no video id")
	}

	published := up.PublishedAt
	if published.IsZero() {
		published = c.now().UTC()
	}
	return &models.UploadResult{
		ExternalID:  up.ID,
		WatchURL:    up.WatchURL,
		PublishedAt: published,
	}, nil
}

// ListPlaylists returns the channel's playlists.
func (c *Client) ListPlaylists(ctx context.Context) ([]Playlist, error) {
	var listResp struct {
		Playlists []Playlist `json:"playlists"`
	}
	if err := c.doJSON(ctx, http.MethodGet, "/v1/playlists", nil, &listResp); err != nil {
		return nil, err
	}
	return listResp.Playlists, nil
}

// CreatePlaylist creates a playlist with the given title.
func (c *Client) CreatePlaylist(ctx context.Context, title string) (*Playlist, error) {
	var created Playlist
	if err := c.doJSON(ctx, http.MethodPost, "/v1/playlists", map[string]string{"title": title}, &created); err != nil {
		return nil, err
	}
	if created.ID == "" {
		return nil, fmt.Errorf("create playlist returned no id")
	}
	return &created, nil
}

// AddToPlaylist appends an uploaded video to a playlist.
func (c *Client) AddToPlaylist(ctx context.Context, playlistID, videoID string) error {
	path := fmt.Sprintf("/v1/playlists/%s/videos", playlistID)
	return c.doJSON(ctx, http.MethodPost, path, map[string]string{"videoId": videoID}, nil)
}

func (c *Client) doJSON(ctx context.Context, method, path string, in, out any) error {
	token, err := c.token(ctx)
	if err != nil {
		return err
	}

	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
		body = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}
	if err := statusError(method+" "+path, resp.StatusCode, respBody); err != nil {
		return err
	}

	if out != nil {
		if err := json.Unmarshal(respBody, out); err != nil {
			return fmt.Errorf("failed to parse response: %w", err)
		}
	}
	return nil
}

func statusError(op string, status int, body []byte) error {
	switch {
	case status >= 200 && status < 300:
		return nil
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return fmt.Errorf("%w: %s status %d", ErrUnauthorized, op, status)
	case status == http.StatusTooManyRequests:
		return fmt.Errorf("%w: %s status %d", ErrQuotaExceeded, op, status)
	default:
		return fmt.Errorf("%s failed (status %d): %s", op, status, strings.TrimSpace(string(body)))
	}
}
