// Package apiclient is a typed client for the PropDesk REST API.
package apiclient

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
	"strings"
	"time"

	"github.com/propdesk/propdesk/internal/backup"
	"github.com/propdesk/propdesk/internal/database"
	"github.com/propdesk/propdesk/internal/llm"
	"github.com/propdesk/propdesk/internal/models"
)

const (
	apiPrefix             = "/api/v1"
	defaultRequestTimeout = 15 * time.Second
)

// ErrUnauthorized is matched by errors.Is against any 401 response.
var ErrUnauthorized = errors.New("unauthorized")

// APIError is a non-2xx response. Message is the server's {"error": ...}
// text when present, otherwise the raw body.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("http %d", e.StatusCode)
	}
	return fmt.Sprintf("http %d: %s", e.StatusCode, e.Message)
}

func (e *APIError) Is(target error) bool {
	return target == ErrUnauthorized && e.StatusCode == http.StatusUnauthorized
}

type Client struct {
	baseURL string
	client  *http.Client
	tokens  TokenStore
	timeout time.Duration

	// OnUnauthorized runs after a 401 has cleared the token store.
	OnUnauthorized func()
}

func New(baseURL string, tokens TokenStore) *Client {
	return NewWithClient(baseURL, tokens, nil)
}

func NewWithClient(baseURL string, tokens TokenStore, client *http.Client) *Client {
	if client == nil {
		client = &http.Client{}
	}
	if tokens == nil {
		tokens = &MemoryTokenStore{}
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  client,
		tokens:  tokens,
		timeout: defaultRequestTimeout,
	}
}

func (c *Client) BaseURL() string   { return c.baseURL }
func (c *Client) Tokens() TokenStore { return c.tokens }

// LiveURL is the websocket endpoint matching the REST base URL.
func (c *Client) LiveURL() (string, error) {
	u, err := url.Parse(c.baseURL)
	if err != nil {
		return "", fmt.Errorf("parse base url: %w", err)
	}
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	default:
		u.Scheme = "ws"
	}
	u.Path = strings.TrimRight(u.Path, "/") + apiPrefix + "/ws"
	u.RawQuery = ""
	return u.String(), nil
}

type LoginResponse struct {
	Token     string       `json:"token"`
	ExpiresAt time.Time    `json:"expires_at"`
	User      *models.User `json:"user"`
}

// Login authenticates and stores the returned token.
func (c *Client) Login(ctx context.Context, username, password string, rememberMe bool) (*LoginResponse, error) {
	var resp LoginResponse
	body := map[string]interface{}{
		"username":    username,
		"password":    password,
		"remember_me": rememberMe,
	}
	if err := c.do(ctx, http.MethodPost, "/auth/login", nil, body, &resp); err != nil {
		return nil, err
	}
	if err := c.tokens.SetToken(resp.Token); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Logout ends the server session and always clears the local token.
func (c *Client) Logout(ctx context.Context) error {
	err := c.do(ctx, http.MethodPost, "/auth/logout", nil, nil, nil)
	if clearErr := c.tokens.Clear(); clearErr != nil && err == nil {
		err = clearErr
	}
	return err
}

func (c *Client) Me(ctx context.Context) (*models.User, error) {
	var resp struct {
		User *models.User `json:"user"`
	}
	if err := c.do(ctx, http.MethodGet, "/auth/me", nil, nil, &resp); err != nil {
		return nil, err
	}
	return resp.User, nil
}

// ChangePassword fails with a 403 APIError when current is wrong; the
// stored token is kept.
func (c *Client) ChangePassword(ctx context.Context, current, next string) error {
	body := map[string]string{"current_password": current, "new_password": next}
	return c.do(ctx, http.MethodPut, "/auth/password", nil, body, nil)
}

func (c *Client) ListBackups(ctx context.Context) ([]backup.Manifest, error) {
	return list[backup.Manifest](ctx, c, "/system/backups", nil)
}

func (c *Client) RunBackup(ctx context.Context) (*backup.Manifest, error) {
	var man backup.Manifest
	if err := c.do(ctx, http.MethodPost, "/system/backups", nil, nil, &man); err != nil {
		return nil, err
	}
	return &man, nil
}

func (c *Client) ListLeads(ctx context.Context, q url.Values) ([]models.Lead, error) {
	return list[models.Lead](ctx, c, "/leads", q)
}

func (c *Client) GetLead(ctx context.Context, id string) (*models.Lead, error) {
	var out models.Lead
	if err := c.do(ctx, http.MethodGet, "/leads/"+url.PathEscape(id), nil, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) CreateLead(ctx context.Context, lead models.Lead) (*models.Lead, error) {
	var out models.Lead
	if err := c.do(ctx, http.MethodPost, "/leads", nil, lead, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// UpdateLead sends a partial update; fields absent from patch keep their
// stored values.
func (c *Client) UpdateLead(ctx context.Context, id string, patch map[string]interface{}) (*models.Lead, error) {
	var out models.Lead
	if err := c.do(ctx, http.MethodPut, "/leads/"+url.PathEscape(id), nil, patch, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

type QualifyResult struct {
	Lead          models.Lead           `json:"lead"`
	Qualification llm.LeadQualification `json:"qualification"`
}

func (c *Client) QualifyLead(ctx context.Context, id string) (*QualifyResult, error) {
	var out QualifyResult
	if err := c.do(ctx, http.MethodPost, "/leads/"+url.PathEscape(id)+"/qualify", nil, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) ListProperties(ctx context.Context, q url.Values) ([]models.Property, error) {
	return list[models.Property](ctx, c, "/properties", q)
}

func (c *Client) CreateProperty(ctx context.Context, p models.Property) (*models.Property, error) {
	var out models.Property
	if err := c.do(ctx, http.MethodPost, "/properties", nil, p, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) UpdateProperty(ctx context.Context, id string, patch map[string]interface{}) (*models.Property, error) {
	var out models.Property
	if err := c.do(ctx, http.MethodPut, "/properties/"+url.PathEscape(id), nil, patch, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) ListConversations(ctx context.Context, q url.Values) ([]models.Conversation, error) {
	return list[models.Conversation](ctx, c, "/conversations", q)
}

func (c *Client) CreateConversation(ctx context.Context, conv models.Conversation) (*models.Conversation, error) {
	var out models.Conversation
	if err := c.do(ctx, http.MethodPost, "/conversations", nil, conv, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) ListAppointments(ctx context.Context, q url.Values) ([]models.Appointment, error) {
	return list[models.Appointment](ctx, c, "/appointments", q)
}

func (c *Client) CreateAppointment(ctx context.Context, a models.Appointment) (*models.Appointment, error) {
	var out models.Appointment
	if err := c.do(ctx, http.MethodPost, "/appointments", nil, a, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) UpdateAppointment(ctx context.Context, id string, patch map[string]interface{}) (*models.Appointment, error) {
	var out models.Appointment
	if err := c.do(ctx, http.MethodPut, "/appointments/"+url.PathEscape(id), nil, patch, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) ListTransactions(ctx context.Context, q url.Values) ([]models.Transaction, error) {
	return list[models.Transaction](ctx, c, "/transactions", q)
}

func (c *Client) CreateTransaction(ctx context.Context, tx models.Transaction) (*models.Transaction, error) {
	var out models.Transaction
	if err := c.do(ctx, http.MethodPost, "/transactions", nil, tx, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) UpdateTransaction(ctx context.Context, id string, patch map[string]interface{}) (*models.Transaction, error) {
	var out models.Transaction
	if err := c.do(ctx, http.MethodPut, "/transactions/"+url.PathEscape(id), nil, patch, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) ListOffers(ctx context.Context, q url.Values) ([]models.Offer, error) {
	return list[models.Offer](ctx, c, "/offers", q)
}

func (c *Client) CreateOffer(ctx context.Context, o models.Offer) (*models.Offer, error) {
	var out models.Offer
	if err := c.do(ctx, http.MethodPost, "/offers", nil, o, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// OfferUpdate carries the transaction opened when an offer is accepted.
type OfferUpdate struct {
	Offer       models.Offer        `json:"offer"`
	Transaction *models.Transaction `json:"transaction,omitempty"`
}

func (c *Client) UpdateOffer(ctx context.Context, id string, patch map[string]interface{}) (*OfferUpdate, error) {
	var out OfferUpdate
	if err := c.do(ctx, http.MethodPut, "/offers/"+url.PathEscape(id), nil, patch, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) ListTasks(ctx context.Context, q url.Values) ([]models.Task, error) {
	return list[models.Task](ctx, c, "/tasks", q)
}

func (c *Client) Dashboard(ctx context.Context) (*database.DashboardStats, error) {
	var out database.DashboardStats
	if err := c.do(ctx, http.MethodGet, "/analytics/dashboard", nil, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) LeadAnalytics(ctx context.Context) (*database.LeadStats, error) {
	var out database.LeadStats
	if err := c.do(ctx, http.MethodGet, "/analytics/leads", nil, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) SalesAnalytics(ctx context.Context) (*database.SalesStats, error) {
	var out database.SalesStats
	if err := c.do(ctx, http.MethodGet, "/analytics/sales", nil, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

type UploadResult struct {
	ID          string `json:"id"`
	Filename    string `json:"filename"`
	URL         string `json:"url"`
	Size        int64  `json:"size"`
	ContentType string `json:"content_type"`
}

// Upload sends a file as multipart form data. A non-empty propertyID
// attaches the stored file to that listing.
func (c *Client) Upload(ctx context.Context, filename string, r io.Reader, propertyID string) (*UploadResult, error) {
	buf := &bytes.Buffer{}
	mw := multipart.NewWriter(buf)
	part, err := mw.CreateFormFile("file", filename)
	if err != nil {
		return nil, err
	}
	if _, err := io.Copy(part, r); err != nil {
		return nil, fmt.Errorf("read upload: %w", err)
	}
	if propertyID != "" {
		if err := mw.WriteField("property_id", propertyID); err != nil {
			return nil, err
		}
	}
	if err := mw.Close(); err != nil {
		return nil, err
	}

	var out UploadResult
	if err := c.send(ctx, http.MethodPost, "/uploads", nil, buf, mw.FormDataContentType(), &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func list[T any](ctx context.Context, c *Client, path string, q url.Values) ([]T, error) {
	var out []T
	if err := c.do(ctx, http.MethodGet, path, q, nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) do(ctx context.Context, method, path string, query url.Values, body, out interface{}) error {
	var reqBody io.Reader
	contentType := ""
	if body != nil {
		buf := &bytes.Buffer{}
		if err := json.NewEncoder(buf).Encode(body); err != nil {
			return fmt.Errorf("encode request body: %w", err)
		}
		reqBody = buf
		contentType = "application/json"
	}
	return c.send(ctx, method, path, query, reqBody, contentType, out)
}

func (c *Client) send(ctx context.Context, method, path string, query url.Values, body io.Reader, contentType string, out interface{}) error {
	u := c.baseURL + apiPrefix + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}
	if _, ok := ctx.Deadline(); !ok && c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	req, err := http.NewRequestWithContext(ctx, method, u, body)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	if token := c.tokens.Token(); token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	if resp.StatusCode >= 400 {
		apiErr := &APIError{StatusCode: resp.StatusCode}
		var er struct {
			Error string `json:"error"`
		}
		if json.Unmarshal(payload, &er) == nil && er.Error != "" {
			apiErr.Message = er.Error
		} else {
			apiErr.Message = strings.TrimSpace(string(payload))
		}
		if resp.StatusCode == http.StatusUnauthorized {
			c.tokens.Clear()
			if c.OnUnauthorized != nil {
				c.OnUnauthorized()
			}
		}
		return apiErr
	}
	if out == nil || len(payload) == 0 {
		return nil
	}
	if err := json.Unmarshal(payload, out); err != nil {
		return fmt.Errorf("decode %s %s: %w", method, path, err)
	}
	return nil
}
