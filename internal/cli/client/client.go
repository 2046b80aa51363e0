package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/razorquake/razorlinks/internal/cli/session"
)

// APIError is returned for any non-2xx response
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("request failed (status %d)", e.StatusCode)
	}
	return fmt.Sprintf("request failed (status %d): %s", e.StatusCode, e.Message)
}

// Is makes a 401 match session.ErrUnauthorized
func (e *APIError) Is(target error) bool {
	return target == session.ErrUnauthorized && e.StatusCode == http.StatusUnauthorized
}

// Client represents an HTTP client for the RazorLinks API
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     zerolog.Logger
}

// Option configures a Client
type Option func(*clientOptions)

type clientOptions struct {
	timeout   time.Duration
	transport http.RoundTripper
	logger    zerolog.Logger
}

// WithTimeout sets the per-request timeout
func WithTimeout(d time.Duration) Option {
	return func(o *clientOptions) {
		o.timeout = d
	}
}

// WithTransport replaces the underlying transport (the guard still wraps it)
func WithTransport(rt http.RoundTripper) Option {
	return func(o *clientOptions) {
		o.transport = rt
	}
}

// WithLogger sets the logger
func WithLogger(logger zerolog.Logger) Option {
	return func(o *clientOptions) {
		o.logger = logger
	}
}

// New creates a new API client. Every request passes through guard: its
// credentials are attached (or the request is aborted) before transmission
// and any 401 ends the session.
func New(baseURL string, guard *session.Guard, opts ...Option) *Client {
	o := clientOptions{
		timeout:   30 * time.Second,
		transport: http.DefaultTransport,
		logger:    zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(&o)
	}

	return &Client{
		baseURL: strings.TrimRight(baseURL, "/") + "/api",
		httpClient: &http.Client{
			Timeout:   o.timeout,
			Transport: &guardTransport{guard: guard, base: o.transport, logger: o.logger},
		},
		logger: o.logger,
	}
}

// guardTransport is the request interceptor
type guardTransport struct {
	guard  *session.Guard
	base   http.RoundTripper
	logger zerolog.Logger
}

func (t *guardTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	out, err := t.guard.AttachCredentials(req)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	resp, err := t.base.RoundTrip(out)
	if err != nil {
		return nil, err
	}

	t.logger.Debug().
		Str("method", req.Method).
		Str("path", req.URL.Path).
		Int("status", resp.StatusCode).
		Dur("duration", time.Since(start)).
		Msg("API request")

	if resp.StatusCode == http.StatusUnauthorized {
		t.guard.OnUnauthorizedResponse()
	}
	return resp, nil
}

// do sends a request and decodes a JSON response into out (when non-nil)
func (c *Client) do(ctx context.Context, method, path string, body io.Reader, contentType string, out any) error {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		var ended *session.EndedError
		if errors.As(err, &ended) {
			return ended
		}
		return fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return decodeAPIError(resp)
	}

	if out == nil {
		return nil
	}
	if b, ok := out.(*[]byte); ok {
		data, err := io.ReadAll(resp.Body)
		if err != nil {
			return fmt.Errorf("failed to read response: %w", err)
		}
		*b = data
		return nil
	}
	if s, ok := out.(*string); ok {
		data, err := io.ReadAll(resp.Body)
		if err != nil {
			return fmt.Errorf("failed to read response: %w", err)
		}
		*s = string(data)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

func (c *Client) doJSON(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	contentType := ""
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
		body = bytes.NewReader(data)
		contentType = "application/json"
	}
	return c.do(ctx, method, path, body, contentType, out)
}

func (c *Client) doForm(ctx context.Context, method, path string, form url.Values, out any) error {
	return c.do(ctx, method, path, strings.NewReader(form.Encode()), "application/x-www-form-urlencoded", out)
}

func decodeAPIError(resp *http.Response) error {
	data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	apiErr := &APIError{StatusCode: resp.StatusCode}

	var body struct {
		Message string `json:"message"`
		Error   string `json:"error"`
	}
	if err := json.Unmarshal(data, &body); err == nil {
		apiErr.Message = body.Message
		if apiErr.Message == "" {
			apiErr.Message = body.Error
		}
	}
	if apiErr.Message == "" {
		apiErr.Message = strings.TrimSpace(string(data))
	}
	return apiErr
}

// RegisterRequest represents the registration request body
type RegisterRequest struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

// MessageResponse is the generic {message, status} body
type MessageResponse struct {
	Message string `json:"message"`
	Status  bool   `json:"status"`
}

// Register creates an account. The account stays disabled until the
// emailed verification link is used.
func (c *Client) Register(ctx context.Context, r RegisterRequest) (*MessageResponse, error) {
	var resp MessageResponse
	if err := c.doJSON(ctx, http.MethodPost, "/auth/public/register", r, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// LoginResult is the outcome of a password login
type LoginResult struct {
	Token string
	Roles []string
	// TwoFactorRequired means Token must not be adopted until the code is
	// confirmed with VerifyTwoFactorLogin
	TwoFactorRequired bool
}

// Login authenticates with username and password
func (c *Client) Login(ctx context.Context, username, password string) (*LoginResult, error) {
	reqBody := map[string]string{"username": username, "password": password}

	var resp struct {
		Token        string   `json:"token"`
		Roles        []string `json:"roles"`
		Is2faEnabled *bool    `json:"is2faEnabled"`
	}
	if err := c.doJSON(ctx, http.MethodPost, "/auth/public/login", reqBody, &resp); err != nil {
		return nil, err
	}
	if resp.Token == "" {
		return nil, errors.New("login response did not include a token")
	}

	result := &LoginResult{Token: resp.Token, Roles: resp.Roles}
	if resp.Is2faEnabled != nil {
		result.TwoFactorRequired = *resp.Is2faEnabled
	} else if claims, err := session.DecodeToken(resp.Token); err == nil {
		result.TwoFactorRequired = claims.Is2faEnabled
	}
	return result, nil
}

// VerifyTwoFactorLogin confirms a TOTP code for a pending login token
func (c *Client) VerifyTwoFactorLogin(ctx context.Context, code, pendingToken string) error {
	form := url.Values{}
	form.Set("code", code)
	form.Set("jwtToken", pendingToken)
	return c.doForm(ctx, http.MethodPost, "/auth/public/verify-2fa-login", form, nil)
}

// UserInfo is the current user as reported by the backend
type UserInfo struct {
	ID               string   `json:"id"`
	Username         string   `json:"username"`
	Email            string   `json:"email"`
	Enabled          bool     `json:"enabled"`
	TwoFactorEnabled bool     `json:"twoFactorEnabled"`
	Roles            []string `json:"roles"`
}

// CurrentUser fetches the authenticated user
func (c *Client) CurrentUser(ctx context.Context) (*UserInfo, error) {
	var user UserInfo
	if err := c.doJSON(ctx, http.MethodGet, "/auth/user", nil, &user); err != nil {
		return nil, err
	}
	return &user, nil
}

// FetchIdentity implements session.IdentityFetcher
func (c *Client) FetchIdentity(ctx context.Context) (session.Identity, error) {
	user, err := c.CurrentUser(ctx)
	if err != nil {
		return session.Identity{}, err
	}
	return session.Identity{Username: user.Username, Roles: session.NewRoleSet(user.Roles...)}, nil
}

// VerifyEmailResponse is returned by a successful email verification
type VerifyEmailResponse struct {
	Message string   `json:"message"`
	Status  bool     `json:"status"`
	Token   string   `json:"token"`
	Roles   []string `json:"roles"`
}

// VerifyEmail redeems an email verification token. On success the response
// carries a token for the now-enabled account.
func (c *Client) VerifyEmail(ctx context.Context, token string) (*VerifyEmailResponse, error) {
	var resp VerifyEmailResponse
	path := "/auth/public/verify-email?token=" + url.QueryEscape(token)
	if err := c.doJSON(ctx, http.MethodGet, path, nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// ResendVerification asks for a new verification email
func (c *Client) ResendVerification(ctx context.Context, username string) (*MessageResponse, error) {
	var resp MessageResponse
	if err := c.doJSON(ctx, http.MethodPost, "/auth/public/resend-verification", map[string]string{"username": username}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// ForgotPassword asks for a password reset link for the account of email
func (c *Client) ForgotPassword(ctx context.Context, email string) (*MessageResponse, error) {
	var resp MessageResponse
	form := url.Values{}
	form.Set("email", email)
	if err := c.doForm(ctx, http.MethodPost, "/auth/public/forgot-password", form, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// ResetPassword redeems a password reset token
func (c *Client) ResetPassword(ctx context.Context, token, newPassword string) (*MessageResponse, error) {
	var resp MessageResponse
	body := map[string]string{"token": token, "newPassword": newPassword}
	if err := c.doJSON(ctx, http.MethodPost, "/auth/public/reset-password", body, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// TwoFactorStatus reports whether 2FA is enabled for the current user
func (c *Client) TwoFactorStatus(ctx context.Context) (bool, error) {
	var resp struct {
		Is2faEnabled bool `json:"is2faEnabled"`
	}
	if err := c.doJSON(ctx, http.MethodGet, "/auth/user/2fa-status", nil, &resp); err != nil {
		return false, err
	}
	return resp.Is2faEnabled, nil
}

// EnableTwoFactor generates a TOTP secret and returns its otpauth:// URL.
// 2FA becomes active once a code is confirmed with VerifyTwoFactor.
func (c *Client) EnableTwoFactor(ctx context.Context) (string, error) {
	var otpauthURL string
	if err := c.do(ctx, http.MethodPost, "/auth/enable-2fa", nil, "", &otpauthURL); err != nil {
		return "", err
	}
	return strings.TrimSpace(otpauthURL), nil
}

// VerifyTwoFactor confirms a code for the secret issued by EnableTwoFactor
func (c *Client) VerifyTwoFactor(ctx context.Context, code string) error {
	form := url.Values{}
	form.Set("code", code)
	return c.doForm(ctx, http.MethodPost, "/auth/verify-2fa", form, nil)
}

// DisableTwoFactor turns 2FA off
func (c *Client) DisableTwoFactor(ctx context.Context) error {
	return c.do(ctx, http.MethodPost, "/auth/disable-2fa", nil, "", nil)
}

// URLMapping represents a shortened URL
type URLMapping struct {
	ID          string    `json:"id"`
	OriginalURL string    `json:"originalUrl"`
	ShortURL    string    `json:"shortUrl"`
	ClickCount  int       `json:"clickCount"`
	CreatedDate time.Time `json:"createdDate"`
	Username    string    `json:"username"`
}

// MyURLs lists the current user's short URLs, newest first
func (c *Client) MyURLs(ctx context.Context) ([]URLMapping, error) {
	var urls []URLMapping
	if err := c.doJSON(ctx, http.MethodGet, "/urls/myurls", nil, &urls); err != nil {
		return nil, err
	}
	sort.SliceStable(urls, func(i, j int) bool {
		return urls[i].CreatedDate.After(urls[j].CreatedDate)
	})
	return urls, nil
}

// Shorten creates a short URL for originalURL
func (c *Client) Shorten(ctx context.Context, originalURL string) (*URLMapping, error) {
	var mapping URLMapping
	if err := c.doJSON(ctx, http.MethodPost, "/urls/shorten", map[string]string{"originalUrl": originalURL}, &mapping); err != nil {
		return nil, err
	}
	return &mapping, nil
}

// DeleteURL removes one of the current user's short URLs
func (c *Client) DeleteURL(ctx context.Context, shortURL string) error {
	return c.do(ctx, http.MethodDelete, "/urls/"+url.PathEscape(shortURL), nil, "", nil)
}

// DailyClicks is a click count for one calendar day
type DailyClicks struct {
	Date   string
	Clicks int64
}

// TotalClicks returns the current user's clicks per day in [start, end]
func (c *Client) TotalClicks(ctx context.Context, start, end time.Time) ([]DailyClicks, error) {
	q := url.Values{}
	q.Set("startDate", start.Format(time.DateOnly))
	q.Set("endDate", end.Format(time.DateOnly))

	var totals map[string]int64
	if err := c.doJSON(ctx, http.MethodGet, "/urls/totalClicks?"+q.Encode(), nil, &totals); err != nil {
		return nil, err
	}

	days := make([]DailyClicks, 0, len(totals))
	for date, clicks := range totals {
		days = append(days, DailyClicks{Date: date, Clicks: clicks})
	}
	sort.Slice(days, func(i, j int) bool { return days[i].Date < days[j].Date })
	return days, nil
}

// URLAnalytics returns the clicks per day of one of the current user's
// links in [start, end], oldest day first
func (c *Client) URLAnalytics(ctx context.Context, shortURL string, start, end time.Time) ([]DailyClicks, error) {
	q := url.Values{}
	q.Set("startDate", start.Format(time.DateOnly))
	q.Set("endDate", end.Format(time.DateOnly))

	var events []struct {
		ClickDate string `json:"clickDate"`
		Count     int64  `json:"count"`
	}
	if err := c.doJSON(ctx, http.MethodGet, "/urls/analytics/"+url.PathEscape(shortURL)+"?"+q.Encode(), nil, &events); err != nil {
		return nil, err
	}

	days := make([]DailyClicks, len(events))
	for i, e := range events {
		days[i] = DailyClicks{Date: e.ClickDate, Clicks: e.Count}
	}
	sort.Slice(days, func(i, j int) bool { return days[i].Date < days[j].Date })
	return days, nil
}

// QRCode returns a PNG QR code of a short link. size 0 uses the backend default.
func (c *Client) QRCode(ctx context.Context, shortURL string, size int) ([]byte, error) {
	path := "/urls/qr/" + url.PathEscape(shortURL)
	if size > 0 {
		path += "?size=" + strconv.Itoa(size)
	}

	var data []byte
	if err := c.do(ctx, http.MethodGet, path, nil, "", &data); err != nil {
		return nil, err
	}
	return data, nil
}

// AuditLog represents an audit entry
type AuditLog struct {
	ID           string    `json:"id"`
	Action       string    `json:"action"`
	Username     string    `json:"username"`
	URLMappingID string    `json:"urlMappingId"`
	ShortURL     string    `json:"shortUrl"`
	Timestamp    time.Time `json:"timestamp"`
}

// AuditLogs returns every audit entry (admin only)
func (c *Client) AuditLogs(ctx context.Context) ([]AuditLog, error) {
	var logs []AuditLog
	if err := c.doJSON(ctx, http.MethodGet, "/audit", nil, &logs); err != nil {
		return nil, err
	}
	return logs, nil
}

// AuditLogsForURL returns the audit entries of one URL mapping (admin only)
func (c *Client) AuditLogsForURL(ctx context.Context, urlMappingID string) ([]AuditLog, error) {
	var logs []AuditLog
	if err := c.doJSON(ctx, http.MethodGet, "/audit/urls/"+url.PathEscape(urlMappingID), nil, &logs); err != nil {
		return nil, err
	}
	return logs, nil
}

// Users lists every account (admin only)
func (c *Client) Users(ctx context.Context) ([]UserInfo, error) {
	var users []UserInfo
	if err := c.doJSON(ctx, http.MethodGet, "/admin/get-users", nil, &users); err != nil {
		return nil, err
	}
	return users, nil
}

// User fetches one account by ID (admin only)
func (c *Client) User(ctx context.Context, id string) (*UserInfo, error) {
	var user UserInfo
	if err := c.doJSON(ctx, http.MethodGet, "/admin/user/"+url.PathEscape(id), nil, &user); err != nil {
		return nil, err
	}
	return &user, nil
}

// UpdateRole sets the role of an account to ROLE_USER or ROLE_ADMIN (admin only)
func (c *Client) UpdateRole(ctx context.Context, userID, roleName string) (*MessageResponse, error) {
	var resp MessageResponse
	form := url.Values{}
	form.Set("userId", userID)
	form.Set("roleName", roleName)
	if err := c.doForm(ctx, http.MethodPut, "/admin/update-role", form, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}
