package cloud

import (
	"context"
	"net/http"
	"net/url"
	"strings"
)

// Login exchanges credentials for a token. The backend expects a form body.
func (c *HTTPClient) Login(ctx context.Context, username, password string) (*AuthResponse, error) {
	form := url.Values{}
	form.Set("username", username)
	form.Set("password", password)

	var out AuthResponse
	err := c.do(ctx, apiRequest{
		method:      http.MethodPost,
		path:        "/auth/login/",
		body:        strings.NewReader(form.Encode()),
		contentType: "application/x-www-form-urlencoded",
	}, &out)
	if err != nil {
		return nil, err
	}
	c.logger.Info("logged in", "username", out.User.Username)
	return &out, nil
}

// Register creates an account and returns its token.
func (c *HTTPClient) Register(ctx context.Context, reg Registration) (*AuthResponse, error) {
	if reg.Password2 == "" {
		reg.Password2 = reg.Password
	}
	body, err := jsonBody(reg)
	if err != nil {
		return nil, err
	}
	var out AuthResponse
	if err := c.do(ctx, apiRequest{
		method:      http.MethodPost,
		path:        "/auth/register/",
		body:        body,
		contentType: "application/json",
	}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Logout revokes the current token on the backend.
func (c *HTTPClient) Logout(ctx context.Context) error {
	return c.do(ctx, apiRequest{
		method: http.MethodPost,
		path:   "/auth/logout/",
		auth:   true,
	}, nil)
}

// Profile returns the logged-in user.
func (c *HTTPClient) Profile(ctx context.Context) (*User, error) {
	var out User
	if err := c.do(ctx, apiRequest{
		method: http.MethodGet,
		path:   "/auth/profile/",
		auth:   true,
	}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// UpdateProfile patches the editable profile fields.
func (c *HTTPClient) UpdateProfile(ctx context.Context, update ProfileUpdate) (*User, error) {
	body, err := jsonBody(update)
	if err != nil {
		return nil, err
	}
	var out User
	if err := c.do(ctx, apiRequest{
		method:      http.MethodPatch,
		path:        "/auth/profile/",
		body:        body,
		contentType: "application/json",
		auth:        true,
	}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}
