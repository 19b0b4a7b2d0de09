package supabase

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"devplan/internal/gateway"

	"github.com/tidwall/gjson"
)

// Identity implements gateway.Identity with GoTrue.
type Identity struct {
	client *Client
}

var _ gateway.Identity = (*Identity)(nil)

// Identity returns the auth client of this project.
func (c *Client) Identity() *Identity {
	return &Identity{client: c}
}

// SignUp creates a confirmed account.
//
// With a service key the admin endpoint is used so no confirmation email is
// required; otherwise it falls back to the public signup endpoint.
func (i *Identity) SignUp(ctx context.Context, email, password string) (gateway.Account, error) {
	path := "/auth/v1/signup"
	payload := map[string]any{"email": email, "password": password}
	if i.client.serviceKey != "" {
		path = "/auth/v1/admin/users"
		payload["email_confirm"] = true
	}

	req, err := newJSONRequest(http.MethodPost, i.client.baseURL+path, payload)
	if err != nil {
		return gateway.Account{}, err
	}
	resp, err := i.client.call(ctx, "signup", "auth", req)
	if err != nil {
		if isTaken(err) {
			return gateway.Account{}, gateway.ErrAccountExists
		}
		return gateway.Account{}, err
	}

	// admin endpoint returns the user, public signup wraps it in {"user": ...}
	// unless email confirmation is disabled.
	user := gjson.GetBytes(resp.body, "user")
	if !user.Exists() {
		user = gjson.ParseBytes(resp.body)
	}
	acc := gateway.Account{ID: user.Get("id").String(), Email: user.Get("email").String()}
	if acc.ID == "" {
		return gateway.Account{}, fmt.Errorf("signup: no user id in response")
	}
	return acc, nil
}

// SignIn runs the password grant and returns the account behind it.
func (i *Identity) SignIn(ctx context.Context, email, password string) (gateway.Account, error) {
	req, err := newJSONRequest(http.MethodPost, i.client.baseURL+"/auth/v1/token?grant_type=password",
		map[string]string{"email": email, "password": password})
	if err != nil {
		return gateway.Account{}, err
	}
	req.Header.Set("apikey", i.client.publicKey())
	req.Header.Set("Authorization", "Bearer "+i.client.publicKey())

	resp, err := i.client.call(ctx, "signin", "auth", req)
	if err != nil {
		var se *gateway.StoreError
		if errors.As(err, &se) && (se.Status == http.StatusBadRequest || se.Status == http.StatusUnauthorized) {
			return gateway.Account{}, gateway.ErrInvalidCredentials
		}
		return gateway.Account{}, err
	}
	acc := gateway.Account{
		ID:    gjson.GetBytes(resp.body, "user.id").String(),
		Email: gjson.GetBytes(resp.body, "user.email").String(),
	}
	if acc.ID == "" {
		return gateway.Account{}, fmt.Errorf("signin: no user id in response")
	}
	return acc, nil
}

func isTaken(err error) bool {
	var se *gateway.StoreError
	if !errors.As(err, &se) {
		return false
	}
	if se.Status == http.StatusConflict {
		return true
	}
	if se.Status == http.StatusUnprocessableEntity || se.Status == http.StatusBadRequest {
		msg := strings.ToLower(se.Err.Error())
		return strings.Contains(msg, "already") || strings.Contains(msg, "exists")
	}
	return false
}
