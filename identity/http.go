package identity

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/antonholmquist/jason"
	"github.com/pkg/errors"
)

// HTTP asks an authentication service about tokens. It sends
//
//     GET <BaseURL>/verify
//     Authorization: Bearer <token>
//
// and expects a JSON reply with a "valid" flag and the user. The user may
// be given as "username" or "user", and "user" may be an object with its
// own "username", "id" and "role" fields. An "isAdmin" flag grants the
// admin role. A 401 or 403 reply means the token was rejected.
type HTTP struct {
	BaseURL string
	Client  *http.Client // nil uses a client with a 10 second timeout
}

var defaultClient = &http.Client{Timeout: 10 * time.Second}

func (h *HTTP) Verify(ctx context.Context, token string) (User, error) {
	if token == "" {
		return User{}, nil
	}
	req, err := http.NewRequest("GET", strings.TrimSuffix(h.BaseURL, "/")+"/verify", nil)
	if err != nil {
		return User{}, err
	}
	req = req.WithContext(ctx)
	req.Header.Set("Authorization", "Bearer "+token)
	client := h.Client
	if client == nil {
		client = defaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return User{}, errors.Wrap(err, "identity")
	}
	defer resp.Body.Close()
	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return User{}, nil
	case resp.StatusCode != http.StatusOK:
		return User{}, fmt.Errorf("identity: received status %d", resp.StatusCode)
	}
	v, err := jason.NewObjectFromReader(resp.Body)
	if err != nil {
		return User{}, errors.Wrap(err, "identity")
	}
	return decodeReply(v), nil
}

func decodeReply(v *jason.Object) User {
	if valid, err := v.GetBoolean("valid"); err == nil && !valid {
		return User{}
	}
	var u User
	var role string
	u.Name, _ = v.GetString("username")
	role, _ = v.GetString("role")
	if u.Name == "" {
		u.Name, _ = v.GetString("user")
	}
	if obj, err := v.GetObject("user"); err == nil {
		if u.Name == "" {
			u.Name, _ = obj.GetString("username")
		}
		if u.Name == "" {
			u.Name, _ = obj.GetString("id")
		}
		if role == "" {
			role, _ = obj.GetString("role")
		}
	}
	u.Role = ParseRole(role)
	if u.Role == RoleUnknown {
		u.Role = RoleUser
	}
	if admin, err := v.GetBoolean("isAdmin"); err == nil && admin {
		u.Role = RoleAdmin
	}
	if u.Name == "" {
		return User{}
	}
	return u
}
