package api

import "context"

// LoginInput are the credentials for POST /login.
type LoginInput struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// RegisterInput is the POST /register payload.
type RegisterInput struct {
	Name                 string `json:"name"`
	Email                string `json:"email"`
	Password             string `json:"password"`
	PasswordConfirmation string `json:"password_confirmation"`
	Role                 string `json:"role"` // "patient" or "doctor"
}

// UpdateProfileInput is the PUT /profile payload. Password fields are
// omitted when empty so the server keeps the current password.
type UpdateProfileInput struct {
	Name                 string `json:"name"`
	Email                string `json:"email"`
	Password             string `json:"password,omitempty"`
	PasswordConfirmation string `json:"password_confirmation,omitempty"`
	Phone                string `json:"phone,omitempty"`
}

func (c *Client) Login(ctx context.Context, in LoginInput) (*AuthResponse, error) {
	var res AuthResponse
	if err := c.post(ctx, "/login", in, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

func (c *Client) Register(ctx context.Context, in RegisterInput) (*AuthResponse, error) {
	var res AuthResponse
	if err := c.post(ctx, "/register", in, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// Refresh rotates the bearer token explicitly. The 401 replay path uses the
// same underlying single-flight group, so proactive and reactive refreshes
// never race each other.
func (c *Client) Refresh(ctx context.Context) (string, error) {
	return c.refreshToken(ctx)
}

func (c *Client) Logout(ctx context.Context) error {
	return c.post(ctx, "/logout", nil, nil)
}

func (c *Client) Profile(ctx context.Context) (*User, error) {
	var res struct {
		User User `json:"user"`
	}
	if err := c.get(ctx, "/profile", &res); err != nil {
		return nil, err
	}
	return &res.User, nil
}

func (c *Client) UpdateProfile(ctx context.Context, in UpdateProfileInput) (*User, error) {
	var res struct {
		User    User   `json:"user"`
		Message string `json:"message"`
	}
	if err := c.put(ctx, "/profile", in, &res); err != nil {
		return nil, err
	}
	return &res.User, nil
}
