package sd

import (
	"context"
	"fmt"
	"net/http"
)

const sessionCookie = "JSESSIONID"

type Credentials struct {
	User     string
	Password string
}

// Session carries the cookies issued at login. It is not safe for
// concurrent use.
type Session struct {
	client  *Client
	user    string
	cookies []*http.Cookie
	closed  bool
}

// Open logs in with HTTP basic auth and returns the resulting session.
func (c *Client) Open(ctx context.Context, creds Credentials) (*Session, error) {
	cl := call{
		op:      "login",
		method:  http.MethodPost,
		path:    loginPath,
		accept:  userRefMediaType,
		failure: ErrAuth,
	}
	req, err := c.newRequest(ctx, cl)
	if err != nil {
		return nil, err
	}
	req.SetBasicAuth(creds.User, creds.Password)

	resp, err := c.send(req, cl, nil)
	if err != nil {
		return nil, err
	}

	cookies := resp.Cookies()
	found := false
	for _, ck := range cookies {
		if ck.Name == sessionCookie {
			found = true
			break
		}
	}
	if !found {
		return nil, fmt.Errorf("%w: login response carried no %s cookie", ErrAuth, sessionCookie)
	}

	c.logger.Debug("Security Director session opened", "user", creds.User, "cookies", len(cookies))
	return &Session{client: c, user: creds.User, cookies: cookies}, nil
}

// Close logs out. Only the first call talks to the server.
func (s *Session) Close(ctx context.Context) error {
	if s.closed {
		return nil
	}
	s.closed = true

	cl := call{
		op:     "logout",
		method: http.MethodPost,
		path:   logoutPath,
		accept: userRefMediaType,
	}
	req, err := s.client.newRequest(ctx, cl)
	if err != nil {
		return err
	}
	s.attach(req)
	if _, err := s.client.send(req, cl, nil); err != nil {
		return err
	}

	s.client.logger.Debug("Security Director session closed", "user", s.user)
	return nil
}

// WithSession opens a session, runs fn and always closes the session
// afterwards. A logout failure is only reported when fn succeeded.
func (c *Client) WithSession(ctx context.Context, creds Credentials, fn func(*Session) error) (err error) {
	s, err := c.Open(ctx, creds)
	if err != nil {
		return err
	}
	defer func() {
		// Logout must still happen when ctx was cancelled mid-run.
		closeErr := s.Close(context.WithoutCancel(ctx))
		if closeErr != nil && err == nil {
			err = fmt.Errorf("failed to close session: %w", closeErr)
		}
	}()
	return fn(s)
}

func (s *Session) attach(req *http.Request) {
	for _, ck := range s.cookies {
		req.AddCookie(&http.Cookie{Name: ck.Name, Value: ck.Value})
	}
}

// do runs an authenticated call.
func (s *Session) do(ctx context.Context, cl call, out interface{}) error {
	if s.closed {
		return ErrSessionClosed
	}
	req, err := s.client.newRequest(ctx, cl)
	if err != nil {
		return err
	}
	s.attach(req)
	_, err = s.client.send(req, cl, out)
	return err
}
