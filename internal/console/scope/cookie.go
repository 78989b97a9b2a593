package scope

import (
	"net/http"
	"time"

	"github.com/google/uuid"
)

// DefaultCookieName names the navigation scope cookie
const DefaultCookieName = "console_scope"

// Cookies issues and reads the navigation scope cookie
type Cookies struct {
	Name string
	TTL  time.Duration
}

// ID returns the scope ID carried by r, if it holds a valid one
func (c Cookies) ID(r *http.Request) (string, bool) {
	cookie, err := r.Cookie(c.name())
	if err != nil {
		return "", false
	}
	id, err := uuid.Parse(cookie.Value)
	if err != nil {
		return "", false
	}
	return id.String(), true
}

// Ensure returns the scope ID of r, issuing a new cookie when r has none
func (c Cookies) Ensure(w http.ResponseWriter, r *http.Request) string {
	if id, ok := c.ID(r); ok {
		return id
	}
	return c.Issue(w)
}

// Issue starts a new navigation scope and returns its ID
func (c Cookies) Issue(w http.ResponseWriter) string {
	id := uuid.New().String()
	cookie := &http.Cookie{
		Name:     c.name(),
		Value:    id,
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	}
	if c.TTL > 0 {
		cookie.MaxAge = int(c.TTL.Seconds())
	}
	http.SetCookie(w, cookie)
	return id
}

func (c Cookies) name() string {
	if c.Name == "" {
		return DefaultCookieName
	}
	return c.Name
}
