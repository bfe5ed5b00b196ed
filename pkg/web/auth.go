package web

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/oneconcern/datapush/pkg/model"
	"github.com/oneconcern/datapush/pkg/push/status"
)

// Authorizer decides whether a request may push to a dataset.
//
// A rejected request yields an error matching status.ErrUnauthorized.
type Authorizer interface {
	Authorize(*http.Request, model.DatasetRef) error
}

// AuthorizerFunc adapts a function to the Authorizer interface
type AuthorizerFunc func(*http.Request, model.DatasetRef) error

// Authorize the request
func (f AuthorizerFunc) Authorize(r *http.Request, ref model.DatasetRef) error {
	return f(r, ref)
}

// AllowAll authorizes any request
func AllowAll() Authorizer {
	return AuthorizerFunc(func(*http.Request, model.DatasetRef) error {
		return nil
	})
}

// TokenAuthorizer authorizes requests carrying a static bearer token
func TokenAuthorizer(token string) Authorizer {
	expected := []byte(token)
	return AuthorizerFunc(func(r *http.Request, ref model.DatasetRef) error {
		const prefix = "Bearer "
		header := r.Header.Get("Authorization")
		if !strings.HasPrefix(header, prefix) {
			return status.ErrUnauthorized.WrapMessage("missing bearer token")
		}
		if len(expected) == 0 || subtle.ConstantTimeCompare([]byte(strings.TrimPrefix(header, prefix)), expected) != 1 {
			return status.ErrUnauthorized.WrapMessage("invalid token to push to %v", ref)
		}
		return nil
	})
}
