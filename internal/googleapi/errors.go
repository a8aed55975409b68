package googleapi

import "fmt"

// AuthRequiredError means no refresh token is stored for the account.
type AuthRequiredError struct {
	Service string
	Email   string
	Client  string
	Cause   error
}

func (e *AuthRequiredError) Error() string {
	return fmt.Sprintf("auth required for %s %s (client %s)", e.Service, e.Email, e.Client)
}

func (e *AuthRequiredError) Unwrap() error { return e.Cause }
