package client

import "fmt"

// ProviderError is a non-success answer from a delivery provider.
type ProviderError struct {
	Provider   string
	StatusCode int
	Code       int
	Message    string
}

func (e *ProviderError) Error() string {
	if e.Code != 0 {
		return fmt.Sprintf("%s: status %d code %d: %s", e.Provider, e.StatusCode, e.Code, e.Message)
	}
	return fmt.Sprintf("%s: status %d: %s", e.Provider, e.StatusCode, e.Message)
}
