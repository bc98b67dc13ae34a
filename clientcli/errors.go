package clientcli

import "errors"

var (
	// ErrConfigRequired is returned when a Client is created without config.
	ErrConfigRequired = errors.New("config is required")
	// ErrNoProfiles is returned when the config file holds no profiles.
	ErrNoProfiles = errors.New("no profiles configured")
	// ErrProfileNotFound is returned when a named profile does not exist.
	ErrProfileNotFound = errors.New("profile not found")
	// ErrProfileExists is returned when adding a profile whose name is taken.
	ErrProfileExists = errors.New("profile already exists")
	// ErrEmptyPath is returned when an upload has no local path.
	ErrEmptyPath = errors.New("local path is required")
)

// ServerError is an error envelope returned by the server.
type ServerError struct {
	StatusCode int
	Code       string            `json:"error"`
	Message    string            `json:"message"`
	Fields     map[string]string `json:"fields,omitempty"`
}

func (e *ServerError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return e.Code
}
