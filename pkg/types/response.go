// Package types holds the JSON envelopes shared by every HTTP surface.
package types

type SuccessEnvelope struct {
	Data any `json:"data"`
}

type APIError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

type ErrorEnvelope struct {
	Error APIError `json:"error"`
}

// PingDocument answers marketplace connectivity checks.
type PingDocument struct {
	Name    string `json:"name"`
	Version int    `json:"version"`
	Status  string `json:"status"`
	Time    string `json:"time"`
}

// IngestAck is the body returned for a handled notification.
type IngestAck struct {
	OK      bool   `json:"ok"`
	Message string `json:"message"`
}
