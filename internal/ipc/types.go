package ipc

import "fingerid/internal/api"

// serviceName prefixes every RPC method.
const serviceName = "Fingerid"

// StatusRequest fetches daemon status.
type StatusRequest struct{}

// StatusResponse is the daemon status in its wire form.
type StatusResponse = api.DaemonStatus

// StopRequest asks the daemon to shut down.
type StopRequest struct{}

// StopResponse reports whether shutdown was initiated.
type StopResponse struct {
	Stopped bool   `json:"stopped"`
	Message string `json:"message,omitempty"`
}
