package daemon

import "time"

// WriteTimeout reports the HTTP server's write deadline.
func (d *Daemon) WriteTimeout() time.Duration {
	return d.server.server.WriteTimeout
}
