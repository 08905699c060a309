package instance

import "os"

const envInstanceID = "MPSYNC_INSTANCE_ID"

// GetID names the running process in logs and lock ownership. It prefers
// MPSYNC_INSTANCE_ID, then the host name.
func GetID() string {
	if id := os.Getenv(envInstanceID); id != "" {
		return id
	}
	if host, err := os.Hostname(); err == nil && host != "" {
		return host
	}
	return "worker-0"
}
