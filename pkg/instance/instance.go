package instance

import "os"

// ID names this process in logs. CREATORPAY_INSTANCE_ID wins, then the
// hostname (the pod name on Cloud Run and Kubernetes).
func ID() string {
	if id := os.Getenv("CREATORPAY_INSTANCE_ID"); id != "" {
		return id
	}
	if host, err := os.Hostname(); err == nil && host != "" {
		return host
	}
	return "instance-0"
}
