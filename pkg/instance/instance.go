package instance

import "github.com/molimor/molimor-backend/pkg/env"

// GetID names this process in logs and lock owners. An explicit worker id
// wins, then the pod or dyno hostname.
func GetID() string {
	return env.First("worker-0", "MOLIMOR_WORKER_ID", "HOSTNAME", "DYNO")
}
