package metrics

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMetrics(t *testing.T) {
	// Register should be safe to call multiple times
	Register()
	Register()

	assert.NotPanics(t, func() {
		IncHTTP("test_endpoint")
		IncAvailability("service_appointment", "ok")
		IncStaleDiscard()
		IncSubmission("deposit", "redirect")
		SetActiveSessions(3)
	})
}
