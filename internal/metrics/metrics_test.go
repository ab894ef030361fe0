package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetrics(t *testing.T) {
	// Register should be safe to call multiple times
	Register()
	Register()

	before := testutil.ToFloat64(transitions.WithLabelValues("pending", "accepted"))
	IncTransition("pending", "accepted")
	assert.Equal(t, before+1, testutil.ToFloat64(transitions.WithLabelValues("pending", "accepted")))

	assert.NotPanics(t, func() {
		IncHTTP("GET /bookings/pending", http.StatusOK)
		IncRejected("conflict")
		IncCreated()
	})

	rec := httptest.NewRecorder()
	Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, strings.Contains(rec.Body.String(), "servicenest_booking_transitions_total"))
}
