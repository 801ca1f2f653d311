package http

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// triggers decodes the HX-Trigger header of a recorded response.
func triggers(t *testing.T, rr *httptest.ResponseRecorder) map[string]map[string]any {
	t.Helper()
	raw := rr.Header().Get("HX-Trigger")
	require.NotEmpty(t, raw, "HX-Trigger header not set")
	var out map[string]map[string]any
	require.NoError(t, json.Unmarshal([]byte(raw), &out))
	return out
}

func TestBuilderWritesStatusAndBody(t *testing.T) {
	rr := httptest.NewRecorder()
	NewHTMXResponse().Status(http.StatusAccepted).BodyString("queued").Write(rr)

	assert.Equal(t, http.StatusAccepted, rr.Code)
	assert.Equal(t, "queued", rr.Body.String())
	assert.Empty(t, rr.Header().Get("HX-Trigger"))
}

func TestBuilderCombinesTriggers(t *testing.T) {
	rr := httptest.NewRecorder()
	NewHTMXResponse().
		TriggerExpenseCreated(42).
		TriggerFormReset().
		TriggerSuccessNotification("Expense added").
		Write(rr)

	got := triggers(t, rr)
	require.Len(t, got, 3)
	assert.EqualValues(t, 42, got[EventExpenseCreated]["id"])
	assert.Contains(t, got, EventFormReset)
	assert.Equal(t, "success", got[EventShowNotification]["type"])
	assert.Equal(t, "Expense added", got[EventShowNotification]["message"])
	assert.EqualValues(t, 3000, got[EventShowNotification]["duration"])
}

func TestBuilderChangeEvents(t *testing.T) {
	cases := map[string]struct {
		builder *HTMXResponseBuilder
		event   string
		key     string
		value   any
	}{
		"updated": {NewHTMXResponse().TriggerExpenseUpdated(7), EventExpenseUpdated, "id", float64(7)},
		"deleted": {NewHTMXResponse().TriggerExpenseDeleted(8), EventExpenseDeleted, "id", float64(8)},
		"income":  {NewHTMXResponse().TriggerIncomeUpdated("2500.5"), EventIncomeUpdated, "amount", "2500.5"},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			rr := httptest.NewRecorder()
			tc.builder.Write(rr)
			assert.Equal(t, tc.value, triggers(t, rr)[tc.event][tc.key])
		})
	}

	rr := httptest.NewRecorder()
	NewHTMXResponse().TriggerDashboardReloaded().Write(rr)
	assert.Contains(t, triggers(t, rr), EventDashboardReload)
}

func TestBuilderHeaders(t *testing.T) {
	rr := httptest.NewRecorder()
	NewHTMXResponse().
		Header("X-Custom", "value").
		BodyHTML("<p>ok</p>").
		Write(rr)

	assert.Equal(t, "value", rr.Header().Get("X-Custom"))
	assert.Equal(t, "text/html; charset=utf-8", rr.Header().Get("Content-Type"))
}

func TestErrorResponses(t *testing.T) {
	cases := []struct {
		name       string
		builder    *HTMXResponseBuilder
		wantStatus int
		notifies   bool
	}{
		{"bad request", BadRequestError("Invalid input"), http.StatusBadRequest, false},
		{"unprocessable", UnprocessableEntityError("Invalid input"), http.StatusUnprocessableEntity, false},
		{"not found", NotFoundError("Invalid input"), http.StatusNotFound, false},
		{"internal", InternalServerError("Invalid input"), http.StatusInternalServerError, false},
		{"bad gateway", BadGatewayError("Invalid input"), http.StatusBadGateway, true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rr := httptest.NewRecorder()
			tc.builder.Write(rr)

			assert.Equal(t, tc.wantStatus, rr.Code)
			assert.Equal(t, `<div class="error">Invalid input</div>`, rr.Body.String())
			if tc.notifies {
				n := triggers(t, rr)[EventShowNotification]
				assert.Equal(t, "error", n["type"])
				assert.Equal(t, "Invalid input", n["message"])
			} else {
				assert.Empty(t, rr.Header().Get("HX-Trigger"))
			}
		})
	}
}

func TestErrorResponseEscapesMessage(t *testing.T) {
	rr := httptest.NewRecorder()
	BadRequestError(`<img src=x onerror="alert(1)">`).Write(rr)

	assert.NotContains(t, rr.Body.String(), "<img")
	assert.Contains(t, rr.Body.String(), "&lt;img")
}

func TestTooManyRequestsNotifies(t *testing.T) {
	rr := httptest.NewRecorder()
	TooManyRequestsError().Write(rr)

	assert.Equal(t, http.StatusTooManyRequests, rr.Code)
	assert.Equal(t, "error", triggers(t, rr)[EventShowNotification]["type"])
}

func TestNotificationDurations(t *testing.T) {
	cases := map[NotificationType]func(*HTMXResponseBuilder) *HTMXResponseBuilder{
		NotificationWarning: func(b *HTMXResponseBuilder) *HTMXResponseBuilder { return b.TriggerWarningNotification("w") },
		NotificationError:   func(b *HTMXResponseBuilder) *HTMXResponseBuilder { return b.TriggerErrorNotification("e") },
		NotificationInfo: func(b *HTMXResponseBuilder) *HTMXResponseBuilder {
			return b.TriggerNotification(NotificationInfo, "i", 1000)
		},
	}
	want := map[NotificationType]float64{NotificationWarning: 5000, NotificationError: 5000, NotificationInfo: 1000}

	for kind, build := range cases {
		rr := httptest.NewRecorder()
		build(NewHTMXResponse()).Write(rr)
		n := triggers(t, rr)[EventShowNotification]
		assert.Equal(t, string(kind), n["type"])
		assert.Equal(t, want[kind], n["duration"])
	}
}
