package metrics

import (
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistry_WebhookReceived_ExportsCounter(t *testing.T) {
	r := New()
	r.WebhookReceived(42)
	r.WebhookReceived(42)

	body := scrape(t, r)
	assert.Contains(t, body, `tbh_webhook_received_total{bot_id="42"} 2`)
}

func TestRegistry_TraversalBranch_LabelsKindAndResult(t *testing.T) {
	r := New()
	r.TraversalBranch(1, "message", "ok")
	r.TraversalBranch(1, "condition", "error")

	body := scrape(t, r)
	assert.Contains(t, body, `tbh_traversal_branch_total{bot_id="1",kind="condition",result="error"} 1`)
	assert.Contains(t, body, `tbh_traversal_branch_total{bot_id="1",kind="message",result="ok"} 1`)
}

func TestRegistry_MessageSentAndAPIRequest(t *testing.T) {
	r := New()
	r.MessageSent(7)
	r.APIRequest(7, "success")
	r.APIRequest(7, "failure")

	body := scrape(t, r)
	assert.Contains(t, body, `tbh_messages_sent_total{bot_id="7"} 1`)
	assert.Contains(t, body, `tbh_api_request_total{bot_id="7",outcome="failure"} 1`)
	assert.Contains(t, body, `tbh_api_request_total{bot_id="7",outcome="success"} 1`)
}

func TestRegistry_ObserveTraversal_RecordsHistogramSample(t *testing.T) {
	r := New()
	r.ObserveTraversal(3, 0.25)

	body := scrape(t, r)
	assert.Contains(t, body, `tbh_traversal_duration_seconds_count{bot_id="3"} 1`)
}

func scrape(t *testing.T, r *Registry) string {
	t.Helper()
	req := httptest.NewRequest("GET", "/metrics", nil)
	rec := httptest.NewRecorder()
	r.Handler().ServeHTTP(rec, req)
	require.Equal(t, 200, rec.Code)
	return strings.ReplaceAll(rec.Body.String(), "\n", "\n")
}
