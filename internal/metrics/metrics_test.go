package metrics

import (
	"io"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func TestExposesRegisteredMetrics(t *testing.T) {
	IncAction("like", "applied")
	IncAuthAttempt("login", "ok")
	IncAPIRetry("/twoots/")
	EngageCycles.Inc()

	srv := httptest.NewServer(promhttp.Handler())
	defer srv.Close()

	resp, err := srv.Client().Get(srv.URL)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatal(err)
	}
	text := string(body)
	for _, name := range []string{
		"twooter_engage_cycles_total",
		"twooter_actions_total",
		"twooter_auth_attempts_total",
		"twooter_api_retries_total",
	} {
		if !strings.Contains(text, name) {
			t.Errorf("exposition missing %s", name)
		}
	}
	if !strings.Contains(text, `twooter_actions_total{kind="like",outcome="applied"}`) {
		t.Error("action labels not exposed")
	}
}
