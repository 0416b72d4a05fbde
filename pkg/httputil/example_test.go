package httputil_test

import (
	"net/http"
	"time"

	"github.com/wonny/genxsop/backend/pkg/config"
	"github.com/wonny/genxsop/backend/pkg/httputil"
	"github.com/wonny/genxsop/backend/pkg/logger"
)

// Example_advisorDoer shows the client configured as an SDK HTTP doer.
func Example_advisorDoer() {
	cfg := &config.Config{
		Env: "production",
		Advisor: config.AdvisorConfig{
			Timeout:           20 * time.Second,
			RequestsPerMinute: 30,
		},
	}
	log := logger.New(cfg)

	client := httputil.New(cfg, log).
		WithRetry(2, 500*time.Millisecond).
		WithLimiter(httputil.PerMinute(cfg.Advisor.RequestsPerMinute))

	var doer interface {
		Do(*http.Request) (*http.Response, error)
	} = client
	_ = doer
}
