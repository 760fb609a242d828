// Command podsleuthd is the process bootstrap (SPEC_FULL.md §2 item 14): it
// loads configuration from the environment, wires the core watch/diagnosis
// pipeline to real Kubernetes/Slack/backend infrastructure, and drives it
// until an interrupt or terminate signal arrives.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-logr/zapr"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
	"k8s.io/client-go/kubernetes"
	ctrl "sigs.k8s.io/controller-runtime"
	ctrllog "sigs.k8s.io/controller-runtime/pkg/log"

	"github.com/opsdev/podsleuthd/internal/adapters/alert"
	"github.com/opsdev/podsleuthd/internal/adapters/backend"
	"github.com/opsdev/podsleuthd/internal/adapters/health"
	kubeclientadapter "github.com/opsdev/podsleuthd/internal/adapters/kubeclient"
	"github.com/opsdev/podsleuthd/internal/adapters/ruletable"
	"github.com/opsdev/podsleuthd/internal/collector"
	"github.com/opsdev/podsleuthd/internal/metrics"
	"github.com/opsdev/podsleuthd/internal/rules"
	"github.com/opsdev/podsleuthd/internal/supervisor"
)

var (
	ruleTablePath   string
	healthAddr      string
	backendURL      string
	backendTokenEnv string
	slackTokenEnv   string
	slackChannel    string
	collectorRPS    float64
	collectorBurst  int
	developmentLogs bool
)

func main() {
	root := &cobra.Command{
		Use:   "podsleuthd",
		Short: "Watches pods across a cluster and diagnoses severe failures",
		RunE:  run,
	}

	root.Flags().StringVar(&ruleTablePath, "rule-table", "", "Path to the JSON rule-table asset (optional local triage hints)")
	root.Flags().StringVar(&healthAddr, "health-addr", ":8080", "Bind address for the /health and /metrics endpoints")
	root.Flags().StringVar(&backendURL, "backend-url", "", "URL of the external analysis backend (disabled if empty)")
	root.Flags().StringVar(&backendTokenEnv, "backend-token-env", "PODSLEUTHD_BACKEND_TOKEN", "Name of the env var holding the backend bearer token")
	root.Flags().StringVar(&slackTokenEnv, "slack-token-env", "PODSLEUTHD_SLACK_TOKEN", "Name of the env var holding the Slack bot token")
	root.Flags().StringVar(&slackChannel, "slack-channel", "", "Slack channel for alert sink delivery (disabled if empty)")
	root.Flags().Float64Var(&collectorRPS, "collector-rps", 50, "Sustained outbound API-call rate the collector throttles itself to")
	root.Flags().IntVar(&collectorBurst, "collector-burst", 100, "Burst size for the collector's rate limiter")
	root.Flags().BoolVar(&developmentLogs, "development-logs", false, "Use zap's development logging preset instead of production")

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(cmd *cobra.Command, args []string) error {
	zapLog, err := buildZapLogger(developmentLogs)
	if err != nil {
		return fmt.Errorf("podsleuthd: building logger: %w", err)
	}
	defer zapLog.Sync() //nolint:errcheck

	logger := zapr.NewLogger(zapLog)
	ctrllog.SetLogger(logger)
	log := ctrllog.Log.WithName("podsleuthd")

	cfg, err := loadConfigFromEnv()
	if err != nil {
		return fmt.Errorf("podsleuthd: configuration error at startup: %w", err)
	}

	restCfg, err := ctrl.GetConfig()
	if err != nil {
		return fmt.Errorf("podsleuthd: resolving kubeconfig: %w", err)
	}
	clientset, err := kubernetes.NewForConfig(restCfg)
	if err != nil {
		return fmt.Errorf("podsleuthd: building clientset: %w", err)
	}
	kubeClient := kubeclientadapter.New(clientset)

	var ruleTable *rules.Table
	if ruleTablePath != "" {
		ruleTable, err = ruletable.LoadFile(ruleTablePath, log.WithName("ruletable"))
		if err != nil {
			return fmt.Errorf("podsleuthd: loading rule table: %w", err)
		}
	}

	limiter := rate.NewLimiter(rate.Limit(collectorRPS), collectorBurst)
	coll := collector.New(kubeClient, limiter, ruleTable, log.WithName("collector"))

	reg := prometheus.NewRegistry()
	met := metrics.New(reg)

	// alertSink/backendSink stay nil interfaces (not typed-nil pointers) when
	// disabled, so the supervisor's own "!= nil" checks (fanOut, Initialize's
	// optional token probe) see them as absent.
	var alertSink supervisor.AlertSink
	if slackChannel != "" {
		token := os.Getenv(slackTokenEnv)
		alertSink = alert.NewSlackSink(token, slackChannel, alertRetryPolicy(cfg), log.WithName("alert"))
	}

	var backendSink supervisor.BackendSink
	var tokenProbe supervisor.TokenProbe
	if backendURL != "" {
		tokenSource := staticTokenSource{envVar: backendTokenEnv}
		dispatcher := backend.New(&http.Client{Timeout: 30 * time.Second}, tokenSource, "podsleuthd-backend")
		forwarder := backend.NewForwardingSink(dispatcher, backendURL, cfg.DiagnosisTimeout)
		backendSink = forwarder
		tokenProbe = forwarder
	}

	sup := supervisor.New(kubeClient, cfg, coll, met, alertSink, backendSink, tokenProbe, log.WithName("supervisor"))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := sup.Initialize(ctx); err != nil {
		return fmt.Errorf("podsleuthd: startup: %w", err)
	}
	if err := sup.Start(ctx); err != nil {
		return fmt.Errorf("podsleuthd: starting supervisor: %w", err)
	}

	healthSrv := health.New(healthAddr, sup, promhttp.HandlerFor(reg, promhttp.HandlerOpts{}), log.WithName("health"))
	healthErrCh := make(chan error, 1)
	go func() { healthErrCh <- healthSrv.Start(ctx) }()

	log.Info("podsleuthd running")
	select {
	case <-ctx.Done():
		log.Info("shutdown signal received")
	case err := <-healthErrCh:
		if err != nil {
			log.Error(err, "health endpoint exited unexpectedly")
		}
		stop()
	}

	sup.Stop()
	return nil
}

func buildZapLogger(development bool) (*zap.Logger, error) {
	if development {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}

// staticTokenSource reads the backend token from an environment variable on
// every call; the core and the dispatcher never cache or log the value.
type staticTokenSource struct {
	envVar string
}

func (s staticTokenSource) Token(ctx context.Context) (string, error) {
	return os.Getenv(s.envVar), nil
}
