// Command magi predicts the finishing order of one boat race from three
// sources: the weighted statistical scorer, the outcome model and the MAGI
// consensus of LLM providers.
//
//	magi -race race.json [-config magi.yaml] [-mode stat|ml|magi|all]
//	magi -race race.json -mode analyze -provider claude
//	magi -mode models
//
// Provider credentials are read from the config file or from MAGI_*
// environment variables such as MAGI_CLAUDE_API_KEY.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"

	"github.com/ahrav/go-magi/infrastructure/judges"
	"github.com/ahrav/go-magi/infrastructure/llm"
	"github.com/ahrav/go-magi/infrastructure/metrics"
	"github.com/ahrav/go-magi/infrastructure/ml"
	"github.com/ahrav/go-magi/internal/application"
	"github.com/ahrav/go-magi/internal/domain"
	"github.com/ahrav/go-magi/internal/ports"
)

// Prediction modes.
const (
	modeStat = "stat"
	modeML   = "ml"
	modeMAGI = "magi"
	modeAll  = "all"

	// modeAnalyze asks the single provider named by -provider.
	modeAnalyze = "analyze"

	// modeModels lists the model catalog and needs no race.
	modeModels = "models"
)

// statusUnconfigured reports a consensus skipped for lack of providers.
const statusUnconfigured = "unconfigured"

const (
	breakerFailures = 3
	breakerCooldown = 30 * time.Second
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	code := run(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

type options struct {
	racePath    string
	configPath  string
	mode        string
	provider    domain.ProviderID
	metricsFile string
}

// report is the JSON document written to stdout. Sections are omitted when
// their mode was not requested.
type report struct {
	RaceID      int                           `json:"race_id"`
	Statistical *domain.StatisticalPrediction `json:"statistical,omitempty"`
	Machine     *domain.MLPrediction          `json:"ml,omitempty"`
	Consensus   *domain.ConsensusResult       `json:"magi,omitempty"`
	Analysis    *domain.ProviderVerdict       `json:"analysis,omitempty"`
	MAGIStatus  string                        `json:"magi_status,omitempty"`
	Errors      map[string]string             `json:"errors,omitempty"`
}

func parseFlags(args []string, stderr io.Writer) (options, error) {
	var opts options
	fs := flag.NewFlagSet("magi", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.StringVar(&opts.racePath, "race", "", "Race file (JSON or YAML)")
	fs.StringVar(&opts.configPath, "config", "", "Configuration file (YAML)")
	fs.StringVar(&opts.mode, "mode", modeAll, "Prediction mode: stat, ml, magi, all, analyze or models")
	provider := fs.String("provider", "", "Provider for -mode analyze: claude, openai, gemini or grok")
	fs.StringVar(&opts.metricsFile, "metrics-file", "", "Write Prometheus metrics to this file on exit")
	if err := fs.Parse(args); err != nil {
		return opts, err
	}

	switch opts.mode {
	case modeModels:
		return opts, nil
	case modeAnalyze:
		id, err := domain.ParseProviderID(*provider)
		if err != nil {
			return opts, fmt.Errorf("-provider: %w", err)
		}
		opts.provider = id
	case modeStat, modeML, modeMAGI, modeAll:
	default:
		return opts, fmt.Errorf("unknown mode %q", opts.mode)
	}
	if opts.racePath == "" {
		return opts, errors.New("-race is required")
	}
	return opts, nil
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	opts, err := parseFlags(args, stderr)
	if err != nil {
		if !errors.Is(err, flag.ErrHelp) {
			fmt.Fprintln(stderr, "magi:", err)
		}
		return 2
	}

	if opts.mode == modeModels {
		return writeJSON(stdout, stderr, llm.Catalog())
	}

	loader, err := application.NewConfigLoader()
	if err != nil {
		fmt.Fprintln(stderr, "magi:", err)
		return 1
	}
	cfg, err := loader.Load(opts.configPath)
	if err != nil {
		fmt.Fprintln(stderr, "magi: config:", err)
		return 1
	}

	logger := newLogger(cfg.Logging, stderr)

	race, err := loadRace(opts.racePath)
	if err != nil {
		logger.WithError(err).Error("failed to load race")
		return 1
	}

	reg := prometheus.NewRegistry()
	svc, err := buildService(cfg, metrics.NewPrometheusMetrics(reg), logger)
	if err != nil {
		logger.WithError(err).Error("failed to build prediction service")
		return 1
	}

	warnUnknownModels(cfg, logger)
	out := predict(ctx, svc, cfg, race, opts, logger)

	if opts.metricsFile != "" {
		if err := prometheus.WriteToTextfile(opts.metricsFile, reg); err != nil {
			logger.WithError(err).Warn("failed to write metrics")
		}
	}

	if code := writeJSON(stdout, stderr, out); code != 0 {
		return code
	}
	if ctx.Err() != nil || len(out.Errors) > 0 {
		return 1
	}
	return 0
}

func writeJSON(stdout, stderr io.Writer, v any) int {
	enc := json.NewEncoder(stdout)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		fmt.Fprintln(stderr, "magi: write report:", err)
		return 1
	}
	return 0
}

// warnUnknownModels flags configured models outside the catalog. They are
// still used; the catalog only lists models tested with the race prompt.
func warnUnknownModels(cfg *application.Config, logger *logrus.Logger) {
	for _, id := range domain.Providers() {
		p := cfg.MAGI.Provider(id)
		if !llm.KnownModel(id, p.Model) {
			logger.WithFields(logrus.Fields{
				"provider": id,
				"model":    p.Model,
			}).Warn("model is not in the catalog")
		}
	}
}

func predict(
	ctx context.Context,
	svc *application.PredictionService,
	cfg *application.Config,
	race domain.RaceContext,
	opts options,
	logger *logrus.Logger,
) report {
	out := report{RaceID: race.RaceID}
	fail := func(section string, err error) {
		if out.Errors == nil {
			out.Errors = make(map[string]string)
		}
		out.Errors[section] = err.Error()
		logger.WithFields(logrus.Fields{"section": section, "error": err.Error()}).Warn("prediction failed")
	}
	want := func(m string) bool { return opts.mode == modeAll || opts.mode == m }

	if want(modeStat) {
		if p, err := svc.Statistical(race, cfg.WeightConfig()); err != nil {
			fail(modeStat, err)
		} else {
			out.Statistical = p
		}
	}

	if want(modeML) {
		if p, err := svc.Machine(ctx, race); err != nil {
			fail(modeML, err)
		} else {
			out.Machine = p
		}
	}

	if want(modeMAGI) {
		res, err := svc.Consensus(ctx, race, cfg.MAGIConfig())
		switch {
		case errors.Is(err, domain.ErrInsufficientQuorum):
			out.MAGIStatus = statusUnconfigured
			logger.WithError(err).Info("consensus skipped")
		case err != nil:
			fail(modeMAGI, err)
		default:
			out.Consensus = res
		}
	}

	if opts.mode == modeAnalyze {
		if v, err := svc.Analyze(ctx, race, cfg.MAGIConfig(), opts.provider); err != nil {
			fail(modeAnalyze, err)
		} else {
			out.Analysis = v
			if v.Status == domain.StatusError {
				fail(modeAnalyze, errors.New(v.Error))
			}
		}
	}
	return out
}

func buildService(
	cfg *application.Config,
	collector ports.MetricsCollector,
	logger *logrus.Logger,
) (*application.PredictionService, error) {
	rpm := make(map[domain.ProviderID]int, len(domain.Providers()))
	for _, id := range domain.Providers() {
		rpm[id] = cfg.MAGI.Provider(id).RequestsPerMinute
	}
	requestTimeout := cfg.MAGI.RequestTimeout
	if requestTimeout <= 0 {
		requestTimeout = cfg.MAGI.Timeout
	}
	clients := judges.NewCachedClients(judges.TransportOptions{
		RequestsPerMinute: rpm,
		BreakerFailures:   breakerFailures,
		BreakerCooldown:   breakerCooldown,
		RequestTimeout:    requestTimeout,
		HTTPTimeout:       cfg.MAGI.Timeout,
		Metrics:           collector,
	})

	prompt, err := judges.NewPromptRenderer("")
	if err != nil {
		return nil, err
	}
	js, err := judges.NewJudges(clients, prompt, logger)
	if err != nil {
		return nil, err
	}
	aggregator, err := application.NewConsensusAggregator(js, collector, logger)
	if err != nil {
		return nil, err
	}

	var primary ports.OutcomePredictor
	if cfg.ML.Endpoint != "" {
		hp, err := ml.NewHTTPPredictor(cfg.ML.Endpoint, cfg.ML.Timeout)
		if err != nil {
			return nil, err
		}
		primary = hp
	}
	predictor := ml.NewFallbackPredictor(primary, logger)

	return application.NewPredictionService(application.NewWeightedScorer(logger), predictor, aggregator, logger)
}

// loadRace reads a race file. Files ending in .json are decoded as JSON and
// need RFC 3339 dates; anything else is YAML, which also accepts 2006-01-02.
func loadRace(path string) (domain.RaceContext, error) {
	var race domain.RaceContext

	data, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return race, err
	}

	if strings.EqualFold(filepath.Ext(path), ".json") {
		err = json.Unmarshal(data, &race)
	} else {
		err = yaml.Unmarshal(data, &race)
	}
	if err != nil {
		return race, fmt.Errorf("decode %s: %w", path, err)
	}
	return race, nil
}

func newLogger(s application.LoggingSettings, w io.Writer) *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(w)
	if s.Format == "json" {
		logger.SetFormatter(&logrus.JSONFormatter{})
	}
	if lvl, err := logrus.ParseLevel(s.Level); err == nil {
		logger.SetLevel(lvl)
	}
	return logger
}
