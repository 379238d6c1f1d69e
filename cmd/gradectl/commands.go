package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/alem-hub/grade-analytics/config"
	"github.com/alem-hub/grade-analytics/internal/application/query"
	"github.com/alem-hub/grade-analytics/internal/domain/aggregation"
	"github.com/alem-hub/grade-analytics/internal/domain/anomaly"
	"github.com/alem-hub/grade-analytics/internal/domain/correlation"
	"github.com/alem-hub/grade-analytics/internal/domain/prediction"
	"github.com/alem-hub/grade-analytics/internal/domain/score"
	"github.com/alem-hub/grade-analytics/internal/domain/trend"
	"github.com/alem-hub/grade-analytics/internal/infrastructure/persistence/postgres"
	"github.com/alem-hub/grade-analytics/pkg/logger"
	"github.com/alem-hub/grade-analytics/pkg/timeutil"
)

// ══════════════════════════════════════════════════════════════════════════════
// ROOT COMMAND
// ══════════════════════════════════════════════════════════════════════════════

// rootFlags are shared by every subcommand.
type rootFlags struct {
	input    string
	exams    []string
	classes  []string
	subjects []string
	from     string
	to       string
}

// filter builds the record filter. Dates are inclusive YYYY-MM-DD.
func (f *rootFlags) filter() (score.Filter, error) {
	from, err := timeutil.ParseDate(f.from)
	if err != nil {
		return score.Filter{}, fmt.Errorf("--from: %w", err)
	}
	to, err := timeutil.ParseDate(f.to)
	if err != nil {
		return score.Filter{}, fmt.Errorf("--to: %w", err)
	}
	if !from.IsZero() && !to.IsZero() && to.Before(from) {
		return score.Filter{}, fmt.Errorf("--to is before --from")
	}
	return score.Filter{
		ExamIDs:    f.exams,
		ClassNames: f.classes,
		Subjects:   f.subjects,
		From:       from,
		To:         to,
	}, nil
}

func newRootCmd() *cobra.Command {
	flags := &rootFlags{}

	rootCmd := &cobra.Command{
		Use:   "gradectl",
		Short: "Grade analytics and classification engine",
		Long: `gradectl classifies exam scores into A-E levels and runs statistical
analyses (aggregation, correlation, anomalies, trends, predictions) over
a dataset file or the PostgreSQL score store.`,
		SilenceUsage: true,
	}

	pf := rootCmd.PersistentFlags()
	pf.StringVarP(&flags.input, "input", "i", "", "YAML or JSON dataset file (default: PostgreSQL score store)")
	pf.StringSliceVar(&flags.exams, "exam", nil, "restrict to exam IDs")
	pf.StringSliceVar(&flags.classes, "class", nil, "restrict to class names")
	pf.StringSliceVar(&flags.subjects, "subject", nil, "restrict to subjects")
	pf.StringVar(&flags.from, "from", "", "first exam date, YYYY-MM-DD")
	pf.StringVar(&flags.to, "to", "", "last exam date, YYYY-MM-DD")

	rootCmd.AddCommand(
		newClassifyCmd(flags),
		newAggregateCmd(flags),
		newStatsCmd(flags),
		newCorrelateCmd(flags),
		newAnomaliesCmd(flags),
		newTrendCmd(flags),
		newPredictCmd(flags),
		newImportCmd(flags),
		newMigrateCmd(),
		newFeaturesCmd(),
	)
	return rootCmd
}

// withApp builds the app for cmd, runs fn and closes the app.
func withApp(cmd *cobra.Command, opts buildOptions, fn func(ctx context.Context, a *app) error) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	opts.LogOutput = cmd.ErrOrStderr()
	opts.TraceOutput = cmd.ErrOrStderr()

	a, err := newApp(ctx, opts)
	if err != nil {
		return err
	}
	defer a.Close(ctx)
	return fn(ctx, a)
}

// runQuery is the common shape of an analytics subcommand.
func runQuery[T any](cmd *cobra.Command, flags *rootFlags, run func(ctx context.Context, a *app, filter score.Filter) (query.Result[T], error)) error {
	filter, err := flags.filter()
	if err != nil {
		return err
	}
	return withApp(cmd, buildOptions{Input: flags.input}, func(ctx context.Context, a *app) error {
		res, err := run(ctx, a, filter)
		if err != nil {
			return err
		}
		return emit(cmd.OutOrStdout(), res)
	})
}

// emit prints the envelope and turns a failed result into an error so the
// exit status reflects it.
func emit[T any](w io.Writer, res query.Result[T]) error {
	if err := writeJSON(w, res); err != nil {
		return err
	}
	if !res.Success {
		return fmt.Errorf("%s: %s", res.Error.Code, res.Error.Message)
	}
	return nil
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func requireFeature(cfg *config.Config, name string) error {
	if !cfg.Features.IsEnabled(name) {
		return fmt.Errorf("feature %q is disabled", name)
	}
	return nil
}

// ══════════════════════════════════════════════════════════════════════════════
// ANALYTICS COMMANDS
// ══════════════════════════════════════════════════════════════════════════════

func newClassifyCmd(flags *rootFlags) *cobra.Command {
	var assignRanks bool

	cmd := &cobra.Command{
		Use:   "classify",
		Short: "Resolve the A-E level of every record",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runQuery(cmd, flags, func(ctx context.Context, a *app, filter score.Filter) (query.Result[query.ClassifyGradesResult], error) {
				assign := assignRanks
				if !cmd.Flags().Changed("assign-ranks") {
					assign = a.cfg.Features.IsEnabled(config.FeatureAssignMissingRanks)
				}
				return query.NewClassifyGradesHandler(a.deps).Handle(ctx, query.ClassifyGradesQuery{
					Filter:             filter,
					AssignMissingRanks: assign,
				}), nil
			})
		},
	}
	cmd.Flags().BoolVar(&assignRanks, "assign-ranks", false, "rank unranked cohorts by score before classifying")
	return cmd
}

// cacheFlags adds --cache and --cache-ttl.
func cacheFlags(cmd *cobra.Command, opts *query.CacheOptions) {
	cmd.Flags().BoolVar(&opts.Enabled, "cache", false, "memoize the result")
	cmd.Flags().DurationVar(&opts.TTL, "cache-ttl", 0, "cache TTL (default: CACHE_DEFAULT_TTL)")
}

func newAggregateCmd(flags *rootFlags) *cobra.Command {
	var (
		by, metrics, having, sortKeys []string
		limit                         int
		cacheOpts                     query.CacheOptions
	)

	cmd := &cobra.Command{
		Use:   "aggregate",
		Short: "Group records and compute metrics",
		Example: `  gradectl aggregate -i scores.yaml --by class_name --metric avg:score --metric count \
    --having "avg_score>=60" --sort avg_score:desc --limit 10`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			specs, err := parseMetrics(metrics)
			if err != nil {
				return err
			}
			conditions, err := parseConditions(having)
			if err != nil {
				return err
			}
			keys, err := parseSortKeys(sortKeys)
			if err != nil {
				return err
			}
			q := query.AggregationQuery{
				Dimensions: parseFields(by),
				Metrics:    specs,
				Having:     conditions,
				Sort:       keys,
				Limit:      limit,
				Cache:      cacheOpts,
			}
			return runQuery(cmd, flags, func(ctx context.Context, a *app, filter score.Filter) (query.Result[aggregation.Result], error) {
				q.Filter = filter
				return query.NewAggregationHandler(a.deps).Handle(ctx, q), nil
			})
		},
	}
	cmd.Flags().StringSliceVar(&by, "by", nil, "grouping dimensions")
	cmd.Flags().StringArrayVar(&metrics, "metric", nil, "metric spec: kind[:field][=alias], e.g. avg:score, p90:score, count")
	cmd.Flags().StringArrayVar(&having, "having", nil, "post-aggregation filter, e.g. avg_score>=60")
	cmd.Flags().StringArrayVar(&sortKeys, "sort", nil, "sort key: field[:asc|desc]")
	cmd.Flags().IntVar(&limit, "limit", 0, "maximum rows (0: no limit)")
	cacheFlags(cmd, &cacheOpts)
	return cmd
}

func newStatsCmd(flags *rootFlags) *cobra.Command {
	var (
		by, metrics        []string
		minScore, maxScore float64
		cacheOpts          query.CacheOptions
	)

	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Per-group statistics with sample confidence",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			specs, err := parseMetrics(metrics)
			if err != nil {
				return err
			}
			q := query.BatchStatisticsQuery{
				GroupBy: parseFields(by),
				Metrics: specs,
				Cache:   cacheOpts,
			}
			if cmd.Flags().Changed("min-score") {
				q.MinScore = &minScore
			}
			if cmd.Flags().Changed("max-score") {
				q.MaxScore = &maxScore
			}
			return runQuery(cmd, flags, func(ctx context.Context, a *app, filter score.Filter) (query.Result[query.BatchStatisticsResult], error) {
				q.Filter = filter
				return query.NewBatchStatisticsHandler(a.deps).Handle(ctx, q), nil
			})
		},
	}
	cmd.Flags().StringSliceVar(&by, "by", nil, "grouping dimensions")
	cmd.Flags().StringArrayVar(&metrics, "metric", nil, "metric spec: kind[:field][=alias]")
	cmd.Flags().Float64Var(&minScore, "min-score", 0, "drop records scoring below")
	cmd.Flags().Float64Var(&maxScore, "max-score", 0, "drop records scoring above")
	cacheFlags(cmd, &cacheOpts)
	return cmd
}

func newCorrelateCmd(flags *rootFlags) *cobra.Command {
	var (
		vars         []string
		withP        bool
		significance string
	)

	cmd := &cobra.Command{
		Use:     "correlate",
		Short:   "Pearson correlation matrix between subjects or fields",
		Example: `  gradectl correlate -i scores.yaml --var math=Math --var physics=Physics --p`,
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			variables, err := parseVariables(vars)
			if err != nil {
				return err
			}
			return runQuery(cmd, flags, func(ctx context.Context, a *app, filter score.Filter) (query.Result[correlation.Result], error) {
				return a.correlationHandler().Handle(ctx, query.CorrelationQuery{
					Filter:              filter,
					Variables:           variables,
					IncludeSignificance: withP,
					SignificanceMethod:  correlation.SignificanceMethod(significance),
				}), nil
			})
		},
	}
	cmd.Flags().StringArrayVar(&vars, "var", nil, "variable: name=subject[:field]")
	cmd.Flags().BoolVar(&withP, "p", false, "include p-values")
	cmd.Flags().StringVar(&significance, "significance", "", "p-value method: student_t or normal (default: ANALYTICS_SIGNIFICANCE)")
	return cmd
}

func newAnomaliesCmd(flags *rootFlags) *cobra.Command {
	var (
		algorithm   string
		sensitivity float64
		dimensions  []string
	)

	cmd := &cobra.Command{
		Use:   "anomalies",
		Short: "Flag outlying records",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runQuery(cmd, flags, func(ctx context.Context, a *app, filter score.Filter) (query.Result[anomaly.Report], error) {
				algo := anomaly.Algorithm(algorithm)
				if algo == anomaly.AlgorithmZScore {
					if err := requireFeature(a.cfg, config.FeatureZScoreAnomalies); err != nil {
						return query.Result[anomaly.Report]{}, err
					}
				}
				q := query.AnomalyDetectionQuery{
					Filter:     filter,
					Algorithm:  algo,
					Dimensions: parseFields(dimensions),
				}
				if cmd.Flags().Changed("sensitivity") {
					q.Sensitivity = &sensitivity
				}
				return a.anomalyHandler(anomaly.AlgorithmStatistical).Handle(ctx, q), nil
			})
		},
	}
	cmd.Flags().StringVar(&algorithm, "algorithm", string(anomaly.AlgorithmStatistical), "statistical or zscore")
	cmd.Flags().Float64Var(&sensitivity, "sensitivity", 0, "0-1, higher flags more (default: ANALYTICS_DEFAULT_SENSITIVITY)")
	cmd.Flags().StringSliceVar(&dimensions, "dimension", nil, "numeric fields to scan (default: score)")
	return cmd
}

func newTrendCmd(flags *rootFlags) *cobra.Command {
	var (
		field, agg, method string
		window, periods    int
	)

	cmd := &cobra.Command{
		Use:   "trend",
		Short: "Per-exam-date trend with optional forecast",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runQuery(cmd, flags, func(ctx context.Context, a *app, filter score.Filter) (query.Result[query.TrendAnalysisResult], error) {
				m := trend.Method(method)
				if periods > 0 && m == trend.MethodExponential {
					if err := requireFeature(a.cfg, config.FeatureExponentialForecast); err != nil {
						return query.Result[query.TrendAnalysisResult]{}, err
					}
				}
				return query.NewTrendAnalysisHandler(a.deps).Handle(ctx, query.TrendAnalysisQuery{
					Filter:          filter,
					Field:           score.Field(field),
					Aggregation:     trend.Aggregation(agg),
					SmoothingWindow: window,
					ForecastPeriods: periods,
					ForecastMethod:  m,
				}), nil
			})
		},
	}
	cmd.Flags().StringVar(&field, "field", string(score.FieldScore), "numeric field to follow")
	cmd.Flags().StringVar(&agg, "agg", string(trend.AggregationAvg), "per-date aggregation: avg, sum, min, max")
	cmd.Flags().IntVar(&window, "window", 0, "moving-average window (0: none)")
	cmd.Flags().IntVar(&periods, "forecast", 0, "forecast periods (0: none)")
	cmd.Flags().StringVar(&method, "method", string(trend.MethodLinear), "forecast method: linear or exponential")
	return cmd
}

func newPredictCmd(flags *rootFlags) *cobra.Command {
	var (
		model, target      string
		features, students []string
		at                 []string
	)

	cmd := &cobra.Command{
		Use:   "predict",
		Short: "Fit a model and predict scores",
		Example: `  gradectl predict -i scores.yaml --model linear_regression --target physics=Physics --feature math=Math
  gradectl predict -i scores.yaml --model time_series --target avg=Math --at 2024-06-01`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			targetRef, err := parseVariable(target)
			if err != nil {
				return fmt.Errorf("--target: %w", err)
			}
			featureRefs, err := parseVariables(features)
			if err != nil {
				return fmt.Errorf("--feature: %w", err)
			}
			var points []time.Time
			for _, s := range at {
				t, err := timeutil.ParseDate(s)
				if err != nil {
					return fmt.Errorf("--at: %w", err)
				}
				points = append(points, t)
			}

			return runQuery(cmd, flags, func(ctx context.Context, a *app, filter score.Filter) (query.Result[prediction.Result], error) {
				if err := requireFeature(a.cfg, config.FeaturePrediction); err != nil {
					return query.Result[prediction.Result]{}, err
				}
				return a.predictionHandler().Handle(ctx, query.PredictionQuery{
					Filter:     filter,
					ModelType:  prediction.ModelType(model),
					Target:     targetRef,
					Features:   featureRefs,
					Students:   students,
					TimePoints: points,
				}), nil
			})
		},
	}
	cmd.Flags().StringVar(&model, "model", string(prediction.ModelLinearRegression), "linear_regression or time_series")
	cmd.Flags().StringVar(&target, "target", "", "target variable: name=subject[:field]")
	cmd.Flags().StringArrayVar(&features, "feature", nil, "feature variable: name=subject[:field]")
	cmd.Flags().StringSliceVar(&students, "student", nil, "restrict linear predictions to student IDs")
	cmd.Flags().StringSliceVar(&at, "at", nil, "time_series prediction dates, YYYY-MM-DD")
	return cmd
}

// ══════════════════════════════════════════════════════════════════════════════
// MAINTENANCE COMMANDS
// ══════════════════════════════════════════════════════════════════════════════

func newImportCmd(flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "import",
		Short: "Load a dataset file into the score store, replacing its exams",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if flags.input == "" {
				return fmt.Errorf("import needs --input")
			}
			filter, err := flags.filter()
			if err != nil {
				return err
			}
			return withApp(cmd, buildOptions{Input: flags.input, NeedDatabase: true}, func(ctx context.Context, a *app) error {
				records, err := a.deps.Provider.FetchScores(ctx, filter)
				if err != nil {
					return err
				}
				start := time.Now()
				n, err := postgres.NewScoreRepository(a.db).ImportScores(ctx, records)
				if err != nil {
					return err
				}
				a.log.Info("scores imported",
					logger.Operation("import"),
					logger.RecordCount(int(n)),
					logger.Latency(time.Since(start)),
				)
				if err := a.invalidateResults(ctx); err != nil {
					return err
				}
				return writeJSON(cmd.OutOrStdout(), map[string]int64{"imported": n})
			})
		},
	}
}

func newMigrateCmd() *cobra.Command {
	var status bool

	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending score store migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd, buildOptions{}, func(ctx context.Context, a *app) error {
				migrator := postgres.NewMigrator(a.db)
				if !status {
					if err := migrator.Migrate(ctx); err != nil {
						return err
					}
					a.log.Info("migrations applied")
				}
				migrations, err := migrator.Status(ctx)
				if err != nil {
					return err
				}
				type row struct {
					Version   int        `json:"version"`
					Name      string     `json:"name"`
					Applied   bool       `json:"applied"`
					AppliedAt *time.Time `json:"applied_at,omitempty"`
				}
				out := make([]row, 0, len(migrations))
				for _, m := range migrations {
					r := row{Version: m.Version, Name: m.Name, Applied: m.IsApplied}
					if m.IsApplied {
						at := m.AppliedAt
						r.AppliedAt = &at
					}
					out = append(out, r)
				}
				return writeJSON(cmd.OutOrStdout(), out)
			})
		},
	}
	cmd.Flags().BoolVar(&status, "status", false, "only report migration status")
	return cmd
}

func newFeaturesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "features",
		Short: "List feature flags and their state",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return writeJSON(cmd.OutOrStdout(), config.LoadFeatureFlags().GetAllFeatures())
		},
	}
}
