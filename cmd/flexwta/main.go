package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"flexwta/adapters/excel"
	"flexwta/adapters/fsstore"
	"flexwta/adapters/postgres"
	"flexwta/adapters/report"
	"flexwta/app"
	"flexwta/domain/core"
	"flexwta/domain/design"
	"flexwta/domain/model"
	"flexwta/domain/result"
	"flexwta/internal/api"
	"flexwta/internal/config"
	"flexwta/internal/errors"
	"flexwta/internal/krinsky"
	"flexwta/internal/logging"
	"flexwta/internal/migration"
	"flexwta/internal/mlogit"
	"flexwta/ports"

	"github.com/gin-gonic/gin"
	"github.com/jmoiron/sqlx"
	"github.com/joho/godotenv"
	_ "github.com/lib/pq"
	"github.com/spf13/cobra"
)

func main() {
	if err := godotenv.Load(); err != nil {
		logging.Debug("No .env file found, using system environment variables")
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	rootCmd := &cobra.Command{
		Use:     "flexwta",
		Short:   "Krinsky-Robb replication pipeline for flexibility contract studies",
		Version: app.CodeVersion,
	}

	rootCmd.AddCommand(
		newFreezeCmd(cfg),
		newRunCmd(cfg),
		newPredictCmd(cfg),
		newDeriveCmd(cfg),
		newAggregateCmd(cfg),
		newExportCmd(cfg),
		newMigrateCmd(cfg),
		newServeCmd(cfg),
	)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// runOptions carries the per-run parameters every pipeline verb shares.
// Defaults come from the environment config; flags override per invocation.
type runOptions struct {
	seed       int64
	replicates int
	innerDraws int
	burnIn     int
	workers    int
	timeoutMs  int
	monitor    bool
}

func addDrawFlags(cmd *cobra.Command, cfg *config.Config, opts *runOptions) {
	cmd.Flags().IntVar(&opts.innerDraws, "inner-draws", cfg.Run.InnerDraws, "Halton draws per probability simulation")
	cmd.Flags().IntVar(&opts.burnIn, "burn-in", cfg.Run.BurnIn, "Halton elements skipped per dimension")
}

func addRunFlags(cmd *cobra.Command, cfg *config.Config, opts *runOptions) {
	cmd.Flags().Int64Var(&opts.seed, "seed", cfg.Run.Seed, "Random seed for the replicate draws")
	cmd.Flags().IntVar(&opts.replicates, "replicates", cfg.Run.Replicates, "Number of bootstrap replicates")
	addDrawFlags(cmd, cfg, opts)
}

func newRunCmd(cfg *config.Config) *cobra.Command {
	var opts runOptions

	cmd := &cobra.Command{
		Use:   "run [experiment]",
		Short: "Run the full replication pipeline for one experiment",
		Long: `Run the Krinsky-Robb replication pipeline end to end: draw coefficient
vectors from the estimate's sampling distribution, freeze and persist each
replicate, simulate acceptance probabilities and conditional statistics, and
aggregate the surviving statistics into confidence intervals.

Example: flexwta run ev --replicates 1000 --seed 42 --workers 8`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runReplication(cmd.Context(), cfg, args[0], opts)
		},
	}

	addRunFlags(cmd, cfg, &opts)
	cmd.Flags().IntVar(&opts.workers, "workers", cfg.Run.Workers, "Parallel replicate workers")
	cmd.Flags().IntVar(&opts.timeoutMs, "timeout-ms", int(cfg.Run.ReplicateTimeout/time.Millisecond), "Per-replicate timeout in milliseconds (0 disables)")
	cmd.Flags().BoolVar(&opts.monitor, "monitor", false, "Serve live run progress over HTTP while the batch executes")

	return cmd
}

func newFreezeCmd(cfg *config.Config) *cobra.Command {
	var opts runOptions

	cmd := &cobra.Command{
		Use:   "freeze [experiment]",
		Short: "Validate the study inputs and persist the point estimate as replicate 0",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runFreeze(cmd.Context(), cfg, args[0], opts)
		},
	}

	addRunFlags(cmd, cfg, &opts)
	return cmd
}

func newPredictCmd(cfg *config.Config) *cobra.Command {
	var opts runOptions
	var replicate int

	cmd := &cobra.Command{
		Use:   "predict [experiment]",
		Short: "Simulate acceptance probabilities for one frozen artifact",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPredict(cmd.Context(), cfg, args[0], replicate, opts)
		},
	}

	addDrawFlags(cmd, cfg, &opts)
	cmd.Flags().IntVar(&replicate, "replicate", model.ValidatedReplicate, "Replicate index to load (0 = validated point estimate)")
	return cmd
}

func newDeriveCmd(cfg *config.Config) *cobra.Command {
	var opts runOptions
	var replicate int

	cmd := &cobra.Command{
		Use:   "derive [experiment]",
		Short: "Derive conditional coefficients and WTA ratios for one frozen artifact",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDerive(cmd.Context(), cfg, args[0], replicate, opts)
		},
	}

	addDrawFlags(cmd, cfg, &opts)
	cmd.Flags().IntVar(&replicate, "replicate", model.ValidatedReplicate, "Replicate index to load (0 = validated point estimate)")
	return cmd
}

func newAggregateCmd(cfg *config.Config) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "aggregate [experiment]",
		Short: "Recompute cross-replicate summaries from the statistics log",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAggregate(cmd.Context(), cfg, args[0])
		},
	}
	return cmd
}

func newExportCmd(cfg *config.Config) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "export [experiment]",
		Short: "Write the results workbook and replication report for a finished run",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runExport(cmd.Context(), cfg, args[0])
		},
	}
	return cmd
}

func newMigrateCmd(cfg *config.Config) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply the database schema for the statistics mirror",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runMigrate(cmd.Context(), cfg)
		},
	}
	return cmd
}

func newServeCmd(cfg *config.Config) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the run monitor: run states, SSE progress, aggregates, reports",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cfg)
		},
	}
	return cmd
}

// loadDefinition reads the study file and selects one experiment's
// definition.
func loadDefinition(cfg *config.Config, experiment string) (*config.ExperimentStudy, error) {
	study, err := config.LoadStudy(cfg.Paths.StudyFile)
	if err != nil {
		return nil, err
	}
	def, ok := study.Experiment(experiment)
	if !ok {
		return nil, fmt.Errorf("experiment %q is not defined in the study file", experiment)
	}
	return def, nil
}

// buildLoader wires the study definition's data paths into sources.
func buildLoader(def *config.ExperimentStudy) (*app.StudyLoader, error) {
	experiment, err := model.ParseExperiment(def.Experiment)
	if err != nil {
		return nil, err
	}

	estimates := fsstore.NewEstimateFiles(map[model.Experiment]string{experiment: def.EstimatePath})
	panels := excel.NewPanelReader(map[model.Experiment]string{experiment: def.PanelPath})

	var covariates ports.CovariateSource
	if def.CovariatePath != "" {
		covariates = excel.NewCovariateReader(def.CovariatePath)
	}
	var designs ports.DesignSource
	if def.DesignPath != "" {
		designs = excel.NewDesignReader(map[model.Experiment]string{experiment: def.DesignPath})
	}

	return app.NewStudyLoader(estimates, panels, covariates, designs, nil), nil
}

func loadInputs(ctx context.Context, cfg *config.Config, experiment string) (*app.StudyInputs, error) {
	def, err := loadDefinition(cfg, experiment)
	if err != nil {
		return nil, err
	}
	loader, err := buildLoader(def)
	if err != nil {
		return nil, err
	}
	return loader.Load(ctx, def)
}

func openDatabase(cfg *config.Config) (*sqlx.DB, error) {
	if !cfg.Database.Enabled {
		return nil, errors.ConfigInvalid("DATABASE_URL is required")
	}
	db, err := sqlx.Connect("postgres", cfg.Database.URL)
	if err != nil {
		return nil, errors.Wrap(err, "failed to connect to database")
	}
	if err := db.Ping(); err != nil {
		return nil, errors.Wrap(err, "failed to ping database")
	}
	return db, nil
}

func runReplication(ctx context.Context, cfg *config.Config, experiment string, opts runOptions) error {
	inputs, err := loadInputs(ctx, cfg, experiment)
	if err != nil {
		return err
	}

	store, err := fsstore.NewStore(cfg.Paths.ArtifactDir)
	if err != nil {
		return err
	}

	// Statistics are recomputed per run; stale rows from an interrupted
	// batch would otherwise double-count under the resumed run id.
	statLog, err := fsstore.OpenStatisticLog(store.StatisticsPath(inputs.Spec.Experiment), true)
	if err != nil {
		return err
	}
	defer statLog.Close()

	sinks := []ports.StatisticSink{statLog}
	aggregates := []ports.AggregateRepository{store}
	if cfg.Database.Enabled {
		db, err := openDatabase(cfg)
		if err != nil {
			return err
		}
		defer db.Close()
		sinks = append(sinks, postgres.NewStatisticRepository(db))
		aggregates = append(aggregates, postgres.NewAggregateRepository(db))
	}
	sink, err := app.NewMultiSink(sinks...)
	if err != nil {
		return err
	}

	svc := app.NewReplicationService(store, sink, statLog, aggregates, nil)
	req := app.ReplicationRequest{
		Inputs:     inputs,
		Seed:       opts.seed,
		Replicates: opts.replicates,
		InnerDraws: opts.innerDraws,
		BurnIn:     opts.burnIn,
		Workers:    opts.workers,
		Timeout:    time.Duration(opts.timeoutMs) * time.Millisecond,
	}

	var registry *api.RunRegistry
	var runID core.RunID
	if opts.monitor {
		gin.SetMode(cfg.Server.GinMode)
		registry = api.NewRunRegistry()
		hub := api.NewSSEHub()
		server := api.NewServer(registry, hub, store, cfg.Paths.ResultDir)
		go func() {
			if err := server.Start(":" + cfg.Server.Port); err != nil {
				logging.Error("[Monitor] Server stopped: %v", err)
			}
		}()

		var progress func(krinsky.Progress)
		req.OnManifest = func(m *result.RunManifest) {
			runID = m.RunID
			registry.Begin(m)
			progress = api.ProgressHandler(registry, hub, m)
		}
		req.OnProgress = func(p krinsky.Progress) {
			if progress != nil {
				progress(p)
			}
		}
	}

	res, err := svc.Run(ctx, req)
	if err != nil {
		if registry != nil && !core.ID(runID).IsEmpty() {
			registry.Finish(runID, api.RunStatusFailed, err.Error())
		}
		return err
	}
	if registry != nil {
		registry.Finish(res.Report.Manifest.RunID, api.RunStatusCompleted, "")
	}

	if err := writeOutputs(ctx, cfg, store, res.Report, res.Grid); err != nil {
		return err
	}

	printRunSummary(res.Report, res.RuntimeMs)
	return nil
}

func runFreeze(ctx context.Context, cfg *config.Config, experiment string, opts runOptions) error {
	inputs, err := loadInputs(ctx, cfg, experiment)
	if err != nil {
		return err
	}
	store, err := fsstore.NewStore(cfg.Paths.ArtifactDir)
	if err != nil {
		return err
	}
	statLog, err := fsstore.OpenStatisticLog(store.StatisticsPath(inputs.Spec.Experiment), false)
	if err != nil {
		return err
	}
	defer statLog.Close()

	svc := app.NewReplicationService(store, statLog, statLog, []ports.AggregateRepository{store}, nil)
	validated, manifest, err := svc.Freeze(ctx, app.ReplicationRequest{
		Inputs:     inputs,
		Seed:       opts.seed,
		Replicates: opts.replicates,
		InnerDraws: opts.innerDraws,
		BurnIn:     opts.burnIn,
	})
	if err != nil {
		return err
	}

	fmt.Printf("✅ Frozen %s point estimate (%d parameters)\n", validated.Experiment, len(validated.Theta))
	fmt.Printf("Run: %s\n", manifest.RunID)
	fmt.Printf("Fingerprint: %s\n", manifest.Fingerprint)
	return nil
}

func runPredict(ctx context.Context, cfg *config.Config, experiment string, replicate int, opts runOptions) error {
	inputs, err := loadInputs(ctx, cfg, experiment)
	if err != nil {
		return err
	}
	store, err := fsstore.NewStore(cfg.Paths.ArtifactDir)
	if err != nil {
		return err
	}
	art, err := store.Load(ctx, inputs.Spec.Experiment, replicate)
	if err != nil {
		return err
	}

	predictor, err := mlogit.NewPredictor(opts.innerDraws, opts.burnIn)
	if err != nil {
		return err
	}
	probs, err := predictor.Predict(art, inputs.Design)
	if err != nil {
		return err
	}

	fmt.Printf("📊 Acceptance probabilities for %s (%s)\n", art.Experiment, design.ReplicateLabel(replicate))
	for i, sc := range inputs.Design.Scenarios() {
		fmt.Printf("  %-12s %.4f\n", sc.ID, probs[i])
	}

	for _, req := range inputs.APERequests {
		ape, err := predictor.AveragePartialEffect(art, inputs.Design, req)
		if err != nil {
			return err
		}
		fmt.Printf("  APE %s %g -> %g: %+.4f\n", req.Attribute, req.From, req.To, ape)
	}
	return nil
}

func runDerive(ctx context.Context, cfg *config.Config, experiment string, replicate int, opts runOptions) error {
	inputs, err := loadInputs(ctx, cfg, experiment)
	if err != nil {
		return err
	}
	store, err := fsstore.NewStore(cfg.Paths.ArtifactDir)
	if err != nil {
		return err
	}
	art, err := store.Load(ctx, inputs.Spec.Experiment, replicate)
	if err != nil {
		return err
	}

	deriver, err := mlogit.NewDeriver(opts.innerDraws, opts.burnIn)
	if err != nil {
		return err
	}
	conditionals, err := deriver.Derive(art, inputs.Panel)
	if err != nil {
		return err
	}
	observations, err := mlogit.DeriveWTA(art.Spec, conditionals, inputs.WTAAttributes)
	if err != nil {
		return err
	}

	fmt.Printf("📊 Conditional WTA for %s (%s), %d respondents\n",
		art.Experiment, design.ReplicateLabel(replicate), len(conditionals))
	for _, attr := range inputs.WTAAttributes {
		var sum float64
		var usable, degenerate int
		for _, obs := range observations {
			if obs.Attribute != attr {
				continue
			}
			if obs.Degenerate {
				degenerate++
				continue
			}
			sum += obs.Value
			usable++
		}
		if usable == 0 {
			fmt.Printf("  %-24s all %d ratios degenerate\n", attr, degenerate)
			continue
		}
		fmt.Printf("  %-24s mean %9.4f  (n=%d, degenerate=%d)\n", attr, sum/float64(usable), usable, degenerate)
	}

	if art.Spec.NumRandom() > 0 {
		ratios, err := mlogit.MomentRatio(art, conditionals)
		if err != nil {
			return err
		}
		names := make([]string, 0, len(ratios))
		for name := range ratios {
			names = append(names, name)
		}
		sort.Strings(names)
		fmt.Println("\nConditional/unconditional moment ratios (1.0 = consistent):")
		for _, name := range names {
			fmt.Printf("  %-24s %.4f\n", name, ratios[name])
		}
	}
	return nil
}

func runAggregate(ctx context.Context, cfg *config.Config, experiment string) error {
	exp, err := model.ParseExperiment(experiment)
	if err != nil {
		return err
	}
	store, err := fsstore.NewStore(cfg.Paths.ArtifactDir)
	if err != nil {
		return err
	}
	manifest, err := store.LoadManifest(ctx, exp)
	if err != nil {
		return err
	}
	statistics, err := fsstore.ReadStatistics(ctx, store.StatisticsPath(exp), manifest.RunID)
	if err != nil {
		return err
	}
	aggregates, err := krinsky.AggregateRun(manifest, statistics)
	if err != nil {
		return err
	}

	repos := []ports.AggregateRepository{store}
	if cfg.Database.Enabled {
		db, err := openDatabase(cfg)
		if err != nil {
			return err
		}
		defer db.Close()
		repos = append(repos, postgres.NewAggregateRepository(db))
	}
	for _, repo := range repos {
		if err := repo.SaveAggregates(ctx, aggregates); err != nil {
			return err
		}
	}

	fmt.Printf("📊 Aggregates for run %s (%s)\n", manifest.RunID, exp)
	printAggregates(aggregates)
	return nil
}

func runExport(ctx context.Context, cfg *config.Config, experiment string) error {
	exp, err := model.ParseExperiment(experiment)
	if err != nil {
		return err
	}
	store, err := fsstore.NewStore(cfg.Paths.ArtifactDir)
	if err != nil {
		return err
	}
	rep, err := store.LoadReport(ctx, exp)
	if err != nil {
		return err
	}
	grid, err := store.LoadGrid(ctx, exp)
	if err != nil {
		if !core.IsNotFoundError(err) {
			return err
		}
		grid = nil
	}
	return writeOutputs(ctx, cfg, store, rep, grid)
}

func runMigrate(ctx context.Context, cfg *config.Config) error {
	db, err := openDatabase(cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	migrator := migration.NewRunner()
	if err := migrator.Run(ctx, db); err != nil {
		return err
	}
	fmt.Printf("✅ Database schema version %s applied\n", migrator.Version())
	return nil
}

func runServe(cfg *config.Config) error {
	gin.SetMode(cfg.Server.GinMode)
	store, err := fsstore.NewStore(cfg.Paths.ArtifactDir)
	if err != nil {
		return err
	}
	server := api.NewServer(api.NewRunRegistry(), api.NewSSEHub(), store, cfg.Paths.ResultDir)
	return server.Start(":" + cfg.Server.Port)
}

// writeOutputs writes the results workbook and the markdown/HTML report for
// one finished run.
func writeOutputs(ctx context.Context, cfg *config.Config, store *fsstore.Store, rep *result.RunReport, grid *design.ProbabilityGrid) error {
	statistics, err := fsstore.ReadStatistics(ctx, store.StatisticsPath(rep.Manifest.Experiment), rep.Manifest.RunID)
	if err != nil {
		return err
	}

	workbookPath := filepath.Join(cfg.Paths.ResultDir, fmt.Sprintf("flexwta_%s.xlsx", rep.Manifest.Experiment))
	if err := report.WriteWorkbook(workbookPath, rep, statistics, grid); err != nil {
		return err
	}
	mdPath, htmlPath, err := report.WriteReportFiles(cfg.Paths.ResultDir, rep)
	if err != nil {
		return err
	}

	fmt.Printf("📄 Wrote %s\n", workbookPath)
	fmt.Printf("📄 Wrote %s and %s\n", mdPath, htmlPath)
	return nil
}

func printAggregates(aggregates []result.Aggregate) {
	for _, a := range aggregates {
		fmt.Printf("  %-44s mean %9.4f  ci [%9.4f, %9.4f]  p %.3f  n %d/%d\n",
			a.Name, a.Mean, a.CILow, a.CIHigh, a.PValue, a.NUsable, a.NIntended)
	}
}

func printRunSummary(rep *result.RunReport, runtimeMs int64) {
	fmt.Printf("\n📊 REPLICATION RESULTS (%s)\n", rep.Manifest.Experiment)
	fmt.Printf("Run: %s\n", rep.Manifest.RunID)
	fmt.Printf("Runtime: %dms\n", runtimeMs)
	fmt.Printf("Replicates: %d/%d usable (%.1f%%)\n",
		rep.Completed, rep.Manifest.Replicates, rep.UsableFraction()*100)

	fmt.Println("\nAggregates:")
	printAggregates(rep.Aggregates)

	if len(rep.Failures) > 0 {
		fmt.Printf("\n❌ %d replicates failed:\n", len(rep.Failures))
		for _, f := range rep.Failures[:min(5, len(rep.Failures))] {
			fmt.Printf("  replicate %d (%s): %s\n", f.Replicate, f.Stage, f.Reason)
		}
		if len(rep.Failures) > 5 {
			fmt.Printf("  ... and %d more\n", len(rep.Failures)-5)
		}
	}
}
