package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"crimestats/app"
	"crimestats/domain/crime"
	"crimestats/internal/analysis"
	"crimestats/internal/config"
	"crimestats/internal/container"
	"crimestats/internal/export"
	"crimestats/internal/pipeline"
	"crimestats/internal/testkit"

	"github.com/spf13/cobra"
)

type globalFlags struct {
	source   string
	table    string
	policy   string
	logLevel string
}

func main() {
	var flags globalFlags

	rootCmd := &cobra.Command{
		Use:           "crimestats",
		Short:         "Crime statistics aggregation and reporting",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.PersistentFlags().StringVar(&flags.source, "source", "", "Data source: .csv/.xlsx path or postgres DSN (overrides DATA_SOURCE)")
	rootCmd.PersistentFlags().StringVar(&flags.table, "table", "", "Table name when the source is a DSN")
	rootCmd.PersistentFlags().StringVar(&flags.policy, "policy", "", "Coercion policy: lenient|strict")
	rootCmd.PersistentFlags().StringVar(&flags.logLevel, "log-level", "", "Log level: ERROR|WARN|INFO|DEBUG|TRACE")

	rootCmd.AddCommand(
		newAggregateCmd(&flags),
		newChangesCmd(&flags),
		newHotspotsCmd(&flags),
		newCorrelateCmd(&flags),
		newReportCmd(&flags),
		newExportCmd(&flags),
		newGenerateCmd(),
	)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// open builds the container from configuration plus flag overrides and loads the source.
func open(ctx context.Context, flags *globalFlags) (*container.Container, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	if flags.source != "" {
		cfg.Data.Source = flags.source
	}
	if flags.table != "" {
		cfg.Data.Table = flags.table
	}
	if flags.policy != "" {
		cfg.Data.CoercionPolicy = flags.policy
	}
	if flags.logLevel != "" {
		cfg.Log.Level = flags.logLevel
	}
	// the CLI is a single pass over the data
	cfg.Cache.Backend = "none"

	c, err := container.New(ctx, cfg)
	if err != nil {
		return nil, err
	}
	if _, err := c.Load(ctx); err != nil {
		c.Close()
		return nil, fmt.Errorf("failed to load %s: %w", cfg.Data.Source, err)
	}
	return c, nil
}

func printJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func parseSpec(group, agg, order string) (crime.GroupSpec, error) {
	by, err := crime.ParseGroupKey(group)
	if err != nil {
		return crime.GroupSpec{}, err
	}
	fn, err := crime.ParseAggFunc(agg)
	if err != nil {
		return crime.GroupSpec{}, err
	}
	ord, err := crime.ParseSeriesOrder(order)
	if err != nil {
		return crime.GroupSpec{}, err
	}
	return crime.GroupSpec{By: by, Func: fn, Order: ord}, nil
}

func metricsFlag(cmd *cobra.Command, name string, value string, def []crime.Metric) []crime.Metric {
	if !cmd.Flags().Changed(name) {
		return def
	}
	return crime.ParseMetrics(value)
}

func newAggregateCmd(flags *globalFlags) *cobra.Command {
	var metrics, group, agg, order string
	var long bool

	cmd := &cobra.Command{
		Use:   "aggregate",
		Short: "Group the table and aggregate the selected metrics",
		Long: `Group records by year or jurisdiction and aggregate the selected metrics.

Example: crimestats aggregate --metrics Murder,Robbery --group jurisdiction --agg mean --order value_desc`,
		RunE: func(cmd *cobra.Command, args []string) error {
			spec, err := parseSpec(group, agg, order)
			if err != nil {
				return err
			}
			c, err := open(cmd.Context(), flags)
			if err != nil {
				return err
			}
			defer c.Close()

			series, err := c.Service.Aggregate(cmd.Context(), app.AggregateRequest{
				Metrics: metricsFlag(cmd, "metrics", metrics, crime.CrimeTypes),
				Spec:    spec,
			})
			if err != nil {
				return err
			}
			if long {
				return printJSON(cmd.OutOrStdout(), pipeline.Melt(series))
			}
			return printJSON(cmd.OutOrStdout(), series)
		},
	}

	cmd.Flags().StringVar(&metrics, "metrics", "", "Comma separated metrics (default: all crime types)")
	cmd.Flags().StringVar(&group, "group", "year", "Grouping: year|jurisdiction")
	cmd.Flags().StringVar(&agg, "agg", "sum", "Aggregation: sum|mean")
	cmd.Flags().StringVar(&order, "order", "key_asc", "Order: key_asc|value_desc")
	cmd.Flags().BoolVar(&long, "long", false, "Emit one row per key and metric")
	return cmd
}

func newChangesCmd(flags *globalFlags) *cobra.Command {
	var metrics string
	var capValue float64
	var topN int

	cmd := &cobra.Command{
		Use:   "changes",
		Short: "Compute capped year-over-year changes",
		Long: `Aggregate the selected metrics by year and compute capped year-over-year changes.
Changes are fractions; a cap of 10 limits them to +/-1000%.

Example: crimestats changes --metrics Murder,Rape --cap 10 --top 5`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if cmd.Flags().Changed("cap") && capValue == 0 {
				return fmt.Errorf("cap must be positive")
			}
			if cmd.Flags().Changed("top") && topN == 0 {
				return fmt.Errorf("top must be positive")
			}
			c, err := open(cmd.Context(), flags)
			if err != nil {
				return err
			}
			defer c.Close()

			result, err := c.Service.Changes(cmd.Context(), app.ChangesRequest{
				AggregateRequest: app.AggregateRequest{
					Metrics: metricsFlag(cmd, "metrics", metrics, crime.CrimeTypes),
					Spec:    crime.GroupSpec{By: crime.GroupByYear, Func: crime.AggSum},
				},
				Cap:  capValue,
				TopN: topN,
			})
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), result)
		},
	}

	cmd.Flags().StringVar(&metrics, "metrics", "", "Comma separated metrics (default: all crime types)")
	cmd.Flags().Float64Var(&capValue, "cap", 0, "Change cap as a fraction (default from config)")
	cmd.Flags().IntVar(&topN, "top", 0, "Ranked increases and decreases to keep (default from config)")
	return cmd
}

func newHotspotsCmd(flags *globalFlags) *cobra.Command {
	var crimes, threshold string
	var n int
	var multiplier, fixed float64

	cmd := &cobra.Command{
		Use:   "hotspots",
		Short: "Rank jurisdictions by crime rate and flag hotspots",
		Long: `Rank jurisdictions by total crime per 100k residents.
A jurisdiction is a hotspot when its rate is strictly above the threshold.

Example: crimestats hotspots --threshold median --multiplier 1.5 --n 5`,
		RunE: func(cmd *cobra.Command, args []string) error {
			var policy *analysis.HotspotPolicy
			if cmd.Flags().Changed("threshold") || cmd.Flags().Changed("multiplier") || cmd.Flags().Changed("fixed") {
				p, err := analysis.ParseHotspotPolicy(threshold, multiplier, fixed)
				if err != nil {
					return err
				}
				policy = &p
			}
			c, err := open(cmd.Context(), flags)
			if err != nil {
				return err
			}
			defer c.Close()

			result, err := c.Service.Hotspots(cmd.Context(), n, metricsFlag(cmd, "crimes", crimes, nil), policy)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), result)
		},
	}

	cmd.Flags().StringVar(&crimes, "crimes", "", "Crime types to total (default: all)")
	cmd.Flags().StringVar(&threshold, "threshold", "", "Threshold: mean|median|fixed (default from config)")
	cmd.Flags().Float64Var(&multiplier, "multiplier", 0, "Multiplier applied to a mean or median threshold")
	cmd.Flags().Float64Var(&fixed, "fixed", 0, "Fixed threshold rate per 100k")
	cmd.Flags().IntVar(&n, "n", 0, "Jurisdictions to rank (default from config)")
	return cmd
}

func newCorrelateCmd(flags *globalFlags) *cobra.Command {
	var metric string

	cmd := &cobra.Command{
		Use:   "correlate",
		Short: "Correlate population with a crime rate",
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := open(cmd.Context(), flags)
			if err != nil {
				return err
			}
			defer c.Close()

			result, err := c.Service.Correlation(cmd.Context(), crime.Metric(metric))
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), result)
		},
	}

	cmd.Flags().StringVar(&metric, "metric", "", "Rate metric (default from config)")
	return cmd
}

func newReportCmd(flags *globalFlags) *cobra.Command {
	var format string

	cmd := &cobra.Command{
		Use:   "report",
		Short: "Build the full dashboard report",
		Long: `Run every analysis section and print the report as markdown or JSON.
Sections that cannot be computed are listed in the report instead of failing it.

Example: crimestats report --source data/crime.csv --format json`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if format != "markdown" && format != "json" {
				return fmt.Errorf("unsupported report format %q", format)
			}
			c, err := open(cmd.Context(), flags)
			if err != nil {
				return err
			}
			defer c.Close()

			report := c.Service.Report(cmd.Context())
			if format == "json" {
				return printJSON(cmd.OutOrStdout(), report)
			}
			_, err = io.WriteString(cmd.OutOrStdout(), report.Markdown())
			return err
		},
	}

	cmd.Flags().StringVar(&format, "format", "markdown", "Output format: markdown|json")
	return cmd
}

func newExportCmd(flags *globalFlags) *cobra.Command {
	var format, out string

	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export the report sections as CSV or XLSX",
		Long: `Write the report sections to a file. XLSX writes one sheet per section; CSV
writes the first section only.

Example: crimestats export --format xlsx --out crime_report.xlsx`,
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := export.ParseFormat(format)
			if err != nil {
				return err
			}
			c, err := open(cmd.Context(), flags)
			if err != nil {
				return err
			}
			defer c.Close()

			if out == "" {
				out = f.Filename("crime_report")
			}
			file, err := os.Create(out)
			if err != nil {
				return err
			}
			defer file.Close()

			report := c.Service.Report(cmd.Context())
			if err := export.Write(file, f, export.ReportSheets(report)...); err != nil {
				return err
			}
			c.Logger.Info("wrote %s", out)
			return nil
		},
	}

	cmd.Flags().StringVar(&format, "format", "xlsx", "Export format: csv|xlsx")
	cmd.Flags().StringVar(&out, "out", "", "Output path (default: crime_report.<ext>)")
	return cmd
}

func newGenerateCmd() *cobra.Command {
	var out string
	var seed int64
	var startYear, endYear int

	cmd := &cobra.Command{
		Use:   "generate",
		Short: "Write a synthetic jurisdiction-by-year crime table as CSV",
		Long: `Generate a deterministic synthetic crime table for local testing.

Example: crimestats generate --out data/crime.csv --seed 42`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := testkit.DefaultCrimeConfig()
			cfg.Seed = seed
			cfg.StartYear = startYear
			cfg.EndYear = endYear
			if cfg.EndYear < cfg.StartYear {
				return fmt.Errorf("end year %d is before start year %d", cfg.EndYear, cfg.StartYear)
			}

			w := cmd.OutOrStdout()
			if out != "" {
				file, err := os.Create(out)
				if err != nil {
					return err
				}
				defer file.Close()
				w = file
			}
			return testkit.WriteCSV(w, testkit.NewCrimeDataGenerator(cfg).GenerateRecords())
		},
	}

	cmd.Flags().StringVar(&out, "out", "", "Output path (default: stdout)")
	cmd.Flags().Int64Var(&seed, "seed", 42, "Random seed for deterministic generation")
	cmd.Flags().IntVar(&startYear, "start-year", 2010, "First year")
	cmd.Flags().IntVar(&endYear, "end-year", 2020, "Last year")
	return cmd
}
