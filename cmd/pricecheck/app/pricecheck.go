package app

import (
	"context"
	"fmt"
	"os"
	"sort"

	"cloudarb/config"
	"cloudarb/core/aggregator"
	"cloudarb/core/arbitrage"
	"cloudarb/core/catalog"
	"cloudarb/core/models"
	"cloudarb/providers/factory"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

const (
	providerColumn = "Provider"
	instanceColumn = "Instance"
	regionColumn   = "Region"
	gpuColumn      = "GPU"
	countColumn    = "GPUs"
	onDemandColumn = "On-Demand USD/Hour"
	spotColumn     = "Spot USD/Hour"
	savingsColumn  = "Savings"
	riskColumn     = "Risk"
)

// Options are the pricecheck command flags.
type Options struct {
	ConfigPath string
	GPUKinds   []string
	Regions    []string
	Arbitrage  bool
	Sort       string
}

// AddFlags registers the command flags.
func (o *Options) AddFlags(flags *pflag.FlagSet) {
	flags.StringVarP(&o.ConfigPath, "config", "c", "", "path to YAML configuration file")
	flags.StringSliceVarP(&o.GPUKinds, "gpu", "g", nil, "restrict to one or more GPU kinds (e.g. A100,H100)")
	flags.StringSliceVarP(&o.Regions, "region", "r", nil, "restrict to one or more regions")
	flags.BoolVarP(&o.Arbitrage, "arbitrage", "a", false, "also scan for arbitrage opportunities")
	flags.StringVarP(&o.Sort, "sort", "s", "price", "sort results by price|provider|gpu")
}

// NewPricecheckCommand builds the one-shot pricing CLI.
func NewPricecheckCommand(ctx context.Context) *cobra.Command {
	opts := &Options{}
	cmd := &cobra.Command{
		Use:                   "pricecheck",
		Long:                  "fetch current GPU pricing across providers and print it as a table",
		DisableFlagsInUseLine: true,
		SilenceUsage:          true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return Run(ctx, opts)
		},
	}
	opts.AddFlags(cmd.Flags())
	return cmd
}

// Run drives one aggregation cycle and renders the results.
func Run(ctx context.Context, opts *Options) error {
	cfg, err := config.Load(opts.ConfigPath)
	if err != nil {
		return err
	}
	if len(opts.GPUKinds) > 0 {
		cfg.Adapters.GPUKinds = opts.GPUKinds
	}
	if len(opts.Regions) > 0 {
		cfg.Adapters.Regions = opts.Regions
	}

	adapters := factory.Build(ctx, cfg)
	if len(adapters) == 0 {
		return errors.New("no adapters enabled")
	}

	aggCfg := aggregator.DefaultConfig()
	aggCfg.CycleDeadline = cfg.Aggregator.CycleDeadline.Std()
	agg := aggregator.New(aggCfg, catalog.DefaultStatic(), adapters, factory.Filter(cfg))
	if err := agg.RunOnce(ctx); err != nil {
		return errors.Wrap(err, "pricing cycle")
	}

	tbl := agg.Snapshot()
	points := tbl.Lines()
	if len(points) == 0 {
		return errors.New("no pricing data fetched; check credentials and adapter health")
	}

	sortPoints(points, opts.Sort)
	printPricingTable(points)

	if opts.Arbitrage {
		detector := arbitrage.New(arbitrage.DefaultConfig(), agg, nil)
		opportunities := detector.Scan(ctx, tbl)
		printOpportunityTable(opportunities)
	}
	return nil
}

func sortPoints(points []models.PricePoint, mode string) {
	switch mode {
	case "provider":
		sort.SliceStable(points, func(i, j int) bool { return points[i].Provider < points[j].Provider })
	case "gpu":
		sort.SliceStable(points, func(i, j int) bool { return points[i].GPUKind < points[j].GPUKind })
	default:
		sort.SliceStable(points, func(i, j int) bool { return points[i].OnDemand < points[j].OnDemand })
	}
}

func printPricingTable(points []models.PricePoint) {
	t := table.NewWriter()
	t.SetOutputMirror(os.Stdout)
	t.AppendHeader(table.Row{providerColumn, instanceColumn, regionColumn, gpuColumn, countColumn, onDemandColumn, spotColumn})
	t.SetColumnConfigs([]table.ColumnConfig{
		{Name: onDemandColumn, Align: text.AlignRight},
		{Name: spotColumn, Align: text.AlignRight},
	})
	for _, p := range points {
		spot := "-"
		if p.HasSpot {
			spot = fmt.Sprintf("%.4f", p.Spot)
		}
		t.AppendRow(table.Row{
			p.Provider, p.Instance, p.Region, p.GPUKind, p.GPUCount,
			fmt.Sprintf("%.4f", p.OnDemand), spot,
		})
	}
	t.Render()
}

func printOpportunityTable(opportunities []models.Opportunity) {
	if len(opportunities) == 0 {
		fmt.Println("no arbitrage opportunities above threshold")
		return
	}
	t := table.NewWriter()
	t.SetOutputMirror(os.Stdout)
	t.AppendHeader(table.Row{gpuColumn, "From", "To", savingsColumn, riskColumn})
	for _, o := range opportunities {
		t.AppendRow(table.Row{
			o.GPUKind,
			fmt.Sprintf("%s/%s/%s @ %.4f", o.From.Provider, o.From.Instance, o.From.Region, o.From.Price),
			fmt.Sprintf("%s/%s/%s @ %.4f", o.To.Provider, o.To.Instance, o.To.Region, o.To.Price),
			fmt.Sprintf("%.1f%%", o.SavingsPct*100),
			fmt.Sprintf("%.2f", o.RiskScore),
		})
	}
	t.Render()
}
