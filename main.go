// Command cpufreqctl reads and changes the CPU frequency of a Cyclone V
// SoCFPGA by reprogramming its clock manager from userspace.
package main

import (
	"fmt"
	"io"
	"log"
	"strconv"
	"time"

	"github.com/Jon-Bright/cpufreqctl/config"
	"github.com/Jon-Bright/cpufreqctl/cpufreq"
	"github.com/Jon-Bright/cpufreqctl/journal"
	"github.com/Jon-Bright/cpufreqctl/monitor"
	"github.com/Jon-Bright/cpufreqctl/policy"
	"github.com/Jon-Bright/cpufreqctl/socfpga"
	"github.com/spf13/cobra"
	"github.com/tebeka/atexit"
)

// app is everything a command needs, opened from the configuration.
type app struct {
	regs    socfpga.RegReader
	soc     *socfpga.SoC
	journal *journal.Journal
	drv     *cpufreq.Driver
	policy  *policy.Policy
}

func openApp(cfg config.Config, tracers ...cpufreq.Tracer) (*app, error) {
	a := &app{}
	var regs cpufreq.Regs
	refHz := uint64(cpufreq.OSC1Hz)
	if cfg.Sim {
		log.Printf("Using simulated clock manager")
		regs = socfpga.NewSim()
	} else {
		soc, err := socfpga.NewSoC(uintptr(cfg.Base))
		if err != nil {
			return nil, err
		}
		a.soc = soc
		regs = soc.ClkMgr
		refHz = soc.OscHz()
	}
	a.regs = regs

	if cfg.Journal != "" {
		j, err := journal.Open(cfg.Journal)
		if err != nil {
			a.Close()
			return nil, err
		}
		a.journal = j
		tracers = append(tracers, j)
	}

	wait := cfg.WaitPolicy()
	drv, err := cpufreq.New(regs, cpufreq.Config{
		RefHz:        refHz,
		Wait:         &wait,
		VCOForceBits: cfg.ForceBits,
		Tracer:       cpufreq.MultiTracer(tracers),
	})
	if err != nil {
		a.Close()
		return nil, err
	}
	a.drv = drv

	a.policy = policy.New(drv)
	err = a.policy.Init()
	if err != nil {
		a.Close()
		return nil, err
	}
	if cfg.Boost {
		err = a.policy.SetBoost(true)
		if err != nil {
			a.Close()
			return nil, err
		}
	}
	return a, nil
}

func (a *app) Close() {
	if a.journal != nil {
		err := a.journal.Close()
		if err != nil {
			log.Printf("Failed closing journal: %v", err)
		}
	}
	if a.soc != nil {
		err := a.soc.Close()
		if err != nil {
			log.Printf("Failed unmapping clock manager: %v", err)
		}
	}
}

func newRootCmd(cfg *config.Config) *cobra.Command {
	var verbose bool
	root := &cobra.Command{
		Use:   "cpufreqctl",
		Short: "Read and change the CPU frequency of a Cyclone V SoCFPGA.",
		Long: `cpufreqctl switches the HPS CPU clock between a fixed table of ` +
			`operating points by reprogramming the main PLL and its dividers.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !verbose && cmd.Name() != "serve" {
				log.SetOutput(io.Discard)
			}
			return cfg.Validate()
		},
	}
	f := root.PersistentFlags()
	f.BoolVar(&cfg.Sim, "sim", cfg.Sim, "Use a simulated clock manager instead of /dev/mem")
	f.Uint64Var(&cfg.Base, "base", cfg.Base, "Clock manager physical address, 0 to detect from the device tree")
	f.StringVar(&cfg.Journal, "journal", cfg.Journal, "SQLite file to journal transitions to")
	f.DurationVar(&cfg.Timeout, "timeout", cfg.Timeout, "Longest a single PLL wait may take, 0 for no limit")
	f.Uint32Var(&cfg.ForceBits, "force-bits", cfg.ForceBits, "Bits to OR into every VCO register write")
	f.BoolVar(&cfg.Boost, "boost", cfg.Boost, "Allow boost operating points")
	f.BoolVarP(&verbose, "verbose", "v", false, "Log register-level progress to stderr")

	root.AddCommand(
		newGetCmd(cfg),
		newTableCmd(cfg),
		newSetCmd(cfg),
		newDumpCmd(cfg),
		newHistoryCmd(cfg),
		newServeCmd(cfg),
	)
	return root
}

func newGetCmd(cfg *config.Config) *cobra.Command {
	return &cobra.Command{
		Use:   "get",
		Short: "Print the current CPU frequency.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(*cfg)
			if err != nil {
				return err
			}
			defer a.Close()
			st, err := a.policy.Status()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "%d kHz\n", st.KHz)
			fmt.Fprintf(out, "VCO %d Hz\n", st.VCOHz)
			if st.Index < 0 {
				fmt.Fprintln(out, "not at an operating point")
			} else {
				fmt.Fprintf(out, "operating point %d\n", st.Index)
			}
			return nil
		},
	}
}

func newTableCmd(cfg *config.Config) *cobra.Command {
	return &cobra.Command{
		Use:   "table",
		Short: "List the operating points.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(*cfg)
			if err != nil {
				return err
			}
			defer a.Close()
			st, err := a.policy.Status()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "  %-5s %9s %12s %5s %5s %5s %5s\n", "INDEX", "KHZ", "VCO_HZ", "MPU", "MAIN", "DBG", "PER")
			for i, op := range a.drv.Table() {
				mark := " "
				if i == st.Index {
					mark = "*"
				}
				boost := ""
				if op.Boost {
					boost = " boost"
				}
				c := op.Config
				fmt.Fprintf(out, "%s %-5d %9d %12d %5d %5d %5d %5d%s\n", mark, i, op.KHz, c.VCOHz(), c.MPUDiv, c.MainDiv, c.DbgDiv, c.PeriphDiv, boost)
			}
			return nil
		},
	}
}

func newSetCmd(cfg *config.Config) *cobra.Command {
	var relation string
	var index int
	cmd := &cobra.Command{
		Use:   "set [khz]",
		Short: "Switch to the operating point nearest a frequency.",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if (len(args) == 1) == (index >= 0) {
				return fmt.Errorf("need either a frequency or --index")
			}
			rel, err := policy.ParseRelation(relation)
			if err != nil {
				return err
			}
			a, err := openApp(*cfg)
			if err != nil {
				return err
			}
			defer a.Close()
			if index >= 0 {
				err = a.policy.TargetIndex(index)
			} else {
				var khz uint64
				khz, err = strconv.ParseUint(args[0], 10, 32)
				if err != nil {
					return fmt.Errorf("couldn't parse frequency %q: %v", args[0], err)
				}
				_, err = a.policy.Target(uint32(khz), rel)
			}
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%d kHz\n", a.policy.Info().Cur)
			return nil
		},
	}
	cmd.Flags().StringVarP(&relation, "relation", "r", "L", "Round to the lowest frequency at or above (L) or highest at or below (H)")
	cmd.Flags().IntVarP(&index, "index", "i", -1, "Switch to this table index instead")
	return cmd
}

func newDumpCmd(cfg *config.Config) *cobra.Command {
	return &cobra.Command{
		Use:   "dump",
		Short: "Print the clock manager registers.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(*cfg)
			if err != nil {
				return err
			}
			defer a.Close()
			return socfpga.Dump(cmd.OutOrStdout(), a.regs)
		},
	}
}

func newHistoryCmd(cfg *config.Config) *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Print journalled transitions, newest first.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if cfg.Journal == "" {
				return fmt.Errorf("no journal configured, use --journal or %s", config.EnvJournal)
			}
			j, err := journal.Open(cfg.Journal)
			if err != nil {
				return err
			}
			defer j.Close()
			entries, err := j.Recent(limit)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			for _, e := range entries {
				status := "ok"
				if e.Err != "" {
					status = e.Err
				}
				fmt.Fprintf(out, "%s %s %7d -> %7d kHz %-8s %10v %s\n",
					e.Start.Format(time.RFC3339), e.ID, e.FromKHz, e.ToKHz, e.Path, e.Duration, status)
			}
			return nil
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "Most transitions to print, 0 for all")
	return cmd
}

func newServeCmd(cfg *config.Config) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the control server and the HTTP monitor.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			var tracers []cpufreq.Tracer
			var m *monitor.Monitor
			if cfg.HTTP != "" {
				m = monitor.NewMonitor(cpufreq.DefaultTable)
				tracers = append(tracers, m)
			}
			a, err := openApp(*cfg, tracers...)
			if err != nil {
				return err
			}
			defer a.Close()
			if a.journal != nil {
				a.journal.SetBatchSize(1)
			}
			if m != nil {
				m.WithPolicy(a.policy)
				if a.journal != nil {
					m.WithHistory(a.journal)
				}
				_, err = m.StartServer(cfg.HTTP)
				if err != nil {
					return err
				}
			}
			s, err := NewServer(fmt.Sprintf(":%d", cfg.Port), a.policy)
			if err != nil {
				return fmt.Errorf("failed creating server: %v", err)
			}
			s.handleConnections()
			return nil
		},
	}
	cmd.Flags().IntVarP(&cfg.Port, "port", "p", cfg.Port, "The port the control server listens on")
	cmd.Flags().StringVar(&cfg.HTTP, "http", cfg.HTTP, "Listen address of the HTTP monitor, empty to disable")
	return cmd
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed loading configuration: %v", err)
	}
	err = newRootCmd(&cfg).Execute()
	if err != nil {
		atexit.Exit(1)
	}
	atexit.Exit(0)
}
