package cmd

import (
	"fmt"
	"os"

	"github.com/OpenTraceLab/OpenTraceOEI/pkg/ddr"
	"github.com/OpenTraceLab/OpenTraceOEI/pkg/i2c"
	"github.com/OpenTraceLab/OpenTraceOEI/pkg/lpi2c"
	"github.com/OpenTraceLab/OpenTraceOEI/pkg/mmio"
	"github.com/OpenTraceLab/OpenTraceOEI/pkg/oei"
	"github.com/OpenTraceLab/OpenTraceOEI/pkg/timer"
	"github.com/spf13/cobra"
)

var (
	bootConfig    string
	bootEEPROM    string
	bootTiming    string
	bootSimStuck  bool
	bootSimNACK   bool
	bootMemTest   bool
	bootQuickBoot bool
	bootFailTrain bool
)

var bootCmd = &cobra.Command{
	Use:   "boot",
	Short: "Run the DRAM bring-up stage on a simulated board",
	Long: `Run the complete stage: platform setup, EEPROM probe and header read,
DRAM table adjustment, training and the optional memory test. The LPI2C
controller, the EEPROM and DRAM are simulated; training loads the tables into
a simulated register space.

Examples:
  oei boot --eeprom som.bin
  oei boot --config board.toml --eeprom som.bin --timing lpddr5_timing.c
  oei boot --eeprom som.bin --sim-stuck        # bus held low by another master
  oei boot --sim-nack                          # no EEPROM fitted`,
	RunE: runBoot,
}

func init() {
	rootCmd.AddCommand(bootCmd)

	bootCmd.Flags().StringVarP(&bootConfig, "config", "c", "", "board configuration (TOML)")
	bootCmd.Flags().StringVarP(&bootEEPROM, "eeprom", "e", "", "EEPROM image to attach")
	bootCmd.Flags().StringVarP(&bootTiming, "timing", "t", "", "DRAM timing source (default: built-in LPDDR5 tables)")
	bootCmd.Flags().BoolVar(&bootSimStuck, "sim-stuck", false, "simulator: bus busy with no owner")
	bootCmd.Flags().BoolVar(&bootSimNACK, "sim-nack", false, "simulator: EEPROM does not acknowledge")
	bootCmd.Flags().BoolVar(&bootMemTest, "mem-test", false, "run the memory test after training")
	bootCmd.Flags().BoolVar(&bootQuickBoot, "quick-boot", false, "announce QuickBoot instead of training")
	bootCmd.Flags().BoolVar(&bootFailTrain, "sim-train-fail", false, "simulator: training fails")
}

func loadConfig(path string) (*oei.Config, error) {
	if path == "" {
		return oei.DefaultConfig(), nil
	}
	return oei.LoadConfig(path)
}

func loadTiming(path string) (*ddr.Timing, error) {
	if path == "" {
		return ddr.DefaultTiming()
	}
	return ddr.LoadTiming(path)
}

type failingTrainer struct{ ddr.Trainer }

func (failingTrainer) Train(*ddr.Timing) error { return ddr.ErrTraining }

func runBoot(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(bootConfig)
	if err != nil {
		return err
	}
	if cmd.Flags().Changed("mem-test") {
		cfg.Stage.MemTest = bootMemTest
	}
	if cmd.Flags().Changed("quick-boot") {
		cfg.Stage.QuickBoot = bootQuickBoot
	}

	timing, err := loadTiming(bootTiming)
	if err != nil {
		return fmt.Errorf("load timing: %w", err)
	}

	sim := lpi2c.NewSim()
	sim.StuckBusy = bootSimStuck
	if bootEEPROM != "" && !bootSimNACK {
		img, err := os.ReadFile(bootEEPROM)
		if err != nil {
			return fmt.Errorf("read eeprom image: %w", err)
		}
		sim.Attach(cfg.EEPROM.Address, i2c.NewSimEEPROM(img, cfg.EEPROM.OffsetLen))
	}

	log := debugLogger(cmd)
	board := oei.NewBoard(mmio.NewMemory(), mmio.NewMemory(), mmio.NewMemory(), mmio.NewMemory(), cfg.Stage.ConsoleUART)
	board.Log = log

	prog := ddr.NewProgrammer(mmio.NewMemory())
	prog.Log = log
	var trainer ddr.Trainer = prog
	if bootFailTrain {
		trainer = failingTrainer{prog}
	}

	stage := oei.NewStage(cfg, board, sim, timer.NewMonotonic(), timing, trainer, cmd.OutOrStdout())
	stage.DRAM = mmio.NewMemory()
	stage.SetLog(log)

	outcome := stage.Run()
	out := cmd.OutOrStdout()
	if stage.Report != nil {
		fmt.Fprintf(out, "\nAdjustment: %s\n", stage.Report)
		for _, p := range stage.Report.Patches {
			fmt.Fprintf(out, "  %-20s [%3d] 0x%08x: 0x%08x -> 0x%08x\n", p.Table, p.Index, p.Reg, p.Old, p.New)
		}
	}
	if verbose {
		fmt.Fprintf(out, "Training register writes: %d\n", prog.Writes())
	}
	fmt.Fprintf(out, "Outcome: %s\n", outcome)
	if outcome == oei.Failure {
		return fmt.Errorf("boot failed: %w", stage.TrainErr)
	}
	return nil
}
