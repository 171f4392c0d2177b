package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/cuemby/streamsched/pkg/api"
	"github.com/cuemby/streamsched/pkg/types"
)

var applyCmd = &cobra.Command{
	Use:   "apply",
	Short: "Apply a bulk schedule manifest",
	Long: `Apply a YAML manifest of stream-size schedules for one program.

Example:
  streamsched apply -f schedules.yaml`,
	RunE: runApply,
}

func init() {
	applyCmd.Flags().StringP("file", "f", "", "YAML manifest to apply (required)")
	applyCmd.Flags().String("admin-addr", "127.0.0.1:9091", "streamsched admin API address")
	_ = applyCmd.MarkFlagRequired("file")
}

// scheduleManifest is the YAML shape streamsched apply reads: one
// program and every schedule to create for it, mirroring
// cmd/warren/apply.go's resource-manifest idiom.
type scheduleManifest struct {
	Program struct {
		Namespace   string `yaml:"namespace"`
		Application string `yaml:"application"`
		ProgramType string `yaml:"programType"`
		ProgramName string `yaml:"programName"`
	} `yaml:"program"`
	Schedules []struct {
		Name          string `yaml:"name"`
		Stream        string `yaml:"stream"`
		DataTriggerMB int    `yaml:"dataTriggerMB"`
	} `yaml:"schedules"`
}

func runApply(cmd *cobra.Command, args []string) error {
	filename, _ := cmd.Flags().GetString("file")
	addr, _ := cmd.Flags().GetString("admin-addr")

	data, err := os.ReadFile(filename)
	if err != nil {
		return fmt.Errorf("failed to read file: %w", err)
	}

	var manifest scheduleManifest
	if err := yaml.Unmarshal(data, &manifest); err != nil {
		return fmt.Errorf("failed to parse YAML: %w", err)
	}

	program := types.ProgramRef{
		Namespace:   manifest.Program.Namespace,
		Application: manifest.Program.Application,
		ProgramType: manifest.Program.ProgramType,
		ProgramName: manifest.Program.ProgramName,
	}

	client := api.NewClient(addr)

	var failures int
	for _, s := range manifest.Schedules {
		spec := types.ScheduleSpec{ScheduleName: s.Name, StreamName: s.Stream, DataTriggerMB: s.DataTriggerMB}
		if err := client.CreateSchedule(cmd.Context(), program, spec); err != nil {
			fmt.Printf("failed to apply schedule %s: %v\n", s.Name, err)
			failures++
			continue
		}
		fmt.Printf("applied schedule: %s\n", s.Name)
	}

	if failures > 0 {
		return fmt.Errorf("%d of %d schedules failed to apply", failures, len(manifest.Schedules))
	}
	return nil
}
