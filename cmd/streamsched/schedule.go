package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/cuemby/streamsched/pkg/api"
	"github.com/cuemby/streamsched/pkg/types"
)

var scheduleCmd = &cobra.Command{
	Use:   "schedule",
	Short: "Manage stream-size schedules",
}

func init() {
	scheduleCmd.PersistentFlags().String("admin-addr", "127.0.0.1:9091", "streamsched admin API address")
	scheduleCmd.AddCommand(scheduleCreateCmd)
	scheduleCmd.AddCommand(scheduleSuspendCmd)
	scheduleCmd.AddCommand(scheduleResumeCmd)
	scheduleCmd.AddCommand(scheduleDeleteCmd)
	scheduleCmd.AddCommand(scheduleStateCmd)
	scheduleCmd.AddCommand(scheduleListCmd)

	scheduleCreateCmd.Flags().String("namespace", "", "program namespace (required)")
	scheduleCreateCmd.Flags().String("application", "", "program application (required)")
	scheduleCreateCmd.Flags().String("program-type", "", "program type (required)")
	scheduleCreateCmd.Flags().String("program-name", "", "program name (required)")
	scheduleCreateCmd.Flags().String("name", "", "schedule name (required)")
	scheduleCreateCmd.Flags().String("stream", "", "stream name (required)")
	scheduleCreateCmd.Flags().Int("trigger-mb", 1, "data trigger threshold, in mebibytes")
	for _, f := range []string{"namespace", "application", "program-type", "program-name", "name", "stream"} {
		_ = scheduleCreateCmd.MarkFlagRequired(f)
	}

	scheduleListCmd.Flags().String("namespace", "", "program namespace")
	scheduleListCmd.Flags().String("application", "", "program application")
	scheduleListCmd.Flags().String("program-type", "", "program type")
	scheduleListCmd.Flags().String("program-name", "", "program name")
}

func adminClient(cmd *cobra.Command) *api.Client {
	addr, _ := cmd.Flags().GetString("admin-addr")
	return api.NewClient(addr)
}

var scheduleCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Create a stream-size schedule",
	RunE: func(cmd *cobra.Command, args []string) error {
		namespace, _ := cmd.Flags().GetString("namespace")
		application, _ := cmd.Flags().GetString("application")
		programType, _ := cmd.Flags().GetString("program-type")
		programName, _ := cmd.Flags().GetString("program-name")
		name, _ := cmd.Flags().GetString("name")
		stream, _ := cmd.Flags().GetString("stream")
		triggerMB, _ := cmd.Flags().GetInt("trigger-mb")

		program := types.ProgramRef{Namespace: namespace, Application: application, ProgramType: programType, ProgramName: programName}
		spec := types.ScheduleSpec{ScheduleName: name, StreamName: stream, DataTriggerMB: triggerMB}

		if err := adminClient(cmd).CreateSchedule(cmd.Context(), program, spec); err != nil {
			return err
		}
		fmt.Printf("schedule created: %s:%s:%s:%s:%s\n", namespace, application, programType, programName, name)
		return nil
	},
}

var scheduleSuspendCmd = &cobra.Command{
	Use:   "suspend <schedule-id>",
	Short: "Suspend a schedule by its ns:app:type:prog:sched identifier",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := parseScheduleIdArg(args[0])
		if err != nil {
			return err
		}
		if err := adminClient(cmd).SuspendSchedule(cmd.Context(), id); err != nil {
			return err
		}
		fmt.Println("schedule suspended")
		return nil
	},
}

var scheduleResumeCmd = &cobra.Command{
	Use:   "resume <schedule-id>",
	Short: "Resume a schedule by its ns:app:type:prog:sched identifier",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := parseScheduleIdArg(args[0])
		if err != nil {
			return err
		}
		if err := adminClient(cmd).ResumeSchedule(cmd.Context(), id); err != nil {
			return err
		}
		fmt.Println("schedule resumed")
		return nil
	},
}

var scheduleDeleteCmd = &cobra.Command{
	Use:   "delete <schedule-id>",
	Short: "Delete a schedule by its ns:app:type:prog:sched identifier",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := parseScheduleIdArg(args[0])
		if err != nil {
			return err
		}
		if err := adminClient(cmd).DeleteSchedule(cmd.Context(), id); err != nil {
			return err
		}
		fmt.Println("schedule deleted")
		return nil
	},
}

var scheduleStateCmd = &cobra.Command{
	Use:   "state <schedule-id>",
	Short: "Show a schedule's current state",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := parseScheduleIdArg(args[0])
		if err != nil {
			return err
		}
		state, err := adminClient(cmd).GetScheduleState(cmd.Context(), id)
		if err != nil {
			return err
		}
		fmt.Println(state)
		return nil
	},
}

var scheduleListCmd = &cobra.Command{
	Use:   "list",
	Short: "List schedules for a program",
	RunE: func(cmd *cobra.Command, args []string) error {
		namespace, _ := cmd.Flags().GetString("namespace")
		application, _ := cmd.Flags().GetString("application")
		programType, _ := cmd.Flags().GetString("program-type")
		programName, _ := cmd.Flags().GetString("program-name")

		ids, err := adminClient(cmd).ListSchedules(cmd.Context(), namespace, application, programType, programName)
		if err != nil {
			return err
		}
		for _, id := range ids {
			fmt.Println(id)
		}
		return nil
	},
}

// parseScheduleIdArg splits the canonical "ns:app:type:prog:sched"
// identifier supplied on the CLI.
func parseScheduleIdArg(s string) (types.ScheduleId, error) {
	parts := strings.Split(s, ":")
	if len(parts) != 5 {
		return types.ScheduleId{}, fmt.Errorf("malformed schedule id %q, want ns:app:type:prog:sched", s)
	}
	return types.ScheduleId{
		Namespace:    parts[0],
		Application:  parts[1],
		ProgramType:  parts[2],
		ProgramName:  parts[3],
		ScheduleName: parts[4],
	}, nil
}
