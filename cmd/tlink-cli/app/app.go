// Package app assembles the command-line client for the control daemon.
package app

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/gosuri/uitable"
	"github.com/spf13/cobra"

	"github.com/tellolink/tellolink/internal/drone"
)

// ErrCommandFailed signals a failed outcome that has already been
// rendered for the user; main maps it to a non-zero exit without
// printing it again.
var ErrCommandFailed = errors.New("command failed")

var (
	serverURL      string
	requestTimeout time.Duration
)

// NewCommand creates the tlink root command with all subcommands.
func NewCommand() *cobra.Command {
	root := &cobra.Command{
		Use:           "tlink",
		Short:         "Command-line client for the drone control daemon",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	pf := root.PersistentFlags()
	pf.StringVar(&serverURL, "server", "http://localhost:8080", "Base URL of the control daemon.")
	pf.DurationVar(&requestTimeout, "timeout", 30*time.Second, "HTTP request timeout. Must exceed the daemon's flight command budgets.")

	root.AddCommand(
		simpleCommand("connect", "Connect to the drone", "/connect", true),
		simpleCommand("disconnect", "Disconnect from the drone", "/disconnect", true),
		simpleCommand("takeoff", "Take off", "/takeoff", true),
		simpleCommand("land", "Land", "/land", true),
		simpleCommand("emergency", "Emergency stop: cut all motors immediately", "/emergency", true),
		simpleCommand("reset", "Clear the emergency state after out-of-band recovery", "/reset", true),
		simpleCommand("battery", "Query the battery level", "/battery", false),
		newStatusCommand(),
		newMoveCommand(),
		newRotateCommand(),
		newStreamCommand(),
		newLogCommand(),
	)

	return root
}

// simpleCommand builds a subcommand that calls one daemon endpoint with
// no parameters and prints the outcome.
func simpleCommand(use, short, path string, post bool) *cobra.Command {
	return &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c := newClient(serverURL, requestTimeout)

			var out *drone.Outcome
			var err error
			if post {
				out, err = c.post(cmd.Context(), path, nil)
			} else {
				out, err = c.get(cmd.Context(), path)
			}
			if err != nil {
				return err
			}
			return printOutcome(out)
		},
	}
}

func newStatusCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show the session status",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			out, err := newClient(serverURL, requestTimeout).get(cmd.Context(), "/status")
			if err != nil {
				return err
			}

			table := uitable.New()
			if out.Connected != nil {
				table.AddRow("CONNECTED:", strconv.FormatBool(*out.Connected))
			}
			table.AddRow("FLIGHT STATUS:", out.FlightStatus)
			if out.Battery != nil {
				table.AddRow("BATTERY:", fmt.Sprintf("%d%%", *out.Battery))
			}
			fmt.Println(table)
			return nil
		},
	}
}

func newMoveCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "move <direction> <distance-cm>",
		Short: "Move up/down/left/right/forward/back by 20-500 cm",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			distance, err := strconv.Atoi(args[1])
			if err != nil {
				return fmt.Errorf("distance must be a number, got %q", args[1])
			}

			out, err := newClient(serverURL, requestTimeout).post(cmd.Context(), "/move", map[string]any{
				"direction": args[0],
				"distance":  distance,
			})
			if err != nil {
				return err
			}
			return printOutcome(out)
		},
	}
}

func newRotateCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "rotate <cw|ccw> <degrees>",
		Short: "Rotate clockwise or counter-clockwise by 1-360 degrees",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			degrees, err := strconv.Atoi(args[1])
			if err != nil {
				return fmt.Errorf("degrees must be a number, got %q", args[1])
			}

			out, err := newClient(serverURL, requestTimeout).post(cmd.Context(), "/rotate", map[string]any{
				"direction": args[0],
				"degrees":   degrees,
			})
			if err != nil {
				return err
			}
			return printOutcome(out)
		},
	}
}

func newStreamCommand() *cobra.Command {
	stream := &cobra.Command{
		Use:   "stream",
		Short: "Control the video stream",
	}
	stream.AddCommand(
		simpleCommand("start", "Start the video stream", "/stream/start", true),
		simpleCommand("stop", "Stop the video stream", "/stream/stop", true),
	)
	return stream
}

func newLogCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "log",
		Short: "Show the daemon's operation log",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			entries, err := newClient(serverURL, requestTimeout).operationLog(cmd.Context())
			if err != nil {
				return err
			}

			table := uitable.New()
			table.MaxColWidth = 80
			table.AddRow("TIME", "OPERATION", "DETAILS")
			for _, e := range entries {
				table.AddRow(e.Timestamp.Format(time.RFC3339), e.Operation, formatDetails(e.Details))
			}
			fmt.Println(table)
			return nil
		},
	}
}

func formatDetails(details map[string]any) string {
	if len(details) == 0 {
		return ""
	}
	s := ""
	for k, v := range details {
		if s != "" {
			s += " "
		}
		s += fmt.Sprintf("%s=%v", k, v)
	}
	return s
}

// printOutcome renders an outcome for humans and reports failures as
// ErrCommandFailed so scripts can branch on the exit code.
func printOutcome(out *drone.Outcome) error {
	table := uitable.New()
	table.AddRow("SUCCESS:", strconv.FormatBool(out.Success))
	table.AddRow("MESSAGE:", out.Message)
	if out.Battery != nil {
		table.AddRow("BATTERY:", fmt.Sprintf("%d%%", *out.Battery))
	}
	if out.FlightStatus != "" {
		table.AddRow("FLIGHT STATUS:", out.FlightStatus)
	}
	if out.Reconnected != nil {
		table.AddRow("RECONNECTED:", strconv.FormatBool(*out.Reconnected))
	}
	if out.Details != nil {
		for _, rec := range out.Details.Recommendations {
			table.AddRow("ADVICE:", rec)
		}
	}
	fmt.Println(table)

	if !out.Success {
		return ErrCommandFailed
	}
	return nil
}
