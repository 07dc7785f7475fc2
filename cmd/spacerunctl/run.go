package main

import (
	"encoding/json"
	"io"
	"os"

	"github.com/urfave/cli/v2"

	"spacerun/internal/protocol"
	"spacerun/internal/runs"
)

func runCommand() *cli.Command {
	return &cli.Command{
		Name:  "run",
		Usage: "Submit, resume, cancel, and inspect runs",
		Subcommands: []*cli.Command{
			runSubmitCommand(),
			runResumeCommand(),
			runCancelCommand(),
			runGetCommand(),
			runListCommand(),
		},
	}
}

func runSubmitCommand() *cli.Command {
	return &cli.Command{
		Name:      "submit",
		Usage:     "Submit a batch of operations against a space",
		ArgsUsage: "<space-id>",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:     "operations-json",
				Usage:    "Path to a JSON file holding {\"protocolVersion\":..,\"operations\":[...]} (- for stdin)",
				Required: true,
			},
		},
		Action: func(c *cli.Context) error {
			spaceID := c.Args().First()
			if spaceID == "" {
				return usageErr("run submit requires a <space-id> argument")
			}

			msg, err := readOperationsMessage(c.String("operations-json"))
			if err != nil {
				return usageErr("%v", err)
			}
			validated, err := protocol.ValidateOperationsMessage(msg)
			if err != nil {
				return usageErr("invalid operations: %v", err)
			}

			a, err := newApp(c)
			if err != nil {
				return runtimeErr(err)
			}
			defer a.Close()

			rec, err := a.runs.Create(c.Context, spaceID, validated.Operations)
			if err != nil {
				return runtimeErr(err)
			}
			return printJSON(rec)
		},
	}
}

func runResumeCommand() *cli.Command {
	return &cli.Command{
		Name:      "resume",
		Usage:     "Resolve a run's pending approval and continue",
		ArgsUsage: "<run-id> <operation-id> <approve|deny>",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "reason", Usage: "Human-readable reason recorded with the decision"},
		},
		Action: func(c *cli.Context) error {
			if c.Args().Len() < 3 {
				return usageErr("run resume requires <run-id> <operation-id> <approve|deny>")
			}
			runID := c.Args().Get(0)
			operationID := c.Args().Get(1)
			decisionWord := c.Args().Get(2)

			var approved bool
			switch decisionWord {
			case "approve":
				approved = true
			case "deny":
				approved = false
			default:
				return usageErr("decision must be %q or %q, got %q", "approve", "deny", decisionWord)
			}

			a, err := newApp(c)
			if err != nil {
				return runtimeErr(err)
			}
			defer a.Close()

			rec, err := a.runs.Resume(c.Context, runID, runs.ApprovalDecision{
				OperationID: operationID,
				Approved:    approved,
				Reason:      c.String("reason"),
			})
			if err != nil {
				return runtimeErr(err)
			}
			return printJSON(rec)
		},
	}
}

func runCancelCommand() *cli.Command {
	return &cli.Command{
		Name:      "cancel",
		Usage:     "Cancel an in-progress or awaiting_approval run",
		ArgsUsage: "<run-id>",
		Action: func(c *cli.Context) error {
			runID := c.Args().First()
			if runID == "" {
				return usageErr("run cancel requires a <run-id> argument")
			}
			a, err := newApp(c)
			if err != nil {
				return runtimeErr(err)
			}
			defer a.Close()

			rec, err := a.runs.Cancel(c.Context, runID)
			if err != nil {
				return runtimeErr(err)
			}
			return printJSON(rec)
		},
	}
}

func runGetCommand() *cli.Command {
	return &cli.Command{
		Name:      "get",
		Usage:     "Show a run's persisted record, including its events",
		ArgsUsage: "<run-id>",
		Action: func(c *cli.Context) error {
			runID := c.Args().First()
			if runID == "" {
				return usageErr("run get requires a <run-id> argument")
			}
			a, err := newApp(c)
			if err != nil {
				return runtimeErr(err)
			}
			defer a.Close()

			rec, err := a.runs.Get(c.Context, runID)
			if err != nil {
				return runtimeErr(err)
			}
			return printJSON(rec)
		},
	}
}

func runListCommand() *cli.Command {
	return &cli.Command{
		Name:      "list",
		Usage:     "List runs submitted against a space",
		ArgsUsage: "<space-id>",
		Action: func(c *cli.Context) error {
			spaceID := c.Args().First()
			if spaceID == "" {
				return usageErr("run list requires a <space-id> argument")
			}
			a, err := newApp(c)
			if err != nil {
				return runtimeErr(err)
			}
			defer a.Close()

			list, err := a.runs.List(c.Context, spaceID)
			if err != nil {
				return runtimeErr(err)
			}
			return printJSON(list)
		},
	}
}

// readOperationsMessage reads and decodes path (- for stdin) into an
// OperationsMessage. Defaulting protocolVersion when the file omits it
// matches how a hand-authored operations file is commonly written.
func readOperationsMessage(path string) (protocol.OperationsMessage, error) {
	var data []byte
	var err error
	if path == "-" {
		data, err = io.ReadAll(os.Stdin)
	} else {
		data, err = os.ReadFile(path)
	}
	if err != nil {
		return protocol.OperationsMessage{}, err
	}

	var msg protocol.OperationsMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return protocol.OperationsMessage{}, err
	}
	if msg.ProtocolVersion == "" {
		msg.ProtocolVersion = protocol.ProtocolVersion
	}
	return msg, nil
}
