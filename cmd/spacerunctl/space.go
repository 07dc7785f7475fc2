package main

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/urfave/cli/v2"

	"spacerun/internal/policy"
	"spacerun/internal/space"
)

func spaceCommand() *cli.Command {
	return &cli.Command{
		Name:  "space",
		Usage: "Manage spaces (container + bind-mounted workspace)",
		Subcommands: []*cli.Command{
			spaceCreateCommand(),
			spaceGetCommand(),
			spaceListCommand(),
			spaceUpdateCommand(),
			spaceExtendCommand(),
			spaceDestroyCommand(),
		},
	}
}

func spaceCreateCommand() *cli.Command {
	return &cli.Command{
		Name:      "create",
		Usage:     "Provision a new space",
		UsageText: "spacerunctl space create --name demo [--preset standard] [--overrides-json '{...}']",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "name", Usage: "Human-readable space name"},
			&cli.StringFlag{Name: "description", Usage: "Space description"},
			&cli.StringFlag{Name: "preset", Usage: "Policy preset: restrictive, standard, permissive", Value: "standard"},
			&cli.StringFlag{Name: "overrides-json", Usage: "JSON-encoded policy.Overrides applied on top of the preset"},
			&cli.StringSliceFlag{Name: "capability", Usage: "Declared capability (repeatable)"},
			&cli.StringSliceFlag{Name: "env", Usage: "Container env var as key=value (repeatable)"},
			&cli.StringSliceFlag{Name: "metadata", Usage: "Metadata entry as key=value (repeatable)"},
			&cli.IntFlag{Name: "ttl", Usage: "Time-to-live in seconds (default 12h)"},
		},
		Action: func(c *cli.Context) error {
			a, err := newApp(c)
			if err != nil {
				return runtimeErr(err)
			}
			defer a.Close()

			var overrides policy.Overrides
			if raw := c.String("overrides-json"); raw != "" {
				if err := json.Unmarshal([]byte(raw), &overrides); err != nil {
					return usageErr("invalid --overrides-json: %v", err)
				}
			}

			env, err := parseKeyValues(c.StringSlice("env"))
			if err != nil {
				return usageErr("invalid --env: %v", err)
			}
			metadata, err := parseKeyValues(c.StringSlice("metadata"))
			if err != nil {
				return usageErr("invalid --metadata: %v", err)
			}

			rec, err := a.manager.Create(c.Context, space.CreateOptions{
				Name:         c.String("name"),
				Description:  c.String("description"),
				Preset:       policy.PresetName(c.String("preset")),
				Overrides:    overrides,
				Capabilities: c.StringSlice("capability"),
				Env:          env,
				Metadata:     metadata,
				TTLSeconds:   c.Int("ttl"),
			})
			if err != nil {
				return runtimeErr(err)
			}

			return printJSON(rec)
		},
	}
}

func spaceGetCommand() *cli.Command {
	return &cli.Command{
		Name:      "get",
		Usage:     "Show a space's persisted record",
		ArgsUsage: "<space-id>",
		Action: func(c *cli.Context) error {
			id := c.Args().First()
			if id == "" {
				return usageErr("space get requires a <space-id> argument")
			}
			a, err := newApp(c)
			if err != nil {
				return runtimeErr(err)
			}
			defer a.Close()

			rec, err := a.manager.Get(c.Context, id)
			if err != nil {
				return runtimeErr(err)
			}
			return printJSON(rec)
		},
	}
}

func spaceListCommand() *cli.Command {
	return &cli.Command{
		Name:  "list",
		Usage: "List all persisted spaces",
		Action: func(c *cli.Context) error {
			a, err := newApp(c)
			if err != nil {
				return runtimeErr(err)
			}
			defer a.Close()

			list, err := a.manager.List(c.Context)
			if err != nil {
				return runtimeErr(err)
			}
			return printJSON(list)
		},
	}
}

func spaceUpdateCommand() *cli.Command {
	return &cli.Command{
		Name:      "update",
		Usage:     "Patch a space's name, description, or metadata",
		ArgsUsage: "<space-id>",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "name"},
			&cli.StringFlag{Name: "description"},
			&cli.StringSliceFlag{Name: "metadata", Usage: "Metadata entry as key=value (repeatable); replaces the whole map"},
		},
		Action: func(c *cli.Context) error {
			id := c.Args().First()
			if id == "" {
				return usageErr("space update requires a <space-id> argument")
			}
			a, err := newApp(c)
			if err != nil {
				return runtimeErr(err)
			}
			defer a.Close()

			patch := space.UpdatePatch{}
			if c.IsSet("name") {
				name := c.String("name")
				patch.Name = &name
			}
			if c.IsSet("description") {
				desc := c.String("description")
				patch.Description = &desc
			}
			if c.IsSet("metadata") {
				metadata, err := parseKeyValues(c.StringSlice("metadata"))
				if err != nil {
					return usageErr("invalid --metadata: %v", err)
				}
				patch.Metadata = metadata
			}

			rec, err := a.manager.Update(c.Context, id, patch)
			if err != nil {
				return runtimeErr(err)
			}
			return printJSON(rec)
		},
	}
}

func spaceExtendCommand() *cli.Command {
	return &cli.Command{
		Name:      "extend",
		Usage:     "Push a space's expiration further into the future",
		ArgsUsage: "<space-id> <additional-seconds>",
		Action: func(c *cli.Context) error {
			if c.Args().Len() < 2 {
				return usageErr("space extend requires <space-id> and <additional-seconds>")
			}
			id := c.Args().Get(0)
			var seconds int
			if _, err := fmt.Sscanf(c.Args().Get(1), "%d", &seconds); err != nil {
				return usageErr("invalid <additional-seconds>: %v", err)
			}

			a, err := newApp(c)
			if err != nil {
				return runtimeErr(err)
			}
			defer a.Close()

			rec, err := a.manager.Extend(c.Context, id, seconds)
			if err != nil {
				return runtimeErr(err)
			}
			return printJSON(rec)
		},
	}
}

func spaceDestroyCommand() *cli.Command {
	return &cli.Command{
		Name:      "destroy",
		Usage:     "Stop and remove a space's sandbox, marking it destroyed",
		ArgsUsage: "<space-id>",
		Action: func(c *cli.Context) error {
			id := c.Args().First()
			if id == "" {
				return usageErr("space destroy requires a <space-id> argument")
			}
			a, err := newApp(c)
			if err != nil {
				return runtimeErr(err)
			}
			defer a.Close()

			if err := a.manager.Destroy(c.Context, id); err != nil {
				return runtimeErr(err)
			}
			return printJSON(map[string]string{"id": id, "status": "destroyed"})
		},
	}
}

// parseKeyValues parses repeated "key=value" flag values into a map.
func parseKeyValues(pairs []string) (map[string]string, error) {
	if len(pairs) == 0 {
		return nil, nil
	}
	out := make(map[string]string, len(pairs))
	for _, pair := range pairs {
		k, v, ok := strings.Cut(pair, "=")
		if !ok || k == "" {
			return nil, fmt.Errorf("expected key=value, got %q", pair)
		}
		out[k] = v
	}
	return out, nil
}
