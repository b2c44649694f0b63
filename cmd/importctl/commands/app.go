// Package commands implements the importctl subcommands.
package commands

import (
	"encoding/json"
	"io"
	"os"

	"github.com/urfave/cli/v3"
)

const defaultAPIURL = "http://localhost:8080"

// NewApp builds the importctl command tree
func NewApp() *cli.Command {
	apiFlag := &cli.StringFlag{
		Name:    "api",
		Usage:   "base URL of the API service",
		Value:   defaultAPIURL,
		Sources: cli.EnvVars("IMPORTCTL_API_URL"),
	}

	return &cli.Command{
		Name:  "importctl",
		Usage: "submit and inspect bulk recipe imports",
		Commands: []*cli.Command{
			{
				Name:      "submit",
				Usage:     "submit post ids for a bulk import",
				ArgsUsage: "POST_ID...",
				Flags:     []cli.Flag{apiFlag},
				Action:    SubmitAction,
			},
			{
				Name:      "status",
				Usage:     "show the progress of an import job",
				ArgsUsage: "JOB_ID",
				Flags: []cli.Flag{
					apiFlag,
					&cli.BoolFlag{
						Name:  "items",
						Usage: "also list per-post outcomes",
					},
				},
				Action: StatusAction,
			},
			{
				Name:  "parse",
				Usage: "parse a caption file into a recipe draft",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:     "file",
						Usage:    "caption text file, - for stdin",
						Required: true,
					},
					&cli.StringFlag{
						Name:  "post-id",
						Usage: "post id recorded on the draft",
						Value: "local",
					},
				},
				Action: ParseAction,
			},
			{
				Name:  "steps",
				Usage: "generate default steps for a dish",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:     "title",
						Usage:    "dish title",
						Required: true,
					},
					&cli.StringSliceFlag{
						Name:  "ingredient",
						Usage: "ingredient line such as \"2 cups flour\", repeatable",
					},
				},
				Action: StepsAction,
			},
			{
				Name:      "run",
				Usage:     "import posts from a fixtures file in memory",
				ArgsUsage: "[POST_ID...]",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:     "fixtures",
						Usage:    "JSON array of post documents",
						Required: true,
					},
					&cli.IntFlag{
						Name:  "concurrency",
						Usage: "workers per job",
						Value: 4,
					},
				},
				Action: RunAction,
			},
			{
				Name:  "migrate",
				Usage: "apply or roll back the database schema",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:    "config",
						Usage:   "service configuration file",
						Value:   "configs/api-service/config.yaml",
						Sources: cli.EnvVars("API_SERVICE_CONFIG_PATH"),
					},
					&cli.BoolFlag{
						Name:  "down",
						Usage: "roll back every migration",
					},
				},
				Action: MigrateAction,
			},
		},
	}
}

func output(cmd *cli.Command) io.Writer {
	if w := cmd.Root().Writer; w != nil {
		return w
	}
	return os.Stdout
}

func input(cmd *cli.Command) io.Reader {
	if r := cmd.Root().Reader; r != nil {
		return r
	}
	return os.Stdin
}

func printJSON(cmd *cli.Command, v any) error {
	enc := json.NewEncoder(output(cmd))
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
