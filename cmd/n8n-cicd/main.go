package main

import (
	"context"
	"fmt"
	"os"

	cli "github.com/urfave/cli/v3"

	"github.com/VictorNov/n8n-ci-cd/pkg/log"
)

func main() {
	cmd := &cli.Command{
		Name:                  "n8n-cicd",
		Usage:                 "Promote, back up and release n8n workflows between environments",
		EnableShellCompletion: true,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "Path to the configuration file",
				Value:   "config.yaml",
				Sources: cli.EnvVars("N8N_CICD_CONFIG"),
			},
			&cli.StringFlag{
				Name:    "log-level",
				Usage:   "Log level (debug, info, warn, error)",
				Value:   "info",
				Sources: cli.EnvVars("LOG_LEVEL"),
			},
		},
		Before: func(ctx context.Context, command *cli.Command) (context.Context, error) {
			log.Setup(command.String("log-level"))

			return ctx, nil
		},
		Commands: []*cli.Command{
			exportCommand(),
			importCommand(),
			deployCommand(),
			listCommand(),
			statusCommand(),
			backupCommand(),
			listBackupsCommand(),
			restoreCommand(),
			cleanupBackupsCommand(),
			verifyCommand(),
			compareCommand(),
			releaseCommand(),
		},
	}

	if err := cmd.Run(context.Background(), os.Args); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
