package main

import (
	"context"
	"fmt"

	cli "github.com/urfave/cli/v3"

	"github.com/VictorNov/n8n-ci-cd/pkg/release"
)

func newCoordinator(command *cli.Command) (*app, *release.Coordinator, error) {
	a, err := newApp(command)
	if err != nil {
		return nil, nil, err
	}

	git := release.NewExecGit(command.String("repo"))
	coordinator := release.NewCoordinator(
		git, a.codec, a.cfg.Settings.WorkflowsDir, command.String("production-branch"), a.logger)

	return a, coordinator, nil
}

func releaseCommand() *cli.Command {
	repoFlags := []cli.Flag{
		&cli.StringFlag{
			Name:  "repo",
			Usage: "Path to the Git repository",
			Value: ".",
		},
		&cli.StringFlag{
			Name:  "production-branch",
			Usage: "Branch holding the production copies",
			Value: "production",
		},
	}

	return &cli.Command{
		Name:  "release",
		Usage: "Version and tag workflow releases",
		Commands: []*cli.Command{
			{
				Name:      "current-version",
				Usage:     "Show the latest released version of a workflow",
				ArgsUsage: "baseName",
				Flags:     repoFlags,
				Action: func(ctx context.Context, command *cli.Command) error {
					base := command.Args().First()
					if base == "" {
						return cli.Exit("current-version requires a base name", 1)
					}

					_, coordinator, err := newCoordinator(command)
					if err != nil {
						return err
					}

					current, err := coordinator.CurrentVersion(ctx, base)
					if err != nil {
						return err
					}

					if current == release.NoReleases {
						fmt.Println("no releases")
					} else {
						fmt.Println(current)
					}

					return nil
				},
			},
			{
				Name:      "suggest-version",
				Usage:     "Suggest the next version for a workflow",
				ArgsUsage: "baseName",
				Flags:     repoFlags,
				Action: func(ctx context.Context, command *cli.Command) error {
					base := command.Args().First()
					if base == "" {
						return cli.Exit("suggest-version requires a base name", 1)
					}

					_, coordinator, err := newCoordinator(command)
					if err != nil {
						return err
					}

					current, err := coordinator.CurrentVersion(ctx, base)
					if err != nil {
						return err
					}

					fmt.Println(release.SuggestNextVersion(current))

					return nil
				},
			},
			{
				Name:      "analyze",
				Usage:     "Summarize structural changes against the production branch",
				ArgsUsage: "baseName",
				Flags: append([]cli.Flag{
					&cli.StringFlag{
						Name:  "version",
						Usage: "Version being released",
						Value: "unreleased",
					},
				}, repoFlags...),
				Action: func(ctx context.Context, command *cli.Command) error {
					base := command.Args().First()
					if base == "" {
						return cli.Exit("analyze requires a base name", 1)
					}

					_, coordinator, err := newCoordinator(command)
					if err != nil {
						return err
					}

					report, err := coordinator.AnalyzeChanges(ctx, base, command.String("version"))
					if err != nil {
						return err
					}

					fmt.Println(report.Changelog)

					return nil
				},
			},
			{
				Name:      "tag",
				Usage:     "Create (and optionally push) the release tag",
				ArgsUsage: "baseName",
				Flags: append([]cli.Flag{
					&cli.StringFlag{
						Name:     "version",
						Usage:    "Version to tag",
						Required: true,
					},
					&cli.StringFlag{
						Name:    "message",
						Aliases: []string{"m"},
						Usage:   "Tag message",
					},
					&cli.BoolFlag{
						Name:  "push",
						Usage: "Push the tag to origin",
					},
				}, repoFlags...),
				Action: func(ctx context.Context, command *cli.Command) error {
					base := command.Args().First()
					if base == "" {
						return cli.Exit("tag requires a base name", 1)
					}

					_, coordinator, err := newCoordinator(command)
					if err != nil {
						return err
					}

					tag, err := coordinator.TagRelease(ctx, base,
						command.String("version"), command.String("message"), command.Bool("push"))
					if err != nil {
						return err
					}

					fmt.Println(tag)

					return nil
				},
			},
		},
	}
}
