package main

import (
	"context"
	"fmt"
	"os"

	"github.com/olekukonko/tablewriter"
	cli "github.com/urfave/cli/v3"

	"github.com/VictorNov/n8n-ci-cd/pkg/models"
)

func environmentFlag() *cli.StringFlag {
	return &cli.StringFlag{
		Name:    "env",
		Aliases: []string{"e"},
		Usage:   "Target environment (dev, prod)",
		Value:   "dev",
	}
}

func versionFlag() *cli.StringFlag {
	return &cli.StringFlag{
		Name:  "version",
		Usage: "Version stamp to inject, e.g. v1.2.0",
	}
}

func exportCommand() *cli.Command {
	return &cli.Command{
		Name:      "export",
		Usage:     "Export workflows from n8n to local files",
		ArgsUsage: "[baseName ...]",
		Flags:     []cli.Flag{environmentFlag()},
		Action: func(ctx context.Context, command *cli.Command) error {
			a, err := newApp(command)
			if err != nil {
				return err
			}

			env := models.Environment(command.String("env"))

			results, summary, err := a.promote.Export(ctx, env, command.Args().Slice())
			if err != nil {
				return err
			}

			printOutcomes(summary, exportRows(results))

			if summary.Failed > 0 {
				return cli.Exit("export finished with failures", 1)
			}

			return nil
		},
	}
}

func importCommand() *cli.Command {
	return &cli.Command{
		Name:      "import",
		Usage:     "Import exported workflow files back into an environment",
		ArgsUsage: "[baseName ...]",
		Flags:     []cli.Flag{environmentFlag(), versionFlag()},
		Action: func(ctx context.Context, command *cli.Command) error {
			a, err := newApp(command)
			if err != nil {
				return err
			}

			env := models.Environment(command.String("env"))

			results, summary, err := a.promote.Import(ctx, env, command.Args().Slice(), command.String("version"))
			if err != nil {
				return err
			}

			printOutcomes(summary, importRows(results))

			if summary.Failed > 0 {
				return cli.Exit("import finished with failures", 1)
			}

			return nil
		},
	}
}

func deployCommand() *cli.Command {
	return &cli.Command{
		Name:      "deploy",
		Usage:     "Promote exported dev workflows to prod",
		ArgsUsage: "baseName [baseName ...]",
		Flags:     []cli.Flag{versionFlag()},
		Action: func(ctx context.Context, command *cli.Command) error {
			a, err := newApp(command)
			if err != nil {
				return err
			}

			results, summary, err := a.promote.Deploy(ctx, command.Args().Slice(), command.String("version"))
			if err != nil {
				return err
			}

			printOutcomes(summary, deployRows(results))

			if summary.Failed > 0 {
				return cli.Exit("deploy finished with failures", 1)
			}

			return nil
		},
	}
}

func listCommand() *cli.Command {
	return &cli.Command{
		Name:  "list",
		Usage: "List workflows on the n8n instance",
		Action: func(ctx context.Context, command *cli.Command) error {
			a, err := newApp(command)
			if err != nil {
				return err
			}

			summaries, err := a.client.ListAll(ctx)
			if err != nil {
				return err
			}

			table := tablewriter.NewWriter(os.Stdout)
			table.SetHeader([]string{"NAME", "BASE NAME", "ENV", "ACTIVE", "UPDATED"})

			for _, s := range summaries {
				table.Append([]string{
					s.Name,
					a.codec.BaseName(s.Name),
					string(a.codec.EnvironmentOf(s.Name)),
					fmt.Sprintf("%t", s.Active),
					s.UpdatedAt,
				})
			}

			table.Render()

			return nil
		},
	}
}

func statusCommand() *cli.Command {
	return &cli.Command{
		Name:  "status",
		Usage: "Show remote presence of every managed workflow per environment",
		Action: func(ctx context.Context, command *cli.Command) error {
			a, err := newApp(command)
			if err != nil {
				return err
			}

			summaries, err := a.client.ListAll(ctx)
			if err != nil {
				return err
			}

			remote := make(map[string]models.WorkflowSummary, len(summaries))
			for _, s := range summaries {
				remote[s.Name] = s
			}

			table := tablewriter.NewWriter(os.Stdout)
			table.SetHeader([]string{"BASE NAME", "ENV", "REMOTE", "ACTIVE"})

			for _, managed := range a.cfg.Workflows {
				for _, env := range managed.Environments {
					display, err := a.codec.DisplayName(managed.BaseName, env)
					if err != nil {
						return err
					}

					presence, active := "missing", "-"
					if s, ok := remote[display]; ok {
						presence = "present"
						active = fmt.Sprintf("%t", s.Active)
					}

					table.Append([]string{managed.BaseName, string(env), presence, active})
				}
			}

			table.Render()

			return nil
		},
	}
}

func printOutcomes(summary models.BatchSummary, rows [][]string) {
	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader([]string{"NAME", "ACTION", "STATUS", "DETAIL"})

	for _, row := range rows {
		table.Append(row)
	}

	table.Render()
	fmt.Printf("Total: %d, success: %d, failed: %d\n", summary.Total, summary.Success, summary.Failed)
}

func exportRows(results []models.ExportResult) [][]string {
	rows := make([][]string, 0, len(results))
	for _, r := range results {
		rows = append(rows, []string{r.Name, "export", r.Status, firstNonEmpty(r.Error, r.FileName)})
	}

	return rows
}

func importRows(results []models.ImportResult) [][]string {
	rows := make([][]string, 0, len(results))
	for _, r := range results {
		rows = append(rows, []string{r.BaseName, r.Action, r.Status, firstNonEmpty(r.Error, r.Name)})
	}

	return rows
}

func deployRows(results []models.DeployResult) [][]string {
	rows := make([][]string, 0, len(results))
	for _, r := range results {
		rows = append(rows, []string{r.BaseName, r.Action, r.Status, firstNonEmpty(r.Error, r.ProdName)})
	}

	return rows
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}

	return ""
}
