package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/olekukonko/tablewriter"
	cli "github.com/urfave/cli/v3"

	"github.com/VictorNov/n8n-ci-cd/pkg/audit"
	"github.com/VictorNov/n8n-ci-cd/pkg/backup"
	"github.com/VictorNov/n8n-ci-cd/pkg/models"
)

func backupCommand() *cli.Command {
	return &cli.Command{
		Name:  "backup",
		Usage: "Create a timestamped backup of an environment's managed workflows",
		Flags: []cli.Flag{
			environmentFlag(),
			&cli.StringFlag{
				Name:  "name",
				Usage: "Custom backup name (defaults to backup_<env>_<timestamp>)",
			},
		},
		Commands: []*cli.Command{backupScheduleCommand()},
		Action: func(ctx context.Context, command *cli.Command) error {
			a, err := newApp(command)
			if err != nil {
				return err
			}

			env := models.Environment(command.String("env"))

			manifest, err := a.backup.CreateBackup(ctx, env, command.String("name"))
			if err != nil {
				return err
			}

			fmt.Printf("Backup %s created: %d workflows, %d failed\n",
				manifest.BackupName, manifest.WorkflowCount, manifest.FailedCount)

			if manifest.FailedCount > 0 {
				return cli.Exit("backup finished with failures", 1)
			}

			return nil
		},
	}
}

func backupScheduleCommand() *cli.Command {
	return &cli.Command{
		Name:  "schedule",
		Usage: "Run unattended periodic backups until interrupted",
		Flags: []cli.Flag{
			environmentFlag(),
			&cli.StringFlag{
				Name:  "cron",
				Usage: "Cron spec for the backup job",
				Value: "0 3 * * *",
			},
		},
		Action: func(ctx context.Context, command *cli.Command) error {
			a, err := newApp(command)
			if err != nil {
				return err
			}

			env := models.Environment(command.String("env"))
			scheduler := backup.NewScheduler(a.backup, a.logger)

			if err := scheduler.Start(ctx, command.String("cron"), env); err != nil {
				return err
			}

			stop := make(chan os.Signal, 1)
			signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
			<-stop

			scheduler.Stop()

			return nil
		},
	}
}

func listBackupsCommand() *cli.Command {
	return &cli.Command{
		Name:  "list-backups",
		Usage: "List backups, newest first",
		Action: func(ctx context.Context, command *cli.Command) error {
			a, err := newApp(command)
			if err != nil {
				return err
			}

			infos, err := a.backup.ListBackups()
			if err != nil {
				return err
			}

			table := tablewriter.NewWriter(os.Stdout)
			table.SetHeader([]string{"NAME", "CREATED", "WORKFLOWS"})

			for _, info := range infos {
				table.Append([]string{
					info.Name,
					info.CreatedAt.Format("2006-01-02 15:04:05"),
					fmt.Sprintf("%d", info.WorkflowCount),
				})
			}

			table.Render()

			return nil
		},
	}
}

func restoreCommand() *cli.Command {
	return &cli.Command{
		Name:      "restore",
		Usage:     "Restore a backup's workflows to the n8n instance",
		ArgsUsage: "backupName [baseName ...]",
		Action: func(ctx context.Context, command *cli.Command) error {
			args := command.Args().Slice()
			if len(args) == 0 {
				return cli.Exit("restore requires a backup name", 1)
			}

			a, err := newApp(command)
			if err != nil {
				return err
			}

			summary, err := a.backup.RestoreFromBackup(ctx, args[0], args[1:])
			if err != nil {
				return err
			}

			rows := make([][]string, 0, len(summary.Workflows))
			for _, r := range summary.Workflows {
				rows = append(rows, []string{r.Name, r.Action, r.Status, firstNonEmpty(r.Error, r.FileName)})
			}

			printOutcomes(summary.Summary, rows)

			if summary.Summary.Failed > 0 {
				return cli.Exit("restore finished with failures", 1)
			}

			return nil
		},
	}
}

func cleanupBackupsCommand() *cli.Command {
	return &cli.Command{
		Name:  "cleanup-backups",
		Usage: "Delete backups beyond the retention count",
		Flags: []cli.Flag{
			&cli.IntFlag{
				Name:  "keep",
				Usage: "Number of newest backups to keep (defaults to maxBackupsToKeep)",
				Value: -1,
			},
		},
		Action: func(ctx context.Context, command *cli.Command) error {
			a, err := newApp(command)
			if err != nil {
				return err
			}

			keep := int(command.Int("keep"))
			if keep < 0 {
				keep = a.cfg.Settings.MaxBackupsToKeep
			}

			removed, err := a.backup.CleanupOldBackups(keep)
			if err != nil {
				return err
			}

			fmt.Printf("Removed %d backups\n", len(removed))

			for _, name := range removed {
				fmt.Println(" -", name)
			}

			return nil
		},
	}
}

func verifyCommand() *cli.Command {
	return &cli.Command{
		Name:      "verify",
		Usage:     "Verify a backup's structural integrity",
		ArgsUsage: "backupName",
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:  "all",
				Usage: "Verify every backup",
			},
		},
		Action: func(ctx context.Context, command *cli.Command) error {
			a, err := newApp(command)
			if err != nil {
				return err
			}

			var targets []string

			if command.Bool("all") {
				infos, err := a.backup.ListBackups()
				if err != nil {
					return err
				}

				for _, info := range infos {
					targets = append(targets, info.Name)
				}
			} else {
				targets = command.Args().Slice()
			}

			if len(targets) == 0 {
				return cli.Exit("verify requires a backup name or --all", 1)
			}

			failed := false

			for _, name := range targets {
				report, err := a.auditor.Verify(name)
				if err != nil {
					return err
				}

				printVerifyReport(report)

				if !report.Passed {
					failed = true
				}
			}

			if failed {
				return cli.Exit("verification failed", 1)
			}

			return nil
		},
	}
}

func printVerifyReport(report *audit.VerifyReport) {
	fmt.Printf("Backup %s (%d files)\n", report.BackupName, report.FileCount)

	for _, e := range report.Errors {
		fmt.Println("  ERROR:", e)
	}

	for _, w := range report.Warnings {
		fmt.Println("  WARNING:", w)
	}

	if report.Passed {
		fmt.Println("  PASS")
	} else {
		fmt.Println("  FAIL")
	}
}

func compareCommand() *cli.Command {
	return &cli.Command{
		Name:      "compare",
		Usage:     "Structurally compare two backups",
		ArgsUsage: "backupA backupB",
		Action: func(ctx context.Context, command *cli.Command) error {
			args := command.Args().Slice()
			if len(args) != 2 {
				return cli.Exit("compare requires exactly two backup names", 1)
			}

			a, err := newApp(command)
			if err != nil {
				return err
			}

			report, err := a.auditor.Compare(args[0], args[1])
			if err != nil {
				return err
			}

			for _, f := range report.OnlyInA {
				fmt.Printf("only in %s: %s\n", report.BackupA, f)
			}

			for _, f := range report.OnlyInB {
				fmt.Printf("only in %s: %s\n", report.BackupB, f)
			}

			for _, changed := range report.Changed {
				fmt.Println(changed.File + ":")

				for _, d := range changed.Differences {
					fmt.Printf("  %s: %s -> %s\n", d.Type, d.From, d.To)
				}
			}

			if report.Identical {
				fmt.Println("Backups are identical")

				return nil
			}

			return cli.Exit("backups differ", 1)
		},
	}
}
