package main

import (
	"log/slog"

	cli "github.com/urfave/cli/v3"

	"github.com/VictorNov/n8n-ci-cd/pkg/audit"
	"github.com/VictorNov/n8n-ci-cd/pkg/backup"
	"github.com/VictorNov/n8n-ci-cd/pkg/config"
	"github.com/VictorNov/n8n-ci-cd/pkg/inject"
	"github.com/VictorNov/n8n-ci-cd/pkg/log"
	"github.com/VictorNov/n8n-ci-cd/pkg/n8n"
	"github.com/VictorNov/n8n-ci-cd/pkg/names"
	"github.com/VictorNov/n8n-ci-cd/pkg/promote"
)

// app wires the engines together for one CLI invocation.
type app struct {
	cfg     *config.Config
	codec   *names.Codec
	client  n8n.Client
	promote *promote.Engine
	backup  *backup.Engine
	auditor *audit.Auditor
	logger  *slog.Logger
}

func newApp(command *cli.Command) (*app, error) {
	cfg, err := config.Load(command.String("config"))
	if err != nil {
		return nil, err
	}

	codec, err := cfg.Codec()
	if err != nil {
		return nil, err
	}

	logger := log.WithModule("cicd")
	client := n8n.NewHTTPClient(cfg.Settings.BaseURL, cfg.Settings.APIKey, logger)
	injector := inject.NewInjector(cfg, logger)

	promoteEngine := promote.NewEngine(cfg, client, codec, injector, logger)
	backupEngine := backup.NewEngine(cfg, client, codec, promoteEngine, logger)
	promoteEngine.WithBackupHook(backupEngine)

	auditor, err := audit.NewAuditor(cfg.Settings.BackupsDir, logger)
	if err != nil {
		return nil, err
	}

	return &app{
		cfg:     cfg,
		codec:   codec,
		client:  client,
		promote: promoteEngine,
		backup:  backupEngine,
		auditor: auditor,
		logger:  logger,
	}, nil
}
