package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"

	"github.com/gofrs/flock"
	"github.com/spf13/cobra"

	"github.com/JonMunkholm/reviewflow/internal/application"
	"github.com/JonMunkholm/reviewflow/internal/config"
	"github.com/JonMunkholm/reviewflow/internal/core"
	"github.com/JonMunkholm/reviewflow/internal/logging"
)

type commandContext struct {
	outputFlag *string

	configOnce sync.Once
	config     *config.Config
	configErr  error
}

func newCommandContext(outputFlag *string) *commandContext {
	return &commandContext{outputFlag: outputFlag}
}

func (c *commandContext) ensureConfig() (*config.Config, error) {
	c.configOnce.Do(func() {
		cfg, err := config.Load()
		if err != nil {
			c.configErr = err
			return
		}
		logging.SetupWriter(os.Stderr, cfg.Logging.Level, cfg.Logging.Format)
		c.config = cfg
	})
	return c.config, c.configErr
}

// withApp opens the database and service for the duration of fn. The
// context passed to fn marks work as started from the CLI.
func (c *commandContext) withApp(cmd *cobra.Command, fn func(ctx context.Context, app *application.App) error) error {
	cfg, err := c.ensureConfig()
	if err != nil {
		return err
	}
	ctx := core.ContextWithTrigger(cmd.Context(), core.TriggerCLI)

	app, err := application.Open(ctx, cfg)
	if err != nil {
		return err
	}
	defer app.Close()
	return fn(ctx, app)
}

// withBatchLock is withApp holding the pipeline lock file. A second batch
// invocation fails fast instead of waiting.
func (c *commandContext) withBatchLock(cmd *cobra.Command, fn func(ctx context.Context, app *application.App) error) error {
	cfg, err := c.ensureConfig()
	if err != nil {
		return err
	}

	lock := flock.New(cfg.Pipeline.LockFile)
	ok, err := lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return errors.New("another reviewflow batch run is already in progress (lock " + cfg.Pipeline.LockFile + ")")
	}
	defer func() { _ = lock.Unlock() }()

	return c.withApp(cmd, fn)
}

func (c *commandContext) output() string {
	if c.outputFlag == nil {
		return outputAuto
	}
	return *c.outputFlag
}
