package main

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/spf13/cobra"

	"episodic/internal/config"
	"episodic/internal/download"
	"episodic/internal/engine"
	"episodic/internal/ledger"
	"episodic/internal/logging"
	"episodic/internal/metrics"
	"episodic/internal/processing"
)

type commandContext struct {
	configFlag   *string
	logLevelFlag *string

	configOnce sync.Once
	config     *config.Config
	configErr  error

	loggerOnce sync.Once
	logger     *slog.Logger
	loggerErr  error

	ledger  *ledger.Store
	metrics *metrics.Metrics
}

func newCommandContext(configFlag, logLevelFlag *string) *commandContext {
	return &commandContext{
		configFlag:   configFlag,
		logLevelFlag: logLevelFlag,
	}
}

func (c *commandContext) ensureConfig() (*config.Config, error) {
	c.configOnce.Do(func() {
		var path string
		if c.configFlag != nil {
			path = strings.TrimSpace(*c.configFlag)
		}
		cfg, _, _, err := config.Load(path)
		if err != nil {
			c.configErr = err
			return
		}
		if c.logLevelFlag != nil && strings.TrimSpace(*c.logLevelFlag) != "" {
			cfg.Logging.Level = strings.ToLower(strings.TrimSpace(*c.logLevelFlag))
		}
		if err := cfg.EnsureDirectories(); err != nil {
			c.configErr = err
			return
		}
		c.config = cfg
	})
	return c.config, c.configErr
}

func (c *commandContext) configValue() *config.Config {
	cfg, _ := c.ensureConfig()
	return cfg
}

func (c *commandContext) ensureLogger() (*slog.Logger, error) {
	c.loggerOnce.Do(func() {
		cfg, err := c.ensureConfig()
		if err != nil {
			c.loggerErr = err
			return
		}
		c.logger, c.loggerErr = logging.NewFromConfig(cfg)
	})
	return c.logger, c.loggerErr
}

func (c *commandContext) processor() (*processing.Processor, error) {
	cfg, err := c.ensureConfig()
	if err != nil {
		return nil, err
	}
	logger, err := c.ensureLogger()
	if err != nil {
		return nil, err
	}
	eng := engine.New(engine.Options{
		FFmpegBinary:  cfg.Engine.FFmpegBinary,
		FFprobeBinary: cfg.Engine.FFprobeBinary,
		Timeout:       time.Duration(cfg.Engine.TimeoutSeconds) * time.Second,
		Logger:        logger,
	})
	return processing.New(eng, processing.OptionsFromConfig(cfg), logger), nil
}

func (c *commandContext) fetcher() download.Fetcher {
	cfg := c.configValue()
	return download.NewHTTPFetcher(time.Duration(cfg.Download.TimeoutSeconds)*time.Second, cfg.Download.UserAgent)
}

func (c *commandContext) mirror() download.Mirror {
	cfg := c.configValue()
	return download.Mirror{Host: cfg.Download.MirrorHost, Base: cfg.Download.MirrorBase}
}

// openLedger opens the run ledger once per invocation.
func (c *commandContext) openLedger() (*ledger.Store, error) {
	if c.ledger != nil {
		return c.ledger, nil
	}
	cfg, err := c.ensureConfig()
	if err != nil {
		return nil, err
	}
	store, err := ledger.Open(cfg)
	if err != nil {
		return nil, fmt.Errorf("open run ledger: %w", err)
	}
	c.ledger = store
	return store, nil
}

// metricsValue returns the process metrics, or nil when export is disabled.
func (c *commandContext) metricsValue() *metrics.Metrics {
	cfg := c.configValue()
	if cfg == nil || !cfg.Metrics.Enabled {
		return nil
	}
	if c.metrics == nil {
		c.metrics = metrics.New()
	}
	return c.metrics
}

// withResources runs fn and then flushes metrics and releases the ledger,
// whether or not fn failed.
func (c *commandContext) withResources(fn func() error) (err error) {
	defer func() {
		err = errors.Join(err, c.close())
	}()
	return fn()
}

func (c *commandContext) close() error {
	var errs []error
	if c.metrics != nil {
		if err := c.metrics.WriteTextfile(c.config.Metrics.TextfilePath); err != nil {
			errs = append(errs, err)
		}
	}
	if c.ledger != nil {
		if err := c.ledger.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close run ledger: %w", err))
		}
		c.ledger = nil
	}
	return errors.Join(errs...)
}

func shouldSkipConfig(cmd *cobra.Command) bool {
	for c := cmd; c != nil; c = c.Parent() {
		if c.Annotations != nil && c.Annotations[skipConfigLoad] == "true" {
			return true
		}
	}
	return false
}

func yesNo(value bool) string {
	if value {
		return "yes"
	}
	return "no"
}
