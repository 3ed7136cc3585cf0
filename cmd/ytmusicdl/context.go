package main

import (
	"fmt"
	"strings"
	"sync"

	"github.com/spf13/cobra"

	"ytmusicdl/internal/api"
	"ytmusicdl/internal/config"
)

type commandContext struct {
	configFlag   *string
	logLevelFlag *string

	configOnce sync.Once
	config     *config.Config
	configErr  error
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
		if err := cfg.EnsureDirectories(); err != nil {
			c.configErr = err
			return
		}
		c.config = cfg
	})
	return c.config, c.configErr
}

func (c *commandContext) configPath() string {
	if c.configFlag == nil {
		return ""
	}
	return strings.TrimSpace(*c.configFlag)
}

func (c *commandContext) logLevel() string {
	if c.logLevelFlag == nil {
		return ""
	}
	return strings.ToLower(strings.TrimSpace(*c.logLevelFlag))
}

// apiClient targets override when set, else the manager's bind address.
func (c *commandContext) apiClient(override string) (*api.Client, string, error) {
	cfg, err := c.ensureConfig()
	if err != nil {
		return nil, "", err
	}
	address := strings.TrimSpace(override)
	if address == "" {
		address = cfg.Manager.Bind
	}
	client, err := api.NewClient(address, cfg.Manager.AdminToken)
	if err != nil {
		return nil, address, fmt.Errorf("manager address %q: %w", address, err)
	}
	if client == nil {
		return nil, address, fmt.Errorf("manager address not configured")
	}
	return client, address, nil
}

func wrapAPIError(err error, address string) error {
	if api.IsAPIUnavailable(err) {
		return fmt.Errorf("connect to manager at %s: %w; start it with `ytmusicdl manager`", address, err)
	}
	return err
}

func shouldSkipConfig(cmd *cobra.Command) bool {
	for c := cmd; c != nil; c = c.Parent() {
		if c.Annotations != nil && c.Annotations["skipConfigLoad"] == "true" {
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
