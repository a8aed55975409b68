package cmd

import (
	"context"
	"os"

	"github.com/steipete/vacationcal/internal/config"
	"github.com/steipete/vacationcal/internal/outfmt"
	"github.com/steipete/vacationcal/internal/ui"
)

// ConfigCmd edits the defaults create and update fall back to.
type ConfigCmd struct {
	Get   ConfigGetCmd   `cmd:"" aliases:"show" help:"Get a config value"`
	Keys  ConfigKeysCmd  `cmd:"" aliases:"list-keys,names" help:"List available config keys"`
	Set   ConfigSetCmd   `cmd:"" aliases:"add,update" help:"Set a config value"`
	Unset ConfigUnsetCmd `cmd:"" aliases:"rm,del,remove" help:"Unset a config value"`
	List  ConfigListCmd  `cmd:"" aliases:"ls,all" help:"List all config values"`
	Path  ConfigPathCmd  `cmd:"" aliases:"where" help:"Print config file path"`
}

const notSetHint = "(not set)"

// displayValue renders a stored value, or the key's default hint when empty.
func displayValue(cfg config.File, key config.Key) string {
	if v := config.GetValue(cfg, key); v != "" {
		return v
	}
	if spec, err := config.KeySpecFor(key); err == nil && spec.EmptyHint != nil {
		return spec.EmptyHint()
	}
	return notSetHint
}

// editConfig loads the file, applies fn and writes it back unless this is a
// dry run, in which case the validated change is reported instead.
func editConfig(ctx context.Context, flags *RootFlags, op string, key config.Key, fn func(*config.File) error) error {
	cfg, err := config.ReadConfig()
	if err != nil {
		return err
	}
	if err := fn(&cfg); err != nil {
		return usage(err.Error())
	}
	if err := dryRunExit(ctx, flags, op, map[string]any{
		"key":   key.String(),
		"value": config.GetValue(cfg, key),
	}); err != nil {
		return err
	}
	return config.WriteConfig(cfg)
}

func parseConfigKey(raw string) (config.Key, error) {
	key, err := config.ParseKey(raw)
	if err != nil {
		return "", usage(err.Error())
	}
	return key, nil
}

type ConfigGetCmd struct {
	Key string `arg:"" help:"Config key (see: vacal config keys)"`
}

func (c *ConfigGetCmd) Run(ctx context.Context) error {
	key, err := parseConfigKey(c.Key)
	if err != nil {
		return err
	}
	cfg, err := config.ReadConfig()
	if err != nil {
		return err
	}
	if outfmt.IsJSON(ctx) {
		return outfmt.WriteJSON(ctx, os.Stdout, outfmt.KeyValuePayload(key.String(), config.GetValue(cfg, key)))
	}
	_, err = os.Stdout.WriteString(displayValue(cfg, key) + "\n")
	return err
}

type ConfigKeysCmd struct{}

func (c *ConfigKeysCmd) Run(ctx context.Context) error {
	if outfmt.IsJSON(ctx) {
		return outfmt.WriteJSON(ctx, os.Stdout, outfmt.KeysPayload(config.KeyNames()))
	}
	tbl := outfmt.NewTable(ctx, os.Stdout)
	for _, key := range config.KeyList() {
		spec, _ := config.KeySpecFor(key)
		tbl.Row(key, spec.Help)
	}
	return tbl.Flush()
}

type ConfigSetCmd struct {
	Key   string `arg:"" help:"Config key (see: vacal config keys)"`
	Value string `arg:"" help:"Value to set"`
}

func (c *ConfigSetCmd) Run(ctx context.Context, flags *RootFlags) error {
	key, err := parseConfigKey(c.Key)
	if err != nil {
		return err
	}
	var stored string
	err = editConfig(ctx, flags, "config.set", key, func(cfg *config.File) error {
		if err := config.SetValue(cfg, key, c.Value); err != nil {
			return err
		}
		stored = config.GetValue(*cfg, key)
		return nil
	})
	if err != nil {
		return err
	}

	if outfmt.IsJSON(ctx) {
		payload := outfmt.KeyValuePayload(key.String(), stored)
		payload["saved"] = true
		return outfmt.WriteJSON(ctx, os.Stdout, payload)
	}
	ui.FromContext(ctx).Out().Successf("Set %s = %s", key, stored)
	return nil
}

type ConfigUnsetCmd struct {
	Key string `arg:"" help:"Config key (see: vacal config keys)"`
}

func (c *ConfigUnsetCmd) Run(ctx context.Context, flags *RootFlags) error {
	key, err := parseConfigKey(c.Key)
	if err != nil {
		return err
	}
	err = editConfig(ctx, flags, "config.unset", key, func(cfg *config.File) error {
		return config.UnsetValue(cfg, key)
	})
	if err != nil {
		return err
	}

	if outfmt.IsJSON(ctx) {
		payload := outfmt.KeyValuePayload(key.String(), "")
		payload["removed"] = true
		return outfmt.WriteJSON(ctx, os.Stdout, payload)
	}
	ui.FromContext(ctx).Out().Printf("Unset %s", key)
	return nil
}

type ConfigListCmd struct{}

func (c *ConfigListCmd) Run(ctx context.Context) error {
	cfg, err := config.ReadConfig()
	if err != nil {
		return err
	}
	path, _ := config.ConfigPath()

	if outfmt.IsJSON(ctx) {
		payload := outfmt.PathPayload(path)
		for _, key := range config.KeyList() {
			payload[key.String()] = config.GetValue(cfg, key)
		}
		return outfmt.WriteJSON(ctx, os.Stdout, payload)
	}

	out := ui.FromContext(ctx).Out()
	if !outfmt.IsPlain(ctx) {
		out.Printf("Config file: %s", path)
	}
	for _, key := range config.KeyList() {
		out.Printf("%s: %s", key, displayValue(cfg, key))
	}
	return nil
}

type ConfigPathCmd struct{}

func (c *ConfigPathCmd) Run(ctx context.Context) error {
	path, err := config.ConfigPath()
	if err != nil {
		return err
	}
	if outfmt.IsJSON(ctx) {
		return outfmt.WriteJSON(ctx, os.Stdout, outfmt.PathPayload(path))
	}
	_, err = os.Stdout.WriteString(path + "\n")
	return err
}
