package main

import (
	"fmt"
	"io"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/sells-group/upsell-cli/internal/metaobject"
	"github.com/sells-group/upsell-cli/internal/model"
)

var settingsCmd = &cobra.Command{
	Use:   "settings",
	Short: "Show or apply a shop's stored upsell settings",
}

// -- settings show --

var settingsShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the shop's settings as YAML (defaults when never saved)",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		api, shop, err := settingsAPI(cmd)
		if err != nil {
			return err
		}
		settings, err := metaobject.NewSettingsStore(api).Load(ctx)
		if err != nil {
			return eris.Wrapf(err, "settings show %s", shop)
		}
		return writeSettings(os.Stdout, settings)
	},
}

// -- settings apply --

var settingsApplyCmd = &cobra.Command{
	Use:   "apply <file.yaml>",
	Short: "Save settings from a YAML file; omitted keys keep their defaults",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		settings, err := readSettingsFile(args[0])
		if err != nil {
			return err
		}
		api, shop, err := settingsAPI(cmd)
		if err != nil {
			return err
		}
		if _, err := metaobject.EnsureDefinitions(ctx, api); err != nil {
			return eris.Wrapf(err, "settings apply %s", shop)
		}
		res, err := metaobject.NewSettingsStore(api).Save(ctx, settings)
		if err != nil {
			return eris.Wrapf(err, "settings apply %s", shop)
		}

		zap.L().Info("settings saved",
			zap.String("shop", shop),
			zap.String("metaobject_id", res.ID),
			zap.Bool("created", res.Created),
		)
		return writeSettings(os.Stdout, settings.Normalize())
	},
}

// -- definitions --

var definitionsCmd = &cobra.Command{
	Use:   "definitions",
	Short: "Create the upsell metaobject definitions in the shop when missing",
	RunE: func(cmd *cobra.Command, _ []string) error {
		api, shop, err := settingsAPI(cmd)
		if err != nil {
			return err
		}
		created, err := metaobject.EnsureDefinitions(cmd.Context(), api)
		if err != nil {
			return eris.Wrapf(err, "definitions %s", shop)
		}
		if len(created) == 0 {
			fmt.Fprintln(os.Stderr, "All definitions already exist.")
			return nil
		}
		for _, typ := range created {
			fmt.Fprintf(os.Stdout, "created %s\n", typ)
		}
		return nil
	},
}

func init() {
	for _, c := range []*cobra.Command{settingsShowCmd, settingsApplyCmd, definitionsCmd} {
		c.Flags().String("shop", "", "shop domain (default: the only configured shop)")
	}
	settingsCmd.AddCommand(settingsShowCmd)
	settingsCmd.AddCommand(settingsApplyCmd)
	rootCmd.AddCommand(settingsCmd)
	rootCmd.AddCommand(definitionsCmd)
}

func settingsAPI(cmd *cobra.Command) (metaobject.API, string, error) {
	if err := cfg.Validate("process"); err != nil {
		return nil, "", err
	}
	flag, _ := cmd.Flags().GetString("shop")
	shop, err := defaultShop(flag)
	if err != nil {
		return nil, "", err
	}
	api, err := newShopClients().Get(shop)
	if err != nil {
		return nil, "", err
	}
	return api, shop, nil
}

// readSettingsFile decodes a YAML settings file over the defaults.
func readSettingsFile(path string) (model.StoredConfig, error) {
	f, err := os.Open(path)
	if err != nil {
		return model.StoredConfig{}, eris.Wrap(err, "settings: open file")
	}
	defer f.Close() //nolint:errcheck
	return decodeSettings(f)
}

func decodeSettings(r io.Reader) (model.StoredConfig, error) {
	settings := model.DefaultStoredConfig()
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&settings); err != nil && err != io.EOF {
		return model.StoredConfig{}, eris.Wrap(err, "settings: decode yaml")
	}
	return settings, nil
}

func writeSettings(w io.Writer, settings model.StoredConfig) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(settings); err != nil {
		return eris.Wrap(err, "settings: encode yaml")
	}
	return enc.Close()
}
