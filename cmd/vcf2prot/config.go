package main

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/ikmb/vcf2prot/internal/exec"
)

// setting is one recognized key in ~/.vcf2prot.yaml. parse validates
// and converts the raw CLI string, so a bad value fails at `config set`
// time instead of mid-run.
type setting struct {
	usage string
	parse func(string) (any, error)
}

// settings are the run defaults the config file may carry. Each maps
// onto a flag or writer knob of the run: anything else is a typo and
// rejected.
var settings = map[string]setting{
	"backend": {
		usage: "execution backend used when -g is not given (stp, mtp or gpu)",
		parse: func(v string) (any, error) {
			if _, err := exec.New(v, nil); err != nil {
				return nil, err
			}
			return v, nil
		},
	},
	"cache": {
		usage: "DuckDB reference cache used when -c is not given",
		parse: func(v string) (any, error) { return v, nil },
	},
	"output_path": {
		usage: "results directory used when -o is not given",
		parse: func(v string) (any, error) { return v, nil },
	},
	"wrap": {
		usage: "FASTA sequence line width; 0 writes each sequence on one line",
		parse: func(v string) (any, error) {
			n, err := strconv.Atoi(v)
			if err != nil {
				return nil, fmt.Errorf("wrap must be an integer: %w", err)
			}
			if n < 0 {
				return nil, fmt.Errorf("wrap must not be negative, got %d", n)
			}
			return n, nil
		},
	},
}

func settingNames() []string {
	names := make([]string, 0, len(settings))
	for name := range settings {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func newConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Manage vcf2prot run defaults",
		Long:  "Show, get, or set run defaults. Config is stored in ~/.vcf2prot.yaml.",
		Example: `  vcf2prot config                  # show current settings
  vcf2prot config set backend gpu  # default execution backend
  vcf2prot config set wrap 60      # wrap output sequences at 60 columns
  vcf2prot config get backend`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runConfigShow()
		},
	}

	cmd.AddCommand(newConfigSetCmd())
	cmd.AddCommand(newConfigGetCmd())

	return cmd
}

func newConfigSetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "set <key> <value>",
		Short: "Set a run default",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runConfigSet(args[0], args[1])
		},
	}
}

func newConfigGetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "get <key>",
		Short: "Get a run default",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runConfigGet(args[0])
		},
	}
}

func runConfigShow() error {
	effective := make(map[string]any, len(settings))
	for _, key := range settingNames() {
		if v := viper.Get(key); v != nil {
			effective[key] = v
		}
	}
	if len(effective) == 0 {
		fmt.Println("# No settings stored. Config file: ~/.vcf2prot.yaml")
		for _, key := range settingNames() {
			fmt.Printf("#   %-12s %s\n", key, settings[key].usage)
		}
		return nil
	}

	out, err := yaml.Marshal(effective)
	if err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}
	fmt.Print(string(out))
	return nil
}

func runConfigSet(key, value string) error {
	s, ok := settings[key]
	if !ok {
		return fmt.Errorf("unknown setting %q (known settings: %s)", key, strings.Join(settingNames(), ", "))
	}
	v, err := s.parse(value)
	if err != nil {
		return fmt.Errorf("invalid value for %s: %w", key, err)
	}
	viper.Set(key, v)

	cfgFile := viper.ConfigFileUsed()
	if cfgFile == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return fmt.Errorf("cannot determine home directory: %w", err)
		}
		cfgFile = filepath.Join(home, ".vcf2prot.yaml")
	}

	if err := viper.WriteConfigAs(cfgFile); err != nil {
		return fmt.Errorf("writing config: %w", err)
	}

	fmt.Printf("Set %s = %v in %s\n", key, v, cfgFile)
	return nil
}

func runConfigGet(key string) error {
	if _, ok := settings[key]; !ok {
		return fmt.Errorf("unknown setting %q (known settings: %s)", key, strings.Join(settingNames(), ", "))
	}
	val := viper.Get(key)
	if val == nil {
		return fmt.Errorf("%s is not set", key)
	}
	fmt.Println(val)
	return nil
}
