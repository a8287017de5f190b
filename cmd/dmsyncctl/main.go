package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/matheus3301/dmsync/internal/client"
	"github.com/matheus3301/dmsync/internal/config"
	"github.com/matheus3301/dmsync/internal/instance"
	"github.com/matheus3301/dmsync/internal/lock"
	"github.com/matheus3301/dmsync/internal/logging"
	"github.com/matheus3301/dmsync/internal/model"
)

// UIDEnv supplies --as when the flag is not given.
const UIDEnv = "DMSYNC_UID"

var (
	flagInstance string
	flagAddr     string
	flagAs       string
	flagJSON     bool
	flagVerbose  bool
)

var rootCmd = &cobra.Command{
	Use:           "dmsyncctl",
	Short:         "Control and inspect a dmsync daemon",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if flagAs == "" {
			flagAs = os.Getenv(UIDEnv)
		}
		return instance.ValidateName(instance.Resolve(flagInstance))
	},
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVar(&flagInstance, "instance", "", "instance name (overrides config default)")
	pf.StringVar(&flagAddr, "addr", "", "daemon base URL (default: from the running instance or config)")
	pf.StringVar(&flagAs, "as", "", "act as this participant id (or $"+UIDEnv+")")
	pf.BoolVar(&flagJSON, "json", false, "output in JSON format")
	pf.BoolVarP(&flagVerbose, "verbose", "v", false, "log debug output to stderr")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(exitCode(err))
	}
}

func exitCode(err error) int {
	switch {
	case errors.Is(err, model.ErrInvalid):
		return 2
	case errors.Is(err, model.ErrNotFound):
		return 3
	case errors.Is(err, model.ErrTransient):
		return 4
	default:
		return 1
	}
}

// baseURL resolves the daemon address: --addr, then the running instance's
// lock file, then the configured listen address.
func baseURL() string {
	if flagAddr != "" {
		return flagAddr
	}
	name := instance.Resolve(flagInstance)
	if info, ok := lock.Read(instance.Dir(name)); ok && info.Addr != "" {
		return "http://" + info.Addr
	}
	cfg, err := config.LoadOrDefault(instance.ConfigPath())
	if err != nil {
		cfg = config.Config{}.WithDefaults()
	}
	return "http://" + cfg.ListenAddr
}

func newClient() *client.Client {
	return client.New(baseURL(), flagAs)
}

func requireIdentity() error {
	if flagAs == "" {
		return fmt.Errorf("no identity: pass --as or set %s: %w", UIDEnv, model.ErrInvalid)
	}
	return nil
}

func newLogger() *zap.Logger {
	return logging.NewConsole(flagVerbose)
}

func timeout() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), 10*time.Second)
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
