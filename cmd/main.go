package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"

	"atlasbackup/internal/app"
	"atlasbackup/internal/apperr"
	"atlasbackup/internal/atlassian"
	"atlasbackup/internal/config"
	"atlasbackup/internal/logger"
	"atlasbackup/internal/progress"
	"atlasbackup/internal/wizard"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var configFile string

var rootCmd = &cobra.Command{
	Use:           "atlasbackup",
	Short:         "Back up Atlassian Cloud Confluence and Jira sites",
	Long:          `Triggers a vendor-side backup export, waits for it to finish, then downloads the archive locally and/or streams it to S3-compatible storage.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

var wizardCmd = &cobra.Command{
	Use:   "wizard",
	Short: "Interactively create the configuration file",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		path := configFile
		if path == "" {
			path = config.DefaultFile
		}
		return wizard.Run(path)
	},
}

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "List recent backup runs",
	Args:  cobra.NoArgs,
	RunE:  runHistory,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "config file (default is ./config.yaml)")
	rootCmd.PersistentFlags().String("log-level", "info", "Log level (debug/info/warn/error)")

	historyCmd.Flags().Int("limit", 20, "Number of runs to show")

	rootCmd.AddCommand(wizardCmd, historyCmd, backupCmd(atlassian.Confluence), backupCmd(atlassian.Jira))
}

func backupCmd(product atlassian.Product) *cobra.Command {
	return &cobra.Command{
		Use:   string(product),
		Short: fmt.Sprintf("Run a %s backup", product),
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runBackup(cmd, product)
		},
	}
}

func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg, err := config.Load(configFile, cmd.Flags())
	if err != nil {
		return nil, apperr.New(apperr.KindConfig, "load configuration", err)
	}
	return cfg, nil
}

func runBackup(cmd *cobra.Command, product atlassian.Product) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	log, err := logger.New(cfg.LogLevel)
	if err != nil {
		return apperr.New(apperr.KindConfig, "initialize logger", err)
	}
	defer log.Sync()

	var opts []app.Option
	if progress.IsTerminalSupported() {
		opts = append(opts, app.WithProgressOutput(os.Stdout))
	}

	backup, err := app.New(cfg, log, opts...)
	if err != nil {
		return err
	}

	// Setup graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	go func() {
		select {
		case <-sigChan:
			log.Info("Received shutdown signal, stopping...")
			cancel()
		case <-ctx.Done():
		}
	}()

	_, err = backup.Run(ctx, product)

	if closeErr := backup.Close(); closeErr != nil {
		log.Error("Error closing history store", zap.Error(closeErr))
	}

	return err
}

func runHistory(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	limit, _ := cmd.Flags().GetInt("limit")
	runs, err := app.ListHistory(cfg, limit)
	if err != nil {
		return apperr.New(apperr.KindStorage, "read history", err)
	}

	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "STARTED\tPRODUCT\tSTATUS\tFILE\tSIZE\tERROR")
	for _, r := range runs {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n",
			r.StartedAt.Local().Format("2006-01-02 15:04"),
			r.Product,
			r.Status,
			r.Filename,
			progress.FormatBytes(r.Size),
			r.LastError,
		)
	}
	return w.Flush()
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(apperr.ExitCode(err))
	}
}
