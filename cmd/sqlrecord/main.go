// Copyright 2024 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

// Command sqlrecord renders and installs the tables declared in a schema
// file.
package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/canonical/sqlrecord"
	"github.com/canonical/sqlrecord/config"
	"github.com/canonical/sqlrecord/conn"
	"github.com/canonical/sqlrecord/dialect"
	"github.com/canonical/sqlrecord/internal/schemafile"
)

func main() {
	if err := newRootCmd(os.Stdout, os.Stderr).Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCmd(stdout, stderr io.Writer) *cobra.Command {
	root := &cobra.Command{
		Use:           "sqlrecord",
		Short:         "Render and install sqlrecord schemas",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.SetOut(stdout)
	root.SetErr(stderr)
	root.AddCommand(newDDLCmd(), newInstallCmd())
	return root
}

func newDDLCmd() *cobra.Command {
	var cfg config.Config
	cmd := &cobra.Command{
		Use:   "ddl <schema.yaml>",
		Short: "Print the DDL of a schema file",
		Long:  `Print the CREATE TABLE and CREATE INDEX statements of every model declared in a schema file.`,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			d, err := dialect.ForName(cfg.Dialect, cfg.DialectOptions()...)
			if err != nil {
				return err
			}
			reg, err := loadRegistry(args[0], renderer{dialect: d, prefix: cfg.TablePrefix})
			if err != nil {
				return err
			}
			stmts, err := reg.DDL()
			if err != nil {
				return err
			}
			for _, stmt := range stmts {
				fmt.Fprintln(cmd.OutOrStdout(), stmt)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&cfg.Dialect, "dialect", dialect.MySQL, "SQL dialect (mysql or sqlite)")
	cmd.Flags().StringVar(&cfg.TablePrefix, "table-prefix", "", "Prefix of every table name")
	cmd.Flags().StringVar(&cfg.Charset, "charset", "", "MySQL table character set")
	cmd.Flags().StringVar(&cfg.Collate, "collate", "", "MySQL table collation")
	return cmd
}

func newInstallCmd() *cobra.Command {
	var configPath string
	var verbose bool
	cmd := &cobra.Command{
		Use:   "install <schema.yaml>",
		Short: "Create the tables of a schema file",
		Long: `Create the tables and indexes of every model declared in a schema file.
The connection is read from --config, or from the SQLRECORD_* environment
variables when no file is given.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var cfg config.Config
			var err error
			if configPath != "" {
				cfg, err = config.Load(configPath)
			} else {
				cfg, err = config.FromEnv()
			}
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}

			level := slog.LevelInfo
			if verbose {
				level = slog.LevelDebug
			}
			logger := slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: level}))

			ctx := context.Background()
			db, err := conn.Open(ctx, cfg, conn.WithLogger(logger))
			if err != nil {
				return err
			}
			defer db.Close()

			reg, err := loadRegistry(args[0], db, sqlrecord.WithLogger(logger))
			if err != nil {
				return err
			}
			return reg.Install(ctx)
		},
	}
	cmd.Flags().StringVar(&configPath, "config", "", "Connection config file")
	cmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "Log every statement")
	return cmd
}

func loadRegistry(path string, c sqlrecord.Conn, opts ...sqlrecord.RegistryOption) (*sqlrecord.Registry, error) {
	f, err := schemafile.Load(path)
	if err != nil {
		return nil, err
	}
	reg := sqlrecord.NewRegistry(c, opts...)
	if _, err := f.Register(reg); err != nil {
		return nil, err
	}
	return reg, nil
}

// renderer is a Conn that only renders.
type renderer struct {
	dialect dialect.Dialect
	prefix  string
}

func (r renderer) Query(context.Context, string, ...any) ([]conn.Row, error) {
	return nil, fmt.Errorf("no database connection")
}

func (r renderer) Exec(context.Context, string, ...any) (conn.Result, error) {
	return conn.Result{}, fmt.Errorf("no database connection")
}

func (r renderer) QuoteIdentifier(id string) string { return r.dialect.QuoteIdentifier(id) }
func (r renderer) QuoteLiteral(v any) string        { return r.dialect.QuoteLiteral(v) }
func (r renderer) TablePrefix() string              { return r.prefix }
func (r renderer) Dialect() dialect.Dialect         { return r.dialect }
