package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v2"

	"github.com/belgiumluv/docker-cont/internal/config"
	"github.com/belgiumluv/docker-cont/internal/domain"
	"github.com/belgiumluv/docker-cont/internal/fsutil"
	"github.com/belgiumluv/docker-cont/internal/handler"
	"github.com/belgiumluv/docker-cont/internal/middleware"
	"github.com/belgiumluv/docker-cont/internal/server"
	"github.com/belgiumluv/docker-cont/internal/service"
	"github.com/belgiumluv/docker-cont/internal/store"
)

func (a *app) mutateCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "mutate",
		Short: "Select decoys, rewrite the server document and write the change-set",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			_, err := service.NewRotator(a.cfg.Paths, nil, nil, a.log).Run(cmd.Context())
			return err
		},
	}
}

func (a *app) patchCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "patch",
		Short: "Apply the change-set and recorded decoys to the HAProxy configuration",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			_, err := service.NewPropagator(a.cfg.Paths, a.log).Run(cmd.Context())
			return err
		},
	}
}

func (a *app) rotateCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "rotate",
		Short: "Run the mutate stage followed by the patch stage",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			rotation, err := service.NewRotator(a.cfg.Paths, nil, nil, a.log).Run(cmd.Context())
			if err != nil {
				return err
			}
			propagation, err := service.NewPropagator(a.cfg.Paths, a.log).Run(cmd.Context())
			if err != nil {
				return err
			}

			a.log.WithFields(map[string]interface{}{
				"reality":     rotation.Selection.Reality,
				"shadowtls":   rotation.Selection.ShadowTLS,
				"changes":     len(rotation.Tags),
				"transitions": propagation.Transitions(),
			}).Info("Rotation propagated")
			return nil
		},
	}
}

func (a *app) serveCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve the latest public key and decoys over HTTP",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			st, err := store.Open(a.cfg.Paths.DBPath, store.Options{}, a.log)
			if err != nil {
				return err
			}
			defer st.Close()
			if err := st.InitializeSchema(); err != nil {
				return err
			}

			router := handler.NewRouter(st, a.cfg.API, version, a.log)
			defer router.Close()

			a.log.WithFields(processInfo()).WithField("version", version).Info("Starting rotator API")
			return server.New(a.cfg.API, router, st.Ping, a.log).Run(cmd.Context())
		},
	}
}

// latestRecords is the output of the show command
type latestRecords struct {
	DBPath    string                  `json:"db_path"`
	Decoys    *domain.StoredSelection `json:"decoys"`
	PublicKey *domain.StoredPublicKey `json:"public_key"`
}

func (a *app) showCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Print the latest recorded decoys and public key as JSON",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			out := latestRecords{DBPath: a.cfg.Paths.DBPath}

			if fsutil.Exists(a.cfg.Paths.DBPath) {
				st, err := store.Open(a.cfg.Paths.DBPath, store.Options{ReadOnly: true}, a.log)
				if err != nil {
					return err
				}
				defer st.Close()

				if out.Decoys, err = st.LatestDomainSelection(); err != nil && !errors.Is(err, store.ErrNotFound) {
					return err
				}
				if out.PublicKey, err = st.LatestPublicKey(); err != nil && !errors.Is(err, store.ErrNotFound) {
					return err
				}
			}

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "    ")
			return enc.Encode(out)
		},
	}
}

func (a *app) tokenCommand() *cobra.Command {
	var (
		subject string
		ttl     time.Duration
	)

	cmd := &cobra.Command{
		Use:   "token",
		Short: "Issue a bearer token for the distribution API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if a.cfg.API.JWTSecret == "" {
				return fmt.Errorf("api.jwt_secret is not set")
			}
			token, err := middleware.IssueToken(a.cfg.API.JWTSecret, subject, ttl, time.Now())
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}
	cmd.Flags().StringVar(&subject, "subject", "distributor", "token subject")
	cmd.Flags().DurationVar(&ttl, "ttl", 24*time.Hour, "token lifetime")
	return cmd
}

func (a *app) configCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect or create configuration files",
		// init must work before any config file exists
		PersistentPreRunE: func(*cobra.Command, []string) error { return nil },
	}

	initCmd := &cobra.Command{
		Use:   "init <path>",
		Short: "Write the default configuration to a YAML file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if fsutil.Exists(args[0]) {
				return fmt.Errorf("%s already exists", args[0])
			}
			if err := config.DefaultConfig().SaveToFile(args[0]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "wrote %s\n", args[0])
			return nil
		},
	}

	showCmd := &cobra.Command{
		Use:   "show",
		Short: "Print the effective configuration",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.load(cmd, args); err != nil {
				return err
			}

			effective := *a.cfg
			if effective.API.JWTSecret != "" {
				effective.API.JWTSecret = "********"
			}
			data, err := yaml.Marshal(&effective)
			if err != nil {
				return fmt.Errorf("failed to marshal config: %w", err)
			}
			_, err = cmd.OutOrStdout().Write(data)
			return err
		},
	}

	cmd.AddCommand(initCmd, showCmd)
	return cmd
}
