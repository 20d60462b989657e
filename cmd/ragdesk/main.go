package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"github.com/xxxsen/common/logger"
	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/xxxsen/ragdesk/internal/config"
	"github.com/xxxsen/ragdesk/internal/db"
	"github.com/xxxsen/ragdesk/internal/pkg/jwt"
	"github.com/xxxsen/ragdesk/internal/repo"
	"github.com/xxxsen/ragdesk/internal/service"
)

func main() {
	var configPath string

	rootCmd := &cobra.Command{
		Use:   "ragdesk",
		Short: "ragdesk document question answering server",
	}
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "path to config.json or config.yaml")

	runCmd := &cobra.Command{
		Use:   "run",
		Short: "run ragdesk server",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(configPath)
			if err != nil {
				return err
			}
			return runServer(cfg)
		},
	}

	tenantCmd := &cobra.Command{
		Use:   "tenant",
		Short: "manage tenants",
	}

	var tenantName string
	createCmd := &cobra.Command{
		Use:   "create",
		Short: "create a tenant and print its api key",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(configPath)
			if err != nil {
				return err
			}
			return createTenant(cmd.Context(), cfg, tenantName)
		},
	}
	createCmd.Flags().StringVar(&tenantName, "name", "", "tenant display name")
	_ = createCmd.MarkFlagRequired("name")

	var tenantID string
	tokenCmd := &cobra.Command{
		Use:   "token",
		Short: "mint a document management token for a tenant",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(configPath)
			if err != nil {
				return err
			}
			return mintToken(cmd.Context(), cfg, tenantID)
		},
	}
	tokenCmd.Flags().StringVar(&tenantID, "id", "", "tenant id")
	_ = tokenCmd.MarkFlagRequired("id")

	tenantCmd.AddCommand(createCmd, tokenCmd)
	rootCmd.AddCommand(runCmd, tenantCmd)

	if err := rootCmd.Execute(); err != nil {
		logutil.GetLogger(context.Background()).Fatal("startup error", zap.Error(err))
	}
}

func loadConfig(path string) (*config.Config, error) {
	if path == "" {
		return nil, fmt.Errorf("--config is required")
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	logger.Init(
		cfg.LogConfig.File,
		cfg.LogConfig.Level,
		int(cfg.LogConfig.FileCount),
		int(cfg.LogConfig.FileSize),
		int(cfg.LogConfig.KeepDays),
		cfg.LogConfig.Console,
	)
	logutil.GetLogger(context.Background()).Info("config loaded", zap.String("config", path))
	return cfg, nil
}

func openTenantService(cfg *config.Config) (*service.TenantService, func(), error) {
	conn, err := db.Open(cfg.Database)
	if err != nil {
		return nil, nil, fmt.Errorf("open db: %w", err)
	}
	if err := db.ApplyMigrations(conn); err != nil {
		_ = conn.Close()
		return nil, nil, fmt.Errorf("migrations: %w", err)
	}
	return service.NewTenantService(repo.NewTenantRepo(conn)), func() { _ = conn.Close() }, nil
}

func createTenant(ctx context.Context, cfg *config.Config, name string) error {
	tenants, closeFn, err := openTenantService(cfg)
	if err != nil {
		return err
	}
	defer closeFn()
	tenant, key, err := tenants.Create(ctx, name)
	if err != nil {
		return fmt.Errorf("create tenant: %w", err)
	}
	fmt.Fprintf(os.Stdout, "tenant_id:  %s\ncollection: %s\napi_key:    %s\n", tenant.ID, tenant.Collection, key)
	fmt.Fprintln(os.Stdout, "the api key is shown once; store it now")
	return nil
}

func mintToken(ctx context.Context, cfg *config.Config, id string) error {
	tenants, closeFn, err := openTenantService(cfg)
	if err != nil {
		return err
	}
	defer closeFn()
	tenant, err := tenants.Get(ctx, id)
	if err != nil {
		return fmt.Errorf("load tenant: %w", err)
	}
	ttl := time.Hour * time.Duration(cfg.JWTTTLHours)
	token, err := jwt.GenerateToken(tenant.ID, tenant.Name, []byte(cfg.JWTSecret), ttl)
	if err != nil {
		return fmt.Errorf("generate token: %w", err)
	}
	fmt.Fprintln(os.Stdout, token)
	return nil
}
