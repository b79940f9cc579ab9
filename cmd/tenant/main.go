// Package main provides CLI for tenant management.
// Usage: tenant create --slug acme --name "ACME Corp"
//        tenant list
//        tenant suspend <tenant-id>
package main

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"

	"numera/internal/core/tenant"
	"numera/internal/domain/auth"
	"numera/internal/infrastructure/storage/postgres"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	ctx := context.Background()

	switch os.Args[1] {
	case "create":
		createTenant(ctx)
	case "list":
		listTenants(ctx)
	case "suspend":
		setStatus(ctx, tenant.StatusSuspended)
	case "activate":
		setStatus(ctx, tenant.StatusActive)
	case "help", "--help", "-h":
		printUsage()
	default:
		fmt.Printf("Unknown command: %s\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println(`Numera Tenant Management CLI

Usage:
  tenant <command> [options]

Commands:
  create    Create a new tenant (prints the API key once)
  list      List all tenants
  suspend   Suspend a tenant
  activate  Activate a suspended tenant
  help      Show this help

Environment Variables:
  DATABASE_URL    Connection string for the shared database (required)

Examples:
  tenant create --slug acme --name "ACME Corporation"
  tenant create --slug acme --name "ACME Corporation" --plan premium
  tenant list
  tenant suspend <tenant-uuid>
  tenant activate <tenant-uuid>`)
}

func getPool(ctx context.Context) *pgxpool.Pool {
	dsn := os.Getenv("DATABASE_URL")
	if dsn == "" {
		fmt.Println("Error: DATABASE_URL environment variable is required")
		os.Exit(1)
	}

	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		fmt.Printf("Error connecting to database: %v\n", err)
		os.Exit(1)
	}

	return pool
}

func createTenant(ctx context.Context) {
	var slug, name, plan string

	// Parse arguments
	for i := 2; i < len(os.Args); i++ {
		switch os.Args[i] {
		case "--slug":
			if i+1 < len(os.Args) {
				slug = os.Args[i+1]
				i++
			}
		case "--name":
			if i+1 < len(os.Args) {
				name = os.Args[i+1]
				i++
			}
		case "--plan":
			if i+1 < len(os.Args) {
				plan = os.Args[i+1]
				i++
			}
		}
	}

	if slug == "" || name == "" {
		fmt.Println("Error: --slug and --name are required")
		fmt.Println("Usage: tenant create --slug <slug> --name <name> [--plan standard|premium|enterprise]")
		os.Exit(1)
	}

	if plan == "" {
		plan = "standard"
	}

	pool := getPool(ctx)
	defer pool.Close()

	registry := tenant.NewPostgresRegistry(pool)

	fmt.Printf("Creating tenant '%s'...\n", slug)

	apiKey, apiKeyHash, err := auth.GenerateAPIKey()
	if err != nil {
		fmt.Printf("Error generating API key: %v\n", err)
		os.Exit(1)
	}

	t := &tenant.Tenant{
		Slug:        slug,
		DisplayName: name,
		Status:      tenant.StatusActive,
		Plan:        tenant.Plan(plan),
		APIKeyHash:  apiKeyHash,
	}

	if err := registry.Create(ctx, t); err != nil {
		fmt.Printf("Error registering tenant: %v\n", err)
		os.Exit(1)
	}

	// Provision the default numbering configuration. Repos resolve the
	// tenant and querier from context, same as request handling does.
	txManager := postgres.NewTxManagerFromRawPool(pool)
	tenantCtx := tenant.WithTenant(ctx, t)
	tenantCtx = tenant.WithTxManager(tenantCtx, txManager)

	cfg, err := postgres.NewNumberingRepo().CreateDefault(tenantCtx)
	if err != nil {
		fmt.Printf("Error provisioning numbering config: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("\n✓ Tenant '%s' created successfully!\n", slug)
	fmt.Printf("  Tenant ID: %s\n", t.ID)
	fmt.Printf("  Status: active\n")
	fmt.Printf("  Plan: %s\n", plan)
	fmt.Printf("  Numbering: %s / %s (reset %s)\n", cfg.PrefixTemplate, cfg.FormatTemplate, cfg.ResetFrequency)
	fmt.Printf("\n  API key (shown once, store it now):\n  %s\n", apiKey)
}

func listTenants(ctx context.Context) {
	pool := getPool(ctx)
	defer pool.Close()

	registry := tenant.NewPostgresRegistry(pool)
	tenants, err := registry.ListAll(ctx)
	if err != nil {
		fmt.Printf("Error listing tenants: %v\n", err)
		os.Exit(1)
	}

	if len(tenants) == 0 {
		fmt.Println("No tenants found")
		return
	}

	fmt.Printf("%-36s %-20s %-30s %-12s %-10s\n", "TENANT_ID", "SLUG", "NAME", "PLAN", "STATUS")
	fmt.Println(strings.Repeat("-", 112))

	for _, t := range tenants {
		fmt.Printf("%-36s %-20s %-30s %-12s %-10s\n",
			truncate(t.ID, 36),
			truncate(t.Slug, 20),
			truncate(t.DisplayName, 30),
			t.Plan,
			t.Status,
		)
	}
}

func setStatus(ctx context.Context, status tenant.Status) {
	if len(os.Args) < 3 {
		fmt.Printf("Usage: tenant %s <tenant-uuid>\n", os.Args[1])
		os.Exit(1)
	}
	tenantID := os.Args[2]

	pool := getPool(ctx)
	defer pool.Close()

	registry := tenant.NewPostgresRegistry(pool)

	t, err := registry.GetByID(ctx, tenantID)
	if err != nil {
		fmt.Printf("Error: tenant '%s' not found\n", tenantID)
		os.Exit(1)
	}

	if err := registry.UpdateStatusByID(ctx, t.ID, status); err != nil {
		fmt.Printf("Error updating tenant status: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("✓ Tenant '%s' is now %s\n", t.Slug, status)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n-3] + "..."
}
