package app

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strconv"
	"time"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	syncapp "github.com/leadengine/instance-sync/internal/app"
	"github.com/leadengine/instance-sync/internal/logger"
	"github.com/leadengine/instance-sync/internal/status"
	"github.com/leadengine/instance-sync/internal/sync/coordinator"
)

func newSyncCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Synchronize tenants with the broker and print their sync status",
		Long: `Run a collection for each tenant and print the resulting sync status.

Without --tenant every tenant that owns stored instances is processed. By default
the refresh is forced; --respect-ttl lets a recent sync short-circuit it and
--status-only skips the broker entirely.

Examples:
  instance-sync sync --config config.yaml --tenant acme
  instance-sync sync --config config.yaml --status-only --format json`,
		RunE: runSync,
	}

	cmd.Flags().String("config", "", "Path to configuration file (YAML format, required)")
	cmd.Flags().StringSlice("tenant", nil, "Tenant to synchronize (repeatable)")
	cmd.Flags().Bool("respect-ttl", false, "Skip tenants synced within the sync TTL")
	cmd.Flags().Bool("status-only", false, "Print stored sync status without contacting the broker")
	cmd.Flags().String("format", "table", "Output format (table or json)")
	if err := cmd.MarkFlagRequired("config"); err != nil {
		logger.Errorf("Failed to mark config flag as required: %v", err)
	}
	return cmd
}

// tenantReport is one output row of the sync command
type tenantReport struct {
	TenantID        string             `json:"tenantId"`
	Instances       int                `json:"instances"`
	Synced          bool               `json:"synced"`
	StorageFallback bool               `json:"storageFallback"`
	Warnings        []string           `json:"warnings,omitempty"`
	Status          *status.SyncStatus `json:"status,omitempty"`
	Error           string             `json:"error,omitempty"`
}

func runSync(cmd *cobra.Command, _ []string) error {
	ctx := commandContext(cmd)

	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	tenants, _ := cmd.Flags().GetStringSlice("tenant")
	respectTTL, _ := cmd.Flags().GetBool("respect-ttl")
	statusOnly, _ := cmd.Flags().GetBool("status-only")
	format, _ := cmd.Flags().GetString("format")
	if format != "table" && format != "json" {
		return fmt.Errorf("unsupported format %q", format)
	}

	app, err := syncapp.NewInstanceSyncApp(ctx, syncapp.WithConfig(cfg))
	if err != nil {
		return err
	}
	defer app.Close()
	components := app.Components()

	if len(tenants) == 0 {
		tenants, err = components.Store.ListTenants(ctx)
		if err != nil {
			return fmt.Errorf("failed to list tenants: %w", err)
		}
	}
	sort.Strings(tenants)

	var refresh *bool
	if !respectTTL {
		forced := true
		refresh = &forced
	}

	reports := make([]tenantReport, 0, len(tenants))
	failed := 0
	for _, tenantID := range tenants {
		report := tenantReport{TenantID: tenantID}
		if !statusOnly {
			view, err := components.Coordinator.Collect(ctx, tenantID, coordinator.Options{
				Refresh:        refresh,
				FetchSnapshots: true,
			})
			if err != nil {
				report.Error = err.Error()
				failed++
			} else {
				report.Instances = len(view.Instances)
				report.Synced = view.Synced
				report.StorageFallback = view.StorageFallback
				report.Warnings = view.Warnings
			}
		}
		st, err := components.States.GetSyncStatus(ctx, tenantID)
		if err != nil {
			logger.Warnw("Failed to read sync status", "tenant_id", tenantID, "error", err)
		}
		report.Status = st
		if statusOnly && st != nil {
			report.Instances = st.InstanceCount
		}
		reports = append(reports, report)
	}

	if err := writeReports(cmd.OutOrStdout(), format, reports); err != nil {
		return err
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d tenants failed to sync", failed, len(tenants))
	}
	return nil
}

func writeReports(w io.Writer, format string, reports []tenantReport) error {
	if format == "json" {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(reports)
	}

	table := tablewriter.NewWriter(w)
	table.Header("Tenant", "Instances", "Synced", "Phase", "Last Sync", "Created", "Updated", "Unchanged", "Error")
	for _, r := range reports {
		phase, lastSync := "-", "-"
		created, updated, unchanged := "-", "-", "-"
		if r.Status != nil {
			phase = string(r.Status.Phase)
			if r.Status.LastSyncTime != nil {
				lastSync = r.Status.LastSyncTime.Format(time.RFC3339)
			}
			created = strconv.Itoa(r.Status.Created)
			updated = strconv.Itoa(r.Status.Updated)
			unchanged = strconv.Itoa(r.Status.Unchanged)
		}
		errText := r.Error
		if errText == "" && r.StorageFallback {
			errText = "storage fallback"
		}
		if err := table.Append([]string{
			r.TenantID,
			strconv.Itoa(r.Instances),
			strconv.FormatBool(r.Synced),
			phase,
			lastSync,
			created,
			updated,
			unchanged,
			errText,
		}); err != nil {
			return fmt.Errorf("failed to render table: %w", err)
		}
	}
	return table.Render()
}
