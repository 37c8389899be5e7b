package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"hexanote-sync-server/internal/config"
	"hexanote-sync-server/internal/domain"
	"hexanote-sync-server/internal/service"

	"github.com/spf13/cobra"
)

var deviceCmd = &cobra.Command{
	Use:   "device",
	Short: "Manage registered devices",
	Long: `Manage registered devices directly against the configured storage.

These commands need persistent storage; with DB_DRIVER=memory there is
nothing to manage outside a running server.`,
}

var deviceRegisterCmd = &cobra.Command{
	Use:   "register",
	Short: "Register a device and print its token",
	Long: `Register a device and print the device-bound token it should use.

Examples:
  hexanote-server device register --name "Work laptop" --class desktop
  hexanote-server device register --name Phone --class mobile --json`,
	Args: cobra.NoArgs,
	RunE: runDeviceRegister,
}

var deviceListCmd = &cobra.Command{
	Use:   "list",
	Short: "List registered devices",
	Args:  cobra.NoArgs,
	RunE:  runDeviceList,
}

func init() {
	deviceRegisterCmd.Flags().String("name", "", "Device name")
	deviceRegisterCmd.Flags().String("class", string(domain.DeviceClassDesktop), "Device class: desktop, mobile or other")
	deviceRegisterCmd.Flags().Bool("json", false, "Output as JSON")
	deviceRegisterCmd.MarkFlagRequired("name")

	deviceListCmd.Flags().Bool("json", false, "Output as JSON")

	deviceCmd.AddCommand(deviceRegisterCmd, deviceListCmd)
	rootCmd.AddCommand(deviceCmd)
}

func openDeviceService(ctx context.Context) (*config.Config, *service.DeviceService, func() error, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	if cfg.Database.Driver == "memory" {
		return nil, nil, nil, fmt.Errorf("device commands need DB_DRIVER=couchdb")
	}
	st, err := openStores(ctx, cfg)
	if err != nil {
		return nil, nil, nil, err
	}
	return cfg, service.NewDeviceService(st.devices, nil), st.close, nil
}

func runDeviceRegister(cmd *cobra.Command, args []string) error {
	name, _ := cmd.Flags().GetString("name")
	class, _ := cmd.Flags().GetString("class")
	jsonOutput, _ := cmd.Flags().GetBool("json")

	switch domain.DeviceClass(class) {
	case domain.DeviceClassDesktop, domain.DeviceClassMobile, domain.DeviceClassOther:
	default:
		return fmt.Errorf("--class must be desktop, mobile or other")
	}

	ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
	defer cancel()

	cfg, devices, closeStore, err := openDeviceService(ctx)
	if err != nil {
		return err
	}
	defer closeStore()

	authService, err := service.NewAuthService(cfg.Auth.Password, cfg.Auth.JWTSecret, cfg.Auth.JWTExpiration)
	if err != nil {
		return err
	}

	device, err := devices.Register(ctx, &domain.RegisterDeviceRequest{Name: name, Class: domain.DeviceClass(class)})
	if err != nil {
		return fmt.Errorf("failed to register device: %w", err)
	}
	token, err := authService.IssueDeviceToken(device.ID)
	if err != nil {
		return err
	}

	if jsonOutput {
		return json.NewEncoder(os.Stdout).Encode(&domain.DeviceRegistration{Device: device, Token: token})
	}
	fmt.Printf("Registered %s (%s)\n", device.Name, device.ID)
	fmt.Printf("Token: %s\n", token)
	return nil
}

func runDeviceList(cmd *cobra.Command, args []string) error {
	jsonOutput, _ := cmd.Flags().GetBool("json")

	ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
	defer cancel()

	_, devices, closeStore, err := openDeviceService(ctx)
	if err != nil {
		return err
	}
	defer closeStore()

	list, err := devices.List(ctx)
	if err != nil {
		return fmt.Errorf("failed to list devices: %w", err)
	}

	if jsonOutput {
		return json.NewEncoder(os.Stdout).Encode(list)
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tNAME\tCLASS\tLAST SYNC")
	for _, d := range list {
		lastSync := "never"
		if d.LastSyncAt != nil {
			lastSync = d.LastSyncAt.Local().Format(time.RFC3339)
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", d.ID, d.Name, d.Class, lastSync)
	}
	return w.Flush()
}
