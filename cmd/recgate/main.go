package main

import (
	"fmt"
	"os"
	"strconv"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"recgate/internal/app"
	"recgate/internal/config"
	"recgate/internal/seal"
	"recgate/internal/server"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// newApp reads the config and creates an App. The caller must defer app.Close().
// operation identifies the CLI command being run (e.g. "CreateRecord", "Serve").
func newApp(operation string) (*app.App, error) {
	defaults, err := app.GetDefaults()
	if err != nil {
		return nil, fmt.Errorf("getting defaults: %w", err)
	}

	cfg, err := config.ReadFromFile(defaults["config_path"])
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}

	a, err := app.NewApp(cfg, operation)
	if err != nil {
		return nil, fmt.Errorf("initializing app: %w", err)
	}

	return a, nil
}

func parseRecordID(arg string) (uint64, error) {
	id, err := strconv.ParseUint(arg, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid record id %q", arg)
	}
	return id, nil
}

var rootCmd = &cobra.Command{
	Use:   "recgate",
	Short: "Owner-controlled record access ledger",
}

// config command

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage configuration",
}

var configInitAdmin string

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		defaults, err := app.GetDefaults()
		if err != nil {
			return fmt.Errorf("failed to get defaults: %w", err)
		}

		if configInitAdmin == "" {
			return fmt.Errorf("--admin is required: the admin subject is seeded with the admin and provider roles")
		}

		// Generate a new instance ID
		instanceID := uuid.New().String()

		cfg := config.NewConfig(instanceID, configInitAdmin, defaults["base_dir"])

		if err := config.Init(defaults["config_path"], cfg); err != nil {
			return fmt.Errorf("failed to initialize config: %w", err)
		}

		fmt.Printf("Configuration initialized at %s\n", defaults["config_path"])
		fmt.Printf("Instance ID: %s\n", instanceID)
		fmt.Printf("Admin:       %s\n", configInitAdmin)
		fmt.Printf("Base Dir:    %s\n", defaults["base_dir"])
		return nil
	},
}

var configListCmd = &cobra.Command{
	Use:   "list",
	Short: "View configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		defaults, err := app.GetDefaults()
		if err != nil {
			return fmt.Errorf("failed to get defaults: %w", err)
		}

		cfg, err := config.ReadFromFile(defaults["config_path"])
		if err != nil {
			return fmt.Errorf("failed to read config: %w", err)
		}

		fmt.Printf("Configuration from %s:\n\n", defaults["config_path"])
		fmt.Printf("Instance ID: %s\n", cfg.InstanceID)
		fmt.Printf("Admin:       %s\n", cfg.AdminSubject)
		fmt.Printf("Base Dir:    %s\n", cfg.BaseDir)
		fmt.Printf("Log Dir:     %s\n", cfg.LogDir)
		fmt.Printf("Database:    %s\n", cfg.Database.Type)
		fmt.Printf("Listen:      %s\n", cfg.Server.ListenAddr)
		fmt.Printf("Archive:     %s\n", cfg.Archive.Type)
		return nil
	},
}

// serve command

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API server",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp("Serve")
		if err != nil {
			return err
		}
		defer a.Close()

		srv := server.New(a.Service(), a.Logger())
		return srv.Run(a.Config().Server.ListenAddr)
	},
}

// record command

var recordCmd = &cobra.Command{
	Use:   "record",
	Short: "Manage records",
}

var recordAs string

var recordCreateCmd = &cobra.Command{
	Use:   "create <data-hash>",
	Short: "Register a record referencing externally stored content",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp("CreateRecord")
		if err != nil {
			return err
		}
		defer a.Close()

		id, err := a.CreateRecord(recordAs, args[0])
		if err != nil {
			return fmt.Errorf("creating record: %w", err)
		}

		fmt.Printf("Record created with id %d\n", id)
		return nil
	},
}

var recordReadCmd = &cobra.Command{
	Use:   "read <id>",
	Short: "Read a record's data hash (audited)",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := parseRecordID(args[0])
		if err != nil {
			return err
		}

		a, err := newApp("ReadRecord")
		if err != nil {
			return err
		}
		defer a.Close()

		dataHash, err := a.ReadRecord(recordAs, id)
		if err != nil {
			return fmt.Errorf("reading record: %w", err)
		}

		fmt.Println(dataHash)
		return nil
	},
}

var recordShowCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Show record metadata",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := parseRecordID(args[0])
		if err != nil {
			return err
		}

		a, err := newApp("GetRecord")
		if err != nil {
			return err
		}
		defer a.Close()

		rec, err := a.GetRecord(id)
		if err != nil {
			return fmt.Errorf("loading record: %w", err)
		}

		fmt.Printf("Id:      %d\n", rec.ID)
		fmt.Printf("Owner:   %s\n", rec.Owner)
		fmt.Printf("Created: %s\n", rec.CreatedAt.UTC().Format("2006-01-02T15:04:05Z"))
		return nil
	},
}

var recordListCmd = &cobra.Command{
	Use:   "list",
	Short: "List records owned by a subject",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp("ListOwnedRecords")
		if err != nil {
			return err
		}
		defer a.Close()

		ids, err := a.ListOwnedRecords(recordAs)
		if err != nil {
			return fmt.Errorf("listing records: %w", err)
		}

		if len(ids) == 0 {
			fmt.Printf("No records owned by %s\n", recordAs)
			return nil
		}
		for _, id := range ids {
			fmt.Println(id)
		}
		return nil
	},
}

// access command

var accessCmd = &cobra.Command{
	Use:   "access",
	Short: "Manage per-record read grants",
}

var accessAs string

var accessGrantCmd = &cobra.Command{
	Use:   "grant <id> <grantee>",
	Short: "Grant a subject read access to a record",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := parseRecordID(args[0])
		if err != nil {
			return err
		}

		a, err := newApp("GrantAccess")
		if err != nil {
			return err
		}
		defer a.Close()

		if err := a.GrantAccess(accessAs, id, args[1]); err != nil {
			return fmt.Errorf("granting access: %w", err)
		}

		fmt.Printf("Granted %s read access to record %d\n", args[1], id)
		return nil
	},
}

var accessRevokeCmd = &cobra.Command{
	Use:   "revoke <id> <grantee>",
	Short: "Revoke a subject's read access to a record",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := parseRecordID(args[0])
		if err != nil {
			return err
		}

		a, err := newApp("RevokeAccess")
		if err != nil {
			return err
		}
		defer a.Close()

		if err := a.RevokeAccess(accessAs, id, args[1]); err != nil {
			return fmt.Errorf("revoking access: %w", err)
		}

		fmt.Printf("Revoked %s's read access to record %d\n", args[1], id)
		return nil
	},
}

// role command

var roleCmd = &cobra.Command{
	Use:   "role",
	Short: "Administer roles (admin only)",
}

var roleAs string

var roleGrantCmd = &cobra.Command{
	Use:   "grant <subject> <role>",
	Short: "Grant a role (admin or provider) to a subject",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp("GrantRole")
		if err != nil {
			return err
		}
		defer a.Close()

		if err := a.GrantRole(roleAs, args[0], args[1]); err != nil {
			return fmt.Errorf("granting role: %w", err)
		}

		fmt.Printf("Granted role %s to %s\n", args[1], args[0])
		return nil
	},
}

var roleRevokeCmd = &cobra.Command{
	Use:   "revoke <subject> <role>",
	Short: "Revoke a role from a subject",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp("RevokeRole")
		if err != nil {
			return err
		}
		defer a.Close()

		if err := a.RevokeRole(roleAs, args[0], args[1]); err != nil {
			return fmt.Errorf("revoking role: %w", err)
		}

		fmt.Printf("Revoked role %s from %s\n", args[1], args[0])
		return nil
	},
}

// audit command

var auditCmd = &cobra.Command{
	Use:   "audit",
	Short: "Inspect, export, and archive the access log",
}

var auditListCmd = &cobra.Command{
	Use:   "list <id>",
	Short: "List the access log for a record",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := parseRecordID(args[0])
		if err != nil {
			return err
		}

		a, err := newApp("ListAccessLog")
		if err != nil {
			return err
		}
		defer a.Close()

		entries, err := a.ListAccessLog(id)
		if err != nil {
			return fmt.Errorf("listing access log: %w", err)
		}

		if len(entries) == 0 {
			fmt.Printf("No accesses recorded for record %d\n", id)
			return nil
		}
		for _, e := range entries {
			fmt.Printf("%d\t%s\t%s\n", e.Seq, e.AccessedAt.UTC().Format("2006-01-02T15:04:05Z"), e.AccessedBy)
		}
		return nil
	},
}

var (
	auditRecordID   int64
	auditOutPath    string
	auditRecipient  string
	auditPassphrase bool
)

// exportSealer builds the sealer for audit export/archive from flags and
// config. Precedence: --passphrase, then --recipient, then the config's
// export recipient; nil means the export stays plaintext.
func exportSealer(a *app.App) (seal.Sealer, error) {
	if auditPassphrase {
		passphrase, err := promptPassphrase()
		if err != nil {
			return nil, err
		}
		return seal.NewPassphraseSealer(passphrase)
	}
	recipient := auditRecipient
	if recipient == "" {
		recipient = a.Config().Export.Recipient
	}
	if recipient == "" {
		return nil, nil
	}
	return seal.NewRecipientSealer(recipient)
}

func promptPassphrase() (string, error) {
	fmt.Fprint(os.Stderr, "Passphrase: ")
	passphrase, err := term.ReadPassword(int(os.Stdin.Fd()))
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return "", fmt.Errorf("reading passphrase: %w", err)
	}
	if len(passphrase) == 0 {
		return "", fmt.Errorf("empty passphrase")
	}
	return string(passphrase), nil
}

func selectedRecord() *uint64 {
	if auditRecordID < 0 {
		return nil
	}
	id := uint64(auditRecordID)
	return &id
}

var auditExportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export the access log as JSON lines, optionally sealed with age",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp("ExportAudit")
		if err != nil {
			return err
		}
		defer a.Close()

		sealer, err := exportSealer(a)
		if err != nil {
			return err
		}

		out := os.Stdout
		if auditOutPath != "" && auditOutPath != "-" {
			f, err := os.Create(auditOutPath)
			if err != nil {
				return fmt.Errorf("creating output file: %w", err)
			}
			defer f.Close()
			out = f
		}

		count, err := a.ExportAudit(out, selectedRecord(), sealer)
		if err != nil {
			return fmt.Errorf("exporting audit log: %w", err)
		}

		fmt.Fprintf(os.Stderr, "Exported %d entries\n", count)
		return nil
	},
}

var auditArchiveCmd = &cobra.Command{
	Use:   "archive",
	Short: "Export the access log and push it to the configured archive sink",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp("ArchiveAudit")
		if err != nil {
			return err
		}
		defer a.Close()

		sealer, err := exportSealer(a)
		if err != nil {
			return err
		}

		name, err := a.ArchiveAudit(selectedRecord(), sealer)
		if err != nil {
			return fmt.Errorf("archiving audit log: %w", err)
		}

		fmt.Printf("Archived audit log as %s\n", name)
		return nil
	},
}

func init() {
	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configListCmd)
	configInitCmd.Flags().StringVar(&configInitAdmin, "admin", "", "subject seeded as the initial administrator")

	recordCmd.AddCommand(recordCreateCmd)
	recordCmd.AddCommand(recordReadCmd)
	recordCmd.AddCommand(recordShowCmd)
	recordCmd.AddCommand(recordListCmd)
	recordCmd.PersistentFlags().StringVar(&recordAs, "as", "", "subject performing the operation")

	accessCmd.AddCommand(accessGrantCmd)
	accessCmd.AddCommand(accessRevokeCmd)
	accessCmd.PersistentFlags().StringVar(&accessAs, "as", "", "record owner performing the change")

	roleCmd.AddCommand(roleGrantCmd)
	roleCmd.AddCommand(roleRevokeCmd)
	roleCmd.PersistentFlags().StringVar(&roleAs, "as", "", "admin subject performing the change")

	auditCmd.AddCommand(auditListCmd)
	auditCmd.AddCommand(auditExportCmd)
	auditCmd.AddCommand(auditArchiveCmd)
	auditExportCmd.Flags().Int64Var(&auditRecordID, "record", -1, "export a single record's entries")
	auditExportCmd.Flags().StringVar(&auditOutPath, "out", "-", "output file (default stdout)")
	auditExportCmd.Flags().StringVar(&auditRecipient, "recipient", "", "age recipient to seal the export to")
	auditExportCmd.Flags().BoolVar(&auditPassphrase, "passphrase", false, "seal the export with a passphrase")
	auditArchiveCmd.Flags().Int64Var(&auditRecordID, "record", -1, "archive a single record's entries")
	auditArchiveCmd.Flags().StringVar(&auditRecipient, "recipient", "", "age recipient to seal the segment to")
	auditArchiveCmd.Flags().BoolVar(&auditPassphrase, "passphrase", false, "seal the segment with a passphrase")

	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(recordCmd)
	rootCmd.AddCommand(accessCmd)
	rootCmd.AddCommand(roleCmd)
	rootCmd.AddCommand(auditCmd)
}
