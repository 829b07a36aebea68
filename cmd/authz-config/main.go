package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/burnnotice/authz"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	cmd := os.Args[1]
	switch cmd {
	case "convert":
		handleConvert()
	case "validate":
		handleValidate()
	case "stats":
		handleStats()
	case "check":
		handleCheck()
	default:
		fmt.Printf("Unknown command: %s\n", cmd)
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println("authz-config - Configuration tool for the permission engine")
	fmt.Println()
	fmt.Println("Usage:")
	fmt.Println("  authz-config convert <input> <output>                    - Convert between formats")
	fmt.Println("  authz-config validate <file>                             - Validate configuration")
	fmt.Println("  authz-config stats <file>                                - Show configuration statistics")
	fmt.Println("  authz-config check <file> <user> <perm> <type> [<id>]    - Evaluate a permission against the config")
	fmt.Println()
	fmt.Println("Supported formats: .yaml, .yml, .json")
}

func loadConfig(path string) (*authz.Config, error) {
	return authz.NewConfigLoader().LoadFile(path)
}

func saveConfig(cfg *authz.Config, path string) error {
	var data []byte
	var err error
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		data, err = cfg.ToYAML()
	case ".json":
		data, err = cfg.ToJSON()
	default:
		return fmt.Errorf("unsupported output format: %s", filepath.Ext(path))
	}
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

func handleConvert() {
	if len(os.Args) < 4 {
		fmt.Println("Usage: authz-config convert <input> <output>")
		os.Exit(1)
	}

	inputFile := os.Args[2]
	outputFile := os.Args[3]

	cfg, err := loadConfig(inputFile)
	if err != nil {
		fmt.Printf("Error loading config: %v\n", err)
		os.Exit(1)
	}

	if err := saveConfig(cfg, outputFile); err != nil {
		fmt.Printf("Error saving config: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("Converted %s -> %s\n", inputFile, outputFile)
}

func handleValidate() {
	if len(os.Args) < 3 {
		fmt.Println("Usage: authz-config validate <file>")
		os.Exit(1)
	}

	filename := os.Args[2]
	if _, err := loadConfig(filename); err != nil {
		fmt.Printf("Invalid configuration: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("%s is valid\n", filename)
}

func handleStats() {
	if len(os.Args) < 3 {
		fmt.Println("Usage: authz-config stats <file>")
		os.Exit(1)
	}

	cfg, err := loadConfig(os.Args[2])
	if err != nil {
		fmt.Printf("Error loading config: %v\n", err)
		os.Exit(1)
	}

	projects := 0
	for _, c := range cfg.Customers {
		projects += len(c.Projects)
	}
	allowCount, denyCount := 0, 0
	for _, p := range cfg.Policies {
		if p.Effect == authz.EffectDeny {
			denyCount++
		} else {
			allowCount++
		}
	}

	fmt.Printf("Customers:         %d\n", len(cfg.Customers))
	fmt.Printf("Projects:          %d\n", projects)
	fmt.Printf("Staff users:       %d\n", len(cfg.Staff))
	fmt.Printf("Roles:             %d\n", len(cfg.Roles))
	fmt.Printf("Policies:          %d (%d allow, %d deny)\n", len(cfg.Policies), allowCount, denyCount)
	fmt.Printf("Role attachments:  %d\n", len(cfg.RolePolicies))
	fmt.Printf("Memberships:       %d\n", len(cfg.Memberships))
	fmt.Printf("Global grants:     %d\n", len(cfg.GlobalGrants))
}

func handleCheck() {
	if len(os.Args) < 6 {
		fmt.Println("Usage: authz-config check <file> <user> <permission> <resource-type> [<resource-id>]")
		os.Exit(1)
	}

	cfg, err := loadConfig(os.Args[2])
	if err != nil {
		fmt.Printf("Error loading config: %v\n", err)
		os.Exit(1)
	}

	userID := os.Args[3]
	permission := authz.PermissionType(os.Args[4])
	resourceType := authz.ResourceType(os.Args[5])

	svc, _, _, err := cfg.BuildService()
	if err != nil {
		fmt.Printf("Error building service: %v\n", err)
		os.Exit(1)
	}
	defer svc.Close()

	ctx := context.Background()
	if len(os.Args) >= 7 {
		resourceID := os.Args[6]
		decision, err := svc.ExplainCheck(ctx, userID, permission, resourceType, resourceID)
		if err != nil {
			fmt.Printf("Error checking permission: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("Allowed: %v\n", decision.Allowed)
		fmt.Printf("Reason:  %s\n", decision.Reason)
		if decision.MatchedRule != "" {
			fmt.Printf("Rule:    %s\n", decision.MatchedRule)
		}
		for _, line := range decision.Trace {
			fmt.Printf("  %s\n", line)
		}
		if !decision.Allowed {
			os.Exit(2)
		}
		return
	}

	ids, err := svc.ListPermittedIDs(ctx, userID, permission, resourceType)
	if err != nil {
		fmt.Printf("Error listing permitted ids: %v\n", err)
		os.Exit(1)
	}
	if ids.Len() == 0 {
		fmt.Println("No permitted resources")
		return
	}
	for _, id := range ids.Sorted() {
		fmt.Println(id)
	}
}
