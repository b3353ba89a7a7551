package main

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/chrissnell/designflood/pkg/config"
)

func main() {
	var (
		yamlFile   = flag.String("yaml", "", "Path to YAML configuration file (required)")
		sqliteFile = flag.String("sqlite", "", "Path to SQLite database file (required)")
		force      = flag.Bool("force", false, "Overwrite existing SQLite database")
		dryRun     = flag.Bool("dry-run", false, "Show what would be done without executing")
	)
	flag.Parse()

	if *yamlFile == "" || *sqliteFile == "" {
		fmt.Fprintf(os.Stderr, "Usage: %s -yaml <config.yaml> -sqlite <config.db>\n", os.Args[0])
		flag.PrintDefaults()
		os.Exit(1)
	}

	if _, err := os.Stat(*yamlFile); os.IsNotExist(err) {
		fmt.Fprintf(os.Stderr, "Error: YAML file does not exist: %s\n", *yamlFile)
		os.Exit(1)
	}

	if _, err := os.Stat(*sqliteFile); err == nil && !*force {
		fmt.Fprintf(os.Stderr, "Error: SQLite file already exists: %s\n", *sqliteFile)
		fmt.Fprintf(os.Stderr, "Use -force to overwrite or choose a different filename\n")
		os.Exit(1)
	}

	fmt.Printf("Converting YAML configuration to SQLite...\n")
	fmt.Printf("  Source: %s\n", *yamlFile)
	fmt.Printf("  Target: %s\n", *sqliteFile)

	if *dryRun {
		fmt.Println("DRY RUN - No changes will be made")
	}

	configData, err := config.NewYAMLProvider(*yamlFile).LoadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading YAML configuration: %v\n", err)
		os.Exit(1)
	}

	if *dryRun {
		printConfigSummary(configData)
		fmt.Println("DRY RUN complete - no database created")
		return
	}

	if *force {
		if err := os.Remove(*sqliteFile); err != nil && !os.IsNotExist(err) {
			fmt.Fprintf(os.Stderr, "Error removing existing SQLite file: %v\n", err)
			os.Exit(1)
		}
	}

	if err := os.MkdirAll(filepath.Dir(*sqliteFile), 0755); err != nil {
		fmt.Fprintf(os.Stderr, "Error creating directory: %v\n", err)
		os.Exit(1)
	}

	// The provider applies the schema migrations when it opens the database
	provider, err := config.NewSQLiteProvider(*sqliteFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error creating SQLite database: %v\n", err)
		os.Exit(1)
	}
	defer provider.Close()

	if err := provider.SaveConfig(configData); err != nil {
		fmt.Fprintf(os.Stderr, "Error loading configuration into SQLite: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("Conversion completed successfully!\n")
	fmt.Printf("You can now use the SQLite backend with: -config-backend sqlite -config %s\n", *sqliteFile)
}

func printConfigSummary(configData *config.ConfigData) {
	fmt.Println("\nConfiguration Summary:")
	fmt.Printf("Server: %s:%d (TLS: %v, CORS: %v)\n", configData.Server.ListenAddr, configData.Server.Port,
		configData.Server.Cert != "", configData.Server.EnableCORS)
	fmt.Printf("Dataset: %s (%s)\n", configData.Dataset.Path, configData.Dataset.Backend)
	if configData.Dataset.Reload != "" {
		fmt.Printf("  Reload schedule: %s\n", configData.Dataset.Reload)
	}
	if c := configData.Cache; c.Backend != "" {
		fmt.Printf("Cache: %s (ttl %s)\n", c.Backend, c.TTL)
		if c.Backend == "redis" {
			fmt.Printf("  Redis: %s db %d\n", c.RedisAddr, c.RedisDB)
		}
	}

	d := configData.Defaults
	fmt.Println("Defaults:")
	fmt.Printf("  Cs/Cv ratio:     %g\n", d.Ratio)
	fmt.Printf("  Exponent mode:   %s\n", d.ExponentMode)
	fmt.Printf("  Concentration:   %s\n", d.Concentration)
	fmt.Printf("  Mu source:       %s\n", d.MuSource)
	fmt.Printf("  Solver:          step %g, tolerance %g, %d iterations\n", d.Step, d.Tolerance, d.MaxIterations)
	fmt.Printf("  Fit methods:     %s (fit mean: %v)\n", strings.Join(d.Methods, ", "), d.FitMean)
	fmt.Printf("  Timeout:         %s\n", d.Timeout)
}
