package main

import (
	"flag"
	"fmt"
	"os"
	"reflect"

	"github.com/chrissnell/designflood/pkg/config"
)

func main() {
	var (
		yamlFile   = flag.String("yaml", "", "Path to YAML configuration file")
		sqliteFile = flag.String("sqlite", "", "Path to SQLite configuration file")
	)
	flag.Parse()

	if *yamlFile == "" || *sqliteFile == "" {
		fmt.Fprintf(os.Stderr, "Usage: %s -yaml <config.yaml> -sqlite <config.db>\n", os.Args[0])
		flag.PrintDefaults()
		os.Exit(1)
	}

	fmt.Println("Configuration Comparison Test")
	fmt.Println("===========================")

	fmt.Printf("Loading YAML configuration: %s\n", *yamlFile)
	yamlConfig, err := config.NewYAMLProvider(*yamlFile).LoadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading YAML config: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("Loading SQLite configuration: %s\n", *sqliteFile)
	sqliteProvider, err := config.NewSQLiteProvider(*sqliteFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error creating SQLite provider: %v\n", err)
		os.Exit(1)
	}
	defer sqliteProvider.Close()

	sqliteConfig, err := sqliteProvider.LoadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading SQLite config: %v\n", err)
		os.Exit(1)
	}

	fmt.Println("\nComparison Results:")
	fmt.Println("==================")

	ok := compare("Server", yamlConfig.Server, sqliteConfig.Server)
	ok = compare("Dataset", yamlConfig.Dataset, sqliteConfig.Dataset) && ok
	ok = compare("Defaults", yamlConfig.Defaults, sqliteConfig.Defaults) && ok
	ok = compare("Cache", yamlConfig.Cache, sqliteConfig.Cache) && ok

	fmt.Println("\nTest completed!")
	if !ok {
		os.Exit(1)
	}
}

// compare prints the fields of two configuration sections that differ
func compare(section string, yaml, sqlite any) bool {
	if reflect.DeepEqual(yaml, sqlite) {
		fmt.Printf("✓ %s matches\n", section)
		return true
	}

	fmt.Printf("✗ %s differs\n", section)
	yv, sv := reflect.ValueOf(yaml), reflect.ValueOf(sqlite)
	for i := 0; i < yv.NumField(); i++ {
		yf, sf := yv.Field(i).Interface(), sv.Field(i).Interface()
		if !reflect.DeepEqual(yf, sf) {
			fmt.Printf("  %s: YAML='%v', SQLite='%v'\n", yv.Type().Field(i).Name, yf, sf)
		}
	}
	return false
}
