package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/chrissnell/designflood/internal/atlas"
)

func main() {
	var (
		yamlFile   = flag.String("yaml", "", "Path to YAML dataset file (required)")
		sqliteFile = flag.String("sqlite", "", "Path to SQLite dataset database (required)")
		export     = flag.Bool("export", false, "Export the SQLite dataset to YAML instead")
	)
	flag.Parse()

	if *yamlFile == "" || *sqliteFile == "" {
		fmt.Fprintf(os.Stderr, "Usage: %s -yaml <dataset.yaml> -sqlite <dataset.db> [-export]\n", os.Args[0])
		flag.PrintDefaults()
		os.Exit(1)
	}

	ctx := context.Background()
	store, err := atlas.OpenSQLite(*sqliteFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error opening SQLite dataset: %v\n", err)
		os.Exit(1)
	}
	defer store.Close()

	if *export {
		f, err := store.LoadFile(ctx)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error reading SQLite dataset: %v\n", err)
			os.Exit(1)
		}
		out, err := os.Create(*yamlFile)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error creating YAML file: %v\n", err)
			os.Exit(1)
		}
		defer out.Close()
		if err := atlas.WriteYAML(out, *f); err != nil {
			fmt.Fprintf(os.Stderr, "Error writing YAML dataset: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("Exported dataset %s to %s\n", f.Name, *yamlFile)
		return
	}

	ds, err := atlas.LoadYAML(*yamlFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading YAML dataset: %v\n", err)
		os.Exit(1)
	}
	if err := store.Save(ctx, ds.File()); err != nil {
		fmt.Fprintf(os.Stderr, "Error saving dataset to SQLite: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("Converted dataset %s (%d regions) to %s\n", ds.Name(), len(ds.Regions()), *sqliteFile)
	fmt.Printf("Use it with dataset.backend: sqlite and dataset.path: %s\n", *sqliteFile)
}
