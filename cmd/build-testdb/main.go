package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/wbrown/janus-chase/datalog/storage"
)

func main() {
	configType := flag.String("config", "default", "Config type: default, medium, or large")
	kind := flag.String("store", "badger", "Store kind: badger or sqlite")
	output := flag.String("out", "", "Output path (defaults to the config's path)")
	seed := flag.Int64("seed", 1, "Random seed")
	flag.Parse()

	var config storage.TestDataConfig
	switch *configType {
	case "default":
		config = storage.DefaultGraphConfig()
	case "medium":
		config = storage.MediumGraphConfig()
	case "large":
		config = storage.LargeGraphConfig()
	default:
		fmt.Fprintf(os.Stderr, "Unknown config type: %s (use 'default', 'medium', or 'large')\n", *configType)
		os.Exit(1)
	}
	config.Kind = storage.Kind(*kind)
	config.Seed = *seed
	if *output != "" {
		config.OutputPath = *output
	}

	fmt.Printf("Building test store: %s (%s)\n", config.OutputPath, config.Kind)
	fmt.Printf("  People: %d\n", config.NumPeople)
	fmt.Printf("  Generations: %d\n", config.Generations)
	fmt.Printf("  Knows/person: %d\n", config.KnowsPerPerson)
	fmt.Println()

	s, err := storage.BuildTestStore(config)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to build store: %v\n", err)
		os.Exit(1)
	}
	defer s.Close()

	if err := storage.TestStoreStats(s); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to get stats: %v\n", err)
		os.Exit(1)
	}

	fmt.Println("\n✅ Done! Run the chase over this store with:")
	fmt.Printf("   chase run --store %s --path %s examples/genealogy/rules.dlgp\n", config.Kind, config.OutputPath)
}
