package config_test

import (
	"fmt"
	"log"

	"github.com/ajitpratap0/serialscope/pkg/config"
)

// ExampleNewDefaultConfig demonstrates creating a new configuration
// with default values.
func ExampleNewDefaultConfig() {
	cfg := config.NewDefaultConfig("bench-rig")

	// The configuration comes with sensible defaults
	fmt.Printf("Row Limit: %d\n", cfg.Pipeline.RowLimit)
	fmt.Printf("Baud Rate: %d\n", cfg.Serial.BaudRate)
	fmt.Printf("Export Format: %s\n", cfg.Export.Format)

	// Output:
	// Row Limit: 1000
	// Baud Rate: 115200
	// Export Format: csv
}

// ExampleConfig_Validate shows how to validate a configuration
// before using it.
func ExampleConfig_Validate() {
	cfg := config.NewDefaultConfig("bench-rig")

	// Modify some values
	cfg.Pipeline.RowLimit = 500
	cfg.Serial.Port = "/dev/ttyUSB0"
	cfg.Serial.BaudRate = 9600

	// Validate the configuration
	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	fmt.Println("Configuration is valid!")

	// Output:
	// Configuration is valid!
}
