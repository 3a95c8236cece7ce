// =============================================================================
// Simland HDX Scraper - Main Entry Point
// =============================================================================
//
// USAGE:
//   simland run       - Build the Simland datasets and publish them to HDX
//   simland validate  - Check the metadata table without publishing
//   simland status    - Show the progress of the latest run
//   simland version   - Display the application version
//
// ARCHITECTURE:
//   - cmd/       : CLI command definitions (Cobra)
//   - internal/  : scraper logic (metadata, dataset builder, publishers, ...)
//   - pkg/       : shared file utilities
//   - config/    : static dataset template
//
// =============================================================================

package main

import (
	"github.com/simland/hdx-scraper-simland/cmd"
)

func main() {
	cmd.Execute()
}
