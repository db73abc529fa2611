// keytally - key combo logger with frequency statistics
//
//	keytally init                 Create the config file and key log
//	keytally run                  Capture keyboards and log combos
//	keytally replay <file>        Feed a recorded event file through the tracker
//	keytally stats [keys|bigrams|trigrams]
//	keytally devices              List keyboards
//	keytally config show|check    Inspect the effective configuration
package main

import (
	"os"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
