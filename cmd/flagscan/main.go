package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"

	"flag-scanner/internal/cli"
	"flag-scanner/internal/logging"
)

func main() {
	// A .env in the working directory is optional.
	_ = godotenv.Load()

	// Console-only until the config directory is known.
	bootstrap := logging.DefaultLogConfig()
	bootstrap.File = false
	app := cli.NewApp(logging.NewLoggerWithConfig(bootstrap))
	app.LoggerFromConfig = true

	err := cli.NewRootCmd(app).Execute()
	if cerr := app.Close(); cerr != nil && err == nil {
		err = cerr
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
