package main

import (
	"io"
	"log"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"codeberg.org/snonux/flashrec/internal/cli"
	"codeberg.org/snonux/flashrec/internal/processor"
)

func main() {
	// A .env file is optional, it usually only carries OPENAI_API_KEY
	_ = godotenv.Load()

	flags := cli.NewFlags()

	rootCmd := cli.CreateRootCommand(flags, func() (cli.Actions, error) {
		return newProcessor(flags)
	})

	cobra.OnInitialize(func() {
		cli.InitConfig(flags.CfgFile)
	})

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func newProcessor(flags *cli.Flags) (*processor.Processor, error) {
	logger := log.New(io.Discard, "", 0)
	if flags.Verbose {
		logger = log.New(os.Stderr, "flashrec: ", log.LstdFlags)
	}

	return processor.NewProcessor(processor.Options{
		Settings: cli.LoadSettings(),
		Logger:   logger,
		Progress: true,
	})
}
