/*
Package cli provides command-line interface utilities for Cerebro.

The cli package includes output formatters, signal handling, and common
CLI error types used by the cerebro command.

Output Formatting:

The cli package supports text and JSON output formats for displaying
command results:

	formatter := cli.NewFormatter(cli.FormatJSON)
	data := MyCommandResult{...}
	if err := formatter.FormatTo(os.Stdout, data); err != nil {
		return err
	}

Signal Handling:

For graceful shutdown on SIGINT/SIGTERM:

	ctx, stop := cli.ShutdownContext(context.Background())
	defer stop()
	// Use ctx for operations that should be cancelled on shutdown
*/
package cli
