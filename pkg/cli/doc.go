/*
Package cli provides command-line helpers for the provost command.

Error Types:

Commands wrap failures in typed errors so the entry point can report
them consistently:

	if err := config.Validate(cfg); err != nil {
		return cli.NewConfigError("storage.backend", err.Error())
	}

Signal Handling:

For graceful shutdown on SIGINT/SIGTERM:

	ctx := cli.SetupSignalHandler()
	// Use ctx for operations that should be cancelled on shutdown
*/
package cli
