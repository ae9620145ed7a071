package main

import (
	"context"
	"fmt"
	"os"

	"github.com/noah-isme/attendance-offline-sync/internal/cli"
)

// @title Attendance Agent API
// @version 0.1.0
// @description Local API of the offline-first attendance agent
// @BasePath /
// @schemes http

func main() {
	cmd := cli.NewRootCommand()
	if err := cmd.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(cli.GetExitCode(err))
	}
}
