package main

import (
	"context"
	"errors"
	"fmt"
	"os"
)

// Version is set at build time via ldflags
var Version = "dev"

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	if err := run(context.Background(), os.Args[1], os.Args[2:]); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		if errors.Is(err, errUsage) {
			os.Exit(2)
		}
		os.Exit(1)
	}
}

func run(ctx context.Context, name string, args []string) error {
	switch name {
	case "init":
		return cmdInit(os.Stdin, os.Stdout)
	case "config":
		return cmdConfig(os.Stdout)
	case "provider":
		return cmdProvider(args, os.Stdin, os.Stdout)
	case "logs":
		return cmdLogs(os.Stdout)
	case "mcp":
		return cmdMCP()
	case "events":
		return cmdEvents(os.Stdout)
	case "help", "-h", "--help":
		printUsage()
		return nil
	case "version", "-v", "--version":
		fmt.Printf("radquest %s\n", Version)
		return nil
	}

	c, err := daemonClient()
	if err != nil {
		return err
	}

	switch name {
	case "start":
		return cmdStart(ctx, c)
	case "stop":
		return cmdStop(ctx, c)
	case "status":
		return cmdStatus(ctx, c, os.Stdout)
	case "doctor":
		return cmdDoctor(ctx, c, os.Stdout)
	}

	cmd, ok := playCommands[name]
	if !ok {
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", name)
		printUsage()
		return fmt.Errorf("%w: unknown command %q", errUsage, name)
	}
	if !c.healthy(ctx) {
		return fmt.Errorf("daemon not running (run 'radquest start' first)")
	}
	return cmd(ctx, c, os.Stdout, args)
}

func printUsage() {
	fmt.Println(`radquest - learn about radioactivity by playing

Usage:
  radquest <command> [arguments]

Setup Commands:
  init            First-time setup
  doctor          Check configured backends
  config          Show current configuration
  provider        Manage answer judge providers

Daemon Commands:
  start           Start the radquest daemon
  stop            Stop the radquest daemon
  status          Show daemon status
  logs            View daemon logs
  events          Follow game events from RabbitMQ

Play Commands:
  levels                                List levels
  tasks <level>                         Show the tasks of a level
  submit -player -level -task [flags]   Answer a task
  stats <player>                        Show knowledge points and dose
  verify <player>                       Check stats against the attempt history
  attempts [-limit n] <player>          List recent attempts
  progress <player>                     Show level progress
  level start|complete <player> <level> Move a level forward

Integration Commands:
  mcp             Start MCP server on stdio

Examples:
  radquest start
  radquest tasks demo-level-1
  radquest submit -player anna -level demo-level-1 -task demo-task-shopping \
      -option demo-option-radiation-suit -reason "Der Anzug schirmt ab"
  radquest stats anna`)
}
