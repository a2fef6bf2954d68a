// Package cli implements the forgebridge command line surface: the
// default MCP stdio server, a host simulator for development, and a
// doctor command that checks the local setup.
package cli

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/forgebridge/forgebridge/internal/config"
	"github.com/forgebridge/forgebridge/internal/logging"
)

const version = "1.0.0"

// Exit codes follow sysexits loosely: 0 success, 1 internal failure,
// 2 usage or configuration error.
const (
	ExitOK       = 0
	ExitInternal = 1
	ExitUsageErr = 2
)

// configPathEnv overrides the XDG config file location.
const configPathEnv = "FORGEBRIDGE_CONFIG"

// Run is the main CLI entry point. Returns an exit code.
func Run(args []string) int {
	if len(args) > 0 {
		switch args[0] {
		case "-h", "--help", "help":
			printUsage(os.Stdout)
			return ExitOK
		case "version", "--version":
			fmt.Printf("forgebridge %s\n", version)
			return ExitOK
		}
	}

	cfg, err := loadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "forgebridge: %v\n", err)
		return ExitInternal
	}
	if verr := config.Validate(cfg); verr != nil {
		fmt.Fprintf(os.Stderr, "forgebridge: invalid config: %v\n", verr)
		return ExitUsageErr
	}

	log, err := logging.New(cfg.Log)
	if err != nil {
		fmt.Fprintf(os.Stderr, "forgebridge: %v\n", err)
		return ExitInternal
	}
	defer log.Sync() //nolint:errcheck

	mode := "serve"
	if len(args) > 0 {
		mode = args[0]
	}

	switch mode {
	case "serve":
		httpAddr, err := parseServeFlags(rest(args))
		if err != nil {
			fmt.Fprintf(os.Stderr, "forgebridge: %v\n", err)
			return ExitUsageErr
		}
		return runServe(cfg, log, httpAddr)
	case "hostsim":
		return runHostSim(cfg, log)
	case "doctor":
		return runDoctor(cfg, os.Stdout)
	default:
		fmt.Fprintf(os.Stderr, "forgebridge: unknown command: %s\n", mode)
		printUsage(os.Stderr)
		return ExitUsageErr
	}
}

// rest returns the arguments after the command word. The command may be
// implicit (no args means serve).
func rest(args []string) []string {
	if len(args) == 0 {
		return nil
	}
	return args[1:]
}

// parseServeFlags handles the serve options. --http ADDR additionally
// serves MCP over streamable HTTP on that address.
func parseServeFlags(args []string) (string, error) {
	httpAddr := ""
	for i := 0; i < len(args); i++ {
		switch {
		case args[i] == "--http":
			if i+1 >= len(args) {
				return "", fmt.Errorf("--http requires an address")
			}
			i++
			httpAddr = args[i]
		case strings.HasPrefix(args[i], "--http="):
			httpAddr = strings.TrimPrefix(args[i], "--http=")
		default:
			return "", fmt.Errorf("unsupported serve flag: %s", args[i])
		}
	}
	return httpAddr, nil
}

func loadConfig() (*config.Config, error) {
	if path := os.Getenv(configPathEnv); path != "" {
		return config.LoadFrom(path)
	}
	return config.Load()
}

func printUsage(out io.Writer) {
	fmt.Fprintln(out, "Usage: forgebridge [COMMAND]")
	fmt.Fprintln(out, "")
	fmt.Fprintln(out, "Commands:")
	fmt.Fprintln(out, "  serve      Run the MCP server on stdio (default); --http ADDR serves streamable HTTP")
	fmt.Fprintln(out, "  hostsim    Run an in-process host simulator")
	fmt.Fprintln(out, "  doctor     Check configuration, host reachability and credentials")
	fmt.Fprintln(out, "  version    Print the version")
	fmt.Fprintln(out, "")
	fmt.Fprintf(out, "Configuration is read from the XDG config dir, or from $%s.\n", configPathEnv)
}
