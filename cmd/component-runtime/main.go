// Package main is the entrypoint for the component-runtime process.
package main

import (
	"fmt"
	"log"
	"os"

	"github.com/morezero/component-runtime/internal/server"
	"github.com/morezero/component-runtime/pkg/properties"
)

const version = "0.4.0"

const usage = `Usage: component-runtime [command]
       component-runtime serve               Start the runtime (service manager, remote router).
       component-runtime config check <file> Parse a routing properties file and list its keys.
       component-runtime version             Print the runtime version.

Commands:
  serve               (default) Start the component runtime.
  config check <file> Validate a routing properties file.
  version             Print version and exit.

Environment: COMMS_URL (default nats://127.0.0.1:4222), SERVICE_NAME, REMOTE_ENABLED,
ROUTER_CONFIG_FILE, SHUTDOWN_TIMEOUT, LOG_LEVEL.
`

func main() {
	args := os.Args[1:]
	cmd := ""
	if len(args) > 0 && args[0] != "" {
		cmd = args[0]
	}

	switch cmd {
	case "config":
		if len(args) < 3 || args[1] != "check" {
			log.Fatalf("component-runtime config: require subcommand check <file>")
		}
		if err := runConfigCheck(args[2]); err != nil {
			log.Fatalf("component-runtime config check: %v", err)
		}
		return
	case "version":
		fmt.Printf("component-runtime %s\n", version)
		return
	case "help", "-h", "--help":
		fmt.Print(usage)
		return
	case "serve", "":
		// serve (explicit or default)
	default:
		fmt.Fprintf(os.Stderr, "Unknown command %q.\n%s", cmd, usage)
		os.Exit(1)
	}

	if err := server.Run(server.Options{}); err != nil {
		log.Fatalf("component-runtime: %v", err)
	}
}

func runConfigCheck(path string) error {
	props, err := properties.ParseFile(path)
	if err != nil {
		return err
	}
	fmt.Printf("%s: %d properties\n", path, props.Len())
	for _, key := range props.Keys() {
		value, _ := props.Get(key)
		fmt.Printf("  %s = %s\n", key, value)
	}
	return nil
}
