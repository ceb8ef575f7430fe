package main

import (
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"golang.org/x/term"

	"github.com/1broseidon/wingroup/internal/bounds"
	"github.com/1broseidon/wingroup/internal/config"
	"github.com/1broseidon/wingroup/internal/group"
	"github.com/1broseidon/wingroup/internal/ipc"
	"github.com/1broseidon/wingroup/internal/remote"
)

func main() {
	if len(os.Args) < 2 {
		printMainUsage(os.Stdout)
		os.Exit(0)
	}

	switch os.Args[1] {
	case "daemon":
		os.Exit(runDaemon(os.Args[2:]))
	case "status":
		os.Exit(runStatus(os.Args[2:]))
	case "reload":
		os.Exit(runReload(os.Args[2:]))
	case "group":
		os.Exit(runGroup(os.Args[2:]))
	case "window":
		os.Exit(runWindow(os.Args[2:]))
	case "config":
		os.Exit(runConfig(os.Args[2:]))
	case "mcp":
		os.Exit(runMCP(os.Args[2:]))
	case "help", "-h", "--help":
		printMainUsage(os.Stdout)
		os.Exit(0)
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", os.Args[1])
		printMainUsage(os.Stderr)
		os.Exit(2)
	}
}

func printMainUsage(w io.Writer) {
	fmt.Fprintln(w, "Usage: wingroup <command> [options]")
	fmt.Fprintln(w, "")
	fmt.Fprintln(w, "Commands:")
	fmt.Fprintln(w, "  daemon              Start the wingroup daemon (foreground)")
	fmt.Fprintln(w, "  status              Show daemon status")
	fmt.Fprintln(w, "  reload              Reload the daemon configuration")
	fmt.Fprintln(w, "")
	fmt.Fprintln(w, "  group list          List groups and tracked windows")
	fmt.Fprintln(w, "  group join          Add a window to another window's group")
	fmt.Fprintln(w, "  group leave         Remove a window from its group")
	fmt.Fprintln(w, "  group merge         Merge two groups")
	fmt.Fprintln(w, "")
	fmt.Fprintln(w, "  window bounds       Place a window; its group follows")
	fmt.Fprintln(w, "  window move         Move a window by an offset")
	fmt.Fprintln(w, "  window moveto       Move a window to a position")
	fmt.Fprintln(w, "  window resize       Resize a window")
	fmt.Fprintln(w, "")
	fmt.Fprintln(w, "  config validate     Validate configuration")
	fmt.Fprintln(w, "  config print        Print configuration")
	fmt.Fprintln(w, "  config explain      Explain a config value")
	fmt.Fprintln(w, "")
	fmt.Fprintln(w, "  mcp serve           Start MCP server (stdio transport)")
	fmt.Fprintln(w, "")
	fmt.Fprintln(w, "Windows are named by X11 id (0x3a00007) or title substring. Prefix")
	fmt.Fprintln(w, "with a runtime id (peer/0x3a00007) for windows owned by a peer daemon.")
	fmt.Fprintln(w, "")
	fmt.Fprintln(w, "Run 'wingroup <command> --help' for command-specific options.")
}

// newClient connects to the daemon named by the configuration, falling back to
// the default socket when the config cannot be read.
func newClient() *ipc.Client {
	cfg, err := config.Load()
	if err != nil {
		return ipc.NewClient("")
	}
	path, err := cfg.SocketPath()
	if err != nil {
		return ipc.NewClient(cfg.RuntimeID)
	}
	return ipc.NewSocketClient(path, 5*time.Second)
}

// parseIdentity accepts "name" or "owner/name".
func parseIdentity(s string) (group.Identity, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return group.Identity{}, fmt.Errorf("empty window name")
	}
	if owner, name, ok := strings.Cut(s, "/"); ok && owner != "" && !strings.ContainsAny(owner, " \t") {
		if name == "" {
			return group.Identity{}, fmt.Errorf("missing window name in %q", s)
		}
		return group.Identity{Owner: owner, Name: name}, nil
	}
	return group.Identity{Name: s}, nil
}

// wantJSON reports whether output should be machine-readable: forced by
// --json, or when stdout is not a terminal.
func wantJSON(forced bool) bool {
	return forced || !term.IsTerminal(int(os.Stdout.Fd()))
}

func printJSON(v any) int {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	return 0
}

// exitCode maps daemon errors to distinct exit statuses.
func exitCode(err error) int {
	fmt.Fprintln(os.Stderr, err)
	switch {
	case errors.Is(err, bounds.ErrConstraintViolation):
		return 3
	case errors.Is(err, ipc.ErrNotFound), errors.Is(err, remote.ErrResolution):
		return 4
	default:
		return 1
	}
}

func parseFlags(fs *flag.FlagSet, args []string) (int, bool) {
	fs.SetOutput(os.Stderr)
	if err := fs.Parse(args); err != nil {
		if err == flag.ErrHelp {
			return 0, false
		}
		return 2, false
	}
	return 0, true
}

func runStatus(args []string) int {
	fs := flag.NewFlagSet("status", flag.ContinueOnError)
	asJSON := fs.Bool("json", false, "Print JSON")
	fs.Usage = func() {
		fmt.Fprintln(os.Stderr, "Usage: wingroup status [--json]")
		fmt.Fprintln(os.Stderr, "")
		fmt.Fprintln(os.Stderr, "Show daemon status via IPC.")
	}
	if code, ok := parseFlags(fs, args); !ok {
		return code
	}
	if fs.NArg() != 0 {
		fmt.Fprintln(os.Stderr, "status takes no arguments")
		fs.Usage()
		return 2
	}

	status, err := newClient().GetStatus()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	if wantJSON(*asJSON) {
		return printJSON(status)
	}
	fmt.Printf("daemon_running: %s\n", runningLabel(status.DaemonRunning))
	fmt.Printf("runtime_id:     %s\n", status.RuntimeID)
	fmt.Printf("backend:        %s\n", status.Backend)
	fmt.Printf("windows:        %d\n", status.Windows)
	fmt.Printf("proxies:        %d\n", status.Proxies)
	fmt.Printf("groups:         %d\n", status.Groups)
	if len(status.Peers) > 0 {
		fmt.Printf("peers:          %s\n", strings.Join(status.Peers, ", "))
	}
	fmt.Printf("uptime_seconds: %d\n", status.UptimeSeconds)
	return 0
}

func runReload(args []string) int {
	fs := flag.NewFlagSet("reload", flag.ContinueOnError)
	fs.Usage = func() {
		fmt.Fprintln(os.Stderr, "Usage: wingroup reload")
		fmt.Fprintln(os.Stderr, "")
		fmt.Fprintln(os.Stderr, "Ask the daemon to re-read its configuration.")
	}
	if code, ok := parseFlags(fs, args); !ok {
		return code
	}
	if err := newClient().Reload(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	fmt.Println("config reloaded")
	return 0
}
