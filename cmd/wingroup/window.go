package main

import (
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/1broseidon/wingroup/internal/ipc"
	"github.com/1broseidon/wingroup/internal/platform"
)

func printWindowUsage(w io.Writer) {
	fmt.Fprintln(w, "Usage:")
	fmt.Fprintln(w, "  wingroup window bounds --x X --y Y --width W --height H <window>")
	fmt.Fprintln(w, "  wingroup window move --dx DX --dy DY <window>")
	fmt.Fprintln(w, "  wingroup window moveto --x X --y Y <window>")
	fmt.Fprintln(w, "  wingroup window resize --width W --height H <window>")
	fmt.Fprintln(w, "")
	fmt.Fprintln(w, "Requests that a member's size limits cannot absorb fail with exit")
	fmt.Fprintln(w, "status 3 and move nothing.")
}

func runWindow(args []string) int {
	if len(args) == 0 {
		printWindowUsage(os.Stderr)
		return 2
	}

	switch args[0] {
	case "bounds":
		return runWindowBounds(args[1:])
	case "move":
		return runWindowMove(args[1:])
	case "moveto":
		return runWindowMoveTo(args[1:])
	case "resize":
		return runWindowResize(args[1:])
	case "help", "-h", "--help":
		printWindowUsage(os.Stdout)
		return 0
	default:
		fmt.Fprintf(os.Stderr, "Unknown window command: %s\n\n", args[0])
		printWindowUsage(os.Stderr)
		return 2
	}
}

func runWindowBounds(args []string) int {
	fs := flag.NewFlagSet("bounds", flag.ContinueOnError)
	x := fs.Int("x", 0, "Left edge")
	y := fs.Int("y", 0, "Top edge")
	width := fs.Int("width", 0, "Width")
	height := fs.Int("height", 0, "Height")
	asJSON := fs.Bool("json", false, "Print JSON")
	if code, ok := parseFlags(fs, args); !ok {
		return code
	}
	if fs.NArg() != 1 || *width <= 0 || *height <= 0 {
		printWindowUsage(os.Stderr)
		return 2
	}
	id, err := parseIdentity(fs.Arg(0))
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 2
	}

	data, err := newClient().SetBounds(id, platform.Rect{X: *x, Y: *y, Width: *width, Height: *height})
	if err != nil {
		return exitCode(err)
	}
	return printBounds(data, *asJSON)
}

func runWindowMove(args []string) int {
	fs := flag.NewFlagSet("move", flag.ContinueOnError)
	dx := fs.Int("dx", 0, "Horizontal offset")
	dy := fs.Int("dy", 0, "Vertical offset")
	asJSON := fs.Bool("json", false, "Print JSON")
	if code, ok := parseFlags(fs, args); !ok {
		return code
	}
	if fs.NArg() != 1 {
		printWindowUsage(os.Stderr)
		return 2
	}
	id, err := parseIdentity(fs.Arg(0))
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 2
	}

	data, err := newClient().MoveBy(id, *dx, *dy)
	if err != nil {
		return exitCode(err)
	}
	return printBounds(data, *asJSON)
}

func runWindowMoveTo(args []string) int {
	fs := flag.NewFlagSet("moveto", flag.ContinueOnError)
	x := fs.Int("x", 0, "Left edge")
	y := fs.Int("y", 0, "Top edge")
	asJSON := fs.Bool("json", false, "Print JSON")
	if code, ok := parseFlags(fs, args); !ok {
		return code
	}
	if fs.NArg() != 1 {
		printWindowUsage(os.Stderr)
		return 2
	}
	id, err := parseIdentity(fs.Arg(0))
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 2
	}

	data, err := newClient().MoveTo(id, *x, *y)
	if err != nil {
		return exitCode(err)
	}
	return printBounds(data, *asJSON)
}

func runWindowResize(args []string) int {
	fs := flag.NewFlagSet("resize", flag.ContinueOnError)
	width := fs.Int("width", 0, "Width")
	height := fs.Int("height", 0, "Height")
	asJSON := fs.Bool("json", false, "Print JSON")
	if code, ok := parseFlags(fs, args); !ok {
		return code
	}
	if fs.NArg() != 1 || *width <= 0 || *height <= 0 {
		printWindowUsage(os.Stderr)
		return 2
	}
	id, err := parseIdentity(fs.Arg(0))
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 2
	}

	data, err := newClient().ResizeTo(id, *width, *height)
	if err != nil {
		return exitCode(err)
	}
	return printBounds(data, *asJSON)
}

func printBounds(data *ipc.BoundsData, asJSON bool) int {
	if wantJSON(asJSON) {
		return printJSON(data)
	}
	fmt.Printf("%s -> %s\n", data.Window, data.Bounds)
	for _, m := range data.Moved {
		if m.Window == data.Window {
			continue
		}
		fmt.Printf("  %s -> %s\n", m.Window, m.Bounds)
	}
	return 0
}
