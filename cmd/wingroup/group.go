package main

import (
	"bytes"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/1broseidon/wingroup/internal/ipc"
)

func printGroupUsage(w io.Writer) {
	fmt.Fprintln(w, "Usage:")
	fmt.Fprintln(w, "  wingroup group list [--json]")
	fmt.Fprintln(w, "  wingroup group join <source> <target>")
	fmt.Fprintln(w, "  wingroup group leave <window>")
	fmt.Fprintln(w, "  wingroup group merge <source> <target>")
}

func runGroup(args []string) int {
	if len(args) == 0 {
		printGroupUsage(os.Stderr)
		return 2
	}

	switch args[0] {
	case "list":
		return runGroupList(args[1:])
	case "join", "merge":
		return runGroupPair(args[0], args[1:])
	case "leave":
		return runGroupLeave(args[1:])
	case "help", "-h", "--help":
		printGroupUsage(os.Stdout)
		return 0
	default:
		fmt.Fprintf(os.Stderr, "Unknown group command: %s\n\n", args[0])
		printGroupUsage(os.Stderr)
		return 2
	}
}

func runGroupList(args []string) int {
	fs := flag.NewFlagSet("list", flag.ContinueOnError)
	asJSON := fs.Bool("json", false, "Print JSON")
	if code, ok := parseFlags(fs, args); !ok {
		return code
	}

	data, err := newClient().ListGroups()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	if wantJSON(*asJSON) {
		return printJSON(data)
	}
	var buf bytes.Buffer
	writeGroups(&buf, data)
	fmt.Print(styleTable(buf.String(), func(line string) bool {
		return strings.HasPrefix(line, "-")
	}))
	return 0
}

func writeGroups(w io.Writer, data *ipc.GroupsData) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "GROUP\tWINDOW\tKIND\tBOUNDS")
	for _, g := range data.Groups {
		for _, m := range g.Members {
			fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", shortID(g.ID), m.Window, m.Kind, m.Bounds)
		}
	}
	for _, m := range data.Ungrouped {
		fmt.Fprintf(tw, "-\t%s\t%s\t%s\n", m.Window, m.Kind, m.Bounds)
	}
	tw.Flush()
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func runGroupPair(command string, args []string) int {
	fs := flag.NewFlagSet(command, flag.ContinueOnError)
	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: wingroup group %s <source> <target>\n", command)
	}
	if code, ok := parseFlags(fs, args); !ok {
		return code
	}
	if fs.NArg() != 2 {
		fs.Usage()
		return 2
	}
	source, err := parseIdentity(fs.Arg(0))
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 2
	}
	target, err := parseIdentity(fs.Arg(1))
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 2
	}

	client := newClient()
	if command == "join" {
		err = client.JoinGroup(source, target)
	} else {
		err = client.MergeGroups(source, target)
	}
	if err != nil {
		return exitCode(err)
	}
	return 0
}

func runGroupLeave(args []string) int {
	fs := flag.NewFlagSet("leave", flag.ContinueOnError)
	fs.Usage = func() {
		fmt.Fprintln(os.Stderr, "Usage: wingroup group leave <window>")
	}
	if code, ok := parseFlags(fs, args); !ok {
		return code
	}
	if fs.NArg() != 1 {
		fs.Usage()
		return 2
	}
	id, err := parseIdentity(fs.Arg(0))
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 2
	}
	if err := newClient().LeaveGroup(id); err != nil {
		return exitCode(err)
	}
	return 0
}
