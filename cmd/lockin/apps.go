package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"text/tabwriter"

	"golang.org/x/term"

	"github.com/1broseidon/lockin/internal/config"
	"github.com/1broseidon/lockin/internal/ipc"
	"github.com/1broseidon/lockin/internal/launcher"
	"github.com/1broseidon/lockin/internal/registry"
)

func runStatus(args []string) int {
	fs := flag.NewFlagSet("status", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)
	asJSON := fs.Bool("json", false, "Print JSON (default when stdout is not a terminal)")
	fs.Usage = func() {
		fmt.Fprintln(os.Stderr, "Usage: lockin status [--json]")
		fmt.Fprintln(os.Stderr, "")
		fmt.Fprintln(os.Stderr, "Show the task desktop, managed applications and unmanaged windows.")
	}
	if err := fs.Parse(args); err != nil {
		if err == flag.ErrHelp {
			return 0
		}
		return 2
	}
	if fs.NArg() != 0 {
		fmt.Fprintln(os.Stderr, "status takes no arguments")
		fs.Usage()
		return 2
	}

	client := ipc.NewClient()
	status, err := client.Status()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}

	interactive := term.IsTerminal(int(os.Stdout.Fd()))
	if *asJSON || !interactive {
		return printJSON(status)
	}
	printStatusTable(os.Stdout, status, terminalWidth())
	return 0
}

func terminalWidth() int {
	w, _, err := term.GetSize(int(os.Stdout.Fd()))
	if err != nil || w <= 0 {
		return 100
	}
	return w
}

func printStatusTable(w io.Writer, status *ipc.StatusData, width int) {
	fmt.Fprintf(w, "daemon_pid:     %d\n", status.PID)
	fmt.Fprintf(w, "uptime_seconds: %d\n", status.UptimeSeconds)
	switch {
	case status.Session == nil:
		fmt.Fprintln(w, "desktop:        none")
	case status.Session.Degraded:
		fmt.Fprintf(w, "desktop:        degraded (%s)\n", status.Session.Reason)
	default:
		fmt.Fprintf(w, "desktop:        %d (previous %d)\n", status.Session.Desktop, status.Session.Previous)
	}
	fmt.Fprintln(w, "")

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tNAME\tPID\tSTATUS\tWINDOWS\tMAIN")
	for _, app := range status.Apps {
		mainWin := "-"
		if app.HasMainWindow() {
			mainWin = app.MainWindow.String()
		}
		fmt.Fprintf(tw, "%s\t%s\t%d\t%s\t%d\t%s\n", shortID(app.ID), app.Name, app.PID, app.Status, len(app.Windows), mainWin)
	}
	tw.Flush()

	if len(status.Unmanaged) == 0 {
		return
	}
	fmt.Fprintln(w, "")
	fmt.Fprintln(w, "Unmanaged windows:")
	titleWidth := width - 40
	if titleWidth < 20 {
		titleWidth = 20
	}
	tw = tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "HANDLE\tPID\tCLASS\tTITLE")
	for _, win := range status.Unmanaged {
		fmt.Fprintf(tw, "%s\t%d\t%s\t%s\n", win.ID, win.PID, win.Class, truncate(win.Title, titleWidth))
	}
	tw.Flush()
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func truncate(s string, max int) string {
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	return string(r[:max-1]) + "…"
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

func printApp(app *registry.App) {
	fmt.Printf("id:      %s\n", app.ID)
	fmt.Printf("name:    %s\n", app.Name)
	fmt.Printf("pid:     %d\n", app.PID)
	fmt.Printf("status:  %s\n", app.Status)
	if app.HasMainWindow() {
		fmt.Printf("window:  %s\n", app.MainWindow)
	}
	if app.Error != "" {
		fmt.Printf("error:   %s\n", app.Error)
	}
}

func runLaunch(args []string) int {
	fs := flag.NewFlagSet("launch", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)
	name := fs.String("name", "", "Display name (default: executable base name)")
	console := fs.Bool("console", false, "Start the program in its own console window")
	wait := fs.Bool("wait", true, "Wait until the launch resolved to a window or failed")
	asJSON := fs.Bool("json", false, "Print the application as JSON")
	fs.Usage = func() {
		fmt.Fprintln(os.Stderr, "Usage: lockin launch [--name NAME] [--console] [--wait=false] <command> [args...]")
		fmt.Fprintln(os.Stderr, "")
		fmt.Fprintln(os.Stderr, "Launch an application onto the task desktop and track its windows.")
		fs.PrintDefaults()
	}
	if err := fs.Parse(args); err != nil {
		if err == flag.ErrHelp {
			return 0
		}
		return 2
	}
	if fs.NArg() < 1 {
		fmt.Fprintln(os.Stderr, "launch requires <command>")
		fs.Usage()
		return 2
	}

	req := launcher.Request{
		DisplayName: *name,
		Command:     fs.Arg(0),
		Args:        fs.Args()[1:],
		Policy:      launcher.Policy{AllocateConsole: *console},
	}
	app, err := ipc.NewClient().Launch(req, *wait)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	if *asJSON {
		return printJSON(app)
	}
	printApp(app)
	if app.Status == registry.Failed {
		return 1
	}
	return 0
}

func runFocus(args []string) int {
	target, code, ok := parseTarget("focus", "Bring an application (by id or id prefix) or a window handle to the foreground.", args)
	if !ok {
		return code
	}
	win, err := ipc.NewClient().Focus(target)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	fmt.Printf("focused %s\n", win)
	return 0
}

func runMinimizeAll(args []string) int {
	if !noArgs("minimize-all", "Minimize every window on the task desktop.", args) {
		return 2
	}
	n, err := ipc.NewClient().MinimizeAll()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	fmt.Printf("minimized %d windows\n", n)
	return 0
}

func runCloseAll(args []string) int {
	if !noArgs("close-all", "Close every window on the task desktop and forget all managed applications.", args) {
		return 2
	}
	n, err := ipc.NewClient().CloseAll()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	fmt.Printf("closed %d windows\n", n)
	return 0
}

func runAppCommand(cmd string, args []string) int {
	descriptions := map[string]string{
		"close":    "Close an application's windows, terminating it if it does not exit.",
		"minimize": "Minimize an application's windows.",
		"restore":  "Restore an application's minimized windows.",
	}
	id, code, ok := parseTarget(cmd, descriptions[cmd], args)
	if !ok {
		return code
	}

	client := ipc.NewClient()
	var err error
	var n int
	switch cmd {
	case "close":
		err = client.CloseApp(id)
	case "minimize":
		n, err = client.MinimizeApp(id)
	case "restore":
		n, err = client.RestoreApp(id)
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	if cmd == "close" {
		fmt.Printf("closed %s\n", id)
	} else {
		fmt.Printf("%sd %d windows\n", cmd, n)
	}
	return 0
}

func runComplete(args []string) int {
	if !noArgs("complete", "Close everything on the task desktop, remove it and return to the previous desktop.", args) {
		return 2
	}
	report, err := ipc.NewClient().CompleteTask()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	fmt.Printf("closed:          %d\n", report.Closed)
	fmt.Printf("already_gone:    %d\n", report.AlreadyGone)
	fmt.Printf("terminated:      %d\n", report.Terminated)
	fmt.Printf("remaining:       %d\n", report.Remaining)
	fmt.Printf("desktop_removed: %v\n", report.Removed)
	if report.Remaining > 0 {
		return 1
	}
	return 0
}

func parseTarget(cmd, description string, args []string) (string, int, bool) {
	fs := flag.NewFlagSet(cmd, flag.ContinueOnError)
	fs.SetOutput(os.Stderr)
	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: lockin %s <app-id|window>\n", cmd)
		fmt.Fprintln(os.Stderr, "")
		fmt.Fprintln(os.Stderr, description)
	}
	if err := fs.Parse(args); err != nil {
		if err == flag.ErrHelp {
			return "", 0, false
		}
		return "", 2, false
	}
	if fs.NArg() != 1 {
		fmt.Fprintf(os.Stderr, "%s requires exactly one target\n", cmd)
		fs.Usage()
		return "", 2, false
	}
	return fs.Arg(0), 0, true
}

func noArgs(cmd, description string, args []string) bool {
	if len(args) == 0 {
		return true
	}
	if isHelpArg(args[0]) {
		fmt.Fprintf(os.Stdout, "Usage: lockin %s\n\n%s\n", cmd, description)
		os.Exit(0)
	}
	fmt.Fprintf(os.Stderr, "%s takes no arguments\n", cmd)
	return false
}

func printPresetUsage(w io.Writer) {
	fmt.Fprintln(w, "Usage:")
	fmt.Fprintln(w, "  lockin preset list [--path PATH]")
	fmt.Fprintln(w, "  lockin preset load <name>")
}

func runPreset(args []string) int {
	if len(args) == 0 {
		printPresetUsage(os.Stderr)
		return 2
	}

	switch args[0] {
	case "list":
		fs := flag.NewFlagSet("list", flag.ContinueOnError)
		fs.SetOutput(os.Stderr)
		path := fs.String("path", "", "Config file path (default: ~/.config/lockin/config.yaml)")
		if err := fs.Parse(args[1:]); err != nil {
			return 2
		}
		res, err := loadConfigResult(*path)
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			return 1
		}
		printPresets(os.Stdout, res.Config.Presets)
		return 0

	case "load":
		if len(args) != 2 || isHelpArg(args[1]) {
			printPresetUsage(os.Stderr)
			return 2
		}
		data, err := ipc.NewClient().LoadPreset(args[1])
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			return 1
		}
		for _, app := range data.Apps {
			fmt.Printf("%s  %-20s %s\n", shortID(app.ID), app.Name, app.Status)
		}
		if data.Error != "" {
			fmt.Fprintf(os.Stderr, "Warning: some launches failed: %s\n", data.Error)
			return 1
		}
		return 0

	case "help", "-h", "--help":
		printPresetUsage(os.Stdout)
		return 0
	default:
		fmt.Fprintf(os.Stderr, "Unknown preset command: %s\n\n", args[0])
		printPresetUsage(os.Stderr)
		return 2
	}
}

func printPresets(w io.Writer, presets map[string]config.Preset) {
	names := make([]string, 0, len(presets))
	for name := range presets {
		names = append(names, name)
	}
	sort.Strings(names)

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "NAME\tAPPS\tTABS\tDESCRIPTION")
	for _, name := range names {
		p := presets[name]
		fmt.Fprintf(tw, "%s\t%d\t%d\t%s\n", name, len(p.Apps), len(p.BrowserTabs), strings.TrimSpace(p.Description))
	}
	tw.Flush()
}
