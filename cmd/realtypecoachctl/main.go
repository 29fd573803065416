// realtypecoachctl is the control CLI for realtypecoachd.
//
//	realtypecoachctl status              Show daemon status
//	realtypecoachctl sync                Trigger a sync cycle now
//	realtypecoachctl export <path>       Export bursts to CSV
//	realtypecoachctl clear               Wipe all stored data
//	realtypecoachctl reload              Reload the config file
//	realtypecoachctl settings            List all settings
//	realtypecoachctl settings get <key>  Show one setting
//	realtypecoachctl settings set <k> <v> Update one setting
//	realtypecoachctl watch               Stream daemon events
package main

import (
	"bufio"
	"flag"
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/Dronakurl/realtypecoach/internal/config"
	"github.com/Dronakurl/realtypecoach/internal/ipc"
)

// Version information (set via ldflags during build)
var (
	Version   = "dev"
	BuildTime = "unknown"
	Commit    = "unknown"
)

var (
	socketPath  = flag.String("socket", "", "path to the daemon control socket")
	showVersion = flag.Bool("version", false, "show version information")
)

func main() {
	flag.Parse()

	if *showVersion {
		fmt.Printf("realtypecoachctl %s (built %s, commit %s)\n", Version, BuildTime, Commit)
		return
	}

	args := flag.Args()
	if len(args) == 0 {
		usage()
		os.Exit(2)
	}

	client := ipc.NewClient(resolveSocketPath())
	if err := client.Connect("realtypecoachctl"); err != nil {
		fail(err)
	}
	defer client.Close()

	var err error
	switch args[0] {
	case "status":
		err = cmdStatus(client)
	case "sync":
		err = cmdSync(client)
	case "export":
		err = cmdExport(client, args[1:])
	case "clear":
		err = cmdClear(client)
	case "reload":
		err = client.ReloadConfig()
	case "settings":
		err = cmdSettings(client, args[1:])
	case "watch":
		err = cmdWatch(client)
	default:
		usage()
		os.Exit(2)
	}
	if err != nil {
		fail(err)
	}
}

func resolveSocketPath() string {
	if *socketPath != "" {
		return *socketPath
	}
	if cfg, err := config.Load(""); err == nil {
		return cfg.IPC.SocketPath
	}
	return config.DefaultConfig().IPC.SocketPath
}

func usage() {
	fmt.Fprintln(os.Stderr, "usage: realtypecoachctl [flags] <status|sync|export|clear|reload|settings|watch>")
	flag.PrintDefaults()
}

func fail(err error) {
	fmt.Fprintf(os.Stderr, "realtypecoachctl: %v\n", err)
	os.Exit(1)
}

func cmdStatus(client *ipc.Client) error {
	st, err := client.Status()
	if err != nil {
		return err
	}

	fmt.Printf("daemon:      running, up %s\n", st.Uptime)
	fmt.Printf("layout:      %s\n", st.ActiveLayout)
	fmt.Printf("devices:     %s\n", strings.Join(st.Devices, ", "))
	fmt.Printf("queue:       %d buffered, %d dropped, %d consumed\n",
		st.QueueDepth, st.QueueDrops, st.EventsConsumed)
	fmt.Printf("today:       %d keystrokes, %d bursts, %.1f avg WPM, %.1f best\n",
		st.KeystrokesToday, st.BurstsToday, st.AvgWPMToday, st.TodayBestWPM)
	fmt.Printf("long-term:   %.1f avg WPM\n", st.LongTermAvgWPM)

	if st.SyncEnabled {
		last := "never"
		if st.LastSyncAt > 0 {
			last = time.UnixMilli(st.LastSyncAt).Format(time.RFC3339)
		}
		fmt.Printf("sync:        enabled, last %s\n", last)
		if st.LastSyncError != "" {
			fmt.Printf("sync error:  %s\n", st.LastSyncError)
		}
	} else {
		fmt.Printf("sync:        disabled\n")
	}
	return nil
}

func cmdSync(client *ipc.Client) error {
	resp, err := client.SyncNow()
	if err != nil {
		return err
	}
	if resp.InProgress {
		fmt.Println("sync already in progress")
		return nil
	}
	fmt.Printf("pushed %d, pulled %d, merged %d in %dms\n",
		resp.Pushed, resp.Pulled, resp.Merged, resp.DurationMs)
	if resp.Error != "" {
		fmt.Printf("completed with error: %s\n", resp.Error)
	}
	return nil
}

func cmdExport(client *ipc.Client, args []string) error {
	fs := flag.NewFlagSet("export", flag.ExitOnError)
	fromDate := fs.String("from", "", "start date (YYYY-MM-DD)")
	toDate := fs.String("to", "", "end date (YYYY-MM-DD, exclusive)")
	fs.Parse(args)

	if fs.NArg() != 1 {
		return fmt.Errorf("export needs exactly one output path")
	}

	var fromMs, toMs int64
	if *fromDate != "" {
		t, err := time.ParseInLocation("2006-01-02", *fromDate, time.Local)
		if err != nil {
			return fmt.Errorf("bad -from date: %w", err)
		}
		fromMs = t.UnixMilli()
	}
	if *toDate != "" {
		t, err := time.ParseInLocation("2006-01-02", *toDate, time.Local)
		if err != nil {
			return fmt.Errorf("bad -to date: %w", err)
		}
		toMs = t.UnixMilli()
	}

	resp, err := client.Export(fs.Arg(0), fromMs, toMs)
	if err != nil {
		return err
	}
	fmt.Printf("exported to %s\n", resp.OutputPath)
	return nil
}

func cmdClear(client *ipc.Client) error {
	fmt.Print("This permanently deletes all typing statistics. Type 'yes' to continue: ")
	reader := bufio.NewReader(os.Stdin)
	line, _ := reader.ReadString('\n')
	if strings.TrimSpace(line) != "yes" {
		fmt.Println("aborted")
		return nil
	}
	if err := client.Clear(); err != nil {
		return err
	}
	fmt.Println("all data cleared")
	return nil
}

func cmdSettings(client *ipc.Client, args []string) error {
	settings, err := client.GetSettings()
	if err != nil {
		return err
	}

	if len(args) == 0 {
		keys := make([]string, 0, len(settings))
		for k := range settings {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			fmt.Printf("%-42s %s\n", k, settings[k])
		}
		return nil
	}

	switch args[0] {
	case "get":
		if len(args) != 2 {
			return fmt.Errorf("settings get needs a key")
		}
		value, ok := settings[args[1]]
		if !ok {
			return fmt.Errorf("unknown setting %q", args[1])
		}
		fmt.Println(value)
		return nil
	case "set":
		if len(args) != 3 {
			return fmt.Errorf("settings set needs a key and a value")
		}
		if err := client.SetSetting(args[1], args[2]); err != nil {
			return err
		}
		fmt.Printf("%s = %s\n", args[1], args[2])
		return nil
	default:
		return fmt.Errorf("unknown settings subcommand %q", args[0])
	}
}

func cmdWatch(client *ipc.Client) error {
	if err := client.Subscribe(); err != nil {
		return err
	}
	fmt.Println("streaming events, ctrl-c to stop")
	for ev := range client.Events() {
		ts := time.UnixMilli(ev.Timestamp).Format("15:04:05")
		fmt.Printf("[%s] %-22s %s\n", ts, ev.Type, string(ev.Data))
	}
	return nil
}
