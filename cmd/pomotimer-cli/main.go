package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"os/exec"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"pomotimer/internal/ipc"
	"pomotimer/internal/session"
	"pomotimer/internal/wake"

	sqlitestore "pomotimer/internal/storage/sqlite"
)

var (
	socketPath   string
	outputFormat string
	dbPath       string
)

var rootCmd = &cobra.Command{
	Use:   "pomotimer-cli",
	Short: "CLI tool to interact with the pomotimer daemon",
	Long:  `A command-line interface to control the running pomotimer daemon via its Unix socket, follow its live state and relay session-end wake signals.`,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		if socketPath == "" {
			socketPath = os.Getenv("POMOTIMER_SOCKET_PATH")
		}
		if socketPath == "" {
			socketPath = ipc.SocketPath
		}
		switch outputFormat {
		case "text", "json", "yaml":
		default:
			log.Fatalf("Invalid output format: %s. Use 'text', 'json' or 'yaml'", outputFormat)
		}
	},
}

// --- Client Helper Functions ---

func sendCommand(cmd ipc.Command) ipc.Response {
	resp, err := ipc.Send(socketPath, cmd, 5*time.Second)
	if err != nil {
		log.Fatalf("%v\nIs the pomotimer daemon running?", err)
	}
	return resp
}

// run sends cmd and prints the response, exiting non-zero on failure.
func run(cmd ipc.Command) {
	printResponse(sendCommand(cmd))
}

func printResponse(resp ipc.Response) {
	if !resp.Success {
		if resp.Code != "" {
			fmt.Fprintf(os.Stderr, "Error (%s): %s\n", resp.Code, resp.Message)
		} else {
			fmt.Fprintf(os.Stderr, "Error: %s\n", resp.Message)
		}
		os.Exit(1)
	}

	switch outputFormat {
	case "json":
		printJSON(resp)
	case "yaml":
		printYAML(resp)
	default:
		fmt.Println("Success:", resp.Message)
		if resp.Data != nil {
			var f ipc.Frame
			if err := ipc.DecodeArgs(resp.Data, &f); err == nil && f.State != "" {
				fmt.Println(formatFrame(f))
				return
			}
			pretty, err := json.MarshalIndent(resp.Data, "", "  ")
			if err == nil {
				fmt.Println("Data:")
				fmt.Println(string(pretty))
			} else {
				fmt.Println("Data (raw):", resp.Data)
			}
		}
	}
}

func printJSON(v interface{}) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		log.Fatalf("Error encoding json: %v", err)
	}
	fmt.Println(string(data))
}

func printYAML(v interface{}) {
	data, err := yaml.Marshal(v)
	if err != nil {
		log.Fatalf("Error encoding yaml: %v", err)
	}
	fmt.Print(string(data))
}

func printFrame(f ipc.Frame) {
	switch outputFormat {
	case "json":
		data, _ := json.Marshal(f)
		fmt.Println(string(data))
	case "yaml":
		fmt.Println("---")
		printYAML(f)
	default:
		fmt.Println(formatFrame(f))
	}
}

func formatFrame(f ipc.Frame) string {
	mode := "remaining"
	if f.Snapshot.IsCountingUp {
		mode = "elapsed"
	}
	return fmt.Sprintf("%-8s %-5s %s %s", f.State, f.Snapshot.Kind(), f.Snapshot.Clock(), mode)
}

// --- Command Definitions ---

var pingCmd = &cobra.Command{
	Use:   "ping",
	Short: "Check if the pomotimer daemon is running",
	Run: func(cmd *cobra.Command, args []string) {
		run(ipc.Command{Name: ipc.CmdPing})
	},
}

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Start a session, replacing any session in progress",
	Run: func(cmd *cobra.Command, args []string) {
		var startArgs ipc.StartArgs
		if cmd.Flags().Changed("duration") {
			d, _ := cmd.Flags().GetDuration("duration")
			secs := int(d / time.Second)
			startArgs.Seconds = &secs
		}
		running, _ := cmd.Flags().GetBool("running")
		startArgs.IsRunning = &running
		if cmd.Flags().Changed("paused") {
			paused, _ := cmd.Flags().GetBool("paused")
			startArgs.IsPaused = &paused
		}
		if cmd.Flags().Changed("count-up") {
			up, _ := cmd.Flags().GetBool("count-up")
			startArgs.IsCountingUp = &up
		}
		if cmd.Flags().Changed("break") {
			isBreak, _ := cmd.Flags().GetBool("break")
			work := !isBreak
			startArgs.IsWorkSession = &work
		}
		run(ipc.Command{Name: ipc.CmdStart, Args: startArgs})
	},
}

var pauseCmd = &cobra.Command{
	Use:   "pause",
	Short: "Pause the running session",
	Run: func(cmd *cobra.Command, args []string) {
		run(ipc.Command{Name: ipc.CmdPause})
	},
}

var resumeCmd = &cobra.Command{
	Use:   "resume",
	Short: "Resume the paused session",
	Run: func(cmd *cobra.Command, args []string) {
		run(ipc.Command{Name: ipc.CmdResume})
	},
}

var stopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Stop the session and reset the timer",
	Run: func(cmd *cobra.Command, args []string) {
		run(ipc.Command{Name: ipc.CmdStop})
	},
}

var stateCmd = &cobra.Command{
	Use:   "state",
	Short: "Show the persisted session state",
	Long:  `Show the last persisted session state. With --db the database is read directly and the daemon does not need to be running.`,
	Run: func(cmd *cobra.Command, args []string) {
		if dbPath == "" {
			run(ipc.Command{Name: ipc.CmdGetState})
			return
		}
		if _, err := os.Stat(dbPath); err != nil {
			log.Fatalf("Error accessing database file %s: %v", dbPath, err)
		}
		store := sqlitestore.NewSQLiteStore(dbPath)
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := store.Init(ctx); err != nil {
			log.Fatalf("Failed to initialize storage connection: %v", err)
		}
		defer store.Close()

		snap, err := store.LoadSnapshot(ctx)
		if err != nil {
			log.Fatalf("Failed to read state: %v", err)
		}
		printResponse(ipc.Response{Success: true, Message: "state from " + dbPath, Data: ipc.NewFrame(snap)})
	},
}

var attachCmd = &cobra.Command{
	Use:   "attach",
	Short: "Follow live session transitions until interrupted",
	Run: func(cmd *cobra.Command, args []string) {
		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		// Cold state first, then live frames.
		if resp, err := ipc.Send(socketPath, ipc.Command{Name: ipc.CmdGetState}, 5*time.Second); err == nil && resp.Success {
			var f ipc.Frame
			if err := ipc.DecodeArgs(resp.Data, &f); err == nil {
				printFrame(f)
			}
		}
		err := ipc.Attach(ctx, socketPath, func(f ipc.Frame) error {
			printFrame(f)
			return nil
		})
		if err != nil && ctx.Err() == nil {
			log.Fatalf("Attach failed: %v", err)
		}
	},
}

var ackCmd = &cobra.Command{
	Use:   "ack",
	Short: "Acknowledge a session end",
	Run: func(cmd *cobra.Command, args []string) {
		isBreak, _ := cmd.Flags().GetBool("break")
		run(ipc.Command{Name: ipc.CmdAckSessionEnd, Args: ipc.AckSessionEndArgs{IsWorkSession: !isBreak}})
	},
}

var cancelCmd = &cobra.Command{
	Use:   "cancel",
	Short: "Cancel a notification (all session notifications without --id)",
	Run: func(cmd *cobra.Command, args []string) {
		var cancelArgs ipc.CancelNotificationArgs
		if cmd.Flags().Changed("id") {
			id, _ := cmd.Flags().GetInt("id")
			cancelArgs.ID = &id
		}
		run(ipc.Command{Name: ipc.CmdCancelNotification, Args: cancelArgs})
	},
}

var actionCmd = &cobra.Command{
	Use:   "action <intent>",
	Short: "Replay a notification action (pause_action, resume_action, stop_action or a payload tag)",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		run(ipc.Command{Name: ipc.CmdNotificationAction, Args: ipc.NotificationActionArgs{Action: session.Intent(args[0])}})
	},
}

var wakeListenCmd = &cobra.Command{
	Use:   "wake-listen",
	Short: "Relay session-end wake signals from NATS to the daemon and launch the presentation",
	Long: `Subscribe to the daemon's session-end wake subject. For every signal the
re-entry is reported to the daemon and, with --exec, the given command is run
with the directive appended as its last argument and in POMOTIMER_DIRECTIVE.`,
	Run: func(cmd *cobra.Command, args []string) {
		url, _ := cmd.Flags().GetString("nats")
		subject, _ := cmd.Flags().GetString("subject")
		execLine, _ := cmd.Flags().GetString("exec")

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		log.Printf("Listening for wake signals on %s (%s)", subject, url)
		err := wake.Listen(ctx, url, subject, func(req wake.Request) {
			isWork := req.IsWorkSession
			resp, err := ipc.Send(socketPath, ipc.Command{
				Name: ipc.CmdReentry,
				Args: ipc.ReentryArgs{Payload: req.Payload, IsWorkSession: &isWork},
			}, 5*time.Second)
			if err != nil {
				log.Printf("Re-entry failed: %v", err)
				return
			}
			if !resp.Success {
				log.Printf("Re-entry refused (%s): %s", resp.Code, resp.Message)
				return
			}
			var data ipc.ReentryData
			if err := ipc.DecodeArgs(resp.Data, &data); err != nil {
				log.Printf("Malformed re-entry response: %v", err)
				return
			}
			log.Printf("Session %s ended, directive %s", req.SessionID, data.Directive)
			if execLine != "" {
				launch(execLine, data.Directive)
			}
		})
		if err != nil && ctx.Err() == nil {
			log.Fatalf("Wake listener failed: %v", err)
		}
	},
}

func launch(line, directive string) {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return
	}
	c := exec.Command(fields[0], append(fields[1:], directive)...)
	c.Env = append(os.Environ(), "POMOTIMER_DIRECTIVE="+directive)
	c.Stdout = os.Stdout
	c.Stderr = os.Stderr
	if err := c.Start(); err != nil {
		log.Printf("Failed to launch %s: %v", fields[0], err)
		return
	}
	go c.Wait()
}

func main() {
	rootCmd.PersistentFlags().StringVar(&socketPath, "socket", "", "Path to the daemon socket (default: $POMOTIMER_SOCKET_PATH or "+ipc.SocketPath+")")
	rootCmd.PersistentFlags().StringVarP(&outputFormat, "output", "o", "text", "Output format (text, json, yaml)")

	startCmd.Flags().DurationP("duration", "t", 25*time.Minute, "Session length (countdown) or starting offset (count-up)")
	startCmd.Flags().Bool("running", true, "Start ticking immediately")
	startCmd.Flags().Bool("paused", false, "Start in the paused state")
	startCmd.Flags().Bool("count-up", false, "Count elapsed time instead of counting down")
	startCmd.Flags().Bool("break", false, "Start a break instead of a work session")

	stateCmd.Flags().StringVar(&dbPath, "db", "", "Read the state directly from this database file")

	ackCmd.Flags().Bool("break", false, "The presentation is showing a break")
	cancelCmd.Flags().Int("id", 0, "Notification id (100 timer, 101 session end)")

	wakeListenCmd.Flags().String("nats", "nats://127.0.0.1:4222", "NATS server URL")
	wakeListenCmd.Flags().String("subject", wake.DefaultSubject, "Wake subject")
	wakeListenCmd.Flags().String("exec", "", "Command to launch for every wake signal")

	rootCmd.AddCommand(pingCmd, startCmd, pauseCmd, resumeCmd, stopCmd, stateCmd, attachCmd, ackCmd, cancelCmd, actionCmd, wakeListenCmd)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error executing command: %v\n", err)
		os.Exit(1)
	}
}
