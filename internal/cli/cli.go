// Package cli parses the voxtrip command line.
package cli

import (
	"errors"
	"fmt"
	"strings"
)

type Command string

const (
	CommandToggle  Command = "toggle"
	CommandStop    Command = "stop"
	CommandConfirm Command = "confirm"
	CommandCancel  Command = "cancel"
	CommandDismiss Command = "dismiss"
	CommandStatus  Command = "status"
	CommandDevices Command = "devices"
	CommandDoctor  Command = "doctor"
	CommandVersion Command = "version"
	CommandHelp    Command = "help"
)

// commandInfo marks which commands talk to the session owner.
var commandInfo = map[Command]struct {
	session bool
	summary string
}{
	CommandToggle:  {true, "Start a session, stop listening, or confirm the transcript"},
	CommandStop:    {true, "Stop listening and wait for the final transcript"},
	CommandConfirm: {true, "Commit the awaiting transcript"},
	CommandCancel:  {true, "Discard the transcript (dismisses an unfinished session)"},
	CommandDismiss: {true, "Abort the session from any state"},
	CommandStatus:  {true, "Print session state and live transcript"},
	CommandDevices: {false, "List available input devices"},
	CommandDoctor:  {false, "Run configuration and environment checks"},
	CommandVersion: {false, "Print version information"},
	CommandHelp:    {false, "Show this help"},
}

var commandOrder = []Command{
	CommandToggle, CommandStop, CommandConfirm, CommandCancel, CommandDismiss,
	CommandStatus, CommandDevices, CommandDoctor, CommandVersion, CommandHelp,
}

// Session reports whether c is handled by the session owner over IPC.
func (c Command) Session() bool {
	return commandInfo[c].session
}

type Parsed struct {
	Command    Command
	ConfigPath string
	ShowHelp   bool
}

func Parse(args []string) (Parsed, error) {
	parsed := Parsed{Command: CommandHelp, ShowHelp: true}

	for i := 0; i < len(args); i++ {
		arg := args[i]

		switch {
		case arg == "-h" || arg == "--help":
			parsed.ShowHelp = true
			parsed.Command = CommandHelp
		case arg == "--version":
			parsed.ShowHelp = false
			parsed.Command = CommandVersion
		case arg == "-c" || arg == "--config":
			i++
			if i >= len(args) || strings.TrimSpace(args[i]) == "" {
				return Parsed{}, errors.New("--config requires a path")
			}
			parsed.ConfigPath = args[i]
		case strings.HasPrefix(arg, "--config="):
			value := strings.TrimPrefix(arg, "--config=")
			if strings.TrimSpace(value) == "" {
				return Parsed{}, errors.New("--config requires a path")
			}
			parsed.ConfigPath = value
		case strings.HasPrefix(arg, "-"):
			return Parsed{}, fmt.Errorf("unknown flag: %s", arg)
		default:
			cmd := Command(arg)
			if _, ok := commandInfo[cmd]; !ok {
				return Parsed{}, fmt.Errorf("unknown command: %s", arg)
			}

			parsed.Command = cmd
			parsed.ShowHelp = cmd == CommandHelp
			if i != len(args)-1 {
				return Parsed{}, fmt.Errorf("unexpected arguments after command %q", arg)
			}
		}
	}

	return parsed, nil
}

func HelpText(binaryName string) string {
	var commands strings.Builder
	for _, cmd := range commandOrder {
		fmt.Fprintf(&commands, "  %-9s %s\n", cmd, commandInfo[cmd].summary)
	}

	return fmt.Sprintf(`Usage:
  %[1]s [--config PATH] <command>

Speak a travel request; %[1]s streams it to the recognition relay and, once
confirmed, prints the extracted trip fields.

Commands:
%[2]s
Flags:
  -c, --config PATH   Config file path (default: $XDG_CONFIG_HOME/voxtrip/config.jsonc)
  -h, --help          Show help
  --version           Show version
`, binaryName, commands.String())
}
