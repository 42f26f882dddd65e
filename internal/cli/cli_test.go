package cli

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseDefaultsToHelp(t *testing.T) {
	parsed, err := Parse(nil)
	require.NoError(t, err)
	require.True(t, parsed.ShowHelp)
	require.Equal(t, CommandHelp, parsed.Command)
}

func TestParseCommandWithConfig(t *testing.T) {
	parsed, err := Parse([]string{"--config", "/tmp/voxtrip.jsonc", "doctor"})
	require.NoError(t, err)
	require.Equal(t, CommandDoctor, parsed.Command)
	require.Equal(t, "/tmp/voxtrip.jsonc", parsed.ConfigPath)
	require.False(t, parsed.ShowHelp)
}

func TestParseArgMatrix(t *testing.T) {
	tests := []struct {
		name     string
		args     []string
		wantErr  string
		wantCmd  Command
		wantHelp bool
		wantPath string
	}{
		{name: "help short flag", args: []string{"-h"}, wantCmd: CommandHelp, wantHelp: true},
		{name: "help long flag", args: []string{"--help"}, wantCmd: CommandHelp, wantHelp: true},
		{name: "version flag", args: []string{"--version"}, wantCmd: CommandVersion},
		{name: "config after command", args: []string{"status", "--config", "/tmp/cfg"}, wantErr: "unexpected arguments after command"},
		{name: "missing config path", args: []string{"--config"}, wantErr: "requires a path"},
		{name: "empty config equals", args: []string{"--config=", "status"}, wantErr: "requires a path"},
		{name: "unknown flag", args: []string{"--bogus"}, wantErr: "unknown flag"},
		{name: "unknown command", args: []string{"bogus"}, wantErr: "unknown command"},
		{name: "extra args after command", args: []string{"doctor", "extra"}, wantErr: "unexpected arguments"},
		{name: "valid cancel command", args: []string{"cancel"}, wantCmd: CommandCancel},
		{name: "valid confirm command", args: []string{"confirm"}, wantCmd: CommandConfirm},
		{name: "valid dismiss command", args: []string{"dismiss"}, wantCmd: CommandDismiss},
		{name: "valid stop with config", args: []string{"--config", "/tmp/cfg", "stop"}, wantCmd: CommandStop, wantPath: "/tmp/cfg"},
		{name: "short config flag", args: []string{"-c", "/tmp/cfg", "toggle"}, wantCmd: CommandToggle, wantPath: "/tmp/cfg"},
		{name: "config equals form", args: []string{"--config=/tmp/cfg.yaml", "status"}, wantCmd: CommandStatus, wantPath: "/tmp/cfg.yaml"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			parsed, err := Parse(tc.args)
			if tc.wantErr != "" {
				require.Error(t, err)
				require.Contains(t, err.Error(), tc.wantErr)
				return
			}

			require.NoError(t, err)
			require.Equal(t, tc.wantCmd, parsed.Command)
			require.Equal(t, tc.wantHelp, parsed.ShowHelp)
			require.Equal(t, tc.wantPath, parsed.ConfigPath)
		})
	}
}

func TestCommandSession(t *testing.T) {
	for _, cmd := range []Command{CommandToggle, CommandStop, CommandConfirm, CommandCancel, CommandDismiss, CommandStatus} {
		require.True(t, cmd.Session(), cmd)
	}
	for _, cmd := range []Command{CommandDevices, CommandDoctor, CommandVersion, CommandHelp} {
		require.False(t, cmd.Session(), cmd)
	}
}

func TestHelpTextIncludesCoreCommands(t *testing.T) {
	text := HelpText("voxtrip")
	for _, cmd := range commandOrder {
		require.Contains(t, text, string(cmd))
	}
	require.Contains(t, text, "--config PATH")
	require.Contains(t, text, "voxtrip/config.jsonc")
}
