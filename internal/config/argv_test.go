package config

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSplitArgv(t *testing.T) {
	env := map[string]string{"HOME": "/home/trip", "FORM": "hotel form"}
	lookup := func(name string) string { return env[name] }

	tests := []struct {
		name    string
		input   string
		want    []string
		wantErr string
	}{
		{name: "empty", input: "", want: nil},
		{name: "simple", input: "wl-copy --trim-newline", want: []string{"wl-copy", "--trim-newline"}},
		{name: "double quotes", input: `fill --title "trip to Rome"`, want: []string{"fill", "--title", "trip to Rome"}},
		{name: "single quotes literal", input: `fill '$HOME/x'`, want: []string{"fill", "$HOME/x"}},
		{name: "escaped space", input: `fill trip\ plan`, want: []string{"fill", "trip plan"}},
		{name: "empty quoted arg", input: `fill ""`, want: []string{"fill", ""}},
		{name: "env expansion", input: `$HOME/bin/fill --form "${FORM}"`, want: []string{"/home/trip/bin/fill", "--form", "hotel form"}},
		{name: "unset variable", input: `fill $MISSING`, want: []string{"fill", ""}},
		{name: "lone dollar", input: `echo $ 5`, want: []string{"echo", "$", "5"}},
		{name: "leading comment", input: `# wl-copy --trim-newline`, want: nil},
		{name: "unterminated quote", input: `fill "oops`, wantErr: "unterminated quote"},
		{name: "unterminated escape", input: `fill trip\`, wantErr: "unterminated escape"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, err := splitArgv(tc.input, lookup)
			if tc.wantErr != "" {
				require.Error(t, err)
				require.Contains(t, err.Error(), tc.wantErr)
				return
			}
			require.NoError(t, err)
			require.Equal(t, tc.want, got)
		})
	}
}

func TestParseArgvReadsEnvironment(t *testing.T) {
	t.Setenv("VOXTRIP_TEST_BIN", "/opt/fill")
	got, err := parseArgv("$VOXTRIP_TEST_BIN --stdin")
	require.NoError(t, err)
	require.Equal(t, []string{"/opt/fill", "--stdin"}, got)
}

func TestMustParseArgvPanicsOnInvalidInput(t *testing.T) {
	require.Panics(t, func() {
		_ = mustParseArgv(`fill "unterminated`)
	})
}
