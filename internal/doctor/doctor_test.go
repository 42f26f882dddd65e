package doctor

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/coder/websocket"
	"github.com/stretchr/testify/require"

	"github.com/rbright/voxtrip/internal/config"
)

func TestReportOKAndString(t *testing.T) {
	report := Report{Checks: []Check{
		{Name: "one", Pass: true, Message: "good"},
		{Name: "two", Pass: false, Message: "bad"},
	}}

	require.False(t, report.OK())
	text := report.String()
	require.Contains(t, text, "[OK] one: good")
	require.Contains(t, text, "[FAIL] two: bad")
}

func TestCheckCommandEmpty(t *testing.T) {
	check := checkCommand(nil, "clipboard_cmd")
	require.False(t, check.Pass)
	require.Contains(t, check.Message, "command is empty")
}

func TestCheckBinary(t *testing.T) {
	check := checkBinary("sh", "shell available")
	require.True(t, check.Pass)
	require.Contains(t, check.Message, "shell available")

	check = checkBinary("definitely-not-a-real-binary", "unused")
	require.False(t, check.Pass)
	require.Contains(t, check.Message, "binary not found")
}

func TestCheckCommandUsesBinaryFromPath(t *testing.T) {
	dir := t.TempDir()
	scriptPath := filepath.Join(dir, "fake-bin")
	require.NoError(t, os.WriteFile(scriptPath, []byte("#!/usr/bin/env bash\nexit 0\n"), 0o755))
	t.Setenv("PATH", dir+":"+os.Getenv("PATH"))

	check := checkCommand([]string{"fake-bin", "--arg"}, "fill_cmd")
	require.True(t, check.Pass)
	require.Contains(t, check.Message, "fill_cmd command is available")
}

func TestCheckRelay(t *testing.T) {
	var gotAuth string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		conn, err := websocket.Accept(w, r, nil)
		if err != nil {
			return
		}
		_, _, _ = conn.Read(r.Context())
		_ = conn.CloseNow()
	}))
	t.Cleanup(server.Close)

	check := checkRelay(context.Background(), config.StreamConfig{
		URL:   "ws" + strings.TrimPrefix(server.URL, "http") + "/ws/audio",
		Token: "secret",
	})
	require.True(t, check.Pass, check.Message)
	require.Equal(t, "Bearer secret", gotAuth)

	check = checkRelay(context.Background(), config.StreamConfig{URL: "ws://127.0.0.1:1/ws/audio"})
	require.False(t, check.Pass)
	require.Contains(t, check.Message, "stream connection failed")
}

func TestCheckExtract(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/extract-info" {
			http.NotFound(w, r)
			return
		}
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":"No text provided."}`))
	}))
	t.Cleanup(server.Close)

	check := checkExtract(context.Background(), config.ExtractConfig{URL: server.URL + "/extract-info"})
	require.True(t, check.Pass, check.Message)

	check = checkExtract(context.Background(), config.ExtractConfig{URL: server.URL + "/missing"})
	require.False(t, check.Pass)
	require.Contains(t, check.Message, "HTTP 404")
}

func TestCheckNotifyBackend(t *testing.T) {
	require.True(t, checkNotifyBackend(context.Background(), config.IndicatorConfig{Enable: false}).Pass)
	require.True(t, checkNotifyBackend(context.Background(), config.IndicatorConfig{Enable: true, Backend: "none"}).Pass)

	dir := t.TempDir()
	script := "#!/usr/bin/env bash\nif [[ \"$1\" == \"version\" ]]; then echo 'Hyprland 0.45.0 built from branch main'; fi\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, "hyprctl"), []byte(script), 0o755))
	t.Setenv("PATH", dir+":"+os.Getenv("PATH"))

	check := checkNotifyBackend(context.Background(), config.IndicatorConfig{Enable: true, Backend: "hypr"})
	require.True(t, check.Pass, check.Message)
	require.Equal(t, "hyprland Hyprland 0.45.0 built from branch main", check.Message)
}

func TestRunComposesChecks(t *testing.T) {
	loaded := config.Loaded{Path: "/tmp/voxtrip.jsonc", Config: config.Default(), Exists: true, Warnings: []config.Warning{{Message: "w"}}}
	loaded.Config.Fill = config.CommandConfig{Raw: "definitely-missing-filler", Argv: []string{"definitely-missing-filler"}}

	var relayURL string
	report := Run(context.Background(), loaded, Checks{
		Audio: func(context.Context, config.AudioConfig) Check {
			return Check{Name: "audio.device", Pass: true, Message: "fake"}
		},
		Relay: func(_ context.Context, cfg config.StreamConfig) Check {
			relayURL = cfg.URL
			return Check{Name: "stream.relay", Pass: true, Message: "fake"}
		},
	})

	require.Equal(t, config.Default().Stream.URL, relayURL)
	require.False(t, report.OK())
	text := report.String()
	require.Contains(t, text, `[OK] config: loaded "/tmp/voxtrip.jsonc" (1 warnings)`)
	require.Contains(t, text, "[FAIL] definitely-missing-filler")
	require.Contains(t, text, "[OK] audio.device: fake")
	require.NotContains(t, text, "extract.endpoint")
}
