package cmd

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teemow/newsdigest/internal/config"
	"github.com/teemow/newsdigest/internal/gmail"
	"github.com/teemow/newsdigest/internal/instrumentation"
	"github.com/teemow/newsdigest/internal/logging"
	"github.com/teemow/newsdigest/internal/server"
)

func TestSelectionFlags_Apply(t *testing.T) {
	tests := []struct {
		name        string
		set         map[string]string
		wantAccount string
		want        gmail.FetchOptions
		wantErr     bool
	}{
		{
			name:        "configured defaults",
			wantAccount: "default",
			want:        gmail.FetchOptions{Query: gmail.DefaultQuery, WindowDays: gmail.DefaultWindowDays},
		},
		{
			name:        "flags override",
			set:         map[string]string{"account": "work", "query": "from:digest", "days": "3", "all-pages": "true"},
			wantAccount: "work",
			want:        gmail.FetchOptions{Query: "from:digest", WindowDays: 3, AllPages: true},
		},
		{
			name:    "non-positive days",
			set:     map[string]string{"days": "0"},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var sel selectionFlags
			cmd := &cobra.Command{Use: "test"}
			sel.register(cmd)
			for k, v := range tt.set {
				if err := cmd.Flags().Set(k, v); err != nil {
					t.Fatalf("setting --%s: %v", k, err)
				}
			}

			account, opts, err := sel.apply(cmd, &app{cfg: config.Default()})
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected error")
				}
				return
			}
			if err != nil {
				t.Fatalf("apply() error = %v", err)
			}
			if account != tt.wantAccount {
				t.Errorf("account = %q, want %q", account, tt.wantAccount)
			}
			if opts != tt.want {
				t.Errorf("opts = %+v, want %+v", opts, tt.want)
			}
		})
	}
}

func TestPrintBodies(t *testing.T) {
	bodies := []gmail.Body{
		{Kind: gmail.KindPlain, Text: "first", Raw: "first"},
		{Kind: gmail.KindHTML, Text: "second", Raw: "<b>second</b>", HTML: "<b>second</b>"},
	}

	var buf bytes.Buffer
	if err := printBodies(&buf, bodies, false, false); err != nil {
		t.Fatal(err)
	}
	if got, want := buf.String(), "first\n\nsecond\n"; got != want {
		t.Errorf("text output = %q, want %q", got, want)
	}

	buf.Reset()
	if err := printBodies(&buf, bodies, true, true); err != nil {
		t.Fatal(err)
	}
	var got []string
	if err := json.Unmarshal(buf.Bytes(), &got); err != nil {
		t.Fatalf("json output: %v", err)
	}
	if len(got) != 2 || got[0] != "first" || got[1] != "<b>second</b>" {
		t.Errorf("json output = %q", got)
	}
}

func TestPrintBodies_Empty(t *testing.T) {
	var buf bytes.Buffer
	if err := printBodies(&buf, []gmail.Body{}, true, false); err != nil {
		t.Fatal(err)
	}
	if strings.TrimSpace(buf.String()) != "[]" {
		t.Errorf("json output = %q, want []", buf.String())
	}
}

func TestVersionCmd(t *testing.T) {
	cmd := newVersionCmd()
	var buf bytes.Buffer
	cmd.SetOut(&buf)
	cmd.Run(cmd, nil)
	if !strings.HasPrefix(buf.String(), "newsdigest version "+version) {
		t.Errorf("version output = %q", buf.String())
	}
}

func TestReadLine(t *testing.T) {
	got, err := readLine(strings.NewReader("sk-abc\nignored\n"))
	if err != nil || got != "sk-abc" {
		t.Errorf("readLine() = %q, %v", got, err)
	}
	got, err = readLine(strings.NewReader(""))
	if err != nil || got != "" {
		t.Errorf("readLine(empty) = %q, %v", got, err)
	}
}

func TestRootCommands(t *testing.T) {
	want := []string{"auth", "digest", "fetch", "serve", "version"}
	for _, name := range want {
		found := false
		for _, c := range rootCmd.Commands() {
			if c.Name() == name {
				found = true
			}
		}
		if !found {
			t.Errorf("root command missing %q", name)
		}
	}
	for _, flag := range []string{"config", "log-level", "log-format", "metrics-textfile"} {
		if rootCmd.PersistentFlags().Lookup(flag) == nil {
			t.Errorf("missing persistent flag --%s", flag)
		}
	}
}

func TestStartMetricsServer_NotReadyUntilMarked(t *testing.T) {
	ctx := context.Background()
	provider, err := instrumentation.NewProvider(ctx, instrumentation.Config{
		ServiceName:     "newsdigest-test",
		ServiceVersion:  "test",
		Enabled:         true,
		MetricsExporter: instrumentation.ExporterPrometheus,
		TracingExporter: instrumentation.ExporterNone,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = provider.Shutdown(ctx) })

	a := &app{cfg: config.Default(), logger: logging.Discard(), provider: provider}
	sc, err := server.NewServerContext(ctx, a.cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = sc.Shutdown() })

	metricsServer, stop, err := startMetricsServer(a, sc, "127.0.0.1:0")
	require.NoError(t, err)
	defer stop()

	readyz := func() int {
		resp, err := http.Get("http://" + metricsServer.Addr() + "/readyz")
		require.NoError(t, err)
		defer resp.Body.Close()
		return resp.StatusCode
	}

	assert.Equal(t, http.StatusServiceUnavailable, readyz())
	metricsServer.Health().SetReady(true)
	assert.Equal(t, http.StatusOK, readyz())
}
