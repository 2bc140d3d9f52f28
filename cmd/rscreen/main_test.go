package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/chronologos/rscreen/internal/config"
)

func TestPromptHost(t *testing.T) {
	var out bytes.Buffer
	host, err := promptHost(strings.NewReader("192.168.1.42\n"), &out)
	if err != nil {
		t.Fatal(err)
	}
	if host != "192.168.1.42" {
		t.Fatalf("host = %q", host)
	}
	if !strings.Contains(out.String(), "Enter host IP") {
		t.Fatalf("prompt = %q", out.String())
	}
}

func TestPromptHostRejectsPrefix(t *testing.T) {
	for _, in := range []string{"\n", "192.168.1.\n", ""} {
		if _, err := promptHost(strings.NewReader(in), &bytes.Buffer{}); err == nil {
			t.Fatalf("input %q accepted", in)
		}
	}
}

func TestLoadConfigLayers(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rscreen.yaml")
	if err := os.WriteFile(path, []byte("host: 10.0.0.1\ndevice_key: FILE_KEY\nhost_port: 7000\nprotocol: b\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("RSCREEN_HOST_PORT", "7001")

	var f flags
	cmd := newRoot(&f)
	if err := cmd.ParseFlags([]string{"--config", path, "--key", "FLAG_KEY", "--no-viewer"}); err != nil {
		t.Fatal(err)
	}

	cfg, err := loadConfig(cmd, &f, []string{"10.0.0.9"})
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Host != "10.0.0.9" {
		t.Fatalf("host = %q, argument should win", cfg.Host)
	}
	if cfg.DeviceKey != "FLAG_KEY" {
		t.Fatalf("key = %q, flag should win", cfg.DeviceKey)
	}
	if cfg.HostPort != 7001 {
		t.Fatalf("host port = %d, env should beat the file", cfg.HostPort)
	}
	if cfg.Protocol != "b" {
		t.Fatalf("protocol = %q, file value lost", cfg.Protocol)
	}
	if cfg.Viewer.Enabled {
		t.Fatal("--no-viewer ignored")
	}
}

func TestLoadConfigInvalid(t *testing.T) {
	var f flags
	cmd := newRoot(&f)
	if err := cmd.ParseFlags([]string{"--key", "k", "--protocol", "z"}); err != nil {
		t.Fatal(err)
	}
	if _, err := loadConfig(cmd, &f, []string{"127.0.0.1"}); err == nil {
		t.Fatal("expected validation error")
	}
}

func TestFlagsOnlyOverrideWhenSet(t *testing.T) {
	var f flags
	cmd := newRoot(&f)
	if err := cmd.ParseFlags([]string{"--host-port", "6000"}); err != nil {
		t.Fatal(err)
	}
	cfg := config.Default()
	cfg.ClientPort = 1234 // from a file, say
	f.apply(cmd, &cfg)
	if cfg.HostPort != 6000 || cfg.ClientPort != 1234 {
		t.Fatalf("ports = %d/%d", cfg.HostPort, cfg.ClientPort)
	}
}

func TestVersionCmd(t *testing.T) {
	cmd := versionCmd()
	if cmd.Use != "version" {
		t.Fatalf("use = %q", cmd.Use)
	}
	if cmd.Flags().Lookup("short") == nil {
		t.Fatal("missing --short")
	}
}
