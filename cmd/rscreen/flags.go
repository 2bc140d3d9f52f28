package main

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/chronologos/rscreen/internal/config"
)

// flags mirror the config file; only flags set on the command line
// override it.
type flags struct {
	configPath string
	key        string
	hostPort   int
	clientPort int
	protocol   string
	completion string
	recvBuffer int
	decode     string
	inputMode  string
	viewerAddr string
	noViewer   bool
	logLevel   string
	logFile    string
	profile    bool
}

func (f *flags) register(cmd *cobra.Command) {
	d := config.Default()
	fs := cmd.Flags()
	fs.StringVarP(&f.configPath, "config", "c", "", "YAML config file")
	fs.StringVarP(&f.key, "key", "k", "", "device key (prompted for when unset)")
	fs.IntVar(&f.hostPort, "host-port", d.HostPort, "host UDP port for auth and input")
	fs.IntVar(&f.clientPort, "client-port", d.ClientPort, "local UDP port the host streams to")
	fs.StringVar(&f.protocol, "protocol", d.Protocol, `fragment header layout: "a" (20 bytes, with size) or "b" (16 bytes, with kind)`)
	fs.StringVar(&f.completion, "completion", d.Completion, `frame completion rule: "counter" or "legacy"`)
	fs.IntVar(&f.recvBuffer, "recv-buffer", d.RecvBufferSize, "socket receive buffer hint in bytes")
	fs.StringVar(&f.decode, "decode", d.Decode, `image decoding: "full" (keep pixels) or "validate" (decode, then drop pixels)`)
	fs.StringVar(&f.inputMode, "input-mode", d.Input.Mode, `primary button handling: "gesture" (tap to click) or "desktop"`)
	fs.StringVar(&f.viewerAddr, "viewer-addr", d.Viewer.Addr, "HTTP address of the browser viewer")
	fs.BoolVar(&f.noViewer, "no-viewer", false, "receive without serving the viewer")
	fs.StringVar(&f.logLevel, "log-level", d.Log.Level, "debug, info, warn or error")
	fs.StringVar(&f.logFile, "log-file", "", "also log JSON to this file, rotated")
	fs.BoolVar(&f.profile, "profile", false, "emit frame/fragment stats to stderr")
}

// apply copies every flag the user set onto cfg.
func (f *flags) apply(cmd *cobra.Command, cfg *config.Config) {
	set := cmd.Flags().Changed
	if set("key") {
		cfg.DeviceKey = f.key
	}
	if set("host-port") {
		cfg.HostPort = f.hostPort
	}
	if set("client-port") {
		cfg.ClientPort = f.clientPort
	}
	if set("protocol") {
		cfg.Protocol = f.protocol
	}
	if set("completion") {
		cfg.Completion = f.completion
	}
	if set("recv-buffer") {
		cfg.RecvBufferSize = f.recvBuffer
	}
	if set("decode") {
		cfg.Decode = f.decode
	}
	if set("input-mode") {
		cfg.Input.Mode = f.inputMode
	}
	if set("viewer-addr") {
		cfg.Viewer.Addr = f.viewerAddr
	}
	if f.noViewer {
		cfg.Viewer.Enabled = false
	}
	if set("log-level") {
		cfg.Log.Level = f.logLevel
	}
	if set("log-file") {
		cfg.Log.File.Filename = f.logFile
	}
	if f.profile {
		cfg.Profile = true
	}
}

// loadConfig layers defaults, the config file, RSCREEN_* variables, flags
// and the host argument, then prompts for whatever is still missing.
func loadConfig(cmd *cobra.Command, f *flags, args []string) (config.Config, error) {
	cfg := config.Default()
	if f.configPath != "" {
		var err error
		if cfg, err = config.Load(f.configPath); err != nil {
			return cfg, err
		}
	}
	if err := cfg.ApplyEnv(os.LookupEnv); err != nil {
		return cfg, err
	}
	f.apply(cmd, &cfg)
	if len(args) > 0 {
		cfg.Host = args[0]
	}

	interactive := term.IsTerminal(int(os.Stdin.Fd()))
	if cfg.Host == "" {
		if !interactive {
			return cfg, errors.New("no host given (pass it as an argument or set RSCREEN_HOST)")
		}
		host, err := promptHost(os.Stdin, os.Stderr)
		if err != nil {
			return cfg, err
		}
		cfg.Host = host
	}
	if cfg.DeviceKey == "" && interactive {
		key, err := promptKey(int(os.Stdin.Fd()), os.Stderr)
		if err != nil {
			return cfg, err
		}
		cfg.DeviceKey = key
	}

	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

const hostPromptDefault = "192.168.1."

// promptHost asks for the host address. A bare subnet prefix, the prompt's
// own suggestion, is not an address.
func promptHost(in io.Reader, out io.Writer) (string, error) {
	fmt.Fprintf(out, "Enter host IP [%s]: ", hostPromptDefault)
	line, err := bufio.NewReader(in).ReadString('\n')
	if err != nil && line == "" {
		return "", fmt.Errorf("read host: %w", err)
	}
	host := strings.TrimSpace(line)
	if host == "" || strings.HasSuffix(host, ".") {
		return "", errors.New("no host entered")
	}
	return host, nil
}

// promptKey reads the device key without echo.
func promptKey(fd int, out io.Writer) (string, error) {
	fmt.Fprint(out, "Device key: ")
	b, err := term.ReadPassword(fd)
	fmt.Fprintln(out)
	if err != nil {
		return "", fmt.Errorf("read device key: %w", err)
	}
	return strings.TrimSpace(string(b)), nil
}
