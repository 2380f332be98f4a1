package main

import (
	"bufio"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	esptouch "github.com/kthomsen/goesptouch"
	"github.com/kthomsen/goesptouch/pkg/profile"
	"github.com/kthomsen/goesptouch/pkg/session"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/lmittmann/tint"
	"github.com/spf13/cobra"
	"golang.org/x/term"
)

// Timeout expired without a single device reporting, mapped to exit code 2
var errNoDevices = errors.New("no devices reported within the timeout")

type options struct {
	serverIP     string
	ssid         string
	password     string
	bssid        string
	timeout      time.Duration
	count        int
	repeat       int
	multicast    bool
	profileName  string
	profilesFile string
	logLevel     string
}

func newRootCommand() *cobra.Command {
	opts := &options{}
	cmd := &cobra.Command{
		Use:           "esptouch",
		Short:         "Provision Espressif WiFi devices over ESPTouch/SmartConfig",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runProvision(cmd, opts)
		},
	}
	cmd.Flags().StringVar(&opts.serverIP, "server-ip", "", "IP the device should connect to after provisioning")
	cmd.Flags().StringVar(&opts.ssid, "ssid", "", "WiFi SSID (2.4GHz)")
	cmd.Flags().StringVar(&opts.password, "password", "", "WiFi password")
	cmd.Flags().StringVar(&opts.bssid, "bssid", "", "AP BSSID (MAC), optional")
	cmd.Flags().DurationVar(&opts.timeout, "timeout", profile.DefaultTimeout, "receive timeout")
	cmd.Flags().IntVar(&opts.count, "count", profile.DefaultExpected, "expected number of devices")
	cmd.Flags().IntVar(&opts.repeat, "repeat", profile.DefaultRepeat, "transmit repeat loops")
	cmd.Flags().BoolVar(&opts.multicast, "multicast", false, "use multicast instead of broadcast")
	cmd.Flags().StringVar(&opts.profileName, "profile", "", "load inputs from a named profile")
	cmd.Flags().StringVar(&opts.profilesFile, "profiles-file", defaultProfilesPath(), "profiles INI file")
	cmd.Flags().StringVar(&opts.logLevel, "log-level", "info", "log level (debug, info, warn, error)")
	return cmd
}

func defaultProfilesPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "esptouch.ini"
	}
	return home + "/.config/esptouch/profiles.ini"
}

func setupLogger(level string) {
	var slogLevel slog.Level
	switch strings.ToLower(level) {
	case "debug":
		slogLevel = slog.LevelDebug
	case "warn":
		slogLevel = slog.LevelWarn
	case "error":
		slogLevel = slog.LevelError
	default:
		slogLevel = slog.LevelInfo
	}
	slog.SetDefault(slog.New(tint.NewHandler(os.Stderr, &tint.Options{Level: slogLevel})))
}

// Flags override profile values, profile values override prompting
func applyProfile(cmd *cobra.Command, opts *options) error {
	if opts.profileName == "" {
		return nil
	}
	p, err := profile.Find(opts.profilesFile, opts.profileName)
	if err != nil {
		return err
	}
	if !cmd.Flags().Changed("ssid") {
		opts.ssid = p.Ssid
	}
	if !cmd.Flags().Changed("password") {
		opts.password = p.Password
	}
	if !cmd.Flags().Changed("bssid") {
		opts.bssid = p.Bssid
	}
	if !cmd.Flags().Changed("server-ip") {
		opts.serverIP = p.Server
	}
	if !cmd.Flags().Changed("count") {
		opts.count = p.Expected
	}
	if !cmd.Flags().Changed("timeout") {
		opts.timeout = p.Timeout
	}
	if !cmd.Flags().Changed("repeat") {
		opts.repeat = p.Repeat
	}
	if !cmd.Flags().Changed("multicast") {
		opts.multicast = !p.Broadcast
	}
	return nil
}

func runProvision(cmd *cobra.Command, opts *options) error {
	setupLogger(opts.logLevel)
	if err := applyProfile(cmd, opts); err != nil {
		return err
	}

	reader := bufio.NewReader(os.Stdin)
	if opts.serverIP == "" {
		fmt.Println("Enter the server IP the device should connect to after joining.")
		opts.serverIP = promptNonEmpty(reader, "Server IP: ")
	}
	if opts.ssid == "" {
		fmt.Println("Enter WiFi credentials for the 2.4GHz network.")
		opts.ssid = promptNonEmpty(reader, "SSID: ")
	}
	if opts.password == "" && !cmd.Flags().Changed("password") && opts.profileName == "" {
		password, err := promptPassword("Password: ")
		if err != nil {
			return err
		}
		opts.password = password
	}
	if opts.bssid == "" && !cmd.Flags().Changed("bssid") && opts.profileName == "" {
		fmt.Print("BSSID (optional, press Enter to skip): ")
		line, _ := reader.ReadString('\n')
		opts.bssid = strings.TrimSpace(line)
	}

	req, err := esptouch.NewRequest(opts.ssid, opts.password, opts.bssid, opts.serverIP,
		opts.count, opts.timeout, opts.repeat, !opts.multicast)
	if err != nil {
		return err
	}
	sess, err := session.NewSession(req, slog.Default())
	if err != nil {
		return err
	}

	fmt.Println("\nProvisioning... (make sure the device is in SmartConfig mode)")
	outcome, err := sess.Run()
	if err != nil {
		return err
	}
	if outcome.TimedOut {
		fmt.Println("No device reported. Check the device display or server logs to confirm configuration.")
		return errNoDevices
	}
	printDevices(outcome.Devices)
	return nil
}

func promptNonEmpty(reader *bufio.Reader, label string) string {
	for {
		fmt.Print(label)
		line, err := reader.ReadString('\n')
		value := strings.TrimSpace(line)
		if value != "" {
			return value
		}
		if err != nil {
			return ""
		}
		fmt.Println("Please enter a value.")
	}
}

func promptPassword(label string) (string, error) {
	fmt.Print(label)
	if !term.IsTerminal(int(os.Stdin.Fd())) {
		reader := bufio.NewReader(os.Stdin)
		line, _ := reader.ReadString('\n')
		return strings.TrimSpace(line), nil
	}
	password, err := term.ReadPassword(int(os.Stdin.Fd()))
	fmt.Println()
	if err != nil {
		return "", fmt.Errorf("read password : %w", err)
	}
	return string(password), nil
}

func printDevices(devices []esptouch.DeviceInfo) {
	t := table.NewWriter()
	t.SetOutputMirror(os.Stdout)
	t.SetStyle(table.StyleRounded)
	t.SetTitle("Devices reported")
	t.AppendHeader(table.Row{"#", "MAC", "IP"})
	for i, device := range devices {
		t.AppendRow(table.Row{i + 1, device.Mac, device.IP})
	}
	t.Render()
}
