package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/radquest/radquest/internal/config"
)

const (
	daemonBinary = "radquestd"
	pidFile      = "radquestd.pid"
	logFile      = "radquestd.log"
)

// cmdStart starts the daemon in the background
func cmdStart(ctx context.Context, c *client) error {
	if c.healthy(ctx) {
		fmt.Println("✓ Daemon is already running")
		return nil
	}

	dir, err := config.EnsureDir()
	if err != nil {
		return fmt.Errorf("setup radquest directory: %w", err)
	}

	path, err := findDaemonBinary()
	if err != nil {
		return fmt.Errorf("find daemon binary: %w", err)
	}

	cmd := exec.Command(path)
	cmd.Dir = dir
	configureDaemonProcess(cmd)

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("start daemon: %w", err)
	}

	fmt.Print("Starting daemon...")
	for range 30 {
		time.Sleep(100 * time.Millisecond)
		if c.healthy(ctx) {
			fmt.Println(" ✓")
			fmt.Printf("Daemon running at %s\n", c.base)
			return nil
		}
		fmt.Print(".")
	}

	fmt.Println(" ✗")
	return fmt.Errorf("daemon failed to start (check logs with 'radquest logs')")
}

// cmdStop stops the daemon
func cmdStop(ctx context.Context, c *client) error {
	if !c.healthy(ctx) {
		fmt.Println("Daemon is not running")
		return nil
	}

	dir, err := config.Dir()
	if err != nil {
		return err
	}

	pid, err := readPID(filepath.Join(dir, pidFile))
	if err != nil {
		return err
	}

	process, err := os.FindProcess(pid)
	if err != nil {
		return fmt.Errorf("find process: %w", err)
	}

	fmt.Print("Stopping daemon...")
	if err := process.Signal(syscall.SIGTERM); err != nil {
		return fmt.Errorf("send signal: %w", err)
	}

	for range 50 {
		time.Sleep(100 * time.Millisecond)
		if !c.healthy(ctx) {
			fmt.Println(" ✓")
			return nil
		}
		fmt.Print(".")
	}

	fmt.Println(" ✗")
	return fmt.Errorf("daemon did not stop gracefully")
}

// cmdStatus shows daemon status
func cmdStatus(ctx context.Context, c *client, w io.Writer) error {
	if !c.healthy(ctx) {
		fmt.Fprintln(w, "Status: stopped")
		return nil
	}

	st, err := c.status(ctx)
	if err != nil {
		return fmt.Errorf("get status: %w", err)
	}

	onOff := func(b bool) string {
		if b {
			return "on"
		}
		return "off"
	}

	fmt.Fprintf(w, "Status:     %s\n", st.Status)
	fmt.Fprintf(w, "Version:    %s\n", st.Version)
	fmt.Fprintf(w, "Uptime:     %s\n", time.Duration(st.UptimeSeconds)*time.Second)
	fmt.Fprintf(w, "Database:   %s\n", st.Database)
	fmt.Fprintf(w, "Catalog:    %s (cache %s)\n", st.Catalog, onOff(st.CatalogCache))
	fmt.Fprintf(w, "Judge:      %s\n", onOff(st.Evaluation))
	fmt.Fprintf(w, "Providers:  %s\n", strings.Join(st.LLMProviders, ", "))
	fmt.Fprintf(w, "Events:     %s\n", onOff(st.Events))
	fmt.Fprintf(w, "Address:    %s\n", c.base)
	return nil
}

// cmdLogs prints the tail of the daemon log
func cmdLogs(w io.Writer) error {
	dir, err := config.Dir()
	if err != nil {
		return err
	}

	file, err := os.Open(filepath.Join(dir, "logs", logFile))
	if os.IsNotExist(err) {
		fmt.Fprintln(w, "No log file found. Start the daemon first.")
		return nil
	}
	if err != nil {
		return fmt.Errorf("open log file: %w", err)
	}
	defer file.Close()

	return tail(file, w, 4096)
}

// tail copies roughly the last n bytes of f, starting at a line boundary
func tail(f *os.File, w io.Writer, n int64) error {
	info, err := f.Stat()
	if err != nil {
		return err
	}
	offset := max(info.Size()-n, 0)
	if _, err := f.Seek(offset, io.SeekStart); err != nil {
		return err
	}

	reader := bufio.NewReader(f)
	if offset > 0 {
		_, _ = reader.ReadString('\n')
	}

	scanner := bufio.NewScanner(reader)
	for scanner.Scan() {
		fmt.Fprintln(w, scanner.Text())
	}
	return scanner.Err()
}

func readPID(path string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, fmt.Errorf("read PID file: %w", err)
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil {
		return 0, fmt.Errorf("parse PID: %w", err)
	}
	return pid, nil
}

// findDaemonBinary locates the radquestd binary
func findDaemonBinary() (string, error) {
	if path, err := exec.LookPath(daemonBinary); err == nil {
		return path, nil
	}

	// Next to this binary
	if self, err := os.Executable(); err == nil {
		path := filepath.Join(filepath.Dir(self), daemonBinary)
		if _, err := os.Stat(path); err == nil {
			return path, nil
		}
	}

	for _, path := range []string{
		"/usr/local/bin/" + daemonBinary,
		"./" + daemonBinary,
		"./cmd/radquestd/" + daemonBinary,
	} {
		if _, err := os.Stat(path); err == nil {
			return path, nil
		}
	}

	return "", fmt.Errorf("radquestd binary not found (build with 'go build ./cmd/radquestd')")
}
