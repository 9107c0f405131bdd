// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Artem Korobko

package cmd

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"go.uber.org/zap"
	"golang.org/x/term"

	"github.com/artemkorobko/an26sim/pkg/driver"
)

// PasswordEnv holds the websocket password.
const PasswordEnv = "AN26SIM_PASSWORD"

// Exit codes of the probe commands
const (
	exitOK              = 0
	exitFailed          = 1
	exitConnectionError = 2
)

// GetPassword retrieves password from environment or prompts user
func GetPassword() (string, error) {
	// First check environment variable
	if pw := os.Getenv(PasswordEnv); pw != "" {
		return pw, nil
	}

	// Prompt user for password (hide input)
	fmt.Fprint(os.Stderr, "Password: ")

	// Read password without echo
	passwordBytes, err := term.ReadPassword(int(syscall.Stdin))
	if err != nil {
		// Fallback to regular input if terminal functions fail
		reader := bufio.NewReader(os.Stdin)
		password, err := reader.ReadString('\n')
		if err != nil {
			return "", fmt.Errorf("failed to read password: %w", err)
		}
		fmt.Fprintln(os.Stderr) // newline after password
		return strings.TrimSpace(password), nil
	}

	fmt.Fprintln(os.Stderr) // newline after password
	return string(passwordBytes), nil
}

// deviceKind returns the configured device kind.
func deviceKind() driver.Kind {
	kind, _ := driver.ParseKind(cfg.Device.Kind)
	return kind
}

// connection is an open device together with the driver that owns it.
type connection struct {
	drv *driver.Driver
	dev *driver.Device
}

func (c *connection) Close() {
	c.dev.Close()
	c.drv.Close()
}

// describe returns a one line description for command headers.
func (c *connection) describe() string {
	return fmt.Sprintf("%s via %s", c.dev.Kind(), c.dev.Link())
}

// OpenConnection opens the configured device kind over the configured
// transport.
func OpenConnection() (*connection, error) {
	return openKind(deviceKind())
}

// devicePassword is read once per process so reconnects do not prompt again.
var devicePassword *string

func openKind(kind driver.Kind) (*connection, error) {
	if devicePassword == nil {
		pw := ""
		if cfg.Device.Transport == string(driver.TransportWebSocket) && cfg.Device.Username != "" {
			var err error
			pw, err = GetPassword()
			if err != nil {
				return nil, err
			}
		}
		devicePassword = &pw
	}

	drv := driver.New(logger)
	dev, err := drv.Open(kind, cfg.Device.Options(*devicePassword))
	if err != nil {
		drv.Close()
		return nil, err
	}
	logger.Debug("connection open", zap.String("device", dev.String()))
	return &connection{drv: drv, dev: dev}, nil
}

// signalContext is cancelled on Ctrl+C or SIGTERM.
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

// requestContext bounds a single request/response exchange.
func requestContext() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), cfg.Device.Timeout)
}
