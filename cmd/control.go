// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Artem Korobko

package cmd

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/artemkorobko/an26sim/pkg/control"
	"github.com/artemkorobko/an26sim/pkg/driver"
)

var controlCmd = &cobra.Command{
	Use:   "control",
	Short: "Interactive TUI for controlling an emulator",
	Long: `Control an SM2M emulator via an interactive terminal UI.

This command provides a TUI for configuring the emulator's 12 parameters and
their value generators over USB, serial or WebSocket.

Features:
  - Parameter table polled from the device every second
  - Generator setup (value, period, step, bounce) per parameter
  - Direct parameter writes
  - Producer start/stop and LED control
  - Round trip tracking, statistics and event logging
  - Automatic reconnection on connection loss

Tab switches between the parameter list, the input fields and the buttons.
Arrow keys navigate the list and the button row.`,
	RunE: runControl,
}

func init() {
	rootCmd.AddCommand(controlCmd)
}

// requestTimeout bounds each request written from the UI.
const requestTimeout = 500 * time.Millisecond

// readErrorLimit consecutive read errors count as a lost connection.
const readErrorLimit = 10

// connectionManager handles connection lifecycle and reconnection
type connectionManager struct {
	conn *connection
	mu   sync.RWMutex
	p    *tea.Program

	ctx    context.Context
	cancel context.CancelFunc
}

func (cm *connectionManager) getConn() *connection {
	cm.mu.RLock()
	defer cm.mu.RUnlock()
	return cm.conn
}

func (cm *connectionManager) setConn(conn *connection) {
	cm.mu.Lock()
	defer cm.mu.Unlock()
	cm.conn = conn
}

// send writes one request to the current connection.
func (cm *connectionManager) send(req control.Request) error {
	conn := cm.getConn()
	if conn == nil {
		return errConnectionLost
	}
	ctx, cancel := context.WithTimeout(cm.ctx, requestTimeout)
	defer cancel()
	return conn.dev.WriteRequest(ctx, req)
}

var errConnectionLost = errors.New("connection lost")

func runControl(cmd *cobra.Command, args []string) error {
	// Open initial connection
	conn, err := openKind(driver.KindEmulator)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	cm := &connectionManager{
		conn:   conn,
		ctx:    ctx,
		cancel: cancel,
	}

	// Create TUI model with connection manager
	m := initialControlModel(cm, conn.describe())

	// Create TUI program with alt screen and mouse support
	p := tea.NewProgram(m, tea.WithAltScreen(), tea.WithMouseCellMotion())
	cm.p = p

	go cm.readerLoop()

	// Ask for the firmware version so the header fills in
	cm.send(control.GetVersion{})

	_, err = p.Run()
	cm.cancel() // Signal goroutines to stop
	if conn := cm.getConn(); conn != nil {
		conn.Close()
	}
	if err != nil {
		return fmt.Errorf("TUI error: %v", err)
	}
	return nil
}

// readerLoop handles reading from connection with automatic reconnection
func (cm *connectionManager) readerLoop() {
	for {
		if cm.ctx.Err() != nil {
			return
		}

		if cm.readFromConnection() {
			cm.p.Send(connectionLostMsg{})

			if !cm.reconnect() {
				return // Shutdown requested during reconnect
			}
		}
	}
}

// readFromConnection reads packets from the connection until it fails.
// Returns true if connection was lost, false if shutdown requested
func (cm *connectionManager) readFromConnection() bool {
	// Buffered channel for batching updates
	batchChan := make(chan controlDataMsg, 100)
	readerDone := make(chan struct{})

	// Reader goroutine - decodes packets and sends to batch channel
	go func() {
		defer close(readerDone)

		conn := cm.getConn()
		if conn == nil {
			return
		}
		link := conn.dev.Link()
		buf := make([]byte, control.MaxPacketSize)
		failures := 0

		for {
			n, err := link.ReadContext(cm.ctx, buf)
			if err != nil {
				if cm.ctx.Err() != nil {
					return
				}
				// A closed link does not come back
				if errors.Is(err, control.ErrClosed) || errors.Is(err, driver.ErrConnectionClosed) {
					return
				}
				if failures++; failures >= readErrorLimit {
					return
				}
				// Brief pause before retry on transient errors (e.g., serial)
				time.Sleep(10 * time.Millisecond)
				continue
			}
			failures = 0

			resp := control.DecodeResponse(buf[:n])
			select {
			case batchChan <- controlDataMsg{
				at:        time.Now(),
				packet:    resp,
				anomalies: control.ValidatePacket(resp),
			}:
			default:
			}
		}
	}()

	// Batch sender goroutine - sends batched updates to TUI at fixed rate
	go func() {
		ticker := time.NewTicker(50 * time.Millisecond)
		defer ticker.Stop()

		for {
			select {
			case <-cm.ctx.Done():
				return
			case <-readerDone:
				return
			case <-ticker.C:
				var batch controlBatchMsg

				// Drain all available messages from batch channel
			drainLoop:
				for {
					select {
					case msg := <-batchChan:
						batch.messages = append(batch.messages, msg)
					default:
						break drainLoop
					}
				}

				if len(batch.messages) > 0 {
					cm.p.Send(batch)
				}
			}
		}
	}()

	// Wait for reader to finish (connection lost or shutdown)
	<-readerDone

	return cm.ctx.Err() == nil
}

// reconnect attempts to reconnect with exponential backoff
// Returns false if shutdown was requested during reconnection
func (cm *connectionManager) reconnect() bool {
	// Close old connection
	if conn := cm.getConn(); conn != nil {
		conn.Close()
		cm.setConn(nil)
	}

	backoff := cfg.Device.RetryInterval
	if backoff <= 0 {
		backoff = time.Second
	}
	maxBackoff := 30 * time.Second

	for {
		select {
		case <-cm.ctx.Done():
			return false
		case <-time.After(backoff):
		}

		conn, err := openKind(driver.KindEmulator)
		if err == nil {
			cm.setConn(conn)

			// Notify TUI about reconnection
			cm.p.Send(reconnectedMsg{connInfo: conn.describe()})

			cm.send(control.GetVersion{})
			return true
		}
		cm.p.Send(reconnectFailedMsg{err: err, retryIn: backoff})

		// Exponential backoff
		backoff *= 2
		if backoff > maxBackoff {
			backoff = maxBackoff
		}
	}
}
