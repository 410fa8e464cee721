// Package server is the session layer: one goroutine per connection, a
// line-oriented text protocol, and a 1:1 mapping from commands to market
// operations.
package server

import (
	"bufio"
	"context"
	"fmt"
	"net"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/kinkard/auction-house/internal/db"
	"github.com/kinkard/auction-house/internal/market"
	"github.com/kinkard/auction-house/internal/notify"
)

// Server accepts connections and runs a session per client.
type Server struct {
	db       *db.DB
	market   *market.Market
	notifier *notify.Registry
	log      *zap.SugaredLogger
}

// New creates a server.
func New(database *db.DB, m *market.Market, notifier *notify.Registry, log *zap.SugaredLogger) *Server {
	return &Server{db: database, market: m, notifier: notifier, log: log}
}

// Listen accepts connections on addr until ctx is cancelled.
func (s *Server) Listen(ctx context.Context, addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", addr, err)
	}
	go func() {
		<-ctx.Done()
		ln.Close()
	}()
	s.log.Infow("listening", "addr", addr)

	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("accept failed: %w", err)
		}
		go s.handleConn(ctx, conn)
	}
}

// handleConn drives one session: the first line is the username, every
// following line is a command. Notifications are pushed on the same
// connection, serialized with command responses by a write lock.
func (s *Server) handleConn(ctx context.Context, conn net.Conn) {
	defer conn.Close()

	var writeMu sync.Mutex
	writeLine := func(line string) {
		writeMu.Lock()
		defer writeMu.Unlock()
		fmt.Fprintln(conn, line)
	}

	writeLine("Welcome to the auction house! Please enter your name:")

	scanner := bufio.NewScanner(conn)
	if !scanner.Scan() {
		return
	}
	user, err := s.db.GetOrCreateUser(ctx, strings.TrimSpace(scanner.Text()))
	if err != nil {
		writeLine(fmt.Sprintf("Error: %v", err))
		return
	}
	s.log.Infow("user logged in", "user", user.Username, "remote", conn.RemoteAddr())

	events := make(chan string, 16)
	s.notifier.Register(user.Username, events)
	defer s.notifier.Unregister(user.Username, events)

	done := make(chan struct{})
	defer close(done)
	go func() {
		for {
			select {
			case <-done:
				return
			case line := <-events:
				writeLine("[notification] " + line)
			}
		}
	}()

	writeLine(fmt.Sprintf("Welcome, %s! Type 'help' to list available commands", user.Username))

	sess := &session{user: user, market: s.market}
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		writeLine(sess.process(ctx, line))
	}
	s.log.Infow("connection closed", "user", user.Username)
}
