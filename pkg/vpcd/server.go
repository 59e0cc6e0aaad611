package vpcd

import (
	"context"
	"errors"
	"net"
	"sync"

	"github.com/rs/zerolog"
)

// Serve accepts daemon connections on ln and runs one Session per connection,
// each with its own card from newCard. Sessions share no state.
//
// Serve returns when ctx is cancelled or the listener fails. Cancelling ctx
// closes the listener and every live connection, then waits for the sessions
// to finish.
func Serve(ctx context.Context, ln net.Listener, newCard func() Card, opts ...Option) error {
	log := optionsLogger(opts)

	var (
		mu    sync.Mutex
		conns = make(map[net.Conn]struct{})
		wg    sync.WaitGroup
	)

	closeAll := func() {
		ln.Close()
		mu.Lock()
		for c := range conns {
			c.Close()
		}
		mu.Unlock()
	}
	stop := context.AfterFunc(ctx, closeAll)
	defer stop()

	var serveErr error
	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() == nil && !errors.Is(err, net.ErrClosed) {
				serveErr = err
			}
			break
		}

		mu.Lock()
		conns[conn] = struct{}{}
		mu.Unlock()
		if ctx.Err() != nil {
			conn.Close()
		}

		wg.Add(1)
		go func() {
			defer wg.Done()
			defer func() {
				mu.Lock()
				delete(conns, conn)
				mu.Unlock()
				conn.Close()
			}()

			connLog := log.With().Str("remote", conn.RemoteAddr().String()).Logger()
			connLog.Info().Msg("vpcd connected")

			sessOpts := append(append([]Option{}, opts...), WithLogger(connLog))
			err := NewSession(conn, newCard(), sessOpts...).Run()
			logTermination(connLog, err)
		}()
	}

	closeAll()
	wg.Wait()
	return serveErr
}

func optionsLogger(opts []Option) zerolog.Logger {
	s := &Session{log: zerolog.Nop()}
	for _, opt := range opts {
		opt(s)
	}
	return s.log
}

func logTermination(log zerolog.Logger, err error) {
	if errors.Is(err, ErrClosed) {
		log.Info().Msg("vpcd disconnected")
		return
	}
	log.Warn().Err(err).Msg("session ended")
}
