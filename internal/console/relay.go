package console

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/htmlindex"
	"golang.org/x/text/encoding/unicode"
)

type relayOptions struct {
	log      *zap.SugaredLogger
	encoding encoding.Encoding
}

type RelayOption func(o *relayOptions)

func WithRelayLogger(l *zap.SugaredLogger) RelayOption {
	return func(o *relayOptions) {
		o.log = l
	}
}

// WithEncoding decodes child output from enc instead of UTF-8.
func WithEncoding(enc encoding.Encoding) RelayOption {
	return func(o *relayOptions) {
		o.encoding = enc
	}
}

// LookupEncoding resolves a charset label such as "utf-8" or "windows-1252".
func LookupEncoding(name string) (encoding.Encoding, error) {
	enc, err := htmlindex.Get(name)
	if err != nil {
		return nil, fmt.Errorf("unknown console encoding %q: %w", name, err)
	}
	return enc, nil
}

// Relay starts a goroutine that copies r into q one line at a time until r reaches
// end of stream or fails. Invalid input bytes become U+FFFD. The reader is closed
// before the returned channel is closed.
func Relay(r io.ReadCloser, q *Queue, opts ...RelayOption) <-chan struct{} {
	o := relayOptions{
		log:      zap.NewNop().Sugar(),
		encoding: unicode.UTF8,
	}
	for _, opt := range opts {
		opt(&o)
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		defer r.Close()

		reader := bufio.NewReader(o.encoding.NewDecoder().Reader(r))
		n := 0
		for {
			line, err := reader.ReadString('\n')
			if line != "" {
				q.Push(trimEOL(line))
				n++
			}
			if err != nil {
				if !errors.Is(err, io.EOF) {
					o.log.Debugw("console read ended with error", "Error", err, "Lines", n)
				} else {
					o.log.Debugw("console stream closed", "Lines", n)
				}
				return
			}
		}
	}()
	return done
}

func trimEOL(line string) string {
	line = strings.TrimSuffix(line, "\n")
	return strings.TrimSuffix(line, "\r")
}
