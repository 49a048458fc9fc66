// Copyright 2017 Pilosa Corp.
//
// Redistribution and use in source and binary forms, with or without
// modification, are permitted provided that the following conditions
// are met:
//
// 1. Redistributions of source code must retain the above copyright
// notice, this list of conditions and the following disclaimer.
//
// 2. Redistributions in binary form must reproduce the above copyright
// notice, this list of conditions and the following disclaimer in the
// documentation and/or other materials provided with the distribution.
//
// 3. Neither the name of the copyright holder nor the names of its
// contributors may be used to endorse or promote products derived
// from this software without specific prior written permission.
//
// THIS SOFTWARE IS PROVIDED BY THE COPYRIGHT HOLDERS AND
// CONTRIBUTORS "AS IS" AND ANY EXPRESS OR IMPLIED WARRANTIES,
// INCLUDING, BUT NOT LIMITED TO, THE IMPLIED WARRANTIES OF
// MERCHANTABILITY AND FITNESS FOR A PARTICULAR PURPOSE ARE
// DISCLAIMED. IN NO EVENT SHALL THE COPYRIGHT HOLDER OR
// CONTRIBUTORS BE LIABLE FOR ANY DIRECT, INDIRECT, INCIDENTAL,
// SPECIAL, EXEMPLARY, OR CONSEQUENTIAL DAMAGES (INCLUDING,
// BUT NOT LIMITED TO, PROCUREMENT OF SUBSTITUTE GOODS OR
// SERVICES; LOSS OF USE, DATA, OR PROFITS; OR BUSINESS
// INTERRUPTION) HOWEVER CAUSED AND ON ANY THEORY OF LIABILITY,
// WHETHER IN CONTRACT, STRICT LIABILITY, OR TORT (INCLUDING
// NEGLIGENCE OR OTHERWISE) ARISING IN ANY WAY OUT OF THE USE
// OF THIS SOFTWARE, EVEN IF ADVISED OF THE POSSIBILITY OF SUCH
// DAMAGE.

// Package http receives records in the bodies of POST requests.
package http

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pilosa/mdk"
	"github.com/pilosa/mdk/json"
	"github.com/pkg/errors"
)

// RawSource implements mdk.RawSource by listening for HTTP POST requests.
// Every request body becomes one reader; the request is answered once the
// body was read to the end.
type RawSource struct {
	addr     string
	framing  string
	log      mdk.Logger
	listener net.Listener
	server   *http.Server
	readers  chan *body
	closed   chan struct{}
	once     sync.Once
	n        uint64
}

// RawSourceOption is a functional option type for RawSource.
type RawSourceOption func(s *RawSource)

// WithAddr is an option for the RawSource which causes it to bind to the given
// address.
func WithAddr(addr string) RawSourceOption {
	return func(s *RawSource) {
		s.addr = addr
	}
}

// WithListener is an option for RawSource which causes it to use the given
// listener. It will infer the address from the listener.
func WithListener(l net.Listener) RawSourceOption {
	return func(s *RawSource) {
		s.listener = l
		s.addr = l.Addr().String()
	}
}

// WithBuffer is an option for RawSource which modifies the number of
// request bodies that may wait to be read.
func WithBuffer(n int) RawSourceOption {
	return func(s *RawSource) {
		if n > -1 {
			s.readers = make(chan *body, n)
		}
	}
}

// WithFraming makes the source reject bodies whose framing can not be
// detected, instead of failing later while reading them. Only "auto" is
// checked.
func WithFraming(framing string) RawSourceOption {
	return func(s *RawSource) {
		s.framing = framing
	}
}

// WithLogger sets the logger for rejected requests.
func WithLogger(l mdk.Logger) RawSourceOption {
	return func(s *RawSource) {
		s.log = l
	}
}

// NewRawSource creates a RawSource and starts serving.
func NewRawSource(opts ...RawSourceOption) (*RawSource, error) {
	s := &RawSource{
		readers: make(chan *body, 3),
		closed:  make(chan struct{}),
		log:     mdk.NopLogger{},
	}
	for _, opt := range opts {
		opt(s)
	}

	if s.listener == nil {
		var err error
		s.listener, err = net.Listen("tcp", s.addr)
		if err != nil {
			return nil, errors.Wrap(err, "listening")
		}
	}
	if tl, ok := s.listener.(*net.TCPListener); ok {
		s.listener = tcpKeepAliveListener{tl}
	}

	s.server = &http.Server{
		Addr:    s.addr,
		Handler: s,
	}
	go func() {
		err := s.server.Serve(s.listener)
		if err != nil && err != http.ErrServerClosed {
			s.log.Printf("serving: %v", err)
			s.Close()
		}
	}()
	return s, nil
}

// Addr gets the address that the RawSource is listening on.
func (s *RawSource) Addr() string {
	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return s.addr
}

// NextReader implements mdk.RawSource. It blocks until a request arrives
// and returns io.EOF once the source is closed and every accepted body was
// handed out.
func (s *RawSource) NextReader() (mdk.NamedReadCloser, error) {
	select {
	case b := <-s.readers:
		return b, nil
	case <-s.closed:
		select {
		case b := <-s.readers:
			return b, nil
		default:
			return nil, io.EOF
		}
	}
}

// Close stops accepting requests. Requests already accepted are answered
// once their bodies were read.
func (s *RawSource) Close() (err error) {
	s.once.Do(func() {
		close(s.closed)
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		err = s.server.Shutdown(ctx)
	})
	return errors.Wrap(err, "shutting down server")
}

// ServeHTTP implements http.Handler for RawSource.
func (s *RawSource) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, fmt.Sprintf("unsupported method: %v", r.Method), http.StatusMethodNotAllowed)
		return
	}
	select {
	case <-s.closed:
		http.Error(w, "shutting down", http.StatusServiceUnavailable)
		return
	default:
	}
	br := bufio.NewReaderSize(r.Body, 64*1024)
	if s.framing == mdk.AutoFraming {
		prefix, err := br.Peek(512)
		if err != nil && err != io.EOF && err != bufio.ErrBufferFull {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		if len(bytes.TrimSpace(prefix)) == 0 {
			http.Error(w, "empty body", http.StatusBadRequest)
			return
		}
		if _, err := mdk.DetectFraming(prefix); err != nil {
			s.log.Printf("rejecting request from %s: %v", r.RemoteAddr, err)
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
	}
	b := &body{
		r:    br,
		c:    r.Body,
		log:  s.log,
		name: fmt.Sprintf("post-%d", atomic.AddUint64(&s.n, 1)),
		meta: map[string]interface{}{
			"remote":      r.RemoteAddr,
			"path":        r.URL.Path,
			"contentType": r.Header.Get("Content-Type"),
		},
		done: make(chan struct{}),
	}
	select {
	case s.readers <- b:
	case <-s.closed:
		http.Error(w, "shutting down", http.StatusServiceUnavailable)
		return
	case <-r.Context().Done():
		return
	}
	select {
	case <-b.done:
		w.WriteHeader(http.StatusAccepted)
		fmt.Fprintf(w, "%s %d bytes\n", b.name, atomic.LoadInt64(&b.read))
	case <-r.Context().Done():
	}
}

// body is a request body handed to the consumer. A broken connection ends
// the body early, the record it cut off is reported by the decoder.
type body struct {
	r    io.Reader
	c    io.Closer
	log  mdk.Logger
	name string
	meta map[string]interface{}
	read int64
	done chan struct{}
	once sync.Once
}

func (b *body) Read(p []byte) (int, error) {
	n, err := b.r.Read(p)
	atomic.AddInt64(&b.read, int64(n))
	if err != nil && err != io.EOF {
		b.log.Printf("reading %s: %v", b.name, err)
		err = io.EOF
	}
	return n, err
}

func (b *body) Close() error {
	b.once.Do(func() { close(b.done) })
	return b.c.Close()
}

func (b *body) Name() string                 { return b.name }
func (b *body) Meta() map[string]interface{} { return b.meta }

// NewSource gets a source for records posted to rs: ISO 2709 style bodies
// framed with the named preset or detected per request, or MARC-in-JSON
// when input is "json".
func NewSource(rs *RawSource, input, framing string) (mdk.Source, error) {
	switch input {
	case "iso2709", "":
		return mdk.NewRawRecordSource(rs, framing)
	case "json":
		return json.NewSourceFromRawSource(rs), nil
	}
	return nil, errors.Errorf("unknown input format %q", input)
}

// tcpKeepAliveListener is copied from net/http

type tcpKeepAliveListener struct {
	*net.TCPListener
}

func (ln tcpKeepAliveListener) Accept() (c net.Conn, err error) {
	tc, err := ln.AcceptTCP()
	if err != nil {
		return
	}
	tc.SetKeepAlive(true)
	tc.SetKeepAlivePeriod(3 * time.Minute)
	return tc, nil
}
