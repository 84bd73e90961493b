package main

import (
	"bufio"
	"bytes"
	"crypto/tls"
	"flag"
	"fmt"
	"io/fs"
	"log"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/goburrow/quince"
	"github.com/goburrow/quince/transport"
)

func loadCertificate(cert, key string) (tls.Certificate, error) {
	return tls.LoadX509KeyPair(cert, key)
}

func serverCommand(args []string) error {
	cmd := flag.NewFlagSet("server", flag.ExitOnError)
	listenAddr := cmd.String("listen", "0.0.0.0:4433", "listen on the given IP:port")
	dir := cmd.String("dir", ".", "server root directory")
	cert := cmd.String("cert", "test/dummy.crt", "TLS certificate")
	key := cmd.String("key", "test/dummy.key", "TLS key")
	logLevel := cmd.Int("v", 2, "log verbose: 0=off 1=error 2=info 3=debug 4=trace")
	cmd.Parse(args)

	root, err := filepath.Abs(*dir)
	if err != nil {
		return err
	}
	config := newConfig()
	tlsCert, err := loadCertificate(*cert, *key)
	if err != nil {
		return err
	}
	config.TLS.Certificates = []tls.Certificate{tlsCert}

	handler := &fileServerHandler{root: root}
	server := quic.NewServer(config)
	server.SetHandler(handler)
	server.SetLogger(*logLevel, os.Stdout)
	if err := server.ListenAndServe(*listenAddr); err != nil {
		return err
	}
	log.Printf("serving %s on %s", root, *listenAddr)
	select {}
}

// fileServerHandler answers one "GET /path\r\n"-style request per stream
// with either the named file's contents or an HTTP-flavored status line,
// mirroring the minimal request handling a QUIC file-transfer demo needs
// without pulling in a full HTTP/3 stack.
type fileServerHandler struct {
	root string
}

func (h *fileServerHandler) Serve(c quic.Conn, events []transport.Event) {
	for _, e := range events {
		if e.Type != transport.EventStream {
			continue
		}
		st := c.Stream(e.StreamID)
		if st == nil {
			continue
		}
		buf := make([]byte, 4096)
		n, _ := st.Read(buf)
		if n == 0 {
			continue
		}
		h.handleRequest(st, buf[:n])
	}
}

func (h *fileServerHandler) handleRequest(st *transport.Stream, req []byte) {
	path, ok := parseRequestPath(req)
	if !ok {
		writeStatus(st, 400)
		return
	}
	if strings.Contains(path, "..") {
		// Hacky traversal guard, same spirit as the path this handler was
		// modeled on: reject anything containing a parent reference
		// outright rather than trying to canonicalize it first.
		writeStatus(st, 403)
		return
	}
	if n, isRandom := parseRandomRequest(path); isRandom {
		writeRandomData(st, n)
		return
	}
	h.serveFile(st, path)
}

func (h *fileServerHandler) serveFile(st *transport.Stream, reqPath string) {
	clean := filepath.Clean("/" + reqPath)
	full := filepath.Join(h.root, clean)
	info, err := os.Lstat(full)
	if err != nil {
		writeStatus(st, 404)
		return
	}
	if info.Mode()&fs.ModeDir != 0 {
		full = filepath.Join(full, "index.html")
		info, err = os.Lstat(full)
		if err != nil {
			writeStatus(st, 404)
			return
		}
	}
	if info.Mode()&fs.ModeSymlink != 0 {
		resolved, err := filepath.EvalSymlinks(full)
		if err != nil {
			writeStatus(st, 403)
			return
		}
		info, err = os.Stat(resolved)
		if err != nil || !info.Mode().IsRegular() {
			writeStatus(st, 403)
			return
		}
		full = resolved
	} else if !info.Mode().IsRegular() {
		writeStatus(st, 403)
		return
	}
	data, err := os.ReadFile(full)
	if err != nil {
		writeStatus(st, 500)
		return
	}
	st.Write(data)
	st.Close()
}

func parseRequestPath(req []byte) (string, bool) {
	scanner := bufio.NewScanner(bytes.NewReader(req))
	if !scanner.Scan() {
		return "", false
	}
	line := scanner.Text()
	fields := strings.Fields(line)
	if len(fields) < 2 || fields[0] != "GET" {
		return "", false
	}
	return strings.TrimPrefix(fields[1], "/"), true
}

// parseRandomRequest recognizes a bare "GET /<n>" request for n bytes of
// filler data, used to exercise throughput without needing real files on
// disk.
func parseRandomRequest(path string) (int, bool) {
	if path == "" {
		return 0, false
	}
	n, err := strconv.Atoi(path)
	if err != nil || n <= 0 {
		return 0, false
	}
	return n, true
}

func writeRandomData(st *transport.Stream, n int) {
	data := make([]byte, n)
	c := byte('A')
	for i := range data {
		data[i] = c
		if c == 'Z' {
			c = 'A'
		} else {
			c++
		}
	}
	st.Write(data)
	st.Close()
}

func writeStatus(st *transport.Stream, code int) {
	msg := statusMessage(code)
	st.Write([]byte(msg))
	st.Close()
}

func statusMessage(code int) string {
	switch code {
	case 400:
		return "400 Bad Request"
	case 403:
		return "403 Forbidden"
	case 404:
		return "404 Not Found"
	case 500:
		return "500 Internal Server Error"
	default:
		return fmt.Sprintf("%d Error", code)
	}
}
