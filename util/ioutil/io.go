package ioutil

import (
	"io"
	"os"
	"path/filepath"

	pool "github.com/libp2p/go-buffer-pool"
	"github.com/ringo-is-a-color/lastcall/util/errors"
)

// https://superuser.com/a/1652039
// Use a TCP MSS value because it may cover most common case

const TCPBufSize = 1448

// includes file's abs path when an error occurs

func ReadFile(filePath string) ([]byte, error) {
	fullPath, err := filepath.Abs(filePath)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	bs, err := os.ReadFile(fullPath)
	return bs, errors.WithStack(err)
}

// Echo writes everything read from rw back to it until EOF.
func Echo(rw io.ReadWriter) (int64, error) {
	buf := pool.Get(TCPBufSize)
	defer pool.Put(buf)
	n, err := io.CopyBuffer(rw, rw, buf)
	return n, errors.WithStack(err)
}
