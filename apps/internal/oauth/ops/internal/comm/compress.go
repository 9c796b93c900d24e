// Copyright (c) Microsoft Corporation.
// Licensed under the MIT license.

package comm

import (
	"compress/gzip"
	"io"
)

// gzipDecompress wraps r so that reads return the decompressed content.
func gzipDecompress(r io.Reader) (io.Reader, error) {
	gzipReader, err := gzip.NewReader(r)
	if err != nil {
		return nil, err
	}

	pipeOut, pipeIn := io.Pipe()
	go func() {
		_, err := io.Copy(pipeIn, gzipReader)
		if err != nil {
			pipeIn.CloseWithError(err)
			gzipReader.Close()
			return
		}
		if err := gzipReader.Close(); err != nil {
			pipeIn.CloseWithError(err)
			return
		}
		pipeIn.Close()
	}()
	return pipeOut, nil
}
