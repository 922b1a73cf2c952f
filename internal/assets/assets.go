// Package assets resolves the on-disk location of the bundled catalog and
// model assets into an [fs.FS] the catalog loader can read uniformly,
// whether they're laid out as a plain directory or bundled into a zip
// archive. Producing or shipping the asset bundle itself is someone else's
// concern; this package only supplies the loader side.
package assets

import (
	"archive/zip"
	"io"
	"io/fs"
	"os"

	"github.com/klauspost/compress/flate"

	"github.com/filetype-ai/magika/magikaerr"
)

// Open resolves path to an [fs.FS] rooted the way the upstream magika
// repository's "assets" directory is: a zip archive is opened and used
// directly as an fs.FS; a directory is opened with [os.DirFS].
func Open(path string) (fs.FS, error) {
	fi, err := os.Stat(path)
	if err != nil {
		return nil, magikaerr.NewIOError("assets.Open", err)
	}
	if fi.IsDir() {
		return os.DirFS(path), nil
	}
	return openZip(path)
}

// openZip opens path as a zip archive, registering the klauspost/compress
// flate implementation as the deflate decompressor: it's a drop-in,
// allocation-lighter replacement for the stdlib's, worth it here because
// the asset archive is decompressed on every process startup rather than
// once.
func openZip(path string) (fs.FS, error) {
	r, err := zip.OpenReader(path)
	if err != nil {
		return nil, magikaerr.NewIOError("assets.Open", err)
	}
	r.RegisterDecompressor(zip.Deflate, func(rd io.Reader) io.ReadCloser {
		return flate.NewReader(rd)
	})
	return r, nil
}
