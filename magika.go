// Package magika implements a content-type classifier combining a small
// neural model with deterministic pre- and post-processing rules: given a
// file's bytes, it reports the kind of content it holds (python, png, elf,
// zip, ...).
//
// The runtime model itself is an external collaborator (any ONNX-capable
// engine satisfying the [session.Runtime] contract), loaded from a bundle
// laid out like the upstream magika project's "assets" directory:
//
//	content_types_kb.min.json
//	models/<name>/config.min.json
//	models/<name>/model.onnx
package magika

import (
	"io/fs"
	"path"

	"github.com/rs/zerolog/log"

	"github.com/filetype-ai/magika/catalog"
	"github.com/filetype-ai/magika/magikaerr"
	"github.com/filetype-ai/magika/session"
)

// LoadModel loads the named model and its catalog from sys and constructs a
// ready-to-use [session.Session] backed by the system's ONNX Runtime.
func LoadModel(sys fs.FS, name string) (*session.Session, error) {
	cat, err := catalog.Load(sys, name)
	if err != nil {
		return nil, err
	}

	model, err := fs.ReadFile(sys, path.Join("models", name, "model.onnx"))
	if err != nil {
		return nil, magikaerr.NewIOError("magika.LoadModel", err)
	}

	rt, err := session.NewONNXRuntime(model, cat.Len())
	if err != nil {
		return nil, err
	}

	log.Info().Str("model", name).Int("labels", cat.Len()).Msg("model loaded")
	return session.New(cat, rt), nil
}
