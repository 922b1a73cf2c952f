// Command magika identifies the content type of one or more files.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/fatih/color"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/filetype-ai/magika"
	"github.com/filetype-ai/magika/catalog"
	"github.com/filetype-ai/magika/internal/assets"
	"github.com/filetype-ai/magika/pipeline"
	"github.com/filetype-ai/magika/session"
)

// errSomeFailed signals that run completed but at least one input produced
// an error result; it carries no message of its own since each failure
// already appears, at its input position, in the output written to stdout.
var errSomeFailed = errors.New("one or more inputs failed")

func main() {
	if err := newRootCmd().Execute(); err != nil {
		if !errors.Is(err, errSomeFailed) {
			log.Error().Err(err).Msg("magika failed")
		}
		os.Exit(1)
	}
}

type flags struct {
	assetsPath  string
	modelName   string
	recursive   bool
	noDeref     bool
	noColors    bool
	outputMode  string
	format      string
	showScore   bool
	batchSize   int
	numWorkers  int
	verbose     bool
}

func newRootCmd() *cobra.Command {
	var f flags

	cmd := &cobra.Command{
		Use:   "magika [flags] PATH...",
		Short: "Identify the content type of files",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context(), args, f)
		},
	}

	cmd.Flags().StringVar(&f.assetsPath, "assets", "assets", "path to the catalog/model asset bundle (directory or zip)")
	cmd.Flags().StringVar(&f.modelName, "model", "standard_v3_3", "model name within the asset bundle")
	cmd.Flags().BoolVarP(&f.recursive, "recursive", "r", false, "expand directories recursively")
	cmd.Flags().BoolVar(&f.noDeref, "no-dereference", false, "report symlinks directly instead of following them")
	cmd.Flags().BoolVar(&f.noColors, "no-colors", false, "disable colored output")
	cmd.Flags().StringVar(&f.outputMode, "output", "description", "one of: label, mime, description")
	cmd.Flags().StringVar(&f.format, "format", "custom", "one of: json, jsonl, custom")
	cmd.Flags().BoolVarP(&f.showScore, "score", "s", false, "include the confidence score")
	cmd.Flags().IntVarP(&f.batchSize, "batch-size", "b", 32, "number of inputs per inference batch")
	cmd.Flags().IntVarP(&f.numWorkers, "workers", "j", 4, "number of concurrent inference workers")
	cmd.Flags().BoolVarP(&f.verbose, "verbose", "v", false, "enable debug logging")

	return cmd
}

func run(ctx context.Context, paths []string, f flags) error {
	if f.verbose {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	} else {
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	}
	color.NoColor = f.noColors || color.NoColor

	sys, err := assets.Open(f.assetsPath)
	if err != nil {
		return fmt.Errorf("opening assets: %w", err)
	}
	sess, err := magika.LoadModel(sys, f.modelName)
	if err != nil {
		return fmt.Errorf("loading model: %w", err)
	}
	defer sess.Close()
	log.Debug().Str("model", sess.Catalog().Config.ModelName).Msg("model loaded")

	r := newRenderer(f, sess)
	failed := false

	opts := pipeline.Options{
		NumWorkers:  f.numWorkers,
		BatchSize:   f.batchSize,
		Recursive:   f.recursive,
		Dereference: !f.noDeref,
	}

	switch f.format {
	case "json":
		var all []renderedResult
		err := pipeline.Run(ctx, sess.Catalog(), sess, paths, opts, func(resp pipeline.OrderedResponse) {
			rr := r.render(resp)
			if resp.Err != nil {
				failed = true
			}
			all = append(all, rr)
		})
		if err != nil {
			return err
		}
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(all); err != nil {
			return err
		}
	case "jsonl":
		enc := json.NewEncoder(os.Stdout)
		err := pipeline.Run(ctx, sess.Catalog(), sess, paths, opts, func(resp pipeline.OrderedResponse) {
			rr := r.render(resp)
			if resp.Err != nil {
				failed = true
			}
			_ = enc.Encode(rr)
		})
		if err != nil {
			return err
		}
	default:
		err := pipeline.Run(ctx, sess.Catalog(), sess, paths, opts, func(resp pipeline.OrderedResponse) {
			if resp.Err != nil {
				failed = true
				fmt.Fprintf(os.Stdout, "%s: %s\n", resp.Path, colorize(color.FgRed, resp.Err.Error(), f.noColors))
				return
			}
			fmt.Fprintln(os.Stdout, r.renderCustom(resp))
		})
		if err != nil {
			return err
		}
	}

	if failed {
		return errSomeFailed
	}
	return nil
}

func colorize(c color.Attribute, s string, disabled bool) string {
	if disabled {
		return s
	}
	return color.New(c).Sprint(s)
}

type renderedResult struct {
	Path  string  `json:"path"`
	Label string  `json:"label,omitempty"`
	Mime  string  `json:"mime_type,omitempty"`
	Desc  string  `json:"description,omitempty"`
	Score float32 `json:"score"`
	Error string  `json:"error,omitempty"`
}

type renderer struct {
	f   flags
	cat *catalog.Catalog
}

func newRenderer(f flags, sess *session.Session) *renderer {
	return &renderer{f: f, cat: sess.Catalog()}
}

func (r *renderer) render(resp pipeline.OrderedResponse) renderedResult {
	rr := renderedResult{Path: resp.Path}
	if resp.Err != nil {
		rr.Error = resp.Err.Error()
		return rr
	}
	rr.Score = resp.Type.Score()
	ct, ok := resp.Type.Label()
	if !ok {
		rr.Desc = resp.Type.Kind.String()
		return rr
	}
	ti := r.cat.TypeInfo(ct)
	rr.Label = ti.Label
	rr.Mime = ti.MimeType
	rr.Desc = ti.Description
	return rr
}

func (r *renderer) renderCustom(resp pipeline.OrderedResponse) string {
	rr := r.render(resp)
	var body string
	switch r.f.outputMode {
	case "label":
		body = rr.Label
	case "mime":
		body = rr.Mime
	default:
		body = rr.Desc
	}
	if body == "" {
		body = resp.Type.Kind.String()
	}
	if r.f.showScore {
		return fmt.Sprintf("%s: %s (%.3f)", resp.Path, colorize(color.FgGreen, body, r.f.noColors), rr.Score)
	}
	return fmt.Sprintf("%s: %s", resp.Path, colorize(color.FgGreen, body, r.f.noColors))
}
