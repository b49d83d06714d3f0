package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"pms-api/preview"
	"pms-api/utils"

	"github.com/spf13/cobra"
)

type inspectOptions struct {
	outDir   string
	maxPages int
	format   string
	workers  int
}

// newInspectCommand runs the preview pipeline on a local file and writes
// the rendered pages, without a server or database.
func newInspectCommand() *cobra.Command {
	opts := &inspectOptions{}
	cmd := &cobra.Command{
		Use:   "inspect <file>",
		Short: "Detect a file's format and render its preview pages",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runInspect(cmd, args[0], opts)
		},
	}
	cmd.Flags().StringVarP(&opts.outDir, "out", "o", "", "Directory to write rendered pages to")
	cmd.Flags().IntVar(&opts.maxPages, "max-pages", preview.DefaultDecodeOptions().MaxPages, "Pages to decode (0 for all)")
	cmd.Flags().StringVar(&opts.format, "format", "png", "Output format (png or jpeg)")
	cmd.Flags().IntVar(&opts.workers, "workers", preview.DefaultDecodeOptions().Workers, "Concurrent frame decodes")
	return cmd
}

func runInspect(cmd *cobra.Command, path string, opts *inspectOptions) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", path, err)
	}
	log := utils.NewLogger(cmd.ErrOrStderr(), "WARN")
	out := cmd.OutOrStdout()

	doc := &preview.Document{ID: filepath.Base(path), FileName: filepath.Base(path), Data: data}
	res := preview.Resolve(doc, preview.DefaultAllowList)
	fmt.Fprintf(out, "file:     %s (%d bytes)\n", path, len(data))
	fmt.Fprintf(out, "detected: %s\n", preview.Detect(data))
	fmt.Fprintf(out, "route:    %s\n", res.Route)
	if res.Mismatch != nil {
		fmt.Fprintf(out, "mismatch: %v\n", res.Mismatch)
	}
	if res.Route != preview.RouteDecode {
		return nil
	}

	defaults := preview.DefaultDecodeOptions()
	decoder := preview.NewTiffDecoder(preview.DecodeOptions{
		MaxPages:       opts.maxPages,
		Workers:        opts.workers,
		MaxFramePixels: defaults.MaxFramePixels,
	}, log, nil, nil)
	decoded, err := decoder.Decode(cmd.Context(), data)
	if err != nil {
		return err
	}

	resources := preview.NewResourceStore(0, nil)
	renderer, err := preview.NewRenderer(&preview.Options{Format: opts.format}, resources, log, nil)
	if err != nil {
		return err
	}
	pages, err := renderer.RenderAll(cmd.Context(), decoded.Pages)
	if err != nil {
		return err
	}
	defer renderer.Release(pages)

	fmt.Fprintf(out, "pages:    %d of %d\n", len(pages), decoded.TotalFrames)
	for _, skipped := range decoded.Skipped {
		fmt.Fprintf(out, "skipped:  %v\n", skipped)
	}

	base := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	for _, page := range pages {
		line := fmt.Sprintf("page %d:   %dx%d %s", page.PageNumber, page.Resource.Width, page.Resource.Height, page.Resource.ContentType)
		if opts.outDir != "" {
			ext := strings.TrimPrefix(page.Resource.ContentType, "image/")
			name := filepath.Join(opts.outDir, fmt.Sprintf("%s-page-%d.%s", base, page.PageNumber, ext))
			if err := utils.SaveFileAtomic(name, page.Resource.Data); err != nil {
				return err
			}
			line += " -> " + name
		}
		fmt.Fprintln(out, line)
	}
	return nil
}
