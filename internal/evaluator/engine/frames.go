package engine

import (
	"context"
	"image"
	"image/color"
	_ "image/png"
	"os"
	"path/filepath"
	"sort"
	"strings"

	_ "golang.org/x/image/tiff"
	"golang.org/x/sync/errgroup"

	"neurojudge/internal/evaluator/regions"
	appErr "neurojudge/pkg/errors"
)

var frameExtensions = map[string]bool{
	".tif":  true,
	".tiff": true,
	".png":  true,
}

// listFrames returns the image files in dir in name order.
func listFrames(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	var out []string
	for _, e := range entries {
		if e.IsDir() || !frameExtensions[strings.ToLower(filepath.Ext(e.Name()))] {
			continue
		}
		out = append(out, filepath.Join(dir, e.Name()))
	}
	sort.Strings(out)
	return out, nil
}

func decodeFrame(path string) (regions.Frame, error) {
	f, err := os.Open(path)
	if err != nil {
		return regions.Frame{}, err
	}
	defer f.Close()

	img, _, err := image.Decode(f)
	if err != nil {
		return regions.Frame{}, err
	}
	b := img.Bounds()
	frame := regions.NewFrame(b.Dx(), b.Dy())
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			g := color.Gray16Model.Convert(img.At(x, y)).(color.Gray16)
			frame.Set(y-b.Min.Y, x-b.Min.X, float64(g.Y))
		}
	}
	return frame, nil
}

// decodeFrames decodes paths with at most workers decoders in flight.
func decodeFrames(ctx context.Context, paths []string, workers int) ([]regions.Frame, error) {
	frames := make([]regions.Frame, len(paths))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(max(workers, 1))
	for i, p := range paths {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			frame, err := decodeFrame(p)
			if err != nil {
				return appErr.Wrapf(err, appErr.DatasetCorrupted, "decode %s failed", filepath.Base(p))
			}
			frames[i] = frame
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return frames, nil
}
