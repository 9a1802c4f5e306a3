package preview

import (
	"errors"
	"fmt"
	"image"
	"image/draw"
	"os"
	"path/filepath"
	"sync"

	"github.com/chai2010/webp"
	"github.com/rs/zerolog/log"
	xdraw "golang.org/x/image/draw"
)

// TileOptions controls the XYZ pyramid written by WriteTiles.
type TileOptions struct {
	ZoomLimit   int
	TileSize    int
	Concurrency int
	Quality     int
}

// WriteTiles slices img into a z/x/y.webp pyramid under dir. At zoom z the
// image is fitted into a 2^z by 2^z grid of tiles, anchored top-left.
// Returns the number of tiles written.
func WriteTiles(img image.Image, dir string, opts TileOptions) (int, error) {
	if opts.TileSize <= 0 {
		opts.TileSize = 256
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = 8
	}
	if opts.Quality <= 0 {
		opts.Quality = 85
	}

	src := img.Bounds()
	longest := max(src.Dx(), src.Dy())
	if longest == 0 {
		return 0, errors.New("empty image")
	}

	var (
		mu      sync.Mutex
		written int
		errs    []error
	)

	for z := 0; z <= opts.ZoomLimit; z++ {
		gridSize := 1 << z
		totalPixels := gridSize * opts.TileSize

		scale := float64(totalPixels) / float64(longest)
		fitted := image.Rect(0, 0, int(float64(src.Dx())*scale), int(float64(src.Dy())*scale))

		log.Debug().
			Int("zoom", z).
			Int("grid", gridSize).
			Int("px", totalPixels).
			Msg("Processing zoom level")

		level := image.NewRGBA(image.Rect(0, 0, totalPixels, totalPixels))
		xdraw.CatmullRom.Scale(level, fitted, img, src, draw.Over, nil)

		var wg sync.WaitGroup
		sem := make(chan struct{}, opts.Concurrency)

		for x := 0; x < gridSize; x++ {
			for y := 0; y < gridSize; y++ {
				rect := image.Rect(x*opts.TileSize, y*opts.TileSize, (x+1)*opts.TileSize, (y+1)*opts.TileSize)
				if !rect.Overlaps(fitted) {
					continue
				}

				wg.Add(1)
				sem <- struct{}{}

				go func(zx, zy int, rect image.Rectangle) {
					defer wg.Done()
					defer func() { <-sem }()

					outPath := filepath.Join(dir, fmt.Sprint(z), fmt.Sprint(zx), fmt.Sprint(zy)+".webp")
					err := writeTile(outPath, level.SubImage(rect), opts.Quality)

					mu.Lock()
					defer mu.Unlock()
					if err != nil {
						errs = append(errs, fmt.Errorf("tile %d/%d/%d: %w", z, zx, zy, err))
						return
					}
					written++
				}(x, y, rect)
			}
		}
		wg.Wait()
	}

	return written, errors.Join(errs...)
}

func writeTile(path string, img image.Image, quality int) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}

	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer func() { _ = f.Close() }()

	return webp.Encode(f, img, &webp.Options{Lossless: false, Quality: float32(quality)})
}
