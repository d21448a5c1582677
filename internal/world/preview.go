package world

import (
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"image/png"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"mazeworld/internal/maze"
)

const (
	previewDefaultScale = 8
	previewMarkerRadius = 3
	previewAltShade     = 0.8
)

// PreviewStyle controls the top-down preview. Colors are #rrggbb strings;
// empty values fall back to defaults.
type PreviewStyle struct {
	PixelsPerUnit float64
	Background    string
	Floor         string
	Wall          string
	Marker        string
	Observer      *Position
}

func (s PreviewStyle) colors() (bg, floor, wall, marker color.NRGBA) {
	bg = resolveColor(s.Background, color.NRGBA{R: 10, G: 10, B: 18, A: 255})
	floor = resolveColor(s.Floor, color.NRGBA{R: 60, G: 64, B: 80, A: 255})
	wall = resolveColor(s.Wall, color.NRGBA{R: 230, G: 224, B: 200, A: 255})
	marker = resolveColor(s.Marker, color.NRGBA{R: 220, G: 40, B: 40, A: 255})
	return
}

// RenderPreview draws blocks top-down with world +Y pointing up the image.
func RenderPreview(blocks []*maze.Block, layout Layout, style PreviewStyle) (*image.NRGBA, error) {
	if len(blocks) == 0 {
		return nil, fmt.Errorf("no blocks to preview")
	}
	if layout.CellSize <= 0 || layout.Width <= 0 || layout.Height <= 0 {
		return nil, fmt.Errorf("invalid layout: %+v", layout)
	}
	scale := style.PixelsPerUnit
	if scale <= 0 {
		scale = previewDefaultScale
	}

	sorted := append([]*maze.Block(nil), blocks...)
	sort.Slice(sorted, func(i, j int) bool {
		if sorted[i].Coord.X != sorted[j].Coord.X {
			return sorted[i].Coord.X < sorted[j].Coord.X
		}
		return sorted[i].Coord.Y < sorted[j].Coord.Y
	})
	minC, maxC := sorted[0].Coord, sorted[0].Coord
	for _, b := range sorted[1:] {
		minC.X = min(minC.X, b.Coord.X)
		minC.Y = min(minC.Y, b.Coord.Y)
		maxC.X = max(maxC.X, b.Coord.X)
		maxC.Y = max(maxC.Y, b.Coord.Y)
	}
	origin := layout.BlockOrigin(minC)
	far := layout.BlockOrigin(maxC.Add(1, 1))
	width := int(math.Ceil((far.X-origin.X)*scale)) + 1
	height := int(math.Ceil((far.Y-origin.Y)*scale)) + 1

	bg, floor, wallCol, marker := style.colors()
	img := image.NewNRGBA(image.Rect(0, 0, width, height))
	draw.Draw(img, img.Bounds(), &image.Uniform{bg}, image.Point{}, draw.Src)

	toPixel := func(p Position) (float64, float64) {
		return (p.X - origin.X) * scale, float64(height-1) - (p.Y-origin.Y)*scale
	}

	for _, b := range sorted {
		blockOrigin := layout.BlockOrigin(b.Coord)
		tile := floor
		if (b.Coord.X+b.Coord.Y)%2 != 0 {
			tile = applyLighting(floor, previewAltShade)
		}
		x0, y1 := toPixel(blockOrigin)
		x1, y0 := toPixel(layout.BlockOrigin(b.Coord.Add(1, 1)))
		fillRect(img, x0, y0, x1, y1, tile)

		for _, w := range b.Walls() {
			cx, cy := toPixel(Position{X: blockOrigin.X + w.X, Y: blockOrigin.Y + w.Y})
			hw := math.Max(w.Width*scale/2, 0.5)
			hh := math.Max(w.Height*scale/2, 0.5)
			fillRect(img, cx-hw, cy-hh, cx+hw, cy+hh, wallCol)
		}
	}

	if style.Observer != nil {
		px, py := toPixel(*style.Observer)
		x, y := int(math.Round(px)), int(math.Round(py))
		fillPolygon(img, []image.Point{
			{X: x, Y: y - previewMarkerRadius},
			{X: x + previewMarkerRadius, Y: y},
			{X: x, Y: y + previewMarkerRadius},
			{X: x - previewMarkerRadius, Y: y},
		}, marker)
	}
	return img, nil
}

// SavePreview renders blocks and writes the PNG to path, creating parent
// directories as needed.
func SavePreview(blocks []*maze.Block, layout Layout, path string, style PreviewStyle) error {
	img, err := RenderPreview(blocks, layout, style)
	if err != nil {
		return err
	}
	if err := ensurePreviewDir(filepath.Dir(path)); err != nil {
		return err
	}
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create preview: %w", err)
	}
	defer file.Close()
	if err := png.Encode(file, img); err != nil {
		return fmt.Errorf("encode preview: %w", err)
	}
	return nil
}

func resolveColor(value string, fallback color.NRGBA) color.NRGBA {
	if col, ok := parseHexColor(value); ok {
		return col
	}
	return fallback
}

func parseHexColor(value string) (color.NRGBA, bool) {
	trimmed := strings.TrimPrefix(strings.TrimSpace(value), "#")
	if len(trimmed) != 6 {
		return color.NRGBA{}, false
	}
	v, err := strconv.ParseUint(trimmed, 16, 32)
	if err != nil {
		return color.NRGBA{}, false
	}
	return color.NRGBA{R: uint8(v >> 16), G: uint8(v >> 8), B: uint8(v), A: 255}, true
}

func applyLighting(base color.NRGBA, factor float64) color.NRGBA {
	factor = math.Max(0, math.Min(1, factor))
	return color.NRGBA{
		R: uint8(math.Round(float64(base.R) * factor)),
		G: uint8(math.Round(float64(base.G) * factor)),
		B: uint8(math.Round(float64(base.B) * factor)),
		A: 255,
	}
}

func fillRect(img *image.NRGBA, x0, y0, x1, y1 float64, col color.NRGBA) {
	r := image.Rect(int(math.Floor(x0)), int(math.Floor(y0)), int(math.Ceil(x1)), int(math.Ceil(y1)))
	draw.Draw(img, r.Intersect(img.Bounds()), &image.Uniform{col}, image.Point{}, draw.Src)
}

func fillPolygon(img *image.NRGBA, pts []image.Point, col color.NRGBA) {
	if len(pts) < 3 {
		return
	}
	minY, maxY := pts[0].Y, pts[0].Y
	for _, p := range pts[1:] {
		minY = min(minY, p.Y)
		maxY = max(maxY, p.Y)
	}
	bounds := img.Bounds()
	minY = max(minY, bounds.Min.Y)
	maxY = min(maxY, bounds.Max.Y-1)
	xs := make([]int, 0, len(pts))
	for y := minY; y <= maxY; y++ {
		xs = xs[:0]
		for i := range pts {
			j := (i + 1) % len(pts)
			x1, y1 := pts[i].X, pts[i].Y
			x2, y2 := pts[j].X, pts[j].Y
			if y1 == y2 || y < min(y1, y2) || y >= max(y1, y2) {
				continue
			}
			xs = append(xs, x1+(y-y1)*(x2-x1)/(y2-y1))
		}
		sort.Ints(xs)
		for i := 0; i+1 < len(xs); i += 2 {
			start := max(xs[i], bounds.Min.X)
			end := min(xs[i+1], bounds.Max.X-1)
			for x := start; x <= end; x++ {
				img.SetNRGBA(x, y, col)
			}
		}
	}
}

func ensurePreviewDir(dir string) error {
	if dir == "" {
		return fmt.Errorf("output directory is empty")
	}
	return os.MkdirAll(dir, 0o755)
}
