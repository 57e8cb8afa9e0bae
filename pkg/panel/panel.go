// Package panel lays out a visualization panel: the full image with every
// annotation drawn on it, a legend, and a grid of captioned crops.
package panel

import (
	"fmt"
	"image"

	"github.com/disintegration/imaging"
	"github.com/fogleman/gg"
	"golang.org/x/image/font/basicfont"
)

const lineHeight = 16

// Layout controls panel geometry
type Layout struct {
	Columns      int
	TileSize     int // max width and height of a crop tile
	HeaderHeight int // max height of the full-image header
	LegendWidth  int
	LegendLimit  int // legend entries shown before "... and N more"
	CaptionLines int
	Margin       int
}

// DefaultLayout is a three column grid
func DefaultLayout() Layout {
	return Layout{
		Columns:      3,
		TileSize:     360,
		HeaderHeight: 540,
		LegendWidth:  260,
		LegendLimit:  10,
		CaptionLines: 3,
		Margin:       12,
	}
}

// Tile is one crop and its caption
type Tile struct {
	Image   image.Image
	Caption []string
}

// Panel is the content of one visualization panel
type Panel struct {
	Title  string
	Header image.Image
	Legend []string
	Tiles  []Tile
}

// LegendLines returns the legend text: a heading, at most limit entries and
// a count of the entries left out.
func LegendLines(entries []string, limit int) []string {
	lines := []string{"Annotations:"}
	if limit <= 0 || limit > len(entries) {
		limit = len(entries)
	}
	lines = append(lines, entries[:limit]...)
	if len(entries) > limit {
		lines = append(lines, fmt.Sprintf("... and %d more", len(entries)-limit))
	}
	return lines
}

// Size returns the pixel size of a panel with n tiles
func (l Layout) Size(n int) (width, height int) {
	l = l.normalized()
	rows := (n + l.Columns - 1) / l.Columns
	width = l.Columns*l.TileSize + (l.Columns+1)*l.Margin
	height = l.Margin + lineHeight + l.HeaderHeight + l.Margin
	height += rows * (l.cellHeight() + l.Margin)
	return width, height
}

// normalized replaces sizes that cannot lay out a grid with their defaults
func (l Layout) normalized() Layout {
	def := DefaultLayout()
	if l.Columns < 1 {
		l.Columns = def.Columns
	}
	if l.TileSize < 1 {
		l.TileSize = def.TileSize
	}
	if l.HeaderHeight < 1 {
		l.HeaderHeight = def.HeaderHeight
	}
	if l.LegendWidth < 1 {
		l.LegendWidth = def.LegendWidth
	}
	if l.CaptionLines < 0 {
		l.CaptionLines = 0
	}
	if l.Margin < 0 {
		l.Margin = 0
	}
	return l
}

func (l Layout) cellHeight() int {
	return l.CaptionLines*lineHeight + 4 + l.TileSize
}

// Compose renders the panel onto a white canvas
func Compose(p Panel, l Layout) image.Image {
	l = l.normalized()
	width, height := l.Size(len(p.Tiles))
	dc := gg.NewContext(width, height)
	dc.SetRGB(1, 1, 1)
	dc.Clear()
	dc.SetFontFace(basicfont.Face7x13)

	// Header row: title, full image and legend
	y := float64(l.Margin)
	dc.SetRGB(0, 0, 0)
	dc.DrawString(p.Title, float64(l.Margin), y+lineHeight-4)
	y += lineHeight

	headerW := width - 3*l.Margin - l.LegendWidth
	if p.Header != nil {
		header := imaging.Fit(p.Header, headerW, l.HeaderHeight, imaging.Lanczos)
		dc.DrawImage(header, l.Margin, int(y))
	}
	drawLegend(dc, LegendLines(p.Legend, l.LegendLimit), float64(width-l.Margin-l.LegendWidth), y, float64(l.LegendWidth))
	y += float64(l.HeaderHeight + l.Margin)

	// Crop grid
	for i, tile := range p.Tiles {
		col := i % l.Columns
		row := i / l.Columns
		x := l.Margin + col*(l.TileSize+l.Margin)
		top := int(y) + row*(l.cellHeight()+l.Margin)
		drawTile(dc, tile, l, x, top)
	}

	return dc.Image()
}

func drawLegend(dc *gg.Context, lines []string, x, y, w float64) {
	h := float64(len(lines)*lineHeight + 12)
	dc.DrawRoundedRectangle(x, y, w, h, 6)
	dc.SetRGBA(0.96, 0.87, 0.70, 0.5)
	dc.Fill()
	dc.SetRGB(0, 0, 0)
	for i, line := range lines {
		dc.DrawString(line, x+8, y+float64((i+1)*lineHeight))
	}
}

func drawTile(dc *gg.Context, tile Tile, l Layout, x, y int) {
	dc.SetRGB(0, 0, 0)
	for i, line := range tile.Caption {
		if i >= l.CaptionLines {
			break
		}
		dc.DrawString(line, float64(x), float64(y+(i+1)*lineHeight-4))
	}
	if tile.Image == nil {
		return
	}
	img := imaging.Fit(tile.Image, l.TileSize, l.TileSize, imaging.Lanczos)
	top := y + l.CaptionLines*lineHeight + 4
	// center horizontally in the cell
	left := x + (l.TileSize-img.Bounds().Dx())/2
	dc.DrawImage(img, left, top)
}
