package ui

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"strings"

	"github.com/charmbracelet/lipgloss"
)

// headCells is the width of a rendered head in terminal cells.
const headCells = 8

// RenderHead draws a skin head PNG with half-block characters, two pixel
// rows per line, sampled down to headCells columns. It returns "" when the
// image cannot be decoded.
func RenderHead(data []byte) string {
	if len(data) == 0 {
		return ""
	}
	img, err := png.Decode(bytes.NewReader(data))
	if err != nil {
		return ""
	}

	b := img.Bounds()
	if b.Dx() < headCells || b.Dy() < headCells {
		return ""
	}
	step := b.Dx() / headCells

	var sb strings.Builder
	for row := 0; row < headCells; row += 2 {
		if row > 0 {
			sb.WriteByte('\n')
		}
		for col := 0; col < headCells; col++ {
			top := sample(img, b, col*step, row*step)
			bottom := sample(img, b, col*step, (row+1)*step)
			sb.WriteString(lipgloss.NewStyle().
				Foreground(top).
				Background(bottom).
				Render("▀"))
		}
	}
	return sb.String()
}

func sample(img image.Image, b image.Rectangle, x, y int) lipgloss.Color {
	c := color.RGBAModel.Convert(img.At(b.Min.X+x, b.Min.Y+y)).(color.RGBA)
	return lipgloss.Color(fmt.Sprintf("#%02X%02X%02X", c.R, c.G, c.B))
}

// placeholderHead is shown for accounts without a stored head.
func placeholderHead() string {
	style := lipgloss.NewStyle().Foreground(ColorMuted)
	line := strings.Repeat("░", headCells)
	return style.Render(strings.Join([]string{line, line, line, line}, "\n"))
}
