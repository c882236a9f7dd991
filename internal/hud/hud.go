// Package hud renders a telemetry overlay onto decoded video frames.
package hud

import (
	"fmt"
	"image"
	"os"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/golang/freetype"
	"golang.org/x/image/font"

	"github.com/droneworks/tellostation/internal/tello"
)

const (
	dpi     float64 = 72
	hinting string  = "full"
	size    float64 = 18
	spacing float64 = 1.1
)

// Annotator draws a status block into the corner of an RGBA frame.
type Annotator struct {
	context *freetype.Context
}

// NewAnnotator loads the TTF font at fontPath and prepares a drawing
// context.
func NewAnnotator(fontPath string) (*Annotator, error) {
	fontBytes, err := os.ReadFile(fontPath)
	if err != nil {
		return nil, fmt.Errorf("reading font: %w", err)
	}

	parsedFont, err := freetype.ParseFont(fontBytes)
	if err != nil {
		return nil, fmt.Errorf("parsing font: %w", err)
	}

	context := freetype.NewContext()
	context.SetDPI(dpi)
	context.SetFont(parsedFont)
	context.SetFontSize(size)
	context.SetSrc(image.White)

	switch hinting {
	case "full":
		context.SetHinting(font.HintingFull)
	default:
		context.SetHinting(font.HintingNone)
	}

	return &Annotator{context: context}, nil
}

// Annotate draws the status block onto img.
func (a *Annotator) Annotate(img *image.RGBA, st tello.Status, captured time.Time) error {
	a.context.SetClip(img.Bounds())
	a.context.SetDst(img)

	flightTime := time.Duration(st.FlightTime) * time.Second

	strings := []string{
		"Captured: " + captured.Format("15:04:05"),
		fmt.Sprintf("Battery: %d%%  Alt: %s cm", st.Battery, humanize.Comma(int64(st.Altitude))),
		fmt.Sprintf("Attitude: p%d° r%d° y%d°", st.Pitch, st.Roll, st.Yaw),
		fmt.Sprintf("Speed: %d cm/s  Baro: %s", st.Speed, a.humanPressure(st.Pressure)),
		fmt.Sprintf("Flight time: %s  State: %s", flightTime, st.State),
	}

	// positioning, bottom-left with a margin for the whole block
	imgSize := img.Bounds().Size()
	lineHeight := size * spacing
	top, left := imgSize.Y-int(lineHeight)*len(strings), 3

	pt := freetype.Pt(left, top)
	for _, s := range strings {
		if _, err := a.context.DrawString(s, pt); err != nil {
			return fmt.Errorf("drawing status block: %w", err)
		}
		pt.Y += a.context.PointToFixed(size * spacing)
	}

	return nil
}

func (a *Annotator) humanPressure(hPa float64) string {
	fpxSI, fpxSuffix := humanize.ComputeSI(hPa * 100) // hPa to Pa
	return fmt.Sprintf("%0.1f %sPa", fpxSI, fpxSuffix)
}
