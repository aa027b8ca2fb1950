package pipeline

import (
	"fmt"
	"image"
	"image/color"
	"sort"

	"github.com/khaledhikmat/vs-counter/model"
	"gocv.io/x/gocv"
)

var overlayColor = color.RGBA{0, 255, 0, 0}

const (
	overlayTop  = 30
	overlayStep = 25
)

// drawOverlay draws the counting line and one "<class>: <count>" row per
// class, ordered by class ID.
func drawOverlay(img *gocv.Mat, line model.Line, counts model.Counts, names model.ClassNames) {
	gocv.Line(img,
		image.Pt(int(line.X1), int(line.Y1)),
		image.Pt(int(line.X2), int(line.Y2)),
		overlayColor, 2)

	y := overlayTop
	for _, id := range sortedClasses(counts) {
		gocv.PutText(img, fmt.Sprintf("%s: %d", names.Name(id), counts[id]),
			image.Pt(10, y), gocv.FontHersheySimplex, 0.7, overlayColor, 2)
		y += overlayStep
	}
}

func sortedClasses(counts model.Counts) []int {
	ids := make([]int, 0, len(counts))
	for id := range counts {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	return ids
}
