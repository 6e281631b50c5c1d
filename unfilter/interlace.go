package unfilter

import "fmt"

// Adam7 splits the image into seven reduced images using this 8x8 tile,
// where each number is the pass that owns the pixel:
//
//	1 6 4 6 2 6 4 6
//	7 7 7 7 7 7 7 7
//	5 6 5 6 5 6 5 6
//	7 7 7 7 7 7 7 7
//	3 6 4 6 3 6 4 6
//	7 7 7 7 7 7 7 7
//	5 6 5 6 5 6 5 6
//	7 7 7 7 7 7 7 7
//
// Level 0 stands for the whole, non-interlaced image.

// Dimensions is the size of a full or reduced image.
type Dimensions struct {
	Width  uint32
	Height uint32
}

// Pass is one reduced image the unfilterer walks.
type Pass struct {
	Level  int
	Width  uint32
	Height uint32
}

// ReducedDimensions returns the full image size at index 0 and the size of
// Adam7 pass 1 through 7 at indexes 1 through 7. Passes may be 0 wide or 0
// high on small images.
func ReducedDimensions(fullWidth, fullHeight uint32) [8]Dimensions {
	tilesWide, tilesHigh := fullWidth/8, fullHeight/8
	partW, partH := fullWidth%8, fullHeight%8

	return [8]Dimensions{
		{fullWidth, fullHeight},
		{tilesWide + (partW+7)/8, tilesHigh + (partH+7)/8},
		{tilesWide + (partW+3)/8, tilesHigh + (partH+7)/8},
		{tilesWide*2 + (partW+3)/4, tilesHigh + (partH+3)/8},
		{tilesWide*2 + (partW+1)/4, tilesHigh*2 + (partH+3)/4},
		{tilesWide*4 + (partW+1)/2, tilesHigh*2 + (partH+1)/4},
		{tilesWide*4 + partW/2, tilesHigh*4 + (partH+1)/2},
		{tilesWide*8 + partW, tilesHigh*4 + partH/2},
	}
}

// FullPos maps a position in a reduced image back to the full image. Level 0
// is the identity. Panics on a level above 7.
func FullPos(level int, reducedX, reducedY uint32) (uint32, uint32) {
	switch level {
	case 0:
		return reducedX, reducedY
	case 1:
		return reducedX * 8, reducedY * 8
	case 2:
		return reducedX*8 + 4, reducedY * 8
	case 3:
		return reducedX * 4, reducedY*8 + 4
	case 4:
		return reducedX*4 + 2, reducedY * 4
	case 5:
		return reducedX * 2, reducedY*4 + 2
	case 6:
		return reducedX*2 + 1, reducedY * 2
	case 7:
		return reducedX, reducedY*2 + 1
	default:
		panic(fmt.Sprintf("unfilter: interlace level %d out of range", level))
	}
}

// Passes lists the images stored in the data stream, in order: the full
// image alone, or the seven Adam7 passes including empty ones.
func Passes(g Geometry) []Pass {
	dims := ReducedDimensions(g.Width, g.Height)

	if !g.Interlaced {
		return []Pass{{Level: 0, Width: dims[0].Width, Height: dims[0].Height}}
	}

	passes := make([]Pass, 0, 7)
	for level := 1; level <= 7; level++ {
		passes = append(passes, Pass{Level: level, Width: dims[level].Width, Height: dims[level].Height})
	}

	return passes
}
