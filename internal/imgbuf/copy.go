package imgbuf

// CopyRect copies the pixels of srcRect (in src-local coordinates) from src
// into dst at dstOrigin. Both buffers must share the same Format; the
// caller is responsible for clamping srcRect/dstOrigin to valid bounds.
// This is the one read operation RegionFill needs from a painted tile —
// no blending, no interpolation, no format conversion (spec.md §4.3 step 3
// is a plain intersection copy).
func CopyRect(dst *Buffer, dstOrigin Point, src *Buffer, srcRect Rect) {
	if dst == nil || src == nil || dst.format != src.format {
		return
	}
	bpp := dst.format.BytesPerPixel()
	srcStride := src.Stride()
	dstStride := dst.Stride()

	for row := 0; row < srcRect.Height; row++ {
		sy := srcRect.Y + row
		dy := dstOrigin.Y + row
		if sy < 0 || sy >= src.height || dy < 0 || dy >= dst.height {
			continue
		}
		sx0 := max(srcRect.X, 0)
		sxEnd := min(srcRect.X+srcRect.Width, src.width)
		if sxEnd <= sx0 {
			continue
		}
		dx0 := dstOrigin.X + (sx0 - srcRect.X)
		n := (sxEnd - sx0) * bpp
		so := sy*srcStride + sx0*bpp
		do := dy*dstStride + dx0*bpp
		if do < 0 || do+n > len(dst.data) || so+n > len(src.data) {
			continue
		}
		copy(dst.data[do:do+n], src.data[so:so+n])
	}
}

// ZeroRect zeros the intersection of rect (in dst-local coordinates) with
// dst's bounds. Used by RegionFill to paint zero over unpainted tile area
// (spec.md §4.3: "unpainted areas are zero-filled").
func ZeroRect(dst *Buffer, rect Rect) {
	if dst == nil {
		return
	}
	bpp := dst.format.BytesPerPixel()
	stride := dst.Stride()

	x0 := max(rect.X, 0)
	y0 := max(rect.Y, 0)
	x1 := min(rect.X+rect.Width, dst.width)
	y1 := min(rect.Y+rect.Height, dst.height)
	if x1 <= x0 || y1 <= y0 {
		return
	}
	n := (x1 - x0) * bpp
	for y := y0; y < y1; y++ {
		o := y*stride + x0*bpp
		clear(dst.data[o : o+n])
	}
}

// Point is a pixel-space coordinate.
type Point struct{ X, Y int }
