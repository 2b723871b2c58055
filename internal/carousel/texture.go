package carousel

import (
	"errors"
	"image"
	"image/color"
	"math"

	"github.com/fogleman/gg"
	xdraw "golang.org/x/image/draw"
)

// ColorSpace tags how a renderer must interpret texture texels.
type ColorSpace string

const (
	ColorSpaceSRGB   ColorSpace = "srgb"
	ColorSpaceLinear ColorSpace = "linear"
)

// Filter is the minification filter a renderer should sample with.
type Filter string

const (
	FilterLinear             Filter = "linear"
	FilterLinearMipmapLinear Filter = "linear-mipmap-linear"
)

const minTextureSide = 8

// Texture is a premultiplied RGBA raster plus the sampling hints that go
// with it. Mipmaps, when present, halve the previous level down to 1x1.
type Texture struct {
	Image      *image.RGBA
	Mipmaps    []*image.RGBA
	ColorSpace ColorSpace
	MinFilter  Filter

	tracker *Tracker
}

// Width returns the base level width.
func (t *Texture) Width() int {
	if t == nil || t.Image == nil {
		return 0
	}
	return t.Image.Bounds().Dx()
}

// Height returns the base level height.
func (t *Texture) Height() int {
	if t == nil || t.Image == nil {
		return 0
	}
	return t.Image.Bounds().Dy()
}

// Release drops the pixel data. Releasing twice is a no-op.
func (t *Texture) Release() {
	if t == nil || t.Image == nil {
		return
	}
	t.Image = nil
	t.Mipmaps = nil
	t.tracker.release(resourceTexture)
}

// TextureOptions controls card texture generation.
type TextureOptions struct {
	// MaxDimension caps the longer side of the photo texture.
	MaxDimension int
	// Padding is the frame margin around the photo, in texels.
	Padding int
	// FrameFill and FrameStroke color the decorative frame.
	FrameFill   color.Color
	FrameStroke color.Color
	// PhotoMipmaps builds a mip chain for the photo as well as the frame.
	PhotoMipmaps bool
}

// DefaultTextureOptions returns the options used for carousel cards.
func DefaultTextureOptions() TextureOptions {
	return TextureOptions{
		MaxDimension: 1024,
		Padding:      18,
		FrameFill:    color.RGBA{R: 0xff, G: 0xf8, B: 0xf5, A: 0xff},
		FrameStroke:  color.RGBA{R: 0xd8, G: 0x7c, B: 0x97, A: 0xff},
	}
}

// CardTextures is the rounded photo and its frame for one card.
type CardTextures struct {
	Photo        *Texture
	Frame        *Texture
	SourceWidth  int
	SourceHeight int
}

// Release releases both textures.
func (c *CardTextures) Release() {
	if c == nil {
		return
	}
	c.Photo.Release()
	c.Frame.Release()
}

// ErrEmptyImage is returned for images without pixels.
var ErrEmptyImage = errors.New("image has no pixels")

// FitTexture returns the texture size for a source image: the source scaled
// down so its longer side is at most maxDim, never up, and never below
// minTextureSide on either axis.
func FitTexture(srcW, srcH, maxDim int) (int, int) {
	scale := 1.0
	if maxDim > 0 {
		scale = math.Min(1, float64(maxDim)/float64(max(srcW, srcH)))
	}
	w := max(minTextureSide, int(math.Round(float64(srcW)*scale)))
	h := max(minTextureSide, int(math.Round(float64(srcH)*scale)))
	return w, h
}

// BuildCardTextures composes the rounded photo texture and the matching
// frame texture for img.
func BuildCardTextures(img image.Image, opts TextureOptions) (*CardTextures, error) {
	return buildCardTextures(img, opts, nil)
}

func buildCardTextures(img image.Image, opts TextureOptions, tracker *Tracker) (*CardTextures, error) {
	if img == nil || img.Bounds().Empty() {
		return nil, ErrEmptyImage
	}
	def := DefaultTextureOptions()
	if opts.MaxDimension <= 0 {
		opts.MaxDimension = def.MaxDimension
	}
	if opts.Padding < 0 {
		opts.Padding = 0
	}
	if opts.FrameFill == nil {
		opts.FrameFill = def.FrameFill
	}
	if opts.FrameStroke == nil {
		opts.FrameStroke = def.FrameStroke
	}

	b := img.Bounds()
	w, h := FitTexture(b.Dx(), b.Dy(), opts.MaxDimension)

	photo := &Texture{
		Image:      roundedPhoto(img, w, h),
		ColorSpace: ColorSpaceSRGB,
		MinFilter:  FilterLinear,
		tracker:    tracker,
	}
	if opts.PhotoMipmaps {
		photo.Mipmaps = mipChain(photo.Image)
		photo.MinFilter = FilterLinearMipmapLinear
	}
	tracker.acquire(resourceTexture)

	frameImg := drawFrame(w+2*opts.Padding, h+2*opts.Padding, opts.FrameFill, opts.FrameStroke)
	frameTex := &Texture{
		Image:      frameImg,
		Mipmaps:    mipChain(frameImg),
		ColorSpace: ColorSpaceSRGB,
		MinFilter:  FilterLinearMipmapLinear,
		tracker:    tracker,
	}
	tracker.acquire(resourceTexture)

	return &CardTextures{
		Photo:        photo,
		Frame:        frameTex,
		SourceWidth:  b.Dx(),
		SourceHeight: b.Dy(),
	}, nil
}

// cornerRadius returns frac of the shorter side, at least minR, and never
// more than half the shorter side.
func cornerRadius(w, h int, frac, minR float64) float64 {
	short := float64(min(w, h))
	r := math.Max(minR, frac*short)
	return math.Min(r, short/2)
}

func roundedPhoto(src image.Image, w, h int) *image.RGBA {
	scaled := image.NewRGBA(image.Rect(0, 0, w, h))
	xdraw.CatmullRom.Scale(scaled, scaled.Bounds(), src, src.Bounds(), xdraw.Src, nil)

	dc := gg.NewContext(w, h)
	dc.DrawRoundedRectangle(0, 0, float64(w), float64(h), cornerRadius(w, h, 0.08, 8))
	dc.Clip()
	dc.DrawImage(scaled, 0, 0)
	return toRGBA(dc.Image())
}

func drawFrame(w, h int, fill, stroke color.Color) *image.RGBA {
	short := float64(min(w, h))
	lw := math.Max(2, 0.02*short)
	inset := lw / 2

	dc := gg.NewContext(w, h)
	dc.DrawRoundedRectangle(inset, inset, float64(w)-lw, float64(h)-lw, cornerRadius(w, h, 0.10, 0))
	dc.SetColor(fill)
	dc.FillPreserve()
	dc.SetColor(stroke)
	dc.SetLineWidth(lw)
	dc.Stroke()
	return toRGBA(dc.Image())
}

func mipChain(base *image.RGBA) []*image.RGBA {
	var levels []*image.RGBA
	prev := base
	for {
		w, h := prev.Bounds().Dx(), prev.Bounds().Dy()
		if w == 1 && h == 1 {
			return levels
		}
		next := image.NewRGBA(image.Rect(0, 0, max(1, w/2), max(1, h/2)))
		xdraw.BiLinear.Scale(next, next.Bounds(), prev, prev.Bounds(), xdraw.Src, nil)
		levels = append(levels, next)
		prev = next
	}
}

func toRGBA(img image.Image) *image.RGBA {
	if rgba, ok := img.(*image.RGBA); ok {
		return rgba
	}
	out := image.NewRGBA(img.Bounds())
	xdraw.Draw(out, out.Bounds(), img, img.Bounds().Min, xdraw.Src)
	return out
}

// Size is a width and height in scene units.
type Size struct {
	W float64 `json:"w"`
	H float64 `json:"h"`
}

// Geometry is the plane sizes of a card after aspect correction.
// ScaleX and ScaleY are the non-uniform factors applied to the base planes.
type Geometry struct {
	Photo  Size    `json:"photo"`
	Frame  Size    `json:"frame"`
	ScaleX float64 `json:"scale_x"`
	ScaleY float64 `json:"scale_y"`
}

// PlaceholderGeometry is the geometry of a card before its image is known.
func PlaceholderGeometry(box Size, padding float64) Geometry {
	return Geometry{
		Photo:  box,
		Frame:  Size{W: box.W + 2*padding, H: box.H + 2*padding},
		ScaleX: 1,
		ScaleY: 1,
	}
}

// FitGeometry fits an image of srcW x srcH inside box while keeping its
// aspect ratio: full box width first, falling back to full box height when
// the result would be too tall.
func FitGeometry(srcW, srcH int, box Size) Geometry {
	if srcW <= 0 || srcH <= 0 || box.W <= 0 || box.H <= 0 {
		return PlaceholderGeometry(box, 0)
	}
	aspect := float64(srcW) / float64(srcH)

	w := box.W
	h := box.W / aspect
	if h > box.H {
		h = box.H
		w = box.H * aspect
	}

	return Geometry{
		Photo:  Size{W: w, H: h},
		Frame:  Size{W: w, H: h},
		ScaleX: w / box.W,
		ScaleY: h / box.H,
	}
}

// CardGeometry fits the card planes to textures. The frame plane is the
// placeholder frame scaled by the same factors as the photo, so its size
// depends only on the source aspect ratio.
func CardGeometry(box Size, padding float64, tex *CardTextures) Geometry {
	g := FitGeometry(tex.SourceWidth, tex.SourceHeight, box)
	base := PlaceholderGeometry(box, padding).Frame
	g.Frame = Size{W: base.W * g.ScaleX, H: base.H * g.ScaleY}
	return g
}
