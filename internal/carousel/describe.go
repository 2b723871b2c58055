package carousel

import (
	"errors"
	"fmt"
	"image"
	"image/color"
)

// ErrNoTexture is returned when a card has no texture to read.
var ErrNoTexture = errors.New("card has no texture")

// TextureKind selects one of a card's two textures.
type TextureKind string

const (
	TexturePhoto TextureKind = "photo"
	TextureFrame TextureKind = "frame"
)

// TextureImage returns the base level of a card texture. Built rasters are
// never modified, so the result stays valid after the card's material is
// replaced or the scene closes.
func (s *Scene) TextureImage(index int, kind TextureKind) (*image.RGBA, error) {
	if index < 0 || index >= len(s.cards) {
		return nil, fmt.Errorf("card %d: %w", index, ErrNoTexture)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, ErrSceneClosed
	}

	m := s.cards[index].material.Load()
	if m == nil || m.Textures == nil {
		return nil, ErrNoTexture
	}
	var t *Texture
	switch kind {
	case TexturePhoto:
		t = m.Textures.Photo
	case TextureFrame:
		t = m.Textures.Frame
	default:
		return nil, fmt.Errorf("unknown texture kind %q", kind)
	}
	if t == nil || t.Image == nil {
		return nil, ErrNoTexture
	}
	return t.Image, nil
}

// TextureInfo describes a texture without its pixels.
type TextureInfo struct {
	Width      int        `json:"width"`
	Height     int        `json:"height"`
	Levels     int        `json:"levels"`
	ColorSpace ColorSpace `json:"color_space"`
	MinFilter  Filter     `json:"min_filter"`
}

// CardInfo is the renderer-facing description of one card.
type CardInfo struct {
	Index      int           `json:"index"`
	ID         string        `json:"id"`
	URL        string        `json:"url"`
	Angle      float64       `json:"angle"`
	Position   [3]float64    `json:"position"`
	Yaw        float64       `json:"yaw"`
	State      MaterialState `json:"state"`
	PhotoColor string        `json:"photo_color"`
	FrameColor string        `json:"frame_color"`
	Geometry   Geometry      `json:"geometry"`
	// FrameOffset is the distance the frame plane sits behind the photo.
	FrameOffset float64      `json:"frame_offset"`
	Photo       *TextureInfo `json:"photo,omitempty"`
	Frame       *TextureInfo `json:"frame,omitempty"`
}

// SceneInfo is the renderer-facing description of a scene.
type SceneInfo struct {
	Generation uint64     `json:"generation"`
	Profile    Profile    `json:"profile"`
	Background string     `json:"background"`
	Cards      []CardInfo `json:"cards"`
}

// FrameOffset is how far behind the photo plane the frame plane is drawn.
const FrameOffset = 2.0

// Describe returns a snapshot of the scene for a renderer.
func (s *Scene) Describe() SceneInfo {
	s.mu.Lock()
	defer s.mu.Unlock()

	info := SceneInfo{
		Generation: s.generation,
		Profile:    s.opts.Profile,
		Background: Hex(BackgroundColor),
		Cards:      make([]CardInfo, 0, len(s.cards)),
	}
	for _, c := range s.cards {
		info.Cards = append(info.Cards, describeCard(c))
	}
	return info
}

// DescribeCard returns the description of card index.
func (s *Scene) DescribeCard(index int) (CardInfo, bool) {
	if index < 0 || index >= len(s.cards) {
		return CardInfo{}, false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return describeCard(s.cards[index]), true
}

func describeCard(c *Card) CardInfo {
	ci := CardInfo{
		Index:       c.Index,
		ID:          c.ID,
		URL:         c.URL,
		Angle:       c.Angle,
		Position:    [3]float64{c.Position.X, c.Position.Y, c.Position.Z},
		Yaw:         c.Yaw(),
		FrameOffset: FrameOffset,
	}
	m := c.material.Load()
	if m == nil {
		return ci
	}
	ci.State = m.State
	ci.PhotoColor = Hex(m.PhotoColor)
	ci.FrameColor = Hex(m.FrameColor)
	ci.Geometry = m.Geometry
	if m.Textures != nil {
		ci.Photo = textureInfo(m.Textures.Photo)
		ci.Frame = textureInfo(m.Textures.Frame)
	}
	return ci
}

func textureInfo(t *Texture) *TextureInfo {
	if t == nil || t.Image == nil {
		return nil
	}
	return &TextureInfo{
		Width:      t.Width(),
		Height:     t.Height(),
		Levels:     1 + len(t.Mipmaps),
		ColorSpace: t.ColorSpace,
		MinFilter:  t.MinFilter,
	}
}

// Hex formats c as #rrggbb.
func Hex(c color.RGBA) string {
	return fmt.Sprintf("#%02x%02x%02x", c.R, c.G, c.B)
}
