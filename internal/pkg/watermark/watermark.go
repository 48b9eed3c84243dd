package watermark

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base32"
	"errors"
	"fmt"
	"io"
	"math"
	"strings"

	"golang.org/x/crypto/hkdf"
)

const (
	textPrefix      = "AEGIS-ID: "
	anonPrefix      = "ANON"
	defaultPitch    = 150
	defaultFontSize = 14
	defaultOpacity  = 0.15
	rotationDeg     = -45
	renderTile      = "tile"
	// MaxSurfaceSide 布局计算允许的最大边长
	MaxSurfaceSide = 16384
	// MinPitch 平铺间距下限
	MinPitch = 50
	// MaxTiles 单次布局的锚点上限，超出时放大间距
	MaxTiles = 4096
)

var hkdfInfo = []byte("pulse-watermark-token-v1")

var ErrEmptySecret = errors.New("watermark secret is empty")

var tokenEncoding = base32.StdEncoding.WithPadding(base32.NoPadding)

// Viewer 观看者，ID <= 0 表示匿名
type Viewer struct {
	ID int64
}

func (v Viewer) Anonymous() bool {
	return v.ID <= 0
}

// OverlaySpec 客户端渲染水印所需的全部参数
type OverlaySpec struct {
	Token       string  `json:"token"`
	Text        string  `json:"text"`
	Font        string  `json:"font"`
	Color       string  `json:"color"`
	Opacity     float64 `json:"opacity"`
	Pitch       int     `json:"pitch"`
	RotationDeg int     `json:"rotation_deg"`
	Render      string  `json:"render"`
}

type Surface struct {
	Width  int `json:"width"`
	Height int `json:"height"`
}

// TileLayout 旋转坐标系下的平铺锚点，Pitch 为实际使用的间距
type TileLayout struct {
	Surface Surface  `json:"surface"`
	Pitch   int      `json:"pitch"`
	Tiles   [][2]int `json:"tiles"`
}

type Options struct {
	Pitch    int
	FontSize int
	Opacity  float64
}

// Issuer 水印 token 签发器，同样的输入总是得到同样的输出
type Issuer struct {
	key  []byte
	opts Options
}

// NewIssuer 用 HKDF-SHA256 从配置密钥派生 HMAC 密钥
func NewIssuer(secret string, opts Options) (*Issuer, error) {
	if secret == "" {
		return nil, ErrEmptySecret
	}
	if opts.Pitch <= 0 {
		opts.Pitch = defaultPitch
	}
	if opts.Pitch < MinPitch {
		opts.Pitch = MinPitch
	}
	if opts.FontSize <= 0 {
		opts.FontSize = defaultFontSize
	}
	if opts.Opacity <= 0 || opts.Opacity > 1 {
		opts.Opacity = defaultOpacity
	}

	key := make([]byte, sha256.Size)
	if _, err := io.ReadFull(hkdf.New(sha256.New, []byte(secret), nil, hkdfInfo), key); err != nil {
		return nil, err
	}

	return &Issuer{key: key, opts: opts}, nil
}

// Issue 生成绑定观看者、内容和会话盐的水印
func (i *Issuer) Issue(viewer Viewer, contentID int64, sessionSalt string) OverlaySpec {
	token := i.Token(viewer, contentID, sessionSalt)
	return OverlaySpec{
		Token:       token,
		Text:        textPrefix + token,
		Font:        fmt.Sprintf("%dpx monospace", i.opts.FontSize),
		Color:       fmt.Sprintf("rgba(255,255,255,%s)", formatOpacity(i.opts.Opacity)),
		Opacity:     i.opts.Opacity,
		Pitch:       i.opts.Pitch,
		RotationDeg: rotationDeg,
		Render:      renderTile,
	}
}

// Token 计算 token，匿名观看者带 ANON 前缀
func (i *Issuer) Token(viewer Viewer, contentID int64, sessionSalt string) string {
	viewerID := viewer.ID
	if viewer.Anonymous() {
		viewerID = 0
	}

	mac := hmac.New(sha256.New, i.key)
	fmt.Fprintf(mac, "%d|%d|%s", viewerID, contentID, sessionSalt)
	encoded := tokenEncoding.EncodeToString(mac.Sum(nil))

	if viewer.Anonymous() {
		return anonPrefix + "-" + group(encoded[:12])
	}
	return group(encoded[:16])
}

// Verify 重新计算并比较 token，用于溯源时确认会话记录未被篡改
func (i *Issuer) Verify(token string, viewer Viewer, contentID int64, sessionSalt string) bool {
	expected := i.Token(viewer, contentID, sessionSalt)
	return hmac.Equal([]byte(expected), []byte(token))
}

// IsAnonymousToken 判断 token 是否签发给匿名观看者
func IsAnonymousToken(token string) bool {
	return strings.HasPrefix(token, anonPrefix+"-")
}

// Layout 按画面尺寸计算平铺位置，覆盖 [-w, 2w) x [-h, 2h) 以保证旋转后铺满
func Layout(spec OverlaySpec, surface Surface) TileLayout {
	layout := TileLayout{Surface: surface, Tiles: [][2]int{}}
	if surface.Width <= 0 || surface.Height <= 0 {
		return layout
	}

	w, h := surface.Width, surface.Height
	pitch := tilePitch(spec.Pitch, w, h)
	layout.Pitch = pitch

	layout.Tiles = make([][2]int, 0, tileCount(w, pitch)*tileCount(h, pitch))
	for x := -w; x < 2*w; x += pitch {
		for y := -h; y < 2*h; y += pitch {
			layout.Tiles = append(layout.Tiles, [2]int{x, y})
		}
	}
	return layout
}

// tilePitch 间距不小于 MinPitch，且锚点总数不超过 MaxTiles
func tilePitch(pitch, w, h int) int {
	if pitch <= 0 {
		pitch = defaultPitch
	}
	if pitch < MinPitch {
		pitch = MinPitch
	}
	if floor := int(math.Ceil(math.Sqrt(float64(9*w) * float64(h) / MaxTiles))); pitch < floor {
		pitch = floor
	}
	for tileCount(w, pitch)*tileCount(h, pitch) > MaxTiles {
		pitch++
	}
	return pitch
}

// tileCount [-side, 2*side) 内按 pitch 取点的个数
func tileCount(side, pitch int) int {
	return (3*side + pitch - 1) / pitch
}

func group(s string) string {
	parts := make([]string, 0, len(s)/4)
	for i := 0; i < len(s); i += 4 {
		parts = append(parts, s[i:i+4])
	}
	return strings.Join(parts, "-")
}

func formatOpacity(v float64) string {
	return strings.TrimRight(strings.TrimRight(fmt.Sprintf("%.2f", v), "0"), ".")
}
