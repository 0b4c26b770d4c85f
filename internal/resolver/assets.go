package resolver

import (
	"bytes"
	"embed"
	"fmt"
	"image"
	"image/png"
)

//go:embed assets/*.png
var assetFS embed.FS

// Assets holds the built-in replacement icons.
type Assets struct {
	Placeholder   image.Image
	SystemDefault image.Image
}

// LoadAssets decodes the embedded icons.
func LoadAssets() (*Assets, error) {
	placeholder, err := loadPNG("assets/placeholder.png")
	if err != nil {
		return nil, err
	}
	systemDefault, err := loadPNG("assets/system_default.png")
	if err != nil {
		return nil, err
	}
	return &Assets{Placeholder: placeholder, SystemDefault: systemDefault}, nil
}

func loadPNG(name string) (image.Image, error) {
	data, err := assetFS.ReadFile(name)
	if err != nil {
		return nil, fmt.Errorf("failed to read asset %s: %w", name, err)
	}
	img, err := png.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to decode asset %s: %w", name, err)
	}
	return img, nil
}
