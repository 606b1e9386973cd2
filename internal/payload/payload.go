// Package payload builds KServe v1 predict requests.
//
// The v1 protocol posts {"instances": [...]} to
// /v1/models/{model}:predict. Clusters fronted by a shared ingress route on the
// Host header, so the service host travels separately from the URL.
package payload

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"net"
	"net/url"
	"os"
	"strconv"
	"strings"
)

// ContentType is the media type of predict request bodies.
const ContentType = "application/json"

// PredictURL returns the v1 predict endpoint for model behind ingress.
// A port of 0 means 80.
func PredictURL(ingress string, port int, model string) (string, error) {
	ingress = strings.TrimSpace(ingress)
	model = strings.TrimSpace(model)
	if ingress == "" {
		return "", errors.New("ingress host is required")
	}
	if model == "" {
		return "", errors.New("model name is required")
	}
	if port == 0 {
		port = 80
	}
	if port < 0 || port > 65535 {
		return "", fmt.Errorf("invalid port %d", port)
	}
	u := url.URL{
		Scheme: "http",
		Host:   net.JoinHostPort(ingress, strconv.Itoa(port)),
		Path:   "/v1/models/" + model + ":predict",
	}
	return u.String(), nil
}

// Request is the v1 predict request body.
type Request struct {
	Instances []Image `json:"instances"`
}

// Image is an HxWx3 RGB tensor with channel values scaled into [0, 1].
type Image [][][3]float64

// ImageInstances decodes the image at path and returns a marshalled predict
// request holding it as a batch of one.
func ImageInstances(path string) ([]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open image: %w", err)
	}
	defer f.Close()

	img, _, err := image.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("decode image %s: %w", path, err)
	}
	return Encode(Request{Instances: []Image{FromImage(img)}})
}

// FromImage converts img into an RGB tensor. Alpha is dropped.
func FromImage(img image.Image) Image {
	bounds := img.Bounds()
	out := make(Image, bounds.Dy())
	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
		row := make([][3]float64, bounds.Dx())
		for x := bounds.Min.X; x < bounds.Max.X; x++ {
			r, g, b, _ := img.At(x, y).RGBA()
			// RGBA returns 16-bit channels; scale through 8 bits like the
			// usual array/255 preprocessing.
			row[x-bounds.Min.X] = [3]float64{
				float64(r>>8) / 255.0,
				float64(g>>8) / 255.0,
				float64(b>>8) / 255.0,
			}
		}
		out[y-bounds.Min.Y] = row
	}
	return out
}

// Encode marshals req without HTML escaping.
func Encode(req Request) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(req); err != nil {
		return nil, fmt.Errorf("encode predict request: %w", err)
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}
