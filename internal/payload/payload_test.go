package payload_test

import (
	"encoding/json"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"github.com/torosent/tracefire/internal/payload"
)

func TestPredictURL(t *testing.T) {
	tests := []struct {
		name    string
		ingress string
		port    int
		model   string
		want    string
		wantErr bool
	}{
		{name: "default port", ingress: "10.0.0.1", model: "resnet", want: "http://10.0.0.1:80/v1/models/resnet:predict"},
		{name: "custom port", ingress: "ingress.local", port: 8080, model: "bert", want: "http://ingress.local:8080/v1/models/bert:predict"},
		{name: "ipv6", ingress: "::1", port: 80, model: "m", want: "http://[::1]:80/v1/models/m:predict"},
		{name: "missing ingress", model: "m", wantErr: true},
		{name: "missing model", ingress: "host", wantErr: true},
		{name: "bad port", ingress: "host", port: 70000, model: "m", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := payload.PredictURL(tt.ingress, tt.port, tt.model)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("expected error, got %q", got)
				}
				return
			}
			if err != nil {
				t.Fatalf("PredictURL() error = %v", err)
			}
			if got != tt.want {
				t.Fatalf("PredictURL() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestFromImageScalesChannels(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 2, 1))
	img.Set(0, 0, color.RGBA{R: 255, G: 0, B: 51, A: 255})
	img.Set(1, 0, color.RGBA{R: 0, G: 255, B: 0, A: 255})

	got := payload.FromImage(img)
	if len(got) != 1 || len(got[0]) != 2 {
		t.Fatalf("expected 1x2 tensor, got %dx%d", len(got), len(got[0]))
	}
	if got[0][0] != [3]float64{1, 0, 0.2} {
		t.Fatalf("pixel (0,0) = %v", got[0][0])
	}
	if got[0][1] != [3]float64{0, 1, 0} {
		t.Fatalf("pixel (1,0) = %v", got[0][1])
	}
}

func TestImageInstancesEncodesBatchOfOne(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 3, 2))
	for y := 0; y < 2; y++ {
		for x := 0; x < 3; x++ {
			img.Set(x, y, color.RGBA{R: 255, G: 255, B: 255, A: 255})
		}
	}
	path := filepath.Join(t.TempDir(), "pixel.png")
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := png.Encode(f, img); err != nil {
		t.Fatalf("encode png: %v", err)
	}
	f.Close()

	body, err := payload.ImageInstances(path)
	if err != nil {
		t.Fatalf("ImageInstances() error = %v", err)
	}

	var decoded struct {
		Instances [][][][]float64 `json:"instances"`
	}
	if err := json.Unmarshal(body, &decoded); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if len(decoded.Instances) != 1 {
		t.Fatalf("expected batch of 1, got %d", len(decoded.Instances))
	}
	inst := decoded.Instances[0]
	if len(inst) != 2 || len(inst[0]) != 3 || len(inst[0][0]) != 3 {
		t.Fatalf("unexpected tensor shape %dx%dx%d", len(inst), len(inst[0]), len(inst[0][0]))
	}
	if inst[1][2][0] != 1 {
		t.Fatalf("expected white pixel to scale to 1, got %v", inst[1][2][0])
	}
}

func TestImageInstancesRejectsNonImage(t *testing.T) {
	path := filepath.Join(t.TempDir(), "notes.txt")
	if err := os.WriteFile(path, []byte("not an image"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := payload.ImageInstances(path); err == nil {
		t.Fatal("expected decode error")
	}
}
