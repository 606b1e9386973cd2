package httpclient

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/torosent/tracefire/internal/config"
	"github.com/torosent/tracefire/internal/payload"
)

// loadBody resolves the configured body once. Exactly one of inline body,
// body file or KServe image may be set; none yields an empty body.
func loadBody(cfg *config.Config) ([]byte, error) {
	inline := cfg.Body
	file := strings.TrimSpace(cfg.BodyFile)
	image := strings.TrimSpace(cfg.KServe.Image)

	set := 0
	for _, v := range []string{inline, file, image} {
		if v != "" {
			set++
		}
	}
	if set > 1 {
		return nil, errors.New("body, body file and kserve image cannot be combined")
	}

	switch {
	case inline != "":
		return []byte(inline), nil
	case file != "":
		info, err := os.Stat(file)
		if err != nil {
			return nil, fmt.Errorf("body file: %w", err)
		}
		if info.IsDir() {
			return nil, fmt.Errorf("body file %q is a directory", file)
		}
		data, err := os.ReadFile(file)
		if err != nil {
			return nil, fmt.Errorf("body file: %w", err)
		}
		return data, nil
	case image != "":
		return payload.ImageInstances(image)
	default:
		return nil, nil
	}
}
