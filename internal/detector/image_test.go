// TruthLens - Media Authenticity Analysis Service
// Copyright 2026 TruthLens Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/truthlens/truthlens

package detector

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/png"
	"math/rand"
	"testing"

	"github.com/truthlens/truthlens/internal/signal"
)

// flatImage is a single uniform color: the degenerate over-smoothed case.
func flatImage(w, h int) image.Image {
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetNRGBA(x, y, color.NRGBA{R: 120, G: 120, B: 120, A: 255})
		}
	}
	return img
}

// noisyImage has full per-pixel randomness: maximal texture and edges.
func noisyImage(w, h int) image.Image {
	rng := rand.New(rand.NewSource(42))
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetNRGBA(x, y, color.NRGBA{
				R: uint8(rng.Intn(256)),
				G: uint8(rng.Intn(256)),
				B: uint8(rng.Intn(256)),
				A: 255,
			})
		}
	}
	return img
}

func encodePNG(t *testing.T, img image.Image) []byte {
	t.Helper()
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("encode png: %v", err)
	}
	return buf.Bytes()
}

func TestImageFlatFiresSmoothingRules(t *testing.T) {
	d := NewImageDetector()
	sig, err := d.Analyze(context.Background(), encodePNG(t, flatImage(64, 64)))
	if err != nil {
		t.Fatalf("analyze: %v", err)
	}

	types := map[string]signal.Severity{}
	for _, a := range sig.Anomalies {
		types[a.Type] = a.Severity
	}
	if sev, ok := types["edge smoothing"]; !ok || sev != signal.SeverityHigh {
		t.Errorf("edge smoothing anomaly missing or wrong severity: %v", types)
	}
	if _, ok := types["low texture variance"]; !ok {
		t.Errorf("low texture variance anomaly missing: %v", types)
	}
	if _, ok := types["color uniformity"]; !ok {
		t.Errorf("color uniformity anomaly missing: %v", types)
	}
	if sig.Score > 0.6 {
		t.Errorf("flat image score = %v, want <= 0.6", sig.Score)
	}
}

func TestImageNoisyScoresAboveFlat(t *testing.T) {
	d := NewImageDetector()
	ctx := context.Background()

	noisy, err := d.Analyze(ctx, encodePNG(t, noisyImage(128, 128)))
	if err != nil {
		t.Fatalf("noisy: %v", err)
	}
	flat, err := d.Analyze(ctx, encodePNG(t, flatImage(128, 128)))
	if err != nil {
		t.Fatalf("flat: %v", err)
	}

	if noisy.Score <= flat.Score {
		t.Errorf("noisy score %v should exceed flat score %v", noisy.Score, flat.Score)
	}
	if noisy.Score < 0.7 {
		t.Errorf("noisy score = %v, want >= 0.7", noisy.Score)
	}
}

func TestImageUndecodableFails(t *testing.T) {
	d := NewImageDetector()
	_, err := d.Analyze(context.Background(), []byte("definitely not an image"))
	if !errors.Is(err, signal.ErrUnsupportedMedia) {
		t.Fatalf("want ErrUnsupportedMedia, got %v", err)
	}
}

func TestImageDeterministic(t *testing.T) {
	d := NewImageDetector()
	data := encodePNG(t, noisyImage(64, 64))
	a, err := d.Analyze(context.Background(), data)
	if err != nil {
		t.Fatal(err)
	}
	b, err := d.Analyze(context.Background(), data)
	if err != nil {
		t.Fatal(err)
	}
	if a.Score != b.Score || len(a.Anomalies) != len(b.Anomalies) {
		t.Errorf("same input produced different results: %v vs %v", a.Score, b.Score)
	}
}

func TestImageGreenScoreCapped(t *testing.T) {
	f := imageFeatures{
		EdgeDensity:     0.1,
		TextureVariance: 400,
		ColorUniformity: 30,
		FreqVariance:    5,
		BrightnessStd:   40,
		AvgCompression:  0.1,
		CompressionVar:  0.01,
		Width:           1920,
		Height:          1080,
	}
	if got := imageGreenScore(f); got > 0.8 {
		t.Errorf("green score %v exceeds cap 0.8", got)
	}
}
