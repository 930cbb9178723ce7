// TruthLens - Media Authenticity Analysis Service
// Copyright 2026 TruthLens Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/truthlens/truthlens

package detector

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"math"

	// Register the decoders for the supported still-image formats.
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	"github.com/truthlens/truthlens/internal/signal"
)

const imageModel = "heuristic-image/v1"

// Image rule thresholds. Synthetic imagery tends toward over-smoothed
// edges, uniform texture and color, and flattened frequency content;
// each rule adds a fixed suspicion increment when its threshold trips.
const (
	imgEdgeSmoothingMax   = 0.03 // edge density below this: over-smoothed
	imgTextureVarianceMin = 80.0
	imgColorUniformityMin = 10.0
	imgFreqVarianceMin    = 1.0
	imgCompressionMax     = 0.22
	imgCompressionVarMax  = 0.12

	// gradientEdgeThreshold is the luminance-gradient magnitude above
	// which a pixel counts as an edge.
	gradientEdgeThreshold = 32.0
)

// imageFeatures are the structural measurements the rules evaluate.
type imageFeatures struct {
	EdgeDensity     float64 `json:"edge_density"`
	TextureVariance float64 `json:"texture_variance"`
	ColorUniformity float64 `json:"color_uniformity"`
	FreqVariance    float64 `json:"freq_variance"`
	AvgCompression  float64 `json:"avg_compression"`
	CompressionVar  float64 `json:"compression_var"`
	BrightnessMean  float64 `json:"brightness_mean"`
	BrightnessStd   float64 `json:"brightness_std"`
	Width           int     `json:"width"`
	Height          int     `json:"height"`
}

// ImageDetector scores still images on structural plausibility.
type ImageDetector struct{}

// NewImageDetector returns the heuristic image detector.
func NewImageDetector() *ImageDetector {
	return &ImageDetector{}
}

// Kind implements Detector.
func (d *ImageDetector) Kind() signal.MediaKind { return signal.KindImage }

// Analyze implements Detector.
func (d *ImageDetector) Analyze(ctx context.Context, data []byte) (signal.Signal, error) {
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return signal.Signal{}, fmt.Errorf("%w: %v", signal.ErrUnsupportedMedia, err)
	}
	if err := ctx.Err(); err != nil {
		return signal.Signal{}, err
	}

	feats := extractImageFeatures(img)
	suspicion, anomalies := scoreImageFeatures(feats)
	green := imageGreenScore(feats)
	adjusted := math.Max(0, suspicion-0.5*green)

	return signal.Signal{
		Source:    signal.SourceLocal,
		Available: true,
		Score:     clamp01(1 - adjusted),
		Model:     imageModel,
		Anomalies: anomalies,
		Metadata: map[string]any{
			"features":             feats,
			"suspicious_score_raw": suspicion,
			"green_score":          green,
			"suspicious_score":     adjusted,
		},
	}, nil
}

// extractImageFeatures computes the measurements over the decoded
// image: a luminance plane for gradients and texture, per-channel
// spread for color variability, and per-8x8-block high-frequency
// residual ratios as a compression proxy.
func extractImageFeatures(img image.Image) imageFeatures {
	bounds := img.Bounds()
	w, h := bounds.Dx(), bounds.Dy()

	gray := make([]float64, w*h)
	var sumR, sumG, sumB, sumR2, sumG2, sumB2 float64
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			r, g, b, _ := img.At(bounds.Min.X+x, bounds.Min.Y+y).RGBA()
			rf := float64(r >> 8)
			gf := float64(g >> 8)
			bf := float64(b >> 8)
			gray[y*w+x] = 0.299*rf + 0.587*gf + 0.114*bf
			sumR += rf
			sumG += gf
			sumB += bf
			sumR2 += rf * rf
			sumG2 += gf * gf
			sumB2 += bf * bf
		}
	}
	n := float64(w * h)

	feats := imageFeatures{Width: w, Height: h}

	// Color uniformity: mean of the per-channel standard deviations.
	stdOf := func(sum, sum2 float64) float64 {
		v := sum2/n - (sum/n)*(sum/n)
		if v < 0 {
			v = 0
		}
		return math.Sqrt(v)
	}
	feats.ColorUniformity = (stdOf(sumR, sumR2) + stdOf(sumG, sumG2) + stdOf(sumB, sumB2)) / 3

	// Brightness statistics over the luminance plane.
	var bSum, bSum2 float64
	for _, v := range gray {
		bSum += v
		bSum2 += v * v
	}
	feats.BrightnessMean = bSum / n
	feats.BrightnessStd = stdOf(bSum, bSum2)

	// Edge density: fraction of interior pixels whose central-difference
	// gradient magnitude exceeds the edge threshold.
	// Texture variance: variance of the 4-neighbor Laplacian response.
	var edgeCount int
	var lapSum, lapSum2 float64
	var interior float64
	for y := 1; y < h-1; y++ {
		for x := 1; x < w-1; x++ {
			c := gray[y*w+x]
			gx := gray[y*w+x+1] - gray[y*w+x-1]
			gy := gray[(y+1)*w+x] - gray[(y-1)*w+x]
			if math.Hypot(gx, gy) > gradientEdgeThreshold {
				edgeCount++
			}
			lap := gray[y*w+x+1] + gray[y*w+x-1] + gray[(y+1)*w+x] + gray[(y-1)*w+x] - 4*c
			lapSum += lap
			lapSum2 += lap * lap
			interior++
		}
	}
	if interior > 0 {
		feats.EdgeDensity = float64(edgeCount) / interior
		mean := lapSum / interior
		feats.TextureVariance = lapSum2/interior - mean*mean
	}

	// Per-block high-frequency residual: for each 8x8 block, the share
	// of energy left after removing the block mean (detail vs. flat
	// content), which tracks how aggressively the block was smoothed
	// or re-compressed.
	const block = 8
	var ratios []float64
	for by := 0; by+block <= h; by += block {
		for bx := 0; bx+block <= w; bx += block {
			var mean float64
			for y := by; y < by+block; y++ {
				for x := bx; x < bx+block; x++ {
					mean += gray[y*w+x]
				}
			}
			mean /= block * block

			var residual, total float64
			for y := by; y < by+block; y++ {
				for x := bx; x < bx+block; x++ {
					v := gray[y*w+x]
					residual += math.Abs(v - mean)
					total += v
				}
			}
			if total > 0 {
				ratios = append(ratios, residual/total)
			}
		}
	}
	if len(ratios) > 0 {
		var sum float64
		for _, r := range ratios {
			sum += r
		}
		mean := sum / float64(len(ratios))
		var varSum float64
		for _, r := range ratios {
			varSum += (r - mean) * (r - mean)
		}
		feats.AvgCompression = mean
		feats.CompressionVar = varSum / float64(len(ratios))
		// Frequency variance proxy: spread of block detail ratios,
		// scaled so natural photos land in the low tens.
		feats.FreqVariance = feats.CompressionVar * 1e3
	}

	return feats
}

// scoreImageFeatures applies the rule table and returns the raw
// suspicion sum with the anomalies that fired.
func scoreImageFeatures(f imageFeatures) (float64, []signal.Anomaly) {
	var suspicion float64
	var anomalies []signal.Anomaly

	if f.EdgeDensity < imgEdgeSmoothingMax {
		suspicion += 0.18
		anomalies = append(anomalies, signal.Anomaly{
			Type:        "edge smoothing",
			Severity:    signal.SeverityHigh,
			Description: "image appears over-smoothed, typical of synthetic generation",
		})
	}
	if f.TextureVariance < imgTextureVarianceMin {
		suspicion += 0.15
		anomalies = append(anomalies, signal.Anomaly{
			Type:        "low texture variance",
			Severity:    signal.SeverityMedium,
			Description: "texture patterns appear artificially uniform",
		})
	}
	if f.ColorUniformity < imgColorUniformityMin {
		suspicion += 0.10
		anomalies = append(anomalies, signal.Anomaly{
			Type:        "color uniformity",
			Severity:    signal.SeverityMedium,
			Description: "colors appear artificially uniform",
		})
	}
	if f.FreqVariance < imgFreqVarianceMin {
		suspicion += 0.10
		anomalies = append(anomalies, signal.Anomaly{
			Type:        "frequency anomaly",
			Severity:    signal.SeverityMedium,
			Description: "flattened high-frequency content detected",
		})
	}
	if f.AvgCompression > imgCompressionMax || f.CompressionVar > imgCompressionVarMax {
		suspicion += 0.12
		anomalies = append(anomalies, signal.Anomaly{
			Type:        "compression artifacts",
			Severity:    signal.SeverityHigh,
			Description: "unusual compression patterns suggesting manipulation",
		})
	}

	return suspicion, anomalies
}

// imageGreenScore accumulates indicators of natural, unaltered
// imagery. The result offsets suspicion at half weight and is capped
// so strong natural cues can temper, but never erase, strong
// manipulation cues.
func imageGreenScore(f imageFeatures) float64 {
	var green float64

	if f.EdgeDensity >= 0.04 && f.EdgeDensity <= 0.25 {
		green += 0.25
	}
	if f.TextureVariance >= 250 {
		green += 0.25
	}
	if f.ColorUniformity >= 15 && f.ColorUniformity <= 60 {
		green += 0.15
	}
	if f.FreqVariance >= 1.5 && f.FreqVariance <= 20 {
		green += 0.15
	}
	if f.BrightnessStd >= 20 {
		green += 0.1
	}
	if f.AvgCompression >= 0.03 && f.AvgCompression <= 0.20 && f.CompressionVar < 0.06 {
		green += 0.1
	}
	if f.Width*f.Height >= 640*480 {
		green += 0.05
	}

	return math.Min(green, 0.8)
}
