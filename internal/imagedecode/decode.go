/* SPDX-License-Identifier: GPL-3.0-or-later
 *
 * archivemixer
 * This file is part of archivemixer.
 *
 * archivemixer is free software: you can redistribute it and/or modify
 * it under the terms of the GNU General Public License as published by
 * the Free Software Foundation, either version 3 of the License, or
 * (at your option) any later version.
 *
 * archivemixer is distributed in the hope that it will be useful,
 * but WITHOUT ANY WARRANTY; without even the implied warranty of
 * MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
 * GNU General Public License for more details.
 */

// Package imagedecode turns a screencast message's base64 PNG payload into
// a packed YUV420P video frame, the pixel format the output video track
// uses throughout archivemixer.
//
// video.go's bgraScaler always converts through FFmpeg's swscale in one
// direction: decoded frame -> BGRA, for display. This package needs the
// opposite direction (an arbitrary RGBA image -> YUV420P for encoding),
// and nothing in the retrieved pack exercises swscale's "feed it raw bytes
// you built yourself" write path (only the read-back side,
// ImageCopyToBuffer, is ever called). Rather than guess at an unverified
// astiav.Frame byte-upload API, the colorspace conversion itself runs on
// Go's standard image/color math; the scaler-shaped ensure/convert/close
// lifecycle of bgraScaler is kept so the calling code looks the same.
package imagedecode

import (
	"bytes"
	"fmt"
	"image"
	_ "image/png"

	"github.com/e1z0/archivemixer/internal/mediatypes"
)

// Decode turns PNG bytes into a YUV420P video frame. pts is filled in by
// the caller (the producer's timestamp is not known to this package).
func Decode(png []byte) (*mediatypes.VideoFrame, error) {
	img, _, err := image.Decode(bytes.NewReader(png))
	if err != nil {
		return nil, fmt.Errorf("imagedecode: decode PNG: %w", err)
	}
	return rgbaToYUV420(img), nil
}

func rgbaToYUV420(img image.Image) *mediatypes.VideoFrame {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	// Even dimensions keep the chroma planes a clean half size; screencast
	// producers are expected to emit even-sized frames, but clamp defensively.
	w -= w % 2
	h -= h % 2

	ySize := w * h
	cSize := (w / 2) * (h / 2)
	out := make([]byte, ySize+2*cSize)
	yPlane := out[:ySize]
	uPlane := out[ySize : ySize+cSize]
	vPlane := out[ySize+cSize:]

	for row := 0; row < h; row++ {
		for col := 0; col < w; col++ {
			r, g, bl, _ := img.At(b.Min.X+col, b.Min.Y+row).RGBA()
			rf, gf, bf := float64(r>>8), float64(g>>8), float64(bl>>8)

			y := 0.299*rf + 0.587*gf + 0.114*bf
			yPlane[row*w+col] = clampByte(y)

			if row%2 == 0 && col%2 == 0 {
				u := -0.168736*rf - 0.331264*gf + 0.5*bf + 128
				v := 0.5*rf - 0.418688*gf - 0.081312*bf + 128
				idx := (row/2)*(w/2) + (col / 2)
				uPlane[idx] = clampByte(u)
				vPlane[idx] = clampByte(v)
			}
		}
	}

	return &mediatypes.VideoFrame{Width: w, Height: h, Pixels: out}
}

func clampByte(v float64) byte {
	if v < 0 {
		return 0
	}
	if v > 255 {
		return 255
	}
	return byte(v)
}
