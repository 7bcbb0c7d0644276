package raster

import (
	"image"
	"image/color"
	"testing"
)

func TestParseHex(t *testing.T) {
	fallback := color.RGBA{1, 2, 3, 255}
	if got := ParseHex("#111827", fallback); got != (color.RGBA{0x11, 0x18, 0x27, 0xff}) {
		t.Fatalf("unexpected color %+v", got)
	}
	if got := ParseHex("#abc", fallback); got != (color.RGBA{0xaa, 0xbb, 0xcc, 0xff}) {
		t.Fatalf("unexpected short color %+v", got)
	}
	if got := ParseHex("nope", fallback); got != fallback {
		t.Fatalf("expected fallback, got %+v", got)
	}
}

func TestDrawTextMarksPixels(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 64, 32))
	DrawText(img, "AB", 32, 2, 2, AlignCenter, color.White)
	painted := 0
	for y := 0; y < 32; y++ {
		for x := 0; x < 64; x++ {
			if _, _, _, a := img.At(x, y).RGBA(); a > 0 {
				painted++
			}
		}
	}
	if painted == 0 {
		t.Fatalf("expected text pixels")
	}
}

func TestFitTruncates(t *testing.T) {
	long := "a very long display name that will not fit"
	got := Fit(long, 2, 100)
	if TextWidth(got, 2) > 100 {
		t.Fatalf("fit result too wide: %q", got)
	}
	if Fit("ok", 1, 100) != "ok" {
		t.Fatalf("short text should be untouched")
	}
}

func TestRoundedCornersStayClear(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 20, 20))
	FillRoundedRect(img, img.Bounds(), 8, color.White)
	if _, _, _, a := img.At(0, 0).RGBA(); a != 0 {
		t.Fatalf("corner pixel should stay transparent")
	}
	if _, _, _, a := img.At(10, 10).RGBA(); a == 0 {
		t.Fatalf("center pixel should be filled")
	}
}
