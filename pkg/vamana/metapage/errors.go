package metapage

import (
	"fmt"
	"math"
)

func float32bits(f float32) uint32    { return math.Float32bits(f) }
func float32frombits(b uint32) float32 { return math.Float32frombits(b) }

func errNotFirstPage(block uint32) error {
	return fmt.Errorf("metapage must be the first page allocated, got block %d", block)
}

func errWriteHeader() error { return fmt.Errorf("failed to write metapage header item") }
func errWriteBody() error   { return fmt.Errorf("failed to write metapage body item") }
func errMissingHeader() error { return fmt.Errorf("metapage header item missing") }
func errMissingBody() error   { return fmt.Errorf("metapage body item missing") }
func errResizedBody() error   { return fmt.Errorf("metapage body update changed item shape unexpectedly") }

func errBadMagic(got uint32) error {
	return fmt.Errorf("metapage magic mismatch: want %d, got %d", Magic, got)
}

func errUnknownVersion(v uint32) error {
	return fmt.Errorf("metapage version %d has no migration path", v)
}
