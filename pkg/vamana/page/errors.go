package page

import (
	"fmt"

	"github.com/pgvectorscale/tsv/pkg/vamana"
)

func errPageTypeMismatch(want, got Type) error {
	return fmt.Errorf("page type mismatch: want %d, got %d", want, got)
}

func errItemTooLarge(n int) error {
	return fmt.Errorf("item of %d bytes does not fit on an empty page", n)
}

func errShortRead(ip vamana.IndexPointer) error {
	return fmt.Errorf("short read at block %d offset %d", ip.BlockNumber, ip.Offset)
}

func errResizedItem(ip vamana.IndexPointer) error {
	return fmt.Errorf("in-place update changed item length at block %d offset %d", ip.BlockNumber, ip.Offset)
}
