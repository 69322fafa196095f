package storage

import (
	"fmt"

	"github.com/pgvectorscale/tsv/pkg/vamana"
)

func errNotTrained(variant string) error {
	return &vamana.Error{Kind: vamana.TrainingError, Err: fmt.Errorf("storage: %s quantizer not yet trained", variant)}
}

func errFrameShortRead(ip vamana.IndexPointer) error {
	return &vamana.Error{Kind: vamana.StorageError, Err: fmt.Errorf("storage: short node frame at %+v", ip)}
}
