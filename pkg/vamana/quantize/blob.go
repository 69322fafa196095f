package quantize

import (
	"encoding/binary"

	"github.com/pgvectorscale/tsv/pkg/vamana"
	"github.com/pgvectorscale/tsv/pkg/vamana/page"
)

// maxChunk keeps each written item comfortably under a single page's
// capacity, leaving room for header and item-pointer overhead.
const maxChunk = page.Size - 256

// writeChunked splits data across as many tape items as needed (a PQ
// codebook for a realistic dimension count is routinely larger than one
// page) and writes a manifest item listing every chunk's IndexPointer plus
// the total byte length, returning the manifest's own pointer.
func writeChunked(mgr page.Manager, typ page.Type, data []byte) (vamana.IndexPointer, error) {
	tape, err := page.NewTape(mgr, typ)
	if err != nil {
		return vamana.IndexPointer{}, err
	}

	var chunks []vamana.IndexPointer
	for off := 0; off < len(data); off += maxChunk {
		end := off + maxChunk
		if end > len(data) {
			end = len(data)
		}
		ip, err := tape.Write(data[off:end])
		if err != nil {
			return vamana.IndexPointer{}, err
		}
		chunks = append(chunks, ip)
	}
	if len(data) == 0 {
		ip, err := tape.Write(nil)
		if err != nil {
			return vamana.IndexPointer{}, err
		}
		chunks = append(chunks, ip)
	}

	manifest := make([]byte, 4+4+len(chunks)*6)
	binary.LittleEndian.PutUint32(manifest[0:], uint32(len(data)))
	binary.LittleEndian.PutUint32(manifest[4:], uint32(len(chunks)))
	off := 8
	for _, ip := range chunks {
		binary.LittleEndian.PutUint32(manifest[off:], ip.BlockNumber)
		binary.LittleEndian.PutUint16(manifest[off+4:], ip.Offset)
		off += 6
	}
	manifestIP, err := tape.Write(manifest)
	if err != nil {
		return vamana.IndexPointer{}, err
	}
	if err := tape.Close(); err != nil {
		return vamana.IndexPointer{}, err
	}
	return manifestIP, nil
}

func readChunked(mgr page.Manager, typ page.Type, manifestIP vamana.IndexPointer) ([]byte, error) {
	manifest, err := page.ReadItem(mgr, manifestIP, typ)
	if err != nil {
		return nil, err
	}
	totalLen := int(binary.LittleEndian.Uint32(manifest[0:]))
	numChunks := int(binary.LittleEndian.Uint32(manifest[4:]))

	out := make([]byte, 0, totalLen)
	off := 8
	for i := 0; i < numChunks; i++ {
		block := binary.LittleEndian.Uint32(manifest[off:])
		offset := binary.LittleEndian.Uint16(manifest[off+4:])
		off += 6
		chunk, err := page.ReadItem(mgr, vamana.IndexPointer{BlockNumber: block, Offset: offset}, typ)
		if err != nil {
			return nil, err
		}
		out = append(out, chunk...)
	}
	return out, nil
}

// WritePqBlob persists a trained ProductQuantizer's codebooks across as
// many PqBlob pages as needed and returns the manifest pointer to store in
// the MetaPage.
func WritePqBlob(mgr page.Manager, pq *ProductQuantizer) (vamana.IndexPointer, error) {
	return writeChunked(mgr, page.TypePqBlob, pq.Serialize())
}

// ReadPqBlob loads a previously-written ProductQuantizer blob.
func ReadPqBlob(mgr page.Manager, ip vamana.IndexPointer, metric vamana.Metric) (*ProductQuantizer, error) {
	data, err := readChunked(mgr, page.TypePqBlob, ip)
	if err != nil {
		return nil, err
	}
	return DeserializeProductQuantizer(data, metric)
}

// WriteBqBlob persists a trained BinaryQuantizer's mean vector.
func WriteBqBlob(mgr page.Manager, bq *BinaryQuantizer) (vamana.IndexPointer, error) {
	return writeChunked(mgr, page.TypeBqBlob, bq.Serialize())
}

// ReadBqBlob loads a previously-written BinaryQuantizer blob.
func ReadBqBlob(mgr page.Manager, ip vamana.IndexPointer) (*BinaryQuantizer, error) {
	data, err := readChunked(mgr, page.TypeBqBlob, ip)
	if err != nil {
		return nil, err
	}
	return DeserializeBinaryQuantizer(data)
}
