// Package image reads the few header fields of functional images the design
// generator needs. No voxel data is loaded.
package image

import (
	"bytes"
	"compress/gzip"
	"encoding/binary"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/KyungWonPark/nifti"

	"github.com/KyungWonPark/featmodel/internal/errs"
)

// VolumeCounter returns the number of volumes (time points) of an image.
type VolumeCounter interface {
	Volumes(path string) (int, error)
}

// NiftiHeader counts volumes from the NIfTI-1 header.
type NiftiHeader struct{}

// Volumes reads dim[4] of the header. A 3D image has one volume.
func (NiftiHeader) Volumes(path string) (int, error) {
	header, err := readHeader(path)
	if err != nil {
		return 0, errs.IO("image.Volumes", path, err)
	}

	var dim [8]int16
	for i, d := range header.Dim {
		if i < len(dim) {
			dim[i] = int16(d)
		}
	}
	n, err := volumesFromDim(dim)
	if err != nil {
		return 0, errs.IO("image.Volumes", path, err)
	}
	return n, nil
}

// readHeader decodes the NIfTI-1 header of path, gunzipping .gz files. The
// byte order is taken from dim[0], which is 1..7 in the file's order.
func readHeader(path string) (*nifti.Nifti1Header, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var r io.Reader = f
	if strings.HasSuffix(path, ".gz") {
		gz, err := gzip.NewReader(f)
		if err != nil {
			return nil, fmt.Errorf("[image] %s is not gzip: %w", path, err)
		}
		defer gz.Close()
		r = gz
	}

	var header nifti.Nifti1Header
	raw := make([]byte, binary.Size(&header))
	if _, err := io.ReadFull(r, raw); err != nil {
		return nil, fmt.Errorf("[image] short header in %s: %w", path, err)
	}

	for _, order := range []binary.ByteOrder{binary.LittleEndian, binary.BigEndian} {
		if err := binary.Read(bytes.NewReader(raw), order, &header); err != nil {
			return nil, fmt.Errorf("[image] failed to decode header of %s: %w", path, err)
		}
		if header.Dim[0] >= 1 && header.Dim[0] <= 7 {
			return &header, nil
		}
	}
	return &header, nil
}

func volumesFromDim(dim [8]int16) (int, error) {
	ndim := int(dim[0])
	if ndim < 1 || ndim > 7 {
		return 0, fmt.Errorf("[image] bad dim[0] = %d", ndim)
	}
	if ndim < 4 || dim[4] < 1 {
		return 1, nil
	}
	return int(dim[4]), nil
}

// Fixed reports the same volume count for every image.
type Fixed int

// Volumes implements VolumeCounter.
func (f Fixed) Volumes(string) (int, error) { return int(f), nil }
