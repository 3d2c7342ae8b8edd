// Package fsl runs FSL command-line tools and collects the files they leave
// behind. The tools are external processes; this package only builds their
// command lines, starts them through a Runner and checks the outputs.
package fsl

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/KyungWonPark/featmodel/internal/errs"
)

// DefaultOutputType is used when FSLOUTPUTTYPE is unset.
const DefaultOutputType = "NIFTI_GZ"

var extensions = map[string]string{
	"NIFTI":         ".nii",
	"NIFTI_GZ":      ".nii.gz",
	"NIFTI_PAIR":    ".img",
	"NIFTI_PAIR_GZ": ".img.gz",
	"ANALYZE":       ".img",
}

// Info describes the toolkit installation.
type Info struct {
	Dir        string
	OutputType string
}

// FromEnv reads FSLDIR and FSLOUTPUTTYPE.
func FromEnv() Info {
	info := Info{
		Dir:        os.Getenv("FSLDIR"),
		OutputType: os.Getenv("FSLOUTPUTTYPE"),
	}
	if info.OutputType == "" {
		info.OutputType = DefaultOutputType
	}
	return info
}

// Ext is the image file extension of the configured output type.
func (i Info) Ext() (string, error) {
	t := i.OutputType
	if t == "" {
		t = DefaultOutputType
	}
	ext, ok := extensions[t]
	if !ok {
		return "", errs.Malformedf("fsl", "unknown FSLOUTPUTTYPE %q", t)
	}
	return ext, nil
}

// StandardImage returns the path of a standard-space image shipped with the
// toolkit, $FSLDIR/data/standard/<name>. The file must exist.
func (i Info) StandardImage(name string) (string, error) {
	if i.Dir == "" {
		return "", errs.New(errs.ErrIO, "fsl.StandardImage", "FSLDIR is not set")
	}
	path := filepath.Join(i.Dir, "data", "standard", name)
	if _, err := os.Stat(path); err != nil {
		return "", errs.IO("fsl.StandardImage", path, err)
	}
	return path, nil
}

// GenFname names an image file in dir: base with any image extension
// replaced by the configured one.
func (i Info) GenFname(dir, base string) (string, error) {
	ext, err := i.Ext()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, trimImageExt(base)+ext), nil
}

func trimImageExt(name string) string {
	for _, ext := range []string{".nii.gz", ".img.gz", ".hdr.gz", ".nii", ".img", ".hdr"} {
		if strings.HasSuffix(name, ext) {
			return strings.TrimSuffix(name, ext)
		}
	}
	return name
}
