package store

import (
	"io"
	"os"

	"github.com/pkg/errors"

	"bpdb/internal/encoding"
)

// The manifest is a small sidecar file recording the geometry an index
// was created with. Reopening with a different fanout would misread
// every node, so the recorded values always win over options.
const (
	manifestMagic   = "BPDX"
	manifestVersion = 1
)

type manifest struct {
	Version         uint32
	Name            string
	PageSize        uint32
	LeafMaxSize     uint32
	InternalMaxSize uint32
}

func manifestPath(indexPath string) string {
	return indexPath + ".manifest"
}

func writeManifest(path string, m manifest) error {
	f, err := os.Create(path)
	if err != nil {
		return errors.Wrapf(err, "create manifest %s", path)
	}
	defer f.Close()

	if _, err := f.Write([]byte(manifestMagic)); err != nil {
		return err
	}
	if err := encoding.WriteUint32(f, m.Version); err != nil {
		return err
	}
	if err := encoding.WriteString(f, m.Name); err != nil {
		return err
	}
	if err := encoding.WriteUint32(f, m.PageSize); err != nil {
		return err
	}
	if err := encoding.WriteUint32(f, m.LeafMaxSize); err != nil {
		return err
	}
	if err := encoding.WriteUint32(f, m.InternalMaxSize); err != nil {
		return err
	}
	return f.Sync()
}

func readManifest(path string) (manifest, error) {
	var m manifest

	f, err := os.Open(path)
	if err != nil {
		return m, err
	}
	defer f.Close()

	magic := make([]byte, len(manifestMagic))
	if _, err := io.ReadFull(f, magic); err != nil {
		return m, errors.Wrapf(err, "read manifest %s", path)
	}
	if string(magic) != manifestMagic {
		return m, errors.Errorf("bad manifest magic %q in %s", magic, path)
	}
	if m.Version, err = encoding.ReadUint32(f); err != nil {
		return m, err
	}
	if m.Name, err = encoding.ReadString(f); err != nil {
		return m, err
	}
	if m.PageSize, err = encoding.ReadUint32(f); err != nil {
		return m, err
	}
	if m.LeafMaxSize, err = encoding.ReadUint32(f); err != nil {
		return m, err
	}
	if m.InternalMaxSize, err = encoding.ReadUint32(f); err != nil {
		return m, err
	}
	return m, nil
}
