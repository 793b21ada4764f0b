// Package archive packages a job's output files into a single ZIP.
package archive

import (
	"archive/zip"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
)

// CreateZip writes the given files into a ZIP at zipPath, placed under
// folderName inside the archive. Entries are stored uncompressed: the audio
// payload is already compressed and deflating it again only burns CPU. Inputs
// that have disappeared by assembly time are skipped with a warning. The
// returned size is read only after the writer is fully closed.
func CreateZip(zipPath, folderName string, files []string) (int64, error) {
	out, err := os.Create(zipPath)
	if err != nil {
		return 0, fmt.Errorf("failed to create archive: %w", err)
	}

	zw := zip.NewWriter(out)
	added := 0

	for _, file := range files {
		if err := addStored(zw, folderName, file); err != nil {
			if os.IsNotExist(err) {
				log.Printf("[Archive] skipping missing file %s", filepath.Base(file))
				continue
			}
			zw.Close()
			out.Close()
			return 0, err
		}
		added++
	}

	if err := zw.Close(); err != nil {
		out.Close()
		return 0, fmt.Errorf("failed to finalize archive: %w", err)
	}
	if err := out.Close(); err != nil {
		return 0, fmt.Errorf("failed to close archive: %w", err)
	}

	if added == 0 {
		return 0, fmt.Errorf("no input files left to archive")
	}

	info, err := os.Stat(zipPath)
	if err != nil {
		return 0, err
	}
	return info.Size(), nil
}

func addStored(zw *zip.Writer, folderName, file string) error {
	src, err := os.Open(file)
	if err != nil {
		return err
	}
	defer src.Close()

	header := &zip.FileHeader{
		Name:   folderName + "/" + filepath.Base(file),
		Method: zip.Store,
	}
	w, err := zw.CreateHeader(header)
	if err != nil {
		return err
	}

	_, err = io.Copy(w, src)
	return err
}
