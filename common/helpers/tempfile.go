package helpers

import (
	"io/ioutil"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	"k8s.io/klog/v2"
)

/**
write contents to a new file in dir (the system temp dir if empty) and return its name.
the file name is <prefix><uuid><suffix>
*/
func WriteTempFile(dir string, prefix string, suffix string, contents string) (string, error) {
	if dir == "" {
		dir = os.TempDir()
	}
	fileName := filepath.Join(dir, prefix+uuid.New().String()+suffix)

	writeErr := ioutil.WriteFile(fileName, []byte(contents), 0600)
	if writeErr != nil {
		klog.Errorf("Could not write temp file %s: %s", fileName, writeErr)
		return "", writeErr
	}
	return fileName, nil
}

/**
remove a temp file, logging rather than failing if it can't be done
*/
func RemoveTempFile(fileName string) {
	removeErr := os.Remove(fileName)
	if removeErr != nil && !os.IsNotExist(removeErr) {
		klog.Errorf("Could not remove temp file '%s': %s", fileName, removeErr)
	}
}
