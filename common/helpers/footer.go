package helpers

import (
	"errors"
	"fmt"
	"os"

	"github.com/h2non/filetype"
)

/**
check that the given module footer exists and is a plain text file.
EasyBuild appends the footer verbatim to the Lua module file, so anything that filetype can
recognise (images, archives, executables...) is a mistake
*/
func CheckFooterFile(footerPath string) error {
	statInfo, statErr := os.Stat(footerPath)
	if statErr != nil {
		if os.IsNotExist(statErr) {
			return errors.New(fmt.Sprintf("could not find extra footer: %s", footerPath))
		}
		return statErr
	}
	if !statInfo.Mode().IsRegular() {
		return errors.New(fmt.Sprintf("extra footer %s is not a regular file", footerPath))
	}
	if statInfo.Size() == 0 {
		return nil
	}

	fileTypeInfo, ftErr := filetype.MatchFile(footerPath)
	if ftErr != nil {
		return ftErr
	}
	if fileTypeInfo != filetype.Unknown {
		return errors.New(fmt.Sprintf("extra footer %s is not a text file (looks like %s)", footerPath, fileTypeInfo.MIME.Value))
	}
	return nil
}
