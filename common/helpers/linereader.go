package helpers

import (
	"bufio"
	"io"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/htmlindex"
	"k8s.io/klog/v2"
)

// EasyBuild debug output can contain very long lines (full compiler command lines)
const maxLineLength = 4 * 1024 * 1024

/**
read line-by-line from src until EOF and call the callback with each line.
if decoder is not nil every line is converted with it first; lines that fail to decode are logged and skipped.
lines longer than maxLineLength are skipped too, reading carries on with the next line.
returns the first read error, if any
*/
func ScanDecodedLines(src io.Reader, decoder *encoding.Decoder, callback func(line string)) error {
	reader := bufio.NewReaderSize(src, 64*1024)
	line := make([]byte, 0, 1024)
	overlong := false

	for {
		fragment, isPrefix, readErr := reader.ReadLine()
		if readErr == io.EOF {
			return nil
		}
		if readErr != nil {
			return readErr
		}

		if !overlong {
			if len(line)+len(fragment) > maxLineLength {
				overlong = true
				line = line[:0]
			} else {
				line = append(line, fragment...)
			}
		}
		if isPrefix {
			continue
		}

		if overlong {
			klog.Warningf("Skipping output line longer than %d bytes", maxLineLength)
			overlong = false
		} else {
			emitDecodedLine(line, decoder, callback)
		}
		line = line[:0]
	}
}

func emitDecodedLine(retrievedBytes []byte, decoder *encoding.Decoder, callback func(line string)) {
	if decoder == nil {
		callback(string(retrievedBytes))
		return
	}
	convertedBytes, decodeErr := decoder.Bytes(retrievedBytes)
	if decodeErr != nil {
		klog.Warningf("Could not decode incoming line %s: %s", string(retrievedBytes), decodeErr)
		return
	}
	callback(string(convertedBytes))
}

/**
look up a decoder by its WHATWG name or label (e.g. "latin1", "windows-1252").
an empty name means no decoding and returns nil
*/
func DecoderForName(name string) (*encoding.Decoder, error) {
	if name == "" {
		return nil, nil
	}
	enc, lookupErr := htmlindex.Get(name)
	if lookupErr != nil {
		return nil, lookupErr
	}
	return enc.NewDecoder(), nil
}
