package scanner

import (
	"bytes"
	"strings"
)

// Kind classifies an input file.
type Kind string

const (
	KindUnknown Kind = ""
	KindClass   Kind = "class"
	KindArchive Kind = "archive"
)

// kindMap maps file extensions to input kinds.
var kindMap = map[string]Kind{
	".class": KindClass,
	".jar":   KindArchive,
	".zip":   KindArchive,
	".war":   KindArchive,
	".ear":   KindArchive,
	".aar":   KindArchive,
}

var (
	classMagic   = []byte{0xCA, 0xFE, 0xBA, 0xBE}
	archiveMagic = []byte{'P', 'K', 0x03, 0x04}
)

// DetectKind returns the kind for a file extension such as ".jar".
func DetectKind(ext string) Kind {
	return kindMap[strings.ToLower(ext)]
}

// SniffKind classifies file contents by their leading magic bytes.
func SniffKind(header []byte) Kind {
	switch {
	case bytes.HasPrefix(header, classMagic):
		return KindClass
	case bytes.HasPrefix(header, archiveMagic):
		return KindArchive
	}
	return KindUnknown
}
