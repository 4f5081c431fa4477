package lnk

import (
	"encoding/binary"
	"fmt"

	"github.com/forensics-collect/collector/internal/ferrors"
	"github.com/forensics-collect/collector/pkg/record"
)

// shellItemClassFileEntry and friends classify the first byte of a shell
// item's data by its high nibble, the same coarse grouping real shell
// item parsers use before dispatching to a type-specific decoder.
const (
	shellItemClassFileEntry = 0x30
	shellItemClassVolume    = 0x20
	shellItemClassNetwork   = 0x40
	shellItemClassRoot      = 0x10
)

// parseShellItems walks a TargetIDList: a 2-byte total size followed by
// a sequence of (size, payload) shell items terminated by a zero-length
// item.
func parseShellItems(data []byte) ([]record.ShellItem, []byte, error) {
	if len(data) < 2 {
		return nil, data, ferrors.ErrParseFormat
	}
	listSize := binary.LittleEndian.Uint16(data[0:2])
	if int(listSize)+2 > len(data) {
		return nil, data, ferrors.ErrParseFormat
	}
	list := data[2 : 2+int(listSize)]
	rest := data[2+int(listSize):]

	var items []record.ShellItem
	pos := 0
	for pos+2 <= len(list) {
		size := binary.LittleEndian.Uint16(list[pos : pos+2])
		if size == 0 {
			pos += 2
			break
		}
		if pos+int(size) > len(list) {
			break
		}
		item := list[pos+2 : pos+int(size)]
		items = append(items, classifyShellItem(item))
		pos += int(size)
	}
	return items, rest, nil
}

func classifyShellItem(item []byte) record.ShellItem {
	if len(item) == 0 {
		return record.ShellItem{Kind: "Unknown"}
	}
	class := item[0] & 0x70
	switch class {
	case shellItemClassFileEntry:
		name := fileEntryName(item)
		return record.ShellItem{Kind: "FileEntry", Value: name}
	case shellItemClassVolume:
		return record.ShellItem{Kind: "Volume", Value: cstring(item[1:])}
	case shellItemClassNetwork:
		return record.ShellItem{Kind: "Network", Value: cstring(item[1:])}
	case shellItemClassRoot:
		return record.ShellItem{Kind: "RootFolder", Value: fmt.Sprintf("%x", item)}
	default:
		return record.ShellItem{Kind: "Unknown", Value: fmt.Sprintf("%x", item)}
	}
}

// fileEntryName extracts the short (ANSI) primary name embedded in a
// file-entry shell item, which always begins at a fixed offset following
// the item's size/attribute/FILETIME/index fields.
const fileEntryHeaderSize = 12

func fileEntryName(item []byte) string {
	if len(item) <= fileEntryHeaderSize {
		return ""
	}
	return cstring(item[fileEntryHeaderSize:])
}
