// Package lnk implements the Windows .lnk shortcut parser (spec §4.1,
// C11). A shortcut file is a fixed 76-byte header followed by an
// optional TargetIDList (shell-item list), an optional LocationInfo
// block, up to five length-prefixed strings gated by header flags, and
// a trailing chain of "extra data" blocks each introduced by its own
// 4-byte size and 4-byte signature.
package lnk

import (
	"encoding/binary"
	"time"

	"golang.org/x/text/encoding/unicode"

	"github.com/forensics-collect/collector/internal/ferrors"
	"github.com/forensics-collect/collector/pkg/record"
)

const component = "lnk"

// utf16Decoder converts a .lnk string field's little-endian UTF-16 bytes to UTF-8.
var utf16Decoder = unicode.UTF16(unicode.LittleEndian, unicode.IgnoreBOM).NewDecoder()

const (
	headerSize     = 76
	headerSignature = 0x0000004C

	flagHasTargetIDList      = 1 << 0
	flagHasLinkInfo          = 1 << 1
	flagHasName              = 1 << 2
	flagHasRelativePath      = 1 << 3
	flagHasWorkingDir        = 1 << 4
	flagHasArguments         = 1 << 5
	flagHasIconLocation      = 1 << 6
	flagIsUnicode            = 1 << 7

	locationVolumeIDAndLocalBasePath              = 1
	locationCommonNetworkRelativeLinkAndPathSuffix = 2
)

// Parse decodes a complete .lnk file into a ShortcutRecord.
func Parse(data []byte) (record.ShortcutRecord, error) {
	if len(data) < headerSize {
		return record.ShortcutRecord{}, ferrors.Wrap(ferrors.ErrParseFormat, component, "header truncated", nil)
	}
	if binary.LittleEndian.Uint32(data[0:4]) != headerSignature {
		return record.ShortcutRecord{}, ferrors.Wrap(ferrors.ErrParseFormat, component, "bad header signature", nil)
	}

	dataFlags := binary.LittleEndian.Uint32(data[20:24])
	attrFlags := binary.LittleEndian.Uint32(data[24:28])
	created := binary.LittleEndian.Uint64(data[28:36])
	modified := binary.LittleEndian.Uint64(data[36:44])
	accessed := binary.LittleEndian.Uint64(data[44:52])
	fileSize := binary.LittleEndian.Uint32(data[52:56])

	out := record.ShortcutRecord{
		DataFlags:      dataFlagNames(dataFlags),
		AttributeFlags: attributeFlagNames(attrFlags),
		Created:        filetimeToISO(created),
		Modified:       filetimeToISO(modified),
		Accessed:       filetimeToISO(accessed),
		FileSize:       fileSize,
		DriveType:      record.DriveNone,
	}

	input := data[headerSize:]
	unicode := dataFlags&flagIsUnicode != 0

	if dataFlags&flagHasTargetIDList != 0 {
		items, rest, err := parseShellItems(input)
		if err != nil {
			return out, ferrors.Wrap(ferrors.ErrParseFormat, component, "target id list", err)
		}
		out.ShellItems = items
		input = rest
	}

	if dataFlags&flagHasLinkInfo != 0 {
		rest, err := parseLocationInfo(input, &out)
		if err != nil {
			return out, ferrors.Wrap(ferrors.ErrParseFormat, component, "location info", err)
		}
		input = rest
	}

	if dataFlags&flagHasName != 0 {
		s, rest, abnormal := extractString(input, unicode)
		out.Description = s
		out.IsAbnormal = out.IsAbnormal || abnormal
		input = rest
	}
	if dataFlags&flagHasRelativePath != 0 {
		s, rest, abnormal := extractString(input, unicode)
		out.RelativePath = s
		out.IsAbnormal = abnormal
		input = rest
	}
	if dataFlags&flagHasWorkingDir != 0 {
		s, rest, abnormal := extractString(input, unicode)
		out.WorkingDirectory = s
		out.IsAbnormal = out.IsAbnormal || abnormal
		input = rest
	}
	if dataFlags&flagHasArguments != 0 {
		s, rest, abnormal := extractString(input, unicode)
		out.CommandLineArgs = s
		out.IsAbnormal = out.IsAbnormal || abnormal
		input = rest
	}
	if dataFlags&flagHasIconLocation != 0 {
		s, rest, abnormal := extractString(input, unicode)
		out.IconLocation = s
		out.IsAbnormal = out.IsAbnormal || abnormal
		input = rest
	}

	parseExtraData(input, &out)
	return out, nil
}

// extractString reads a length-prefixed string: a 16-bit character count
// followed by that many UTF-16LE (or ANSI, if the header's unicode flag
// is clear) code units. It flags a string as abnormal when the declared
// length runs past the remaining buffer, which real .lnk parsers treat
// as a sign of deliberate header tampering rather than truncation.
func extractString(data []byte, unicode bool) (string, []byte, bool) {
	if len(data) < 2 {
		return "", data, true
	}
	count := int(binary.LittleEndian.Uint16(data[0:2]))
	data = data[2:]

	width := 1
	if unicode {
		width = 2
	}
	need := count * width
	if need > len(data) {
		return "", nil, true
	}
	raw := data[:need]
	rest := data[need:]

	var s string
	if unicode {
		s = decodeUTF16(raw)
	} else {
		s = string(raw)
	}
	return s, rest, false
}

func parseLocationInfo(data []byte, out *record.ShortcutRecord) ([]byte, error) {
	if len(data) < 4 {
		return data, ferrors.ErrParseFormat
	}
	size := binary.LittleEndian.Uint32(data[0:4])
	if int(size) > len(data) {
		return nil, ferrors.ErrParseFormat
	}
	block := data[:size]
	rest := data[size:]
	if len(block) < 28 {
		return rest, nil
	}

	flags := binary.LittleEndian.Uint32(block[8:12])
	volumeOffset := binary.LittleEndian.Uint32(block[12:16])
	basePathOffset := binary.LittleEndian.Uint32(block[16:20])
	networkShareOffset := binary.LittleEndian.Uint32(block[20:24])
	commonPathOffset := binary.LittleEndian.Uint32(block[24:28])

	switch flags {
	case locationVolumeIDAndLocalBasePath:
		out.LocationFlags = "VolumeIDAndLocalBasePath"
		if int(basePathOffset) < len(block) {
			out.Path = cstring(block[basePathOffset:])
		}
		if int(volumeOffset) < len(block) {
			parseVolumeID(block[volumeOffset:], out)
		}
	case locationCommonNetworkRelativeLinkAndPathSuffix:
		out.LocationFlags = "CommonNetworkRelativeLinkAndPathSuffix"
		if int(commonPathOffset) < len(block) {
			out.Path = cstring(block[commonPathOffset:])
		}
		if int(networkShareOffset) < len(block) {
			parseNetworkShare(block[networkShareOffset:], out)
		}
	default:
		out.LocationFlags = "None"
	}
	return rest, nil
}

func parseVolumeID(data []byte, out *record.ShortcutRecord) {
	if len(data) < 16 {
		return
	}
	driveType := binary.LittleEndian.Uint32(data[4:8])
	serial := binary.LittleEndian.Uint32(data[8:12])
	labelOffset := binary.LittleEndian.Uint32(data[12:16])

	out.DriveType = driveTypeName(driveType)
	out.DriveSerial = hexUint32(serial)
	if int(labelOffset) < len(data) {
		out.VolumeLabel = cstring(data[labelOffset:])
	}
}

func parseNetworkShare(data []byte, out *record.ShortcutRecord) {
	if len(data) < 20 {
		return
	}
	shareOffset := binary.LittleEndian.Uint32(data[8:12])
	providerType := binary.LittleEndian.Uint32(data[16:20])
	if int(shareOffset) < len(data) {
		out.NetworkShareName = cstring(data[shareOffset:])
	}
	out.NetworkProvider = networkProviderName(providerType)
}

func cstring(data []byte) string {
	for i, b := range data {
		if b == 0 {
			return string(data[:i])
		}
	}
	return string(data)
}

func hexUint32(v uint32) string {
	const hexDigits = "0123456789abcdef"
	b := make([]byte, 8)
	for i := 7; i >= 0; i-- {
		b[i] = hexDigits[v&0xF]
		v >>= 4
	}
	return string(b)
}

func driveTypeName(v uint32) record.DriveType {
	switch v {
	case 1:
		return record.DriveNoRoot
	case 2:
		return record.DriveRemovable
	case 3:
		return record.DriveFixed
	case 4:
		return record.DriveRemote
	case 5:
		return record.DriveCDRom
	case 6:
		return record.DriveRamdisk
	default:
		return record.DriveUnknown
	}
}

func networkProviderName(v uint32) string {
	switch v {
	case 0x001A0000:
		return "WNNC_NET_AVID"
	case 0x00580000:
		return "WNNC_NET_NFS"
	case 0x00020000:
		return "WNNC_NET_LANMAN"
	default:
		return "None"
	}
}

func dataFlagNames(flags uint32) []string {
	table := []struct {
		bit  uint32
		name string
	}{
		{flagHasTargetIDList, "HasTargetIdList"},
		{flagHasLinkInfo, "HasLinkInfo"},
		{flagHasName, "HasName"},
		{flagHasRelativePath, "HasRelativePath"},
		{flagHasWorkingDir, "HasWorkingDirectory"},
		{flagHasArguments, "HasArguments"},
		{flagHasIconLocation, "HasIconLocation"},
		{flagIsUnicode, "IsUnicode"},
	}
	var out []string
	for _, t := range table {
		if flags&t.bit != 0 {
			out = append(out, t.name)
		}
	}
	return out
}

func attributeFlagNames(flags uint32) []string {
	table := []struct {
		bit  uint32
		name string
	}{
		{0x1, "ReadOnly"},
		{0x2, "Hidden"},
		{0x4, "System"},
		{0x10, "Directory"},
		{0x20, "Archive"},
		{0x800, "Encrypted"},
		{0x2000, "Compressed"},
	}
	var out []string
	for _, t := range table {
		if flags&t.bit != 0 {
			out = append(out, t.name)
		}
	}
	return out
}

func filetimeToISO(ft uint64) string {
	if ft == 0 {
		return ""
	}
	const ticksPerSecond = 10000000
	const epochDiffSeconds = 11644473600
	secs := int64(ft/ticksPerSecond) - epochDiffSeconds
	return time.Unix(secs, 0).UTC().Format(time.RFC3339Nano)
}

func decodeUTF16(b []byte) string {
	out, err := utf16Decoder.Bytes(b)
	if err != nil {
		return ""
	}
	return string(out)
}
