// Package attr implements the NTFS attribute and runlist engine (spec
// §4.1, C3): decoding resident and non-resident attribute headers, walking
// data runlists to translate a file's logical byte ranges into physical
// cluster extents, and reading or hashing the resulting data stream
// through the decompression kit when a stream is marked compressed.
package attr

import (
	"crypto/md5"
	"crypto/sha1"
	"crypto/sha256"
	"encoding/binary"
	"hash"
	"io"

	"golang.org/x/text/encoding/unicode"

	"github.com/forensics-collect/collector/internal/decomp"
	"github.com/forensics-collect/collector/internal/ferrors"
	"github.com/forensics-collect/collector/pkg/record"
)

// utf16Decoder converts NTFS's little-endian UTF-16 file names to UTF-8;
// NTFS names carry no BOM, so one is never expected and none is stripped.
var utf16Decoder = unicode.UTF16(unicode.LittleEndian, unicode.IgnoreBOM).NewDecoder()

const component = "attr"

// Type enumerates the NTFS attribute type codes this package understands.
type Type uint32

const (
	TypeStandardInformation Type = 0x10
	TypeAttributeList       Type = 0x20
	TypeFileName            Type = 0x30
	TypeObjectID            Type = 0x40
	TypeSecurityDescriptor  Type = 0x50
	TypeVolumeName          Type = 0x60
	TypeVolumeInformation   Type = 0x70
	TypeData                Type = 0x80
	TypeIndexRoot           Type = 0x90
	TypeIndexAllocation     Type = 0xA0
	TypeBitmap              Type = 0xB0
	TypeReparsePoint        Type = 0xC0
	TypeEAInformation       Type = 0xD0
	TypeEA                  Type = 0xE0
	TypeLoggedUtilityStream Type = 0x100
)

// Header is the common 16-byte prefix shared by every attribute record
// inside an MFT entry, before the resident/non-resident specific fields.
type Header struct {
	TypeCode     Type
	RecordLength uint32
	NonResident  bool
	NameLength   uint8
	NameOffset   uint16
	Flags        uint16
	AttributeID  uint16
}

// Run is one (offset, length) pair of a decoded data runlist, expressed
// in clusters relative to the start of the volume.
type Run struct {
	LCN    int64 // starting logical cluster number; -1 marks a sparse run
	Length int64 // run length in clusters
}

// Attribute is a single decoded attribute record: its header, the
// resident payload (if any), and the decoded runlist (if non-resident).
type Attribute struct {
	Header         Header
	Name           string
	ResidentData   []byte
	Runlist        []Run
	AllocatedSize  int64
	RealSize       int64
	InitializedSize int64
	CompressionUnit uint16
}

// ParseAttributes walks the attribute records inside one 1024-byte (or
// larger) MFT entry buffer, starting at the entry's declared attribute
// offset, and returns every attribute found before the 0xFFFFFFFF
// end-marker or the end of the buffer.
func ParseAttributes(entry []byte, firstAttrOffset uint16) ([]Attribute, error) {
	var attrs []Attribute
	offset := int(firstAttrOffset)

	for offset+4 <= len(entry) {
		typeCode := binary.LittleEndian.Uint32(entry[offset : offset+4])
		if typeCode == 0xFFFFFFFF || typeCode == 0 {
			break
		}
		if offset+8 > len(entry) {
			break
		}
		recordLen := binary.LittleEndian.Uint32(entry[offset+4 : offset+8])
		if recordLen == 0 || offset+int(recordLen) > len(entry) {
			break
		}
		raw := entry[offset : offset+int(recordLen)]

		a, err := parseOne(raw)
		if err != nil {
			return attrs, ferrors.Wrap(ferrors.ErrParseFormat, component, "attribute record", err)
		}
		attrs = append(attrs, a)

		offset += int(recordLen)
	}
	return attrs, nil
}

func parseOne(raw []byte) (Attribute, error) {
	if len(raw) < 16 {
		return Attribute{}, ferrors.ErrParseFormat
	}
	h := Header{
		TypeCode:     Type(binary.LittleEndian.Uint32(raw[0:4])),
		RecordLength: binary.LittleEndian.Uint32(raw[4:8]),
		NonResident:  raw[8] != 0,
		NameLength:   raw[9],
		NameOffset:   binary.LittleEndian.Uint16(raw[10:12]),
		Flags:        binary.LittleEndian.Uint16(raw[12:14]),
		AttributeID:  binary.LittleEndian.Uint16(raw[14:16]),
	}

	a := Attribute{Header: h}
	if h.NameLength > 0 && int(h.NameOffset)+int(h.NameLength)*2 <= len(raw) {
		a.Name = decodeUTF16(raw[h.NameOffset : int(h.NameOffset)+int(h.NameLength)*2])
	}

	if !h.NonResident {
		if len(raw) < 24 {
			return a, nil
		}
		contentSize := binary.LittleEndian.Uint32(raw[16:20])
		contentOffset := binary.LittleEndian.Uint16(raw[20:22])
		end := int(contentOffset) + int(contentSize)
		if end > len(raw) {
			end = len(raw)
		}
		if int(contentOffset) <= end {
			a.ResidentData = raw[contentOffset:end]
		}
		return a, nil
	}

	if len(raw) < 64 {
		return a, nil
	}
	a.AllocatedSize = int64(binary.LittleEndian.Uint64(raw[40:48]))
	a.RealSize = int64(binary.LittleEndian.Uint64(raw[48:56]))
	a.InitializedSize = int64(binary.LittleEndian.Uint64(raw[56:64]))
	a.CompressionUnit = binary.LittleEndian.Uint16(raw[34:36])

	// The mapping-pairs array's offset is stored at byte 32 of the
	// non-resident header.
	rlOff := binary.LittleEndian.Uint16(raw[32:34])
	if int(rlOff) < len(raw) {
		runs, err := decodeRunlist(raw[rlOff:])
		if err != nil {
			return a, ferrors.Wrap(ferrors.ErrParseFormat, component, "runlist", err)
		}
		a.Runlist = runs
	}
	return a, nil
}

// CompressionUnit reports whether the attribute flags mark the stream as
// NTFS-compressed (flag bit 0x0001).
func (h Header) CompressionUnit() bool {
	return h.Flags&0x0001 != 0
}

// decodeRunlist parses the mapping-pairs byte stream that follows a
// non-resident attribute's fixed header: a sequence of (length-field,
// offset-field) pairs, each prefixed by a header byte whose low/high
// nibbles give the byte-count of the length/offset values that follow.
// A zero header byte terminates the list.
func decodeRunlist(data []byte) ([]Run, error) {
	var runs []Run
	var lcn int64
	i := 0
	for i < len(data) {
		header := data[i]
		if header == 0 {
			break
		}
		i++
		lenBytes := int(header & 0x0f)
		offBytes := int(header >> 4)

		if i+lenBytes > len(data) {
			return runs, ferrors.ErrParseFormat
		}
		length := readSignedLE(data[i : i+lenBytes])
		i += lenBytes

		var offset int64
		sparse := offBytes == 0
		if !sparse {
			if i+offBytes > len(data) {
				return runs, ferrors.ErrParseFormat
			}
			offset = readSignedLE(data[i : i+offBytes])
			i += offBytes
			lcn += offset
		}

		run := Run{Length: length}
		if sparse {
			run.LCN = -1
		} else {
			run.LCN = lcn
		}
		runs = append(runs, run)
	}
	return runs, nil
}

// readSignedLE decodes a little-endian, sign-extended integer of the
// given byte width, as NTFS runlist length/offset fields are encoded.
func readSignedLE(b []byte) int64 {
	if len(b) == 0 {
		return 0
	}
	var v int64
	for i := len(b) - 1; i >= 0; i-- {
		v = (v << 8) | int64(b[i])
	}
	shift := 64 - 8*len(b)
	v = (v << shift) >> shift
	return v
}

func decodeUTF16(b []byte) string {
	out, err := utf16Decoder.Bytes(b)
	if err != nil {
		return ""
	}
	return string(out)
}

// ClusterSource reads physical clusters for a runlist against a backing
// volume reader, the glue between a decoded Attribute and the raw device.
type ClusterSource interface {
	ReadAt(p []byte, off int64) (int, error)
}

// RawReadData reassembles a non-resident attribute's logical byte stream
// by walking its runlist against the volume, then decompresses it with
// LZNT1 when compression is CompressionNTFS. WOF-compressed data is
// returned as read, for the wof package to decompress.
func RawReadData(src ClusterSource, clusterSize int64, a Attribute, compression record.CompressionType) ([]byte, error) {
	if !a.Header.NonResident {
		return a.ResidentData, nil
	}

	out := make([]byte, 0, a.RealSize)
	for _, run := range a.Runlist {
		runBytes := run.Length * clusterSize
		if run.LCN < 0 {
			out = append(out, make([]byte, runBytes)...)
			continue
		}
		buf := make([]byte, runBytes)
		if _, err := src.ReadAt(buf, run.LCN*clusterSize); err != nil {
			return nil, ferrors.Wrap(ferrors.ErrDeviceIO, component, "read run", err)
		}
		out = append(out, buf...)
	}
	if int64(len(out)) > a.RealSize && a.RealSize > 0 {
		out = out[:a.RealSize]
	}

	switch compression {
	case record.CompressionNTFS:
		decoded, err := decomp.LZNT1(out)
		if err != nil {
			return nil, ferrors.Wrap(ferrors.ErrDecompress, component, "ntfs compressed stream", err)
		}
		return decoded, nil
	case record.CompressionWOF:
		// WOF decompression is dispatched by the wof package, which knows
		// which algorithm (XPRESS 4K/8K/16K or LZX) the WofCompressedData
		// header declares; this function does not guess.
		return out, nil
	default:
		return out, nil
	}
}

// RawHashData reads an attribute's data as RawReadData returns it with
// CompressionNone (no decompression) and feeds it through any combination
// of MD5/SHA1/SHA256 digests in a single pass over the one in-memory copy.
func RawHashData(src ClusterSource, clusterSize int64, a Attribute, wantMD5, wantSHA1, wantSHA256 bool) (md5Hex, sha1Hex, sha256Hex string, err error) {
	data, rerr := RawReadData(src, clusterSize, a, record.CompressionNone)
	if rerr != nil {
		return "", "", "", rerr
	}

	var hashers []hash.Hash
	var md5h, sha1h, sha256h hash.Hash
	if wantMD5 {
		md5h = md5.New()
		hashers = append(hashers, md5h)
	}
	if wantSHA1 {
		sha1h = sha1.New()
		hashers = append(hashers, sha1h)
	}
	if wantSHA256 {
		sha256h = sha256.New()
		hashers = append(hashers, sha256h)
	}
	if len(hashers) == 0 {
		return "", "", "", nil
	}

	var w io.Writer
	if len(hashers) == 1 {
		w = hashers[0]
	} else {
		ws := make([]io.Writer, len(hashers))
		for i, h := range hashers {
			ws[i] = h
		}
		w = io.MultiWriter(ws...)
	}
	if _, werr := w.Write(data); werr != nil {
		return "", "", "", ferrors.Wrap(ferrors.ErrDeviceIO, component, "hash write", werr)
	}

	if md5h != nil {
		md5Hex = hexString(md5h.Sum(nil))
	}
	if sha1h != nil {
		sha1Hex = hexString(sha1h.Sum(nil))
	}
	if sha256h != nil {
		sha256Hex = hexString(sha256h.Sum(nil))
	}
	return md5Hex, sha1Hex, sha256Hex, nil
}

func hexString(b []byte) string {
	const digits = "0123456789abcdef"
	out := make([]byte, len(b)*2)
	for i, v := range b {
		out[2*i] = digits[v>>4]
		out[2*i+1] = digits[v&0x0f]
	}
	return string(out)
}
