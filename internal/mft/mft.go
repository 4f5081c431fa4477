// Package mft implements the MFT reconstruction engine (spec §4.1, C8):
// a two-pass walk of the $MFT that resolves each FILE_NAME attribute's
// full path by following parent references, including orphaned entries
// whose parent directory has itself been deleted but survives only as an
// ATTRIBUTE_LIST extension record elsewhere in the table.
//
// Grounded on the reference implementation's two-pass design: pass one
// collects ATTRIBUTE_LIST extension records keyed by their base entry,
// pass two builds output rows and consults a bounded directory-path
// cache plus the extension records for orphan recovery.
package mft

import (
	"encoding/binary"
	"fmt"
	"strings"
	"time"

	"golang.org/x/text/encoding/unicode"

	"github.com/forensics-collect/collector/internal/ferrors"
	"github.com/forensics-collect/collector/internal/ntfs/attr"
	"github.com/forensics-collect/collector/pkg/record"
)

const component = "mft"

// utf16Decoder converts a $FILE_NAME attribute's little-endian UTF-16
// name bytes to UTF-8.
var utf16Decoder = unicode.UTF16(unicode.LittleEndian, unicode.IgnoreBOM).NewDecoder()

const (
	fileSignature   = 0x454c4946 // "FILE"
	rootIndex       = 5
	defaultEntrySize = 1024
	batchSize       = 1000
	cacheLimit      = 1000
)

// Reader is the minimal random-access view over the raw $MFT data stream
// the engine needs: a byte range starting at a logical offset within the
// (already-reassembled, decompressed) $MFT file.
type Reader interface {
	ReadAt(p []byte, off int64) (int, error)
}

// EntryHeader is the decoded fixed portion of one MFT FILE record header.
type EntryHeader struct {
	Signature      uint32
	FirstAttrOffset uint16
	Flags          uint16
	TotalSize       uint32
	Index          uint64
	Sequence       uint16
	BaseIndex      uint64
	BaseSequence   uint16
	FixupOffset    uint16
	FixupCount     uint16
}

// InUse reports whether the entry's FILE_RECORD_SEGMENT_IN_USE flag is set.
func (h EntryHeader) InUse() bool { return h.Flags&0x0001 != 0 }

// extensionAttrs is one extracted set of attributes from an ATTRIBUTE_LIST
// extension entry, cached by its base entry's "index_sequence" key during
// the first pass so the second pass can merge them back in.
type extensionAttrs struct {
	standardInfo []attr.Attribute
	filenames    []attr.Attribute
	attributes   []attr.Attribute
}

// RowVisit receives one reconstructed MftEntry row at a time.
type RowVisit func(record.MftEntry) error

// Walk performs the full two-pass reconstruction over reader, which must
// expose the entire $MFT data stream starting at offset 0, and calls
// visit for each FILE_NAME attribute of each in-use or recoverable entry.
// A DOS-namespace name is skipped when the entry also has a non-DOS name.
func Walk(reader Reader, mftSize int64, visit RowVisit) error {
	extended := map[string]extensionAttrs{}
	cache := map[string]string{}

	for pass := 0; pass < 2; pass++ {
		if err := walkPass(reader, mftSize, pass, extended, cache, visit); err != nil {
			return err
		}
	}
	return nil
}

func walkPass(reader Reader, mftSize int64, pass int, extended map[string]extensionAttrs, cache map[string]string, visit RowVisit) error {
	var offset int64
	for offset < mftSize {
		header, raw, err := readEntry(reader, offset)
		if err != nil {
			offset += defaultEntrySize
			continue
		}
		if header.TotalSize == 0 {
			offset += defaultEntrySize
			continue
		}
		entrySize := int64(header.TotalSize)
		// The record number field (offset 44) is only populated on
		// NTFS 3.1+; deriving the index from its position in a
		// uniformly-sized table is equivalent and always available.
		header.Index = uint64(offset / entrySize)

		if header.Signature == fileSignature {
			if err := processEntry(header, raw, pass, extended, cache, visit); err != nil {
				return err
			}
		}

		for len(cache) > cacheLimit {
			for k := range cache {
				delete(cache, k)
				break
			}
		}

		offset += entrySize
	}
	return nil
}

func readEntry(reader Reader, offset int64) (EntryHeader, []byte, error) {
	buf := make([]byte, defaultEntrySize)
	if _, err := reader.ReadAt(buf, offset); err != nil {
		return EntryHeader{}, nil, err
	}
	header, err := parseHeader(buf)
	if err != nil {
		return EntryHeader{}, nil, err
	}
	if int64(header.TotalSize) > defaultEntrySize {
		buf = make([]byte, header.TotalSize)
		if _, err := reader.ReadAt(buf, offset); err != nil {
			return EntryHeader{}, nil, err
		}
	}
	fixed, err := applyFixup(buf, header)
	if err != nil {
		return header, buf, err
	}
	return header, fixed, nil
}

func parseHeader(raw []byte) (EntryHeader, error) {
	if len(raw) < 48 {
		return EntryHeader{}, ferrors.Wrap(ferrors.ErrMft, component, "header truncated", nil)
	}
	h := EntryHeader{
		Signature:       binary.LittleEndian.Uint32(raw[0:4]),
		FixupOffset:     binary.LittleEndian.Uint16(raw[4:6]),
		FixupCount:      binary.LittleEndian.Uint16(raw[6:8]),
		Flags:           binary.LittleEndian.Uint16(raw[22:24]),
		TotalSize:       binary.LittleEndian.Uint32(raw[28:32]),
		FirstAttrOffset: binary.LittleEndian.Uint16(raw[20:22]),
	}
	if h.Signature != fileSignature {
		return h, nil
	}
	refBytes := raw[32:40]
	baseRef := binary.LittleEndian.Uint64(refBytes)
	h.BaseIndex = baseRef & 0x0000FFFFFFFFFFFF
	h.BaseSequence = uint16(baseRef >> 48)

	h.Sequence = binary.LittleEndian.Uint16(raw[16:18])
	return h, nil
}

// applyFixup validates and rewrites an MFT entry's fixup array: the last
// two bytes of each 512-byte sector are replaced with a signature value
// at write time and must be restored from the fixup array to recover the
// entry's real trailing bytes.
func applyFixup(raw []byte, header EntryHeader) ([]byte, error) {
	if header.Signature != fileSignature || header.FixupCount == 0 {
		return raw, nil
	}
	fixupArrayOffset := int(header.FixupOffset)
	if fixupArrayOffset+2 > len(raw) {
		return raw, nil
	}

	out := make([]byte, len(raw))
	copy(out, raw)

	const sectorSize = 512
	for i := 0; i < int(header.FixupCount)-1; i++ {
		sectorEnd := (i+1)*sectorSize - 2
		valOffset := fixupArrayOffset + 2 + i*2
		if sectorEnd+2 > len(out) || valOffset+2 > len(raw) {
			break
		}
		if out[sectorEnd] != raw[fixupArrayOffset] || out[sectorEnd+1] != raw[fixupArrayOffset+1] {
			return raw, ferrors.Wrap(ferrors.ErrMft, component, "fixup mismatch", nil)
		}
		copy(out[sectorEnd:sectorEnd+2], raw[valOffset:valOffset+2])
	}
	return out, nil
}

func processEntry(header EntryHeader, raw []byte, pass int, extended map[string]extensionAttrs, cache map[string]string, visit RowVisit) error {
	attrs, err := attr.ParseAttributes(raw, header.FirstAttrOffset)
	if err != nil {
		return nil
	}

	entry := extensionAttrs{}
	var attrListNames []string
	for _, a := range attrs {
		switch a.Header.TypeCode {
		case attr.TypeStandardInformation:
			entry.standardInfo = append(entry.standardInfo, a)
		case attr.TypeFileName:
			entry.filenames = append(entry.filenames, a)
		}
		attrListNames = append(attrListNames, attributeTypeName(a.Header.TypeCode))
		entry.attributes = append(entry.attributes, a)
	}

	isExtensionRecord := header.BaseIndex != 0 || header.BaseSequence != 0
	if isExtensionRecord || pass == 0 {
		if pass == 0 && isExtensionRecord {
			key := fmt.Sprintf("%d_%d", header.BaseIndex, header.BaseSequence)
			extended[key] = entry
		}
		return nil
	}

	key := fmt.Sprintf("%d_%d", header.Index, header.Sequence)
	if ext, ok := extended[key]; ok {
		entry.standardInfo = append(entry.standardInfo, ext.standardInfo...)
		entry.filenames = append(entry.filenames, ext.filenames...)
		entry.attributes = append(entry.attributes, ext.attributes...)
		delete(extended, key)
	}

	const dosNamespace = 2
	hasNonDos := false
	for _, fn := range entry.filenames {
		if len(fn.ResidentData) >= 66 && fn.ResidentData[65] != dosNamespace {
			hasNonDos = true
		}
	}
	for _, fn := range entry.filenames {
		if hasNonDos && len(fn.ResidentData) >= 66 && fn.ResidentData[65] == dosNamespace {
			continue
		}
		row, err := buildRow(header, entry, fn, attrListNames, cache, extended)
		if err != nil {
			continue
		}
		if err := visit(row); err != nil {
			return err
		}
	}
	return nil
}

func buildRow(header EntryHeader, entry extensionAttrs, fnAttr attr.Attribute, attrListNames []string, cache map[string]string, extended map[string]extensionAttrs) (record.MftEntry, error) {
	fn, err := decodeFileName(fnAttr.ResidentData)
	if err != nil {
		return record.MftEntry{}, err
	}

	row := record.MftEntry{
		Filename:     fn.name,
		Inode:        header.Index,
		ParentInode:  fn.parentRef,
		Namespace:    fn.namespace,
		Deleted:      !header.InUse(),
		AttributeList: attrListNames,
	}

	if len(entry.standardInfo) > 0 {
		std, err := decodeStandardInformation(entry.standardInfo[0].ResidentData)
		if err == nil {
			row.Created = filetimeToISO(std.created)
			row.Modified = filetimeToISO(std.modified)
			row.Changed = filetimeToISO(std.changed)
			row.Accessed = filetimeToISO(std.accessed)
			row.Attributes = fileAttributeNames(std.fileAttributes)
			row.Usn = std.usn
		}
	}
	if len(row.Attributes) == 0 {
		row.Attributes = fileAttributeNames(fn.fileAttributes)
	}

	row.FilenameCreated = filetimeToISO(fn.created)
	row.FilenameModified = filetimeToISO(fn.modified)
	row.FilenameChanged = filetimeToISO(fn.changed)
	row.FilenameAccessed = filetimeToISO(fn.accessed)

	if isDirectoryAttr(fn.fileAttributes) {
		row.IsDirectory = true
	} else {
		row.IsFile = true
		row.Size = fn.realSize
		row.Extension = extOf(fn.name)
	}

	if fn.parentRef == rootIndex && header.Index != rootIndex {
		row.FullPath = "." + `\` + fn.name
		row.Directory = "."
		if row.IsDirectory && fn.namespace != record.NamespaceDos {
			cache[fmt.Sprintf("%d_%d", header.Index, header.Sequence)] = row.FullPath
		}
		return row, nil
	}

	parentKey := fmt.Sprintf("%d_%d", fn.parentRef, fn.parentSeq)
	if hit, ok := cache[parentKey]; ok {
		row.FullPath = hit + `\` + fn.name
		row.Directory = directoryOf(row.FullPath)
		if row.IsDirectory && fn.namespace != record.NamespaceDos {
			cache[fmt.Sprintf("%d_%d", header.Index, header.Sequence)] = row.FullPath
		}
		return row, nil
	}

	path := lookupOrphanParent(fn.parentRef, fn.parentSeq, extended, cache, map[string]bool{})
	row.FullPath = path + `\` + fn.name
	row.Directory = path
	return row, nil
}

// lookupOrphanParent resolves a parent path for an entry whose parent is
// not present in the directory cache, by checking whether the parent's
// own FILE_NAME attribute survives in an extension record (the orphaned-
// attributes case the reference tool documents: the directory entry was
// deleted but an ATTRIBUTE_LIST extension elsewhere in the table still
// names its parent). tracker guards against cyclical parent references.
func lookupOrphanParent(parentIndex uint64, parentSeq uint16, extended map[string]extensionAttrs, cache map[string]string, tracker map[string]bool) string {
	key := fmt.Sprintf("%d_%d", parentIndex, parentSeq)
	if tracker[key] {
		return "$OrphanFiles"
	}
	tracker[key] = true

	ext, ok := extended[key]
	if !ok || len(ext.filenames) == 0 {
		return "$OrphanFiles"
	}
	parentFn, err := decodeFileName(ext.filenames[0].ResidentData)
	if err != nil {
		return "$OrphanFiles"
	}

	if parentFn.parentRef == rootIndex && isDirectoryAttr(parentFn.fileAttributes) {
		return `$OrphanFiles\.\` + parentFn.name
	}

	parentCacheKey := fmt.Sprintf("%d_%d", parentFn.parentRef, parentFn.parentSeq)
	if hit, ok := cache[parentCacheKey]; ok {
		return hit + `\` + parentFn.name
	}

	grandparent := lookupOrphanParent(parentFn.parentRef, parentFn.parentSeq, extended, cache, tracker)
	return `$OrphanFiles\` + grandparent + `\` + parentFn.name
}

type fileNameData struct {
	parentRef, parentSeq                    uint64
	created, modified, changed, accessed     uint64
	allocSize, realSize                      int64
	fileAttributes                           uint32
	namespace                                record.Namespace
	name                                     string
}

func decodeFileName(data []byte) (fileNameData, error) {
	if len(data) < 66 {
		return fileNameData{}, ferrors.Wrap(ferrors.ErrMissingAttribute, component, "filename attribute truncated", nil)
	}
	parentRaw := binary.LittleEndian.Uint64(data[0:8])
	fn := fileNameData{
		parentRef:      parentRaw & 0x0000FFFFFFFFFFFF,
		parentSeq:      parentRaw >> 48,
		created:        binary.LittleEndian.Uint64(data[8:16]),
		modified:       binary.LittleEndian.Uint64(data[16:24]),
		changed:        binary.LittleEndian.Uint64(data[24:32]),
		accessed:       binary.LittleEndian.Uint64(data[32:40]),
		allocSize:      int64(binary.LittleEndian.Uint64(data[40:48])),
		realSize:       int64(binary.LittleEndian.Uint64(data[48:56])),
		fileAttributes: binary.LittleEndian.Uint32(data[56:60]),
	}
	nameLength := int(data[64])
	ns := data[65]
	fn.namespace = namespaceOf(ns)
	end := 66 + nameLength*2
	if end > len(data) {
		end = len(data)
	}
	fn.name = decodeUTF16(data[66:end])
	return fn, nil
}

func namespaceOf(v byte) record.Namespace {
	switch v {
	case 0:
		return record.NamespacePosix
	case 1:
		return record.NamespaceWin32
	case 2:
		return record.NamespaceDos
	case 3:
		return record.NamespaceWin32AndDos
	default:
		return record.NamespaceUnknown
	}
}

type standardInfoData struct {
	created, modified, changed, accessed uint64
	fileAttributes                       uint32
	usn                                  int64
}

func decodeStandardInformation(data []byte) (standardInfoData, error) {
	if len(data) < 48 {
		return standardInfoData{}, ferrors.Wrap(ferrors.ErrMissingAttribute, component, "standard_information truncated", nil)
	}
	s := standardInfoData{
		created:        binary.LittleEndian.Uint64(data[0:8]),
		modified:       binary.LittleEndian.Uint64(data[8:16]),
		changed:        binary.LittleEndian.Uint64(data[16:24]),
		accessed:       binary.LittleEndian.Uint64(data[24:32]),
		fileAttributes: binary.LittleEndian.Uint32(data[32:36]),
	}
	if len(data) >= 72 {
		s.usn = int64(binary.LittleEndian.Uint64(data[64:72]))
	}
	return s, nil
}

func isDirectoryAttr(flags uint32) bool {
	const fileAttributeDirectory = 0x10000000 // FILE_NAME attribute's own directory bit
	return flags&fileAttributeDirectory != 0
}

func fileAttributeNames(flags uint32) []string {
	table := []struct {
		bit  uint32
		name string
	}{
		{0x0001, "ReadOnly"},
		{0x0002, "Hidden"},
		{0x0004, "System"},
		{0x0020, "Archive"},
		{0x0040, "Device"},
		{0x0080, "Normal"},
		{0x0100, "Temporary"},
		{0x0200, "Sparse"},
		{0x0400, "Reparse"},
		{0x0800, "Compressed"},
		{0x1000, "Offline"},
		{0x2000, "NotIndexed"},
		{0x4000, "Encrypted"},
		{0x10000000, "Directory"},
		{0x20000000, "IndexView"},
	}
	var out []string
	for _, t := range table {
		if flags&t.bit != 0 {
			out = append(out, t.name)
		}
	}
	return out
}

func attributeTypeName(t attr.Type) string {
	switch t {
	case attr.TypeStandardInformation:
		return "StandardInformation"
	case attr.TypeAttributeList:
		return "AttributeList"
	case attr.TypeFileName:
		return "FileName"
	case attr.TypeObjectID:
		return "ObjectID"
	case attr.TypeSecurityDescriptor:
		return "SecurityDescriptor"
	case attr.TypeVolumeName:
		return "VolumeName"
	case attr.TypeVolumeInformation:
		return "VolumeInformation"
	case attr.TypeData:
		return "Data"
	case attr.TypeIndexRoot:
		return "IndexRoot"
	case attr.TypeIndexAllocation:
		return "IndexAllocation"
	case attr.TypeBitmap:
		return "Bitmap"
	case attr.TypeReparsePoint:
		return "ReparsePoint"
	case attr.TypeEAInformation:
		return "EAInformation"
	case attr.TypeEA:
		return "EA"
	case attr.TypeLoggedUtilityStream:
		return "LoggedUtilityStream"
	default:
		return "Unknown"
	}
}

func directoryOf(fullPath string) string {
	idx := strings.LastIndex(fullPath, `\`)
	if idx < 0 {
		return ""
	}
	return fullPath[:idx]
}

func extOf(name string) string {
	i := strings.LastIndex(name, ".")
	if i < 0 || i == len(name)-1 {
		return ""
	}
	return name[i+1:]
}

// filetimeToISO converts a Windows FILETIME (100ns ticks since
// 1601-01-01) to an RFC3339 string; a zero FILETIME yields an empty
// string rather than the 1601 epoch.
func filetimeToISO(ft uint64) string {
	if ft == 0 {
		return ""
	}
	const ticksPerSecond = 10000000
	const epochDiffSeconds = 11644473600
	secs := int64(ft/ticksPerSecond) - epochDiffSeconds
	nsec := int64(ft%ticksPerSecond) * 100
	return time.Unix(secs, nsec).UTC().Format(time.RFC3339Nano)
}

func decodeUTF16(b []byte) string {
	out, err := utf16Decoder.Bytes(b)
	if err != nil {
		return ""
	}
	return string(out)
}
