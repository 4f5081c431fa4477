// Package bits implements the BITS (Background Intelligent Transfer
// Service) job parser (spec §4.1, C10). BITS persists its queue in one of
// two formats: an active-database ESE table whose "Blob" column holds a
// base64-encoded per-job binary blob (Windows 10+), or a legacy flat file
// (qmgr0.dat-style) holding a sequence of jobs back to back, each job
// separated by one of ten fixed 16-byte delimiter GUIDs that must be
// scanned for since job records don't self-report their length.
package bits

import (
	"bytes"
	"encoding/base64"
	"encoding/binary"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/text/encoding/unicode"

	"github.com/forensics-collect/collector/internal/ferrors"
	"github.com/forensics-collect/collector/pkg/record"
)

const component = "bits"

// utf16Decoder converts a BITS job blob's little-endian UTF-16 string
// fields to UTF-8.
var utf16Decoder = unicode.UTF16(unicode.LittleEndian, unicode.IgnoreBOM).NewDecoder()

// legacyJobDelimiters are the ten 16-byte GUIDs the legacy flat-file
// format uses to separate consecutive job records; they have no other
// structural meaning and are only useful as scan targets. The carving
// loop below tries each of them in table order after every job and stops
// carving when none of the ten occurs in the remaining data.
var legacyJobDelimiters = [][16]byte{
	{147, 54, 32, 53, 160, 12, 16, 74, 132, 243, 177, 126, 123, 73, 156, 215},
	{16, 19, 112, 200, 54, 83, 179, 65, 131, 229, 129, 85, 127, 54, 27, 135},
	{140, 147, 234, 100, 3, 15, 104, 64, 180, 111, 249, 127, 229, 29, 77, 205},
	{179, 70, 237, 61, 59, 16, 249, 68, 188, 47, 232, 55, 139, 211, 25, 134},
	{161, 86, 9, 225, 67, 175, 201, 66, 146, 230, 111, 152, 86, 235, 167, 246},
	{159, 149, 212, 76, 100, 112, 242, 75, 132, 215, 71, 106, 126, 98, 105, 159},
	{241, 25, 38, 169, 50, 3, 191, 76, 148, 39, 137, 136, 24, 149, 136, 49},
	{193, 51, 188, 221, 251, 90, 175, 77, 184, 161, 34, 104, 179, 157, 1, 173},
	{208, 87, 86, 143, 44, 1, 62, 78, 173, 44, 244, 165, 215, 101, 111, 175},
	{80, 103, 65, 148, 87, 3, 29, 70, 164, 204, 93, 217, 153, 7, 6, 228},
}

// detailsDelimiter marks the start of a job's details area (error counts,
// timestamps, target path, HTTP method) further along in the same blob.
var detailsDelimiter = [16]byte{54, 218, 86, 119, 111, 81, 90, 67, 172, 172, 68, 162, 72, 255, 243, 77}

const (
	legacySigWin10  = 40
	win10ChangeSize = 24
	win7ChangeSize  = 16

	jobHeaderSize    = 16
	accessTokenSize  = 70
	jobPaddingSize   = 982
	additionalSIDLen = 12
	delimiterLen     = 16
	proxyDataSize    = 108
	detailsUnknownSize = 55
	targetPathSkip   = 16
)

// ParseActiveJob decodes a single base64 "Blob" column value from the
// active BITS queue database into a job row, given the job_id the ESE
// table's "Id" column already supplied. A failure to locate or parse the
// details area is ignored rather than treated as fatal: the fields
// parseJob already filled in (name, command, owner SID, ...) are still
// returned even when the details area can't be found.
func ParseActiveJob(jobID string, blobBase64 string) (record.BitsJob, error) {
	blob, err := base64.StdEncoding.DecodeString(blobBase64)
	if err != nil {
		return record.BitsJob{}, ferrors.Wrap(ferrors.ErrParseFormat, component, "bits blob base64", err)
	}
	job, consumed, err := parseJob(blob, false)
	if err != nil {
		return record.BitsJob{}, ferrors.Wrap(ferrors.ErrParseFormat, component, "bits blob", err)
	}
	job.JobID = jobID

	// job_details failures are non-fatal: the job row parsed so far is
	// still reported, just without error/retry/target-path detail.
	_, _ = jobDetails(blob[consumed:], &job, false)
	return job, nil
}

// ParseLegacyJobs carves every job out of a legacy flat-file BITS queue
// by repeatedly parsing a job record, its details area, and then scanning
// forward for the next delimiter GUID.
func ParseLegacyJobs(data []byte) ([]record.BitsJob, error) {
	if len(data) < 1 {
		return nil, ferrors.Wrap(ferrors.ErrParseFormat, component, "empty legacy queue", nil)
	}
	sig := data[0]
	changeSize := win7ChangeSize
	if sig == legacySigWin10 {
		changeSize = win10ChangeSize
	}

	pos := 1 + changeSize + 16 + 16 // signature + change header + two GUID headers
	if pos+4 > len(data) {
		return nil, ferrors.Wrap(ferrors.ErrParseFormat, component, "legacy header truncated", nil)
	}
	numberOfJobs := binary.LittleEndian.Uint32(data[pos : pos+4])
	pos += 4

	var jobs []record.BitsJob
	for i := uint32(0); i < numberOfJobs && pos < len(data); i++ {
		job, consumed, err := parseJob(data[pos:], false)
		if err != nil {
			break
		}
		detailsConsumed, _ := jobDetails(data[pos+consumed:], &job, true)
		jobs = append(jobs, job)

		remainingBefore := len(data) - pos
		pos += consumed + detailsConsumed
		if i+1 == numberOfJobs {
			break
		}

		advanced := false
		for _, delim := range legacyJobDelimiters {
			if pos >= len(data) {
				break
			}
			hit := scanDelimiter(data[pos:], delim)
			if hit < 0 {
				continue
			}
			pos += hit + delimiterLen
			advanced = true
			break
		}
		if !advanced || len(data)-pos == remainingBefore {
			break
		}
	}
	return jobs, nil
}

// scanDelimiter returns the byte offset of delim within data, or -1 if
// not found.
func scanDelimiter(data []byte, delim [16]byte) int {
	return bytes.Index(data, delim[:])
}

// parseJob decodes one job record: an unknown 16-byte header, the job's
// type/priority/state, its job_id GUID, four length-prefixed UTF-16
// strings (name, description, command, arguments), the owner SID (stored
// as UTF-16 text, not a binary SID), an access-token blob and 982 bytes
// of padding, and finally either a "no ACLs" marker or a DACL followed by
// two additional binary SIDs. It returns the number of bytes consumed so
// callers carving consecutive jobs out of a flat file can advance past
// this record.
func parseJob(data []byte, carve bool) (record.BitsJob, int, error) {
	pos := 0
	need := func(n int) error {
		if pos+n > len(data) {
			return ferrors.ErrParseFormat
		}
		return nil
	}
	readU32 := func() (uint32, error) {
		if err := need(4); err != nil {
			return 0, err
		}
		v := binary.LittleEndian.Uint32(data[pos : pos+4])
		pos += 4
		return v, nil
	}
	readGUID := func() (string, error) {
		if err := need(16); err != nil {
			return "", err
		}
		g := formatGUID(data[pos : pos+16])
		pos += 16
		return g, nil
	}
	readString := func() (string, error) {
		n, err := readU32()
		if err != nil {
			return "", err
		}
		if err := need(int(n) * 2); err != nil {
			return "", err
		}
		s := decodeUTF16(data[pos : pos+int(n)*2])
		pos += int(n) * 2
		return s, nil
	}

	if err := need(jobHeaderSize); err != nil {
		return record.BitsJob{}, pos, err
	}
	pos += jobHeaderSize

	jobType, err := readU32()
	if err != nil {
		return record.BitsJob{}, pos, err
	}
	jobPriority, err := readU32()
	if err != nil {
		return record.BitsJob{}, pos, err
	}
	jobState, err := readU32()
	if err != nil {
		return record.BitsJob{}, pos, err
	}
	if _, err := readU32(); err != nil { // unknown
		return record.BitsJob{}, pos, err
	}

	jobID, err := readGUID()
	if err != nil {
		return record.BitsJob{}, pos, err
	}

	name, err := readString()
	if err != nil {
		return record.BitsJob{}, pos, err
	}
	description, err := readString()
	if err != nil {
		return record.BitsJob{}, pos, err
	}
	command, err := readString()
	if err != nil {
		return record.BitsJob{}, pos, err
	}
	arguments, err := readString()
	if err != nil {
		return record.BitsJob{}, pos, err
	}
	ownerSID, err := readString()
	if err != nil {
		return record.BitsJob{}, pos, err
	}

	jobFlag, err := readU32()
	if err != nil {
		return record.BitsJob{}, pos, err
	}

	if err := need(accessTokenSize); err != nil {
		return record.BitsJob{}, pos, err
	}
	pos += accessTokenSize // access token contents are opaque and unused

	job := record.BitsJob{
		JobID:          jobID,
		JobName:        name,
		JobDescription: description,
		JobCommand:     command,
		JobArguments:   arguments,
		OwnerSID:       ownerSID,
		JobType:        jobTypeName(jobType),
		JobState:       jobStateName(jobState),
		Priority:       priorityName(jobPriority),
		Flags:          flagName(jobFlag),
	}

	if err := need(jobPaddingSize); err != nil {
		return job, pos, err
	}
	pos += jobPaddingSize

	// Carved or truncated blobs sometimes have no ACL data at all, just
	// trailing padding; a run of four zero bytes here signals that.
	if pos+4 > len(data) || (data[pos] == 0 && data[pos+1] == 0 && data[pos+2] == 0 && data[pos+3] == 0) {
		return job, pos, nil
	}

	acls, aclConsumed, err := parseACL(data[pos:])
	if err != nil {
		return job, pos, nil
	}
	job.Acls = acls
	pos += aclConsumed

	if !carve {
		if err := need(additionalSIDLen); err == nil {
			sid1, _ := readSID(data[pos : pos+additionalSIDLen])
			job.AdditionalSids = append(job.AdditionalSids, sid1)
			pos += additionalSIDLen

			if err := need(delimiterLen); err == nil {
				pos += delimiterLen

				if err := need(additionalSIDLen); err == nil {
					sid2, _ := readSID(data[pos : pos+additionalSIDLen])
					job.AdditionalSids = append(job.AdditionalSids, sid2)
					pos += additionalSIDLen
					// A final 16-byte delimiter follows but isn't consumed
					// here: job_details scans forward for its own
					// delimiter regardless of exactly where this record
					// "ends".
				}
			}
		}
	}

	return job, pos, nil
}

// jobDetails parses the error/retry/timestamp/target-path area that
// follows a job record, locating it by scanning for detailsDelimiter.
// It mutates job in place so a failure partway through still leaves
// whatever fields were already decoded. Declared string lengths that run
// past the remaining buffer return early without error rather than
// failing the whole record, since carved job blobs are often truncated.
func jobDetails(data []byte, job *record.BitsJob, isLegacy bool) (int, error) {
	hit := bytes.Index(data, detailsDelimiter[:])
	if hit < 0 {
		return 0, ferrors.Wrap(ferrors.ErrParseFormat, component, "job details delimiter not found", nil)
	}
	pos := hit + delimiterLen

	need := func(n int) error {
		if pos+n > len(data) {
			return ferrors.ErrParseFormat
		}
		return nil
	}
	readU32 := func() (uint32, error) {
		if err := need(4); err != nil {
			return 0, err
		}
		v := binary.LittleEndian.Uint32(data[pos : pos+4])
		pos += 4
		return v, nil
	}
	readU64 := func() (uint64, error) {
		if err := need(8); err != nil {
			return 0, err
		}
		v := binary.LittleEndian.Uint64(data[pos : pos+8])
		pos += 8
		return v, nil
	}

	if !isLegacy {
		if _, err := readU32(); err != nil { // count
			return pos, err
		}
		if err := need(16); err != nil {
			return pos, err
		}
		job.FileID = formatGUID(data[pos : pos+16])
		pos += 16
		if err := need(16); err != nil { // delimiter repeats
			return pos, err
		}
		pos += 16
	}

	errorCount, err := readU32()
	if err != nil {
		return pos, err
	}
	transientErrorCount, err := readU32()
	if err != nil {
		return pos, err
	}
	retryDelay, err := readU32()
	if err != nil {
		return pos, err
	}
	timeout, err := readU32()
	if err != nil {
		return pos, err
	}

	created, err := readU64()
	if err != nil {
		return pos, err
	}
	modified, err := readU64()
	if err != nil {
		return pos, err
	}
	completeTime, err := readU64()
	if err != nil {
		return pos, err
	}

	unknownSize := 14
	if !isLegacy {
		if _, err := readU64(); err != nil { // unknown timestamp, same value as modified/completed
			return pos, err
		}
		unknownSize = 6
	}
	if err := need(unknownSize); err != nil {
		return pos, err
	}
	pos += unknownSize

	if _, err := readU64(); err != nil { // unknown timestamp
		return pos, err
	}
	expiration, err := readU64()
	if err != nil {
		return pos, err
	}

	job.ErrorCount = errorCount
	job.TransientErrorCount = transientErrorCount
	job.RetryDelay = retryDelay
	job.Timeout = timeout
	job.Created = filetimeToISO(created)
	job.Modified = filetimeToISO(modified)
	job.Completed = filetimeToISO(completeTime)
	job.Expiration = filetimeToISO(expiration)

	if isLegacy {
		return pos, nil
	}

	if err := need(proxyDataSize); err != nil {
		return pos, nil
	}
	pos += proxyDataSize // proxy settings are not currently surfaced
	if err := need(detailsUnknownSize); err != nil {
		return pos, nil
	}
	pos += detailsUnknownSize

	targetPathSize, err := readU32()
	if err != nil {
		return pos, nil
	}
	remaining := len(data) - pos
	if int(targetPathSize) > remaining || int(targetPathSize)*2 > remaining {
		return pos, nil
	}
	job.TargetPath = decodeUTF16(data[pos : pos+int(targetPathSize)*2])
	pos += int(targetPathSize) * 2

	if err := need(targetPathSkip); err != nil {
		return pos, nil
	}
	pos += targetPathSkip

	methodSize, err := readU32()
	if err != nil {
		return pos, nil
	}
	remaining = len(data) - pos
	if int(methodSize) > remaining || int(methodSize)*2 > remaining {
		return pos, nil
	}
	job.HTTPMethod = decodeUTF16(data[pos : pos+int(methodSize)*2])
	pos += int(methodSize) * 2

	// Remaining bytes (possible custom HTTP headers, trailing footer) are
	// not currently surfaced.
	return pos, nil
}

// readSID decodes a standard Windows binary SID: a 1-byte revision, a
// 1-byte sub-authority count, a 6-byte big-endian authority, and that
// many 4-byte little-endian sub-authorities, rendered as
// "S-revision-authority-sub0-sub1-...". Declared sub-authority counts
// that run past the available bytes are clamped to what's actually
// there.
func readSID(b []byte) (string, int) {
	if len(b) < 8 {
		return "", 0
	}
	revision := b[0]
	subCount := int(b[1])
	var authority uint64
	for i := 0; i < 6; i++ {
		authority = (authority << 8) | uint64(b[2+i])
	}
	if max := (len(b) - 8) / 4; subCount > max {
		subCount = max
	}
	var sb strings.Builder
	fmt.Fprintf(&sb, "S-%d-%d", revision, authority)
	for i := 0; i < subCount; i++ {
		off := 8 + i*4
		fmt.Fprintf(&sb, "-%d", binary.LittleEndian.Uint32(b[off:off+4]))
	}
	return sb.String(), 8 + subCount*4
}

// parseACL decodes a standard Windows ACL: an 8-byte ACL_HEADER
// (revision, Sbz1, AclSize, AceCount, Sbz2) followed by AceCount ACEs,
// each with a 1-byte type, 1-byte flags, 2-byte size, 4-byte access mask
// and trailing SID. It returns one descriptive string per ACE and the
// number of bytes the whole ACL (per its own declared AclSize) occupies.
func parseACL(data []byte) ([]string, int, error) {
	if len(data) < 8 {
		return nil, 0, ferrors.ErrParseFormat
	}
	aclSize := int(binary.LittleEndian.Uint16(data[2:4]))
	aceCount := int(binary.LittleEndian.Uint16(data[4:6]))
	if aclSize > len(data) || aclSize < 8 {
		return nil, 0, ferrors.ErrParseFormat
	}

	var acls []string
	pos := 8
	for i := 0; i < aceCount && pos+4 <= aclSize; i++ {
		aceType := data[pos]
		aceSize := int(binary.LittleEndian.Uint16(data[pos+2 : pos+4]))
		if aceSize < 8 || pos+aceSize > aclSize {
			break
		}
		ace := data[pos : pos+aceSize]
		accessMask := binary.LittleEndian.Uint32(ace[4:8])
		sid, _ := readSID(ace[8:])
		acls = append(acls, fmt.Sprintf("%s:0x%08x:%s", aceTypeName(aceType), accessMask, sid))
		pos += aceSize
	}
	return acls, aclSize, nil
}

func aceTypeName(v byte) string {
	switch v {
	case 0:
		return "AccessAllowed"
	case 1:
		return "AccessDenied"
	case 2:
		return "SystemAudit"
	case 3:
		return "SystemAlarm"
	default:
		return "Unknown"
	}
}

func jobTypeName(v uint32) record.JobType {
	switch v {
	case 0:
		return record.JobDownload
	case 1:
		return record.JobUpload
	case 2:
		return record.JobUploadReply
	default:
		return record.JobUnknown
	}
}

func jobStateName(v uint32) record.JobState {
	switch v {
	case 0:
		return record.JobQueued
	case 1:
		return record.JobConnecting
	case 2:
		return record.JobTransferring
	case 3:
		return record.JobSuspended
	case 4:
		return record.JobError
	case 5:
		return record.JobTransientErr
	case 6:
		return record.JobTransferred
	case 7:
		return record.JobAcknowledged
	case 8:
		return record.JobCancelled
	default:
		return record.JobStateUnknown
	}
}

func priorityName(v uint32) string {
	switch v {
	case 0:
		return "Foreground"
	case 1:
		return "High"
	case 2:
		return "Normal"
	case 3:
		return "Low"
	default:
		return "Unknown"
	}
}

// flagName maps a job's raw JobInfo flag word to its documented name.
func flagName(v uint32) string {
	switch v {
	case 1:
		return "Transferred"
	case 2:
		return "Error"
	case 3:
		return "TransferredBackgroundError"
	case 4:
		return "Disable"
	case 5:
		return "TransferredBackgroundDisable"
	case 6:
		return "ErrorBackgroundDisable"
	case 7:
		return "TransferredBackgroundErrorDisable"
	case 8:
		return "Modification"
	case 16:
		return "FileTransferred"
	default:
		return "Unknown"
	}
}

// formatGUID renders a little-endian-mixed ("Microsoft") GUID in
// canonical 8-4-4-4-12 form.
func formatGUID(b []byte) string {
	if len(b) < 16 {
		return ""
	}
	var swapped [16]byte
	binary.BigEndian.PutUint32(swapped[0:4], binary.LittleEndian.Uint32(b[0:4]))
	binary.BigEndian.PutUint16(swapped[4:6], binary.LittleEndian.Uint16(b[4:6]))
	binary.BigEndian.PutUint16(swapped[6:8], binary.LittleEndian.Uint16(b[6:8]))
	copy(swapped[8:16], b[8:16])
	return uuid.UUID(swapped).String()
}

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
