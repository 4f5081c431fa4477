// Package record holds the typed output rows produced by every artifact
// collector. Field names and JSON tags match the wire format emitted by
// the reference collector, so downstream tooling that already parses
// that output keeps working unchanged.
package record

// CompressionType enumerates how a file's data stream is stored on disk.
type CompressionType string

const (
	CompressionNone      CompressionType = "None"
	CompressionNTFS      CompressionType = "NTFSCompressed"
	CompressionWOF       CompressionType = "WofCompressed"
)

// ADSInfo describes one alternate data stream discovered on a file.
type ADSInfo struct {
	Name string `json:"name"`
	Size int64  `json:"size"`
}

// PEInfo is the subset of PE metadata the walker attaches to executables.
type PEInfo struct {
	Imphash    string   `json:"imphash,omitempty"`
	Company    string   `json:"company,omitempty"`
	Product    string   `json:"product,omitempty"`
	Imports    []string `json:"imports,omitempty"`
}

// RawFilelist is the NTFS walker's (C7) output row.
type RawFilelist struct {
	FullPath         string          `json:"full_path"`
	Directory        string          `json:"directory"`
	Filename         string          `json:"filename"`
	Extension        string          `json:"extension"`
	Created          string          `json:"created"`
	Modified         string          `json:"modified"`
	Changed          string          `json:"changed"`
	Accessed         string          `json:"accessed"`
	FilenameCreated  string          `json:"filename_created"`
	FilenameModified string          `json:"filename_modified"`
	FilenameChanged  string          `json:"filename_changed"`
	FilenameAccessed string          `json:"filename_accessed"`
	Size             int64           `json:"size"`
	CompressedSize   int64           `json:"compressed_size"`
	CompressionType  CompressionType `json:"compression_type"`
	Inode            uint64          `json:"inode"`
	SequenceNumber   uint16          `json:"sequence_number"`
	ParentMftRef     uint64          `json:"parent_mft_reference"`
	OwnerID          uint32          `json:"owner_id"`
	Attributes       []string        `json:"attributes"`
	MD5              string          `json:"md5"`
	SHA1             string          `json:"sha1"`
	SHA256           string          `json:"sha256"`
	IsFile           bool            `json:"is_file"`
	IsDirectory      bool            `json:"is_directory"`
	IsIndx           bool            `json:"is_indx"`
	Depth            int             `json:"depth"`
	Usn              int64           `json:"usn"`
	Sid              uint32          `json:"sid"`
	UserSID          string          `json:"user_sid"`
	GroupSID         string          `json:"group_sid"`
	Drive            string          `json:"drive"`
	Ads              []ADSInfo       `json:"ads_info"`
	Pe               []PEInfo        `json:"pe_info,omitempty"`
}

// Namespace enumerates the NTFS FILE_NAME namespace an entry was recorded under.
type Namespace string

const (
	NamespacePosix      Namespace = "Posix"
	NamespaceWin32      Namespace = "Win32"
	NamespaceDos        Namespace = "Dos"
	NamespaceWin32AndDos Namespace = "Win32AndDos"
	NamespaceUnknown    Namespace = "Unknown"
)

// MftEntry is the MFT reconstruction engine's (C8) output row.
type MftEntry struct {
	Filename         string    `json:"filename"`
	Directory        string    `json:"directory"`
	FullPath         string    `json:"full_path"`
	Extension        string    `json:"extension"`
	Created          string    `json:"created"`
	Modified         string    `json:"modified"`
	Changed          string    `json:"changed"`
	Accessed         string    `json:"accessed"`
	FilenameCreated  string    `json:"filename_created"`
	FilenameModified string    `json:"filename_modified"`
	FilenameChanged  string    `json:"filename_changed"`
	FilenameAccessed string    `json:"filename_accessed"`
	Size             int64     `json:"size"`
	Inode            uint64    `json:"inode"`
	ParentInode      uint64    `json:"parent_inode"`
	Namespace        Namespace `json:"namespace"`
	Usn              int64     `json:"usn"`
	Attributes       []string  `json:"attributes"`
	AttributeList    []string  `json:"attribute_list"`
	IsFile           bool      `json:"is_file"`
	IsDirectory      bool      `json:"is_directory"`
	Deleted          bool      `json:"deleted"`
}

// JobType enumerates BITS job direction.
type JobType string

const (
	JobDownload    JobType = "Download"
	JobUpload      JobType = "Upload"
	JobUploadReply JobType = "UploadReply"
	JobUnknown     JobType = "Unknown"
)

// JobState enumerates BITS job lifecycle state.
type JobState string

const (
	JobQueued        JobState = "Queued"
	JobConnecting    JobState = "Connecting"
	JobTransferring  JobState = "Transferring"
	JobSuspended     JobState = "Suspended"
	JobError         JobState = "Error"
	JobTransientErr  JobState = "TransientError"
	JobTransferred   JobState = "Transferred"
	JobAcknowledged  JobState = "Acknowledged"
	JobCancelled     JobState = "Cancelled"
	JobStateUnknown  JobState = "Unknown"
)

// BitsJob is the BITS job parser's (C10) output row.
type BitsJob struct {
	JobID               string   `json:"job_id"`
	FileID               string   `json:"file_id"`
	OwnerSID             string   `json:"owner_sid"`
	Created              string   `json:"created"`
	Modified             string   `json:"modified"`
	Expiration           string   `json:"expiration"`
	Completed            string   `json:"completed"`
	JobName              string   `json:"job_name"`
	JobDescription       string   `json:"job_description"`
	JobCommand           string   `json:"job_command"`
	JobArguments         string   `json:"job_arguments"`
	ErrorCount           uint32   `json:"error_count"`
	JobType              JobType  `json:"job_type"`
	JobState             JobState `json:"job_state"`
	Priority             string   `json:"priority"`
	Flags                string   `json:"flags"`
	HTTPMethod           string   `json:"http_method"`
	Acls                 []string `json:"acls"`
	AdditionalSids       []string `json:"additional_sids"`
	TransientErrorCount  uint32   `json:"transient_error_count"`
	RetryDelay           uint32   `json:"retry_delay"`
	Timeout              uint32   `json:"timeout"`
	TargetPath           string   `json:"target_path"`
}

// Reason enumerates a USN journal record's update-reason bits.
type Reason string

const (
	ReasonOverwrite         Reason = "Overwrite"
	ReasonExtend            Reason = "Extend"
	ReasonTruncation        Reason = "Truncation"
	ReasonNamedOverwrite    Reason = "NamedOverwrite"
	ReasonNamedExtend       Reason = "NamedExtend"
	ReasonNamedTruncation   Reason = "NamedTruncation"
	ReasonFileCreate        Reason = "FileCreate"
	ReasonFileDelete        Reason = "FileDelete"
	ReasonEAChange          Reason = "EAChange"
	ReasonSecurityChange    Reason = "SecurityChange"
	ReasonRenameOldName     Reason = "RenameOldName"
	ReasonRenameNewName     Reason = "RenameNewName"
	ReasonIndexableChange   Reason = "IndexableChange"
	ReasonBasicInfoChange   Reason = "BasicInfoChange"
	ReasonHardLinkChange    Reason = "HardLinkChange"
	ReasonCompressionChange Reason = "CompressionChange"
	ReasonEncryptionChange  Reason = "EncryptionChange"
	ReasonObjectIDChange    Reason = "ObjectIDChange"
	ReasonReparsePointChange Reason = "ReparsePointChange"
	ReasonStreamChange      Reason = "StreamChange"
	ReasonTransactedChange  Reason = "TransactedChange"
	ReasonClose             Reason = "Close"
)

// Source enumerates a USN journal record's update-source value.
type Source string

const (
	SourceDataManagement       Source = "DataManagement"
	SourceAuxiliaryData        Source = "AuxiliaryData"
	SourceReplicationManagement Source = "ReplicationManagement"
	SourceNone                 Source = "None"
)

// UsnRecord is the USN journal parser's (C9) output row.
type UsnRecord struct {
	MftEntry            uint64   `json:"mft_entry"`
	MftSequence         uint16   `json:"mft_sequence"`
	ParentMftEntry       uint64   `json:"parent_mft_entry"`
	ParentMftSequence    uint16   `json:"parent_mft_sequence"`
	UpdateTime           int64    `json:"update_time"`
	UpdateReason         []Reason `json:"update_reason"`
	UpdateSourceFlags    Source   `json:"update_source_flags"`
	SecurityDescriptorID uint32   `json:"security_descriptor_id"`
	UpdateSequenceNumber uint64   `json:"update_sequence_number"`
	FileAttributes       []string `json:"file_attributes"`
	Name                 string   `json:"name"`
	FullPath             string   `json:"full_path"`
}

// DriveType enumerates the .lnk volume descriptor's drive kind.
type DriveType string

const (
	DriveUnknown   DriveType = "DriveUnknown"
	DriveNoRoot    DriveType = "DriveNoRootDir"
	DriveRemovable DriveType = "DriveRemovable"
	DriveFixed     DriveType = "DriveFixed"
	DriveRemote    DriveType = "DriveRemote"
	DriveCDRom     DriveType = "DriveCDRom"
	DriveRamdisk   DriveType = "DriveRamdisk"
	DriveNone      DriveType = "None"
)

// ShellItem is a single entry of a shortcut's shell-ID list.
type ShellItem struct {
	Kind      string `json:"kind"`
	Value     string `json:"value"`
	MftEntry  uint64 `json:"mft_entry,omitempty"`
	MftSeq    uint16 `json:"mft_sequence,omitempty"`
}

// ShortcutRecord is the .lnk parser's (C11) output row.
type ShortcutRecord struct {
	DataFlags          []string    `json:"data_flags"`
	AttributeFlags     []string    `json:"attribute_flags"`
	Created            string      `json:"created"`
	Modified           string      `json:"modified"`
	Accessed           string      `json:"accessed"`
	FileSize           uint32      `json:"file_size"`
	LocationFlags      string      `json:"location_flags"`
	Path               string      `json:"path"`
	DriveSerial        string      `json:"drive_serial"`
	DriveType          DriveType   `json:"drive_type"`
	VolumeLabel        string      `json:"volume_label"`
	NetworkProvider    string      `json:"network_provider"`
	NetworkShareName   string      `json:"network_share_name"`
	NetworkDeviceName  string      `json:"network_device_name"`
	Description        string      `json:"description"`
	RelativePath       string      `json:"relative_path"`
	WorkingDirectory   string      `json:"working_directory"`
	CommandLineArgs    string      `json:"command_line_args"`
	IconLocation       string      `json:"icon_location"`
	Hostname           string      `json:"hostname"`
	DroidVolumeID      string      `json:"droid_volume_id"`
	DroidFileID        string      `json:"droid_file_id"`
	BirthDroidVolumeID string      `json:"birth_droid_volume_id"`
	BirthDroidFileID   string      `json:"birth_droid_file_id"`
	ShellItems         []ShellItem `json:"shellitems"`
	Properties         []string    `json:"properties"`
	EnvironmentVar     string      `json:"environment_variable"`
	Console            []string    `json:"console"`
	Codepage           uint32      `json:"codepage"`
	SpecialFolderID    uint32      `json:"special_folder_id"`
	DarwinID           string      `json:"darwin_id"`
	ShimLayer          string      `json:"shim_layer"`
	KnownFolder        string      `json:"known_folder"`
	IsAbnormal         bool        `json:"is_abnormal"`
}

// JournalEntry is the journald parser's (C12) output row.
type JournalEntry struct {
	Realtime           string            `json:"realtime"`
	Seqnum             uint64            `json:"seqnum"`
	Uid                uint32            `json:"uid,omitempty"`
	Gid                uint32            `json:"gid,omitempty"`
	Pid                uint32            `json:"pid,omitempty"`
	Comm               string            `json:"comm,omitempty"`
	Priority           string            `json:"priority,omitempty"`
	Facility           string            `json:"facility,omitempty"`
	ThreadID           uint32            `json:"thread_id,omitempty"`
	SyslogIdentifier   string            `json:"syslog_identifier,omitempty"`
	Executable         string            `json:"executable,omitempty"`
	Cmdline            string            `json:"cmdline,omitempty"`
	CapEffective       string            `json:"cap_effective,omitempty"`
	AuditSession       string            `json:"audit_session,omitempty"`
	AuditLoginuid      string            `json:"audit_loginuid,omitempty"`
	SystemdCgroup      string            `json:"systemd_cgroup,omitempty"`
	SystemdOwnerUID    string            `json:"systemd_owner_uid,omitempty"`
	SystemdUnit        string            `json:"systemd_unit,omitempty"`
	SystemdUserUnit    string            `json:"systemd_user_unit,omitempty"`
	SystemdSlice       string            `json:"systemd_slice,omitempty"`
	SystemdUserSlice   string            `json:"systemd_user_slice,omitempty"`
	SystemdInvocationID string           `json:"systemd_invocation_id,omitempty"`
	BootID             string            `json:"boot_id,omitempty"`
	MachineID          string            `json:"machine_id,omitempty"`
	Hostname           string            `json:"hostname,omitempty"`
	RuntimeScope       string            `json:"runtime_scope,omitempty"`
	SourceRealtime     string            `json:"source_realtime,omitempty"`
	Transport          string            `json:"transport,omitempty"`
	Message            string            `json:"message,omitempty"`
	MessageID          string            `json:"message_id,omitempty"`
	UnitResult         string            `json:"unit_result,omitempty"`
	CodeLine           string            `json:"code_line,omitempty"`
	CodeFunction       string            `json:"code_function,omitempty"`
	CodeFile           string            `json:"code_file,omitempty"`
	UserInvocationID   string            `json:"user_invocation_id,omitempty"`
	UserUnit           string            `json:"user_unit,omitempty"`
	Other              map[string]string `json:"other,omitempty"`
}
