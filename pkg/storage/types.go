package storage

const (
	DefaultInfoFile = "info.json"

	CapturePrefix   = "captured_"
	DefaultImageExt = ".jpg"
	DefaultVideoExt = ".avi"

	// TimestampLayout is the YYYYMMDD_HHMMSS stamp of capture file names.
	TimestampLayout = "20060102_150405"

	DefaultFilePerm = 0644
	DefaultDirPerm  = 0755
)
