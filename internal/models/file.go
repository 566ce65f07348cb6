package models

import "strconv"

// FileDescriptor identifies one image for the duration of a run. It is
// built from an UploadFile row and never mutated afterwards.
type FileDescriptor struct {
	FileID       int64
	CarID        string
	RelativePath string
	BranchNo     *int
}

// Key is the string form of FileID used to index tracking records.
func (f FileDescriptor) Key() string {
	return formatInt(f.FileID)
}

// Descriptor converts a catalog row into a FileDescriptor.
func (u UploadFile) Descriptor() FileDescriptor {
	fd := FileDescriptor{
		FileID:       u.ID,
		CarID:        u.CarKey(),
		RelativePath: u.SaveFileName,
	}
	if u.BranchNo != nil {
		b := *u.BranchNo
		fd.BranchNo = &b
	}
	return fd
}

func formatInt(v int64) string {
	return strconv.FormatInt(v, 10)
}
