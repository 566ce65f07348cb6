package models

import (
	"reflect"
	"strings"
	"testing"
)

// gormTag extracts the gorm tag from a struct field.
func gormTag(t *testing.T, typ reflect.Type, fieldName string) string {
	t.Helper()
	f, ok := typ.FieldByName(fieldName)
	if !ok {
		t.Fatalf("%s.%s: field not found", typ.Name(), fieldName)
	}
	return f.Tag.Get("gorm")
}

// assertGormTag checks that a struct field's gorm tag contains the expected value.
func assertGormTag(t *testing.T, typ reflect.Type, fieldName, expected string) {
	t.Helper()
	tag := gormTag(t, typ, fieldName)
	if !strings.Contains(tag, expected) {
		t.Errorf("%s.%s gorm tag = %q, want to contain %q", typ.Name(), fieldName, tag, expected)
	}
}

func TestUploadFile_Columns(t *testing.T) {
	typ := reflect.TypeOf(UploadFile{})

	assertGormTag(t, typ, "ID", "primaryKey")
	assertGormTag(t, typ, "ID", "column:id")
	assertGormTag(t, typ, "CarCd", "column:car_cd")
	assertGormTag(t, typ, "InspresultdataCd", "column:inspresultdata_cd")
	assertGormTag(t, typ, "BranchNo", "column:branch_no")
	assertGormTag(t, typ, "SaveFileName", "column:save_file_name")
	assertGormTag(t, typ, "Created", "column:created")
	assertGormTag(t, typ, "Modified", "column:modified")
	assertGormTag(t, typ, "DeleteFlg", "column:delete_flg")
}

func TestUploadFile_TableName(t *testing.T) {
	if got := (UploadFile{}).TableName(); got != "upload_files" {
		t.Errorf("TableName() = %q, want %q", got, "upload_files")
	}
}

func TestUploadFile_CarKey(t *testing.T) {
	code := "1554913G"
	empty := ""
	carCd := int64(10418430)

	tests := []struct {
		name string
		row  UploadFile
		want string
	}{
		{"inspection code wins", UploadFile{InspresultdataCd: &code, CarCd: &carCd}, "1554913G"},
		{"empty code falls back", UploadFile{InspresultdataCd: &empty, CarCd: &carCd}, "10418430"},
		{"car code only", UploadFile{CarCd: &carCd}, "10418430"},
		{"neither", UploadFile{}, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.row.CarKey(); got != tt.want {
				t.Errorf("CarKey() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestUploadFile_Descriptor(t *testing.T) {
	carCd := int64(10418430)
	branch := 2
	row := UploadFile{ID: 77, CarCd: &carCd, BranchNo: &branch, SaveFileName: "/upfile/1041/8430/b.jpg"}

	fd := row.Descriptor()
	if fd.FileID != 77 {
		t.Errorf("FileID = %d, want 77", fd.FileID)
	}
	if fd.CarID != "10418430" {
		t.Errorf("CarID = %q, want %q", fd.CarID, "10418430")
	}
	if fd.RelativePath != "/upfile/1041/8430/b.jpg" {
		t.Errorf("RelativePath = %q", fd.RelativePath)
	}
	if fd.BranchNo == nil || *fd.BranchNo != 2 {
		t.Fatalf("BranchNo = %v, want 2", fd.BranchNo)
	}
	if fd.Key() != "77" {
		t.Errorf("Key() = %q, want %q", fd.Key(), "77")
	}

	// The descriptor must not alias the row.
	branch = 9
	if *fd.BranchNo != 2 {
		t.Errorf("BranchNo changed with the row: %d", *fd.BranchNo)
	}
}

func TestUploadFile_DescriptorWithoutBranch(t *testing.T) {
	fd := UploadFile{ID: 5, SaveFileName: "/upfile/x.jpg"}.Descriptor()
	if fd.BranchNo != nil {
		t.Errorf("BranchNo = %v, want nil", *fd.BranchNo)
	}
}
